package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/oktotrack/console/pkg/logger"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Backend   BackendConfig
	AuthPaths AuthPathsConfig
	Session   SessionConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Verify    VerifyConfig
	LogLevel  string
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// BackendConfig holds the base URLs the console forwards to.
type BackendConfig struct {
	AuthURL      string
	CompaniesURL string
	VetisURL     string
	// Timeout bounds each upstream call; 0 keeps the transport default.
	Timeout time.Duration
}

type AuthPathsConfig struct {
	Login   string
	Refresh string
	Check   string
}

type SessionConfig struct {
	Store         string // memory | file | redis | mongo
	Namespace     string
	FilePath      string
	ConsoleURL    string
	RefreshWindow time.Duration
	GuardInterval time.Duration
	RecheckDelay  time.Duration
	LoginPath     string
}

type MongoDBConfig struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
	// SessionTTL drops session documents not written for this long; 0 keeps them.
	SessionTTL time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port, or "" when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return r.Host + ":" + r.Port
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// VerifyConfig enables bearer verification on proxied routes. Both empty
// means tokens are forwarded without inspection.
type VerifyConfig struct {
	OIDCIssuer   string
	OIDCClientID string
	HMACSecret   string
}

func (v VerifyConfig) Enabled() bool { return v.OIDCIssuer != "" || v.HMACSecret != "" }

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "3000")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("AUTH_BACKEND_URL", "http://localhost:2000")
	v.SetDefault("COMPANIES_BACKEND_URL", "http://localhost:8080")
	v.SetDefault("VETIS_BACKEND_URL", "http://localhost:8081")
	v.SetDefault("BACKEND_TIMEOUT_SECONDS", 0)

	v.SetDefault("AUTH_LOGIN_PATH", "/auth/get-token")
	v.SetDefault("AUTH_REFRESH_PATH", "/auth/refresh")
	v.SetDefault("AUTH_CHECK_PATH", "/auth/check-jwt-token")

	v.SetDefault("SESSION_STORE", "file")
	v.SetDefault("SESSION_NAMESPACE", "default")
	v.SetDefault("SESSION_FILE", defaultSessionFile())
	v.SetDefault("CONSOLE_URL", "http://localhost:3000")
	v.SetDefault("SESSION_REFRESH_WINDOW_SECONDS", 300)
	v.SetDefault("SESSION_GUARD_INTERVAL_SECONDS", 60)
	v.SetDefault("SESSION_RECHECK_DELAY_MS", 100)
	v.SetDefault("SESSION_LOGIN_PATH", "/login")

	v.SetDefault("MONGODB_DATABASE", "console")
	v.SetDefault("MONGODB_COLLECTION", "sessions")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("MONGODB_SESSION_TTL_HOURS", 720)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_USE_REDIS", false)
	v.SetDefault("RATE_LIMIT_RPS", 10.0)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			Environment:  v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Backend: BackendConfig{
			AuthURL:      strings.TrimRight(v.GetString("AUTH_BACKEND_URL"), "/"),
			CompaniesURL: strings.TrimRight(v.GetString("COMPANIES_BACKEND_URL"), "/"),
			VetisURL:     strings.TrimRight(v.GetString("VETIS_BACKEND_URL"), "/"),
			Timeout:      time.Duration(v.GetInt("BACKEND_TIMEOUT_SECONDS")) * time.Second,
		},
		AuthPaths: AuthPathsConfig{
			Login:   v.GetString("AUTH_LOGIN_PATH"),
			Refresh: v.GetString("AUTH_REFRESH_PATH"),
			Check:   v.GetString("AUTH_CHECK_PATH"),
		},
		Session: SessionConfig{
			Store:         strings.ToLower(v.GetString("SESSION_STORE")),
			Namespace:     v.GetString("SESSION_NAMESPACE"),
			FilePath:      v.GetString("SESSION_FILE"),
			ConsoleURL:    strings.TrimRight(v.GetString("CONSOLE_URL"), "/"),
			RefreshWindow: time.Duration(v.GetInt("SESSION_REFRESH_WINDOW_SECONDS")) * time.Second,
			GuardInterval: time.Duration(v.GetInt("SESSION_GUARD_INTERVAL_SECONDS")) * time.Second,
			RecheckDelay:  time.Duration(v.GetInt("SESSION_RECHECK_DELAY_MS")) * time.Millisecond,
			LoginPath:     v.GetString("SESSION_LOGIN_PATH"),
		},
		MongoDB: MongoDBConfig{
			URI:        v.GetString("MONGODB_URI"),
			Database:   v.GetString("MONGODB_DATABASE"),
			Collection: v.GetString("MONGODB_COLLECTION"),
			Timeout:    time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
			SessionTTL: time.Duration(v.GetInt("MONGODB_SESSION_TTL_HOURS")) * time.Hour,
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Verify: VerifyConfig{
			OIDCIssuer:   v.GetString("VERIFY_OIDC_ISSUER"),
			OIDCClientID: v.GetString("VERIFY_OIDC_CLIENT_ID"),
			HMACSecret:   os.Getenv("VERIFY_HMAC_SECRET"),
		},
		LogLevel: v.GetString("LOG_LEVEL"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.RateLimit.UseRedis && cfg.Redis.Addr() == "" {
		logger.Warnf("RATE_LIMIT_USE_REDIS is set but REDIS_HOST is empty; using the in-memory limiter")
		cfg.RateLimit.UseRedis = false
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Session.Store {
	case "memory", "file":
	case "redis":
		if c.Redis.Addr() == "" {
			return fmt.Errorf("SESSION_STORE=redis requires REDIS_HOST")
		}
	case "mongo":
		if c.MongoDB.URI == "" {
			return fmt.Errorf("SESSION_STORE=mongo requires MONGODB_URI")
		}
	default:
		return fmt.Errorf("unknown SESSION_STORE %q", c.Session.Store)
	}
	if c.Verify.OIDCIssuer != "" && c.Verify.OIDCClientID == "" {
		return fmt.Errorf("VERIFY_OIDC_ISSUER requires VERIFY_OIDC_CLIENT_ID")
	}
	return nil
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return ".trackctl/session.json"
	}
	return dir + "/trackctl/session.json"
}
