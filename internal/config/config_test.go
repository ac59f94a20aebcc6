package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("SESSION_STORE", "memory")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "http://localhost:2000", cfg.Backend.AuthURL)
	assert.Equal(t, "/auth/get-token", cfg.AuthPaths.Login)
	assert.Equal(t, "/auth/refresh", cfg.AuthPaths.Refresh)
	assert.Equal(t, "/auth/check-jwt-token", cfg.AuthPaths.Check)
	assert.Equal(t, 300*time.Second, cfg.Session.RefreshWindow)
	assert.Equal(t, 60*time.Second, cfg.Session.GuardInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.Session.RecheckDelay)
	assert.Equal(t, "/login", cfg.Session.LoginPath)
	assert.Zero(t, cfg.Backend.Timeout)
	assert.False(t, cfg.Verify.Enabled())
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("SESSION_STORE", "Redis")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("AUTH_BACKEND_URL", "https://auth.example.com/")
	t.Setenv("BACKEND_TIMEOUT_SECONDS", "15")
	t.Setenv("VERIFY_HMAC_SECRET", "s3cret")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Session.Store)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr())
	assert.Equal(t, "https://auth.example.com", cfg.Backend.AuthURL)
	assert.Equal(t, 15*time.Second, cfg.Backend.Timeout)
	assert.True(t, cfg.Verify.Enabled())
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown store":      {"SESSION_STORE": "etcd"},
		"redis without host": {"SESSION_STORE": "redis", "REDIS_HOST": ""},
		"mongo without uri":  {"SESSION_STORE": "mongo", "MONGODB_URI": ""},
		"oidc without client": {
			"SESSION_STORE":      "memory",
			"VERIFY_OIDC_ISSUER": "https://idp.example.com",
		},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}

func TestLoadConfig_RedisRateLimitFallsBack(t *testing.T) {
	t.Setenv("SESSION_STORE", "memory")
	t.Setenv("RATE_LIMIT_USE_REDIS", "true")
	t.Setenv("REDIS_HOST", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.RateLimit.UseRedis)
}
