// Package auth exchanges credentials with the auth backend and owns the
// persisted token record.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/oktotrack/console/internal/authstate"
	"github.com/oktotrack/console/internal/sessions"
	"github.com/oktotrack/console/internal/tokens"
	"github.com/oktotrack/console/pkg/logger"
)

// Default endpoint paths on the auth backend.
const (
	DefaultLoginPath   = "/auth/get-token"
	DefaultRefreshPath = "/auth/refresh"
	DefaultCheckPath   = "/auth/check-jwt-token"
)

// Credential is used once per login attempt and never persisted.
type Credential struct {
	Identifier string `json:"email"`
	Secret     string `json:"password"`
}

// LoginResult is what a successful login yields.
type LoginResult struct {
	Claims *tokens.Claims
	Token  string
}

// Config locates the auth backend.
type Config struct {
	BaseURL     string
	LoginPath   string
	RefreshPath string
	CheckPath   string
	// HTTPClient defaults to a plain http.Client without timeout.
	HTTPClient *http.Client
}

type Client struct {
	cfg   Config
	http  *http.Client
	store sessions.Store
	state *authstate.State
}

// NewClient binds the client to the record store and the session state it keeps in sync.
func NewClient(cfg Config, store sessions.Store, state *authstate.State) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.LoginPath == "" {
		cfg.LoginPath = DefaultLoginPath
	}
	if cfg.RefreshPath == "" {
		cfg.RefreshPath = DefaultRefreshPath
	}
	if cfg.CheckPath == "" {
		cfg.CheckPath = DefaultCheckPath
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{cfg: cfg, http: hc, store: store, state: state}
}

func (c *Client) State() *authstate.State { return c.state }

type tokenResponse struct {
	AuthToken string `json:"auth_token"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Login exchanges the credential for a token, persists the record and then
// publishes the claims.
func (c *Client) Login(ctx context.Context, cred Credential) (*LoginResult, error) {
	status, body, err := c.post(ctx, c.cfg.LoginPath, cred)
	if err != nil {
		return nil, &NetworkError{Op: "login", Err: err}
	}
	if status < 200 || status > 299 {
		return nil, &AuthenticationError{Status: status, Message: errorMessage(status, body)}
	}
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil || tr.AuthToken == "" {
		return nil, &MalformedTokenError{Token: tr.AuthToken}
	}
	claims, ok := tokens.Decode(tr.AuthToken)
	if !ok {
		return nil, &MalformedTokenError{Token: tr.AuthToken}
	}
	rec := sessions.Record{Pair: sessions.SharedTokenPair(tr.AuthToken), Claims: claims}
	if err := c.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	c.state.Set(claims)
	logger.Infof("logged in as %s (company=%s)", claims.Email, claims.CompanyID)
	return &LoginResult{Claims: claims, Token: tr.AuthToken}, nil
}

// Refresh renews the access token with the stored refresh token. Any failure
// ends the session; the caller only learns whether a token was obtained.
// A cancelled ctx is not a failure: the session is left as is.
func (c *Client) Refresh(ctx context.Context) (string, bool) {
	tok, err := c.Renew(ctx)
	if err == nil {
		return tok, true
	}
	if errors.Is(err, errNoRefreshToken) {
		return "", false
	}
	if ctx.Err() != nil {
		logger.Debugf("refresh aborted: %v", ctx.Err())
		return "", false
	}
	logger.Warnf("token refresh failed, logging out: %v", err)
	if err := c.Logout(context.WithoutCancel(ctx)); err != nil {
		logger.Errorf("logout after failed refresh: %v", err)
	}
	return "", false
}

var errNoRefreshToken = errors.New("no refresh token stored")

// Renew performs the refresh exchange without touching the session on failure.
func (c *Client) Renew(ctx context.Context) (string, error) {
	rec, err := c.store.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}
	if rec == nil || rec.Pair.Refresh == "" {
		return "", errNoRefreshToken
	}
	refreshTok := rec.Pair.Refresh

	status, body, err := c.post(ctx, c.cfg.RefreshPath, map[string]string{"refresh_token": refreshTok})
	if err != nil {
		return "", &NetworkError{Op: "refresh", Err: err}
	}
	if status < 200 || status > 299 {
		return "", &AuthenticationError{Status: status, Message: errorMessage(status, body)}
	}
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil || tr.AuthToken == "" {
		return "", &MalformedTokenError{Token: tr.AuthToken}
	}
	claims, ok := tokens.Decode(tr.AuthToken)
	if !ok {
		return "", &MalformedTokenError{Token: tr.AuthToken}
	}
	next := sessions.Record{
		Pair:   sessions.TokenPair{Access: tr.AuthToken, Refresh: refreshTok},
		Claims: claims,
	}
	if err := c.store.Save(ctx, next); err != nil {
		return "", fmt.Errorf("persist session: %w", err)
	}
	if err := c.state.Reload(ctx); err != nil {
		logger.Warnf("reload session state after refresh: %v", err)
		c.state.Set(claims)
	}
	logger.Debugf("token refreshed: %s", logger.Redact(tr.AuthToken))
	return tr.AuthToken, nil
}

// CheckRemoteValidity asks the backend whether token is valid for companyID.
// Any 2xx answer counts as valid unless its body explicitly says otherwise.
func (c *Client) CheckRemoteValidity(ctx context.Context, token, companyID string) bool {
	status, body, err := c.post(ctx, c.cfg.CheckPath, map[string]string{"jwt": token, "company_id": companyID})
	if err != nil {
		logger.Warnf("token check failed: %v", err)
		return false
	}
	if status < 200 || status > 299 {
		logger.Infof("token check rejected: %s", errorMessage(status, body))
		return false
	}
	if explicitlyInvalid(body) {
		logger.Warnf("token check answered %d with an invalid verdict", status)
		return false
	}
	return true
}

func explicitlyInvalid(body []byte) bool {
	var v any
	if err := json.Unmarshal(bytes.TrimSpace(body), &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return !t
	case string:
		return strings.EqualFold(t, "false")
	case map[string]any:
		valid, ok := t["valid"].(bool)
		return ok && !valid
	}
	return false
}

// Logout clears the persisted record and then the state.
func (c *Client) Logout(ctx context.Context) error {
	err := c.store.Clear(ctx)
	c.state.Clear()
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// StoredToken returns the persisted access token or "".
func (c *Client) StoredToken(ctx context.Context) (string, error) {
	rec, err := c.store.Load(ctx)
	if err != nil || rec == nil {
		return "", err
	}
	return rec.Pair.Access, nil
}

// StoredClaims returns the persisted claims, nil when there are none.
func (c *Client) StoredClaims(ctx context.Context) (*tokens.Claims, error) {
	rec, err := c.store.Load(ctx)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.Claims, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (int, []byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	logger.Debugf("POST %s -> %d", path, resp.StatusCode)
	return resp.StatusCode, body, nil
}

// errorMessage prefers the backend's JSON error field.
func errorMessage(status int, body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
		return er.Error
	}
	return fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status))
}
