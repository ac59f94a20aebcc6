// Package refresh decides when the session token must be renewed.
package refresh

import (
	"context"
	"time"

	"github.com/oktotrack/console/internal/tokens"
	"github.com/oktotrack/console/pkg/logger"
	"github.com/oktotrack/console/pkg/metrics"
)

// DefaultWindow is how long before expiry renewal starts.
const DefaultWindow = 300 * time.Second

// NeedsRefresh reports whether claims expire within window of now. Claims
// without exp and already-expired claims are not in the window.
func NeedsRefresh(c *tokens.Claims, now time.Time, window time.Duration) bool {
	exp, ok := c.Expiry()
	if !ok {
		return false
	}
	left := exp.Unix() - now.Unix()
	return left >= 0 && left < int64(window/time.Second)
}

// Authenticator is the part of auth.Client the coordinator drives.
type Authenticator interface {
	StoredClaims(ctx context.Context) (*tokens.Claims, error)
	Refresh(ctx context.Context) (string, bool)
	Renew(ctx context.Context) (string, error)
	Logout(ctx context.Context) error
}

type Option func(*Coordinator)

func WithWindow(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.window = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

type Coordinator struct {
	auth   Authenticator
	window time.Duration
	now    func() time.Time
}

func NewCoordinator(a Authenticator, opts ...Option) *Coordinator {
	c := &Coordinator{auth: a, window: DefaultWindow, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// EnsureValid makes sure a usable token is stored. Expired claims require a
// successful refresh; claims inside the renewal window are renewed when
// possible and stay usable until they actually expire.
func (c *Coordinator) EnsureValid(ctx context.Context) bool {
	claims, err := c.auth.StoredClaims(ctx)
	if err != nil {
		logger.Warnf("read stored claims: %v", err)
	}
	now := c.now()

	if tokens.IsExpired(claims, now) {
		_, ok := c.auth.Refresh(ctx)
		observe("expired", ok)
		return ok
	}
	if !NeedsRefresh(claims, now, c.window) {
		return true
	}

	_, err = c.auth.Renew(ctx)
	if err == nil {
		observe("window", true)
		return true
	}
	if !tokens.IsExpired(claims, c.now()) {
		logger.Infof("early renewal failed, keeping current token: %v", err)
		observe("window_kept", true)
		return true
	}
	observe("window", false)
	if ctx.Err() != nil {
		return false
	}
	if err := c.auth.Logout(context.WithoutCancel(ctx)); err != nil {
		logger.Errorf("logout after failed renewal: %v", err)
	}
	return false
}

func observe(path string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	metrics.SessionRefreshTotal.WithLabelValues(path, result).Inc()
}
