// Package guard gates protected views on a valid session.
package guard

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/oktotrack/console/internal/authstate"
	"github.com/oktotrack/console/pkg/logger"
	"github.com/oktotrack/console/pkg/metrics"
)

// Status of a guarded view.
type Status int

const (
	Checking Status = iota
	Authorized
	Redirecting
)

func (s Status) String() string {
	switch s {
	case Checking:
		return "checking"
	case Authorized:
		return "authorized"
	case Redirecting:
		return "redirecting"
	}
	return "unknown"
}

const (
	DefaultLoginPath    = "/login"
	DefaultRecheckDelay = 100 * time.Millisecond
	DefaultInterval     = 60 * time.Second
)

// Validator renews the session when needed and reports whether it is usable.
type Validator interface {
	EnsureValid(ctx context.Context) bool
}

// Logouter ends the session before a redirect.
type Logouter interface {
	Logout(ctx context.Context) error
}

// Navigator performs the hand-off to the login flow.
type Navigator interface {
	Navigate(loginURL string)
}

// NavigatorFunc adapts a func to Navigator.
type NavigatorFunc func(string)

func (f NavigatorFunc) Navigate(u string) { f(u) }

// LoginURL builds the login location carrying the originating path.
func LoginURL(loginPath, from string) string {
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	if from == "" {
		return loginPath
	}
	return loginPath + "?redirect=" + url.QueryEscape(from)
}

type Option func(*Guard)

func WithLoginPath(p string) Option { return func(g *Guard) { g.loginPath = p } }

func WithRecheckDelay(d time.Duration) Option { return func(g *Guard) { g.recheckDelay = d } }

func WithInterval(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.interval = d
		}
	}
}

// Guard tracks one guarded view. Enter may be called again after Leave.
type Guard struct {
	validator Validator
	state     *authstate.State
	auth      Logouter
	nav       Navigator

	loginPath    string
	recheckDelay time.Duration
	interval     time.Duration

	mu     sync.Mutex
	status Status
	path   string
	cancel context.CancelFunc
	done   chan struct{}
}

func New(v Validator, state *authstate.State, a Logouter, nav Navigator, opts ...Option) *Guard {
	g := &Guard{
		validator:    v,
		state:        state,
		auth:         a,
		nav:          nav,
		loginPath:    DefaultLoginPath,
		recheckDelay: DefaultRecheckDelay,
		interval:     DefaultInterval,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Guard) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// Enter runs the entry check for path. On success the periodic watcher is
// started and runs until Leave or a failed check.
func (g *Guard) Enter(ctx context.Context, path string) Status {
	g.Leave()
	g.mu.Lock()
	g.status = Checking
	g.path = path
	g.mu.Unlock()

	if !g.validator.EnsureValid(ctx) {
		// an aborted check says nothing about the session
		if ctx.Err() != nil {
			return g.Status()
		}
		g.redirect(ctx, "invalid")
		return Redirecting
	}
	if !g.state.IsAuthenticated() {
		// a refresh that just landed may not have reached the state yet
		select {
		case <-ctx.Done():
			return g.Status()
		case <-time.After(g.recheckDelay):
		}
		if !g.state.IsAuthenticated() {
			g.redirect(ctx, "unauthenticated")
			return Redirecting
		}
	}

	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	g.mu.Lock()
	g.status = Authorized
	g.cancel = cancel
	g.done = done
	g.mu.Unlock()
	go g.watch(wctx, cancel, done)
	return Authorized
}

// Leave stops the watcher. The status is left as is.
func (g *Guard) Leave() {
	g.mu.Lock()
	cancel, done := g.cancel, g.done
	g.cancel, g.done = nil, nil
	g.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (g *Guard) watch(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(g.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if g.validator.EnsureValid(ctx) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			g.mu.Lock()
			if g.done == done {
				g.cancel, g.done = nil, nil
			}
			g.mu.Unlock()
			g.redirect(ctx, "watcher")
			cancel()
			return
		}
	}
}

func (g *Guard) redirect(ctx context.Context, cause string) {
	g.mu.Lock()
	g.status = Redirecting
	path := g.path
	g.mu.Unlock()

	if err := g.auth.Logout(context.WithoutCancel(ctx)); err != nil {
		logger.Warnf("logout before redirect: %v", err)
	}
	metrics.GuardRedirects.WithLabelValues(cause).Inc()
	target := LoginURL(g.loginPath, path)
	logger.Infof("redirecting to %s (%s)", target, cause)
	g.nav.Navigate(target)
}
