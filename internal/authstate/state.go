// Package authstate holds the process-wide view of the current session: the
// decoded claims of the persisted token and the derived authentication status.
//
// A State is constructed explicitly and passed to the components that need it.
// Writers replace the whole snapshot; observers are called synchronously, in
// order, after each transition. Observers must not call back into Set, Clear or
// Reload.
package authstate

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/oktotrack/console/internal/sessions"
	"github.com/oktotrack/console/internal/tokens"
	"github.com/oktotrack/console/pkg/logger"
)

// Snapshot is an immutable copy of the session state.
type Snapshot struct {
	Claims          *tokens.Claims
	IsAuthenticated bool
	IsLoading       bool
	IsInitialized   bool
}

// Option configures a State.
type Option func(*State)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *State) { s.now = now }
}

type State struct {
	store sessions.Store
	now   func() time.Time

	// writeMu serialises transitions together with their notifications.
	writeMu sync.Mutex

	mu          sync.RWMutex
	claims      *tokens.Claims
	loading     bool
	initialized bool

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(Snapshot)
	order  []int

	once      sync.Once
	initErr   error
	stopWatch func()
}

// New returns an empty, uninitialised State backed by store.
func New(store sessions.Store, opts ...Option) *State {
	s := &State{store: store, now: time.Now, subs: map[int]func(Snapshot){}}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init hydrates the state from the store. It runs at most once; concurrent and
// later callers wait for and share the first run's result.
func (s *State) Init(ctx context.Context) error {
	s.once.Do(func() {
		s.initErr = s.hydrate(ctx)
		if w, ok := s.store.(sessions.Watcher); ok && s.initErr == nil {
			stop, err := w.Watch(context.Background(), func() {
				if err := s.Reload(context.Background()); err != nil {
					logger.Warnf("session reload after external change failed: %v", err)
				}
			})
			if err != nil {
				logger.Warnf("session change watch unavailable: %v", err)
			} else {
				s.mu.Lock()
				s.stopWatch = stop
				s.mu.Unlock()
			}
		}
	})
	return s.initErr
}

func (s *State) hydrate(ctx context.Context) error {
	s.transition(func() { s.loading = true })

	rec, err := s.store.Load(ctx)
	if err != nil {
		s.transition(func() {
			s.claims = nil
			s.loading = false
			s.initialized = true
		})
		return err
	}
	var claims *tokens.Claims
	if rec != nil && rec.Claims != nil && !tokens.IsExpired(rec.Claims, s.now()) {
		claims = rec.Claims
	} else if rec != nil {
		logger.Infof("stored session missing or expired; clearing it")
		if err := s.store.Clear(ctx); err != nil {
			logger.Warnf("failed to clear stale session: %v", err)
		}
	}
	s.transition(func() {
		s.claims = claims
		s.loading = false
		s.initialized = true
	})
	return nil
}

// Set publishes freshly persisted claims.
func (s *State) Set(c *tokens.Claims) {
	s.transition(func() { s.claims = c })
}

// Clear drops the claims; the state stays initialised.
func (s *State) Clear() {
	s.transition(func() {
		s.claims = nil
		s.initialized = true
	})
}

// Reload re-reads the store and publishes its claims when they are still valid.
func (s *State) Reload(ctx context.Context) error {
	rec, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	var claims *tokens.Claims
	if rec != nil && rec.Claims != nil && !tokens.IsExpired(rec.Claims, s.now()) {
		claims = rec.Claims
	}
	s.transition(func() { s.claims = claims })
	return nil
}

// Teardown stops watching the store for external changes.
func (s *State) Teardown() {
	s.mu.Lock()
	stop := s.stopWatch
	s.stopWatch = nil
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// Snapshot returns the current state. IsAuthenticated is evaluated now.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() Snapshot {
	return Snapshot{
		Claims:          s.claims,
		IsAuthenticated: s.claims != nil && !tokens.IsExpired(s.claims, s.now()),
		IsLoading:       s.loading,
		IsInitialized:   s.initialized,
	}
}

func (s *State) IsAuthenticated() bool { return s.Snapshot().IsAuthenticated }

func (s *State) Claims() *tokens.Claims { return s.Snapshot().Claims }

// CompanyID returns the company_id claim or "".
func (s *State) CompanyID() string {
	if c := s.Claims(); c != nil {
		return c.CompanyID
	}
	return ""
}

// UserID returns the user_id claim or "".
func (s *State) UserID() string {
	if c := s.Claims(); c != nil {
		return c.UserID
	}
	return ""
}

// Subscribe registers fn for every transition and returns its cancel func.
func (s *State) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.order = append(s.order, id)
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
		for i, v := range s.order {
			if v == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
}

// transition applies mutate and notifies observers when the snapshot changed.
func (s *State) transition(mutate func()) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	before := s.snapshotLocked()
	mutate()
	after := s.snapshotLocked()
	s.mu.Unlock()

	if sameSnapshot(before, after) {
		return
	}
	s.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.order))
	for _, id := range s.order {
		fns = append(fns, s.subs[id])
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(after)
	}
}

func sameSnapshot(a, b Snapshot) bool {
	return a.IsAuthenticated == b.IsAuthenticated &&
		a.IsLoading == b.IsLoading &&
		a.IsInitialized == b.IsInitialized &&
		sameClaims(a.Claims, b.Claims)
}

func sameClaims(a, b *tokens.Claims) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ab, bb)
}
