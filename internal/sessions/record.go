package sessions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oktotrack/console/internal/tokens"
)

// Fixed storage keys of the persisted token record.
const (
	KeyAuthToken    = "auth_token"
	KeyRefreshToken = "refresh_token"
	KeyTokenPayload = "token_payload"
)

// Keys lists every key a record occupies.
var Keys = []string{KeyAuthToken, KeyRefreshToken, KeyTokenPayload}

// TokenPair is the credential pair held for a session.
// The auth backend does not issue a distinct refresh credential yet: Refresh
// carries the same value as Access (see SharedTokenPair). Keep it that way
// until the backend changes its wire contract.
type TokenPair struct {
	Access  string
	Refresh string
}

// SharedTokenPair builds the pair implied by a login response.
func SharedTokenPair(token string) TokenPair {
	return TokenPair{Access: token, Refresh: token}
}

// Record is the persisted session: token pair plus decoded claims.
// Claims is nil when the stored payload is missing or unreadable.
type Record struct {
	Pair   TokenPair
	Claims *tokens.Claims
}

// Entries renders the record as its fixed key/value layout.
func (r Record) Entries() (map[string]string, error) {
	out := map[string]string{
		KeyAuthToken:    r.Pair.Access,
		KeyRefreshToken: r.Pair.Refresh,
	}
	if r.Claims != nil {
		b, err := json.Marshal(r.Claims)
		if err != nil {
			return nil, fmt.Errorf("encode token payload: %w", err)
		}
		out[KeyTokenPayload] = string(b)
	}
	return out, nil
}

// RecordFromEntries rebuilds a record. It returns nil when no key is present.
func RecordFromEntries(m map[string]string) *Record {
	if len(m) == 0 {
		return nil
	}
	r := &Record{Pair: TokenPair{Access: m[KeyAuthToken], Refresh: m[KeyRefreshToken]}}
	if p, ok := m[KeyTokenPayload]; ok && p != "" {
		if c, err := tokens.ParseStored([]byte(p)); err == nil {
			r.Claims = c
		}
	}
	return r
}

// Store persists the token record. Every write replaces all keys at once.
type Store interface {
	Load(ctx context.Context) (*Record, error)
	Save(ctx context.Context, r Record) error
	Clear(ctx context.Context) error
}

// Watcher is implemented by stores that can report changes made by other
// processes sharing the same record.
type Watcher interface {
	Watch(ctx context.Context, onChange func()) (stop func(), err error)
}
