package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oktotrack/console/internal/authstate"
	"github.com/oktotrack/console/internal/sessions"
	"github.com/oktotrack/console/internal/tokens"
	"github.com/oktotrack/console/internal/tokens/tokenstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store  *sessions.MemoryStore
	state  *authstate.State
	client *Client
}

func newFixture(t *testing.T, h http.Handler) *fixture {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	store := sessions.NewMemoryStore()
	state := authstate.New(store)
	require.NoError(t, state.Init(context.Background()))
	t.Cleanup(state.Teardown)
	return &fixture{
		store:  store,
		state:  state,
		client: NewClient(Config{BaseURL: srv.URL + "/"}, store, state),
	}
}

func (f *fixture) seed(t *testing.T, tok string) {
	t.Helper()
	c, ok := tokens.Decode(tok)
	require.True(t, ok)
	require.NoError(t, f.store.Save(context.Background(), sessions.Record{Pair: sessions.SharedTokenPair(tok), Claims: c}))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestLogin_Success(t *testing.T) {
	tok := tokenstest.ExpiringIn(t, time.Hour)
	var got map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/get-token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, map[string]string{"auth_token": tok})
	})
	f := newFixture(t, mux)

	res, err := f.client.Login(context.Background(), Credential{Identifier: "admin@example.com", Secret: "pw"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"email": "admin@example.com", "password": "pw"}, got)
	assert.Equal(t, tok, res.Token)
	assert.Equal(t, "admin@example.com", res.Claims.Email)
	assert.Equal(t, tokens.RoleAdmin, res.Claims.Role)

	assert.True(t, f.state.IsAuthenticated())
	assert.Equal(t, "admin@example.com", f.state.Claims().Email)
	assert.Equal(t, "company-1", f.state.CompanyID())

	access, _ := f.store.Entry(sessions.KeyAuthToken)
	refresh, _ := f.store.Entry(sessions.KeyRefreshToken)
	assert.Equal(t, tok, access)
	assert.Equal(t, tok, refresh, "backend issues one token for both roles")
}

func TestLogin_PersistsBeforePublishing(t *testing.T) {
	tok := tokenstest.ExpiringIn(t, time.Hour)
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"auth_token": tok})
	}))
	var persisted bool
	f.state.Subscribe(func(s authstate.Snapshot) {
		if s.IsAuthenticated {
			_, persisted = f.store.Entry(sessions.KeyTokenPayload)
		}
	})
	_, err := f.client.Login(context.Background(), Credential{Identifier: "a", Secret: "b"})
	require.NoError(t, err)
	assert.True(t, persisted)
}

func TestLogin_Rejected(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "bad credentials"})
	}))

	_, err := f.client.Login(context.Background(), Credential{Identifier: "a", Secret: "wrong"})
	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "bad credentials", authErr.Message)
	assert.Equal(t, http.StatusUnauthorized, authErr.Status)
	assert.False(t, f.state.IsAuthenticated())
	_, ok := f.store.Entry(sessions.KeyAuthToken)
	assert.False(t, ok)
}

func TestLogin_RejectedWithoutErrorField(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	_, err := f.client.Login(context.Background(), Credential{})
	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "HTTP 502: Bad Gateway", authErr.Message)
}

func TestLogin_MalformedToken(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"auth_token": "not-a-token"})
	}))
	_, err := f.client.Login(context.Background(), Credential{})
	var mt *MalformedTokenError
	require.ErrorAs(t, err, &mt)
	var authErr *AuthenticationError
	assert.False(t, errors.As(err, &authErr))
	assert.False(t, f.state.IsAuthenticated())
	_, ok := f.store.Entry(sessions.KeyAuthToken)
	assert.False(t, ok, "nothing persisted for an undecodable token")
}

func TestLogin_AcceptsMistypedClaims(t *testing.T) {
	tok := tokenstest.Mint(t, jwt.MapClaims{
		"email":      "admin@example.com",
		"sub":        123,
		"aud":        5,
		"user_id":    7,
		"company_id": 42,
		"exp":        time.Now().Add(time.Hour).Unix(),
	})
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"auth_token": tok})
	}))

	res, err := f.client.Login(context.Background(), Credential{Identifier: "admin@example.com", Secret: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", res.Claims.Email)
	assert.Equal(t, float64(42), res.Claims.Extra["company_id"])
	assert.True(t, f.state.IsAuthenticated())

	claims, err := f.client.StoredClaims(context.Background())
	require.NoError(t, err)
	require.NotNil(t, claims)
	assert.Equal(t, res.Claims.Extra, claims.Extra)
}

func TestLogin_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	store := sessions.NewMemoryStore()
	c := NewClient(Config{BaseURL: url}, store, authstate.New(store))
	_, err := c.Login(context.Background(), Credential{})
	var ne *NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "login", ne.Op)
}

func TestRefresh_NoStoredTokenSkipsNetwork(t *testing.T) {
	var calls int32
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	tok, ok := f.client.Refresh(context.Background())
	assert.False(t, ok)
	assert.Empty(t, tok)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestRefresh_Success(t *testing.T) {
	old := tokenstest.ExpiringIn(t, time.Minute)
	fresh := tokenstest.ExpiringIn(t, time.Hour)
	var sent map[string]string
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&sent)
		writeJSON(w, http.StatusOK, map[string]string{"auth_token": fresh})
	})
	f := newFixture(t, mux)
	f.seed(t, old)

	tok, ok := f.client.Refresh(context.Background())
	require.True(t, ok)
	assert.Equal(t, fresh, tok)
	assert.Equal(t, map[string]string{"refresh_token": old}, sent)

	access, _ := f.store.Entry(sessions.KeyAuthToken)
	refresh, _ := f.store.Entry(sessions.KeyRefreshToken)
	assert.Equal(t, fresh, access)
	assert.Equal(t, old, refresh, "refresh value is carried over unchanged")

	c, ok := tokens.Decode(fresh)
	require.True(t, ok)
	assert.Equal(t, c.ExpiresAt.Unix(), f.state.Claims().ExpiresAt.Unix())
}

func TestRefresh_FailureLogsOut(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "expired"})
		},
		"undecodable": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"auth_token": "x.%%%.z"})
		},
		"empty body": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, h)
			f.seed(t, tokenstest.ExpiringIn(t, time.Hour))
			require.True(t, f.state.IsAuthenticated())

			tok, ok := f.client.Refresh(context.Background())
			assert.False(t, ok)
			assert.Empty(t, tok)
			assert.False(t, f.state.IsAuthenticated())
			for _, k := range sessions.Keys {
				_, present := f.store.Entry(k)
				assert.False(t, present, k)
			}
		})
	}
}

func TestRefresh_CancelledKeepsSession(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer close(release)
	f.seed(t, tokenstest.ExpiringIn(t, time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, ok := f.client.Refresh(ctx)
	assert.False(t, ok)
	assert.True(t, f.state.IsAuthenticated())
	_, present := f.store.Entry(sessions.KeyAuthToken)
	assert.True(t, present)
}

func TestRenew_FailureLeavesSession(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "boom"})
	}))
	f.seed(t, tokenstest.ExpiringIn(t, 2*time.Minute))

	_, err := f.client.Renew(context.Background())
	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "boom", authErr.Message)
	assert.True(t, f.state.IsAuthenticated())
}

func TestCheckRemoteValidity(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{"ok with true", http.StatusOK, `true`, true},
		{"ok with object", http.StatusOK, `{"valid":true}`, true},
		{"ok with empty body", http.StatusOK, ``, true},
		{"ok with unrelated body", http.StatusOK, `{"message":"fine"}`, true},
		{"ok with plain text", http.StatusOK, `looks good`, true},
		{"ok with false", http.StatusOK, `false`, false},
		{"ok with quoted false", http.StatusOK, `"false"`, false},
		{"ok with valid false", http.StatusOK, `{"valid":false}`, false},
		{"unauthorized", http.StatusUnauthorized, `{"error":"nope"}`, false},
		{"server error", http.StatusInternalServerError, ``, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var sent map[string]string
			mux := http.NewServeMux()
			mux.HandleFunc("/auth/check-jwt-token", func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewDecoder(r.Body).Decode(&sent)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			f := newFixture(t, mux)
			assert.Equal(t, tc.want, f.client.CheckRemoteValidity(context.Background(), "a.b.c", "company-9"))
			assert.Equal(t, map[string]string{"jwt": "a.b.c", "company_id": "company-9"}, sent)
		})
	}
}

func TestLogout(t *testing.T) {
	f := newFixture(t, http.NotFoundHandler())
	tok := tokenstest.ExpiringIn(t, time.Hour)
	f.seed(t, tok)
	require.True(t, f.state.IsAuthenticated())

	got, err := f.client.StoredToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tok, got)

	require.NoError(t, f.client.Logout(context.Background()))
	assert.False(t, f.state.IsAuthenticated())
	got, err = f.client.StoredToken(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
	claims, err := f.client.StoredClaims(context.Background())
	require.NoError(t, err)
	assert.Nil(t, claims)
}
