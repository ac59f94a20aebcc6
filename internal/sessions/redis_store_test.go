package sessions

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/oktotrack/console/internal/tokens"
	"github.com/oktotrack/console/internal/tokens/tokenstest"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_SaveLoadClear(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	store := NewRedisStore(client, "test:session:")
	ctx := context.Background()

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, got)

	tok := tokenstest.ExpiringIn(t, time.Hour)
	claims, ok := tokens.Decode(tok)
	require.True(t, ok)
	rec := Record{Pair: SharedTokenPair(tok), Claims: claims}
	require.NoError(t, store.Save(ctx, rec))

	// stored entries are byte-identical to what was written
	want, err := rec.Entries()
	require.NoError(t, err)
	for _, k := range Keys {
		v, err := m.Get("test:session:" + k)
		require.NoError(t, err)
		require.Equal(t, want[k], v)
	}

	got, err = store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, tok, got.Pair.Access)
	require.Equal(t, tok, got.Pair.Refresh)
	require.Equal(t, claims.Extra, got.Claims.Extra)
	require.Equal(t, claims.ExpiresAt.Unix(), got.Claims.ExpiresAt.Unix())

	require.NoError(t, store.Clear(ctx))
	require.False(t, m.Exists("test:session:auth_token"))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestRedisStore_WatchSeesOtherInstances(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	a := NewRedisStore(redis.NewClient(&redis.Options{Addr: m.Addr()}), "shared:")
	b := NewRedisStore(redis.NewClient(&redis.Options{Addr: m.Addr()}), "shared:")

	changed := make(chan struct{}, 4)
	stop, err := a.Watch(ctx, func() { changed <- struct{}{} })
	require.NoError(t, err)
	defer stop()

	// own writes are not echoed back
	require.NoError(t, a.Save(ctx, Record{Pair: SharedTokenPair("x.y.z")}))
	select {
	case <-changed:
		t.Fatal("watcher fired for its own write")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, b.Clear(ctx))
	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not observe the other instance's clear")
	}
}
