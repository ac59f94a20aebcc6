package sessions

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/oktotrack/console/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store using Redis as the backing store.
// The record lives under "<prefix>auth_token", "<prefix>refresh_token" and
// "<prefix>token_payload"; writes run in one MULTI block and are announced on
// "<prefix>changes" so other processes sharing the prefix can reload.
type RedisStore struct {
	client *redis.Client
	prefix string
	origin string
}

// NewRedisStore creates a Redis-based record store. Prefix may be empty.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "console:session:"
	}
	return &RedisStore{client: client, prefix: prefix, origin: uuid.NewString()}
}

func (r *RedisStore) key(name string) string {
	return r.prefix + name
}

func (r *RedisStore) channel() string {
	return r.prefix + "changes"
}

func (r *RedisStore) Load(ctx context.Context) (*Record, error) {
	keys := make([]string, len(Keys))
	for i, k := range Keys {
		keys[i] = r.key(k)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	m := map[string]string{}
	for i, v := range vals {
		if s, ok := v.(string); ok {
			m[Keys[i]] = s
		}
	}
	return RecordFromEntries(m), nil
}

func (r *RedisStore) Save(ctx context.Context, rec Record) error {
	e, err := rec.Entries()
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, k := range Keys {
			if v, ok := e[k]; ok {
				p.Set(ctx, r.key(k), v, 0)
			} else {
				p.Del(ctx, r.key(k))
			}
		}
		p.Publish(ctx, r.channel(), r.origin+":save")
		return nil
	})
	return err
}

func (r *RedisStore) Clear(ctx context.Context) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, k := range Keys {
			p.Del(ctx, r.key(k))
		}
		p.Publish(ctx, r.channel(), r.origin+":clear")
		return nil
	})
	return err
}

// Watch subscribes to change announcements from other RedisStore instances.
// Announcements made by this instance are skipped.
func (r *RedisStore) Watch(ctx context.Context, onChange func()) (func(), error) {
	ps := r.client.Subscribe(ctx, r.channel())
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", r.channel(), err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ps.Channel() {
			if strings.HasPrefix(msg.Payload, r.origin+":") {
				continue
			}
			logger.Debugf("session record changed elsewhere (%s)", msg.Payload)
			onChange()
		}
	}()
	return func() {
		_ = ps.Close()
		<-done
	}, nil
}
