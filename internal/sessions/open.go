package sessions

import (
	"context"
	"fmt"

	"github.com/oktotrack/console/internal/config"
	"github.com/oktotrack/console/internal/database"
	"github.com/oktotrack/console/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Open builds the store selected by cfg.Session.Store. The returned func
// releases its connections.
func Open(ctx context.Context, cfg *config.Config) (Store, func(), error) {
	noop := func() {}
	switch cfg.Session.Store {
	case "memory":
		return NewMemoryStore(), noop, nil
	case "file":
		return NewFileStore(cfg.Session.FilePath), noop, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis session store: %w", err)
		}
		prefix := "console:session:" + cfg.Session.Namespace + ":"
		logger.Debugf("using Redis session store %s (prefix %s)", cfg.Redis.Addr(), prefix)
		return NewRedisStore(client, prefix), func() { _ = client.Close() }, nil
	case "mongo":
		client, err := database.ConnectMongo(ctx, cfg.MongoDB)
		if err != nil {
			return nil, nil, fmt.Errorf("mongo session store: %w", err)
		}
		col, err := database.SessionCollection(ctx, client, cfg.MongoDB)
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, fmt.Errorf("mongo session store: %w", err)
		}
		logger.Debugf("using Mongo session store %s.%s", cfg.MongoDB.Database, cfg.MongoDB.Collection)
		return NewMongoStore(col, cfg.Session.Namespace), func() { _ = client.Disconnect(context.Background()) }, nil
	}
	return nil, nil, fmt.Errorf("unknown session store %q", cfg.Session.Store)
}
