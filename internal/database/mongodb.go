package database

import (
	"context"
	"fmt"
	"time"

	"github.com/oktotrack/console/internal/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const appName = "oktotrack-console"

// ConnectMongo opens a client for cfg.URI and pings it within cfg.Timeout.
// Caller should call client.Disconnect(ctx).
func ConnectMongo(ctx context.Context, cfg config.MongoDBConfig) (*mongo.Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	clientOpts := options.Client().ApplyURI(cfg.URI).SetAppName(appName)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// SessionCollection returns the configured session collection. With a
// SessionTTL it also ensures the TTL index on updatedAt.
func SessionCollection(ctx context.Context, client *mongo.Client, cfg config.MongoDBConfig) (*mongo.Collection, error) {
	col := client.Database(cfg.Database).Collection(cfg.Collection)
	if cfg.SessionTTL <= 0 {
		return col, nil
	}
	_, err := col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "updatedAt", Value: 1}},
		Options: options.Index().SetName("session_ttl").SetExpireAfterSeconds(int32(cfg.SessionTTL / time.Second)),
	})
	if err != nil {
		return nil, fmt.Errorf("session ttl index: %w", err)
	}
	return col, nil
}
