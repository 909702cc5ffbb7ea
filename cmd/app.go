// Package cmd provides the eventhint service commands.
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/eventhint/eventhint/config"
	"github.com/eventhint/eventhint/pkg/db"
	"github.com/eventhint/eventhint/pkg/logging"
	"github.com/eventhint/eventhint/pkg/queues"
)

// loadSettings loads configuration from the optional file and the
// environment.
func loadSettings(cfgFile string) (*config.Settings, error) {
	settings, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return settings, nil
}

// newServiceLogger builds the service logger from settings.
func newServiceLogger(settings *config.Settings) logging.Logger {
	return logging.NewLogger(&logging.Config{
		Level:       logging.Level(settings.LogLevel),
		ServiceName: "eventhint",
		Environment: settings.Environment,
		JSONFormat:  settings.Environment != "development",
	})
}

// connectDatabase opens the pgx pool with startup retries, so the
// service tolerates the database coming up after it.
func connectDatabase(ctx context.Context, settings *config.Settings) (*pgxpool.Pool, error) {
	pool, err := db.ConnectWithRetry(ctx, db.DefaultConfig(settings.DatabaseURL), 5, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, nil
}

// connectRedis opens the Redis client used by the job queues.
func connectRedis(ctx context.Context, settings *config.Settings) (*redis.Client, error) {
	opts, err := redis.ParseURL(settings.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// buildQueues constructs every job queue against one Redis client.
func buildQueues(client *redis.Client) map[string]*queues.RedisQueue {
	out := make(map[string]*queues.RedisQueue)
	for name, cfg := range queues.DefaultQueueConfigs() {
		out[name] = queues.NewRedisQueue(client, cfg)
	}
	return out
}
