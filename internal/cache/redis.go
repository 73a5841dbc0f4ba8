package cache

import (
	"context"
	"fmt"
	"log"

	"github.com/go-redis/redis/v8"

	"go_hostpanel/internal/config"
)

var Client *redis.Client

// InitRedis initializes the shared Redis connection
func InitRedis(cfg config.RedisConfig) error {
	Client = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := Client.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Println("✓ Redis connected successfully")
	return nil
}

// Close closes the Redis connection
func Close() error {
	if Client != nil {
		return Client.Close()
	}
	return nil
}
