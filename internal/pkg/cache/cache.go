package cache

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ManuelReschke/CreditFox/internal/pkg/env"
	"github.com/redis/go-redis/v9"
)

var (
	client    *redis.Client
	setupOnce sync.Once
	ctx       = context.Background()
)

// SetupCache initializes the connection to the Redis/Dragonfly cache server
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       0, // use default DB
	})

	// Test the connection
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Printf("Warning: Could not connect to cache: %v", err)
	} else {
		log.Printf("Successfully connected to cache: %s", pong)
	}
}

// GetClient returns the Redis client instance. Lazy setup is guarded so
// concurrent first callers initialize the client exactly once.
func GetClient() *redis.Client {
	setupOnce.Do(func() {
		if client == nil {
			SetupCache()
		}
	})
	return client
}

// Set stores a value in the cache with the given key and expiration time
func Set(key string, value interface{}, expiration time.Duration) error {
	return GetClient().Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value from the cache by key
func Get(key string) (string, error) {
	return GetClient().Get(ctx, key).Result()
}

// GetInt retrieves an integer value from the cache by key
func GetInt(key string) (int, error) {
	val, err := GetClient().Get(ctx, key).Int()
	if err != nil {
		return 0, err
	}
	return val, nil
}

// Delete removes a value from the cache by key
func Delete(key string) error {
	return GetClient().Del(ctx, key).Err()
}

// AcquireLock tries to take a named run lock via SET NX. It returns true
// when the lock is ours. The lock expires on its own after ttl so a
// crashed holder cannot block the job forever.
func AcquireLock(name string, ttl time.Duration) (bool, error) {
	return GetClient().SetNX(ctx, "lock:"+name, "1", ttl).Result()
}

// ReleaseLock drops a lock taken with AcquireLock.
func ReleaseLock(name string) error {
	return GetClient().Del(ctx, "lock:"+name).Err()
}
