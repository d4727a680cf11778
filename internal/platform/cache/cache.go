package cache

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a best-effort read-through cache in front of list/aggregate
// queries. A Cache with no backing client is valid: Get always misses,
// Set and DelByPrefix are no-ops. A Redis outage must never fail a write,
// so every error here is logged and swallowed.
type Cache struct {
	rdb *redis.Client
}

// New connects to Redis at addr. Empty addr or an unreachable server
// yields a disabled cache.
func New(addr string) *Cache {
	if addr == "" {
		log.Println("[WARN] redis_addr not set, cache disabled")
		return &Cache{}
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("[WARN] redis connect failed, cache disabled: %v", err)
		_ = rdb.Close()
		return &Cache{}
	}
	log.Println("[INFO] redis connected")
	return &Cache{rdb: rdb}
}

func (c *Cache) Close() {
	if c == nil || c.rdb == nil {
		return
	}
	_ = c.rdb.Close()
}

// Get returns the cached value and whether it was present.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	if c == nil || c.rdb == nil {
		return "", false
	}
	v, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		log.Printf("[WARN] redis get %s: %v", key, err)
		return "", false
	}
	return v, true
}

func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		log.Printf("[WARN] redis set %s: %v", key, err)
	}
}

// DelByPrefix removes every key starting with prefix via SCAN, so large
// keyspaces are walked without blocking the server.
func (c *Cache) DelByPrefix(ctx context.Context, prefix string) {
	if c == nil || c.rdb == nil {
		return
	}
	iter := c.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			log.Printf("[WARN] redis del %s: %v", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		log.Printf("[WARN] redis scan %s*: %v", prefix, err)
	}
}
