// Package cache stores recovery batches in Redis, keyed by the exact text and
// anchors they were computed from.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"chronicle/anchors/internal/anchor"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when no batch is cached for a key.
var ErrMiss = errors.New("cache miss")

const defaultTTL = 24 * time.Hour

// entry is the JSON payload kept for each batch
type entry struct {
	Results   map[string]anchor.RecoveryResult `json:"results"`
	CreatedAt time.Time                        `json:"created_at"`
}

// RedisCache caches recovery results using Redis
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to redisURL and verifies the connection.
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client, ttl), nil
}

// NewRedisCacheWithClient creates a cache from an existing Redis client
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisCache{
		client: client,
		prefix: "recovery:",
		ttl:    ttl,
	}
}

// Fingerprint identifies a recovery input. Anchor order does not matter.
func Fingerprint(text string, anchors []anchor.Anchor) string {
	sorted := make([]anchor.Anchor, len(anchors))
	copy(sorted, anchors)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	encoded, _ := json.Marshal(sorted)
	textSum := sha256.Sum256([]byte(text))
	anchorSum := sha256.Sum256(encoded)
	return hex.EncodeToString(textSum[:8]) + hex.EncodeToString(anchorSum[:8])
}

func (c *RedisCache) key(documentID, fingerprint string) string {
	return c.prefix + documentID + ":" + fingerprint
}

// Get returns the cached batch for a document and fingerprint, or ErrMiss.
func (c *RedisCache) Get(ctx context.Context, documentID, fingerprint string) (map[string]anchor.RecoveryResult, error) {
	raw, err := c.client.Get(ctx, c.key(documentID, fingerprint)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get recovery batch: %w", err)
	}

	var data entry
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("unmarshal recovery batch: %w", err)
	}
	return data.Results, nil
}

// Put stores a batch for the configured TTL.
func (c *RedisCache) Put(ctx context.Context, documentID, fingerprint string, results map[string]anchor.RecoveryResult) error {
	payload, err := json.Marshal(entry{Results: results, CreatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal recovery batch: %w", err)
	}
	if err := c.client.Set(ctx, c.key(documentID, fingerprint), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("put recovery batch: %w", err)
	}
	return nil
}

// Invalidate drops every batch cached for a document.
func (c *RedisCache) Invalidate(ctx context.Context, documentID string) error {
	iter := c.client.Scan(ctx, 0, c.key(documentID, "*"), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan recovery batches: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate recovery batches: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
