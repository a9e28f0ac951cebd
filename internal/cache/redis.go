package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/marba/synapse/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps enrichment records as JSON values. The Redis key expiry is
// ttl plus a retention window, so stale records stay readable for a while.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
	now       Clock
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(redisURL, prefix string, retention time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreWithClient(client, prefix, retention, time.Now), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string, retention time.Duration, now Clock) *RedisStore {
	if now == nil {
		now = time.Now
	}
	return &RedisStore{
		client:    client,
		prefix:    prefix,
		retention: retention,
		now:       now,
	}
}

func (r *RedisStore) key(brandID, section string) string {
	return fmt.Sprintf("%senrichment:%s:%s", r.prefix, brandID, section)
}

func (r *RedisStore) Get(ctx context.Context, brandID, section string) (*models.EnrichmentRecord, error) {
	val, err := r.client.Get(ctx, r.key(brandID, section)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	var rec models.EnrichmentRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode enrichment record: %w", err)
	}
	return &rec, nil
}

func (r *RedisStore) Put(ctx context.Context, brandID, section string, data json.RawMessage, ttl time.Duration) (*models.EnrichmentRecord, error) {
	rec, err := newRecord(brandID, section, data, ttl, r.now())
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode enrichment record: %w", err)
	}

	if err := r.client.Set(ctx, r.key(brandID, section), payload, ttl+r.retention).Err(); err != nil {
		return nil, fmt.Errorf("redis set error: %w", err)
	}
	return rec, nil
}

// Ping checks the connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
