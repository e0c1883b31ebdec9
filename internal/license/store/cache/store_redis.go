package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"licensewatch/internal/license/models"
	"licensewatch/pkg/platform/sentinel"
)

const (
	cacheKeyPrefix = "licensewatch:cache:"

	// DefaultRedisRetention keeps entries well past the freshness window so a
	// stale answer is still around to be overwritten rather than silently dropped.
	DefaultRedisRetention = 7 * 24 * time.Hour
)

type redisEntry struct {
	Status     string         `json:"status"`
	ObservedAt time.Time      `json:"observed_at"`
	Raw        map[string]any `json:"raw,omitempty"`
}

// RedisStore keeps cache entries in Redis, one key per license id.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRetention overrides how long keys live in Redis.
func WithRetention(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		if d > 0 {
			s.retention = d
		}
	}
}

func NewRedis(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, retention: DefaultRedisRetention}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisStore) Find(ctx context.Context, licenseID string) (*models.CacheEntry, error) {
	val, err := s.client.Get(ctx, cacheKeyPrefix+licenseID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find cache entry: %w", err)
	}
	var stored redisEntry
	if err := json.Unmarshal(val, &stored); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return &models.CacheEntry{
		LicenseID:  licenseID,
		Status:     models.Status(stored.Status),
		ObservedAt: stored.ObservedAt,
		Raw:        stored.Raw,
	}, nil
}

func (s *RedisStore) Upsert(ctx context.Context, entry models.CacheEntry) error {
	payload, err := json.Marshal(redisEntry{
		Status:     string(entry.Status),
		ObservedAt: entry.ObservedAt,
		Raw:        entry.Raw,
	})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := s.client.Set(ctx, cacheKeyPrefix+entry.LicenseID, payload, s.retention).Err(); err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}
