package gojinn

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisEntry is the JSON envelope stored in Redis: the cached value plus
// enough bookkeeping to implement stale-while-revalidate without a native
// TTR primitive.
type redisEntry struct {
	Value    json.RawMessage `json:"value"`
	StoredAt int64           `json:"storedAt"`
}

// RedisCacheStore is the production CacheStore backend used whenever
// spec.md §6's redisUrl is configured, grounded on
// hienhoceo-dpsmedia-Cold-Snap's go-redis/v9 usage (internal/redisrl,
// internal/config — same client, same "optional if unset" dependency
// posture).
type RedisCacheStore struct {
	client  *redis.Client
	ttl     time.Duration
	ttr     time.Duration
	timeout time.Duration
	logger  *zap.Logger
	metrics *gatewayMetrics
}

// RedisCacheStoreConfig mirrors spec.md §6's cache tuning knobs.
type RedisCacheStoreConfig struct {
	TTL     time.Duration // default 30 days
	TTR     time.Duration // default 7200s
	Timeout time.Duration // default 1000ms
}

func NewRedisCacheStore(redisURL string, cfg RedisCacheStoreConfig, logger *zap.Logger, metrics *gatewayMetrics) (*RedisCacheStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redisUrl: %w", err)
	}

	if cfg.TTL == 0 {
		cfg.TTL = 30 * 24 * time.Hour
	}
	if cfg.TTR == 0 {
		cfg.TTR = 7200 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 1000 * time.Millisecond
	}

	return &RedisCacheStore{
		client:  redis.NewClient(opt),
		ttl:     cfg.TTL,
		ttr:     cfg.TTR,
		timeout: cfg.Timeout,
		logger:  logger,
		metrics: metrics,
	}, nil
}

func (s *RedisCacheStore) Get(ctx context.Context, spec KeySpec, fill FillFunc) (interface{}, error) {
	key := cacheKey(spec)

	raw, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		s.metrics.recordCacheResult(spec.Lambda, "miss")
		return s.fillAndStore(ctx, key, fill)
	}
	if err != nil {
		return nil, Internal("cache store read failed", err)
	}

	var entry redisEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		s.metrics.recordCacheResult(spec.Lambda, "miss")
		return s.fillAndStore(ctx, key, fill)
	}

	var value interface{}
	if err := json.Unmarshal(entry.Value, &value); err != nil {
		s.metrics.recordCacheResult(spec.Lambda, "miss")
		return s.fillAndStore(ctx, key, fill)
	}

	if time.Since(time.Unix(entry.StoredAt, 0)) > s.ttr {
		s.metrics.recordCacheResult(spec.Lambda, "stale")
		go s.refillAsync(key, fill)
	} else {
		s.metrics.recordCacheResult(spec.Lambda, "hit")
	}
	return value, nil
}

func (s *RedisCacheStore) fillAndStore(ctx context.Context, key string, fill FillFunc) (interface{}, error) {
	fillCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	value, err := fill(fillCtx)
	if err != nil {
		return nil, err
	}
	s.store(key, value)
	return value, nil
}

func (s *RedisCacheStore) refillAsync(key string, fill FillFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	value, err := fill(ctx)
	if err != nil {
		s.logger.Warn("async cache refill failed", zap.String("key", key), zap.Error(err))
		return
	}
	s.store(key, value)
}

func (s *RedisCacheStore) store(key string, value interface{}) {
	valueJSON, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("cache value not serializable", zap.String("key", key), zap.Error(err))
		return
	}
	entry := redisEntry{Value: valueJSON, StoredAt: time.Now().Unix()}
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := s.client.Set(context.Background(), key, entryJSON, s.ttl).Err(); err != nil {
		s.logger.Warn("cache store write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *RedisCacheStore) MarkToRefresh(ctx context.Context, namespace string, keys []string) (interface{}, error) {
	for _, k := range keys {
		fullKey := cacheKey(KeySpec{Namespace: namespace, Key: k})
		raw, err := s.client.Get(ctx, fullKey).Bytes()
		if err != nil {
			continue
		}
		var entry redisEntry
		if json.Unmarshal(raw, &entry) != nil {
			continue
		}
		entry.StoredAt = 0 // forces the next Get to see it as stale
		entryJSON, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		s.client.Set(ctx, fullKey, entryJSON, s.ttl)
	}
	return len(keys), nil
}

func (s *RedisCacheStore) Unset(ctx context.Context, namespace string, keys []string) (interface{}, error) {
	fullKeys := make([]string, len(keys))
	for i, k := range keys {
		fullKeys[i] = cacheKey(KeySpec{Namespace: namespace, Key: k})
	}
	if len(fullKeys) == 0 {
		return 0, nil
	}
	n, err := s.client.Del(ctx, fullKeys...).Result()
	if err != nil {
		return nil, Internal("cache unset failed", err)
	}
	return n, nil
}
