package gojinn

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

const (
	refillStreamName = "GOJINN_CACHE_REFILL"
	kvBucketName     = "GOJINN_CACHE"
)

// JetStreamCacheStore is the zero-external-dependency CacheStore backend,
// adapted from the teacher's broker.go (embedded NATS + JetStream KV
// bucket) and jobs.go (durable async-job publish). Used when no redisUrl
// is configured, in the teacher's own single-binary spirit.
type JetStreamCacheStore struct {
	natsServer *server.Server
	nc         *nats.Conn
	js         nats.JetStreamContext
	kv         nats.KeyValue

	ttl     time.Duration
	ttr     time.Duration
	timeout time.Duration
	logger  *zap.Logger
	metrics *gatewayMetrics

	dirtyMu sync.Mutex
	dirty   map[string]bool

	dataDir string
}

// JetStreamCacheStoreConfig mirrors RedisCacheStoreConfig plus the embedded
// broker's own tunables (grounded on broker.go's Gojinn struct fields).
type JetStreamCacheStoreConfig struct {
	DataDir    string
	Port       int
	ServerName string

	TTL     time.Duration
	TTR     time.Duration
	Timeout time.Duration
}


// NewJetStreamCacheStore starts an embedded NATS JetStream server (adapted
// from broker.go's startEmbeddedNATS) and opens its KV bucket for cache
// storage.
func NewJetStreamCacheStore(cfg JetStreamCacheStoreConfig, logger *zap.Logger, metrics *gatewayMetrics) (*JetStreamCacheStore, error) {
	if cfg.TTL == 0 {
		cfg.TTL = 30 * 24 * time.Hour
	}
	if cfg.TTR == 0 {
		cfg.TTR = 7200 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 1000 * time.Millisecond
	}

	storeDir := filepath.Join(cfg.DataDir, "nats_store")
	opts := &server.Options{
		ServerName:         cfg.ServerName,
		Port:               cfg.Port,
		NoSigs:             true,
		JetStream:          true,
		StoreDir:           storeDir,
		JetStreamMaxStore:  1 * 1024 * 1024 * 1024,
		JetStreamMaxMemory: 64 * 1024 * 1024,
	}
	if opts.ServerName == "" {
		opts.ServerName = fmt.Sprintf("gojinn-cache-%d", cfg.Port)
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded NATS server: %w", err)
	}
	ns.ConfigureLogger()
	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		return nil, fmt.Errorf("embedded NATS server failed to start")
	}

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to embedded NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to init JetStream context: %w", err)
	}

	kv, err := ensureKVBucket(js, cfg.TTL)
	if err != nil {
		return nil, err
	}

	if _, err := js.AddStream(&nats.StreamConfig{
		Name:      refillStreamName,
		Subjects:  []string{"gojinn.cache.refill.>"},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
	}); err != nil {
		if _, alreadyErr := js.StreamInfo(refillStreamName); alreadyErr != nil {
			logger.Warn("refill audit stream unavailable", zap.Error(err))
		}
	}

	return &JetStreamCacheStore{
		natsServer: ns,
		nc:         nc,
		js:         js,
		kv:         kv,
		ttl:        cfg.TTL,
		ttr:        cfg.TTR,
		timeout:    cfg.Timeout,
		logger:     logger,
		metrics:    metrics,
		dirty:      map[string]bool{},
		dataDir:    cfg.DataDir,
	}, nil
}

func ensureKVBucket(js nats.JetStreamContext, ttl time.Duration) (nats.KeyValue, error) {
	kv, err := js.KeyValue(kvBucketName)
	if err == nil {
		return kv, nil
	}
	return js.CreateKeyValue(&nats.KeyValueConfig{
		Bucket:      kvBucketName,
		Description: "Gojinn gateway cache store",
		History:     1,
		TTL:         ttl,
	})
}

// natsSafeKey replaces characters the NATS KV key grammar disallows.
func natsSafeKey(key string) string {
	out := make([]rune, 0, len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

func (s *JetStreamCacheStore) Get(ctx context.Context, spec KeySpec, fill FillFunc) (interface{}, error) {
	key := natsSafeKey(cacheKey(spec))

	entry, err := s.kv.Get(key)
	if err == nats.ErrKeyNotFound {
		s.metrics.recordCacheResult(spec.Lambda, "miss")
		return s.fillAndStore(ctx, key, fill)
	}
	if err != nil {
		return nil, Internal("cache store read failed", err)
	}

	var value interface{}
	if err := json.Unmarshal(entry.Value(), &value); err != nil {
		s.metrics.recordCacheResult(spec.Lambda, "miss")
		return s.fillAndStore(ctx, key, fill)
	}

	if s.isDirty(key) || time.Since(entry.Created()) > s.ttr {
		s.metrics.recordCacheResult(spec.Lambda, "stale")
		go s.refillAsync(key, spec, fill)
	} else {
		s.metrics.recordCacheResult(spec.Lambda, "hit")
	}
	return value, nil
}

func (s *JetStreamCacheStore) isDirty(key string) bool {
	s.dirtyMu.Lock()
	defer s.dirtyMu.Unlock()
	if s.dirty[key] {
		delete(s.dirty, key)
		return true
	}
	return false
}

func (s *JetStreamCacheStore) fillAndStore(ctx context.Context, key string, fill FillFunc) (interface{}, error) {
	fillCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	value, err := fill(fillCtx)
	if err != nil {
		return nil, err
	}
	s.store(key, value)
	return value, nil
}

func (s *JetStreamCacheStore) refillAsync(key string, spec KeySpec, fill FillFunc) {
	tracer := otel.Tracer("gojinn-cache")
	ctx, span := tracer.Start(context.Background(), "cache_refill")
	defer span.End()

	s.publishRefillAudit(ctx, spec)

	fillCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	value, err := fill(fillCtx)
	if err != nil {
		s.logger.Warn("async cache refill failed", zap.String("key", key), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	s.store(key, value)
}

func (s *JetStreamCacheStore) publishRefillAudit(ctx context.Context, spec KeySpec) {
	subject := fmt.Sprintf("gojinn.cache.refill.%s", url.PathEscape(spec.Namespace))
	msg := nats.NewMsg(subject)
	msg.Data, _ = json.Marshal(spec)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))
	if _, err := s.js.PublishMsg(msg); err != nil {
		s.logger.Debug("refill audit publish skipped", zap.Error(err))
	}
}

func (s *JetStreamCacheStore) store(key string, value interface{}) {
	valueJSON, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("cache value not serializable", zap.String("key", key), zap.Error(err))
		return
	}
	if _, err := s.kv.Put(key, valueJSON); err != nil {
		s.logger.Warn("cache store write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *JetStreamCacheStore) MarkToRefresh(ctx context.Context, namespace string, keys []string) (interface{}, error) {
	s.dirtyMu.Lock()
	defer s.dirtyMu.Unlock()
	for _, k := range keys {
		key := natsSafeKey(cacheKey(KeySpec{Namespace: namespace, Key: k}))
		s.dirty[key] = true
	}
	return len(keys), nil
}

func (s *JetStreamCacheStore) Unset(ctx context.Context, namespace string, keys []string) (interface{}, error) {
	n := 0
	for _, k := range keys {
		key := natsSafeKey(cacheKey(KeySpec{Namespace: namespace, Key: k}))
		if err := s.kv.Delete(key); err != nil && err != nats.ErrKeyNotFound {
			return nil, Internal("cache unset failed", err)
		}
		n++
	}
	return n, nil
}

// Close shuts down the embedded broker (adapted from gojinn.go's Cleanup).
func (s *JetStreamCacheStore) Close() {
	if s.nc != nil {
		s.nc.Close()
	}
	if s.natsServer != nil {
		s.natsServer.Shutdown()
	}
}
