package gojinn

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// GatewayConfig is the env-var/CLI configuration loader spec.md's
// "process-level configuration loader" external collaborator names,
// grounded on hienhoceo-dpsmedia-Cold-Snap's internal/config/config.go
// getenv-with-default pattern.
type GatewayConfig struct {
	Port int

	RedisURL     string
	CachePrefix  string
	CacheTTL     time.Duration
	CacheTTR     time.Duration
	CacheTimeout time.Duration

	DataDir    string
	NatsPort   int
	ServerName string

	AWSRegion string

	LogDebounceInterval time.Duration
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	secs, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return time.Duration(secs) * time.Second, nil
}

// LoadGatewayConfig reads the ambient environment the way Cold-Snap's
// config.Parse does: defaults for everything optional, an error only for
// malformed values (never for absence, since REDIS_URL absent just means
// "use the embedded NATS cache backend").
func LoadGatewayConfig() (*GatewayConfig, error) {
	port, err := getenvInt("PORT", 8080)
	if err != nil {
		return nil, err
	}
	ttl, err := getenvDuration("CACHE_TTL", 30*24*time.Hour)
	if err != nil {
		return nil, err
	}
	ttr, err := getenvDuration("CACHE_TTR", 7200*time.Second)
	if err != nil {
		return nil, err
	}
	timeoutMs, err := getenvInt("CACHE_TIMEOUT", 1000)
	if err != nil {
		return nil, err
	}
	natsPort, err := getenvInt("NATS_PORT", 4222)
	if err != nil {
		return nil, err
	}
	debounceMs, err := getenvInt("LOG_DEBOUNCE_MS", 2000)
	if err != nil {
		return nil, err
	}

	return &GatewayConfig{
		Port:                port,
		RedisURL:            os.Getenv("REDIS_URL"),
		CachePrefix:         getenv("CACHE_PREFIX", ""),
		CacheTTL:            ttl,
		CacheTTR:            ttr,
		CacheTimeout:        time.Duration(timeoutMs) * time.Millisecond,
		DataDir:             getenv("DATA_DIR", "./data"),
		NatsPort:            natsPort,
		ServerName:          getenv("SERVER_NAME", ""),
		AWSRegion:           getenv("AWS_REGION", "us-east-1"),
		LogDebounceInterval: time.Duration(debounceMs) * time.Millisecond,
	}, nil
}
