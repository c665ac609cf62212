package gojinn

import (
	"fmt"

	"github.com/caddyserver/caddy/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// gatewayMetrics holds the gateway-domain Prometheus collectors, registered
// via Caddy's shared metrics registry exactly as the teacher's metrics.go
// does (same AlreadyRegisteredError recovery dance, since multiple Gojinn
// instances in one Caddy config share one registry).
type gatewayMetrics struct {
	requestDuration *prometheus.HistogramVec
	cacheResults    *prometheus.CounterVec
	invokeErrors    *prometheus.CounterVec
}

func setupMetrics(ctx caddy.Context) (*gatewayMetrics, error) {
	m := &gatewayMetrics{}
	registry := prometheus.DefaultRegisterer

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gojinn_gateway_request_duration_seconds",
		Help:    "Time taken to fully service a gateway request, by lambda name and status",
		Buckets: prometheus.DefBuckets,
	}, []string{"lambda", "status"})
	if err := registry.Register(requestDuration); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			m.requestDuration = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, fmt.Errorf("failed to register request duration metric: %w", err)
		}
	} else {
		m.requestDuration = requestDuration
	}

	cacheResults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gojinn_gateway_cache_results_total",
		Help: "Cache lookups by lambda and result (hit, stale, miss)",
	}, []string{"lambda", "result"})
	if err := registry.Register(cacheResults); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			m.cacheResults = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, fmt.Errorf("failed to register cache results metric: %w", err)
		}
	} else {
		m.cacheResults = cacheResults
	}

	invokeErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gojinn_gateway_invoke_errors_total",
		Help: "Backend invocation errors by lambda name",
	}, []string{"lambda"})
	if err := registry.Register(invokeErrors); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			m.invokeErrors = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, fmt.Errorf("failed to register invoke errors metric: %w", err)
		}
	} else {
		m.invokeErrors = invokeErrors
	}

	return m, nil
}

// recordCacheResult increments the cache-results counter for the given
// lambda/result pair (result is "hit", "stale", or "miss"). m may be nil in
// tests that construct a CacheStore without a metrics registry; recording is
// then a no-op.
func (m *gatewayMetrics) recordCacheResult(lambda, result string) {
	if m == nil || m.cacheResults == nil {
		return
	}
	if lambda == "" {
		lambda = "unknown"
	}
	m.cacheResults.WithLabelValues(lambda, result).Inc()
}
