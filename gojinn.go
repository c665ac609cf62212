package gojinn

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/caddyserver/caddy/v2"
	"github.com/caddyserver/caddy/v2/caddyconfig/caddyfile"
	"github.com/caddyserver/caddy/v2/caddyconfig/httpcaddyfile"
	"github.com/caddyserver/caddy/v2/modules/caddyhttp"
	"go.uber.org/zap"
)

func init() {
	caddy.RegisterModule(&Gojinn{})
	httpcaddyfile.RegisterHandlerDirective("gojinn", parseCaddyfile)
}

// LambdaConfig is the JSON/Caddyfile-decodable counterpart of LambdaSpec:
// plain scalar fields only, since LambdaSpec's StaticOrFunc/func fields
// cannot be unmarshaled directly. Provision converts each entry into a
// LambdaSpec.
type LambdaConfig struct {
	Name         string              `json:"name"`
	Version      string              `json:"version,omitempty"`
	ParamsOnly   bool                `json:"params_only,omitempty"`
	Cache        *CacheConfigJSON    `json:"cache,omitempty"`
	Auth         *AuthConfigJSON     `json:"auth,omitempty"`
	Defaults     *DefaultsConfigJSON `json:"defaults,omitempty"`
	WarmSchedule string              `json:"warm_schedule,omitempty"`
}

// CacheConfigJSON's KeyParam names the request param whose value becomes
// the per-request cache key; an empty value leaves the key unresolved,
// which disables caching for that request per spec.md §4.5.
type CacheConfigJSON struct {
	Enabled  bool   `json:"enabled"`
	KeyParam string `json:"key_param"`
}

// AuthConfigJSON's Secret is read literally; SecretEnv, when set, overrides
// it with an environment variable resolved once at Provision (so secrets
// never need to live in the Caddyfile/JSON config itself).
type AuthConfigJSON struct {
	AllowedFields []string `json:"allowed_fields,omitempty"`
	Secret        string   `json:"secret,omitempty"`
	SecretEnv     string   `json:"secret_env,omitempty"`
	RequiredRoles []string `json:"required_roles,omitempty"`
	LeewaySeconds int64    `json:"leeway_seconds,omitempty"`
	Issuer        string   `json:"issuer,omitempty"`
	Audience      []string `json:"audience,omitempty"`
}

type DefaultsConfigJSON struct {
	RequestParams   map[string]interface{} `json:"request_params,omitempty"`
	ResponseHeaders map[string]string      `json:"response_headers,omitempty"`
	ResponseBase64  *bool                   `json:"response_base64,omitempty"`
}

// RouteConfig is one RouteTable row in decoded config form.
type RouteConfig struct {
	Pattern string       `json:"pattern"`
	Lambda  LambdaConfig `json:"lambda"`
}

// Gojinn is the Caddy HTTP handler module implementing the gateway
// pipeline: every field below is decoded from Caddyfile/JSON config exactly
// the way the teacher's own Gojinn struct was laid out, generalized from
// the teacher's WASM-sandbox-pool config to the gateway's routing/cache/auth
// config.
type Gojinn struct {
	Routes []RouteConfig `json:"routes,omitempty"`

	RedisURL        string `json:"redis_url,omitempty"`
	CachePrefix     string `json:"cache_prefix,omitempty"`
	CacheTTLSeconds int    `json:"cache_ttl_seconds,omitempty"`
	CacheTTRSeconds int    `json:"cache_ttr_seconds,omitempty"`
	CacheTimeoutMs  int    `json:"cache_timeout_ms,omitempty"`

	DataDir    string `json:"data_dir,omitempty"`
	NatsPort   int    `json:"nats_port,omitempty"`
	ServerName string `json:"server_name,omitempty"`

	InvokerBackend string            `json:"invoker_backend,omitempty"` // "wasm" (default) | "lambda"
	AWSRegion      string            `json:"aws_region,omitempty"`
	WasmFunctions  map[string]string `json:"wasm_functions,omitempty"` // lambda name -> .wasm path

	LogDebounceMs int `json:"log_debounce_ms,omitempty"`

	logger  *zap.Logger
	metrics *gatewayMetrics

	router        *Router
	auth          *Authenticator
	cacheStore    CacheStore
	invoker       Invoker
	cachedInvoker *CachedInvoker
	cacheAdmin    *CacheAdmin
	bufferedLogs  *BufferedLogSink
	responder     *Responder
	pipeline      *Pipeline
	warmup        *WarmupScheduler
}

func (*Gojinn) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "http.handlers.gojinn",
		New: func() caddy.Module { return &Gojinn{} },
	}
}

// Provision wires every component of SPEC_FULL.md §2 together: RouteTable →
// Router, a cache backend selected by RedisURL, an invoker backend selected
// by InvokerBackend, a debounced LogSink, and finally the Pipeline.
func (g *Gojinn) Provision(ctx caddy.Context) error {
	g.logger = ctx.Logger()

	envCfg, err := LoadGatewayConfig()
	if err != nil {
		return fmt.Errorf("failed to load gateway environment config: %w", err)
	}
	g.applyEnvDefaults(envCfg)

	metrics, err := setupMetrics(ctx)
	if err != nil {
		return fmt.Errorf("failed to setup metrics: %w", err)
	}
	g.metrics = metrics

	table, err := g.buildRouteTable()
	if err != nil {
		return err
	}
	g.router = NewRouter(table)
	g.auth = NewAuthenticator()

	if err := g.provisionCacheStore(); err != nil {
		return err
	}
	if err := g.provisionInvoker(); err != nil {
		return err
	}

	g.cachedInvoker = NewCachedInvoker(g.cacheStore, g.invoker, g.CachePrefix)
	g.cacheAdmin = NewCacheAdmin(g.cacheStore)

	zapSink := NewZapLogSink(g.logger)
	debounce := time.Duration(g.LogDebounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = envCfg.LogDebounceInterval
	}
	g.bufferedLogs = NewBufferedLogSink(zapSink, debounce)
	g.responder = NewResponder(g.bufferedLogs)

	g.pipeline = NewPipeline(g.router, g.auth, g.cachedInvoker, g.cacheAdmin, g.responder)

	g.warmup = NewWarmupScheduler(g.cachedInvoker, g.logger)
	if err := g.warmup.Schedule(table); err != nil {
		return fmt.Errorf("failed to schedule cache warmup jobs: %w", err)
	}
	g.warmup.Start()

	return nil
}

// applyEnvDefaults fills in Caddyfile/JSON-left-zero fields from the
// environment-variable layer (config.go), per SPEC_FULL.md's two-layer
// configuration model.
func (g *Gojinn) applyEnvDefaults(envCfg *GatewayConfig) {
	if g.RedisURL == "" {
		g.RedisURL = envCfg.RedisURL
	}
	if g.CachePrefix == "" {
		g.CachePrefix = envCfg.CachePrefix
	}
	if g.CacheTTLSeconds == 0 {
		g.CacheTTLSeconds = int(envCfg.CacheTTL / time.Second)
	}
	if g.CacheTTRSeconds == 0 {
		g.CacheTTRSeconds = int(envCfg.CacheTTR / time.Second)
	}
	if g.CacheTimeoutMs == 0 {
		g.CacheTimeoutMs = int(envCfg.CacheTimeout / time.Millisecond)
	}
	if g.DataDir == "" {
		g.DataDir = envCfg.DataDir
	}
	if g.NatsPort == 0 {
		g.NatsPort = envCfg.NatsPort
	}
	if g.ServerName == "" {
		g.ServerName = envCfg.ServerName
	}
	if g.AWSRegion == "" {
		g.AWSRegion = envCfg.AWSRegion
	}
}

func (g *Gojinn) provisionCacheStore() error {
	if g.RedisURL != "" {
		store, err := NewRedisCacheStore(g.RedisURL, RedisCacheStoreConfig{
			TTL:     time.Duration(g.CacheTTLSeconds) * time.Second,
			TTR:     time.Duration(g.CacheTTRSeconds) * time.Second,
			Timeout: time.Duration(g.CacheTimeoutMs) * time.Millisecond,
		}, g.logger, g.metrics)
		if err != nil {
			return fmt.Errorf("failed to provision redis cache store: %w", err)
		}
		g.cacheStore = store
		return nil
	}

	store, err := NewJetStreamCacheStore(JetStreamCacheStoreConfig{
		DataDir:    g.DataDir,
		Port:       g.NatsPort,
		ServerName: g.ServerName,
		TTL:        time.Duration(g.CacheTTLSeconds) * time.Second,
		TTR:        time.Duration(g.CacheTTRSeconds) * time.Second,
		Timeout:    time.Duration(g.CacheTimeoutMs) * time.Millisecond,
	}, g.logger, g.metrics)
	if err != nil {
		return fmt.Errorf("failed to provision embedded cache store: %w", err)
	}
	g.cacheStore = store
	return nil
}

func (g *Gojinn) provisionInvoker() error {
	if g.InvokerBackend == "lambda" {
		invoker, err := NewLambdaInvoker(g.AWSRegion)
		if err != nil {
			return fmt.Errorf("failed to provision lambda invoker: %w", err)
		}
		g.invoker = invoker
		return nil
	}

	wasm := NewWasmInvoker(g.logger)
	for name, path := range g.WasmFunctions {
		if err := wasm.RegisterFunction(name, path); err != nil {
			return fmt.Errorf("failed to register wasm function %q: %w", name, err)
		}
	}
	g.invoker = wasm
	return nil
}

// buildRouteTable converts the decoded config's []RouteConfig into a
// RouteTable, resolving the polymorphic cache/auth fields into the
// StaticOrFunc values CachedInvoker/Authenticator expect.
func (g *Gojinn) buildRouteTable() (RouteTable, error) {
	table := make(RouteTable, 0, len(g.Routes))
	for _, rc := range g.Routes {
		if rc.Lambda.Name == "" {
			return nil, ConfigError(fmt.Sprintf("route %q missing lambda name", rc.Pattern))
		}
		spec := &LambdaSpec{
			Name:         rc.Lambda.Name,
			Version:      rc.Lambda.Version,
			ParamsOnly:   rc.Lambda.ParamsOnly,
			WarmSchedule: rc.Lambda.WarmSchedule,
		}
		if rc.Lambda.Cache != nil {
			keyParam := rc.Lambda.Cache.KeyParam
			spec.Cache = &CacheConfig{
				Enabled: Static(rc.Lambda.Cache.Enabled),
				Key: Dynamic(func(args *RequestArgs) string {
					v, _ := args.Params[keyParam].(string)
					return v
				}),
			}
		}
		if rc.Lambda.Auth != nil {
			a := rc.Lambda.Auth
			secret := a.Secret
			if a.SecretEnv != "" {
				secret = getenv(a.SecretEnv, secret)
			}
			spec.Auth = &AuthConfig{
				AllowedFields: a.AllowedFields,
				Secret:        Static(secret),
				RequiredRoles: a.RequiredRoles,
				Options: VerifyOptions{
					Leeway:   a.LeewaySeconds,
					Issuer:   a.Issuer,
					Audience: a.Audience,
				},
			}
		}
		if rc.Lambda.Defaults != nil {
			d := rc.Lambda.Defaults
			spec.Defaults = ResponseDefaults{
				RequestParams:   Params(d.RequestParams),
				ResponseHeaders: d.ResponseHeaders,
			}
			if d.ResponseBase64 != nil {
				spec.Defaults.WithBase64Default(*d.ResponseBase64)
			}
		}
		table = append(table, RouteEntry{Pattern: rc.Pattern, Spec: spec})
	}
	return table, nil
}

// statusRecorder captures the status code Responder writes, so ServeHTTP
// can label the request-duration metric without double-parsing the request.
type statusRecorder struct {
	w      http.ResponseWriter
	status int
}

func (s *statusRecorder) Header() http.Header         { return s.w.Header() }
func (s *statusRecorder) Write(b []byte) (int, error) { return s.w.Write(b) }
func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.w.WriteHeader(code)
}

// ServeHTTP satisfies caddyhttp.MiddlewareHandler, delegating to Pipeline
// and observing the gateway's Prometheus metrics around the call.
func (g *Gojinn) ServeHTTP(w http.ResponseWriter, r *http.Request, next caddyhttp.Handler) error {
	start := time.Now()

	lambdaName := "unmatched"
	if lambda := g.router.Resolve(NormalizeURI(r.URL.Path)); lambda != nil {
		lambdaName = lambda.Name
	}

	rec := &statusRecorder{w: w, status: 200}
	err := g.pipeline.ServeHTTP(rec, r, next)

	g.metrics.requestDuration.WithLabelValues(lambdaName, strconv.Itoa(rec.status)).Observe(time.Since(start).Seconds())
	if rec.status >= 500 {
		g.metrics.invokeErrors.WithLabelValues(lambdaName).Inc()
	}
	return err
}

// Cleanup shuts down every background resource Provision started, mirroring
// the teacher's own Cleanup (scheduler stop, connection close).
func (g *Gojinn) Cleanup() error {
	if g.warmup != nil {
		g.warmup.Stop()
	}
	if g.bufferedLogs != nil {
		g.bufferedLogs.Close()
	}
	if store, ok := g.cacheStore.(*JetStreamCacheStore); ok {
		store.Close()
	}
	if wasm, ok := g.invoker.(*WasmInvoker); ok {
		return wasm.Close(context.Background())
	}
	return nil
}

// UnmarshalCaddyfile parses a minimal Caddyfile form:
//
//	gojinn {
//	    routes_file ./routes.json
//	    redis_url   localhost:6379
//	    data_dir    ./data
//	    ...
//	}
//
// Route tables are richer than a flat directive list comfortably expresses,
// so routes are always supplied as an external JSON file. The other
// directives are redis_url, cache_prefix, data_dir, server_name,
// invoker_backend, aws_region and nats_port; the remaining Gojinn fields
// (cache TTL/TTR/timeout, wasm_functions, log_debounce_ms) have no Caddyfile
// directive, and any other directive is an error.
func (g *Gojinn) UnmarshalCaddyfile(d *caddyfile.Dispenser) error {
	for d.Next() {
		for d.NextBlock(0) {
			directive := d.Val()
			switch directive {
			case "routes_file":
				var path string
				if !d.NextArg() {
					return d.ArgErr()
				}
				path = d.Val()
				data, err := readRoutesFile(path)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(data, &g.Routes); err != nil {
					return d.Errf("invalid routes file %q: %v", path, err)
				}
			case "redis_url":
				if !d.NextArg() {
					return d.ArgErr()
				}
				g.RedisURL = d.Val()
			case "cache_prefix":
				if !d.NextArg() {
					return d.ArgErr()
				}
				g.CachePrefix = d.Val()
			case "data_dir":
				if !d.NextArg() {
					return d.ArgErr()
				}
				g.DataDir = d.Val()
			case "server_name":
				if !d.NextArg() {
					return d.ArgErr()
				}
				g.ServerName = d.Val()
			case "invoker_backend":
				if !d.NextArg() {
					return d.ArgErr()
				}
				g.InvokerBackend = d.Val()
			case "aws_region":
				if !d.NextArg() {
					return d.ArgErr()
				}
				g.AWSRegion = d.Val()
			case "nats_port":
				if !d.NextArg() {
					return d.ArgErr()
				}
				n, err := strconv.Atoi(d.Val())
				if err != nil {
					return d.Errf("invalid nats_port: %v", err)
				}
				g.NatsPort = n
			default:
				return d.ArgErr()
			}
		}
	}
	return nil
}

func readRoutesFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes file %q: %w", path, err)
	}
	return data, nil
}

func parseCaddyfile(h httpcaddyfile.Helper) (caddyhttp.MiddlewareHandler, error) {
	g := new(Gojinn)
	err := g.UnmarshalCaddyfile(h.Dispenser)
	return g, err
}

var (
	_ caddy.Provisioner           = (*Gojinn)(nil)
	_ caddy.CleanerUpper          = (*Gojinn)(nil)
	_ caddyhttp.MiddlewareHandler = (*Gojinn)(nil)
	_ caddyfile.Unmarshaler       = (*Gojinn)(nil)
)
