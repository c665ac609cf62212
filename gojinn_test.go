package gojinn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/caddyserver/caddy/v2"
	"github.com/caddyserver/caddy/v2/caddyconfig/caddyfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCaddyContext() caddy.Context {
	ctx, _ := caddy.NewContext(caddy.Context{Context: context.Background()})
	return ctx
}

func TestProvision_FullLifecycle(t *testing.T) {
	g := &Gojinn{
		Routes: []RouteConfig{
			{Pattern: "/hello", Lambda: LambdaConfig{Name: "hello-fn"}},
		},
		DataDir:  t.TempDir(),
		NatsPort: -1, // ephemeral port, avoids clashing with a real broker
	}

	err := g.Provision(newTestCaddyContext())
	require.NoError(t, err)

	assert.NotNil(t, g.metrics, "Provision should initialize the gateway's prometheus collectors")
	assert.NotNil(t, g.router, "Provision should compile the route table into a Router")
	assert.NotNil(t, g.cacheStore, "Provision should default to the embedded JetStream cache store")
	assert.IsType(t, &JetStreamCacheStore{}, g.cacheStore)
	assert.IsType(t, &WasmInvoker{}, g.invoker, "Provision should default to the wasm invoker backend")
	assert.NotNil(t, g.pipeline)

	require.NoError(t, g.Cleanup())
}

func TestProvision_LambdaBackendSelected(t *testing.T) {
	g := &Gojinn{
		Routes:         []RouteConfig{{Pattern: "/f", Lambda: LambdaConfig{Name: "fn"}}},
		DataDir:        t.TempDir(),
		NatsPort:       -1,
		InvokerBackend: "lambda",
		AWSRegion:      "us-east-1",
	}

	err := g.Provision(newTestCaddyContext())
	require.NoError(t, err)
	assert.IsType(t, &LambdaInvoker{}, g.invoker)

	require.NoError(t, g.Cleanup())
}

func TestProvision_RejectsRouteWithoutLambdaName(t *testing.T) {
	g := &Gojinn{
		Routes: []RouteConfig{{Pattern: "/broken"}},
	}

	err := g.Provision(newTestCaddyContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing lambda name")
}

func TestServeHTTP_DelegatesToPipeline(t *testing.T) {
	g := &Gojinn{
		Routes: []RouteConfig{
			{Pattern: "/hello", Lambda: LambdaConfig{Name: "hello-fn"}},
		},
		DataDir:  t.TempDir(),
		NatsPort: -1,
	}
	require.NoError(t, g.Provision(newTestCaddyContext()))
	defer g.Cleanup()

	req := httptest.NewRequest(http.MethodOptions, "/hello", nil)
	rec := httptest.NewRecorder()

	err := g.ServeHTTP(rec, req, nil)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
}

func TestUnmarshalCaddyfile_ScalarDirectives(t *testing.T) {
	input := `gojinn {
		redis_url   localhost:6379
		cache_prefix gw:
		data_dir    ./data
		server_name test-node
		invoker_backend lambda
		aws_region  us-west-2
		nats_port   4300
	}`

	dispenser := caddyfile.NewTestDispenser(input)
	g := new(Gojinn)
	require.NoError(t, g.UnmarshalCaddyfile(dispenser))

	assert.Equal(t, "localhost:6379", g.RedisURL)
	assert.Equal(t, "gw:", g.CachePrefix)
	assert.Equal(t, "./data", g.DataDir)
	assert.Equal(t, "test-node", g.ServerName)
	assert.Equal(t, "lambda", g.InvokerBackend)
	assert.Equal(t, "us-west-2", g.AWSRegion)
	assert.Equal(t, 4300, g.NatsPort)
}

func TestUnmarshalCaddyfile_UnknownDirectiveErrors(t *testing.T) {
	input := `gojinn {
		bogus_directive value
	}`
	dispenser := caddyfile.NewTestDispenser(input)
	g := new(Gojinn)
	assert.Error(t, g.UnmarshalCaddyfile(dispenser))
}
