package gojinn

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// compileFixtureWasm builds one of the bundled examples/functions fixtures
// for wasip1/wasm, the way the teacher's own gojinn_test.go compiled its
// inline wasm fixtures.
func compileFixtureWasm(t *testing.T, sourceDir, outName string) string {
	t.Helper()
	wasmPath := filepath.Join(t.TempDir(), outName)

	abs, err := filepath.Abs(sourceDir)
	require.NoError(t, err)

	cmd := exec.Command("go", "build", "-o", wasmPath, abs)
	cmd.Env = append(os.Environ(), "GOOS=wasip1", "GOARCH=wasm")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to compile %s: %v\n%s", sourceDir, err, out)
	}
	return wasmPath
}

func TestWasmInvoker_EchoFixture(t *testing.T) {
	wasmPath := compileFixtureWasm(t, "examples/functions/echo", "echo.wasm")

	w := NewWasmInvoker(nil)
	defer w.Close(context.Background())

	require.NoError(t, w.RegisterFunction("echo-fn", wasmPath))

	payload := map[string]interface{}{"method": "GET", "uri": "/x"}
	result, err := w.Invoke(context.Background(), "echo-fn", payload, "")
	require.NoError(t, err)

	env, ok := result.(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, env["body"], "GET /x")
}

func TestWasmInvoker_HTTPEchoFixtureRequiresAuth(t *testing.T) {
	wasmPath := compileFixtureWasm(t, "examples/functions/http-echo", "http-echo.wasm")

	w := NewWasmInvoker(nil)
	defer w.Close(context.Background())

	require.NoError(t, w.RegisterFunction("http-echo-fn", wasmPath))

	payload := InvokePayload{Method: "GET", URI: "/secure"}
	result, err := w.Invoke(context.Background(), "http-echo-fn", payload, "")
	require.NoError(t, err)

	env, ok := result.(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 401, env["statusCode"])
}

func TestWasmInvoker_UnregisteredFunction(t *testing.T) {
	w := NewWasmInvoker(nil)
	defer w.Close(context.Background())

	_, err := w.Invoke(context.Background(), "missing-fn", map[string]interface{}{}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no wasm function registered")
}
