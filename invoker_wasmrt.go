package gojinn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"
)

// WasmInvoker is a local-development Invoker backend, adapted from the
// teacher's worker.go runSyncJob: it pipes the JSON invoke payload into a
// wazero-instantiated module's stdin and reads the JSON response envelope
// back from stdout. Intended for the bundled example functions
// (examples/functions/echo, examples/functions/http-echo), not production
// traffic — LambdaInvoker is the production backend.
//
// The bundled example functions are plain Go programs built with
// GOOS=wasip1, so the runtime needs the wasi_snapshot_preview1 host module
// registered before any module referencing it can be instantiated.
type WasmInvoker struct {
	runtime wazero.Runtime
	logger  *zap.Logger

	mu      sync.Mutex
	modules map[string][]byte // lambda name -> compiled wasm bytes
}

func NewWasmInvoker(logger *zap.Logger) *WasmInvoker {
	ctx := context.Background()
	runtime := wazero.NewRuntime(ctx)
	wasi_snapshot_preview1.MustInstantiate(ctx, runtime)

	return &WasmInvoker{
		runtime: runtime,
		logger:  logger,
		modules: map[string][]byte{},
	}
}

// RegisterFunction loads a wasm binary from disk under the given lambda
// name, the mapping LambdaSpec.Name resolves against.
func (w *WasmInvoker) RegisterFunction(name, wasmPath string) error {
	wasmBytes, err := os.ReadFile(wasmPath)
	if err != nil {
		return fmt.Errorf("failed to read wasm file for %q: %w", name, err)
	}
	w.mu.Lock()
	w.modules[name] = wasmBytes
	w.mu.Unlock()
	return nil
}

func (w *WasmInvoker) Invoke(ctx context.Context, name string, payload interface{}, version string) (interface{}, error) {
	req, err := buildInvokerRequest(name, payload, version)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	wasmBytes, ok := w.modules[req.FunctionName]
	w.mu.Unlock()
	if !ok {
		return nil, Internal(fmt.Sprintf("no wasm function registered for %q", req.FunctionName), nil)
	}

	compiled, err := w.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, Internal("failed to compile wasm module", err)
	}
	defer compiled.Close(ctx)

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	// Each invocation gets a unique module instance name so concurrent
	// requests against the same lambda don't collide in the runtime's
	// module namespace (spec.md §5: "no request blocks another").
	modConfig := wazero.NewModuleConfig().
		WithName(req.FunctionName + "-" + uuid.New().String()).
		WithStdout(stdout).
		WithStderr(stderr).
		WithStdin(bytes.NewReader(req.Payload)).
		WithSysWalltime().
		WithSysNanotime()

	mod, err := w.runtime.InstantiateModule(ctx, compiled, modConfig)
	if err != nil {
		return nil, Internal(fmt.Sprintf("wasm execution failed: %v | stderr: %s", err, stderr.String()), err)
	}
	defer mod.Close(ctx)

	var result interface{}
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return nil, Internal("wasm function returned non-JSON output", err)
	}
	return result, nil
}

func (w *WasmInvoker) Close(ctx context.Context) error {
	return w.runtime.Close(ctx)
}
