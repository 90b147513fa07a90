package participant

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/absmach/flock/client"
	"github.com/absmach/flock/wire"
	"github.com/tetratelabs/wazero"
	wazeroapi "github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// WASM guest contract: the module exports alloc(size) -> ptr plus one
// function per operation taking (ptr, len) of a CBOR-encoded instruction
// and returning ptr<<32|len of a CBOR-encoded result in guest memory.
const (
	wasmAllocFn         = "alloc"
	wasmGetParametersFn = "get_parameters"
	wasmFitFn           = "fit"
	wasmEvaluateFn      = "evaluate"
)

var (
	ErrMissingExport = errors.New("missing exported function")
	ErrGuestMemory   = errors.New("guest memory access out of range")
)

var _ client.Client = (*WasmClient)(nil)

// WasmClient runs training and evaluation inside a WASM module, so a
// participant can load its workload from an artifact instead of linking it
// in at build time.
type WasmClient struct {
	mu      sync.Mutex
	runtime wazero.Runtime
	module  wazeroapi.Module
}

func NewWasmClient(ctx context.Context, binary []byte) (*WasmClient, error) {
	r := wazero.NewRuntime(ctx)

	// WASI host functions are needed for TinyGo guests to implement `panic`.
	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	module, err := r.Instantiate(ctx, binary)
	if err != nil {
		_ = r.Close(ctx)

		return nil, errors.Join(errors.New("failed to instantiate Wasm module"), err)
	}

	for _, name := range []string{wasmAllocFn, wasmGetParametersFn, wasmFitFn, wasmEvaluateFn} {
		if module.ExportedFunction(name) == nil {
			_ = r.Close(ctx)

			return nil, fmt.Errorf("%w: %s", ErrMissingExport, name)
		}
	}

	return &WasmClient{runtime: r, module: module}, nil
}

func (w *WasmClient) Close(ctx context.Context) error {
	return w.runtime.Close(ctx)
}

func (w *WasmClient) GetParameters(ctx context.Context, ins wire.GetParametersIns) (wire.GetParametersRes, error) {
	return callGuest[wire.GetParametersIns, wire.GetParametersRes](ctx, w, wasmGetParametersFn, ins)
}

func (w *WasmClient) Fit(ctx context.Context, ins wire.FitIns) (wire.FitRes, error) {
	return callGuest[wire.FitIns, wire.FitRes](ctx, w, wasmFitFn, ins)
}

func (w *WasmClient) Evaluate(ctx context.Context, ins wire.EvaluateIns) (wire.EvaluateRes, error) {
	return callGuest[wire.EvaluateIns, wire.EvaluateRes](ctx, w, wasmEvaluateFn, ins)
}

func callGuest[I, O any](ctx context.Context, w *WasmClient, name string, ins I) (O, error) {
	var zero O

	payload, err := wire.Marshal(ins)
	if err != nil {
		return zero, err
	}

	// Guest memory is shared module state, so calls are serialized.
	w.mu.Lock()
	defer w.mu.Unlock()

	ptr, err := w.writeGuest(ctx, payload)
	if err != nil {
		return zero, err
	}

	results, err := w.module.ExportedFunction(name).Call(ctx, ptr, uint64(len(payload)))
	if err != nil {
		return zero, fmt.Errorf("failed to call %s: %w", name, err)
	}
	if len(results) != 1 {
		return zero, fmt.Errorf("%s returned %d values, want 1", name, len(results))
	}

	outPtr := uint32(results[0] >> 32)
	outLen := uint32(results[0])
	data, ok := w.module.Memory().Read(outPtr, outLen)
	if !ok {
		return zero, fmt.Errorf("%w: %s result at %d+%d", ErrGuestMemory, name, outPtr, outLen)
	}

	var res O
	if err := wire.Unmarshal(data, &res); err != nil {
		return zero, fmt.Errorf("failed to decode %s result: %w", name, err)
	}

	return res, nil
}

func (w *WasmClient) writeGuest(ctx context.Context, payload []byte) (uint64, error) {
	results, err := w.module.ExportedFunction(wasmAllocFn).Call(ctx, uint64(len(payload)))
	if err != nil {
		return 0, fmt.Errorf("failed to allocate guest memory: %w", err)
	}
	if len(results) != 1 {
		return 0, fmt.Errorf("%s returned %d values, want 1", wasmAllocFn, len(results))
	}

	ptr := results[0]
	if !w.module.Memory().Write(uint32(ptr), payload) {
		return 0, fmt.Errorf("%w: write at %d+%d", ErrGuestMemory, ptr, len(payload))
	}

	return ptr, nil
}
