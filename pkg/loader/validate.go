package loader

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
)

// ImageValidator decides whether bytes are a loadable executable.
type ImageValidator interface {
	Validate(ctx context.Context, image []byte) error
}

// WasmValidator accepts images the wazero compiler can compile.
type WasmValidator struct {
	runtime wazero.Runtime
}

// NewWasmValidator creates a validator with its own runtime. memoryLimitPages
// caps declared linear memory; zero leaves wazero's default.
func NewWasmValidator(ctx context.Context, memoryLimitPages uint32) *WasmValidator {
	cfg := wazero.NewRuntimeConfig()
	if memoryLimitPages > 0 {
		cfg = cfg.WithMemoryLimitPages(memoryLimitPages)
	}
	return &WasmValidator{runtime: wazero.NewRuntimeWithConfig(ctx, cfg)}
}

func (v *WasmValidator) Validate(ctx context.Context, image []byte) error {
	compiled, err := v.runtime.CompileModule(ctx, image)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIncompatibleExecutable, err)
	}
	return compiled.Close(ctx)
}

func (v *WasmValidator) Close(ctx context.Context) error {
	return v.runtime.Close(ctx)
}
