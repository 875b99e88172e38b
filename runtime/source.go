package runtime

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-engine/engine"
	"github.com/wippyai/wasm-engine/errors"
	"github.com/wippyai/wasm-engine/wasm"
)

// Source is a decoded module that instances execute against. It is
// immutable from the host's perspective; the one internal mutation is
// the lazy, exactly-once replacement of each raw function body by its
// lowered form on first use.
//
// A Source may back any number of instances concurrently. Lowering is
// guarded per function, so concurrent first-touch from several
// instances still observes a single atomically published result.
type Source struct {
	mod   *wasm.Module
	funcs []funcSlot
}

// funcSlot is one function's raw-or-lowered state. The fast path is a
// single atomic load; the mutex only serializes the first touch.
type funcSlot struct {
	compiled atomic.Pointer[engine.CompiledFunc]
	mu       sync.Mutex
	err      error
}

// NewSource decodes a binary module. Decode failures are fatal: no
// partial source is returned, and the same bytes fail the same way on
// every attempt.
func NewSource(data []byte) (*Source, error) {
	mod, err := wasm.ParseModule(data)
	if err != nil {
		return nil, err
	}
	logger().Debug("source created",
		zap.Int("types", len(mod.Types)),
		zap.Int("functions", len(mod.Code)),
		zap.Int("exports", len(mod.Exports)))
	return &Source{
		mod:   mod,
		funcs: make([]funcSlot, len(mod.Code)),
	}, nil
}

// Module exposes the decoded module.
func (s *Source) Module() *wasm.Module {
	return s.mod
}

// StartName returns the export name of the module's start function,
// when the start index is also exported. The engine exposes no
// unnamed-function entry point.
func (s *Source) StartName() (string, bool) {
	return s.mod.StartName()
}

// CompiledFunc returns the lowered body of a defined function, lowering
// it on first touch. The result for a given index never changes:
// success publishes the compiled body once, failure pins the same
// error for every subsequent call.
func (s *Source) CompiledFunc(fnIndex uint32) (*engine.CompiledFunc, error) {
	if fnIndex >= uint32(len(s.funcs)) {
		return nil, errors.OutOfBounds(errors.PhaseCompile, []string{"function"}, int(fnIndex), len(s.funcs))
	}
	slot := &s.funcs[fnIndex]

	if fn := slot.compiled.Load(); fn != nil {
		return fn, nil
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()
	if fn := slot.compiled.Load(); fn != nil {
		return fn, nil
	}
	if slot.err != nil {
		return nil, slot.err
	}

	fn, err := engine.Compile(s.mod, fnIndex)
	if err != nil {
		slot.err = err
		return nil, err
	}
	slot.compiled.Store(fn)
	return fn, nil
}

// Instantiate creates fresh execution state over the source. The
// import table carries host-provided bindings for the module's
// imports; the table itself is a slot interface, the host side of
// import resolution is not the engine's concern.
//
// The source must outlive every instance created from it.
func (s *Source) Instantiate(imports *ImportTable) *Instance {
	return &Instance{
		source:  s,
		imports: imports,
		eng:     engine.NewInstance(s),
	}
}

// Close releases the source. Present for lifecycle symmetry with
// Instance.Close; the decoded tables are garbage collected.
func (s *Source) Close() error {
	return nil
}

// ImportTable holds host-provided functions, globals, tables and
// memories for a module's imports. The engine only threads it through;
// modules whose code reaches an import fail to lower.
type ImportTable struct{}

// NewImportTable creates an empty import table.
func NewImportTable() *ImportTable {
	return &ImportTable{}
}
