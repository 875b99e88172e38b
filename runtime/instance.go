package runtime

import (
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-engine/engine"
	"github.com/wippyai/wasm-engine/errors"
	"github.com/wippyai/wasm-engine/wasm"
)

// Instance is a running realization of a Source, with its own mutable
// state: evaluation stack, locals stack, linear memory, call stack and
// trap flag. Instances are NOT safe for concurrent use; each belongs
// to a single goroutine.
type Instance struct {
	source  *Source
	imports *ImportTable
	eng     *engine.Instance
}

// Call invokes an exported function by name.
//
// Host-side rejections (unknown export, non-function export, wrong
// argument arity or types) return a PhaseHost error and never set the
// trap flag. Lowering failures surface here on the first call that
// touches the offending function, as PhaseCompile errors, and repeat
// deterministically.
//
// A trap during execution returns (Value{}, false, nil): no result,
// no Go error. The fault is observable via IsTrapped, and every
// subsequent Call returns no result until Restart. When the function
// completes and declares a result, ok is true.
func (i *Instance) Call(name string, args ...Value) (result Value, ok bool, err error) {
	exp, found := i.source.mod.ExportNamed(name)
	if !found {
		return Value{}, false, errors.NotFound(errors.PhaseHost, "export", name)
	}
	if exp.Kind != wasm.KindFunc {
		return Value{}, false, errors.New(errors.PhaseHost, errors.KindTypeMismatch).
			Detail("export %q is a %s, not a function", name, wasm.ExportKindName(exp.Kind)).
			Build()
	}

	numImported := i.source.mod.NumImportedFuncs()
	if exp.Index < numImported {
		return Value{}, false, errors.Unsupported(errors.PhaseHost, "export re-exports an imported function")
	}
	fnIndex := exp.Index - numImported

	sig, sigErr := i.source.mod.FuncSignature(fnIndex)
	if sigErr != nil {
		return Value{}, false, errors.New(errors.PhaseHost, errors.KindOutOfBounds).Cause(sigErr).Build()
	}

	if len(args) != len(sig.Params) {
		return Value{}, false, errors.ArityMismatch(name, len(sig.Params), len(args))
	}
	for n, arg := range args {
		if arg.Type() != sig.Params[n] {
			return Value{}, false, errors.TypeMismatch(errors.PhaseHost, name,
				sig.Params[n].String(), arg.Type().String())
		}
	}

	// A trapped instance answers every call with no result until the
	// host restarts it.
	if i.eng.Trapped() {
		return Value{}, false, nil
	}

	// Parameters go onto the evaluation stack in declared order; the
	// callee's prologue moves them into its locals frame.
	for n, arg := range args {
		i.eng.PushArg(arg.U64(), sig.Params[n].Size())
	}

	if callErr := i.eng.Call(fnIndex); callErr != nil {
		var e *errors.Error
		if stderrors.As(callErr, &e) && e.Kind == errors.KindTrap {
			logger().Debug("call trapped", zap.String("export", name), zap.String("reason", e.Detail))
			return Value{}, false, nil
		}
		return Value{}, false, callErr
	}

	if resultType, hasResult := sig.Result(); hasResult {
		bits := i.eng.PopResult(resultType.Size())
		return raw(resultType, bits), true, nil
	}
	return Value{}, false, nil
}

// GetGlobal reads an exported global by name. Globals are not
// executable state in this engine; the reference behavior is
// not-found for every name.
func (i *Instance) GetGlobal(name string) (Value, error) {
	return Value{}, errors.NotFound(errors.PhaseHost, "global", name)
}

// SetGlobal writes an exported global by name. See GetGlobal.
func (i *Instance) SetGlobal(name string, _ Value) error {
	return errors.NotFound(errors.PhaseHost, "global", name)
}

// MemoryPointer exposes linear memory from the given address onward
// for host interop. The slice aliases instance state and is
// invalidated by memory growth.
func (i *Instance) MemoryPointer(addr uint32) ([]byte, error) {
	b, ok := i.eng.Memory().Bytes(addr)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseHost, []string{"memory"}, int(addr), int(i.eng.Memory().Size()))
	}
	return b, nil
}

// MemorySize returns the linear memory length in bytes.
func (i *Instance) MemorySize() uint32 {
	return i.eng.Memory().Size()
}

// IsTrapped reports whether the instance is in the trapped state.
func (i *Instance) IsTrapped() bool {
	return i.eng.Trapped()
}

// Restart clears the trap flag. Memory contents are preserved; only
// the stacks and the flag reset.
func (i *Instance) Restart() {
	i.eng.Restart()
}

// Close releases the instance's state. The instance must not be used
// afterwards; the backing Source is shared and stays alive.
func (i *Instance) Close() error {
	i.eng.Restart()
	return nil
}
