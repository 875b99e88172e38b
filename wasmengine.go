// Package wasmengine embeds a WebAssembly interpreter: decode a binary
// module once, instantiate it many times, call exported functions with
// typed values.
//
// This root package is a thin convenience surface; the pieces live in
// wasm (binary format), engine (lowerer + interpreter) and runtime
// (host API).
package wasmengine

import (
	"github.com/wippyai/wasm-engine/runtime"
)

// Value is the 16-byte typed cell passed to and returned from calls.
type Value = runtime.Value

// Typed cell constructors.
var (
	I32 = runtime.I32
	I64 = runtime.I64
	F32 = runtime.F32
	F64 = runtime.F64
)

// NewSource decodes a binary WebAssembly module into an immutable,
// shareable source.
func NewSource(data []byte) (*runtime.Source, error) {
	return runtime.NewSource(data)
}

// Instantiate creates a fresh instance of a source with an empty
// import table.
func Instantiate(src *runtime.Source) *runtime.Instance {
	return src.Instantiate(runtime.NewImportTable())
}
