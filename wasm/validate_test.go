package wasm_test

import (
	stderrors "errors"
	"testing"

	"github.com/wippyai/wasm-engine/errors"
	"github.com/wippyai/wasm-engine/wasm"
)

func expectDecodeKind(t *testing.T, data []byte, kind errors.Kind) {
	t.Helper()
	_, err := wasm.ParseModule(data)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseDecode, Kind: kind}) {
		t.Errorf("expected decode %s, got %v", kind, err)
	}
}

func TestValidateMemoryMinTooLarge(t *testing.T) {
	// A hostile min (here the full u32 range) must be rejected at
	// decode time, long before anything allocates.
	m := &wasm.Module{
		Memories: []wasm.Limits{{Min: 0xFFFFFFFF}},
	}
	expectDecodeKind(t, m.Encode(), errors.KindOutOfBounds)

	m = &wasm.Module{
		Memories: []wasm.Limits{{Min: wasm.MemoryMaxPages + 1}},
	}
	expectDecodeKind(t, m.Encode(), errors.KindOutOfBounds)
}

func TestValidateMemoryMaxTooLarge(t *testing.T) {
	m := &wasm.Module{
		Memories: []wasm.Limits{{Min: 1, Max: wasm.MemoryMaxPages + 1, HasMax: true}},
	}
	expectDecodeKind(t, m.Encode(), errors.KindOutOfBounds)
}

func TestValidateMemoryMaxBelowMin(t *testing.T) {
	m := &wasm.Module{
		Memories: []wasm.Limits{{Min: 4, Max: 2, HasMax: true}},
	}
	expectDecodeKind(t, m.Encode(), errors.KindInvalidData)
}

func TestValidateMemoryAtCap(t *testing.T) {
	// Exactly the cap is still valid.
	m := &wasm.Module{
		Memories: []wasm.Limits{{Min: 1, Max: wasm.MemoryMaxPages, HasMax: true}},
	}
	mustParse(t, m.Encode())
}

func TestValidateImportedMemoryLimits(t *testing.T) {
	m := &wasm.Module{
		Imports: []wasm.Import{
			{Module: "env", Field: "mem", Kind: wasm.KindMemory, Memory: wasm.Limits{Min: 0xFFFF0000}},
		},
	}
	expectDecodeKind(t, m.Encode(), errors.KindOutOfBounds)
}

func TestValidateExportIndexBounds(t *testing.T) {
	tests := []struct {
		name string
		mod  *wasm.Module
	}{
		{
			"function",
			&wasm.Module{
				Types:   []wasm.FuncType{{}},
				Funcs:   []uint32{0},
				Code:    []wasm.FuncBody{{Code: []byte{0x00, 0x0B}}},
				Exports: []wasm.Export{{Name: "f", Kind: wasm.KindFunc, Index: 1}},
			},
		},
		{
			"table",
			&wasm.Module{
				Tables:  []wasm.TableType{{Elem: wasm.ValFuncRef, Limits: wasm.Limits{Min: 1}}},
				Exports: []wasm.Export{{Name: "t", Kind: wasm.KindTable, Index: 1}},
			},
		},
		{
			"memory",
			&wasm.Module{
				Memories: []wasm.Limits{{Min: 1}},
				Exports:  []wasm.Export{{Name: "m", Kind: wasm.KindMemory, Index: 1}},
			},
		},
		{
			"global",
			&wasm.Module{
				Globals: []wasm.GlobalType{{Type: wasm.ValI32}},
				Exports: []wasm.Export{{Name: "g", Kind: wasm.KindGlobal, Index: 1}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectDecodeKind(t, tt.mod.Encode(), errors.KindOutOfBounds)
		})
	}
}

func TestValidateExportCountsImports(t *testing.T) {
	// An imported function widens the function index space.
	m := &wasm.Module{
		Types: []wasm.FuncType{{}},
		Imports: []wasm.Import{
			{Module: "env", Field: "f", Kind: wasm.KindFunc, TypeIndex: 0},
		},
		Exports: []wasm.Export{{Name: "f", Kind: wasm.KindFunc, Index: 0}},
	}
	mustParse(t, m.Encode())
}

func TestValidateImportTypeIndex(t *testing.T) {
	m := &wasm.Module{
		Imports: []wasm.Import{
			{Module: "env", Field: "f", Kind: wasm.KindFunc, TypeIndex: 3},
		},
	}
	expectDecodeKind(t, m.Encode(), errors.KindOutOfBounds)
}

func TestValidateStartIndexBounds(t *testing.T) {
	start := uint32(5)
	m := &wasm.Module{
		Types: []wasm.FuncType{{}},
		Funcs: []uint32{0},
		Code:  []wasm.FuncBody{{Code: []byte{0x00, 0x0B}}},
		Start: &start,
	}
	expectDecodeKind(t, m.Encode(), errors.KindOutOfBounds)
}

func TestValidateStartSignature(t *testing.T) {
	// The start function must take no parameters and return nothing.
	start := uint32(0)
	m := &wasm.Module{
		Types: []wasm.FuncType{{Params: []wasm.ValType{wasm.ValI32}}},
		Funcs: []uint32{0},
		Code:  []wasm.FuncBody{{Code: []byte{0x00, 0x0B}}},
		Start: &start,
	}
	expectDecodeKind(t, m.Encode(), errors.KindTypeMismatch)

	ret := &wasm.Module{
		Types: []wasm.FuncType{{Results: []wasm.ValType{wasm.ValI32}}},
		Funcs: []uint32{0},
		Code:  []wasm.FuncBody{{Code: []byte{0x00, 0x41, 0x00, 0x0B}}},
		Start: &start,
	}
	expectDecodeKind(t, ret.Encode(), errors.KindTypeMismatch)
}

func TestValidateImportedStartSignature(t *testing.T) {
	start := uint32(0)
	m := &wasm.Module{
		Types: []wasm.FuncType{{Params: []wasm.ValType{wasm.ValI32}}},
		Imports: []wasm.Import{
			{Module: "env", Field: "boot", Kind: wasm.KindFunc, TypeIndex: 0},
		},
		Start: &start,
	}
	expectDecodeKind(t, m.Encode(), errors.KindTypeMismatch)
}
