package engine

import (
	"bytes"
	"testing"

	"github.com/wippyai/wasm-engine/wasm"
)

// testProgram implements Program over a module literal, memoizing
// compiles the way a real source does.
type testProgram struct {
	mod   *wasm.Module
	cache map[uint32]*CompiledFunc
}

func newTestProgram(mod *wasm.Module) *testProgram {
	return &testProgram{mod: mod, cache: make(map[uint32]*CompiledFunc)}
}

func (p *testProgram) Module() *wasm.Module {
	return p.mod
}

func (p *testProgram) CompiledFunc(fnIndex uint32) (*CompiledFunc, error) {
	if fn, ok := p.cache[fnIndex]; ok {
		return fn, nil
	}
	fn, err := Compile(p.mod, fnIndex)
	if err != nil {
		return nil, err
	}
	p.cache[fnIndex] = fn
	return fn, nil
}

// bodyBytes assembles a raw function body: a compressed local run per
// declared type, followed by the instruction bytes.
func bodyBytes(locals []wasm.ValType, code ...byte) []byte {
	var buf bytes.Buffer

	type run struct {
		t wasm.ValType
		n uint32
	}
	var runs []run
	for _, t := range locals {
		if len(runs) > 0 && runs[len(runs)-1].t == t {
			runs[len(runs)-1].n++
		} else {
			runs = append(runs, run{t: t, n: 1})
		}
	}
	wasm.WriteLEB128u(&buf, uint32(len(runs)))
	for _, r := range runs {
		wasm.WriteLEB128u(&buf, r.n)
		buf.WriteByte(byte(r.t))
	}
	buf.Write(code)
	return buf.Bytes()
}

// singleFuncModule builds a one-function module around a body.
func singleFuncModule(sig wasm.FuncType, body []byte) *wasm.Module {
	return &wasm.Module{
		Types: []wasm.FuncType{sig},
		Funcs: []uint32{0},
		Code:  []wasm.FuncBody{{TypeIndex: 0, Code: body}},
	}
}

// leb wraps the signed encoder for terse instruction assembly.
func leb(v int32) []byte {
	return wasm.EncodeLEB128s(v)
}

func lebU(v uint32) []byte {
	return wasm.EncodeLEB128u(v)
}

// ins concatenates instruction fragments.
func ins(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func b(bs ...byte) []byte {
	return bs
}

// runFunc compiles and executes fn 0 of mod with the given raw arguments
// and returns (resultBits, trapped).
func runFunc(t *testing.T, mod *wasm.Module, args []uint64, argSizes []uint32, resultSize uint32) (uint64, bool) {
	t.Helper()
	prog := newTestProgram(mod)
	inst := NewInstance(prog)
	for i, a := range args {
		inst.PushArg(a, argSizes[i])
	}
	if err := inst.Call(0); err != nil {
		if inst.Trapped() {
			return 0, true
		}
		t.Fatalf("Call: %v", err)
	}
	if inst.Trapped() {
		return 0, true
	}
	if resultSize == 0 {
		return 0, false
	}
	return inst.PopResult(resultSize), false
}

var (
	sigI32I32toI32 = wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValI32, wasm.ValI32},
		Results: []wasm.ValType{wasm.ValI32},
	}
	sigI64I64toI64 = wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValI64, wasm.ValI64},
		Results: []wasm.ValType{wasm.ValI64},
	}
	sigVoid = wasm.FuncType{}
)

// i32BinOp builds the canonical two-argument body around one opcode.
func i32BinOp(op byte) *wasm.Module {
	return singleFuncModule(sigI32I32toI32, bodyBytes(nil,
		wasm.OpLocalGet, 0, wasm.OpLocalGet, 1, op, wasm.OpEnd))
}

func i64BinOp(op byte) *wasm.Module {
	return singleFuncModule(sigI64I64toI64, bodyBytes(nil,
		wasm.OpLocalGet, 0, wasm.OpLocalGet, 1, op, wasm.OpEnd))
}

// callI32Bin runs an i32 binary-op module.
func callI32Bin(t *testing.T, op byte, a, c uint32) (uint32, bool) {
	t.Helper()
	bits, trapped := runFunc(t, i32BinOp(op), []uint64{uint64(a), uint64(c)}, []uint32{4, 4}, 4)
	return uint32(bits), trapped
}

func callI64Bin(t *testing.T, op byte, a, c uint64) (uint64, bool) {
	t.Helper()
	return runFunc(t, i64BinOp(op), []uint64{a, c}, []uint32{8, 8}, 8)
}
