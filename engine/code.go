package engine

import (
	"github.com/wippyai/wasm-engine/wasm"
)

// A compiled function body is a flat vector of 16-bit words. The low
// byte of an opcode word is the wasm opcode; the high byte carries an
// opcode-specific operand byte size for the polymorphic instructions
// (drop, local.get/set/tee). Immediate payloads follow the opcode word
// as little-endian packed 16-bit words: one word for u16, two for u32,
// four for u64.

// CompiledFunc is the lowered, validated form of one function body.
type CompiledFunc struct {
	// LocalSizes holds the byte size of every local; parameters are the
	// first ParamCount entries.
	LocalSizes []uint32
	ParamCount int
	// ResultSize is the byte width of the declared result, 0 for void.
	ResultSize uint32
	Code       []uint16
}

// emitter builds the word stream during lowering.
type emitter struct {
	words []uint16
}

func (e *emitter) op(opcode byte) {
	e.words = append(e.words, uint16(opcode))
}

// opSized packs an operand byte size into the high byte of the opcode word.
func (e *emitter) opSized(opcode byte, size uint32) {
	e.words = append(e.words, uint16(opcode)|uint16(size)<<8)
}

func (e *emitter) u16(v uint16) {
	e.words = append(e.words, v)
}

func (e *emitter) u32(v uint32) {
	e.words = append(e.words, uint16(v), uint16(v>>16))
}

func (e *emitter) u64(v uint64) {
	e.words = append(e.words, uint16(v), uint16(v>>16), uint16(v>>32), uint16(v>>48))
}

// Word stream read helpers used by the interpreter. Each returns the
// decoded immediate; the caller advances the instruction pointer by the
// word count.

func readU16(code []uint16, ip int) uint16 {
	return code[ip]
}

func readU32(code []uint16, ip int) uint32 {
	return uint32(code[ip]) | uint32(code[ip+1])<<16
}

func readU64(code []uint16, ip int) uint64 {
	return uint64(code[ip]) | uint64(code[ip+1])<<16 | uint64(code[ip+2])<<32 | uint64(code[ip+3])<<48
}

// Program resolves function indices to compiled bodies. It is the
// interpreter's view of a module source: resolution triggers lazy
// lowering on first touch.
type Program interface {
	// CompiledFunc returns the lowered body of the defined function with
	// the given index (defined-function space, imports excluded).
	CompiledFunc(fnIndex uint32) (*CompiledFunc, error)

	// Module exposes the decoded module for signature lookups.
	Module() *wasm.Module
}
