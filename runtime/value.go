package runtime

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/wippyai/wasm-engine/wasm"
)

// Value is the 16-byte parameter/result cell exchanged with the host.
// The payload is little-endian; the prefix whose width matches the
// signature's value type is the meaningful part. The cell is wide
// enough for any value type, including v128 in signatures the engine
// refuses to execute.
type Value struct {
	bits [16]byte
	typ  wasm.ValType
}

// I32 constructs an i32 cell.
func I32(v int32) Value {
	var val Value
	val.typ = wasm.ValI32
	binary.LittleEndian.PutUint32(val.bits[:], uint32(v))
	return val
}

// I64 constructs an i64 cell.
func I64(v int64) Value {
	var val Value
	val.typ = wasm.ValI64
	binary.LittleEndian.PutUint64(val.bits[:], uint64(v))
	return val
}

// F32 constructs an f32 cell.
func F32(v float32) Value {
	var val Value
	val.typ = wasm.ValF32
	binary.LittleEndian.PutUint32(val.bits[:], math.Float32bits(v))
	return val
}

// F64 constructs an f64 cell.
func F64(v float64) Value {
	var val Value
	val.typ = wasm.ValF64
	binary.LittleEndian.PutUint64(val.bits[:], math.Float64bits(v))
	return val
}

// raw builds a cell of an arbitrary type from interpreter bits.
func raw(typ wasm.ValType, bits uint64) Value {
	var val Value
	val.typ = typ
	binary.LittleEndian.PutUint64(val.bits[:], bits)
	return val
}

// Type returns the cell's value type tag.
func (v Value) Type() wasm.ValType {
	return v.typ
}

// I32 reads the 4-byte prefix as a signed integer.
func (v Value) I32() int32 {
	return int32(binary.LittleEndian.Uint32(v.bits[:]))
}

// U32 reads the 4-byte prefix as an unsigned integer.
func (v Value) U32() uint32 {
	return binary.LittleEndian.Uint32(v.bits[:])
}

// I64 reads the 8-byte prefix as a signed integer.
func (v Value) I64() int64 {
	return int64(binary.LittleEndian.Uint64(v.bits[:]))
}

// U64 reads the 8-byte prefix as an unsigned integer.
func (v Value) U64() uint64 {
	return binary.LittleEndian.Uint64(v.bits[:])
}

// F32 reads the 4-byte prefix as a float.
func (v Value) F32() float32 {
	return math.Float32frombits(v.U32())
}

// F64 reads the 8-byte prefix as a float.
func (v Value) F64() float64 {
	return math.Float64frombits(v.U64())
}

// Raw returns the full 16-byte payload.
func (v Value) Raw() [16]byte {
	return v.bits
}

func (v Value) String() string {
	switch v.typ {
	case wasm.ValI32:
		return fmt.Sprintf("i32:%d", v.I32())
	case wasm.ValI64:
		return fmt.Sprintf("i64:%d", v.I64())
	case wasm.ValF32:
		return fmt.Sprintf("f32:%g", v.F32())
	case wasm.ValF64:
		return fmt.Sprintf("f64:%g", v.F64())
	case wasm.ValFuncRef, wasm.ValExtern:
		return fmt.Sprintf("%s:%d", v.typ, v.U32())
	}
	return fmt.Sprintf("%s:%x", v.typ, v.bits)
}
