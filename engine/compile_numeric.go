package engine

import (
	"github.com/wippyai/wasm-engine/wasm"
)

// numShape fixes the operand and result types of a numeric opcode. The
// full table is determined by the opcode alone; lowering only has to
// check the stack against it.
type numShape struct {
	ins  []wasm.ValType
	out  wasm.ValType
	emit bool
}

func unary(src, dst wasm.ValType) numShape {
	return numShape{ins: []wasm.ValType{src}, out: dst, emit: true}
}

func binaryShape(operand, dst wasm.ValType) numShape {
	return numShape{ins: []wasm.ValType{operand, operand}, out: dst, emit: true}
}

// retag is a reinterpret: a pure compile-time type change with no
// runtime opcode.
func retag(src, dst wasm.ValType) numShape {
	return numShape{ins: []wasm.ValType{src}, out: dst, emit: false}
}

var numericShapes = map[byte]numShape{
	// integer tests and comparisons (all produce i32)
	wasm.OpI32Eqz: unary(wasm.ValI32, wasm.ValI32),
	wasm.OpI32Eq:  binaryShape(wasm.ValI32, wasm.ValI32),
	wasm.OpI32Ne:  binaryShape(wasm.ValI32, wasm.ValI32),
	wasm.OpI32LtS: binaryShape(wasm.ValI32, wasm.ValI32),
	wasm.OpI32LtU: binaryShape(wasm.ValI32, wasm.ValI32),
	wasm.OpI32GtS: binaryShape(wasm.ValI32, wasm.ValI32),
	wasm.OpI32GtU: binaryShape(wasm.ValI32, wasm.ValI32),
	wasm.OpI32LeS: binaryShape(wasm.ValI32, wasm.ValI32),
	wasm.OpI32LeU: binaryShape(wasm.ValI32, wasm.ValI32),
	wasm.OpI32GeS: binaryShape(wasm.ValI32, wasm.ValI32),
	wasm.OpI32GeU: binaryShape(wasm.ValI32, wasm.ValI32),
	wasm.OpI64Eqz: unary(wasm.ValI64, wasm.ValI32),
	wasm.OpI64Eq:  binaryShape(wasm.ValI64, wasm.ValI32),
	wasm.OpI64Ne:  binaryShape(wasm.ValI64, wasm.ValI32),
	wasm.OpI64LtS: binaryShape(wasm.ValI64, wasm.ValI32),
	wasm.OpI64LtU: binaryShape(wasm.ValI64, wasm.ValI32),
	wasm.OpI64GtS: binaryShape(wasm.ValI64, wasm.ValI32),
	wasm.OpI64GtU: binaryShape(wasm.ValI64, wasm.ValI32),
	wasm.OpI64LeS: binaryShape(wasm.ValI64, wasm.ValI32),
	wasm.OpI64LeU: binaryShape(wasm.ValI64, wasm.ValI32),
	wasm.OpI64GeS: binaryShape(wasm.ValI64, wasm.ValI32),
	wasm.OpI64GeU: binaryShape(wasm.ValI64, wasm.ValI32),
	wasm.OpF32Eq:  binaryShape(wasm.ValF32, wasm.ValI32),
	wasm.OpF32Ne:  binaryShape(wasm.ValF32, wasm.ValI32),
	wasm.OpF32Lt:  binaryShape(wasm.ValF32, wasm.ValI32),
	wasm.OpF32Gt:  binaryShape(wasm.ValF32, wasm.ValI32),
	wasm.OpF32Le:  binaryShape(wasm.ValF32, wasm.ValI32),
	wasm.OpF32Ge:  binaryShape(wasm.ValF32, wasm.ValI32),
	wasm.OpF64Eq:  binaryShape(wasm.ValF64, wasm.ValI32),
	wasm.OpF64Ne:  binaryShape(wasm.ValF64, wasm.ValI32),
	wasm.OpF64Lt:  binaryShape(wasm.ValF64, wasm.ValI32),
	wasm.OpF64Gt:  binaryShape(wasm.ValF64, wasm.ValI32),
	wasm.OpF64Le:  binaryShape(wasm.ValF64, wasm.ValI32),
	wasm.OpF64Ge:  binaryShape(wasm.ValF64, wasm.ValI32),

	// i32 arithmetic
	wasm.OpI32Clz:    unary(wasm.ValI32, wasm.ValI32),
	wasm.OpI32Ctz:    unary(wasm.ValI32, wasm.ValI32),
	wasm.OpI32Popcnt: unary(wasm.ValI32, wasm.ValI32),
	wasm.OpI32Add:    binaryShape(wasm.ValI32, wasm.ValI32),
	wasm.OpI32Sub:    binaryShape(wasm.ValI32, wasm.ValI32),
	wasm.OpI32Mul:    binaryShape(wasm.ValI32, wasm.ValI32),
	wasm.OpI32DivS:   binaryShape(wasm.ValI32, wasm.ValI32),
	wasm.OpI32DivU:   binaryShape(wasm.ValI32, wasm.ValI32),
	wasm.OpI32RemS:   binaryShape(wasm.ValI32, wasm.ValI32),
	wasm.OpI32RemU:   binaryShape(wasm.ValI32, wasm.ValI32),
	wasm.OpI32And:    binaryShape(wasm.ValI32, wasm.ValI32),
	wasm.OpI32Or:     binaryShape(wasm.ValI32, wasm.ValI32),
	wasm.OpI32Xor:    binaryShape(wasm.ValI32, wasm.ValI32),
	wasm.OpI32Shl:    binaryShape(wasm.ValI32, wasm.ValI32),
	wasm.OpI32ShrS:   binaryShape(wasm.ValI32, wasm.ValI32),
	wasm.OpI32ShrU:   binaryShape(wasm.ValI32, wasm.ValI32),
	wasm.OpI32Rotl:   binaryShape(wasm.ValI32, wasm.ValI32),
	wasm.OpI32Rotr:   binaryShape(wasm.ValI32, wasm.ValI32),

	// i64 arithmetic
	wasm.OpI64Clz:    unary(wasm.ValI64, wasm.ValI64),
	wasm.OpI64Ctz:    unary(wasm.ValI64, wasm.ValI64),
	wasm.OpI64Popcnt: unary(wasm.ValI64, wasm.ValI64),
	wasm.OpI64Add:    binaryShape(wasm.ValI64, wasm.ValI64),
	wasm.OpI64Sub:    binaryShape(wasm.ValI64, wasm.ValI64),
	wasm.OpI64Mul:    binaryShape(wasm.ValI64, wasm.ValI64),
	wasm.OpI64DivS:   binaryShape(wasm.ValI64, wasm.ValI64),
	wasm.OpI64DivU:   binaryShape(wasm.ValI64, wasm.ValI64),
	wasm.OpI64RemS:   binaryShape(wasm.ValI64, wasm.ValI64),
	wasm.OpI64RemU:   binaryShape(wasm.ValI64, wasm.ValI64),
	wasm.OpI64And:    binaryShape(wasm.ValI64, wasm.ValI64),
	wasm.OpI64Or:     binaryShape(wasm.ValI64, wasm.ValI64),
	wasm.OpI64Xor:    binaryShape(wasm.ValI64, wasm.ValI64),
	wasm.OpI64Shl:    binaryShape(wasm.ValI64, wasm.ValI64),
	wasm.OpI64ShrS:   binaryShape(wasm.ValI64, wasm.ValI64),
	wasm.OpI64ShrU:   binaryShape(wasm.ValI64, wasm.ValI64),
	wasm.OpI64Rotl:   binaryShape(wasm.ValI64, wasm.ValI64),
	wasm.OpI64Rotr:   binaryShape(wasm.ValI64, wasm.ValI64),

	// f32 arithmetic
	wasm.OpF32Abs:      unary(wasm.ValF32, wasm.ValF32),
	wasm.OpF32Neg:      unary(wasm.ValF32, wasm.ValF32),
	wasm.OpF32Ceil:     unary(wasm.ValF32, wasm.ValF32),
	wasm.OpF32Floor:    unary(wasm.ValF32, wasm.ValF32),
	wasm.OpF32Trunc:    unary(wasm.ValF32, wasm.ValF32),
	wasm.OpF32Nearest:  unary(wasm.ValF32, wasm.ValF32),
	wasm.OpF32Sqrt:     unary(wasm.ValF32, wasm.ValF32),
	wasm.OpF32Add:      binaryShape(wasm.ValF32, wasm.ValF32),
	wasm.OpF32Sub:      binaryShape(wasm.ValF32, wasm.ValF32),
	wasm.OpF32Mul:      binaryShape(wasm.ValF32, wasm.ValF32),
	wasm.OpF32Div:      binaryShape(wasm.ValF32, wasm.ValF32),
	wasm.OpF32Min:      binaryShape(wasm.ValF32, wasm.ValF32),
	wasm.OpF32Max:      binaryShape(wasm.ValF32, wasm.ValF32),
	wasm.OpF32Copysign: binaryShape(wasm.ValF32, wasm.ValF32),

	// f64 arithmetic
	wasm.OpF64Abs:      unary(wasm.ValF64, wasm.ValF64),
	wasm.OpF64Neg:      unary(wasm.ValF64, wasm.ValF64),
	wasm.OpF64Ceil:     unary(wasm.ValF64, wasm.ValF64),
	wasm.OpF64Floor:    unary(wasm.ValF64, wasm.ValF64),
	wasm.OpF64Trunc:    unary(wasm.ValF64, wasm.ValF64),
	wasm.OpF64Nearest:  unary(wasm.ValF64, wasm.ValF64),
	wasm.OpF64Sqrt:     unary(wasm.ValF64, wasm.ValF64),
	wasm.OpF64Add:      binaryShape(wasm.ValF64, wasm.ValF64),
	wasm.OpF64Sub:      binaryShape(wasm.ValF64, wasm.ValF64),
	wasm.OpF64Mul:      binaryShape(wasm.ValF64, wasm.ValF64),
	wasm.OpF64Div:      binaryShape(wasm.ValF64, wasm.ValF64),
	wasm.OpF64Min:      binaryShape(wasm.ValF64, wasm.ValF64),
	wasm.OpF64Max:      binaryShape(wasm.ValF64, wasm.ValF64),
	wasm.OpF64Copysign: binaryShape(wasm.ValF64, wasm.ValF64),

	// conversions
	wasm.OpI32WrapI64:     unary(wasm.ValI64, wasm.ValI32),
	wasm.OpI32TruncF32S:   unary(wasm.ValF32, wasm.ValI32),
	wasm.OpI32TruncF32U:   unary(wasm.ValF32, wasm.ValI32),
	wasm.OpI32TruncF64S:   unary(wasm.ValF64, wasm.ValI32),
	wasm.OpI32TruncF64U:   unary(wasm.ValF64, wasm.ValI32),
	wasm.OpI64ExtendI32S:  unary(wasm.ValI32, wasm.ValI64),
	wasm.OpI64ExtendI32U:  unary(wasm.ValI32, wasm.ValI64),
	wasm.OpI64TruncF32S:   unary(wasm.ValF32, wasm.ValI64),
	wasm.OpI64TruncF32U:   unary(wasm.ValF32, wasm.ValI64),
	wasm.OpI64TruncF64S:   unary(wasm.ValF64, wasm.ValI64),
	wasm.OpI64TruncF64U:   unary(wasm.ValF64, wasm.ValI64),
	wasm.OpF32ConvertI32S: unary(wasm.ValI32, wasm.ValF32),
	wasm.OpF32ConvertI32U: unary(wasm.ValI32, wasm.ValF32),
	wasm.OpF32ConvertI64S: unary(wasm.ValI64, wasm.ValF32),
	wasm.OpF32ConvertI64U: unary(wasm.ValI64, wasm.ValF32),
	wasm.OpF32DemoteF64:   unary(wasm.ValF64, wasm.ValF32),
	wasm.OpF64ConvertI32S: unary(wasm.ValI32, wasm.ValF64),
	wasm.OpF64ConvertI32U: unary(wasm.ValI32, wasm.ValF64),
	wasm.OpF64ConvertI64S: unary(wasm.ValI64, wasm.ValF64),
	wasm.OpF64ConvertI64U: unary(wasm.ValI64, wasm.ValF64),
	wasm.OpF64PromoteF32:  unary(wasm.ValF32, wasm.ValF64),

	// reinterprets: bit-identity retags, no runtime opcode
	wasm.OpI32ReinterpretF32: retag(wasm.ValF32, wasm.ValI32),
	wasm.OpI64ReinterpretF64: retag(wasm.ValF64, wasm.ValI64),
	wasm.OpF32ReinterpretI32: retag(wasm.ValI32, wasm.ValF32),
	wasm.OpF64ReinterpretI64: retag(wasm.ValI64, wasm.ValF64),

	// sign extensions
	wasm.OpI32Extend8S:  unary(wasm.ValI32, wasm.ValI32),
	wasm.OpI32Extend16S: unary(wasm.ValI32, wasm.ValI32),
	wasm.OpI64Extend8S:  unary(wasm.ValI64, wasm.ValI64),
	wasm.OpI64Extend16S: unary(wasm.ValI64, wasm.ValI64),
	wasm.OpI64Extend32S: unary(wasm.ValI64, wasm.ValI64),
}

func (c *compiler) compileNumeric(op byte, name string, shape numShape) error {
	for i := len(shape.ins) - 1; i >= 0; i-- {
		if err := c.stack.popExpect(name, shape.ins[i]); err != nil {
			return err
		}
	}
	c.stack.push(shape.out)
	if shape.emit {
		c.emit.op(op)
	}
	return nil
}
