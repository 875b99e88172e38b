package engine

import (
	"math"
	"math/bits"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-engine/errors"
	"github.com/wippyai/wasm-engine/wasm"
)

// Instance is the per-instance execution state: the evaluation stack,
// the locals stack, the linear memory, the call stack and the trapped
// flag. It is strictly single-threaded; two goroutines must not share
// one Instance.
type Instance struct {
	prog    Program
	stack   *valueStack
	locals  *localsStack
	memory  *Memory
	calls   callStack
	trapped bool
}

// NewInstance creates execution state over a program. Memory limits
// come from the module's memory section when present; the default is a
// single page.
func NewInstance(prog Program) *Instance {
	var lim wasm.Limits
	if mems := prog.Module().Memories; len(mems) > 0 {
		lim = mems[0]
	}
	return &Instance{
		prog:   prog,
		stack:  newValueStack(),
		locals: newLocalsStack(),
		memory: NewMemory(lim),
	}
}

// Trapped reports whether a trap has occurred since the last Restart.
func (inst *Instance) Trapped() bool {
	return inst.trapped
}

// Restart clears the trap flag. It is the only way out of the trapped
// state; no replay of the faulted call is provided.
func (inst *Instance) Restart() {
	inst.trapped = false
	inst.clearStacks()
}

// Memory returns the instance's linear memory.
func (inst *Instance) Memory() *Memory {
	return inst.memory
}

// PushArg places one call argument of the given byte width onto the
// evaluation stack. Arguments push in declared order, first parameter
// at the lowest address.
func (inst *Instance) PushArg(v uint64, size uint32) {
	inst.stack.push(v, size)
}

// PopResult removes the call result of the given byte width.
func (inst *Instance) PopResult(size uint32) uint64 {
	return inst.stack.pop(size)
}

// StackBytes returns the evaluation stack occupancy in bytes.
func (inst *Instance) StackBytes() int { return inst.stack.Len() }

// LocalSlots returns the locals-stack slot count.
func (inst *Instance) LocalSlots() int { return inst.locals.Len() }

// CallDepth returns the live call-record count.
func (inst *Instance) CallDepth() int { return inst.calls.Len() }

func (inst *Instance) clearStacks() {
	inst.stack.reset()
	inst.locals.reset()
	inst.calls.reset()
}

// trap unwinds everything: all three stacks empty, flag set, and the
// host call ends with no result.
func (inst *Instance) trap(reason string) error {
	logger().Debug("trap", zap.String("reason", reason))
	inst.trapped = true
	inst.clearStacks()
	return errors.Trap(reason)
}

// Call runs the defined function with the given index until the call
// stack drains. The caller has already pushed the parameters onto the
// evaluation stack in declared order.
//
// A returned error of kind trap means the instance is flagged and all
// stacks are empty; a compile-phase error means the function failed to
// lower (deterministically). Either way there is no result.
func (inst *Instance) Call(fnIndex uint32) error {
	fn, err := inst.prog.CompiledFunc(fnIndex)
	if err != nil {
		inst.clearStacks()
		return err
	}
	if !inst.calls.push(callRecord{fn: fn, index: fnIndex}) {
		return inst.trap("call stack exhausted")
	}
	if err := inst.run(); err != nil {
		return err
	}
	return nil
}

func (inst *Instance) run() error {
	for inst.calls.Len() > 0 {
		rec := inst.calls.top()
		fn := rec.fn

		// First entry to a frame: reserve locals and consume the
		// parameters off the evaluation stack, last parameter first.
		if rec.ip == 0 {
			rec.prevFP = inst.locals.pushFrame(len(fn.LocalSizes))
			for i := fn.ParamCount - 1; i >= 0; i-- {
				inst.locals.set(i, inst.stack.pop(fn.LocalSizes[i]))
			}
		}

		transfer, err := inst.exec(rec)
		if err != nil {
			return err
		}
		if transfer {
			continue
		}

		// Function end: release the frame and resume the caller. The
		// result, if any, is already on the evaluation stack.
		inst.locals.popFrame(rec.prevFP)
		inst.calls.pop()
	}
	return nil
}

// exec dispatches instructions of the top call record until the
// function ends (returns false) or control transfers to a callee
// (returns true).
func (inst *Instance) exec(rec *callRecord) (transfer bool, err error) {
	fn := rec.fn
	code := fn.Code
	stack := inst.stack
	mem := inst.memory
	ip := rec.ip

	for ip < len(code) {
		word := code[ip]
		op := byte(word)
		aux := uint32(word >> 8)
		ip++

		switch op {
		case wasm.OpUnreachable:
			return false, inst.trap("unreachable executed")

		case wasm.OpNop:

		case wasm.OpReturn:
			ip = len(code)

		case wasm.OpCall:
			target := readU32(code, ip)
			ip += 2
			callee, err := inst.prog.CompiledFunc(target)
			if err != nil {
				inst.clearStacks()
				return false, err
			}
			rec.ip = ip
			if !inst.calls.push(callRecord{fn: callee, index: target}) {
				return false, inst.trap("call stack exhausted")
			}
			return true, nil

		case wasm.OpDrop:
			stack.drop(aux)

		case wasm.OpLocalGet:
			idx := int(readU16(code, ip))
			ip++
			stack.push(inst.locals.get(idx), aux)

		case wasm.OpLocalSet:
			idx := int(readU16(code, ip))
			ip++
			inst.locals.set(idx, stack.pop(aux))

		case wasm.OpLocalTee:
			idx := int(readU16(code, ip))
			ip++
			inst.locals.set(idx, stack.peek(aux))

		case wasm.OpMemorySize:
			stack.pushU32(mem.Pages())

		case wasm.OpMemoryGrow:
			delta := stack.popU32()
			stack.pushU32(uint32(mem.Grow(delta)))

		case wasm.OpI32Const, wasm.OpF32Const:
			stack.pushU32(readU32(code, ip))
			ip += 2

		case wasm.OpI64Const, wasm.OpF64Const:
			stack.pushU64(readU64(code, ip))
			ip += 4

		case wasm.OpRefNull:
			stack.pushU32(0)

		case wasm.OpRefIsNull:
			stack.pushU32(b2i(stack.popU32() == 0))

		case wasm.OpRefFunc:
			// Handles offset by one so the null representation stays zero.
			stack.pushU32(readU32(code, ip) + 1)
			ip += 2

		case wasm.OpI32Load, wasm.OpI64Load, wasm.OpF32Load, wasm.OpF64Load,
			wasm.OpI32Load8S, wasm.OpI32Load8U, wasm.OpI32Load16S, wasm.OpI32Load16U,
			wasm.OpI64Load8S, wasm.OpI64Load8U, wasm.OpI64Load16S, wasm.OpI64Load16U,
			wasm.OpI64Load32S, wasm.OpI64Load32U:
			offset := readU32(code, ip)
			ip += 2
			if !inst.execLoad(op, offset) {
				return false, inst.trap("out of bounds memory access")
			}

		case wasm.OpI32Store, wasm.OpI64Store, wasm.OpF32Store, wasm.OpF64Store,
			wasm.OpI32Store8, wasm.OpI32Store16,
			wasm.OpI64Store8, wasm.OpI64Store16, wasm.OpI64Store32:
			offset := readU32(code, ip)
			ip += 2
			if !inst.execStore(op, offset) {
				return false, inst.trap("out of bounds memory access")
			}

		default:
			reason, ok := inst.execNumeric(op)
			if !ok {
				return false, inst.trap(reason)
			}
		}
	}

	rec.ip = ip
	return false, nil
}

// effectiveAddr folds the static offset into the dynamic base address.
// The sum is formed in 64 bits so a wrapped 32-bit address cannot
// alias back into bounds.
func effectiveAddr(base, offset uint32) (uint32, bool) {
	ea := uint64(base) + uint64(offset)
	if ea > math.MaxUint32 {
		return 0, false
	}
	return uint32(ea), true
}

func (inst *Instance) execLoad(op byte, offset uint32) bool {
	stack := inst.stack
	mem := inst.memory

	addr, ok := effectiveAddr(stack.popU32(), offset)
	if !ok {
		return false
	}

	switch op {
	case wasm.OpI32Load, wasm.OpF32Load:
		v, ok := mem.readU32(addr)
		if !ok {
			return false
		}
		stack.pushU32(uint32(v))
	case wasm.OpI64Load, wasm.OpF64Load:
		v, ok := mem.readU64(addr)
		if !ok {
			return false
		}
		stack.pushU64(v)
	case wasm.OpI32Load8S:
		v, ok := mem.readU8(addr)
		if !ok {
			return false
		}
		stack.pushU32(uint32(int32(int8(v))))
	case wasm.OpI32Load8U:
		v, ok := mem.readU8(addr)
		if !ok {
			return false
		}
		stack.pushU32(uint32(v))
	case wasm.OpI32Load16S:
		v, ok := mem.readU16(addr)
		if !ok {
			return false
		}
		stack.pushU32(uint32(int32(int16(v))))
	case wasm.OpI32Load16U:
		v, ok := mem.readU16(addr)
		if !ok {
			return false
		}
		stack.pushU32(uint32(v))
	case wasm.OpI64Load8S:
		v, ok := mem.readU8(addr)
		if !ok {
			return false
		}
		stack.pushU64(uint64(int64(int8(v))))
	case wasm.OpI64Load8U:
		v, ok := mem.readU8(addr)
		if !ok {
			return false
		}
		stack.pushU64(v)
	case wasm.OpI64Load16S:
		v, ok := mem.readU16(addr)
		if !ok {
			return false
		}
		stack.pushU64(uint64(int64(int16(v))))
	case wasm.OpI64Load16U:
		v, ok := mem.readU16(addr)
		if !ok {
			return false
		}
		stack.pushU64(v)
	case wasm.OpI64Load32S:
		v, ok := mem.readU32(addr)
		if !ok {
			return false
		}
		stack.pushU64(uint64(int64(int32(v))))
	case wasm.OpI64Load32U:
		v, ok := mem.readU32(addr)
		if !ok {
			return false
		}
		stack.pushU64(v)
	}
	return true
}

func (inst *Instance) execStore(op byte, offset uint32) bool {
	stack := inst.stack
	mem := inst.memory

	var value uint64
	switch op {
	case wasm.OpI32Store, wasm.OpF32Store, wasm.OpI32Store8, wasm.OpI32Store16:
		value = uint64(stack.popU32())
	default:
		value = stack.popU64()
	}

	addr, ok := effectiveAddr(stack.popU32(), offset)
	if !ok {
		return false
	}

	switch op {
	case wasm.OpI32Store, wasm.OpF32Store:
		return mem.writeU32(addr, value)
	case wasm.OpI64Store, wasm.OpF64Store:
		return mem.writeU64(addr, value)
	case wasm.OpI32Store8, wasm.OpI64Store8:
		return mem.writeU8(addr, value)
	case wasm.OpI32Store16, wasm.OpI64Store16:
		return mem.writeU16(addr, value)
	case wasm.OpI64Store32:
		return mem.writeU32(addr, value)
	}
	return false
}

func b2i(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// execNumeric performs a pure numeric opcode against the evaluation
// stack. It reports ok=false with a trap reason for the faulting
// division and conversion cases.
func (inst *Instance) execNumeric(op byte) (reason string, ok bool) {
	s := inst.stack

	switch op {
	// i32 tests and comparisons
	case wasm.OpI32Eqz:
		s.pushU32(b2i(s.popU32() == 0))
	case wasm.OpI32Eq:
		b, a := s.popU32(), s.popU32()
		s.pushU32(b2i(a == b))
	case wasm.OpI32Ne:
		b, a := s.popU32(), s.popU32()
		s.pushU32(b2i(a != b))
	case wasm.OpI32LtS:
		b, a := int32(s.popU32()), int32(s.popU32())
		s.pushU32(b2i(a < b))
	case wasm.OpI32LtU:
		b, a := s.popU32(), s.popU32()
		s.pushU32(b2i(a < b))
	case wasm.OpI32GtS:
		b, a := int32(s.popU32()), int32(s.popU32())
		s.pushU32(b2i(a > b))
	case wasm.OpI32GtU:
		b, a := s.popU32(), s.popU32()
		s.pushU32(b2i(a > b))
	case wasm.OpI32LeS:
		b, a := int32(s.popU32()), int32(s.popU32())
		s.pushU32(b2i(a <= b))
	case wasm.OpI32LeU:
		b, a := s.popU32(), s.popU32()
		s.pushU32(b2i(a <= b))
	case wasm.OpI32GeS:
		b, a := int32(s.popU32()), int32(s.popU32())
		s.pushU32(b2i(a >= b))
	case wasm.OpI32GeU:
		b, a := s.popU32(), s.popU32()
		s.pushU32(b2i(a >= b))

	// i64 tests and comparisons
	case wasm.OpI64Eqz:
		s.pushU32(b2i(s.popU64() == 0))
	case wasm.OpI64Eq:
		b, a := s.popU64(), s.popU64()
		s.pushU32(b2i(a == b))
	case wasm.OpI64Ne:
		b, a := s.popU64(), s.popU64()
		s.pushU32(b2i(a != b))
	case wasm.OpI64LtS:
		b, a := int64(s.popU64()), int64(s.popU64())
		s.pushU32(b2i(a < b))
	case wasm.OpI64LtU:
		b, a := s.popU64(), s.popU64()
		s.pushU32(b2i(a < b))
	case wasm.OpI64GtS:
		b, a := int64(s.popU64()), int64(s.popU64())
		s.pushU32(b2i(a > b))
	case wasm.OpI64GtU:
		b, a := s.popU64(), s.popU64()
		s.pushU32(b2i(a > b))
	case wasm.OpI64LeS:
		b, a := int64(s.popU64()), int64(s.popU64())
		s.pushU32(b2i(a <= b))
	case wasm.OpI64LeU:
		b, a := s.popU64(), s.popU64()
		s.pushU32(b2i(a <= b))
	case wasm.OpI64GeS:
		b, a := int64(s.popU64()), int64(s.popU64())
		s.pushU32(b2i(a >= b))
	case wasm.OpI64GeU:
		b, a := s.popU64(), s.popU64()
		s.pushU32(b2i(a >= b))

	// f32 comparisons
	case wasm.OpF32Eq:
		b, a := popF32(s), popF32(s)
		s.pushU32(b2i(a == b))
	case wasm.OpF32Ne:
		b, a := popF32(s), popF32(s)
		s.pushU32(b2i(a != b))
	case wasm.OpF32Lt:
		b, a := popF32(s), popF32(s)
		s.pushU32(b2i(a < b))
	case wasm.OpF32Gt:
		b, a := popF32(s), popF32(s)
		s.pushU32(b2i(a > b))
	case wasm.OpF32Le:
		b, a := popF32(s), popF32(s)
		s.pushU32(b2i(a <= b))
	case wasm.OpF32Ge:
		b, a := popF32(s), popF32(s)
		s.pushU32(b2i(a >= b))

	// f64 comparisons
	case wasm.OpF64Eq:
		b, a := popF64(s), popF64(s)
		s.pushU32(b2i(a == b))
	case wasm.OpF64Ne:
		b, a := popF64(s), popF64(s)
		s.pushU32(b2i(a != b))
	case wasm.OpF64Lt:
		b, a := popF64(s), popF64(s)
		s.pushU32(b2i(a < b))
	case wasm.OpF64Gt:
		b, a := popF64(s), popF64(s)
		s.pushU32(b2i(a > b))
	case wasm.OpF64Le:
		b, a := popF64(s), popF64(s)
		s.pushU32(b2i(a <= b))
	case wasm.OpF64Ge:
		b, a := popF64(s), popF64(s)
		s.pushU32(b2i(a >= b))

	// i32 arithmetic
	case wasm.OpI32Clz:
		s.pushU32(uint32(bits.LeadingZeros32(s.popU32())))
	case wasm.OpI32Ctz:
		s.pushU32(uint32(bits.TrailingZeros32(s.popU32())))
	case wasm.OpI32Popcnt:
		s.pushU32(uint32(bits.OnesCount32(s.popU32())))
	case wasm.OpI32Add:
		b, a := s.popU32(), s.popU32()
		s.pushU32(a + b)
	case wasm.OpI32Sub:
		b, a := s.popU32(), s.popU32()
		s.pushU32(a - b)
	case wasm.OpI32Mul:
		b, a := s.popU32(), s.popU32()
		s.pushU32(a * b)
	case wasm.OpI32DivS:
		b, a := int32(s.popU32()), int32(s.popU32())
		if b == 0 {
			return "integer divide by zero", false
		}
		if a == math.MinInt32 && b == -1 {
			return "integer overflow", false
		}
		s.pushU32(uint32(a / b))
	case wasm.OpI32DivU:
		b, a := s.popU32(), s.popU32()
		if b == 0 {
			return "integer divide by zero", false
		}
		s.pushU32(a / b)
	case wasm.OpI32RemS:
		b, a := int32(s.popU32()), int32(s.popU32())
		if b == 0 {
			return "integer divide by zero", false
		}
		if a == math.MinInt32 && b == -1 {
			s.pushU32(0)
		} else {
			s.pushU32(uint32(a % b))
		}
	case wasm.OpI32RemU:
		b, a := s.popU32(), s.popU32()
		if b == 0 {
			return "integer divide by zero", false
		}
		s.pushU32(a % b)
	case wasm.OpI32And:
		b, a := s.popU32(), s.popU32()
		s.pushU32(a & b)
	case wasm.OpI32Or:
		b, a := s.popU32(), s.popU32()
		s.pushU32(a | b)
	case wasm.OpI32Xor:
		b, a := s.popU32(), s.popU32()
		s.pushU32(a ^ b)
	case wasm.OpI32Shl:
		b, a := s.popU32(), s.popU32()
		s.pushU32(a << (b & 31))
	case wasm.OpI32ShrS:
		b, a := s.popU32(), s.popU32()
		s.pushU32(uint32(int32(a) >> (b & 31)))
	case wasm.OpI32ShrU:
		b, a := s.popU32(), s.popU32()
		s.pushU32(a >> (b & 31))
	case wasm.OpI32Rotl:
		b, a := s.popU32(), s.popU32()
		s.pushU32(bits.RotateLeft32(a, int(b&31)))
	case wasm.OpI32Rotr:
		b, a := s.popU32(), s.popU32()
		s.pushU32(bits.RotateLeft32(a, -int(b&31)))

	// i64 arithmetic
	case wasm.OpI64Clz:
		s.pushU64(uint64(bits.LeadingZeros64(s.popU64())))
	case wasm.OpI64Ctz:
		s.pushU64(uint64(bits.TrailingZeros64(s.popU64())))
	case wasm.OpI64Popcnt:
		s.pushU64(uint64(bits.OnesCount64(s.popU64())))
	case wasm.OpI64Add:
		b, a := s.popU64(), s.popU64()
		s.pushU64(a + b)
	case wasm.OpI64Sub:
		b, a := s.popU64(), s.popU64()
		s.pushU64(a - b)
	case wasm.OpI64Mul:
		b, a := s.popU64(), s.popU64()
		s.pushU64(a * b)
	case wasm.OpI64DivS:
		b, a := int64(s.popU64()), int64(s.popU64())
		if b == 0 {
			return "integer divide by zero", false
		}
		if a == math.MinInt64 && b == -1 {
			return "integer overflow", false
		}
		s.pushU64(uint64(a / b))
	case wasm.OpI64DivU:
		b, a := s.popU64(), s.popU64()
		if b == 0 {
			return "integer divide by zero", false
		}
		s.pushU64(a / b)
	case wasm.OpI64RemS:
		b, a := int64(s.popU64()), int64(s.popU64())
		if b == 0 {
			return "integer divide by zero", false
		}
		if a == math.MinInt64 && b == -1 {
			s.pushU64(0)
		} else {
			s.pushU64(uint64(a % b))
		}
	case wasm.OpI64RemU:
		b, a := s.popU64(), s.popU64()
		if b == 0 {
			return "integer divide by zero", false
		}
		s.pushU64(a % b)
	case wasm.OpI64And:
		b, a := s.popU64(), s.popU64()
		s.pushU64(a & b)
	case wasm.OpI64Or:
		b, a := s.popU64(), s.popU64()
		s.pushU64(a | b)
	case wasm.OpI64Xor:
		b, a := s.popU64(), s.popU64()
		s.pushU64(a ^ b)
	case wasm.OpI64Shl:
		b, a := s.popU64(), s.popU64()
		s.pushU64(a << (b & 63))
	case wasm.OpI64ShrS:
		b, a := s.popU64(), s.popU64()
		s.pushU64(uint64(int64(a) >> (b & 63)))
	case wasm.OpI64ShrU:
		b, a := s.popU64(), s.popU64()
		s.pushU64(a >> (b & 63))
	case wasm.OpI64Rotl:
		b, a := s.popU64(), s.popU64()
		s.pushU64(bits.RotateLeft64(a, int(b&63)))
	case wasm.OpI64Rotr:
		b, a := s.popU64(), s.popU64()
		s.pushU64(bits.RotateLeft64(a, -int(b&63)))

	// f32 arithmetic
	case wasm.OpF32Abs:
		s.pushU32(absF32(s.popU32()))
	case wasm.OpF32Neg:
		s.pushU32(negF32(s.popU32()))
	case wasm.OpF32Ceil:
		pushF32(s, float32(math.Ceil(float64(popF32(s)))))
	case wasm.OpF32Floor:
		pushF32(s, float32(math.Floor(float64(popF32(s)))))
	case wasm.OpF32Trunc:
		pushF32(s, float32(math.Trunc(float64(popF32(s)))))
	case wasm.OpF32Nearest:
		pushF32(s, nearestF32(popF32(s)))
	case wasm.OpF32Sqrt:
		pushF32(s, float32(math.Sqrt(float64(popF32(s)))))
	case wasm.OpF32Add:
		b, a := popF32(s), popF32(s)
		pushF32(s, a+b)
	case wasm.OpF32Sub:
		b, a := popF32(s), popF32(s)
		pushF32(s, a-b)
	case wasm.OpF32Mul:
		b, a := popF32(s), popF32(s)
		pushF32(s, a*b)
	case wasm.OpF32Div:
		b, a := popF32(s), popF32(s)
		pushF32(s, a/b)
	case wasm.OpF32Min:
		b, a := popF32(s), popF32(s)
		pushF32(s, wasmMin32(a, b))
	case wasm.OpF32Max:
		b, a := popF32(s), popF32(s)
		pushF32(s, wasmMax32(a, b))
	case wasm.OpF32Copysign:
		b, a := s.popU32(), s.popU32()
		s.pushU32(copysignF32(a, b))

	// f64 arithmetic
	case wasm.OpF64Abs:
		s.pushU64(absF64(s.popU64()))
	case wasm.OpF64Neg:
		s.pushU64(negF64(s.popU64()))
	case wasm.OpF64Ceil:
		pushF64(s, math.Ceil(popF64(s)))
	case wasm.OpF64Floor:
		pushF64(s, math.Floor(popF64(s)))
	case wasm.OpF64Trunc:
		pushF64(s, math.Trunc(popF64(s)))
	case wasm.OpF64Nearest:
		pushF64(s, nearestF64(popF64(s)))
	case wasm.OpF64Sqrt:
		pushF64(s, math.Sqrt(popF64(s)))
	case wasm.OpF64Add:
		b, a := popF64(s), popF64(s)
		pushF64(s, a+b)
	case wasm.OpF64Sub:
		b, a := popF64(s), popF64(s)
		pushF64(s, a-b)
	case wasm.OpF64Mul:
		b, a := popF64(s), popF64(s)
		pushF64(s, a*b)
	case wasm.OpF64Div:
		b, a := popF64(s), popF64(s)
		pushF64(s, a/b)
	case wasm.OpF64Min:
		b, a := popF64(s), popF64(s)
		pushF64(s, wasmMin64(a, b))
	case wasm.OpF64Max:
		b, a := popF64(s), popF64(s)
		pushF64(s, wasmMax64(a, b))
	case wasm.OpF64Copysign:
		b, a := s.popU64(), s.popU64()
		s.pushU64(copysignF64(a, b))

	// conversions
	case wasm.OpI32WrapI64:
		s.pushU32(uint32(s.popU64()))
	case wasm.OpI32TruncF32S:
		v, ok := truncToI32(float64(popF32(s)))
		if !ok {
			return "invalid conversion to integer", false
		}
		s.pushU32(uint32(v))
	case wasm.OpI32TruncF32U:
		v, ok := truncToU32(float64(popF32(s)))
		if !ok {
			return "invalid conversion to integer", false
		}
		s.pushU32(v)
	case wasm.OpI32TruncF64S:
		v, ok := truncToI32(popF64(s))
		if !ok {
			return "invalid conversion to integer", false
		}
		s.pushU32(uint32(v))
	case wasm.OpI32TruncF64U:
		v, ok := truncToU32(popF64(s))
		if !ok {
			return "invalid conversion to integer", false
		}
		s.pushU32(v)
	case wasm.OpI64ExtendI32S:
		s.pushU64(uint64(int64(int32(s.popU32()))))
	case wasm.OpI64ExtendI32U:
		s.pushU64(uint64(s.popU32()))
	case wasm.OpI64TruncF32S:
		v, ok := truncToI64(float64(popF32(s)))
		if !ok {
			return "invalid conversion to integer", false
		}
		s.pushU64(uint64(v))
	case wasm.OpI64TruncF32U:
		v, ok := truncToU64(float64(popF32(s)))
		if !ok {
			return "invalid conversion to integer", false
		}
		s.pushU64(v)
	case wasm.OpI64TruncF64S:
		v, ok := truncToI64(popF64(s))
		if !ok {
			return "invalid conversion to integer", false
		}
		s.pushU64(uint64(v))
	case wasm.OpI64TruncF64U:
		v, ok := truncToU64(popF64(s))
		if !ok {
			return "invalid conversion to integer", false
		}
		s.pushU64(v)
	case wasm.OpF32ConvertI32S:
		pushF32(s, float32(int32(s.popU32())))
	case wasm.OpF32ConvertI32U:
		pushF32(s, float32(s.popU32()))
	case wasm.OpF32ConvertI64S:
		pushF32(s, float32(int64(s.popU64())))
	case wasm.OpF32ConvertI64U:
		pushF32(s, float32(s.popU64()))
	case wasm.OpF32DemoteF64:
		pushF32(s, float32(popF64(s)))
	case wasm.OpF64ConvertI32S:
		pushF64(s, float64(int32(s.popU32())))
	case wasm.OpF64ConvertI32U:
		pushF64(s, float64(s.popU32()))
	case wasm.OpF64ConvertI64S:
		pushF64(s, float64(int64(s.popU64())))
	case wasm.OpF64ConvertI64U:
		pushF64(s, float64(s.popU64()))
	case wasm.OpF64PromoteF32:
		pushF64(s, float64(popF32(s)))

	// sign extensions
	case wasm.OpI32Extend8S:
		s.pushU32(uint32(int32(int8(s.popU32()))))
	case wasm.OpI32Extend16S:
		s.pushU32(uint32(int32(int16(s.popU32()))))
	case wasm.OpI64Extend8S:
		s.pushU64(uint64(int64(int8(s.popU64()))))
	case wasm.OpI64Extend16S:
		s.pushU64(uint64(int64(int16(s.popU64()))))
	case wasm.OpI64Extend32S:
		s.pushU64(uint64(int64(int32(s.popU64()))))

	default:
		// The lowerer never emits anything else.
		return "unknown lowered opcode", false
	}

	return "", true
}

func popF32(s *valueStack) float32 {
	return math.Float32frombits(s.popU32())
}

func popF64(s *valueStack) float64 {
	return math.Float64frombits(s.popU64())
}

func pushF32(s *valueStack, v float32) {
	s.pushU32(math.Float32bits(v))
}

func pushF64(s *valueStack, v float64) {
	s.pushU64(math.Float64bits(v))
}
