package engine

import (
	"bytes"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-engine/errors"
	"github.com/wippyai/wasm-engine/wasm"
)

// Compile validates one raw function body and lowers it into the
// compact word stream the interpreter executes. fnIndex addresses the
// defined-function space (imports excluded).
//
// The pass is type-directed: for each opcode it decodes immediates,
// pops operands against their expected types, pushes the result type,
// and emits the opcode word plus its immediate payload. Any failure is
// fatal for the function and deterministic across retries.
func Compile(mod *wasm.Module, fnIndex uint32) (*CompiledFunc, error) {
	if fnIndex >= uint32(len(mod.Code)) {
		return nil, errors.OutOfBounds(errors.PhaseCompile, []string{"function"}, int(fnIndex), len(mod.Code))
	}
	body := mod.Code[fnIndex]
	if body.TypeIndex >= uint32(len(mod.Types)) {
		return nil, errors.OutOfBounds(errors.PhaseCompile, []string{"type"}, int(body.TypeIndex), len(mod.Types))
	}
	sig := &mod.Types[body.TypeIndex]

	for _, p := range sig.Params {
		if p == wasm.ValV128 {
			return nil, errors.Unsupported(errors.PhaseCompile, "v128 in function signature")
		}
	}
	if r, ok := sig.Result(); ok && r == wasm.ValV128 {
		return nil, errors.Unsupported(errors.PhaseCompile, "v128 in function signature")
	}

	c := &compiler{
		mod:         mod,
		sig:         sig,
		r:           bytes.NewReader(body.Code),
		bodyLen:     len(body.Code),
		numImported: mod.NumImportedFuncs(),
	}

	if err := c.parseLocals(); err != nil {
		return nil, err
	}
	if err := c.compileBody(); err != nil {
		return nil, err
	}

	fn := &CompiledFunc{
		ParamCount: len(sig.Params),
		LocalSizes: make([]uint32, len(c.locals)),
		Code:       c.emit.words,
	}
	for i, t := range c.locals {
		fn.LocalSizes[i] = t.Size()
	}
	if r, ok := sig.Result(); ok {
		fn.ResultSize = r.Size()
	}

	logger().Debug("lowered function",
		zap.Uint32("index", fnIndex),
		zap.Int("locals", len(c.locals)),
		zap.Int("words", len(fn.Code)))
	return fn, nil
}

type compiler struct {
	mod         *wasm.Module
	sig         *wasm.FuncType
	r           *bytes.Reader
	bodyLen     int
	numImported uint32
	locals      []wasm.ValType
	stack       typeStack
	emit        emitter
}

func (c *compiler) offset() int {
	return c.bodyLen - c.r.Len()
}

func (c *compiler) truncated() error {
	return errors.New(errors.PhaseCompile, errors.KindTruncated).
		Offset(c.offset()).
		Detail("body ends inside an instruction").
		Build()
}

// parseLocals expands the local-declaration prelude into the flat local
// environment: parameter types first, then each (count, type) run.
func (c *compiler) parseLocals() error {
	c.locals = append(c.locals, c.sig.Params...)

	runs, err := wasm.ReadLEB128u(c.r)
	if err != nil {
		return c.truncated()
	}
	for i := uint32(0); i < runs; i++ {
		count, err := wasm.ReadLEB128u(c.r)
		if err != nil {
			return c.truncated()
		}
		b, err := c.r.ReadByte()
		if err != nil {
			return c.truncated()
		}
		t := wasm.ValType(b)
		if !t.Valid() {
			return errors.New(errors.PhaseCompile, errors.KindInvalidData).
				Offset(c.offset()).
				Detail("invalid local type 0x%02X", b).
				Build()
		}
		if t == wasm.ValV128 {
			return errors.Unsupported(errors.PhaseCompile, "v128 local")
		}
		for j := uint32(0); j < count; j++ {
			c.locals = append(c.locals, t)
		}
	}
	// Local indices travel as u16 immediates in the lowered stream.
	if len(c.locals) > 0x10000 {
		return errors.New(errors.PhaseCompile, errors.KindOverflow).
			Detail("%d locals exceed the addressable range", len(c.locals)).
			Build()
	}
	return nil
}

func (c *compiler) compileBody() error {
	for c.r.Len() > 0 {
		op, err := c.r.ReadByte()
		if err != nil {
			return c.truncated()
		}

		done, err := c.compileOne(op)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return c.truncated() // body must terminate with end
}

// compileOne lowers a single instruction. It reports done=true when the
// function's effective control flow ended (the final end, or an
// unconditional return whose trailing instructions are ignored).
func (c *compiler) compileOne(op byte) (done bool, err error) {
	name := wasm.OpcodeName(op)

	switch op {
	case wasm.OpUnreachable, wasm.OpNop:
		c.emit.op(op)
		return false, nil

	case wasm.OpReturn:
		if result, ok := c.sig.Result(); ok {
			top, err := c.stack.top(name)
			if err != nil {
				return false, err
			}
			if top != result {
				return false, errors.TypeMismatch(errors.PhaseCompile, name, result.String(), top.String())
			}
		}
		c.emit.op(op)
		// Everything after an unconditional return is unreachable; it is
		// skipped without type re-verification.
		return true, nil

	case wasm.OpEnd:
		if c.r.Len() != 0 {
			return false, errors.UnsupportedOpcode("end (block structure)")
		}
		if result, ok := c.sig.Result(); ok {
			if c.stack.depth() != 1 {
				return false, errors.New(errors.PhaseCompile, errors.KindTypeMismatch).
					Detail("operand stack holds %d values at end, want 1", c.stack.depth()).
					Build()
			}
			top, _ := c.stack.top(name)
			if top != result {
				return false, errors.TypeMismatch(errors.PhaseCompile, name, result.String(), top.String())
			}
		} else if c.stack.depth() != 0 {
			return false, errors.New(errors.PhaseCompile, errors.KindTypeMismatch).
				Detail("operand stack holds %d values at end, want 0", c.stack.depth()).
				Build()
		}
		return true, nil

	case wasm.OpBlock, wasm.OpLoop, wasm.OpIf, wasm.OpElse,
		wasm.OpBr, wasm.OpBrIf, wasm.OpBrTable, wasm.OpCallIndirect,
		wasm.OpSelect, wasm.OpSelectType,
		wasm.OpGlobalGet, wasm.OpGlobalSet,
		wasm.OpTableGet, wasm.OpTableSet:
		return false, errors.UnsupportedOpcode(name)

	case wasm.OpPrefixMisc:
		sub, err := wasm.ReadLEB128u(c.r)
		if err != nil {
			return false, c.truncated()
		}
		return false, errors.New(errors.PhaseCompile, errors.KindUnsupported).
			Opcode(name).
			Detail("sub-opcode %d", sub).
			Build()

	case wasm.OpPrefixSIMD:
		return false, errors.UnsupportedOpcode(name)

	case wasm.OpCall:
		return false, c.compileCall(name)

	case wasm.OpDrop:
		t, err := c.stack.pop(name)
		if err != nil {
			return false, err
		}
		c.emit.opSized(op, t.Size())
		return false, nil

	case wasm.OpLocalGet, wasm.OpLocalSet, wasm.OpLocalTee:
		return false, c.compileLocal(op, name)

	case wasm.OpMemorySize:
		c.stack.push(wasm.ValI32)
		c.emit.op(op)
		return false, nil

	case wasm.OpMemoryGrow:
		if err := c.stack.popExpect(name, wasm.ValI32); err != nil {
			return false, err
		}
		c.stack.push(wasm.ValI32)
		c.emit.op(op)
		return false, nil

	case wasm.OpI32Const:
		v, err := wasm.ReadLEB128s(c.r)
		if err != nil {
			return false, c.truncated()
		}
		c.stack.push(wasm.ValI32)
		c.emit.op(op)
		c.emit.u32(uint32(v))
		return false, nil

	case wasm.OpI64Const:
		v, err := wasm.ReadLEB128s64(c.r)
		if err != nil {
			return false, c.truncated()
		}
		c.stack.push(wasm.ValI64)
		c.emit.op(op)
		c.emit.u64(uint64(v))
		return false, nil

	case wasm.OpF32Const:
		var buf [4]byte
		n, err := c.r.Read(buf[:])
		if err != nil || n != 4 {
			return false, c.truncated()
		}
		c.stack.push(wasm.ValF32)
		c.emit.op(op)
		c.emit.u32(uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24)
		return false, nil

	case wasm.OpF64Const:
		var buf [8]byte
		n, err := c.r.Read(buf[:])
		if err != nil || n != 8 {
			return false, c.truncated()
		}
		var bits uint64
		for i := 7; i >= 0; i-- {
			bits = bits<<8 | uint64(buf[i])
		}
		c.stack.push(wasm.ValF64)
		c.emit.op(op)
		c.emit.u64(bits)
		return false, nil

	case wasm.OpRefNull:
		b, err := c.r.ReadByte()
		if err != nil {
			return false, c.truncated()
		}
		rt := wasm.ValType(b)
		if !rt.IsRef() {
			return false, errors.New(errors.PhaseCompile, errors.KindInvalidData).
				Opcode(name).
				Detail("0x%02X is not a reference type", b).
				Build()
		}
		c.stack.push(rt)
		c.emit.op(op)
		return false, nil

	case wasm.OpRefIsNull:
		t, err := c.stack.pop(name)
		if err != nil {
			return false, err
		}
		if !t.IsRef() {
			return false, errors.TypeMismatch(errors.PhaseCompile, name, "reference", t.String())
		}
		c.stack.push(wasm.ValI32)
		c.emit.op(op)
		return false, nil

	case wasm.OpRefFunc:
		idx, err := wasm.ReadLEB128u(c.r)
		if err != nil {
			return false, c.truncated()
		}
		total := c.numImported + uint32(len(c.mod.Funcs))
		if idx >= total {
			return false, errors.OutOfBounds(errors.PhaseCompile, []string{"function"}, int(idx), int(total))
		}
		c.stack.push(wasm.ValFuncRef)
		c.emit.op(op)
		c.emit.u32(idx)
		return false, nil
	}

	if load, ok := loadShapes[op]; ok {
		return false, c.compileMemAccess(op, name, load, true)
	}
	if store, ok := storeShapes[op]; ok {
		return false, c.compileMemAccess(op, name, store, false)
	}
	if shape, ok := numericShapes[op]; ok {
		return false, c.compileNumeric(op, name, shape)
	}

	return false, errors.New(errors.PhaseCompile, errors.KindInvalidData).
		Opcode(name).
		Offset(c.offset()).
		Detail("unknown opcode").
		Build()
}

func (c *compiler) compileCall(name string) error {
	idx, err := wasm.ReadLEB128u(c.r)
	if err != nil {
		return c.truncated()
	}
	if idx < c.numImported {
		return errors.New(errors.PhaseCompile, errors.KindUnsupported).
			Opcode(name).
			Detail("call to imported function %d (import plumbing is host-side)", idx).
			Build()
	}
	defined := idx - c.numImported
	target, err := c.mod.FuncSignature(defined)
	if err != nil {
		return errors.New(errors.PhaseCompile, errors.KindOutOfBounds).
			Opcode(name).
			Cause(err).
			Build()
	}
	// Parameters pop in reverse declared order: top of stack is the last
	// parameter.
	for i := len(target.Params) - 1; i >= 0; i-- {
		if err := c.stack.popExpect(name, target.Params[i]); err != nil {
			return err
		}
	}
	if r, ok := target.Result(); ok {
		c.stack.push(r)
	}
	c.emit.op(wasm.OpCall)
	c.emit.u32(defined)
	return nil
}

func (c *compiler) compileLocal(op byte, name string) error {
	idx, err := wasm.ReadLEB128u(c.r)
	if err != nil {
		return c.truncated()
	}
	if idx >= uint32(len(c.locals)) {
		return errors.OutOfBounds(errors.PhaseCompile, []string{"local"}, int(idx), len(c.locals))
	}
	t := c.locals[idx]

	switch op {
	case wasm.OpLocalGet:
		c.stack.push(t)
	case wasm.OpLocalSet:
		if err := c.stack.popExpect(name, t); err != nil {
			return err
		}
	case wasm.OpLocalTee:
		top, err := c.stack.top(name)
		if err != nil {
			return err
		}
		if top != t {
			return errors.TypeMismatch(errors.PhaseCompile, name, t.String(), top.String())
		}
	}

	c.emit.opSized(op, t.Size())
	c.emit.u16(uint16(idx))
	return nil
}

// memShape describes one memory access opcode: the value type on the
// operand stack.
type memShape struct {
	valType wasm.ValType
}

var loadShapes = map[byte]memShape{
	wasm.OpI32Load:    {wasm.ValI32},
	wasm.OpI64Load:    {wasm.ValI64},
	wasm.OpF32Load:    {wasm.ValF32},
	wasm.OpF64Load:    {wasm.ValF64},
	wasm.OpI32Load8S:  {wasm.ValI32},
	wasm.OpI32Load8U:  {wasm.ValI32},
	wasm.OpI32Load16S: {wasm.ValI32},
	wasm.OpI32Load16U: {wasm.ValI32},
	wasm.OpI64Load8S:  {wasm.ValI64},
	wasm.OpI64Load8U:  {wasm.ValI64},
	wasm.OpI64Load16S: {wasm.ValI64},
	wasm.OpI64Load16U: {wasm.ValI64},
	wasm.OpI64Load32S: {wasm.ValI64},
	wasm.OpI64Load32U: {wasm.ValI64},
}

var storeShapes = map[byte]memShape{
	wasm.OpI32Store:   {wasm.ValI32},
	wasm.OpI64Store:   {wasm.ValI64},
	wasm.OpF32Store:   {wasm.ValF32},
	wasm.OpF64Store:   {wasm.ValF64},
	wasm.OpI32Store8:  {wasm.ValI32},
	wasm.OpI32Store16: {wasm.ValI32},
	wasm.OpI64Store8:  {wasm.ValI64},
	wasm.OpI64Store16: {wasm.ValI64},
	wasm.OpI64Store32: {wasm.ValI64},
}

// compileMemAccess handles the (align, offset) immediate pair; only the
// offset survives into the lowered stream, the align hint is dropped.
func (c *compiler) compileMemAccess(op byte, name string, shape memShape, isLoad bool) error {
	if _, err := wasm.ReadLEB128u(c.r); err != nil { // align
		return c.truncated()
	}
	offset, err := wasm.ReadLEB128u(c.r)
	if err != nil {
		return c.truncated()
	}

	if isLoad {
		if err := c.stack.popExpect(name, wasm.ValI32); err != nil {
			return err
		}
		c.stack.push(shape.valType)
	} else {
		if err := c.stack.popExpect(name, shape.valType); err != nil {
			return err
		}
		if err := c.stack.popExpect(name, wasm.ValI32); err != nil {
			return err
		}
	}

	c.emit.op(op)
	c.emit.u32(offset)
	return nil
}
