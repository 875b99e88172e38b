package engine

import (
	stderrors "errors"
	"testing"

	"github.com/wippyai/wasm-engine/errors"
	"github.com/wippyai/wasm-engine/wasm"
)

func compileErr(t *testing.T, mod *wasm.Module) *errors.Error {
	t.Helper()
	_, err := Compile(mod, 0)
	if err == nil {
		t.Fatal("expected compile error")
	}
	var e *errors.Error
	if !stderrors.As(err, &e) {
		t.Fatalf("expected structured error, got %T: %v", err, err)
	}
	return e
}

func TestCompileAdd(t *testing.T) {
	fn, err := Compile(i32BinOp(wasm.OpI32Add), 0)
	if err != nil {
		t.Fatal(err)
	}

	if fn.ParamCount != 2 || fn.ResultSize != 4 {
		t.Errorf("ParamCount=%d ResultSize=%d", fn.ParamCount, fn.ResultSize)
	}
	if len(fn.LocalSizes) != 2 || fn.LocalSizes[0] != 4 || fn.LocalSizes[1] != 4 {
		t.Errorf("LocalSizes = %v", fn.LocalSizes)
	}

	want := []uint16{
		uint16(wasm.OpLocalGet) | 4<<8, 0,
		uint16(wasm.OpLocalGet) | 4<<8, 1,
		uint16(wasm.OpI32Add),
	}
	if len(fn.Code) != len(want) {
		t.Fatalf("Code = %v, want %v", fn.Code, want)
	}
	for i, w := range want {
		if fn.Code[i] != w {
			t.Errorf("Code[%d] = %#x, want %#x", i, fn.Code[i], w)
		}
	}
}

func TestCompileConstants(t *testing.T) {
	mod := singleFuncModule(
		wasm.FuncType{Results: []wasm.ValType{wasm.ValI64}},
		bodyBytes(nil, ins(
			b(wasm.OpI32Const), leb(-2),
			b(wasm.OpDrop),
			b(wasm.OpI64Const), []byte(wasm.EncodeLEB128s64(0x1_0000_0001)),
			b(wasm.OpEnd))...),
	)
	fn, err := Compile(mod, 0)
	if err != nil {
		t.Fatal(err)
	}

	want := []uint16{
		uint16(wasm.OpI32Const), 0xFFFE, 0xFFFF, // -2 little-endian words
		uint16(wasm.OpDrop) | 4<<8,
		uint16(wasm.OpI64Const), 0x0001, 0x0000, 0x0001, 0x0000,
	}
	if len(fn.Code) != len(want) {
		t.Fatalf("Code = %#v, want %#v", fn.Code, want)
	}
	for i, w := range want {
		if fn.Code[i] != w {
			t.Errorf("Code[%d] = %#x, want %#x", i, fn.Code[i], w)
		}
	}
}

func TestCompileDropCapturesWidth(t *testing.T) {
	mod := singleFuncModule(sigVoid, bodyBytes(nil, ins(
		b(wasm.OpF64Const), make([]byte, 8),
		b(wasm.OpDrop),
		b(wasm.OpEnd))...))
	fn, err := Compile(mod, 0)
	if err != nil {
		t.Fatal(err)
	}
	dropWord := fn.Code[len(fn.Code)-1]
	if byte(dropWord) != wasm.OpDrop || dropWord>>8 != 8 {
		t.Errorf("drop word = %#x, want opcode with size 8 in high byte", dropWord)
	}
}

func TestCompileLocalsExpansion(t *testing.T) {
	locals := []wasm.ValType{wasm.ValI64, wasm.ValI64, wasm.ValF32}
	mod := singleFuncModule(
		wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}},
		bodyBytes(locals, wasm.OpEnd),
	)
	fn, err := Compile(mod, 0)
	if err != nil {
		t.Fatal(err)
	}
	wantSizes := []uint32{4, 8, 8, 4}
	if len(fn.LocalSizes) != len(wantSizes) {
		t.Fatalf("LocalSizes = %v", fn.LocalSizes)
	}
	for i, w := range wantSizes {
		if fn.LocalSizes[i] != w {
			t.Errorf("LocalSizes[%d] = %d, want %d", i, fn.LocalSizes[i], w)
		}
	}
	if fn.ParamCount != 1 {
		t.Errorf("ParamCount = %d", fn.ParamCount)
	}
}

func TestCompileLocalIndexOutOfRange(t *testing.T) {
	mod := singleFuncModule(sigVoid, bodyBytes(nil, ins(
		b(wasm.OpLocalGet), lebU(3),
		b(wasm.OpDrop),
		b(wasm.OpEnd))...))
	e := compileErr(t, mod)
	if e.Kind != errors.KindOutOfBounds {
		t.Errorf("kind = %v, want out_of_bounds", e.Kind)
	}
}

func TestCompileLocalSetTypeMismatch(t *testing.T) {
	mod := singleFuncModule(sigVoid, bodyBytes([]wasm.ValType{wasm.ValI64}, ins(
		b(wasm.OpI32Const), leb(1),
		b(wasm.OpLocalSet), lebU(0),
		b(wasm.OpEnd))...))
	e := compileErr(t, mod)
	if e.Kind != errors.KindTypeMismatch {
		t.Errorf("kind = %v, want type_mismatch", e.Kind)
	}
}

func TestCompileOperandTypeMismatch(t *testing.T) {
	mod := singleFuncModule(
		wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}},
		bodyBytes(nil, ins(
			b(wasm.OpI32Const), leb(1),
			b(wasm.OpF32Const), make([]byte, 4),
			b(wasm.OpI32Add),
			b(wasm.OpEnd))...))
	e := compileErr(t, mod)
	if e.Kind != errors.KindTypeMismatch {
		t.Errorf("kind = %v, want type_mismatch", e.Kind)
	}
}

func TestCompileEmptyStackOperand(t *testing.T) {
	mod := singleFuncModule(
		wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}},
		bodyBytes(nil, ins(
			b(wasm.OpI32Const), leb(1),
			b(wasm.OpI32Add),
			b(wasm.OpEnd))...))
	e := compileErr(t, mod)
	if e.Kind != errors.KindStackEmpty {
		t.Errorf("kind = %v, want stack_empty", e.Kind)
	}
}

func TestCompileEndStackMismatch(t *testing.T) {
	// A void function leaving a value on the stack.
	mod := singleFuncModule(sigVoid, bodyBytes(nil, ins(
		b(wasm.OpI32Const), leb(1),
		b(wasm.OpEnd))...))
	e := compileErr(t, mod)
	if e.Kind != errors.KindTypeMismatch {
		t.Errorf("kind = %v, want type_mismatch", e.Kind)
	}
}

func TestCompileTrailingAfterReturnIgnored(t *testing.T) {
	// The garbage after return would never type-check; it must be
	// skipped, not verified.
	mod := singleFuncModule(
		wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}},
		bodyBytes(nil, ins(
			b(wasm.OpI32Const), leb(7),
			b(wasm.OpReturn),
			b(wasm.OpI32Add, wasm.OpI32Add, wasm.OpI32Add),
			b(wasm.OpEnd))...))
	fn, err := Compile(mod, 0)
	if err != nil {
		t.Fatal(err)
	}
	last := fn.Code[len(fn.Code)-1]
	if byte(last) != wasm.OpReturn {
		t.Errorf("last word = %#x, want return", last)
	}
}

func TestCompileReturnResultTypeChecked(t *testing.T) {
	mod := singleFuncModule(
		wasm.FuncType{Results: []wasm.ValType{wasm.ValI64}},
		bodyBytes(nil, ins(
			b(wasm.OpI32Const), leb(7),
			b(wasm.OpReturn),
			b(wasm.OpEnd))...))
	e := compileErr(t, mod)
	if e.Kind != errors.KindTypeMismatch {
		t.Errorf("kind = %v, want type_mismatch", e.Kind)
	}
}

func TestCompileUnsupportedOpcodes(t *testing.T) {
	tests := []struct {
		name string
		code []byte
	}{
		{"block", ins(b(wasm.OpBlock, 0x40), b(wasm.OpEnd), b(wasm.OpEnd))},
		{"loop", ins(b(wasm.OpLoop, 0x40), b(wasm.OpEnd), b(wasm.OpEnd))},
		{"if", ins(b(wasm.OpI32Const), leb(1), b(wasm.OpIf, 0x40), b(wasm.OpEnd), b(wasm.OpEnd))},
		{"br", ins(b(wasm.OpBr), lebU(0), b(wasm.OpEnd))},
		{"br_if", ins(b(wasm.OpI32Const), leb(1), b(wasm.OpBrIf), lebU(0), b(wasm.OpEnd))},
		{"br_table", ins(b(wasm.OpBrTable), b(wasm.OpEnd))},
		{"call_indirect", ins(b(wasm.OpCallIndirect), b(wasm.OpEnd))},
		{"select", ins(b(wasm.OpSelect), b(wasm.OpEnd))},
		{"select_t", ins(b(wasm.OpSelectType), b(wasm.OpEnd))},
		{"global.get", ins(b(wasm.OpGlobalGet), lebU(0), b(wasm.OpEnd))},
		{"global.set", ins(b(wasm.OpGlobalSet), lebU(0), b(wasm.OpEnd))},
		{"table.get", ins(b(wasm.OpTableGet), lebU(0), b(wasm.OpEnd))},
		{"table.set", ins(b(wasm.OpTableSet), lebU(0), b(wasm.OpEnd))},
		{"misc prefix", ins(b(wasm.OpPrefixMisc), lebU(0), b(wasm.OpEnd))},
		{"simd prefix", ins(b(wasm.OpPrefixSIMD), lebU(15), b(wasm.OpEnd))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod := singleFuncModule(sigVoid, bodyBytes(nil, tt.code...))
			e := compileErr(t, mod)
			if e.Kind != errors.KindUnsupported {
				t.Errorf("kind = %v, want unsupported", e.Kind)
			}
		})
	}
}

func TestCompileErrorDeterministic(t *testing.T) {
	mod := singleFuncModule(sigVoid, bodyBytes(nil, ins(b(wasm.OpSelect), b(wasm.OpEnd))...))
	_, err1 := Compile(mod, 0)
	_, err2 := Compile(mod, 0)
	if err1 == nil || err2 == nil || err1.Error() != err2.Error() {
		t.Errorf("errors differ: %v vs %v", err1, err2)
	}
}

func TestCompileV128Rejected(t *testing.T) {
	t.Run("signature", func(t *testing.T) {
		mod := singleFuncModule(
			wasm.FuncType{Params: []wasm.ValType{wasm.ValV128}},
			bodyBytes(nil, wasm.OpEnd))
		e := compileErr(t, mod)
		if e.Kind != errors.KindUnsupported {
			t.Errorf("kind = %v", e.Kind)
		}
	})
	t.Run("local", func(t *testing.T) {
		mod := singleFuncModule(sigVoid, bodyBytes([]wasm.ValType{wasm.ValV128}, wasm.OpEnd))
		e := compileErr(t, mod)
		if e.Kind != errors.KindUnsupported {
			t.Errorf("kind = %v", e.Kind)
		}
	})
}

func TestCompileReinterpretEmitsNothing(t *testing.T) {
	mod := singleFuncModule(
		wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValF32}},
		bodyBytes(nil, wasm.OpLocalGet, 0, wasm.OpF32ReinterpretI32, wasm.OpEnd))
	fn, err := Compile(mod, 0)
	if err != nil {
		t.Fatal(err)
	}
	// Only the local.get word and its index survive.
	if len(fn.Code) != 2 {
		t.Errorf("Code = %#v, want just the local.get", fn.Code)
	}
}

func TestCompileMemAccessKeepsOffset(t *testing.T) {
	mod := singleFuncModule(
		wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
		bodyBytes(nil, ins(
			b(wasm.OpLocalGet), lebU(0),
			b(wasm.OpI32Load), lebU(2) /* align */, lebU(1000), /* offset */
			b(wasm.OpEnd))...))
	fn, err := Compile(mod, 0)
	if err != nil {
		t.Fatal(err)
	}
	// words: local.get, idx, i32.load, offset lo, offset hi
	if byte(fn.Code[2]) != wasm.OpI32Load {
		t.Fatalf("Code = %#v", fn.Code)
	}
	if got := readU32(fn.Code, 3); got != 1000 {
		t.Errorf("offset = %d, want 1000", got)
	}
}

func TestCompileStoreKeepsOffset(t *testing.T) {
	mod := singleFuncModule(
		wasm.FuncType{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}},
		bodyBytes(nil, ins(
			b(wasm.OpLocalGet), lebU(0),
			b(wasm.OpLocalGet), lebU(1),
			b(wasm.OpI32Store), lebU(2), lebU(64),
			b(wasm.OpEnd))...))
	fn, err := Compile(mod, 0)
	if err != nil {
		t.Fatal(err)
	}
	n := len(fn.Code)
	if byte(fn.Code[n-3]) != wasm.OpI32Store {
		t.Fatalf("Code = %#v", fn.Code)
	}
	if got := readU32(fn.Code, n-2); got != 64 {
		t.Errorf("offset = %d, want 64", got)
	}
}

func TestCompileCall(t *testing.T) {
	// fn1 calls fn0(i32, i64) -> i32 with arguments in declared order.
	mod := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32, wasm.ValI64}, Results: []wasm.ValType{wasm.ValI32}},
			{Results: []wasm.ValType{wasm.ValI32}},
		},
		Funcs: []uint32{0, 1},
		Code: []wasm.FuncBody{
			{TypeIndex: 0, Code: bodyBytes(nil, wasm.OpLocalGet, 0, wasm.OpEnd)},
			{TypeIndex: 1, Code: bodyBytes(nil, ins(
				b(wasm.OpI32Const), leb(5),
				b(wasm.OpI64Const), []byte(wasm.EncodeLEB128s64(9)),
				b(wasm.OpCall), lebU(0),
				b(wasm.OpEnd))...)},
		},
	}
	fn, err := Compile(mod, 1)
	if err != nil {
		t.Fatal(err)
	}
	// The call word carries the defined function index.
	n := len(fn.Code)
	if byte(fn.Code[n-3]) != wasm.OpCall || readU32(fn.Code, n-2) != 0 {
		t.Errorf("call words = %#v", fn.Code[n-3:])
	}
}

func TestCompileCallArgOrderMismatch(t *testing.T) {
	// Arguments pushed in the wrong order must fail the reverse-order
	// pop check.
	mod := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32, wasm.ValI64}},
			{},
		},
		Funcs: []uint32{0, 1},
		Code: []wasm.FuncBody{
			{TypeIndex: 0, Code: bodyBytes(nil, wasm.OpEnd)},
			{TypeIndex: 1, Code: bodyBytes(nil, ins(
				b(wasm.OpI64Const), []byte(wasm.EncodeLEB128s64(9)),
				b(wasm.OpI32Const), leb(5),
				b(wasm.OpCall), lebU(0),
				b(wasm.OpEnd))...)},
		},
	}
	if _, err := Compile(mod, 1); err == nil {
		t.Error("expected type mismatch on reversed call arguments")
	}
}

func TestCompileCallToImportUnsupported(t *testing.T) {
	mod := &wasm.Module{
		Types: []wasm.FuncType{{}},
		Imports: []wasm.Import{
			{Module: "env", Field: "host", Kind: wasm.KindFunc, TypeIndex: 0},
		},
		Funcs: []uint32{0},
		Code: []wasm.FuncBody{
			{TypeIndex: 0, Code: bodyBytes(nil, ins(b(wasm.OpCall), lebU(0), b(wasm.OpEnd))...)},
		},
	}
	e := compileErr(t, mod)
	if e.Kind != errors.KindUnsupported {
		t.Errorf("kind = %v, want unsupported", e.Kind)
	}
}

func TestCompileCallIndexOutOfRange(t *testing.T) {
	mod := singleFuncModule(sigVoid, bodyBytes(nil, ins(
		b(wasm.OpCall), lebU(9),
		b(wasm.OpEnd))...))
	e := compileErr(t, mod)
	if e.Kind != errors.KindOutOfBounds {
		t.Errorf("kind = %v, want out_of_bounds", e.Kind)
	}
}

func TestCompileUnknownOpcode(t *testing.T) {
	mod := singleFuncModule(sigVoid, bodyBytes(nil, 0x27, wasm.OpEnd))
	e := compileErr(t, mod)
	if e.Kind != errors.KindInvalidData {
		t.Errorf("kind = %v, want invalid_data", e.Kind)
	}
}

func TestCompileTruncatedBody(t *testing.T) {
	// Missing the terminating end.
	mod := singleFuncModule(sigVoid, bodyBytes(nil, wasm.OpNop))
	e := compileErr(t, mod)
	if e.Kind != errors.KindTruncated {
		t.Errorf("kind = %v, want truncated", e.Kind)
	}
}
