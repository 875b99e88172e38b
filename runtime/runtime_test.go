package runtime_test

import (
	stderrors "errors"
	"math"
	"sync"
	"testing"

	"github.com/wippyai/wasm-engine/errors"
	"github.com/wippyai/wasm-engine/runtime"
	"github.com/wippyai/wasm-engine/wasm"
)

// Modules used across the tests, assembled through the encoder.

func addModule() []byte {
	m := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
		},
		Funcs:   []uint32{0},
		Exports: []wasm.Export{{Name: "add", Kind: wasm.KindFunc, Index: 0}},
		Code: []wasm.FuncBody{{Code: []byte{
			0x00,       // no local runs
			0x20, 0x00, // local.get 0
			0x20, 0x01, // local.get 1
			0x6A, // i32.add
			0x0B, // end
		}}},
	}
	return m.Encode()
}

func divModule() []byte {
	m := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
		},
		Funcs:   []uint32{0},
		Exports: []wasm.Export{{Name: "div", Kind: wasm.KindFunc, Index: 0}},
		Code: []wasm.FuncBody{{Code: []byte{
			0x00,
			0x20, 0x00,
			0x20, 0x01,
			0x6D, // i32.div_s
			0x0B,
		}}},
	}
	return m.Encode()
}

// factModule recurses through if/else, which the lowerer rejects.
func factModule() []byte {
	m := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
		},
		Funcs:   []uint32{0},
		Exports: []wasm.Export{{Name: "fact", Kind: wasm.KindFunc, Index: 0}},
		Code: []wasm.FuncBody{{Code: []byte{
			0x00,
			0x20, 0x00, // local.get 0
			0x45,       // i32.eqz
			0x04, 0x7F, // if (result i32)
			0x41, 0x01, // i32.const 1
			0x05,       // else
			0x20, 0x00, // local.get 0
			0x20, 0x00, // local.get 0
			0x41, 0x01, // i32.const 1
			0x6B,       // i32.sub
			0x10, 0x00, // call 0
			0x6C, // i32.mul
			0x0B, // end (if)
			0x0B, // end (body)
		}}},
	}
	return m.Encode()
}

func load32Module() []byte {
	m := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
		},
		Funcs:    []uint32{0},
		Memories: []wasm.Limits{{Min: 1}},
		Exports:  []wasm.Export{{Name: "load32", Kind: wasm.KindFunc, Index: 0}},
		Code: []wasm.FuncBody{{Code: []byte{
			0x00,
			0x20, 0x00, // local.get 0
			0x28, 0x02, 0x00, // i32.load align=2 offset=0
			0x0B,
		}}},
	}
	return m.Encode()
}

func invSqrtModule() []byte {
	one := math.Float32bits(1)
	m := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValF32}, Results: []wasm.ValType{wasm.ValF32}},
		},
		Funcs:   []uint32{0},
		Exports: []wasm.Export{{Name: "inv_sqrt", Kind: wasm.KindFunc, Index: 0}},
		Code: []wasm.FuncBody{{Code: []byte{
			0x00,
			0x43, byte(one), byte(one >> 8), byte(one >> 16), byte(one >> 24), // f32.const 1.0
			0x20, 0x00, // local.get 0
			0x91, // f32.sqrt
			0x95, // f32.div
			0x0B,
		}}},
	}
	return m.Encode()
}

func newInstance(t *testing.T, bin []byte) *runtime.Instance {
	t.Helper()
	src, err := runtime.NewSource(bin)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	t.Cleanup(func() { src.Close() })
	inst := src.Instantiate(runtime.NewImportTable())
	t.Cleanup(func() { inst.Close() })
	return inst
}

func TestCallAdd(t *testing.T) {
	inst := newInstance(t, addModule())

	result, ok, err := inst.Call("add", runtime.I32(7), runtime.I32(35))
	if err != nil {
		t.Fatal(err)
	}
	if !ok || result.I32() != 42 {
		t.Errorf("add(7, 35) = %v (ok=%v), want 42", result, ok)
	}
}

func TestCallFactRejectedAtLowering(t *testing.T) {
	// Self-recursive factorial needs if/else; the engine reports it
	// unsupported on the first call, without trapping.
	inst := newInstance(t, factModule())

	_, _, err := inst.Call("fact", runtime.I32(10))
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseCompile, Kind: errors.KindUnsupported}) {
		t.Errorf("expected compile unsupported error, got %v", err)
	}
	if inst.IsTrapped() {
		t.Error("lowering failure must not set the trap flag")
	}

	// The error repeats deterministically.
	_, _, err2 := inst.Call("fact", runtime.I32(10))
	if err2 == nil || err2.Error() != err.Error() {
		t.Errorf("second call error differs: %v vs %v", err2, err)
	}
}

func TestCallDivTrapAndRestart(t *testing.T) {
	inst := newInstance(t, divModule())

	result, ok, err := inst.Call("div", runtime.I32(10), runtime.I32(3))
	if err != nil || !ok || result.I32() != 3 {
		t.Fatalf("div(10, 3) = %v (ok=%v, err=%v), want 3", result, ok, err)
	}

	// Divide by zero traps: no result, no Go error, flag set.
	_, ok, err = inst.Call("div", runtime.I32(10), runtime.I32(0))
	if err != nil {
		t.Fatalf("trap must not surface as an error: %v", err)
	}
	if ok {
		t.Error("trapped call must produce no result")
	}
	if !inst.IsTrapped() {
		t.Fatal("IsTrapped must be true after the trap")
	}

	// While trapped, calls return no result.
	_, ok, err = inst.Call("div", runtime.I32(10), runtime.I32(3))
	if err != nil || ok {
		t.Errorf("trapped instance returned ok=%v err=%v", ok, err)
	}

	// Restart recovers; the same call now succeeds as on a fresh
	// instance.
	inst.Restart()
	if inst.IsTrapped() {
		t.Fatal("Restart must clear the flag")
	}
	result, ok, err = inst.Call("div", runtime.I32(10), runtime.I32(3))
	if err != nil || !ok || result.I32() != 3 {
		t.Errorf("post-restart div(10, 3) = %v (ok=%v, err=%v)", result, ok, err)
	}
}

func TestCallLoad32Bounds(t *testing.T) {
	inst := newInstance(t, load32Module())

	result, ok, err := inst.Call("load32", runtime.I32(0))
	if err != nil || !ok || result.I32() != 0 {
		t.Errorf("load32(0) = %v (ok=%v, err=%v), want 0", result, ok, err)
	}

	// The last in-bounds 4-byte access in a 65536-byte memory starts
	// at 65532.
	result, ok, err = inst.Call("load32", runtime.I32(65532))
	if err != nil || !ok || result.I32() != 0 {
		t.Errorf("load32(65532) = %v (ok=%v, err=%v), want 0", result, ok, err)
	}

	_, ok, err = inst.Call("load32", runtime.I32(65533))
	if err != nil || ok || !inst.IsTrapped() {
		t.Errorf("load32(65533) must trap (ok=%v, err=%v, trapped=%v)", ok, err, inst.IsTrapped())
	}
}

func TestCallInvSqrt(t *testing.T) {
	inst := newInstance(t, invSqrtModule())

	result, ok, err := inst.Call("inv_sqrt", runtime.F32(47))
	if err != nil || !ok {
		t.Fatalf("inv_sqrt failed: ok=%v err=%v", ok, err)
	}

	want := float32(1 / math.Sqrt(47))
	got := result.F32()
	// Within 1 ULP.
	ulps := int32(math.Float32bits(got)) - int32(math.Float32bits(want))
	if ulps < -1 || ulps > 1 {
		t.Errorf("inv_sqrt(47) = %v, want within 1 ULP of %v", got, want)
	}
}

func TestCallHostErrors(t *testing.T) {
	inst := newInstance(t, addModule())

	_, _, err := inst.Call("missing")
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseHost, Kind: errors.KindNotFound}) {
		t.Errorf("unknown export: got %v", err)
	}

	_, _, err = inst.Call("add", runtime.I32(1))
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseHost, Kind: errors.KindArityMismatch}) {
		t.Errorf("wrong arity: got %v", err)
	}

	_, _, err = inst.Call("add", runtime.I32(1), runtime.F64(2))
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseHost, Kind: errors.KindTypeMismatch}) {
		t.Errorf("wrong type: got %v", err)
	}

	// None of these are traps.
	if inst.IsTrapped() {
		t.Error("host rejections must not set the trap flag")
	}
}

func TestCallNonFunctionExport(t *testing.T) {
	m := &wasm.Module{
		Memories: []wasm.Limits{{Min: 1}},
		Exports:  []wasm.Export{{Name: "mem", Kind: wasm.KindMemory, Index: 0}},
	}
	inst := newInstance(t, m.Encode())

	_, _, err := inst.Call("mem")
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseHost, Kind: errors.KindTypeMismatch}) {
		t.Errorf("expected host type_mismatch, got %v", err)
	}
}

func TestLoweringIdempotent(t *testing.T) {
	inst := newInstance(t, addModule())

	first, _, err := inst.Call("add", runtime.I32(2), runtime.I32(3))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, ok, err := inst.Call("add", runtime.I32(2), runtime.I32(3))
		if err != nil || !ok || again.I32() != first.I32() {
			t.Fatalf("call %d diverged: %v (ok=%v, err=%v)", i, again, ok, err)
		}
	}
}

func TestConcurrentFirstTouchLowering(t *testing.T) {
	// Many instances of one source racing to first-touch the same
	// function must all observe one coherent lowering.
	src, err := runtime.NewSource(addModule())
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	var wg sync.WaitGroup
	results := make([]int32, 16)
	for i := range results {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			inst := src.Instantiate(runtime.NewImportTable())
			defer inst.Close()
			r, ok, err := inst.Call("add", runtime.I32(int32(slot)), runtime.I32(1))
			if err != nil || !ok {
				return
			}
			results[slot] = r.I32()
		}(i)
	}
	wg.Wait()

	for i, r := range results {
		if r != int32(i)+1 {
			t.Errorf("goroutine %d: got %d, want %d", i, r, i+1)
		}
	}
}

func TestRestartEquivalence(t *testing.T) {
	// restart + re-call matches a fresh instance.
	src, err := runtime.NewSource(divModule())
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	tripped := src.Instantiate(runtime.NewImportTable())
	defer tripped.Close()
	_, _, _ = tripped.Call("div", runtime.I32(1), runtime.I32(0))
	tripped.Restart()

	fresh := src.Instantiate(runtime.NewImportTable())
	defer fresh.Close()

	a, okA, errA := tripped.Call("div", runtime.I32(100), runtime.I32(7))
	b, okB, errB := fresh.Call("div", runtime.I32(100), runtime.I32(7))
	if errA != nil || errB != nil || !okA || !okB || a.I32() != b.I32() {
		t.Errorf("restarted=%v fresh=%v", a, b)
	}
}

func TestGlobalsNotFound(t *testing.T) {
	inst := newInstance(t, addModule())

	if _, err := inst.GetGlobal("g"); !stderrors.Is(err, &errors.Error{Phase: errors.PhaseHost, Kind: errors.KindNotFound}) {
		t.Errorf("GetGlobal: %v", err)
	}
	if err := inst.SetGlobal("g", runtime.I32(1)); !stderrors.Is(err, &errors.Error{Phase: errors.PhaseHost, Kind: errors.KindNotFound}) {
		t.Errorf("SetGlobal: %v", err)
	}
}

func TestMemoryPointer(t *testing.T) {
	inst := newInstance(t, load32Module())

	b, err := inst.MemoryPointer(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != int(inst.MemorySize()) {
		t.Errorf("pointer at 0 spans %d bytes, memory is %d", len(b), inst.MemorySize())
	}

	// Writing through the pointer is visible to wasm code.
	b[100] = 0x2A
	result, ok, err := inst.Call("load32", runtime.I32(100))
	if err != nil || !ok || result.I32() != 0x2A {
		t.Errorf("load32 after host write = %v (ok=%v, err=%v)", result, ok, err)
	}

	if _, err := inst.MemoryPointer(inst.MemorySize() + 1); err == nil {
		t.Error("pointer past the end must fail")
	}
}

func TestSourceOutlivesInstances(t *testing.T) {
	src, err := runtime.NewSource(addModule())
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	// Instances of one source run independently of each other.
	a := src.Instantiate(runtime.NewImportTable())
	b := src.Instantiate(runtime.NewImportTable())
	defer a.Close()
	defer b.Close()

	ra, _, _ := a.Call("add", runtime.I32(1), runtime.I32(2))
	rb, _, _ := b.Call("add", runtime.I32(3), runtime.I32(4))
	if ra.I32() != 3 || rb.I32() != 7 {
		t.Errorf("instances interfere: %v, %v", ra, rb)
	}
}
