// Package runtime provides the host-facing API of the engine.
//
// # Quick start
//
//	src, err := runtime.NewSource(wasmBytes)
//	if err != nil {
//	    log.Fatal(err) // decode failure, fatal for the whole module
//	}
//	defer src.Close()
//
//	inst := src.Instantiate(runtime.NewImportTable())
//	defer inst.Close()
//
//	result, ok, err := inst.Call("add", runtime.I32(7), runtime.I32(35))
//	if err != nil {
//	    log.Fatal(err) // host rejection or lowering failure
//	}
//	if ok {
//	    fmt.Println(result.I32()) // 42
//	}
//
// # Error domains
//
// Static errors are deterministic and permanent for a given input:
// decode failures from NewSource, lowering failures from the first
// Call that touches the offending function. Traps are runtime faults
// (divide by zero, out-of-bounds access, unreachable); they return no
// result and no Go error, empty all stacks, and flip IsTrapped until
// Restart. Host-side rejections (unknown export, wrong arity or
// argument types) are plain errors that never set the trap flag.
//
// # Lifetimes and sharing
//
// A Source is immutable to the host and may back many instances; lazy
// per-function lowering is internally synchronized, so instances on
// different goroutines are fine. An Instance is confined to one
// goroutine and must be destroyed before its Source.
package runtime
