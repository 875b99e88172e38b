// Package wasm provides WebAssembly binary format parsing and encoding.
//
// The package implements the decoder half of the engine pipeline: it
// splits a binary module into its canonical sections, parses the type,
// import, function, table, memory, global, export and start sections
// into the data model, and stores code-section bodies verbatim for the
// lowerer. Element and data payloads are retained uninterpreted so a
// parsed module re-encodes.
//
// # Parsing
//
//	data, _ := os.ReadFile("module.wasm")
//	module, err := wasm.ParseModule(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// No function-body validation happens at decode time; that is the job
// of the engine package, which validates and lowers each body on first
// use.
//
// # Encoding
//
// Encode a module back to binary:
//
//	encoded := module.Encode()
//
// Round-trip parsing and encoding preserves module semantics:
//
//	original, _ := wasm.ParseModule(data)
//	roundtrip, _ := wasm.ParseModule(original.Encode())
//	// original and roundtrip are equivalent
//
// # Restrictions
//
// The decoder accepts the WebAssembly 1.0 subset the engine executes:
// single-result signatures (multi-result is rejected), no GC or
// exception-handling types, and the section set custom through
// datacount. Unknown section ids and duplicate non-custom sections are
// errors.
package wasm
