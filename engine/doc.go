// Package engine implements the execution half of the pipeline: the
// type-directed validator/lowerer and the stack-machine interpreter.
//
// # Lowering
//
// Compile turns one raw function body into a CompiledFunc: a flat
// vector of 16-bit words with fixed-width immediates, pre-resolved
// local indices and explicit operand sizes. The pass checks Wasm's
// static type rules as it goes, so a CompiledFunc needs no further
// validation at run time. Lowering is invoked lazily, per function, by
// whatever implements Program; unused functions are never validated.
//
// Word layout: the low byte of an opcode word is the wasm opcode, the
// high byte carries an opcode-specific byte (the operand size for
// drop and local.get/set/tee). Immediates follow as little-endian
// packed 16-bit words. This keeps the interpreter's fetch a single
// indexed load.
//
// Modules that use control flow (block, loop, if, branches),
// call_indirect, select, globals, tables or the 0xFC/0xFD prefixes
// fail to lower with an unsupported-feature error.
//
// # Execution
//
// Instance holds the per-instance state: a byte-addressed evaluation
// stack, a locals stack of fixed 8-byte slots (local i of a frame is
// slot frame[-i-1], counting from the top), a page-grown linear
// memory, a call stack and the trapped flag.
//
// A trap empties all three stacks, sets the flag and ends the host
// call with no result; Restart is the only way back. Numeric semantics
// are bit-exact to the Wasm spec: wrapping integer arithmetic, div/rem
// trap rules, masked shifts, NaN-propagating min/max with signed-zero
// ordering, and trapping float-to-integer truncation.
//
// An Instance is single-threaded; the one cross-instance mutation,
// lazy lowering, is the Program implementation's responsibility to
// serialize.
package engine
