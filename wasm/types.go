package wasm

import "fmt"

// ValType is a WebAssembly value type tag.
type ValType byte

// Valid reports whether the byte is a known value type encoding.
func (v ValType) Valid() bool {
	switch v {
	case ValI32, ValI64, ValF32, ValF64, ValV128, ValFuncRef, ValExtern:
		return true
	}
	return false
}

// Size returns the operand storage size in bytes.
func (v ValType) Size() uint32 {
	switch v {
	case ValI32, ValF32, ValFuncRef, ValExtern:
		return 4
	case ValI64, ValF64:
		return 8
	case ValV128:
		return 16
	}
	return 0
}

// IsRef reports whether the type is a reference type.
func (v ValType) IsRef() bool {
	return v == ValFuncRef || v == ValExtern
}

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValV128:
		return "v128"
	case ValFuncRef:
		return "funcref"
	case ValExtern:
		return "externref"
	}
	return fmt.Sprintf("valtype(0x%02X)", byte(v))
}

// FuncType is a function signature: parameter types plus at most one
// result type. Multi-result signatures are rejected at decode time.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Result returns the single result type, if the signature declares one.
func (ft *FuncType) Result() (ValType, bool) {
	if len(ft.Results) == 0 {
		return 0, false
	}
	return ft.Results[0], true
}

func (ft *FuncType) String() string {
	s := "("
	for i, p := range ft.Params {
		if i > 0 {
			s += ", "
		}
		s += p.String()
	}
	s += ")"
	if r, ok := ft.Result(); ok {
		s += " -> " + r.String()
	}
	return s
}

// Equal reports structural signature equality.
func (ft *FuncType) Equal(other *FuncType) bool {
	if len(ft.Params) != len(other.Params) || len(ft.Results) != len(other.Results) {
		return false
	}
	for i, p := range ft.Params {
		if other.Params[i] != p {
			return false
		}
	}
	for i, r := range ft.Results {
		if other.Results[i] != r {
			return false
		}
	}
	return true
}

// Limits bounds a table or memory. Max is meaningful only when HasMax.
type Limits struct {
	Min    uint32
	Max    uint32
	HasMax bool
}

// TableType describes a table: element reference type plus limits.
type TableType struct {
	Elem   ValType
	Limits Limits
}

// GlobalType describes a global: value type plus mutability.
type GlobalType struct {
	Type    ValType
	Mutable bool
}

// Import is one required import, keyed by (Module, Field).
type Import struct {
	Module string
	Field  string
	Kind   byte

	// Kind-specific payload; exactly one is meaningful.
	TypeIndex uint32     // KindFunc
	Table     TableType  // KindTable
	Memory    Limits     // KindMemory
	Global    GlobalType // KindGlobal
}

// Export names an entry in one of the four index spaces.
type Export struct {
	Name  string
	Kind  byte
	Index uint32
}

// FuncBody is a raw function body: the type index from the function
// section plus the verbatim code entry (local declarations prelude
// followed by the instruction sequence).
type FuncBody struct {
	TypeIndex uint32
	Code      []byte
}

// Module is a decoded WebAssembly module. Section payloads the engine
// does not interpret (element, data) are retained verbatim so the
// module re-encodes.
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []uint32 // type index per defined function
	Tables   []TableType
	Memories []Limits
	Globals  []GlobalType
	Exports  []Export
	Start    *uint32
	Code     []FuncBody

	Element   []byte // element section payload, uninterpreted
	Data      []byte // data section payload, uninterpreted
	DataCount *uint32

	exportIndex map[string]int
}

// ExportNamed returns the export with the given name.
func (m *Module) ExportNamed(name string) (Export, bool) {
	i, ok := m.exportIndex[name]
	if !ok {
		return Export{}, false
	}
	return m.Exports[i], true
}

// StartName returns the export name of the start function, when the
// start index is also exported as a function.
func (m *Module) StartName() (string, bool) {
	if m.Start == nil {
		return "", false
	}
	for _, e := range m.Exports {
		if e.Kind == KindFunc && e.Index == *m.Start {
			return e.Name, true
		}
	}
	return "", false
}

// NumImportedFuncs counts function imports; defined function index space
// begins after them.
func (m *Module) NumImportedFuncs() uint32 {
	return m.numImported(KindFunc)
}

// NumImportedTables counts table imports.
func (m *Module) NumImportedTables() uint32 {
	return m.numImported(KindTable)
}

// NumImportedMemories counts memory imports.
func (m *Module) NumImportedMemories() uint32 {
	return m.numImported(KindMemory)
}

// NumImportedGlobals counts global imports.
func (m *Module) NumImportedGlobals() uint32 {
	return m.numImported(KindGlobal)
}

func (m *Module) numImported(kind byte) uint32 {
	var n uint32
	for _, imp := range m.Imports {
		if imp.Kind == kind {
			n++
		}
	}
	return n
}

// FuncSignature resolves the signature of a defined function by its
// position in the code section.
func (m *Module) FuncSignature(fnIndex uint32) (*FuncType, error) {
	if fnIndex >= uint32(len(m.Funcs)) {
		return nil, fmt.Errorf("function index %d out of range (%d defined)", fnIndex, len(m.Funcs))
	}
	ti := m.Funcs[fnIndex]
	if ti >= uint32(len(m.Types)) {
		return nil, fmt.Errorf("type index %d out of range (%d types)", ti, len(m.Types))
	}
	return &m.Types[ti], nil
}
