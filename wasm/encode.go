package wasm

import (
	"github.com/wippyai/wasm-engine/wasm/internal/binary"
)

// Encode serializes the module back to the binary format.
//
// The output is canonical (sections in spec order) and decodes to an
// equivalent module; it is not guaranteed to be byte-identical with the
// input the module was parsed from, since custom sections are dropped
// and LEB128 paddings are normalized.
func (m *Module) Encode() []byte {
	w := binary.NewWriter()
	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	if len(m.Types) > 0 {
		w.WriteSection(SectionType, m.encodeTypeSection())
	}
	if len(m.Imports) > 0 {
		w.WriteSection(SectionImport, m.encodeImportSection())
	}
	if len(m.Funcs) > 0 {
		w.WriteSection(SectionFunction, m.encodeFunctionSection())
	}
	if len(m.Tables) > 0 {
		w.WriteSection(SectionTable, m.encodeTableSection())
	}
	if len(m.Memories) > 0 {
		w.WriteSection(SectionMemory, m.encodeMemorySection())
	}
	if len(m.Globals) > 0 {
		w.WriteSection(SectionGlobal, m.encodeGlobalSection())
	}
	if len(m.Exports) > 0 {
		w.WriteSection(SectionExport, m.encodeExportSection())
	}
	if m.Start != nil {
		sw := binary.NewWriter()
		sw.WriteU32(*m.Start)
		w.WriteSection(SectionStart, sw.Bytes())
	}
	if len(m.Element) > 0 {
		w.WriteSection(SectionElement, m.Element)
	}
	if m.DataCount != nil {
		dw := binary.NewWriter()
		dw.WriteU32(*m.DataCount)
		w.WriteSection(SectionDataCount, dw.Bytes())
	}
	if len(m.Code) > 0 {
		w.WriteSection(SectionCode, m.encodeCodeSection())
	}
	if len(m.Data) > 0 {
		w.WriteSection(SectionData, m.Data)
	}

	return w.Bytes()
}

func (m *Module) encodeTypeSection() []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(m.Types)))
	for _, ft := range m.Types {
		w.Byte(FuncTypeByte)
		w.WriteU32(uint32(len(ft.Params)))
		for _, p := range ft.Params {
			w.Byte(byte(p))
		}
		w.WriteU32(uint32(len(ft.Results)))
		for _, r := range ft.Results {
			w.Byte(byte(r))
		}
	}
	return w.Bytes()
}

func encodeLimits(w *binary.Writer, lim Limits) {
	if lim.HasMax {
		w.Byte(LimitsHasMax)
		w.WriteU32(lim.Min)
		w.WriteU32(lim.Max)
	} else {
		w.Byte(LimitsNoMax)
		w.WriteU32(lim.Min)
	}
}

func encodeGlobalType(w *binary.Writer, gt GlobalType) {
	w.Byte(byte(gt.Type))
	if gt.Mutable {
		w.Byte(GlobalMut)
	} else {
		w.Byte(GlobalConst)
	}
}

func (m *Module) encodeImportSection() []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(m.Imports)))
	for _, imp := range m.Imports {
		w.WriteName(imp.Module)
		w.WriteName(imp.Field)
		w.Byte(imp.Kind)
		switch imp.Kind {
		case KindFunc:
			w.WriteU32(imp.TypeIndex)
		case KindTable:
			w.Byte(byte(imp.Table.Elem))
			encodeLimits(w, imp.Table.Limits)
		case KindMemory:
			encodeLimits(w, imp.Memory)
		case KindGlobal:
			encodeGlobalType(w, imp.Global)
		}
	}
	return w.Bytes()
}

func (m *Module) encodeFunctionSection() []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(m.Funcs)))
	for _, ti := range m.Funcs {
		w.WriteU32(ti)
	}
	return w.Bytes()
}

func (m *Module) encodeTableSection() []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(m.Tables)))
	for _, tt := range m.Tables {
		w.Byte(byte(tt.Elem))
		encodeLimits(w, tt.Limits)
	}
	return w.Bytes()
}

func (m *Module) encodeMemorySection() []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(m.Memories)))
	for _, lim := range m.Memories {
		encodeLimits(w, lim)
	}
	return w.Bytes()
}

func (m *Module) encodeGlobalSection() []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(m.Globals)))
	for _, gt := range m.Globals {
		encodeGlobalType(w, gt)
		// Initializers are not retained; emit a zero value of the
		// declared type so the section stays well-formed.
		switch gt.Type {
		case ValI64:
			w.Byte(OpI64Const)
			w.WriteS64(0)
		case ValF32:
			w.Byte(OpF32Const)
			w.WriteU32LE(0)
		case ValF64:
			w.Byte(OpF64Const)
			w.WriteU64LE(0)
		case ValFuncRef, ValExtern:
			w.Byte(OpRefNull)
			w.Byte(byte(gt.Type))
		default:
			w.Byte(OpI32Const)
			w.WriteS32(0)
		}
		w.Byte(OpEnd)
	}
	return w.Bytes()
}

func (m *Module) encodeExportSection() []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(m.Exports)))
	for _, e := range m.Exports {
		w.WriteName(e.Name)
		w.Byte(e.Kind)
		w.WriteU32(e.Index)
	}
	return w.Bytes()
}

func (m *Module) encodeCodeSection() []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(m.Code)))
	for _, body := range m.Code {
		w.WriteU32(uint32(len(body.Code)))
		w.WriteBytes(body.Code)
	}
	return w.Bytes()
}
