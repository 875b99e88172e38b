package wasm

import (
	"bytes"
	stderrors "errors"
	"io"

	"github.com/wippyai/wasm-engine/errors"
	"github.com/wippyai/wasm-engine/wasm/internal/binary"
)

// ParseModule parses a WebAssembly binary module.
//
// Decode failures are fatal for the whole module; no partial result is
// returned. Function bodies are stored verbatim and not validated here.
func ParseModule(data []byte) (*Module, error) {
	r := binary.NewReader(bytes.NewReader(data))

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, errors.Truncated(errors.PhaseDecode, "header")
	}
	if magic != Magic {
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidMagic).
			Value(magic).
			Detail("expected \\0asm").
			Build()
	}

	// The version field must be present but its value is not enforced.
	if _, err := r.ReadU32LE(); err != nil {
		return nil, errors.Truncated(errors.PhaseDecode, "header", "version")
	}

	m := &Module{exportIndex: make(map[string]int)}
	seen := make(map[byte]bool)

	for {
		sectionID, err := r.ReadByte()
		if err != nil {
			if stderrors.Is(err, io.EOF) {
				break
			}
			return nil, errors.Decode("section header", err)
		}

		if sectionID > SectionDataCount {
			return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Path("section header").
				Offset(r.Position()).
				Detail("unknown section id %d", sectionID).
				Build()
		}
		if sectionID != SectionCustom {
			if seen[sectionID] {
				return nil, errors.Duplicate([]string{SectionName(sectionID)}, "section appears twice")
			}
			seen[sectionID] = true
		}

		sectionSize, err := r.ReadU32()
		if err != nil {
			return nil, errors.Decode("section size", err)
		}
		payload, err := r.ReadBytes(int(sectionSize))
		if err != nil {
			return nil, errors.Truncated(errors.PhaseDecode, SectionName(sectionID))
		}

		sr := binary.NewBytesReader(payload)

		switch sectionID {
		case SectionCustom:
			// Skipped; the payload (name + bytes) carries no engine semantics.
		case SectionType:
			err = parseTypeSection(sr, m)
		case SectionImport:
			err = parseImportSection(sr, m)
		case SectionFunction:
			err = parseFunctionSection(sr, m)
		case SectionTable:
			err = parseTableSection(sr, m)
		case SectionMemory:
			err = parseMemorySection(sr, m)
		case SectionGlobal:
			err = parseGlobalSection(sr, m)
		case SectionExport:
			err = parseExportSection(sr, m)
		case SectionStart:
			err = parseStartSection(sr, m)
		case SectionElement:
			m.Element = payload
		case SectionCode:
			err = parseCodeSection(sr, m)
		case SectionData:
			m.Data = payload
		case SectionDataCount:
			var count uint32
			if count, err = sr.ReadU32(); err == nil {
				m.DataCount = &count
			}
		}
		if err != nil {
			var e *errors.Error
			if stderrors.As(err, &e) {
				return nil, err
			}
			return nil, errors.Decode(SectionName(sectionID), err)
		}

		// A section whose entries stop short of its declared size is
		// malformed even when every entry parsed.
		switch sectionID {
		case SectionCustom, SectionElement, SectionData:
		default:
			if sr.Len() != 0 {
				return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
					Path(SectionName(sectionID)).
					Detail("%d trailing bytes after last entry", sr.Len()).
					Build()
			}
		}
	}

	if len(m.Funcs) != len(m.Code) {
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Path("code").
			Detail("function section declares %d bodies, code section has %d", len(m.Funcs), len(m.Code)).
			Build()
	}
	// Bind bodies to their signatures here rather than while parsing:
	// section order is only loosely enforced, so the function section may
	// not have been seen yet when the code section streams in.
	for i := range m.Code {
		m.Code[i].TypeIndex = m.Funcs[i]
		if m.Funcs[i] >= uint32(len(m.Types)) {
			return nil, errors.OutOfBounds(errors.PhaseDecode, []string{"function"}, int(m.Funcs[i]), len(m.Types))
		}
	}

	// Cross-section checks (export/start index bounds, memory limits)
	// run once everything is in place.
	if err := m.Validate(); err != nil {
		return nil, err
	}

	return m, nil
}

func parseValType(r *binary.Reader) (ValType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	vt := ValType(b)
	if !vt.Valid() {
		return 0, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Offset(r.Position()).
			Detail("invalid value type 0x%02X", b).
			Build()
	}
	return vt, nil
}

func parseLimits(r *binary.Reader) (Limits, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	if flag != LimitsNoMax && flag != LimitsHasMax {
		return Limits{}, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Detail("invalid limits flag 0x%02X", flag).
			Build()
	}
	var lim Limits
	if lim.Min, err = r.ReadU32(); err != nil {
		return Limits{}, err
	}
	if flag == LimitsHasMax {
		lim.HasMax = true
		if lim.Max, err = r.ReadU32(); err != nil {
			return Limits{}, err
		}
	}
	return lim, nil
}

func parseTypeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Types = make([]FuncType, 0, count)
	for i := uint32(0); i < count; i++ {
		tag, err := r.ReadByte()
		if err != nil {
			return err
		}
		if tag != FuncTypeByte {
			return errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Path("type").
				Detail("signature %d: expected 0x60 tag, got 0x%02X", i, tag).
				Build()
		}
		var ft FuncType
		np, err := r.ReadU32()
		if err != nil {
			return err
		}
		for j := uint32(0); j < np; j++ {
			vt, err := parseValType(r)
			if err != nil {
				return err
			}
			ft.Params = append(ft.Params, vt)
		}
		nr, err := r.ReadU32()
		if err != nil {
			return err
		}
		if nr > 1 {
			return errors.Unsupported(errors.PhaseDecode, "multi-result function signatures")
		}
		for j := uint32(0); j < nr; j++ {
			vt, err := parseValType(r)
			if err != nil {
				return err
			}
			ft.Results = append(ft.Results, vt)
		}
		m.Types = append(m.Types, ft)
	}
	return nil
}

func parseImportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	type key struct{ module, field string }
	seen := make(map[key]bool, count)
	for i := uint32(0); i < count; i++ {
		var imp Import
		if imp.Module, err = r.ReadName(); err != nil {
			return err
		}
		if imp.Field, err = r.ReadName(); err != nil {
			return err
		}
		k := key{imp.Module, imp.Field}
		if seen[k] {
			return errors.Duplicate([]string{"import", imp.Module, imp.Field}, "import key appears twice")
		}
		seen[k] = true

		if imp.Kind, err = r.ReadByte(); err != nil {
			return err
		}
		switch imp.Kind {
		case KindFunc:
			if imp.TypeIndex, err = r.ReadU32(); err != nil {
				return err
			}
		case KindTable:
			if imp.Table, err = parseTableType(r); err != nil {
				return err
			}
		case KindMemory:
			if imp.Memory, err = parseLimits(r); err != nil {
				return err
			}
		case KindGlobal:
			if imp.Global, err = parseGlobalType(r); err != nil {
				return err
			}
		default:
			return errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Path("import", imp.Module, imp.Field).
				Detail("invalid import kind %d", imp.Kind).
				Build()
		}
		m.Imports = append(m.Imports, imp)
	}
	return nil
}

func parseFunctionSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Funcs = make([]uint32, count)
	for i := range m.Funcs {
		if m.Funcs[i], err = r.ReadU32(); err != nil {
			return err
		}
	}
	return nil
}

func parseTableType(r *binary.Reader) (TableType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return TableType{}, err
	}
	elem := ValType(b)
	if !elem.IsRef() {
		return TableType{}, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Path("table").
			Detail("element type 0x%02X is not a reference type", b).
			Build()
	}
	lim, err := parseLimits(r)
	if err != nil {
		return TableType{}, err
	}
	return TableType{Elem: elem, Limits: lim}, nil
}

func parseTableSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		tt, err := parseTableType(r)
		if err != nil {
			return err
		}
		m.Tables = append(m.Tables, tt)
	}
	return nil
}

func parseMemorySection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		lim, err := parseLimits(r)
		if err != nil {
			return err
		}
		m.Memories = append(m.Memories, lim)
	}
	return nil
}

func parseGlobalType(r *binary.Reader) (GlobalType, error) {
	vt, err := parseValType(r)
	if err != nil {
		return GlobalType{}, err
	}
	mut, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	if mut != GlobalConst && mut != GlobalMut {
		return GlobalType{}, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Path("global").
			Detail("invalid mutability flag 0x%02X", mut).
			Build()
	}
	return GlobalType{Type: vt, Mutable: mut == GlobalMut}, nil
}

func parseGlobalSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		gt, err := parseGlobalType(r)
		if err != nil {
			return err
		}
		// The initializer expression is not evaluated; globals are not
		// executable state in this engine. Skip it structurally.
		if err := skipConstExpr(r); err != nil {
			return err
		}
		m.Globals = append(m.Globals, gt)
	}
	return nil
}

// skipConstExpr consumes a constant initializer expression up to and
// including its terminating end opcode.
func skipConstExpr(r *binary.Reader) error {
	for {
		op, err := r.ReadByte()
		if err != nil {
			return err
		}
		switch op {
		case OpEnd:
			return nil
		case OpI32Const:
			_, err = r.ReadS32()
		case OpI64Const:
			_, err = r.ReadS64()
		case OpF32Const:
			_, err = r.ReadBytes(4)
		case OpF64Const:
			_, err = r.ReadBytes(8)
		case OpGlobalGet, OpRefFunc:
			_, err = r.ReadU32()
		case OpRefNull:
			_, err = r.ReadByte()
		default:
			return errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Path("global").
				Opcode(OpcodeName(op)).
				Detail("not a constant expression opcode").
				Build()
		}
		if err != nil {
			return err
		}
	}
}

func parseExportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		var e Export
		if e.Name, err = r.ReadName(); err != nil {
			return err
		}
		if _, dup := m.exportIndex[e.Name]; dup {
			return errors.Duplicate([]string{"export", e.Name}, "export name appears twice")
		}
		if e.Kind, err = r.ReadByte(); err != nil {
			return err
		}
		if e.Kind > KindGlobal {
			return errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Path("export", e.Name).
				Detail("invalid export kind %d", e.Kind).
				Build()
		}
		if e.Index, err = r.ReadU32(); err != nil {
			return err
		}
		m.exportIndex[e.Name] = len(m.Exports)
		m.Exports = append(m.Exports, e)
	}
	return nil
}

func parseStartSection(r *binary.Reader, m *Module) error {
	idx, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Start = &idx
	return nil
}

func parseCodeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Code = make([]FuncBody, 0, count)
	for i := uint32(0); i < count; i++ {
		size, err := r.ReadU32()
		if err != nil {
			return err
		}
		body, err := r.ReadBytes(int(size))
		if err != nil {
			return err
		}
		m.Code = append(m.Code, FuncBody{Code: body})
	}
	return nil
}
