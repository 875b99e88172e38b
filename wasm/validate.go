package wasm

import (
	"github.com/wippyai/wasm-engine/errors"
)

// Validate checks the module for structural validity: index bounds for
// everything the export, start and import tables reference, and memory
// limits within the 32-bit page cap. ParseModule runs this on every
// successfully decoded module, so an out-of-range section is a decode
// error rather than a crash at instantiation time.
func (m *Module) Validate() error {
	if err := m.validateTypeIndices(); err != nil {
		return err
	}
	if err := m.validateExports(); err != nil {
		return err
	}
	if err := m.validateStart(); err != nil {
		return err
	}
	return m.validateMemoryLimits()
}

func (m *Module) validateTypeIndices() error {
	numTypes := uint32(len(m.Types))

	for i, imp := range m.Imports {
		if imp.Kind == KindFunc && imp.TypeIndex >= numTypes {
			return errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
				Path("import", imp.Module, imp.Field).
				Detail("import %d references type index %d of %d", i, imp.TypeIndex, numTypes).
				Build()
		}
	}
	return nil
}

func (m *Module) validateExports() error {
	numFuncs := m.NumImportedFuncs() + uint32(len(m.Funcs))
	numTables := m.NumImportedTables() + uint32(len(m.Tables))
	numMemories := m.NumImportedMemories() + uint32(len(m.Memories))
	numGlobals := m.NumImportedGlobals() + uint32(len(m.Globals))

	for _, e := range m.Exports {
		var limit uint32
		switch e.Kind {
		case KindFunc:
			limit = numFuncs
		case KindTable:
			limit = numTables
		case KindMemory:
			limit = numMemories
		case KindGlobal:
			limit = numGlobals
		}
		if e.Index >= limit {
			return errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
				Path("export", e.Name).
				Detail("%s index %d of %d", ExportKindName(e.Kind), e.Index, limit).
				Build()
		}
	}
	return nil
}

func (m *Module) validateStart() error {
	if m.Start == nil {
		return nil
	}

	numImported := m.NumImportedFuncs()
	numFuncs := numImported + uint32(len(m.Funcs))
	if *m.Start >= numFuncs {
		return errors.OutOfBounds(errors.PhaseDecode, []string{"start"}, int(*m.Start), int(numFuncs))
	}

	var sig *FuncType
	if *m.Start < numImported {
		// Imported start function: its signature lives on the import.
		n := uint32(0)
		for i := range m.Imports {
			if m.Imports[i].Kind != KindFunc {
				continue
			}
			if n == *m.Start {
				sig = &m.Types[m.Imports[i].TypeIndex]
				break
			}
			n++
		}
	} else {
		ti := m.Funcs[*m.Start-numImported]
		if ti >= uint32(len(m.Types)) {
			return errors.OutOfBounds(errors.PhaseDecode, []string{"start"}, int(ti), len(m.Types))
		}
		sig = &m.Types[ti]
	}

	if len(sig.Params) != 0 || len(sig.Results) != 0 {
		return errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
			Path("start").
			Detail("start function must have signature () -> (), got %s", sig).
			Build()
	}
	return nil
}

func (m *Module) validateMemoryLimits() error {
	for i, imp := range m.Imports {
		if imp.Kind == KindMemory {
			if err := validateMemoryType(imp.Memory, i, true); err != nil {
				return err
			}
		}
	}
	for i, lim := range m.Memories {
		if err := validateMemoryType(lim, i, false); err != nil {
			return err
		}
	}
	return nil
}

// validateMemoryType rejects limits beyond the 32-bit page cap before
// anything allocates. A hostile min (e.g. 0xFFFFFFFF pages) would
// otherwise reach make() at instantiation and abort the process.
func validateMemoryType(lim Limits, idx int, isImport bool) error {
	prefix := "memory"
	if isImport {
		prefix = "imported memory"
	}

	if lim.Min > MemoryMaxPages {
		return errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
			Path(prefix).
			Detail("memory %d: min pages %d exceeds maximum %d", idx, lim.Min, MemoryMaxPages).
			Build()
	}
	if lim.HasMax {
		if lim.Max > MemoryMaxPages {
			return errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
				Path(prefix).
				Detail("memory %d: max pages %d exceeds maximum %d", idx, lim.Max, MemoryMaxPages).
				Build()
		}
		if lim.Max < lim.Min {
			return errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Path(prefix).
				Detail("memory %d: max pages %d below min %d", idx, lim.Max, lim.Min).
				Build()
		}
	}
	return nil
}
