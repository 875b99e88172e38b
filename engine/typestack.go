package engine

import (
	"github.com/wippyai/wasm-engine/errors"
	"github.com/wippyai/wasm-engine/wasm"
)

// typeStack models the abstract Wasm operand stack during lowering.
// Parameters are modelled as locals, not pre-pushed operands, so the
// stack starts empty at function entry.
type typeStack struct {
	types []wasm.ValType
}

func (s *typeStack) push(t wasm.ValType) {
	s.types = append(s.types, t)
}

func (s *typeStack) depth() int {
	return len(s.types)
}

// top returns the top entry without popping.
func (s *typeStack) top(opcode string) (wasm.ValType, error) {
	if len(s.types) == 0 {
		return 0, errors.StackEmpty(opcode)
	}
	return s.types[len(s.types)-1], nil
}

// pop removes and returns the top entry.
func (s *typeStack) pop(opcode string) (wasm.ValType, error) {
	t, err := s.top(opcode)
	if err != nil {
		return 0, err
	}
	s.types = s.types[:len(s.types)-1]
	return t, nil
}

// popExpect pops the top entry and checks it against want.
func (s *typeStack) popExpect(opcode string, want wasm.ValType) error {
	got, err := s.pop(opcode)
	if err != nil {
		return err
	}
	if got != want {
		return errors.TypeMismatch(errors.PhaseCompile, opcode, want.String(), got.String())
	}
	return nil
}
