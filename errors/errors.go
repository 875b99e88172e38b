package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseDecode  Phase = "decode"  // binary module parsing
	PhaseCompile Phase = "compile" // validation and lowering
	PhaseRuntime Phase = "runtime" // interpreter execution
	PhaseHost    Phase = "host"    // host API misuse (pre-call rejections)
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidMagic  Kind = "invalid_magic"
	KindInvalidData   Kind = "invalid_data"
	KindTruncated     Kind = "truncated"
	KindDuplicate     Kind = "duplicate"
	KindOutOfBounds   Kind = "out_of_bounds"
	KindTypeMismatch  Kind = "type_mismatch"
	KindStackEmpty    Kind = "stack_empty"
	KindUnsupported   Kind = "unsupported"
	KindNotFound      Kind = "not_found"
	KindArityMismatch Kind = "arity_mismatch"
	KindInvalidUTF8   Kind = "invalid_utf8"
	KindOverflow      Kind = "overflow"
	KindTrap          Kind = "trap"
)

// Error is the structured error type used throughout the engine
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Opcode string
	Detail string
	Path   []string
	Offset int
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Opcode != "" {
		b.WriteString(": ")
		b.WriteString(e.Opcode)
	}

	if e.Detail != "" {
		if e.Opcode != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Offset > 0 {
		fmt.Fprintf(&b, " (offset %d)", e.Offset)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the location path (section, function, field)
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Opcode names the instruction the error concerns
func (b *Builder) Opcode(name string) *Builder {
	b.err.Opcode = name
	return b
}

// Offset sets the byte offset within the input
func (b *Builder) Offset(off int) *Builder {
	b.err.Offset = off
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Decode creates a generic decode error for the given section
func Decode(section string, cause error) *Error {
	return &Error{
		Phase: PhaseDecode,
		Kind:  KindInvalidData,
		Path:  []string{section},
		Cause: cause,
	}
}

// Truncated reports input ending inside the named structure
func Truncated(phase Phase, path ...string) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindTruncated,
		Path:  path,
	}
}

// Duplicate reports a section or name that may appear at most once
func Duplicate(path []string, what string) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindDuplicate,
		Path:   path,
		Detail: what,
	}
}

// Unsupported creates an unsupported-feature error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// UnsupportedOpcode flags an instruction the engine recognizes but does not lower
func UnsupportedOpcode(opcode string) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindUnsupported,
		Opcode: opcode,
	}
}

// TypeMismatch creates an operand type mismatch error
func TypeMismatch(phase Phase, opcode, want, got string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Opcode: opcode,
		Detail: fmt.Sprintf("want %s, got %s", want, got),
	}
}

// StackEmpty reports a missing operand
func StackEmpty(opcode string) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindStackEmpty,
		Opcode: opcode,
		Detail: "operand stack is empty",
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// NotFound reports a missing export or global
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// ArityMismatch reports a host call with the wrong argument count
func ArityMismatch(name string, want, got int) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindArityMismatch,
		Detail: fmt.Sprintf("%s expects %d arguments, got %d", name, want, got),
	}
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(path []string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindInvalidUTF8,
		Path:   path,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// Trap reports a runtime fault that unwound the instance
func Trap(reason string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindTrap,
		Detail: reason,
	}
}
