package compiler

import (
	"fmt"

	"github.com/chazu/marte/ast"
)

// ErrorKind classifies a compile error.
type ErrorKind uint8

const (
	DuplicateBinding ErrorKind = iota + 1
	UnboundIdentifier
	InvalidControlFlow
	RegisterExhaustion
	ConstantPoolOverflow
	CodeOverflow
	TooManyArguments
	Internal
)

var errorKindNames = map[ErrorKind]string{
	DuplicateBinding:     "duplicate binding",
	UnboundIdentifier:    "unbound identifier",
	InvalidControlFlow:   "invalid control flow",
	RegisterExhaustion:   "register exhaustion",
	ConstantPoolOverflow: "constant pool overflow",
	CodeOverflow:         "code overflow",
	TooManyArguments:     "too many arguments",
	Internal:             "internal compiler error",
}

func (k ErrorKind) String() string {
	if s, ok := errorKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

// Sentinels for errors.Is. Any *CompileError matches the sentinel of its kind.
var (
	ErrDuplicateBinding     = &CompileError{Kind: DuplicateBinding}
	ErrUnboundIdentifier    = &CompileError{Kind: UnboundIdentifier}
	ErrInvalidControlFlow   = &CompileError{Kind: InvalidControlFlow}
	ErrRegisterExhaustion   = &CompileError{Kind: RegisterExhaustion}
	ErrConstantPoolOverflow = &CompileError{Kind: ConstantPoolOverflow}
	ErrCodeOverflow         = &CompileError{Kind: CodeOverflow}
	ErrTooManyArguments     = &CompileError{Kind: TooManyArguments}
)

// CompileError reports the first problem found while compiling a chunk.
type CompileError struct {
	Kind  ErrorKind
	Span  ast.Span
	Msg   string
	Cause error // Underlying cause, if any
}

func (e *CompileError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("compile error at %s: %s", e.Span, e.Kind)
	}
	return fmt.Sprintf("compile error at %s: %s: %s", e.Span, e.Kind, e.Msg)
}

// Is matches sentinels by kind.
func (e *CompileError) Is(target error) bool {
	t, ok := target.(*CompileError)
	return ok && t.Kind == e.Kind
}

func (e *CompileError) Unwrap() error { return e.Cause }

func errorf(kind ErrorKind, span ast.Span, format string, args ...any) *CompileError {
	return &CompileError{Kind: kind, Span: span, Msg: fmt.Sprintf(format, args...)}
}

// at attaches a span to an error raised without one (allocator errors).
func at(err error, span ast.Span) error {
	if ce, ok := err.(*CompileError); ok && ce.Span == (ast.Span{}) {
		ce.Span = span
	}
	return err
}
