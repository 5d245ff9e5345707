package vm

import "fmt"

// ErrorKind classifies a runtime fault.
type ErrorKind uint8

const (
	TypeMismatch ErrorKind = iota + 1
	DivisionByZero
	InvalidExponent
	IndexOutOfBounds
	FieldNotFound
	ArityMismatch
	StackOverflow
	InvalidProgram
	BudgetExceeded
	Interrupted
)

var errorKindNames = map[ErrorKind]string{
	TypeMismatch:     "type mismatch",
	DivisionByZero:   "division by zero",
	InvalidExponent:  "invalid exponent",
	IndexOutOfBounds: "index out of bounds",
	FieldNotFound:    "field not found",
	ArityMismatch:    "arity mismatch",
	StackOverflow:    "stack overflow",
	InvalidProgram:   "invalid program",
	BudgetExceeded:   "instruction budget exceeded",
	Interrupted:      "interrupted",
}

func (k ErrorKind) String() string {
	if s, ok := errorKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

// Sentinels for errors.Is. Any *RuntimeError matches the sentinel of its kind.
var (
	ErrTypeMismatch     = &RuntimeError{Kind: TypeMismatch}
	ErrDivisionByZero   = &RuntimeError{Kind: DivisionByZero}
	ErrInvalidExponent  = &RuntimeError{Kind: InvalidExponent}
	ErrIndexOutOfBounds = &RuntimeError{Kind: IndexOutOfBounds}
	ErrFieldNotFound    = &RuntimeError{Kind: FieldNotFound}
	ErrArityMismatch    = &RuntimeError{Kind: ArityMismatch}
	ErrStackOverflow    = &RuntimeError{Kind: StackOverflow}
	ErrInvalidProgram   = &RuntimeError{Kind: InvalidProgram}
	ErrBudgetExceeded   = &RuntimeError{Kind: BudgetExceeded}
	ErrInterrupted      = &RuntimeError{Kind: Interrupted}
)

// RuntimeError is a fault raised while executing a chunk. PC is the index
// of the faulting instruction, or -1 when the fault is not tied to one.
type RuntimeError struct {
	Kind  ErrorKind
	PC    int
	Msg   string
	Cause error // Underlying cause, if any
}

func (e *RuntimeError) Error() string {
	msg := e.Kind.String()
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.PC >= 0 {
		return fmt.Sprintf("runtime error at pc %d: %s", e.PC, msg)
	}
	return "runtime error: " + msg
}

// Is matches sentinels by kind.
func (e *RuntimeError) Is(target error) bool {
	t, ok := target.(*RuntimeError)
	return ok && t.Kind == e.Kind
}

func (e *RuntimeError) Unwrap() error { return e.Cause }

// fault creates a RuntimeError without a PC; the dispatch loop fills it in.
func fault(kind ErrorKind, format string, args ...any) *RuntimeError {
	return &RuntimeError{Kind: kind, PC: -1, Msg: fmt.Sprintf(format, args...)}
}

func typeMismatch(op string, vals ...Value) *RuntimeError {
	switch len(vals) {
	case 1:
		return fault(TypeMismatch, "cannot apply %s to %s", op, vals[0].Kind())
	case 2:
		return fault(TypeMismatch, "cannot apply %s to %s and %s", op, vals[0].Kind(), vals[1].Kind())
	}
	return fault(TypeMismatch, "%s", op)
}
