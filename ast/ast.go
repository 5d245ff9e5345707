// Package ast defines the syntax tree consumed by the marte compiler.
//
// The tree is produced by an external front-end and is treated as immutable
// input: the compiler only reads it. Every node carries the half-open byte
// range of the source text it was parsed from.
package ast

import "fmt"

// ---------------------------------------------------------------------------
// Spans and nodes
// ---------------------------------------------------------------------------

// Span is a half-open byte range [Start, End) into the source text.
type Span struct {
	Start int
	End   int
}

// String renders the span as "start..end".
func (s Span) String() string {
	return fmt.Sprintf("%d..%d", s.Start, s.End)
}

// Node is the interface implemented by all tree nodes.
type Node interface {
	Span() Span
	node() // marker method
}

// Name is an identifier occurrence with its own location, used for bound
// names (let, loop variables, parameters) and field names.
type Name struct {
	SpanVal Span
	Name    string
}

func (n *Name) Span() Span { return n.SpanVal }
func (n *Name) node()      {}

// Chunk is one top-level compilation unit.
type Chunk struct {
	SpanVal    Span
	Statements []Stmt
}

func (n *Chunk) Span() Span { return n.SpanVal }
func (n *Chunk) node()      {}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

// BinaryOperator identifies an infix operator.
type BinaryOperator uint8

const (
	OpAnd BinaryOperator = iota
	OpOr
	OpEqual
	OpNotEqual
	OpLess
	OpGreater
	OpLessEqual
	OpGreaterEqual
	OpPlus
	OpMinus
	OpStar
	OpSlash
	OpPercent
	OpExponent
)

var binaryOperatorNames = [...]string{
	OpAnd:          "and",
	OpOr:           "or",
	OpEqual:        "==",
	OpNotEqual:     "!=",
	OpLess:         "<",
	OpGreater:      ">",
	OpLessEqual:    "<=",
	OpGreaterEqual: ">=",
	OpPlus:         "+",
	OpMinus:        "-",
	OpStar:         "*",
	OpSlash:        "/",
	OpPercent:      "%",
	OpExponent:     "^",
}

func (op BinaryOperator) String() string {
	if int(op) < len(binaryOperatorNames) {
		return binaryOperatorNames[op]
	}
	return fmt.Sprintf("BinaryOperator(%d)", op)
}

// ParseBinaryOperator maps an operator spelling to its BinaryOperator.
func ParseBinaryOperator(s string) (BinaryOperator, bool) {
	for i, name := range binaryOperatorNames {
		if name == s {
			return BinaryOperator(i), true
		}
	}
	switch s {
	case "&&":
		return OpAnd, true
	case "||":
		return OpOr, true
	case "**":
		return OpExponent, true
	}
	return 0, false
}

// UnaryOperator identifies a prefix operator.
type UnaryOperator uint8

const (
	OpNegate UnaryOperator = iota
	OpNot
)

func (op UnaryOperator) String() string {
	switch op {
	case OpNegate:
		return "-"
	case OpNot:
		return "not"
	default:
		return fmt.Sprintf("UnaryOperator(%d)", op)
	}
}

// ParseUnaryOperator maps an operator spelling to its UnaryOperator.
func ParseUnaryOperator(s string) (UnaryOperator, bool) {
	switch s {
	case "-", "neg":
		return OpNegate, true
	case "not", "!":
		return OpNot, true
	}
	return 0, false
}

// AssignOperator identifies a (compound) assignment operator.
type AssignOperator uint8

const (
	AssignSet AssignOperator = iota
	AssignAdd
	AssignSub
	AssignMul
	AssignDiv
	AssignMod
	AssignPow
)

var assignOperatorNames = [...]string{
	AssignSet: "=",
	AssignAdd: "+=",
	AssignSub: "-=",
	AssignMul: "*=",
	AssignDiv: "/=",
	AssignMod: "%=",
	AssignPow: "^=",
}

func (op AssignOperator) String() string {
	if int(op) < len(assignOperatorNames) {
		return assignOperatorNames[op]
	}
	return fmt.Sprintf("AssignOperator(%d)", op)
}

// ParseAssignOperator maps an operator spelling to its AssignOperator.
func ParseAssignOperator(s string) (AssignOperator, bool) {
	for i, name := range assignOperatorNames {
		if name == s {
			return AssignOperator(i), true
		}
	}
	return 0, false
}

// Binary returns the binary operator a compound assignment applies.
// The second result is false for plain assignment.
func (op AssignOperator) Binary() (BinaryOperator, bool) {
	switch op {
	case AssignAdd:
		return OpPlus, true
	case AssignSub:
		return OpMinus, true
	case AssignMul:
		return OpStar, true
	case AssignDiv:
		return OpSlash, true
	case AssignMod:
		return OpPercent, true
	case AssignPow:
		return OpExponent, true
	}
	return 0, false
}
