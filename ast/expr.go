package ast

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Expr is the interface for expression nodes. Atoms are expressions too.
type Expr interface {
	Node
	expr() // marker method
}

// Binary is an infix operation.
type Binary struct {
	SpanVal Span
	Op      BinaryOperator
	Left    Expr
	Right   Expr
}

func (n *Binary) Span() Span { return n.SpanVal }
func (n *Binary) node()      {}
func (n *Binary) expr()      {}

// Unary is a prefix operation.
type Unary struct {
	SpanVal Span
	Op      UnaryOperator
	Right   Expr
}

func (n *Unary) Span() Span { return n.SpanVal }
func (n *Unary) node()      {}
func (n *Unary) expr()      {}

// FieldExpr reads a record field (head.field).
type FieldExpr struct {
	SpanVal Span
	Head    Expr
	Field   *Name
}

func (n *FieldExpr) Span() Span { return n.SpanVal }
func (n *FieldExpr) node()      {}
func (n *FieldExpr) expr()      {}

// IndexExpr reads an element (head[index]).
type IndexExpr struct {
	SpanVal Span
	Head    Expr
	Index   Expr
}

func (n *IndexExpr) Span() Span { return n.SpanVal }
func (n *IndexExpr) node()      {}
func (n *IndexExpr) expr()      {}

// CallExpr calls Head with Args and yields the callee's return value.
type CallExpr struct {
	SpanVal Span
	Head    Expr
	Args    []Expr
}

func (n *CallExpr) Span() Span { return n.SpanVal }
func (n *CallExpr) node()      {}
func (n *CallExpr) expr()      {}

// ---------------------------------------------------------------------------
// Atoms
// ---------------------------------------------------------------------------

// Null is the null literal.
type Null struct {
	SpanVal Span
}

func (n *Null) Span() Span { return n.SpanVal }
func (n *Null) node()      {}
func (n *Null) expr()      {}

// Ident references a bound name.
type Ident struct {
	SpanVal Span
	Name    string
}

func (n *Ident) Span() Span { return n.SpanVal }
func (n *Ident) node()      {}
func (n *Ident) expr()      {}

// IntLiteral is a 64-bit integer literal.
type IntLiteral struct {
	SpanVal Span
	Value   int64
}

func (n *IntLiteral) Span() Span { return n.SpanVal }
func (n *IntLiteral) node()      {}
func (n *IntLiteral) expr()      {}

// FloatLiteral is a double-precision literal.
type FloatLiteral struct {
	SpanVal Span
	Value   float64
}

func (n *FloatLiteral) Span() Span { return n.SpanVal }
func (n *FloatLiteral) node()      {}
func (n *FloatLiteral) expr()      {}

// BoolLiteral is true or false.
type BoolLiteral struct {
	SpanVal Span
	Value   bool
}

func (n *BoolLiteral) Span() Span { return n.SpanVal }
func (n *BoolLiteral) node()      {}
func (n *BoolLiteral) expr()      {}

// CharLiteral is a single Unicode code point.
type CharLiteral struct {
	SpanVal Span
	Value   rune
}

func (n *CharLiteral) Span() Span { return n.SpanVal }
func (n *CharLiteral) node()      {}
func (n *CharLiteral) expr()      {}

// StringLiteral is a string literal.
type StringLiteral struct {
	SpanVal Span
	Value   string
}

func (n *StringLiteral) Span() Span { return n.SpanVal }
func (n *StringLiteral) node()      {}
func (n *StringLiteral) expr()      {}

// Paren is a parenthesized expression.
type Paren struct {
	SpanVal Span
	Expr    Expr
}

func (n *Paren) Span() Span { return n.SpanVal }
func (n *Paren) node()      {}
func (n *Paren) expr()      {}

// TupleLiteral builds an immutable tuple.
type TupleLiteral struct {
	SpanVal  Span
	Elements []Expr
}

func (n *TupleLiteral) Span() Span { return n.SpanVal }
func (n *TupleLiteral) node()      {}
func (n *TupleLiteral) expr()      {}

// VectorLiteral builds a mutable vector.
type VectorLiteral struct {
	SpanVal  Span
	Elements []Expr
}

func (n *VectorLiteral) Span() Span { return n.SpanVal }
func (n *VectorLiteral) node()      {}
func (n *VectorLiteral) expr()      {}

// ObjectField is one name: expr pair of an object literal.
type ObjectField struct {
	Name *Name
	Expr Expr
}

// ObjectLiteral builds a record with fields in source order.
type ObjectLiteral struct {
	SpanVal Span
	Fields  []ObjectField
}

func (n *ObjectLiteral) Span() Span { return n.SpanVal }
func (n *ObjectLiteral) node()      {}
func (n *ObjectLiteral) expr()      {}

// FnLiteral is a function literal; evaluating it yields a closure.
type FnLiteral struct {
	SpanVal Span
	Params  []*Name
	Body    Stmt
}

func (n *FnLiteral) Span() Span { return n.SpanVal }
func (n *FnLiteral) node()      {}
func (n *FnLiteral) expr()      {}
