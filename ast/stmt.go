package ast

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// Block is an ordered statement sequence that introduces a scope.
type Block struct {
	SpanVal    Span
	Statements []Stmt
}

func (n *Block) Span() Span { return n.SpanVal }
func (n *Block) node()      {}
func (n *Block) stmt()      {}

// Let binds a new name in the current scope.
type Let struct {
	SpanVal Span
	Ident   *Name
	Expr    Expr
}

func (n *Let) Span() Span { return n.SpanVal }
func (n *Let) node()      {}
func (n *Let) stmt()      {}

// Assign stores into an addressable location, optionally combining the
// current value with the right-hand side first (x += e).
type Assign struct {
	SpanVal Span
	Op      AssignOperator
	Path    Path
	Expr    Expr
}

func (n *Assign) Span() Span { return n.SpanVal }
func (n *Assign) node()      {}
func (n *Assign) stmt()      {}

// CallStmt calls the value at Path and discards the result.
type CallStmt struct {
	SpanVal Span
	Path    Path
	Args    []Expr
}

func (n *CallStmt) Span() Span { return n.SpanVal }
func (n *CallStmt) node()      {}
func (n *CallStmt) stmt()      {}

// If runs Case when Cond is true, otherwise Else (which may be nil).
type If struct {
	SpanVal Span
	Cond    Expr
	Case    Stmt
	Else    Stmt
}

func (n *If) Span() Span { return n.SpanVal }
func (n *If) node()      {}
func (n *If) stmt()      {}

// IfSome evaluates Expr and, when it is non-null, binds it to Ident for the
// duration of Case. Otherwise Else runs (Ident is not bound there).
type IfSome struct {
	SpanVal Span
	Ident   *Name
	Expr    Expr
	Case    Stmt
	Else    Stmt
}

func (n *IfSome) Span() Span { return n.SpanVal }
func (n *IfSome) node()      {}
func (n *IfSome) stmt()      {}

// While repeats Body while Cond is true.
type While struct {
	SpanVal Span
	Cond    Expr
	Body    Stmt
}

func (n *While) Span() Span { return n.SpanVal }
func (n *While) node()      {}
func (n *While) stmt()      {}

// WhileSome repeats Body while Expr evaluates to a non-null value, binding
// that value to Ident afresh on every pass.
type WhileSome struct {
	SpanVal Span
	Ident   *Name
	Expr    Expr
	Body    Stmt
}

func (n *WhileSome) Span() Span { return n.SpanVal }
func (n *WhileSome) node()      {}
func (n *WhileSome) stmt()      {}

// For runs Body once per element of Iter, binding the element to Ident.
type For struct {
	SpanVal Span
	Ident   *Name
	Iter    Expr
	Body    Stmt
}

func (n *For) Span() Span { return n.SpanVal }
func (n *For) node()      {}
func (n *For) stmt()      {}

// Break leaves the innermost loop.
type Break struct {
	SpanVal Span
}

func (n *Break) Span() Span { return n.SpanVal }
func (n *Break) node()      {}
func (n *Break) stmt()      {}

// Continue jumps to the innermost loop's re-test point.
type Continue struct {
	SpanVal Span
}

func (n *Continue) Span() Span { return n.SpanVal }
func (n *Continue) node()      {}
func (n *Continue) stmt()      {}

// Return leaves the enclosing function (or the chunk) with a value.
type Return struct {
	SpanVal Span
	Expr    Expr
}

func (n *Return) Span() Span { return n.SpanVal }
func (n *Return) node()      {}
func (n *Return) stmt()      {}

// ---------------------------------------------------------------------------
// Path nodes (assignment targets)
// ---------------------------------------------------------------------------

// Path is the interface for addressable locations.
type Path interface {
	Node
	path() // marker method
}

// IdentPath names a bound variable.
type IdentPath struct {
	SpanVal Span
	Name    string
}

func (n *IdentPath) Span() Span { return n.SpanVal }
func (n *IdentPath) node()      {}
func (n *IdentPath) path()      {}

// FieldPath addresses a record field of another path.
type FieldPath struct {
	SpanVal Span
	Head    Path
	Field   *Name
}

func (n *FieldPath) Span() Span { return n.SpanVal }
func (n *FieldPath) node()      {}
func (n *FieldPath) path()      {}

// IndexPath addresses an element of another path.
type IndexPath struct {
	SpanVal Span
	Head    Path
	Index   Expr
}

func (n *IndexPath) Span() Span { return n.SpanVal }
func (n *IndexPath) node()      {}
func (n *IndexPath) path()      {}

// PathExpr converts a path into the equivalent read expression.
func PathExpr(p Path) Expr {
	switch p := p.(type) {
	case *IdentPath:
		return &Ident{SpanVal: p.SpanVal, Name: p.Name}
	case *FieldPath:
		return &FieldExpr{SpanVal: p.SpanVal, Head: PathExpr(p.Head), Field: p.Field}
	case *IndexPath:
		return &IndexExpr{SpanVal: p.SpanVal, Head: PathExpr(p.Head), Index: p.Index}
	}
	return nil
}
