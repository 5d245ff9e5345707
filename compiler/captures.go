package compiler

import "github.com/chazu/marte/ast"

// captureScope is one lexical scope seen by the capture analysis. depth is
// the function nesting level that owns the scope (0 for the chunk body).
type captureScope struct {
	names map[string]bool
	depth int
}

// fnCaptures accumulates the free variables of one function literal in
// first-reference order.
type fnCaptures struct {
	seen  map[string]bool
	order []string
}

// captureAnalysis finds, for every function literal, the names it uses that
// are bound by an enclosing function. A function nested two levels deep
// that uses an outer name makes the intermediate function capture it too,
// so the value can be copied down one frame at a time.
type captureAnalysis struct {
	scopes []captureScope
	fns    []*fnCaptures // fns[d-1] is the literal at depth d
	result map[*ast.FnLiteral][]string
}

// analyzeCaptures walks chunk, whose entry function binds params, and
// returns the ordered capture list of each function literal.
func analyzeCaptures(chunk *ast.Chunk, params []string) map[*ast.FnLiteral][]string {
	a := &captureAnalysis{result: make(map[*ast.FnLiteral][]string)}
	a.push()
	for _, p := range params {
		a.declare(p)
	}
	a.push()
	for _, s := range chunk.Statements {
		a.stmt(s)
	}
	a.pop()
	a.pop()
	return a.result
}

func (a *captureAnalysis) push() {
	a.scopes = append(a.scopes, captureScope{names: make(map[string]bool), depth: len(a.fns)})
}

func (a *captureAnalysis) pop() { a.scopes = a.scopes[:len(a.scopes)-1] }

func (a *captureAnalysis) declare(name string) {
	a.scopes[len(a.scopes)-1].names[name] = true
}

// ref records a use of name at the current depth.
func (a *captureAnalysis) ref(name string) {
	for i := len(a.scopes) - 1; i >= 0; i-- {
		s := a.scopes[i]
		if !s.names[name] {
			continue
		}
		for d := s.depth + 1; d <= len(a.fns); d++ {
			fc := a.fns[d-1]
			if !fc.seen[name] {
				fc.seen[name] = true
				fc.order = append(fc.order, name)
			}
		}
		return
	}
}

// scoped walks s in a fresh scope.
func (a *captureAnalysis) scoped(s ast.Stmt) {
	if s == nil {
		return
	}
	a.push()
	a.stmt(s)
	a.pop()
}

func (a *captureAnalysis) stmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.Block:
		a.push()
		for _, st := range s.Statements {
			a.stmt(st)
		}
		a.pop()
	case *ast.Let:
		if fn, ok := s.Expr.(*ast.FnLiteral); ok {
			a.declare(s.Ident.Name)
			a.expr(fn)
			return
		}
		a.expr(s.Expr)
		a.declare(s.Ident.Name)
	case *ast.Assign:
		a.expr(ast.PathExpr(s.Path))
		a.expr(s.Expr)
	case *ast.CallStmt:
		a.expr(ast.PathExpr(s.Path))
		for _, arg := range s.Args {
			a.expr(arg)
		}
	case *ast.If:
		a.expr(s.Cond)
		a.scoped(s.Case)
		a.scoped(s.Else)
	case *ast.IfSome:
		a.push()
		a.expr(s.Expr)
		a.declare(s.Ident.Name)
		a.scoped(s.Case)
		a.pop()
		a.scoped(s.Else)
	case *ast.While:
		a.expr(s.Cond)
		a.scoped(s.Body)
	case *ast.WhileSome:
		a.push()
		a.expr(s.Expr)
		a.declare(s.Ident.Name)
		a.scoped(s.Body)
		a.pop()
	case *ast.For:
		a.push()
		a.expr(s.Iter)
		a.push()
		a.declare(s.Ident.Name)
		a.scoped(s.Body)
		a.pop()
		a.pop()
	case *ast.Return:
		if s.Expr != nil {
			a.expr(s.Expr)
		}
	}
}

func (a *captureAnalysis) expr(e ast.Expr) {
	switch e := e.(type) {
	case *ast.Ident:
		a.ref(e.Name)
	case *ast.Binary:
		a.expr(e.Left)
		a.expr(e.Right)
	case *ast.Unary:
		a.expr(e.Right)
	case *ast.FieldExpr:
		a.expr(e.Head)
	case *ast.IndexExpr:
		a.expr(e.Head)
		a.expr(e.Index)
	case *ast.CallExpr:
		a.expr(e.Head)
		for _, arg := range e.Args {
			a.expr(arg)
		}
	case *ast.Paren:
		a.expr(e.Expr)
	case *ast.TupleLiteral:
		for _, el := range e.Elements {
			a.expr(el)
		}
	case *ast.VectorLiteral:
		for _, el := range e.Elements {
			a.expr(el)
		}
	case *ast.ObjectLiteral:
		for _, f := range e.Fields {
			a.expr(f.Expr)
		}
	case *ast.FnLiteral:
		fc := &fnCaptures{seen: make(map[string]bool)}
		a.fns = append(a.fns, fc)
		a.push()
		for _, p := range e.Params {
			a.declare(p.Name)
		}
		a.scoped(e.Body)
		a.pop()
		a.fns = a.fns[:len(a.fns)-1]
		a.result[e] = fc.order
	}
}
