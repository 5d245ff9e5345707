package compiler

import (
	"github.com/chazu/marte/ast"
	"github.com/chazu/marte/vm"
)

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (c *Compiler) stmt(s ast.Stmt) error {
	var err error
	switch s := s.(type) {
	case *ast.Block:
		err = c.block(s)
	case *ast.Let:
		err = c.let(s)
	case *ast.Assign:
		err = c.assign(s)
	case *ast.CallStmt:
		err = c.callStmt(s)
	case *ast.If:
		err = c.ifStmt(s)
	case *ast.IfSome:
		err = c.ifSome(s)
	case *ast.While:
		err = c.while(s)
	case *ast.WhileSome:
		err = c.whileSome(s)
	case *ast.For:
		err = c.forStmt(s)
	case *ast.Break:
		err = c.branch(s, true)
	case *ast.Continue:
		err = c.branch(s, false)
	case *ast.Return:
		err = c.ret(s)
	case nil:
		return nil
	default:
		return errorf(Internal, s.Span(), "unsupported statement %T", s)
	}
	if err != nil {
		return err
	}
	return c.checkCode(s)
}

// scoped compiles s in a fresh scope.
func (c *Compiler) scoped(s ast.Stmt) error {
	c.fs.ra.EnterScope()
	err := c.stmt(s)
	c.fs.ra.ExitScope()
	return err
}

func (c *Compiler) block(s *ast.Block) error {
	c.fs.ra.EnterScope()
	defer c.fs.ra.ExitScope()
	for _, st := range s.Statements {
		if err := c.stmt(st); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) let(s *ast.Let) error {
	// A function bound by let can see itself
	if fn, ok := s.Expr.(*ast.FnLiteral); ok {
		dst, err := c.fs.ra.Declare(s.Ident.Name)
		if err != nil {
			return at(err, s.Ident.Span())
		}
		return c.function(fn, dst, s.Ident.Name)
	}

	r, err := c.expr(s.Expr)
	if err != nil {
		return err
	}
	if err := c.fs.ra.Bind(s.Ident.Name, r); err != nil {
		return at(err, s.Ident.Span())
	}
	return nil
}

func (c *Compiler) assign(s *ast.Assign) error {
	op, compound := s.Op.Binary()

	switch p := s.Path.(type) {
	case *ast.IdentPath:
		dst, err := c.fs.ra.Resolve(p.Name)
		if err != nil {
			return at(err, p.Span())
		}
		r, err := c.expr(s.Expr)
		if err != nil {
			return err
		}
		if compound {
			c.emit(s, vm.Binary(binaryOps[op], dst, dst, r))
		} else {
			c.emit(s, vm.Move(dst, r))
		}
		c.free(r)
		return nil

	case *ast.FieldPath:
		obj, err := c.expr(ast.PathExpr(p.Head))
		if err != nil {
			return err
		}
		name, err := c.intern(p.Field, vm.FromString(p.Field.Name))
		if err != nil {
			return err
		}
		val, err := c.expr(s.Expr)
		if err != nil {
			return err
		}
		if compound {
			tmp, err := c.alloc(s)
			if err != nil {
				return err
			}
			c.emit(s, vm.GetFieldOf(tmp, obj, name))
			c.emit(s, vm.Binary(binaryOps[op], tmp, tmp, val))
			c.emit(s, vm.SetFieldOf(obj, tmp, name))
			c.free(tmp)
		} else {
			c.emit(s, vm.SetFieldOf(obj, val, name))
		}
		c.free(val)
		c.free(obj)
		return nil

	case *ast.IndexPath:
		obj, err := c.expr(ast.PathExpr(p.Head))
		if err != nil {
			return err
		}
		idx, err := c.expr(p.Index)
		if err != nil {
			return err
		}
		val, err := c.expr(s.Expr)
		if err != nil {
			return err
		}
		if compound {
			tmp, err := c.alloc(s)
			if err != nil {
				return err
			}
			c.emit(s, vm.GetIndexOf(tmp, obj, idx))
			c.emit(s, vm.Binary(binaryOps[op], tmp, tmp, val))
			c.emit(s, vm.SetIndexOf(obj, idx, tmp))
			c.free(tmp)
		} else {
			c.emit(s, vm.SetIndexOf(obj, idx, val))
		}
		c.free(val)
		c.free(idx)
		c.free(obj)
		return nil
	}
	return errorf(Internal, s.Span(), "unsupported assignment target %T", s.Path)
}

func (c *Compiler) callStmt(s *ast.CallStmt) error {
	r, err := c.expr(&ast.CallExpr{SpanVal: s.SpanVal, Head: ast.PathExpr(s.Path), Args: s.Args})
	if err != nil {
		return err
	}
	c.free(r)
	return nil
}

func (c *Compiler) ifStmt(s *ast.If) error {
	cond, err := c.expr(s.Cond)
	if err != nil {
		return err
	}
	elseL := c.b.NewLabel()
	c.jump(s, vm.JumpIfNot(cond, 0), elseL)
	c.free(cond)

	if err := c.scoped(s.Case); err != nil {
		return err
	}
	return c.elseBranch(s, s.Else, elseL)
}

// elseBranch marks elseL and compiles the optional else statement, jumping
// over it from the end of the taken branch.
func (c *Compiler) elseBranch(n ast.Node, els ast.Stmt, elseL *vm.Label) error {
	if els == nil {
		c.b.Mark(elseL)
		return nil
	}
	end := c.b.NewLabel()
	c.jump(n, vm.Jump(0), end)
	c.b.Mark(elseL)
	if err := c.scoped(els); err != nil {
		return err
	}
	c.b.Mark(end)
	return nil
}

func (c *Compiler) ifSome(s *ast.IfSome) error {
	elseL := c.b.NewLabel()

	c.fs.ra.EnterScope()
	r, err := c.expr(s.Expr)
	if err != nil {
		c.fs.ra.ExitScope()
		return err
	}
	c.jump(s, vm.JumpIfNone(r, 0), elseL)
	if err := c.fs.ra.Bind(s.Ident.Name, r); err != nil {
		c.fs.ra.ExitScope()
		return at(err, s.Ident.Span())
	}
	err = c.scoped(s.Case)
	c.fs.ra.ExitScope()
	if err != nil {
		return err
	}
	return c.elseBranch(s, s.Else, elseL)
}

func (c *Compiler) pushLoop(brk, cont *vm.Label) {
	c.fs.loops = append(c.fs.loops, loop{brk: brk, cont: cont})
}

func (c *Compiler) popLoop() {
	c.fs.loops = c.fs.loops[:len(c.fs.loops)-1]
}

func (c *Compiler) while(s *ast.While) error {
	start, end := c.b.NewLabel(), c.b.NewLabel()
	c.b.Mark(start)

	cond, err := c.expr(s.Cond)
	if err != nil {
		return err
	}
	c.jump(s, vm.JumpIfNot(cond, 0), end)
	c.free(cond)

	c.pushLoop(end, start)
	err = c.scoped(s.Body)
	c.popLoop()
	if err != nil {
		return err
	}
	c.jump(s, vm.Jump(0), start)
	c.b.Mark(end)
	return nil
}

func (c *Compiler) whileSome(s *ast.WhileSome) error {
	start, end := c.b.NewLabel(), c.b.NewLabel()
	c.b.Mark(start)

	c.fs.ra.EnterScope()
	defer c.fs.ra.ExitScope()
	r, err := c.expr(s.Expr)
	if err != nil {
		return err
	}
	c.jump(s, vm.JumpIfNone(r, 0), end)
	if err := c.fs.ra.Bind(s.Ident.Name, r); err != nil {
		return at(err, s.Ident.Span())
	}

	c.pushLoop(end, start)
	err = c.scoped(s.Body)
	c.popLoop()
	if err != nil {
		return err
	}
	c.jump(s, vm.Jump(0), start)
	c.b.Mark(end)
	return nil
}

// forStmt lowers "for x in e" to a cursor held in the register of e:
//
//	src = e; ITER src src
//	start: NEXT x src; JUMP_IF_NONE x end; body; JUMP start
//	end:
func (c *Compiler) forStmt(s *ast.For) error {
	start, end := c.b.NewLabel(), c.b.NewLabel()

	c.fs.ra.EnterScope()
	defer c.fs.ra.ExitScope()
	src, err := c.expr(s.Iter)
	if err != nil {
		return err
	}
	c.emit(s.Iter, vm.Iter(src, src))
	c.b.Mark(start)

	c.fs.ra.EnterScope()
	defer c.fs.ra.ExitScope()
	elem, err := c.alloc(s.Ident)
	if err != nil {
		return err
	}
	c.emit(s, vm.Next(elem, src))
	c.jump(s, vm.JumpIfNone(elem, 0), end)
	if err := c.fs.ra.Bind(s.Ident.Name, elem); err != nil {
		return at(err, s.Ident.Span())
	}

	c.pushLoop(end, start)
	err = c.scoped(s.Body)
	c.popLoop()
	if err != nil {
		return err
	}
	c.jump(s, vm.Jump(0), start)
	c.b.Mark(end)
	return nil
}

// branch compiles break (brk) or continue.
func (c *Compiler) branch(s ast.Stmt, brk bool) error {
	if len(c.fs.loops) == 0 {
		if brk {
			return errorf(InvalidControlFlow, s.Span(), "break outside of a loop")
		}
		return errorf(InvalidControlFlow, s.Span(), "continue outside of a loop")
	}
	l := c.fs.loops[len(c.fs.loops)-1]
	target := l.cont
	if brk {
		target = l.brk
	}
	c.jump(s, vm.Jump(0), target)
	return nil
}

func (c *Compiler) ret(s *ast.Return) error {
	if s.Expr == nil {
		return c.implicitReturn(s)
	}
	r, err := c.expr(s.Expr)
	if err != nil {
		return err
	}
	c.emit(s, vm.Return(r))
	c.free(r)
	return nil
}
