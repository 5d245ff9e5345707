package compiler

import (
	"math"

	"github.com/chazu/marte/ast"
	"github.com/chazu/marte/vm"
)

var binaryOps = [...]vm.BinaryOp{
	ast.OpAnd:          vm.BinAnd,
	ast.OpOr:           vm.BinOr,
	ast.OpEqual:        vm.BinEq,
	ast.OpNotEqual:     vm.BinNe,
	ast.OpLess:         vm.BinLt,
	ast.OpGreater:      vm.BinGt,
	ast.OpLessEqual:    vm.BinLe,
	ast.OpGreaterEqual: vm.BinGe,
	ast.OpPlus:         vm.BinAdd,
	ast.OpMinus:        vm.BinSub,
	ast.OpStar:         vm.BinMul,
	ast.OpSlash:        vm.BinDiv,
	ast.OpPercent:      vm.BinMod,
	ast.OpExponent:     vm.BinPow,
}

var unaryOps = [...]vm.UnaryOp{
	ast.OpNegate: vm.UnNeg,
	ast.OpNot:    vm.UnNot,
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// expr compiles e into a newly allocated register on top of the scratch
// stack and returns it. Everything e allocated above it is freed again.
func (c *Compiler) expr(e ast.Expr) (Register, error) {
	switch e := e.(type) {
	case *ast.Null:
		return c.load(e, func(r Register) vm.Instruction { return vm.LoadNull(r) })
	case *ast.BoolLiteral:
		return c.load(e, func(r Register) vm.Instruction { return vm.Bool(r, e.Value) })
	case *ast.IntLiteral:
		if e.Value >= math.MinInt16 && e.Value <= math.MaxInt16 {
			return c.load(e, func(r Register) vm.Instruction { return vm.Int(r, int16(e.Value)) })
		}
		return c.constant(e, vm.FromInt(e.Value))
	case *ast.FloatLiteral:
		return c.constant(e, vm.FromFloat(e.Value))
	case *ast.CharLiteral:
		if e.Value >= 0 && e.Value <= 0x10FFFF {
			return c.load(e, func(r Register) vm.Instruction { return vm.Char(r, e.Value) })
		}
		return c.constant(e, vm.FromChar(e.Value))
	case *ast.StringLiteral:
		addr, err := c.intern(e, vm.FromString(e.Value))
		if err != nil {
			return 0, err
		}
		return c.load(e, func(r Register) vm.Instruction { return vm.String(r, addr) })
	case *ast.Ident:
		src, err := c.fs.ra.Resolve(e.Name)
		if err != nil {
			return 0, at(err, e.Span())
		}
		return c.load(e, func(r Register) vm.Instruction { return vm.Move(r, src) })
	case *ast.Paren:
		return c.expr(e.Expr)
	case *ast.Binary:
		return c.binary(e)
	case *ast.Unary:
		r, err := c.expr(e.Right)
		if err != nil {
			return 0, err
		}
		c.emit(e, vm.Unary(unaryOps[e.Op], r, r))
		return r, nil
	case *ast.FieldExpr:
		obj, err := c.expr(e.Head)
		if err != nil {
			return 0, err
		}
		name, err := c.intern(e.Field, vm.FromString(e.Field.Name))
		if err != nil {
			return 0, err
		}
		c.emit(e, vm.GetFieldOf(obj, obj, name))
		return obj, nil
	case *ast.IndexExpr:
		coll, err := c.expr(e.Head)
		if err != nil {
			return 0, err
		}
		idx, err := c.expr(e.Index)
		if err != nil {
			return 0, err
		}
		c.emit(e, vm.GetIndexOf(coll, coll, idx))
		c.free(idx)
		return coll, nil
	case *ast.CallExpr:
		return c.call(e)
	case *ast.TupleLiteral:
		return c.sequence(e, e.Elements, vm.MakeTuple)
	case *ast.VectorLiteral:
		return c.sequence(e, e.Elements, vm.MakeVector)
	case *ast.ObjectLiteral:
		return c.object(e)
	case *ast.FnLiteral:
		dst, err := c.alloc(e)
		if err != nil {
			return 0, err
		}
		if err := c.function(e, dst, ""); err != nil {
			return 0, err
		}
		return dst, nil
	}
	return 0, errorf(Internal, e.Span(), "unsupported expression %T", e)
}

// load allocates a register and emits the instruction that fills it.
func (c *Compiler) load(e ast.Expr, in func(Register) vm.Instruction) (Register, error) {
	r, err := c.alloc(e)
	if err != nil {
		return 0, err
	}
	c.emit(e, in(r))
	return r, nil
}

// constant interns v and loads it.
func (c *Compiler) constant(e ast.Expr, v vm.Value) (Register, error) {
	addr, err := c.intern(e, v)
	if err != nil {
		return 0, err
	}
	return c.load(e, func(r Register) vm.Instruction { return vm.Const(r, addr) })
}

func (c *Compiler) binary(e *ast.Binary) (Register, error) {
	l, err := c.expr(e.Left)
	if err != nil {
		return 0, err
	}

	// and/or skip the right operand once the left decides the result
	var end *vm.Label
	switch e.Op {
	case ast.OpAnd:
		end = c.b.NewLabel()
		c.jump(e, vm.JumpIfNot(l, 0), end)
	case ast.OpOr:
		end = c.b.NewLabel()
		c.jump(e, vm.JumpIf(l, 0), end)
	}

	r, err := c.expr(e.Right)
	if err != nil {
		return 0, err
	}
	c.emit(e, vm.Binary(binaryOps[e.Op], l, l, r))
	c.free(r)
	if end != nil {
		c.b.Mark(end)
	}
	return l, nil
}

// call evaluates the callee into dst and the arguments into the registers
// directly above it.
func (c *Compiler) call(e *ast.CallExpr) (Register, error) {
	if len(e.Args) >= vm.MaxRegisters {
		return 0, errorf(TooManyArguments, e.Span(), "%d arguments", len(e.Args))
	}
	callee, err := c.expr(e.Head)
	if err != nil {
		return 0, err
	}
	args, err := c.consecutive(e.Args)
	if err != nil {
		return 0, err
	}
	c.emit(e, vm.Call(callee, callee, Register(len(e.Args))))
	c.freeAll(args)
	return callee, nil
}

// consecutive evaluates exprs into adjacent registers.
func (c *Compiler) consecutive(exprs []ast.Expr) ([]Register, error) {
	regs := make([]Register, 0, len(exprs))
	for _, x := range exprs {
		r, err := c.expr(x)
		if err != nil {
			return nil, err
		}
		regs = append(regs, r)
	}
	return regs, nil
}

func (c *Compiler) freeAll(regs []Register) {
	for i := len(regs) - 1; i >= 0; i-- {
		c.free(regs[i])
	}
}

// sequence builds a tuple or vector literal. Literals made only of
// constants come from the pool.
func (c *Compiler) sequence(e ast.Expr, elems []ast.Expr, mk func(dst, first, count Register) vm.Instruction) (Register, error) {
	if v, ok := constValue(e); ok {
		return c.constant(e, v)
	}
	if len(elems) >= vm.MaxRegisters {
		return 0, errorf(TooManyArguments, e.Span(), "%d elements", len(elems))
	}
	dst, err := c.alloc(e)
	if err != nil {
		return 0, err
	}
	regs, err := c.consecutive(elems)
	if err != nil {
		return 0, err
	}
	c.emit(e, mk(dst, dst+1, Register(len(elems))))
	c.freeAll(regs)
	return dst, nil
}

func (c *Compiler) object(e *ast.ObjectLiteral) (Register, error) {
	if v, ok := constValue(e); ok {
		return c.constant(e, v)
	}
	if len(e.Fields) >= vm.MaxRegisters {
		return 0, errorf(TooManyArguments, e.Span(), "%d fields", len(e.Fields))
	}
	keys := make([]vm.Value, len(e.Fields))
	exprs := make([]ast.Expr, len(e.Fields))
	for i, f := range e.Fields {
		keys[i] = vm.FromString(f.Name.Name)
		exprs[i] = f.Expr
	}
	addr, err := c.intern(e, vm.NewTuple(keys))
	if err != nil {
		return 0, err
	}
	dst, err := c.alloc(e)
	if err != nil {
		return 0, err
	}
	regs, err := c.consecutive(exprs)
	if err != nil {
		return 0, err
	}
	c.emit(e, vm.MakeObject(dst, dst+1, Register(len(exprs)), addr))
	c.freeAll(regs)
	return dst, nil
}

// constValue folds a literal built only from constants.
func constValue(e ast.Expr) (vm.Value, bool) {
	switch e := e.(type) {
	case *ast.Null:
		return vm.Null, true
	case *ast.IntLiteral:
		return vm.FromInt(e.Value), true
	case *ast.FloatLiteral:
		return vm.FromFloat(e.Value), true
	case *ast.BoolLiteral:
		return vm.FromBool(e.Value), true
	case *ast.CharLiteral:
		return vm.FromChar(e.Value), true
	case *ast.StringLiteral:
		return vm.FromString(e.Value), true
	case *ast.Paren:
		return constValue(e.Expr)
	case *ast.TupleLiteral:
		elems, ok := constValues(e.Elements)
		if !ok {
			return vm.Null, false
		}
		return vm.NewTuple(elems), true
	case *ast.VectorLiteral:
		elems, ok := constValues(e.Elements)
		if !ok {
			return vm.Null, false
		}
		return vm.NewVector(elems), true
	case *ast.ObjectLiteral:
		keys := make([]string, len(e.Fields))
		exprs := make([]ast.Expr, len(e.Fields))
		for i, f := range e.Fields {
			keys[i] = f.Name.Name
			exprs[i] = f.Expr
		}
		vals, ok := constValues(exprs)
		if !ok {
			return vm.Null, false
		}
		return vm.NewObject(keys, vals), true
	}
	return vm.Null, false
}

func constValues(exprs []ast.Expr) ([]vm.Value, bool) {
	out := make([]vm.Value, len(exprs))
	for i, x := range exprs {
		v, ok := constValue(x)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}
