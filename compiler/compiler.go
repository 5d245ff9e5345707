// Package compiler lowers marte syntax trees to register bytecode.
//
// The compiler makes a single pass over the tree after a capture pre-pass.
// Every function literal is compiled inline into the one instruction stream
// of the chunk, behind a jump, and registered in the chunk's function table.
package compiler

import (
	"errors"

	"github.com/tliron/commonlog"

	"github.com/chazu/marte/ast"
	"github.com/chazu/marte/vm"
)

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// Option configures a compilation.
type Option func(*Compiler)

// WithParams names the entry function's parameters. They occupy registers
// 0..n-1 and receive the arguments passed to vm.Execute.
func WithParams(names ...string) Option {
	return func(c *Compiler) { c.params = append([]string(nil), names...) }
}

// WithLogger replaces the compiler's logger.
func WithLogger(log commonlog.Logger) Option {
	return func(c *Compiler) { c.log = log }
}

// ---------------------------------------------------------------------------
// Compiler
// ---------------------------------------------------------------------------

// loop holds the jump targets of an enclosing loop.
type loop struct {
	brk  *vm.Label
	cont *vm.Label
}

// funcState is the per-function compilation state. Nested function literals
// push a new funcState; their capture sources resolve in the parent.
type funcState struct {
	parent *funcState
	fn     *vm.Function
	ra     *RegisterAllocator
	loops  []loop
}

// Compiler converts a syntax tree to a chunk.
type Compiler struct {
	b        *vm.ChunkBuilder
	params   []string
	captures map[*ast.FnLiteral][]string
	fs       *funcState
	log      commonlog.Logger
}

// Compile compiles a chunk. Compilation stops at the first error, which is
// always a *CompileError.
func Compile(chunk *ast.Chunk, opts ...Option) (*vm.Chunk, error) {
	c := &Compiler{
		b:   vm.NewChunkBuilder(),
		log: commonlog.GetLogger("marte.compiler"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if len(c.params) >= vm.MaxRegisters {
		return nil, errorf(TooManyArguments, chunk.Span(), "%d entry parameters", len(c.params))
	}

	// Free variables first, so closures know what to copy
	c.captures = analyzeCaptures(chunk, c.params)

	main := &vm.Function{Entry: 0, Params: c.params}
	c.b.AddFunction(main)
	c.fs = &funcState{fn: main, ra: NewRegisterAllocator()}
	for _, p := range c.params {
		if _, err := c.fs.ra.Declare(p); err != nil {
			return nil, at(err, chunk.Span())
		}
	}

	c.fs.ra.EnterScope()
	for _, s := range chunk.Statements {
		if err := c.stmt(s); err != nil {
			return nil, err
		}
	}
	c.fs.ra.ExitScope()
	if err := c.implicitReturn(chunk); err != nil {
		return nil, err
	}
	main.NumRegisters = c.fs.ra.HighWater()

	out, err := c.b.Build()
	if err != nil {
		if errors.Is(err, vm.ErrCodeOverflow) {
			return nil, &CompileError{Kind: CodeOverflow, Span: chunk.Span(), Msg: "chunk exceeds the address space", Cause: err}
		}
		return nil, &CompileError{Kind: Internal, Span: chunk.Span(), Msg: err.Error(), Cause: err}
	}

	if c.log.AllowLevel(commonlog.Debug) {
		c.log.Debugf("compiled chunk: %d instructions, %d constants, %d functions, frame %d",
			len(out.Code), len(out.Constants), len(out.Functions), out.FrameSize())
	}
	return out, nil
}

// span converts a tree span to a chunk span.
func span(n ast.Node) vm.SourceSpan {
	s := n.Span()
	return vm.SourceSpan{Start: s.Start, End: s.End}
}

func (c *Compiler) emit(n ast.Node, in vm.Instruction) int {
	return c.b.Emit(span(n), in)
}

func (c *Compiler) jump(n ast.Node, in vm.Instruction, label *vm.Label) {
	c.b.EmitJump(span(n), in, label)
}

func (c *Compiler) alloc(n ast.Node) (Register, error) {
	r, err := c.fs.ra.Alloc()
	if err != nil {
		return 0, at(err, n.Span())
	}
	return r, nil
}

func (c *Compiler) free(r Register) { c.fs.ra.Free(r) }

// intern adds v to the constant pool.
func (c *Compiler) intern(n ast.Node, v vm.Value) (vm.Address, error) {
	addr, err := c.b.Pool().Intern(v)
	if err != nil {
		return 0, &CompileError{Kind: ConstantPoolOverflow, Span: n.Span(), Msg: err.Error(), Cause: err}
	}
	return addr, nil
}

// implicitReturn ends a function body with "return null".
func (c *Compiler) implicitReturn(n ast.Node) error {
	r, err := c.alloc(n)
	if err != nil {
		return err
	}
	c.emit(n, vm.LoadNull(r))
	c.emit(n, vm.Return(r))
	c.free(r)
	return nil
}

// checkCode reports CodeOverflow as soon as the stream outgrows the
// address space.
func (c *Compiler) checkCode(n ast.Node) error {
	if c.b.Len() > vm.MaxAddress+1 {
		return errorf(CodeOverflow, n.Span(), "more than %d instructions", vm.MaxAddress+1)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Function literals
// ---------------------------------------------------------------------------

// function compiles fn inline and leaves a closure over it in dst. name is
// used for disassembly and error messages only.
func (c *Compiler) function(fn *ast.FnLiteral, dst Register, name string) error {
	if len(fn.Params) >= vm.MaxRegisters {
		return errorf(TooManyArguments, fn.Span(), "%d parameters", len(fn.Params))
	}

	skip := c.b.NewLabel()
	c.jump(fn, vm.Jump(0), skip)

	// Capture sources live in the creating frame
	names := c.captures[fn]
	caps := make([]vm.Capture, len(names))
	for i, n := range names {
		src, err := c.fs.ra.Resolve(n)
		if err != nil {
			return at(err, fn.Span())
		}
		caps[i] = vm.Capture{Name: n, Source: src}
	}

	if c.b.Len() > vm.MaxAddress {
		return errorf(CodeOverflow, fn.Span(), "function entry beyond the address space")
	}
	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = p.Name
	}
	f := &vm.Function{Name: name, Entry: vm.Address(c.b.Len()), Params: params, Captures: caps}
	idx := c.b.AddFunction(f)
	if idx > vm.MaxAddress {
		return errorf(CodeOverflow, fn.Span(), "more than %d functions", vm.MaxAddress+1)
	}

	parent := c.fs
	c.fs = &funcState{parent: parent, fn: f, ra: NewRegisterAllocator()}
	for _, p := range fn.Params {
		if _, err := c.fs.ra.Declare(p.Name); err != nil {
			c.fs = parent
			return at(err, p.Span())
		}
	}
	for _, cp := range caps {
		if _, err := c.fs.ra.Declare(cp.Name); err != nil {
			c.fs = parent
			return at(err, fn.Span())
		}
	}

	err := c.scoped(fn.Body)
	if err == nil {
		err = c.implicitReturn(fn)
	}
	f.NumRegisters = c.fs.ra.HighWater()
	c.fs = parent
	if err != nil {
		return err
	}

	c.b.Mark(skip)
	c.emit(fn, vm.MakeClosure(dst, vm.Address(idx)))
	return nil
}
