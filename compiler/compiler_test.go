package compiler

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/chazu/marte/ast"
	"github.com/chazu/marte/vm"
)

// compileTree decodes a tree document and compiles it. Every chunk the
// compiler produces must validate.
func compileTree(t *testing.T, src string, opts ...Option) *vm.Chunk {
	t.Helper()
	tree, err := ast.Decode(strings.NewReader(src))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	chunk, err := Compile(tree, opts...)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	if err := chunk.Validate(); err != nil {
		t.Fatalf("chunk does not validate: %v\n%s", err, chunk.Disassemble())
	}
	return chunk
}

func compileErr(t *testing.T, src string) error {
	t.Helper()
	tree, err := ast.Decode(strings.NewReader(src))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	_, err = Compile(tree)
	return err
}

func TestCompileLetReturn(t *testing.T) {
	chunk := compileTree(t, `
- let: {ident: x, expr: {binary: {op: "+", left: 1, right: 2}}}
- return: x
`)
	got, err := vm.Execute(chunk)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got.Kind() != vm.KindInt || got.Int() != 3 {
		t.Errorf("result = %v, want 3", got)
	}
}

func TestCompileRun(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"empty chunk", ``, "null"},
		{"implicit null", `[{let: {ident: x, expr: 1}}]`, "null"},
		{"large int", `[{return: 100000}]`, "100000"},
		{"float promotion", `[{return: {binary: {op: "+", left: 1.5, right: 1}}}]`, "2.5"},
		{"negate", `[{return: {unary: {op: "-", expr: 3}}}]`, "-3"},
		{"not", `[{return: {unary: {op: not, expr: false}}}]`, "true"},
		{"string plus char", `[{return: {binary: {op: "+", left: {string: a}, right: {char: b}}}}]`, `"ab"`},
		{"string index", `[{return: {index: {head: {string: héllo}, index: 1}}}]`, `'é'`},
		{"and short-circuits", `[{return: {binary: {op: and, left: false, right: {binary: {op: "==", left: {binary: {op: /, left: 1, right: 0}}, right: 0}}}}}]`, "false"},
		{"or short-circuits", `[{return: {binary: {op: or, left: true, right: {binary: {op: "==", left: {binary: {op: /, left: 1, right: 0}}, right: 0}}}}}]`, "true"},
		{"if-some null takes else", `
- if-some:
    ident: y
    expr: null
    then: [{return: 1}]
    else: [{return: 2}]
`, "2"},
		{"if-some binds value", `
- if-some:
    ident: y
    expr: 7
    then: [{return: y}]
    else: [{return: 2}]
`, "7"},
		{"if without else", `
- let: {ident: x, expr: 1}
- if: {cond: false, then: [{assign: {path: x, expr: 2}}]}
- return: x
`, "1"},
		{"while", `
- let: {ident: i, expr: 0}
- while:
    cond: {binary: {op: "<", left: i, right: 3}}
    body: [{assign: {op: "+=", path: i, expr: 1}}]
- return: i
`, "3"},
		{"break and continue", `
- let: {ident: i, expr: 0}
- let: {ident: s, expr: 0}
- while:
    cond: true
    body:
      - assign: {op: "+=", path: i, expr: 1}
      - if: {cond: {binary: {op: ">", left: i, right: 5}}, then: [break]}
      - if: {cond: {binary: {op: "==", left: {binary: {op: "%", left: i, right: 2}}, right: 0}}, then: [continue]}
      - assign: {op: "+=", path: s, expr: i}
- return: s
`, "9"},
		{"for over vector", `
- let: {ident: s, expr: 0}
- for: {ident: x, in: {vector: [1, 2, 3]}, body: [{assign: {op: "+=", path: s, expr: x}}]}
- return: s
`, "6"},
		{"for over string", `
- let: {ident: n, expr: 0}
- for: {ident: c, in: {string: héllo}, body: [{assign: {op: "+=", path: n, expr: 1}}]}
- return: n
`, "5"},
		{"for over object", `
- let: {ident: ks, expr: {string: ""}}
- for:
    ident: p
    in: {object: {a: 1, b: 2}}
    body: [{assign: {op: "+=", path: ks, expr: {index: {head: p, index: 0}}}}]
- return: ks
`, `"ab"`},
		{"while-some", `
- let: {ident: st, expr: {object: {n: 0}}}
- let:
    ident: next
    expr:
      fn:
        body:
          - if:
              cond: {binary: {op: "<", left: {field: {head: st, name: n}}, right: 3}}
              then:
                - assign: {op: "+=", path: {field: {head: st, name: n}}, expr: 1}
                - return: {field: {head: st, name: n}}
          - return: null
- let: {ident: s, expr: 0}
- while-some: {ident: x, expr: {call: {head: next}}, body: [{assign: {op: "+=", path: s, expr: x}}]}
- return: s
`, "6"},
		{"call", `
- let: {ident: add, expr: {fn: {params: [a, b], body: [{return: {binary: {op: "+", left: a, right: b}}}]}}}
- return: {call: {head: add, args: [2, 3]}}
`, "5"},
		{"capture", `
- let: {ident: k, expr: 10}
- let: {ident: f, expr: {fn: {params: [x], body: [{return: {binary: {op: "+", left: x, right: k}}}]}}}
- return: {call: {head: f, args: [1]}}
`, "11"},
		{"capture by value", `
- let: {ident: k, expr: 1}
- let: {ident: f, expr: {fn: {body: [{return: k}]}}}
- assign: {path: k, expr: 2}
- return: {call: {head: f}}
`, "1"},
		{"recursion", `
- let:
    ident: fact
    expr:
      fn:
        params: [n]
        body:
          - if: {cond: {binary: {op: "<=", left: n, right: 1}}, then: [{return: 1}]}
          - return: {binary: {op: "*", left: n, right: {call: {head: fact, args: [{binary: {op: "-", left: n, right: 1}}]}}}}
- return: {call: {head: fact, args: [5]}}
`, "120"},
		{"nested capture", `
- let: {ident: a, expr: 5}
- let:
    ident: outer
    expr:
      fn:
        body:
          - let: {ident: inner, expr: {fn: {body: [{return: a}]}}}
          - return: {call: {head: inner}}
- return: {call: {head: outer}}
`, "5"},
		{"anonymous function call", `
- return: {call: {head: {paren: {fn: {params: [x], body: [{return: {binary: {op: "*", left: x, right: x}}}]}}}, args: [7]}}
`, "49"},
		{"call statement", `
- let: {ident: o, expr: {object: {n: 0}}}
- let: {ident: bump, expr: {fn: {body: [{assign: {op: "+=", path: {field: {head: o, name: n}}, expr: 1}}]}}}
- call: {path: bump}
- call: {path: bump}
- return: {field: {head: o, name: n}}
`, "2"},
		{"field assignment", `
- let: {ident: o, expr: {object: {a: 1}}}
- assign: {op: "+=", path: {field: {head: o, name: a}}, expr: 4}
- assign: {path: {field: {head: o, name: b}}, expr: 2}
- return: {binary: {op: "+", left: {field: {head: o, name: a}}, right: {field: {head: o, name: b}}}}
`, "7"},
		{"index assignment", `
- let: {ident: v, expr: {vector: [1, 2, 3]}}
- assign: {op: "*=", path: {index: {head: v, index: 1}}, expr: 10}
- return: {index: {head: v, index: 1}}
`, "20"},
		{"tuple literal", `
- let: {ident: a, expr: 3}
- return: {tuple: [a, {string: x}]}
`, `(3, "x")`},
		{"vector literal", `
- let: {ident: a, expr: 3}
- return: {vector: [a, 1]}
`, "[3, 1]"},
		{"object literal", `
- let: {ident: a, expr: 3}
- return: {object: {x: a, y: {string: s}}}
`, `{x: 3, y: "s"}`},
		{"constant vectors are fresh", `
- let: {ident: mk, expr: {fn: {body: [{return: {vector: [1, 2]}}]}}}
- let: {ident: a, expr: {call: {head: mk}}}
- assign: {path: {index: {head: a, index: 0}}, expr: 9}
- return: {call: {head: mk}}
`, "[1, 2]"},
		{"shadowing in nested scope", `
- let: {ident: x, expr: 1}
- [{let: {ident: x, expr: 2}}]
- return: x
`, "1"},
		{"fn binding shadows outer name", `
- let: {ident: x, expr: 1}
- - let: {ident: x, expr: {fn: {body: [{return: x}]}}}
  - return: {call: {head: x}}
`, "<fn x>"},
		{"top-level falls through to null", `
- let: {ident: x, expr: 1}
- if: {cond: false, then: [{return: x}]}
`, "null"},
		{"vector equality is identity", `
- let: {ident: v, expr: {vector: [1]}}
- return: {tuple: [{binary: {op: "==", left: {vector: [1]}, right: {vector: [1]}}}, {binary: {op: "==", left: v, right: v}}]}
`, "(false, true)"},
		{"closure value", `
- let: {ident: f, expr: {fn: {body: []}}}
- return: f
`, "<fn f>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunk := compileTree(t, tt.src)
			got, err := vm.Execute(chunk)
			if err != nil {
				t.Fatalf("execute: %v\n%s", err, chunk.Disassemble())
			}
			if got.String() != tt.want {
				t.Errorf("result = %s, want %s\n%s", got, tt.want, chunk.Disassemble())
			}
		})
	}
}

func TestCompileWithParams(t *testing.T) {
	chunk := compileTree(t, `[{return: {binary: {op: "*", left: n, right: 2}}}]`, WithParams("n"))
	if got := chunk.Functions[0].Params; len(got) != 1 || got[0] != "n" {
		t.Fatalf("entry params = %v, want [n]", got)
	}
	got, err := vm.Execute(chunk, vm.FromInt(4))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got.Int() != 8 {
		t.Errorf("result = %v, want 8", got)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"duplicate let", `[{let: {ident: x, expr: 1}}, {let: {ident: x, expr: 2}}]`, ErrDuplicateBinding},
		{"duplicate param", `[{let: {ident: f, expr: {fn: {params: [a, a], body: []}}}}]`, ErrDuplicateBinding},
		{"unbound", `[{return: y}]`, ErrUnboundIdentifier},
		{"unbound assignment", `[{assign: {path: y, expr: 1}}]`, ErrUnboundIdentifier},
		{"if-some binding not in else", `[{if-some: {ident: y, expr: 1, then: [], else: [{return: y}]}}]`, ErrUnboundIdentifier},
		{"scope ends", `[[{let: {ident: x, expr: 1}}], {return: x}]`, ErrUnboundIdentifier},
		{"break outside loop", `[break]`, ErrInvalidControlFlow},
		{"continue outside loop", `[continue]`, ErrInvalidControlFlow},
		{"continue across function", `[{while: {cond: true, body: [{let: {ident: f, expr: {fn: {body: [continue]}}}}]}}]`, ErrInvalidControlFlow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := compileErr(t, tt.src)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			var ce *CompileError
			if !errors.As(err, &ce) {
				t.Fatalf("error %T is not a *CompileError", err)
			}
		})
	}
}

func TestCompileErrorSpan(t *testing.T) {
	err := compileErr(t, `[{return: {ident: y, loc: [7, 8]}}]`)
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want *CompileError", err)
	}
	if ce.Span != (ast.Span{Start: 7, End: 8}) {
		t.Errorf("span = %s, want 7..8", ce.Span)
	}
}

func TestCompileTooManyArguments(t *testing.T) {
	args := make([]ast.Expr, 256)
	for i := range args {
		args[i] = &ast.IntLiteral{Value: int64(i)}
	}
	tree := &ast.Chunk{Statements: []ast.Stmt{
		&ast.Return{Expr: &ast.CallExpr{Head: &ast.Ident{Name: "f"}, Args: args}},
	}}
	if _, err := Compile(tree); !errors.Is(err, ErrTooManyArguments) {
		t.Fatalf("error = %v, want too many arguments", err)
	}
}

func TestCompileRegisterExhaustion(t *testing.T) {
	var stmts []ast.Stmt
	for i := 0; i <= vm.MaxRegisters; i++ {
		stmts = append(stmts, &ast.Let{
			Ident: &ast.Name{Name: fmt.Sprintf("v%d", i)},
			Expr:  &ast.IntLiteral{Value: int64(i)},
		})
	}
	if _, err := Compile(&ast.Chunk{Statements: stmts}); !errors.Is(err, ErrRegisterExhaustion) {
		t.Fatalf("error = %v, want register exhaustion", err)
	}
}

func TestCompileCodeOverflow(t *testing.T) {
	stmts := make([]ast.Stmt, 40000)
	for i := range stmts {
		stmts[i] = &ast.Return{Expr: &ast.IntLiteral{Value: 1}}
	}
	if _, err := Compile(&ast.Chunk{Statements: stmts}); !errors.Is(err, ErrCodeOverflow) {
		t.Fatalf("error = %v, want code overflow", err)
	}
}

func TestCompileConstantPoolOverflow(t *testing.T) {
	// A balanced concatenation of distinct strings keeps register use low.
	var build func(lo, hi int) ast.Expr
	build = func(lo, hi int) ast.Expr {
		if lo == hi {
			return &ast.StringLiteral{Value: fmt.Sprintf("s%d", lo)}
		}
		mid := (lo + hi) / 2
		return &ast.Binary{Op: ast.OpPlus, Left: build(lo, mid), Right: build(mid+1, hi)}
	}
	tree := &ast.Chunk{Statements: []ast.Stmt{
		&ast.Return{Expr: build(0, vm.MaxAddress+1)},
	}}
	if _, err := Compile(tree); !errors.Is(err, ErrConstantPoolOverflow) {
		t.Fatalf("error = %v, want constant pool overflow", err)
	}
}

func TestScopeExitReusesRegisters(t *testing.T) {
	chunk := compileTree(t, `
- [{let: {ident: a, expr: 1}}]
- [{let: {ident: b, expr: 2}}]
`)
	if n := chunk.Functions[0].NumRegisters; n != 1 {
		t.Errorf("NumRegisters = %d, want 1\n%s", n, chunk.Disassemble())
	}
}

func TestWhileBodyRunsThreeTimes(t *testing.T) {
	chunk := compileTree(t, `
- let: {ident: i, expr: 0}
- while:
    cond: {binary: {op: "<", left: i, right: 3}}
    body: [{assign: {op: "+=", path: i, expr: 1}}]
`)
	adds := 0
	m := vm.New(chunk, vm.WithHook(func(pc int, in vm.Instruction) error {
		if in.Op == vm.OpBinary && in.BinaryOp() == vm.BinAdd {
			adds++
		}
		return nil
	}))
	if _, err := m.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if adds != 3 {
		t.Errorf("body ran %d times, want 3", adds)
	}
}

func TestShortCircuitDispatchCount(t *testing.T) {
	tests := []struct {
		src  string
		want int64
	}{
		// BOOL, JUMP_IF_NOT, RETURN
		{`[{return: {binary: {op: and, left: false, right: true}}}]`, 3},
		// BOOL, JUMP_IF_NOT, BOOL, BINARY, RETURN
		{`[{return: {binary: {op: and, left: true, right: true}}}]`, 5},
		{`[{return: {binary: {op: or, left: true, right: false}}}]`, 3},
	}
	for _, tt := range tests {
		chunk := compileTree(t, tt.src)
		m := vm.New(chunk)
		if _, err := m.Run(); err != nil {
			t.Fatalf("run %s: %v", tt.src, err)
		}
		if got := m.Stats().Dispatched; got != tt.want {
			t.Errorf("%s: dispatched %d, want %d", tt.src, got, tt.want)
		}
	}
}

func TestDivisionByZeroLeavesRegisters(t *testing.T) {
	chunk := compileTree(t, `
- let: {ident: a, expr: 5}
- let: {ident: b, expr: 0}
- return: {binary: {op: /, left: a, right: b}, loc: [20, 25]}
`)
	m := vm.New(chunk)
	_, err := m.Run()
	if !errors.Is(err, vm.ErrDivisionByZero) {
		t.Fatalf("error = %v, want division by zero", err)
	}
	if m.State() != vm.Faulted {
		t.Errorf("state = %s, want faulted", m.State())
	}
	regs := m.Registers()
	if regs[2].Kind() != vm.KindInt || regs[2].Int() != 5 {
		t.Errorf("r2 = %v, want 5 (untouched)", regs[2])
	}
	var re *vm.RuntimeError
	if !errors.As(err, &re) {
		t.Fatalf("error %T is not a *vm.RuntimeError", err)
	}
	if chunk.Code[re.PC].Op != vm.OpBinary {
		t.Errorf("fault pc %d is %s, want BINARY", re.PC, chunk.Code[re.PC])
	}
	if span, ok := chunk.SpanAt(re.PC); !ok || span != (vm.SourceSpan{Start: 20, End: 25}) {
		t.Errorf("fault span = %v, want 20..25", span)
	}
}

func TestJumpTargetsInRange(t *testing.T) {
	chunk := compileTree(t, `
- let: {ident: i, expr: 0}
- while:
    cond: {binary: {op: "<", left: i, right: 10}}
    body:
      - if: {cond: {binary: {op: "==", left: i, right: 5}}, then: [break], else: [{assign: {op: "+=", path: i, expr: 1}}]}
- for: {ident: x, in: {vector: [1, 2]}, body: [continue]}
- return: {binary: {op: or, left: false, right: true}}
`)
	for pc, in := range chunk.Code {
		if in.Op.IsJump() && int(in.Addr) >= len(chunk.Code) {
			t.Errorf("pc %d: %s targets outside code of %d", pc, in, len(chunk.Code))
		}
	}
}

func TestCaptureLists(t *testing.T) {
	chunk := compileTree(t, `
- let: {ident: a, expr: 1}
- let: {ident: b, expr: 2}
- let: {ident: f, expr: {fn: {body: [{return: {binary: {op: "+", left: b, right: a}}}]}}}
- let:
    ident: outer
    expr:
      fn:
        params: [p]
        body:
          - let: {ident: inner, expr: {fn: {body: [{return: a}]}}}
          - return: {call: {head: inner}}
`)
	if len(chunk.Functions) != 4 {
		t.Fatalf("functions = %d, want 4", len(chunk.Functions))
	}

	f := chunk.Functions[1]
	if f.Name != "f" {
		t.Errorf("function 1 name = %q, want f", f.Name)
	}
	want := []vm.Capture{{Name: "b", Source: 1}, {Name: "a", Source: 0}}
	if len(f.Captures) != len(want) {
		t.Fatalf("f captures = %v, want %v", f.Captures, want)
	}
	for i := range want {
		if f.Captures[i] != want[i] {
			t.Errorf("f capture %d = %v, want %v", i, f.Captures[i], want[i])
		}
	}

	// outer captures a for inner; inside outer, a follows the parameter
	outer, inner := chunk.Functions[2], chunk.Functions[3]
	if len(outer.Captures) != 1 || outer.Captures[0] != (vm.Capture{Name: "a", Source: 0}) {
		t.Errorf("outer captures = %v, want [a<-r0]", outer.Captures)
	}
	if len(inner.Captures) != 1 || inner.Captures[0] != (vm.Capture{Name: "a", Source: 1}) {
		t.Errorf("inner captures = %v, want [a<-r1]", inner.Captures)
	}
}

func TestCompileStackOverflow(t *testing.T) {
	chunk := compileTree(t, `
- let: {ident: f, expr: {fn: {body: [{return: {call: {head: f}}}]}}}
- return: {call: {head: f}}
`)
	_, err := vm.New(chunk, vm.WithMaxDepth(64)).Run()
	if !errors.Is(err, vm.ErrStackOverflow) {
		t.Fatalf("error = %v, want stack overflow", err)
	}
}

func TestCompileArityMismatch(t *testing.T) {
	chunk := compileTree(t, `
- let: {ident: f, expr: {fn: {params: [a], body: [{return: a}]}}}
- return: {call: {head: f, args: [1, 2]}}
`)
	if _, err := vm.Execute(chunk); !errors.Is(err, vm.ErrArityMismatch) {
		t.Fatalf("error = %v, want arity mismatch", err)
	}
}
