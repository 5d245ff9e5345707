package ast

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func decode(t *testing.T, src string) *Chunk {
	t.Helper()
	c, err := Decode(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return c
}

func TestDecodeLetAndReturn(t *testing.T) {
	c := decode(t, `
- let: {ident: x, expr: {binary: {op: "+", left: 1, right: 2.5}}}
  loc: [0, 14]
- return: x
  loc: [15, 23]
`)
	if len(c.Statements) != 2 {
		t.Fatalf("got %d statements, want 2", len(c.Statements))
	}
	if c.Span() != (Span{Start: 0, End: 23}) {
		t.Errorf("chunk span = %s, want 0..23", c.Span())
	}

	let, ok := c.Statements[0].(*Let)
	if !ok {
		t.Fatalf("statement 0 is %T, want *Let", c.Statements[0])
	}
	if let.Ident.Name != "x" || let.Span() != (Span{Start: 0, End: 14}) {
		t.Errorf("let = %s at %s", let.Ident.Name, let.Span())
	}
	bin, ok := let.Expr.(*Binary)
	if !ok || bin.Op != OpPlus {
		t.Fatalf("let expr = %#v, want a + binary", let.Expr)
	}
	if l, ok := bin.Left.(*IntLiteral); !ok || l.Value != 1 {
		t.Errorf("left = %#v, want int 1", bin.Left)
	}
	if r, ok := bin.Right.(*FloatLiteral); !ok || r.Value != 2.5 {
		t.Errorf("right = %#v, want float 2.5", bin.Right)
	}

	ret := c.Statements[1].(*Return)
	if id, ok := ret.Expr.(*Ident); !ok || id.Name != "x" {
		t.Errorf("return expr = %#v, want ident x", ret.Expr)
	}
}

func TestDecodeScalarShorthand(t *testing.T) {
	tests := []struct {
		src   string
		check func(Expr) bool
	}{
		{"42", func(e Expr) bool { v, ok := e.(*IntLiteral); return ok && v.Value == 42 }},
		{"-1.5", func(e Expr) bool { v, ok := e.(*FloatLiteral); return ok && v.Value == -1.5 }},
		{"true", func(e Expr) bool { v, ok := e.(*BoolLiteral); return ok && v.Value }},
		{"null", func(e Expr) bool { _, ok := e.(*Null); return ok }},
		{"name", func(e Expr) bool { v, ok := e.(*Ident); return ok && v.Name == "name" }},
		{"{string: hi}", func(e Expr) bool { v, ok := e.(*StringLiteral); return ok && v.Value == "hi" }},
		{"{char: é}", func(e Expr) bool { v, ok := e.(*CharLiteral); return ok && v.Value == 'é' }},
		{"{int: 7}", func(e Expr) bool { v, ok := e.(*IntLiteral); return ok && v.Value == 7 }},
		{"{paren: 1}", func(e Expr) bool { _, ok := e.(*Paren); return ok }},
		{"{unary: {op: not, expr: false}}", func(e Expr) bool { v, ok := e.(*Unary); return ok && v.Op == OpNot }},
	}
	for _, tt := range tests {
		c := decode(t, "- return: "+tt.src)
		got := c.Statements[0].(*Return).Expr
		if !tt.check(got) {
			t.Errorf("%s decoded to %#v", tt.src, got)
		}
	}
}

func TestDecodeCompounds(t *testing.T) {
	c := decode(t, `
- let:
    ident: o
    expr: {object: {b: 1, a: {vector: [1, {tuple: [2, 3]}]}}}
- let:
    ident: f
    expr: {fn: {params: [x, y], body: [{return: {call: {head: g, args: [x]}}}]}}
`)
	obj := c.Statements[0].(*Let).Expr.(*ObjectLiteral)
	if len(obj.Fields) != 2 || obj.Fields[0].Name.Name != "b" || obj.Fields[1].Name.Name != "a" {
		t.Fatalf("object fields = %#v, want b then a", obj.Fields)
	}
	vec := obj.Fields[1].Expr.(*VectorLiteral)
	if len(vec.Elements) != 2 {
		t.Fatalf("vector has %d elements, want 2", len(vec.Elements))
	}
	if tup := vec.Elements[1].(*TupleLiteral); len(tup.Elements) != 2 {
		t.Errorf("tuple has %d elements, want 2", len(tup.Elements))
	}

	fn := c.Statements[1].(*Let).Expr.(*FnLiteral)
	if len(fn.Params) != 2 || fn.Params[1].Name != "y" {
		t.Errorf("params = %v", fn.Params)
	}
	body := fn.Body.(*Block)
	call := body.Statements[0].(*Return).Expr.(*CallExpr)
	if call.Head.(*Ident).Name != "g" || len(call.Args) != 1 {
		t.Errorf("call = %#v", call)
	}
}

func TestDecodeControlFlow(t *testing.T) {
	c := decode(t, `
- while:
    cond: true
    body: [break, continue]
- for: {ident: e, in: xs, body: []}
- if-some:
    ident: v
    expr: maybe
    then: [{return: v}]
    else: [{return: 0}]
- if: {cond: false, then: [], else: null}
- while-some: {ident: n, expr: next, body: {block: []}}
`)
	w := c.Statements[0].(*While)
	body := w.Body.(*Block)
	if _, ok := body.Statements[0].(*Break); !ok {
		t.Errorf("while body[0] = %T, want *Break", body.Statements[0])
	}
	if _, ok := body.Statements[1].(*Continue); !ok {
		t.Errorf("while body[1] = %T, want *Continue", body.Statements[1])
	}
	if f := c.Statements[1].(*For); f.Ident.Name != "e" || f.Iter.(*Ident).Name != "xs" {
		t.Errorf("for = %#v", f)
	}
	if is := c.Statements[2].(*IfSome); is.Ident.Name != "v" || is.Else == nil {
		t.Errorf("if-some = %#v", is)
	}
	if i := c.Statements[3].(*If); i.Else != nil {
		t.Errorf("if with null else decoded else = %#v", i.Else)
	}
	if ws := c.Statements[4].(*WhileSome); ws.Ident.Name != "n" {
		t.Errorf("while-some = %#v", ws)
	}
}

func TestDecodePaths(t *testing.T) {
	c := decode(t, `
- assign: {path: x, expr: 1}
- assign:
    op: "+="
    path: {index: {head: {field: {head: o, name: items}}, index: 0}}
    expr: 2
- call: {path: {field: {head: o, name: run}}, args: [1, 2]}
`)
	if p := c.Statements[0].(*Assign).Path.(*IdentPath); p.Name != "x" {
		t.Errorf("path = %#v, want x", p)
	}
	a := c.Statements[1].(*Assign)
	if a.Op != AssignAdd {
		t.Errorf("op = %s, want +=", a.Op)
	}
	idx := a.Path.(*IndexPath)
	field := idx.Head.(*FieldPath)
	if field.Field.Name != "items" || field.Head.(*IdentPath).Name != "o" {
		t.Errorf("path head = %#v", field)
	}
	call := c.Statements[2].(*CallStmt)
	if len(call.Args) != 2 {
		t.Errorf("call args = %d, want 2", len(call.Args))
	}
}

func TestDecodeChunkMapping(t *testing.T) {
	c := decode(t, `{chunk: [{return: 1}], loc: [0, 9]}`)
	if len(c.Statements) != 1 || c.Span() != (Span{Start: 0, End: 9}) {
		t.Errorf("chunk = %d statements at %s", len(c.Statements), c.Span())
	}
}

func TestDecodeEmpty(t *testing.T) {
	c := decode(t, "")
	if len(c.Statements) != 0 {
		t.Errorf("empty document has %d statements", len(c.Statements))
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"two kinds", "- {let: {ident: x, expr: 1}, return: 1}"},
		{"no kind", "- {loc: [0, 1]}"},
		{"unknown statement", "- {goto: x}"},
		{"scalar statement", "- 42"},
		{"missing expr", "- let: {ident: x}"},
		{"bad operator", `- return: {binary: {op: "<<", left: 1, right: 2}}`},
		{"bad loc", "- return: 1\n  loc: [5, 2]"},
		{"loc shape", "- return: 1\n  loc: [5]"},
		{"char too long", "- return: {char: ab}"},
		{"empty char", `- return: {char: ""}`},
		{"unknown expression", "- return: {lambda: 1}"},
		{"bad path", "- assign: {path: 3, expr: 1}"},
		{"not a list", "return: 1"},
		{"bad assign op", `- assign: {op: "&=", path: x, expr: 1}`},
	}
	for _, tt := range tests {
		_, err := Decode(strings.NewReader(tt.src))
		if err == nil {
			t.Errorf("%s: decoded without error", tt.name)
			continue
		}
		var de *DecodeError
		if tt.name != "not a list" && !errors.As(err, &de) {
			t.Errorf("%s: error %v is not a *DecodeError", tt.name, err)
		}
	}
}

func TestDecodeErrorPosition(t *testing.T) {
	_, err := Decode(strings.NewReader("- return: 1\n- {goto: x}\n"))
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("error = %v, want *DecodeError", err)
	}
	if de.Line != 2 {
		t.Errorf("line = %d, want 2", de.Line)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog.yaml")
	if err := os.WriteFile(path, []byte("- return: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(c.Statements) != 1 {
		t.Errorf("got %d statements, want 1", len(c.Statements))
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFile of a missing file succeeded")
	}
}
