package ast

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Tree files
// ---------------------------------------------------------------------------
//
// A tree file is a YAML (or JSON) serialization of a Chunk written by a
// front-end. Every node is a mapping with a single key naming its kind and
// an optional "loc: [start, end]" span:
//
//	- let: {ident: x, expr: {binary: {op: "+", left: {int: 1}, right: {int: 2}}}}
//	  loc: [0, 14]
//	- return: x
//
// Plain scalars are shorthand atoms: integers, floats, booleans and null map
// to literals, and bare words map to identifiers. Strings and characters are
// always explicit ({string: "hi"}, {char: "c"}).

// DecodeError reports a malformed tree file.
type DecodeError struct {
	Line   int
	Column int
	Msg    string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("tree %d:%d: %s", e.Line, e.Column, e.Msg)
}

// LoadFile reads and decodes the tree file at path.
func LoadFile(path string) (*Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	defer f.Close()

	chunk, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return chunk, nil
}

// Decode reads one tree document from r. The document is either a sequence
// of statements or a mapping {chunk: [...], loc: [...]}.
func Decode(r io.Reader) (*Chunk, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &Chunk{}, nil
		}
		return nil, err
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	return decodeChunk(root)
}

// DecodeBytes decodes a tree document held in memory.
func DecodeBytes(data []byte) (*Chunk, error) {
	return Decode(bytes.NewReader(data))
}

func decodeChunk(n *yaml.Node) (*Chunk, error) {
	n = resolve(n)
	if n.Kind == yaml.MappingNode {
		kind, body, span, err := single(n)
		if err != nil {
			return nil, err
		}
		if kind != "chunk" {
			return nil, errorAt(n, "expected chunk, got %q", kind)
		}
		stmts, err := stmtList(body)
		if err != nil {
			return nil, err
		}
		return &Chunk{SpanVal: span, Statements: stmts}, nil
	}
	stmts, err := stmtList(n)
	if err != nil {
		return nil, err
	}
	return &Chunk{SpanVal: spanOf(stmts), Statements: stmts}, nil
}

// ---------------------------------------------------------------------------
// Node helpers
// ---------------------------------------------------------------------------

func errorAt(n *yaml.Node, format string, args ...any) error {
	return &DecodeError{Line: n.Line, Column: n.Column, Msg: fmt.Sprintf(format, args...)}
}

func resolve(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

// single splits a node mapping into its kind key, the kind's body and the
// optional loc span.
func single(n *yaml.Node) (string, *yaml.Node, Span, error) {
	var (
		kind string
		body *yaml.Node
		span Span
	)
	if n.Kind != yaml.MappingNode {
		return "", nil, span, errorAt(n, "expected a node mapping")
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], resolve(n.Content[i+1])
		if key.Value == "loc" {
			s, err := decodeSpan(val)
			if err != nil {
				return "", nil, span, err
			}
			span = s
			continue
		}
		if body != nil {
			return "", nil, span, errorAt(key, "node has more than one kind: %q and %q", kind, key.Value)
		}
		kind, body = key.Value, val
	}
	if body == nil {
		return "", nil, span, errorAt(n, "node has no kind")
	}
	return kind, body, span, nil
}

func decodeSpan(n *yaml.Node) (Span, error) {
	var pair []int
	if err := n.Decode(&pair); err != nil || len(pair) != 2 {
		return Span{}, errorAt(n, "loc must be [start, end]")
	}
	if pair[0] < 0 || pair[1] < pair[0] {
		return Span{}, errorAt(n, "invalid loc [%d, %d]", pair[0], pair[1])
	}
	return Span{Start: pair[0], End: pair[1]}, nil
}

// fields returns the value nodes of a mapping by key.
func fields(n *yaml.Node) (map[string]*yaml.Node, error) {
	if n.Kind != yaml.MappingNode {
		return nil, errorAt(n, "expected a mapping")
	}
	out := make(map[string]*yaml.Node, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		out[n.Content[i].Value] = resolve(n.Content[i+1])
	}
	return out, nil
}

func required(n *yaml.Node, f map[string]*yaml.Node, key string) (*yaml.Node, error) {
	v, ok := f[key]
	if !ok {
		return nil, errorAt(n, "missing %q", key)
	}
	return v, nil
}

func isNull(n *yaml.Node) bool {
	return n == nil || (n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null")
}

func decodeName(n *yaml.Node, span Span) (*Name, error) {
	if n.Kind != yaml.ScalarNode || n.Value == "" {
		return nil, errorAt(n, "expected a name")
	}
	return &Name{SpanVal: span, Name: n.Value}, nil
}

func spanOf(stmts []Stmt) Span {
	if len(stmts) == 0 {
		return Span{}
	}
	return Span{Start: stmts[0].Span().Start, End: stmts[len(stmts)-1].Span().End}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func stmtList(n *yaml.Node) ([]Stmt, error) {
	n = resolve(n)
	if isNull(n) {
		return nil, nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, errorAt(n, "expected a statement list")
	}
	stmts := make([]Stmt, 0, len(n.Content))
	for _, c := range n.Content {
		s, err := decodeStmt(c)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return stmts, nil
}

// optionalStmt decodes an absent or null node as a nil statement.
func optionalStmt(f map[string]*yaml.Node, key string) (Stmt, error) {
	n, ok := f[key]
	if !ok || isNull(n) {
		return nil, nil
	}
	return decodeStmt(n)
}

func decodeStmt(n *yaml.Node) (Stmt, error) {
	n = resolve(n)
	if n.Kind == yaml.SequenceNode {
		stmts, err := stmtList(n)
		if err != nil {
			return nil, err
		}
		return &Block{SpanVal: spanOf(stmts), Statements: stmts}, nil
	}
	if n.Kind == yaml.ScalarNode {
		switch n.Value {
		case "break":
			return &Break{}, nil
		case "continue":
			return &Continue{}, nil
		}
		return nil, errorAt(n, "unexpected scalar %q in statement position", n.Value)
	}

	kind, body, span, err := single(n)
	if err != nil {
		return nil, err
	}

	switch kind {
	case "block":
		stmts, err := stmtList(body)
		if err != nil {
			return nil, err
		}
		return &Block{SpanVal: span, Statements: stmts}, nil

	case "break":
		return &Break{SpanVal: span}, nil

	case "continue":
		return &Continue{SpanVal: span}, nil

	case "return":
		expr, err := decodeExpr(body)
		if err != nil {
			return nil, err
		}
		return &Return{SpanVal: span, Expr: expr}, nil
	}

	f, err := fields(body)
	if err != nil {
		return nil, err
	}

	switch kind {
	case "let":
		identNode, err := required(body, f, "ident")
		if err != nil {
			return nil, err
		}
		ident, err := decodeName(identNode, span)
		if err != nil {
			return nil, err
		}
		exprNode, err := required(body, f, "expr")
		if err != nil {
			return nil, err
		}
		expr, err := decodeExpr(exprNode)
		if err != nil {
			return nil, err
		}
		return &Let{SpanVal: span, Ident: ident, Expr: expr}, nil

	case "assign":
		op := AssignSet
		if opNode, ok := f["op"]; ok {
			parsed, ok := ParseAssignOperator(opNode.Value)
			if !ok {
				return nil, errorAt(opNode, "unknown assignment operator %q", opNode.Value)
			}
			op = parsed
		}
		pathNode, err := required(body, f, "path")
		if err != nil {
			return nil, err
		}
		path, err := decodePath(pathNode)
		if err != nil {
			return nil, err
		}
		exprNode, err := required(body, f, "expr")
		if err != nil {
			return nil, err
		}
		expr, err := decodeExpr(exprNode)
		if err != nil {
			return nil, err
		}
		return &Assign{SpanVal: span, Op: op, Path: path, Expr: expr}, nil

	case "call":
		pathNode, err := required(body, f, "path")
		if err != nil {
			return nil, err
		}
		path, err := decodePath(pathNode)
		if err != nil {
			return nil, err
		}
		args, err := exprList(f["args"])
		if err != nil {
			return nil, err
		}
		return &CallStmt{SpanVal: span, Path: path, Args: args}, nil

	case "if":
		condNode, err := required(body, f, "cond")
		if err != nil {
			return nil, err
		}
		cond, err := decodeExpr(condNode)
		if err != nil {
			return nil, err
		}
		thenNode, err := required(body, f, "then")
		if err != nil {
			return nil, err
		}
		then, err := decodeStmt(thenNode)
		if err != nil {
			return nil, err
		}
		els, err := optionalStmt(f, "else")
		if err != nil {
			return nil, err
		}
		return &If{SpanVal: span, Cond: cond, Case: then, Else: els}, nil

	case "if-some":
		ident, expr, err := binding(body, f, span, "expr")
		if err != nil {
			return nil, err
		}
		thenNode, err := required(body, f, "then")
		if err != nil {
			return nil, err
		}
		then, err := decodeStmt(thenNode)
		if err != nil {
			return nil, err
		}
		els, err := optionalStmt(f, "else")
		if err != nil {
			return nil, err
		}
		return &IfSome{SpanVal: span, Ident: ident, Expr: expr, Case: then, Else: els}, nil

	case "while":
		condNode, err := required(body, f, "cond")
		if err != nil {
			return nil, err
		}
		cond, err := decodeExpr(condNode)
		if err != nil {
			return nil, err
		}
		loopBody, err := requiredStmt(body, f, "body")
		if err != nil {
			return nil, err
		}
		return &While{SpanVal: span, Cond: cond, Body: loopBody}, nil

	case "while-some":
		ident, expr, err := binding(body, f, span, "expr")
		if err != nil {
			return nil, err
		}
		loopBody, err := requiredStmt(body, f, "body")
		if err != nil {
			return nil, err
		}
		return &WhileSome{SpanVal: span, Ident: ident, Expr: expr, Body: loopBody}, nil

	case "for":
		ident, iter, err := binding(body, f, span, "in")
		if err != nil {
			return nil, err
		}
		loopBody, err := requiredStmt(body, f, "body")
		if err != nil {
			return nil, err
		}
		return &For{SpanVal: span, Ident: ident, Iter: iter, Body: loopBody}, nil
	}

	return nil, errorAt(n, "unknown statement kind %q", kind)
}

func requiredStmt(n *yaml.Node, f map[string]*yaml.Node, key string) (Stmt, error) {
	v, err := required(n, f, key)
	if err != nil {
		return nil, err
	}
	return decodeStmt(v)
}

// binding decodes the ident + expression pair shared by if-some,
// while-some and for.
func binding(n *yaml.Node, f map[string]*yaml.Node, span Span, exprKey string) (*Name, Expr, error) {
	identNode, err := required(n, f, "ident")
	if err != nil {
		return nil, nil, err
	}
	ident, err := decodeName(identNode, span)
	if err != nil {
		return nil, nil, err
	}
	exprNode, err := required(n, f, exprKey)
	if err != nil {
		return nil, nil, err
	}
	expr, err := decodeExpr(exprNode)
	if err != nil {
		return nil, nil, err
	}
	return ident, expr, nil
}

// ---------------------------------------------------------------------------
// Paths
// ---------------------------------------------------------------------------

func decodePath(n *yaml.Node) (Path, error) {
	n = resolve(n)
	if n.Kind == yaml.ScalarNode {
		if n.ShortTag() != "!!str" || n.Value == "" {
			return nil, errorAt(n, "expected a path")
		}
		return &IdentPath{Name: n.Value}, nil
	}

	kind, body, span, err := single(n)
	if err != nil {
		return nil, err
	}
	if kind == "ident" {
		name, err := decodeName(body, span)
		if err != nil {
			return nil, err
		}
		return &IdentPath{SpanVal: span, Name: name.Name}, nil
	}

	f, err := fields(body)
	if err != nil {
		return nil, err
	}
	headNode, err := required(body, f, "head")
	if err != nil {
		return nil, err
	}
	head, err := decodePath(headNode)
	if err != nil {
		return nil, err
	}

	switch kind {
	case "field":
		nameNode, err := required(body, f, "name")
		if err != nil {
			return nil, err
		}
		name, err := decodeName(nameNode, span)
		if err != nil {
			return nil, err
		}
		return &FieldPath{SpanVal: span, Head: head, Field: name}, nil

	case "index":
		indexNode, err := required(body, f, "index")
		if err != nil {
			return nil, err
		}
		index, err := decodeExpr(indexNode)
		if err != nil {
			return nil, err
		}
		return &IndexPath{SpanVal: span, Head: head, Index: index}, nil
	}

	return nil, errorAt(n, "unknown path kind %q", kind)
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func exprList(n *yaml.Node) ([]Expr, error) {
	n = resolve(n)
	if isNull(n) {
		return nil, nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, errorAt(n, "expected an expression list")
	}
	out := make([]Expr, 0, len(n.Content))
	for _, c := range n.Content {
		e, err := decodeExpr(c)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func decodeScalar(n *yaml.Node) (Expr, error) {
	switch n.ShortTag() {
	case "!!null":
		return &Null{}, nil
	case "!!int":
		var v int64
		if err := n.Decode(&v); err != nil {
			return nil, errorAt(n, "bad integer %q", n.Value)
		}
		return &IntLiteral{Value: v}, nil
	case "!!float":
		var v float64
		if err := n.Decode(&v); err != nil {
			return nil, errorAt(n, "bad float %q", n.Value)
		}
		return &FloatLiteral{Value: v}, nil
	case "!!bool":
		var v bool
		if err := n.Decode(&v); err != nil {
			return nil, errorAt(n, "bad boolean %q", n.Value)
		}
		return &BoolLiteral{Value: v}, nil
	case "!!str":
		if n.Value == "" {
			return nil, errorAt(n, "empty identifier")
		}
		return &Ident{Name: n.Value}, nil
	}
	return nil, errorAt(n, "unsupported scalar %q", n.Value)
}

func decodeExpr(n *yaml.Node) (Expr, error) {
	n = resolve(n)
	if n == nil {
		return &Null{}, nil
	}
	if n.Kind == yaml.ScalarNode {
		return decodeScalar(n)
	}

	kind, body, span, err := single(n)
	if err != nil {
		return nil, err
	}

	switch kind {
	case "null":
		return &Null{SpanVal: span}, nil

	case "ident":
		name, err := decodeName(body, span)
		if err != nil {
			return nil, err
		}
		return &Ident{SpanVal: span, Name: name.Name}, nil

	case "int":
		var v int64
		if err := body.Decode(&v); err != nil {
			return nil, errorAt(body, "bad integer %q", body.Value)
		}
		return &IntLiteral{SpanVal: span, Value: v}, nil

	case "float":
		var v float64
		if err := body.Decode(&v); err != nil {
			return nil, errorAt(body, "bad float %q", body.Value)
		}
		return &FloatLiteral{SpanVal: span, Value: v}, nil

	case "bool":
		var v bool
		if err := body.Decode(&v); err != nil {
			return nil, errorAt(body, "bad boolean %q", body.Value)
		}
		return &BoolLiteral{SpanVal: span, Value: v}, nil

	case "char":
		r, size := utf8.DecodeRuneInString(body.Value)
		if body.Kind != yaml.ScalarNode || size == 0 || size != len(body.Value) || r == utf8.RuneError {
			return nil, errorAt(body, "char must be exactly one code point, got %q", body.Value)
		}
		return &CharLiteral{SpanVal: span, Value: r}, nil

	case "string":
		if body.Kind != yaml.ScalarNode {
			return nil, errorAt(body, "string must be a scalar")
		}
		return &StringLiteral{SpanVal: span, Value: body.Value}, nil

	case "paren":
		inner, err := decodeExpr(body)
		if err != nil {
			return nil, err
		}
		return &Paren{SpanVal: span, Expr: inner}, nil

	case "tuple":
		elems, err := exprList(body)
		if err != nil {
			return nil, err
		}
		return &TupleLiteral{SpanVal: span, Elements: elems}, nil

	case "vector":
		elems, err := exprList(body)
		if err != nil {
			return nil, err
		}
		return &VectorLiteral{SpanVal: span, Elements: elems}, nil

	case "object":
		return decodeObject(body, span)

	case "fn":
		return decodeFn(body, span)
	}

	f, err := fields(body)
	if err != nil {
		return nil, err
	}

	switch kind {
	case "binary":
		opNode, err := required(body, f, "op")
		if err != nil {
			return nil, err
		}
		op, ok := ParseBinaryOperator(opNode.Value)
		if !ok {
			return nil, errorAt(opNode, "unknown binary operator %q", opNode.Value)
		}
		left, err := requiredExpr(body, f, "left")
		if err != nil {
			return nil, err
		}
		right, err := requiredExpr(body, f, "right")
		if err != nil {
			return nil, err
		}
		return &Binary{SpanVal: span, Op: op, Left: left, Right: right}, nil

	case "unary":
		opNode, err := required(body, f, "op")
		if err != nil {
			return nil, err
		}
		op, ok := ParseUnaryOperator(opNode.Value)
		if !ok {
			return nil, errorAt(opNode, "unknown unary operator %q", opNode.Value)
		}
		right, err := requiredExpr(body, f, "expr")
		if err != nil {
			return nil, err
		}
		return &Unary{SpanVal: span, Op: op, Right: right}, nil

	case "field":
		head, err := requiredExpr(body, f, "head")
		if err != nil {
			return nil, err
		}
		nameNode, err := required(body, f, "name")
		if err != nil {
			return nil, err
		}
		name, err := decodeName(nameNode, span)
		if err != nil {
			return nil, err
		}
		return &FieldExpr{SpanVal: span, Head: head, Field: name}, nil

	case "index":
		head, err := requiredExpr(body, f, "head")
		if err != nil {
			return nil, err
		}
		index, err := requiredExpr(body, f, "index")
		if err != nil {
			return nil, err
		}
		return &IndexExpr{SpanVal: span, Head: head, Index: index}, nil

	case "call":
		head, err := requiredExpr(body, f, "head")
		if err != nil {
			return nil, err
		}
		args, err := exprList(f["args"])
		if err != nil {
			return nil, err
		}
		return &CallExpr{SpanVal: span, Head: head, Args: args}, nil
	}

	return nil, errorAt(n, "unknown expression kind %q", kind)
}

func requiredExpr(n *yaml.Node, f map[string]*yaml.Node, key string) (Expr, error) {
	v, err := required(n, f, key)
	if err != nil {
		return nil, err
	}
	return decodeExpr(v)
}

// decodeObject keeps the field order of the mapping.
func decodeObject(n *yaml.Node, span Span) (Expr, error) {
	if isNull(n) {
		return &ObjectLiteral{SpanVal: span}, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, errorAt(n, "object must be a mapping of field names to expressions")
	}
	obj := &ObjectLiteral{SpanVal: span}
	for i := 0; i+1 < len(n.Content); i += 2 {
		name, err := decodeName(n.Content[i], span)
		if err != nil {
			return nil, err
		}
		expr, err := decodeExpr(n.Content[i+1])
		if err != nil {
			return nil, err
		}
		obj.Fields = append(obj.Fields, ObjectField{Name: name, Expr: expr})
	}
	return obj, nil
}

func decodeFn(n *yaml.Node, span Span) (Expr, error) {
	f, err := fields(n)
	if err != nil {
		return nil, err
	}
	fn := &FnLiteral{SpanVal: span}
	if params, ok := f["params"]; ok && !isNull(params) {
		if params.Kind != yaml.SequenceNode {
			return nil, errorAt(params, "params must be a list of names")
		}
		for _, p := range params.Content {
			name, err := decodeName(resolve(p), span)
			if err != nil {
				return nil, err
			}
			fn.Params = append(fn.Params, name)
		}
	}
	body, err := requiredStmt(n, f, "body")
	if err != nil {
		return nil, err
	}
	fn.Body = body
	return fn, nil
}
