package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindBool
	KindChar
	KindString
	KindTuple
	KindVector
	KindObject
	KindClosure

	kindCursor // iteration state, never visible to programs
)

var kindNames = [...]string{
	KindNull:    "null",
	KindInt:     "int",
	KindFloat:   "float",
	KindBool:    "bool",
	KindChar:    "char",
	KindString:  "string",
	KindTuple:   "tuple",
	KindVector:  "vector",
	KindObject:  "object",
	KindClosure: "closure",
	kindCursor:  "cursor",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is a runtime value: a closed tagged union over the kinds above.
//
// Scalars live inline (bits holds ints, float bits, bools and code points;
// str holds strings). Compounds live behind ref:
//   - tuple:   *tuple, never mutated after construction
//   - vector:  *Vector, mutable and shared by reference
//   - object:  *Object, mutable and shared by reference
//   - closure: *Closure, compared by identity
//
// The zero Value is null.
type Value struct {
	kind Kind
	bits uint64
	str  string
	ref  any
}

// Null is the null value.
var Null = Value{}

type tuple struct {
	elems []Value
}

// Vector is a mutable, growable sequence.
type Vector struct {
	Elems []Value
}

// Closure is a function value with its captured environment.
type Closure struct {
	Fn       *Function
	Index    int     // index into Chunk.Functions
	Captures []Value // copied at creation, in Fn.Captures order
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// FromInt creates an integer value.
func FromInt(n int64) Value { return Value{kind: KindInt, bits: uint64(n)} }

// FromFloat creates a float value.
func FromFloat(f float64) Value { return Value{kind: KindFloat, bits: math.Float64bits(f)} }

// FromBool creates a boolean value.
func FromBool(b bool) Value {
	if b {
		return Value{kind: KindBool, bits: 1}
	}
	return Value{kind: KindBool}
}

// FromChar creates a character value.
func FromChar(r rune) Value { return Value{kind: KindChar, bits: uint64(uint32(r))} }

// FromString creates a string value.
func FromString(s string) Value { return Value{kind: KindString, str: s} }

// NewTuple creates a tuple. The slice is owned by the tuple afterwards.
func NewTuple(elems []Value) Value {
	if elems == nil {
		elems = []Value{}
	}
	return Value{kind: KindTuple, ref: &tuple{elems: elems}}
}

// NewVector creates a vector. The slice is owned by the vector afterwards.
func NewVector(elems []Value) Value {
	return Value{kind: KindVector, ref: &Vector{Elems: elems}}
}

// NewObject creates an object with the given fields in order. Later
// duplicate keys overwrite earlier ones.
func NewObject(keys []string, values []Value) Value {
	o := &Object{}
	for i, k := range keys {
		o.Set(k, values[i])
	}
	return Value{kind: KindObject, ref: o}
}

// FromObject wraps an existing object.
func FromObject(o *Object) Value { return Value{kind: KindObject, ref: o} }

// FromClosure wraps a closure.
func FromClosure(c *Closure) Value { return Value{kind: KindClosure, ref: c} }

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Kind returns the variant of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull returns true if v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Int returns v as an int64.
// Panics if v is not an integer.
func (v Value) Int() int64 {
	v.must(KindInt)
	return int64(v.bits)
}

// Float returns v as a float64.
// Panics if v is not a float.
func (v Value) Float() float64 {
	v.must(KindFloat)
	return math.Float64frombits(v.bits)
}

// Bool returns v as a bool.
// Panics if v is not a boolean.
func (v Value) Bool() bool {
	v.must(KindBool)
	return v.bits != 0
}

// Char returns v as a rune.
// Panics if v is not a character.
func (v Value) Char() rune {
	v.must(KindChar)
	return rune(uint32(v.bits))
}

// Str returns v as a Go string.
// Panics if v is not a string.
func (v Value) Str() string {
	v.must(KindString)
	return v.str
}

// Tuple returns the elements of a tuple. Callers must not modify them.
func (v Value) Tuple() []Value {
	v.must(KindTuple)
	return v.ref.(*tuple).elems
}

// Vector returns the vector behind v.
func (v Value) Vector() *Vector {
	v.must(KindVector)
	return v.ref.(*Vector)
}

// Object returns the object behind v.
func (v Value) Object() *Object {
	v.must(KindObject)
	return v.ref.(*Object)
}

// Closure returns the closure behind v.
func (v Value) Closure() *Closure {
	v.must(KindClosure)
	return v.ref.(*Closure)
}

func (v Value) must(k Kind) {
	if v.kind != k {
		panic(fmt.Sprintf("Value.%s: value is %s", k, v.kind))
	}
}

// ---------------------------------------------------------------------------
// Equality
// ---------------------------------------------------------------------------

// Equal reports language-level equality. Values of different kinds are never
// equal (1 == 1.0 is false). Floats follow IEEE-754, so NaN != NaN. Tuples
// compare element-wise; vectors, objects and closures compare by identity.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindInt, KindBool, KindChar:
		return a.bits == b.bits
	case KindFloat:
		return a.Float() == b.Float()
	case KindString:
		return a.str == b.str
	case KindTuple:
		x, y := a.Tuple(), b.Tuple()
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case KindVector, KindObject, KindClosure:
		return a.ref == b.ref
	}
	return false
}

// Identical reports structural identity as used by the constant pool:
// floats compare by bit pattern and compounds compare by contents.
// Only meaningful for acyclic values.
func Identical(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindInt, KindBool, KindChar, KindFloat:
		return a.bits == b.bits
	case KindString:
		return a.str == b.str
	case KindTuple:
		return identicalSlices(a.Tuple(), b.Tuple())
	case KindVector:
		return identicalSlices(a.Vector().Elems, b.Vector().Elems)
	case KindObject:
		x, y := a.Object(), b.Object()
		if x.Len() != y.Len() {
			return false
		}
		for i, k := range x.keys {
			if y.keys[i] != k || !Identical(x.values[i], y.values[i]) {
				return false
			}
		}
		return true
	case KindClosure:
		return a.ref == b.ref
	}
	return false
}

func identicalSlices(x, y []Value) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if !Identical(x[i], y[i]) {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Copying
// ---------------------------------------------------------------------------

// Clone returns a deep copy of v's mutable structure. Scalars, strings and
// closures are returned unchanged. Used when loading compounds from the
// shared constant pool so that programs never mutate the pool.
func (v Value) Clone() Value {
	switch v.kind {
	case KindTuple:
		elems := v.Tuple()
		if !containsMutable(elems) {
			return v
		}
		return NewTuple(cloneSlice(elems))
	case KindVector:
		return NewVector(cloneSlice(v.Vector().Elems))
	case KindObject:
		o := v.Object()
		return NewObject(append([]string(nil), o.keys...), cloneSlice(o.values))
	}
	return v
}

func cloneSlice(elems []Value) []Value {
	out := make([]Value, len(elems))
	for i, e := range elems {
		out[i] = e.Clone()
	}
	return out
}

func containsMutable(elems []Value) bool {
	for _, e := range elems {
		switch e.kind {
		case KindVector, KindObject:
			return true
		case KindTuple:
			if containsMutable(e.Tuple()) {
				return true
			}
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Printing
// ---------------------------------------------------------------------------

// String renders v in source-like notation. Cycles through vectors and
// objects print as "...".
func (v Value) String() string {
	var sb strings.Builder
	v.write(&sb, map[any]bool{})
	return sb.String()
}

func (v Value) write(sb *strings.Builder, seen map[any]bool) {
	switch v.kind {
	case KindNull:
		sb.WriteString("null")
	case KindInt:
		sb.WriteString(strconv.FormatInt(v.Int(), 10))
	case KindFloat:
		sb.WriteString(formatFloat(v.Float()))
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.Bool()))
	case KindChar:
		sb.WriteString(strconv.QuoteRune(v.Char()))
	case KindString:
		sb.WriteString(strconv.Quote(v.str))
	case KindTuple:
		elems := v.Tuple()
		sb.WriteByte('(')
		writeElems(sb, elems, seen)
		if len(elems) == 1 {
			sb.WriteByte(',')
		}
		sb.WriteByte(')')
	case KindVector:
		vec := v.Vector()
		if seen[vec] {
			sb.WriteString("[...]")
			return
		}
		seen[vec] = true
		sb.WriteByte('[')
		writeElems(sb, vec.Elems, seen)
		sb.WriteByte(']')
		delete(seen, vec)
	case KindObject:
		o := v.Object()
		if seen[o] {
			sb.WriteString("{...}")
			return
		}
		seen[o] = true
		sb.WriteByte('{')
		for i, k := range o.keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k)
			sb.WriteString(": ")
			o.values[i].write(sb, seen)
		}
		sb.WriteByte('}')
		delete(seen, o)
	case KindClosure:
		c := v.Closure()
		name := "<anonymous>"
		if c.Fn != nil && c.Fn.Name != "" {
			name = c.Fn.Name
		}
		fmt.Fprintf(sb, "<fn %s>", name)
	default:
		fmt.Fprintf(sb, "<%s>", v.kind)
	}
}

func writeElems(sb *strings.Builder, elems []Value, seen map[any]bool) {
	for i, e := range elems {
		if i > 0 {
			sb.WriteString(", ")
		}
		e.write(sb, seen)
	}
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !math.IsInf(f, 0) && !math.IsNaN(f) && !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
