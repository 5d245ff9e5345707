package vm

import (
	"math"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Binary operators
// ---------------------------------------------------------------------------

// EvalBinary applies a binary operator. Integer arithmetic wraps; integer
// division and modulo by zero fault; an int and a float are combined as
// floats.
func EvalBinary(op BinaryOp, l, r Value) (Value, error) {
	switch op {
	case BinAnd, BinOr:
		if l.kind != KindBool || r.kind != KindBool {
			return Null, typeMismatch(op.String(), l, r)
		}
		if op == BinAnd {
			return FromBool(l.Bool() && r.Bool()), nil
		}
		return FromBool(l.Bool() || r.Bool()), nil

	case BinEq:
		return FromBool(Equal(l, r)), nil
	case BinNe:
		return FromBool(!Equal(l, r)), nil

	case BinLt, BinGt, BinLe, BinGe:
		return order(op, l, r)

	case BinAdd:
		if v, ok := concat(l, r); ok {
			return v, nil
		}
		return arith(op, l, r)

	case BinSub, BinMul, BinDiv, BinMod, BinPow:
		return arith(op, l, r)
	}
	return Null, fault(InvalidProgram, "unknown binary operator %d", uint8(op))
}

// order evaluates an ordering operator. Mixed int/float operands compare
// as floats, so any comparison involving NaN is false.
func order(op BinaryOp, l, r Value) (Value, error) {
	if isNumber(l) && isNumber(r) && (l.kind == KindFloat || r.kind == KindFloat) {
		a, b := toFloat(l), toFloat(r)
		switch op {
		case BinLt:
			return FromBool(a < b), nil
		case BinGt:
			return FromBool(a > b), nil
		case BinLe:
			return FromBool(a <= b), nil
		default:
			return FromBool(a >= b), nil
		}
	}
	c, ok := compare(l, r)
	if !ok {
		return Null, typeMismatch(op.String(), l, r)
	}
	switch op {
	case BinLt:
		return FromBool(c < 0), nil
	case BinGt:
		return FromBool(c > 0), nil
	case BinLe:
		return FromBool(c <= 0), nil
	default:
		return FromBool(c >= 0), nil
	}
}

// compare orders two ints, chars or strings.
func compare(l, r Value) (int, bool) {
	switch {
	case l.kind == KindInt && r.kind == KindInt:
		return cmp3(l.Int(), r.Int()), true
	case l.kind == KindChar && r.kind == KindChar:
		return cmp3(l.Char(), r.Char()), true
	case l.kind == KindString && r.kind == KindString:
		return cmp3(l.str, r.str), true
	}
	return 0, false
}

func cmp3[T int64 | rune | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func isNumber(v Value) bool { return v.kind == KindInt || v.kind == KindFloat }

func toFloat(v Value) float64 {
	if v.kind == KindInt {
		return float64(v.Int())
	}
	return v.Float()
}

func concat(l, r Value) (Value, bool) {
	switch {
	case l.kind == KindString && r.kind == KindString:
		return FromString(l.str + r.str), true
	case l.kind == KindString && r.kind == KindChar:
		return FromString(l.str + string(r.Char())), true
	case l.kind == KindChar && r.kind == KindString:
		return FromString(string(l.Char()) + r.str), true
	case l.kind == KindVector && r.kind == KindVector:
		a, b := l.Vector().Elems, r.Vector().Elems
		out := make([]Value, 0, len(a)+len(b))
		out = append(append(out, a...), b...)
		return NewVector(out), true
	case l.kind == KindTuple && r.kind == KindTuple:
		a, b := l.Tuple(), r.Tuple()
		out := make([]Value, 0, len(a)+len(b))
		out = append(append(out, a...), b...)
		return NewTuple(out), true
	}
	return Null, false
}

func arith(op BinaryOp, l, r Value) (Value, error) {
	if l.kind == KindInt && r.kind == KindInt {
		return intArith(op, l.Int(), r.Int())
	}
	if !isNumber(l) || !isNumber(r) {
		return Null, typeMismatch(op.String(), l, r)
	}
	a, b := toFloat(l), toFloat(r)
	switch op {
	case BinAdd:
		return FromFloat(a + b), nil
	case BinSub:
		return FromFloat(a - b), nil
	case BinMul:
		return FromFloat(a * b), nil
	case BinDiv:
		return FromFloat(a / b), nil
	case BinMod:
		return FromFloat(math.Mod(a, b)), nil
	case BinPow:
		return FromFloat(math.Pow(a, b)), nil
	}
	return Null, typeMismatch(op.String(), l, r)
}

func intArith(op BinaryOp, a, b int64) (Value, error) {
	switch op {
	case BinAdd:
		return FromInt(a + b), nil
	case BinSub:
		return FromInt(a - b), nil
	case BinMul:
		return FromInt(a * b), nil
	case BinDiv:
		if b == 0 {
			return Null, fault(DivisionByZero, "%d / 0", a)
		}
		return FromInt(a / b), nil
	case BinMod:
		if b == 0 {
			return Null, fault(DivisionByZero, "%d %% 0", a)
		}
		return FromInt(a % b), nil
	case BinPow:
		if b < 0 {
			return Null, fault(InvalidExponent, "%d ^ %d", a, b)
		}
		return FromInt(ipow(a, b)), nil
	}
	return Null, fault(TypeMismatch, "cannot apply %s to int and int", op)
}

// ipow computes a^b with wraparound by repeated squaring.
func ipow(a, b int64) int64 {
	result := int64(1)
	for b > 0 {
		if b&1 == 1 {
			result *= a
		}
		a *= a
		b >>= 1
	}
	return result
}

// ---------------------------------------------------------------------------
// Unary operators
// ---------------------------------------------------------------------------

// EvalUnary applies a unary operator.
func EvalUnary(op UnaryOp, v Value) (Value, error) {
	switch op {
	case UnNeg:
		switch v.kind {
		case KindInt:
			return FromInt(-v.Int()), nil
		case KindFloat:
			return FromFloat(-v.Float()), nil
		}
		return Null, typeMismatch(op.String(), v)
	case UnNot:
		if v.kind != KindBool {
			return Null, typeMismatch(op.String(), v)
		}
		return FromBool(!v.Bool()), nil
	}
	return Null, fault(InvalidProgram, "unknown unary operator %d", uint8(op))
}

// ---------------------------------------------------------------------------
// Fields and indexing
// ---------------------------------------------------------------------------

// GetField reads a named field of an object.
func GetField(obj Value, name string) (Value, error) {
	if obj.kind != KindObject {
		return Null, fault(TypeMismatch, "cannot read field %q of %s", name, obj.kind)
	}
	v, ok := obj.Object().Get(name)
	if !ok {
		return Null, fault(FieldNotFound, "no field %q", name)
	}
	return v, nil
}

// SetField assigns a named field of an object, adding it when missing.
func SetField(obj Value, name string, v Value) error {
	if obj.kind != KindObject {
		return fault(TypeMismatch, "cannot set field %q of %s", name, obj.kind)
	}
	obj.Object().Set(name, v)
	return nil
}

// GetIndex reads container[index]. Vectors and tuples take int indices,
// strings yield the char at a code-point index, and objects take string
// keys.
func GetIndex(container, index Value) (Value, error) {
	switch container.kind {
	case KindVector, KindTuple:
		elems := elements(container)
		i, err := checkIndex(index, len(elems))
		if err != nil {
			return Null, err
		}
		return elems[i], nil

	case KindString:
		if index.kind != KindInt {
			return Null, fault(TypeMismatch, "string index must be int, got %s", index.kind)
		}
		n := index.Int()
		if n >= 0 {
			var i int64
			for _, r := range container.str {
				if i == n {
					return FromChar(r), nil
				}
				i++
			}
		}
		return Null, fault(IndexOutOfBounds, "index %d out of range for string of length %d",
			n, utf8.RuneCountInString(container.str))

	case KindObject:
		if index.kind != KindString {
			return Null, fault(TypeMismatch, "object key must be string, got %s", index.kind)
		}
		v, ok := container.Object().Get(index.str)
		if !ok {
			return Null, fault(FieldNotFound, "no field %q", index.str)
		}
		return v, nil
	}
	return Null, fault(TypeMismatch, "cannot index %s", container.kind)
}

// SetIndex assigns container[index] = v. Tuples and strings are immutable.
func SetIndex(container, index, v Value) error {
	switch container.kind {
	case KindVector:
		vec := container.Vector()
		i, err := checkIndex(index, len(vec.Elems))
		if err != nil {
			return err
		}
		vec.Elems[i] = v
		return nil

	case KindObject:
		if index.kind != KindString {
			return fault(TypeMismatch, "object key must be string, got %s", index.kind)
		}
		container.Object().Set(index.str, v)
		return nil
	}
	return fault(TypeMismatch, "cannot assign into %s", container.kind)
}

func elements(v Value) []Value {
	if v.kind == KindTuple {
		return v.Tuple()
	}
	return v.Vector().Elems
}

func checkIndex(index Value, n int) (int, error) {
	if index.kind != KindInt {
		return 0, fault(TypeMismatch, "index must be int, got %s", index.kind)
	}
	i := index.Int()
	if i < 0 || i >= int64(n) {
		return 0, fault(IndexOutOfBounds, "index %d out of range for length %d", i, n)
	}
	return int(i), nil
}
