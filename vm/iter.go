package vm

import "unicode/utf8"

// cursor walks a vector, tuple, string or object without consuming it.
// Vectors are read live, so elements appended during iteration are visited.
type cursor struct {
	src Value
	pos int // element index, or byte offset for strings
}

func newCursor(src Value) (Value, error) {
	switch src.kind {
	case KindVector, KindTuple, KindString, KindObject:
		return Value{kind: kindCursor, ref: &cursor{src: src}}, nil
	}
	return Null, fault(TypeMismatch, "cannot iterate over %s", src.kind)
}

// next returns the following element, or null when the cursor is
// exhausted. Object entries are (name, value) tuples.
func (c *cursor) next() Value {
	switch c.src.kind {
	case KindVector, KindTuple:
		elems := elements(c.src)
		if c.pos >= len(elems) {
			return Null
		}
		v := elems[c.pos]
		c.pos++
		return v

	case KindString:
		if c.pos >= len(c.src.str) {
			return Null
		}
		r, size := utf8.DecodeRuneInString(c.src.str[c.pos:])
		c.pos += size
		return FromChar(r)

	case KindObject:
		o := c.src.Object()
		if c.pos >= o.Len() {
			return Null
		}
		k, v := o.At(c.pos)
		c.pos++
		return NewTuple([]Value{FromString(k), v})
	}
	return Null
}
