package vm

import (
	"errors"
	"fmt"
)

// ErrConstantPoolOverflow is returned by Intern when the pool is full.
var ErrConstantPoolOverflow = errors.New("constant pool overflow")

// ConstantPool is the append-only, deduplicated table of literal values
// shared by every function of a chunk.
type ConstantPool struct {
	values []Value
	lookup map[constKey][]Address
	frozen bool
}

// constKey buckets values for dedup; Identical resolves collisions.
type constKey struct {
	kind Kind
	bits uint64
	str  string
	n    int
}

// NewConstantPool creates an empty pool.
func NewConstantPool() *ConstantPool {
	return &ConstantPool{lookup: make(map[constKey][]Address)}
}

// Intern adds v to the pool and returns its address. Structurally identical
// values share one slot (floats compare by bit pattern, so NaN interns
// once). Closures cannot be interned.
func (p *ConstantPool) Intern(v Value) (Address, error) {
	if p.frozen {
		return 0, fmt.Errorf("intern into frozen constant pool")
	}
	if v.kind == KindClosure || v.kind == kindCursor {
		return 0, fmt.Errorf("cannot intern %s constant", v.kind)
	}
	key := keyOf(v)
	for _, addr := range p.lookup[key] {
		if Identical(p.values[addr], v) {
			return addr, nil
		}
	}
	if len(p.values) > MaxAddress {
		return 0, ErrConstantPoolOverflow
	}
	addr := Address(len(p.values))
	p.values = append(p.values, v)
	p.lookup[key] = append(p.lookup[key], addr)
	return addr, nil
}

func keyOf(v Value) constKey {
	k := constKey{kind: v.kind, bits: v.bits, str: v.str}
	switch v.kind {
	case KindTuple:
		k.n = len(v.Tuple())
	case KindVector:
		k.n = len(v.Vector().Elems)
	case KindObject:
		k.n = v.Object().Len()
	}
	return k
}

// Get returns the constant at addr.
func (p *ConstantPool) Get(addr Address) Value { return p.values[addr] }

// Len returns the number of constants.
func (p *ConstantPool) Len() int { return len(p.values) }

// Freeze ends construction and returns the constants. Further Intern calls
// fail.
func (p *ConstantPool) Freeze() []Value {
	p.frozen = true
	return p.values
}
