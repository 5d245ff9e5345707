package vm

import (
	"errors"
	"math"
	"testing"
)

func TestConstantPoolDedup(t *testing.T) {
	p := NewConstantPool()
	intern := func(v Value) Address {
		t.Helper()
		addr, err := p.Intern(v)
		if err != nil {
			t.Fatalf("Intern(%s): %v", v, err)
		}
		return addr
	}

	one := intern(FromInt(1))
	if intern(FromInt(1)) != one {
		t.Error("equal ints interned twice")
	}
	if intern(FromFloat(1)) == one {
		t.Error("1 and 1.0 share a slot")
	}

	nan := intern(FromFloat(math.NaN()))
	if intern(FromFloat(math.NaN())) != nan {
		t.Error("NaN interned twice")
	}
	if intern(FromFloat(0)) == intern(FromFloat(math.Copysign(0, -1))) {
		t.Error("+0 and -0 share a slot")
	}

	tup := intern(NewTuple([]Value{FromString("a"), FromInt(1)}))
	if intern(NewTuple([]Value{FromString("a"), FromInt(1)})) != tup {
		t.Error("structurally equal tuples interned twice")
	}
	vec := intern(NewVector([]Value{FromInt(1)}))
	if intern(NewVector([]Value{FromInt(1)})) != vec {
		t.Error("structurally equal vectors interned twice")
	}
	if intern(NewVector([]Value{FromInt(2)})) == vec {
		t.Error("different vectors share a slot")
	}

	if p.Get(one).Int() != 1 {
		t.Errorf("Get(%d) = %s, want 1", one, p.Get(one))
	}
}

func TestConstantPoolRejects(t *testing.T) {
	p := NewConstantPool()
	if _, err := p.Intern(FromClosure(&Closure{Fn: &Function{}})); err == nil {
		t.Error("closure was interned")
	}

	p.Intern(FromInt(1))
	consts := p.Freeze()
	if len(consts) != 1 {
		t.Fatalf("Freeze returned %d constants, want 1", len(consts))
	}
	if _, err := p.Intern(FromInt(2)); err == nil {
		t.Error("Intern after Freeze succeeded")
	}
}

func TestConstantPoolOverflow(t *testing.T) {
	p := NewConstantPool()
	for i := 0; i <= MaxAddress; i++ {
		if _, err := p.Intern(FromInt(int64(i))); err != nil {
			t.Fatalf("Intern #%d: %v", i, err)
		}
	}
	if p.Len() != MaxAddress+1 {
		t.Fatalf("Len = %d, want %d", p.Len(), MaxAddress+1)
	}
	// Existing values still resolve
	if addr, err := p.Intern(FromInt(7)); err != nil || addr != 7 {
		t.Errorf("Intern(7) = %d, %v; want 7", addr, err)
	}
	if _, err := p.Intern(FromInt(-1)); !errors.Is(err, ErrConstantPoolOverflow) {
		t.Errorf("error = %v, want constant pool overflow", err)
	}
}
