package compiler

import (
	"errors"
	"fmt"
	"testing"
)

func TestRegisterAllocatorDeclareResolve(t *testing.T) {
	ra := NewRegisterAllocator()
	a, err := ra.Declare("a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := ra.Declare("b")
	if err != nil {
		t.Fatal(err)
	}
	if a != 0 || b != 1 {
		t.Errorf("registers = r%d, r%d, want r0, r1", a, b)
	}

	ra.EnterScope()
	inner, err := ra.Declare("a")
	if err != nil {
		t.Fatalf("shadowing in a nested scope: %v", err)
	}
	if got, _ := ra.Resolve("a"); got != inner {
		t.Errorf("Resolve(a) = r%d, want inner r%d", got, inner)
	}
	if got, _ := ra.Resolve("b"); got != b {
		t.Errorf("Resolve(b) = r%d, want r%d", got, b)
	}
	ra.ExitScope()

	if got, _ := ra.Resolve("a"); got != a {
		t.Errorf("Resolve(a) after exit = r%d, want r%d", got, a)
	}
	if _, err := ra.Resolve("missing"); !errors.Is(err, ErrUnboundIdentifier) {
		t.Errorf("Resolve(missing) error = %v, want unbound identifier", err)
	}
	if _, err := ra.Declare("a"); !errors.Is(err, ErrDuplicateBinding) {
		t.Errorf("redeclare error = %v, want duplicate binding", err)
	}
}

func TestRegisterAllocatorScopeReuse(t *testing.T) {
	ra := NewRegisterAllocator()
	ra.EnterScope()
	first, _ := ra.Declare("x")
	ra.ExitScope()

	ra.EnterScope()
	second, _ := ra.Declare("y")
	ra.ExitScope()

	if first != second {
		t.Errorf("sibling scopes got r%d and r%d, want the same register", first, second)
	}
	if ra.HighWater() != 1 {
		t.Errorf("HighWater = %d, want 1", ra.HighWater())
	}
	if ra.Next() != 0 {
		t.Errorf("Next = %d, want 0", ra.Next())
	}
}

func TestRegisterAllocatorScratch(t *testing.T) {
	ra := NewRegisterAllocator()
	r0, _ := ra.Alloc()
	r1, _ := ra.Alloc()
	ra.Free(r1)
	if err := ra.Bind("v", r0); err != nil {
		t.Fatal(err)
	}
	if got, _ := ra.Resolve("v"); got != r0 {
		t.Errorf("Resolve(v) = r%d, want r%d", got, r0)
	}

	defer func() {
		if recover() == nil {
			t.Error("freeing a bound register did not panic")
		}
	}()
	ra.Free(r0)
}

func TestRegisterAllocatorOutOfOrderFree(t *testing.T) {
	ra := NewRegisterAllocator()
	r0, _ := ra.Alloc()
	_, _ = ra.Alloc()
	defer func() {
		if recover() == nil {
			t.Error("out-of-order Free did not panic")
		}
	}()
	ra.Free(r0)
}

func TestRegisterAllocatorExhaustion(t *testing.T) {
	ra := NewRegisterAllocator()
	for i := 0; i < 256; i++ {
		if _, err := ra.Declare(fmt.Sprintf("v%d", i)); err != nil {
			t.Fatalf("declare %d: %v", i, err)
		}
	}
	if _, err := ra.Declare("overflow"); !errors.Is(err, ErrRegisterExhaustion) {
		t.Fatalf("error = %v, want register exhaustion", err)
	}
	if ra.HighWater() != 256 {
		t.Errorf("HighWater = %d, want 256", ra.HighWater())
	}
}
