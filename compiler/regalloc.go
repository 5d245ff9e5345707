package compiler

import (
	"fmt"

	"github.com/chazu/marte/vm"
)

// Register is a VM register index.
type Register = vm.Register

// scope is one lexical frame of bindings. Its registers start at base.
type scope struct {
	base  int
	names map[string]Register
}

// RegisterAllocator hands out the registers of one function. Bindings and
// scratch registers share a single stack-like counter: a scope owns the
// contiguous range from its base upward, and leaving the scope returns the
// whole range, so sibling scopes reuse the same registers. Scratch registers
// must be released in LIFO order.
type RegisterAllocator struct {
	next   int
	high   int
	scopes []scope
}

// NewRegisterAllocator creates an allocator with an open root scope.
func NewRegisterAllocator() *RegisterAllocator {
	ra := &RegisterAllocator{}
	ra.EnterScope()
	return ra
}

// EnterScope opens a nested scope.
func (ra *RegisterAllocator) EnterScope() {
	ra.scopes = append(ra.scopes, scope{base: ra.next})
}

// ExitScope closes the innermost scope and frees every register it owns.
func (ra *RegisterAllocator) ExitScope() {
	if len(ra.scopes) == 0 {
		panic("ExitScope without open scope")
	}
	top := ra.scopes[len(ra.scopes)-1]
	ra.scopes = ra.scopes[:len(ra.scopes)-1]
	ra.next = top.base
}

// Alloc reserves the next free register.
func (ra *RegisterAllocator) Alloc() (Register, error) {
	if ra.next >= vm.MaxRegisters {
		return 0, &CompileError{Kind: RegisterExhaustion,
			Msg: fmt.Sprintf("more than %d live registers", vm.MaxRegisters)}
	}
	r := Register(ra.next)
	ra.next++
	if ra.next > ra.high {
		ra.high = ra.next
	}
	return r, nil
}

// Free releases a scratch register. Only the most recently allocated
// register may be freed.
func (ra *RegisterAllocator) Free(r Register) {
	if int(r) != ra.next-1 {
		panic(fmt.Sprintf("register r%d freed out of order (next is r%d)", r, ra.next))
	}
	if len(ra.scopes) > 0 {
		for _, b := range ra.scopes[len(ra.scopes)-1].names {
			if b == r {
				panic(fmt.Sprintf("register r%d is bound and cannot be freed", r))
			}
		}
	}
	ra.next--
}

// Declare allocates a register and binds name to it in the innermost scope.
func (ra *RegisterAllocator) Declare(name string) (Register, error) {
	if err := ra.checkDuplicate(name); err != nil {
		return 0, err
	}
	r, err := ra.Alloc()
	if err != nil {
		return 0, err
	}
	ra.bind(name, r)
	return r, nil
}

// Bind turns the most recently allocated scratch register into a binding
// of name in the innermost scope.
func (ra *RegisterAllocator) Bind(name string, r Register) error {
	if int(r) != ra.next-1 {
		panic(fmt.Sprintf("Bind(%q, r%d): not the top register (next is r%d)", name, r, ra.next))
	}
	if err := ra.checkDuplicate(name); err != nil {
		return err
	}
	ra.bind(name, r)
	return nil
}

func (ra *RegisterAllocator) checkDuplicate(name string) error {
	top := ra.scopes[len(ra.scopes)-1]
	if _, ok := top.names[name]; ok {
		return &CompileError{Kind: DuplicateBinding, Msg: fmt.Sprintf("%q is already bound in this scope", name)}
	}
	return nil
}

func (ra *RegisterAllocator) bind(name string, r Register) {
	top := &ra.scopes[len(ra.scopes)-1]
	if top.names == nil {
		top.names = make(map[string]Register)
	}
	top.names[name] = r
}

// Resolve finds the register bound to name, innermost scope first.
func (ra *RegisterAllocator) Resolve(name string) (Register, error) {
	for i := len(ra.scopes) - 1; i >= 0; i-- {
		if r, ok := ra.scopes[i].names[name]; ok {
			return r, nil
		}
	}
	return 0, &CompileError{Kind: UnboundIdentifier, Msg: fmt.Sprintf("%q is not bound", name)}
}

// Next returns the register the next Alloc will return.
func (ra *RegisterAllocator) Next() int { return ra.next }

// HighWater returns the number of registers the function needs.
func (ra *RegisterAllocator) HighWater() int { return ra.high }
