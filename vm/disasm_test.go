package vm

import (
	"strings"
	"testing"
)

func TestDisassemble(t *testing.T) {
	c := sampleChunk(t)
	out := c.DisassembleWithName("sample")

	for _, want := range []string{
		"; === sample ===",
		"; marte bytecode v1: 5 instructions, 6 constants, 2 functions",
		`;   [  0] "name"`,
		";   fn1 id @4 regs=2 params=(x) captures=(c<-r1)",
		"<main>:\n",
		"id:\n",
		"CLOSURE r0 fn1",
		"; id",
		`; {k: ('é', null)}`,
		"[15..20]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("listing missing %q:\n%s", want, out)
		}
	}
}

func TestDisassembleJumpLabels(t *testing.T) {
	c := &Chunk{
		Code: []Instruction{
			Bool(0, true),
			JumpIfNot(0, 3),
			Jump(0),
			Return(0),
		},
		Functions: []*Function{{NumRegisters: 1}},
	}
	out := c.Disassemble()
	for _, want := range []string{"L0:\n", "L3:\n", "JUMP_IF_NOT r0 @3", "JUMP @0"} {
		if !strings.Contains(out, want) {
			t.Errorf("listing missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "L1:") {
		t.Errorf("listing labels a pc nothing jumps to:\n%s", out)
	}
}
