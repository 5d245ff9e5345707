package vm

import (
	"errors"
	"testing"
)

func TestLabelForwardAndBackward(t *testing.T) {
	b := NewChunkBuilder()
	b.AddFunction(&Function{NumRegisters: 1})

	start := b.NewLabel()
	end := b.NewLabel()
	b.Mark(start)
	b.Emit(SourceSpan{}, Bool(0, false))
	j1 := b.EmitJump(SourceSpan{}, JumpIfNot(0, 0), end)
	j2 := b.EmitJump(SourceSpan{}, Jump(0), start)
	j3 := b.EmitJump(SourceSpan{}, JumpIf(0, 0), end)
	if end.Resolved() {
		t.Fatal("end resolved before Mark")
	}
	b.Mark(end)
	b.Emit(SourceSpan{}, Return(0))

	if got := b.At(j1).Addr; got != 4 {
		t.Errorf("forward jump target = %d, want 4", got)
	}
	if got := b.At(j3).Addr; got != 4 {
		t.Errorf("second forward jump target = %d, want 4", got)
	}
	if got := b.At(j2).Addr; got != 0 {
		t.Errorf("backward jump target = %d, want 0", got)
	}
	if !end.Resolved() || end.Position() != 4 {
		t.Errorf("end = (%v, %d), want resolved at 4", end.Resolved(), end.Position())
	}

	c, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestBuildPendingLabel(t *testing.T) {
	b := NewChunkBuilder()
	b.AddFunction(&Function{NumRegisters: 1})
	b.EmitJump(SourceSpan{}, Jump(0), b.NewLabel())
	if _, err := b.Build(); err == nil {
		t.Error("Build succeeded with an unmarked label")
	}
}

func TestBuildCodeOverflow(t *testing.T) {
	b := NewChunkBuilder()
	b.AddFunction(&Function{NumRegisters: 1})
	for i := 0; i <= MaxAddress+1; i++ {
		b.Emit(SourceSpan{}, Nop())
	}
	if _, err := b.Build(); !errors.Is(err, ErrCodeOverflow) {
		t.Errorf("error = %v, want code overflow", err)
	}
}

func TestLabelMisuse(t *testing.T) {
	mustPanic := func(name string, f func()) {
		t.Helper()
		defer func() {
			if recover() == nil {
				t.Errorf("%s did not panic", name)
			}
		}()
		f()
	}

	b := NewChunkBuilder()
	l := b.NewLabel()
	b.Mark(l)
	mustPanic("double Mark", func() { b.Mark(l) })
	mustPanic("EmitJump with MOVE", func() { b.EmitJump(SourceSpan{}, Move(0, 1), l) })
}

func TestBuilderSpans(t *testing.T) {
	b := NewChunkBuilder()
	b.AddFunction(&Function{NumRegisters: 1})
	b.Emit(SourceSpan{Start: 3, End: 9}, LoadNull(0))
	b.Emit(SourceSpan{Start: 10, End: 12}, Return(0))
	c, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	if s, ok := c.SpanAt(1); !ok || s != (SourceSpan{Start: 10, End: 12}) {
		t.Errorf("SpanAt(1) = %v, %v; want 10..12", s, ok)
	}
	if _, ok := c.SpanAt(2); ok {
		t.Error("SpanAt past the end reported a span")
	}
}
