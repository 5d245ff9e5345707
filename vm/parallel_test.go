package vm

import (
	"context"
	"errors"
	"testing"
)

func squareChunk(t *testing.T) *Chunk {
	t.Helper()
	return assemble(t, entry(2, "n"), nil,
		Binary(BinMul, 0, 0, 0),
		Return(0),
	)
}

func TestRunParallelOrder(t *testing.T) {
	c := squareChunk(t)
	var args [][]Value
	for i := 0; i < 20; i++ {
		args = append(args, []Value{FromInt(int64(i))})
	}
	got, err := RunParallel(context.Background(), c, args, WithParallelism(3))
	if err != nil {
		t.Fatalf("RunParallel: %v", err)
	}
	if len(got) != len(args) {
		t.Fatalf("got %d results, want %d", len(got), len(args))
	}
	for i, v := range got {
		if v.Int() != int64(i*i) {
			t.Errorf("result %d = %s, want %d", i, v, i*i)
		}
	}
}

func TestRunParallelFault(t *testing.T) {
	c := squareChunk(t)
	args := [][]Value{
		{FromInt(2)},
		{FromString("x")},
		{FromInt(3)},
	}
	_, err := RunParallel(context.Background(), c, args)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("error = %v, want type mismatch", err)
	}
}

func TestRunParallelMachineOptions(t *testing.T) {
	c := assemble(t, entry(1), nil, Jump(0))
	_, err := RunParallel(context.Background(), c, [][]Value{nil, nil},
		WithMachineOptions(WithBudget(10)))
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("error = %v, want budget exceeded", err)
	}
}

func TestRunParallelInvalidChunk(t *testing.T) {
	c := &Chunk{Code: []Instruction{Jump(4)}, Functions: []*Function{{NumRegisters: 1}}}
	if _, err := RunParallel(context.Background(), c, [][]Value{nil}); !errors.Is(err, ErrInvalidProgram) {
		t.Fatalf("error = %v, want invalid program", err)
	}
}
