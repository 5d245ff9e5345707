package compiler

import (
	"path/filepath"
	"testing"

	"github.com/chazu/marte/ast"
	"github.com/chazu/marte/vm"
)

// Integration tests: compile and execute the programs under examples/

func TestIntegrationExamples(t *testing.T) {
	tests := []struct {
		file   string
		params []string
		args   []vm.Value
		want   string
	}{
		{"factorial.yaml", []string{"n"}, []vm.Value{vm.FromInt(10)}, "3628800"},
		{"factorial.yaml", []string{"n"}, []vm.Value{vm.FromInt(0)}, "1"},
		{"fibonacci.yaml", []string{"n"}, []vm.Value{vm.FromInt(15)}, "610"},
		{"chars.yaml", nil, nil, `("chars", 12)`},
		{"capture.yaml", nil, nil, "[1, 2]"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			tree, err := ast.LoadFile(filepath.Join("..", "examples", tt.file))
			if err != nil {
				t.Fatal(err)
			}
			chunk, err := Compile(tree, WithParams(tt.params...))
			if err != nil {
				t.Fatalf("compile error: %v", err)
			}
			got, err := vm.Execute(chunk, tt.args...)
			if err != nil {
				t.Fatalf("runtime error: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("result = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIntegrationImageRoundTrip(t *testing.T) {
	tree, err := ast.LoadFile(filepath.Join("..", "examples", "fibonacci.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	chunk, err := Compile(tree, WithParams("n"))
	if err != nil {
		t.Fatal(err)
	}
	data, err := chunk.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := vm.UnmarshalChunk(data)
	if err != nil {
		t.Fatal(err)
	}
	got, err := vm.Execute(loaded, vm.FromInt(10))
	if err != nil || got.Int() != 55 {
		t.Errorf("fib(10) from image = %s, %v; want 55", got, err)
	}
}
