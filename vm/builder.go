package vm

import (
	"errors"
	"fmt"
)

// ErrCodeOverflow is reported when a chunk needs more instructions than an
// Address can reach.
var ErrCodeOverflow = errors.New("code overflow")

// ---------------------------------------------------------------------------
// ChunkBuilder: Helper for constructing chunks
// ---------------------------------------------------------------------------

// ChunkBuilder accumulates instructions, spans, constants and functions.
type ChunkBuilder struct {
	code      []Instruction
	spans     []SourceSpan
	pool      *ConstantPool
	functions []*Function
	pending   int // labels with unpatched references
}

// NewChunkBuilder creates an empty builder.
func NewChunkBuilder() *ChunkBuilder {
	return &ChunkBuilder{
		code: make([]Instruction, 0, 64),
		pool: NewConstantPool(),
	}
}

// Len returns the number of emitted instructions, which is also the address
// of the next one.
func (b *ChunkBuilder) Len() int { return len(b.code) }

// Pool returns the builder's constant pool.
func (b *ChunkBuilder) Pool() *ConstantPool { return b.pool }

// Emit appends an instruction and returns its address.
func (b *ChunkBuilder) Emit(span SourceSpan, in Instruction) int {
	pc := len(b.code)
	b.code = append(b.code, in)
	b.spans = append(b.spans, span)
	return pc
}

// At returns the instruction at pc.
func (b *ChunkBuilder) At(pc int) Instruction { return b.code[pc] }

// AddFunction appends a function to the table and returns its index.
func (b *ChunkBuilder) AddFunction(fn *Function) int {
	b.functions = append(b.functions, fn)
	return len(b.functions) - 1
}

// Build finishes the chunk. It fails if a label was never marked or the
// code does not fit the address space.
func (b *ChunkBuilder) Build() (*Chunk, error) {
	if b.pending > 0 {
		return nil, fmt.Errorf("%d unresolved labels", b.pending)
	}
	if len(b.code) > MaxAddress+1 {
		return nil, ErrCodeOverflow
	}
	return &Chunk{
		Code:      b.code,
		Constants: b.pool.Freeze(),
		Functions: b.functions,
		Spans:     b.spans,
	}, nil
}

// ---------------------------------------------------------------------------
// Label management for jumps
// ---------------------------------------------------------------------------

// Label is a jump target. Jumps emitted before the label is marked are
// recorded and patched when it is.
type Label struct {
	resolved bool
	position int   // target, once resolved
	refs     []int // instructions whose Addr awaits the target
}

// NewLabel creates an unresolved label.
func (b *ChunkBuilder) NewLabel() *Label {
	return &Label{refs: make([]int, 0, 2)}
}

// Resolved reports whether the label has been marked.
func (l *Label) Resolved() bool { return l.resolved }

// Position returns the target of a resolved label.
func (l *Label) Position() int { return l.position }

// Mark resolves a label to the current position and patches all forward
// references.
func (b *ChunkBuilder) Mark(label *Label) {
	if label.resolved {
		panic("label already resolved")
	}
	label.resolved = true
	label.position = len(b.code)
	if len(label.refs) > 0 {
		b.pending--
	}
	for _, ref := range label.refs {
		b.code[ref].Addr = Address(label.position)
	}
	label.refs = nil
}

// EmitJump emits a jump-family instruction (Jump, JumpIf, ...) targeting
// label. in.Addr is overwritten.
func (b *ChunkBuilder) EmitJump(span SourceSpan, in Instruction, label *Label) int {
	if !in.Op.IsJump() {
		panic(fmt.Sprintf("EmitJump with %s", in.Op))
	}
	if label.resolved {
		in.Addr = Address(label.position)
		return b.Emit(span, in)
	}
	in.Addr = 0
	pc := b.Emit(span, in)
	if len(label.refs) == 0 {
		b.pending++
	}
	label.refs = append(label.refs, pc)
	return pc
}
