package vm

import "fmt"

// SourceSpan is a half-open byte range of the source text.
type SourceSpan struct {
	Start int
	End   int
}

func (s SourceSpan) String() string { return fmt.Sprintf("%d..%d", s.Start, s.End) }

// Capture describes one value a closure copies from the creating frame.
// Inside the function it lives in register len(Params)+i.
type Capture struct {
	Name   string
	Source Register // register in the enclosing frame
}

// Function is the static description of a compiled function body.
type Function struct {
	Name         string
	Entry        Address
	Params       []string
	NumRegisters int
	Captures     []Capture
}

// Arity returns the number of parameters.
func (f *Function) Arity() int { return len(f.Params) }

// Chunk is a compiled program: one instruction stream shared by all of its
// functions, the constant pool, and the function table. Functions[0] is the
// entry function. A chunk is immutable once built and may be executed by any
// number of machines concurrently.
type Chunk struct {
	Code      []Instruction
	Constants []Value
	Functions []*Function
	Spans     []SourceSpan // Spans[pc] is the source of Code[pc]; may be empty
}

// SpanAt returns the source span of the instruction at pc.
func (c *Chunk) SpanAt(pc int) (SourceSpan, bool) {
	if pc < 0 || pc >= len(c.Spans) {
		return SourceSpan{}, false
	}
	return c.Spans[pc], true
}

// FrameSize returns the register window size used for every call frame:
// the largest NumRegisters of any function.
func (c *Chunk) FrameSize() int {
	n := 0
	for _, fn := range c.Functions {
		if fn.NumRegisters > n {
			n = fn.NumRegisters
		}
	}
	return n
}

// Validate checks that every operand of every instruction is in range:
// jump targets inside the code, constants inside the pool with the expected
// kind, function indices inside the table, registers inside the frame.
// Chunks produced by the compiler always validate; images loaded from
// elsewhere should be validated before they run.
func (c *Chunk) Validate() error {
	if len(c.Functions) == 0 {
		return fmt.Errorf("chunk has no entry function")
	}
	if len(c.Code) == 0 || len(c.Code) > MaxAddress+1 {
		return fmt.Errorf("code length %d out of range", len(c.Code))
	}
	if len(c.Spans) != 0 && len(c.Spans) != len(c.Code) {
		return fmt.Errorf("span table has %d entries for %d instructions", len(c.Spans), len(c.Code))
	}
	frame := c.FrameSize()
	if frame > MaxRegisters {
		return fmt.Errorf("frame size %d exceeds %d registers", frame, MaxRegisters)
	}

	for i, fn := range c.Functions {
		if fn == nil {
			return fmt.Errorf("function %d is nil", i)
		}
		if int(fn.Entry) >= len(c.Code) {
			return fmt.Errorf("function %d entry %d outside code", i, fn.Entry)
		}
		if len(fn.Params)+len(fn.Captures) > fn.NumRegisters {
			return fmt.Errorf("function %d: %d params and %d captures do not fit %d registers",
				i, len(fn.Params), len(fn.Captures), fn.NumRegisters)
		}
		for _, cp := range fn.Captures {
			if int(cp.Source) >= frame {
				return fmt.Errorf("function %d: capture %q source r%d outside frame", i, cp.Name, cp.Source)
			}
		}
	}

	for pc, in := range c.Code {
		if err := c.validateInstruction(in, frame); err != nil {
			return fmt.Errorf("pc %d: %s: %w", pc, in.Op, err)
		}
	}
	return nil
}

func (c *Chunk) validateInstruction(in Instruction, frame int) error {
	info, ok := opcodeInfoTable[in.Op]
	if !ok {
		return fmt.Errorf("unknown opcode 0x%02X", byte(in.Op))
	}

	reg := func(name string, r Register) error {
		if int(r) >= frame {
			return fmt.Errorf("register %s=r%d outside frame of %d", name, r, frame)
		}
		return nil
	}

	if info.Flags&usesA != 0 {
		if err := reg("A", in.A); err != nil {
			return err
		}
	}
	switch {
	case info.Flags&bIsCount != 0:
		if int(in.B)+int(in.C) > frame {
			return fmt.Errorf("register run r%d..%d outside frame of %d", in.B, int(in.B)+int(in.C), frame)
		}
	case in.Op == OpCall:
		if int(in.B)+1+int(in.C) > frame {
			return fmt.Errorf("call arguments r%d..%d outside frame of %d", in.B, int(in.B)+1+int(in.C), frame)
		}
	default:
		if info.Flags&usesB != 0 && in.Op != OpBool && in.Op != OpChar {
			if err := reg("B", in.B); err != nil {
				return err
			}
		}
		if info.Flags&usesC != 0 {
			if err := reg("C", in.C); err != nil {
				return err
			}
		}
	}

	switch {
	case info.Flags&addrIsJump != 0:
		if int(in.Addr) >= len(c.Code) {
			return fmt.Errorf("jump target %d outside code of %d instructions", in.Addr, len(c.Code))
		}
	case info.Flags&addrIsConst != 0:
		if int(in.Addr) >= len(c.Constants) {
			return fmt.Errorf("constant #%d outside pool of %d", in.Addr, len(c.Constants))
		}
		k := c.Constants[in.Addr]
		switch in.Op {
		case OpString, OpGetField, OpSetField:
			if k.kind != KindString {
				return fmt.Errorf("constant #%d is %s, want string", in.Addr, k.kind)
			}
		case OpObject:
			if k.kind != KindTuple || len(k.Tuple()) != int(in.C) {
				return fmt.Errorf("constant #%d is not a %d-key tuple", in.Addr, in.C)
			}
			for _, key := range k.Tuple() {
				if key.kind != KindString {
					return fmt.Errorf("constant #%d holds a non-string key", in.Addr)
				}
			}
		}
	case info.Flags&addrIsFunction != 0:
		if int(in.Addr) >= len(c.Functions) {
			return fmt.Errorf("function %d outside table of %d", in.Addr, len(c.Functions))
		}
	}

	switch in.Op {
	case OpBinary:
		if BinaryOp(in.Tag) >= numBinaryOps {
			return fmt.Errorf("unknown binary operator %d", in.Tag)
		}
	case OpUnary:
		if UnaryOp(in.Tag) >= numUnaryOps {
			return fmt.Errorf("unknown unary operator %d", in.Tag)
		}
	case OpBool:
		if in.B > 1 {
			return fmt.Errorf("bool operand %d", in.B)
		}
	case OpChar:
		if r := in.CharValue(); r > 0x10FFFF {
			return fmt.Errorf("code point %#x out of range", r)
		}
	}
	return nil
}
