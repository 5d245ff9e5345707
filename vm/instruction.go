package vm

import (
	"fmt"
	"math"
)

// Register indexes a slot in the current call frame's register window.
type Register = uint8

// Address indexes the instruction stream, the constant pool or the
// function table, depending on the opcode.
type Address = uint16

// MaxRegisters is the size of a register window.
const MaxRegisters = math.MaxUint8 + 1

// MaxAddress is the largest addressable instruction, constant or function.
const MaxAddress = math.MaxUint16

// InstructionSize is the encoded size of an instruction in the binary image.
const InstructionSize = 7

// Instruction is one fixed-size VM instruction. Operand meaning depends on
// Op; unused operands are zero.
type Instruction struct {
	Op   Opcode
	Tag  uint8 // BinaryOp or UnaryOp
	A    Register
	B    Register
	C    Register
	Addr Address
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// Nop creates a no-op.
func Nop() Instruction { return Instruction{Op: OpNop} }

// Jump creates an unconditional jump.
func Jump(addr Address) Instruction { return Instruction{Op: OpJump, Addr: addr} }

// JumpIf jumps when R[a] is true.
func JumpIf(a Register, addr Address) Instruction {
	return Instruction{Op: OpJumpIf, A: a, Addr: addr}
}

// JumpIfNot jumps when R[a] is false.
func JumpIfNot(a Register, addr Address) Instruction {
	return Instruction{Op: OpJumpIfNot, A: a, Addr: addr}
}

// JumpIfSome jumps when R[a] is not null.
func JumpIfSome(a Register, addr Address) Instruction {
	return Instruction{Op: OpJumpIfSome, A: a, Addr: addr}
}

// JumpIfNone jumps when R[a] is null.
func JumpIfNone(a Register, addr Address) Instruction {
	return Instruction{Op: OpJumpIfNone, A: a, Addr: addr}
}

// Int loads a 16-bit signed literal.
func Int(a Register, n int16) Instruction {
	return Instruction{Op: OpInt, A: a, Addr: Address(uint16(n))}
}

// Bool loads a boolean literal.
func Bool(a Register, b bool) Instruction {
	in := Instruction{Op: OpBool, A: a}
	if b {
		in.B = 1
	}
	return in
}

// Char loads a code point. Code points above 0x10FFFF do not fit.
func Char(a Register, r rune) Instruction {
	return Instruction{Op: OpChar, A: a, B: Register(r >> 16), Addr: Address(r & 0xFFFF)}
}

// String loads a string constant.
func String(a Register, addr Address) Instruction {
	return Instruction{Op: OpString, A: a, Addr: addr}
}

// Binary computes R[dst] = R[l] op R[r].
func Binary(op BinaryOp, dst, l, r Register) Instruction {
	return Instruction{Op: OpBinary, Tag: uint8(op), A: dst, B: l, C: r}
}

// Unary computes R[dst] = op R[src].
func Unary(op UnaryOp, dst, src Register) Instruction {
	return Instruction{Op: OpUnary, Tag: uint8(op), A: dst, B: src}
}

// LoadNull sets R[a] to null.
func LoadNull(a Register) Instruction { return Instruction{Op: OpNull, A: a} }

// Move copies R[src] into R[dst].
func Move(dst, src Register) Instruction { return Instruction{Op: OpMove, A: dst, B: src} }

// Const loads a (copy of a) pool constant.
func Const(a Register, addr Address) Instruction {
	return Instruction{Op: OpConst, A: a, Addr: addr}
}

// MakeTuple builds a tuple from count registers starting at first.
func MakeTuple(dst, first, count Register) Instruction {
	return Instruction{Op: OpTuple, A: dst, B: first, C: count}
}

// MakeVector builds a vector from count registers starting at first.
func MakeVector(dst, first, count Register) Instruction {
	return Instruction{Op: OpVector, A: dst, B: first, C: count}
}

// MakeObject builds an object; keys is a pool tuple of field names.
func MakeObject(dst, first, count Register, keys Address) Instruction {
	return Instruction{Op: OpObject, A: dst, B: first, C: count, Addr: keys}
}

// GetFieldOf reads R[obj].name into R[dst].
func GetFieldOf(dst, obj Register, name Address) Instruction {
	return Instruction{Op: OpGetField, A: dst, B: obj, Addr: name}
}

// SetFieldOf stores R[src] into R[obj].name.
func SetFieldOf(obj, src Register, name Address) Instruction {
	return Instruction{Op: OpSetField, A: obj, B: src, Addr: name}
}

// GetIndexOf reads R[container][R[index]] into R[dst].
func GetIndexOf(dst, container, index Register) Instruction {
	return Instruction{Op: OpGetIndex, A: dst, B: container, C: index}
}

// SetIndexOf stores R[src] into R[container][R[index]].
func SetIndexOf(container, index, src Register) Instruction {
	return Instruction{Op: OpSetIndex, A: container, B: index, C: src}
}

// MakeClosure creates a closure over Functions[fn].
func MakeClosure(dst Register, fn Address) Instruction {
	return Instruction{Op: OpClosure, A: dst, Addr: fn}
}

// Call invokes R[callee] with argc arguments in the registers after it.
func Call(dst, callee, argc Register) Instruction {
	return Instruction{Op: OpCall, A: dst, B: callee, C: argc}
}

// Return leaves the current frame with R[a].
func Return(a Register) Instruction { return Instruction{Op: OpReturn, A: a} }

// Iter creates a cursor over R[src].
func Iter(dst, src Register) Instruction { return Instruction{Op: OpIter, A: dst, B: src} }

// Next advances cursor R[cur] into R[dst].
func Next(dst, cur Register) Instruction { return Instruction{Op: OpNext, A: dst, B: cur} }

// ---------------------------------------------------------------------------
// Operand accessors
// ---------------------------------------------------------------------------

// IntValue returns the embedded literal of an Int instruction.
func (in Instruction) IntValue() int16 { return int16(in.Addr) }

// CharValue returns the embedded code point of a Char instruction.
func (in Instruction) CharValue() rune { return rune(in.B)<<16 | rune(in.Addr) }

// BinaryOp returns the operator of a Binary instruction.
func (in Instruction) BinaryOp() BinaryOp { return BinaryOp(in.Tag) }

// UnaryOp returns the operator of a Unary instruction.
func (in Instruction) UnaryOp() UnaryOp { return UnaryOp(in.Tag) }

// String renders the instruction in disassembly notation.
func (in Instruction) String() string {
	switch in.Op {
	case OpNop:
		return "NOP"
	case OpJump:
		return fmt.Sprintf("JUMP @%d", in.Addr)
	case OpJumpIf, OpJumpIfNot, OpJumpIfSome, OpJumpIfNone:
		return fmt.Sprintf("%s r%d @%d", in.Op, in.A, in.Addr)
	case OpInt:
		return fmt.Sprintf("INT r%d %d", in.A, in.IntValue())
	case OpBool:
		return fmt.Sprintf("BOOL r%d %t", in.A, in.B != 0)
	case OpChar:
		return fmt.Sprintf("CHAR r%d %q", in.A, in.CharValue())
	case OpString, OpConst:
		return fmt.Sprintf("%s r%d #%d", in.Op, in.A, in.Addr)
	case OpBinary:
		return fmt.Sprintf("BINARY.%s r%d r%d r%d", in.BinaryOp(), in.A, in.B, in.C)
	case OpUnary:
		return fmt.Sprintf("UNARY.%s r%d r%d", in.UnaryOp(), in.A, in.B)
	case OpNull, OpReturn:
		return fmt.Sprintf("%s r%d", in.Op, in.A)
	case OpMove, OpIter, OpNext:
		return fmt.Sprintf("%s r%d r%d", in.Op, in.A, in.B)
	case OpTuple, OpVector:
		return fmt.Sprintf("%s r%d r%d..%d", in.Op, in.A, in.B, int(in.B)+int(in.C))
	case OpObject:
		return fmt.Sprintf("OBJECT r%d r%d..%d #%d", in.A, in.B, int(in.B)+int(in.C), in.Addr)
	case OpGetField, OpSetField:
		return fmt.Sprintf("%s r%d r%d #%d", in.Op, in.A, in.B, in.Addr)
	case OpGetIndex, OpSetIndex:
		return fmt.Sprintf("%s r%d r%d r%d", in.Op, in.A, in.B, in.C)
	case OpClosure:
		return fmt.Sprintf("CLOSURE r%d fn%d", in.A, in.Addr)
	case OpCall:
		return fmt.Sprintf("CALL r%d r%d(%d)", in.A, in.B, in.C)
	}
	return fmt.Sprintf("%s %d %d %d %d %d", in.Op, in.Tag, in.A, in.B, in.C, in.Addr)
}
