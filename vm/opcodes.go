package vm

import "fmt"

// Opcode identifies an instruction kind. The numbering is part of the binary
// image format and must not change.
type Opcode byte

const (
	// ========================================================================
	// Core (0x00-0x0F)
	// ========================================================================

	OpNop        Opcode = 0x00 // No operation
	OpJump       Opcode = 0x01 // pc = Addr
	OpJumpIf     Opcode = 0x02 // if R[A] is true: pc = Addr
	OpJumpIfNot  Opcode = 0x03 // if R[A] is false: pc = Addr
	OpJumpIfSome Opcode = 0x04 // if R[A] is not null: pc = Addr
	OpJumpIfNone Opcode = 0x05 // if R[A] is null: pc = Addr
	OpInt        Opcode = 0x06 // R[A] = int16(Addr)
	OpBool       Opcode = 0x07 // R[A] = B != 0
	OpChar       Opcode = 0x08 // R[A] = rune(B<<16 | Addr)
	OpString     Opcode = 0x09 // R[A] = pool[Addr] (string)
	OpBinary     Opcode = 0x0A // R[A] = R[B] <Tag> R[C]
	OpUnary      Opcode = 0x0B // R[A] = <Tag> R[B]

	// ========================================================================
	// Registers and constants (0x10-0x1F)
	// ========================================================================

	OpNull  Opcode = 0x10 // R[A] = null
	OpMove  Opcode = 0x11 // R[A] = R[B]
	OpConst Opcode = 0x12 // R[A] = copy of pool[Addr]

	// ========================================================================
	// Compounds and paths (0x20-0x2F)
	// ========================================================================

	OpTuple    Opcode = 0x20 // R[A] = tuple(R[B..B+C))
	OpVector   Opcode = 0x21 // R[A] = vector(R[B..B+C))
	OpObject   Opcode = 0x22 // R[A] = object(keys pool[Addr], values R[B..B+C))
	OpGetField Opcode = 0x23 // R[A] = R[B].pool[Addr]
	OpSetField Opcode = 0x24 // R[A].pool[Addr] = R[B]
	OpGetIndex Opcode = 0x25 // R[A] = R[B][R[C]]
	OpSetIndex Opcode = 0x26 // R[A][R[B]] = R[C]

	// ========================================================================
	// Functions (0x30-0x3F)
	// ========================================================================

	OpClosure Opcode = 0x30 // R[A] = closure(Functions[Addr])
	OpCall    Opcode = 0x31 // R[A] = R[B](R[B+1..B+1+C))
	OpReturn  Opcode = 0x32 // return R[A]

	// ========================================================================
	// Iteration (0x40-0x4F)
	// ========================================================================

	OpIter Opcode = 0x40 // R[A] = cursor over R[B]
	OpNext Opcode = 0x41 // R[A] = next element of cursor R[B], or null
)

// Operand layout flags used by the disassembler and validator.
const (
	usesA = 1 << iota
	usesB
	usesC
	usesAddr
	addrIsJump
	addrIsConst
	addrIsFunction
	bIsCount // C holds a count, B the first register of a run
)

// OpcodeInfo describes an opcode for debugging and validation.
type OpcodeInfo struct {
	Name  string // Human-readable name
	Flags int    // Operand layout
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Core
	OpNop:        {"NOP", 0},
	OpJump:       {"JUMP", usesAddr | addrIsJump},
	OpJumpIf:     {"JUMP_IF", usesA | usesAddr | addrIsJump},
	OpJumpIfNot:  {"JUMP_IF_NOT", usesA | usesAddr | addrIsJump},
	OpJumpIfSome: {"JUMP_IF_SOME", usesA | usesAddr | addrIsJump},
	OpJumpIfNone: {"JUMP_IF_NONE", usesA | usesAddr | addrIsJump},
	OpInt:        {"INT", usesA | usesAddr},
	OpBool:       {"BOOL", usesA | usesB},
	OpChar:       {"CHAR", usesA | usesB | usesAddr},
	OpString:     {"STRING", usesA | usesAddr | addrIsConst},
	OpBinary:     {"BINARY", usesA | usesB | usesC},
	OpUnary:      {"UNARY", usesA | usesB},

	// Registers and constants
	OpNull:  {"NULL", usesA},
	OpMove:  {"MOVE", usesA | usesB},
	OpConst: {"CONST", usesA | usesAddr | addrIsConst},

	// Compounds and paths
	OpTuple:    {"TUPLE", usesA | usesB | usesC | bIsCount},
	OpVector:   {"VECTOR", usesA | usesB | usesC | bIsCount},
	OpObject:   {"OBJECT", usesA | usesB | usesC | bIsCount | usesAddr | addrIsConst},
	OpGetField: {"GET_FIELD", usesA | usesB | usesAddr | addrIsConst},
	OpSetField: {"SET_FIELD", usesA | usesB | usesAddr | addrIsConst},
	OpGetIndex: {"GET_INDEX", usesA | usesB | usesC},
	OpSetIndex: {"SET_INDEX", usesA | usesB | usesC},

	// Functions
	OpClosure: {"CLOSURE", usesA | usesAddr | addrIsFunction},
	OpCall:    {"CALL", usesA | usesB | usesC},
	OpReturn:  {"RETURN", usesA},

	// Iteration
	OpIter: {"ITER", usesA | usesB},
	OpNext: {"NEXT", usesA | usesB},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// IsJump returns true if this opcode transfers control to Addr.
func (op Opcode) IsJump() bool {
	return op >= OpJump && op <= OpJumpIfNone
}

// AllOpcodes returns a slice of all defined opcodes.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// ---------------------------------------------------------------------------
// Operator tags
// ---------------------------------------------------------------------------

// BinaryOp is the Tag byte of a Binary instruction.
type BinaryOp uint8

const (
	BinAnd BinaryOp = iota
	BinOr
	BinEq
	BinNe
	BinLt
	BinGt
	BinLe
	BinGe
	BinAdd
	BinSub
	BinMul
	BinDiv
	BinMod
	BinPow

	numBinaryOps
)

var binaryOpNames = [...]string{
	BinAnd: "and",
	BinOr:  "or",
	BinEq:  "eq",
	BinNe:  "ne",
	BinLt:  "lt",
	BinGt:  "gt",
	BinLe:  "le",
	BinGe:  "ge",
	BinAdd: "add",
	BinSub: "sub",
	BinMul: "mul",
	BinDiv: "div",
	BinMod: "mod",
	BinPow: "pow",
}

func (op BinaryOp) String() string {
	if op < numBinaryOps {
		return binaryOpNames[op]
	}
	return fmt.Sprintf("binop(%d)", uint8(op))
}

// UnaryOp is the Tag byte of a Unary instruction.
type UnaryOp uint8

const (
	UnNeg UnaryOp = iota
	UnNot

	numUnaryOps
)

func (op UnaryOp) String() string {
	switch op {
	case UnNeg:
		return "neg"
	case UnNot:
		return "not"
	}
	return fmt.Sprintf("unop(%d)", uint8(op))
}
