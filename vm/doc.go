// Package vm implements the marte virtual machine.
//
// This package contains:
//   - Tagged value representation and operator semantics
//   - Fixed-size register instructions and the constant pool
//   - Chunks, the chunk builder and jump labels
//   - Binary image encoding and a disassembler
//   - The register-window interpreter (Machine)
//
// Vectors and objects compare by identity, so [1] == [1] is false; tuples
// and scalars compare by value.
package vm
