package vm

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the chunk.
func (c *Chunk) Disassemble() string {
	return c.DisassembleWithName("")
}

// DisassembleWithName returns a listing with a name header.
func (c *Chunk) DisassembleWithName(name string) string {
	var sb strings.Builder

	// Header
	if name != "" {
		fmt.Fprintf(&sb, "; === %s ===\n", name)
	}
	fmt.Fprintf(&sb, "; marte bytecode v%d: %d instructions, %d constants, %d functions\n",
		ImageVersion, len(c.Code), len(c.Constants), len(c.Functions))
	sb.WriteString("\n")

	// Constants
	if len(c.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for i, k := range c.Constants {
			display := k.String()
			if len(display) > 40 {
				display = display[:37] + "..."
			}
			display = strings.ReplaceAll(display, "\n", "\\n")
			fmt.Fprintf(&sb, ";   [%3d] %s\n", i, display)
		}
		sb.WriteString("\n")
	}

	// Functions
	entries := make(map[int][]int)
	sb.WriteString("; Functions:\n")
	for i, fn := range c.Functions {
		entries[int(fn.Entry)] = append(entries[int(fn.Entry)], i)
		fmt.Fprintf(&sb, ";   fn%d %s @%d regs=%d params=(%s)",
			i, functionName(fn, i), fn.Entry, fn.NumRegisters, strings.Join(fn.Params, ", "))
		if len(fn.Captures) > 0 {
			caps := make([]string, len(fn.Captures))
			for j, cp := range fn.Captures {
				caps[j] = fmt.Sprintf("%s<-r%d", cp.Name, cp.Source)
			}
			fmt.Fprintf(&sb, " captures=(%s)", strings.Join(caps, ", "))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	// Jump targets get a label line
	targets := make(map[int]bool)
	for _, in := range c.Code {
		if in.Op.IsJump() {
			targets[int(in.Addr)] = true
		}
	}

	// Code
	sb.WriteString("; Code:\n")
	for pc, in := range c.Code {
		for _, fi := range entries[pc] {
			fmt.Fprintf(&sb, "%s:\n", functionName(c.Functions[fi], fi))
		}
		if targets[pc] {
			fmt.Fprintf(&sb, "L%d:\n", pc)
		}
		fmt.Fprintf(&sb, "  %04d  %-32s", pc, in)
		if comment := c.comment(in); comment != "" {
			fmt.Fprintf(&sb, " ; %s", comment)
		}
		if span, ok := c.SpanAt(pc); ok {
			fmt.Fprintf(&sb, " [%s]", span)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func functionName(fn *Function, i int) string {
	if fn.Name != "" {
		return fn.Name
	}
	if i == 0 {
		return "<main>"
	}
	return fmt.Sprintf("<fn%d>", i)
}

// comment renders the operand a reader would otherwise look up.
func (c *Chunk) comment(in Instruction) string {
	info := GetOpcodeInfo(in.Op)
	switch {
	case info.Flags&addrIsConst != 0 && int(in.Addr) < len(c.Constants):
		s := c.Constants[in.Addr].String()
		if len(s) > 40 {
			s = s[:37] + "..."
		}
		return s
	case info.Flags&addrIsFunction != 0 && int(in.Addr) < len(c.Functions):
		return functionName(c.Functions[in.Addr], int(in.Addr))
	}
	return ""
}
