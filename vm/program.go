package vm

import (
	"fmt"
	"strings"
)

// Instruction is an opcode plus its ordered operand list. The interpreter
// consumes Operands back-to-front; Operands is left in source order here so
// disassembly prints the way the assembly reads.
type Instruction struct {
	Opcode   OpCode
	Operands []Value
}

func NewInstruction(op OpCode, operands ...Value) Instruction {
	return Instruction{Opcode: op, Operands: operands}
}

// String renders one disassembled line, used both by the CLI's disasm
// output and by Error's windowed disassembly.
func (ins Instruction) String() string {
	if len(ins.Operands) == 0 {
		return ins.Opcode.String()
	}
	parts := make([]string, len(ins.Operands))
	for i, v := range ins.Operands {
		parts[i] = v.String()
	}
	return fmt.Sprintf("%s %s", ins.Opcode, strings.Join(parts, " "))
}

// Program is the fully-resolved unit the Interpreter executes: a flat
// instruction stream, a label-to-index map, and a data segment of named
// constants.
type Program struct {
	Instructions []Instruction
	Labels       map[string]int
	Data         map[string]Value
}

func NewProgram() *Program {
	return &Program{
		Labels: make(map[string]int),
		Data:   make(map[string]Value),
	}
}
