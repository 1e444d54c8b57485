package vm

import (
	"fmt"
	"strings"
)

// ErrorKind closes the fault taxonomy: every failure the Interpreter can
// raise fits exactly one of these tags.
type ErrorKind int

const (
	TypeError ErrorKind = iota
	UnknownSymbol
	UnknownLabel
	StackUnderflow
	CallStackUnderflow
	OutOfMemory
	InvalidFree
	UseAfterFree
	CastError
	AssertionFailed
	IllegalInstruction
	Io
)

func (k ErrorKind) String() string {
	switch k {
	case TypeError:
		return "TypeError"
	case UnknownSymbol:
		return "UnknownSymbol"
	case UnknownLabel:
		return "UnknownLabel"
	case StackUnderflow:
		return "StackUnderflow"
	case CallStackUnderflow:
		return "CallStackUnderflow"
	case OutOfMemory:
		return "OutOfMemory"
	case InvalidFree:
		return "InvalidFree"
	case UseAfterFree:
		return "UseAfterFree"
	case CastError:
		return "CastError"
	case AssertionFailed:
		return "AssertionFailed"
	case IllegalInstruction:
		return "IllegalInstruction"
	case Io:
		return "Io"
	default:
		return "Unknown"
	}
}

// Error carries a fault plus enough context to diagnose it without
// re-running the program: a windowed disassembly around the faulting
// instruction and a snapshot of the operand stack at the moment of fault.
type Error struct {
	Kind        ErrorKind
	Message     string
	Disassembly []string
	StackSnapshot []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// newError builds an Error using the interpreter's current pc, instruction
// window and operand stack: four instructions before and after pc, with
// the faulting instruction and any offending operands marked.
func (vm *VM) newError(kind ErrorKind, msg string, offending ...Value) *Error {
	lo := vm.pc - 4
	if lo < 0 {
		lo = 0
	}
	hi := vm.pc + 5
	if hi > len(vm.program.Instructions) {
		hi = len(vm.program.Instructions)
	}

	var window []string
	for i := lo; i < hi; i++ {
		line := fmt.Sprintf("%d\t| %s", i, vm.program.Instructions[i].String())
		if i == vm.pc {
			if len(offending) > 0 {
				var operands []string
				for _, v := range offending {
					operands = append(operands, v.String())
				}
				line += " <-- error occurred here, operand(s): " + strings.Join(operands, " ")
			} else {
				line += " <-- error occurred here"
			}
		}
		window = append(window, line)
	}

	var stackSnapshot []string
	for i, v := range vm.stack {
		stackSnapshot = append(stackSnapshot, fmt.Sprintf("%d\t: %s", i, v.String()))
	}

	return &Error{
		Kind:          kind,
		Message:       msg,
		Disassembly:   window,
		StackSnapshot: stackSnapshot,
	}
}
