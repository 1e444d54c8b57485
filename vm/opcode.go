package vm

/*
	Opcode table. Every instruction is an opcode plus an ordered list of
	Value operands; operands are consumed in reverse (rightmost-first)
	order by the interpreter, so an assembly line

		mov rd 5

	stores "rd" then "5" as operands, and execution pops "5" first.

	mov   <dst> <src>            dst = src (src may be register/offset/immediate)
	push  <src>                  push src's value onto the operand stack
	pop   <dst>                  pop the operand stack into dst
	add sub mul div mod xor <lhs> <rhs>  reg[lhs] = reg[lhs] <op> rhs, lhs must be a register
	test  <a> <b>                sets equals/lessThan/greaterThan comparing a,b
	assert <a> <b>               like test, but faults if a != b, then resets flags
	jmp   <label>                unconditional jump
	je jne jl jg jle jge <label> conditional jump against the current flags
	call  <label>                push return address, jump
	ret                          pop return address, jump back
	input                        push an input value onto the stack
	alloc <dst> <size>           dst = heap.allocate(size)
	free  <ptr> <size>           heap.deallocate(ptr, size)
	cast  <dst> <type>           dst = dst cast to type (in place)
	dup                          duplicate the top of the operand stack
	nop                          no operation
	hlt                          stop execution
	illegal                      always faults; reserved opcode byte
	inc dec <dst>                dst += 1 / dst -= 1
	print println <src>          write src to stdout, dereferencing pointers
*/

type OpCode int

const (
	Nop OpCode = iota
	Mov
	Push
	Pop
	Add
	Sub
	Mul
	Div
	Mod
	Xor
	Test
	Assert
	Jmp
	Je
	Jne
	Jl
	Jg
	Jle
	Jge
	Call
	Ret
	Input
	Alloc
	Free
	Cast
	Dup
	Inc
	Dec
	Print
	Println
	Hlt
	Illegal
)

var (
	strToOpMap = map[string]OpCode{
		"nop":     Nop,
		"mov":     Mov,
		"push":    Push,
		"pop":     Pop,
		"add":     Add,
		"sub":     Sub,
		"mul":     Mul,
		"div":     Div,
		"mod":     Mod,
		"xor":     Xor,
		"test":    Test,
		"assert":  Assert,
		"jmp":     Jmp,
		"je":      Je,
		"jne":     Jne,
		"jl":      Jl,
		"jg":      Jg,
		"jle":     Jle,
		"jge":     Jge,
		"call":    Call,
		"ret":     Ret,
		"input":   Input,
		"alloc":   Alloc,
		"free":    Free,
		"cast":    Cast,
		"dup":     Dup,
		"inc":     Inc,
		"dec":     Dec,
		"print":   Print,
		"println": Println,
		"hlt":     Hlt,
		"illegal": Illegal,
	}

	opToStrMap map[OpCode]string
)

func init() {
	opToStrMap = make(map[OpCode]string, len(strToOpMap))
	for s, op := range strToOpMap {
		if _, exists := opToStrMap[op]; exists {
			continue
		}
		opToStrMap[op] = s
	}
}

func (op OpCode) String() string {
	if s, ok := opToStrMap[op]; ok {
		return s
	}
	return "illegal"
}

// ParseOpCode resolves a mnemonic; the bool is false for an unknown
// mnemonic, which the builder rejects as an assembly error.
func ParseOpCode(s string) (OpCode, bool) {
	op, ok := strToOpMap[s]
	return op, ok
}

// NumOperands reports how many operands an opcode expects. The builder
// does not call it; instruction arity is not validated before dispatch.
func NumOperands(op OpCode) int {
	switch op {
	case Nop, Ret, Dup, Hlt, Illegal, Input:
		return 0
	case Push, Pop, Jmp, Je, Jne, Jl, Jg, Jle, Jge, Call, Inc, Dec, Print, Println:
		return 1
	case Mov, Test, Assert, Alloc, Free, Cast, Add, Sub, Mul, Div, Mod, Xor:
		return 2
	default:
		return 0
	}
}
