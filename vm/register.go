package vm

import "strings"

// Register names one of sixteen slots: six lettered registers (ra..rf)
// plus ten numbered ones (r0..r9). Register is a small closed enum whose
// values index the RegisterFile's slot array; only the sixteen names parse,
// so invalid names fail at parse time rather than silently wrapping into
// valid ones.
type Register int

const (
	RA Register = iota
	RB
	RC
	RD
	RE
	RF
	R0
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	registerCount
)

var registerNames = map[Register]string{
	RA: "ra", RB: "rb", RC: "rc", RD: "rd", RE: "re", RF: "rf",
	R0: "r0", R1: "r1", R2: "r2", R3: "r3", R4: "r4",
	R5: "r5", R6: "r6", R7: "r7", R8: "r8", R9: "r9",
}

var registerByName map[string]Register

func init() {
	registerByName = make(map[string]Register, len(registerNames))
	for r, n := range registerNames {
		registerByName[n] = r
	}
}

func (r Register) String() string {
	if n, ok := registerNames[r]; ok {
		return n
	}
	return "unknown"
}

// ParseRegister resolves a source-text register name; the bool is false
// for anything that isn't one of the sixteen names.
func ParseRegister(s string) (Register, bool) {
	r, ok := registerByName[strings.ToLower(s)]
	return r, ok
}

// RegisterOffsetOp is one term's operator in a register-with-offsets
// expression. "None" marks a term with no preceding operator: the initial
// accumulator is its value, and each subsequent term folds in left to
// right, not by ordinary operator precedence.
type RegisterOffsetOp int

const (
	OffsetNone RegisterOffsetOp = iota
	OffsetAdd
	OffsetSub
	OffsetMul
	OffsetDiv
	OffsetRem
)

func (op RegisterOffsetOp) String() string {
	switch op {
	case OffsetAdd:
		return "+"
	case OffsetSub:
		return "-"
	case OffsetMul:
		return "*"
	case OffsetDiv:
		return "/"
	case OffsetRem:
		return "%"
	default:
		return ""
	}
}

// RegisterOffset is one term of an offset expression: either a constant
// Value or a register reference, paired with the operator that folds it
// into the running accumulator.
type RegisterOffset struct {
	Value    Value
	Operator RegisterOffsetOp
}

// RegisterFile holds the sixteen registers, the three comparison flags and
// the three reflection slots, backed by a flat array indexed by Register so
// Get/Set stay a single bounds-checked slice access instead of a sixteen-way
// match.
type RegisterFile struct {
	slots [registerCount]Value

	equals      bool
	lessThan    bool
	greaterThan bool

	stackLen     int
	callStackLen int
	pc           int
}

func NewRegisterFile() *RegisterFile {
	rf := &RegisterFile{}
	for i := range rf.slots {
		rf.slots[i] = IntValue(0)
	}
	return rf
}

func (rf *RegisterFile) Get(r Register) Value {
	return rf.slots[r]
}

// Set stores v into r. If v is itself a register reference it is
// dereferenced first, so Set(A, RegisterValue(B)) copies B's current
// content into A rather than storing a reference.
func (rf *RegisterFile) Set(r Register, v Value) {
	if src, _, ok := v.AsRegister(); ok && v.Kind() == KindRegister {
		v = rf.slots[src]
	}
	rf.slots[r] = v
}

func (rf *RegisterFile) ResetFlags() {
	rf.equals = false
	rf.lessThan = false
	rf.greaterThan = false
}

func (rf *RegisterFile) Equals() bool      { return rf.equals }
func (rf *RegisterFile) LessThan() bool    { return rf.lessThan }
func (rf *RegisterFile) GreaterThan() bool { return rf.greaterThan }

func (rf *RegisterFile) SetEquals(b bool)      { rf.equals = b }
func (rf *RegisterFile) SetLessThan(b bool)    { rf.lessThan = b }
func (rf *RegisterFile) SetGreaterThan(b bool) { rf.greaterThan = b }

// refreshReflection is called after every executed instruction when the VM
// was constructed with reflection enabled.
func (rf *RegisterFile) refreshReflection(stackLen, callStackLen, pc int) {
	rf.stackLen = stackLen
	rf.callStackLen = callStackLen
	rf.pc = pc
}

func (rf *RegisterFile) StackLen() int     { return rf.stackLen }
func (rf *RegisterFile) CallStackLen() int { return rf.callStackLen }
func (rf *RegisterFile) PC() int           { return rf.pc }
