package vm

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// BuiltIn is the host-call contract: a name plus a function of the
// interpreter's live registers, operand stack and instruction stream,
// since the call opcode lets assembly invoke a built-in in place of a
// label.
type BuiltIn interface {
	Name() string
	Call(registers *RegisterFile, stack *[]Value, instructions []Instruction) Value
}

// BuiltInRegistry resolves a built-in name to its implementation by linear
// search in registration order; the first registration of a given name
// wins, so a later Register call with a clashing name is a no-op rather
// than a silent override.
type BuiltInRegistry struct {
	entries []BuiltIn
}

func NewBuiltInRegistry() *BuiltInRegistry {
	return &BuiltInRegistry{}
}

func (r *BuiltInRegistry) Register(b BuiltIn) {
	for _, existing := range r.entries {
		if existing.Name() == b.Name() {
			return
		}
	}
	r.entries = append(r.entries, b)
}

func (r *BuiltInRegistry) Lookup(name string) (BuiltIn, bool) {
	for _, b := range r.entries {
		if b.Name() == name {
			return b, true
		}
	}
	return nil, false
}

// builtInFunc adapts a plain function to BuiltIn, the way most registered
// built-ins below are defined: a name plus a closure, rather than a
// dedicated struct per built-in.
type builtInFunc struct {
	name string
	fn   func(*RegisterFile, *[]Value, []Instruction) Value
}

func (b builtInFunc) Name() string { return b.name }
func (b builtInFunc) Call(registers *RegisterFile, stack *[]Value, instructions []Instruction) Value {
	return b.fn(registers, stack, instructions)
}

// NewDefaultBuiltInRegistry wires the host built-ins every program can call
// by name without a corresponding label: println/print/concat, clock
// access, randomness, and a couple of debug dumps.
func NewDefaultBuiltInRegistry(heap *Heap) *BuiltInRegistry {
	reg := NewBuiltInRegistry()

	reg.Register(builtInFunc{name: "__println", fn: func(rf *RegisterFile, _ *[]Value, _ []Instruction) Value {
		fmt.Println(rf.Get(RD).String())
		return IntValue(0)
	}})

	reg.Register(builtInFunc{name: "__print", fn: func(rf *RegisterFile, _ *[]Value, _ []Instruction) Value {
		fmt.Print(rf.Get(RD).String())
		return IntValue(0)
	}})

	reg.Register(builtInFunc{name: "__concat", fn: func(rf *RegisterFile, _ *[]Value, _ []Instruction) Value {
		return StringValue(rf.Get(RD).String() + rf.Get(RE).String())
	}})

	// Clock access is carried on the standard library (see DESIGN.md).
	reg.Register(builtInFunc{name: "__date_now_unix", fn: func(_ *RegisterFile, _ *[]Value, _ []Instruction) Value {
		return UsizeValue(uint64(time.Now().UnixMicro()))
	}})

	reg.Register(builtInFunc{name: "__date_now", fn: func(_ *RegisterFile, _ *[]Value, _ []Instruction) Value {
		return HostValue(time.Now().UTC())
	}})

	reg.Register(builtInFunc{name: "__random", fn: func(_ *RegisterFile, _ *[]Value, _ []Instruction) Value {
		return FloatValue(rand.Float64())
	}})

	reg.Register(builtInFunc{name: "__floor", fn: func(rf *RegisterFile, _ *[]Value, _ []Instruction) Value {
		f, _ := rf.Get(RD).AsFloat()
		return FloatValue(math.Floor(f))
	}})

	reg.Register(builtInFunc{name: "__dbg_print", fn: func(rf *RegisterFile, stack *[]Value, _ []Instruction) Value {
		fmt.Printf("ra=%s rb=%s rc=%s rd=%s re=%s rf=%s stack_len=%d\n",
			rf.Get(RA), rf.Get(RB), rf.Get(RC), rf.Get(RD), rf.Get(RE), rf.Get(RF), len(*stack))
		return IntValue(0)
	}})

	reg.Register(builtInFunc{name: "__dbg_heap", fn: func(_ *RegisterFile, _ *[]Value, _ []Instruction) Value {
		fmt.Printf("heap live allocations: %d\n", len(heap.live))
		return IntValue(0)
	}})

	return reg
}
