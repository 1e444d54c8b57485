package vm_test

import (
	"fmt"
	"testing"

	"opvm/internal/asm"
	"opvm/vm"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(fmt.Sprintf(format, args...))
	}
}

func buildAndRun(t *testing.T, source string) (*vm.VM, error) {
	t.Helper()
	program, err := asm.Build(source)
	assert(t, err == nil, "failed to assemble: %v", err)

	machine := vm.New(true)
	err = machine.Execute(*program)
	return machine, err
}

func TestMovBetweenRegisters(t *testing.T) {
	machine, err := buildAndRun(t, `
		mov ra 4
		mov rb ra
		mov rc rb
	`)
	assert(t, err == nil, "unexpected error: %v", err)

	v := machine.Registers().Get(vm.RC)
	n, ok := v.AsInt()
	assert(t, ok, "expected rc to hold an int")
	assert(t, n == 4, "expected rc == 4, got %d", n)
}

func TestArithmetic(t *testing.T) {
	machine, err := buildAndRun(t, `
		mov ra 4
		add ra 5
		mov rb 10
		sub rb 3
		mov rc 6
		mul rc 7
	`)
	assert(t, err == nil, "unexpected error: %v", err)

	ra, _ := machine.Registers().Get(vm.RA).AsInt()
	rb, _ := machine.Registers().Get(vm.RB).AsInt()
	rc, _ := machine.Registers().Get(vm.RC).AsInt()
	assert(t, ra == 9, "expected ra == 9, got %d", ra)
	assert(t, rb == 7, "expected rb == 7, got %d", rb)
	assert(t, rc == 42, "expected rc == 42, got %d", rc)
}

func TestDivisionByZeroFaults(t *testing.T) {
	_, err := buildAndRun(t, `
		mov ra 4
		div ra 0
	`)
	assert(t, err != nil, "expected a division-by-zero fault")
	verr, ok := err.(*vm.Error)
	assert(t, ok, "expected a *vm.Error, got %T", err)
	assert(t, verr.Kind == vm.TypeError, "expected TypeError, got %s", verr.Kind)
}

func TestPushPopStack(t *testing.T) {
	machine, err := buildAndRun(t, `
		mov ra 99
		push ra
		pop rb
	`)
	assert(t, err == nil, "unexpected error: %v", err)
	rb, _ := machine.Registers().Get(vm.RB).AsInt()
	assert(t, rb == 99, "expected rb == 99, got %d", rb)
}

func TestConditionalJumpViaFlags(t *testing.T) {
	machine, err := buildAndRun(t, `
		mov ra 1
		test ra 1
		je skip
		mov rb 123
	skip:
		mov rc 7
	`)
	assert(t, err == nil, "unexpected error: %v", err)
	rb, _ := machine.Registers().Get(vm.RB).AsInt()
	assert(t, rb == 0, "expected rb to keep its initial 0 (je should have fired), got %d", rb)
	rc, _ := machine.Registers().Get(vm.RC).AsInt()
	assert(t, rc == 7, "expected rc == 7, got %d", rc)
}

func TestCallReturn(t *testing.T) {
	machine, err := buildAndRun(t, `
		call triple
		hlt
	triple:
		mov ra 3
		ret
	`)
	assert(t, err == nil, "unexpected error: %v", err)
	ra, _ := machine.Registers().Get(vm.RA).AsInt()
	assert(t, ra == 3, "expected ra == 3, got %d", ra)
}

func TestAllocFreeAndUseAfterFree(t *testing.T) {
	machine, err := buildAndRun(t, `
		alloc ra 8
		free ra 8
		mov rb ra[0]
	`)
	assert(t, err != nil, "expected a use-after-free fault")
	verr, ok := err.(*vm.Error)
	assert(t, ok, "expected a *vm.Error, got %T", err)
	assert(t, verr.Kind == vm.UseAfterFree, "expected UseAfterFree, got %s", verr.Kind)
	_ = machine
}

func TestAllocWriteReadThroughOffset(t *testing.T) {
	machine, err := buildAndRun(t, `
		alloc ra 4
		mov ra[0] 65
		mov rb ra[0]
	`)
	assert(t, err == nil, "unexpected error: %v", err)
	rb, ok := machine.Registers().Get(vm.RB).AsByte()
	assert(t, ok, "expected rb to hold a byte")
	assert(t, rb == 65, "expected rb == 65, got %d", rb)
}

func TestStringDataSegment(t *testing.T) {
	machine, err := buildAndRun(t, `
		.data
		greeting: "hi"
		.code
		mov ra greeting
	`)
	assert(t, err == nil, "unexpected error: %v", err)
	s, ok := machine.Registers().Get(vm.RA).AsString()
	assert(t, ok, "expected ra to hold a string")
	assert(t, s == "hi", "expected ra == 'hi', got %q", s)
}

func TestIllegalInstructionFaults(t *testing.T) {
	_, err := buildAndRun(t, `
		illegal
	`)
	assert(t, err != nil, "expected a fault")
	verr, ok := err.(*vm.Error)
	assert(t, ok, "expected a *vm.Error, got %T", err)
	assert(t, verr.Kind == vm.IllegalInstruction, "expected IllegalInstruction, got %s", verr.Kind)
}

func TestAssertFailureFaults(t *testing.T) {
	_, err := buildAndRun(t, `
		assert 1 2
	`)
	assert(t, err != nil, "expected an assertion fault")
	verr, ok := err.(*vm.Error)
	assert(t, ok, "expected a *vm.Error, got %T", err)
	assert(t, verr.Kind == vm.AssertionFailed, "expected AssertionFailed, got %s", verr.Kind)
}

func TestCounterLoop(t *testing.T) {
	machine, err := buildAndRun(t, `
		.data
		n: 3
		.code
		mov ra 0
	loop:
		add ra 1
		test ra n
		jl loop
	`)
	assert(t, err == nil, "unexpected error: %v", err)
	ra, _ := machine.Registers().Get(vm.RA).AsInt()
	assert(t, ra == 3, "expected ra == 3, got %d", ra)
	assert(t, machine.Registers().Equals(), "expected equals flag set after the final test")
}

func TestPointerStringBuild(t *testing.T) {
	machine, err := buildAndRun(t, `
		alloc ra 4
		mov ra[0] 'd'
		mov ra[1] 'a'
		mov ra[2] 'y'
		mov rd ra
	`)
	assert(t, err == nil, "unexpected error: %v", err)
	ptr, ok := machine.Registers().Get(vm.RD).AsPointer()
	assert(t, ok, "expected rd to hold a pointer")
	s, derr := vm.DisplayPointer(ptr, machine.Heap())
	assert(t, derr == nil, "unexpected display error: %v", derr)
	assert(t, s == "day", "expected display to read 'day', got %q", s)
}

func TestPointerToPointerCopy(t *testing.T) {
	machine, err := buildAndRun(t, `
		alloc ra 4
		mov ra[0] 'd'
		mov ra[1] 'a'
		mov ra[2] 'y'
		alloc rb 4
		mov rc ra[0]
		mov rb[0] rc
		mov rc ra[1]
		mov rb[1] rc
		mov rc ra[2]
		mov rb[2] rc
	`)
	assert(t, err == nil, "unexpected error: %v", err)
	pa, _ := machine.Registers().Get(vm.RA).AsPointer()
	pb, _ := machine.Registers().Get(vm.RB).AsPointer()
	sa, errA := vm.DisplayPointer(pa, machine.Heap())
	sb, errB := vm.DisplayPointer(pb, machine.Heap())
	assert(t, errA == nil && errB == nil, "unexpected display errors: %v %v", errA, errB)
	assert(t, sa == sb, "expected ra and rb to display identically, got %q vs %q", sa, sb)
}

func TestErrorCarriesDisassemblyWindow(t *testing.T) {
	_, err := buildAndRun(t, `
		mov ra 1
		mov rb 2
		illegal
		mov rc 3
	`)
	assert(t, err != nil, "expected a fault")
	verr, ok := err.(*vm.Error)
	assert(t, ok, "expected a *vm.Error, got %T", err)
	assert(t, len(verr.Disassembly) > 0, "expected a non-empty disassembly window")
}
