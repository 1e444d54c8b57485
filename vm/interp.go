package vm

import (
	"strconv"
)

// getDefaultRecoverFuncForVM converts a host-level panic (a slice index or
// similar bug surfacing mid-dispatch) into a regular TypeError instead of
// crashing the process.
func getDefaultRecoverFuncForVM(vm *VM, errOut *error) func() {
	return func() {
		if r := recover(); r != nil {
			*errOut = vm.newError(TypeError, "internal fault while executing instruction")
		}
	}
}

// Execute loads program and runs the fetch/dispatch/increment loop until
// Hlt, a fall-through past the last instruction, or a fault. Every
// executed instruction's operands are consumed rightmost-first.
func (vm *VM) Execute(program Program) (err error) {
	vm.program = program
	vm.pc = 0

	defer getDefaultRecoverFuncForVM(vm, &err)()

	for vm.pc < len(vm.program.Instructions) && !vm.halted {
		if stepErr := vm.Step(); stepErr != nil {
			return stepErr
		}
	}
	return nil
}

// Finished reports whether execution has run past the last instruction or
// hit Hlt, the condition RunDebugMode uses to stop its breakpoint loop.
func (vm *VM) Finished() bool {
	return vm.halted || vm.pc >= len(vm.program.Instructions)
}

// Step fetches and dispatches exactly one instruction, advancing pc (or
// jumping) and refreshing the reflection slots if enabled. Used directly
// by Execute's loop and by the single-step debug REPL in run.go.
func (vm *VM) Step() (err error) {
	defer getDefaultRecoverFuncForVM(vm, &err)()

	if vm.pc >= len(vm.program.Instructions) {
		return nil
	}
	ins := vm.program.Instructions[vm.pc]
	ops := append([]Value(nil), ins.Operands...)

	jumped, stepErr := vm.step(ins.Opcode, &ops)
	if stepErr != nil {
		return stepErr
	}
	if vm.halted {
		return nil
	}
	if !jumped {
		vm.pc++
	}
	if vm.reflection {
		vm.registers.refreshReflection(len(vm.stack), len(vm.callStack), vm.pc)
	}
	return nil
}

// popOperand pops the rightmost remaining operand off ops: operands are
// consumed in reverse, rightmost-first order.
func (vm *VM) popOperand(ops *[]Value) (Value, error) {
	n := len(*ops)
	if n == 0 {
		return Value{}, vm.newError(TypeError, "cannot pop empty operand list")
	}
	v := (*ops)[n-1]
	*ops = (*ops)[:n-1]
	return v, nil
}

func (vm *VM) popOperandRegister(ops *[]Value) (Register, []RegisterOffset, error) {
	v, err := vm.popOperand(ops)
	if err != nil {
		return 0, nil, err
	}
	r, offsets, ok := v.AsRegister()
	if !ok {
		return 0, nil, vm.newError(TypeError, "expected a register operand", v)
	}
	return r, offsets, nil
}

// resolveValue turns an operand into a concrete Value: immediates pass
// through, plain register operands read the register, register-with-offset
// operands go through the addressing resolver, and data-symbol strings
// resolve against the program's data segment.
func (vm *VM) resolveValue(v Value) (Value, error) {
	if name, ok := v.AsString(); ok {
		if data, found := vm.program.Data[name]; found {
			return data, nil
		}
	}
	if r, offsets, ok := v.AsRegister(); ok {
		base := vm.registers.Get(r)
		if len(offsets) == 0 {
			return base, nil
		}
		out, err := readThroughOffset(vm.registers, vm.heap, base, offsets)
		if err != nil {
			return Value{}, vm.wrapHeapErr(err, v)
		}
		return out, nil
	}
	return v, nil
}

func (vm *VM) wrapHeapErr(err error, offending ...Value) error {
	if he, ok := err.(*hostHeapError); ok {
		return vm.newError(he.kind, he.message, offending...)
	}
	return err
}

func (vm *VM) pushStack(v Value) {
	vm.stack = append(vm.stack, v)
}

func (vm *VM) popStack() (Value, error) {
	n := len(vm.stack)
	if n == 0 {
		return Value{}, vm.newError(StackUnderflow, "cannot pop empty operand stack")
	}
	v := vm.stack[n-1]
	vm.stack = vm.stack[:n-1]
	return v, nil
}

func (vm *VM) jumpToLabel(v Value) (int, error) {
	name, ok := v.AsString()
	if !ok {
		if r, _, isReg := v.AsRegister(); isReg {
			if s, isStr := vm.registers.Get(r).AsString(); isStr {
				name = s
				ok = true
			}
		}
	}
	if !ok {
		return 0, vm.newError(UnknownLabel, "jump target is not a label", v)
	}
	idx, found := vm.program.Labels[name]
	if !found {
		return 0, vm.newError(UnknownLabel, "cannot find label '"+name+"'")
	}
	return idx, nil
}

// step executes a single instruction; the bool reports whether pc was
// already repositioned (a jump/call/ret), so the caller must not
// auto-increment it.
func (vm *VM) step(op OpCode, ops *[]Value) (jumped bool, err error) {
	switch op {
	case Nop:
		return false, nil

	case Hlt:
		vm.halted = true
		return false, nil

	case Illegal:
		return false, vm.newError(IllegalInstruction, "illegal instruction encountered")

	case Mov:
		src, err := vm.popOperand(ops)
		if err != nil {
			return false, err
		}
		dstReg, offsets, err := vm.popOperandRegister(ops)
		if err != nil {
			return false, err
		}
		value, err := vm.resolveValue(src)
		if err != nil {
			return false, err
		}
		if len(offsets) > 0 {
			base := vm.registers.Get(dstReg)
			out, werr := writeThroughOffset(vm.registers, vm.heap, base, offsets, value)
			if werr != nil {
				return false, vm.wrapHeapErr(werr, src)
			}
			vm.registers.Set(dstReg, out)
			return false, nil
		}
		vm.registers.Set(dstReg, value)
		return false, nil

	case Push:
		v, err := vm.popOperand(ops)
		if err != nil {
			return false, err
		}
		value, err := vm.resolveValue(v)
		if err != nil {
			return false, err
		}
		vm.pushStack(value)
		return false, nil

	case Pop:
		dstReg, _, err := vm.popOperandRegister(ops)
		if err != nil {
			return false, err
		}
		value, err := vm.popStack()
		if err != nil {
			return false, err
		}
		vm.registers.Set(dstReg, value)
		return false, nil

	case Dup:
		v, err := vm.popStack()
		if err != nil {
			return false, err
		}
		vm.pushStack(v)
		vm.pushStack(v)
		return false, nil

	case Add, Sub, Mul, Div, Mod, Xor:
		return false, vm.execArith(op, ops)

	case Inc, Dec:
		return false, vm.execIncDec(op, ops)

	case Test, Assert:
		return false, vm.execCompare(op, ops)

	case Jmp:
		target, err := vm.popOperand(ops)
		if err != nil {
			return false, err
		}
		pc, err := vm.jumpToLabel(target)
		if err != nil {
			return false, err
		}
		vm.pc = pc
		return true, nil

	case Je, Jne, Jl, Jg, Jle, Jge:
		take := false
		switch op {
		case Je:
			take = vm.registers.Equals()
		case Jne:
			take = !vm.registers.Equals()
		case Jl:
			take = vm.registers.LessThan()
		case Jg:
			take = vm.registers.GreaterThan()
		case Jle:
			take = vm.registers.Equals() || vm.registers.LessThan()
		case Jge:
			take = vm.registers.Equals() || vm.registers.GreaterThan()
		}
		target, err := vm.popOperand(ops)
		if err != nil {
			return false, err
		}
		if !take {
			return false, nil
		}
		pc, err := vm.jumpToLabel(target)
		if err != nil {
			return false, err
		}
		vm.pc = pc
		return true, nil

	case Call:
		target, err := vm.popOperand(ops)
		if err != nil {
			return false, err
		}
		if name, ok := target.AsString(); ok {
			if b, found := vm.builtins.Lookup(name); found {
				result := b.Call(vm.registers, &vm.stack, vm.program.Instructions)
				vm.registers.Set(R0, result)
				return false, nil
			}
		}
		vm.callStack = append(vm.callStack, vm.pc+1)
		pc, err := vm.jumpToLabel(target)
		if err != nil {
			return false, err
		}
		vm.pc = pc
		return true, nil

	case Ret:
		n := len(vm.callStack)
		if n == 0 {
			// Matches the original's quirk: Ret with nothing to return to
			// (e.g. inside a built-in call) is a no-op rather than a fault.
			return false, nil
		}
		vm.pc = vm.callStack[n-1]
		vm.callStack = vm.callStack[:n-1]
		return true, nil

	case Input:
		line, err := vm.readInputLine()
		if err != nil {
			return false, vm.newError(Io, err.Error())
		}
		vm.pushStack(StringValue(line))
		return false, nil

	case Alloc:
		sizeOperand, err := vm.popOperand(ops)
		if err != nil {
			return false, err
		}
		dstReg, _, err := vm.popOperandRegister(ops)
		if err != nil {
			return false, err
		}
		size, err := vm.intOperand(sizeOperand)
		if err != nil {
			return false, err
		}
		ptr, allocErr := vm.heap.Allocate(int(size), 1)
		if allocErr != nil {
			return false, vm.wrapHeapErr(allocErr, sizeOperand)
		}
		vm.registers.Set(dstReg, PointerValue(ptr))
		return false, nil

	case Free:
		sizeOperand, err := vm.popOperand(ops)
		if err != nil {
			return false, err
		}
		srcReg, _, err := vm.popOperandRegister(ops)
		if err != nil {
			return false, err
		}
		size, err := vm.intOperand(sizeOperand)
		if err != nil {
			return false, err
		}
		ptrVal := vm.registers.Get(srcReg)
		ptr, ok := ptrVal.AsPointer()
		if !ok {
			return false, vm.newError(TypeError, "free requires a pointer register", ptrVal)
		}
		if freeErr := vm.heap.Deallocate(ptr.Address, int(size)); freeErr != nil {
			return false, vm.wrapHeapErr(freeErr, ptrVal)
		}
		return false, nil

	case Cast:
		typeOperand, err := vm.popOperand(ops)
		if err != nil {
			return false, err
		}
		dstReg, offsets, err := vm.popOperandRegister(ops)
		if err != nil {
			return false, err
		}
		typeName, ok := typeOperand.AsString()
		if !ok {
			return false, vm.newError(CastError, "cast target type must be a string", typeOperand)
		}
		current := vm.registers.Get(dstReg)
		if len(offsets) > 0 {
			result, castErr := vm.castThroughOffset(current, offsets, typeName)
			if castErr != nil {
				return false, castErr
			}
			vm.registers.Set(dstReg, result)
			return false, nil
		}
		result, castErr := castValue(current, typeName)
		if castErr != nil {
			return false, vm.newError(CastError, castErr.Error(), current)
		}
		vm.registers.Set(dstReg, result)
		return false, nil

	case Print, Println:
		v, err := vm.popOperand(ops)
		if err != nil {
			return false, err
		}
		resolved, err := vm.resolveValue(v)
		if err != nil {
			return false, err
		}
		text := resolved.String()
		if resolved.Kind() == KindPointer {
			text, err = displayWithHeap(resolved, vm.heap)
			if err != nil {
				return false, vm.wrapHeapErr(err, v)
			}
		}
		if op == Println {
			text += "\n"
		}
		vm.writeOut(text)
		return false, nil

	default:
		return false, vm.newError(IllegalInstruction, "unrecognized opcode")
	}
}

func (vm *VM) intOperand(v Value) (int64, error) {
	resolved, err := vm.resolveValue(v)
	if err != nil {
		return 0, err
	}
	n, ok := resolved.AsIntLike()
	if !ok {
		return 0, vm.newError(TypeError, "expected a numeric operand", v)
	}
	return n, nil
}

// execArith implements add/sub/mul/div/mod/xor: pop rhs, pop lhs (which
// must be a register), compute reg[lhs] = reg[lhs] <op> rhs and store the
// result back into lhs.
func (vm *VM) execArith(op OpCode, ops *[]Value) error {
	rhsOperand, err := vm.popOperand(ops)
	if err != nil {
		return err
	}
	lhsReg, _, err := vm.popOperandRegister(ops)
	if err != nil {
		return err
	}

	lhs := vm.registers.Get(lhsReg)
	rhs, err := vm.resolveValue(rhsOperand)
	if err != nil {
		return err
	}

	result, err := arith(op, lhs, rhs)
	if err != nil {
		return vm.newError(TypeError, err.Error(), lhs, rhs)
	}

	vm.registers.Set(lhsReg, result)
	return nil
}

func (vm *VM) execIncDec(op OpCode, ops *[]Value) error {
	dstReg, _, err := vm.popOperandRegister(ops)
	if err != nil {
		return err
	}
	cur := vm.registers.Get(dstReg)
	delta := int64(1)
	if op == Dec {
		delta = -1
	}
	switch cur.Kind() {
	case KindInt:
		n, _ := cur.AsInt()
		vm.registers.Set(dstReg, IntValue(n+delta))
	case KindUsize:
		n, _ := cur.AsUsize()
		vm.registers.Set(dstReg, UsizeValue(uint64(int64(n)+delta)))
	case KindByte:
		n, _ := cur.AsByte()
		vm.registers.Set(dstReg, ByteValue(byte(int64(n)+delta)))
	case KindChar:
		c, _ := cur.AsChar()
		vm.registers.Set(dstReg, CharValue(rune(int64(c)+delta)))
	default:
		return vm.newError(TypeError, "cannot increment/decrement a non-numeric register", cur)
	}
	return nil
}

func (vm *VM) execCompare(op OpCode, ops *[]Value) error {
	bOperand, err := vm.popOperand(ops)
	if err != nil {
		return err
	}
	aOperand, err := vm.popOperand(ops)
	if err != nil {
		return err
	}
	a, err := vm.resolveValue(aOperand)
	if err != nil {
		return err
	}
	b, err := vm.resolveValue(bOperand)
	if err != nil {
		return err
	}

	cmp, err := compareValues(a, b)
	if err != nil {
		return vm.newError(TypeError, err.Error(), a, b)
	}

	vm.registers.ResetFlags()
	switch {
	case cmp == 0:
		vm.registers.SetEquals(true)
	case cmp < 0:
		vm.registers.SetLessThan(true)
	default:
		vm.registers.SetGreaterThan(true)
	}

	if op == Assert {
		if cmp != 0 {
			return vm.newError(AssertionFailed, "assertion failed: operands are not equal", a, b)
		}
		vm.registers.ResetFlags()
	}
	return nil
}

func (vm *VM) readInputLine() (string, error) {
	line, err := vm.stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line, nil
}

func (vm *VM) castThroughOffset(base Value, offsets []RegisterOffset, typeName string) (Value, error) {
	ptr, ok := base.AsPointer()
	if !ok {
		result, err := castValue(base, typeName)
		if err != nil {
			return Value{}, vm.newError(CastError, err.Error(), base)
		}
		return result, nil
	}
	if !vm.heap.Contains(ptr.Address) {
		return Value{}, vm.newError(UseAfterFree, "cannot set offset for allocation because memory has already been freed")
	}
	k, err := resolveOffsetTerms(vm.registers, offsets)
	if err != nil {
		return Value{}, vm.wrapHeapErr(err)
	}
	b, err := vm.heap.ReadByte(ptr.Address + int(k))
	if err != nil {
		return Value{}, vm.wrapHeapErr(err)
	}
	casted, err := castValue(ByteValue(b), typeName)
	if err != nil {
		return Value{}, vm.newError(CastError, err.Error(), base)
	}
	if err := vm.heap.WriteByte(ptr.Address+int(k), casted.Bytes()[0]); err != nil {
		return Value{}, vm.wrapHeapErr(err)
	}
	return base, nil
}

// castValue implements the cross-kind cast graph: byte/int/usize/float/
// char/string/bool conversions, each failing with a castTypeError when the
// source kind has no sensible conversion to the target.
func castValue(v Value, typeName string) (Value, error) {
	switch typeName {
	case "byte":
		switch v.Kind() {
		case KindByte:
			return v, nil
		default:
			n, ok := v.AsIntLike()
			if !ok {
				return Value{}, errCastType(v, typeName)
			}
			return ByteValue(byte(n)), nil
		}
	case "int", "i64":
		n, ok := v.AsIntLike()
		if ok {
			return IntValue(n), nil
		}
		if f, ok := v.AsFloat(); ok {
			return IntValue(int64(f)), nil
		}
		if s, ok := v.AsString(); ok {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return Value{}, errCastType(v, typeName)
			}
			return IntValue(n), nil
		}
		return Value{}, errCastType(v, typeName)
	case "usize":
		n, ok := v.AsIntLike()
		if ok {
			return UsizeValue(uint64(n)), nil
		}
		return Value{}, errCastType(v, typeName)
	case "float":
		if f, ok := v.AsFloat(); ok {
			return FloatValue(f), nil
		}
		if n, ok := v.AsIntLike(); ok {
			return FloatValue(float64(n)), nil
		}
		return Value{}, errCastType(v, typeName)
	case "char":
		if c, ok := v.AsChar(); ok {
			return CharValue(c), nil
		}
		if n, ok := v.AsIntLike(); ok {
			return CharValue(rune(n)), nil
		}
		return Value{}, errCastType(v, typeName)
	case "string", "str":
		return StringValue(v.String()), nil
	case "bool":
		if b, ok := v.AsBool(); ok {
			return BoolValue(b), nil
		}
		if n, ok := v.AsIntLike(); ok {
			return BoolValue(n != 0), nil
		}
		return Value{}, errCastType(v, typeName)
	default:
		return Value{}, errCastType(v, typeName)
	}
}

func errCastType(v Value, typeName string) error {
	return &castTypeError{from: v.Kind().String(), to: typeName}
}

type castTypeError struct {
	from, to string
}

func (e *castTypeError) Error() string {
	return "cannot cast " + e.from + " to " + e.to
}
