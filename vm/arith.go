package vm

import "fmt"

// numericPair holds two operands promoted to a shared numeric
// representation. Float wins over int whenever either operand is a float,
// so a single comparison or arithmetic op always works over one type.
type numericPair struct {
	aInt, bInt     int64
	aFloat, bFloat float64
	isFloat        bool
}

func promote(a, b Value) (numericPair, bool) {
	af, aIsFloat := a.AsFloat()
	bf, bIsFloat := b.AsFloat()
	if aIsFloat || bIsFloat {
		if !aIsFloat {
			if n, ok := a.AsIntLike(); ok {
				af = float64(n)
			} else {
				return numericPair{}, false
			}
		}
		if !bIsFloat {
			if n, ok := b.AsIntLike(); ok {
				bf = float64(n)
			} else {
				return numericPair{}, false
			}
		}
		return numericPair{aFloat: af, bFloat: bf, isFloat: true}, true
	}

	ai, aOk := a.AsIntLike()
	bi, bOk := b.AsIntLike()
	if !aOk || !bOk {
		return numericPair{}, false
	}
	return numericPair{aInt: ai, bInt: bi}, true
}

// arith implements add/sub/mul/div/mod/xor's value semantics. A string
// operand to add is treated as concatenation, the one non-arithmetic case
// the opcode allows through.
func arith(op OpCode, a, b Value) (Value, error) {
	if op == Add {
		if as, aOk := a.AsString(); aOk {
			return StringValue(as + b.String()), nil
		}
		if bs, bOk := b.AsString(); bOk {
			return StringValue(a.String() + bs), nil
		}
	}

	pair, ok := promote(a, b)
	if !ok {
		return Value{}, fmt.Errorf("cannot apply %s to operands of this type", op)
	}

	if pair.isFloat {
		switch op {
		case Add:
			return FloatValue(pair.aFloat + pair.bFloat), nil
		case Sub:
			return FloatValue(pair.aFloat - pair.bFloat), nil
		case Mul:
			return FloatValue(pair.aFloat * pair.bFloat), nil
		case Div:
			if pair.bFloat == 0 {
				return Value{}, fmt.Errorf("division by zero")
			}
			return FloatValue(pair.aFloat / pair.bFloat), nil
		case Mod, Xor:
			return Value{}, fmt.Errorf("%s is not defined over floats", op)
		}
	}

	switch op {
	case Add:
		return IntValue(pair.aInt + pair.bInt), nil
	case Sub:
		return IntValue(pair.aInt - pair.bInt), nil
	case Mul:
		return IntValue(pair.aInt * pair.bInt), nil
	case Div:
		if pair.bInt == 0 {
			return Value{}, fmt.Errorf("division by zero")
		}
		return IntValue(pair.aInt / pair.bInt), nil
	case Mod:
		if pair.bInt == 0 {
			return Value{}, fmt.Errorf("division by zero")
		}
		return IntValue(pair.aInt % pair.bInt), nil
	case Xor:
		return IntValue(pair.aInt ^ pair.bInt), nil
	}
	return Value{}, fmt.Errorf("unsupported arithmetic opcode %s", op)
}

// compareValues returns -1/0/1 for less-than/equal/greater-than, extended
// to lexicographic string comparison for test/assert over string
// registers and to address comparison between two pointers.
func compareValues(a, b Value) (int, error) {
	if ap, aOk := a.AsPointer(); aOk {
		if bp, bOk := b.AsPointer(); bOk {
			switch {
			case ap.Address < bp.Address:
				return -1, nil
			case ap.Address > bp.Address:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}

	if as, aOk := a.AsString(); aOk {
		if bs, bOk := b.AsString(); bOk {
			switch {
			case as < bs:
				return -1, nil
			case as > bs:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}

	pair, ok := promote(a, b)
	if !ok {
		return 0, fmt.Errorf("cannot compare operands of this type")
	}
	if pair.isFloat {
		switch {
		case pair.aFloat < pair.bFloat:
			return -1, nil
		case pair.aFloat > pair.bFloat:
			return 1, nil
		default:
			return 0, nil
		}
	}
	switch {
	case pair.aInt < pair.bInt:
		return -1, nil
	case pair.aInt > pair.bInt:
		return 1, nil
	default:
		return 0, nil
	}
}
