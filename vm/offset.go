package vm

// resolveOffsetTerms folds a chain of RegisterOffset terms left to right
// into a single integer byte offset: the accumulator starts at the first
// term's value, and each subsequent term's value (dereferencing a register
// term through rf first) is combined via its operator. This is a plain
// left-to-right fold, not ordinary operator precedence.
func resolveOffsetTerms(rf *RegisterFile, offsets []RegisterOffset) (int64, error) {
	var acc int64
	for _, term := range offsets {
		val := term.Value
		if r, _, ok := val.AsRegister(); ok {
			val = rf.Get(r)
		}
		n, ok := val.AsIntLike()
		if !ok {
			return 0, &hostHeapError{kind: TypeError, message: "offset term does not evaluate to a number"}
		}
		switch term.Operator {
		case OffsetNone:
			acc = n
		case OffsetAdd:
			acc += n
		case OffsetSub:
			acc -= n
		case OffsetMul:
			acc *= n
		case OffsetDiv:
			if n == 0 {
				return 0, &hostHeapError{kind: TypeError, message: "division by zero in offset expression"}
			}
			acc /= n
		case OffsetRem:
			if n == 0 {
				return 0, &hostHeapError{kind: TypeError, message: "division by zero in offset expression"}
			}
			acc %= n
		}
	}
	return acc, nil
}

// readThroughOffset implements the pointer/string read half of the
// addressing resolver: base is whatever value the addressed register
// currently holds, offsets (if any) is the term chain for a
// register-with-offsets operand.
func readThroughOffset(rf *RegisterFile, heap *Heap, base Value, offsets []RegisterOffset) (Value, error) {
	switch base.Kind() {
	case KindPointer:
		ptr, _ := base.AsPointer()
		if !heap.Contains(ptr.Address) {
			return Value{}, &hostHeapError{kind: UseAfterFree, message: "cannot read through pointer because memory has already been freed"}
		}
		if len(offsets) == 0 {
			data, err := heap.Read(ptr.Address, ptr.Size)
			if err != nil {
				return Value{}, err
			}
			return StringValue(string(data)), nil
		}
		k, err := resolveOffsetTerms(rf, offsets)
		if err != nil {
			return Value{}, err
		}
		b, err := heap.ReadByte(ptr.Address + int(k))
		if err != nil {
			return Value{}, err
		}
		return ByteValue(b), nil

	case KindString:
		s, _ := base.AsString()
		if len(offsets) == 0 {
			return base, nil
		}
		k, err := resolveOffsetTerms(rf, offsets)
		if err != nil {
			return Value{}, err
		}
		runes := []rune(s)
		if k < 0 || int(k) >= len(runes) {
			return Value{}, &hostHeapError{kind: TypeError, message: "string offset out of range"}
		}
		return CharValue(runes[k]), nil

	default:
		if len(offsets) == 0 {
			return base, nil
		}
		return Value{}, &hostHeapError{kind: TypeError, message: "cannot apply an offset to this register's value"}
	}
}

// writeThroughOffset implements the write half: writes into a pointer's
// backing heap bytes are truncated (not an error) when they would run past
// the allocation's recorded size; writes into a string register extend the
// string if the index falls past its current end.
func writeThroughOffset(rf *RegisterFile, heap *Heap, base Value, offsets []RegisterOffset, data Value) (Value, error) {
	switch base.Kind() {
	case KindPointer:
		ptr, _ := base.AsPointer()
		if !heap.Contains(ptr.Address) {
			return Value{}, &hostHeapError{kind: UseAfterFree, message: "cannot write through pointer because memory has already been freed"}
		}
		if len(offsets) == 0 {
			heap.Write(ptr.Address, ptr.Size, data.Bytes())
			return base, nil
		}
		k, err := resolveOffsetTerms(rf, offsets)
		if err != nil {
			return Value{}, err
		}
		if k < 0 || int(k) >= ptr.Size {
			return base, nil
		}
		b, ok := data.AsByte()
		if !ok {
			bs := data.Bytes()
			if len(bs) == 0 {
				return base, nil
			}
			b = bs[0]
		}
		if err := heap.WriteByte(ptr.Address+int(k), b); err != nil {
			return Value{}, err
		}
		return base, nil

	case KindString:
		s, _ := base.AsString()
		if len(offsets) == 0 {
			return data, nil
		}
		k, err := resolveOffsetTerms(rf, offsets)
		if err != nil {
			return Value{}, err
		}
		c, ok := data.AsChar()
		if !ok {
			return Value{}, &hostHeapError{kind: TypeError, message: "can only write a char through a string offset"}
		}
		runes := []rune(s)
		if int(k) >= len(runes) {
			extra := make([]rune, int(k)-len(runes)+1)
			for i := range extra {
				extra[i] = ' '
			}
			runes = append(runes, extra...)
		} else if k < 0 {
			return Value{}, &hostHeapError{kind: TypeError, message: "string offset out of range"}
		}
		runes[k] = c
		return StringValue(string(runes)), nil

	default:
		return Value{}, &hostHeapError{kind: TypeError, message: "cannot apply an offset to this register's value"}
	}
}
