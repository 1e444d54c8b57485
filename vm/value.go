package vm

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
)

// Kind tags the variant currently held by a Value. Kept as a small closed
// enum rather than runtime type-switching on interface{} so arithmetic
// dispatch stays a compact match, the way the original Field enum does.
type Kind int

const (
	KindByte Kind = iota
	KindWord
	KindInt
	KindUsize
	KindFloat
	KindChar
	KindString
	KindBool
	KindPointer
	KindRegister
	KindRegisterOffset
	KindHost
)

func (k Kind) String() string {
	switch k {
	case KindByte:
		return "byte"
	case KindWord:
		return "word"
	case KindInt:
		return "int"
	case KindUsize:
		return "usize"
	case KindFloat:
		return "float"
	case KindChar:
		return "char"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindPointer:
		return "pointer"
	case KindRegister:
		return "register"
	case KindRegisterOffset:
		return "register-offset"
	case KindHost:
		return "host"
	default:
		return "unknown"
	}
}

// Pointer is an address/size/alignment triple into a Heap arena. Equality
// and ordering both key off the address alone; the underlying bytes are
// owned by the Heap, not by the Pointer value.
type Pointer struct {
	Address   int
	Size      int
	Alignment int
}

// HostObject is the escape hatch for opaque host values (timestamps,
// RNG handles, ...) that built-ins hand back to the VM. It is the one
// variant allowed to be a capability handle rather than plain data.
type HostObject interface {
	fmt.Stringer
}

// Value is the tagged scalar/pointer/register-reference union every
// register, data-map entry, and stack slot holds.
type Value struct {
	kind Kind

	b byte
	w uint16
	i int64
	u uint64
	f float64
	c rune
	s string
	bl bool
	p Pointer

	reg     Register
	offsets []RegisterOffset

	host HostObject
}

func ByteValue(b byte) Value     { return Value{kind: KindByte, b: b} }
func WordValue(w uint16) Value   { return Value{kind: KindWord, w: w} }
func IntValue(i int64) Value     { return Value{kind: KindInt, i: i} }
func UsizeValue(u uint64) Value  { return Value{kind: KindUsize, u: u} }
func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }
func CharValue(c rune) Value     { return Value{kind: KindChar, c: c} }
func StringValue(s string) Value { return Value{kind: KindString, s: s} }
func BoolValue(b bool) Value     { return Value{kind: KindBool, bl: b} }
func PointerValue(p Pointer) Value { return Value{kind: KindPointer, p: p} }
func RegisterValue(r Register) Value { return Value{kind: KindRegister, reg: r} }
func HostValue(h HostObject) Value { return Value{kind: KindHost, host: h} }

func RegisterOffsetValue(r Register, offsets []RegisterOffset) Value {
	return Value{kind: KindRegisterOffset, reg: r, offsets: offsets}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsByte() (byte, bool)       { return v.b, v.kind == KindByte }
func (v Value) AsWord() (uint16, bool)     { return v.w, v.kind == KindWord }
func (v Value) AsInt() (int64, bool)       { return v.i, v.kind == KindInt }
func (v Value) AsUsize() (uint64, bool)    { return v.u, v.kind == KindUsize }
func (v Value) AsFloat() (float64, bool)   { return v.f, v.kind == KindFloat }
func (v Value) AsChar() (rune, bool)       { return v.c, v.kind == KindChar }
func (v Value) AsString() (string, bool)   { return v.s, v.kind == KindString }
func (v Value) AsBool() (bool, bool)       { return v.bl, v.kind == KindBool }
func (v Value) AsPointer() (Pointer, bool) { return v.p, v.kind == KindPointer }
func (v Value) AsHost() (HostObject, bool) { return v.host, v.kind == KindHost }

// AsRegister reports the register and, for a register-with-offsets Value,
// its offset chain. A plain register reference yields a nil offset chain.
func (v Value) AsRegister() (Register, []RegisterOffset, bool) {
	switch v.kind {
	case KindRegister:
		return v.reg, nil, true
	case KindRegisterOffset:
		return v.reg, v.offsets, true
	default:
		return 0, nil, false
	}
}

// AsIntLike coerces byte/word/int/usize/char, and bool (true=1, false=0),
// into an int64, the form most opcode arithmetic wants when indexing or
// sizing. Float, string, pointer and the remaining kinds report false.
func (v Value) AsIntLike() (int64, bool) {
	switch v.kind {
	case KindByte:
		return int64(v.b), true
	case KindWord:
		return int64(v.w), true
	case KindInt:
		return v.i, true
	case KindUsize:
		return int64(v.u), true
	case KindChar:
		return int64(v.c), true
	case KindBool:
		if v.bl {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Bytes serializes a Value to little-endian bytes, the representation used
// for pointer-indexed writes.
func (v Value) Bytes() []byte {
	switch v.kind {
	case KindByte:
		return []byte{v.b}
	case KindWord:
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, v.w)
		return buf
	case KindInt:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(v.i))
		return buf
	case KindUsize:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, v.u)
		return buf
	case KindFloat:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v.f))
		return buf
	case KindChar:
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(v.c))
		return buf
	case KindBool:
		if v.bl {
			return []byte{1}
		}
		return []byte{0}
	case KindString:
		return []byte(v.s)
	default:
		return nil
	}
}

// String renders a Value for human consumption. Value holds no reference
// to arena storage, so a pointer renders as ptr(addr=...,size=...); its
// live bytes are displayed by displayWithHeap/DisplayPointer instead.
func (v Value) String() string {
	switch v.kind {
	case KindByte:
		return strconv.FormatUint(uint64(v.b), 10)
	case KindWord:
		return strconv.FormatUint(uint64(v.w), 10)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindUsize:
		return strconv.FormatUint(v.u, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindChar:
		return string(v.c)
	case KindString:
		return v.s
	case KindBool:
		return strconv.FormatBool(v.bl)
	case KindPointer:
		return fmt.Sprintf("ptr(addr=%d,size=%d)", v.p.Address, v.p.Size)
	case KindRegister:
		return v.reg.String()
	case KindRegisterOffset:
		return v.reg.String() + "[offset]"
	case KindHost:
		if v.host != nil {
			return v.host.String()
		}
		return "<host>"
	default:
		return "<unknown>"
	}
}

// DisplayPointer renders the live bytes of a pointer the way a `print`
// opcode would (UTF-8, trimmed at the first zero byte). Exposed for callers
// (such as the tests) that hold a Pointer directly rather than a Value.
func DisplayPointer(p Pointer, h *Heap) (string, error) {
	return displayWithHeap(PointerValue(p), h)
}

// displayWithHeap renders a Value the way a `print`/`println` opcode would,
// dereferencing pointers against the live heap and trimming at the first
// zero byte.
func displayWithHeap(v Value, h *Heap) (string, error) {
	if v.kind != KindPointer {
		return v.String(), nil
	}
	data, err := h.Read(v.p.Address, v.p.Size)
	if err != nil {
		return "", err
	}
	for i, b := range data {
		if b == 0 {
			data = data[:i]
			break
		}
	}
	return string(data), nil
}
