package variant

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type Kind int

const (
	KindBool Kind = iota
	KindByte
	KindInt16
	KindUint16
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindDouble
	KindString
	KindBytes
	KindArray
	KindTuple
	KindDictEntry
	KindMaybe
	KindVariant
)

// Value is a decoded (or constructed) node of the type-tagged tree. Decoded
// values keep the raw byte span they were read from so catch-all rows can
// persist payloads without re-encoding.
type Value struct {
	sig  string
	kind Kind
	raw  []byte

	b    bool
	i    int64
	u    uint64
	f    float64
	s    string
	bs   []byte
	kids []Value
}

func (v Value) Signature() string { return v.sig }
func (v Value) Kind() Kind        { return v.kind }

// Raw returns the canonical serialized form of the value. Values decoded from
// the wire return their original span; constructed values are encoded on
// demand.
func (v Value) Raw() []byte {
	if v.raw != nil {
		return v.raw
	}
	return Encode(v)
}

func (v Value) typeError(want string) error {
	return fmt.Errorf("expected %s, but got %s (%s)", want, v, v.sig)
}

func (v Value) Bool() (bool, error) {
	if v.kind != KindBool {
		return false, v.typeError("b")
	}
	return v.b, nil
}

func (v Value) Byte() (byte, error) {
	if v.kind != KindByte {
		return 0, v.typeError("y")
	}
	return byte(v.u), nil
}

func (v Value) Int16() (int16, error) {
	if v.kind != KindInt16 {
		return 0, v.typeError("n")
	}
	return int16(v.i), nil
}

func (v Value) Uint16() (uint16, error) {
	if v.kind != KindUint16 {
		return 0, v.typeError("q")
	}
	return uint16(v.u), nil
}

func (v Value) Int32() (int32, error) {
	if v.kind != KindInt32 {
		return 0, v.typeError("i")
	}
	return int32(v.i), nil
}

func (v Value) Uint32() (uint32, error) {
	if v.kind != KindUint32 {
		return 0, v.typeError("u")
	}
	return uint32(v.u), nil
}

func (v Value) Int64() (int64, error) {
	if v.kind != KindInt64 {
		return 0, v.typeError("x")
	}
	return v.i, nil
}

func (v Value) Uint64() (uint64, error) {
	if v.kind != KindUint64 {
		return 0, v.typeError("t")
	}
	return v.u, nil
}

func (v Value) Double() (float64, error) {
	if v.kind != KindDouble {
		return 0, v.typeError("d")
	}
	return v.f, nil
}

func (v Value) Str() (string, error) {
	if v.kind != KindString {
		return "", v.typeError("s")
	}
	return v.s, nil
}

func (v Value) Bytes() ([]byte, error) {
	if v.kind != KindBytes {
		return nil, v.typeError("ay")
	}
	return v.bs, nil
}

func (v Value) Tuple() ([]Value, error) {
	if v.kind != KindTuple {
		return nil, v.typeError("a tuple")
	}
	return v.kids, nil
}

func (v Value) Array() ([]Value, error) {
	if v.kind != KindArray {
		return nil, v.typeError("an array")
	}
	return v.kids, nil
}

func (v Value) DictEntry() (Value, Value, error) {
	if v.kind != KindDictEntry {
		return Value{}, Value{}, v.typeError("a dict entry")
	}
	return v.kids[0], v.kids[1], nil
}

// Maybe returns the wrapped value, or nil when the maybe is absent.
func (v Value) Maybe() (*Value, error) {
	if v.kind != KindMaybe {
		return nil, v.typeError("a maybe")
	}
	if len(v.kids) == 0 {
		return nil, nil
	}
	return &v.kids[0], nil
}

// Variant unwraps one level of nesting.
func (v Value) Variant() (Value, error) {
	if v.kind != KindVariant {
		return Value{}, v.typeError("v")
	}
	return v.kids[0], nil
}

// StringMap converts an a{ss} value into a Go map.
func (v Value) StringMap() (map[string]string, error) {
	if v.kind != KindArray || v.sig != "a{ss}" {
		return nil, v.typeError("a{ss}")
	}
	out := make(map[string]string, len(v.kids))
	for _, e := range v.kids {
		k, val, err := e.DictEntry()
		if err != nil {
			return nil, err
		}
		ks, _ := k.Str()
		vs, _ := val.Str()
		out[ks] = vs
	}
	return out, nil
}

// VariantMap converts an a{sv} value into a Go map of unwrapped values.
func (v Value) VariantMap() (map[string]Value, error) {
	if v.kind != KindArray || v.sig != "a{sv}" {
		return nil, v.typeError("a{sv}")
	}
	out := make(map[string]Value, len(v.kids))
	for _, e := range v.kids {
		k, val, err := e.DictEntry()
		if err != nil {
			return nil, err
		}
		ks, _ := k.Str()
		inner, err := val.Variant()
		if err != nil {
			return nil, err
		}
		out[ks] = inner
	}
	return out, nil
}

// Constructors. Constructed values carry no raw span; Raw() encodes them.

func NewBool(b bool) Value      { return Value{sig: "b", kind: KindBool, b: b} }
func NewByte(b byte) Value      { return Value{sig: "y", kind: KindByte, u: uint64(b)} }
func NewInt16(n int16) Value    { return Value{sig: "n", kind: KindInt16, i: int64(n)} }
func NewUint16(n uint16) Value  { return Value{sig: "q", kind: KindUint16, u: uint64(n)} }
func NewInt32(n int32) Value    { return Value{sig: "i", kind: KindInt32, i: int64(n)} }
func NewUint32(n uint32) Value  { return Value{sig: "u", kind: KindUint32, u: uint64(n)} }
func NewInt64(n int64) Value    { return Value{sig: "x", kind: KindInt64, i: n} }
func NewUint64(n uint64) Value  { return Value{sig: "t", kind: KindUint64, u: n} }
func NewDouble(f float64) Value { return Value{sig: "d", kind: KindDouble, f: f} }
func NewString(s string) Value  { return Value{sig: "s", kind: KindString, s: s} }
func NewBytes(b []byte) Value   { return Value{sig: "ay", kind: KindBytes, bs: b} }

func NewTuple(members ...Value) Value {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, m := range members {
		sb.WriteString(m.sig)
	}
	sb.WriteByte(')')
	return Value{sig: sb.String(), kind: KindTuple, kids: members}
}

// NewArray builds an array of the given element signature. The signature must
// be passed explicitly so empty arrays stay typed.
func NewArray(elemSig string, elems ...Value) Value {
	return Value{sig: "a" + elemSig, kind: KindArray, kids: elems}
}

func NewDictEntry(key, val Value) Value {
	return Value{sig: "{" + key.sig + val.sig + "}", kind: KindDictEntry, kids: []Value{key, val}}
}

// NewMaybe wraps a value; pass nil for an absent maybe.
func NewMaybe(elemSig string, just *Value) Value {
	v := Value{sig: "m" + elemSig, kind: KindMaybe}
	if just != nil {
		v.kids = []Value{*just}
	}
	return v
}

func NewVariant(inner Value) Value {
	return Value{sig: "v", kind: KindVariant, kids: []Value{inner}}
}

// String renders the value the way it is quoted in decode error messages:
// strings single-quoted, containers bracketed, absent maybes as "nothing".
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindByte, KindUint16, KindUint32, KindUint64:
		return strconv.FormatUint(v.u, 10)
	case KindInt16, KindInt32, KindInt64:
		return strconv.FormatInt(v.i, 10)
	case KindDouble:
		s := strconv.FormatFloat(v.f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") && !math.IsInf(v.f, 0) && !math.IsNaN(v.f) {
			s += ".0"
		}
		return s
	case KindString:
		return "'" + v.s + "'"
	case KindBytes:
		parts := make([]string, len(v.bs))
		for i, b := range v.bs {
			parts[i] = fmt.Sprintf("0x%02x", b)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindArray:
		parts := make([]string, len(v.kids))
		for i, k := range v.kids {
			parts[i] = k.String()
		}
		if strings.HasPrefix(v.sig, "a{") {
			return "{" + strings.Join(parts, ", ") + "}"
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindTuple:
		parts := make([]string, len(v.kids))
		for i, k := range v.kids {
			parts[i] = k.String()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case KindDictEntry:
		return v.kids[0].String() + ": " + v.kids[1].String()
	case KindMaybe:
		if len(v.kids) == 0 {
			return "nothing"
		}
		return v.kids[0].String()
	case KindVariant:
		return "<" + v.kids[0].String() + ">"
	}
	return "?"
}
