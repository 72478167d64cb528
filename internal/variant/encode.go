package variant

import (
	"encoding/binary"
	"math"
)

// Encode produces the canonical serialized form of a value. Encode and Decode
// round-trip: Decode(v.Signature(), Encode(v)) yields an equal value, and
// re-encoding decoded data reproduces the input bytes.
func Encode(v Value) []byte {
	switch v.kind {
	case KindBool:
		if v.b {
			return []byte{1}
		}
		return []byte{0}
	case KindByte:
		return []byte{byte(v.u)}
	case KindInt16, KindUint16:
		out := make([]byte, 2)
		binary.LittleEndian.PutUint16(out, uint16(v.numBits()))
		return out
	case KindInt32, KindUint32:
		out := make([]byte, 4)
		binary.LittleEndian.PutUint32(out, uint32(v.numBits()))
		return out
	case KindInt64, KindUint64:
		out := make([]byte, 8)
		binary.LittleEndian.PutUint64(out, v.numBits())
		return out
	case KindDouble:
		out := make([]byte, 8)
		binary.LittleEndian.PutUint64(out, math.Float64bits(v.f))
		return out
	case KindString:
		out := make([]byte, 0, len(v.s)+1)
		return append(append(out, v.s...), 0)
	case KindBytes:
		return v.bs
	case KindMaybe:
		if len(v.kids) == 0 {
			return nil
		}
		body := Encode(v.kids[0])
		if _, fixed := fixedSize(v.sig[1:]); !fixed {
			body = append(body, 0)
		}
		return body
	case KindVariant:
		inner := v.kids[0]
		body := Encode(inner)
		body = append(body, 0)
		return append(body, inner.sig...)
	case KindArray:
		return encodeArray(v)
	case KindTuple, KindDictEntry:
		return encodeTuple(v)
	}
	return nil
}

func (v Value) numBits() uint64 {
	switch v.kind {
	case KindInt16, KindInt32, KindInt64:
		return uint64(v.i)
	default:
		return v.u
	}
}

func encodeArray(v Value) []byte {
	elemSig := v.sig[1:]
	if _, fixed := fixedSize(elemSig); fixed {
		var out []byte
		for _, k := range v.kids {
			out = append(out, Encode(k)...)
		}
		return out
	}
	elemAlign := alignment(elemSig)
	var body []byte
	ends := make([]int, 0, len(v.kids))
	for _, k := range v.kids {
		body = padTo(body, elemAlign)
		body = append(body, Encode(k)...)
		ends = append(ends, len(body))
	}
	if len(ends) == 0 {
		return nil
	}
	return appendOffsets(body, ends, false)
}

func encodeTuple(v Value) []byte {
	members := memberSigs(v.sig)
	if len(members) == 0 {
		return []byte{0}
	}
	var body []byte
	var ends []int
	for i, m := range members {
		body = padTo(body, alignment(m))
		body = append(body, Encode(v.kids[i])...)
		if _, fixed := fixedSize(m); !fixed && i != len(members)-1 {
			ends = append(ends, len(body))
		}
	}
	if _, fixed := fixedSize(v.sig); fixed {
		return padTo(body, alignment(v.sig))
	}
	// Tuple framing offsets are stored in reverse member order.
	return appendOffsets(body, ends, true)
}

// appendOffsets picks the smallest framing offset width that keeps every end
// position representable once the table itself is counted in, then appends
// the table.
func appendOffsets(body []byte, ends []int, reversed bool) []byte {
	osz := 1
	for {
		total := len(body) + len(ends)*osz
		if offsetSize(total) <= osz {
			break
		}
		osz *= 2
	}
	if reversed {
		for i := len(ends) - 1; i >= 0; i-- {
			body = appendOffset(body, ends[i], osz)
		}
	} else {
		for _, end := range ends {
			body = appendOffset(body, end, osz)
		}
	}
	return body
}

func appendOffset(body []byte, end, osz int) []byte {
	for i := 0; i < osz; i++ {
		body = append(body, byte(end>>(8*i)))
	}
	return body
}

func padTo(body []byte, align int) []byte {
	for len(body)%align != 0 {
		body = append(body, 0)
	}
	return body
}
