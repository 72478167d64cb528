package variant

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrNotNormalForm marks serialized data that is readable but not in the
// single canonical encoding for its type. Requests carrying such data are
// rejected wholesale.
var ErrNotNormalForm = errors.New("data not in normal form")

// Decode reads one complete serialized value of the given type. The data must
// be in normal form: fixed-size values take exactly their size, padding is
// zero, framing offsets are minimal and strictly ordered, strings carry a
// single terminating NUL.
func Decode(sig string, data []byte) (Value, error) {
	if !ValidSignature(sig) {
		return Value{}, fmt.Errorf("variant: invalid signature %q", sig)
	}
	return decode(sig, data)
}

func decode(sig string, data []byte) (Value, error) {
	switch sig[0] {
	case 'b':
		if len(data) != 1 || data[0] > 1 {
			return Value{}, notNormal("b", data)
		}
		return Value{sig: "b", kind: KindBool, b: data[0] == 1, raw: data}, nil
	case 'y':
		if len(data) != 1 {
			return Value{}, notNormal("y", data)
		}
		return Value{sig: "y", kind: KindByte, u: uint64(data[0]), raw: data}, nil
	case 'n':
		if len(data) != 2 {
			return Value{}, notNormal("n", data)
		}
		return Value{sig: "n", kind: KindInt16, i: int64(int16(binary.LittleEndian.Uint16(data))), raw: data}, nil
	case 'q':
		if len(data) != 2 {
			return Value{}, notNormal("q", data)
		}
		return Value{sig: "q", kind: KindUint16, u: uint64(binary.LittleEndian.Uint16(data)), raw: data}, nil
	case 'i':
		if len(data) != 4 {
			return Value{}, notNormal("i", data)
		}
		return Value{sig: "i", kind: KindInt32, i: int64(int32(binary.LittleEndian.Uint32(data))), raw: data}, nil
	case 'u':
		if len(data) != 4 {
			return Value{}, notNormal("u", data)
		}
		return Value{sig: "u", kind: KindUint32, u: uint64(binary.LittleEndian.Uint32(data)), raw: data}, nil
	case 'x':
		if len(data) != 8 {
			return Value{}, notNormal("x", data)
		}
		return Value{sig: "x", kind: KindInt64, i: int64(binary.LittleEndian.Uint64(data)), raw: data}, nil
	case 't':
		if len(data) != 8 {
			return Value{}, notNormal("t", data)
		}
		return Value{sig: "t", kind: KindUint64, u: binary.LittleEndian.Uint64(data), raw: data}, nil
	case 'd':
		if len(data) != 8 {
			return Value{}, notNormal("d", data)
		}
		return Value{sig: "d", kind: KindDouble, f: math.Float64frombits(binary.LittleEndian.Uint64(data)), raw: data}, nil
	case 's', 'o', 'g':
		if len(data) == 0 || data[len(data)-1] != 0 {
			return Value{}, notNormal(sig[:1], data)
		}
		s := string(data[:len(data)-1])
		if strings.IndexByte(s, 0) >= 0 {
			return Value{}, notNormal(sig[:1], data)
		}
		return Value{sig: sig[:1], kind: KindString, s: s, raw: data}, nil
	case 'v':
		return decodeVariant(data)
	case 'm':
		return decodeMaybe(sig, data)
	case 'a':
		if sig == "ay" {
			return Value{sig: "ay", kind: KindBytes, bs: data, raw: data}, nil
		}
		return decodeArray(sig, data)
	case '(', '{':
		return decodeTuple(sig, data)
	}
	return Value{}, fmt.Errorf("variant: cannot decode type %q", sig)
}

func notNormal(sig string, data []byte) error {
	return fmt.Errorf("variant: %d byte(s) is not a valid %q encoding: %w", len(data), sig, ErrNotNormalForm)
}

func decodeVariant(data []byte) (Value, error) {
	sep := -1
	for i := len(data) - 1; i >= 0; i-- {
		if data[i] == 0 {
			sep = i
			break
		}
	}
	if sep < 0 {
		return Value{}, fmt.Errorf("variant: nested variant has no signature separator: %w", ErrNotNormalForm)
	}
	innerSig := string(data[sep+1:])
	if !ValidSignature(innerSig) {
		return Value{}, fmt.Errorf("variant: nested variant has invalid signature %q: %w", innerSig, ErrNotNormalForm)
	}
	inner, err := decode(innerSig, data[:sep])
	if err != nil {
		return Value{}, err
	}
	return Value{sig: "v", kind: KindVariant, kids: []Value{inner}, raw: data}, nil
}

func decodeMaybe(sig string, data []byte) (Value, error) {
	elemSig := sig[1:]
	if len(data) == 0 {
		return Value{sig: sig, kind: KindMaybe, raw: data}, nil
	}
	body := data
	if _, fixed := fixedSize(elemSig); !fixed {
		if data[len(data)-1] != 0 {
			return Value{}, fmt.Errorf("variant: maybe of %q lacks its terminator byte: %w", elemSig, ErrNotNormalForm)
		}
		body = data[:len(data)-1]
	}
	inner, err := decode(elemSig, body)
	if err != nil {
		return Value{}, err
	}
	return Value{sig: sig, kind: KindMaybe, kids: []Value{inner}, raw: data}, nil
}

func decodeArray(sig string, data []byte) (Value, error) {
	elemSig := sig[1:]
	if esz, fixed := fixedSize(elemSig); fixed {
		if len(data)%esz != 0 {
			return Value{}, fmt.Errorf("variant: array size %d is not a multiple of element size %d: %w", len(data), esz, ErrNotNormalForm)
		}
		n := len(data) / esz
		kids := make([]Value, 0, n)
		for i := 0; i < n; i++ {
			v, err := decode(elemSig, data[i*esz:(i+1)*esz])
			if err != nil {
				return Value{}, err
			}
			kids = append(kids, v)
		}
		return Value{sig: sig, kind: KindArray, kids: kids, raw: data}, nil
	}

	if len(data) == 0 {
		return Value{sig: sig, kind: KindArray, raw: data}, nil
	}
	osz := offsetSize(len(data))
	if len(data) < osz {
		return Value{}, fmt.Errorf("variant: array too short for its offset table: %w", ErrNotNormalForm)
	}
	bodyEnd := readOffset(data[len(data)-osz:], osz)
	if bodyEnd > len(data)-osz {
		return Value{}, fmt.Errorf("variant: array frame end %d overlaps offset table: %w", bodyEnd, ErrNotNormalForm)
	}
	tableLen := len(data) - bodyEnd
	if tableLen%osz != 0 {
		return Value{}, fmt.Errorf("variant: array offset table of %d bytes is not a multiple of %d: %w", tableLen, osz, ErrNotNormalForm)
	}
	n := tableLen / osz
	elemAlign := alignment(elemSig)
	kids := make([]Value, 0, n)
	pos := 0
	for i := 0; i < n; i++ {
		end := readOffset(data[bodyEnd+i*osz:], osz)
		start := alignUp(pos, elemAlign)
		if err := checkPadding(data, pos, start); err != nil {
			return Value{}, err
		}
		if end < start || end > bodyEnd {
			return Value{}, fmt.Errorf("variant: array element %d frame [%d,%d) out of order: %w", i, start, end, ErrNotNormalForm)
		}
		v, err := decode(elemSig, data[start:end])
		if err != nil {
			return Value{}, err
		}
		kids = append(kids, v)
		pos = end
	}
	if pos != bodyEnd {
		return Value{}, fmt.Errorf("variant: %d stray byte(s) between array body and offsets: %w", bodyEnd-pos, ErrNotNormalForm)
	}
	return Value{sig: sig, kind: KindArray, kids: kids, raw: data}, nil
}

func decodeTuple(sig string, data []byte) (Value, error) {
	kind := KindTuple
	if sig[0] == '{' {
		kind = KindDictEntry
	}
	members := memberSigs(sig)
	if len(members) == 0 {
		if len(data) != 1 || data[0] != 0 {
			return Value{}, notNormal(sig, data)
		}
		return Value{sig: sig, kind: kind, raw: data}, nil
	}

	if tsz, fixed := fixedSize(sig); fixed {
		if len(data) != tsz {
			return Value{}, notNormal(sig, data)
		}
		kids := make([]Value, 0, len(members))
		pos := 0
		for _, m := range members {
			start := alignUp(pos, alignment(m))
			if err := checkPadding(data, pos, start); err != nil {
				return Value{}, err
			}
			msz, _ := fixedSize(m)
			v, err := decode(m, data[start:start+msz])
			if err != nil {
				return Value{}, err
			}
			kids = append(kids, v)
			pos = start + msz
		}
		if err := checkPadding(data, pos, tsz); err != nil {
			return Value{}, err
		}
		return Value{sig: sig, kind: kind, kids: kids, raw: data}, nil
	}

	// Count framing offsets: one per non-fixed member except the last.
	numOffsets := 0
	for i, m := range members {
		if _, fixed := fixedSize(m); !fixed && i != len(members)-1 {
			numOffsets++
		}
	}
	osz := offsetSize(len(data))
	tableStart := len(data) - numOffsets*osz
	if tableStart < 0 {
		return Value{}, fmt.Errorf("variant: tuple too short for %d framing offset(s): %w", numOffsets, ErrNotNormalForm)
	}

	kids := make([]Value, 0, len(members))
	pos := 0
	used := 0
	for i, m := range members {
		start := alignUp(pos, alignment(m))
		if err := checkPadding(data, pos, start); err != nil {
			return Value{}, err
		}
		var end int
		if msz, fixed := fixedSize(m); fixed {
			end = start + msz
		} else if i == len(members)-1 {
			end = tableStart
		} else {
			used++
			end = readOffset(data[len(data)-used*osz:], osz)
		}
		if end < start || end > tableStart {
			return Value{}, fmt.Errorf("variant: tuple member %d frame [%d,%d) out of bounds: %w", i, start, end, ErrNotNormalForm)
		}
		v, err := decode(m, data[start:end])
		if err != nil {
			return Value{}, err
		}
		kids = append(kids, v)
		pos = end
	}
	if pos != tableStart {
		return Value{}, fmt.Errorf("variant: %d stray byte(s) before tuple offset table: %w", tableStart-pos, ErrNotNormalForm)
	}
	return Value{sig: sig, kind: kind, kids: kids, raw: data}, nil
}

func checkPadding(data []byte, from, to int) error {
	if to > len(data) {
		return fmt.Errorf("variant: truncated input, need %d bytes of padding: %w", to-len(data), ErrNotNormalForm)
	}
	for i := from; i < to; i++ {
		if data[i] != 0 {
			return fmt.Errorf("variant: non-zero padding byte at offset %d: %w", i, ErrNotNormalForm)
		}
	}
	return nil
}

// offsetSize returns the framing offset width implied by a container's total
// serialized size.
func offsetSize(size int) int {
	switch {
	case size <= math.MaxUint8:
		return 1
	case size <= math.MaxUint16:
		return 2
	case size <= math.MaxUint32:
		return 4
	default:
		return 8
	}
}

func readOffset(data []byte, osz int) int {
	var v uint64
	for i := osz - 1; i >= 0; i-- {
		v = v<<8 | uint64(data[i])
	}
	return int(v)
}
