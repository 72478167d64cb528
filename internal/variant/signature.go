package variant

import "fmt"

// Signature introspection for the self-describing wire format. A signature is
// a compact type string: basic types are single characters, containers are
// 'a' (array), 'm' (maybe), '(...)' (tuple) and '{kv}' (dict entry). 'v' is a
// nested variant whose concrete type travels with the value.

// ValidSignature reports whether sig is exactly one complete type.
func ValidSignature(sig string) bool {
	rest, err := consumeType(sig)
	return err == nil && rest == ""
}

// consumeType strips one complete type from the front of sig and returns the
// remainder.
func consumeType(sig string) (string, error) {
	if sig == "" {
		return "", fmt.Errorf("variant: empty signature")
	}
	switch sig[0] {
	case 'b', 'y', 'n', 'q', 'i', 'u', 'x', 't', 'd', 's', 'o', 'g', 'v':
		return sig[1:], nil
	case 'a', 'm':
		return consumeType(sig[1:])
	case '(':
		rest := sig[1:]
		for {
			if rest == "" {
				return "", fmt.Errorf("variant: unterminated tuple in signature %q", sig)
			}
			if rest[0] == ')' {
				return rest[1:], nil
			}
			var err error
			rest, err = consumeType(rest)
			if err != nil {
				return "", err
			}
		}
	case '{':
		rest := sig[1:]
		if rest == "" || !isBasicType(rest[0]) {
			return "", fmt.Errorf("variant: dict entry key must be a basic type in %q", sig)
		}
		rest, err := consumeType(rest)
		if err != nil {
			return "", err
		}
		rest, err = consumeType(rest)
		if err != nil {
			return "", err
		}
		if rest == "" || rest[0] != '}' {
			return "", fmt.Errorf("variant: unterminated dict entry in signature %q", sig)
		}
		return rest[1:], nil
	default:
		return "", fmt.Errorf("variant: unexpected character %q in signature", sig[0])
	}
}

func isBasicType(c byte) bool {
	switch c {
	case 'b', 'y', 'n', 'q', 'i', 'u', 'x', 't', 'd', 's', 'o', 'g':
		return true
	}
	return false
}

// alignment returns the byte alignment of the type, between 1 and 8.
func alignment(sig string) int {
	switch sig[0] {
	case 'b', 'y', 's', 'o', 'g':
		return 1
	case 'n', 'q':
		return 2
	case 'i', 'u':
		return 4
	case 'x', 't', 'd', 'v':
		return 8
	case 'a', 'm':
		return alignment(sig[1:])
	case '(', '{':
		max := 1
		for _, m := range memberSigs(sig) {
			if a := alignment(m); a > max {
				max = a
			}
		}
		return max
	}
	return 1
}

// fixedSize returns the serialized size of a fixed-size type. Variable-size
// types (strings, arrays, maybes, variants and any container holding one)
// report ok=false.
func fixedSize(sig string) (size int, ok bool) {
	switch sig[0] {
	case 'b', 'y':
		return 1, true
	case 'n', 'q':
		return 2, true
	case 'i', 'u':
		return 4, true
	case 'x', 't', 'd':
		return 8, true
	case 's', 'o', 'g', 'v', 'a', 'm':
		return 0, false
	case '(', '{':
		members := memberSigs(sig)
		pos := 0
		for _, m := range members {
			ms, mok := fixedSize(m)
			if !mok {
				return 0, false
			}
			pos = alignUp(pos, alignment(m))
			pos += ms
		}
		if pos == 0 {
			// The unit tuple occupies a single zero byte.
			return 1, true
		}
		return alignUp(pos, alignment(sig)), true
	}
	return 0, false
}

// memberSigs splits a tuple or dict-entry signature into its member type
// strings. The signature must already be valid.
func memberSigs(sig string) []string {
	var members []string
	rest := sig[1 : len(sig)-1]
	for rest != "" {
		tail, err := consumeType(rest)
		if err != nil {
			return members
		}
		members = append(members, rest[:len(rest)-len(tail)])
		rest = tail
	}
	return members
}

func alignUp(pos, align int) int {
	return (pos + align - 1) &^ (align - 1)
}
