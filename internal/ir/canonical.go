package ir

import (
	"bytes"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// CanonicalVersion names the canonicalization rule set. It is part of the
// hash domain, so any change to the rules below changes every asset id and
// must ship as a migration with a new version.
const CanonicalVersion = "v1"

// MarshalCanonical produces RFC 8785 canonical JSON for hashing.
// This is the ONLY serialization used for content-addressed identity.
//
// Rules (v1):
//  1. Object keys sorted by UTF-16 code units at every level
//  2. No insignificant whitespace, no HTML escaping
//  3. Strings are NFC normalized and must be valid UTF-8
//  4. Numbers use the ECMAScript shortest round-trip form; integral floats
//     render like the equal integer, -0 renders as 0
//  5. NaN and infinities are rejected with an EncodingError
//  6. Array order is preserved
func MarshalCanonical(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CanonicalPayload renders a payload object canonically. A nil payload is
// treated as the empty object.
func CanonicalPayload(payload Object) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	return MarshalCanonical(payload)
}

func writeCanonical(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case nil, Null:
		buf.WriteString("null")
	case String:
		return writeCanonicalString(buf, string(val))
	case Int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case Float:
		s, err := formatFloat(float64(val))
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case Bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Array:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return prefixEncoding(fmt.Sprintf("[%d]", i), err)
			}
		}
		buf.WriteByte(']')
	case Object:
		keys, err := canonicalKeys(val)
		if err != nil {
			return err
		}
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k.norm); err != nil {
				return prefixEncoding(fmt.Sprintf("key %q", k.raw), err)
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k.raw]); err != nil {
				return prefixEncoding(fmt.Sprintf("[%q]", k.raw), err)
			}
		}
		buf.WriteByte('}')
	default:
		return NewEncodingError(fmt.Sprintf("unsupported value type %T", v), nil)
	}
	return nil
}

type objectKey struct {
	raw  string
	norm string
}

// canonicalKeys returns the object's keys ordered by their NFC form, the
// form that is written. Two keys with the same NFC form would render as a
// duplicate member, so they are rejected.
func canonicalKeys(obj Object) ([]objectKey, error) {
	keys := make([]objectKey, 0, len(obj))
	for k := range obj {
		if !utf8.ValidString(k) {
			return nil, NewEncodingError(fmt.Sprintf("key %q is not valid UTF-8", k), nil)
		}
		keys = append(keys, objectKey{raw: k, norm: norm.NFC.String(k)})
	}
	slices.SortFunc(keys, func(a, b objectKey) int {
		if c := compareKeysRFC8785(a.norm, b.norm); c != 0 {
			return c
		}
		return strings.Compare(a.raw, b.raw)
	})
	for i := 1; i < len(keys); i++ {
		if keys[i].norm == keys[i-1].norm {
			return nil, duplicateKey(keys[i-1].raw, keys[i].raw)
		}
	}
	return keys, nil
}

// checkKeyCollision reports keys of a decoded map that share an NFC form.
func checkKeyCollision(m map[string]any) error {
	seen := make(map[string]string, len(m))
	for k := range m {
		if !utf8.ValidString(k) {
			return NewEncodingError(fmt.Sprintf("key %q is not valid UTF-8", k), nil)
		}
		n := norm.NFC.String(k)
		if prev, ok := seen[n]; ok {
			if prev > k {
				prev, k = k, prev
			}
			return duplicateKey(prev, k)
		}
		seen[n] = k
	}
	return nil
}

func duplicateKey(a, b string) error {
	return NewEncodingError(fmt.Sprintf("keys %+q and %+q are the same after NFC normalization", a, b), nil)
}

// writeCanonicalString escapes per RFC 8785 §3.2.2.2: only the quote, the
// backslash and control characters are escaped; U+2028/U+2029 and <>& stay
// literal.
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	if !utf8.ValidString(s) {
		return NewEncodingError("string is not valid UTF-8", nil)
	}
	s = norm.NFC.String(s)

	const hex = "0123456789abcdef"
	buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if c < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hex[c>>4])
				buf.WriteByte(hex[c&0xf])
			} else {
				buf.WriteByte(c)
			}
		}
	}
	buf.WriteByte('"')
	return nil
}

// formatFloat renders f the way ECMAScript Number.prototype.toString does,
// which is what RFC 8785 mandates for numbers.
func formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", NewEncodingError(fmt.Sprintf("non-finite number %v", f), nil)
	}
	if f == 0 {
		return "0", nil
	}

	var sb strings.Builder
	if f < 0 {
		sb.WriteByte('-')
		f = -f
	}

	// Shortest round-trip digits: "d.ddde±x".
	exp := strconv.FormatFloat(f, 'e', -1, 64)
	mant, expPart, _ := strings.Cut(exp, "e")
	digits := strings.Replace(mant, ".", "", 1)
	e, err := strconv.Atoi(expPart)
	if err != nil {
		return "", NewEncodingError("malformed float exponent", err)
	}

	k := len(digits)
	n := e + 1 // value = 0.digits × 10^n

	switch {
	case k <= n && n <= 21:
		sb.WriteString(digits)
		sb.WriteString(strings.Repeat("0", n-k))
	case 0 < n && n <= 21:
		sb.WriteString(digits[:n])
		sb.WriteByte('.')
		sb.WriteString(digits[n:])
	case -6 < n && n <= 0:
		sb.WriteString("0.")
		sb.WriteString(strings.Repeat("0", -n))
		sb.WriteString(digits)
	default:
		sb.WriteByte(digits[0])
		if k > 1 {
			sb.WriteByte('.')
			sb.WriteString(digits[1:])
		}
		sb.WriteByte('e')
		if n-1 >= 0 {
			sb.WriteByte('+')
		}
		sb.WriteString(strconv.Itoa(n - 1))
	}
	return sb.String(), nil
}
