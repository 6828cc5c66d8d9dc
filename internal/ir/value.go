package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// Value is a sealed interface over the payload value variant.
// Only Null, String, Int, Float, Bool, Array, and Object implement it.
type Value interface {
	payloadValue() // Sealed - only these types implement it
}

// Null represents a JSON null inside a payload.
type Null struct{}

func (Null) payloadValue() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String represents a string value.
type String string

func (String) payloadValue() {}

// Int represents an integral number that fits in int64.
type Int int64

func (Int) payloadValue() {}

// Float represents a finite IEEE-754 double.
// NaN and infinities are never valid payload values (see MarshalCanonical).
type Float float64

func (Float) payloadValue() {}

// MarshalJSON implements json.Marshaler using the canonical number form.
func (f Float) MarshalJSON() ([]byte, error) {
	s, err := formatFloat(float64(f))
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// Bool represents a boolean value.
type Bool bool

func (Bool) payloadValue() {}

// Array represents an ordered list of values. Element order is significant.
type Array []Value

func (Array) payloadValue() {}

// MarshalJSON implements json.Marshaler using canonical JSON.
func (arr Array) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(arr)
}

// Object is the mapping variant. Payloads are always Objects.
// Use SortedKeys() for deterministic iteration.
type Object map[string]Value

func (Object) payloadValue() {}

// MarshalJSON implements json.Marshaler using canonical JSON, so every
// rendering of a payload (storage, snapshots, API responses) is byte-stable.
func (obj Object) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(obj)
}

// UnmarshalJSON implements json.Unmarshaler for Object.
func (obj *Object) UnmarshalJSON(data []byte) error {
	parsed, err := ParseObject(data)
	if err != nil {
		return err
	}
	*obj = parsed
	return nil
}

// SortedKeys returns keys in the order MarshalCanonical writes them: by
// the UTF-16 code units of their NFC form. Go's native string ordering
// compares UTF-8 bytes, which differs for characters outside the BMP.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		if c := compareKeysRFC8785(norm.NFC.String(a), norm.NFC.String(b)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return keys
}

// Clone returns a deep copy of the object.
func (obj Object) Clone() Object {
	if obj == nil {
		return nil
	}
	out := make(Object, len(obj))
	for k, v := range obj {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v Value) Value {
	switch val := v.(type) {
	case Array:
		out := make(Array, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	case Object:
		return val.Clone()
	default:
		// Scalars are immutable value types.
		return v
	}
}

// compareKeysRFC8785 compares strings by UTF-16 code units.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// ParseObject decodes a JSON document whose top level must be an object.
// Numbers without a fraction or exponent that fit int64 become Int; every
// other number becomes Float. Non-finite results are rejected.
func ParseObject(data []byte) (Object, error) {
	v, err := ParseValue(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(Object)
	if !ok {
		return nil, NewEncodingError(fmt.Sprintf("payload must be a JSON object, got %s", kindName(v)), nil)
	}
	return obj, nil
}

// ParseValue decodes any JSON value into a Value.
func ParseValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, NewEncodingError("invalid JSON", err)
	}
	if dec.More() {
		return nil, NewEncodingError("trailing data after JSON value", nil)
	}
	return FromGo(raw)
}

// FromGo converts decoded Go values into a Value.
// Accepts the shapes produced by encoding/json (with or without UseNumber)
// plus the common Go scalar types.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case float32:
		return floatValue(float64(val))
	case float64:
		return floatValue(val)
	case json.Number:
		return numberValue(string(val))
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			conv, err := FromGo(elem)
			if err != nil {
				return nil, prefixEncoding(fmt.Sprintf("[%d]", i), err)
			}
			arr[i] = conv
		}
		return arr, nil
	case map[string]any:
		if err := checkKeyCollision(val); err != nil {
			return nil, err
		}
		obj := make(Object, len(val))
		for k, elem := range val {
			conv, err := FromGo(elem)
			if err != nil {
				return nil, prefixEncoding(fmt.Sprintf("[%q]", k), err)
			}
			obj[k] = conv
		}
		return obj, nil
	default:
		return nil, NewEncodingError(fmt.Sprintf("unsupported type %T", v), nil)
	}
}

// ToGo converts a Value back into plain Go values (map[string]any, []any,
// string, int64, float64, bool, nil).
func ToGo(v Value) any {
	switch val := v.(type) {
	case Null:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case Bool:
		return bool(val)
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToGo(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToGo(elem)
		}
		return out
	default:
		return nil
	}
}

func floatValue(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, NewEncodingError(fmt.Sprintf("non-finite number %v", f), nil)
	}
	return Float(f), nil
}

func numberValue(s string) (Value, error) {
	if !strings.ContainsAny(s, ".eE") {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(n), nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// ParseFloat reports ErrRange with ±Inf for overflow.
		return nil, NewEncodingError(fmt.Sprintf("number %s is not representable", s), err)
	}
	return floatValue(f)
}

func kindName(v Value) string {
	switch v.(type) {
	case Null:
		return "null"
	case String:
		return "string"
	case Int, Float:
		return "number"
	case Bool:
		return "bool"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
