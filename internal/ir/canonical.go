package ir

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 canonical JSON for hashing.
// This is the ONLY serialization used for content-addressed identity
// (local type handles and plan hashes).
//
// Differences from json.Marshal:
//  1. Object keys sorted by UTF-16 code units
//  2. No HTML escaping, and U+2028/U+2029 are written literally
//  3. Strings are NFC normalised
//  4. Floats and null are rejected
//
// v may be a Value or a tree of string, int, int64, bool, []string, []any
// and map[string]any.
func MarshalCanonical(v any) ([]byte, error) {
	val, err := toValue(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeValue(&buf, val); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// toValue converts a Go value to a Value.
func toValue(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is forbidden in canonical JSON")
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case int64:
		return Int(val), nil
	case int:
		return Int(val), nil
	case bool:
		return Bool(val), nil
	case []string:
		return Strings(val), nil
	case float64, float32:
		return nil, fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			conv, err := toValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = conv
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			conv, err := toValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = conv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

func writeValue(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case String:
		writeString(buf, string(val))
	case Int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case Bool:
		buf.WriteString(strconv.FormatBool(bool(val)))
	case Array:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, elem); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, k := range val.SortedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, k)
			buf.WriteByte(':')
			if err := writeValue(buf, val[k]); err != nil {
				return fmt.Errorf("[%q]: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("null is forbidden in canonical JSON")
	}
	return nil
}

const hexDigits = "0123456789abcdef"

// writeString writes s NFC normalised and quoted. Only the quote, the
// backslash and control characters are escaped; invalid UTF-8 becomes
// U+FFFD.
func writeString(buf *bytes.Buffer, s string) {
	s = norm.NFC.String(s)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}

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
				buf.WriteByte(hexDigits[c>>4])
				buf.WriteByte(hexDigits[c&0xf])
				continue
			}
			buf.WriteByte(c)
		}
	}
	buf.WriteByte('"')
}
