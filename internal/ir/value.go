package ir

import (
	"slices"
	"unicode/utf16"
)

// Value is a node of the tree hashed into handles and plan hashes. The set
// is closed: there is no float and no null.
type Value interface {
	value()
}

// String is a string value.
type String string

func (String) value() {}

// Int is an integer value.
type Int int64

func (Int) value() {}

// Bool is a boolean value.
type Bool bool

func (Bool) value() {}

// Array is an ordered list of values.
type Array []Value

func (Array) value() {}

// Object is a JSON object; iterate it with SortedKeys.
type Object map[string]Value

func (Object) value() {}

// Strings converts a string slice into an Array of String values.
func Strings(ss []string) Array {
	arr := make(Array, len(ss))
	for i, s := range ss {
		arr[i] = String(s)
	}
	return arr
}

// SortedKeys returns the keys ordered by their UTF-16 code units, which is
// the RFC 8785 member order. It differs from sort.Strings for characters
// outside the BMP.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
	})
	return keys
}
