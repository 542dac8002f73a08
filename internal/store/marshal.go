package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/nopia/internal/ir"
)

// marshalStrings converts a string list to canonical JSON TEXT.
func marshalStrings(list []string) (string, error) {
	data, err := ir.MarshalCanonical(ir.Strings(list))
	if err != nil {
		return "", fmt.Errorf("marshal strings: %w", err)
	}
	return string(data), nil
}

func unmarshalStrings(data string) ([]string, error) {
	var list []string
	if err := json.Unmarshal([]byte(data), &list); err != nil {
		return nil, fmt.Errorf("unmarshal strings: %w", err)
	}
	return list, nil
}

// marshalShape converts a clone shape to JSON TEXT.
// Shape is a struct (not a canonical Value), so it goes through json.Encoder
// with HTML escaping disabled; field order follows the struct definition.
func marshalShape(shape ir.Shape) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(shape); err != nil {
		return "", fmt.Errorf("marshal shape: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return string(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})), nil
}

func unmarshalShape(data string) (ir.Shape, error) {
	var shape ir.Shape
	if err := json.Unmarshal([]byte(data), &shape); err != nil {
		return ir.Shape{}, fmt.Errorf("unmarshal shape: %w", err)
	}
	return shape, nil
}
