package compiler

import (
	"bytes"
	"fmt"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Load reads a description, choosing the format by extension: .cue is CUE,
// anything else YAML.
func Load(fs afero.Fs, path string) (*Description, error) {
	if filepath.Ext(path) == ".cue" {
		return LoadCUE(fs, path)
	}
	return LoadYAML(fs, path)
}

// LoadYAML reads a YAML description. Unknown fields are rejected.
func LoadYAML(fs afero.Fs, path string) (*Description, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read description: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML decodes a YAML description.
func ParseYAML(data []byte) (*Description, error) {
	var d Description
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	return &d, nil
}

// LoadCUE reads a CUE description. The file must define a top-level
// `compilation` struct.
func LoadCUE(fs afero.Fs, path string) (*Description, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read description: %w", err)
	}
	return CompileCUE(path, data)
}

// CompileCUE evaluates CUE source and decodes its `compilation` value.
// Uses the CUE SDK's Go API directly (not a CLI subprocess), so constraints
// and defaults written in the file are applied before decoding.
//
//	compilation: {
//		name: "App"
//		modules: [{name: "Interop", guid: "...", imported_from_typelib: true}]
//	}
func CompileCUE(filename string, data []byte) (*Description, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	root := v.LookupPath(cue.ParsePath("compilation"))
	if !root.Exists() {
		return nil, &CompileError{
			Field:   "compilation",
			Message: "compilation is required",
			Pos:     v.Pos(),
		}
	}
	if err := root.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var d Description
	if err := root.Decode(&d); err != nil {
		return nil, formatCUEError(err)
	}
	return &d, nil
}

// CompileError represents a CUE compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
