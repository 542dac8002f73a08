package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue/token"
	"github.com/spf13/afero"

	"github.com/roach88/nopia/internal/compiler"
	"github.com/roach88/nopia/internal/diag"
	"github.com/roach88/nopia/internal/pipeline"
	"github.com/roach88/nopia/internal/store"
)

// Error code constants, unified across all CLI commands. Description
// validation errors keep their compiler codes (E1xx); compilation
// diagnostics keep their CS codes.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeNotFound    = "E002" // Path not found
	ErrCodeParseFailed = "E003" // YAML or CUE could not be parsed
	ErrCodeInvalid     = "E004" // Description failed validation
	ErrCodeStore       = "E005" // Store could not be opened or read
	ErrCodeWriteFailed = "E006" // File or store write error
	ErrCodeDiagnostics = "E007" // Compilation reported errors
)

// LoadError represents an error that occurred while loading a description.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available

	// Validation holds every description error when Code is ErrCodeInvalid.
	Validation []compiler.ValidationError
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadDescription reads and parses a description without validating it.
func LoadDescription(fs afero.Fs, path string) (*compiler.Description, error) {
	info, err := fs.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("description not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing description: %v", err)}
	}
	if info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a file: %s", path)}
	}

	d, err := compiler.Load(fs, path)
	if err != nil {
		return nil, convertCompileError(err)
	}
	return d, nil
}

// LoadCompilation reads a description and builds the compilation it
// describes.
func LoadCompilation(fs afero.Fs, path string) (*compiler.Description, *pipeline.Compilation, error) {
	d, err := LoadDescription(fs, path)
	if err != nil {
		return nil, nil, err
	}
	comp, err := compiler.Build(d)
	if err != nil {
		return d, nil, convertCompileError(err)
	}
	return d, comp, nil
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    ErrCodeParseFailed,
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	var verrs compiler.ValidationErrors
	if errors.As(err, &verrs) {
		return &LoadError{
			Code:       ErrCodeInvalid,
			Message:    verrs.Error(),
			Validation: verrs,
		}
	}
	return &LoadError{Code: ErrCodeParseFailed, Message: err.Error()}
}

// prepare loads a compilation and applies the global options: the build
// mode override and compiled references read from the store.
func prepare(ctx context.Context, opts *RootOptions, path string, refs []string) (*pipeline.Compilation, error) {
	_, comp, err := LoadCompilation(opts.fs(), path)
	if err != nil {
		return nil, err
	}
	if opts.MetadataOnly {
		comp.Mode = diag.BuildMetadataOnly
	}
	if err := addRefs(ctx, opts, comp, refs); err != nil {
		return nil, err
	}
	if errs := compiler.CheckOrigins(comp); len(errs) > 0 {
		return nil, &LoadError{Code: ErrCodeInvalid, Message: errs[0].Message, Validation: errs}
	}
	return comp, nil
}

// addRefs reads the named compiled modules from the store.
func addRefs(ctx context.Context, opts *RootOptions, comp *pipeline.Compilation, refs []string) error {
	if len(refs) == 0 {
		return nil
	}

	st, err := store.Open(opts.Store)
	if err != nil {
		return &LoadError{Code: ErrCodeStore, Message: fmt.Sprintf("open store: %v", err)}
	}
	defer st.Close()

	for _, name := range refs {
		if hasCompiled(comp, name) {
			return &LoadError{Code: ErrCodeInvalid, Message: fmt.Sprintf("compiled module %q is both described and referenced from the store", name)}
		}
		c, err := st.ReadCompiledModule(ctx, name)
		if err != nil {
			return &LoadError{Code: ErrCodeStore, Message: err.Error()}
		}
		comp.Compiled = append(comp.Compiled, c)
	}
	return nil
}

func hasCompiled(comp *pipeline.Compilation, name string) bool {
	for _, c := range comp.Compiled {
		if c.Name == name {
			return true
		}
	}
	return false
}

// runPipeline runs the pipeline with the configured workers and logger.
func runPipeline(ctx context.Context, opts *RootOptions, f *OutputFormatter, comp *pipeline.Compilation) (*pipeline.Plan, error) {
	popts := []pipeline.Option{pipeline.WithLogger(f.Logger())}
	if opts.Workers > 0 {
		popts = append(popts, pipeline.WithWorkers(opts.Workers))
	}
	return pipeline.Run(ctx, comp, popts...)
}

// outputLoadError reports a load failure and returns the matching exit error.
func outputLoadError(f *OutputFormatter, err error) error {
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		_ = f.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, ErrCodeGeneric, err)
	}

	if loadErr.Code == ErrCodeInvalid && len(loadErr.Validation) > 0 {
		return outputValidationErrors(f, loadErr.Validation)
	}
	msg := loadErr.Message
	if loadErr.Pos.IsValid() {
		msg = fmt.Sprintf("%s:%d:%d: %s", loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column(), msg)
	}
	_ = f.Error(loadErr.Code, msg, nil)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", loadErr.Code, loadErr.Message), nil)
}
