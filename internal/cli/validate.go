package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/nopia/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool                       `json:"valid"`
	Modules int                        `json:"modules"`
	Types   int                        `json:"types"`
	Files   int                        `json:"files"`
	Errors  []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <description>",
		Short: "Validate a compilation description without planning it",
		Long: `Validate a YAML or CUE compilation description.

Checks that every name, GUID, type reference and kind is well formed and
that base interfaces do not form a cycle. Embedding rules are not checked
here; they are reported as diagnostics by plan and emit.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	d, err := LoadDescription(opts.fs(), path)
	if err != nil {
		return outputLoadError(formatter, err)
	}

	result := ValidationResult{Modules: len(d.Modules), Files: len(d.Files)}
	for _, m := range d.Modules {
		formatter.VerboseLog("Validating module: %s", m.Name)
		result.Types += len(m.Types)
	}

	if errs := compiler.Validate(d); len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	result.Valid = true
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Description valid: %d module(s), %d type(s), %d file(s)\n",
		result.Modules, result.Types, result.Files)
	return nil
}

// outputValidationErrors outputs every validation error.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		err := formatter.Failure(errs[0].Code, errs[0].Message, ValidationResult{Errors: errs})
		if err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %s\n", err.Error())
	}

	// Validation failures = exit code 1
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
