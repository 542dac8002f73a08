package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/nopia/internal/diag"
	"github.com/roach88/nopia/internal/store"
)

// EmitOptions holds flags for the emit command.
type EmitOptions struct {
	*RootOptions
	Refs []string
}

// EmitResult reports what emit wrote.
type EmitResult struct {
	Module      string            `json:"module"`
	Hash        string            `json:"hash"`
	Written     bool              `json:"written"`
	LocalTypes  int               `json:"local_types"`
	Diagnostics []diag.Diagnostic `json:"diagnostics"`
}

// NewEmitCommand creates the emit command.
func NewEmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "emit <description>",
		Short: "Plan a compilation and store its module image",
		Long: `Plan a compilation and write the resulting module image to the store.

The stored image carries each local type with its identity marker, so later
compilations can reference the module with --ref and unify their clones with
its clones. Nothing is written when the plan carries errors. Emitting an
unchanged image is a no-op.

Example:
  nopia emit --store build/nopia.db lib.yaml
  nopia emit --store build/nopia.db --ref Lib app.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEmit(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Refs, "ref", nil, "compiled module to read from the store (repeatable)")

	return cmd
}

func runEmit(opts *EmitOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	comp, err := prepare(ctx, opts.RootOptions, path, opts.Refs)
	if err != nil {
		return outputLoadError(formatter, err)
	}

	plan, err := runPipeline(ctx, opts.RootOptions, formatter, comp)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "plan failed", err)
	}
	if !plan.Emittable {
		return outputPlan(formatter, plan)
	}

	st, err := store.Open(opts.Store)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, fmt.Sprintf("open store: %v", err), nil)
		return WrapExitError(ExitCommandError, ErrCodeStore, err)
	}
	defer st.Close()

	written, err := st.WriteImage(ctx, plan.Image(), plan.Hash)
	if err != nil {
		_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, ErrCodeWriteFailed, err)
	}
	formatter.VerboseLog("Stored %s in %s (written=%t)", plan.Name, opts.Store, written)

	result := EmitResult{
		Module:      plan.Name,
		Hash:        plan.Hash,
		Written:     written,
		LocalTypes:  len(plan.LocalTypes),
		Diagnostics: plan.Diagnostics,
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	if written {
		fmt.Fprintf(formatter.Writer, "✓ Emitted %s: %d local type(s)\n", result.Module, result.LocalTypes)
	} else {
		fmt.Fprintf(formatter.Writer, "✓ %s unchanged: %d local type(s)\n", result.Module, result.LocalTypes)
	}
	if len(plan.Diagnostics) > 0 {
		writeDiagnostics(formatter.Writer, plan.Diagnostics)
	}
	fmt.Fprintf(formatter.Writer, "Plan hash: %s\n", result.Hash)
	return nil
}
