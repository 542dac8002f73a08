package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/roach88/nopia/internal/pipeline"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	Output string   // plan JSON output path
	Refs   []string // compiled modules read from the store
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan <description>",
		Short: "Plan the local types a compilation embeds",
		Long: `Run the embedding pipeline over a compilation description and print the
resulting plan: local types with their pruned shapes, the resolution table
for clones found in compiled modules, lowered constructs and diagnostics.

Nothing is written to the store. Compiled modules emitted earlier can be
referenced with --ref.

Example:
  nopia plan app.yaml
  nopia plan --ref Lib --store build/nopia.db app.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the plan as JSON to this path")
	cmd.Flags().StringArrayVar(&opts.Refs, "ref", nil, "compiled module to read from the store (repeatable)")

	return cmd
}

func runPlan(opts *PlanOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	comp, err := prepare(cmd.Context(), opts.RootOptions, path, opts.Refs)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	formatter.VerboseLog("Planning %s: %d file(s), %d interop module(s), %d compiled module(s)",
		comp.Name, len(comp.Files), len(comp.InteropModules), len(comp.Compiled))

	plan, err := runPipeline(cmd.Context(), opts.RootOptions, formatter, comp)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "plan failed", err)
	}

	if opts.Output != "" {
		if err := writePlanFile(opts.fs(), opts.Output, plan); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, ErrCodeWriteFailed, err)
		}
		formatter.VerboseLog("Wrote plan to %s", opts.Output)
	}

	return outputPlan(formatter, plan)
}

// outputPlan prints the plan and fails when it carries errors.
func outputPlan(formatter *OutputFormatter, plan *pipeline.Plan) error {
	errs := plan.Errors()
	if formatter.Format == "json" {
		if len(errs) == 0 {
			return formatter.Success(plan)
		}
		if err := formatter.Failure(string(errs[0].Code), errs[0].Message, plan); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%s: compilation reported %d error(s)", ErrCodeDiagnostics, len(errs)))
	}

	writePlanText(formatter.Writer, plan)
	if len(errs) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: compilation reported %d error(s)", ErrCodeDiagnostics, len(errs)))
	}
	return nil
}

func writePlanText(w io.Writer, plan *pipeline.Plan) {
	mark := "✓"
	if !plan.Emittable {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s Planned %s (%s): %d local type(s), %d lowered construct(s)\n\n",
		mark, plan.Name, plan.Mode, len(plan.LocalTypes), len(plan.Lowered))

	if len(plan.LocalTypes) > 0 {
		fmt.Fprintln(w, "Local types:")
		for _, lt := range plan.LocalTypes {
			fmt.Fprintf(w, "  %s %s from %s [%s]\n", lt.Kind, lt.QualifiedName(), lt.SourceModule, lt.Handle.Short())
			for _, m := range lt.Shape.Members {
				fmt.Fprintf(w, "    %s\n", m.Signature())
			}
		}
		fmt.Fprintln(w)
	}

	if len(plan.Resolutions) > 0 {
		fmt.Fprintln(w, "Resolutions:")
		for _, r := range plan.Resolutions {
			fmt.Fprintf(w, "  %s:%s -> %s", r.Ref.EmbeddingModule, r.Ref.Name, r.Outcome)
			if r.Module != "" {
				fmt.Fprintf(w, " %s [%s]", r.Module, r.Handle.Short())
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w)
	}

	if len(plan.Lowered) > 0 {
		fmt.Fprintln(w, "Lowered:")
		for _, l := range plan.Lowered {
			fmt.Fprintf(w, "  %s %s %s\n", l.Location, l.Kind, l.Type)
			fmt.Fprintln(w, indent(l.Listing(), "    "))
		}
		fmt.Fprintln(w)
	}

	if len(plan.Diagnostics) > 0 {
		fmt.Fprintln(w, "Diagnostics:")
	}
	writeDiagnostics(w, plan.Diagnostics)
	fmt.Fprintf(w, "Plan hash: %s\n", plan.Hash)
}

// writePlanFile writes the plan with indentation for readability
// (canonical JSON is used only for hashing).
func writePlanFile(fs afero.Fs, path string, plan *pipeline.Plan) error {
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling plan: %w", err)
	}
	if err := afero.WriteFile(fs, path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
