package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/roach88/nopia/internal/ir"
	"github.com/roach88/nopia/internal/store"
)

// InspectResult is the stored image of one module.
type InspectResult struct {
	Image ir.ModuleImage `json:"image"`
	Hash  string         `json:"hash"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [module]",
		Short: "List stored modules or show one stored image",
		Long: `Without arguments, list every module image in the store with the number
of local types it carries. With a module name, show that image: each local
type with its identity marker, attributes and pruned members.

Example:
  nopia inspect --store build/nopia.db
  nopia inspect --store build/nopia.db Lib --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runInspect(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	// Opening creates the database; inspecting a missing store is an error.
	if ok, _ := afero.Exists(afero.NewOsFs(), opts.Store); !ok {
		msg := fmt.Sprintf("store not found: %s", opts.Store)
		_ = formatter.Error(ErrCodeNotFound, msg, nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", ErrCodeNotFound, msg))
	}

	st, err := store.Open(opts.Store)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, fmt.Sprintf("open store: %v", err), nil)
		return WrapExitError(ExitCommandError, ErrCodeStore, err)
	}
	defer st.Close()

	if len(args) == 0 {
		mods, err := st.ListModules(ctx)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, ErrCodeStore, err)
		}
		if formatter.Format == "json" {
			return formatter.Success(mods)
		}
		fmt.Fprintf(formatter.Writer, "%d module(s)\n", len(mods))
		for _, m := range mods {
			fmt.Fprintf(formatter.Writer, "  %s: %d local type(s) from [%s] seq %d hash %.12s\n",
				m.Name, m.LocalTypes, strings.Join(m.EmbeddedFrom, ", "), m.Seq, m.PlanHash)
		}
		return nil
	}

	img, hash, err := st.ReadImage(ctx, args[0])
	if errors.Is(err, store.ErrModuleNotFound) {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, ErrCodeNotFound, err)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, ErrCodeStore, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(InspectResult{Image: img, Hash: hash})
	}
	w := formatter.Writer
	fmt.Fprintf(w, "%s: %d local type(s) from [%s]\n", img.Name, len(img.LocalTypes), strings.Join(img.EmbeddedFrom, ", "))
	for _, lt := range img.LocalTypes {
		fmt.Fprintf(w, "  %s %s [%s]\n", lt.Kind, lt.QualifiedName(), lt.Handle.Short())
		fmt.Fprintf(w, "    %s\n", lt.Marker)
		for _, a := range lt.Attributes {
			fmt.Fprintf(w, "    [%s]\n", a)
		}
		for _, m := range lt.Shape.Members {
			fmt.Fprintf(w, "    %s\n", m.Signature())
		}
	}
	fmt.Fprintf(w, "Plan hash: %s\n", hash)
	return nil
}
