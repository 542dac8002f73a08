package cli

import (
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose      bool
	Format       string // "json" | "text"
	Store        string // SQLite store of emitted images
	Workers      int    // discovery goroutines; 0 means the pipeline default
	MetadataOnly bool   // force metadata-only builds

	// Fs is the filesystem descriptions and plans are read from and written to.
	Fs afero.Fs

	// LookupEnv reads configuration from the environment.
	LookupEnv func(string) (string, bool)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

func (o *RootOptions) fs() afero.Fs {
	if o.Fs == nil {
		return afero.NewOsFs()
	}
	return o.Fs
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// NewRootCommand creates the root command for the nopia CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{LookupEnv: os.LookupEnv})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nopia",
		Short: "nopia - interop type embedding",
		Long: `Plans the local copies of interop types a module embeds instead of
referencing a primary interop assembly at run time.

A compilation description names the interop modules, previously compiled
modules and the use sites the binder found. nopia checks which types may be
embedded, unifies clones across modules, lowers COM activation and event
wiring, and reports diagnostics.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			lookup := opts.LookupEnv
			if lookup == nil {
				lookup = func(string) (string, bool) { return "", false }
			}
			conf, err := consolidateConfig(cmd.Flags(), lookup)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			opts.Format = conf.Format.String
			opts.Store = conf.Store.String
			opts.Workers = int(conf.Workers.Int64)
			opts.MetadataOnly = conf.MetadataOnly.Bool
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Store, "store", "nopia.db", "path to the SQLite image store")
	cmd.PersistentFlags().IntVar(&opts.Workers, "workers", 0, "discovery workers (0 = GOMAXPROCS)")
	cmd.PersistentFlags().BoolVar(&opts.MetadataOnly, "metadata-only", false, "build a metadata-only image")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewEmitCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))

	return cmd
}
