package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	DataDir    string
	Backend    string
	RemoteURL  string
	Offline    bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the fieldkit CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "fieldkit",
		Short: "fieldkit - offline form cache and submission queue",
		Long: `Offline-first doctype cache and submission queue for field data capture.

Forms are downloaded while online and cached locally. Submissions are
queued on disk with the fingerprint of the form they were filled against,
so they survive restarts and can be checked for schema drift later.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	pf.StringVar(&opts.DataDir, "data-dir", "", "data directory (overrides config)")
	pf.StringVar(&opts.Backend, "backend", "", "store backend: sqlite|leveldb|memory (overrides config)")
	pf.StringVar(&opts.RemoteURL, "remote", "", "metadata server base URL (overrides config)")
	pf.BoolVar(&opts.Offline, "offline", false, "never contact the metadata server")

	cmd.AddCommand(NewFormsCommand(opts))
	cmd.AddCommand(NewQueueCommand(opts))
	cmd.AddCommand(NewDraftCommand(opts))
	cmd.AddCommand(NewQuarantineCommand(opts))
	cmd.AddCommand(NewFingerprintCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}
