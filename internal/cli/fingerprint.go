package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldkit/internal/ir"
	"github.com/roach88/fieldkit/internal/metadata"
)

// FingerprintResult is the output of the fingerprint command.
type FingerprintResult struct {
	Name        string `json:"name"`
	Fields      int    `json:"fields"`
	Fingerprint string `json:"fingerprint"`
}

// NewFingerprintCommand creates the fingerprint command.
func NewFingerprintCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint <doctype.json>",
		Short: "Validate a doctype file and print its fingerprint",
		Long: `Validate a doctype JSON document and print the fingerprint a cached copy
of it would have. Use - to read from stdin.

The fingerprint covers each field's name, type and options. Field order,
labels, defaults and other doctype metadata do not affect it.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFingerprint(rootOpts, cmd, args[0])
		},
	}
}

func runFingerprint(opts *RootOptions, cmd *cobra.Command, path string) error {
	out := formatter(opts, cmd)

	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return out.Fail("failed to read doctype", err)
	}

	v, err := metadata.NewValidator()
	if err != nil {
		return out.Fail("failed to load doctype schema", err)
	}
	if err := v.Validate(data); err != nil {
		_ = out.Error("INVALID_DOCTYPE", err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid doctype", err)
	}

	var s ir.DocTypeSchema
	if err := json.Unmarshal(data, &s); err != nil {
		_ = out.Error("INVALID_DOCTYPE", err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid doctype", err)
	}

	res := FingerprintResult{Name: s.Name, Fields: len(s.Fields), Fingerprint: s.Fingerprint()}
	return out.Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "%s  %s (%d fields)\n", res.Fingerprint, res.Name, res.Fields)
	})
}
