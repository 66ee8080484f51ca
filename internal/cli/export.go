package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-health/custodia/internal/vault"
)

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the whole state as canonical JSON",
		Long: `Export the whole state as canonical JSON.

The output is byte-deterministic: sorted keys, NFC strings, no floats.
Two stores holding the same state export identical bytes, which makes the
export suitable for fingerprinting and drift comparison.

Example:
  custodia export --db custodia.db -o state.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return readVault(rootOpts, func(v *vault.Vault) error {
				data, err := v.Snapshot().CanonicalJSON()
				if err != nil {
					return fmt.Errorf("canonicalize state: %w", err)
				}
				if out == "" {
					_, err = cmd.OutOrStdout().Write(append(data, '\n'))
					return err
				}
				if err := os.WriteFile(out, data, 0o644); err != nil {
					return NewExitError(ExitCommandError, fmt.Sprintf("write export: %v", err))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported %d bytes to %s\n", len(data), out)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	return cmd
}
