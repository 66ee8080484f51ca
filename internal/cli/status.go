package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-health/custodia/internal/vault"
)

// StatusData is the JSON payload of the status command.
type StatusData struct {
	Database   string `json:"database"`
	Identities int    `json:"identities"`
	Records    int    `json:"records"`
	Grants     int    `json:"grants"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "status",
		Short:         "Show store counts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(cmd, rootOpts)
			return readVault(rootOpts, func(v *vault.Vault) error {
				data := StatusData{
					Database:   rootOpts.DBPath,
					Identities: v.CountIdentities(),
					Records:    v.CountRecords(),
					Grants:     v.CountGrants(),
				}
				if rootOpts.Format == "json" {
					return f.Success(data)
				}
				return f.Success(fmt.Sprintf(
					"database:   %s\nidentities: %d\nrecords:    %d\ngrants:     %d",
					data.Database, data.Identities, data.Records, data.Grants))
			})
		},
	}
	return cmd
}
