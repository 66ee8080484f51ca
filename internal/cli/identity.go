package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-health/custodia/internal/identity"
	"github.com/custodia-health/custodia/internal/vault"
)

// NewIdentityCommand creates the identity command group.
func NewIdentityCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Manage identities",
	}
	cmd.AddCommand(newIdentityCreateCommand(rootOpts))
	cmd.AddCommand(newIdentityShowCommand(rootOpts))
	cmd.AddCommand(newIdentityResolveCommand(rootOpts))
	return cmd
}

func newIdentityCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register an identity for a token",
		Long: `Register an identity for the given token.

The identifier is derived deterministically from the token, so the same
token always maps to the same identity. Registering a token twice fails.

Example:
  custodia identity create --token alice-device`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(cmd, rootOpts)
			return withVault(rootOpts, func(v *vault.Vault) error {
				id, err := v.CreateIdentity(identity.NormalizeToken(token))
				if err != nil {
					return f.OperationError(err)
				}
				return f.Success(renderIdentity(rootOpts.Format, id))
			})
		},
	}

	cmd.Flags().StringVarP(&token, "token", "t", "", "caller token")
	cmd.MarkFlagRequired("token")
	return cmd
}

func newIdentityShowCommand(rootOpts *RootOptions) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:           "show",
		Short:         "Show the identity behind a token",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(cmd, rootOpts)
			return readVault(rootOpts, func(v *vault.Vault) error {
				id, err := v.GetMyIdentity(identity.NormalizeToken(token))
				if err != nil {
					return f.OperationError(err)
				}
				return f.Success(renderIdentity(rootOpts.Format, id))
			})
		},
	}

	cmd.Flags().StringVarP(&token, "token", "t", "", "caller token")
	cmd.MarkFlagRequired("token")
	return cmd
}

func newIdentityResolveCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "resolve <identifier>",
		Short:         "Look up an identity by identifier",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(cmd, rootOpts)
			return readVault(rootOpts, func(v *vault.Vault) error {
				id, err := v.ResolveIdentity(args[0])
				if err != nil {
					return f.OperationError(err)
				}
				return f.Success(renderIdentity(rootOpts.Format, id))
			})
		},
	}
	return cmd
}

// renderIdentity returns the identity itself for JSON output and a text
// block otherwise.
func renderIdentity(format string, id identity.Identity) any {
	if format == "json" {
		return id
	}
	var b strings.Builder
	fmt.Fprintf(&b, "identifier: %s\n", id.Identifier)
	fmt.Fprintf(&b, "scheme:     %s\n", id.Scheme)
	fmt.Fprintf(&b, "created:    %s", id.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	return b.String()
}

// formatter builds the output formatter for a command invocation.
func formatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
}
