package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-health/custodia/internal/grants"
	"github.com/custodia-health/custodia/internal/identity"
	"github.com/custodia-health/custodia/internal/vault"
)

// NewGrantCommand creates the grant command group.
func NewGrantCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Manage access grants",
	}
	cmd.AddCommand(newGrantIssueCommand(rootOpts))
	cmd.AddCommand(newGrantRevokeCommand(rootOpts))
	cmd.AddCommand(newGrantListCommand(rootOpts))
	return cmd
}

func newGrantIssueCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		token       string
		delegate    string
		recordIDs   []uint
		permissions []string
		ttl         time.Duration
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Grant a delegate access to the caller's records",
		Long: `Grant a delegate access to the caller's records.

Omitting --record-id makes the grant a wildcard over all of the caller's
records, including ones added later. Every listed id must resolve to a
record the caller owns. A --ttl of zero means the grant never expires.

Example:
  custodia grant issue --token alice-device --delegate bob-device \
    --permission Read --permission Write --record-id 1 --ttl 24h`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(cmd, rootOpts)

			perms := make([]grants.Permission, 0, len(permissions))
			for _, p := range permissions {
				perm, ok := grants.ParsePermission(p)
				if !ok {
					return NewExitError(ExitCommandError,
						fmt.Sprintf("unknown permission %q: must be one of Read|Write|Delete", p))
				}
				perms = append(perms, perm)
			}

			ids := make([]uint64, len(recordIDs))
			for i, id := range recordIDs {
				ids[i] = uint64(id)
			}

			return withVault(rootOpts, func(v *vault.Vault) error {
				var expiresAt *time.Time
				if ttl > 0 {
					t := time.Now().UTC().Add(ttl)
					expiresAt = &t
				}
				g, err := v.GrantAccess(
					identity.NormalizeToken(token),
					identity.NormalizeToken(delegate),
					ids, perms, expiresAt)
				if err != nil {
					return f.OperationError(err)
				}
				return f.Success(renderGrant(rootOpts.Format, g))
			})
		},
	}

	cmd.Flags().StringVarP(&token, "token", "t", "", "caller token")
	cmd.Flags().StringVar(&delegate, "delegate", "", "delegate token")
	cmd.Flags().UintSliceVar(&recordIDs, "record-id", nil, "record id (repeatable; omit for wildcard)")
	cmd.Flags().StringArrayVar(&permissions, "permission", nil, "permission (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "time until the grant expires (0 = never)")
	cmd.MarkFlagRequired("token")
	cmd.MarkFlagRequired("delegate")
	cmd.MarkFlagRequired("permission")
	return cmd
}

func newGrantRevokeCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		token    string
		delegate string
	)

	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke every grant the caller issued to a delegate",
		Long: `Revoke every grant the caller issued to a delegate.

Grants issued by other owners to the same delegate are untouched.
Revoking a delegate that holds no grants from the caller succeeds and
removes nothing.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(cmd, rootOpts)
			return withVault(rootOpts, func(v *vault.Vault) error {
				err := v.RevokeAccess(identity.NormalizeToken(token), identity.NormalizeToken(delegate))
				if err != nil {
					return f.OperationError(err)
				}
				return f.Success(fmt.Sprintf("revoked all grants to %s", delegate))
			})
		},
	}

	cmd.Flags().StringVarP(&token, "token", "t", "", "caller token")
	cmd.Flags().StringVar(&delegate, "delegate", "", "delegate token")
	cmd.MarkFlagRequired("token")
	cmd.MarkFlagRequired("delegate")
	return cmd
}

func newGrantListCommand(rootOpts *RootOptions) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List every grant the caller has issued",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(cmd, rootOpts)
			return readVault(rootOpts, func(v *vault.Vault) error {
				gs, err := v.ListMyGrants(identity.NormalizeToken(token))
				if err != nil {
					return f.OperationError(err)
				}
				return f.Success(renderGrantList(rootOpts.Format, gs))
			})
		},
	}

	cmd.Flags().StringVarP(&token, "token", "t", "", "caller token")
	cmd.MarkFlagRequired("token")
	return cmd
}

func renderGrant(format string, g grants.Grant) any {
	if format == "json" {
		return g
	}
	var b strings.Builder
	fmt.Fprintf(&b, "delegate:    %s\n", g.Delegate)
	fmt.Fprintf(&b, "scope:       %s\n", grantScope(g))
	fmt.Fprintf(&b, "permissions: %s\n", permissionNames(g.Permissions))
	fmt.Fprintf(&b, "expires:     %s", grantExpiry(g))
	return b.String()
}

func renderGrantList(format string, gs []grants.Grant) any {
	if format == "json" {
		return gs
	}
	if len(gs) == 0 {
		return "no grants"
	}
	var b strings.Builder
	for i, g := range gs {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s\t%s\t%s\t%s",
			g.Delegate, grantScope(g), permissionNames(g.Permissions), grantExpiry(g))
	}
	return b.String()
}

func grantScope(g grants.Grant) string {
	if g.Wildcard() {
		return "all records"
	}
	parts := make([]string, len(g.RecordIDs))
	for i, id := range g.RecordIDs {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return "records " + strings.Join(parts, ",")
}

func grantExpiry(g grants.Grant) string {
	if g.ExpiresAt == nil {
		return "never"
	}
	return g.ExpiresAt.Format("2006-01-02T15:04:05Z07:00")
}

func permissionNames(ps grants.PermissionSet) string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = string(p)
	}
	return strings.Join(names, ",")
}
