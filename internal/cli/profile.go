package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-health/custodia/internal/identity"
	"github.com/custodia-health/custodia/internal/vault"
)

// NewProfileCommand creates the profile command group.
func NewProfileCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage the caller's profile",
	}
	cmd.AddCommand(newProfileSetCommand(rootOpts))
	cmd.AddCommand(newProfileShowCommand(rootOpts))
	return cmd
}

func newProfileSetCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		token     string
		name      string
		dob       string
		bloodType string
		allergies []string
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Create or replace the caller's profile",
		Long: `Create or replace the caller's profile.

The profile is replaced wholesale: every set invocation must carry the full
profile, not a delta. Creates the caller's identity when none exists yet.

Example:
  custodia profile set --token alice-device --name "Alice" --dob 1990-04-02 \
    --blood-type O+ --allergy penicillin --allergy latex`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(cmd, rootOpts)
			return withVault(rootOpts, func(v *vault.Vault) error {
				p, err := v.UpsertProfile(identity.NormalizeToken(token), identity.ProfileFields{
					Name:        name,
					DateOfBirth: dob,
					BloodType:   bloodType,
					Allergies:   allergies,
				})
				if err != nil {
					return f.OperationError(err)
				}
				return f.Success(renderProfile(rootOpts.Format, p))
			})
		},
	}

	cmd.Flags().StringVarP(&token, "token", "t", "", "caller token")
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&dob, "dob", "", "date of birth (YYYY-MM-DD)")
	cmd.Flags().StringVar(&bloodType, "blood-type", "", "blood type")
	cmd.Flags().StringArrayVar(&allergies, "allergy", nil, "known allergy (repeatable)")
	cmd.MarkFlagRequired("token")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newProfileShowCommand(rootOpts *RootOptions) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:           "show",
		Short:         "Show the caller's profile",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(cmd, rootOpts)
			return readVault(rootOpts, func(v *vault.Vault) error {
				p, err := v.GetMyProfile(identity.NormalizeToken(token))
				if err != nil {
					return f.OperationError(err)
				}
				return f.Success(renderProfile(rootOpts.Format, p))
			})
		},
	}

	cmd.Flags().StringVarP(&token, "token", "t", "", "caller token")
	cmd.MarkFlagRequired("token")
	return cmd
}

func renderProfile(format string, p identity.Profile) any {
	if format == "json" {
		return p
	}
	var b strings.Builder
	fmt.Fprintf(&b, "name:        %s\n", p.Name)
	fmt.Fprintf(&b, "born:        %s\n", p.DateOfBirth)
	if p.BloodType != "" {
		fmt.Fprintf(&b, "blood type:  %s\n", p.BloodType)
	}
	if len(p.Allergies) > 0 {
		fmt.Fprintf(&b, "allergies:   %s\n", strings.Join(p.Allergies, ", "))
	}
	fmt.Fprintf(&b, "identifier:  %s", p.Identity.Identifier)
	return b.String()
}
