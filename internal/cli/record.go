package cli

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-health/custodia/internal/identity"
	"github.com/custodia-health/custodia/internal/records"
	"github.com/custodia-health/custodia/internal/vault"
)

// recordFlags are the payload and metadata flags shared by add and update.
type recordFlags struct {
	Payload     string
	PayloadFile string
	Hash        string
	Title       string
	Provider    string
	Facility    string
	Date        string
	Tags        []string
}

func (rf *recordFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&rf.Payload, "payload", "", "inline payload")
	cmd.Flags().StringVar(&rf.PayloadFile, "payload-file", "", "read payload from file")
	cmd.Flags().StringVar(&rf.Hash, "hash", "", "payload hash (computed when omitted)")
	cmd.Flags().StringVar(&rf.Title, "title", "", "record title")
	cmd.Flags().StringVar(&rf.Provider, "provider", "", "treating provider")
	cmd.Flags().StringVar(&rf.Facility, "facility", "", "facility")
	cmd.Flags().StringVar(&rf.Date, "date", "", "date of service (YYYY-MM-DD)")
	cmd.Flags().StringArrayVar(&rf.Tags, "tag", nil, "tag (repeatable)")
}

// resolvePayload loads the payload bytes and settles the hash. The hash is a
// caller integrity claim; when absent we compute sha256 over the payload as
// a convenience, stored in the same verbatim fashion.
func (rf *recordFlags) resolvePayload() ([]byte, string, error) {
	payload := []byte(rf.Payload)
	if rf.PayloadFile != "" {
		if rf.Payload != "" {
			return nil, "", NewExitError(ExitCommandError, "--payload and --payload-file are mutually exclusive")
		}
		data, err := os.ReadFile(rf.PayloadFile)
		if err != nil {
			return nil, "", NewExitError(ExitCommandError, fmt.Sprintf("read payload file: %v", err))
		}
		payload = data
	}
	hash := rf.Hash
	if hash == "" {
		sum := sha256.Sum256(payload)
		hash = "sha256:" + hex.EncodeToString(sum[:])
	}
	return payload, hash, nil
}

func (rf *recordFlags) metadata() records.Metadata {
	return records.Metadata{
		Title:         rf.Title,
		Provider:      rf.Provider,
		Facility:      rf.Facility,
		DateOfService: rf.Date,
		Tags:          rf.Tags,
	}
}

// NewRecordCommand creates the record command group.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Manage medical records",
	}
	cmd.AddCommand(newRecordAddCommand(rootOpts))
	cmd.AddCommand(newRecordShowCommand(rootOpts))
	cmd.AddCommand(newRecordListCommand(rootOpts))
	cmd.AddCommand(newRecordUpdateCommand(rootOpts))
	cmd.AddCommand(newRecordDeleteCommand(rootOpts))
	return cmd
}

func newRecordAddCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		token string
		typ   string
		rf    recordFlags
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a record owned by the caller",
		Long: `Add a record owned by the caller.

Creates the caller's identity when none exists yet. The payload is opaque;
custodia never inspects it and never verifies the hash.

Example:
  custodia record add --token alice-device --type LabResult \
    --title "CBC panel" --provider "City Lab" --date 2025-02-14 \
    --payload-file cbc.pdf`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(cmd, rootOpts)

			recordType, ok := records.ParseType(typ)
			if !ok {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("unknown record type %q: must be one of %s", typ, typeNames()))
			}
			payload, hash, err := rf.resolvePayload()
			if err != nil {
				return err
			}

			return withVault(rootOpts, func(v *vault.Vault) error {
				r, err := v.AddRecord(identity.NormalizeToken(token), recordType, payload, hash, rf.metadata())
				if err != nil {
					return f.OperationError(err)
				}
				return f.Success(renderRecord(rootOpts.Format, r))
			})
		},
	}

	cmd.Flags().StringVarP(&token, "token", "t", "", "caller token")
	cmd.Flags().StringVar(&typ, "type", "", "record type")
	rf.register(cmd)
	cmd.MarkFlagRequired("token")
	cmd.MarkFlagRequired("type")
	cmd.MarkFlagRequired("title")
	return cmd
}

func newRecordShowCommand(rootOpts *RootOptions) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:           "show <record-id>",
		Short:         "Show a record the caller may read",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(cmd, rootOpts)
			id, err := parseRecordID(args[0])
			if err != nil {
				return err
			}
			return readVault(rootOpts, func(v *vault.Vault) error {
				r, err := v.GetRecord(identity.NormalizeToken(token), id)
				if err != nil {
					return f.OperationError(err)
				}
				return f.Success(renderRecord(rootOpts.Format, r))
			})
		},
	}

	cmd.Flags().StringVarP(&token, "token", "t", "", "caller token")
	cmd.MarkFlagRequired("token")
	return cmd
}

func newRecordListCommand(rootOpts *RootOptions) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List the caller's own records",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(cmd, rootOpts)
			return readVault(rootOpts, func(v *vault.Vault) error {
				rs, err := v.ListMyRecords(identity.NormalizeToken(token))
				if err != nil {
					return f.OperationError(err)
				}
				return f.Success(renderRecordList(rootOpts.Format, rs))
			})
		},
	}

	cmd.Flags().StringVarP(&token, "token", "t", "", "caller token")
	cmd.MarkFlagRequired("token")
	return cmd
}

func newRecordUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		token string
		rf    recordFlags
	)

	cmd := &cobra.Command{
		Use:   "update <record-id>",
		Short: "Replace a record's payload and metadata",
		Long: `Replace a record's payload, hash, and metadata.

The record keeps its id, owner, type, and creation time. The caller must be
the owner or hold a grant admitting Write.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(cmd, rootOpts)
			id, err := parseRecordID(args[0])
			if err != nil {
				return err
			}
			payload, hash, err := rf.resolvePayload()
			if err != nil {
				return err
			}
			return withVault(rootOpts, func(v *vault.Vault) error {
				r, err := v.UpdateRecord(identity.NormalizeToken(token), id, payload, hash, rf.metadata())
				if err != nil {
					return f.OperationError(err)
				}
				return f.Success(renderRecord(rootOpts.Format, r))
			})
		},
	}

	cmd.Flags().StringVarP(&token, "token", "t", "", "caller token")
	rf.register(cmd)
	cmd.MarkFlagRequired("token")
	cmd.MarkFlagRequired("title")
	return cmd
}

func newRecordDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:           "delete <record-id>",
		Short:         "Delete a record",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(cmd, rootOpts)
			id, err := parseRecordID(args[0])
			if err != nil {
				return err
			}
			return withVault(rootOpts, func(v *vault.Vault) error {
				if err := v.DeleteRecord(identity.NormalizeToken(token), id); err != nil {
					return f.OperationError(err)
				}
				return f.Success(fmt.Sprintf("record %d deleted", id))
			})
		},
	}

	cmd.Flags().StringVarP(&token, "token", "t", "", "caller token")
	cmd.MarkFlagRequired("token")
	return cmd
}

func parseRecordID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid record id %q", s))
	}
	return id, nil
}

func typeNames() string {
	names := make([]string, len(records.AllTypes))
	for i, t := range records.AllTypes {
		names[i] = string(t)
	}
	return strings.Join(names, "|")
}

func renderRecord(format string, r records.Record) any {
	if format == "json" {
		return r
	}
	var b strings.Builder
	fmt.Fprintf(&b, "id:        %d\n", r.ID)
	fmt.Fprintf(&b, "type:      %s\n", r.Type)
	fmt.Fprintf(&b, "title:     %s\n", r.Metadata.Title)
	if r.Metadata.Provider != "" {
		fmt.Fprintf(&b, "provider:  %s\n", r.Metadata.Provider)
	}
	if r.Metadata.DateOfService != "" {
		fmt.Fprintf(&b, "service:   %s\n", r.Metadata.DateOfService)
	}
	fmt.Fprintf(&b, "hash:      %s\n", r.PayloadHash)
	fmt.Fprintf(&b, "owner:     %s", r.OwnerIdentifier)
	return b.String()
}

func renderRecordList(format string, rs []records.Record) any {
	if format == "json" {
		return rs
	}
	if len(rs) == 0 {
		return "no records"
	}
	var b strings.Builder
	for i, r := range rs {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d\t%s\t%s", r.ID, r.Type, r.Metadata.Title)
	}
	return b.String()
}
