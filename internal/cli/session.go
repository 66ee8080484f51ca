package cli

import (
	"context"
	"fmt"

	"github.com/custodia-health/custodia/internal/snapshot"
	"github.com/custodia-health/custodia/internal/vault"
)

// withVault runs fn inside a full load-operate-save cycle against the
// snapshot database. Restore happens before fn sees the vault; the state is
// flattened and written back only when fn succeeds, so a denied operation
// leaves the database untouched.
func withVault(opts *RootOptions, fn func(v *vault.Vault) error) error {
	return withVaultRO(opts, true, fn)
}

// readVault is withVault without the save leg, for commands that only read.
func readVault(opts *RootOptions, fn func(v *vault.Vault) error) error {
	return withVaultRO(opts, false, fn)
}

func withVaultRO(opts *RootOptions, save bool, fn func(v *vault.Vault) error) error {
	ctx := context.Background()

	st, err := snapshot.Open(opts.DBPath)
	if err != nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("open database %s: %v", opts.DBPath, err))
	}
	defer st.Close()

	snap, err := st.Load(ctx)
	if err != nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("load state: %v", err))
	}

	v := vault.New(vault.WithLogger(opts.newLogger()))
	v.Restore(snap)

	if err := fn(v); err != nil {
		return err
	}

	if save {
		if err := st.Save(ctx, v.Snapshot()); err != nil {
			return NewExitError(ExitCommandError, fmt.Sprintf("save state: %v", err))
		}
	}
	return nil
}
