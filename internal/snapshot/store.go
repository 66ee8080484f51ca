package snapshot

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/custodia-health/custodia/internal/grants"
	"github.com/custodia-health/custodia/internal/identity"
	"github.com/custodia-health/custodia/internal/records"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial pair-list layout (one table per store)
const currentSchemaVersion = 1

// Store persists snapshots to a SQLite database.
// Uses SQLite with WAL mode; a save replaces the previous snapshot wholesale
// inside a single transaction, so a crash mid-save leaves the prior snapshot
// intact.
type Store struct {
	db *sql.DB
}

// Open creates or opens a snapshot database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save replaces the stored snapshot with snap in a single transaction.
// Must not run concurrently with any vault operation; it belongs strictly to
// the shutdown side of the lifecycle boundary.
func (s *Store) Save(ctx context.Context, snap *Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	if err := saveTable(ctx, tx, "identities", snap.Identities,
		func(e identity.Entry) (string, any) { return string(e.Token), e.Identity }); err != nil {
		return err
	}
	if err := saveTable(ctx, tx, "profiles", snap.Profiles,
		func(e identity.ProfileEntry) (string, any) { return e.Identifier, e.Profile }); err != nil {
		return err
	}
	if err := saveTable(ctx, tx, "records", snap.Records,
		func(e records.Entry) (string, any) { return e.Key, e.Record }); err != nil {
		return err
	}
	if err := saveTable(ctx, tx, "owner_index", snap.OwnerIndex,
		func(e records.IndexEntry) (string, any) { return e.Identifier, e.RecordIDs }); err != nil {
		return err
	}
	if err := saveTable(ctx, tx, "grants", snap.Grants,
		func(e grants.Entry) (string, any) { return string(e.Delegate), e.Grants }); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

// saveTable clears one pair-list table and writes its entries in order.
func saveTable[E any](ctx context.Context, tx *sql.Tx, table string, entries []E, pair func(E) (string, any)) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	for i, e := range entries {
		key, value := pair(e)
		valueJSON, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode %s[%d]: %w", table, i, err)
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO "+table+" (position, key, value) VALUES (?, ?, ?)",
			i, key, string(valueJSON))
		if err != nil {
			return fmt.Errorf("write %s[%d]: %w", table, i, err)
		}
	}
	return nil
}

// Load reads the stored snapshot. A fresh database yields an empty snapshot,
// which restores to an empty vault (the cold-start case).
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}

	if err := loadTable(ctx, s.db, "identities", func(key string, value []byte) error {
		var id identity.Identity
		if err := json.Unmarshal(value, &id); err != nil {
			return err
		}
		snap.Identities = append(snap.Identities, identity.Entry{Token: identity.Token(key), Identity: id})
		return nil
	}); err != nil {
		return nil, err
	}

	if err := loadTable(ctx, s.db, "profiles", func(key string, value []byte) error {
		var p identity.Profile
		if err := json.Unmarshal(value, &p); err != nil {
			return err
		}
		snap.Profiles = append(snap.Profiles, identity.ProfileEntry{Identifier: key, Profile: p})
		return nil
	}); err != nil {
		return nil, err
	}

	if err := loadTable(ctx, s.db, "records", func(key string, value []byte) error {
		var r records.Record
		if err := json.Unmarshal(value, &r); err != nil {
			return err
		}
		snap.Records = append(snap.Records, records.Entry{Key: key, Record: r})
		return nil
	}); err != nil {
		return nil, err
	}

	if err := loadTable(ctx, s.db, "owner_index", func(key string, value []byte) error {
		var ids []uint64
		if err := json.Unmarshal(value, &ids); err != nil {
			return err
		}
		snap.OwnerIndex = append(snap.OwnerIndex, records.IndexEntry{Identifier: key, RecordIDs: ids})
		return nil
	}); err != nil {
		return nil, err
	}

	if err := loadTable(ctx, s.db, "grants", func(key string, value []byte) error {
		var gs []grants.Grant
		if err := json.Unmarshal(value, &gs); err != nil {
			return err
		}
		snap.Grants = append(snap.Grants, grants.Entry{Delegate: identity.Token(key), Grants: gs})
		return nil
	}); err != nil {
		return nil, err
	}

	return snap, nil
}

// loadTable streams one pair-list table in stored order.
func loadTable(ctx context.Context, db *sql.DB, table string, visit func(key string, value []byte) error) error {
	rows, err := db.QueryContext(ctx,
		"SELECT key, value FROM "+table+" ORDER BY position ASC")
	if err != nil {
		return fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("scan %s: %w", table, err)
		}
		if err := visit(key, []byte(value)); err != nil {
			return fmt.Errorf("decode %s[%q]: %w", table, key, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", table, err)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and records the schema
// version. This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}

	return nil
}
