// Package vault wires the identity directory, profile store, record store,
// grant store, and authorization engine into one process-wide state object
// and exposes the operation surface callers use.
//
// Lifecycle: a vault starts empty and is populated only by Restore; Snapshot
// flattens the whole state for the durable boundary. Neither may run
// concurrently with operations; the CLI drives them strictly at startup and
// shutdown.
//
// Concurrency: one exclusive lock serializes every operation, reads
// included. Each operation runs to completion before the next is admitted,
// so no partial mutation is ever visible and no operation needs rollback
// (none performs more than one logical mutation).
package vault

import (
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-health/custodia/internal/authz"
	"github.com/custodia-health/custodia/internal/clock"
	"github.com/custodia-health/custodia/internal/grants"
	"github.com/custodia-health/custodia/internal/identity"
	"github.com/custodia-health/custodia/internal/records"
	"github.com/custodia-health/custodia/internal/snapshot"
)

// Vault is the combined store plus operation surface.
type Vault struct {
	mu  sync.Mutex
	clk clock.Clock
	log *slog.Logger

	identities *identity.Directory
	profiles   *identity.ProfileStore
	records    *records.Store
	grants     *grants.Store
	engine     *authz.Engine
}

// Option configures a Vault at construction.
type Option func(*Vault)

// WithClock substitutes the time source. Tests and the conformance harness
// inject a deterministic clock here.
func WithClock(clk clock.Clock) Option {
	return func(v *Vault) { v.clk = clk }
}

// WithLogger substitutes the logger.
func WithLogger(log *slog.Logger) Option {
	return func(v *Vault) { v.log = log }
}

// New creates an empty vault.
func New(opts ...Option) *Vault {
	v := &Vault{
		clk: clock.NewSystem(),
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.identities = identity.NewDirectory(v.clk)
	v.profiles = identity.NewProfileStore(v.clk)
	v.records = records.NewStore(v.clk)
	v.grants = grants.NewStore()
	v.engine = authz.NewEngine(v.records, v.grants, v.clk)
	return v
}

// CreateIdentity explicitly registers an identity for the caller.
// Fails with NOT_AUTHENTICATED for the anonymous principal and
// ALREADY_EXISTS when the token is already registered; the stored identity
// is not altered by a duplicate attempt.
func (v *Vault) CreateIdentity(token identity.Token) (identity.Identity, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if token.IsAnonymous() {
		return identity.Identity{}, errNotAuthenticated()
	}
	id, created := v.identities.Create(token)
	if !created {
		return identity.Identity{}, errIdentityExists(id.Identifier)
	}
	v.log.Info("identity created", "identifier", id.Identifier)
	return id, nil
}

// GetMyIdentity returns the caller's identity, NOT_FOUND if none exists.
func (v *Vault) GetMyIdentity(token identity.Token) (identity.Identity, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id, ok := v.identities.Lookup(token)
	if !ok {
		return identity.Identity{}, errNoIdentity()
	}
	return id, nil
}

// ResolveIdentity finds an identity by its identifier string.
func (v *Vault) ResolveIdentity(identifier string) (identity.Identity, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id, ok := v.identities.ResolveByIdentifier(identifier)
	if !ok {
		return identity.Identity{}, errIdentifierNotFound(identifier)
	}
	return id, nil
}

// UpsertProfile creates or wholesale-replaces the caller's profile, creating
// the caller's identity implicitly when absent.
func (v *Vault) UpsertProfile(token identity.Token, fields identity.ProfileFields) (identity.Profile, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if token.IsAnonymous() {
		return identity.Profile{}, errNotAuthenticated()
	}
	id := v.identities.ResolveOrCreate(token)
	p := v.profiles.Upsert(id, fields)
	v.log.Info("profile upserted", "identifier", id.Identifier)
	return p, nil
}

// GetMyProfile returns the caller's profile, NOT_FOUND when the caller has
// no identity or no profile yet.
func (v *Vault) GetMyProfile(token identity.Token) (identity.Profile, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id, ok := v.identities.Lookup(token)
	if !ok {
		return identity.Profile{}, errNoIdentity()
	}
	p, ok := v.profiles.Get(id.Identifier)
	if !ok {
		return identity.Profile{}, errProfileNotFound(id.Identifier)
	}
	return p, nil
}

// AddRecord stores a new record owned by the caller, creating the caller's
// identity implicitly when absent. The payload is opaque; the hash is the
// caller's integrity claim and is stored verbatim.
func (v *Vault) AddRecord(token identity.Token, typ records.RecordType, payload []byte, payloadHash string, md records.Metadata) (records.Record, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if token.IsAnonymous() {
		return records.Record{}, errNotAuthenticated()
	}
	id := v.identities.ResolveOrCreate(token)
	r := v.records.Create(id.Identifier, typ, payload, payloadHash, md)
	v.log.Info("record added", "record", r.ID, "owner", id.Identifier, "type", string(typ))
	return r, nil
}

// GetRecord returns a record the caller may read: the owner bypasses the
// engine by identifier comparison, anyone else needs a grant admitting Read.
func (v *Vault) GetRecord(token identity.Token, recordID uint64) (records.Record, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	r, ok := v.records.Get(recordID)
	if !ok {
		return records.Record{}, errRecordNotFound(recordID)
	}
	if !v.callerOwns(token, r) && !v.engine.HasAccess(token, r.OwnerIdentifier, r.ID, grants.PermRead) {
		v.log.Debug("record read denied", "record", recordID)
		return records.Record{}, errRecordUnauthorized(recordID)
	}
	return r, nil
}

// ListMyRecords returns the caller's own records in index order.
func (v *Vault) ListMyRecords(token identity.Token) ([]records.Record, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id, ok := v.identities.Lookup(token)
	if !ok {
		return nil, errNoIdentity()
	}
	return v.records.ListByOwner(id.Identifier), nil
}

// UpdateRecord replaces payload, hash, and metadata of a record the caller
// may write. The owner bypasses the engine; a delegate needs Write.
func (v *Vault) UpdateRecord(token identity.Token, recordID uint64, payload []byte, payloadHash string, md records.Metadata) (records.Record, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if token.IsAnonymous() {
		return records.Record{}, errNotAuthenticated()
	}
	r, ok := v.records.Get(recordID)
	if !ok {
		return records.Record{}, errRecordNotFound(recordID)
	}
	if !v.callerOwns(token, r) && !v.engine.HasAccess(token, r.OwnerIdentifier, r.ID, grants.PermWrite) {
		v.log.Debug("record write denied", "record", recordID)
		return records.Record{}, errRecordUnauthorized(recordID)
	}
	updated, _ := v.records.Update(recordID, payload, payloadHash, md)
	v.log.Info("record updated", "record", recordID)
	return updated, nil
}

// DeleteRecord removes a record the caller may delete. The record map and
// the owner index change together under the vault lock, so no reader ever
// observes one without the other.
func (v *Vault) DeleteRecord(token identity.Token, recordID uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if token.IsAnonymous() {
		return errNotAuthenticated()
	}
	r, ok := v.records.Get(recordID)
	if !ok {
		return errRecordNotFound(recordID)
	}
	if !v.callerOwns(token, r) && !v.engine.HasAccess(token, r.OwnerIdentifier, r.ID, grants.PermDelete) {
		v.log.Debug("record delete denied", "record", recordID)
		return errRecordUnauthorized(recordID)
	}
	v.records.Delete(recordID)
	v.log.Info("record deleted", "record", recordID, "owner", r.OwnerIdentifier)
	return nil
}

// GrantAccess issues a new grant from the caller to delegate. Every listed
// record id must currently resolve to a record owned by the caller;
// an empty list is a wildcard over all of the caller's records, present and
// future. Issuance never merges with existing grants.
func (v *Vault) GrantAccess(token identity.Token, delegate identity.Token, recordIDs []uint64, perms []grants.Permission, expiresAt *time.Time) (grants.Grant, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if token.IsAnonymous() {
		return grants.Grant{}, errNotAuthenticated()
	}
	id, ok := v.identities.Lookup(token)
	if !ok {
		return grants.Grant{}, errNoIdentity()
	}
	for _, rid := range recordIDs {
		r, ok := v.records.Get(rid)
		if !ok || r.OwnerIdentifier != id.Identifier {
			return grants.Grant{}, errGrantUnauthorized(rid)
		}
	}
	g := grants.Grant{
		Delegate:    delegate,
		IssuedBy:    id.Identifier,
		RecordIDs:   append([]uint64(nil), recordIDs...),
		ExpiresAt:   expiresAt,
		Permissions: grants.NewPermissionSet(perms...),
		CreatedAt:   v.clk.Now(),
	}
	v.grants.Append(g)
	v.log.Info("grant issued",
		"issuer", id.Identifier,
		"wildcard", g.Wildcard(),
		"records", len(g.RecordIDs),
		"permissions", len(g.Permissions))
	return g, nil
}

// RevokeAccess removes every grant the caller issued to delegate. Grants
// issued by other owners to the same delegate are untouched. Revocation is
// terminal; renewed access requires a new grant.
func (v *Vault) RevokeAccess(token identity.Token, delegate identity.Token) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if token.IsAnonymous() {
		return errNotAuthenticated()
	}
	id, ok := v.identities.Lookup(token)
	if !ok {
		return errNoIdentity()
	}
	removed := v.grants.RevokeForIssuer(delegate, id.Identifier)
	v.log.Info("grants revoked", "issuer", id.Identifier, "removed", removed)
	return nil
}

// ListMyGrants returns every grant the caller has issued, across all
// delegates.
func (v *Vault) ListMyGrants(token identity.Token) ([]grants.Grant, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id, ok := v.identities.Lookup(token)
	if !ok {
		return nil, errNoIdentity()
	}
	return v.grants.IssuedBy(id.Identifier), nil
}

// CheckAccess reports whether the caller could perform perm on the record,
// without performing it. NOT_FOUND if the record does not exist; the owner
// is always allowed.
func (v *Vault) CheckAccess(token identity.Token, recordID uint64, perm grants.Permission) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	r, ok := v.records.Get(recordID)
	if !ok {
		return false, errRecordNotFound(recordID)
	}
	return v.callerOwns(token, r) || v.engine.HasAccess(token, r.OwnerIdentifier, r.ID, perm), nil
}

// ListAccessibleRecords returns every record the caller can read through
// grants, one entry per covering grant. Never errors; an unknown or
// anonymous caller simply holds no grants and gets an empty list.
func (v *Vault) ListAccessibleRecords(token identity.Token) []records.Record {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.engine.ResolveAccessibleRecords(token)
}

// CountIdentities returns the number of registered identities.
func (v *Vault) CountIdentities() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.identities.Count()
}

// CountRecords returns the number of stored records.
func (v *Vault) CountRecords() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.records.Count()
}

// CountGrants returns the number of grants across all delegates.
func (v *Vault) CountGrants() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.grants.Total()
}

// Snapshot flattens the whole state into its durable pair-list form.
func (v *Vault) Snapshot() *snapshot.Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	return &snapshot.Snapshot{
		Identities: v.identities.Export(),
		Profiles:   v.profiles.Export(),
		Records:    v.records.Export(),
		OwnerIndex: v.records.ExportIndex(),
		Grants:     v.grants.Export(),
	}
}

// Restore replaces the whole state from a snapshot. Meant for the startup
// side of the lifecycle boundary, before any operation is admitted.
func (v *Vault) Restore(snap *snapshot.Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.identities.Restore(snap.Identities)
	v.profiles.Restore(snap.Profiles)
	v.records.Restore(snap.Records, snap.OwnerIndex)
	v.grants.Restore(snap.Grants)
	v.log.Info("state restored",
		"identities", len(snap.Identities),
		"records", len(snap.Records),
		"grant_lists", len(snap.Grants))
}

// callerOwns reports whether token resolves to the record's owner.
func (v *Vault) callerOwns(token identity.Token, r records.Record) bool {
	id, ok := v.identities.Lookup(token)
	return ok && id.Identifier == r.OwnerIdentifier
}
