// Package identity implements the identity directory and the profile store.
//
// The directory maps caller tokens to stable identities. An identity is
// created at most once per token and is immutable afterward; its identifier
// is derived deterministically from the token, so the same caller always
// resolves to the same identifier even across restarts.
//
// Profiles are mutable owner documents keyed by identifier. Writes replace
// every mutable field wholesale; there is no partial merge.
package identity

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-health/custodia/internal/clock"
)

// Scheme is the identifier scheme stamped on every identity this directory
// creates.
const Scheme = "custodia"

// identifierNamespace is the UUIDv5 namespace for identifier derivation.
// Changing it would silently re-key every caller, so it is fixed forever.
var identifierNamespace = uuid.MustParse("5e1a9b64-8f02-4c11-9d35-7a6be2c0d4f8")

// Identity is the stable per-caller record substituting for a verified login.
// Created once, immutable thereafter.
type Identity struct {
	Scheme     string    `json:"scheme"`
	Identifier string    `json:"identifier"`
	CreatedAt  time.Time `json:"created_at"`
}

// DeriveIdentifier computes the globally unique identifier for a token.
// Derivation is deterministic (UUIDv5 over the canonical token bytes), which
// is what makes resolveOrCreate idempotent.
func DeriveIdentifier(token Token) string {
	return uuid.NewSHA1(identifierNamespace, []byte(token)).String()
}

// Directory maps caller tokens to identities.
//
// Thread-safety: none. The vault serializes all access behind its single
// exclusive lock; the directory itself stays a plain map.
type Directory struct {
	clk     clock.Clock
	byToken map[Token]Identity
}

// NewDirectory creates an empty directory stamping timestamps from clk.
func NewDirectory(clk clock.Clock) *Directory {
	return &Directory{
		clk:     clk,
		byToken: make(map[Token]Identity),
	}
}

// Create registers a new identity for token.
//
// Returns the existing identity and false if one is already registered: the
// caller maps that to its duplicate-creation error, and the first identity
// is left untouched.
func (d *Directory) Create(token Token) (Identity, bool) {
	if existing, ok := d.byToken[token]; ok {
		return existing, false
	}
	id := Identity{
		Scheme:     Scheme,
		Identifier: DeriveIdentifier(token),
		CreatedAt:  d.clk.Now(),
	}
	d.byToken[token] = id
	return id, true
}

// ResolveOrCreate returns the identity for token, creating it silently when
// absent. Profile and record creation paths use this; explicit identity
// creation goes through Create so duplicates can be rejected.
func (d *Directory) ResolveOrCreate(token Token) Identity {
	if existing, ok := d.byToken[token]; ok {
		return existing
	}
	id, _ := d.Create(token)
	return id
}

// Lookup returns the identity for token, if any.
func (d *Directory) Lookup(token Token) (Identity, bool) {
	id, ok := d.byToken[token]
	return id, ok
}

// ResolveByIdentifier finds the identity with the given identifier string.
//
// This is a linear scan over all identities. Fine at directory scale; callers
// that ever need this on a hot path should maintain a reverse index instead.
func (d *Directory) ResolveByIdentifier(identifier string) (Identity, bool) {
	for _, id := range d.byToken {
		if id.Identifier == identifier {
			return id, true
		}
	}
	return Identity{}, false
}

// Count returns the number of registered identities.
func (d *Directory) Count() int {
	return len(d.byToken)
}

// Entry is one (token, identity) pair of the directory's durable form.
type Entry struct {
	Token    Token    `json:"token"`
	Identity Identity `json:"identity"`
}

// Export returns the directory contents as an ordered pair list, sorted by
// token. Ordering makes snapshots deterministic.
func (d *Directory) Export() []Entry {
	entries := make([]Entry, 0, len(d.byToken))
	for token, id := range d.byToken {
		entries = append(entries, Entry{Token: token, Identity: id})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Token < entries[j].Token
	})
	return entries
}

// Restore replaces the directory contents with the given pair list.
func (d *Directory) Restore(entries []Entry) {
	d.byToken = make(map[Token]Identity, len(entries))
	for _, e := range entries {
		d.byToken[e.Token] = e.Identity
	}
}
