// Package grants implements the access grant store.
//
// Grants are keyed by delegate token and are append-only per delegate: issuing
// never merges with an existing grant, even one with identical parameters, and
// the only removal path is explicit revocation scoped to a (delegate, issuer)
// pair. Expiry is purely derived at evaluation time; nothing in the store
// transitions an expired grant.
//
// A grant's lifecycle: Active (created, not expired, not revoked) moves to
// Expired when time passes ExpiresAt, or to Revoked when RevokeForIssuer
// removes it. Neither transition can be undone; renewed access means a new
// grant.
package grants

import (
	"sort"
	"time"

	"github.com/custodia-health/custodia/internal/identity"
)

// Permission is a single operation a grant can admit.
type Permission string

const (
	PermRead   Permission = "Read"
	PermWrite  Permission = "Write"
	PermDelete Permission = "Delete"
)

// AllPermissions lists every permission, in declaration order.
var AllPermissions = []Permission{PermRead, PermWrite, PermDelete}

// ParsePermission resolves a string to a known permission.
func ParsePermission(s string) (Permission, bool) {
	for _, p := range AllPermissions {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

// PermissionSet is a normalized set of permissions: deduplicated and sorted
// so equal sets serialize identically.
type PermissionSet []Permission

// NewPermissionSet builds a normalized set from the given permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	seen := make(map[Permission]struct{}, len(perms))
	set := make(PermissionSet, 0, len(perms))
	for _, p := range perms {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		set = append(set, p)
	}
	sort.Slice(set, func(i, j int) bool { return set[i] < set[j] })
	return set
}

// Contains reports whether the set admits p.
func (s PermissionSet) Contains(p Permission) bool {
	for _, have := range s {
		if have == p {
			return true
		}
	}
	return false
}

// Grant is a time-bounded, permission-scoped delegation of access to some or
// all of the issuer's records. Never mutated after issuance; no invariant is
// re-validated later, so a listed record id may dangle once the record is
// deleted (the id space is never reused, so it cannot alias a new record).
type Grant struct {
	Delegate    identity.Token `json:"delegate"`
	IssuedBy    string         `json:"issued_by"`
	RecordIDs   []uint64       `json:"record_ids,omitempty"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	Permissions PermissionSet  `json:"permissions,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Wildcard reports whether the grant covers all of the issuer's records,
// present and future.
func (g Grant) Wildcard() bool {
	return len(g.RecordIDs) == 0
}

// Covers reports whether the grant's record scope includes id.
func (g Grant) Covers(id uint64) bool {
	if g.Wildcard() {
		return true
	}
	for _, rid := range g.RecordIDs {
		if rid == id {
			return true
		}
	}
	return false
}

// Expired reports whether the grant has expired as of now. An absent
// ExpiresAt never expires; an ExpiresAt at or before now has.
func (g Grant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !g.ExpiresAt.After(now)
}

// Store maps delegate tokens to the grants issued to them.
//
// Thread-safety: none; serialized by the vault lock.
type Store struct {
	byDelegate map[identity.Token][]Grant
}

// NewStore creates an empty grant store.
func NewStore() *Store {
	return &Store{byDelegate: make(map[identity.Token][]Grant)}
}

// Append adds a grant to its delegate's list. No merging, no deduplication:
// two grants with identical parameters coexist and both evaluate.
// Ownership of the listed record ids is the issuing operation's check, made
// against the record store before the grant reaches this store.
func (s *Store) Append(g Grant) {
	s.byDelegate[g.Delegate] = append(s.byDelegate[g.Delegate], g)
}

// ForDelegate returns a copy of the delegate's grant list, in issuance order.
func (s *Store) ForDelegate(delegate identity.Token) []Grant {
	return append([]Grant(nil), s.byDelegate[delegate]...)
}

// RevokeForIssuer removes every grant in the delegate's list issued by the
// given identifier and returns how many were removed. Grants from other
// issuers to the same delegate are untouched.
func (s *Store) RevokeForIssuer(delegate identity.Token, issuer string) int {
	grants := s.byDelegate[delegate]
	kept := grants[:0]
	for _, g := range grants {
		if g.IssuedBy != issuer {
			kept = append(kept, g)
		}
	}
	removed := len(grants) - len(kept)
	if len(kept) == 0 {
		delete(s.byDelegate, delegate)
	} else {
		s.byDelegate[delegate] = kept
	}
	return removed
}

// IssuedBy collects every grant issued by the given identifier, across all
// delegates. This scans every delegate's list: O(total grants). Delegates are
// visited in sorted token order so the result is deterministic; per-delegate
// issuance order is preserved.
func (s *Store) IssuedBy(identifier string) []Grant {
	delegates := make([]identity.Token, 0, len(s.byDelegate))
	for d := range s.byDelegate {
		delegates = append(delegates, d)
	}
	sort.Slice(delegates, func(i, j int) bool { return delegates[i] < delegates[j] })

	var out []Grant
	for _, d := range delegates {
		for _, g := range s.byDelegate[d] {
			if g.IssuedBy == identifier {
				out = append(out, g)
			}
		}
	}
	return out
}

// Total returns the number of grants across all delegates.
func (s *Store) Total() int {
	n := 0
	for _, grants := range s.byDelegate {
		n += len(grants)
	}
	return n
}

// Entry is one (delegate, grants) pair of the store's durable form.
type Entry struct {
	Delegate identity.Token `json:"delegate"`
	Grants   []Grant        `json:"grants,omitempty"`
}

// Export returns the store contents as an ordered pair list, sorted by
// delegate token. Per-delegate issuance order is preserved.
func (s *Store) Export() []Entry {
	entries := make([]Entry, 0, len(s.byDelegate))
	for d, grants := range s.byDelegate {
		entries = append(entries, Entry{
			Delegate: d,
			Grants:   append([]Grant(nil), grants...),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Delegate < entries[j].Delegate
	})
	return entries
}

// Restore replaces the store contents with the given pair list.
func (s *Store) Restore(entries []Entry) {
	s.byDelegate = make(map[identity.Token][]Grant, len(entries))
	for _, e := range entries {
		s.byDelegate[e.Delegate] = append([]Grant(nil), e.Grants...)
	}
}
