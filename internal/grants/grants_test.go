package grants

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-health/custodia/internal/identity"
)

const (
	issuerA = "issuer-a"
	issuerB = "issuer-b"
)

var (
	delegateBob = identity.Token("bob-device")
	delegateEve = identity.Token("eve-device")
)

func grantAt(delegate identity.Token, issuer string, ids []uint64, perms ...Permission) Grant {
	return Grant{
		Delegate:    delegate,
		IssuedBy:    issuer,
		RecordIDs:   ids,
		Permissions: NewPermissionSet(perms...),
		CreatedAt:   time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

func TestParsePermission(t *testing.T) {
	p, ok := ParsePermission("Write")
	require.True(t, ok)
	assert.Equal(t, PermWrite, p)

	_, ok = ParsePermission("write")
	assert.False(t, ok, "permission parsing is case-sensitive")
}

func TestNewPermissionSet_Normalizes(t *testing.T) {
	set := NewPermissionSet(PermWrite, PermRead, PermWrite, PermRead)

	assert.Equal(t, PermissionSet{PermRead, PermWrite}, set, "duplicates dropped, order canonical")
	assert.True(t, set.Contains(PermRead))
	assert.True(t, set.Contains(PermWrite))
	assert.False(t, set.Contains(PermDelete))
}

func TestGrant_Wildcard(t *testing.T) {
	assert.True(t, grantAt(delegateBob, issuerA, nil, PermRead).Wildcard())
	assert.False(t, grantAt(delegateBob, issuerA, []uint64{1}, PermRead).Wildcard())
}

func TestGrant_Covers(t *testing.T) {
	scoped := grantAt(delegateBob, issuerA, []uint64{1, 3}, PermRead)
	assert.True(t, scoped.Covers(1))
	assert.True(t, scoped.Covers(3))
	assert.False(t, scoped.Covers(2))

	wildcard := grantAt(delegateBob, issuerA, nil, PermRead)
	assert.True(t, wildcard.Covers(99), "wildcard covers any id")
}

func TestGrant_Expired(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	open := grantAt(delegateBob, issuerA, nil, PermRead)
	assert.False(t, open.Expired(now), "absent expiresAt never expires")

	at := now
	exact := grantAt(delegateBob, issuerA, nil, PermRead)
	exact.ExpiresAt = &at
	assert.True(t, exact.Expired(now), "expiresAt <= now counts as expired")

	future := now.Add(time.Hour)
	live := grantAt(delegateBob, issuerA, nil, PermRead)
	live.ExpiresAt = &future
	assert.False(t, live.Expired(now))
	assert.True(t, live.Expired(now.Add(2*time.Hour)))
}

func TestStore_AppendDoesNotMerge(t *testing.T) {
	s := NewStore()
	g := grantAt(delegateBob, issuerA, []uint64{1}, PermRead)

	s.Append(g)
	s.Append(g)

	got := s.ForDelegate(delegateBob)
	assert.Len(t, got, 2, "identical grants coexist; issuance never merges")
	assert.Equal(t, 2, s.Total())
}

func TestStore_ForDelegate_CopyIsolated(t *testing.T) {
	s := NewStore()
	s.Append(grantAt(delegateBob, issuerA, []uint64{1}, PermRead))

	got := s.ForDelegate(delegateBob)
	got[0].IssuedBy = "tampered"

	assert.Equal(t, issuerA, s.ForDelegate(delegateBob)[0].IssuedBy)
}

func TestStore_RevokeForIssuer_ScopedToIssuer(t *testing.T) {
	s := NewStore()
	s.Append(grantAt(delegateBob, issuerA, nil, PermRead))
	s.Append(grantAt(delegateBob, issuerB, nil, PermRead))
	s.Append(grantAt(delegateBob, issuerA, []uint64{1}, PermWrite))

	removed := s.RevokeForIssuer(delegateBob, issuerA)
	assert.Equal(t, 2, removed)

	remaining := s.ForDelegate(delegateBob)
	require.Len(t, remaining, 1)
	assert.Equal(t, issuerB, remaining[0].IssuedBy, "grants from other issuers survive")
}

func TestStore_RevokeForIssuer_NoMatches(t *testing.T) {
	s := NewStore()
	s.Append(grantAt(delegateBob, issuerB, nil, PermRead))

	assert.Equal(t, 0, s.RevokeForIssuer(delegateBob, issuerA))
	assert.Equal(t, 0, s.RevokeForIssuer(delegateEve, issuerA), "unknown delegate revokes nothing")
	assert.Len(t, s.ForDelegate(delegateBob), 1)
}

func TestStore_IssuedBy_ScansAllDelegates(t *testing.T) {
	s := NewStore()
	s.Append(grantAt(delegateEve, issuerA, nil, PermRead))
	s.Append(grantAt(delegateBob, issuerA, []uint64{1}, PermWrite))
	s.Append(grantAt(delegateBob, issuerB, nil, PermRead))

	issued := s.IssuedBy(issuerA)
	require.Len(t, issued, 2)
	// Deterministic order: delegates sorted by token.
	assert.Equal(t, delegateBob, issued[0].Delegate)
	assert.Equal(t, delegateEve, issued[1].Delegate)
}

func TestStore_ExportRestore(t *testing.T) {
	s := NewStore()
	s.Append(grantAt(delegateEve, issuerA, nil, PermRead))
	s.Append(grantAt(delegateBob, issuerA, []uint64{2}, PermRead, PermDelete))

	entries := s.Export()
	require.Len(t, entries, 2)
	assert.Equal(t, delegateBob, entries[0].Delegate, "export is sorted by delegate token")

	fresh := NewStore()
	fresh.Restore(entries)
	assert.Equal(t, 2, fresh.Total())
	assert.Equal(t, s.ForDelegate(delegateBob), fresh.ForDelegate(delegateBob))
}
