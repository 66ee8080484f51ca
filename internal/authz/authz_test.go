package authz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-health/custodia/internal/clock"
	"github.com/custodia-health/custodia/internal/grants"
	"github.com/custodia-health/custodia/internal/identity"
	"github.com/custodia-health/custodia/internal/records"
)

const (
	ownerA = "owner-a"
	ownerB = "owner-b"
)

var delegateBob = identity.Token("bob-device")

type fixture struct {
	clk     *clock.Fixed
	records *records.Store
	grants  *grants.Store
	engine  *Engine
}

func newFixture() *fixture {
	clk := clock.NewFixed(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	rec := records.NewStore(clk)
	gr := grants.NewStore()
	return &fixture{
		clk:     clk,
		records: rec,
		grants:  gr,
		engine:  NewEngine(rec, gr, clk),
	}
}

func (f *fixture) addRecord(owner, title string) records.Record {
	return f.records.Create(owner, records.TypeDiagnosis, []byte(title), "hash-"+title, records.Metadata{Title: title})
}

func (f *fixture) issue(issuer string, ids []uint64, expiresAt *time.Time, perms ...grants.Permission) {
	f.grants.Append(grants.Grant{
		Delegate:    delegateBob,
		IssuedBy:    issuer,
		RecordIDs:   ids,
		ExpiresAt:   expiresAt,
		Permissions: grants.NewPermissionSet(perms...),
		CreatedAt:   f.clk.Now(),
	})
}

func TestHasAccess_NoGrants(t *testing.T) {
	f := newFixture()
	r := f.addRecord(ownerA, "one")

	assert.False(t, f.engine.HasAccess(delegateBob, ownerA, r.ID, grants.PermRead))
}

func TestHasAccess_ScopedGrant(t *testing.T) {
	f := newFixture()
	r1 := f.addRecord(ownerA, "one")
	r2 := f.addRecord(ownerA, "two")
	f.issue(ownerA, []uint64{r1.ID}, nil, grants.PermRead)

	assert.True(t, f.engine.HasAccess(delegateBob, ownerA, r1.ID, grants.PermRead))
	assert.False(t, f.engine.HasAccess(delegateBob, ownerA, r2.ID, grants.PermRead), "uncovered record id")
}

func TestHasAccess_PermissionMustMatch(t *testing.T) {
	f := newFixture()
	r := f.addRecord(ownerA, "one")
	f.issue(ownerA, nil, nil, grants.PermRead)

	assert.True(t, f.engine.HasAccess(delegateBob, ownerA, r.ID, grants.PermRead))
	assert.False(t, f.engine.HasAccess(delegateBob, ownerA, r.ID, grants.PermWrite))
	assert.False(t, f.engine.HasAccess(delegateBob, ownerA, r.ID, grants.PermDelete))
}

func TestHasAccess_IssuerMustMatchOwner(t *testing.T) {
	f := newFixture()
	r := f.addRecord(ownerA, "one")
	f.issue(ownerB, nil, nil, grants.PermRead)

	assert.False(t, f.engine.HasAccess(delegateBob, ownerA, r.ID, grants.PermRead),
		"a grant from B cannot admit access to A's records")
}

func TestHasAccess_ExpiredGrantDeniesEverything(t *testing.T) {
	f := newFixture()
	r := f.addRecord(ownerA, "one")
	expiry := f.clk.Now().Add(time.Hour)
	f.issue(ownerA, nil, &expiry, grants.PermRead, grants.PermWrite, grants.PermDelete)

	assert.True(t, f.engine.HasAccess(delegateBob, ownerA, r.ID, grants.PermRead))

	f.clk.Advance(time.Hour) // exactly at expiresAt: expired
	for _, p := range grants.AllPermissions {
		assert.False(t, f.engine.HasAccess(delegateBob, ownerA, r.ID, p),
			"expired grant must deny %s", p)
	}
}

func TestHasAccess_LaterGrantStillMatches(t *testing.T) {
	f := newFixture()
	r := f.addRecord(ownerA, "one")
	expired := f.clk.Now().Add(-time.Minute)
	f.issue(ownerA, nil, &expired, grants.PermRead) // dead first grant
	f.issue(ownerA, []uint64{r.ID}, nil, grants.PermRead)

	assert.True(t, f.engine.HasAccess(delegateBob, ownerA, r.ID, grants.PermRead),
		"evaluation continues past non-matching grants")
}

func TestHasAccess_WildcardCoversFutureRecords(t *testing.T) {
	f := newFixture()
	f.issue(ownerA, nil, nil, grants.PermRead)

	later := f.addRecord(ownerA, "added-after-issuance")
	assert.True(t, f.engine.HasAccess(delegateBob, ownerA, later.ID, grants.PermRead),
		"wildcard tracks the owner's live index, not an issuance-time snapshot")
}

func TestResolveAccessibleRecords_Empty(t *testing.T) {
	f := newFixture()
	f.addRecord(ownerA, "one")

	got := f.engine.ResolveAccessibleRecords(delegateBob)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestResolveAccessibleRecords_WildcardIsLive(t *testing.T) {
	f := newFixture()
	r1 := f.addRecord(ownerA, "one")
	f.issue(ownerA, nil, nil, grants.PermRead)
	r2 := f.addRecord(ownerA, "two")

	got := f.engine.ResolveAccessibleRecords(delegateBob)
	require.Len(t, got, 2)
	assert.Equal(t, r1.ID, got[0].ID)
	assert.Equal(t, r2.ID, got[1].ID)
}

func TestResolveAccessibleRecords_RequiresReadPermission(t *testing.T) {
	f := newFixture()
	f.addRecord(ownerA, "one")
	f.issue(ownerA, nil, nil, grants.PermWrite, grants.PermDelete)

	assert.Empty(t, f.engine.ResolveAccessibleRecords(delegateBob))
}

func TestResolveAccessibleRecords_SkipsExpired(t *testing.T) {
	f := newFixture()
	f.addRecord(ownerA, "one")
	expiry := f.clk.Now().Add(time.Minute)
	f.issue(ownerA, nil, &expiry, grants.PermRead)

	f.clk.Advance(2 * time.Minute)
	assert.Empty(t, f.engine.ResolveAccessibleRecords(delegateBob))
}

func TestResolveAccessibleRecords_SkipsDeletedExplicitIDs(t *testing.T) {
	f := newFixture()
	r1 := f.addRecord(ownerA, "one")
	r2 := f.addRecord(ownerA, "two")
	f.issue(ownerA, []uint64{r1.ID, r2.ID}, nil, grants.PermRead)

	require.True(t, f.records.Delete(r1.ID))

	got := f.engine.ResolveAccessibleRecords(delegateBob)
	require.Len(t, got, 1)
	assert.Equal(t, r2.ID, got[0].ID, "dangling grant ids resolve to nothing")
}

func TestResolveAccessibleRecords_OverlappingGrantsDuplicate(t *testing.T) {
	f := newFixture()
	r := f.addRecord(ownerA, "one")
	f.issue(ownerA, nil, nil, grants.PermRead)
	f.issue(ownerA, []uint64{r.ID}, nil, grants.PermRead)

	got := f.engine.ResolveAccessibleRecords(delegateBob)
	require.Len(t, got, 2, "overlapping grants yield the record once per grant")
	assert.Equal(t, got[0].ID, got[1].ID)
}

func TestResolveAccessibleRecords_MultipleIssuers(t *testing.T) {
	f := newFixture()
	ra := f.addRecord(ownerA, "a")
	rb := f.addRecord(ownerB, "b")
	f.issue(ownerA, nil, nil, grants.PermRead)
	f.issue(ownerB, []uint64{rb.ID}, nil, grants.PermRead)

	got := f.engine.ResolveAccessibleRecords(delegateBob)
	require.Len(t, got, 2)
	assert.Equal(t, ra.ID, got[0].ID)
	assert.Equal(t, rb.ID, got[1].ID)
}
