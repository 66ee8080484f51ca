package vault_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-health/custodia/internal/grants"
	"github.com/custodia-health/custodia/internal/identity"
	"github.com/custodia-health/custodia/internal/records"
	"github.com/custodia-health/custodia/internal/testutil"
	"github.com/custodia-health/custodia/internal/vault"
)

var (
	tokenAlice = identity.Token("alice-device")
	tokenBob   = identity.Token("bob-device")
	tokenCarol = identity.Token("carol-device")
)

func addRecord(t *testing.T, v *vault.Vault, token identity.Token, title string) records.Record {
	t.Helper()
	r, err := v.AddRecord(token, records.TypeDiagnosis, []byte(title), "hash-"+title, records.Metadata{Title: title})
	require.NoError(t, err)
	return r
}

func TestCreateIdentity(t *testing.T) {
	v, _ := testutil.NewVault()

	id, err := v.CreateIdentity(tokenAlice)
	require.NoError(t, err)
	assert.Equal(t, identity.Scheme, id.Scheme)
	assert.Equal(t, identity.DeriveIdentifier(tokenAlice), id.Identifier)
}

func TestCreateIdentity_Anonymous(t *testing.T) {
	v, _ := testutil.NewVault()

	_, err := v.CreateIdentity(identity.Anonymous)
	assert.True(t, vault.IsNotAuthenticated(err))
	assert.Equal(t, 0, v.CountIdentities())
}

func TestCreateIdentity_DuplicateUnchanged(t *testing.T) {
	v, clk := testutil.NewVault()

	first, err := v.CreateIdentity(tokenAlice)
	require.NoError(t, err)

	clk.Advance(time.Hour)
	_, err = v.CreateIdentity(tokenAlice)
	assert.True(t, vault.IsAlreadyExists(err))

	got, err := v.GetMyIdentity(tokenAlice)
	require.NoError(t, err)
	assert.Equal(t, first, got, "failed duplicate create must leave the identity unchanged")
}

func TestGetMyIdentity_NotFound(t *testing.T) {
	v, _ := testutil.NewVault()

	_, err := v.GetMyIdentity(tokenAlice)
	assert.True(t, vault.IsNotFound(err))

	_, err = v.GetMyIdentity(identity.Anonymous)
	assert.True(t, vault.IsNotFound(err), "anonymous caller has no identity")
}

func TestResolveIdentity(t *testing.T) {
	v, _ := testutil.NewVault()
	id, err := v.CreateIdentity(tokenAlice)
	require.NoError(t, err)

	got, err := v.ResolveIdentity(id.Identifier)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = v.ResolveIdentity("no-such-identifier")
	assert.True(t, vault.IsNotFound(err))
}

func TestUpsertProfile_CreatesIdentityImplicitly(t *testing.T) {
	v, _ := testutil.NewVault()

	p, err := v.UpsertProfile(tokenAlice, identity.ProfileFields{Name: "Alice", DateOfBirth: "1987-04-12"})
	require.NoError(t, err)
	assert.Equal(t, identity.DeriveIdentifier(tokenAlice), p.Identity.Identifier)
	assert.Equal(t, 1, v.CountIdentities())

	// The implicitly created identity now blocks explicit creation.
	_, err = v.CreateIdentity(tokenAlice)
	assert.True(t, vault.IsAlreadyExists(err))
}

func TestUpsertProfile_Anonymous(t *testing.T) {
	v, _ := testutil.NewVault()

	_, err := v.UpsertProfile(identity.Anonymous, identity.ProfileFields{Name: "ghost"})
	assert.True(t, vault.IsNotAuthenticated(err))
}

func TestGetMyProfile(t *testing.T) {
	v, _ := testutil.NewVault()

	_, err := v.GetMyProfile(tokenAlice)
	assert.True(t, vault.IsNotFound(err), "no identity yet")

	_, err = v.CreateIdentity(tokenAlice)
	require.NoError(t, err)
	_, err = v.GetMyProfile(tokenAlice)
	assert.True(t, vault.IsNotFound(err), "identity exists but no profile yet")

	_, err = v.UpsertProfile(tokenAlice, identity.ProfileFields{Name: "Alice"})
	require.NoError(t, err)
	p, err := v.GetMyProfile(tokenAlice)
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.Name)
}

func TestAddRecord_Anonymous(t *testing.T) {
	v, _ := testutil.NewVault()

	_, err := v.AddRecord(identity.Anonymous, records.TypeOther, nil, "h", records.Metadata{})
	assert.True(t, vault.IsNotAuthenticated(err))
	assert.Equal(t, 0, v.CountRecords())
}

func TestAddRecord_OwnerAndListing(t *testing.T) {
	v, _ := testutil.NewVault()

	r1 := addRecord(t, v, tokenAlice, "one")
	r2 := addRecord(t, v, tokenAlice, "two")
	assert.Equal(t, uint64(1), r1.ID)
	assert.Equal(t, uint64(2), r2.ID)

	listed, err := v.ListMyRecords(tokenAlice)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, r1.ID, listed[0].ID)
	assert.Equal(t, r2.ID, listed[1].ID)
}

func TestListMyRecords_NoIdentity(t *testing.T) {
	v, _ := testutil.NewVault()

	_, err := v.ListMyRecords(tokenAlice)
	assert.True(t, vault.IsNotFound(err))
}

func TestGetRecord_Owner(t *testing.T) {
	v, _ := testutil.NewVault()
	r := addRecord(t, v, tokenAlice, "one")

	got, err := v.GetRecord(tokenAlice, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
}

func TestGetRecord_NotFound(t *testing.T) {
	v, _ := testutil.NewVault()

	_, err := v.GetRecord(tokenAlice, 42)
	assert.True(t, vault.IsNotFound(err))
}

func TestGetRecord_StrangerUnauthorized(t *testing.T) {
	v, _ := testutil.NewVault()
	r := addRecord(t, v, tokenAlice, "one")

	_, err := v.GetRecord(tokenBob, r.ID)
	assert.True(t, vault.IsUnauthorized(err))

	_, err = v.GetRecord(identity.Anonymous, r.ID)
	assert.True(t, vault.IsUnauthorized(err), "anonymous holds no grants")
}

func TestGetRecord_ScopedGrant(t *testing.T) {
	v, _ := testutil.NewVault()
	r1 := addRecord(t, v, tokenAlice, "one")
	r2 := addRecord(t, v, tokenAlice, "two")

	_, err := v.GrantAccess(tokenAlice, tokenBob, []uint64{r1.ID}, []grants.Permission{grants.PermRead}, nil)
	require.NoError(t, err)

	got, err := v.GetRecord(tokenBob, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, r1.ID, got.ID)

	_, err = v.GetRecord(tokenBob, r2.ID)
	assert.True(t, vault.IsUnauthorized(err), "grant covers only record 1")
}

func TestUpdateRecord_OwnerPreservesProvenance(t *testing.T) {
	v, clk := testutil.NewVault()
	r := addRecord(t, v, tokenAlice, "one")

	clk.Advance(time.Minute)
	updated, err := v.UpdateRecord(tokenAlice, r.ID, []byte("v2"), "h2", records.Metadata{Title: "revised"})
	require.NoError(t, err)
	assert.Equal(t, r.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(r.UpdatedAt))
	assert.Equal(t, r.OwnerIdentifier, updated.OwnerIdentifier)
}

func TestUpdateRecord_DelegateNeedsWrite(t *testing.T) {
	v, _ := testutil.NewVault()
	r := addRecord(t, v, tokenAlice, "one")

	_, err := v.GrantAccess(tokenAlice, tokenBob, nil, []grants.Permission{grants.PermRead}, nil)
	require.NoError(t, err)

	_, err = v.UpdateRecord(tokenBob, r.ID, []byte("v2"), "h2", records.Metadata{})
	assert.True(t, vault.IsUnauthorized(err), "Read grant does not admit writes")

	_, err = v.GrantAccess(tokenAlice, tokenBob, nil, []grants.Permission{grants.PermWrite}, nil)
	require.NoError(t, err)
	_, err = v.UpdateRecord(tokenBob, r.ID, []byte("v2"), "h2", records.Metadata{})
	assert.NoError(t, err)
}

func TestUpdateRecord_Failures(t *testing.T) {
	v, _ := testutil.NewVault()

	_, err := v.UpdateRecord(identity.Anonymous, 1, nil, "", records.Metadata{})
	assert.True(t, vault.IsNotAuthenticated(err))

	_, err = v.UpdateRecord(tokenAlice, 42, nil, "", records.Metadata{})
	assert.True(t, vault.IsNotFound(err))
}

func TestDeleteRecord_RemovesFromMapAndIndex(t *testing.T) {
	v, _ := testutil.NewVault()
	r1 := addRecord(t, v, tokenAlice, "one")
	r2 := addRecord(t, v, tokenAlice, "two")

	require.NoError(t, v.DeleteRecord(tokenAlice, r1.ID))

	_, err := v.GetRecord(tokenAlice, r1.ID)
	assert.True(t, vault.IsNotFound(err))

	listed, err := v.ListMyRecords(tokenAlice)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, r2.ID, listed[0].ID)
}

func TestDeleteRecord_DelegateNeedsDelete(t *testing.T) {
	v, _ := testutil.NewVault()
	r := addRecord(t, v, tokenAlice, "one")

	_, err := v.GrantAccess(tokenAlice, tokenBob, nil,
		[]grants.Permission{grants.PermRead, grants.PermWrite}, nil)
	require.NoError(t, err)

	err = v.DeleteRecord(tokenBob, r.ID)
	assert.True(t, vault.IsUnauthorized(err))

	_, err = v.GrantAccess(tokenAlice, tokenBob, nil, []grants.Permission{grants.PermDelete}, nil)
	require.NoError(t, err)
	assert.NoError(t, v.DeleteRecord(tokenBob, r.ID))
	assert.Equal(t, 0, v.CountRecords())
}

func TestGrantAccess_Failures(t *testing.T) {
	v, _ := testutil.NewVault()

	_, err := v.GrantAccess(identity.Anonymous, tokenBob, nil, []grants.Permission{grants.PermRead}, nil)
	assert.True(t, vault.IsNotAuthenticated(err))

	_, err = v.GrantAccess(tokenAlice, tokenBob, nil, []grants.Permission{grants.PermRead}, nil)
	assert.True(t, vault.IsNotFound(err), "issuer must already have an identity")

	_, err = v.CreateIdentity(tokenAlice)
	require.NoError(t, err)
	_, err = v.GrantAccess(tokenAlice, tokenBob, []uint64{7}, []grants.Permission{grants.PermRead}, nil)
	assert.True(t, vault.IsUnauthorized(err), "listed ids must resolve to issuer-owned records")
}

func TestGrantAccess_RejectsForeignRecordIDs(t *testing.T) {
	v, _ := testutil.NewVault()
	addRecord(t, v, tokenAlice, "alice-rec")
	rb := addRecord(t, v, tokenBob, "bob-rec")

	_, err := v.GrantAccess(tokenAlice, tokenCarol, []uint64{rb.ID}, []grants.Permission{grants.PermRead}, nil)
	assert.True(t, vault.IsUnauthorized(err))
	assert.Equal(t, 0, v.CountGrants(), "failed issuance must not store a grant")
}

func TestGrantAccess_NeverMerges(t *testing.T) {
	v, _ := testutil.NewVault()
	addRecord(t, v, tokenAlice, "one")

	for i := 0; i < 2; i++ {
		_, err := v.GrantAccess(tokenAlice, tokenBob, nil, []grants.Permission{grants.PermRead}, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, v.CountGrants())
}

func TestWildcardGrant_CoversFutureRecords(t *testing.T) {
	v, _ := testutil.NewVault()
	addRecord(t, v, tokenAlice, "before")

	_, err := v.GrantAccess(tokenAlice, tokenBob, nil, []grants.Permission{grants.PermRead}, nil)
	require.NoError(t, err)

	later := addRecord(t, v, tokenAlice, "after")

	accessible := v.ListAccessibleRecords(tokenBob)
	require.Len(t, accessible, 2, "wildcard covers records added after issuance")

	got, err := v.GetRecord(tokenBob, later.ID)
	require.NoError(t, err)
	assert.Equal(t, later.ID, got.ID)
}

func TestExpiredGrant_DeniesEverything(t *testing.T) {
	v, clk := testutil.NewVault()
	r := addRecord(t, v, tokenAlice, "one")

	expiry := clk.Now().Add(time.Hour)
	_, err := v.GrantAccess(tokenAlice, tokenBob, nil,
		[]grants.Permission{grants.PermRead, grants.PermWrite, grants.PermDelete}, &expiry)
	require.NoError(t, err)

	_, err = v.GetRecord(tokenBob, r.ID)
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)

	_, err = v.GetRecord(tokenBob, r.ID)
	assert.True(t, vault.IsUnauthorized(err))
	_, err = v.UpdateRecord(tokenBob, r.ID, nil, "", records.Metadata{})
	assert.True(t, vault.IsUnauthorized(err))
	assert.True(t, vault.IsUnauthorized(v.DeleteRecord(tokenBob, r.ID)))
	assert.Empty(t, v.ListAccessibleRecords(tokenBob))
}

func TestRevokeAccess_ScopedToIssuer(t *testing.T) {
	v, _ := testutil.NewVault()
	ra := addRecord(t, v, tokenAlice, "alice-rec")
	rb := addRecord(t, v, tokenBob, "bob-rec")

	_, err := v.GrantAccess(tokenAlice, tokenCarol, nil, []grants.Permission{grants.PermRead}, nil)
	require.NoError(t, err)
	_, err = v.GrantAccess(tokenBob, tokenCarol, nil, []grants.Permission{grants.PermRead}, nil)
	require.NoError(t, err)

	require.Len(t, v.ListAccessibleRecords(tokenCarol), 2)

	require.NoError(t, v.RevokeAccess(tokenAlice, tokenCarol))

	accessible := v.ListAccessibleRecords(tokenCarol)
	require.Len(t, accessible, 1, "only Alice's grant is removed")
	assert.Equal(t, rb.ID, accessible[0].ID)

	_, err = v.GetRecord(tokenCarol, ra.ID)
	assert.True(t, vault.IsUnauthorized(err))
}

func TestRevokeThenEmpty(t *testing.T) {
	v, _ := testutil.NewVault()
	r := addRecord(t, v, tokenAlice, "one")

	_, err := v.GrantAccess(tokenAlice, tokenBob, nil, []grants.Permission{grants.PermRead}, nil)
	require.NoError(t, err)

	accessible := v.ListAccessibleRecords(tokenBob)
	require.Len(t, accessible, 1)
	assert.Equal(t, r.ID, accessible[0].ID)

	require.NoError(t, v.RevokeAccess(tokenAlice, tokenBob))
	assert.Empty(t, v.ListAccessibleRecords(tokenBob))
}

func TestRevokeAccess_Failures(t *testing.T) {
	v, _ := testutil.NewVault()

	err := v.RevokeAccess(identity.Anonymous, tokenBob)
	assert.True(t, vault.IsNotAuthenticated(err))

	err = v.RevokeAccess(tokenAlice, tokenBob)
	assert.True(t, vault.IsNotFound(err))
}

func TestListMyGrants(t *testing.T) {
	v, _ := testutil.NewVault()

	_, err := v.ListMyGrants(tokenAlice)
	assert.True(t, vault.IsNotFound(err))

	addRecord(t, v, tokenAlice, "one")
	_, err = v.GrantAccess(tokenAlice, tokenBob, nil, []grants.Permission{grants.PermRead}, nil)
	require.NoError(t, err)
	_, err = v.GrantAccess(tokenAlice, tokenCarol, nil, []grants.Permission{grants.PermWrite}, nil)
	require.NoError(t, err)

	issued, err := v.ListMyGrants(tokenAlice)
	require.NoError(t, err)
	assert.Len(t, issued, 2)
}

func TestListAccessibleRecords_OverlapDuplicates(t *testing.T) {
	v, _ := testutil.NewVault()
	r := addRecord(t, v, tokenAlice, "one")

	_, err := v.GrantAccess(tokenAlice, tokenBob, nil, []grants.Permission{grants.PermRead}, nil)
	require.NoError(t, err)
	_, err = v.GrantAccess(tokenAlice, tokenBob, []uint64{r.ID}, []grants.Permission{grants.PermRead}, nil)
	require.NoError(t, err)

	accessible := v.ListAccessibleRecords(tokenBob)
	assert.Len(t, accessible, 2, "overlapping grants are not deduplicated")
}

func TestCounts(t *testing.T) {
	v, _ := testutil.NewVault()
	assert.Equal(t, 0, v.CountIdentities())
	assert.Equal(t, 0, v.CountRecords())

	addRecord(t, v, tokenAlice, "one")
	addRecord(t, v, tokenBob, "two")
	assert.Equal(t, 2, v.CountIdentities())
	assert.Equal(t, 2, v.CountRecords())
}

func TestSnapshotRestore_PreservesBehavior(t *testing.T) {
	v, _ := testutil.NewVault()
	r1 := addRecord(t, v, tokenAlice, "one")
	addRecord(t, v, tokenAlice, "two")
	_, err := v.UpsertProfile(tokenAlice, identity.ProfileFields{Name: "Alice", BloodType: "O+"})
	require.NoError(t, err)
	_, err = v.GrantAccess(tokenAlice, tokenBob, []uint64{r1.ID}, []grants.Permission{grants.PermRead}, nil)
	require.NoError(t, err)

	snap := v.Snapshot()

	restored, _ := testutil.NewVault()
	restored.Restore(snap)

	assert.Equal(t, v.CountIdentities(), restored.CountIdentities())
	assert.Equal(t, v.CountRecords(), restored.CountRecords())
	assert.Equal(t, v.CountGrants(), restored.CountGrants())

	p, err := restored.GetMyProfile(tokenAlice)
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.Name)

	got, err := restored.GetRecord(tokenBob, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, r1.ID, got.ID)

	// Id allocation resumes past the restored maximum.
	r3 := addRecord(t, restored, tokenAlice, "three")
	assert.Equal(t, uint64(3), r3.ID)
}

func TestRestore_EmptySnapshotIsColdStart(t *testing.T) {
	v, _ := testutil.NewVault()
	addRecord(t, v, tokenAlice, "one")

	fresh, _ := testutil.NewVault()
	v.Restore(fresh.Snapshot())

	assert.Equal(t, 0, v.CountIdentities())
	assert.Equal(t, 0, v.CountRecords())
}

func TestErrorCodes(t *testing.T) {
	v, _ := testutil.NewVault()

	_, err := v.GetMyIdentity(tokenAlice)
	assert.Equal(t, vault.CodeNotFound, vault.CodeOf(err))
	assert.Equal(t, vault.ErrorCode(""), vault.CodeOf(nil))
	assert.Contains(t, err.Error(), "NOT_FOUND")
}

func TestCheckAccess(t *testing.T) {
	v, _ := testutil.NewVault()
	r := addRecord(t, v, tokenAlice, "r1")

	_, err := v.GrantAccess(tokenAlice, tokenBob, nil, []grants.Permission{grants.PermRead}, nil)
	require.NoError(t, err)

	owner, err := v.CheckAccess(tokenAlice, r.ID, grants.PermDelete)
	require.NoError(t, err)
	assert.True(t, owner, "owner is always allowed")

	read, err := v.CheckAccess(tokenBob, r.ID, grants.PermRead)
	require.NoError(t, err)
	assert.True(t, read)

	write, err := v.CheckAccess(tokenBob, r.ID, grants.PermWrite)
	require.NoError(t, err)
	assert.False(t, write, "grant admits Read only")

	_, err = v.CheckAccess(tokenBob, 99, grants.PermRead)
	assert.True(t, vault.IsNotFound(err))
}
