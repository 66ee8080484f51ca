package harness

import (
	"fmt"

	"github.com/custodia-health/custodia/internal/identity"
	"github.com/custodia-health/custodia/internal/vault"
)

// Supported assertion types.
const (
	AssertCountIdentities = "count_identities"
	AssertCountRecords    = "count_records"
	AssertCountGrants     = "count_grants"
	AssertAccessibleCount = "accessible_count"
	AssertMyRecordsCount  = "my_records_count"
	AssertRecordPresent   = "record_present"
	AssertRecordAbsent    = "record_absent"
)

// EvaluateAssertions checks each assertion against the vault's final state
// and returns one message per failed assertion.
func EvaluateAssertions(v *vault.Vault, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluateAssertion(v, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return failures
}

func evaluateAssertion(v *vault.Vault, a Assertion) error {
	token := identity.NormalizeToken(a.Token)

	switch a.Type {
	case AssertCountIdentities:
		return wantCount(a.Want, v.CountIdentities())

	case AssertCountRecords:
		return wantCount(a.Want, v.CountRecords())

	case AssertCountGrants:
		return wantCount(a.Want, v.CountGrants())

	case AssertAccessibleCount:
		return wantCount(a.Want, len(v.ListAccessibleRecords(token)))

	case AssertMyRecordsCount:
		rs, err := v.ListMyRecords(token)
		if err != nil {
			return fmt.Errorf("list records: %w", err)
		}
		return wantCount(a.Want, len(rs))

	case AssertRecordPresent:
		if _, err := v.GetRecord(token, a.RecordID); err != nil {
			return fmt.Errorf("record %d not readable: %w", a.RecordID, err)
		}
		return nil

	case AssertRecordAbsent:
		// Absent means gone from the store, not merely unreadable by this
		// caller. An UNAUTHORIZED result proves the record still exists.
		_, err := v.GetRecord(token, a.RecordID)
		if err == nil {
			return fmt.Errorf("record %d still readable", a.RecordID)
		}
		if !vault.IsNotFound(err) {
			return fmt.Errorf("record %d still exists: %w", a.RecordID, err)
		}
		return nil

	default:
		// Unreachable for schema-validated scenarios.
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func wantCount(want, got int) error {
	if got != want {
		return fmt.Errorf("want %d, got %d", want, got)
	}
	return nil
}
