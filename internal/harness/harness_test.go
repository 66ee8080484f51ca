package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarioGoldens runs every shipped scenario and compares its trace
// against the checked-in golden file.
func TestScenarioGoldens(t *testing.T) {
	scenarios, err := LoadDir("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			RunWithGolden(t, s)
		})
	}
}

func TestRunReportsExpectationMismatch(t *testing.T) {
	s := &Scenario{
		Name: "mismatch",
		Flow: []Step{
			{Op: "create_identity", Token: "alice-device",
				Expect: &Expect{Outcome: "ALREADY_EXISTS"}},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected ALREADY_EXISTS, got ok")
}

func TestRunAbortsOnSetupFailure(t *testing.T) {
	s := &Scenario{
		Name: "broken-setup",
		Setup: []Step{
			// Anonymous caller cannot create an identity.
			{Op: "create_identity"},
		},
		Flow: []Step{
			{Op: "list_accessible_records", Token: "bob-device"},
		},
	}

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup step 0")
}

func TestRunEvaluatesAssertions(t *testing.T) {
	s := &Scenario{
		Name: "assert-counts",
		Flow: []Step{
			{Op: "create_identity", Token: "alice-device"},
			{Op: "create_identity", Token: "bob-device"},
		},
		Assertions: []Assertion{
			{Type: AssertCountIdentities, Want: 2},
			{Type: AssertCountRecords, Want: 0},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunReportsAssertionFailure(t *testing.T) {
	s := &Scenario{
		Name: "assert-fail",
		Flow: []Step{
			{Op: "create_identity", Token: "alice-device"},
		},
		Assertions: []Assertion{
			{Type: AssertCountIdentities, Want: 5},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "count_identities")
}

func TestRunClockAdvanceExpiresGrant(t *testing.T) {
	s := &Scenario{
		Name: "clock-expiry",
		Setup: []Step{
			{Op: "create_identity", Token: "alice-device"},
			{Op: "add_record", Token: "alice-device", Args: StepArgs{
				Type: "Other", Payload: "note", Hash: "sha256:01",
				Title: "Note", Provider: "Clinic", DateOfService: "2025-03-01",
			}},
			{Op: "grant_access", Token: "alice-device", Args: StepArgs{
				Delegate: "bob-device", Permissions: []string{"Read"}, ExpiresIn: 60,
			}},
		},
		Flow: []Step{
			{Op: "get_record", Token: "bob-device", Args: StepArgs{RecordID: 1},
				Expect: &Expect{Outcome: "ok"}},
			{Op: "advance_clock", Args: StepArgs{Seconds: 60}},
			{Op: "get_record", Token: "bob-device", Args: StepArgs{RecordID: 1},
				Expect: &Expect{Outcome: "UNAUTHORIZED"}},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRunRecordAbsentDistinguishesUnauthorized(t *testing.T) {
	// record_absent must fail while the record still exists, even when the
	// asserting caller cannot read it.
	s := &Scenario{
		Name: "absent-vs-denied",
		Setup: []Step{
			{Op: "create_identity", Token: "alice-device"},
			{Op: "add_record", Token: "alice-device", Args: StepArgs{
				Type: "Other", Payload: "note", Hash: "sha256:02",
				Title: "Note", Provider: "Clinic", DateOfService: "2025-03-01",
			}},
		},
		Assertions: []Assertion{
			{Type: AssertRecordAbsent, Token: "bob-device", RecordID: 1},
		},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "still exists")
}
