package harness

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// scenarioSchema is the CUE schema every scenario document must satisfy.
// It closes the op and outcome vocabularies so a misspelled op or error code
// fails at load time instead of producing a vacuous run.
const scenarioSchema = `
#Op: "create_identity" | "get_my_identity" | "resolve_identity" |
	"upsert_profile" | "get_my_profile" |
	"add_record" | "get_record" | "list_my_records" |
	"update_record" | "delete_record" |
	"grant_access" | "revoke_access" | "list_my_grants" |
	"list_accessible_records" | "advance_clock"

#Outcome: "ok" | "NOT_AUTHENTICATED" | "UNAUTHORIZED" | "NOT_FOUND" |
	"ALREADY_EXISTS" | "INVALID_INPUT" | "INTERNAL_ERROR"

#Step: {
	op:     #Op
	token?: string
	args?: {
		type?: "Diagnosis" | "Prescription" | "LabResult" | "Imaging" |
			"Procedure" | "Vaccination" | "Allergy" | "VitalSigns" | "Other"
		payload?:         string
		hash?:            string
		title?:           string
		provider?:        string
		date_of_service?: string
		record_id?:       int & >0
		name?:            string
		date_of_birth?:   string
		blood_type?:      string
		allergies?: [...string]
		delegate?: string
		record_ids?: [...int & >0]
		permissions?: [..."Read" | "Write" | "Delete"]
		expires_in?: int & >0
		identifier?: string
		seconds?:    int & >0
	}
	expect?: {
		outcome: #Outcome
	}
}

#Assertion: {
	type: "count_identities" | "count_records" | "count_grants" |
		"accessible_count" | "my_records_count" |
		"record_present" | "record_absent"
	token?:     string
	record_id?: int & >0
	want?:      int & >=0
}

#Scenario: {
	name:         string
	description?: string
	setup?: [...#Step]
	flow: [...#Step]
	assertions?: [...#Assertion]
}
`

// ValidateScenario checks a raw scenario document against the schema.
func ValidateScenario(raw map[string]any) error {
	ctx := cuecontext.New()

	compiled := ctx.CompileString(scenarioSchema)
	if err := compiled.Err(); err != nil {
		return fmt.Errorf("compile scenario schema: %w", err)
	}
	// Definitions are closed, so unknown fields anywhere in the document are
	// rejected, not silently ignored.
	schema := compiled.LookupPath(cue.ParsePath("#Scenario"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("resolve scenario schema: %w", err)
	}

	doc := ctx.Encode(raw)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("encode scenario: %w", err)
	}

	unified := schema.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema violation: %w", err)
	}
	return nil
}
