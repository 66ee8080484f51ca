package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance scenario: setup, a flow with expected
// outcomes, and assertions over the final state.
type Scenario struct {
	// Name uniquely identifies this scenario; golden files are keyed by it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty"`

	// Setup contains steps that establish initial state. Each must succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow contains the main steps, each with an optional expected outcome.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final state after the flow completes.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one operation against the vault.
type Step struct {
	// Op names the operation, e.g. "add_record" or "grant_access".
	Op string `yaml:"op"`

	// Token is the acting caller. Empty means the anonymous principal.
	Token string `yaml:"token,omitempty"`

	// Args carries the operation's inputs; which fields apply depends on Op.
	Args StepArgs `yaml:"args,omitempty"`

	// Expect is the expected outcome: "ok" or an error code. Nil means the
	// step must succeed (setup semantics).
	Expect *Expect `yaml:"expect,omitempty"`
}

// StepArgs is the union of inputs across all operations.
type StepArgs struct {
	// Record operations.
	Type          string `yaml:"type,omitempty"`
	Payload       string `yaml:"payload,omitempty"`
	Hash          string `yaml:"hash,omitempty"`
	Title         string `yaml:"title,omitempty"`
	Provider      string `yaml:"provider,omitempty"`
	DateOfService string `yaml:"date_of_service,omitempty"`
	RecordID      uint64 `yaml:"record_id,omitempty"`

	// Profile operations.
	Name        string   `yaml:"name,omitempty"`
	DateOfBirth string   `yaml:"date_of_birth,omitempty"`
	BloodType   string   `yaml:"blood_type,omitempty"`
	Allergies   []string `yaml:"allergies,omitempty"`

	// Grant operations.
	Delegate    string   `yaml:"delegate,omitempty"`
	RecordIDs   []uint64 `yaml:"record_ids,omitempty"`
	Permissions []string `yaml:"permissions,omitempty"`
	ExpiresIn   int      `yaml:"expires_in,omitempty"` // seconds from now

	// Identity resolution.
	Identifier string `yaml:"identifier,omitempty"`

	// Clock control.
	Seconds int `yaml:"seconds,omitempty"`
}

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Outcome is "ok" or one of the error codes
	// (NOT_AUTHENTICATED, UNAUTHORIZED, NOT_FOUND, ALREADY_EXISTS).
	Outcome string `yaml:"outcome"`
}

// Assertion validates the final state.
// Supported types: count_identities, count_records, count_grants,
// accessible_count, my_records_count, record_present, record_absent.
type Assertion struct {
	Type     string `yaml:"type"`
	Token    string `yaml:"token,omitempty"`
	RecordID uint64 `yaml:"record_id,omitempty"`
	Want     int    `yaml:"want,omitempty"`
}

// LoadScenario reads, schema-validates, and decodes one scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	// Validate the raw document before typed decoding so unknown ops and
	// outcome codes are rejected rather than silently zeroed.
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := ValidateScenario(raw); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode scenario %s: %w", path, err)
	}
	return &s, nil
}

// LoadDir loads every *.yaml scenario in dir, sorted by filename.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("scan scenarios: %w", err)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}
