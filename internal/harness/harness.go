package harness

import (
	"fmt"
	"time"

	"github.com/custodia-health/custodia/internal/clock"
	"github.com/custodia-health/custodia/internal/grants"
	"github.com/custodia-health/custodia/internal/identity"
	"github.com/custodia-health/custodia/internal/records"
	"github.com/custodia-health/custodia/internal/testutil"
	"github.com/custodia-health/custodia/internal/vault"
)

// outcomeOK is the trace outcome for a step that returned no error.
const outcomeOK = "ok"

// Harness executes one scenario against a fresh vault.
type Harness struct {
	vault *vault.Vault
	clk   *clock.Fixed
}

// Run executes a scenario and returns its result.
//
// Each run gets a fresh vault with a deterministic clock pinned at the
// testutil epoch, so the same scenario always produces the same trace.
// Setup steps must all succeed; a failing setup step aborts the run with an
// error rather than a failing result, since a broken setup proves nothing
// about the flow under test.
func Run(scenario *Scenario) (*Result, error) {
	v, clk := testutil.NewVault()
	h := &Harness{vault: v, clk: clk}

	result := NewResult()

	for i, step := range scenario.Setup {
		outcome, detail := h.executeStep(step)
		result.Trace = append(result.Trace, TraceEvent{
			Op:      step.Op,
			Token:   step.Token,
			Outcome: outcome,
			Detail:  detail,
		})
		if outcome != outcomeOK {
			return nil, fmt.Errorf("setup step %d (%s): got %s", i, step.Op, outcome)
		}
	}

	for i, step := range scenario.Flow {
		outcome, detail := h.executeStep(step)
		result.Trace = append(result.Trace, TraceEvent{
			Op:      step.Op,
			Token:   step.Token,
			Outcome: outcome,
			Detail:  detail,
		})

		want := outcomeOK
		if step.Expect != nil {
			want = step.Expect.Outcome
		}
		if outcome != want {
			result.AddError(fmt.Sprintf(
				"flow step %d (%s): expected %s, got %s", i, step.Op, want, outcome))
		}
	}

	for _, msg := range EvaluateAssertions(h.vault, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// executeStep dispatches one step to the vault and reduces the response to a
// trace outcome. The outcome is "ok" or the error code; detail carries the
// data a reader needs to follow the trace (allocated ids, list sizes).
func (h *Harness) executeStep(step Step) (outcome, detail string) {
	token := identity.NormalizeToken(step.Token)
	args := step.Args

	switch step.Op {
	case "create_identity":
		id, err := h.vault.CreateIdentity(token)
		if err != nil {
			return string(vault.CodeOf(err)), ""
		}
		return outcomeOK, "identifier=" + id.Identifier

	case "get_my_identity":
		id, err := h.vault.GetMyIdentity(token)
		if err != nil {
			return string(vault.CodeOf(err)), ""
		}
		return outcomeOK, "identifier=" + id.Identifier

	case "resolve_identity":
		id, err := h.vault.ResolveIdentity(args.Identifier)
		if err != nil {
			return string(vault.CodeOf(err)), ""
		}
		return outcomeOK, "identifier=" + id.Identifier

	case "upsert_profile":
		_, err := h.vault.UpsertProfile(token, identity.ProfileFields{
			Name:        args.Name,
			DateOfBirth: args.DateOfBirth,
			BloodType:   args.BloodType,
			Allergies:   args.Allergies,
		})
		if err != nil {
			return string(vault.CodeOf(err)), ""
		}
		return outcomeOK, ""

	case "get_my_profile":
		_, err := h.vault.GetMyProfile(token)
		if err != nil {
			return string(vault.CodeOf(err)), ""
		}
		return outcomeOK, ""

	case "add_record":
		typ, ok := records.ParseType(args.Type)
		if !ok {
			typ = records.TypeOther
		}
		r, err := h.vault.AddRecord(token, typ, []byte(args.Payload), args.Hash, records.Metadata{
			Title:         args.Title,
			Provider:      args.Provider,
			DateOfService: args.DateOfService,
		})
		if err != nil {
			return string(vault.CodeOf(err)), ""
		}
		return outcomeOK, fmt.Sprintf("id=%d", r.ID)

	case "get_record":
		r, err := h.vault.GetRecord(token, args.RecordID)
		if err != nil {
			return string(vault.CodeOf(err)), ""
		}
		return outcomeOK, fmt.Sprintf("id=%d", r.ID)

	case "list_my_records":
		rs, err := h.vault.ListMyRecords(token)
		if err != nil {
			return string(vault.CodeOf(err)), ""
		}
		return outcomeOK, fmt.Sprintf("n=%d", len(rs))

	case "update_record":
		_, err := h.vault.UpdateRecord(token, args.RecordID, []byte(args.Payload), args.Hash, records.Metadata{
			Title:         args.Title,
			Provider:      args.Provider,
			DateOfService: args.DateOfService,
		})
		if err != nil {
			return string(vault.CodeOf(err)), ""
		}
		return outcomeOK, ""

	case "delete_record":
		if err := h.vault.DeleteRecord(token, args.RecordID); err != nil {
			return string(vault.CodeOf(err)), ""
		}
		return outcomeOK, ""

	case "grant_access":
		perms := make([]grants.Permission, 0, len(args.Permissions))
		for _, p := range args.Permissions {
			perm, ok := grants.ParsePermission(p)
			if !ok {
				continue // schema already rejected unknown names
			}
			perms = append(perms, perm)
		}
		var expiresAt *time.Time
		if args.ExpiresIn > 0 {
			t := h.clk.Now().Add(time.Duration(args.ExpiresIn) * time.Second)
			expiresAt = &t
		}
		delegate := identity.NormalizeToken(args.Delegate)
		_, err := h.vault.GrantAccess(token, delegate, args.RecordIDs, perms, expiresAt)
		if err != nil {
			return string(vault.CodeOf(err)), ""
		}
		return outcomeOK, ""

	case "revoke_access":
		delegate := identity.NormalizeToken(args.Delegate)
		if err := h.vault.RevokeAccess(token, delegate); err != nil {
			return string(vault.CodeOf(err)), ""
		}
		return outcomeOK, ""

	case "list_my_grants":
		gs, err := h.vault.ListMyGrants(token)
		if err != nil {
			return string(vault.CodeOf(err)), ""
		}
		return outcomeOK, fmt.Sprintf("n=%d", len(gs))

	case "list_accessible_records":
		rs := h.vault.ListAccessibleRecords(token)
		return outcomeOK, fmt.Sprintf("n=%d", len(rs))

	case "advance_clock":
		h.clk.Advance(time.Duration(args.Seconds) * time.Second)
		return outcomeOK, fmt.Sprintf("+%ds", args.Seconds)

	default:
		// Unreachable for schema-validated scenarios.
		return "INVALID_INPUT", ""
	}
}
