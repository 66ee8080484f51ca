// Package authz implements the authorization engine.
//
// The engine is pure evaluation: it reads the record and grant stores and
// never mutates them. Grants are purely additive; there is no deny rule, so
// the first matching grant decides. Owners never reach the engine at all;
// the operation surface short-circuits them by identifier comparison.
package authz

import (
	"github.com/custodia-health/custodia/internal/clock"
	"github.com/custodia-health/custodia/internal/grants"
	"github.com/custodia-health/custodia/internal/identity"
	"github.com/custodia-health/custodia/internal/records"
)

// Engine evaluates delegate access against the live stores.
type Engine struct {
	records *records.Store
	grants  *grants.Store
	clk     clock.Clock
}

// NewEngine creates an engine reading from the given stores.
func NewEngine(rec *records.Store, gr *grants.Store, clk clock.Clock) *Engine {
	return &Engine{records: rec, grants: gr, clk: clk}
}

// HasAccess reports whether the delegate may perform required on the owner's
// record.
//
// For each grant in the delegate's list issued by owner: expired grants are
// skipped (absent expiry never expires), grants missing the required
// permission are skipped, and the first remaining grant whose record scope
// covers recordID (an empty scope is a wildcard) succeeds.
func (e *Engine) HasAccess(delegate identity.Token, owner string, recordID uint64, required grants.Permission) bool {
	now := e.clk.Now()
	for _, g := range e.grants.ForDelegate(delegate) {
		if g.IssuedBy != owner {
			continue
		}
		if g.Expired(now) {
			continue
		}
		if !g.Permissions.Contains(required) {
			continue
		}
		if g.Covers(recordID) {
			return true
		}
	}
	return false
}

// ResolveAccessibleRecords returns every record the delegate can currently
// read, one entry per (grant, record) match.
//
// Wildcard grants resolve the issuer's live index at query time, so records
// the issuer added after issuance are covered without re-issuing. Explicit id
// lists resolve through the record store and silently skip ids that no longer
// exist. Results are not deduplicated: overlapping grants yield the same
// record once per covering grant.
func (e *Engine) ResolveAccessibleRecords(delegate identity.Token) []records.Record {
	now := e.clk.Now()
	out := []records.Record{}
	for _, g := range e.grants.ForDelegate(delegate) {
		if g.Expired(now) {
			continue
		}
		if !g.Permissions.Contains(grants.PermRead) {
			continue
		}
		if g.Wildcard() {
			out = append(out, e.records.ListByOwner(g.IssuedBy)...)
			continue
		}
		for _, id := range g.RecordIDs {
			if r, ok := e.records.Get(id); ok {
				out = append(out, r)
			}
		}
	}
	return out
}
