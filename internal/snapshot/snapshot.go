package snapshot

import (
	"github.com/custodia-health/custodia/internal/grants"
	"github.com/custodia-health/custodia/internal/identity"
	"github.com/custodia-health/custodia/internal/records"
)

// Snapshot is the flat durable representation of the entire vault state.
// Each field is one store serialized as an ordered (key, value) pair list.
type Snapshot struct {
	Identities []identity.Entry        `json:"identities"`
	Profiles   []identity.ProfileEntry `json:"profiles"`
	Records    []records.Entry         `json:"records"`
	OwnerIndex []records.IndexEntry    `json:"owner_index"`
	Grants     []grants.Entry          `json:"grants"`
}

// Empty reports whether the snapshot carries no state at all.
func (s *Snapshot) Empty() bool {
	return len(s.Identities) == 0 &&
		len(s.Profiles) == 0 &&
		len(s.Records) == 0 &&
		len(s.OwnerIndex) == 0 &&
		len(s.Grants) == 0
}
