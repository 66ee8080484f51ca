package identity

import (
	"sort"
	"time"

	"github.com/custodia-health/custodia/internal/clock"
)

// Profile is the mutable owner document attached to an identity.
type Profile struct {
	Identity    Identity  `json:"identity"`
	Name        string    `json:"name"`
	DateOfBirth string    `json:"date_of_birth"`
	BloodType   string    `json:"blood_type,omitempty"`
	Allergies   []string  `json:"allergies,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProfileFields are the caller-settable fields of a profile. Every upsert
// replaces all of them; BloodType empty means "not recorded".
type ProfileFields struct {
	Name        string
	DateOfBirth string
	BloodType   string
	Allergies   []string
}

// ProfileStore maps identifiers to profiles.
//
// Thread-safety: none; serialized by the vault lock like every other store.
type ProfileStore struct {
	clk          clock.Clock
	byIdentifier map[string]Profile
}

// NewProfileStore creates an empty profile store.
func NewProfileStore(clk clock.Clock) *ProfileStore {
	return &ProfileStore{
		clk:          clk,
		byIdentifier: make(map[string]Profile),
	}
}

// Upsert creates or replaces the profile for id.
//
// On first write both timestamps are set to now. On subsequent writes the
// mutable fields are replaced wholesale, CreatedAt is preserved, and
// UpdatedAt is bumped.
func (s *ProfileStore) Upsert(id Identity, fields ProfileFields) Profile {
	now := s.clk.Now()
	p := Profile{
		Identity:    id,
		Name:        fields.Name,
		DateOfBirth: fields.DateOfBirth,
		BloodType:   fields.BloodType,
		Allergies:   append([]string(nil), fields.Allergies...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if existing, ok := s.byIdentifier[id.Identifier]; ok {
		p.CreatedAt = existing.CreatedAt
	}
	s.byIdentifier[id.Identifier] = p
	return p
}

// Get returns the profile for identifier, if any.
func (s *ProfileStore) Get(identifier string) (Profile, bool) {
	p, ok := s.byIdentifier[identifier]
	return p, ok
}

// ProfileEntry is one (identifier, profile) pair of the store's durable form.
type ProfileEntry struct {
	Identifier string  `json:"identifier"`
	Profile    Profile `json:"profile"`
}

// Export returns the store contents as an ordered pair list, sorted by
// identifier.
func (s *ProfileStore) Export() []ProfileEntry {
	entries := make([]ProfileEntry, 0, len(s.byIdentifier))
	for identifier, p := range s.byIdentifier {
		entries = append(entries, ProfileEntry{Identifier: identifier, Profile: p})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Identifier < entries[j].Identifier
	})
	return entries
}

// Restore replaces the store contents with the given pair list.
func (s *ProfileStore) Restore(entries []ProfileEntry) {
	s.byIdentifier = make(map[string]Profile, len(entries))
	for _, e := range entries {
		s.byIdentifier[e.Identifier] = e.Profile
	}
}
