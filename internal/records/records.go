// Package records implements the record store and the owner record index.
//
// Records carry opaque payload bytes plus a caller-supplied integrity hash;
// the store never interprets payload content. Ids are allocated from a
// monotonically increasing counter starting at 1 and are never reused while
// the process lives. The owner index maps an identifier to the ordered ids it
// owns and is re-established on every insert and delete so it always equals
// exactly the set of records whose owner is that identifier.
package records

import (
	"sort"
	"strconv"
	"time"

	"github.com/custodia-health/custodia/internal/clock"
)

// RecordType classifies a record. The set is closed; the store does not
// validate membership because payload semantics are out of scope.
type RecordType string

const (
	TypeDiagnosis    RecordType = "Diagnosis"
	TypePrescription RecordType = "Prescription"
	TypeLabResult    RecordType = "LabResult"
	TypeImaging      RecordType = "Imaging"
	TypeProcedure    RecordType = "Procedure"
	TypeVaccination  RecordType = "Vaccination"
	TypeAllergy      RecordType = "Allergy"
	TypeVitalSigns   RecordType = "VitalSigns"
	TypeOther        RecordType = "Other"
)

// AllTypes lists every record type, in declaration order. Used by the CLI for
// flag parsing and help output.
var AllTypes = []RecordType{
	TypeDiagnosis,
	TypePrescription,
	TypeLabResult,
	TypeImaging,
	TypeProcedure,
	TypeVaccination,
	TypeAllergy,
	TypeVitalSigns,
	TypeOther,
}

// ParseType resolves a string to a known record type.
func ParseType(s string) (RecordType, bool) {
	for _, t := range AllTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Metadata is the caller-visible description of a record.
type Metadata struct {
	Title         string   `json:"title"`
	Provider      string   `json:"provider"`
	Facility      string   `json:"facility,omitempty"`
	DateOfService string   `json:"date_of_service"`
	Tags          []string `json:"tags,omitempty"`
}

// Record is a single owned document. Ownership never transfers; updates
// replace payload, hash, and metadata but preserve Id, owner, and CreatedAt.
type Record struct {
	ID              uint64     `json:"id"`
	OwnerIdentifier string     `json:"owner_identifier"`
	Type            RecordType `json:"type"`
	Payload         []byte     `json:"payload,omitempty"`
	PayloadHash     string     `json:"payload_hash"`
	Metadata        Metadata   `json:"metadata"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Store holds the record map, the owner index, and the id counter.
//
// Thread-safety: none; the vault serializes all access behind its single
// exclusive lock.
type Store struct {
	clk        clock.Clock
	nextID     uint64
	byID       map[uint64]Record
	ownerIndex map[string][]uint64
}

// NewStore creates an empty record store. The first record gets id 1.
func NewStore(clk clock.Clock) *Store {
	return &Store{
		clk:        clk,
		nextID:     1,
		byID:       make(map[uint64]Record),
		ownerIndex: make(map[string][]uint64),
	}
}

// Create allocates the next id, stamps both timestamps to now, and inserts
// the record into the record map and the owner's index in one step.
func (s *Store) Create(owner string, typ RecordType, payload []byte, payloadHash string, md Metadata) Record {
	now := s.clk.Now()
	r := Record{
		ID:              s.nextID,
		OwnerIdentifier: owner,
		Type:            typ,
		Payload:         append([]byte(nil), payload...),
		PayloadHash:     payloadHash,
		Metadata:        md,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.nextID++
	s.byID[r.ID] = r
	s.ownerIndex[owner] = append(s.ownerIndex[owner], r.ID)
	return r
}

// Get returns the record with the given id, if any.
func (s *Store) Get(id uint64) (Record, bool) {
	r, ok := s.byID[id]
	return r, ok
}

// Update replaces payload, hash, and metadata of an existing record, bumping
// UpdatedAt. Id, owner, type, and CreatedAt are preserved. Authorization is
// the caller's job; the store applies the write unconditionally.
func (s *Store) Update(id uint64, payload []byte, payloadHash string, md Metadata) (Record, bool) {
	r, ok := s.byID[id]
	if !ok {
		return Record{}, false
	}
	r.Payload = append([]byte(nil), payload...)
	r.PayloadHash = payloadHash
	r.Metadata = md
	r.UpdatedAt = s.clk.Now()
	s.byID[id] = r
	return r, true
}

// Delete removes the record from the map and filters it out of its owner's
// index. Both removals happen before control returns, so no reader can
// observe one without the other. The id is not returned to the counter.
func (s *Store) Delete(id uint64) bool {
	r, ok := s.byID[id]
	if !ok {
		return false
	}
	delete(s.byID, id)

	ids := s.ownerIndex[r.OwnerIdentifier]
	filtered := ids[:0]
	for _, rid := range ids {
		if rid != id {
			filtered = append(filtered, rid)
		}
	}
	if len(filtered) == 0 {
		delete(s.ownerIndex, r.OwnerIdentifier)
	} else {
		s.ownerIndex[r.OwnerIdentifier] = filtered
	}
	return true
}

// ListByOwner resolves every id in the owner's index through the record map,
// in index order. Ids that resolve to nothing are skipped; that divergence
// cannot occur while the index invariant holds, but listing stays defensive
// rather than panicking on a corrupt snapshot.
func (s *Store) ListByOwner(identifier string) []Record {
	ids := s.ownerIndex[identifier]
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.byID[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

// OwnerIndex returns a copy of the owner's current id list, in index order.
// Wildcard grants resolve against this live list at query time.
func (s *Store) OwnerIndex(identifier string) []uint64 {
	return append([]uint64(nil), s.ownerIndex[identifier]...)
}

// Count returns the number of stored records.
func (s *Store) Count() int {
	return len(s.byID)
}

// Entry is one (id, record) pair of the store's durable form. The key is the
// decimal id so all five snapshot pair lists share a string key shape.
type Entry struct {
	Key    string `json:"key"`
	Record Record `json:"record"`
}

// IndexEntry is one (identifier, ids) pair of the owner index's durable form.
type IndexEntry struct {
	Identifier string   `json:"identifier"`
	RecordIDs  []uint64 `json:"record_ids,omitempty"`
}

// Export returns the record map as an ordered pair list, sorted by id.
func (s *Store) Export() []Entry {
	ids := make([]uint64, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, Entry{
			Key:    strconv.FormatUint(id, 10),
			Record: s.byID[id],
		})
	}
	return entries
}

// ExportIndex returns the owner index as an ordered pair list, sorted by
// identifier. Per-owner id order is preserved as stored.
func (s *Store) ExportIndex() []IndexEntry {
	owners := make([]string, 0, len(s.ownerIndex))
	for owner := range s.ownerIndex {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	entries := make([]IndexEntry, 0, len(owners))
	for _, owner := range owners {
		entries = append(entries, IndexEntry{
			Identifier: owner,
			RecordIDs:  append([]uint64(nil), s.ownerIndex[owner]...),
		})
	}
	return entries
}

// Restore replaces the store contents with the given pair lists and
// re-derives the id counter as max(id)+1. The pair lists are the entire
// durable footprint, so a highest id deleted just before shutdown can be
// reissued after a restart; the id space is only reuse-free within a process
// lifetime plus whatever the snapshot captured.
func (s *Store) Restore(entries []Entry, index []IndexEntry) {
	s.byID = make(map[uint64]Record, len(entries))
	s.nextID = 1
	for _, e := range entries {
		r := e.Record
		s.byID[r.ID] = r
		if r.ID >= s.nextID {
			s.nextID = r.ID + 1
		}
	}

	s.ownerIndex = make(map[string][]uint64, len(index))
	for _, e := range index {
		s.ownerIndex[e.Identifier] = append([]uint64(nil), e.RecordIDs...)
	}
}
