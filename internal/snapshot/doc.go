// Package snapshot implements the durable-state boundary.
//
// At shutdown every store is flattened into an ordered list of (key, value)
// pairs; at startup those pair lists rebuild the in-memory maps. The five
// pair lists (identities, profiles, records, owner index, grants) are the
// entire durable footprint: nothing else survives a restart.
//
// Two representations exist. The sqlite Store persists the pair lists across
// process restarts and is the only representation the lifecycle boundary
// uses. CanonicalJSON renders a snapshot as deterministic canonical JSON
// (sorted keys, NFC strings, no floats) for diffing and golden tests.
//
// Save and Load must not run concurrently with any vault operation; the CLI
// drives them strictly before and after request handling.
package snapshot
