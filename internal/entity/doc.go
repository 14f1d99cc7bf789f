// Package entity defines the catalog's data model: a closed union of media
// entities (artists, releases, recordings, ...) that share one shape.
//
// Every variant embeds Base, which carries the permanent storage key, the
// external identifiers used for identity matching and a set of links.
// Optional scalars are pointers so that "unknown" (nil) stays distinct from
// an empty value. Nested children are ordered slices of the same shape and
// are owned by their parent; the model never contains back-references.
//
// # Serialization
//
// Entities serialize to JSON through struct tags. MarshalCanonical produces
// a deterministic byte form (sorted keys, NFC strings, no HTML escaping)
// that is used for equality, snapshots and the operation log, so that two
// replicas holding the same state produce identical bytes.
//
// # Field access
//
// Fields and SetField expose the top-level JSON fields of an entity. The
// operation log records one "set" event per changed field, and replay
// applies those events back through SetField.
package entity
