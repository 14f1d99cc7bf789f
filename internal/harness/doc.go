// Package harness runs replication scenarios against in-memory replicas.
//
// A scenario names a set of peers, a flow of local writes and sync rounds,
// and assertions about the final state. Every peer gets its own MemStore
// with sequential keys ("{actor}-0001", ...) and a deterministic clock, and
// all peers share one in-memory transport, so a run is reproducible and
// its trace can be compared against a golden file.
//
// # Scenario Format
//
//	name: concurrent_edit
//	description: "The later of two concurrent edits wins on every replica"
//	peers:
//	  - actor: a
//	  - actor: b
//	    skew: 1h
//	flow:
//	  - peer: a
//	    save:
//	      kind: artist
//	      as: bjork
//	      entity: { name: "Björk", country: "IS" }
//	  - peer: b
//	    sync: true
//	    expect: { applied: 2 }
//	  - peer: b
//	    edit: { ref: bjork, field: country, value: "DK" }
//	  - peer: a
//	    link: { from: post, to: bjork }
//	assertions:
//	  - type: converged
//	  - type: field
//	    ref: bjork
//	    field: country
//	    value: "DK"
//	  - type: count
//	    peer: a
//	    kind: artist
//	    count: 1
//
// Entities are written as their JSON documents in YAML. "as" binds an
// alias to the saved entity's reference; later steps and assertions name
// entities by alias.
//
// # Assertion Types
//
//   - converged: every peer holds the same entities, edges and log
//   - field: a field of an entity has a value (omit value for absent)
//   - count: a peer stores count entities of kind
//   - linked: a peer stores a relationship between two entities
//   - log_length: a peer's operation log has count events
//
// Assertions with no peer apply to every peer.
//
// # Golden Files
//
// RunWithGolden compares the trace and final state with
// testdata/golden/{name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
