// Package store persists entities, relationship links and the operation log.
//
// Two backends implement Store: MemStore keeps everything in memory and
// SQLiteStore persists to a SQLite database. Both share one contract:
//
//   - Insert assigns a permanent key on first write and overwrites on
//     later writes. The returned entity carries the key.
//   - Get returns nil, nil for unknown or empty keys.
//   - Link records a directed edge in both directions so that List can
//     walk a relationship from either side. Linking an unkeyed entity
//     is a programming error and panics with ErrUnkeyed.
//   - List results are materialized and ordered by key.
//   - AppendEvents is idempotent on (actor, timestamp).
//   - Update runs a function atomically: all of its writes commit or
//     none do.
//
// # Layout
//
// Entities are addressed as node:{kind}:{key}. A link from A to B is
// stored as edge:{B.kind}:{B.key}:{A.kind}:{A.key} together with its
// mirror, so a relationship scan is a prefix scan over
// edge:{rel.kind}:{rel.key}:{kind}:.
//
// # SQLite configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability and performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - a single connection: SQLite has one writer
//
// Documents are stored as canonical JSON so that identical state yields
// identical bytes on every replica.
package store
