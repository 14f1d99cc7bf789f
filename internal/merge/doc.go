// Package merge combines two descriptions of the same real-world entity.
//
// Two disciplines are provided. Merge is fallible: it refuses to combine
// entities whose keys, identifiers or scalar fields disagree, and is used
// when folding a candidate into the stored catalog. Join is total: every
// conflict is resolved by a deterministic rule (longer string, larger
// number, set union), and is used to reduce provider results that are
// already known to describe the same entity.
//
// Both disciplines are commutative, associative and idempotent. Children
// are matched first-match-wins, unmatched children are appended, and the
// resulting sequences are ordered by position and then canonical form so
// that the operand order does not leak into the result.
package merge
