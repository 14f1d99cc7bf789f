// Package oplog defines the replicated operation log.
//
// Every change to a stored entity is recorded as a field-level event
// stamped with the writing replica's actor id and a ULID timestamp. Events
// are totally ordered by (timestamp, actor). Replicas converge by replaying
// each other's events with per-field last-writer-wins: an event is applied
// only when it is strictly newer than the latest event already recorded
// for the same entity and field.
package oplog
