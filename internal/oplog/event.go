package oplog

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/crate/internal/entity"
)

// Op is the kind of change an event records.
type Op string

const (
	// OpSet replaces one top-level field of an entity.
	OpSet Op = "set"
	// OpLink records a relationship from the event's entity to another.
	OpLink Op = "link"
)

// Event is one entry of the operation log.
//
// For OpSet, Field names the entity field and Value carries its canonical
// JSON; an empty Value clears the field. For OpLink, Field is the target
// kind and Value the target key as a JSON string.
type Event struct {
	Actor     string          `json:"actor" yaml:"actor"`
	Timestamp string          `json:"ts" yaml:"ts"`
	Kind      entity.Kind     `json:"kind" yaml:"kind"`
	Key       string          `json:"key" yaml:"key"`
	Op        Op              `json:"op" yaml:"op"`
	Field     string          `json:"field,omitempty" yaml:"field,omitempty"`
	Value     json.RawMessage `json:"value,omitempty" yaml:"-"`
}

// Compare orders events by timestamp, then actor.
func Compare(a, b Event) int {
	if c := strings.Compare(a.Timestamp, b.Timestamp); c != 0 {
		return c
	}
	return strings.Compare(a.Actor, b.Actor)
}

// After reports whether e is ordered strictly after other.
func (e Event) After(other Event) bool {
	return Compare(e, other) > 0
}

// Ref returns the entity the event applies to.
func (e Event) Ref() entity.Ref {
	return entity.Ref{Kind: e.Kind, Key: e.Key}
}

// LinkTarget decodes the target of an OpLink event.
func (e Event) LinkTarget() (entity.Ref, error) {
	if e.Op != OpLink {
		return entity.Ref{}, fmt.Errorf("event %s/%s is %s, not link", e.Actor, e.Timestamp, e.Op)
	}
	kind, err := entity.ParseKind(e.Field)
	if err != nil {
		return entity.Ref{}, fmt.Errorf("link target: %w", err)
	}
	var key string
	if err := json.Unmarshal(e.Value, &key); err != nil {
		return entity.Ref{}, fmt.Errorf("link target: %w", err)
	}
	return entity.Ref{Kind: kind, Key: key}, nil
}

// SetEvent builds an OpSet event.
func SetEvent(actor, ts string, ref entity.Ref, field string, value json.RawMessage) Event {
	return Event{
		Actor:     actor,
		Timestamp: ts,
		Kind:      ref.Kind,
		Key:       ref.Key,
		Op:        OpSet,
		Field:     field,
		Value:     value,
	}
}

// LinkEvent builds an OpLink event from a to b.
func LinkEvent(actor, ts string, a, b entity.Ref) Event {
	value, _ := json.Marshal(b.Key)
	return Event{
		Actor:     actor,
		Timestamp: ts,
		Kind:      a.Kind,
		Key:       a.Key,
		Op:        OpLink,
		Field:     string(b.Kind),
		Value:     value,
	}
}

// Sort orders events in place by (timestamp, actor).
func Sort(events []Event) {
	slices.SortStableFunc(events, Compare)
}
