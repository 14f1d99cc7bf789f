package oplog

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"

	"github.com/roach88/crate/internal/entity"
)

// Change is one field that differs between two versions of an entity.
// An empty Value means the field was cleared.
type Change struct {
	Field string
	Value json.RawMessage
}

// Diff returns the fields of after that differ from before, sorted by
// field name. A nil before yields every field of after.
func Diff(before, after entity.Entity) ([]Change, error) {
	next, err := entity.Fields(after)
	if err != nil {
		return nil, err
	}
	prev := map[string]json.RawMessage{}
	if before != nil {
		if prev, err = entity.Fields(before); err != nil {
			return nil, err
		}
	}

	var changes []Change
	for field, value := range next {
		if old, ok := prev[field]; ok && bytes.Equal(old, value) {
			continue
		}
		changes = append(changes, Change{Field: field, Value: value})
	}
	for field := range prev {
		if _, ok := next[field]; !ok {
			changes = append(changes, Change{Field: field})
		}
	}
	slices.SortFunc(changes, func(a, b Change) int {
		return strings.Compare(a.Field, b.Field)
	})
	return changes, nil
}
