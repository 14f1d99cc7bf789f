package entity

import (
	"encoding/json"
	"slices"
)

// Set is a sorted, de-duplicated list of strings.
type Set []string

// NewSet builds a Set from arbitrary items. It returns nil when empty.
func NewSet(items ...string) Set {
	if len(items) == 0 {
		return nil
	}
	s := slices.Clone(items)
	slices.Sort(s)
	return Set(slices.Compact(s))
}

// Union returns the elements of s and o.
func (s Set) Union(o Set) Set {
	if len(o) == 0 {
		return NewSet(s...)
	}
	all := make([]string, 0, len(s)+len(o))
	all = append(all, s...)
	all = append(all, o...)
	return NewSet(all...)
}

// Contains reports whether v is in s.
func (s Set) Contains(v string) bool {
	return slices.Contains(s, v)
}

// UnmarshalJSON normalizes decoded lists into set order.
func (s *Set) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*s = NewSet(items...)
	return nil
}
