package entity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// ErrKeyField is returned when SetField is asked to change the key.
var ErrKeyField = errors.New("key is not a settable field")

// Fields returns the top-level fields of e in canonical JSON, keyed by
// their JSON name. The storage key is not a field. Absent fields are
// omitted.
func Fields(e Entity) (map[string]json.RawMessage, error) {
	data, err := MarshalCanonical(e)
	if err != nil {
		return nil, fmt.Errorf("fields %s: %w", e.Kind(), err)
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("fields %s: %w", e.Kind(), err)
	}
	delete(fields, "key")
	return fields, nil
}

// SetField replaces one top-level field of e. A nil or JSON null value
// clears the field. Unknown field names are rejected.
func SetField(e Entity, field string, value json.RawMessage) error {
	if field == "key" {
		return ErrKeyField
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("set %s.%s: %w", e.Kind(), field, err)
	}
	doc := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("set %s.%s: %w", e.Kind(), field, err)
	}
	if len(value) == 0 || bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
		delete(doc, field)
	} else {
		doc[field] = value
	}
	raw, err = json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("set %s.%s: %w", e.Kind(), field, err)
	}

	fresh, err := New(e.Kind())
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(fresh); err != nil {
		return fmt.Errorf("set %s.%s: %w", e.Kind(), field, err)
	}
	assign(e, fresh)
	return nil
}

// FieldNames returns the sorted names of the fields set on e.
func FieldNames(e Entity) ([]string, error) {
	fields, err := Fields(e)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// Equal reports whether a and b have the same kind and the same canonical
// form once child sequences are normalized.
func Equal(a, b Entity) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	ab, err := MarshalCanonical(Clone(a))
	if err != nil {
		return false
	}
	bb, err := MarshalCanonical(Clone(b))
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// Clone returns a deep copy of e.
func Clone(e Entity) Entity {
	if e == nil {
		return nil
	}
	raw, err := json.Marshal(e)
	if err != nil {
		panic(fmt.Sprintf("clone %s: %v", e.Kind(), err))
	}
	out, err := Decode(e.Kind(), raw)
	if err != nil {
		panic(fmt.Sprintf("clone %s: %v", e.Kind(), err))
	}
	return out
}

// References returns the artists and genres embedded anywhere in e's
// children. They are stored as nodes of their own and linked to e. The
// returned values point into e, so assigning their keys updates e.
// Referenced entities are not descended into.
func References(e Entity) []Entity {
	var refs []Entity
	var walk func(Entity)
	credits := func(cs []*ArtistCredit) {
		for _, c := range cs {
			if c != nil && c.Artist != nil {
				refs = append(refs, c.Artist)
			}
		}
	}
	genres := func(gs []*Genre) {
		for _, g := range gs {
			if g != nil {
				refs = append(refs, g)
			}
		}
	}
	walk = func(e Entity) {
		switch v := e.(type) {
		case *Artist:
			genres(v.Genres)
		case *ArtistCredit:
			if v.Artist != nil {
				refs = append(refs, v.Artist)
			}
		case *Release:
			credits(v.Credits)
			genres(v.Genres)
			for _, m := range v.Media {
				if m != nil {
					walk(m)
				}
			}
		case *ReleaseGroup:
			credits(v.Credits)
			genres(v.Genres)
		case *Recording:
			credits(v.Credits)
		case *Track:
			credits(v.Credits)
			if v.Recording != nil {
				walk(v.Recording)
			}
		case *Medium:
			for _, t := range v.Tracks {
				if t != nil {
					walk(t)
				}
			}
		}
	}
	walk(e)
	return refs
}

// Digests returns the blob digests referenced by e and its children.
func Digests(e Entity) []string {
	var out []string
	switch v := e.(type) {
	case *Release:
		out = append(out, v.Artwork...)
		for _, m := range v.Media {
			if m != nil {
				out = append(out, Digests(m)...)
			}
		}
	case *Medium:
		for _, t := range v.Tracks {
			if t != nil {
				out = append(out, Digests(t)...)
			}
		}
	case *Track:
		if v.Audio != nil {
			out = append(out, *v.Audio)
		}
	}
	return NewSet(out...)
}

// Collapse reduces e in place to a bare reference carrying only its key.
func Collapse(e Entity) {
	key := KeyOf(e)
	z, _ := New(e.Kind())
	SetKey(z, key)
	assign(e, z)
}

// Assign overwrites dst with a copy of src. Both must be the same kind.
func Assign(dst, src Entity) {
	if dst.Kind() != src.Kind() {
		panic(fmt.Sprintf("assign %s to %s", src.Kind(), dst.Kind()))
	}
	assign(dst, Clone(src))
}

func assign(dst, src Entity) {
	switch d := dst.(type) {
	case *Artist:
		*d = *src.(*Artist)
	case *Genre:
		*d = *src.(*Genre)
	case *ArtistCredit:
		*d = *src.(*ArtistCredit)
	case *Release:
		*d = *src.(*Release)
	case *ReleaseGroup:
		*d = *src.(*ReleaseGroup)
	case *Recording:
		*d = *src.(*Recording)
	case *Track:
		*d = *src.(*Track)
	case *Medium:
		*d = *src.(*Medium)
	}
}
