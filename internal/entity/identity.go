package entity

import (
	"bytes"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// FoldName folds s for comparison: NFC, case-folded, with runs of white
// space collapsed.
func FoldName(s string) string {
	s = norm.NFC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// Signature returns the identity a child is matched on inside a sequence.
// The first available of these is used: the storage key, the identifier of
// the first scheme e carries, the folded name with its disambiguation, the
// position. A child with none of them is identified by its canonical form.
//
// Whichever component is chosen, merging two children with equal
// signatures yields a child with that same signature.
func Signature(e Entity) string {
	if k := KeyOf(e); k != "" {
		return "key:" + k
	}
	ids := IDsOf(e)
	for _, s := range Schemes() {
		if v := ids.Get(s); v != nil {
			return "id:" + string(s) + ":" + *v
		}
	}
	if n := Name(e); n != "" {
		return "name:" + FoldName(n) + "\x00" + FoldName(Disambiguation(e))
	}
	if o, ok := e.(Ordered); ok {
		if p, ok := o.Ordinal(); ok {
			return "pos:" + strconv.Itoa(p)
		}
	}
	canon, _ := MarshalCanonical(e)
	return "doc:" + string(canon)
}

// SortChildren orders a child sequence by position, unpositioned last, then
// by canonical form.
func SortChildren[T Entity](s []T) {
	type keyed struct {
		pos   int
		has   bool
		canon []byte
		v     T
	}
	ks := make([]keyed, len(s))
	for i, v := range s {
		k := keyed{v: v}
		if o, ok := any(v).(Ordered); ok {
			k.pos, k.has = o.Ordinal()
		}
		k.canon, _ = MarshalCanonical(v)
		ks[i] = k
	}
	sort.SliceStable(ks, func(i, j int) bool {
		a, b := ks[i], ks[j]
		if a.has != b.has {
			return a.has
		}
		if a.pos != b.pos {
			return a.pos < b.pos
		}
		return bytes.Compare(a.canon, b.canon) < 0
	})
	for i := range ks {
		s[i] = ks[i].v
	}
}

// Normalize puts every child sequence of e into SortChildren order,
// innermost first. Two entities that differ only in child order normalize
// to the same canonical form.
func Normalize(e Entity) {
	switch v := e.(type) {
	case *Artist:
		normalizeAll(v.Genres)
	case *ArtistCredit:
		if v.Artist != nil {
			Normalize(v.Artist)
		}
	case *Release:
		normalizeAll(v.Credits)
		normalizeAll(v.Media)
		normalizeAll(v.Genres)
	case *ReleaseGroup:
		normalizeAll(v.Credits)
		normalizeAll(v.Genres)
	case *Recording:
		normalizeAll(v.Credits)
	case *Track:
		if v.Recording != nil {
			Normalize(v.Recording)
		}
		normalizeAll(v.Credits)
	case *Medium:
		normalizeAll(v.Tracks)
	}
}

func normalizeAll[T Entity](s []T) {
	for _, c := range s {
		if !isNilEntity(c) {
			Normalize(c)
		}
	}
	SortChildren(s)
}

func isNilEntity(e Entity) bool {
	switch v := e.(type) {
	case nil:
		return true
	case *Artist:
		return v == nil
	case *Genre:
		return v == nil
	case *ArtistCredit:
		return v == nil
	case *Release:
		return v == nil
	case *ReleaseGroup:
		return v == nil
	case *Recording:
		return v == nil
	case *Track:
		return v == nil
	case *Medium:
		return v == nil
	}
	return false
}
