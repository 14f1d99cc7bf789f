package merge

import (
	"fmt"
	"reflect"

	"github.com/roach88/crate/internal/entity"
)

// Merge combines a and b under the fallible discipline. It returns false
// when the two cannot describe the same entity: different kinds, different
// keys, a conflicting identifier or a conflicting scalar. Sets are united
// and sequences merged with MergeSeq. A nil operand is the identity.
func Merge(a, b entity.Entity) (entity.Entity, bool) {
	switch {
	case isNil(a) && isNil(b):
		return nil, true
	case isNil(a):
		return entity.Clone(b), true
	case isNil(b):
		return entity.Clone(a), true
	case a.Kind() != b.Kind():
		return nil, false
	}
	f := &fallible{ok: true}
	out := combine(f, a, b)
	if !f.ok {
		return nil, false
	}
	return out, true
}

// Join combines a and b under the total discipline. Conflicts resolve to
// the longer string, the larger number or the larger key. A nil operand is
// the identity. a and b must be the same kind.
func Join(a, b entity.Entity) entity.Entity {
	switch {
	case isNil(a) && isNil(b):
		return nil
	case isNil(a):
		return entity.Clone(b)
	case isNil(b):
		return entity.Clone(a)
	case a.Kind() != b.Kind():
		panic(fmt.Sprintf("merge: join of %s with %s", a.Kind(), b.Kind()))
	}
	return combine(total{}, a, b)
}

// JoinAll folds Join over es. It returns nil for no input.
func JoinAll(es ...entity.Entity) entity.Entity {
	var out entity.Entity
	for _, e := range es {
		out = Join(out, e)
	}
	return out
}

// MergeSeq merges two child sequences. Elements of both are grouped by
// entity.Signature and each group is merged into one child. A group whose
// members conflict is kept as its distinct members instead. The result is
// in entity.SortChildren order.
func MergeSeq[T entity.Entity](a, b []T) []T {
	return seqOf(&fallible{ok: true}, a, b)
}

// JoinSeq is MergeSeq for the total discipline: every group is joined, so
// the result holds one child per signature.
func JoinSeq[T entity.Entity](a, b []T) []T {
	return seqOf(total{}, a, b)
}

// discipline supplies the per-field rules combine applies.
type discipline interface {
	key(a, b string) string
	str(a, b *string) *string
	num(a, b *int) *int
	child(a, b entity.Entity) entity.Entity
	group(members []entity.Entity) []entity.Entity
}

type fallible struct{ ok bool }

func (f *fallible) key(a, b string) string {
	if a != "" && b != "" && a != b {
		f.ok = false
	}
	if a != "" {
		return a
	}
	return b
}

func (f *fallible) str(a, b *string) *string {
	v, ok := Coalesce(a, b)
	if !ok {
		f.ok = false
	}
	return v
}

func (f *fallible) num(a, b *int) *int {
	v, ok := Coalesce(a, b)
	if !ok {
		f.ok = false
	}
	return v
}

func (f *fallible) child(a, b entity.Entity) entity.Entity {
	m, ok := Merge(a, b)
	if !ok {
		f.ok = false
		return entity.Clone(a)
	}
	return m
}

// group folds members with Merge. On a conflict the members are kept,
// with exact duplicates dropped.
func (f *fallible) group(members []entity.Entity) []entity.Entity {
	var acc entity.Entity
	for _, m := range members {
		next, ok := Merge(acc, m)
		if !ok {
			return distinct(members)
		}
		acc = next
	}
	return []entity.Entity{acc}
}

type total struct{}

func (total) key(a, b string) string                 { return MaxString(a, b) }
func (total) str(a, b *string) *string               { return LongerString(a, b) }
func (total) num(a, b *int) *int                     { return MaxInt(a, b) }
func (total) child(a, b entity.Entity) entity.Entity { return Join(a, b) }

func (total) group(members []entity.Entity) []entity.Entity {
	return []entity.Entity{JoinAll(members...)}
}

func distinct(members []entity.Entity) []entity.Entity {
	seen := make(map[string]bool, len(members))
	out := make([]entity.Entity, 0, len(members))
	for _, m := range members {
		canon, _ := entity.MarshalCanonical(m)
		if seen[string(canon)] {
			continue
		}
		seen[string(canon)] = true
		out = append(out, entity.Clone(m))
	}
	return out
}

func base(d discipline, a, b *entity.Base) entity.Base {
	var ids entity.KnownIDs
	for _, s := range entity.Schemes() {
		ids.Set(s, d.str(a.IDs.Get(s), b.IDs.Get(s)))
	}
	return entity.Base{
		Key:   d.key(a.Key, b.Key),
		IDs:   ids,
		Links: Union(a.Links, b.Links),
	}
}

// combine applies d field by field. a and b are non-nil and of one kind.
func combine(d discipline, a, b entity.Entity) entity.Entity {
	switch x := a.(type) {
	case *entity.Artist:
		y := b.(*entity.Artist)
		return &entity.Artist{
			Base:           base(d, &x.Base, &y.Base),
			Name:           d.str(x.Name, y.Name),
			SortName:       d.str(x.SortName, y.SortName),
			Disambiguation: d.str(x.Disambiguation, y.Disambiguation),
			Country:        d.str(x.Country, y.Country),
			Genres:         seqOf(d, x.Genres, y.Genres),
		}
	case *entity.Genre:
		y := b.(*entity.Genre)
		return &entity.Genre{
			Base:           base(d, &x.Base, &y.Base),
			Name:           d.str(x.Name, y.Name),
			Disambiguation: d.str(x.Disambiguation, y.Disambiguation),
		}
	case *entity.ArtistCredit:
		y := b.(*entity.ArtistCredit)
		return &entity.ArtistCredit{
			Base:       base(d, &x.Base, &y.Base),
			Position:   d.num(x.Position, y.Position),
			Name:       d.str(x.Name, y.Name),
			JoinPhrase: d.str(x.JoinPhrase, y.JoinPhrase),
			Artist:     childOf(d, x.Artist, y.Artist),
		}
	case *entity.Release:
		y := b.(*entity.Release)
		return &entity.Release{
			Base:           base(d, &x.Base, &y.Base),
			Title:          d.str(x.Title, y.Title),
			Disambiguation: d.str(x.Disambiguation, y.Disambiguation),
			Date:           d.str(x.Date, y.Date),
			Country:        d.str(x.Country, y.Country),
			Status:         d.str(x.Status, y.Status),
			Barcode:        d.str(x.Barcode, y.Barcode),
			Artwork:        Union(x.Artwork, y.Artwork),
			Credits:        seqOf(d, x.Credits, y.Credits),
			Media:          seqOf(d, x.Media, y.Media),
			Genres:         seqOf(d, x.Genres, y.Genres),
		}
	case *entity.ReleaseGroup:
		y := b.(*entity.ReleaseGroup)
		return &entity.ReleaseGroup{
			Base:        base(d, &x.Base, &y.Base),
			Title:       d.str(x.Title, y.Title),
			PrimaryType: d.str(x.PrimaryType, y.PrimaryType),
			Credits:     seqOf(d, x.Credits, y.Credits),
			Genres:      seqOf(d, x.Genres, y.Genres),
		}
	case *entity.Recording:
		y := b.(*entity.Recording)
		return &entity.Recording{
			Base:           base(d, &x.Base, &y.Base),
			Title:          d.str(x.Title, y.Title),
			Disambiguation: d.str(x.Disambiguation, y.Disambiguation),
			Length:         d.num(x.Length, y.Length),
			ISRCs:          Union(x.ISRCs, y.ISRCs),
			Credits:        seqOf(d, x.Credits, y.Credits),
		}
	case *entity.Track:
		y := b.(*entity.Track)
		return &entity.Track{
			Base:      base(d, &x.Base, &y.Base),
			Title:     d.str(x.Title, y.Title),
			Position:  d.num(x.Position, y.Position),
			Length:    d.num(x.Length, y.Length),
			Audio:     d.str(x.Audio, y.Audio),
			Recording: childOf(d, x.Recording, y.Recording),
			Credits:   seqOf(d, x.Credits, y.Credits),
		}
	case *entity.Medium:
		y := b.(*entity.Medium)
		return &entity.Medium{
			Base:     base(d, &x.Base, &y.Base),
			Position: d.num(x.Position, y.Position),
			Format:   d.str(x.Format, y.Format),
			Title:    d.str(x.Title, y.Title),
			Tracks:   seqOf(d, x.Tracks, y.Tracks),
		}
	default:
		panic(fmt.Sprintf("merge: unsupported entity %T", a))
	}
}

func childOf[T entity.Entity](d discipline, a, b T) T {
	var zero T
	switch {
	case isNil(a) && isNil(b):
		return zero
	case isNil(a):
		return entity.Clone(b).(T)
	case isNil(b):
		return entity.Clone(a).(T)
	}
	return d.child(a, b).(T)
}

func seqOf[T entity.Entity](d discipline, a, b []T) []T {
	groups := make(map[string][]entity.Entity)
	var order []string
	for _, seq := range [][]T{a, b} {
		for _, x := range seq {
			if isNil(x) {
				continue
			}
			sig := entity.Signature(x)
			if _, ok := groups[sig]; !ok {
				order = append(order, sig)
			}
			groups[sig] = append(groups[sig], x)
		}
	}
	if len(order) == 0 {
		return nil
	}
	out := make([]T, 0, len(order))
	for _, sig := range order {
		for _, m := range d.group(groups[sig]) {
			out = append(out, m.(T))
		}
	}
	entity.SortChildren(out)
	return out
}

func isNil(e any) bool {
	if e == nil {
		return true
	}
	v := reflect.ValueOf(e)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
