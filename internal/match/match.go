// Package match locates the stored entity a candidate describes.
//
// Resolution tries, in order of strength: the storage key, each external
// identifier scheme, then a composite of normalized name and
// disambiguation. A stored entity that cannot merge with the candidate is
// never returned by the identifier or name steps, so two artists sharing a
// name but with different disambiguations stay distinct.
package match

import (
	"context"
	"fmt"

	"github.com/roach88/crate/internal/entity"
	"github.com/roach88/crate/internal/merge"
	"github.com/roach88/crate/internal/query"
	"github.com/roach88/crate/internal/store"
)

// Type records which signal produced a match.
type Type string

const (
	None        Type = ""
	Key         Type = "key"
	MusicBrainz Type = "musicbrainz"
	Discogs     Type = "discogs"
	Wikidata    Type = "wikidata"
	Name        Type = "name"
)

func schemeType(s entity.Scheme) Type {
	switch s {
	case entity.SchemeMusicBrainz:
		return MusicBrainz
	case entity.SchemeDiscogs:
		return Discogs
	case entity.SchemeWikidata:
		return Wikidata
	}
	return None
}

// nameKinds are matched by normalized name. Children such as tracks and
// media are only meaningful inside their parent.
var nameKinds = map[entity.Kind]bool{
	entity.KindArtist:       true,
	entity.KindGenre:        true,
	entity.KindRelease:      true,
	entity.KindReleaseGroup: true,
	entity.KindRecording:    true,
}

// FindMatch returns the stored entity candidate describes, or nil with
// None. It only reads; callers run it inside the same Store.Update as the
// merge and insert that follow.
func FindMatch(ctx context.Context, r store.Reader, candidate entity.Entity) (entity.Entity, Type, error) {
	if key := entity.KeyOf(candidate); key != "" {
		stored, err := r.Get(ctx, candidate.Kind(), key)
		if err != nil {
			return nil, None, fmt.Errorf("match by key: %w", err)
		}
		if stored != nil {
			return stored, Key, nil
		}
	}

	var all []entity.Entity
	loadAll := func() ([]entity.Entity, error) {
		if all != nil {
			return all, nil
		}
		var err error
		all, err = r.List(ctx, candidate.Kind(), nil)
		return all, err
	}

	ids := entity.IDsOf(candidate)
	for _, scheme := range entity.Schemes() {
		want := ids.Get(scheme)
		if want == nil {
			continue
		}
		var found []entity.Entity
		var err error
		if finder, ok := r.(query.Finder); ok {
			found, err = finder.Find(ctx, query.ByID(candidate.Kind(), scheme, *want))
		} else {
			found, err = loadAll()
		}
		if err != nil {
			return nil, None, fmt.Errorf("match by %s: %w", scheme, err)
		}
		for _, stored := range found {
			got := entity.IDsOf(stored).Get(scheme)
			if got == nil || *got != *want {
				continue
			}
			if _, ok := merge.Merge(stored, withoutKey(candidate)); ok {
				return stored, schemeType(scheme), nil
			}
		}
	}

	if !nameKinds[candidate.Kind()] || entity.Name(candidate) == "" {
		return nil, None, nil
	}
	name := Normalize(entity.Name(candidate))
	disambiguation := Normalize(entity.Disambiguation(candidate))
	found, err := loadAll()
	if err != nil {
		return nil, None, fmt.Errorf("match by name: %w", err)
	}
	for _, stored := range found {
		if Normalize(entity.Name(stored)) != name || Normalize(entity.Disambiguation(stored)) != disambiguation {
			continue
		}
		if _, ok := merge.Merge(stored, Adopt(withoutKey(candidate), stored)); ok {
			return stored, Name, nil
		}
	}
	return nil, None, nil
}

// Normalize folds s for comparison: NFC, case-folded, with runs of white
// space collapsed.
func Normalize(s string) string { return entity.FoldName(s) }

// withoutKey drops the candidate's key so that an unknown key does not
// block a match on a weaker signal.
func withoutKey(e entity.Entity) entity.Entity {
	if entity.KeyOf(e) == "" {
		return e
	}
	c := entity.Clone(e)
	entity.SetKey(c, "")
	return c
}

// Adopt returns a copy of candidate carrying the stored entity's name and
// disambiguation. After a name match the raw strings may differ in case or
// spacing; the stored spelling wins so that the two merge.
func Adopt(candidate, stored entity.Entity) entity.Entity {
	c := entity.Clone(candidate)
	name := ptr(entity.Name(stored))
	dis := ptr(entity.Disambiguation(stored))
	switch v := c.(type) {
	case *entity.Artist:
		v.Name, v.Disambiguation = name, dis
	case *entity.Genre:
		v.Name, v.Disambiguation = name, dis
	case *entity.Release:
		v.Title, v.Disambiguation = name, dis
	case *entity.ReleaseGroup:
		v.Title = name
	case *entity.Recording:
		v.Title, v.Disambiguation = name, dis
	}
	return c
}

func ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
