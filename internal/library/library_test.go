package library

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/crate/internal/entity"
	"github.com/roach88/crate/internal/logging"
	"github.com/roach88/crate/internal/oplog"
	"github.com/roach88/crate/internal/query"
	"github.com/roach88/crate/internal/store"
	"github.com/roach88/crate/internal/testutil"
)

var p = entity.Ptr[string]

func newLibrary(t *testing.T) (*Library, store.Store) {
	t.Helper()
	s := store.NewMemStore(
		store.WithKeyGenerator(testutil.NewSequentialKeys("k")),
		store.WithActorID("actor-a"),
	)
	clock := oplog.NewClock(testutil.NewDeterministicClock().Now, testutil.ZeroEntropy{})
	lib, err := New(context.Background(), s, WithClock(clock), WithLogger(logging.Discard()))
	require.NoError(t, err)
	return lib, s
}

func post() *entity.Release {
	return &entity.Release{
		Title: p("Post"),
		Credits: []*entity.ArtistCredit{{
			Name:   p("Björk"),
			Artist: &entity.Artist{Name: p("Björk")},
		}},
	}
}

func TestSavePersistsReferencesFirst(t *testing.T) {
	ctx := context.Background()
	lib, s := newLibrary(t)

	saved, err := lib.Save(ctx, post())
	require.NoError(t, err)
	assert.Equal(t, "k-0002", entity.KeyOf(saved))

	rel := saved.(*entity.Release)
	require.Len(t, rel.Credits, 1)
	assert.Equal(t, &entity.Artist{Base: entity.Base{Key: "k-0001"}}, rel.Credits[0].Artist,
		"embedded artist is reduced to a reference")

	artists, err := s.List(ctx, entity.KindArtist, saved)
	require.NoError(t, err)
	require.Len(t, artists, 1)
	assert.Equal(t, "Björk", entity.Name(artists[0]))

	events, err := s.Events(ctx)
	require.NoError(t, err)
	var ops []string
	for _, ev := range events {
		assert.Equal(t, "actor-a", ev.Actor)
		ops = append(ops, string(ev.Op)+":"+string(ev.Kind)+":"+ev.Field)
	}
	assert.Equal(t, []string{
		"set:artist:name",
		"set:release:credits",
		"set:release:title",
		"link:release:artist",
	}, ops)
}

func TestSaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	lib, s := newLibrary(t)

	first, err := lib.Save(ctx, post())
	require.NoError(t, err)
	second, err := lib.Save(ctx, post())
	require.NoError(t, err)

	assert.Equal(t, entity.KeyOf(first), entity.KeyOf(second))
	assert.True(t, entity.Equal(first, second))

	releases, err := s.List(ctx, entity.KindRelease, nil)
	require.NoError(t, err)
	assert.Len(t, releases, 1)
	artists, err := s.List(ctx, entity.KindArtist, nil)
	require.NoError(t, err)
	assert.Len(t, artists, 1)

	events, err := s.Events(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 4, "an unchanged save logs nothing")
}

func TestSaveLogsOnlyChangedFields(t *testing.T) {
	ctx := context.Background()
	lib, s := newLibrary(t)

	a, err := lib.Save(ctx, &entity.Artist{Name: p("Portishead")})
	require.NoError(t, err)

	_, err = lib.Save(ctx, &entity.Artist{Base: entity.Base{Key: entity.KeyOf(a)}, Country: p("GB")})
	require.NoError(t, err)

	events, err := lib.History(ctx, entity.KindArtist, entity.KeyOf(a))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "name", events[0].Field)
	assert.Equal(t, "country", events[1].Field)
	assert.JSONEq(t, `"GB"`, string(events[1].Value))
	assert.Negative(t, oplog.Compare(events[0], events[1]))

	latest, ok, err := s.LatestEvent(ctx, entity.KindArtist, entity.KeyOf(a), "country")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, events[1], latest)
}

func TestSaveKeyConflictFallsBackToJoin(t *testing.T) {
	ctx := context.Background()
	lib, _ := newLibrary(t)

	a, err := lib.Save(ctx, &entity.Artist{Name: p("Björk"), Country: p("IS")})
	require.NoError(t, err)

	got, err := lib.Save(ctx, &entity.Artist{Base: entity.Base{Key: entity.KeyOf(a)}, Country: p("ISL")})
	require.NoError(t, err)
	assert.Equal(t, entity.KeyOf(a), entity.KeyOf(got))
	assert.Equal(t, "ISL", *got.(*entity.Artist).Country)
	assert.Equal(t, "Björk", entity.Name(got))
}

func TestDiffBaseForNewNode(t *testing.T) {
	prev := &entity.Artist{Base: entity.Base{Key: "k-0001"}, Name: p("Nirvana"), Disambiguation: p("US grunge band")}
	kept := &entity.Artist{Base: entity.Base{Key: "k-0002"}, Name: p("Nirvana"), Disambiguation: p("60s UK band")}
	merged := &entity.Artist{Base: entity.Base{Key: "k-0001"}, Name: p("Nirvana"),
		Disambiguation: p("US grunge band"), Country: p("US")}

	assert.Nil(t, diffBase(nil, kept))
	assert.Nil(t, diffBase(prev, kept), "a result under a new key is diffed against nothing")
	assert.Equal(t, prev, diffBase(prev, merged))

	changes, err := oplog.Diff(diffBase(prev, kept), kept)
	require.NoError(t, err)
	fields := make([]string, 0, len(changes))
	for _, ch := range changes {
		fields = append(fields, ch.Field)
		assert.NotEmpty(t, ch.Value, "nothing is cleared")
	}
	assert.ElementsMatch(t, []string{"name", "disambiguation"}, fields)
}

func TestSaveMatchesByID(t *testing.T) {
	ctx := context.Background()
	lib, _ := newLibrary(t)

	in := &entity.Artist{Name: p("Björk")}
	in.IDs.MusicBrainz = p("87c5dedd")
	a, err := lib.Save(ctx, in)
	require.NoError(t, err)

	// An unknown key from another replica does not block the ID match.
	other := &entity.Artist{Base: entity.Base{Key: "elsewhere"}, SortName: p("Björk")}
	other.IDs.MusicBrainz = p("87c5dedd")
	got, err := lib.Save(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, entity.KeyOf(a), entity.KeyOf(got))
	assert.Equal(t, "Björk", *got.(*entity.Artist).SortName)
}

func TestSaveNameMatchKeepsStoredSpelling(t *testing.T) {
	ctx := context.Background()
	lib, _ := newLibrary(t)

	a, err := lib.Save(ctx, &entity.Artist{Name: p("Massive Attack")})
	require.NoError(t, err)
	got, err := lib.Save(ctx, &entity.Artist{Name: p("massive  attack"), Country: p("GB")})
	require.NoError(t, err)

	assert.Equal(t, entity.KeyOf(a), entity.KeyOf(got))
	assert.Equal(t, "Massive Attack", entity.Name(got))
}

func TestSaveKeepsDistinctDisambiguations(t *testing.T) {
	ctx := context.Background()
	lib, s := newLibrary(t)

	_, err := lib.Save(ctx, &entity.Artist{Name: p("Nirvana"), Disambiguation: p("US grunge band")})
	require.NoError(t, err)
	_, err = lib.Save(ctx, &entity.Artist{Name: p("Nirvana"), Disambiguation: p("60s UK band")})
	require.NoError(t, err)

	artists, err := s.List(ctx, entity.KindArtist, nil)
	require.NoError(t, err)
	assert.Len(t, artists, 2)
}

func TestLinkLogsOnce(t *testing.T) {
	ctx := context.Background()
	lib, s := newLibrary(t)

	a, err := lib.Save(ctx, &entity.Artist{Name: p("Björk")})
	require.NoError(t, err)
	g, err := lib.Save(ctx, &entity.Genre{Name: p("art pop")})
	require.NoError(t, err)

	require.NoError(t, lib.Link(ctx, a, g))
	require.NoError(t, lib.Link(ctx, a, g))

	genres, err := s.List(ctx, entity.KindGenre, a)
	require.NoError(t, err)
	require.Len(t, genres, 1)

	events, err := lib.History(ctx, entity.KindArtist, entity.KeyOf(a))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, oplog.OpLink, events[1].Op)
	target, err := events[1].LinkTarget()
	require.NoError(t, err)
	assert.Equal(t, entity.RefOf(g), target)

	assert.Panics(t, func() {
		_ = lib.Link(ctx, a, &entity.Genre{Name: p("unsaved")})
	})
}

func TestExpand(t *testing.T) {
	ctx := context.Background()
	lib, _ := newLibrary(t)

	saved, err := lib.Save(ctx, post())
	require.NoError(t, err)

	full, err := lib.Expand(ctx, saved)
	require.NoError(t, err)
	assert.Equal(t, "Björk", entity.Name(full.(*entity.Release).Credits[0].Artist))
	assert.Empty(t, entity.Name(saved.(*entity.Release).Credits[0].Artist), "input untouched")
}

func TestFind(t *testing.T) {
	ctx := context.Background()
	lib, _ := newLibrary(t)

	_, err := lib.Save(ctx, &entity.Artist{Name: p("Björk"), Country: p("IS")})
	require.NoError(t, err)
	_, err = lib.Save(ctx, &entity.Artist{Name: p("Portishead"), Country: p("GB")})
	require.NoError(t, err)

	found, err := lib.Find(ctx, query.Query{Kind: entity.KindArtist, Where: query.Equals{Path: "country", Value: "IS"}})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Björk", entity.Name(found[0]))
}

func TestNewObservesExistingLog(t *testing.T) {
	ctx := context.Background()
	lib, s := newLibrary(t)

	_, err := lib.Save(ctx, &entity.Artist{Name: p("Björk")})
	require.NoError(t, err)
	last := lib.Clock().Last()

	// A restart with a clock that is behind the log still issues later
	// timestamps.
	behind := oplog.NewClock(testutil.NewDeterministicClock().Now, testutil.ZeroEntropy{})
	again, err := New(ctx, s, WithClock(behind), WithLogger(logging.Discard()))
	require.NoError(t, err)
	assert.Greater(t, again.Clock().Next(), last)
	assert.Equal(t, "actor-a", again.Actor())
}

func TestEdit(t *testing.T) {
	ctx := context.Background()
	lib, _ := newLibrary(t)

	a, err := lib.Save(ctx, &entity.Artist{Name: p("Björk"), Country: p("IS")})
	require.NoError(t, err)
	ref := entity.RefOf(a)

	got, err := lib.Edit(ctx, ref, "name", []byte(`"Bjork"`))
	require.NoError(t, err)
	assert.Equal(t, "Bjork", entity.Name(got))

	got, err = lib.Edit(ctx, ref, "country", nil)
	require.NoError(t, err)
	assert.Nil(t, got.(*entity.Artist).Country)

	history, err := lib.History(ctx, entity.KindArtist, ref.Key)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, "country", history[3].Field)
	assert.Empty(t, history[3].Value)

	// Editing to the current value logs nothing.
	_, err = lib.Edit(ctx, ref, "name", []byte(`"Bjork"`))
	require.NoError(t, err)
	history, err = lib.History(ctx, entity.KindArtist, ref.Key)
	require.NoError(t, err)
	assert.Len(t, history, 4)

	_, err = lib.Edit(ctx, entity.Ref{Kind: entity.KindArtist, Key: "nope"}, "name", []byte(`"x"`))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = lib.Edit(ctx, ref, "key", []byte(`"x"`))
	assert.ErrorIs(t, err, entity.ErrKeyField)
}
