package merge

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/crate/internal/entity"
)

var p = entity.Ptr[string]

func artist(name, disambiguation string, genres ...string) *entity.Artist {
	a := &entity.Artist{Name: p(name)}
	if disambiguation != "" {
		a.Disambiguation = p(disambiguation)
	}
	for _, g := range genres {
		a.Genres = append(a.Genres, &entity.Genre{Name: p(g)})
	}
	return a
}

func TestMergeAlgebra(t *testing.T) {
	a := artist("Björk", "", "art pop")
	a.Country = p("IS")
	b := artist("Björk", "", "trip hop")
	b.SortName = p("Björk")
	b.Links = entity.NewSet("https://bjork.com")
	c := artist("Björk", "", "art pop", "electronic")
	c.IDs.MusicBrainz = p("87c5dedd")

	ab, ok := Merge(a, b)
	require.True(t, ok)
	ba, ok := Merge(b, a)
	require.True(t, ok)
	assert.True(t, entity.Equal(ab, ba), "commutative")

	abc1, ok := Merge(ab, c)
	require.True(t, ok)
	bc, ok := Merge(b, c)
	require.True(t, ok)
	abc2, ok := Merge(a, bc)
	require.True(t, ok)
	assert.True(t, entity.Equal(abc1, abc2), "associative")

	aa, ok := Merge(a, a)
	require.True(t, ok)
	assert.True(t, entity.Equal(a, aa), "idempotent")

	nilMerged, ok := Merge(nil, a)
	require.True(t, ok)
	assert.True(t, entity.Equal(a, nilMerged), "nil identity")
}

type combineFunc func(a, b entity.Entity) (entity.Entity, bool)

func joinFunc(a, b entity.Entity) (entity.Entity, bool) { return Join(a, b), true }

func withGenres(gs ...*entity.Genre) *entity.Artist {
	return &entity.Artist{Name: p("X"), Genres: gs}
}

func withMedia(ms ...*entity.Medium) *entity.Release {
	return &entity.Release{Title: p("Post"), Media: ms}
}

func genre(name, disambiguation string) *entity.Genre {
	g := &entity.Genre{Name: p(name)}
	if disambiguation != "" {
		g.Disambiguation = p(disambiguation)
	}
	return g
}

func assertAlgebra(t *testing.T, combine combineFunc, a, b, c entity.Entity) {
	t.Helper()
	must := func(x, y entity.Entity) entity.Entity {
		t.Helper()
		out, ok := combine(x, y)
		require.True(t, ok)
		return out
	}
	for _, pair := range [][2]entity.Entity{{a, b}, {b, c}, {a, c}} {
		assert.True(t, entity.Equal(must(pair[0], pair[1]), must(pair[1], pair[0])), "commutative")
	}
	assert.True(t, entity.Equal(must(must(a, b), c), must(a, must(b, c))), "associative")
	assert.True(t, entity.Equal(must(must(a, c), b), must(a, must(c, b))), "associative, reordered")
	for _, x := range []entity.Entity{a, b, c} {
		xx := must(x, x)
		assert.True(t, entity.Equal(x, xx), "idempotent")
		want, err := entity.MarshalCanonical(entity.Clone(x))
		require.NoError(t, err)
		got, err := entity.MarshalCanonical(xx)
		require.NoError(t, err)
		assert.Equal(t, string(want), string(got), "idempotent in canonical form")
	}
}

func TestSequenceAlgebra(t *testing.T) {
	mb := func(id string) entity.Base { return entity.Base{IDs: entity.KnownIDs{MusicBrainz: p(id)}} }
	linked := genre("rock", "")
	linked.Links = entity.NewSet("https://example.org/rock")

	tests := []struct {
		name    string
		a, b, c entity.Entity
		// fallible is false when some signature group conflicts, which
		// only the total discipline resolves.
		fallible bool
	}{
		{
			name:     "same name, different disambiguations",
			a:        withGenres(linked),
			b:        withGenres(genre("rock", "1")),
			c:        withGenres(genre("rock", "0")),
			fallible: true,
		},
		{
			name:     "name folded for matching",
			a:        withGenres(genre("Trip Hop", "")),
			b:        withGenres(genre("trip  hop", ""), genre("dub", "")),
			c:        withGenres(genre("dub", "")),
			fallible: false,
		},
		{
			name: "unsorted media",
			a: withMedia(
				&entity.Medium{Position: entity.Ptr(2), Format: p("CD")},
				&entity.Medium{Position: entity.Ptr(1), Format: p("CD")},
			),
			b:        withMedia(&entity.Medium{Position: entity.Ptr(1), Base: entity.Base{Links: entity.NewSet("l")}}),
			c:        withMedia(&entity.Medium{Position: entity.Ptr(3)}, &entity.Medium{Position: entity.Ptr(2)}),
			fallible: true,
		},
		{
			name: "keyed tracks",
			a: &entity.Medium{Tracks: []*entity.Track{
				{Base: entity.Base{Key: "t2"}, Title: p("Hyperballad")},
				{Base: entity.Base{Key: "t1"}, Position: entity.Ptr(1)},
			}},
			b: &entity.Medium{Tracks: []*entity.Track{{Base: entity.Base{Key: "t1"}, Title: p("Army of Me")}}},
			c: &entity.Medium{Tracks: []*entity.Track{
				{Base: entity.Base{Key: "t2"}, Position: entity.Ptr(2), Length: entity.Ptr(321000)},
			}},
			fallible: true,
		},
		{
			name: "keyed tracks with conflicting lengths",
			a:    &entity.Medium{Tracks: []*entity.Track{{Base: entity.Base{Key: "t1"}, Length: entity.Ptr(1000)}}},
			b:    &entity.Medium{Tracks: []*entity.Track{{Base: entity.Base{Key: "t1"}, Length: entity.Ptr(1200)}}},
			c:    &entity.Medium{Tracks: []*entity.Track{{Base: entity.Base{Key: "t1"}, Title: p("One")}}},
		},
		{
			name: "children matched by known identifier",
			a:    withGenres(&entity.Genre{Base: mb("g1"), Name: p("house")}),
			b: withGenres(
				&entity.Genre{Base: entity.Base{IDs: entity.KnownIDs{MusicBrainz: p("g1")}, Links: entity.NewSet("l")}},
				&entity.Genre{Base: mb("g2")},
			),
			c:        withGenres(&entity.Genre{Base: mb("g2"), Name: p("techno")}),
			fallible: true,
		},
		{
			name: "credits matched by name, then position",
			a: &entity.Recording{Credits: []*entity.ArtistCredit{
				{Name: p("Björk"), Position: entity.Ptr(0)},
				{Position: entity.Ptr(1), JoinPhrase: p(" & ")},
			}},
			b: &entity.Recording{Credits: []*entity.ArtistCredit{
				{Name: p("björk"), Artist: &entity.Artist{Name: p("Björk")}},
			}},
			c: &entity.Recording{Credits: []*entity.ArtistCredit{
				{Position: entity.Ptr(1), Artist: &entity.Artist{Name: p("Tricky")}},
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name+"/join", func(t *testing.T) {
			assertAlgebra(t, joinFunc, tt.a, tt.b, tt.c)
		})
		if tt.fallible {
			t.Run(tt.name+"/merge", func(t *testing.T) {
				assertAlgebra(t, Merge, tt.a, tt.b, tt.c)
			})
		}
	}
}

func TestMergeDistinctDisambiguationsStaySeparate(t *testing.T) {
	linked := genre("rock", "")
	linked.Links = entity.NewSet("https://example.org/rock")
	a, b, c := withGenres(linked), withGenres(genre("rock", "1")), withGenres(genre("rock", "0"))

	ab, ok := Merge(a, b)
	require.True(t, ok)
	abc, ok := Merge(ab, c)
	require.True(t, ok)
	assert.Len(t, abc.(*entity.Artist).Genres, 3)

	ca, ok := Merge(c, a)
	require.True(t, ok)
	cab, ok := Merge(ca, b)
	require.True(t, ok)
	assert.True(t, entity.Equal(abc, cab))
}

func TestMergeOrdersMediaByPosition(t *testing.T) {
	x := withMedia(
		&entity.Medium{Position: entity.Ptr(2)},
		&entity.Medium{Position: entity.Ptr(1)},
	)
	xx, ok := Merge(x, x)
	require.True(t, ok)

	media := xx.(*entity.Release).Media
	require.Len(t, media, 2)
	assert.Equal(t, 1, *media[0].Position)
	assert.Equal(t, 2, *media[1].Position)
	assert.True(t, entity.Equal(x, xx))
}

func TestMergeConflicts(t *testing.T) {
	tests := []struct {
		name string
		a, b entity.Entity
	}{
		{"different kinds", artist("X", ""), &entity.Genre{Name: p("X")}},
		{"different keys", &entity.Genre{Base: entity.Base{Key: "1"}}, &entity.Genre{Base: entity.Base{Key: "2"}}},
		{"conflicting scalar", artist("Low", ""), artist("High", "")},
		{"disambiguation preserved", artist("Nirvana", "US grunge band"), artist("Nirvana", "60s UK band")},
		{"conflicting known id", &entity.Artist{Base: entity.Base{IDs: entity.KnownIDs{Discogs: p("1")}}},
			&entity.Artist{Base: entity.Base{IDs: entity.KnownIDs{Discogs: p("2")}}}},
		{"conflicting single child", &entity.Track{Recording: &entity.Recording{Length: entity.Ptr(1)}},
			&entity.Track{Recording: &entity.Recording{Length: entity.Ptr(2)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, ok := Merge(tt.a, tt.b)
			assert.False(t, ok)
			assert.Nil(t, out)
		})
	}
}

func TestMergeGenresUnion(t *testing.T) {
	a := artist("Massive Attack", "", "trip hop", "electronic")
	b := artist("Massive Attack", "", "electronic", "dub", "downtempo")

	out, ok := Merge(a, b)
	require.True(t, ok)

	var names []string
	for _, g := range out.(*entity.Artist).Genres {
		names = append(names, *g.Name)
	}
	assert.ElementsMatch(t, []string{"trip hop", "electronic", "dub", "downtempo"}, names)
}

func TestMergeKeepsUnmergeableChildren(t *testing.T) {
	a := &entity.Medium{Tracks: []*entity.Track{{Position: entity.Ptr(1), Title: p("One")}}}
	b := &entity.Medium{Tracks: []*entity.Track{{Position: entity.Ptr(1), Title: p("Uno")}}}

	out, ok := Merge(a, b)
	require.True(t, ok)
	assert.Len(t, out.(*entity.Medium).Tracks, 2)
}

func TestMergeNestedReleaseGolden(t *testing.T) {
	a := &entity.Release{
		Title: p("Post"),
		Date:  p("1995"),
		Media: []*entity.Medium{{
			Position: entity.Ptr(1),
			Tracks: []*entity.Track{
				{Position: entity.Ptr(1), Title: p("Army of Me")},
				{Position: entity.Ptr(2), Title: p("Hyperballad")},
			},
		}},
	}
	b := &entity.Release{
		Title:   p("Post"),
		Barcode: p("5016958997028"),
		Media: []*entity.Medium{{
			Position: entity.Ptr(1),
			Format:   p("CD"),
			Tracks: []*entity.Track{
				{Position: entity.Ptr(3), Title: p("The Modern Things")},
				{Position: entity.Ptr(2), Title: p("Hyperballad"), Length: entity.Ptr(321000)},
			},
		}},
	}

	ab, ok := Merge(a, b)
	require.True(t, ok)
	ba, ok := Merge(b, a)
	require.True(t, ok)
	require.True(t, entity.Equal(ab, ba))

	data, err := entity.MarshalCanonical(ab)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "merged_release", data)
}

func TestJoin(t *testing.T) {
	a := &entity.Recording{
		Base:   entity.Base{Key: "a"},
		Title:  p("Teardrop"),
		Length: entity.Ptr(330000),
		ISRCs:  entity.NewSet("GBAAA9800001"),
	}
	b := &entity.Recording{
		Base:   entity.Base{Key: "b"},
		Title:  p("Teardrop (edit)"),
		Length: entity.Ptr(300000),
		ISRCs:  entity.NewSet("GBAAA9800002"),
	}

	out := Join(a, b).(*entity.Recording)
	assert.Equal(t, "b", out.Key)
	assert.Equal(t, "Teardrop (edit)", *out.Title)
	assert.Equal(t, 330000, *out.Length)
	assert.Equal(t, entity.Set{"GBAAA9800001", "GBAAA9800002"}, out.ISRCs)

	assert.True(t, entity.Equal(Join(a, b), Join(b, a)), "commutative")
	assert.True(t, entity.Equal(a, Join(a, a)), "idempotent")
	assert.True(t, entity.Equal(a, Join(nil, a)), "nil identity")
	assert.True(t, entity.Equal(Join(Join(a, b), a), Join(a, Join(b, a))), "associative")
}

func TestJoinPanicsOnKindMismatch(t *testing.T) {
	assert.Panics(t, func() { Join(&entity.Artist{}, &entity.Genre{}) })
}

func TestJoinSeqMatchesByKey(t *testing.T) {
	a := []*entity.Track{{Base: entity.Base{Key: "t1"}, Length: entity.Ptr(1000)}}
	b := []*entity.Track{{Base: entity.Base{Key: "t1"}, Length: entity.Ptr(1200)}}

	out := JoinSeq(a, b)
	require.Len(t, out, 1)
	assert.Equal(t, 1200, *out[0].Length)

	assert.Len(t, MergeSeq(a, b), 2)
}

func TestJoinAll(t *testing.T) {
	assert.Nil(t, JoinAll())
	out := JoinAll(&entity.Genre{Name: p("pop")}, nil, &entity.Genre{Name: p("synth-pop")})
	assert.Equal(t, "synth-pop", entity.Name(out))
}

func TestCombinators(t *testing.T) {
	v, ok := Coalesce(p("a"), nil)
	assert.True(t, ok)
	assert.Equal(t, "a", *v)
	_, ok = Coalesce(p("a"), p("b"))
	assert.False(t, ok)

	assert.Equal(t, "abc", *LongerString(p("abc"), p("zz")))
	assert.Equal(t, "zz", *LongerString(p("aa"), p("zz")))
	assert.Nil(t, LongerString(nil, nil))
	assert.Equal(t, 5, *MaxInt(entity.Ptr(5), entity.Ptr(3)))
	assert.Equal(t, "b", MaxString("a", "b"))
	assert.Equal(t, "a", MaxString("a", ""))
}
