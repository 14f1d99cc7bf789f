package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldsOmitsKeyAndAbsentFields(t *testing.T) {
	tr := &Track{
		Base:   Base{Key: "t1"},
		Title:  Ptr("Hyperballad"),
		Length: Ptr(321000),
	}
	fields, err := Fields(tr)
	require.NoError(t, err)

	assert.Len(t, fields, 2)
	assert.JSONEq(t, `"Hyperballad"`, string(fields["title"]))
	assert.JSONEq(t, `321000`, string(fields["length"]))
	assert.NotContains(t, fields, "key")
}

func TestSetField(t *testing.T) {
	tr := &Track{Base: Base{Key: "t1"}, Title: Ptr("Old")}

	require.NoError(t, SetField(tr, "title", json.RawMessage(`"New"`)))
	require.NoError(t, SetField(tr, "length", json.RawMessage(`1000`)))

	assert.Equal(t, "t1", tr.Key)
	assert.Equal(t, "New", *tr.Title)
	assert.Equal(t, 1000, *tr.Length)

	require.NoError(t, SetField(tr, "length", json.RawMessage(`null`)))
	assert.Nil(t, tr.Length)
}

func TestSetFieldRejectsKeyAndUnknown(t *testing.T) {
	tr := &Track{}
	assert.ErrorIs(t, SetField(tr, "key", json.RawMessage(`"x"`)), ErrKeyField)
	assert.Error(t, SetField(tr, "colour", json.RawMessage(`"red"`)))
}

func TestFieldsRoundTripThroughSetField(t *testing.T) {
	src := &Release{
		Title:   Ptr("Post"),
		Date:    Ptr("1995-06-13"),
		Artwork: NewSet("abc"),
	}
	src.IDs = KnownIDs{MusicBrainz: Ptr("mb-1")}
	fields, err := Fields(src)
	require.NoError(t, err)

	dst := &Release{}
	for name, value := range fields {
		require.NoError(t, SetField(dst, name, value))
	}
	assert.True(t, Equal(src, dst))
}

func TestEqualAndClone(t *testing.T) {
	a := &Artist{Name: Ptr("Björk"), Genres: []*Genre{{Name: Ptr("art pop")}}}
	c := Clone(a).(*Artist)

	assert.True(t, Equal(a, c))
	c.Genres[0].Name = Ptr("trip hop")
	assert.False(t, Equal(a, c))
	assert.Equal(t, "art pop", *a.Genres[0].Name)

	assert.False(t, Equal(a, &Genre{Name: Ptr("Björk")}))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(a, nil))
}

func TestReferences(t *testing.T) {
	bjork := &Artist{Name: Ptr("Björk")}
	tricky := &Artist{Name: Ptr("Tricky")}
	pop := &Genre{Name: Ptr("pop")}
	r := &Release{
		Title:   Ptr("Post"),
		Credits: []*ArtistCredit{{Artist: bjork}},
		Genres:  []*Genre{pop},
		Media: []*Medium{{
			Tracks: []*Track{{
				Title:   Ptr("Enjoy"),
				Credits: []*ArtistCredit{{Artist: tricky}},
			}},
		}},
	}

	refs := References(r)
	require.Len(t, refs, 3)
	assert.Same(t, bjork, refs[0])
	assert.Same(t, pop, refs[1])
	assert.Same(t, tricky, refs[2])

	SetKey(refs[0], "a1")
	assert.Equal(t, "a1", r.Credits[0].Artist.Key)
}

func TestDigests(t *testing.T) {
	r := &Release{
		Artwork: NewSet("cover"),
		Media:   []*Medium{{Tracks: []*Track{{Audio: Ptr("audio1")}, {Audio: Ptr("cover")}}}},
	}
	assert.Equal(t, []string{"audio1", "cover"}, []string(Digests(r)))
}

func TestDecodeAndKinds(t *testing.T) {
	for _, k := range Kinds() {
		e, err := New(k)
		require.NoError(t, err)
		assert.Equal(t, k, e.Kind())

		parsed, err := ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}

	_, err := ParseKind("podcast")
	assert.ErrorIs(t, err, ErrUnknownKind)

	e, err := Decode(KindGenre, []byte(`{"key":"g1","name":"jazz"}`))
	require.NoError(t, err)
	assert.Equal(t, "g1", KeyOf(e))
	assert.Equal(t, "jazz", Name(e))
}

func TestSetNormalizes(t *testing.T) {
	s := NewSet("b", "a", "b")
	assert.Equal(t, Set{"a", "b"}, s)
	assert.Equal(t, Set{"a", "b", "c"}, s.Union(NewSet("c", "a")))
	assert.True(t, s.Contains("a"))
	assert.Nil(t, NewSet())

	var decoded Set
	require.NoError(t, json.Unmarshal([]byte(`["z","a","z"]`), &decoded))
	assert.Equal(t, Set{"a", "z"}, decoded)
}

func TestCollapseAndAssign(t *testing.T) {
	a := &Artist{Base: Base{Key: "a1"}, Name: Ptr("Björk")}
	r := &Release{Credits: []*ArtistCredit{{Name: Ptr("Björk"), Artist: a}}}

	Collapse(r.Credits[0].Artist)
	assert.Equal(t, &Artist{Base: Base{Key: "a1"}}, r.Credits[0].Artist)

	Assign(r.Credits[0].Artist, &Artist{Base: Base{Key: "a1"}, Name: Ptr("Björk"), Country: Ptr("IS")})
	assert.Equal(t, "IS", *r.Credits[0].Artist.Country)
	assert.Panics(t, func() { Assign(a, &Genre{}) })
}
