package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignature(t *testing.T) {
	tests := []struct {
		name string
		e    Entity
		want string
	}{
		{"key first", &Genre{Base: Base{Key: "g1", IDs: KnownIDs{MusicBrainz: Ptr("m")}}, Name: Ptr("rock")}, "key:g1"},
		{"first known id", &Genre{Base: Base{IDs: KnownIDs{Discogs: Ptr("d"), Wikidata: Ptr("w")}}, Name: Ptr("rock")}, "id:discogs:d"},
		{"folded name", &Genre{Name: Ptr("  Trip   HOP ")}, "name:trip hop\x00"},
		{"name with disambiguation", &Artist{Name: Ptr("Nirvana"), Disambiguation: Ptr("US grunge band")}, "name:nirvana\x00us grunge band"},
		{"position", &Medium{Position: Ptr(2), Format: Ptr("CD")}, "pos:2"},
		{"content", &Medium{Format: Ptr("CD")}, `doc:{"format":"CD"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Signature(tt.e))
		})
	}
}

func TestNormalizeSortsNestedSequences(t *testing.T) {
	r := &Release{
		Title: Ptr("Post"),
		Media: []*Medium{
			{Position: Ptr(2), Tracks: []*Track{{Position: Ptr(2)}, {Position: Ptr(1)}}},
			{Position: Ptr(1)},
		},
		Genres: []*Genre{{Name: Ptr("trip hop")}, {Name: Ptr("art pop")}},
	}
	Normalize(r)

	assert.Equal(t, 1, *r.Media[0].Position)
	assert.Equal(t, 1, *r.Media[1].Tracks[0].Position)
	assert.Equal(t, "art pop", *r.Genres[0].Name)
}

func TestDecodeNormalizes(t *testing.T) {
	e, err := Decode(KindMedium, []byte(`{"tracks":[{"position":3},{"title":"Bonus"},{"position":1}]}`))
	require.NoError(t, err)

	tracks := e.(*Medium).Tracks
	require.Len(t, tracks, 3)
	assert.Equal(t, 1, *tracks[0].Position)
	assert.Equal(t, 3, *tracks[1].Position)
	assert.Equal(t, "Bonus", *tracks[2].Title, "unpositioned children sort last")
}

func TestEqualIgnoresChildOrder(t *testing.T) {
	a := &Artist{Name: Ptr("Björk"), Genres: []*Genre{{Name: Ptr("pop")}, {Name: Ptr("electronic")}}}
	b := &Artist{Name: Ptr("Björk"), Genres: []*Genre{{Name: Ptr("electronic")}, {Name: Ptr("pop")}}}
	assert.True(t, Equal(a, b))
	assert.Equal(t, "pop", *a.Genres[0].Name, "Equal leaves its arguments alone")
}

func TestFoldName(t *testing.T) {
	assert.Equal(t, "björk", FoldName("BJÖRK"))
	assert.Equal(t, FoldName("Bj\u00f6rk"), FoldName("Bjo\u0308rk"))
	assert.Equal(t, "massive attack", FoldName(" Massive\tAttack "))
}
