package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/crate/internal/entity"
	"github.com/roach88/crate/internal/oplog"
)

func TestOpenAppliesPragmas(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "crate.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.verifyPragma("journal_mode", "wal"))
	require.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestReopenKeepsStateAndActor(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "crate.db")

	s, err := Open(path)
	require.NoError(t, err)
	actor, err := s.ActorID(ctx)
	require.NoError(t, err)
	a, err := s.Insert(ctx, &entity.Artist{Name: p("Björk")})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path, WithActorID("ignored"))
	require.NoError(t, err)
	defer s.Close()

	again, err := s.ActorID(ctx)
	require.NoError(t, err)
	assert.Equal(t, actor, again)

	got, err := s.Get(ctx, entity.KindArtist, entity.KeyOf(a))
	require.NoError(t, err)
	assert.True(t, entity.Equal(a, got))
}

func TestEventsOrderedByTimestampThenActor(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "crate.db"))
	require.NoError(t, err)
	defer s.Close()

	ref := entity.Ref{Kind: entity.KindArtist, Key: "k"}
	_, err = s.AppendEvents(ctx,
		oplog.SetEvent("b", "02", ref, "name", []byte(`"B"`)),
		oplog.SetEvent("b", "01", ref, "name", []byte(`"A"`)),
		oplog.SetEvent("a", "02", ref, "country", []byte(`"IS"`)),
	)
	require.NoError(t, err)

	events, err := s.Events(ctx)
	require.NoError(t, err)
	var order []string
	for _, ev := range events {
		order = append(order, ev.Timestamp+"/"+ev.Actor)
	}
	assert.Equal(t, []string{"01/b", "02/a", "02/b"}, order)

	snap, err := s.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, events, snap.Log)
}

func TestOpenReadOnly(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")

	s, err := Open(path)
	require.NoError(t, err)
	actor, err := s.ActorID(ctx)
	require.NoError(t, err)
	a, err := s.Insert(ctx, &entity.Artist{Name: p("Björk")})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	ro, err := OpenReadOnly(path, WithActorID("other"))
	require.NoError(t, err)

	got, err := ro.Get(ctx, entity.KindArtist, entity.KeyOf(a))
	require.NoError(t, err)
	assert.True(t, entity.Equal(a, got))

	roActor, err := ro.ActorID(ctx)
	require.NoError(t, err)
	assert.Equal(t, actor, roActor)

	_, err = ro.Insert(ctx, &entity.Artist{Name: p("Sugarcubes")})
	assert.Error(t, err, "writes fail on a read-only store")
	require.NoError(t, ro.Close())

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestOpenReadOnlyMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.db")

	_, err := OpenReadOnly(path)
	require.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "no file is created")
}
