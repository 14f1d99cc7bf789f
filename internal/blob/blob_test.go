package blob

import (
	"testing"

	"github.com/hack-pad/hackpadfs/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	fsys, err := mem.NewFS()
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewStore(fsys, "library/blobs")
	require.NoError(t, err)
	return s
}

func TestSum(t *testing.T) {
	assert.Equal(t,
		Digest("e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"),
		Sum(nil))
	assert.NoError(t, Sum([]byte("x")).Validate())
	assert.Error(t, Digest("abc").Validate())
	assert.Error(t, Digest("E3B0C44298FC1C149AFBF4C8996FB92427AE41E4649B934CA495991B7852B855").Validate())
}

func TestPutDeduplicates(t *testing.T) {
	s := newStore(t)
	cover := []byte("jpeg bytes")

	d1, created, err := s.Put(cover)
	require.NoError(t, err)
	assert.True(t, created)

	// The same bytes from a different source are stored once.
	d2, created, err := s.Put(append([]byte(nil), cover...))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, d1, d2)

	all, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []Digest{d1}, all)
}

func TestGetAndHas(t *testing.T) {
	s := newStore(t)
	d, _, err := s.Put([]byte("flac"))
	require.NoError(t, err)

	data, err := s.Get(d)
	require.NoError(t, err)
	assert.Equal(t, []byte("flac"), data)

	ok, err := s.Has(d)
	require.NoError(t, err)
	assert.True(t, ok)

	missing := Sum([]byte("other"))
	ok, err = s.Has(missing)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(missing)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseFileName(t *testing.T) {
	d := Sum([]byte("a"))
	got, ok := ParseFileName(d.FileName())
	assert.True(t, ok)
	assert.Equal(t, d, got)

	_, ok = ParseFileName("notes.txt")
	assert.False(t, ok)
	_, ok = ParseFileName("short.blob")
	assert.False(t, ok)
}
