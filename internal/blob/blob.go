// Package blob stores binary payloads (artwork, audio) by content.
//
// A blob is addressed by the lowercase hex SHA-256 of its bytes and stored
// once under {dir}/{digest}.blob, regardless of how many entities or
// source paths refer to it.
package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/hack-pad/hackpadfs"
)

// ErrNotFound is returned by Get for digests not in the store.
var ErrNotFound = errors.New("blob not found")

// Suffix is the file extension of stored blobs.
const Suffix = ".blob"

// Digest is the hex SHA-256 of a blob's content.
type Digest string

// Sum computes the digest of data.
func Sum(data []byte) Digest {
	h := sha256.Sum256(data)
	return Digest(hex.EncodeToString(h[:]))
}

// Validate checks that d looks like a SHA-256 hex digest.
func (d Digest) Validate() error {
	if len(d) != sha256.Size*2 {
		return fmt.Errorf("invalid digest %q: want %d hex characters", string(d), sha256.Size*2)
	}
	if _, err := hex.DecodeString(string(d)); err != nil || strings.ToLower(string(d)) != string(d) {
		return fmt.Errorf("invalid digest %q: not lowercase hex", string(d))
	}
	return nil
}

// FileName returns the stored file name for d.
func (d Digest) FileName() string {
	return string(d) + Suffix
}

// ParseFileName extracts the digest from a stored file name.
func ParseFileName(name string) (Digest, bool) {
	if !strings.HasSuffix(name, Suffix) {
		return "", false
	}
	d := Digest(strings.TrimSuffix(name, Suffix))
	return d, d.Validate() == nil
}

// Store is a content-addressed blob store over a hackpadfs file system.
type Store struct {
	mu  sync.Mutex
	fs  hackpadfs.FS
	dir string
}

// NewStore returns a store rooted at dir in fsys, creating dir if needed.
func NewStore(fsys hackpadfs.FS, dir string) (*Store, error) {
	if dir == "" {
		dir = "."
	}
	if err := hackpadfs.MkdirAll(fsys, dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob store %s: %w", dir, err)
	}
	return &Store{fs: fsys, dir: dir}, nil
}

func (s *Store) path(d Digest) string {
	return path.Join(s.dir, d.FileName())
}

// Put stores data and returns its digest. created is false when identical
// content was already present.
func (s *Store) Put(data []byte) (d Digest, created bool, err error) {
	d = Sum(data)
	s.mu.Lock()
	defer s.mu.Unlock()

	if ok, err := s.has(d); err != nil || ok {
		return d, false, err
	}
	if err := hackpadfs.WriteFullFile(s.fs, s.path(d), data, 0o644); err != nil {
		return "", false, fmt.Errorf("put blob %s: %w", d, err)
	}
	return d, true, nil
}

// Get returns the content of d. Content that no longer matches its digest
// is reported as an error.
func (s *Store) Get(d Digest) ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	data, err := hackpadfs.ReadFile(s.fs, s.path(d))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("get blob %s: %w", d, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get blob %s: %w", d, err)
	}
	if got := Sum(data); got != d {
		return nil, fmt.Errorf("get blob %s: content hashes to %s", d, got)
	}
	return data, nil
}

// Has reports whether d is stored.
func (s *Store) Has(d Digest) (bool, error) {
	if err := d.Validate(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.has(d)
}

func (s *Store) has(d Digest) (bool, error) {
	_, err := hackpadfs.Stat(s.fs, s.path(d))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat blob %s: %w", d, err)
	}
	return true, nil
}

// List returns every stored digest in sorted order.
func (s *Store) List() ([]Digest, error) {
	entries, err := hackpadfs.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	out := []Digest{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if d, ok := ParseFileName(e.Name()); ok {
			out = append(out, d)
		}
	}
	slices.Sort(out)
	return out, nil
}
