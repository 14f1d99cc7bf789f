package transport

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hack-pad/hackpadfs"
	osfs "github.com/hack-pad/hackpadfs/os"
)

const tmpSuffix = ".tmp"

// FS is a Transport over a hackpadfs file system, such as a folder shared
// between devices by a file-sync service.
type FS struct {
	fs hackpadfs.FS
}

var _ Transport = (*FS)(nil)

// NewFS wraps fsys.
func NewFS(fsys hackpadfs.FS) *FS {
	return &FS{fs: fsys}
}

// NewDir returns a Transport rooted at a directory of the host file
// system, creating it if needed.
func NewDir(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("share %s: %w", dir, err)
	}
	root := osfs.NewFS()
	rel, err := root.FromOSPath(abs)
	if err != nil {
		return nil, fmt.Errorf("share %s: %w", dir, err)
	}
	if err := hackpadfs.MkdirAll(root, rel, 0o755); err != nil {
		return nil, fmt.Errorf("share %s: %w", dir, err)
	}
	sub, err := root.Sub(rel)
	if err != nil {
		return nil, fmt.Errorf("share %s: %w", dir, err)
	}
	return NewFS(sub), nil
}

// PutObject writes data under key. The object is written to a temporary
// name and renamed into place so readers never see a partial object.
func (t *FS) PutObject(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !fs.ValidPath(key) {
		return fmt.Errorf("put %s: invalid key", key)
	}
	if err := hackpadfs.MkdirAll(t.fs, path.Dir(key), 0o755); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	tmp := key + tmpSuffix
	if err := hackpadfs.WriteFullFile(t.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	err := hackpadfs.Rename(t.fs, tmp, key)
	if errors.Is(err, hackpadfs.ErrNotImplemented) {
		_ = hackpadfs.Remove(t.fs, tmp)
		err = hackpadfs.WriteFullFile(t.fs, key, data, 0o644)
	}
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// GetObject reads the object under key.
func (t *FS) GetObject(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := hackpadfs.ReadFile(t.fs, key)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return data, nil
}

// ListObjects walks the directory holding prefix and returns matching keys.
func (t *FS) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := "."
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		dir = prefix[:i]
	}
	keys := []string{}
	if err := t.walk(dir, func(key string) {
		if strings.HasPrefix(key, prefix) && !strings.HasSuffix(key, tmpSuffix) {
			keys = append(keys, key)
		}
	}); err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	slices.Sort(keys)
	return keys, nil
}

func (t *FS) walk(dir string, visit func(string)) error {
	entries, err := hackpadfs.ReadDir(t.fs, dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		name := path.Join(dir, e.Name())
		if e.IsDir() {
			if err := t.walk(name, visit); err != nil {
				return err
			}
			continue
		}
		visit(name)
	}
	return nil
}
