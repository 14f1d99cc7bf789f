// Package transport moves opaque objects to and from the shared store
// replicas synchronize through.
//
// Keys are slash-separated paths. The synchronization protocol uses the
// layout {prefix}/db/{actor}.db for snapshots and
// {prefix}/blobs/{sha256}.blob for binary payloads.
package transport

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrNotFound is returned by GetObject for missing keys.
var ErrNotFound = errors.New("object not found")

// Transport is a minimal object store.
type Transport interface {
	PutObject(ctx context.Context, key string, data []byte) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	// ListObjects returns every key beginning with prefix, sorted.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

// SnapshotKey returns the key of an actor's snapshot.
func SnapshotKey(prefix, actor string) string {
	return path.Join(prefix, "db", actor+".db")
}

// SnapshotPrefix returns the prefix under which snapshots are listed.
func SnapshotPrefix(prefix string) string {
	return path.Join(prefix, "db") + "/"
}

// BlobKey returns the key of a blob.
func BlobKey(prefix, digest string) string {
	return path.Join(prefix, "blobs", digest+".blob")
}

// BlobPrefix returns the prefix under which blobs are listed.
func BlobPrefix(prefix string) string {
	return path.Join(prefix, "blobs") + "/"
}

// ActorOf extracts the actor id from a snapshot key.
func ActorOf(key string) (string, bool) {
	base := path.Base(key)
	if !strings.HasSuffix(base, ".db") || path.Base(path.Dir(key)) != "db" {
		return "", false
	}
	return strings.TrimSuffix(base, ".db"), true
}

// DigestOf extracts the digest from a blob key.
func DigestOf(key string) (string, bool) {
	base := path.Base(key)
	if !strings.HasSuffix(base, ".blob") || path.Base(path.Dir(key)) != "blobs" {
		return "", false
	}
	return strings.TrimSuffix(base, ".blob"), true
}
