package store

import (
	"fmt"
	"strings"

	"github.com/roach88/crate/internal/entity"
)

const (
	nodePrefix = "node"
	edgePrefix = "edge"
)

func nodeKey(kind entity.Kind, key string) string {
	return nodePrefix + ":" + string(kind) + ":" + key
}

func nodePrefixOf(kind entity.Kind) string {
	return nodePrefix + ":" + string(kind) + ":"
}

// edgeKey is the index entry that lets List(a.kind, b) find a.
func edgeKey(b, a entity.Ref) string {
	return edgePrefix + ":" + string(b.Kind) + ":" + b.Key + ":" + string(a.Kind) + ":" + a.Key
}

func edgePrefixOf(rel entity.Ref, kind entity.Kind) string {
	return edgePrefix + ":" + string(rel.Kind) + ":" + rel.Key + ":" + string(kind) + ":"
}

func parseEdgeKey(k string) (from, to entity.Ref, err error) {
	parts := strings.SplitN(k, ":", 5)
	if len(parts) != 5 || parts[0] != edgePrefix {
		return from, to, fmt.Errorf("malformed edge key %q", k)
	}
	from = entity.Ref{Kind: entity.Kind(parts[1]), Key: parts[2]}
	to = entity.Ref{Kind: entity.Kind(parts[3]), Key: parts[4]}
	return from, to, nil
}

// checkKey rejects keys that would split differently when an edge key is
// parsed back.
func checkKey(e entity.Entity) error {
	if key := entity.KeyOf(e); strings.Contains(key, ":") {
		return fmt.Errorf("insert %s %q: %w", e.Kind(), key, ErrInvalidKey)
	}
	return nil
}

func requireKeys(a, b entity.Entity) {
	if entity.KeyOf(a) == "" || entity.KeyOf(b) == "" {
		panic(fmt.Errorf("link %s -> %s: %w", a.Kind(), b.Kind(), ErrUnkeyed))
	}
}
