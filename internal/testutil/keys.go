package testutil

import (
	"fmt"
	"sync"
)

// SequentialKeys generates predictable entity keys: "{prefix}-0001",
// "{prefix}-0002", ...
//
// This enables deterministic test execution and golden comparison. It
// satisfies store.KeyGenerator.
//
// Thread-safety: safe for concurrent use.
type SequentialKeys struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialKeys creates a generator. An empty prefix becomes "key".
func NewSequentialKeys(prefix string) *SequentialKeys {
	if prefix == "" {
		prefix = "key"
	}
	return &SequentialKeys{prefix: prefix}
}

// NewKey returns the next key.
func (g *SequentialKeys) NewKey() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
