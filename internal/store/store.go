package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/roach88/crate/internal/entity"
	"github.com/roach88/crate/internal/oplog"
)

// Reader is the read side of a store.
type Reader interface {
	// Get loads an entity by kind and key. It returns nil, nil when the key
	// is empty or unknown.
	Get(ctx context.Context, kind entity.Kind, key string) (entity.Entity, error)

	// List returns every entity of kind, or only those linked to relatedTo
	// when it is non-nil. Results are ordered by key.
	List(ctx context.Context, kind entity.Kind, relatedTo entity.Entity) ([]entity.Entity, error)

	// LatestEvent returns the newest set event for one entity field.
	LatestEvent(ctx context.Context, kind entity.Kind, key, field string) (oplog.Event, bool, error)

	// Events returns the whole log ordered by (timestamp, actor).
	Events(ctx context.Context) ([]oplog.Event, error)
}

// Tx is the read-write view available inside Update.
type Tx interface {
	Reader

	// Insert persists e, assigning a new key if it has none, and returns a
	// copy carrying the key.
	Insert(ctx context.Context, e entity.Entity) (entity.Entity, error)

	// Link records a relationship between two keyed entities. It panics
	// with ErrUnkeyed if either has no key.
	Link(ctx context.Context, a, b entity.Entity) error

	// AppendEvents adds events to the log, skipping any whose (actor,
	// timestamp) is already present. It returns the number added.
	AppendEvents(ctx context.Context, events ...oplog.Event) (int, error)
}

// Store is a complete storage backend.
type Store interface {
	Tx

	// Update runs fn atomically. If fn returns an error nothing it wrote
	// is kept.
	Update(ctx context.Context, fn func(Tx) error) error

	// ActorID returns the permanent identity of this replica.
	ActorID(ctx context.Context) (string, error)

	// Reset removes every node, edge and event.
	Reset(ctx context.Context) error

	// Export captures the full state for synchronization.
	Export(ctx context.Context) (*Snapshot, error)

	Close() error
}

// KeyGenerator issues new entity keys.
type KeyGenerator interface {
	NewKey() string
}

// KeyGeneratorFunc adapts a function to KeyGenerator.
type KeyGeneratorFunc func() string

// NewKey calls f.
func (f KeyGeneratorFunc) NewKey() string { return f() }

// UUIDv7 generates time-ordered UUID keys.
type UUIDv7 struct{}

// NewKey returns a new version 7 UUID.
func (UUIDv7) NewKey() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Option configures a backend.
type Option func(*options)

type options struct {
	keys  KeyGenerator
	actor string
}

// WithKeyGenerator replaces the default UUIDv7 key generator.
func WithKeyGenerator(g KeyGenerator) Option {
	return func(o *options) { o.keys = g }
}

// WithActorID fixes the replica identity used when the store has none yet.
func WithActorID(id string) Option {
	return func(o *options) { o.actor = id }
}

func buildOptions(opts []Option) options {
	o := options{keys: UUIDv7{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.actor == "" {
		o.actor = uuid.NewString()
	}
	return o
}
