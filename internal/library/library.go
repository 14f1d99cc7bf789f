package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/crate/internal/entity"
	"github.com/roach88/crate/internal/logging"
	"github.com/roach88/crate/internal/match"
	"github.com/roach88/crate/internal/merge"
	"github.com/roach88/crate/internal/oplog"
	"github.com/roach88/crate/internal/query"
	"github.com/roach88/crate/internal/store"
)

// ErrQueryUnsupported is returned by Find when the backend has no query
// mode.
var ErrQueryUnsupported = errors.New("store does not support queries")

// Library writes entities and their history to a store.
//
// Thread-safety: all methods are safe for concurrent use; writes are
// serialized by the store's Update.
type Library struct {
	store  store.Store
	clock  *oplog.Clock
	actor  string
	logger *slog.Logger
}

// Option configures a Library.
type Option func(*Library)

// WithClock replaces the default wall-clock ULID source.
func WithClock(c *oplog.Clock) Option {
	return func(l *Library) {
		l.clock = c
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Library) {
		l.logger = logger
	}
}

// New opens a library over s. The clock is advanced past every event
// already in the log so that new local events always sort last.
func New(ctx context.Context, s store.Store, opts ...Option) (*Library, error) {
	l := &Library{store: s}
	for _, opt := range opts {
		opt(l)
	}
	if l.clock == nil {
		l.clock = oplog.NewClock(nil, nil)
	}
	l.logger = logging.OrDefault(l.logger)

	actor, err := s.ActorID(ctx)
	if err != nil {
		return nil, fmt.Errorf("open library: %w", err)
	}
	l.actor = actor

	events, err := s.Events(ctx)
	if err != nil {
		return nil, fmt.Errorf("open library: %w", err)
	}
	if len(events) > 0 {
		if err := l.clock.Observe(events[len(events)-1].Timestamp); err != nil {
			return nil, fmt.Errorf("open library: %w", err)
		}
	}
	return l, nil
}

// Store returns the underlying store.
func (l *Library) Store() store.Store { return l.store }

// Actor returns the replica identity stamped on local events.
func (l *Library) Actor() string { return l.actor }

// Clock returns the library's timestamp source.
func (l *Library) Clock() *oplog.Clock { return l.clock }

// Save persists candidate and returns the stored entity with its key.
// The candidate itself is not modified.
func (l *Library) Save(ctx context.Context, candidate entity.Entity) (entity.Entity, error) {
	var saved entity.Entity
	err := l.store.Update(ctx, func(tx store.Tx) error {
		var err error
		saved, err = l.save(ctx, tx, candidate)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("save %s: %w", candidate.Kind(), err)
	}
	return saved, nil
}

// SaveTx is Save inside a caller's transaction.
func (l *Library) SaveTx(ctx context.Context, tx store.Tx, candidate entity.Entity) (entity.Entity, error) {
	return l.save(ctx, tx, candidate)
}

func (l *Library) save(ctx context.Context, tx store.Tx, candidate entity.Entity) (entity.Entity, error) {
	// Clone also normalizes child order before matching.
	c := entity.Clone(candidate)

	// Referenced entities become their own nodes. The parent keeps a bare
	// reference so later edits to the artist never conflict with the copy
	// embedded in every release.
	var refs []entity.Entity
	for _, ref := range entity.References(c) {
		stored, err := l.save(ctx, tx, ref)
		if err != nil {
			return nil, err
		}
		entity.SetKey(ref, entity.KeyOf(stored))
		entity.Collapse(ref)
		refs = append(refs, stored)
	}

	prev, how, err := match.FindMatch(ctx, tx, c)
	if err != nil {
		return nil, err
	}
	result := l.resolve(c, prev, how)

	saved, err := tx.Insert(ctx, result)
	if err != nil {
		return nil, err
	}

	var events []oplog.Event
	changes, err := oplog.Diff(diffBase(prev, saved), saved)
	if err != nil {
		return nil, err
	}
	ref := entity.RefOf(saved)
	for _, ch := range changes {
		events = append(events, oplog.SetEvent(l.actor, l.clock.Next(), ref, ch.Field, ch.Value))
	}

	for _, target := range refs {
		linked, err := isLinked(ctx, tx, saved, target)
		if err != nil {
			return nil, err
		}
		if linked {
			continue
		}
		if err := tx.Link(ctx, saved, target); err != nil {
			return nil, err
		}
		events = append(events, oplog.LinkEvent(l.actor, l.clock.Next(), ref, entity.RefOf(target)))
	}

	if _, err := tx.AppendEvents(ctx, events...); err != nil {
		return nil, err
	}

	l.logger.Debug("saved entity",
		"kind", saved.Kind(),
		"key", entity.KeyOf(saved),
		"match", how,
		"changes", len(changes),
	)
	return saved, nil
}

// diffBase returns what saved is diffed against. A result stored under a
// new key kept both entities, so all of its fields are new.
func diffBase(prev, saved entity.Entity) entity.Entity {
	if prev != nil && entity.KeyOf(saved) != entity.KeyOf(prev) {
		return nil
	}
	return prev
}

// resolve decides what to write given the candidate and its match.
func (l *Library) resolve(c, prev entity.Entity, how match.Type) entity.Entity {
	if prev == nil {
		return c
	}
	if how == match.Name {
		c = match.Adopt(c, prev)
	}
	if how != match.Key {
		entity.SetKey(c, "")
	}
	if merged, ok := merge.Merge(prev, c); ok {
		return merged
	}
	if how == match.Key {
		l.logger.Info("conflicting update resolved by join",
			"kind", prev.Kind(),
			"key", entity.KeyOf(prev),
		)
		return merge.Join(prev, c)
	}
	// FindMatch only reports mergeable ID and name matches, so this is a
	// store that changed underneath us. Keep both.
	return c
}

func isLinked(ctx context.Context, r store.Reader, a, b entity.Entity) (bool, error) {
	related, err := r.List(ctx, b.Kind(), a)
	if err != nil {
		return false, err
	}
	key := entity.KeyOf(b)
	for _, e := range related {
		if entity.KeyOf(e) == key {
			return true, nil
		}
	}
	return false, nil
}

// ErrNotFound is returned by Edit for unknown entities.
var ErrNotFound = errors.New("entity not found")

// Edit overwrites one field of a stored entity, bypassing merge. A nil or
// null value clears the field. This is how a user correction replaces a
// value the merge rules would otherwise keep.
func (l *Library) Edit(ctx context.Context, ref entity.Ref, field string, value json.RawMessage) (entity.Entity, error) {
	var saved entity.Entity
	err := l.store.Update(ctx, func(tx store.Tx) error {
		e, err := tx.Get(ctx, ref.Kind, ref.Key)
		if err != nil {
			return err
		}
		if e == nil {
			return ErrNotFound
		}
		prev := entity.Clone(e)
		if err := entity.SetField(e, field, value); err != nil {
			return err
		}
		if saved, err = tx.Insert(ctx, e); err != nil {
			return err
		}
		changes, err := oplog.Diff(prev, saved)
		if err != nil {
			return err
		}
		for _, ch := range changes {
			ev := oplog.SetEvent(l.actor, l.clock.Next(), ref, ch.Field, ch.Value)
			if _, err := tx.AppendEvents(ctx, ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("edit %s:%s.%s: %w", ref.Kind, ref.Key, field, err)
	}
	return saved, nil
}

// Link records a relationship between two stored entities and logs it.
// It panics with store.ErrUnkeyed if either side has no key.
func (l *Library) Link(ctx context.Context, a, b entity.Entity) error {
	err := l.store.Update(ctx, func(tx store.Tx) error {
		linked, err := isLinked(ctx, tx, a, b)
		if err != nil || linked {
			return err
		}
		if err := tx.Link(ctx, a, b); err != nil {
			return err
		}
		ev := oplog.LinkEvent(l.actor, l.clock.Next(), entity.RefOf(a), entity.RefOf(b))
		_, err = tx.AppendEvents(ctx, ev)
		return err
	})
	if err != nil {
		return fmt.Errorf("link %s to %s: %w", a.Kind(), b.Kind(), err)
	}
	return nil
}

// Get loads one entity; nil when unknown.
func (l *Library) Get(ctx context.Context, kind entity.Kind, key string) (entity.Entity, error) {
	return l.store.Get(ctx, kind, key)
}

// List returns every entity of kind, or those linked to relatedTo.
func (l *Library) List(ctx context.Context, kind entity.Kind, relatedTo entity.Entity) ([]entity.Entity, error) {
	return l.store.List(ctx, kind, relatedTo)
}

// Find runs a document query.
func (l *Library) Find(ctx context.Context, q query.Query) ([]entity.Entity, error) {
	finder, ok := l.store.(query.Finder)
	if !ok {
		return nil, ErrQueryUnsupported
	}
	return finder.Find(ctx, q)
}

// Expand returns a copy of e with every collapsed reference replaced by
// the stored entity it points to. Dangling references are left as is.
func (l *Library) Expand(ctx context.Context, e entity.Entity) (entity.Entity, error) {
	out := entity.Clone(e)
	for _, ref := range entity.References(out) {
		stored, err := l.store.Get(ctx, ref.Kind(), entity.KeyOf(ref))
		if err != nil {
			return nil, fmt.Errorf("expand %s: %w", ref.Kind(), err)
		}
		if stored != nil {
			entity.Assign(ref, stored)
		}
	}
	return out, nil
}

// History returns the events recorded for one entity, oldest first.
func (l *Library) History(ctx context.Context, kind entity.Kind, key string) ([]oplog.Event, error) {
	events, err := l.store.Events(ctx)
	if err != nil {
		return nil, err
	}
	var out []oplog.Event
	for _, ev := range events {
		if ev.Kind == kind && ev.Key == key {
			out = append(out, ev)
		}
	}
	return out, nil
}
