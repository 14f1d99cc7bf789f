package store

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/crate/internal/entity"
	"github.com/roach88/crate/internal/oplog"
	"github.com/roach88/crate/internal/query"
)

// MemStore is an in-memory Store. Documents are kept in canonical JSON and
// decoded on every read, so callers never share memory with the store.
//
// Thread-safety: reads take a shared lock; Update holds the exclusive lock
// for the duration of fn and applies its staged writes only on success.
type MemStore struct {
	mu     sync.RWMutex
	state  *memState
	keys   KeyGenerator
	actor  string
	closed bool
}

var _ Store = (*MemStore)(nil)

var (
	_ query.Finder = (*MemStore)(nil)
	_ query.Finder = (*memTx)(nil)
)

// NewMemStore returns an empty in-memory store.
func NewMemStore(opts ...Option) *MemStore {
	o := buildOptions(opts)
	return &MemStore{state: newMemState(), keys: o.keys, actor: o.actor}
}

type eventID struct{ actor, ts string }

type fieldID struct {
	kind       entity.Kind
	key, field string
}

type memState struct {
	nodes  map[string]json.RawMessage
	edges  map[string]struct{}
	events []oplog.Event
	seen   map[eventID]struct{}
	latest map[fieldID]oplog.Event
}

func newMemState() *memState {
	return &memState{
		nodes:  make(map[string]json.RawMessage),
		edges:  make(map[string]struct{}),
		seen:   make(map[eventID]struct{}),
		latest: make(map[fieldID]oplog.Event),
	}
}

// memTx reads through stage to base and writes only to stage. A nil stage
// makes it read-only.
type memTx struct {
	base  *memState
	stage *memState
	keys  KeyGenerator
}

func (t *memTx) node(k string) (json.RawMessage, bool) {
	if t.stage != nil {
		if doc, ok := t.stage.nodes[k]; ok {
			return doc, true
		}
	}
	doc, ok := t.base.nodes[k]
	return doc, ok
}

func (t *memTx) scan(prefix string, index func(*memState) []string) []string {
	set := make(map[string]struct{})
	for _, s := range []*memState{t.base, t.stage} {
		if s == nil {
			continue
		}
		for _, k := range index(s) {
			if strings.HasPrefix(k, prefix) {
				set[k] = struct{}{}
			}
		}
	}
	return slices.Sorted(maps.Keys(set))
}

func (t *memTx) Get(_ context.Context, kind entity.Kind, key string) (entity.Entity, error) {
	if key == "" {
		return nil, nil
	}
	doc, ok := t.node(nodeKey(kind, key))
	if !ok {
		return nil, nil
	}
	e, err := entity.Decode(kind, doc)
	if err != nil {
		return nil, &Error{Code: CodeCorrupt, Op: "get " + nodeKey(kind, key), Err: err}
	}
	return e, nil
}

func (t *memTx) List(ctx context.Context, kind entity.Kind, relatedTo entity.Entity) ([]entity.Entity, error) {
	out := []entity.Entity{}
	if relatedTo == nil {
		prefix := nodePrefixOf(kind)
		for _, k := range t.scan(prefix, nodeIndex) {
			e, err := t.Get(ctx, kind, strings.TrimPrefix(k, prefix))
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return out, nil
	}

	if entity.KeyOf(relatedTo) == "" {
		return out, nil
	}
	prefix := edgePrefixOf(entity.RefOf(relatedTo), kind)
	for _, k := range t.scan(prefix, edgeIndex) {
		e, err := t.Get(ctx, kind, strings.TrimPrefix(k, prefix))
		if err != nil {
			return nil, err
		}
		if e != nil {
			out = append(out, e)
		}
	}
	return out, nil
}

// Find evaluates q by scanning the candidate set in memory.
func (t *memTx) Find(ctx context.Context, q query.Query) ([]entity.Entity, error) {
	if err := query.Validate(q); err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	var related entity.Entity
	if q.RelatedTo != nil {
		stub, err := entity.New(q.RelatedTo.Kind)
		if err != nil {
			return nil, fmt.Errorf("find: %w", err)
		}
		entity.SetKey(stub, q.RelatedTo.Key)
		related = stub
	}
	all, err := t.List(ctx, q.Kind, related)
	if err != nil {
		return nil, err
	}
	out := []entity.Entity{}
	for _, e := range all {
		ok, err := query.Matches(q.Where, e)
		if err != nil {
			return nil, fmt.Errorf("find %s: %w", q.Kind, err)
		}
		if !ok {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (t *memTx) LatestEvent(_ context.Context, kind entity.Kind, key, field string) (oplog.Event, bool, error) {
	id := fieldID{kind: kind, key: key, field: field}
	ev, ok := t.base.latest[id]
	if t.stage != nil {
		if staged, sok := t.stage.latest[id]; sok && (!ok || staged.After(ev)) {
			ev, ok = staged, true
		}
	}
	return ev, ok, nil
}

func (t *memTx) Events(context.Context) ([]oplog.Event, error) {
	out := slices.Clone(t.base.events)
	if t.stage != nil {
		out = append(out, t.stage.events...)
	}
	if out == nil {
		out = []oplog.Event{}
	}
	oplog.Sort(out)
	return out, nil
}

func (t *memTx) Insert(_ context.Context, e entity.Entity) (entity.Entity, error) {
	out := entity.Clone(e)
	if entity.KeyOf(out) == "" {
		entity.SetKey(out, t.keys.NewKey())
	}
	if err := checkKey(out); err != nil {
		return nil, err
	}
	doc, err := entity.MarshalCanonical(out)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", out.Kind(), err)
	}
	t.stage.nodes[nodeKey(out.Kind(), entity.KeyOf(out))] = doc
	return out, nil
}

func (t *memTx) Link(_ context.Context, a, b entity.Entity) error {
	requireKeys(a, b)
	ra, rb := entity.RefOf(a), entity.RefOf(b)
	t.stage.edges[edgeKey(rb, ra)] = struct{}{}
	t.stage.edges[edgeKey(ra, rb)] = struct{}{}
	return nil
}

func (t *memTx) AppendEvents(_ context.Context, events ...oplog.Event) (int, error) {
	added := 0
	for _, ev := range events {
		id := eventID{actor: ev.Actor, ts: ev.Timestamp}
		if _, ok := t.base.seen[id]; ok {
			continue
		}
		if _, ok := t.stage.seen[id]; ok {
			continue
		}
		t.stage.apply(ev)
		added++
	}
	return added, nil
}

func (s *memState) apply(ev oplog.Event) {
	s.events = append(s.events, ev)
	s.seen[eventID{actor: ev.Actor, ts: ev.Timestamp}] = struct{}{}
	if ev.Op != oplog.OpSet {
		return
	}
	id := fieldID{kind: ev.Kind, key: ev.Key, field: ev.Field}
	if cur, ok := s.latest[id]; !ok || ev.After(cur) {
		s.latest[id] = ev
	}
}

// commit folds a staged state into s.
func (s *memState) commit(stage *memState) {
	maps.Copy(s.nodes, stage.nodes)
	maps.Copy(s.edges, stage.edges)
	for _, ev := range stage.events {
		s.apply(ev)
	}
}

func nodeIndex(s *memState) []string { return slices.Collect(maps.Keys(s.nodes)) }
func edgeIndex(s *memState) []string { return slices.Collect(maps.Keys(s.edges)) }

func (m *MemStore) reader() (*memTx, error) {
	if m.closed {
		return nil, &Error{Code: CodeClosed, Op: "read"}
	}
	return &memTx{base: m.state, keys: m.keys}, nil
}

// Get implements Reader.
func (m *MemStore) Get(ctx context.Context, kind entity.Kind, key string) (entity.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, err := m.reader()
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, kind, key)
}

// List implements Reader.
func (m *MemStore) List(ctx context.Context, kind entity.Kind, relatedTo entity.Entity) ([]entity.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, err := m.reader()
	if err != nil {
		return nil, err
	}
	return r.List(ctx, kind, relatedTo)
}

// Find implements query.Finder.
func (m *MemStore) Find(ctx context.Context, q query.Query) ([]entity.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, err := m.reader()
	if err != nil {
		return nil, err
	}
	return r.Find(ctx, q)
}

// LatestEvent implements Reader.
func (m *MemStore) LatestEvent(ctx context.Context, kind entity.Kind, key, field string) (oplog.Event, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, err := m.reader()
	if err != nil {
		return oplog.Event{}, false, err
	}
	return r.LatestEvent(ctx, kind, key, field)
}

// Events implements Reader.
func (m *MemStore) Events(ctx context.Context) ([]oplog.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, err := m.reader()
	if err != nil {
		return nil, err
	}
	return r.Events(ctx)
}

// Insert implements Tx as a single-operation Update.
func (m *MemStore) Insert(ctx context.Context, e entity.Entity) (entity.Entity, error) {
	var out entity.Entity
	err := m.Update(ctx, func(tx Tx) error {
		var err error
		out, err = tx.Insert(ctx, e)
		return err
	})
	return out, err
}

// Link implements Tx as a single-operation Update.
func (m *MemStore) Link(ctx context.Context, a, b entity.Entity) error {
	return m.Update(ctx, func(tx Tx) error {
		return tx.Link(ctx, a, b)
	})
}

// AppendEvents implements Tx as a single-operation Update.
func (m *MemStore) AppendEvents(ctx context.Context, events ...oplog.Event) (int, error) {
	var n int
	err := m.Update(ctx, func(tx Tx) error {
		var err error
		n, err = tx.AppendEvents(ctx, events...)
		return err
	})
	return n, err
}

// Update implements Store.
func (m *MemStore) Update(ctx context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return &Error{Code: CodeClosed, Op: "update"}
	}
	tx := &memTx{base: m.state, stage: newMemState(), keys: m.keys}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.state.commit(tx.stage)
	return nil
}

// ActorID implements Store.
func (m *MemStore) ActorID(context.Context) (string, error) {
	return m.actor, nil
}

// Reset implements Store.
func (m *MemStore) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = newMemState()
	return nil
}

// Export implements Store.
func (m *MemStore) Export(ctx context.Context) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, err := m.reader()
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Version: SnapshotVersion,
		Actor:   m.actor,
		Nodes:   []Node{},
		Edges:   []Edge{},
	}
	for _, k := range slices.Sorted(maps.Keys(m.state.nodes)) {
		parts := strings.SplitN(k, ":", 3)
		snap.Nodes = append(snap.Nodes, Node{
			Kind: entity.Kind(parts[1]),
			Key:  parts[2],
			Doc:  m.state.nodes[k],
		})
	}
	for _, k := range slices.Sorted(maps.Keys(m.state.edges)) {
		from, to, err := parseEdgeKey(k)
		if err != nil {
			return nil, &Error{Code: CodeCorrupt, Op: "export", Err: err}
		}
		snap.Edges = append(snap.Edges, Edge{From: from, To: to})
	}
	if snap.Log, err = r.Events(ctx); err != nil {
		return nil, err
	}
	return snap, nil
}

// Close implements Store. Later calls fail with a CodeClosed error.
func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
