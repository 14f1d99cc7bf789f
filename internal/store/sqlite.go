package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/crate/internal/entity"
	"github.com/roach88/crate/internal/oplog"
	"github.com/roach88/crate/internal/query"
	"github.com/roach88/crate/internal/querysql"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - empty database
// 1 - nodes, edges, log, meta
const currentSchemaVersion = 1

// SQLiteStore is a Store persisted in a SQLite database.
type SQLiteStore struct {
	sqliteOps
	db    *sqlx.DB
	mu    sync.Mutex
	actor string
}

var (
	_ Store        = (*SQLiteStore)(nil)
	_ query.Finder = (*SQLiteStore)(nil)
)

// Open creates or opens a SQLite database at path. Pragmas and migrations
// are applied automatically, and the replica's actor id is created on
// first open.
func Open(path string, opts ...Option) (*SQLiteStore, error) {
	o := buildOptions(opts)

	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite has one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	actor, err := ensureActor(db, o.actor)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{
		sqliteOps: sqliteOps{ext: db, keys: o.keys},
		db:        db,
		actor:     actor,
	}, nil
}

// OpenReadOnly opens an existing crate database without writing to it. No
// schema, pragma or actor changes are made, and writes through the
// returned store fail. A missing file is an error.
func OpenReadOnly(path string, opts ...Option) (*SQLiteStore, error) {
	o := buildOptions(opts)

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db, err := sqlx.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	var version int
	if err := db.Get(&version, "PRAGMA user_version"); err != nil {
		db.Close()
		return nil, fmt.Errorf("get user_version: %w", err)
	}
	if version != currentSchemaVersion {
		db.Close()
		return nil, fmt.Errorf("database schema version %d, expected %d", version, currentSchemaVersion)
	}
	var actor string
	if err := db.Get(&actor, `SELECT value FROM meta WHERE name = 'actor'`); err != nil {
		db.Close()
		return nil, fmt.Errorf("read actor: %w", err)
	}

	return &SQLiteStore{
		sqliteOps: sqliteOps{ext: db, keys: o.keys},
		db:        db,
		actor:     actor,
	}, nil
}

func applyPragmas(db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sqlx.DB) error {
	var version int
	if err := db.Get(&version, "PRAGMA user_version"); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < 1 {
		if _, err := db.Exec(schemaSQL); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, currentSchemaVersion)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func ensureActor(db *sqlx.DB, fallback string) (string, error) {
	if _, err := db.Exec(`INSERT INTO meta (name, value) VALUES ('actor', ?) ON CONFLICT(name) DO NOTHING`, fallback); err != nil {
		return "", fmt.Errorf("write actor: %w", err)
	}
	var actor string
	if err := db.Get(&actor, `SELECT value FROM meta WHERE name = 'actor'`); err != nil {
		return "", fmt.Errorf("read actor: %w", err)
	}
	return actor, nil
}

// sqliteOps implements Tx over either the database or an open transaction.
type sqliteOps struct {
	ext  sqlx.ExtContext
	keys KeyGenerator
}

type nodeRow struct {
	Kind string `db:"kind"`
	Key  string `db:"key"`
	Doc  string `db:"doc"`
}

type edgeRow struct {
	FromKind string `db:"from_kind"`
	FromKey  string `db:"from_key"`
	ToKind   string `db:"to_kind"`
	ToKey    string `db:"to_key"`
}

type eventRow struct {
	Actor string         `db:"actor"`
	TS    string         `db:"ts"`
	Kind  string         `db:"kind"`
	Key   string         `db:"key"`
	Op    string         `db:"op"`
	Field string         `db:"field"`
	Value sql.NullString `db:"value"`
}

func (r eventRow) event() oplog.Event {
	ev := oplog.Event{
		Actor:     r.Actor,
		Timestamp: r.TS,
		Kind:      entity.Kind(r.Kind),
		Key:       r.Key,
		Op:        oplog.Op(r.Op),
		Field:     r.Field,
	}
	if r.Value.Valid {
		ev.Value = []byte(r.Value.String)
	}
	return ev
}

func (r nodeRow) decode() (entity.Entity, error) {
	e, err := entity.Decode(entity.Kind(r.Kind), []byte(r.Doc))
	if err != nil {
		return nil, &Error{Code: CodeCorrupt, Op: "decode " + nodeKey(entity.Kind(r.Kind), r.Key), Err: err}
	}
	return e, nil
}

const eventColumns = `actor, ts, kind, key, op, field, value`

func (o sqliteOps) Get(ctx context.Context, kind entity.Kind, key string) (entity.Entity, error) {
	if key == "" {
		return nil, nil
	}
	var row nodeRow
	err := sqlx.GetContext(ctx, o.ext, &row,
		`SELECT kind, key, doc FROM nodes WHERE kind = ? AND key = ?`, string(kind), key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", nodeKey(kind, key), err)
	}
	return row.decode()
}

func (o sqliteOps) List(ctx context.Context, kind entity.Kind, relatedTo entity.Entity) ([]entity.Entity, error) {
	q := query.Query{Kind: kind}
	if relatedTo != nil {
		if entity.KeyOf(relatedTo) == "" {
			return []entity.Entity{}, nil
		}
		ref := entity.RefOf(relatedTo)
		q.RelatedTo = &ref
	}
	return o.Find(ctx, q)
}

// Find evaluates a document query.
func (o sqliteOps) Find(ctx context.Context, q query.Query) ([]entity.Entity, error) {
	stmt, args, err := querysql.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	var rows []nodeRow
	if err := sqlx.SelectContext(ctx, o.ext, &rows, stmt, args...); err != nil {
		return nil, fmt.Errorf("find %s: %w", q.Kind, err)
	}
	out := make([]entity.Entity, 0, len(rows))
	for _, row := range rows {
		e, err := row.decode()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (o sqliteOps) LatestEvent(ctx context.Context, kind entity.Kind, key, field string) (oplog.Event, bool, error) {
	var row eventRow
	err := sqlx.GetContext(ctx, o.ext, &row, `
		SELECT `+eventColumns+` FROM log
		WHERE kind = ? AND key = ? AND field = ? AND op = ?
		ORDER BY ts DESC, actor DESC
		LIMIT 1
	`, string(kind), key, field, string(oplog.OpSet))
	if errors.Is(err, sql.ErrNoRows) {
		return oplog.Event{}, false, nil
	}
	if err != nil {
		return oplog.Event{}, false, fmt.Errorf("latest event %s.%s: %w", nodeKey(kind, key), field, err)
	}
	return row.event(), true, nil
}

func (o sqliteOps) Events(ctx context.Context) ([]oplog.Event, error) {
	var rows []eventRow
	if err := sqlx.SelectContext(ctx, o.ext, &rows, `
		SELECT `+eventColumns+` FROM log
		ORDER BY ts COLLATE BINARY ASC, actor COLLATE BINARY ASC
	`); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	out := make([]oplog.Event, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.event())
	}
	return out, nil
}

func (o sqliteOps) Insert(ctx context.Context, e entity.Entity) (entity.Entity, error) {
	out := entity.Clone(e)
	if entity.KeyOf(out) == "" {
		entity.SetKey(out, o.keys.NewKey())
	}
	if err := checkKey(out); err != nil {
		return nil, err
	}
	doc, err := entity.MarshalCanonical(out)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", out.Kind(), err)
	}
	_, err = o.ext.ExecContext(ctx, `
		INSERT INTO nodes (kind, key, doc) VALUES (?, ?, ?)
		ON CONFLICT(kind, key) DO UPDATE SET doc = excluded.doc
	`, string(out.Kind()), entity.KeyOf(out), string(doc))
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", nodeKey(out.Kind(), entity.KeyOf(out)), err)
	}
	return out, nil
}

func (o sqliteOps) Link(ctx context.Context, a, b entity.Entity) error {
	requireKeys(a, b)
	ra, rb := entity.RefOf(a), entity.RefOf(b)
	for _, pair := range [][2]entity.Ref{{rb, ra}, {ra, rb}} {
		_, err := o.ext.ExecContext(ctx, `
			INSERT INTO edges (from_kind, from_key, to_kind, to_key) VALUES (?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, string(pair[0].Kind), pair[0].Key, string(pair[1].Kind), pair[1].Key)
		if err != nil {
			return fmt.Errorf("link %s: %w", edgeKey(pair[0], pair[1]), err)
		}
	}
	return nil
}

func (o sqliteOps) AppendEvents(ctx context.Context, events ...oplog.Event) (int, error) {
	added := 0
	for _, ev := range events {
		var value sql.NullString
		if len(ev.Value) > 0 {
			value = sql.NullString{String: string(ev.Value), Valid: true}
		}
		res, err := o.ext.ExecContext(ctx, `
			INSERT INTO log (actor, ts, kind, key, op, field, value)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(actor, ts) DO NOTHING
		`, ev.Actor, ev.Timestamp, string(ev.Kind), ev.Key, string(ev.Op), ev.Field, value)
		if err != nil {
			return added, fmt.Errorf("append event %s/%s: %w", ev.Actor, ev.Timestamp, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return added, fmt.Errorf("append event %s/%s: %w", ev.Actor, ev.Timestamp, err)
		}
		added += int(n)
	}
	return added, nil
}

// Insert implements Tx as a single-operation Update.
func (s *SQLiteStore) Insert(ctx context.Context, e entity.Entity) (entity.Entity, error) {
	var out entity.Entity
	err := s.Update(ctx, func(tx Tx) error {
		var err error
		out, err = tx.Insert(ctx, e)
		return err
	})
	return out, err
}

// Link implements Tx as a single-operation Update.
func (s *SQLiteStore) Link(ctx context.Context, a, b entity.Entity) error {
	requireKeys(a, b)
	return s.Update(ctx, func(tx Tx) error {
		return tx.Link(ctx, a, b)
	})
}

// AppendEvents implements Tx as a single-operation Update.
func (s *SQLiteStore) AppendEvents(ctx context.Context, events ...oplog.Event) (int, error) {
	var n int
	err := s.Update(ctx, func(tx Tx) error {
		var err error
		n, err = tx.AppendEvents(ctx, events...)
		return err
	})
	return n, err
}

// sqliteTx is the Tx handed to Update callbacks.
type sqliteTx struct {
	sqliteOps
}

var _ query.Finder = sqliteTx{}

// Update implements Store. Writers are serialized by a mutex and run in a
// single database transaction.
func (s *SQLiteStore) Update(ctx context.Context, fn func(Tx) error) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		return fn(sqliteTx{sqliteOps{ext: tx, keys: s.keys}})
	})
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ActorID implements Store.
func (s *SQLiteStore) ActorID(context.Context) (string, error) {
	return s.actor, nil
}

// Reset implements Store.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, table := range []string{"nodes", "edges", "log"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("reset %s: %w", table, err)
			}
		}
		return nil
	})
}

// Export implements Store. The snapshot is read inside one transaction.
func (s *SQLiteStore) Export(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{Version: SnapshotVersion, Actor: s.actor}
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var nodes []nodeRow
		if err := tx.SelectContext(ctx, &nodes,
			`SELECT kind, key, doc FROM nodes ORDER BY kind, key COLLATE BINARY`); err != nil {
			return fmt.Errorf("export nodes: %w", err)
		}
		snap.Nodes = make([]Node, 0, len(nodes))
		for _, n := range nodes {
			snap.Nodes = append(snap.Nodes, Node{Kind: entity.Kind(n.Kind), Key: n.Key, Doc: []byte(n.Doc)})
		}

		var edges []edgeRow
		if err := tx.SelectContext(ctx, &edges, `
			SELECT from_kind, from_key, to_kind, to_key FROM edges
			ORDER BY from_kind, from_key, to_kind, to_key COLLATE BINARY
		`); err != nil {
			return fmt.Errorf("export edges: %w", err)
		}
		snap.Edges = make([]Edge, 0, len(edges))
		for _, e := range edges {
			snap.Edges = append(snap.Edges, Edge{
				From: entity.Ref{Kind: entity.Kind(e.FromKind), Key: e.FromKey},
				To:   entity.Ref{Kind: entity.Kind(e.ToKind), Key: e.ToKey},
			})
		}

		var err error
		snap.Log, err = sqliteOps{ext: tx}.Events(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *SQLiteStore) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.Get(&value, fmt.Sprintf("PRAGMA %s", name)); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
