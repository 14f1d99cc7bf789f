package replica

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/crate/internal/blob"
	"github.com/roach88/crate/internal/library"
	"github.com/roach88/crate/internal/logging"
	"github.com/roach88/crate/internal/store"
	"github.com/roach88/crate/internal/transport"
)

// Report summarizes one synchronization round.
type Report struct {
	ReplayStats

	// Peers is the number of peer snapshots replayed.
	Peers int
	// BadSnapshots were unreadable or undecodable and skipped.
	BadSnapshots int

	BlobsUploaded   int
	BlobsDownloaded int
	// BlobsMissing are referenced but available neither locally nor on
	// the share.
	BlobsMissing int
	BlobsFailed  int
}

// Replica runs synchronization rounds for one local library.
//
// Thread-safety: rounds are serialized; Sync and Run may be called from
// any goroutine.
type Replica struct {
	mu        sync.Mutex
	lib       *library.Library
	transport transport.Transport
	blobs     *blob.Store
	prefix    string
	logger    *slog.Logger
}

// Option configures a Replica.
type Option func(*Replica)

// WithPrefix namespaces every object under prefix on the share.
func WithPrefix(prefix string) Option {
	return func(r *Replica) {
		r.prefix = prefix
	}
}

// WithBlobs enables blob synchronization against the local blob store.
func WithBlobs(b *blob.Store) Option {
	return func(r *Replica) {
		r.blobs = b
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Replica) {
		r.logger = logger
	}
}

// New creates a replica of lib synchronizing through t.
func New(lib *library.Library, t transport.Transport, opts ...Option) *Replica {
	r := &Replica{lib: lib, transport: t}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrDefault(r.logger).With("actor", lib.Actor())
	return r
}

// Sync runs one round: pull, replay, push, blobs. Problems with individual
// peers or blobs are logged and counted; storage and transport listing
// failures abort the round.
func (r *Replica) Sync(ctx context.Context) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var report Report
	if err := r.pull(ctx, &report); err != nil {
		return report, fmt.Errorf("sync pull: %w", err)
	}
	if err := r.push(ctx); err != nil {
		return report, fmt.Errorf("sync push: %w", err)
	}
	if r.blobs != nil {
		if err := r.syncBlobs(ctx, &report); err != nil {
			return report, fmt.Errorf("sync blobs: %w", err)
		}
	}

	r.logger.Info("sync round complete",
		"peers", report.Peers,
		"applied", report.Applied,
		"stale", report.Stale,
		"bad_snapshots", report.BadSnapshots,
		"blobs_uploaded", report.BlobsUploaded,
	)
	return report, nil
}

func (r *Replica) pull(ctx context.Context, report *Report) error {
	self := r.lib.Actor()
	keys, err := r.transport.ListObjects(ctx, transport.SnapshotPrefix(r.prefix))
	if err != nil {
		return err
	}
	for _, key := range keys {
		actor, ok := transport.ActorOf(key)
		if !ok || actor == self {
			continue
		}
		snap, err := r.fetch(ctx, actor, key)
		if err != nil {
			r.logger.Warn("skipping peer snapshot", "error", err)
			report.BadSnapshots++
			continue
		}

		var stats ReplayStats
		err = r.lib.Store().Update(ctx, func(tx store.Tx) error {
			var err error
			stats, err = Replay(ctx, tx, self, snap.Log)
			return err
		})
		if err != nil {
			return fmt.Errorf("replay %s: %w", actor, err)
		}
		for _, ev := range snap.Log {
			if err := r.lib.Clock().Observe(ev.Timestamp); err != nil {
				r.logger.Warn("ignoring malformed timestamp", "peer", actor, "error", err)
			}
		}
		report.Peers++
		report.add(stats)
		r.logger.Debug("replayed peer", "peer", actor, "applied", stats.Applied, "stale", stats.Stale)
	}
	return nil
}

func (r *Replica) fetch(ctx context.Context, actor, key string) (*store.Snapshot, error) {
	data, err := r.transport.GetObject(ctx, key)
	if err != nil {
		return nil, &PeerError{Actor: actor, Key: key, Err: err}
	}
	snap, err := store.DecodeSnapshot(data)
	if err != nil {
		return nil, &PeerError{Actor: actor, Key: key, Err: err}
	}
	return snap, nil
}

func (r *Replica) push(ctx context.Context) error {
	snap, err := r.lib.Store().Export(ctx)
	if err != nil {
		return err
	}
	data, err := store.EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	return r.transport.PutObject(ctx, transport.SnapshotKey(r.prefix, r.lib.Actor()), data)
}

// Run synchronizes every interval until ctx is done. A failed round is
// logged and retried on the next tick.
func (r *Replica) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.Sync(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("sync round failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
