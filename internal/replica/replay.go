package replica

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/crate/internal/entity"
	"github.com/roach88/crate/internal/oplog"
	"github.com/roach88/crate/internal/store"
)

// ReplayStats counts what Replay did with each event.
type ReplayStats struct {
	// Applied events changed local state.
	Applied int
	// Stale events were older than the newest known write to the same
	// field. They are kept in the log but not applied.
	Stale int
	// Duplicate events were already in the log.
	Duplicate int
}

func (s *ReplayStats) add(o ReplayStats) {
	s.Applied += o.Applied
	s.Stale += o.Stale
	s.Duplicate += o.Duplicate
}

// Replay applies events written by other actors to tx. Events from self
// are ignored; pass "" to replay everything. Every foreign event is
// appended to the local log unmodified so it propagates further; set
// events only take effect when they are strictly newer than the latest
// known event for the same field.
func Replay(ctx context.Context, tx store.Tx, self string, events []oplog.Event) (ReplayStats, error) {
	var stats ReplayStats
	ordered := slices.Clone(events)
	oplog.Sort(ordered)

	for _, ev := range ordered {
		if self != "" && ev.Actor == self {
			continue
		}
		newer := true
		if ev.Op == oplog.OpSet {
			latest, ok, err := tx.LatestEvent(ctx, ev.Kind, ev.Key, ev.Field)
			if err != nil {
				return stats, err
			}
			newer = !ok || ev.After(latest)
		}

		n, err := tx.AppendEvents(ctx, ev)
		if err != nil {
			return stats, err
		}
		switch {
		case n == 0:
			stats.Duplicate++
			continue
		case !newer:
			stats.Stale++
			continue
		}

		if err := apply(ctx, tx, ev); err != nil {
			return stats, fmt.Errorf("replay %s %s:%s: %w", ev.Op, ev.Kind, ev.Key, err)
		}
		stats.Applied++
	}
	return stats, nil
}

func apply(ctx context.Context, tx store.Tx, ev oplog.Event) error {
	switch ev.Op {
	case oplog.OpSet:
		e, err := loadOrCreate(ctx, tx, ev.Ref())
		if err != nil {
			return err
		}
		if err := entity.SetField(e, ev.Field, ev.Value); err != nil {
			return err
		}
		_, err = tx.Insert(ctx, e)
		return err
	case oplog.OpLink:
		target, err := ev.LinkTarget()
		if err != nil {
			return err
		}
		a, err := stub(ev.Ref())
		if err != nil {
			return err
		}
		b, err := stub(target)
		if err != nil {
			return err
		}
		return tx.Link(ctx, a, b)
	default:
		return fmt.Errorf("unknown operation %q", ev.Op)
	}
}

func loadOrCreate(ctx context.Context, r store.Reader, ref entity.Ref) (entity.Entity, error) {
	e, err := r.Get(ctx, ref.Kind, ref.Key)
	if err != nil || e != nil {
		return e, err
	}
	return stub(ref)
}

func stub(ref entity.Ref) (entity.Entity, error) {
	e, err := entity.New(ref.Kind)
	if err != nil {
		return nil, err
	}
	entity.SetKey(e, ref.Key)
	return e, nil
}

// Rebuild replays a complete log into dst, which should be empty. The
// result is the state the log alone implies; comparing it with the live
// store detects drift.
func Rebuild(ctx context.Context, events []oplog.Event, dst store.Store) (ReplayStats, error) {
	var stats ReplayStats
	err := dst.Update(ctx, func(tx store.Tx) error {
		var err error
		stats, err = Replay(ctx, tx, "", events)
		return err
	})
	if err != nil {
		return stats, fmt.Errorf("rebuild: %w", err)
	}
	return stats, nil
}
