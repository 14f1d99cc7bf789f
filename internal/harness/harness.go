package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hack-pad/hackpadfs/mem"

	"github.com/roach88/crate/internal/entity"
	"github.com/roach88/crate/internal/library"
	"github.com/roach88/crate/internal/logging"
	"github.com/roach88/crate/internal/oplog"
	"github.com/roach88/crate/internal/replica"
	"github.com/roach88/crate/internal/store"
	"github.com/roach88/crate/internal/testutil"
	"github.com/roach88/crate/internal/transport"
)

// peer is one replica under test.
type peer struct {
	actor   string
	store   *store.MemStore
	lib     *library.Library
	replica *replica.Replica
}

// Harness is the scenario execution engine.
type Harness struct {
	peers   map[string]*peer
	order   []string
	aliases map[string]entity.Ref
	logger  *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each run builds fresh in-memory replicas sharing one in-memory
// transport. An error means the scenario could not be executed; failed
// expectations and assertions are reported in the result instead.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	h, err := newHarness(ctx, scenario.Peers)
	if err != nil {
		return nil, err
	}
	defer h.close()

	result := NewResult()
	for i, step := range scenario.Flow {
		if err := h.executeStep(ctx, step, result); err != nil {
			return nil, fmt.Errorf("flow step %d: %w", i, err)
		}
	}

	if err := h.captureState(ctx, result); err != nil {
		return nil, err
	}

	actx := &AssertionContext{Ctx: ctx, harness: h}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(ctx context.Context, specs []PeerSpec) (*Harness, error) {
	share, err := mem.NewFS()
	if err != nil {
		return nil, fmt.Errorf("failed to create share: %w", err)
	}
	t := transport.NewFS(share)

	h := &Harness{
		peers:   make(map[string]*peer, len(specs)),
		aliases: make(map[string]entity.Ref),
		logger:  logging.Discard(),
	}
	for _, spec := range specs {
		s := store.NewMemStore(
			store.WithKeyGenerator(testutil.NewSequentialKeys(spec.Actor)),
			store.WithActorID(spec.Actor),
		)
		wall := testutil.NewDeterministicClock()
		wall.Advance(spec.Skew)
		lib, err := library.New(ctx, s,
			library.WithClock(oplog.NewClock(wall.Now, testutil.ZeroEntropy{})),
			library.WithLogger(h.logger),
		)
		if err != nil {
			return nil, fmt.Errorf("peer %s: %w", spec.Actor, err)
		}
		h.peers[spec.Actor] = &peer{
			actor:   spec.Actor,
			store:   s,
			lib:     lib,
			replica: replica.New(lib, t, replica.WithLogger(h.logger)),
		}
		h.order = append(h.order, spec.Actor)
	}
	return h, nil
}

func (h *Harness) close() {
	for _, p := range h.peers {
		p.store.Close()
	}
}

// ref resolves an alias bound by an earlier save.
func (h *Harness) ref(alias string) (entity.Ref, error) {
	r, ok := h.aliases[alias]
	if !ok {
		return entity.Ref{}, fmt.Errorf("unknown ref %q", alias)
	}
	return r, nil
}

func (h *Harness) executeStep(ctx context.Context, step FlowStep, result *Result) error {
	p, ok := h.peers[step.Peer]
	if !ok {
		return fmt.Errorf("unknown peer %q", step.Peer)
	}

	if step.Sync {
		report, err := p.replica.Sync(ctx)
		if err != nil {
			return err
		}
		counts := SyncCounts{
			Peers:     report.Peers,
			Applied:   report.Applied,
			Stale:     report.Stale,
			Duplicate: report.Duplicate,
		}
		for _, msg := range checkExpect(step.Expect, counts) {
			result.AddError(fmt.Sprintf("sync %s (step %d): %s", p.actor, len(result.Trace)+1, msg))
		}
		result.AddTrace(TraceEvent{Peer: p.actor, Op: "sync", Report: &counts})
		h.logger.Info("sync step completed", "peer", p.actor, "applied", counts.Applied)
		return nil
	}

	before, err := p.store.Events(ctx)
	if err != nil {
		return err
	}

	ev := TraceEvent{Peer: p.actor}
	switch {
	case step.Save != nil:
		ev.Op = "save"
		saved, err := h.save(ctx, p, step.Save)
		if err != nil {
			return err
		}
		ev.Ref = refString(entity.RefOf(saved))
	case step.Edit != nil:
		ev.Op = "edit"
		ref, err := h.ref(step.Edit.Ref)
		if err != nil {
			return err
		}
		var value json.RawMessage
		if step.Edit.Value != nil {
			if value, err = json.Marshal(step.Edit.Value); err != nil {
				return fmt.Errorf("edit value: %w", err)
			}
		}
		if _, err := p.lib.Edit(ctx, ref, step.Edit.Field, value); err != nil {
			return err
		}
		ev.Ref = refString(ref)
	case step.Link != nil:
		ev.Op = "link"
		from, err := h.load(ctx, p, step.Link.From)
		if err != nil {
			return err
		}
		to, err := h.load(ctx, p, step.Link.To)
		if err != nil {
			return err
		}
		if err := p.lib.Link(ctx, from, to); err != nil {
			return err
		}
		ev.Ref = refString(entity.RefOf(from))
	default:
		return fmt.Errorf("step has no action")
	}

	after, err := p.store.Events(ctx)
	if err != nil {
		return err
	}
	ev.Events = describeNew(before, after)
	result.AddTrace(ev)
	h.logger.Info("flow step completed", "peer", p.actor, "op", ev.Op, "ref", ev.Ref)
	return nil
}

func (h *Harness) save(ctx context.Context, p *peer, s *SaveStep) (entity.Entity, error) {
	kind, err := entity.ParseKind(s.Kind)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(s.Entity)
	if err != nil {
		return nil, fmt.Errorf("save %s: %w", s.As, err)
	}
	candidate, err := entity.Decode(kind, raw)
	if err != nil {
		return nil, fmt.Errorf("save %s: %w", s.As, err)
	}
	saved, err := p.lib.Save(ctx, candidate)
	if err != nil {
		return nil, err
	}
	h.aliases[s.As] = entity.RefOf(saved)
	return saved, nil
}

// load fetches an aliased entity from a peer. The entity must already be
// there, saved locally or received through sync.
func (h *Harness) load(ctx context.Context, p *peer, alias string) (entity.Entity, error) {
	ref, err := h.ref(alias)
	if err != nil {
		return nil, err
	}
	e, err := p.lib.Get(ctx, ref.Kind, ref.Key)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("%s (%s) is not on peer %s", alias, refString(ref), p.actor)
	}
	return e, nil
}

// captureState records every peer's entities in canonical JSON.
func (h *Harness) captureState(ctx context.Context, result *Result) error {
	for _, actor := range h.order {
		snap, err := h.peers[actor].store.Export(ctx)
		if err != nil {
			return err
		}
		docs := make([]json.RawMessage, 0, len(snap.Nodes))
		for _, n := range snap.Nodes {
			e, err := entity.Decode(n.Kind, n.Doc)
			if err != nil {
				return fmt.Errorf("peer %s: %w", actor, err)
			}
			entity.SetKey(e, n.Key)
			doc, err := entity.MarshalCanonical(e)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		result.State[actor] = docs
	}
	return nil
}

func checkExpect(want *SyncExpect, got SyncCounts) []string {
	if want == nil {
		return nil
	}
	var out []string
	check := func(name string, want *int, got int) {
		if want != nil && *want != got {
			out = append(out, fmt.Sprintf("expected %s=%d, got %d", name, *want, got))
		}
	}
	check("peers", want.Peers, got.Peers)
	check("applied", want.Applied, got.Applied)
	check("stale", want.Stale, got.Stale)
	check("duplicate", want.Duplicate, got.Duplicate)
	return out
}

// describeNew lists the events in after that are not in before.
func describeNew(before, after []oplog.Event) []string {
	seen := make(map[[2]string]bool, len(before))
	for _, ev := range before {
		seen[[2]string{ev.Actor, ev.Timestamp}] = true
	}
	var out []string
	for _, ev := range after {
		if seen[[2]string{ev.Actor, ev.Timestamp}] {
			continue
		}
		out = append(out, describe(ev))
	}
	return out
}

func describe(ev oplog.Event) string {
	if ev.Op == oplog.OpLink {
		if target, err := ev.LinkTarget(); err == nil {
			return fmt.Sprintf("link %s %s", refString(ev.Ref()), refString(target))
		}
	}
	return fmt.Sprintf("%s %s %s", ev.Op, refString(ev.Ref()), ev.Field)
}

func refString(r entity.Ref) string {
	return string(r.Kind) + ":" + r.Key
}
