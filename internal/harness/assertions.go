package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/crate/internal/entity"
	"github.com/roach88/crate/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Peer     string // Replica the assertion failed on, if any
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Peer != "" {
		fmt.Fprintf(&buf, " on peer %s", e.Peer)
	}
	fmt.Fprintf(&buf, "\n  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	return buf.String()
}

// AssertionContext provides access to the replicas for assertions.
type AssertionContext struct {
	Ctx     context.Context
	harness *Harness
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return errs
}

func evaluate(a Assertion, actx *AssertionContext) error {
	if a.Type == AssertConverged {
		return assertConverged(actx)
	}

	peers := actx.harness.order
	if a.Peer != "" {
		peers = []string{a.Peer}
	}
	for _, actor := range peers {
		p, ok := actx.harness.peers[actor]
		if !ok {
			return fmt.Errorf("unknown peer %q", actor)
		}
		var err error
		switch a.Type {
		case AssertField:
			err = assertField(actx, p, a)
		case AssertCount:
			err = assertCount(actx, p, a)
		case AssertLinked:
			err = assertLinked(actx, p, a)
		case AssertLogLength:
			err = assertLogLength(actx, p, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// assertConverged compares every peer's state with the first peer's.
// Actor ids are expected to differ and are not compared.
func assertConverged(actx *AssertionContext) error {
	h := actx.harness
	var first *store.Snapshot
	for _, actor := range h.order {
		snap, err := h.peers[actor].store.Export(actx.Ctx)
		if err != nil {
			return err
		}
		if first == nil {
			first = snap
			continue
		}
		for _, part := range []struct {
			name string
			diff string
		}{
			{"entities", cmp.Diff(first.Nodes, snap.Nodes)},
			{"edges", cmp.Diff(first.Edges, snap.Edges)},
			{"log", cmp.Diff(first.Log, snap.Log)},
		} {
			if part.diff != "" {
				return &AssertionError{
					Type:     AssertConverged,
					Peer:     actor,
					Expected: fmt.Sprintf("same %s as peer %s", part.name, h.order[0]),
					Actual:   "(-" + h.order[0] + " +" + actor + ")\n" + part.diff,
				}
			}
		}
	}
	return nil
}

func assertField(actx *AssertionContext, p *peer, a Assertion) error {
	e, err := actx.harness.load(actx.Ctx, p, a.Ref)
	if err != nil {
		return &AssertionError{Type: AssertField, Peer: p.actor, Expected: a.Ref + " stored", Actual: err.Error()}
	}
	fields, err := entity.Fields(e)
	if err != nil {
		return err
	}
	got, present := fields[a.Field]

	if a.Value == nil {
		if present {
			return &AssertionError{
				Type:     AssertField,
				Peer:     p.actor,
				Expected: fmt.Sprintf("%s.%s absent", a.Ref, a.Field),
				Actual:   string(got),
			}
		}
		return nil
	}

	want, err := entity.MarshalCanonical(a.Value)
	if err != nil {
		return fmt.Errorf("expected value: %w", err)
	}
	if present {
		if got, err = entity.Canonicalize(got); err != nil {
			return err
		}
	}
	if !present || !bytes.Equal(want, got) {
		actual := "absent"
		if present {
			actual = string(got)
		}
		return &AssertionError{
			Type:     AssertField,
			Peer:     p.actor,
			Expected: fmt.Sprintf("%s.%s = %s", a.Ref, a.Field, want),
			Actual:   actual,
		}
	}
	return nil
}

func assertCount(actx *AssertionContext, p *peer, a Assertion) error {
	kind, err := entity.ParseKind(a.Kind)
	if err != nil {
		return err
	}
	list, err := p.lib.List(actx.Ctx, kind, nil)
	if err != nil {
		return err
	}
	if len(list) != a.Count {
		return &AssertionError{
			Type:     AssertCount,
			Peer:     p.actor,
			Expected: fmt.Sprintf("%d %s entities", a.Count, kind),
			Actual:   fmt.Sprintf("%d", len(list)),
		}
	}
	return nil
}

func assertLinked(actx *AssertionContext, p *peer, a Assertion) error {
	from, err := actx.harness.load(actx.Ctx, p, a.From)
	if err != nil {
		return &AssertionError{Type: AssertLinked, Peer: p.actor, Expected: a.From + " stored", Actual: err.Error()}
	}
	to, err := actx.harness.ref(a.To)
	if err != nil {
		return err
	}
	related, err := p.lib.List(actx.Ctx, to.Kind, from)
	if err != nil {
		return err
	}
	for _, e := range related {
		if entity.KeyOf(e) == to.Key {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertLinked,
		Peer:     p.actor,
		Expected: fmt.Sprintf("%s linked to %s", a.From, a.To),
		Actual:   fmt.Sprintf("%d related %s entities, none %s", len(related), to.Kind, to.Key),
	}
}

func assertLogLength(actx *AssertionContext, p *peer, a Assertion) error {
	events, err := p.store.Events(actx.Ctx)
	if err != nil {
		return err
	}
	if len(events) != a.Count {
		lines := make([]string, len(events))
		for i, ev := range events {
			raw, _ := json.Marshal(ev)
			lines[i] = string(raw)
		}
		return &AssertionError{
			Type:     AssertLogLength,
			Peer:     p.actor,
			Expected: fmt.Sprintf("%d events", a.Count),
			Actual:   fmt.Sprintf("%d events:\n    %s", len(events), strings.Join(lines, "\n    ")),
		}
	}
	return nil
}
