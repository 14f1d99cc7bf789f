package librarian

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/crate/internal/entity"
	"github.com/roach88/crate/internal/library"
	"github.com/roach88/crate/internal/logging"
	"github.com/roach88/crate/internal/match"
	"github.com/roach88/crate/internal/merge"
)

// Options are passed into every lookup.
type Options struct {
	Providers []Provider
	Mode      NetworkMode
	// Persist saves the result of Get through the library.
	Persist bool
}

// Librarian answers lookups from the local library and providers.
type Librarian struct {
	lib    *library.Library
	logger *slog.Logger
}

// New creates a Librarian over lib. A nil logger uses slog.Default().
func New(lib *library.Library, logger *slog.Logger) *Librarian {
	return &Librarian{lib: lib, logger: logging.OrDefault(logger)}
}

// Get returns everything known about e.
func (l *Librarian) Get(ctx context.Context, opts Options, e entity.Entity) (entity.Entity, error) {
	local, _, err := match.FindMatch(ctx, l.lib.Store(), e)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", e.Kind(), err)
	}
	seed := merge.Join(e, local)

	first, err := l.fanOut(ctx, opts, seed)
	if err != nil {
		return nil, err
	}
	second, err := l.fanOut(ctx, opts, merge.Join(seed, first))
	if err != nil {
		return nil, err
	}
	result := merge.JoinAll(seed, first, second)

	if opts.Persist {
		if result, err = l.lib.Save(ctx, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// fanOut asks every provider about e in parallel and joins the answers.
// It returns nil when no provider knows anything.
func (l *Librarian) fanOut(ctx context.Context, opts Options, e entity.Entity) (entity.Entity, error) {
	results := make([]entity.Entity, len(opts.Providers))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range opts.Providers {
		g.Go(func() error {
			got, err := p.Get(gctx, entity.Clone(e), opts.Mode)
			if err != nil {
				l.providerFailed(p, "get", err)
				return nil
			}
			if got != nil && got.Kind() != e.Kind() {
				l.logger.Warn("provider returned wrong kind",
					"provider", p.Name(), "want", e.Kind(), "got", got.Kind())
				return nil
			}
			if got != nil {
				results[i] = unkeyed(got)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return merge.JoinAll(results...), nil
}

// List returns the local entities of kind related to relatedTo together
// with what providers list, collapsing duplicates that merge.
func (l *Librarian) List(ctx context.Context, opts Options, kind entity.Kind, relatedTo entity.Entity) ([]entity.Entity, error) {
	local, err := l.lib.List(ctx, kind, relatedTo)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	return l.gather(ctx, opts, local, "list", func(ctx context.Context, p Provider) ([]entity.Entity, error) {
		return p.List(ctx, kind, relatedTo, opts.Mode)
	})
}

// Search matches q.Text against names locally and asks every provider.
func (l *Librarian) Search(ctx context.Context, opts Options, q SearchQuery) ([]entity.Entity, error) {
	all, err := l.lib.List(ctx, q.Kind, nil)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", q.Kind, err)
	}
	var local []entity.Entity
	for _, e := range all {
		if NameContains(e, q.Text) {
			local = append(local, e)
		}
	}
	out, err := l.gather(ctx, opts, local, "search", func(ctx context.Context, p Provider) ([]entity.Entity, error) {
		return p.Search(ctx, q, opts.Mode)
	})
	if err != nil {
		return nil, err
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (l *Librarian) gather(ctx context.Context, opts Options, local []entity.Entity, op string,
	call func(context.Context, Provider) ([]entity.Entity, error)) ([]entity.Entity, error) {
	results := make([][]entity.Entity, len(opts.Providers))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range opts.Providers {
		g.Go(func() error {
			got, err := call(gctx, p)
			if err != nil {
				l.providerFailed(p, op, err)
				return nil
			}
			for _, e := range got {
				results[i] = append(results[i], unkeyed(e))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := append([]entity.Entity{}, local...)
	for _, r := range results {
		out = merge.MergeSeq(out, r)
	}
	return out, nil
}

// unkeyed returns a copy of e without keys. Provider keys belong to the
// provider's own storage and never identify a local entity.
func unkeyed(e entity.Entity) entity.Entity {
	c := entity.Clone(e)
	var strip func(entity.Entity)
	strip = func(e entity.Entity) {
		entity.SetKey(e, "")
		for _, ref := range entity.References(e) {
			strip(ref)
		}
	}
	strip(c)
	return c
}

func (l *Librarian) providerFailed(p Provider, op string, err error) {
	l.logger.Warn("provider failed", "provider", p.Name(), "op", op, "error", err)
}

// NameContains reports whether e's name contains text, compared after
// normalization.
func NameContains(e entity.Entity, text string) bool {
	name := entity.Name(e)
	if name == "" {
		return false
	}
	return strings.Contains(match.Normalize(name), match.Normalize(text))
}
