package librarian

import (
	"context"
	"fmt"

	"github.com/roach88/crate/internal/entity"
	"github.com/roach88/crate/internal/match"
	"github.com/roach88/crate/internal/store"
)

// Catalog serves another crate store, such as a catalog file shared by a
// friend, as a read-only provider. Answers carry the catalog's referenced
// entities inline since its keys mean nothing locally.
type Catalog struct {
	name string
	r    store.Reader
}

// NewCatalog returns a provider reading from r.
func NewCatalog(name string, r store.Reader) *Catalog {
	return &Catalog{name: name, r: r}
}

func (c *Catalog) Name() string { return c.name }

// Get returns the catalog's record for e, or nil.
func (c *Catalog) Get(ctx context.Context, e entity.Entity, _ NetworkMode) (entity.Entity, error) {
	lookup := entity.Clone(e)
	entity.SetKey(lookup, "")
	found, _, err := match.FindMatch(ctx, c.r, lookup)
	if err != nil || found == nil {
		return nil, err
	}
	return c.expand(ctx, found)
}

// List resolves relatedTo in the catalog and lists what is linked to it
// there. Without relatedTo it lists the whole kind.
func (c *Catalog) List(ctx context.Context, kind entity.Kind, relatedTo entity.Entity, _ NetworkMode) ([]entity.Entity, error) {
	var anchor entity.Entity
	if relatedTo != nil {
		lookup := entity.Clone(relatedTo)
		entity.SetKey(lookup, "")
		found, _, err := match.FindMatch(ctx, c.r, lookup)
		if err != nil || found == nil {
			return nil, err
		}
		anchor = found
	}
	list, err := c.r.List(ctx, kind, anchor)
	if err != nil {
		return nil, err
	}
	return c.expandAll(ctx, list)
}

// Search returns catalog entities whose name contains q.Text.
func (c *Catalog) Search(ctx context.Context, q SearchQuery, _ NetworkMode) ([]entity.Entity, error) {
	all, err := c.r.List(ctx, q.Kind, nil)
	if err != nil {
		return nil, err
	}
	var hits []entity.Entity
	for _, e := range all {
		if NameContains(e, q.Text) {
			hits = append(hits, e)
		}
	}
	return c.expandAll(ctx, hits)
}

func (c *Catalog) expandAll(ctx context.Context, list []entity.Entity) ([]entity.Entity, error) {
	out := make([]entity.Entity, 0, len(list))
	for _, e := range list {
		x, err := c.expand(ctx, e)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, nil
}

func (c *Catalog) expand(ctx context.Context, e entity.Entity) (entity.Entity, error) {
	out := entity.Clone(e)
	for _, ref := range entity.References(out) {
		stored, err := c.r.Get(ctx, ref.Kind(), entity.KeyOf(ref))
		if err != nil {
			return nil, fmt.Errorf("%s: expand %s: %w", c.name, ref.Kind(), err)
		}
		if stored == nil {
			continue
		}
		full, err := c.expand(ctx, stored)
		if err != nil {
			return nil, err
		}
		entity.Assign(ref, full)
	}
	return out, nil
}
