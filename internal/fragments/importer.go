package fragments

import (
	"context"
	"fmt"

	"github.com/roach88/crate/internal/entity"
	"github.com/roach88/crate/internal/library"
	"github.com/roach88/crate/internal/logging"
)

// Imported is a fragment together with the entity it was saved as.
type Imported struct {
	Fragment
	Saved entity.Entity
}

// Import saves each fragment through lib in order. It stops at the first
// storage error; fragments saved before it stay saved. Progress is logged
// to the logger carried by ctx.
func Import(ctx context.Context, lib *library.Library, frags []Fragment) ([]Imported, error) {
	logger := logging.FromContext(ctx)
	out := make([]Imported, 0, len(frags))
	for _, f := range frags {
		saved, err := lib.Save(ctx, f.Entity)
		if err != nil {
			return out, fmt.Errorf("import %s.%s: %w", f.Entity.Kind(), f.Label, err)
		}
		logger.Debug("imported fragment",
			"label", f.Label,
			"kind", saved.Kind(),
			"key", entity.KeyOf(saved),
		)
		out = append(out, Imported{Fragment: f, Saved: saved})
	}
	return out, nil
}
