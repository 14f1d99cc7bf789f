package librarian

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/roach88/crate/internal/entity"
)

// Cached memoizes p's Get answers for ttl while Online. Offline calls and
// List and Search pass straight through.
func Cached(p Provider, ttl time.Duration) Provider {
	return &cached{
		Provider: p,
		entries: ttlcache.New[string, entity.Entity](
			ttlcache.WithTTL[string, entity.Entity](ttl),
			ttlcache.WithDisableTouchOnHit[string, entity.Entity](),
		),
	}
}

type cached struct {
	Provider
	entries *ttlcache.Cache[string, entity.Entity]
}

func (c *cached) Get(ctx context.Context, e entity.Entity, mode NetworkMode) (entity.Entity, error) {
	if mode == Offline {
		return c.Provider.Get(ctx, e, mode)
	}
	key, err := entity.MarshalCanonical(e)
	if err != nil {
		return nil, err
	}
	cacheKey := string(e.Kind()) + ":" + string(key)
	if item := c.entries.Get(cacheKey); item != nil {
		return cloneOrNil(item.Value()), nil
	}

	got, err := c.Provider.Get(ctx, e, mode)
	if err != nil {
		return nil, err
	}
	c.entries.Set(cacheKey, cloneOrNil(got), ttlcache.DefaultTTL)
	return got, nil
}

func cloneOrNil(e entity.Entity) entity.Entity {
	if e == nil {
		return nil
	}
	return entity.Clone(e)
}
