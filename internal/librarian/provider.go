package librarian

import (
	"context"

	"github.com/roach88/crate/internal/entity"
)

// NetworkMode says whether providers may reach the network.
type NetworkMode int

const (
	Online NetworkMode = iota
	Offline
)

func (m NetworkMode) String() string {
	if m == Offline {
		return "offline"
	}
	return "online"
}

// ParseNetworkMode parses "online" or "offline".
func ParseNetworkMode(s string) (NetworkMode, bool) {
	switch s {
	case "online", "":
		return Online, true
	case "offline":
		return Offline, true
	}
	return Online, false
}

// SearchQuery is a free-text lookup.
type SearchQuery struct {
	Kind  entity.Kind
	Text  string
	Limit int
}

// Provider is a source of metadata. Implementations return nil or an
// empty slice when they know nothing; an error means the provider failed.
type Provider interface {
	Name() string
	Get(ctx context.Context, e entity.Entity, mode NetworkMode) (entity.Entity, error)
	List(ctx context.Context, kind entity.Kind, relatedTo entity.Entity, mode NetworkMode) ([]entity.Entity, error)
	Search(ctx context.Context, q SearchQuery, mode NetworkMode) ([]entity.Entity, error)
}

// OnlineOnly wraps a provider that needs the network so that it answers
// nothing in Offline mode.
func OnlineOnly(p Provider) Provider {
	return onlineOnly{p}
}

type onlineOnly struct {
	Provider
}

func (o onlineOnly) Get(ctx context.Context, e entity.Entity, mode NetworkMode) (entity.Entity, error) {
	if mode == Offline {
		return nil, nil
	}
	return o.Provider.Get(ctx, e, mode)
}

func (o onlineOnly) List(ctx context.Context, kind entity.Kind, relatedTo entity.Entity, mode NetworkMode) ([]entity.Entity, error) {
	if mode == Offline {
		return nil, nil
	}
	return o.Provider.List(ctx, kind, relatedTo, mode)
}

func (o onlineOnly) Search(ctx context.Context, q SearchQuery, mode NetworkMode) ([]entity.Entity, error) {
	if mode == Offline {
		return nil, nil
	}
	return o.Provider.Search(ctx, q, mode)
}
