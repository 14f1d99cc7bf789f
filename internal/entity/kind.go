package entity

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownKind is returned when a kind string does not name a variant.
var ErrUnknownKind = errors.New("unknown entity kind")

// Kind names an entity variant. It is the {type} segment of storage keys.
type Kind string

const (
	KindArtist       Kind = "artist"
	KindGenre        Kind = "genre"
	KindArtistCredit Kind = "artist_credit"
	KindRelease      Kind = "release"
	KindReleaseGroup Kind = "release_group"
	KindRecording    Kind = "recording"
	KindTrack        Kind = "track"
	KindMedium       Kind = "medium"
)

// Kinds returns every variant in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindArtist,
		KindGenre,
		KindArtistCredit,
		KindRelease,
		KindReleaseGroup,
		KindRecording,
		KindTrack,
		KindMedium,
	}
}

// String returns the kind name.
func (k Kind) String() string {
	return string(k)
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// New returns an empty entity of the given kind.
func New(kind Kind) (Entity, error) {
	switch kind {
	case KindArtist:
		return &Artist{}, nil
	case KindGenre:
		return &Genre{}, nil
	case KindArtistCredit:
		return &ArtistCredit{}, nil
	case KindRelease:
		return &Release{}, nil
	case KindReleaseGroup:
		return &ReleaseGroup{}, nil
	case KindRecording:
		return &Recording{}, nil
	case KindTrack:
		return &Track{}, nil
	case KindMedium:
		return &Medium{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, string(kind))
	}
}

// Decode parses a JSON document into a new entity of the given kind. Child
// sequences come back in Normalize order.
func Decode(kind Kind, data []byte) (Entity, error) {
	e, err := New(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	Normalize(e)
	return e, nil
}
