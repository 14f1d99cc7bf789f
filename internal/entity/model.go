package entity

// Entity is implemented by the pointer types of every variant in this
// package. The set of variants is closed.
type Entity interface {
	Kind() Kind
	base() *Base
}

// Base carries the fields every variant shares.
type Base struct {
	// Key is the permanent storage key. Empty until first persisted.
	Key   string   `json:"key,omitempty"`
	IDs   KnownIDs `json:"ids,omitzero"`
	Links Set      `json:"links,omitempty"`
}

func (b *Base) base() *Base { return b }

// KnownIDs holds identifiers assigned by external catalogs.
type KnownIDs struct {
	MusicBrainz *string `json:"musicbrainz,omitempty"`
	Discogs     *string `json:"discogs,omitempty"`
	Wikidata    *string `json:"wikidata,omitempty"`
}

// IsZero reports whether no identifier is known.
func (k KnownIDs) IsZero() bool {
	return k.MusicBrainz == nil && k.Discogs == nil && k.Wikidata == nil
}

// Scheme names an external identifier scheme.
type Scheme string

const (
	SchemeMusicBrainz Scheme = "musicbrainz"
	SchemeDiscogs     Scheme = "discogs"
	SchemeWikidata    Scheme = "wikidata"
)

// Schemes lists every identifier scheme in match priority order.
func Schemes() []Scheme {
	return []Scheme{SchemeMusicBrainz, SchemeDiscogs, SchemeWikidata}
}

// Get returns the identifier for a scheme, or nil.
func (k KnownIDs) Get(s Scheme) *string {
	switch s {
	case SchemeMusicBrainz:
		return k.MusicBrainz
	case SchemeDiscogs:
		return k.Discogs
	case SchemeWikidata:
		return k.Wikidata
	}
	return nil
}

// Set assigns the identifier for a scheme.
func (k *KnownIDs) Set(s Scheme, v *string) {
	switch s {
	case SchemeMusicBrainz:
		k.MusicBrainz = v
	case SchemeDiscogs:
		k.Discogs = v
	case SchemeWikidata:
		k.Wikidata = v
	}
}

// Artist is a person or group credited on recordings and releases.
type Artist struct {
	Base
	Name           *string  `json:"name,omitempty"`
	SortName       *string  `json:"sort_name,omitempty"`
	Disambiguation *string  `json:"disambiguation,omitempty"`
	Country        *string  `json:"country,omitempty"`
	Genres         []*Genre `json:"genres,omitempty"`
}

// Genre is a musical genre tag.
type Genre struct {
	Base
	Name           *string `json:"name,omitempty"`
	Disambiguation *string `json:"disambiguation,omitempty"`
}

// ArtistCredit attributes a work to an artist, with the name as credited.
type ArtistCredit struct {
	Base
	Position   *int    `json:"position,omitempty"`
	Name       *string `json:"name,omitempty"`
	JoinPhrase *string `json:"join_phrase,omitempty"`
	Artist     *Artist `json:"artist,omitempty"`
}

// Release is a concrete published product: an album edition, a single.
type Release struct {
	Base
	Title          *string         `json:"title,omitempty"`
	Disambiguation *string         `json:"disambiguation,omitempty"`
	Date           *string         `json:"date,omitempty"`
	Country        *string         `json:"country,omitempty"`
	Status         *string         `json:"status,omitempty"`
	Barcode        *string         `json:"barcode,omitempty"`
	Artwork        Set             `json:"artwork,omitempty"`
	Credits        []*ArtistCredit `json:"credits,omitempty"`
	Media          []*Medium       `json:"media,omitempty"`
	Genres         []*Genre        `json:"genres,omitempty"`
}

// ReleaseGroup groups the editions of one logical album.
type ReleaseGroup struct {
	Base
	Title       *string         `json:"title,omitempty"`
	PrimaryType *string         `json:"primary_type,omitempty"`
	Credits     []*ArtistCredit `json:"credits,omitempty"`
	Genres      []*Genre        `json:"genres,omitempty"`
}

// Recording is a distinct captured performance.
type Recording struct {
	Base
	Title          *string         `json:"title,omitempty"`
	Disambiguation *string         `json:"disambiguation,omitempty"`
	Length         *int            `json:"length,omitempty"`
	ISRCs          Set             `json:"isrcs,omitempty"`
	Credits        []*ArtistCredit `json:"credits,omitempty"`
}

// Track is a recording's placement on a medium.
type Track struct {
	Base
	Title     *string         `json:"title,omitempty"`
	Position  *int            `json:"position,omitempty"`
	Length    *int            `json:"length,omitempty"`
	Audio     *string         `json:"audio,omitempty"`
	Recording *Recording      `json:"recording,omitempty"`
	Credits   []*ArtistCredit `json:"credits,omitempty"`
}

// Medium is one disc or side of a release.
type Medium struct {
	Base
	Position *int     `json:"position,omitempty"`
	Format   *string  `json:"format,omitempty"`
	Title    *string  `json:"title,omitempty"`
	Tracks   []*Track `json:"tracks,omitempty"`
}

func (*Artist) Kind() Kind       { return KindArtist }
func (*Genre) Kind() Kind        { return KindGenre }
func (*ArtistCredit) Kind() Kind { return KindArtistCredit }
func (*Release) Kind() Kind      { return KindRelease }
func (*ReleaseGroup) Kind() Kind { return KindReleaseGroup }
func (*Recording) Kind() Kind    { return KindRecording }
func (*Track) Kind() Kind        { return KindTrack }
func (*Medium) Kind() Kind       { return KindMedium }

// Ordered is implemented by children that carry a position in a sequence.
type Ordered interface {
	Entity
	Ordinal() (int, bool)
}

func (c *ArtistCredit) Ordinal() (int, bool) { return ordinal(c.Position) }
func (t *Track) Ordinal() (int, bool)        { return ordinal(t.Position) }
func (m *Medium) Ordinal() (int, bool)       { return ordinal(m.Position) }

func ordinal(p *int) (int, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

// KeyOf returns the storage key of e, or "" for nil.
func KeyOf(e Entity) string {
	if e == nil {
		return ""
	}
	return e.base().Key
}

// SetKey assigns the storage key of e.
func SetKey(e Entity, key string) {
	e.base().Key = key
}

// IDsOf returns the known identifiers of e.
func IDsOf(e Entity) KnownIDs {
	if e == nil {
		return KnownIDs{}
	}
	return e.base().IDs
}

// LinksOf returns the links of e.
func LinksOf(e Entity) Set {
	if e == nil {
		return nil
	}
	return e.base().Links
}

// Ref identifies a stored entity by kind and key.
type Ref struct {
	Kind Kind   `json:"kind" yaml:"kind"`
	Key  string `json:"key" yaml:"key"`
}

// RefOf returns the reference for a keyed entity.
func RefOf(e Entity) Ref {
	return Ref{Kind: e.Kind(), Key: KeyOf(e)}
}

// Name returns the primary display string of e: a name or a title.
func Name(e Entity) string {
	var p *string
	switch v := e.(type) {
	case *Artist:
		p = v.Name
	case *Genre:
		p = v.Name
	case *ArtistCredit:
		p = v.Name
	case *Release:
		p = v.Title
	case *ReleaseGroup:
		p = v.Title
	case *Recording:
		p = v.Title
	case *Track:
		p = v.Title
	case *Medium:
		p = v.Title
	}
	if p == nil {
		return ""
	}
	return *p
}

// Disambiguation returns the disambiguation comment of e, if the variant has one.
func Disambiguation(e Entity) string {
	var p *string
	switch v := e.(type) {
	case *Artist:
		p = v.Disambiguation
	case *Genre:
		p = v.Disambiguation
	case *Release:
		p = v.Disambiguation
	case *Recording:
		p = v.Disambiguation
	}
	if p == nil {
		return ""
	}
	return *p
}

// Ptr returns a pointer to v. Handy for building entities in literals.
func Ptr[T any](v T) *T {
	return &v
}
