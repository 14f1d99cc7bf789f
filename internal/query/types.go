package query

import (
	"context"

	"github.com/roach88/crate/internal/entity"
)

// Query selects stored entities.
type Query struct {
	Kind      entity.Kind
	RelatedTo *entity.Ref // nil = no relationship filter
	Where     Predicate   // nil = every entity of Kind
	Limit     int         // 0 = no limit
}

// Finder is implemented by stores that can evaluate queries natively.
type Finder interface {
	Find(ctx context.Context, q Query) ([]entity.Entity, error)
}

// Predicate is a filter over an entity document. Only types in this package
// implement it.
type Predicate interface {
	predicateNode()
}

// Equals matches when the value at Path equals Value. Value must be a
// string, int or bool.
type Equals struct {
	Path  string
	Value any
}

// Op is a comparison operator.
type Op string

const (
	OpGreater      Op = ">"
	OpGreaterEqual Op = ">="
	OpLess         Op = "<"
	OpLessEqual    Op = "<="
	OpNotEqual     Op = "!="
)

// Compare matches when the value at Path compares to Value by Op.
type Compare struct {
	Path  string
	Op    Op
	Value any
}

// HasID matches entities carrying the given external identifier.
type HasID struct {
	Scheme entity.Scheme
	Value  string
}

// And matches when every predicate matches.
type And struct {
	Predicates []Predicate
}

func (Equals) predicateNode()  {}
func (Compare) predicateNode() {}
func (HasID) predicateNode()   {}
func (And) predicateNode()     {}

// ByID builds a query for entities of kind with an external identifier.
func ByID(kind entity.Kind, scheme entity.Scheme, value string) Query {
	return Query{Kind: kind, Where: HasID{Scheme: scheme, Value: value}}
}
