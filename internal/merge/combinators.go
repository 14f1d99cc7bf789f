package merge

import (
	"cmp"

	"github.com/roach88/crate/internal/entity"
)

// Coalesce returns whichever of a and b is set. It fails when both are set
// to different values.
func Coalesce[T comparable](a, b *T) (*T, bool) {
	switch {
	case a == nil && b == nil:
		return nil, true
	case a == nil:
		return copyOf(b), true
	case b == nil:
		return copyOf(a), true
	case *a == *b:
		return copyOf(a), true
	default:
		return nil, false
	}
}

// Union is set union.
func Union(a, b entity.Set) entity.Set {
	return a.Union(b)
}

// LongerString keeps the longer of two strings, breaking ties with the
// lexicographically larger one.
func LongerString(a, b *string) *string {
	switch {
	case a == nil:
		return copyOf(b)
	case b == nil:
		return copyOf(a)
	case len(*a) != len(*b):
		if len(*a) > len(*b) {
			return copyOf(a)
		}
		return copyOf(b)
	default:
		return copyOf(maxOf(*a, *b))
	}
}

// MaxInt keeps the larger of two integers.
func MaxInt(a, b *int) *int {
	switch {
	case a == nil:
		return copyOf(b)
	case b == nil:
		return copyOf(a)
	default:
		return copyOf(maxOf(*a, *b))
	}
}

// MaxString keeps the lexicographically larger string. Empty loses.
func MaxString(a, b string) string {
	return max(a, b)
}

func maxOf[T cmp.Ordered](a, b T) *T {
	v := max(a, b)
	return &v
}

func copyOf[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
