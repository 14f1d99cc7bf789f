package query

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/roach88/crate/internal/entity"
)

var segment = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Validate checks that q can be compiled safely.
func Validate(q Query) error {
	if _, err := entity.ParseKind(string(q.Kind)); err != nil {
		return fmt.Errorf("query: %w", err)
	}
	if q.RelatedTo != nil {
		if _, err := entity.ParseKind(string(q.RelatedTo.Kind)); err != nil {
			return fmt.Errorf("query related: %w", err)
		}
		if q.RelatedTo.Key == "" {
			return fmt.Errorf("query related: empty key")
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("query: negative limit %d", q.Limit)
	}
	if q.Where == nil {
		return nil
	}
	return validatePredicate(q.Where)
}

func validatePredicate(p Predicate) error {
	switch pred := p.(type) {
	case Equals:
		if err := ValidatePath(pred.Path); err != nil {
			return err
		}
		return validateValue(pred.Value)
	case Compare:
		if err := ValidatePath(pred.Path); err != nil {
			return err
		}
		if !slices.Contains([]Op{OpGreater, OpGreaterEqual, OpLess, OpLessEqual, OpNotEqual}, pred.Op) {
			return fmt.Errorf("unsupported operator %q", pred.Op)
		}
		return validateValue(pred.Value)
	case HasID:
		if !slices.Contains(entity.Schemes(), pred.Scheme) {
			return fmt.Errorf("unknown id scheme %q", pred.Scheme)
		}
		if pred.Value == "" {
			return fmt.Errorf("empty %s id", pred.Scheme)
		}
		return nil
	case And:
		if len(pred.Predicates) == 0 {
			return fmt.Errorf("empty And predicate")
		}
		for i, sub := range pred.Predicates {
			if err := validatePredicate(sub); err != nil {
				return fmt.Errorf("and[%d]: %w", i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// ValidatePath rejects paths that are not dotted lower-case identifiers.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	for _, seg := range splitPath(path) {
		if !segment.MatchString(seg) {
			return fmt.Errorf("invalid path %q", path)
		}
	}
	return nil
}

func splitPath(path string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '.' {
			out = append(out, path[start:i])
			start = i + 1
		}
	}
	return out
}

func validateValue(v any) error {
	switch v.(type) {
	case string, int, int64, bool:
		return nil
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
}
