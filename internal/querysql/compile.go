// Package querysql compiles document queries to parameterized SQLite SQL.
package querysql

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"

	"github.com/roach88/crate/internal/query"
)

// Compile converts q to SQL over the nodes and edges tables. The selected
// columns are kind, key and doc.
//
// Every query ends in ORDER BY n.key COLLATE BINARY so that results are
// identical across runs, and every value is a bound parameter.
func Compile(q query.Query) (string, []any, error) {
	if err := query.Validate(q); err != nil {
		return "", nil, err
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("n.kind", "n.key", "n.doc")
	sb.From("nodes n")

	where := []string{sb.Equal("n.kind", string(q.Kind))}
	if q.RelatedTo != nil {
		sb.JoinWithOption(sqlbuilder.InnerJoin, "edges e", "e.to_kind = n.kind", "e.to_key = n.key")
		where = append(where,
			sb.Equal("e.from_kind", string(q.RelatedTo.Kind)),
			sb.Equal("e.from_key", q.RelatedTo.Key),
		)
	}
	if q.Where != nil {
		cond, err := compilePredicate(sb, q.Where)
		if err != nil {
			return "", nil, err
		}
		where = append(where, cond)
	}
	sb.Where(where...)
	sb.OrderBy("n.key COLLATE BINARY")
	if q.Limit > 0 {
		sb.Limit(q.Limit)
	}

	sql, args := sb.Build()
	return sql, args, nil
}

func compilePredicate(sb *sqlbuilder.SelectBuilder, p query.Predicate) (string, error) {
	switch pred := p.(type) {
	case query.Equals:
		return sb.Equal(extract(pred.Path), pred.Value), nil
	case query.Compare:
		field := extract(pred.Path)
		switch pred.Op {
		case query.OpGreater:
			return sb.GreaterThan(field, pred.Value), nil
		case query.OpGreaterEqual:
			return sb.GreaterEqualThan(field, pred.Value), nil
		case query.OpLess:
			return sb.LessThan(field, pred.Value), nil
		case query.OpLessEqual:
			return sb.LessEqualThan(field, pred.Value), nil
		case query.OpNotEqual:
			return sb.NotEqual(field, pred.Value), nil
		}
		return "", fmt.Errorf("unsupported operator %q", pred.Op)
	case query.HasID:
		return sb.Equal(extract("ids."+string(pred.Scheme)), pred.Value), nil
	case query.And:
		conds := make([]string, 0, len(pred.Predicates))
		for _, sub := range pred.Predicates {
			cond, err := compilePredicate(sb, sub)
			if err != nil {
				return "", err
			}
			conds = append(conds, cond)
		}
		return sb.And(conds...), nil
	default:
		return "", fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// extract builds a json_extract call. path has been validated by
// query.Validate and is safe to inline.
func extract(path string) string {
	return "json_extract(n.doc, '$." + strings.TrimSpace(path) + "')"
}
