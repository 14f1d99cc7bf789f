package query

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/crate/internal/entity"
)

// Matches evaluates p against e in memory. It gives the same answers as
// the SQL compiled by querysql, for backends without a query engine.
func Matches(p Predicate, e entity.Entity) (bool, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return false, err
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return false, err
	}
	return eval(p, doc)
}

func eval(p Predicate, doc map[string]any) (bool, error) {
	switch pred := p.(type) {
	case nil:
		return true, nil
	case Equals:
		v, ok := lookup(doc, pred.Path)
		if !ok {
			return false, nil
		}
		c, ok := compare(v, pred.Value)
		return ok && c == 0, nil
	case Compare:
		v, ok := lookup(doc, pred.Path)
		if !ok {
			return false, nil
		}
		c, ok := compare(v, pred.Value)
		if !ok {
			return false, nil
		}
		switch pred.Op {
		case OpGreater:
			return c > 0, nil
		case OpGreaterEqual:
			return c >= 0, nil
		case OpLess:
			return c < 0, nil
		case OpLessEqual:
			return c <= 0, nil
		case OpNotEqual:
			return c != 0, nil
		}
		return false, fmt.Errorf("unsupported operator %q", pred.Op)
	case HasID:
		v, ok := lookup(doc, "ids."+string(pred.Scheme))
		return ok && v == pred.Value, nil
	case And:
		for _, sub := range pred.Predicates {
			ok, err := eval(sub, doc)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	default:
		return false, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func lookup(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, seg := range splitPath(path) {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[seg]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// compare orders a document value against a query value of the same
// family. Booleans compare as integers, matching SQLite.
func compare(docValue, want any) (int, bool) {
	switch w := want.(type) {
	case string:
		s, ok := docValue.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(s, w), true
	case int:
		return compareInt(docValue, int64(w))
	case int64:
		return compareInt(docValue, w)
	case bool:
		b, ok := docValue.(bool)
		if !ok {
			return 0, false
		}
		return compareBool(b, w), true
	}
	return 0, false
}

func compareInt(docValue any, w int64) (int, bool) {
	n, ok := docValue.(json.Number)
	if !ok {
		return 0, false
	}
	v, err := n.Int64()
	if err != nil {
		return 0, false
	}
	switch {
	case v < w:
		return -1, true
	case v > w:
		return 1, true
	}
	return 0, true
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}
