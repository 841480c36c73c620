// Package query defines the typed predicates the engine evaluates and the
// parser for the find grammar:
//
//	find = <value> | > <n> | < <n> | contains <s> | fulltext <words>
//	     | <field> = <value> | <field> > <n> | <field> < <n>
//	  [sortby <field>] [limit <n>]
package query

import (
	"fmt"
	"strconv"
	"strings"

	"stashdb/value"
)

// QueryError is returned for an unparseable predicate or malformed
// sort/limit clause.
type QueryError struct{ Reason string }

func (e *QueryError) Error() string {
	return fmt.Sprintf("invalid query: %s", e.Reason)
}

// Predicate is one of Equal, FieldEqual, Range, Contains, FullText.
type Predicate interface {
	isPredicate()
}

// Equal matches entries whose whole value equals Value.
type Equal struct{ Value value.Value }

// FieldEqual matches struct entries whose top-level Field equals Value.
type FieldEqual struct {
	Field string
	Value value.Value
}

// Range matches entries whose numeric value (bare numbers when Field is
// empty, the named top-level field otherwise) is above or below Bound.
type Range struct {
	Field string
	Above bool
	Bound float64
}

// Contains matches entries whose serialized value contains Substr as a
// literal, case-sensitive substring. Answered by linear scan.
type Contains struct{ Substr string }

// FullText matches entries whose token set contains every word. Words are
// already lower-cased; an empty word list matches nothing.
type FullText struct{ Words []string }

func (Equal) isPredicate()      {}
func (FieldEqual) isPredicate() {}
func (Range) isPredicate()      {}
func (Contains) isPredicate()   {}
func (FullText) isPredicate()   {}

// Query is a parsed find request: a predicate plus optional sort field and
// result limit (0 means unlimited).
type Query struct {
	Predicate Predicate
	SortBy    string
	Limit     int
}

// Parse builds a Query from the tokens following the find keyword.
func Parse(args []string) (Query, error) {
	var q Query

	main, err := q.extractClauses(args)
	if err != nil {
		return Query{}, err
	}
	if len(main) < 2 {
		return Query{}, &QueryError{Reason: "use: = <value>, > <n>, < <n>, contains <s>, fulltext <words>, or <field> <op> <value>"}
	}

	switch main[0] {
	case "=", ">", "<":
		q.Predicate, err = parseOperator(main[0], "", strings.Join(main[1:], " "))
	case "contains":
		sub := strings.Join(main[1:], " ")
		if sub == "" {
			return Query{}, &QueryError{Reason: "contains requires a search string"}
		}
		q.Predicate = Contains{Substr: sub}
	case "fulltext":
		// An empty word list is legal and matches nothing.
		q.Predicate = FullText{Words: strings.Fields(strings.ToLower(strings.Join(main[1:], " ")))}
	default:
		field := main[0]
		if len(main) < 3 {
			return Query{}, &QueryError{Reason: "use: <field> = <value>, <field> > <n>, or <field> < <n>"}
		}
		switch main[1] {
		case "=", ">", "<":
			q.Predicate, err = parseOperator(main[1], field, strings.Join(main[2:], " "))
		default:
			return Query{}, &QueryError{Reason: fmt.Sprintf("unknown operator %q", main[1])}
		}
	}
	if err != nil {
		return Query{}, err
	}
	return q, nil
}

// extractClauses pulls sortby/limit out of args and returns the remaining
// predicate tokens.
func (q *Query) extractClauses(args []string) ([]string, error) {
	var main []string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "sortby":
			if i+1 >= len(args) {
				return nil, &QueryError{Reason: "sortby requires a field name"}
			}
			i++
			q.SortBy = args[i]
		case "limit":
			if i+1 >= len(args) {
				return nil, &QueryError{Reason: "limit requires a number"}
			}
			i++
			n, err := strconv.Atoi(args[i])
			if err != nil || n <= 0 {
				return nil, &QueryError{Reason: "limit must be a positive integer"}
			}
			q.Limit = n
		default:
			main = append(main, args[i])
		}
	}
	return main, nil
}

func parseOperator(op, field, raw string) (Predicate, error) {
	if op == "=" {
		v, err := value.Parse(raw)
		if err != nil {
			return nil, &QueryError{Reason: fmt.Sprintf("bad comparison value: %v", err)}
		}
		if field == "" {
			return Equal{Value: v}, nil
		}
		return FieldEqual{Field: field, Value: v}, nil
	}

	bound, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, &QueryError{Reason: fmt.Sprintf("range queries require a numeric bound, got %q", raw)}
	}
	return Range{Field: field, Above: op == ">", Bound: bound}, nil
}
