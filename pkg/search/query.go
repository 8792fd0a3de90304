// Package search implements the fact search language: comma separated
// alternatives of space separated terms, optionally negated as a whole with a
// leading "not ". Terms are case-insensitive substrings of a fact's indexed
// text.
package search

import (
	"strings"
	"unicode"
)

// Query is a parsed search expression in disjunctive normal form.
type Query struct {
	// Groups are OR-ed; the terms inside a group are AND-ed.
	Groups [][]string
	// Negate reverses the whole predicate.
	Negate bool
	Raw    string
}

// NormalizeText lowercases s the same way for indexing and querying.
func NormalizeText(s string) string {
	return strings.ToLower(s)
}

// ParseQuery splits user input into OR groups of AND terms.
// Empty groups (",," or trailing commas) are dropped.
func ParseQuery(input string) Query {
	q := Query{Raw: input}
	text := strings.TrimSpace(input)
	if len(text) >= 4 && strings.EqualFold(text[:3], "not") && unicode.IsSpace(rune(text[3])) {
		q.Negate = true
		text = strings.TrimSpace(text[4:])
	}

	for _, alt := range strings.Split(text, ",") {
		var group []string
		for _, term := range strings.Fields(alt) {
			group = append(group, NormalizeText(term))
		}
		if len(group) > 0 {
			q.Groups = append(q.Groups, group)
		}
	}
	return q
}

// IsEmpty reports whether the query has no terms. An empty query matches
// everything, negated or not.
func (q Query) IsEmpty() bool {
	return len(q.Groups) == 0
}

// Terms returns the distinct terms of q in first-seen order.
func (q Query) Terms() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, g := range q.Groups {
		for _, t := range g {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}
