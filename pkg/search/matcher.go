package search

import (
	"strings"

	ahocorasick "github.com/petar-dambovaliev/aho-corasick"
)

// ============================================================================
// Matcher - multi-term substring detection
// ============================================================================

// Matcher reports which of a fixed set of terms occur in a text, scanning the
// text with a single Aho-Corasick automaton.
type Matcher struct {
	ac       ahocorasick.AhoCorasick
	patterns []string

	// covers[i] lists every pattern that is a substring of patterns[i],
	// including i itself. A leftmost-longest scan only reports the longest
	// pattern at a position; the shorter ones are implied.
	covers [][]int
}

// NewMatcher compiles terms (already normalized) into a matcher. Blank and
// duplicate terms are ignored.
func NewMatcher(terms []string) *Matcher {
	m := &Matcher{}
	seen := make(map[string]bool, len(terms))
	for _, t := range terms {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		m.patterns = append(m.patterns, t)
	}
	if len(m.patterns) == 0 {
		return m
	}

	m.covers = make([][]int, len(m.patterns))
	for i, p := range m.patterns {
		for j, q := range m.patterns {
			if strings.Contains(p, q) {
				m.covers[i] = append(m.covers[i], j)
			}
		}
	}

	builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		AsciiCaseInsensitive: true,
		MatchOnlyWholeWords:  false,
		MatchKind:            ahocorasick.LeftMostLongestMatch,
	})
	m.ac = builder.Build(m.patterns)
	return m
}

// Patterns returns the compiled terms; indexes match those of Scan.
func (m *Matcher) Patterns() []string {
	return m.patterns
}

// Scan returns, for each pattern, whether it occurs anywhere in text.
func (m *Matcher) Scan(text string) []bool {
	found := make([]bool, len(m.patterns))
	if len(m.patterns) == 0 {
		return found
	}
	text = NormalizeText(text)

	// FindAll yields non-overlapping matches. Restarting one byte after the
	// first match picks up patterns that begin inside it.
	pos := 0
	for pos < len(text) {
		matches := m.ac.FindAll(text[pos:])
		if len(matches) == 0 {
			break
		}
		for _, match := range matches {
			for _, j := range m.covers[match.Pattern()] {
				found[j] = true
			}
		}
		pos += matches[0].Start() + 1
	}
	return found
}
