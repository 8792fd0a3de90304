package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuery(t *testing.T) {
	q := ParseQuery("  Writing work, Meeting ,, ")
	assert.False(t, q.Negate)
	assert.Equal(t, [][]string{{"writing", "work"}, {"meeting"}}, q.Groups)
	assert.Equal(t, []string{"writing", "work", "meeting"}, q.Terms())

	q = ParseQuery("NOT coding")
	assert.True(t, q.Negate)
	assert.Equal(t, [][]string{{"coding"}}, q.Groups)

	// "not" alone and "nothing" are ordinary terms
	assert.False(t, ParseQuery("not").Negate)
	assert.False(t, ParseQuery("nothing").Negate)

	assert.True(t, ParseQuery("   ").IsEmpty())
}

func TestMatcherOverlapping(t *testing.T) {
	m := NewMatcher([]string{"abc", "bc", "cde", "x", "abc"})
	require.Equal(t, []string{"abc", "bc", "cde", "x"}, m.Patterns())

	// "abc" and "cde" overlap on 'c'; "bc" is inside "abc"
	assert.Equal(t, []bool{true, true, true, false}, m.Scan("zzABCDE"))
	assert.Equal(t, []bool{false, false, false, false}, m.Scan(""))
	assert.Equal(t, []bool{false, true, false, true}, m.Scan("xbc"))
}

func TestMatcherNoTerms(t *testing.T) {
	m := NewMatcher(nil)
	assert.Empty(t, m.Scan("anything"))
}

func TestIndexBoolean(t *testing.T) {
	docs := map[uint64]string{
		1: "writing work chapter two draft",
		2: "meeting work weekly sync",
		3: "coding home hamster bug",
		4: "reading home",
	}
	eval := func(text string) []uint64 {
		ix := NewIndex(ParseQuery(text))
		for id, d := range docs {
			ix.Add(id, d)
		}
		return ix.Result().ToArray()
	}

	assert.Equal(t, []uint64{1, 2, 3, 4}, eval(""))
	assert.Equal(t, []uint64{1, 2}, eval("work"))
	assert.Equal(t, []uint64{2}, eval("work sync"))
	assert.Equal(t, []uint64{2, 3}, eval("sync, bug"))
	assert.Equal(t, []uint64{3, 4}, eval("not work"))
	assert.Equal(t, []uint64{1, 3, 4}, eval("not work sync"))
	assert.Equal(t, []uint64{1}, eval("WRIT draft, nope"))
	assert.Empty(t, eval("missing"))
}

func TestMatch(t *testing.T) {
	assert.True(t, Match(ParseQuery("ham"), "coding@home hamster"))
	assert.False(t, Match(ParseQuery("not ham"), "coding@home hamster"))
	assert.True(t, Match(ParseQuery(""), "x"))
}
