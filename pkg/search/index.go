package search

import (
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// ============================================================================
// Index - per-query posting bitmaps
// ============================================================================

// Index collects documents for one query. Each term keeps a bitmap of the
// document ids containing it; Result combines them with the query's boolean
// structure.
type Index struct {
	query    Query
	matcher  *Matcher
	termIdx  map[string]int
	postings []*roaring64.Bitmap
	all      *roaring64.Bitmap
}

// NewIndex prepares an index for q.
func NewIndex(q Query) *Index {
	m := NewMatcher(q.Terms())
	ix := &Index{
		query:    q,
		matcher:  m,
		termIdx:  make(map[string]int, len(m.Patterns())),
		postings: make([]*roaring64.Bitmap, len(m.Patterns())),
		all:      roaring64.New(),
	}
	for i, p := range m.Patterns() {
		ix.termIdx[p] = i
		ix.postings[i] = roaring64.New()
	}
	return ix
}

// Add indexes a document.
func (ix *Index) Add(id uint64, text string) {
	ix.all.Add(id)
	if ix.query.IsEmpty() {
		return
	}
	for i, ok := range ix.matcher.Scan(text) {
		if ok {
			ix.postings[i].Add(id)
		}
	}
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	return int(ix.all.GetCardinality())
}

// Result returns the ids of indexed documents satisfying the query.
func (ix *Index) Result() *roaring64.Bitmap {
	if ix.query.IsEmpty() {
		return ix.all.Clone()
	}

	hits := roaring64.New()
	for _, group := range ix.query.Groups {
		var acc *roaring64.Bitmap
		for _, term := range group {
			p := ix.postings[ix.termIdx[term]]
			if acc == nil {
				acc = p.Clone()
			} else {
				acc.And(p)
			}
			if acc.IsEmpty() {
				break
			}
		}
		hits.Or(acc)
	}

	if ix.query.Negate {
		out := ix.all.Clone()
		out.AndNot(hits)
		return out
	}
	return hits
}

// Match evaluates the query against a single text.
func Match(q Query, text string) bool {
	ix := NewIndex(q)
	ix.Add(0, text)
	return ix.Result().Contains(0)
}
