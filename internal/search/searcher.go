package search

import (
	"context"
	"fmt"

	"github.com/hyperjump/kensaku/internal/index"
	"github.com/hyperjump/kensaku/internal/query"
)

// checkEvery is how many collected hits pass between context checks.
const checkEvery = 64

// Searcher evaluates parsed queries against one snapshot. It does not own
// the snapshot.
type Searcher struct {
	snap          *index.Snapshot
	sim           Similarity
	maxExpansions int
}

// SearcherOption configures a Searcher.
type SearcherOption func(*Searcher)

// WithMaxExpansions bounds wildcard and fuzzy expansion.
func WithMaxExpansions(n int) SearcherOption {
	return func(s *Searcher) {
		if n > 0 {
			s.maxExpansions = n
		}
	}
}

// NewSearcher returns a searcher over snap.
func NewSearcher(snap *index.Snapshot, opts ...SearcherOption) *Searcher {
	s := &Searcher{snap: snap, maxExpansions: DefaultMaxExpansions}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rewrite expands the wildcard and fuzzy nodes of q into term disjunctions.
func (s *Searcher) Rewrite(q query.Query) (query.Query, error) {
	r := &rewriter{snap: s.snap, maxExpansions: s.maxExpansions}
	return r.rewrite(q)
}

// Search returns the k best documents for q, ordered by score descending and
// then doc id ascending. If ctx is canceled during collection the partial
// result is discarded and ctx's error returned.
func (s *Searcher) Search(ctx context.Context, q query.Query, k int) (TopDocs, error) {
	rq, err := s.Rewrite(q)
	if err != nil {
		return TopDocs{}, fmt.Errorf("rewrite: %w", err)
	}
	c := &compiler{snap: s.snap, sim: s.sim}
	w, err := c.compile(rq)
	if err != nil {
		return TopDocs{}, err
	}

	coll := NewTopKCollector(k)
	n := 0
	for _, leaf := range s.snap.Leaves() {
		if err := ctx.Err(); err != nil {
			return TopDocs{}, err
		}
		sc, err := w.scorer(leaf.Segment)
		if err != nil {
			return TopDocs{}, err
		}
		if sc == nil {
			continue
		}
		for doc := sc.Next(); doc != NoMoreDocs; doc = sc.Next() {
			coll.Collect(leaf.DocBase+int(doc), sc.Score())
			if n++; n%checkEvery == 0 {
				if err := ctx.Err(); err != nil {
					return TopDocs{}, err
				}
			}
		}
		if err := sc.Err(); err != nil {
			return TopDocs{}, fmt.Errorf("search %s: %w", leaf.Segment.Name(), err)
		}
	}
	if err := ctx.Err(); err != nil {
		return TopDocs{}, err
	}
	return coll.TopDocs(), nil
}
