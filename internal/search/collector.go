package search

import "container/heap"

// Hit is one ranked document.
type Hit struct {
	Doc   int // global doc id within the snapshot
	Score float64
}

// TopDocs is the result of a search: the best hits in rank order and the
// number of documents that matched.
type TopDocs struct {
	TotalHits int
	Hits      []Hit
}

// better orders hits by score descending, then doc ascending.
func better(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Doc < b.Doc
}

// TopKCollector keeps the k best hits in a bounded min-heap whose root is
// the worst retained hit.
type TopKCollector struct {
	k     int
	total int
	hits  hitQueue
}

// NewTopKCollector returns a collector for the k best hits.
func NewTopKCollector(k int) *TopKCollector {
	return &TopKCollector{k: max(k, 0), hits: make(hitQueue, 0, min(max(k, 0), 1024))}
}

// Collect offers a match.
func (c *TopKCollector) Collect(doc int, score float64) {
	c.total++
	if c.k == 0 {
		return
	}
	h := Hit{Doc: doc, Score: score}
	if len(c.hits) < c.k {
		heap.Push(&c.hits, h)
		return
	}
	if better(h, c.hits[0]) {
		c.hits[0] = h
		heap.Fix(&c.hits, 0)
	}
}

// TopDocs drains the collector, best hit first.
func (c *TopKCollector) TopDocs() TopDocs {
	hits := make([]Hit, len(c.hits))
	for i := len(hits) - 1; i >= 0; i-- {
		hits[i] = heap.Pop(&c.hits).(Hit)
	}
	return TopDocs{TotalHits: c.total, Hits: hits}
}

type hitQueue []Hit

func (q hitQueue) Len() int           { return len(q) }
func (q hitQueue) Less(i, j int) bool { return better(q[j], q[i]) }
func (q hitQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *hitQueue) Push(x any)        { *q = append(*q, x.(Hit)) }
func (q *hitQueue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}
