package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopKCollector(t *testing.T) {
	c := NewTopKCollector(3)
	for _, h := range []Hit{{4, 0.5}, {1, 0.9}, {7, 0.5}, {2, 0.5}, {3, 0.1}, {9, 1.2}} {
		c.Collect(h.Doc, h.Score)
	}
	td := c.TopDocs()
	assert.Equal(t, 6, td.TotalHits)
	assert.Equal(t, []Hit{{9, 1.2}, {1, 0.9}, {2, 0.5}}, td.Hits, "equal scores keep the lowest doc ids")
}

func TestTopKCollector_ZeroK(t *testing.T) {
	c := NewTopKCollector(0)
	c.Collect(1, 1)
	c.Collect(2, 2)
	td := c.TopDocs()
	assert.Equal(t, 2, td.TotalHits)
	assert.Empty(t, td.Hits)
}
