package models

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest marks a request rejected before it reaches the index.
var ErrInvalidRequest = errors.New("invalid request")

// SearchQuery is a search request.
type SearchQuery struct {
	Query     string `json:"query"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
	Highlight bool   `json:"highlight,omitempty"` // mark query terms in FIRST_LINE
	Suggest   *bool  `json:"suggest,omitempty"`   // nil uses the engine default
}

// Validate rejects an empty query and clamps Limit to [1, maxLimit],
// using defaultLimit when unset.
func (q *SearchQuery) Validate(defaultLimit, maxLimit int) error {
	if q.Query == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrInvalidRequest)
	}
	if q.Offset < 0 {
		return fmt.Errorf("%w: offset cannot be negative", ErrInvalidRequest)
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if maxLimit > 0 && q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	return nil
}
