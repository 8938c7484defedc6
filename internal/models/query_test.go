package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchQuery_Validate(t *testing.T) {
	tests := []struct {
		name      string
		query     *SearchQuery
		wantErr   bool
		wantLimit int
	}{
		{"empty query", &SearchQuery{Query: ""}, true, 0},
		{"negative offset", &SearchQuery{Query: "x", Offset: -1}, true, 0},
		{"sets default limit", &SearchQuery{Query: "x"}, false, 10},
		{"keeps limit", &SearchQuery{Query: "x", Limit: 5}, false, 5},
		{"caps limit", &SearchQuery{Query: "x", Limit: 500}, false, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate(10, 100)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRequest)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantLimit, tt.query.Limit)
		})
	}
}
