package search

import (
	"strings"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/models"
)

// ProcessQuery trims and validates the search request and applies the
// configured limits.
func ProcessQuery(q *models.SearchQuery, cfg *config.SearchConfig) error {
	q.Query = strings.TrimSpace(q.Query)
	return q.Validate(cfg.DefaultLimit, cfg.MaxLimit)
}
