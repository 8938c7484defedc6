// Package storage reports on the files of an index directory and keeps the
// build history beside them.
package storage

import (
	"context"

	"github.com/hyperjump/kensaku/internal/models"
)

// HistoryFile is the name of the build history database inside an index
// directory.
const HistoryFile = "history.db"

// BuildHistory records index builds.
type BuildHistory interface {
	RecordBuild(ctx context.Context, rec *models.BuildRecord) error
	RecentBuilds(ctx context.Context, limit int) ([]*models.BuildRecord, error)
	Close() error
}
