package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kensaku/internal/apperr"
	"github.com/hyperjump/kensaku/internal/index"
	"github.com/hyperjump/kensaku/internal/models"
)

// Status describes the committed index in dir. With a non-nil history the
// recent builds are included.
func Status(ctx context.Context, dir string, history BuildHistory, builds int) (*models.IndexStatus, error) {
	const op = "index status"
	m, err := index.ReadManifest(index.DefaultFS, dir)
	if err != nil {
		return nil, err
	}
	usage, err := UsageByKind(dir)
	if err != nil {
		return nil, apperr.IO(op, err)
	}
	total, err := DiskUsageBytes(dir)
	if err != nil {
		return nil, apperr.IO(op, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperr.IO(op, err)
	}

	st := &models.IndexStatus{
		Dir:        dir,
		Generation: m.Generation,
		CommitID:   m.CommitID,
		Documents:  m.NumDocs(),
		DiskUsage:  usage,
		TotalBytes: total,
	}
	base := 0
	for _, seg := range m.Segments {
		ss := models.SegmentStatus{Name: seg.Name, Docs: seg.Docs, DocBase: base}
		for _, e := range entries {
			if !strings.HasPrefix(e.Name(), seg.Name+".") {
				continue
			}
			if info, err := e.Info(); err == nil {
				ss.Bytes += info.Size()
			}
		}
		st.Segments = append(st.Segments, ss)
		base += seg.Docs
	}
	if history != nil && builds > 0 {
		if st.Builds, err = history.RecentBuilds(ctx, builds); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// HistoryPath returns the history database path for the index in dir.
func HistoryPath(dir string) string { return filepath.Join(dir, HistoryFile) }
