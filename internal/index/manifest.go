package index

import (
	"encoding/json"
	"errors"
	"io/fs"
	"path/filepath"
	"slices"

	"github.com/hyperjump/kensaku/internal/apperr"
)

// Manifest names the live segments of a commit.
type Manifest struct {
	Version     int           `json:"version"`
	Generation  uint64        `json:"generation"`
	CommitID    string        `json:"commit_id"`
	NextSegment uint64        `json:"next_segment"`
	Segments    []SegmentInfo `json:"segments"`
}

// SegmentInfo is one manifest entry.
type SegmentInfo struct {
	Name string `json:"name"`
	Docs int    `json:"docs"`
}

// NumDocs sums the doc counts of all segments.
func (m *Manifest) NumDocs() int {
	n := 0
	for _, s := range m.Segments {
		n += s.Docs
	}
	return n
}

func (m *Manifest) has(name string) bool {
	return slices.ContainsFunc(m.Segments, func(s SegmentInfo) bool { return s.Name == name })
}

func sortSegments(segs []SegmentInfo) {
	slices.SortFunc(segs, func(a, b SegmentInfo) int {
		x, _ := parseSegmentName(a.Name)
		y, _ := parseSegmentName(b.Name)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	})
}

// ReadManifest loads the committed manifest of dir. A missing manifest is
// reported as ErrNoIndex with the IO kind.
func ReadManifest(fsys FileSystem, dir string) (*Manifest, error) {
	const op = "read manifest"
	data, err := fsys.ReadFile(filepath.Join(dir, manifestName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.Wrap(apperr.ErrIO, op, apperr.ErrNoIndex)
	}
	if err != nil {
		return nil, apperr.IO(op, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, apperr.Corruptf(op, "decode: %v", err)
	}
	if m.Version > FormatVersion || m.Version < 1 {
		return nil, apperr.Corruptf(op, "unsupported version %d (max %d)", m.Version, FormatVersion)
	}
	for _, s := range m.Segments {
		if _, ok := parseSegmentName(s.Name); !ok || s.Docs < 0 {
			return nil, apperr.Corruptf(op, "bad segment entry %q", s.Name)
		}
	}
	return &m, nil
}

// writeManifest commits m: manifest.new is written and fsynced, renamed over
// manifest, then the directory is fsynced.
func writeManifest(fsys FileSystem, dir string, m *Manifest) error {
	const op = "commit manifest"
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return apperr.IO(op, err)
	}
	tmp := filepath.Join(dir, manifestTmpName)
	f, err := createFile(fsys, tmp)
	if err != nil {
		return apperr.IO(op, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		fsys.Remove(tmp)
		return apperr.IO(op, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		fsys.Remove(tmp)
		return apperr.IO(op, err)
	}
	if err := f.Close(); err != nil {
		fsys.Remove(tmp)
		return apperr.IO(op, err)
	}
	if err := fsys.Rename(tmp, filepath.Join(dir, manifestName)); err != nil {
		fsys.Remove(tmp)
		return apperr.IO(op, err)
	}
	return apperr.IO(op, fsys.SyncDir(dir))
}
