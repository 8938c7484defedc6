// Package models defines the request and response types shared by the CLI,
// the HTTP API and the search engine.
package models

import "time"

// IndexRequest asks for the index to be rebuilt from a directory.
type IndexRequest struct {
	Directory string `json:"directory,omitempty"`
	Suffix    string `json:"suffix,omitempty"`
	Recursive *bool  `json:"recursive,omitempty"`
	Append    bool   `json:"append,omitempty"`
}

// IndexResult summarizes a build.
type IndexResult struct {
	Files      int    `json:"files"`
	Documents  int    `json:"documents"`
	Segments   int    `json:"segments"`
	Generation uint64 `json:"generation"`
	ElapsedMS  int64  `json:"elapsed_ms"`
}

// SegmentStatus describes one committed segment.
type SegmentStatus struct {
	Name    string `json:"name"`
	Docs    int    `json:"docs"`
	DocBase int    `json:"doc_base"`
	Bytes   int64  `json:"bytes"`
}

// IndexStatus describes the committed state of an index directory.
type IndexStatus struct {
	Dir        string           `json:"dir"`
	Generation uint64           `json:"generation"`
	CommitID   string           `json:"commit_id"`
	Documents  int              `json:"documents"`
	Segments   []SegmentStatus  `json:"segments"`
	DiskUsage  map[string]int64 `json:"disk_usage"`
	TotalBytes int64            `json:"total_bytes"`
	Builds     []*BuildRecord   `json:"builds,omitempty"`
}

// BuildRecord is one entry of the build history.
type BuildRecord struct {
	ID         int64     `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	Mode       string    `json:"mode"`
	Root       string    `json:"root,omitempty"`
	Files      int       `json:"files"`
	Documents  int       `json:"documents"`
	Segments   int       `json:"segments"`
	Generation uint64    `json:"generation"`
	ElapsedMS  int64     `json:"elapsed_ms"`
	Error      string    `json:"error,omitempty"`
}

// Fields of a lab document.
const (
	FieldPath      = "PATH"       // stored
	FieldFirstLine = "FIRST_LINE" // indexed and stored
	FieldContent   = "CONTENT"    // indexed
)
