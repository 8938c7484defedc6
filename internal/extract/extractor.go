// Package extract finds the files of a corpus and turns each one into an
// index document.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kensaku/internal/apperr"
	"github.com/hyperjump/kensaku/internal/index"
	"github.com/hyperjump/kensaku/internal/models"
)

// textFunc returns the plain text of one file format.
type textFunc func(content []byte) (string, error)

// formats maps a lowercased extension to its text extractor. Anything else
// is read as plain text.
var formats = map[string]textFunc{
	".pdf":  pdfText,
	".xlsx": excelText,
	".docx": docxText,
	".pptx": pptxText,
	".odt":  odfText,
	".odp":  odfText,
	".ods":  odfText,
}

// Extractor reads files and presents them as lab documents.
type Extractor struct {
	maxSize int64
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxFileSize makes Extract fail with an IO error for files larger than
// n bytes. Zero means no limit.
func WithMaxFileSize(n int64) Option { return func(e *Extractor) { e.maxSize = n } }

// NewExtractor returns a new Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Supported reports whether ext has a dedicated extractor.
func Supported(ext string) bool {
	_, ok := formats[strings.ToLower(ext)]
	return ok
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (string, error) {
	const op = "extract"
	if e.maxSize > 0 {
		st, err := os.Stat(path)
		if err != nil {
			return "", apperr.IO(op, err)
		}
		if st.Size() > e.maxSize {
			return "", apperr.Newf(apperr.ErrIO, op, "%s: %d bytes exceeds limit of %d", path, st.Size(), e.maxSize)
		}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", apperr.IO(op, err)
	}
	text, err := e.ExtractBytes(content, filepath.Ext(path))
	if err != nil {
		return "", apperr.Wrap(apperr.ErrIO, op, fmt.Errorf("%s: %w", path, err))
	}
	return text, nil
}

// ExtractBytes extracts text from content in the format named by ext, which
// includes the leading dot.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	if fn, ok := formats[strings.ToLower(ext)]; ok {
		return fn(content)
	}
	return plainText(content), nil
}

// Document reads path and returns it with the lab fields: PATH stored,
// FIRST_LINE indexed and stored, CONTENT indexed.
func (e *Extractor) Document(path string) (index.Document, error) {
	text, err := e.Extract(path)
	if err != nil {
		return index.Document{}, err
	}
	return NewDocument(path, text), nil
}

// NewDocument builds the lab document for text read from path.
func NewDocument(path, text string) index.Document {
	var doc index.Document
	doc.Add(models.FieldPath, path, index.TypeStored)
	doc.Add(models.FieldFirstLine, FirstLine(text), index.TypeIndexedStored)
	doc.Add(models.FieldContent, text, index.TypeIndexed)
	return doc
}

// FirstLine returns the first non-blank line of text, trimmed.
func FirstLine(text string) string {
	for line := range strings.Lines(text) {
		if s := strings.TrimSpace(line); s != "" {
			return s
		}
	}
	return ""
}
