package index

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blevesearch/vellum/regexp"
	"github.com/hyperjump/kensaku/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenReader_NoIndex(t *testing.T) {
	_, err := OpenReader(t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrNoIndex)
	assert.Equal(t, "IO", apperr.Kind(err))
}

func TestOpenReader_RefusesNewerManifest(t *testing.T) {
	dir := t.TempDir()
	buildIndex(t, dir, Create, labCorpus())

	path := filepath.Join(dir, manifestName)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	m["version"] = FormatVersion + 1
	data, err = json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = OpenReader(dir)
	require.Error(t, err)
	assert.Equal(t, "Corruption", apperr.Kind(err))
}

func TestOpenReader_DetectsCorruption(t *testing.T) {
	for _, ext := range segmentExts {
		t.Run(ext, func(t *testing.T) {
			dir := t.TempDir()
			buildIndex(t, dir, Create, labCorpus())

			path := filepath.Join(dir, "seg-1"+ext)
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			data[len(data)/2] ^= 0xff
			require.NoError(t, os.WriteFile(path, data, 0o644))

			_, err = OpenReader(dir)
			require.Error(t, err)
			assert.Equal(t, "Corruption", apperr.Kind(err))
		})
	}
}

func TestOpenReader_MissingSegmentFile(t *testing.T) {
	dir := t.TempDir()
	buildIndex(t, dir, Create, labCorpus())
	require.NoError(t, os.Remove(filepath.Join(dir, "seg-1.stor")))

	_, err := OpenReader(dir)
	require.Error(t, err)
	assert.Equal(t, "IO", apperr.Kind(err))
}

func TestOpenReader_TruncatedSegmentFile(t *testing.T) {
	for _, ext := range segmentExts {
		t.Run(ext, func(t *testing.T) {
			dir := t.TempDir()
			buildIndex(t, dir, Create, labCorpus())
			require.NoError(t, os.WriteFile(filepath.Join(dir, "seg-1"+ext), nil, 0o644))

			for range 2 {
				_, err := OpenReader(dir)
				require.Error(t, err)
				assert.Equal(t, "Corruption", apperr.Kind(err))
			}
		})
	}
}

func TestSegmentReader_CloseNil(t *testing.T) {
	var s *SegmentReader
	assert.NoError(t, s.Close())
}

func TestSnapshot_SurvivesNewCommit(t *testing.T) {
	dir := t.TempDir()
	buildIndex(t, dir, Create, labCorpus())
	old := openSnapshot(t, dir)

	buildIndex(t, dir, Create, labCorpus()[:1])
	fresh := openSnapshot(t, dir)

	assert.Equal(t, 3, old.NumDocs())
	assert.Equal(t, 1, fresh.NumDocs())
	doc, err := old.Document(2)
	require.NoError(t, err)
	path, _ := doc.Get("PATH")
	assert.Equal(t, "c.txt", path, "mapped files outlive their directory entries")
}

func TestSnapshot_RefCount(t *testing.T) {
	dir := t.TempDir()
	buildIndex(t, dir, Create, labCorpus())
	snap, err := OpenReader(dir)
	require.NoError(t, err)

	require.True(t, snap.IncRef())
	require.NoError(t, snap.DecRef())
	assert.Equal(t, 3, snap.NumDocs())
	require.NoError(t, snap.Close())
	assert.False(t, snap.IncRef(), "released snapshot cannot be revived")
}

func TestSnapshot_DocumentOutOfRange(t *testing.T) {
	dir := t.TempDir()
	buildIndex(t, dir, Create, labCorpus())
	snap := openSnapshot(t, dir)
	_, err := snap.Document(3)
	assert.Error(t, err)
	_, err = snap.Document(-1)
	assert.Error(t, err)
}

func TestSegmentReader_SearchTerms(t *testing.T) {
	dir := t.TempDir()
	buildIndex(t, dir, Create, labCorpus())
	seg := openSnapshot(t, dir).Leaves()[0].Segment

	var all []string
	require.NoError(t, seg.VisitTerms("CONTENT", func(term []byte, _ TermInfo) bool {
		all = append(all, string(term))
		return true
	}))
	assert.Equal(t, []string{"about", "and", "appeared", "barack", "clinton", "hillary", "obama", "policy", "spoke", "together"}, all)

	re, err := regexp.New("ob.*a")
	require.NoError(t, err)
	var matched []string
	require.NoError(t, seg.SearchTerms("CONTENT", re, []byte("ob"), []byte("oc"), func(term []byte, ti TermInfo) bool {
		matched = append(matched, string(term))
		assert.Equal(t, 2, ti.DocFreq)
		return true
	}))
	assert.Equal(t, []string{"obama"}, matched)

	require.NoError(t, seg.VisitTerms("MISSING", func([]byte, TermInfo) bool {
		t.Fatal("unknown field has no terms")
		return false
	}))
}

func TestSnapshot_FieldTerms(t *testing.T) {
	dir := t.TempDir()
	corpus := labCorpus()
	buildIndex(t, dir, Create, corpus[:1])
	buildIndex(t, dir, CreateOrAppend, corpus[1:])
	snap := openSnapshot(t, dir)

	terms, err := snap.FieldTerms("FIRST_LINE")
	require.NoError(t, err)
	assert.Equal(t, []string{"and", "barack", "clinton", "hillary", "obama", "speech"}, terms)
}

func TestDump(t *testing.T) {
	dir := t.TempDir()
	buildIndex(t, dir, Create, labCorpus())
	snap := openSnapshot(t, dir)

	var buf bytes.Buffer
	require.NoError(t, Dump(&buf, snap, DumpOptions{Postings: true, Stored: true}))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "index "+dir+" generation 1: 3 docs in 1 segments\n"))
	assert.Contains(t, out, "segment seg-1 docs=3 base=0\n")
	assert.Contains(t, out, "  field CONTENT (indexed) terms=10 docs=3\n")
	assert.Contains(t, out, "    obama df=2 ttf=2\n")
	assert.Contains(t, out, "      doc=2 tf=1 pos=[0]\n")
	assert.Contains(t, out, `  doc 0 PATH="a.txt" FIRST_LINE="Barack Obama speech"`)

	buf.Reset()
	require.NoError(t, Dump(&buf, snap, DumpOptions{Field: "FIRST_LINE"}))
	assert.NotContains(t, buf.String(), "field CONTENT")
	assert.NotContains(t, buf.String(), "doc=")
}
