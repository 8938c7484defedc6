package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/hyperjump/kensaku/internal/index"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// corpusTopic is one document of the end-to-end corpus. Phrase occurs in no
// other document, so a phrase query for it must find this one.
type corpusTopic struct {
	title  string
	phrase string
	body   string
}

var corpusTopics = []corpusTopic{
	{"Inverted Index Basics", "posting list traversal", "An inverted index maps terms to documents. Posting list traversal is the inner loop of every query."},
	{"Tokenizer Notes", "letter run splitting", "The analyzer lowercases input. Letter run splitting treats digits and punctuation as separators."},
	{"Segment Files", "immutable segment files", "Writers flush buffered documents. Immutable segment files are never modified after commit."},
	{"Commit Manifest", "atomic manifest rename", "A commit writes a new manifest. Atomic manifest rename makes the commit visible to readers."},
	{"Term Dictionary", "finite state transducer", "Terms are stored sorted. A finite state transducer maps each term to its postings offset."},
	{"Wildcard Queries", "wildcard pattern expansion", "Wildcards match many terms. Wildcard pattern expansion walks the dictionary with an automaton."},
	{"Fuzzy Matching", "edit distance budget", "Fuzzy terms tolerate typos. The edit distance budget grows with the term length."},
	{"Phrase Search", "adjacent term positions", "Phrases need positions. Adjacent term positions are checked within the allowed slop."},
	{"Boolean Logic", "required and prohibited clauses", "Boolean queries combine clauses. Required and prohibited clauses filter the candidate documents."},
	{"Scoring Model", "inverse document frequency", "Rare terms weigh more. Inverse document frequency is squared in the query weight."},
	{"Length Normalization", "shorter fields score higher", "Field length matters. Shorter fields score higher for the same term frequency."},
	{"Coordination Factor", "fraction of matching clauses", "Coordination rewards overlap. The fraction of matching clauses scales the boolean score."},
	{"Top K Collection", "bounded priority queue", "Only the best hits are kept. A bounded priority queue holds the current top results."},
	{"Stored Fields", "compressed stored blocks", "Stored values come back verbatim. Compressed stored blocks trade a little CPU for disk."},
	{"Field Norms", "per document field length", "Norm files hold lengths. Per document field length feeds the length normalization."},
	{"Checksums", "footer checksum verification", "Corruption must be detected. Footer checksum verification rejects damaged segment files."},
	{"Writer Lock", "exclusive writer lock", "Only one writer may run. The exclusive writer lock is held from open until close."},
	{"Snapshot Readers", "reference counted snapshots", "Readers see one commit. Reference counted snapshots are released after the last search."},
	{"Spelling Suggestions", "did you mean", "Zero hit queries get help. The did you mean line proposes the closest dictionary terms."},
	{"Directory Watching", "debounced rebuild", "Changes trigger indexing. A debounced rebuild waits for the corpus to settle."},
	{"Office Documents", "zipped xml parts", "Office files are archives. Zipped xml parts hold the paragraphs and runs of text."},
	{"Spreadsheets", "tab separated rows", "Sheets become text. Tab separated rows keep the cells of a row together."},
	{"Build History", "journal of builds", "Every build is recorded. The journal of builds shows when the index last changed."},
	{"HTTP Interface", "json search endpoint", "The server answers queries. The json search endpoint returns ranked hits with scores."},
}

func TestEndToEnd_MultiFormatCorpus(t *testing.T) {
	docDir := t.TempDir()
	want := make(map[string]string, len(corpusTopics))
	for i, topic := range corpusTopics {
		ext := fixtureExtensions[i%len(fixtureExtensions)]
		path := filepath.Join(docDir, fmt.Sprintf("doc-%03d%s", i+1, ext))
		require.NoError(t, os.WriteFile(path, minimalFile(t, ext, topic.title, topic.body), 0644))
		want[topic.phrase] = path
	}

	indexDir := t.TempDir()
	ctx := context.Background()
	b := NewBuilder(indexDir, WithMaxBufferedDocs(5))
	res, err := b.IndexDirectory(ctx, docDir, "", true, index.Create)
	require.NoError(t, err)
	assert.Equal(t, len(corpusTopics), res.Files)
	assert.Equal(t, len(corpusTopics), res.Documents)
	assert.Equal(t, 5, res.Segments)

	e := search.NewEngine(indexDir)
	defer e.Close()

	for _, topic := range corpusTopics {
		t.Run(topic.phrase, func(t *testing.T) {
			resp, err := e.Search(ctx, &models.SearchQuery{Query: `"` + topic.phrase + `"`, Limit: 10})
			require.NoError(t, err)
			require.Equal(t, 1, resp.Total, "phrase %q", topic.phrase)
			assert.Equal(t, want[topic.phrase], resp.Results[0].Path)
		})
	}

	// Term queries rank the document whose short first line holds the term.
	resp, err := e.Search(ctx, &models.SearchQuery{Query: "FIRST_LINE:checksums", Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "Checksums", resp.Results[0].FirstLine)

	var paths []string
	resp, err = e.Search(ctx, &models.SearchQuery{Query: "segment*", Limit: 50})
	require.NoError(t, err)
	for _, r := range resp.Results {
		paths = append(paths, filepath.Base(r.Path))
	}
	assert.Subset(t, paths, []string{"doc-003.docx", "doc-016.ods"})
	assert.True(t, slices.IsSorted(negScores(resp)), "hits ordered by descending score")
}

func negScores(resp *models.SearchResponse) []float64 {
	out := make([]float64, len(resp.Results))
	for i, r := range resp.Results {
		out[i] = -r.Score
	}
	return out
}
