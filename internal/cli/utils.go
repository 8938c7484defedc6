// Package cli formats command output and runs the lab's scripted demo.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/search"
	"github.com/hyperjump/kensaku/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat accepts "text" or "json", case-insensitively.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case OutputText, OutputJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or json)", s)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes a search response to w in the given format.
// The text form is the "rank. (score) PATH" listing, followed by the
// highlighted first line of each hit when present and any suggestions.
func WriteSearchResults(w io.Writer, resp *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	if !slices.ContainsFunc(resp.Results, func(r *models.SearchResult) bool { return r.Highlight != "" }) {
		if err := search.WriteHits(w, resp.Query, resp.Results); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(w, "Found %d hits for query %s:\n", len(resp.Results), resp.Query)
		for _, r := range resp.Results {
			fmt.Fprintf(w, "%d. (%s) %s\n", r.Rank, search.FormatScore(r.Score), r.Path)
			if r.Highlight != "" {
				fmt.Fprintf(w, "   %s\n", utils.Truncate(r.Highlight, 120))
			}
		}
	}
	if resp.Total > len(resp.Results) && len(resp.Results) > 0 {
		fmt.Fprintf(w, "(%d of %d matching documents shown)\n", len(resp.Results), resp.Total)
	}
	for _, s := range resp.Suggestions {
		fmt.Fprintf(w, "Did you mean: %s\n", s)
	}
	return nil
}

// WriteIndexResult reports a finished build.
func WriteIndexResult(w io.Writer, res *models.IndexResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	_, err := fmt.Fprintf(w, "Indexed %d files: %d documents in %d segments, generation %d (%dms)\n",
		res.Files, res.Documents, res.Segments, res.Generation, res.ElapsedMS)
	return err
}

// WriteStatus reports the committed state of an index.
func WriteStatus(w io.Writer, st *models.IndexStatus, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "Index:      %s\n", st.Dir)
	fmt.Fprintf(w, "Generation: %d (%s)\n", st.Generation, st.CommitID)
	fmt.Fprintf(w, "Documents:  %d\n", st.Documents)
	fmt.Fprintf(w, "Segments:   %d\n", len(st.Segments))
	for _, s := range st.Segments {
		fmt.Fprintf(w, "  %-10s docs=%-6d base=%-6d %s\n", s.Name, s.Docs, s.DocBase, utils.FormatBytes(s.Bytes))
	}
	fmt.Fprintf(w, "Disk usage: %s\n", utils.FormatBytes(st.TotalBytes))
	for _, k := range slices.Sorted(maps.Keys(st.DiskUsage)) {
		fmt.Fprintf(w, "  %-10s %s\n", k, utils.FormatBytes(st.DiskUsage[k]))
	}
	if len(st.Builds) > 0 {
		fmt.Fprintln(w, "Recent builds:")
		for _, b := range st.Builds {
			outcome := fmt.Sprintf("generation %d, %d docs", b.Generation, b.Documents)
			if b.Error != "" {
				outcome = "failed: " + utils.Truncate(b.Error, 80)
			}
			fmt.Fprintf(w, "  %s %-16s %d files  %s\n", b.StartedAt.Format("2006-01-02 15:04:05"), b.Mode, b.Files, outcome)
		}
	}
	return nil
}

// DemoQueries is the scripted query list of the lab.
var DemoQueries = []string{
	`Obama`,
	`Obama Hillary`,
	`Ob*ma`,
	`Obama~.4`,
	`FIRST_LINE:Obama AND Hillary`,
	`FIRST_LINE:Obama AND NOT Hillary`,
	`"Barack Obama"`,
	`"Barack Obama"~5`,
	`Obama^10 Hillary^0.1`,
	`(FIRST_LINE:"Barack Obama")^10 OR Hillary^0.1`,
	`Obama^0.1 Hillary^10`,
	`(FIRST_LINE:"Barack Obama")^0.1 OR Hillary^10`,
	`(FIRST_LINE:"Barack Obama"~5^10 AND Obama~.4) OR Hillary`,
}

// RunDemo runs each query through e, writing the top k hits of each to w
// separated by blank lines.
func RunDemo(ctx context.Context, e *search.Engine, queries []string, k int, w io.Writer) error {
	for i, q := range queries {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if err := e.SearchTo(ctx, q, k, w); err != nil {
			return fmt.Errorf("query %q: %w", q, err)
		}
	}
	return nil
}
