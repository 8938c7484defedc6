package index

import (
	"bufio"
	"fmt"
	"io"
)

// DumpOptions selects the sections written by Dump.
type DumpOptions struct {
	Postings bool // list every posting under its term
	Stored   bool // list the stored fields of every doc
	Field    string
}

// Dump writes a human-readable listing of the term dictionary and, optionally,
// postings and stored fields. Doc ids are global.
func Dump(w io.Writer, s *Snapshot, opts DumpOptions) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "index %s generation %d: %d docs in %d segments\n",
		s.Dir(), s.Generation(), s.NumDocs(), len(s.Leaves()))

	var positions []int32
	for _, l := range s.Leaves() {
		seg := l.Segment
		fmt.Fprintf(bw, "segment %s docs=%d base=%d\n", seg.Name(), seg.NumDocs(), l.DocBase)
		for _, f := range seg.Fields() {
			if opts.Field != "" && f.Name != opts.Field {
				continue
			}
			fmt.Fprintf(bw, "  field %s (%s) terms=%d docs=%d\n",
				f.Name, f.Type, seg.NumTerms(f.Name), seg.DocsWithField(f.Name).GetCardinality())
			var iterErr error
			err := seg.VisitTerms(f.Name, func(term []byte, ti TermInfo) bool {
				fmt.Fprintf(bw, "    %s df=%d ttf=%d\n", term, ti.DocFreq, ti.TotalTermFreq)
				if !opts.Postings {
					return true
				}
				it := seg.Postings(ti)
				for doc := it.Next(); doc != NoMoreDocs; doc = it.Next() {
					positions = it.Positions(positions[:0])
					fmt.Fprintf(bw, "      doc=%d tf=%d pos=%v\n", l.DocBase+int(doc), it.Freq(), positions)
				}
				if iterErr = it.Err(); iterErr != nil {
					return false
				}
				return true
			})
			if err == nil {
				err = iterErr
			}
			if err != nil {
				return fmt.Errorf("dump %s: %w", seg.Name(), err)
			}
		}
		if !opts.Stored {
			continue
		}
		for doc := 0; doc < seg.NumDocs(); doc++ {
			d, err := seg.Document(doc)
			if err != nil {
				return fmt.Errorf("dump %s: %w", seg.Name(), err)
			}
			fmt.Fprintf(bw, "  doc %d", l.DocBase+doc)
			for _, f := range d.Fields {
				fmt.Fprintf(bw, " %s=%q", f.Name, f.Value)
			}
			bw.WriteString("\n")
		}
	}
	return bw.Flush()
}
