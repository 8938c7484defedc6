package index

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/hyperjump/kensaku/internal/apperr"
)

// writeSegment flushes buf as segment name under dir. On failure every file
// of the segment is removed.
func writeSegment(fsys FileSystem, dir, name string, buf *segmentBuffer) (err error) {
	var (
		created []string
		files   []File
	)
	defer func() {
		if err == nil {
			return
		}
		for _, f := range files {
			_ = f.Close()
		}
		for _, p := range created {
			if rmErr := fsys.Remove(p); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				err = errors.Join(err, rmErr)
			}
		}
		err = apperr.IO("flush segment "+name, err)
	}()

	open := func(ext string, magic uint32) (*fileWriter, error) {
		p := filepath.Join(dir, name+ext)
		f, err := createFile(fsys, p)
		if err != nil {
			return nil, err
		}
		created = append(created, p)
		files = append(files, f)
		return newFileWriter(f, magic)
	}

	schema := buf.sortedFields()
	fieldNum := make([]int, len(buf.schema))
	for i, f := range schema {
		fieldNum[buf.byName[f.Name]] = i
	}

	nw, err := open(extNorms, magicNorms)
	if err != nil {
		return err
	}
	if err := writeNorms(nw, buf.numDocs, schema, buf.fields); err != nil {
		return fmt.Errorf("write norms: %w", err)
	}

	sw, err := open(extStored, magicStored)
	if err != nil {
		return err
	}
	stored := &storedWriter{w: sw}
	for _, values := range buf.stored {
		if err := stored.add(values, fieldNum); err != nil {
			return fmt.Errorf("write stored fields: %w", err)
		}
	}
	if err := stored.finish(); err != nil {
		return fmt.Errorf("write stored fields: %w", err)
	}

	pw, err := open(extPostings, magicPostings)
	if err != nil {
		return err
	}
	dw, err := open(extTermDict, magicTermDict)
	if err != nil {
		return err
	}
	dict := &dictWriter{w: dw}
	var enc postingsEncoder
	for _, f := range schema {
		fb := buf.fields[f.Name]
		if !f.Type.Indexed || fb == nil || len(fb.terms) == 0 {
			continue
		}
		if err := dict.startField(f.Name); err != nil {
			return err
		}
		for _, term := range fb.sortedTerms() {
			list := fb.terms[term]
			var ttf int64
			for _, p := range list {
				ttf += int64(len(p.positions))
			}
			off := uint64(pw.n)
			if _, err := pw.Write(enc.encode(list)); err != nil {
				return fmt.Errorf("write postings: %w", err)
			}
			if err := dict.add(term, len(list), ttf, off); err != nil {
				return err
			}
		}
		if err := dict.finishField(); err != nil {
			return fmt.Errorf("write term dictionary: %w", err)
		}
	}
	if err := pw.finish(); err != nil {
		return fmt.Errorf("write postings: %w", err)
	}
	if err := dict.finish(); err != nil {
		return fmt.Errorf("write term dictionary: %w", err)
	}
	return nil
}
