package extract

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hyperjump/kensaku/internal/apperr"
)

// FindFiles returns the regular files under root whose names end in suffix,
// sorted by path. An empty suffix matches every file. Without recursive only
// the files directly in root are returned. Hidden files and directories are
// skipped.
func FindFiles(root, suffix string, recursive bool) ([]string, error) {
	const op = "find files"
	st, err := os.Stat(root)
	if err != nil {
		return nil, apperr.IO(op, err)
	}
	if !st.IsDir() {
		return nil, apperr.Newf(apperr.ErrIO, op, "%s is not a directory", root)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			if !recursive || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || !strings.HasSuffix(d.Name(), suffix) {
			return nil
		}
		// Follow symlinks; only regular files are documents.
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, apperr.IO(op, err)
	}
	slices.Sort(files)
	return files, nil
}
