package storage

import (
	"os"
	"path/filepath"
	"strings"
)

// DiskUsageBytes returns the total size in bytes of the given paths.
// Each path may be a file or a directory (recursively summed).
// Missing paths contribute 0.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		if !info.IsDir() {
			total += info.Size()
			continue
		}
		err = filepath.WalkDir(p, func(_ string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			total += fi.Size()
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}

// FileKind classifies a file of an index directory: the segment file
// extension without its dot, "manifest", "lock", "history" or "other".
func FileKind(name string) string {
	switch {
	case name == "manifest" || name == "manifest.new":
		return "manifest"
	case name == "write.lock":
		return "lock"
	case strings.HasPrefix(name, HistoryFile):
		return "history"
	case strings.HasPrefix(name, "seg-"):
		if ext := filepath.Ext(name); ext != "" {
			return ext[1:]
		}
	}
	return "other"
}

// UsageByKind sums the sizes of the files directly in dir by FileKind.
func UsageByKind(dir string) (map[string]int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	usage := make(map[string]int64)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		usage[FileKind(e.Name())] += info.Size()
	}
	return usage, nil
}
