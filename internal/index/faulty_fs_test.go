package index

import (
	"errors"
	"os"
	"strings"
	"sync"
)

var errInjected = errors.New("injected fault")

// fault describes how writes to matching files fail.
type fault struct {
	failAfterBytes int64 // -1 disables
	failOnSync     bool
}

// faultyFS wraps LocalFS and fails writes to files whose name contains a
// registered pattern.
type faultyFS struct {
	LocalFS
	mu           sync.Mutex
	rules        map[string]fault
	failRenameTo string
}

func newFaultyFS() *faultyFS {
	return &faultyFS{rules: make(map[string]fault)}
}

func (f *faultyFS) addRule(pattern string, ft fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[pattern] = ft
}

func (f *faultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	file, err := f.LocalFS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for pattern, ft := range f.rules {
		if strings.Contains(name, pattern) {
			return &faultyFile{File: file, fault: ft}, nil
		}
	}
	return file, nil
}

func (f *faultyFS) Rename(oldpath, newpath string) error {
	if f.failRenameTo != "" && strings.HasSuffix(newpath, f.failRenameTo) {
		return errInjected
	}
	return f.LocalFS.Rename(oldpath, newpath)
}

type faultyFile struct {
	File
	fault   fault
	written int64
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	if ff.fault.failAfterBytes >= 0 && ff.written+int64(len(p)) > ff.fault.failAfterBytes {
		return 0, errInjected
	}
	n, err := ff.File.Write(p)
	ff.written += int64(n)
	return n, err
}

func (ff *faultyFile) Sync() error {
	if ff.fault.failOnSync {
		return errInjected
	}
	return ff.File.Sync()
}
