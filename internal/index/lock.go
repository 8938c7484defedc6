package index

import (
	"path/filepath"

	"github.com/hyperjump/kensaku/internal/apperr"
)

// dirLock is the single-writer lock on an index directory.
type dirLock struct {
	path    string
	release func() error
}

func acquireLock(dir string) (*dirLock, error) {
	path := filepath.Join(dir, lockName)
	release, held, err := lockFile(path)
	if held {
		return nil, apperr.Newf(apperr.ErrLockHeld, "open writer", "%s is held by another writer", path)
	}
	if err != nil {
		return nil, apperr.IO("acquire "+lockName, err)
	}
	return &dirLock{path: path, release: release}, nil
}

func (l *dirLock) Release() error {
	if l == nil || l.release == nil {
		return nil
	}
	err := l.release()
	l.release = nil
	return err
}
