//go:build !unix

package index

import (
	"errors"
	"io/fs"
	"os"
)

// lockFile creates path exclusively. A stale lock from a crashed writer must
// be removed by hand.
func lockFile(path string) (release func() error, held bool, err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return func() error {
		return errors.Join(f.Close(), os.Remove(path))
	}, false, nil
}
