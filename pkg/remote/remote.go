// Package remote defines the handle the sync engine uses to operate on the
// remote side of a mirror. Implementations exist for SFTP servers and for any
// afero filesystem.
package remote

//go:generate mockery -name FS

import (
	"os"
	"path"
	"strings"

	"github.com/sidkik/sftpsync/pkg/errors"
)

// FS is an open remote filesystem. All paths use `/` as the separator.
//
// Stat and Remove on a missing path must return an error for which
// IsNotExist returns true. Mkdir on an existing path should return an error
// wrapping os.ErrExist, although callers tolerate implementations that
// can't tell the difference.
type FS interface {
	Stat(path string) (os.FileInfo, error)
	Mkdir(path string) error
	Put(localPath, remotePath string) error
	Chmod(path string, mode os.FileMode) error
	Rename(oldPath, newPath string) error
	Remove(path string) error
	ReadDir(path string) ([]os.FileInfo, error)
}

// IsNotExist returns whether `err` signals that a remote path doesn't exist.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

// IsExist returns whether `err` signals that a remote path already exists.
func IsExist(err error) bool {
	return errors.Is(err, os.ErrExist)
}

// Join joins a remote root and a slash-separated relative path. Backslashes
// are treated as separators so that relative paths produced on Windows map
// onto the same remote locations.
func Join(root, rel string) string {
	root = strings.ReplaceAll(root, `\`, "/")
	rel = strings.ReplaceAll(rel, `\`, "/")
	if root == "" {
		root = "."
	}
	return path.Join(root, rel)
}

// Dir returns the parent of a remote path.
func Dir(p string) string {
	return path.Dir(strings.ReplaceAll(p, `\`, "/"))
}
