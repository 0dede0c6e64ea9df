// Package aferofs implements remote.FS on top of an afero filesystem. It's
// used for targets that are reachable as a mounted path, and in tests.
package aferofs

import (
	"io"
	"os"
	"path"

	"github.com/spf13/afero"

	"github.com/sidkik/sftpsync/pkg/errors"
)

// FS is a remote.FS backed by an afero.Fs.
type FS struct {
	fs afero.Fs

	// local is where Put reads source files from.
	local afero.Fs
}

// New returns an FS that operates on `fs`, and uploads files from the host's
// filesystem.
func New(fs afero.Fs) *FS {
	return NewWithSource(afero.NewOsFs(), fs)
}

// NewWithSource is like New, but reads uploaded files from `local`.
func NewWithSource(local, fs afero.Fs) *FS {
	return &FS{fs: fs, local: local}
}

// NewOs returns an FS that operates directly on the host's filesystem.
func NewOs() *FS {
	return New(afero.NewOsFs())
}

// Stat returns information about `p`.
func (a *FS) Stat(p string) (os.FileInfo, error) {
	return a.fs.Stat(p)
}

// Mkdir creates a single directory. Unlike afero.MemMapFs, it refuses to
// create missing parents.
func (a *FS) Mkdir(p string) error {
	if _, err := a.fs.Stat(path.Dir(p)); err != nil {
		return errors.WithContext(err, "stat parent")
	}
	return a.fs.Mkdir(p, 0755)
}

// Put copies the local file at `localPath` to `remotePath`, replacing any
// existing file. Like an SFTP server, it doesn't create missing parent
// directories.
func (a *FS) Put(localPath, remotePath string) error {
	parent := path.Dir(remotePath)
	parentInfo, err := a.fs.Stat(parent)
	if err != nil {
		return errors.WithContext(err, "stat parent")
	}
	if !parentInfo.IsDir() {
		return errors.NewFriendlyError("%q is not a directory", parent)
	}

	src, err := a.local.Open(localPath)
	if err != nil {
		return errors.WithContext(err, "open source")
	}
	defer src.Close()

	dst, err := a.fs.Create(remotePath)
	if err != nil {
		return errors.WithContext(err, "open destination")
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return errors.WithContext(err, "copy")
	}
	return errors.WithContext(dst.Close(), "close destination")
}

// Chmod sets the permission bits of `p`.
func (a *FS) Chmod(p string, mode os.FileMode) error {
	return a.fs.Chmod(p, mode)
}

// Rename moves `oldPath` to `newPath`.
func (a *FS) Rename(oldPath, newPath string) error {
	return a.fs.Rename(oldPath, newPath)
}

// Remove deletes the file at `p`.
func (a *FS) Remove(p string) error {
	return a.fs.Remove(p)
}

// ReadDir lists the entries of the directory at `p`.
func (a *FS) ReadDir(p string) ([]os.FileInfo, error) {
	return afero.ReadDir(a.fs, p)
}
