// Package sftpfs implements remote.FS over an SFTP connection.
package sftpfs

import (
	"os"

	"github.com/pkg/sftp"
	"github.com/spf13/afero"

	"github.com/sidkik/sftpsync/pkg/errors"
)

var localFS = afero.NewOsFs()

// FS is a remote.FS that forwards every operation to an SFTP server.
type FS struct {
	client *sftp.Client
}

// New wraps an established SFTP client. The caller remains responsible for
// closing it.
func New(client *sftp.Client) *FS {
	return &FS{client: client}
}

func (s *FS) Stat(p string) (os.FileInfo, error) {
	return s.client.Stat(p)
}

func (s *FS) Mkdir(p string) error {
	return s.client.Mkdir(p)
}

// Put streams the local file to the server, truncating any existing remote
// file.
func (s *FS) Put(localPath, remotePath string) error {
	src, err := localFS.Open(localPath)
	if err != nil {
		return errors.WithContext(err, "open source")
	}
	defer src.Close()

	dst, err := s.client.OpenFile(remotePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return errors.WithContext(err, "open destination")
	}

	if _, err := dst.ReadFrom(src); err != nil {
		dst.Close()
		return errors.WithContext(err, "write")
	}
	return errors.WithContext(dst.Close(), "close destination")
}

func (s *FS) Chmod(p string, mode os.FileMode) error {
	return s.client.Chmod(p, mode)
}

func (s *FS) Rename(oldPath, newPath string) error {
	return s.client.Rename(oldPath, newPath)
}

func (s *FS) Remove(p string) error {
	return s.client.Remove(p)
}

func (s *FS) ReadDir(p string) ([]os.FileInfo, error) {
	return s.client.ReadDir(p)
}
