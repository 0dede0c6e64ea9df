// Package session opens connections to the remote filesystem described by a
// config.Connection.
package session

import (
	"fmt"
	"time"

	"github.com/pkg/sftp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"github.com/sidkik/sftpsync/pkg/config"
	"github.com/sidkik/sftpsync/pkg/errors"
	"github.com/sidkik/sftpsync/pkg/remote"
	"github.com/sidkik/sftpsync/pkg/remote/aferofs"
	"github.com/sidkik/sftpsync/pkg/remote/sftpfs"
	"github.com/sidkik/sftpsync/pkg/version"
)

const dialTimeout = 30 * time.Second

// Mocked out for unit testing.
var sshDial = ssh.Dial

// Session is an open remote filesystem. It must be closed when no longer
// needed.
type Session interface {
	remote.FS
	Close() error
}

// Open connects to the remote described by `conn`.
func Open(conn config.Connection) (Session, error) {
	switch conn.Scheme {
	case config.SchemeFile:
		return fileSession{aferofs.NewOs()}, nil
	case config.SchemeSFTP, "":
		return dialSFTP(conn)
	default:
		return nil, errors.NewFriendlyError("Unsupported scheme %q.", conn.Scheme)
	}
}

// Test checks that a session can be established, and closes it right away.
func Test(conn config.Connection) error {
	s, err := Open(conn)
	if err != nil {
		return err
	}
	return s.Close()
}

type fileSession struct {
	*aferofs.FS
}

func (fileSession) Close() error {
	return nil
}

type sftpSession struct {
	*sftpfs.FS
	sftp *sftp.Client
	ssh  *ssh.Client
}

func (s *sftpSession) Close() error {
	sftpErr := s.sftp.Close()
	sshErr := s.ssh.Close()
	if sftpErr != nil {
		return errors.WithContext(sftpErr, "close sftp")
	}
	if sshErr != nil {
		return errors.WithContext(sshErr, "close ssh")
	}
	log.Debug("Disconnected")
	return nil
}

func dialSFTP(conn config.Connection) (Session, error) {
	auth, err := authMethods(conn)
	if err != nil {
		return nil, err
	}

	checker, err := newHostKeyChecker(conn)
	if err != nil {
		return nil, errors.WithContext(err, "load known hosts")
	}

	clientConfig := &ssh.ClientConfig{
		User:            conn.Username,
		Auth:            auth,
		HostKeyCallback: checker.check,
		Timeout:         dialTimeout,
		ClientVersion:   version.UserAgent(),
	}

	log.WithField("address", conn.Address()).Info("Connecting")
	sshClient, err := sshDial("tcp", conn.Address(), clientConfig)
	if err != nil {
		// The ssh package flattens the callback's error into a string, so
		// recover the friendly version.
		if checker.rejected != nil {
			return nil, checker.rejected
		}
		return nil, errors.WithContext(err, fmt.Sprintf("connect to %s", conn.Address()))
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, errors.WithContext(err, "start sftp subsystem")
	}

	log.Info("Connected successfully")
	return &sftpSession{
		FS:   sftpfs.New(sftpClient),
		sftp: sftpClient,
		ssh:  sshClient,
	}, nil
}
