package session

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/pkg/sftp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/sidkik/sftpsync/pkg/config"
	"github.com/sidkik/sftpsync/pkg/errors"
	"github.com/sidkik/sftpsync/pkg/remote"
)

const (
	testUser     = "deploy"
	testPassword = "hunter2"
)

type testServer struct {
	addr    string
	hostKey ssh.Signer
}

// startServer runs an SSH server on localhost that serves the SFTP subsystem
// over the host filesystem.
func startServer(t *testing.T, authorizedKey ssh.PublicKey) testServer {
	hostKey := newSigner(t)

	serverConfig := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if c.User() == testUser && string(password) == testPassword {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
		PublicKeyCallback: func(c ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if authorizedKey != nil && string(key.Marshal()) == string(authorizedKey.Marshal()) {
				return nil, nil
			}
			return nil, fmt.Errorf("unknown public key for %q", c.User())
		},
	}
	serverConfig.AddHostKey(hostKey)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go serveConn(conn, serverConfig)
		}
	}()
	return testServer{addr: listener.Addr().String(), hostKey: hostKey}
}

func serveConn(conn net.Conn, serverConfig *ssh.ServerConfig) {
	_, channels, requests, err := ssh.NewServerConn(conn, serverConfig)
	if err != nil {
		conn.Close()
		return
	}
	go ssh.DiscardRequests(requests)

	for newChannel := range channels {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}

		channel, channelRequests, err := newChannel.Accept()
		if err != nil {
			return
		}

		go func(in <-chan *ssh.Request) {
			for req := range in {
				isSFTP := req.Type == "subsystem" && len(req.Payload) > 4 &&
					string(req.Payload[4:]) == "sftp"
				req.Reply(isSFTP, nil)
			}
		}(channelRequests)

		server, err := sftp.NewServer(channel)
		if err != nil {
			channel.Close()
			continue
		}
		go func() {
			server.Serve()
			server.Close()
		}()
	}
}

func newSigner(t *testing.T) ssh.Signer {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(key)
	require.NoError(t, err)
	return signer
}

func (s testServer) connection(t *testing.T) config.Connection {
	host, portStr, err := net.SplitHostPort(s.addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return config.Connection{
		Scheme:         config.SchemeSFTP,
		Host:           host,
		Port:           port,
		Username:       testUser,
		Password:       testPassword,
		KnownHostsFile: filepath.Join(t.TempDir(), "known_hosts"),
	}
}

func trust(t *testing.T, conn config.Connection, key ssh.PublicKey) {
	line := knownhosts.Line([]string{knownhosts.Normalize(conn.Address())}, key)
	require.NoError(t, os.WriteFile(conn.KnownHostsFile, []byte(line+"\n"), 0600))
}

func setup(t *testing.T) {
	fs = afero.NewOsFs()
	systemKnownHosts = filepath.Join(t.TempDir(), "ssh_known_hosts")
}

func TestOpenWithPassword(t *testing.T) {
	setup(t)
	server := startServer(t, nil)
	conn := server.connection(t)
	trust(t, conn, server.hostKey.PublicKey())

	s, err := Open(conn)
	require.NoError(t, err)
	defer s.Close()

	// Exercise the session end to end.
	dir := t.TempDir()
	src := filepath.Join(t.TempDir(), "src.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0644))
	require.NoError(t, s.Put(src, remote.Join(dir, "dst.txt")))

	fi, err := s.Stat(remote.Join(dir, "dst.txt"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), fi.Size())

	_, err = s.Stat(remote.Join(dir, "missing"))
	assert.True(t, remote.IsNotExist(err))
}

func TestOpenWithPrivateKey(t *testing.T) {
	setup(t)
	_, clientKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	clientSigner, err := ssh.NewSignerFromKey(clientKey)
	require.NoError(t, err)

	server := startServer(t, clientSigner.PublicKey())
	conn := server.connection(t)
	conn.Password = ""
	trust(t, conn, server.hostKey.PublicKey())

	keyDir := t.TempDir()
	plainBlock, err := ssh.MarshalPrivateKey(clientKey, "")
	require.NoError(t, err)
	plainPath := filepath.Join(keyDir, "id_ed25519")
	require.NoError(t, os.WriteFile(plainPath, pem.EncodeToMemory(plainBlock), 0600))

	encryptedBlock, err := ssh.MarshalPrivateKeyWithPassphrase(clientKey, "", []byte("swordfish"))
	require.NoError(t, err)
	encryptedPath := filepath.Join(keyDir, "id_ed25519_encrypted")
	require.NoError(t, os.WriteFile(encryptedPath, pem.EncodeToMemory(encryptedBlock), 0600))

	conn.PrivateKey = plainPath
	assert.NoError(t, Test(conn))

	conn.PrivateKey = encryptedPath
	err = Test(conn)
	assert.Equal(t, errors.NewFriendlyError("The private key %q is encrypted. "+
		"Set private_key_password to decrypt it.", encryptedPath), err)

	conn.PrivateKeyPassword = "swordfish"
	assert.NoError(t, Test(conn))
}

func TestWrongPassword(t *testing.T) {
	setup(t)
	server := startServer(t, nil)
	conn := server.connection(t)
	conn.Password = "wrong"
	trust(t, conn, server.hostKey.PublicKey())

	err := Test(conn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to "+conn.Address())
}

func TestHostKeyVerification(t *testing.T) {
	setup(t)
	server := startServer(t, nil)

	t.Run("Unknown host is rejected", func(t *testing.T) {
		conn := server.connection(t)
		err := Test(conn)
		require.Error(t, err)
		assert.Contains(t, errors.GetPrintableMessage(err), "is not in any known_hosts file")
	})

	t.Run("Unknown host is added", func(t *testing.T) {
		conn := server.connection(t)
		conn.AutoAddHostKey = true
		require.NoError(t, Test(conn))

		contents, err := os.ReadFile(conn.KnownHostsFile)
		require.NoError(t, err)
		assert.Contains(t, string(contents), knownhosts.Normalize(conn.Address()))

		// The recorded key is trusted from now on.
		conn.AutoAddHostKey = false
		assert.NoError(t, Test(conn))
	})

	t.Run("Changed key is always rejected", func(t *testing.T) {
		conn := server.connection(t)
		conn.AutoAddHostKey = true
		trust(t, conn, newSigner(t).PublicKey())

		err := Test(conn)
		require.Error(t, err)
		assert.Contains(t, errors.GetPrintableMessage(err), "has changed")
	})

	t.Run("System known hosts are used", func(t *testing.T) {
		conn := server.connection(t)
		line := knownhosts.Line([]string{knownhosts.Normalize(conn.Address())}, server.hostKey.PublicKey())
		require.NoError(t, os.WriteFile(systemKnownHosts, []byte(line+"\n"), 0644))
		defer os.Remove(systemKnownHosts)

		assert.NoError(t, Test(conn))
	})
}

func TestKeyring(t *testing.T) {
	setup(t)
	keyring.MockInit()

	server := startServer(t, nil)
	conn := server.connection(t)
	trust(t, conn, server.hostKey.PublicKey())
	conn.Password = ""
	conn.UseKeyring = true

	err := Test(conn)
	assert.Equal(t, errors.NewFriendlyError("No password is stored for %s. "+
		"Run `sftpsync login` to store one.", keyringUser(conn)), err)

	require.NoError(t, StorePassword(conn, testPassword))
	assert.NoError(t, Test(conn))

	require.NoError(t, DeletePassword(conn))
	assert.Error(t, DeletePassword(conn))
}

func TestNoCredentials(t *testing.T) {
	_, err := authMethods(config.Connection{Username: "deploy", Host: "example.com"})
	assert.Equal(t, errors.NewFriendlyError("No credentials configured for %s@%s. "+
		"Set a password or private key.", "deploy", "example.com"), err)
}

func TestOpenFileScheme(t *testing.T) {
	s, err := Open(config.Connection{Scheme: config.SchemeFile})
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, s.Mkdir(filepath.Join(dir, "sub")))
	fi, err := s.Stat(filepath.Join(dir, "sub"))
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
	assert.NoError(t, s.Close())

	_, err = Open(config.Connection{Scheme: "ftp"})
	assert.EqualError(t, err, `Unsupported scheme "ftp".`)
}

func TestHostOnly(t *testing.T) {
	assert.Equal(t, "example.com", hostOnly("example.com:22"))
	assert.Equal(t, "-p 2222 example.com", hostOnly("example.com:2222"))
	assert.Equal(t, "example.com", hostOnly("example.com"))
}
