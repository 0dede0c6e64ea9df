package session

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/sidkik/sftpsync/pkg/config"
	"github.com/sidkik/sftpsync/pkg/errors"
)

// Mocked out for unit testing.
var (
	systemKnownHosts = "/etc/ssh/ssh_known_hosts"
	userKnownHosts   = "~/.ssh/known_hosts"
)

type hostKeyChecker struct {
	known    ssh.HostKeyCallback
	userFile string
	autoAdd  bool

	// rejected is the reason the last host key was refused.
	rejected error
}

func newHostKeyChecker(conn config.Connection) (*hostKeyChecker, error) {
	userFile := conn.KnownHostsFile
	if userFile == "" {
		userFile = userKnownHosts
	}
	userFile, err := homedir.Expand(userFile)
	if err != nil {
		return nil, errors.WithContext(err, "expand known hosts path")
	}

	var files []string
	for _, path := range []string{systemKnownHosts, userFile} {
		if _, err := fs.Stat(path); err == nil {
			files = append(files, path)
		}
	}

	checker := &hostKeyChecker{userFile: userFile, autoAdd: conn.AutoAddHostKey}
	if len(files) != 0 {
		checker.known, err = knownhosts.New(files...)
		if err != nil {
			return nil, errors.WithContext(err, "parse known hosts")
		}
	}
	return checker, nil
}

func (c *hostKeyChecker) check(hostname string, remote net.Addr, key ssh.PublicKey) error {
	if c.known != nil {
		err := c.known(hostname, remote, key)
		if err == nil {
			return nil
		}

		var keyErr *knownhosts.KeyError
		if !errors.As(err, &keyErr) {
			return err
		}

		if len(keyErr.Want) != 0 {
			c.rejected = errors.NewFriendlyError("The host key for %s has changed "+
				"since it was recorded in %s.\n"+
				"This could mean that someone is intercepting the connection. "+
				"If the change is expected, remove the old key with:\n"+
				"    ssh-keygen -R %s", hostname, keyErr.Want[0].Filename, knownhosts.Normalize(hostname))
			return c.rejected
		}
	}

	fingerprint := ssh.FingerprintSHA256(key)
	if !c.autoAdd {
		c.rejected = errors.NewFriendlyError("The host %s is not in any known_hosts file "+
			"(key fingerprint %s).\n"+
			"Either add it with:\n"+
			"    ssh-keyscan -H %s >> ~/.ssh/known_hosts\n"+
			"or enable auto_add_host_key.", hostname, fingerprint, hostOnly(hostname))
		return c.rejected
	}

	if err := c.addKnownHost(hostname, key); err != nil {
		log.WithError(err).Warn("Failed to save host key. It will be trusted for this session only")
	}
	log.WithField("fingerprint", fingerprint).Warnf("Permanently added %s to the list of known hosts", hostname)
	return nil
}

func (c *hostKeyChecker) addKnownHost(hostname string, key ssh.PublicKey) error {
	if err := fs.MkdirAll(filepath.Dir(c.userFile), 0700); err != nil {
		return errors.WithContext(err, "create directory")
	}

	f, err := fs.OpenFile(c.userFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return errors.WithContext(err, "open")
	}

	line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)
	if _, err := fmt.Fprintln(f, line); err != nil {
		f.Close()
		return errors.WithContext(err, "write")
	}
	return f.Close()
}

func hostOnly(hostname string) string {
	host, port, err := net.SplitHostPort(hostname)
	if err != nil {
		return hostname
	}
	if port == "22" {
		return host
	}
	return fmt.Sprintf("-p %s %s", port, host)
}
