package session

import (
	"github.com/spf13/afero"
	"golang.org/x/crypto/ssh"

	"github.com/sidkik/sftpsync/pkg/config"
	"github.com/sidkik/sftpsync/pkg/errors"
)

var fs = afero.NewOsFs()

// authMethods returns the ways to authenticate as `conn.Username`. A private
// key is tried before the password.
func authMethods(conn config.Connection) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if conn.PrivateKey != "" {
		signer, err := loadSigner(conn.PrivateKey, conn.PrivateKeyPassword)
		if err != nil {
			return nil, err
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	password := conn.Password
	if password == "" && conn.UseKeyring {
		stored, err := LookupPassword(conn)
		switch {
		case err == nil:
			password = stored
		case len(methods) == 0:
			return nil, err
		}
	}

	if password != "" {
		methods = append(methods,
			ssh.Password(password),
			ssh.KeyboardInteractive(answerWith(password)))
	}

	if len(methods) == 0 {
		return nil, errors.NewFriendlyError("No credentials configured for %s@%s. "+
			"Set a password or private key.", conn.Username, conn.Host)
	}
	return methods, nil
}

func loadSigner(path, passphrase string) (ssh.Signer, error) {
	keyBytes, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.WithContext(err, "read private key")
	}

	if passphrase != "" {
		signer, err := ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(passphrase))
		if err != nil {
			return nil, errors.WithContext(err, "decrypt private key")
		}
		return signer, nil
	}

	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, errors.NewFriendlyError("The private key %q is encrypted. "+
				"Set private_key_password to decrypt it.", path)
		}
		return nil, errors.WithContext(err, "parse private key")
	}
	return signer, nil
}

// answerWith answers every keyboard-interactive prompt with the password.
// Some servers only allow password logins through that method.
func answerWith(password string) ssh.KeyboardInteractiveChallenge {
	return func(_, _ string, questions []string, _ []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range answers {
			answers[i] = password
		}
		return answers, nil
	}
}
