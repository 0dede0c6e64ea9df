package session

import (
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/sidkik/sftpsync/pkg/config"
	"github.com/sidkik/sftpsync/pkg/errors"
)

const keyringService = "sftpsync"

func keyringUser(conn config.Connection) string {
	return fmt.Sprintf("%s@%s:%d", conn.Username, conn.Host, conn.Port)
}

// StorePassword saves the password for `conn` in the OS keyring.
func StorePassword(conn config.Connection, password string) error {
	if err := keyring.Set(keyringService, keyringUser(conn), password); err != nil {
		return errors.WithContext(err, "save to keyring")
	}
	return nil
}

// LookupPassword returns the password saved by StorePassword.
func LookupPassword(conn config.Connection) (string, error) {
	password, err := keyring.Get(keyringService, keyringUser(conn))
	if err != nil {
		if err == keyring.ErrNotFound {
			return "", errors.NewFriendlyError("No password is stored for %s. "+
				"Run `sftpsync login` to store one.", keyringUser(conn))
		}
		return "", errors.WithContext(err, "read from keyring")
	}
	return password, nil
}

// DeletePassword removes the password saved for `conn`.
func DeletePassword(conn config.Connection) error {
	if err := keyring.Delete(keyringService, keyringUser(conn)); err != nil {
		if err == keyring.ErrNotFound {
			return errors.NewFriendlyError("No password is stored for %s.", keyringUser(conn))
		}
		return errors.WithContext(err, "delete from keyring")
	}
	return nil
}
