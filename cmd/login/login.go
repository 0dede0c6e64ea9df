package login

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/sidkik/sftpsync/cmd/util"
	"github.com/sidkik/sftpsync/pkg/config"
	"github.com/sidkik/sftpsync/pkg/errors"
	"github.com/sidkik/sftpsync/pkg/session"
)

// Mocked out for unit testing.
var (
	stdout       io.Writer = os.Stdout
	readPassword           = func() ([]byte, error) {
		return terminal.ReadPassword(int(os.Stdin.Fd()))
	}
	storePassword  = session.StorePassword
	deletePassword = session.DeletePassword
	testConnection = session.Test
)

type options struct {
	forget bool
	verify bool
}

// New creates a new `login` command.
func New() *cobra.Command {
	var flags util.ConfigFlags
	var opts options
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an SSH password in the OS keyring",
		Long: "Prompt for the password of the given user and host, and store it in\n" +
			"the OS keyring. Configs with use_keyring set read it from there.",
		Run: func(cmd *cobra.Command, _ []string) {
			cfg, err := flags.Load(cmd)
			if err != nil {
				util.HandleFatalError(err)
			}

			if err := Main(cfg.Connection, opts); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	flags.RegisterConnection(cmd)
	cmd.Flags().BoolVar(&opts.forget, "delete", false, "Remove the stored password instead.")
	cmd.Flags().BoolVar(&opts.verify, "test", true, "Check that the password works before storing it.")
	return cmd
}

func Main(conn config.Connection, opts options) error {
	if conn.Host == "" || conn.Username == "" {
		return errors.NewFriendlyError("Both --host and --username are required.")
	}

	if opts.forget {
		if err := deletePassword(conn); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Removed the password for %s@%s\n", conn.Username, conn.Address())
		return nil
	}

	fmt.Fprintf(stdout, "Password for %s@%s: ", conn.Username, conn.Address())
	password, err := readPassword()
	fmt.Fprintln(stdout)
	if err != nil {
		return errors.WithContext(err, "read password")
	}
	if len(password) == 0 {
		return errors.NewFriendlyError("The password can't be empty.")
	}

	if opts.verify {
		testConn := conn
		testConn.Password = string(password)
		testConn.UseKeyring = false
		if err := testConnection(testConn); err != nil {
			return errors.WithContext(err, "test connection")
		}
	}

	if err := storePassword(conn, string(password)); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Stored the password for %s@%s\n", conn.Username, conn.Address())
	return nil
}
