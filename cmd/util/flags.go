package util

import (
	"github.com/spf13/cobra"

	"github.com/sidkik/sftpsync/pkg/config"
	"github.com/sidkik/sftpsync/pkg/errors"
)

// Mocked out for unit testing.
var (
	parseConfig    = config.Parse
	newConfigStore = func() (*config.Store, error) {
		return config.NewStore(config.DefaultStoreDir)
	}
)

// ConfigFlags are the command line flags that select and override a sync
// config. Flags that the user sets take precedence over the config file.
type ConfigFlags struct {
	ConfigPath string
	SavedName  string

	cfg                   config.Config
	noPreservePermissions bool
}

// RegisterConnection adds the connection flags to `cmd`.
func (f *ConfigFlags) RegisterConnection(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.ConfigPath, "config", "c", "", "Path to a YAML or JSON config file.")
	flags.StringVar(&f.SavedName, "saved", "", "Name of a config saved with `sftpsync config save`.")
	flags.StringVar(&f.cfg.Scheme, "scheme", "", `Remote scheme: "sftp" or "file".`)
	flags.StringVar(&f.cfg.Host, "host", "", "Remote host.")
	flags.IntVar(&f.cfg.Port, "port", 0, "SSH port (default 22).")
	flags.StringVar(&f.cfg.Username, "username", "", "SSH username.")
	flags.StringVar(&f.cfg.Password, "password", "", "SSH password.")
	flags.StringVar(&f.cfg.PrivateKey, "private-key", "", "Path to an SSH private key.")
	flags.StringVar(&f.cfg.PrivateKeyPassword, "private-key-password", "", "Passphrase for the private key.")
	flags.BoolVar(&f.cfg.UseKeyring, "use-keyring", false, "Read the password from the OS keyring.")
	flags.BoolVar(&f.cfg.AutoAddHostKey, "auto-add-host-key", false,
		"Trust and remember the host key of unknown hosts.")
	flags.StringVar(&f.cfg.KnownHostsFile, "known-hosts-file", "",
		"known_hosts file to check and update (default ~/.ssh/known_hosts).")
}

// RegisterSync adds the connection flags, and the flags that control the
// sync itself, to `cmd`.
func (f *ConfigFlags) RegisterSync(cmd *cobra.Command) {
	f.RegisterConnection(cmd)

	flags := cmd.Flags()
	flags.StringVar(&f.cfg.LocalDir, "local-dir", "", "Local directory to sync from (default \".\").")
	flags.StringVar(&f.cfg.RemoteDir, "remote-dir", "", "Remote directory to sync to (default \".\").")
	flags.StringArrayVar(&f.cfg.IncludePatterns, "include", nil, "Include files matching the pattern. Repeatable.")
	flags.StringArrayVar(&f.cfg.ExcludePatterns, "exclude", nil, "Exclude paths matching the pattern. Repeatable.")
	flags.BoolVar(&f.cfg.DeleteRemote, "delete", false, "Delete remote files that don't exist locally.")
	flags.BoolVar(&f.noPreservePermissions, "no-preserve-permissions", false,
		"Don't copy local file permissions to the remote.")
	flags.BoolVar(&f.cfg.DryRun, "dry-run", false, "Show what would be done without changing anything.")
	flags.BoolVarP(&f.cfg.Verbose, "verbose", "v", false, "Print the config and every file selected for syncing.")
	flags.BoolVar(&f.cfg.FollowSymlinks, "follow-symlinks", false, "Follow symbolic links.")
	flags.BoolVar(&f.cfg.BackupRemote, "backup", false,
		"Rename remote files to <name>.backup before overwriting them.")
}

// Load builds the config for `cmd`. The base config comes from --config or
// --saved, or the defaults if neither is set. Flags that were set on the
// command line are then applied on top.
func (f *ConfigFlags) Load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := f.base()
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	changed := func(name string) bool {
		flag := flags.Lookup(name)
		return flag != nil && flag.Changed
	}

	overrides := []struct {
		flag  string
		apply func()
	}{
		{"scheme", func() { cfg.Scheme = f.cfg.Scheme }},
		{"host", func() { cfg.Host = f.cfg.Host }},
		{"port", func() { cfg.Port = f.cfg.Port }},
		{"username", func() { cfg.Username = f.cfg.Username }},
		{"password", func() { cfg.Password = f.cfg.Password }},
		{"private-key", func() { cfg.PrivateKey = f.cfg.PrivateKey }},
		{"private-key-password", func() { cfg.PrivateKeyPassword = f.cfg.PrivateKeyPassword }},
		{"use-keyring", func() { cfg.UseKeyring = f.cfg.UseKeyring }},
		{"auto-add-host-key", func() { cfg.AutoAddHostKey = f.cfg.AutoAddHostKey }},
		{"known-hosts-file", func() { cfg.KnownHostsFile = f.cfg.KnownHostsFile }},
		{"local-dir", func() { cfg.LocalDir = f.cfg.LocalDir }},
		{"remote-dir", func() { cfg.RemoteDir = f.cfg.RemoteDir }},
		{"include", func() { cfg.IncludePatterns = f.cfg.IncludePatterns }},
		{"exclude", func() { cfg.ExcludePatterns = f.cfg.ExcludePatterns }},
		{"delete", func() { cfg.DeleteRemote = f.cfg.DeleteRemote }},
		{"no-preserve-permissions", func() { cfg.PreservePermissions = !f.noPreservePermissions }},
		{"dry-run", func() { cfg.DryRun = f.cfg.DryRun }},
		{"verbose", func() { cfg.Verbose = f.cfg.Verbose }},
		{"follow-symlinks", func() { cfg.FollowSymlinks = f.cfg.FollowSymlinks }},
		{"backup", func() { cfg.BackupRemote = f.cfg.BackupRemote }},
	}
	for _, override := range overrides {
		if changed(override.flag) {
			override.apply()
		}
	}

	if err := cfg.Normalize(); err != nil {
		return config.Config{}, errors.WithContext(err, "normalize config")
	}
	return cfg, nil
}

func (f *ConfigFlags) base() (config.Config, error) {
	switch {
	case f.ConfigPath != "" && f.SavedName != "":
		return config.Config{}, errors.NewFriendlyError("Only one of --config and --saved may be set.")
	case f.ConfigPath != "":
		return parseConfig(f.ConfigPath)
	case f.SavedName != "":
		store, err := newConfigStore()
		if err != nil {
			return config.Config{}, errors.WithContext(err, "open config store")
		}
		return store.Load(f.SavedName)
	default:
		return config.Default(), nil
	}
}
