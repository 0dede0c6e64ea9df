package config

import (
	"fmt"
	"path"

	"github.com/ghodss/yaml"

	"github.com/sidkik/sftpsync/pkg/errors"
	"github.com/sidkik/sftpsync/pkg/sync"
)

const (
	// InitialConfigVersion is the first version of the sync config. Config
	// files that do not specify a version will default to this version.
	InitialConfigVersion = "v1"

	// SupportedConfigVersion is the version of the sync config supported by
	// this binary.
	SupportedConfigVersion = "v1"

	// SchemeSFTP connects to an SSH server and uses its SFTP subsystem.
	SchemeSFTP = "sftp"

	// SchemeFile treats the remote directory as a path on the local
	// machine, such as a network mount.
	SchemeFile = "file"

	// DefaultPort is the SSH port used when none is configured.
	DefaultPort = 22

	redacted = "***"
)

// Connection describes how to reach the remote filesystem.
type Connection struct {
	Scheme             string `json:"scheme,omitempty"`
	Host               string `json:"host,omitempty"`
	Port               int    `json:"port,omitempty"`
	Username           string `json:"username,omitempty"`
	Password           string `json:"password,omitempty"`
	PrivateKey         string `json:"private_key,omitempty"`
	PrivateKeyPassword string `json:"private_key_password,omitempty"`

	// UseKeyring looks up the password in the OS keyring when Password is
	// empty. See `sftpsync login`.
	UseKeyring bool `json:"use_keyring,omitempty"`

	// AutoAddHostKey trusts and records the key of hosts that aren't in any
	// known_hosts file yet. Changed keys are always rejected.
	AutoAddHostKey bool `json:"auto_add_host_key,omitempty"`

	// KnownHostsFile overrides the user's known_hosts file.
	KnownHostsFile string `json:"known_hosts_file,omitempty"`
}

// Address returns the host:port to dial.
func (c Connection) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Config is the configuration for a sync. The connection fields appear at the
// top level of the config file.
type Config struct {
	Version string `json:"version,omitempty"`

	Connection

	LocalDir            string   `json:"local_dir"`
	RemoteDir           string   `json:"remote_dir"`
	IncludePatterns     []string `json:"include_patterns,omitempty"`
	ExcludePatterns     []string `json:"exclude_patterns,omitempty"`
	DeleteRemote        bool     `json:"delete_remote"`
	PreservePermissions bool     `json:"preserve_permissions"`
	DryRun              bool     `json:"dry_run"`
	Verbose             bool     `json:"verbose"`
	FollowSymlinks      bool     `json:"follow_symlinks"`
	BackupRemote        bool     `json:"backup_remote"`
}

func (c Config) getVersion() string {
	return c.Version
}

// Default returns a Config with every field at its default value.
func Default() Config {
	return Config{
		Version: InitialConfigVersion,
		Connection: Connection{
			Scheme: SchemeSFTP,
			Port:   DefaultPort,
		},
		LocalDir:            ".",
		RemoteDir:           ".",
		IncludePatterns:     []string{"*"},
		PreservePermissions: true,
	}
}

// Parse reads the config file at `path`. Fields that aren't set in the file
// keep their default values.
func Parse(path string) (Config, error) {
	config := Default()
	if err := parseConfig(path, &config, SupportedConfigVersion); err != nil {
		return Config{}, errors.WithContext(err, "parse")
	}
	return config, nil
}

// ParseBytes is like Parse, but reads the config from memory. JSON is
// accepted as well as YAML.
func ParseBytes(source string, configBytes []byte) (Config, error) {
	config := Default()
	if err := unmarshalConfig(source, configBytes, &config, SupportedConfigVersion); err != nil {
		return Config{}, errors.WithContext(err, "parse")
	}
	return config, nil
}

// Marshal encodes the config as YAML.
func (c Config) Marshal() ([]byte, error) {
	c.Version = SupportedConfigVersion
	return yaml.Marshal(c)
}

// Normalize fills in defaults for empty fields and expands `~` in paths.
func (c *Config) Normalize() error {
	if c.Version == "" {
		c.Version = InitialConfigVersion
	}
	if c.Scheme == "" {
		c.Scheme = SchemeSFTP
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if len(c.IncludePatterns) == 0 {
		c.IncludePatterns = []string{"*"}
	}

	for _, p := range []*string{&c.LocalDir, &c.PrivateKey, &c.KnownHostsFile} {
		expanded, err := homedirExpand(*p)
		if err != nil {
			return errors.WithContext(err, fmt.Sprintf("expand %q", *p))
		}
		*p = expanded
	}
	return nil
}

// Validate checks the config, and returns an errors.ValidationError listing
// every problem found.
func (c Config) Validate() error {
	var problems []string
	addProblem := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.Scheme {
	case SchemeSFTP:
		if c.Host == "" {
			addProblem("host is required")
		}
		if c.Username == "" {
			addProblem("username is required")
		}
		if c.Password == "" && c.PrivateKey == "" && !c.UseKeyring {
			addProblem("either password, private_key, or use_keyring is required")
		}
		if c.Port < 1 || c.Port > 65535 {
			addProblem("port must be between 1 and 65535, got %d", c.Port)
		}
	case SchemeFile:
	default:
		addProblem("scheme must be %q or %q, got %q", SchemeSFTP, SchemeFile, c.Scheme)
	}

	if c.LocalDir == "" {
		addProblem("local_dir is required")
	} else if fi, err := fs.Stat(c.LocalDir); err != nil {
		addProblem("local_dir does not exist: %s", c.LocalDir)
	} else if !fi.IsDir() {
		addProblem("local_dir is not a directory: %s", c.LocalDir)
	}

	if c.RemoteDir == "" {
		addProblem("remote_dir is required")
	}

	if c.PrivateKey != "" {
		if _, err := fs.Stat(c.PrivateKey); err != nil {
			addProblem("private_key file does not exist: %s", c.PrivateKey)
		}
	}

	for _, pattern := range c.IncludePatterns {
		if _, err := path.Match(pattern, ""); err != nil {
			addProblem("invalid include pattern %q", pattern)
		}
	}
	for _, pattern := range c.ExcludePatterns {
		if _, err := path.Match(pattern, ""); err != nil {
			addProblem("invalid exclude pattern %q", pattern)
		}
	}

	if len(problems) != 0 {
		return errors.ValidationError{Problems: problems}
	}
	return nil
}

// Redacted returns a copy of the config that's safe to print.
func (c Config) Redacted() Config {
	if c.Password != "" {
		c.Password = redacted
	}
	if c.PrivateKeyPassword != "" {
		c.PrivateKeyPassword = redacted
	}
	c.IncludePatterns = append([]string(nil), c.IncludePatterns...)
	c.ExcludePatterns = append([]string(nil), c.ExcludePatterns...)
	return c
}

// SyncOptions returns the options for the sync engine.
func (c Config) SyncOptions() sync.Options {
	return sync.Options{
		LocalDir:            c.LocalDir,
		RemoteDir:           c.RemoteDir,
		Include:             c.IncludePatterns,
		Exclude:             c.ExcludePatterns,
		DeleteRemote:        c.DeleteRemote,
		PreservePermissions: c.PreservePermissions,
		DryRun:              c.DryRun,
		FollowSymlinks:      c.FollowSymlinks,
		BackupRemote:        c.BackupRemote,
		Verbose:             c.Verbose,
	}
}
