package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/afero"

	"github.com/sidkik/sftpsync/pkg/errors"
)

const (
	// DefaultStoreDir is where named configs are saved.
	DefaultStoreDir = "~/.sftpsync/configs"

	savedConfigExt = ".yaml"
)

// Store keeps named configs as files in a directory.
type Store struct {
	dir string
}

// SavedConfig describes a config in the Store.
type SavedConfig struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	ModifiedAt time.Time `json:"modified_at"`
}

// NotSavedError is returned when no config is saved under Name.
type NotSavedError struct {
	Name string
}

func (err NotSavedError) Error() string {
	return err.FriendlyMessage()
}

func (err NotSavedError) FriendlyMessage() string {
	return fmt.Sprintf("No saved config named %q.", err.Name)
}

// NewStore returns a Store rooted at `dir`. The directory is created on the
// first save.
func NewStore(dir string) (*Store, error) {
	expanded, err := homedirExpand(dir)
	if err != nil {
		return nil, errors.WithContext(err, "expand store path")
	}
	return &Store{dir: expanded}, nil
}

// SanitizeName strips characters that aren't safe in file names. Only
// letters, digits, spaces, and `.`, `_`, `-` are kept.
func SanitizeName(name string) string {
	sanitized := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("._- ", r) {
			return r
		}
		return -1
	}, name)
	return strings.TrimSpace(sanitized)
}

func (s *Store) path(name string) (string, error) {
	sanitized := SanitizeName(name)
	if sanitized == "" || strings.Trim(sanitized, ".") == "" {
		return "", errors.NewFriendlyError("%q is not a valid config name.", name)
	}
	return filepath.Join(s.dir, sanitized+savedConfigExt), nil
}

// Save writes `cfg` under `name`, replacing any config with the same name. It
// returns the sanitized name. The file is only readable by the current user
// since it may contain passwords.
func (s *Store) Save(name string, cfg Config) (string, error) {
	path, err := s.path(name)
	if err != nil {
		return "", err
	}

	configBytes, err := cfg.Marshal()
	if err != nil {
		return "", errors.WithContext(err, "marshal")
	}

	if err := fs.MkdirAll(s.dir, 0700); err != nil {
		return "", errors.WithContext(err, "create config directory")
	}

	if err := afero.WriteFile(fs, path, configBytes, 0600); err != nil {
		return "", errors.WithContext(err, "write")
	}
	return SanitizeName(name), nil
}

// Load reads the config saved under `name`.
func (s *Store) Load(name string) (Config, error) {
	path, err := s.path(name)
	if err != nil {
		return Config{}, err
	}

	cfg, err := Parse(path)
	if err != nil {
		if _, ok := errors.RootCause(err).(errors.FileNotFound); ok {
			return Config{}, NotSavedError{Name: name}
		}
		return Config{}, err
	}
	return cfg, nil
}

// List returns the saved configs sorted by name.
func (s *Store) List() ([]SavedConfig, error) {
	entries, err := afero.ReadDir(fs, s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WithContext(err, "read config directory")
	}

	var configs []SavedConfig
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), savedConfigExt) {
			continue
		}
		configs = append(configs, SavedConfig{
			Name:       strings.TrimSuffix(entry.Name(), savedConfigExt),
			Path:       filepath.Join(s.dir, entry.Name()),
			ModifiedAt: entry.ModTime(),
		})
	}
	sort.Slice(configs, func(i, j int) bool {
		return configs[i].Name < configs[j].Name
	})
	return configs, nil
}

// Delete removes the config saved under `name`.
func (s *Store) Delete(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}

	if err := fs.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return NotSavedError{Name: name}
		}
		return errors.WithContext(err, "remove")
	}
	return nil
}
