package sync

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/sftpsync/pkg/errors"
)

func TestEnumerateLocal(t *testing.T) {
	tests := []struct {
		name     string
		files    []string
		include  []string
		exclude  []string
		expFiles []string
	}{
		{
			name:     "Everything",
			files:    []string{"/local/a.txt", "/local/src/main.go", "/local/src/pkg/util.go"},
			expFiles: []string{"a.txt", "src/main.go", "src/pkg/util.go"},
		},
		{
			name: "Prune excluded directories",
			files: []string{"/local/index.js", "/local/node_modules/react/index.js",
				"/local/web/node_modules/vue/index.js", "/local/.git/config"},
			exclude:  []string{"node_modules", ".git"},
			expFiles: []string{"index.js"},
		},
		{
			name:    "Include patterns don't prune directories",
			files:   []string{"/local/src/main.py", "/local/src/README.md"},
			include: []string{"*.py"},
			// Include patterns are applied to files by the run, not by
			// enumeration.
			expFiles: []string{"src/main.py", "src/README.md"},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			fs = afero.NewMemMapFs()
			require.NoError(t, fs.MkdirAll("/local", 0755))
			for _, f := range test.files {
				require.NoError(t, afero.WriteFile(fs, f, []byte("x"), 0644))
			}

			log, _ := logrusTest.NewNullLogger()
			files, warnings, err := EnumerateLocal("/local", false,
				NewMatcher(test.include, test.exclude), log)
			assert.NoError(t, err)
			assert.Empty(t, warnings)
			assert.ElementsMatch(t, test.expFiles, files)
		})
	}
}

// unreadableFs fails to open anything beneath `prefix`.
type unreadableFs struct {
	afero.Fs
	prefix string
}

func (fs unreadableFs) Open(name string) (afero.File, error) {
	if strings.HasPrefix(name, fs.prefix) {
		return nil, os.ErrPermission
	}
	return fs.Fs.Open(name)
}

func TestEnumerateLocalPrunedDirectoriesAreNotRead(t *testing.T) {
	mem := afero.NewMemMapFs()
	writeFiles(mem, map[string]string{
		"/local/keep.txt":           "keep",
		"/local/.git/objects/ab/cd": "object",
	})

	// If the enumerator descended into the excluded directory, it would
	// report a warning.
	fs = unreadableFs{Fs: mem, prefix: "/local/.git"}
	log, _ := logrusTest.NewNullLogger()
	files, warnings, err := EnumerateLocal("/local", false, NewMatcher(nil, []string{".git"}), log)
	assert.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, []string{"keep.txt"}, files)

	files, warnings, err = EnumerateLocal("/local", false, nil, log)
	assert.NoError(t, err)
	assert.Equal(t, []string{"keep.txt"}, files)
	require.Len(t, warnings, 1)
	assert.Equal(t, Warning{Kind: WarnUnreadable, Path: ".git", Err: os.ErrPermission}, warnings[0])
}

func TestEnumerateLocalBadRoot(t *testing.T) {
	fs = afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/file", []byte("x"), 0644))
	log, _ := logrusTest.NewNullLogger()

	_, _, err := EnumerateLocal("/missing", false, nil, log)
	assert.Equal(t, errors.FileNotFound{Path: "/missing"}, err)

	_, _, err = EnumerateLocal("/file", false, nil, log)
	assert.EqualError(t, err, `Local path "/file" is not a directory.`)
}

// The symlink tests use the real filesystem since afero's in-memory
// filesystem doesn't support links.
func TestEnumerateLocalSymlinks(t *testing.T) {
	fs = afero.NewOsFs()

	type expWarning struct {
		kind WarningKind
		path string
	}

	tests := []struct {
		name           string
		setup          func(t *testing.T, root, outside string)
		followSymlinks bool
		expFiles       []string
		expWarnings    []expWarning
	}{
		{
			name: "Cycle is detected when following links",
			setup: func(t *testing.T, root, _ string) {
				mkdir(t, filepath.Join(root, "a"))
				write(t, filepath.Join(root, "f.txt"))
				write(t, filepath.Join(root, "a", "g.txt"))
				symlink(t, root, filepath.Join(root, "a", "loop"))
			},
			followSymlinks: true,
			expFiles:       []string{"f.txt", "a/g.txt"},
			expWarnings:    []expWarning{{WarnSymlinkCycle, "a/loop"}},
		},
		{
			name: "Cycle is ignored when not following links",
			setup: func(t *testing.T, root, _ string) {
				mkdir(t, filepath.Join(root, "a"))
				write(t, filepath.Join(root, "a", "g.txt"))
				symlink(t, root, filepath.Join(root, "a", "loop"))
			},
			expFiles: []string{"a/g.txt"},
		},
		{
			name: "Directory reachable through a link is walked once",
			setup: func(t *testing.T, root, _ string) {
				mkdir(t, filepath.Join(root, "real"))
				write(t, filepath.Join(root, "real", "x.txt"))
				symlink(t, filepath.Join(root, "real"), filepath.Join(root, "alias"))
			},
			followSymlinks: true,
			// Entries are listed in name order, so `alias` is walked first.
			expFiles:    []string{"alias/x.txt"},
			expWarnings: []expWarning{{WarnSymlinkCycle, "real"}},
		},
		{
			name: "Linked file outside root is skipped when following links",
			setup: func(t *testing.T, root, outside string) {
				write(t, filepath.Join(outside, "secret.txt"))
				symlink(t, filepath.Join(outside, "secret.txt"), filepath.Join(root, "link.txt"))
				write(t, filepath.Join(root, "ok.txt"))
			},
			followSymlinks: true,
			expFiles:       []string{"ok.txt"},
			expWarnings:    []expWarning{{WarnOutsideRoot, "link.txt"}},
		},
		{
			name: "Linked file is synced when not following links",
			setup: func(t *testing.T, root, outside string) {
				write(t, filepath.Join(outside, "shared.txt"))
				symlink(t, filepath.Join(outside, "shared.txt"), filepath.Join(root, "link.txt"))
			},
			expFiles: []string{"link.txt"},
		},
		{
			name: "Broken link",
			setup: func(t *testing.T, root, _ string) {
				symlink(t, filepath.Join(root, "missing"), filepath.Join(root, "dangling"))
				write(t, filepath.Join(root, "ok.txt"))
			},
			expFiles:    []string{"ok.txt"},
			expWarnings: []expWarning{{WarnBrokenLink, "dangling"}},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			root := t.TempDir()
			test.setup(t, root, t.TempDir())

			log, hook := logrusTest.NewNullLogger()
			files, warnings, err := EnumerateLocal(root, test.followSymlinks, nil, log)
			require.NoError(t, err)
			assert.ElementsMatch(t, test.expFiles, files)

			var actualWarnings []expWarning
			for _, w := range warnings {
				actualWarnings = append(actualWarnings, expWarning{w.Kind, w.Path})
			}
			assert.Equal(t, test.expWarnings, actualWarnings)

			var warnLogs int
			for _, entry := range hook.AllEntries() {
				if entry.Level.String() == "warning" {
					warnLogs++
				}
			}
			assert.Equal(t, len(test.expWarnings), warnLogs)
		})
	}
}

func TestEnumerateLocalUnreadableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions aren't enforced for root")
	}

	fs = afero.NewOsFs()
	root := t.TempDir()
	locked := filepath.Join(root, "locked")
	mkdir(t, locked)
	write(t, filepath.Join(locked, "hidden.txt"))
	write(t, filepath.Join(root, "visible.txt"))
	require.NoError(t, os.Chmod(locked, 0))
	defer os.Chmod(locked, 0755)

	log, _ := logrusTest.NewNullLogger()
	files, warnings, err := EnumerateLocal(root, false, nil, log)
	require.NoError(t, err)
	assert.Equal(t, []string{"visible.txt"}, files)
	require.Len(t, warnings, 1)
	assert.Equal(t, WarnUnreadable, warnings[0].Kind)
	assert.Equal(t, "locked", warnings[0].Path)
}

func mkdir(t *testing.T, path string) {
	require.NoError(t, os.MkdirAll(path, 0755))
}

func write(t *testing.T, path string) {
	require.NoError(t, os.WriteFile(path, []byte(filepath.Base(path)), 0644))
}

func symlink(t *testing.T, target, link string) {
	require.NoError(t, os.Symlink(target, link))
}
