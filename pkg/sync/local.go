package sync

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/sftpsync/pkg/errors"
)

// Mocked out for unit testing.
var (
	fs           = afero.NewOsFs()
	evalSymlinks = filepath.EvalSymlinks
)

type localDir struct {
	abs, rel string
}

// EnumerateLocal lists the regular files beneath `root`, as `/`-separated
// paths relative to `root`. Directories that match one of the matcher's
// exclude patterns are pruned without being read. A nil matcher prunes
// nothing.
//
// Problems with individual entries (unreadable directories, broken links,
// symlink cycles, and links that escape the root) are returned as warnings
// and don't stop the walk. Only a root that can't be read is an error.
func EnumerateLocal(root string, followSymlinks bool, matcher *Matcher,
	log logrus.FieldLogger) ([]string, []Warning, error) {

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, nil, errors.WithContext(err, "resolve local root")
	}

	rootInfo, err := fs.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errors.FileNotFound{Path: root}
		}
		return nil, nil, errors.WithContext(err, "stat local root")
	}
	if !rootInfo.IsDir() {
		return nil, nil, errors.NewFriendlyError("Local path %q is not a directory.", root)
	}

	realRoot := root
	if followSymlinks {
		realRoot, err = evalSymlinks(root)
		if err != nil {
			return nil, nil, errors.WithContext(err, "resolve local root")
		}
	}

	var files []string
	var warnings []Warning
	warn := func(kind WarningKind, rel string, err error) {
		entry := log.WithField("path", rel)
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Warnf("Skipping local path: %s", kind)
		warnings = append(warnings, Warning{Kind: kind, Path: rel, Err: err})
	}

	visited := map[dirID]struct{}{}
	stack := []localDir{{abs: root}}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if followSymlinks {
			id, err := identify(dir.abs)
			if err != nil {
				warn(WarnUnreadable, displayRel(dir.rel), err)
				continue
			}
			if _, ok := visited[id]; ok {
				warn(WarnSymlinkCycle, displayRel(dir.rel), nil)
				continue
			}
			visited[id] = struct{}{}
		}

		entries, err := afero.ReadDir(fs, dir.abs)
		if err != nil {
			warn(WarnUnreadable, displayRel(dir.rel), err)
			continue
		}

		var subdirs []localDir
		for _, entry := range entries {
			rel := joinRel(dir.rel, entry.Name())
			abs := filepath.Join(dir.abs, entry.Name())

			if entry.Mode()&os.ModeSymlink != 0 {
				target, err := fs.Stat(abs)
				if err != nil {
					warn(WarnBrokenLink, rel, err)
					continue
				}

				if target.IsDir() {
					if !followSymlinks {
						log.WithField("path", rel).Debug("Not following symlinked directory")
						continue
					}
					if matcher != nil && matcher.Excludes(rel) {
						continue
					}
					subdirs = append(subdirs, localDir{abs: abs, rel: rel})
					continue
				}

				if !target.Mode().IsRegular() {
					continue
				}

				if followSymlinks {
					resolved, err := evalSymlinks(abs)
					if err != nil {
						warn(WarnBrokenLink, rel, err)
						continue
					}
					if !within(realRoot, resolved) {
						warn(WarnOutsideRoot, rel, nil)
						continue
					}
				}
				files = append(files, rel)
				continue
			}

			switch {
			case entry.IsDir():
				if matcher != nil && matcher.Excludes(rel) {
					log.WithField("path", rel).Debug("Pruned excluded directory")
					continue
				}
				subdirs = append(subdirs, localDir{abs: abs, rel: rel})
			case entry.Mode().IsRegular():
				files = append(files, rel)
			}
		}

		// Push in reverse so that the first listed subdirectory is walked
		// first.
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}
	return files, warnings, nil
}

// within returns whether `p` is `root` or lies beneath it. Both paths must
// already be resolved.
func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func joinRel(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

func displayRel(rel string) string {
	if rel == "" {
		return "."
	}
	return rel
}
