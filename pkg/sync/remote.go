package sync

import (
	"github.com/sirupsen/logrus"

	"github.com/sidkik/sftpsync/pkg/errors"
	"github.com/sidkik/sftpsync/pkg/remote"
)

type remoteDir struct {
	abs, rel string
}

// EnumerateRemote lists the files beneath `root` on the remote filesystem,
// as `/`-separated paths relative to `root`.
//
// If a subdirectory can't be listed, a warning is returned and its subtree is
// treated as empty. That keeps one unreadable directory from aborting the
// run, at the cost of possibly missing remote-only files beneath it. Failing
// to list `root` itself is an error.
func EnumerateRemote(fs remote.FS, root string, log logrus.FieldLogger) ([]string, []Warning, error) {
	var files []string
	var warnings []Warning

	stack := []remoteDir{{abs: remote.Join(root, "")}}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := fs.ReadDir(dir.abs)
		if err != nil {
			if dir.rel == "" {
				return nil, nil, errors.WithContext(err, "list remote root")
			}
			log.WithError(err).WithField("path", dir.rel).Warn(
				"Failed to list remote directory. Treating it as empty")
			warnings = append(warnings, Warning{Kind: WarnUnreadable, Path: dir.rel, Err: err})
			continue
		}

		var subdirs []remoteDir
		for _, entry := range entries {
			name := entry.Name()
			if name == "." || name == ".." {
				continue
			}

			rel := joinRel(dir.rel, name)
			if entry.IsDir() {
				subdirs = append(subdirs, remoteDir{abs: remote.Join(dir.abs, name), rel: rel})
			} else {
				files = append(files, rel)
			}
		}

		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}
	return files, warnings, nil
}
