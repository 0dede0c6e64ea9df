// Package remotetest checks that a remote.FS implementation behaves the way
// the sync engine expects.
package remotetest

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/sftpsync/pkg/remote"
)

// Factory returns a fresh FS along with an existing, empty directory on it
// that the tests may use.
type Factory func(t *testing.T) (remote.FS, string)

// TestFS runs the conformance suite against the FS returned by `newFS`.
func TestFS(t *testing.T, newFS Factory) {
	t.Run("StatMissing", func(t *testing.T) {
		fs, root := newFS(t)
		_, err := fs.Stat(path.Join(root, "missing"))
		assert.True(t, remote.IsNotExist(err), "unexpected error: %v", err)
	})

	t.Run("Mkdir", func(t *testing.T) {
		fs, root := newFS(t)
		dir := path.Join(root, "sub")
		require.NoError(t, fs.Mkdir(dir))

		fi, err := fs.Stat(dir)
		require.NoError(t, err)
		assert.True(t, fi.IsDir())

		assert.Error(t, fs.Mkdir(dir), "creating an existing directory should fail")
		assert.Error(t, fs.Mkdir(path.Join(root, "a", "b")),
			"creating a directory without its parent should fail")
	})

	t.Run("Put", func(t *testing.T) {
		fs, root := newFS(t)
		src := writeLocal(t, "hello world")
		dst := path.Join(root, "hello.txt")

		require.NoError(t, fs.Put(src, dst))
		fi, err := fs.Stat(dst)
		require.NoError(t, err)
		assert.Equal(t, int64(len("hello world")), fi.Size())
		assert.False(t, fi.IsDir())

		// Overwriting with shorter contents truncates.
		require.NoError(t, fs.Put(writeLocal(t, "bye"), dst))
		fi, err = fs.Stat(dst)
		require.NoError(t, err)
		assert.Equal(t, int64(3), fi.Size())

		assert.Error(t, fs.Put(src, path.Join(root, "nodir", "hello.txt")))
		assert.Error(t, fs.Put(filepath.Join(t.TempDir(), "missing"), dst))
	})

	t.Run("Chmod", func(t *testing.T) {
		fs, root := newFS(t)
		dst := path.Join(root, "script.sh")
		require.NoError(t, fs.Put(writeLocal(t, "#!/bin/sh"), dst))

		require.NoError(t, fs.Chmod(dst, 0750))
		fi, err := fs.Stat(dst)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0750), fi.Mode().Perm())
	})

	t.Run("RenameAndRemove", func(t *testing.T) {
		fs, root := newFS(t)
		orig := path.Join(root, "index.html")
		moved := orig + ".backup"
		require.NoError(t, fs.Put(writeLocal(t, "<html>"), orig))

		require.NoError(t, fs.Rename(orig, moved))
		_, err := fs.Stat(orig)
		assert.True(t, remote.IsNotExist(err))
		_, err = fs.Stat(moved)
		assert.NoError(t, err)

		require.NoError(t, fs.Remove(moved))
		_, err = fs.Stat(moved)
		assert.True(t, remote.IsNotExist(err))

		err = fs.Remove(moved)
		assert.True(t, remote.IsNotExist(err), "unexpected error: %v", err)
	})

	t.Run("ReadDir", func(t *testing.T) {
		fs, root := newFS(t)
		require.NoError(t, fs.Mkdir(path.Join(root, "css")))
		require.NoError(t, fs.Put(writeLocal(t, "a"), path.Join(root, "a.txt")))
		require.NoError(t, fs.Put(writeLocal(t, "b"), path.Join(root, "css", "b.css")))

		entries, err := fs.ReadDir(root)
		require.NoError(t, err)

		var names []string
		dirs := map[string]bool{}
		for _, entry := range entries {
			names = append(names, entry.Name())
			dirs[entry.Name()] = entry.IsDir()
		}
		sort.Strings(names)
		assert.Equal(t, []string{"a.txt", "css"}, names)
		assert.Equal(t, map[string]bool{"a.txt": false, "css": true}, dirs)

		_, err = fs.ReadDir(path.Join(root, "missing"))
		assert.Error(t, err)
	})
}

func writeLocal(t *testing.T, contents string) string {
	p := filepath.Join(t.TempDir(), "src")
	require.NoError(t, os.WriteFile(p, []byte(contents), 0644))
	return p
}
