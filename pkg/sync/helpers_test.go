package sync

import (
	"os"
	"time"

	"github.com/spf13/afero"

	"github.com/sidkik/sftpsync/pkg/remote"
)

type fakeInfo struct {
	name    string
	dir     bool
	size    int64
	mode    os.FileMode
	modTime time.Time
}

func (fi fakeInfo) Name() string       { return fi.name }
func (fi fakeInfo) Size() int64        { return fi.size }
func (fi fakeInfo) ModTime() time.Time { return fi.modTime }
func (fi fakeInfo) IsDir() bool        { return fi.dir }
func (fi fakeInfo) Sys() interface{}   { return nil }

func (fi fakeInfo) Mode() os.FileMode {
	if fi.dir {
		return fi.mode | os.ModeDir
	}
	return fi.mode
}

func dirInfo(name string) os.FileInfo {
	return fakeInfo{name: name, dir: true, mode: 0755}
}

func fileInfo(name string, size int64, modTime time.Time) os.FileInfo {
	return fakeInfo{name: name, size: size, mode: 0644, modTime: modTime}
}

// recordingFS wraps a remote.FS, recording mutating calls and optionally
// injecting failures.
type recordingFS struct {
	remote.FS

	calls       []string
	failPut     map[string]error
	failRemove  map[string]error
	failReadDir error
}

func (f *recordingFS) Mkdir(p string) error {
	f.calls = append(f.calls, "mkdir "+p)
	return f.FS.Mkdir(p)
}

func (f *recordingFS) Put(localPath, remotePath string) error {
	f.calls = append(f.calls, "put "+remotePath)
	if err, ok := f.failPut[remotePath]; ok {
		return err
	}
	return f.FS.Put(localPath, remotePath)
}

func (f *recordingFS) Chmod(p string, mode os.FileMode) error {
	f.calls = append(f.calls, "chmod "+p)
	return f.FS.Chmod(p, mode)
}

func (f *recordingFS) Rename(oldPath, newPath string) error {
	f.calls = append(f.calls, "rename "+oldPath+" "+newPath)
	return f.FS.Rename(oldPath, newPath)
}

func (f *recordingFS) Remove(p string) error {
	f.calls = append(f.calls, "remove "+p)
	if err, ok := f.failRemove[p]; ok {
		return err
	}
	return f.FS.Remove(p)
}

func (f *recordingFS) ReadDir(p string) ([]os.FileInfo, error) {
	if f.failReadDir != nil {
		return nil, f.failReadDir
	}
	return f.FS.ReadDir(p)
}

func writeFiles(fs afero.Fs, files map[string]string) {
	for path, contents := range files {
		if err := afero.WriteFile(fs, path, []byte(contents), 0644); err != nil {
			panic(err)
		}
	}
}

func readFile(fs afero.Fs, path string) string {
	contents, err := afero.ReadFile(fs, path)
	if err != nil {
		return ""
	}
	return string(contents)
}
