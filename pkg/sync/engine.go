package sync

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sidkik/sftpsync/pkg/errors"
	"github.com/sidkik/sftpsync/pkg/remote"
)

// BackupSuffix is appended to a remote path to get the name its previous
// contents are moved to before an overwrite. Only one backup is kept per
// path.
const BackupSuffix = ".backup"

// FileRecord is the metadata the diff looks at.
type FileRecord struct {
	Path    string
	Size    int64
	ModTime time.Time
	Mode    os.FileMode
	IsDir   bool
}

func recordFromInfo(rel string, fi os.FileInfo) FileRecord {
	return FileRecord{
		Path:    rel,
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
		Mode:    fi.Mode(),
		IsDir:   fi.IsDir(),
	}
}

// Decision is the action taken for a single path.
type Decision string

const (
	Upload       Decision = "upload"
	SkipUpToDate Decision = "skip"
	Delete       Decision = "delete"
)

// Decide compares a local file with its remote counterpart, which is nil if
// the remote file doesn't exist. The remote copy is considered current when
// it's at least as new as the local file and has the same size. Times are
// compared at whole-second precision since that's all SFTP reports.
func Decide(local FileRecord, remote *FileRecord) Decision {
	if remote == nil {
		return Upload
	}

	localTime := local.ModTime.Truncate(time.Second)
	remoteTime := remote.ModTime.Truncate(time.Second)
	if !remoteTime.Before(localTime) && remote.Size == local.Size {
		return SkipUpToDate
	}
	return Upload
}

// RemoteOnly returns the remote files that have no local counterpart in
// `candidates`, in the order they were listed. If `keepBackups` is set, the
// backup files of candidates aren't considered remote-only.
func RemoteOnly(remoteFiles, candidates []string, keepBackups bool) []string {
	keep := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		keep[candidate] = struct{}{}
		if keepBackups {
			keep[candidate+BackupSuffix] = struct{}{}
		}
	}

	var extraneous []string
	for _, rel := range remoteFiles {
		if _, ok := keep[rel]; !ok {
			extraneous = append(extraneous, rel)
		}
	}
	return extraneous
}

func (r *run) syncOne(rel string) error {
	localPath := filepath.Join(r.LocalDir, filepath.FromSlash(rel))
	remotePath := remote.Join(r.RemoteDir, rel)

	localInfo, err := fs.Stat(localPath)
	if err != nil {
		return errors.WithContext(err, "stat local file")
	}
	local := recordFromInfo(rel, localInfo)

	var existing *FileRecord
	remoteInfo, err := r.remote.Stat(remotePath)
	switch {
	case err == nil:
		record := recordFromInfo(rel, remoteInfo)
		existing = &record
	case remote.IsNotExist(err):
	default:
		return errors.WithContext(err, "stat remote file")
	}

	if existing != nil && existing.IsDir {
		return fmt.Errorf("remote path %q is a directory", remotePath)
	}

	if Decide(local, existing) == SkipUpToDate {
		r.stats.Skipped++
		r.emit(Event{Type: EventSkip, Path: rel, DryRun: r.DryRun})
		return nil
	}

	if r.BackupRemote && existing != nil {
		if err := r.backup(rel, remotePath); err != nil {
			return errors.WithContext(err, "back up remote file")
		}
	}

	if !r.DryRun {
		if err := r.ensureRemoteDir(remote.Dir(remotePath)); err != nil {
			return errors.WithContext(err, "create remote directory")
		}

		if err := r.remote.Put(localPath, remotePath); err != nil {
			return errors.WithContext(err, "upload")
		}

		if r.PreservePermissions {
			if err := r.remote.Chmod(remotePath, local.Mode.Perm()); err != nil {
				return errors.WithContext(err, "set permissions")
			}
		}
	}

	r.stats.Uploaded++
	r.emit(Event{Type: EventUpload, Path: rel, DryRun: r.DryRun})
	return nil
}

// backup moves the current remote file out of the way, replacing any older
// backup.
func (r *run) backup(rel, remotePath string) error {
	backupPath := remotePath + BackupSuffix
	r.emit(Event{Type: EventBackup, Path: rel, DryRun: r.DryRun})
	if r.DryRun {
		return nil
	}

	if err := r.remote.Remove(backupPath); err != nil && !remote.IsNotExist(err) {
		return errors.WithContext(err, "remove old backup")
	}

	if err := r.remote.Rename(remotePath, backupPath); err != nil {
		return errors.WithContext(err, "rename")
	}
	return nil
}

// ensureRemoteDir creates `dir` and any missing ancestors. It walks upwards
// only until it finds a directory that exists, and remembers what it has
// seen so that siblings don't cause repeated stats.
func (r *run) ensureRemoteDir(dir string) error {
	var missing []string
	for !isTopDir(dir) && !r.dirs[dir] {
		fi, err := r.remote.Stat(dir)
		if err == nil {
			if !fi.IsDir() {
				return fmt.Errorf("remote path %q is not a directory", dir)
			}
			r.dirs[dir] = true
			break
		}
		if !remote.IsNotExist(err) {
			return errors.WithContext(err, fmt.Sprintf("stat %s", dir))
		}

		missing = append(missing, dir)
		dir = remote.Dir(dir)
	}

	for i := len(missing) - 1; i >= 0; i-- {
		dir := missing[i]
		if r.DryRun {
			r.log.WithField("remotePath", dir).Info("[DRY RUN] Would create remote directory")
		} else {
			// Some servers don't distinguish "already exists" from other
			// failures, so check whether someone else created it.
			if err := r.remote.Mkdir(dir); err != nil && !r.isRemoteDir(dir) {
				return errors.WithContext(err, fmt.Sprintf("mkdir %s", dir))
			}
			r.log.WithField("remotePath", dir).Debug("Created remote directory")
		}
		r.dirs[dir] = true
	}
	return nil
}

func (r *run) isRemoteDir(dir string) bool {
	fi, err := r.remote.Stat(dir)
	return err == nil && fi.IsDir()
}

func isTopDir(dir string) bool {
	return dir == "" || dir == "." || dir == "/"
}
