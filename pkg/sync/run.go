package sync

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/sidkik/sftpsync/pkg/errors"
	"github.com/sidkik/sftpsync/pkg/remote"
)

// Mocked out for unit testing.
var clock = clockwork.NewRealClock()

// Options controls a single run. It doesn't change while the run is in
// progress.
type Options struct {
	LocalDir  string
	RemoteDir string
	Include   []string
	Exclude   []string

	// DeleteRemote removes remote files that have no local counterpart
	// after all uploads are done.
	DeleteRemote bool

	// PreservePermissions copies the local permission bits to each uploaded
	// file.
	PreservePermissions bool

	// DryRun computes and reports every decision without changing anything
	// on the remote.
	DryRun bool

	FollowSymlinks bool

	// BackupRemote renames an existing remote file to `<path>.backup` before
	// overwriting it.
	BackupRemote bool

	// Verbose logs the full list of files selected for syncing.
	Verbose bool
}

// Syncer mirrors a local directory onto a remote filesystem.
type Syncer struct {
	Options

	Remote remote.FS

	// Log defaults to the standard logrus logger.
	Log logrus.FieldLogger

	// Events receives a notification for every per-file decision. If nil,
	// events are written to Log.
	Events EventHandler
}

// run holds the state of a single invocation of Syncer.Run.
type run struct {
	Options
	remote   remote.FS
	log      logrus.FieldLogger
	emit     EventHandler
	stats    Stats
	warnings []Warning

	// dirs caches remote directories known to exist, or that would have
	// been created in a dry run.
	dirs map[string]bool

	deletionAborted bool

	// rootPending is set when the remote root didn't exist and a dry run
	// only pretended to create it.
	rootPending bool
}

// Run performs a single sync. Errors affecting individual files are counted
// in the report rather than returned. An error is only returned if the
// roots can't be accessed, or if `ctx` is cancelled. In that case the report
// covers the files processed so far, and the deletion pass is skipped.
func (s Syncer) Run(ctx context.Context) (Report, error) {
	if s.Remote == nil {
		return Report{}, errors.New("no remote filesystem")
	}

	log := s.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	emit := s.Events
	if emit == nil {
		emit = LogEvents(log)
	}

	r := &run{
		Options: s.Options,
		remote:  s.Remote,
		log:     log,
		emit:    emit,
		dirs:    map[string]bool{},
	}

	startedAt := clock.Now()
	finish := func() Report {
		return Report{
			Stats:           r.stats,
			Warnings:        r.warnings,
			DryRun:          r.DryRun,
			DeletionAborted: r.deletionAborted,
			StartedAt:       startedAt,
			Duration:        clock.Since(startedAt),
		}
	}

	if s.DryRun {
		log.Info("DRY RUN MODE - No changes will be made")
	}

	if err := r.ensureRoot(); err != nil {
		return finish(), err
	}

	matcher := NewMatcher(s.Include, s.Exclude)
	localFiles, warnings, err := EnumerateLocal(s.LocalDir, s.FollowSymlinks, matcher, log)
	if err != nil {
		return finish(), errors.WithContext(err, "list local files")
	}
	r.addWarnings(warnings)
	log.Infof("Found %d files to process", len(localFiles))

	var candidates []string
	for _, rel := range localFiles {
		if matcher.ShouldInclude(rel) {
			candidates = append(candidates, rel)
		}
	}
	log.Infof("After filtering: %d files to sync", len(candidates))

	if s.Verbose {
		log.Info("Files to sync:")
		for _, rel := range candidates {
			log.Infof("  %s", rel)
		}
	}

	for _, rel := range candidates {
		if err := ctx.Err(); err != nil {
			report := finish()
			report.Candidates = len(candidates)
			return report, errors.WithContext(err, "sync interrupted")
		}

		if err := r.syncOne(rel); err != nil {
			r.stats.Errors++
			r.emit(Event{Type: EventError, Path: rel, DryRun: r.DryRun, Err: err})
		}
	}

	if s.DeleteRemote {
		if err := r.deleteExtraneous(ctx, candidates); err != nil {
			report := finish()
			report.Candidates = len(candidates)
			return report, errors.WithContext(err, "sync interrupted")
		}
	}

	report := finish()
	report.Candidates = len(candidates)
	log.WithFields(logrus.Fields{
		"uploaded": report.Uploaded,
		"skipped":  report.Skipped,
		"deleted":  report.Deleted,
		"errors":   report.Errors,
	}).Info("Sync complete")
	return report, nil
}

// ensureRoot makes sure the remote root is a directory, creating it if
// necessary. Failures here are fatal to the run.
func (r *run) ensureRoot() error {
	root := remote.Join(r.RemoteDir, "")
	fi, err := r.remote.Stat(root)
	switch {
	case err == nil:
		if !fi.IsDir() {
			return errors.NewFriendlyError("Remote path %q is not a directory.", root)
		}
		r.dirs[root] = true
		return nil
	case remote.IsNotExist(err):
		r.rootPending = r.DryRun
		return errors.WithContext(r.ensureRemoteDir(root), "create remote root")
	default:
		return errors.WithContext(err, "access remote root")
	}
}

// deleteExtraneous removes remote files that aren't in the candidate set. It
// only returns an error if `ctx` is cancelled. A remote listing failure
// aborts just this pass.
func (r *run) deleteExtraneous(ctx context.Context, candidates []string) error {
	if r.rootPending {
		// Nothing could be extraneous in a directory that would be new.
		return nil
	}

	remoteFiles, warnings, err := EnumerateRemote(r.remote, r.RemoteDir, r.log)
	r.addWarnings(warnings)
	if err != nil {
		r.log.WithError(err).Error("Failed to list remote files. Skipping deletion")
		r.deletionAborted = true
		r.stats.Errors++
		r.emit(Event{Type: EventError, Path: ".", DryRun: r.DryRun, Err: err})
		return nil
	}

	for _, rel := range RemoteOnly(remoteFiles, candidates, r.BackupRemote) {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !r.DryRun {
			if err := r.remote.Remove(remote.Join(r.RemoteDir, rel)); err != nil {
				r.stats.Errors++
				r.emit(Event{Type: EventError, Path: rel, Err: errors.WithContext(err, "remove")})
				continue
			}
		}
		r.stats.Deleted++
		r.emit(Event{Type: EventDelete, Path: rel, DryRun: r.DryRun})
	}
	return nil
}

func (r *run) addWarnings(warnings []Warning) {
	for _, w := range warnings {
		r.warnings = append(r.warnings, w)
		r.emit(Event{Type: EventWarning, Path: w.Path, Err: warningErr(w)})
	}
}

func warningErr(w Warning) error {
	if w.Err != nil {
		return errors.WithContext(w.Err, string(w.Kind))
	}
	return errors.New(string(w.Kind))
}
