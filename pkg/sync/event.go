package sync

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// EventType identifies what happened to a path during a run.
type EventType string

const (
	// EventUpload means the local file was (or, in a dry run, would be)
	// transferred.
	EventUpload EventType = "upload"

	// EventSkip means the remote copy was considered up to date.
	EventSkip EventType = "skip"

	// EventDelete means a remote-only file was (or would be) removed.
	EventDelete EventType = "delete"

	// EventBackup means the existing remote file was (or would be) renamed
	// to its backup name before being overwritten.
	EventBackup EventType = "backup"

	// EventError means processing the path failed. The run continues.
	EventError EventType = "error"

	// EventWarning means a path was left out of the run, e.g. because it's
	// a broken symlink.
	EventWarning EventType = "warning"
)

// Event describes a single per-path decision. Paths are relative to the sync
// roots and use `/` separators.
type Event struct {
	Type   EventType
	Path   string
	DryRun bool
	Err    error
}

func (e Event) String() string {
	var msg string
	switch e.Type {
	case EventUpload:
		msg = "Upload " + e.Path
	case EventSkip:
		msg = "Skip " + e.Path + " (up to date)"
	case EventDelete:
		msg = "Delete " + e.Path
	case EventBackup:
		msg = fmt.Sprintf("Backup %s to %s", e.Path, e.Path+BackupSuffix)
	case EventError:
		msg = fmt.Sprintf("Error syncing %s: %s", e.Path, e.Err)
	default:
		msg = fmt.Sprintf("%s %s", e.Type, e.Path)
	}
	if e.DryRun && e.Type != EventError {
		msg = "[DRY RUN] " + msg
	}
	return msg
}

// EventHandler receives events as they happen. Handlers are called from the
// goroutine running the sync, one event at a time.
type EventHandler func(Event)

// LogEvents returns an EventHandler that writes every event to `log`.
func LogEvents(log logrus.FieldLogger) EventHandler {
	return func(e Event) {
		entry := log.WithField("path", e.Path)
		switch e.Type {
		case EventSkip:
			entry.Debug(e.String())
		case EventError:
			entry.WithError(e.Err).Errorf("Error syncing %s", e.Path)
		case EventWarning:
			// The enumerators already warn as they find problems.
			entry.WithError(e.Err).Debug("Skipped path")
		default:
			entry.Info(e.String())
		}
	}
}

// Tee returns an EventHandler that forwards each event to every non-nil
// handler in order.
func Tee(handlers ...EventHandler) EventHandler {
	return func(e Event) {
		for _, handler := range handlers {
			if handler != nil {
				handler(e)
			}
		}
	}
}
