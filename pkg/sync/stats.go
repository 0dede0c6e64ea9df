package sync

import (
	"fmt"
	"time"
)

// Stats counts what a run did. Under a dry run, the counters describe what a
// live run would have done.
type Stats struct {
	Uploaded int `json:"uploaded"`
	Skipped  int `json:"skipped"`
	Deleted  int `json:"deleted"`
	Errors   int `json:"errors"`
}

func (s Stats) String() string {
	return fmt.Sprintf("Uploaded %d files, skipped %d, deleted %d, with %d errors.",
		s.Uploaded, s.Skipped, s.Deleted, s.Errors)
}

// WarningKind classifies paths that enumeration left out.
type WarningKind string

const (
	WarnUnreadable   WarningKind = "unreadable"
	WarnSymlinkCycle WarningKind = "symlink cycle"
	WarnOutsideRoot  WarningKind = "outside root"
	WarnBrokenLink   WarningKind = "broken link"
)

// Warning is a non-fatal problem found while enumerating a tree. The path is
// relative to the tree's root.
type Warning struct {
	Kind WarningKind
	Path string
	Err  error
}

func (w Warning) String() string {
	if w.Err != nil {
		return fmt.Sprintf("%s: %s (%s)", w.Kind, w.Path, w.Err)
	}
	return fmt.Sprintf("%s: %s", w.Kind, w.Path)
}

// Report is the result of a completed run.
type Report struct {
	Stats

	// Candidates is the number of local files that passed the include and
	// exclude patterns.
	Candidates int

	// Warnings from both local and remote enumeration.
	Warnings []Warning

	DryRun bool

	// DeletionAborted is set when deletion was enabled but the remote tree
	// couldn't be listed.
	DeletionAborted bool

	StartedAt time.Time
	Duration  time.Duration
}

// Succeeded returns whether every file was processed without error.
func (r Report) Succeeded() bool {
	return r.Errors == 0 && !r.DeletionAborted
}
