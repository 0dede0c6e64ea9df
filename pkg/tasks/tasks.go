// Package tasks tracks sync runs started through the API or recorded by
// `sftpsync sync --history`.
package tasks

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sidkik/sftpsync/pkg/errors"
	"github.com/sidkik/sftpsync/pkg/sync"
)

// Status is the lifecycle state of a task.
type Status string

const (
	Pending   Status = "pending"
	Running   Status = "running"
	Completed Status = "completed"
	Failed    Status = "failed"
)

// Terminal returns whether the status is final.
func (s Status) Terminal() bool {
	return s == Completed || s == Failed
}

// Task is a single sync run.
type Task struct {
	ID          string     `json:"task_id"`
	Status      Status     `json:"status"`
	LocalDir    string     `json:"local_dir,omitempty"`
	RemoteDir   string     `json:"remote_dir,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Stats       sync.Stats `json:"stats"`
	Error       string     `json:"error,omitempty"`
}

var (
	// ErrNotFound is returned when no task has the requested ID.
	ErrNotFound = errors.New("task not found")

	// ErrConflict is returned when a transition is attempted from a status
	// the task is no longer in.
	ErrConflict = errors.New("task status changed concurrently")
)

// Store persists tasks. All status changes are compare-and-swap, so two
// callers can never both move a task out of the same state.
type Store interface {
	// Create registers a new pending task.
	Create(localDir, remoteDir string) (Task, error)

	Get(id string) (Task, error)

	// List returns all tasks, most recently created first.
	List() ([]Task, error)

	// Start moves a task from pending to running.
	Start(id string) error

	// Finish moves a task to completed, or to failed if `runErr` is non-nil.
	// Tasks that never started may only fail.
	Finish(id string, stats sync.Stats, runErr error) error

	Close() error
}

// Mocked out for unit testing.
var newID = func() string {
	return uuid.New().String()
}

// finishFrom returns the statuses a task may be finished from, and the status
// it ends in.
func finishFrom(runErr error) ([]Status, Status) {
	if runErr != nil {
		return []Status{Running, Pending}, Failed
	}
	return []Status{Running}, Completed
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return errors.GetPrintableMessage(err)
}

func conflict(id string, from []Status, actual Status) error {
	return errors.WithContext(ErrConflict,
		fmt.Sprintf("task %s is %s, expected one of %v", id, actual, from))
}
