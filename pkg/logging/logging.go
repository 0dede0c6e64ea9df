// Package logging mirrors log events into a JSON lines file, so that
// unattended runs (cron jobs, watch mode) leave a machine readable record.
package logging

import (
	"io"
	"os"
	goSync "sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/sftpsync/pkg/errors"
	"github.com/sidkik/sftpsync/pkg/version"
)

var (
	// Mocked out for unit testing.
	fs = afero.NewOsFs()

	// source is the command that's running, and is added to every entry.
	source string
)

var fileFormatter = &logrus.JSONFormatter{
	FieldMap: logrus.FieldMap{
		logrus.FieldKeyTime:  "timestamp",
		logrus.FieldKeyLevel: "level",
		logrus.FieldKeyMsg:   "message",
	},
}

// SetSource sets the source that is automatically added to logged entries.
func SetSource(s string) {
	source = s
}

// FileHook appends every log entry at or above its level to a file.
type FileHook struct {
	levels []logrus.Level

	lock goSync.Mutex
	out  io.WriteCloser
}

// NewFileHook opens `path` for appending. Entries below `level` are dropped.
func NewFileHook(path string, level logrus.Level) (*FileHook, error) {
	f, err := fs.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.WithContext(err, "open log file")
	}

	var levels []logrus.Level
	for _, l := range logrus.AllLevels {
		if l <= level {
			levels = append(levels, l)
		}
	}
	return &FileHook{levels: levels, out: f}, nil
}

func (h *FileHook) Levels() []logrus.Level {
	return h.levels
}

func (h *FileHook) Fire(entry *logrus.Entry) error {
	dataCopy := logrus.Fields{
		"source":  source,
		"version": version.Version,
	}
	for k, v := range entry.Data {
		dataCopy[k] = v
	}

	// Copy the entry so that the extra fields don't show up in other hooks
	// or in the terminal output.
	entryCopy := *entry
	entryCopy.Data = dataCopy

	jsonBytes, err := fileFormatter.Format(&entryCopy)
	if err != nil {
		return nil
	}

	h.lock.Lock()
	defer h.lock.Unlock()

	// Never return an error because logrus prints hook errors directly to
	// stderr for every entry.
	h.out.Write(jsonBytes)
	return nil
}

// Close closes the underlying file.
func (h *FileHook) Close() error {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.out.Close()
}
