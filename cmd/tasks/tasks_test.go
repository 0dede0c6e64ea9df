package tasks

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/sftpsync/pkg/errors"
	"github.com/sidkik/sftpsync/pkg/sync"
	"github.com/sidkik/sftpsync/pkg/tasks"
)

func TestListTasks(t *testing.T) {
	var out bytes.Buffer
	stdout = &out

	path := filepath.Join(t.TempDir(), "history.db")
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	openHistory = func(path string) (tasks.Store, error) {
		return tasks.OpenSQLite(path, clock)
	}

	require.NoError(t, Main(path, 0))
	assert.Equal(t, "No recorded syncs.\n", out.String())

	store, err := tasks.OpenSQLite(path, clock)
	require.NoError(t, err)

	ok, err := store.Create("/var/www", "/srv/www")
	require.NoError(t, err)
	require.NoError(t, store.Start(ok.ID))
	clock.Advance(1500 * time.Millisecond)
	require.NoError(t, store.Finish(ok.ID, sync.Stats{Uploaded: 12, Skipped: 30}, nil))

	failed, err := store.Create("/var/docs", "/srv/docs")
	require.NoError(t, err)
	require.NoError(t, store.Finish(failed.ID, sync.Stats{}, errors.New("connection refused")))
	require.NoError(t, store.Close())

	out.Reset()
	require.NoError(t, Main(path, 0))
	printed := out.String()
	assert.Contains(t, printed, ok.ID[:8])
	assert.Contains(t, printed, "1.5s")
	assert.Contains(t, printed, "/srv/docs")
	assert.Contains(t, printed, "12")

	out.Reset()
	require.NoError(t, Main(path, 1))
	assert.NotContains(t, out.String(), "/srv/www")
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "8c3b2e1f", shortID("8c3b2e1f-5a4d-4a7e-9f61-0e2d9c7b1a33"))
	assert.Equal(t, "task-1", shortID("task-1"))
}
