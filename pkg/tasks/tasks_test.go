package tasks

import (
	"fmt"
	"path/filepath"
	goSync "sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/sftpsync/pkg/errors"
	"github.com/sidkik/sftpsync/pkg/sync"
)

var start = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type storeFactory func(t *testing.T, clock clockwork.Clock) Store

func storeFactories() map[string]storeFactory {
	return map[string]storeFactory{
		"Memory": func(t *testing.T, clock clockwork.Clock) Store {
			return NewMemoryStore(clock)
		},
		"SQLite": func(t *testing.T, clock clockwork.Clock) Store {
			store, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "history.db"), clock)
			require.NoError(t, err)
			t.Cleanup(func() { store.Close() })
			return store
		},
	}
}

func withSequentialIDs(t *testing.T) {
	origNewID := newID
	var i int
	newID = func() string {
		i++
		return fmt.Sprintf("task-%d", i)
	}
	t.Cleanup(func() { newID = origNewID })
}

func TestLifecycle(t *testing.T) {
	for name, factory := range storeFactories() {
		factory := factory
		t.Run(name, func(t *testing.T) {
			withSequentialIDs(t)
			clock := clockwork.NewFakeClockAt(start)
			store := factory(t, clock)

			task, err := store.Create("/src", "/dst")
			require.NoError(t, err)
			assert.Equal(t, Task{
				ID:        "task-1",
				Status:    Pending,
				LocalDir:  "/src",
				RemoteDir: "/dst",
				CreatedAt: start,
			}, task)

			clock.Advance(time.Second)
			require.NoError(t, store.Start(task.ID))

			clock.Advance(time.Second)
			stats := sync.Stats{Uploaded: 3, Skipped: 1}
			require.NoError(t, store.Finish(task.ID, stats, nil))

			started := start.Add(time.Second)
			completed := start.Add(2 * time.Second)
			got, err := store.Get(task.ID)
			require.NoError(t, err)
			assert.Equal(t, Task{
				ID:          "task-1",
				Status:      Completed,
				LocalDir:    "/src",
				RemoteDir:   "/dst",
				CreatedAt:   start,
				StartedAt:   &started,
				CompletedAt: &completed,
				Stats:       stats,
			}, got)
			assert.True(t, got.Status.Terminal())
		})
	}
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		name string

		// prepare moves a freshly created task into the state under test.
		prepare func(Store, string) error
		apply   func(Store, string) error

		expStatus Status
		expErr    error
	}{
		{
			name:      "Pending tasks can fail",
			apply:     func(s Store, id string) error { return s.Finish(id, sync.Stats{}, errors.New("dial")) },
			expStatus: Failed,
		},
		{
			name:      "Pending tasks can't complete",
			apply:     func(s Store, id string) error { return s.Finish(id, sync.Stats{}, nil) },
			expStatus: Pending,
			expErr:    ErrConflict,
		},
		{
			name:      "Running tasks can fail",
			prepare:   func(s Store, id string) error { return s.Start(id) },
			apply:     func(s Store, id string) error { return s.Finish(id, sync.Stats{}, errors.New("boom")) },
			expStatus: Failed,
		},
		{
			name:      "Running tasks can't start again",
			prepare:   func(s Store, id string) error { return s.Start(id) },
			apply:     func(s Store, id string) error { return s.Start(id) },
			expStatus: Running,
			expErr:    ErrConflict,
		},
		{
			name: "Completed tasks are final",
			prepare: func(s Store, id string) error {
				if err := s.Start(id); err != nil {
					return err
				}
				return s.Finish(id, sync.Stats{}, nil)
			},
			apply:     func(s Store, id string) error { return s.Finish(id, sync.Stats{}, errors.New("late")) },
			expStatus: Completed,
			expErr:    ErrConflict,
		},
		{
			name:      "Unknown task",
			apply:     func(s Store, id string) error { return s.Start("missing") },
			expStatus: Pending,
			expErr:    ErrNotFound,
		},
	}

	for name, factory := range storeFactories() {
		factory := factory
		for _, test := range tests {
			test := test
			t.Run(name+"/"+test.name, func(t *testing.T) {
				withSequentialIDs(t)
				store := factory(t, clockwork.NewFakeClockAt(start))

				task, err := store.Create("/src", "/dst")
				require.NoError(t, err)
				if test.prepare != nil {
					require.NoError(t, test.prepare(store, task.ID))
				}

				err = test.apply(store, task.ID)
				if test.expErr == nil {
					assert.NoError(t, err)
				} else {
					assert.True(t, errors.Is(err, test.expErr), "unexpected error: %v", err)
				}

				got, err := store.Get(task.ID)
				require.NoError(t, err)
				assert.Equal(t, test.expStatus, got.Status)
			})
		}
	}
}

func TestFailureMessage(t *testing.T) {
	for name, factory := range storeFactories() {
		factory := factory
		t.Run(name, func(t *testing.T) {
			withSequentialIDs(t)
			store := factory(t, clockwork.NewFakeClockAt(start))

			task, err := store.Create("/src", "/dst")
			require.NoError(t, err)

			runErr := errors.WithContext(errors.NewFriendlyError("Remote path \"/dst\" is not a directory."), "prepare")
			require.NoError(t, store.Finish(task.ID, sync.Stats{Errors: 1}, runErr))

			got, err := store.Get(task.ID)
			require.NoError(t, err)
			assert.Equal(t, Failed, got.Status)
			assert.Equal(t, `Remote path "/dst" is not a directory.`, got.Error)
			assert.Equal(t, sync.Stats{Errors: 1}, got.Stats)
			assert.Nil(t, got.StartedAt)
		})
	}
}

func TestList(t *testing.T) {
	for name, factory := range storeFactories() {
		factory := factory
		t.Run(name, func(t *testing.T) {
			withSequentialIDs(t)
			clock := clockwork.NewFakeClockAt(start)
			store := factory(t, clock)

			list, err := store.List()
			require.NoError(t, err)
			assert.Empty(t, list)

			for i := 0; i < 3; i++ {
				_, err := store.Create("/src", "/dst")
				require.NoError(t, err)
				clock.Advance(time.Minute)
			}

			list, err = store.List()
			require.NoError(t, err)

			var ids []string
			for _, task := range list {
				ids = append(ids, task.ID)
			}
			assert.Equal(t, []string{"task-3", "task-2", "task-1"}, ids)

			_, err = store.Get("missing")
			assert.Equal(t, ErrNotFound, err)
		})
	}
}

// Only one of many concurrent callers may win a transition.
func TestConcurrentStart(t *testing.T) {
	for name, factory := range storeFactories() {
		factory := factory
		t.Run(name, func(t *testing.T) {
			withSequentialIDs(t)
			store := factory(t, clockwork.NewFakeClockAt(start))

			task, err := store.Create("/src", "/dst")
			require.NoError(t, err)

			var wg goSync.WaitGroup
			results := make(chan error, 10)
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					results <- store.Start(task.ID)
				}()
			}
			wg.Wait()
			close(results)

			var succeeded int
			for err := range results {
				if err == nil {
					succeeded++
				} else {
					assert.True(t, errors.Is(err, ErrConflict))
				}
			}
			assert.Equal(t, 1, succeeded)
		})
	}
}

func TestDefaultIDs(t *testing.T) {
	store := NewMemoryStore(clockwork.NewRealClock())
	a, err := store.Create("", "")
	require.NoError(t, err)
	b, err := store.Create("", "")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, a.ID, 36)
}
