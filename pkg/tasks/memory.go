package tasks

import (
	"sort"
	goSync "sync"

	"github.com/jonboulle/clockwork"

	"github.com/sidkik/sftpsync/pkg/sync"
)

// MemoryStore keeps tasks in memory. Tasks are lost when the process exits.
type MemoryStore struct {
	clock clockwork.Clock

	lock  goSync.Mutex
	tasks map[string]Task
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	return &MemoryStore{
		clock: clock,
		tasks: map[string]Task{},
	}
}

func (s *MemoryStore) Create(localDir, remoteDir string) (Task, error) {
	task := Task{
		ID:        newID(),
		Status:    Pending,
		LocalDir:  localDir,
		RemoteDir: remoteDir,
		CreatedAt: s.clock.Now().UTC(),
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.tasks[task.ID] = task
	return task, nil
}

func (s *MemoryStore) Get(id string) (Task, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return task, nil
}

func (s *MemoryStore) List() ([]Task, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	var list []Task
	for _, task := range s.tasks {
		list = append(list, task)
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

func (s *MemoryStore) Start(id string) error {
	return s.transition(id, []Status{Pending}, func(task *Task) {
		now := s.clock.Now().UTC()
		task.Status = Running
		task.StartedAt = &now
	})
}

func (s *MemoryStore) Finish(id string, stats sync.Stats, runErr error) error {
	from, to := finishFrom(runErr)
	return s.transition(id, from, func(task *Task) {
		now := s.clock.Now().UTC()
		task.Status = to
		task.CompletedAt = &now
		task.Stats = stats
		task.Error = errorString(runErr)
	})
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) transition(id string, from []Status, update func(*Task)) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}

	for _, status := range from {
		if task.Status == status {
			update(&task)
			s.tasks[id] = task
			return nil
		}
	}
	return conflict(id, from, task.Status)
}
