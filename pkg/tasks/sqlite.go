package tasks

import (
	"database/sql"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	jsoniter "github.com/json-iterator/go"

	"github.com/sidkik/sftpsync/pkg/errors"
	"github.com/sidkik/sftpsync/pkg/sync"

	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"
)

// DefaultHistoryPath is where `sftpsync sync --history` records runs.
const DefaultHistoryPath = "~/.sftpsync/history.db"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	local_dir TEXT NOT NULL DEFAULT '',
	remote_dir TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	started_at INTEGER,
	completed_at INTEGER,
	stats TEXT NOT NULL DEFAULT '{}',
	error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at);
`

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SQLiteStore persists tasks in a SQLite database, so that run history
// survives restarts.
type SQLiteStore struct {
	db    *sql.DB
	clock clockwork.Clock
}

// OpenSQLite opens, and if necessary creates, the database at `path`.
func OpenSQLite(path string, clock clockwork.Clock) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := fs.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, errors.WithContext(err, "create database directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.WithContext(err, "open database")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.WithContext(err, "migrate")
	}
	return &SQLiteStore{db: db, clock: clock}, nil
}

func (s *SQLiteStore) Create(localDir, remoteDir string) (Task, error) {
	task := Task{
		ID:        newID(),
		Status:    Pending,
		LocalDir:  localDir,
		RemoteDir: remoteDir,
		CreatedAt: s.now(),
	}

	_, err := s.db.Exec(`INSERT INTO tasks (id, status, local_dir, remote_dir, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		task.ID, string(task.Status), task.LocalDir, task.RemoteDir, task.CreatedAt.UnixNano())
	if err != nil {
		return Task{}, errors.WithContext(err, "insert")
	}
	return task, nil
}

const selectSQL = `SELECT id, status, local_dir, remote_dir, created_at,
	started_at, completed_at, stats, error FROM tasks`

func (s *SQLiteStore) Get(id string) (Task, error) {
	row := s.db.QueryRow(selectSQL+" WHERE id = ?", id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return Task{}, ErrNotFound
	}
	return task, err
}

func (s *SQLiteStore) List() ([]Task, error) {
	rows, err := s.db.Query(selectSQL + " ORDER BY created_at DESC, id ASC")
	if err != nil {
		return nil, errors.WithContext(err, "query")
	}
	defer rows.Close()

	var list []Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, task)
	}
	return list, rows.Err()
}

func (s *SQLiteStore) Start(id string) error {
	return s.transition(id, []Status{Pending},
		"status = ?, started_at = ?", string(Running), s.now().UnixNano())
}

func (s *SQLiteStore) Finish(id string, stats sync.Stats, runErr error) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return errors.WithContext(err, "marshal stats")
	}

	from, to := finishFrom(runErr)
	return s.transition(id, from,
		"status = ?, completed_at = ?, stats = ?, error = ?",
		string(to), s.now().UnixNano(), string(statsJSON), errorString(runErr))
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// transition applies `set` only if the task is still in one of the `from`
// statuses.
func (s *SQLiteStore) transition(id string, from []Status, set string, args ...interface{}) error {
	placeholders := make([]string, len(from))
	for i, status := range from {
		placeholders[i] = "?"
		args = append(args, string(status))
	}
	query := "UPDATE tasks SET " + set + " WHERE status IN (" +
		strings.Join(placeholders, ", ") + ") AND id = ?"
	args = append(args, id)

	res, err := s.db.Exec(query, args...)
	if err != nil {
		return errors.WithContext(err, "update")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.WithContext(err, "rows affected")
	}
	if n == 1 {
		return nil
	}

	task, err := s.Get(id)
	if err != nil {
		return err
	}
	return conflict(id, from, task.Status)
}

func (s *SQLiteStore) now() time.Time {
	return s.clock.Now().UTC()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row scanner) (Task, error) {
	var task Task
	var status, stats string
	var createdAt int64
	var startedAt, completedAt sql.NullInt64
	err := row.Scan(&task.ID, &status, &task.LocalDir, &task.RemoteDir, &createdAt,
		&startedAt, &completedAt, &stats, &task.Error)
	if err != nil {
		return Task{}, err
	}

	task.Status = Status(status)
	task.CreatedAt = time.Unix(0, createdAt).UTC()
	task.StartedAt = fromNullTime(startedAt)
	task.CompletedAt = fromNullTime(completedAt)
	if err := json.Unmarshal([]byte(stats), &task.Stats); err != nil {
		return Task{}, errors.WithContext(err, "unmarshal stats")
	}
	return task, nil
}

func fromNullTime(ts sql.NullInt64) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := time.Unix(0, ts.Int64).UTC()
	return &t
}
