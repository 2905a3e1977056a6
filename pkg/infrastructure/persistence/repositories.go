// Package persistence provides the SQLite-backed stores: deep work tasks
// and projects, plus per-session conversation history.
package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pocketpaw/pocketpaw/pkg/agents"
	"github.com/pocketpaw/pocketpaw/pkg/deepwork"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	created_at   INTEGER NOT NULL,
	completed_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS tasks (
	id           TEXT PRIMARY KEY,
	project_id   TEXT NOT NULL,
	title        TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	priority     TEXT NOT NULL,
	task_type    TEXT NOT NULL,
	tags         TEXT NOT NULL DEFAULT '[]',
	blocked_by   TEXT NOT NULL DEFAULT '[]',
	created_at   INTEGER NOT NULL,
	completed_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);

CREATE TABLE IF NOT EXISTS history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_key TEXT NOT NULL,
	role        TEXT NOT NULL,
	content     TEXT NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_session ON history(session_key, id);
`

// ---------------------------------------------------------------------------
// SQLite store
// ---------------------------------------------------------------------------

// SQLiteStore persists tasks, projects, and conversation history in one
// SQLite database file. It implements deepwork.TaskStore and
// agents.HistoryStore.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for an ephemeral store.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent completions.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// ---------------------------------------------------------------------------
// Task store
// ---------------------------------------------------------------------------

// Task loads one task by id.
func (s *SQLiteStore) Task(id string) (*deepwork.Task, error) {
	row := s.db.QueryRow(`SELECT id, project_id, title, description, status,
		priority, task_type, tags, blocked_by, created_at, completed_at
		FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, deepwork.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", id, err)
	}
	return task, nil
}

// ProjectTasks loads every task in a project, ordered by id.
func (s *SQLiteStore) ProjectTasks(projectID string) ([]*deepwork.Task, error) {
	rows, err := s.db.Query(`SELECT id, project_id, title, description, status,
		priority, task_type, tags, blocked_by, created_at, completed_at
		FROM tasks WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("load tasks for project %s: %w", projectID, err)
	}
	defer rows.Close()

	var tasks []*deepwork.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// SaveTask inserts or replaces a task.
func (s *SQLiteStore) SaveTask(task *deepwork.Task) error {
	tags, err := json.Marshal(emptyIfNil(task.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	blockedBy, err := json.Marshal(emptyIfNil(task.BlockedBy))
	if err != nil {
		return fmt.Errorf("marshal blocked_by: %w", err)
	}

	createdAt := task.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.Exec(`INSERT OR REPLACE INTO tasks
		(id, project_id, title, description, status, priority, task_type,
		 tags, blocked_by, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.ProjectID, task.Title, task.Description,
		string(task.Status), string(task.Priority), string(task.TaskType),
		string(tags), string(blockedBy),
		createdAt.Unix(), unixOrZero(task.CompletedAt))
	if err != nil {
		return fmt.Errorf("save task %s: %w", task.ID, err)
	}
	return nil
}

// Project loads one project by id.
func (s *SQLiteStore) Project(id string) (*deepwork.Project, error) {
	var p deepwork.Project
	var status string
	var createdAt, completedAt int64
	err := s.db.QueryRow(`SELECT id, title, description, status, created_at, completed_at
		FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.Title, &p.Description, &status, &createdAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, deepwork.ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", id, err)
	}
	p.Status = deepwork.ProjectStatus(status)
	p.CreatedAt = time.Unix(createdAt, 0)
	if completedAt > 0 {
		p.CompletedAt = time.Unix(completedAt, 0)
	}
	return &p, nil
}

// SaveProject inserts or replaces a project.
func (s *SQLiteStore) SaveProject(project *deepwork.Project) error {
	createdAt := project.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO projects
		(id, title, description, status, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		project.ID, project.Title, project.Description,
		string(project.Status), createdAt.Unix(), unixOrZero(project.CompletedAt))
	if err != nil {
		return fmt.Errorf("save project %s: %w", project.ID, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Conversation history
// ---------------------------------------------------------------------------

// History returns the most recent turns for a session in chronological
// order, capped at limit.
func (s *SQLiteStore) History(sessionKey string, limit int) ([]agents.HistoryMessage, error) {
	rows, err := s.db.Query(`SELECT role, content FROM (
			SELECT id, role, content FROM history
			WHERE session_key = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id`, sessionKey, limit)
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", sessionKey, err)
	}
	defer rows.Close()

	var msgs []agents.HistoryMessage
	for rows.Next() {
		var m agents.HistoryMessage
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// AppendTurn records one conversation turn.
func (s *SQLiteStore) AppendTurn(sessionKey, role, content string) error {
	_, err := s.db.Exec(`INSERT INTO history (session_key, role, content, created_at)
		VALUES (?, ?, ?, ?)`, sessionKey, role, content, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("append turn %s: %w", sessionKey, err)
	}
	return nil
}

// ClearHistory removes every turn for a session.
func (s *SQLiteStore) ClearHistory(sessionKey string) error {
	_, err := s.db.Exec(`DELETE FROM history WHERE session_key = ?`, sessionKey)
	if err != nil {
		return fmt.Errorf("clear history %s: %w", sessionKey, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*deepwork.Task, error) {
	var t deepwork.Task
	var status, priority, taskType, tags, blockedBy string
	var createdAt, completedAt int64

	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &status,
		&priority, &taskType, &tags, &blockedBy, &createdAt, &completedAt)
	if err != nil {
		return nil, err
	}
	t.Status = deepwork.TaskStatus(status)
	t.Priority = deepwork.Priority(priority)
	t.TaskType = deepwork.TaskType(taskType)
	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if err := json.Unmarshal([]byte(blockedBy), &t.BlockedBy); err != nil {
		return nil, fmt.Errorf("unmarshal blocked_by: %w", err)
	}
	t.CreatedAt = time.Unix(createdAt, 0)
	if completedAt > 0 {
		t.CompletedAt = time.Unix(completedAt, 0)
	}
	return &t, nil
}

func emptyIfNil(xs []string) []string {
	if xs == nil {
		return []string{}
	}
	return xs
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

var (
	_ deepwork.TaskStore  = (*SQLiteStore)(nil)
	_ agents.HistoryStore = (*SQLiteStore)(nil)
)
