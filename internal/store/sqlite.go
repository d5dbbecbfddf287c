package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	task_id        TEXT PRIMARY KEY,
	status         TEXT NOT NULL,
	progress       INTEGER NOT NULL DEFAULT 0,
	current_phase  TEXT NOT NULL DEFAULT '',
	agents_working TEXT NOT NULL DEFAULT '[]',
	start_time     TEXT NOT NULL,
	end_time       TEXT,
	conversations  TEXT NOT NULL DEFAULT '[]',
	agent_messages TEXT NOT NULL DEFAULT '[]',
	results        TEXT,
	error_message  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_tasks_start_time ON tasks(start_time DESC);
`

// SQLiteStore implements Store backed by a SQLite database, for deployments
// that need the audit trail to survive restarts. Conversation and
// communication logs are stored as JSON columns.
type SQLiteStore struct {
	// Serializes read-modify-write cycles on the JSON log columns.
	mu sync.Mutex
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the database at path with WAL journal
// mode and a busy timeout, and ensures the schema exists.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	ctx := context.Background()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode on %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout on %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema on %s: %w", path, err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, task *TaskStatus) error {
	if task == nil || task.TaskID == "" {
		return fmt.Errorf("task id is required")
	}

	agents, err := json.Marshal(orEmpty(task.AgentsWorking))
	if err != nil {
		return fmt.Errorf("encode agents_working: %w", err)
	}
	conversations, err := json.Marshal(orEmptyConv(task.Conversations))
	if err != nil {
		return fmt.Errorf("encode conversations: %w", err)
	}
	messages, err := json.Marshal(orEmptyMsgs(task.AgentMessages))
	if err != nil {
		return fmt.Errorf("encode agent_messages: %w", err)
	}
	results, err := encodeResults(task.Results)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (task_id, status, progress, current_phase, agents_working,
			start_time, end_time, conversations, agent_messages, results, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.TaskID, string(task.Status), task.Progress, task.CurrentPhase, string(agents),
		task.StartTime.Format(time.RFC3339Nano), encodeTimePtr(task.EndTime),
		string(conversations), string(messages), results, task.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("insert task %s: %w", task.TaskID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, taskID string) (*TaskStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(ctx, taskID)
}

func (s *SQLiteStore) getLocked(ctx context.Context, taskID string) (*TaskStatus, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT task_id, status, progress, current_phase, agents_working,
			start_time, end_time, conversations, agent_messages, results, error_message
		FROM tasks WHERE task_id = ?`, taskID)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return task, err
}

func (s *SQLiteStore) SetPhase(ctx context.Context, taskID string, progress int, phase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exec(ctx, taskID,
		`UPDATE tasks SET progress = ?, current_phase = ? WHERE task_id = ?`,
		progress, phase, taskID)
}

func (s *SQLiteStore) SetStatus(ctx context.Context, taskID string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exec(ctx, taskID,
		`UPDATE tasks SET status = ? WHERE task_id = ?`,
		string(status), taskID)
}

func (s *SQLiteStore) SetError(ctx context.Context, taskID string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exec(ctx, taskID,
		`UPDATE tasks SET status = ?, error_message = ?, end_time = ? WHERE task_id = ?`,
		string(StatusError), message, time.Now().Format(time.RFC3339Nano), taskID)
}

func (s *SQLiteStore) SetResults(ctx context.Context, taskID string, results map[string]any) error {
	encoded, err := encodeResults(results)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exec(ctx, taskID,
		`UPDATE tasks SET status = ?, progress = 100, results = ?, end_time = ? WHERE task_id = ?`,
		string(StatusCompleted), encoded, time.Now().Format(time.RFC3339Nano), taskID)
}

func (s *SQLiteStore) AppendConversation(ctx context.Context, taskID string, entry ConversationEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.getLocked(ctx, taskID)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(append(task.Conversations, entry))
	if err != nil {
		return fmt.Errorf("encode conversations: %w", err)
	}
	return s.exec(ctx, taskID,
		`UPDATE tasks SET conversations = ? WHERE task_id = ?`,
		string(encoded), taskID)
}

func (s *SQLiteStore) AppendAgentMessage(ctx context.Context, taskID string, msg AgentMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.getLocked(ctx, taskID)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(append(task.AgentMessages, msg))
	if err != nil {
		return fmt.Errorf("encode agent_messages: %w", err)
	}
	return s.exec(ctx, taskID,
		`UPDATE tasks SET agent_messages = ? WHERE task_id = ?`,
		string(encoded), taskID)
}

func (s *SQLiteStore) FillAgentMessageResponse(ctx context.Context, taskID, messageID, response string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.getLocked(ctx, taskID)
	if err != nil {
		return err
	}

	found := false
	for i := range task.AgentMessages {
		if task.AgentMessages[i].MessageID == messageID {
			now := time.Now()
			task.AgentMessages[i].Response = response
			task.AgentMessages[i].ResponseTimestamp = &now
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("agent message not found: %s", messageID)
	}

	encoded, err := json.Marshal(task.AgentMessages)
	if err != nil {
		return fmt.Errorf("encode agent_messages: %w", err)
	}
	return s.exec(ctx, taskID,
		`UPDATE tasks SET agent_messages = ? WHERE task_id = ?`,
		string(encoded), taskID)
}

func (s *SQLiteStore) List(ctx context.Context) ([]*TaskStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, status, progress, current_phase, agents_working,
			start_time, end_time, conversations, agent_messages, results, error_message
		FROM tasks ORDER BY start_time DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*TaskStatus
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (s *SQLiteStore) exec(ctx context.Context, taskID, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update task %s: %w", taskID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*TaskStatus, error) {
	var (
		task          TaskStatus
		status        string
		agents        string
		startTime     string
		endTime       sql.NullString
		conversations string
		messages      string
		results       sql.NullString
	)
	err := row.Scan(&task.TaskID, &status, &task.Progress, &task.CurrentPhase, &agents,
		&startTime, &endTime, &conversations, &messages, &results, &task.ErrorMessage)
	if err != nil {
		return nil, err
	}

	task.Status = Status(status)
	if task.StartTime, err = time.Parse(time.RFC3339Nano, startTime); err != nil {
		return nil, fmt.Errorf("parse start_time: %w", err)
	}
	if endTime.Valid {
		end, err := time.Parse(time.RFC3339Nano, endTime.String)
		if err != nil {
			return nil, fmt.Errorf("parse end_time: %w", err)
		}
		task.EndTime = &end
	}
	if err := json.Unmarshal([]byte(agents), &task.AgentsWorking); err != nil {
		return nil, fmt.Errorf("decode agents_working: %w", err)
	}
	if err := json.Unmarshal([]byte(conversations), &task.Conversations); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}
	if err := json.Unmarshal([]byte(messages), &task.AgentMessages); err != nil {
		return nil, fmt.Errorf("decode agent_messages: %w", err)
	}
	if results.Valid && results.String != "" {
		if err := json.Unmarshal([]byte(results.String), &task.Results); err != nil {
			return nil, fmt.Errorf("decode results: %w", err)
		}
	}
	return &task, nil
}

func encodeResults(results map[string]any) (sql.NullString, error) {
	if results == nil {
		return sql.NullString{}, nil
	}
	encoded, err := json.Marshal(results)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode results: %w", err)
	}
	return sql.NullString{String: string(encoded), Valid: true}, nil
}

func encodeTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptyConv(s []ConversationEntry) []ConversationEntry {
	if s == nil {
		return []ConversationEntry{}
	}
	return s
}

func orEmptyMsgs(s []AgentMessage) []AgentMessage {
	if s == nil {
		return []AgentMessage{}
	}
	return s
}
