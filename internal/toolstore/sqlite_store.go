// Package toolstore provides persistent storage for tool submissions and
// their class results using SQLite.
package toolstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SubmissionStatus represents the current state of a tool submission.
type SubmissionStatus string

const (
	StatusQueued    SubmissionStatus = "queued"
	StatusRunning   SubmissionStatus = "running"
	StatusCompleted SubmissionStatus = "completed"
	StatusFailed    SubmissionStatus = "failed"
	StatusCancelled SubmissionStatus = "cancelled"
)

// SubmissionParams contains the request a submission carries to the tool
// backend.
type SubmissionParams struct {
	ViewerID         string          `json:"viewer_id"`
	ToolID           string          `json:"tool_id"`
	SessionUUID      string          `json:"session_uuid"`
	ChosenObjectType string          `json:"chosen_object_type,omitempty"`
	Payload          json.RawMessage `json:"payload,omitempty"`
}

// Submission is one tracked tool request.
type Submission struct {
	ID         string           `json:"submission_id"`
	ViewerID   string           `json:"viewer_id"`
	Status     SubmissionStatus `json:"status"`
	Params     SubmissionParams `json:"params"`
	ResultID   string           `json:"result_id,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// ClassSummary is the persisted summary of one result class.
type ClassSummary struct {
	Label       string `json:"label"`
	ColorJSON   string `json:"color"`
	ObjectCount int    `json:"object_count"`
}

// Store provides persistent storage for tool submissions using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore creates a new SQLite-based submission store.
func NewStore(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for sqlite: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tool_submissions (
		submission_id TEXT PRIMARY KEY,
		viewer_id TEXT NOT NULL,
		status TEXT NOT NULL,
		params_json TEXT NOT NULL,
		result_id TEXT DEFAULT '',
		error TEXT DEFAULT '',
		created_at TEXT NOT NULL,
		started_at TEXT,
		finished_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_tool_submissions_viewer ON tool_submissions(viewer_id);
	CREATE INDEX IF NOT EXISTS idx_tool_submissions_status ON tool_submissions(status);
	CREATE INDEX IF NOT EXISTS idx_tool_submissions_finished ON tool_submissions(finished_at);

	CREATE TABLE IF NOT EXISTS tool_classes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		submission_id TEXT NOT NULL,
		label TEXT NOT NULL,
		color_json TEXT NOT NULL,
		object_count INTEGER NOT NULL,
		FOREIGN KEY (submission_id) REFERENCES tool_submissions(submission_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_tool_classes_submission ON tool_classes(submission_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateSubmission creates a new submission record with status=queued.
func (s *Store) CreateSubmission(sub *Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	paramsJSON, err := json.Marshal(sub.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO tool_submissions (submission_id, viewer_id, status, params_json, result_id, error, created_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sub.ID,
		sub.ViewerID,
		string(sub.Status),
		string(paramsJSON),
		sub.ResultID,
		sub.Error,
		sub.CreatedAt.Format(time.RFC3339),
		nil,
		nil,
	)
	return err
}

// GetSubmission retrieves a submission by ID. Returns nil when absent.
func (s *Store) GetSubmission(id string) (*Submission, error) {
	row := s.db.QueryRow(`
		SELECT submission_id, viewer_id, status, params_json, result_id, error, created_at, started_at, finished_at
		FROM tool_submissions WHERE submission_id = ?
	`, id)

	var sub Submission
	var paramsJSON string
	var createdAtStr string
	var startedAtStr, finishedAtStr sql.NullString

	err := row.Scan(
		&sub.ID,
		&sub.ViewerID,
		&sub.Status,
		&paramsJSON,
		&sub.ResultID,
		&sub.Error,
		&createdAtStr,
		&startedAtStr,
		&finishedAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(paramsJSON), &sub.Params); err != nil {
		return nil, fmt.Errorf("failed to unmarshal params: %w", err)
	}

	sub.CreatedAt, _ = time.Parse(time.RFC3339, createdAtStr)
	if startedAtStr.Valid {
		t, _ := time.Parse(time.RFC3339, startedAtStr.String)
		sub.StartedAt = &t
	}
	if finishedAtStr.Valid {
		t, _ := time.Parse(time.RFC3339, finishedAtStr.String)
		sub.FinishedAt = &t
	}

	return &sub, nil
}

// UpdateStarted marks a submission as running with start time.
func (s *Store) UpdateStarted(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Format(time.RFC3339)
	_, err := s.db.Exec(`
		UPDATE tool_submissions SET status = ?, started_at = ?
		WHERE submission_id = ?
	`, string(StatusRunning), now, id)
	return err
}

// UpdateStatus updates the submission status and error message; terminal
// statuses also set the finish time.
func (s *Store) UpdateStatus(id string, status SubmissionStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var finishedAt *string
	if status == StatusCompleted || status == StatusFailed || status == StatusCancelled {
		t := time.Now().Format(time.RFC3339)
		finishedAt = &t
	}

	_, err := s.db.Exec(`
		UPDATE tool_submissions SET status = ?, error = ?, finished_at = COALESCE(?, finished_at)
		WHERE submission_id = ?
	`, string(status), errMsg, finishedAt, id)
	return err
}

// SetResultID links a completed submission to its attached result.
func (s *Store) SetResultID(id, resultID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE tool_submissions SET result_id = ? WHERE submission_id = ?
	`, resultID, id)
	return err
}

// MarkRunningAsFailed fails all running submissions (server restart).
func (s *Store) MarkRunningAsFailed(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Format(time.RFC3339)
	_, err := s.db.Exec(`
		UPDATE tool_submissions SET status = ?, error = ?, finished_at = ?
		WHERE status = ?
	`, string(StatusFailed), reason, now, string(StatusRunning))
	return err
}

// ListQueued returns all queued submissions, oldest first.
func (s *Store) ListQueued() ([]*Submission, error) {
	rows, err := s.db.Query(`
		SELECT submission_id FROM tool_submissions WHERE status = ? ORDER BY created_at
	`, string(StatusQueued))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*Submission, 0, len(ids))
	for _, id := range ids {
		sub, err := s.GetSubmission(id)
		if err != nil {
			return nil, err
		}
		if sub != nil {
			out = append(out, sub)
		}
	}
	return out, nil
}

// ListByViewer returns all submissions of one viewer, newest first.
func (s *Store) ListByViewer(viewerID string) ([]*Submission, error) {
	rows, err := s.db.Query(`
		SELECT submission_id FROM tool_submissions WHERE viewer_id = ? ORDER BY created_at DESC
	`, viewerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*Submission, 0, len(ids))
	for _, id := range ids {
		sub, err := s.GetSubmission(id)
		if err != nil {
			return nil, err
		}
		if sub != nil {
			out = append(out, sub)
		}
	}
	return out, nil
}

// InsertClasses inserts class summaries in a batch transaction.
func (s *Store) InsertClasses(submissionID string, classes []ClassSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO tool_classes (submission_id, label, color_json, object_count)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range classes {
		if _, err := stmt.Exec(submissionID, c.Label, c.ColorJSON, c.ObjectCount); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// QueryClasses returns the class summaries of a submission.
func (s *Store) QueryClasses(submissionID string) ([]ClassSummary, error) {
	rows, err := s.db.Query(`
		SELECT label, color_json, object_count FROM tool_classes
		WHERE submission_id = ? ORDER BY id
	`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ClassSummary
	for rows.Next() {
		var c ClassSummary
		if err := rows.Scan(&c.Label, &c.ColorJSON, &c.ObjectCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteSubmission deletes a submission and its classes.
func (s *Store) DeleteSubmission(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM tool_classes WHERE submission_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM tool_submissions WHERE submission_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteExpired deletes finished submissions older than retentionDays.
// Returns the number of deleted submissions.
func (s *Store) DeleteExpired(retentionDays int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -retentionDays).Format(time.RFC3339)

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM tool_classes WHERE submission_id IN (
			SELECT submission_id FROM tool_submissions
			WHERE finished_at IS NOT NULL AND finished_at < ?
		)
	`, cutoff); err != nil {
		return 0, err
	}

	res, err := tx.Exec(`
		DELETE FROM tool_submissions WHERE finished_at IS NOT NULL AND finished_at < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(n), nil
}
