package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// CallOutcome classifies how a dispatch attempt ended.
type CallOutcome string

const (
	OutcomeOriginated CallOutcome = "originated"
	OutcomeAuthFailed CallOutcome = "auth_failed"
	OutcomeFailed     CallOutcome = "failed"
)

// CallRecord is one journaled dispatch attempt.
type CallRecord struct {
	ID        string      `json:"id"`
	Priority  int         `json:"priority"`
	Title     string      `json:"title"`
	Message   string      `json:"message"`
	Exten     string      `json:"exten"`
	Outcome   CallOutcome `json:"outcome"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// CallHistory defines the interface for the dispatch journal. The journal
// is optional: the alert-to-call path itself keeps no state.
type CallHistory interface {
	// Record stores one dispatch attempt
	Record(ctx context.Context, rec *CallRecord) error

	// List retrieves the most recent attempts, newest first
	List(ctx context.Context, limit int) ([]*CallRecord, error)

	// DeleteBefore deletes attempts older than the specified time
	DeleteBefore(ctx context.Context, before time.Time) error

	// Close releases the underlying store
	Close() error
}

// SQLiteCallHistory implements CallHistory using SQLite.
type SQLiteCallHistory struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteCallHistory opens (or creates) the journal database at dbPath.
func NewSQLiteCallHistory(logger *zap.Logger, dbPath string) (*SQLiteCallHistory, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	h := &SQLiteCallHistory{
		logger: logger.Named("call-history"),
		db:     db,
	}

	if err := h.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return h, nil
}

func (h *SQLiteCallHistory) initialize() error {
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS call_history (
			id TEXT PRIMARY KEY,
			priority INTEGER NOT NULL,
			title TEXT,
			message TEXT,
			exten TEXT NOT NULL,
			outcome TEXT NOT NULL,
			error TEXT,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_call_history_created_at ON call_history(created_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Record stores one dispatch attempt. A missing ID or timestamp is filled in.
func (h *SQLiteCallHistory) Record(ctx context.Context, rec *CallRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := h.db.ExecContext(ctx, `
		INSERT INTO call_history (id, priority, title, message, exten, outcome, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Priority, rec.Title, rec.Message, rec.Exten,
		string(rec.Outcome), rec.Error, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store call record: %w", err)
	}

	h.logger.Debug("call recorded",
		zap.String("id", rec.ID),
		zap.String("outcome", string(rec.Outcome)))
	return nil
}

// List retrieves the most recent attempts, newest first.
func (h *SQLiteCallHistory) List(ctx context.Context, limit int) ([]*CallRecord, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, priority, title, message, exten, outcome, error, created_at
		FROM call_history ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query call history: %w", err)
	}
	defer rows.Close()

	var records []*CallRecord
	for rows.Next() {
		rec := &CallRecord{}
		var outcome string
		if err := rows.Scan(&rec.ID, &rec.Priority, &rec.Title, &rec.Message,
			&rec.Exten, &outcome, &rec.Error, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan call record: %w", err)
		}
		rec.Outcome = CallOutcome(outcome)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteBefore deletes attempts older than the specified time.
func (h *SQLiteCallHistory) DeleteBefore(ctx context.Context, before time.Time) error {
	result, err := h.db.ExecContext(ctx,
		`DELETE FROM call_history WHERE created_at < ?`, before)
	if err != nil {
		return fmt.Errorf("failed to delete old records: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n > 0 {
		h.logger.Info("old call records deleted", zap.Int64("count", n))
	}
	return nil
}

// Close closes the database.
func (h *SQLiteCallHistory) Close() error {
	return h.db.Close()
}
