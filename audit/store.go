// Package audit persists a durable record of pipeline runs, their stage
// outcomes, and their verification results in a local SQLite database.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// RunRecord is one audited pipeline run.
type RunRecord struct {
	ID            string    `json:"id"`
	Caller        string    `json:"caller"`
	DocumentPath  string    `json:"document_path"`
	Status        string    `json:"status"`
	TextLength    int       `json:"text_length"`
	ElementCount  int       `json:"element_count"`
	PatternCount  int       `json:"pattern_count"`
	NoHypotheses  bool      `json:"no_hypotheses"`
	FailureStage  string    `json:"failure_stage,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	ElapsedMs     int64     `json:"elapsed_ms"`
}

// StageRecord is one stage outcome within a run.
type StageRecord struct {
	Stage     string `json:"stage"`
	OK        bool   `json:"ok"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// VerificationRecord is one verified question within a run.
type VerificationRecord struct {
	Position int      `json:"position"`
	Question string   `json:"question"`
	Verdict  string   `json:"verdict,omitempty"`
	Evidence []string `json:"evidence,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Store wraps the SQLite database holding the run audit log.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the audit database at the given path and
// initialises the schema.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating audit db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging audit database: %w", err)
	}
	if _, err := db.Exec(schemaSQL()); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating audit schema: %w", err)
	}

	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun inserts or replaces the run row. It is called once when the
// run starts (status pending) and once with the final outcome, so the row
// always reflects the latest known state.
func (s *Store) RecordRun(ctx context.Context, r RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, caller, document_path, status, text_length,
			element_count, pattern_count, no_hypotheses, failure_stage,
			failure_reason, started_at, finished_at, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			text_length = excluded.text_length,
			element_count = excluded.element_count,
			pattern_count = excluded.pattern_count,
			no_hypotheses = excluded.no_hypotheses,
			failure_stage = excluded.failure_stage,
			failure_reason = excluded.failure_reason,
			finished_at = excluded.finished_at,
			elapsed_ms = excluded.elapsed_ms`,
		r.ID, r.Caller, r.DocumentPath, r.Status, r.TextLength,
		r.ElementCount, r.PatternCount, boolToInt(r.NoHypotheses),
		nullString(r.FailureStage), nullString(r.FailureReason),
		r.StartedAt.UTC(), r.FinishedAt.UTC(), r.ElapsedMs)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", r.ID, err)
	}
	return nil
}

// RecordStageResult appends one stage outcome for the run.
func (s *Store) RecordStageResult(ctx context.Context, runID string, sr StageRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stage_results (run_id, stage, ok, detail, error, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		runID, sr.Stage, boolToInt(sr.OK), nullString(sr.Detail), nullString(sr.Error), sr.ElapsedMs)
	if err != nil {
		return fmt.Errorf("recording stage result for %s: %w", runID, err)
	}
	return nil
}

// RecordVerifications stores the run's verification results in one
// transaction, preserving input order through the position column.
func (s *Store) RecordVerifications(ctx context.Context, runID string, records []VerificationRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting verification transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO verification_results (run_id, position, question, verdict, evidence, error)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing verification insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		evidence := ""
		if len(rec.Evidence) > 0 {
			data, err := json.Marshal(rec.Evidence)
			if err != nil {
				return fmt.Errorf("encoding evidence for %s: %w", runID, err)
			}
			evidence = string(data)
		}
		if _, err := stmt.ExecContext(ctx, runID, rec.Position, rec.Question,
			nullString(rec.Verdict), nullString(evidence), nullString(rec.Error)); err != nil {
			return fmt.Errorf("recording verification %d for %s: %w", rec.Position, runID, err)
		}
	}
	return tx.Commit()
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, caller, document_path, status, text_length, element_count,
			pattern_count, no_hypotheses, COALESCE(failure_stage, ''),
			COALESCE(failure_reason, ''), started_at, finished_at, elapsed_ms
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var noHyp int
		if err := rows.Scan(&r.ID, &r.Caller, &r.DocumentPath, &r.Status,
			&r.TextLength, &r.ElementCount, &r.PatternCount, &noHyp,
			&r.FailureStage, &r.FailureReason, &r.StartedAt, &r.FinishedAt,
			&r.ElapsedMs); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		r.NoHypotheses = noHyp != 0
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// StageResults returns the stage outcomes of one run in recorded order.
func (s *Store) StageResults(ctx context.Context, runID string) ([]StageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stage, ok, COALESCE(detail, ''), COALESCE(error, ''), elapsed_ms
		FROM stage_results WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing stage results for %s: %w", runID, err)
	}
	defer rows.Close()

	var results []StageRecord
	for rows.Next() {
		var sr StageRecord
		var ok int
		if err := rows.Scan(&sr.Stage, &ok, &sr.Detail, &sr.Error, &sr.ElapsedMs); err != nil {
			return nil, fmt.Errorf("scanning stage result row: %w", err)
		}
		sr.OK = ok != 0
		results = append(results, sr)
	}
	return results, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullString maps empty strings to SQL NULL so optional columns stay NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
