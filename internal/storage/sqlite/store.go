package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"categorizer/internal/domain"
)

// Store keeps the run history: one row per run and one per classified
// question.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := InitDB(path)
	if err != nil {
		return nil, fmt.Errorf("open history db %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id            TEXT PRIMARY KEY,
		started_at    DATETIME NOT NULL,
		finished_at   DATETIME,
		llm_provider  TEXT DEFAULT '',
		llm_model     TEXT DEFAULT '',
		total         INTEGER NOT NULL DEFAULT 0,
		processed     INTEGER NOT NULL DEFAULT 0,
		failures      INTEGER NOT NULL DEFAULT 0,
		input_tokens  INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		status        TEXT NOT NULL DEFAULT 'running'
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

	CREATE TABLE IF NOT EXISTS classification_history (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id        TEXT NOT NULL,
		position      INTEGER NOT NULL,
		question_name TEXT NOT NULL,
		labels        TEXT NOT NULL DEFAULT '[]',
		raw_labels    TEXT NOT NULL DEFAULT '[]',
		attempts      INTEGER NOT NULL DEFAULT 0,
		error         TEXT DEFAULT '',
		llm_provider  TEXT DEFAULT '',
		llm_model     TEXT DEFAULT '',
		classified_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_ch_run ON classification_history(run_id);
	CREATE INDEX IF NOT EXISTS idx_ch_question ON classification_history(question_name);
	CREATE INDEX IF NOT EXISTS idx_ch_date ON classification_history(classified_at);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (s *Store) StartRun(ctx context.Context, run domain.RunRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, llm_provider, llm_model, total, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC(), run.LLMProvider, run.LLMModel, run.Total, run.Status,
	)
	return err
}

func (s *Store) FinishRun(ctx context.Context, run domain.RunRecord) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, processed = ?, failures = ?,
		        input_tokens = ?, output_tokens = ?, status = ?
		 WHERE id = ?`,
		run.FinishedAt.UTC(), run.Processed, run.Failures,
		run.InputTokens, run.OutputTokens, run.Status, run.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

func (s *Store) RecordClassification(ctx context.Context, r domain.ClassificationRecord) error {
	labels, err := encodeLabels(r.Labels)
	if err != nil {
		return err
	}
	raw, err := encodeLabels(r.RawLabels)
	if err != nil {
		return err
	}
	classifiedAt := r.ClassifiedAt
	if classifiedAt.IsZero() {
		classifiedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO classification_history
		 (run_id, position, question_name, labels, raw_labels, attempts, error, llm_provider, llm_model, classified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Position, r.QuestionName, labels, raw, r.Attempts, r.Error,
		r.LLMProvider, r.LLMModel, classifiedAt.UTC(),
	)
	return err
}

func (s *Store) GetRun(ctx context.Context, id string) (domain.RunRecord, error) {
	query, args, err := runSelect().Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.RunRecord{}, err
	}
	return scanRun(s.db.QueryRowContext(ctx, query, args...))
}

// ListRuns returns the most recent runs first. limit <= 0 means all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	b := runSelect().OrderBy("started_at DESC", "id")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type ClassificationFilter struct {
	RunID        string
	QuestionName string
	Since        time.Time
	FailedOnly   bool
	Limit        int
}

// ListClassifications returns history rows in run order.
func (s *Store) ListClassifications(ctx context.Context, f ClassificationFilter) ([]domain.ClassificationRecord, error) {
	b := sq.Select("id", "run_id", "position", "question_name", "labels", "raw_labels",
		"attempts", "error", "llm_provider", "llm_model", "classified_at").
		From("classification_history").
		OrderBy("classified_at", "id")
	b = applyFilter(b, f.RunID, f.Since)
	if f.QuestionName != "" {
		b = b.Where(sq.Eq{"question_name": f.QuestionName})
	}
	if f.FailedOnly {
		b = b.Where(sq.NotEq{"error": ""})
	}
	if f.Limit > 0 {
		b = b.Limit(uint64(f.Limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.ClassificationRecord
	for rows.Next() {
		var r domain.ClassificationRecord
		var labels, raw string
		if err := rows.Scan(&r.ID, &r.RunID, &r.Position, &r.QuestionName, &labels, &raw,
			&r.Attempts, &r.Error, &r.LLMProvider, &r.LLMModel, &r.ClassifiedAt); err != nil {
			return nil, err
		}
		if r.Labels, err = decodeLabels(labels); err != nil {
			return nil, err
		}
		if r.RawLabels, err = decodeLabels(raw); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

type LabelCountFilter struct {
	RunID string
	Since time.Time
}

// LabelCounts totals assigned labels across history rows, most frequent
// first.
func (s *Store) LabelCounts(ctx context.Context, f LabelCountFilter) ([]domain.LabelCount, error) {
	b := sq.Select("j.value", "COUNT(*) AS cnt").
		From("classification_history h, json_each(h.labels) j").
		GroupBy("j.value").
		OrderBy("cnt DESC", "j.value")
	if f.RunID != "" {
		b = b.Where(sq.Eq{"h.run_id": f.RunID})
	}
	if !f.Since.IsZero() {
		b = b.Where(sq.GtOrEq{"h.classified_at": f.Since.UTC()})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []domain.LabelCount
	for rows.Next() {
		var lc domain.LabelCount
		if err := rows.Scan(&lc.Label, &lc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, lc)
	}
	return counts, rows.Err()
}

func runSelect() sq.SelectBuilder {
	return sq.Select("id", "started_at", "finished_at", "llm_provider", "llm_model",
		"total", "processed", "failures", "input_tokens", "output_tokens", "status").
		From("runs")
}

func applyFilter(b sq.SelectBuilder, runID string, since time.Time) sq.SelectBuilder {
	if runID != "" {
		b = b.Where(sq.Eq{"run_id": runID})
	}
	if !since.IsZero() {
		b = b.Where(sq.GtOrEq{"classified_at": since.UTC()})
	}
	return b
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (domain.RunRecord, error) {
	var r domain.RunRecord
	var finished sql.NullTime
	err := row.Scan(&r.ID, &r.StartedAt, &finished, &r.LLMProvider, &r.LLMModel,
		&r.Total, &r.Processed, &r.Failures, &r.InputTokens, &r.OutputTokens, &r.Status)
	if finished.Valid {
		r.FinishedAt = finished.Time
	}
	return r, err
}

func encodeLabels(labels []string) (string, error) {
	if labels == nil {
		labels = []string{}
	}
	b, err := json.Marshal(labels)
	if err != nil {
		return "", fmt.Errorf("encode labels: %w", err)
	}
	return string(b), nil
}

func decodeLabels(s string) ([]string, error) {
	labels := []string{}
	if s == "" {
		return labels, nil
	}
	if err := json.Unmarshal([]byte(s), &labels); err != nil {
		return nil, fmt.Errorf("decode labels: %w", err)
	}
	return labels, nil
}
