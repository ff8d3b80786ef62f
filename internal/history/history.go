// Package history keeps an SQLite audit trail of fresh classifications.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/FrenchMajesty/doc-classifier/pkg/types"
)

const (
	table = "classification_history"

	DefaultLimit = 50
	MaxLimit     = 500
)

const schema = `
CREATE TABLE IF NOT EXISTS classification_history (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	batch_id         TEXT    NOT NULL,
	item_index       INTEGER NOT NULL,
	filename         TEXT    NOT NULL,
	fingerprint      TEXT    NOT NULL,
	label            TEXT    NOT NULL,
	confidence       REAL    NOT NULL,
	decision         TEXT    NOT NULL,
	low_confidence   INTEGER NOT NULL,
	stage            TEXT    NOT NULL,
	pipeline_version TEXT    NOT NULL,
	created_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_fingerprint ON classification_history(fingerprint);
CREATE INDEX IF NOT EXISTS idx_history_batch ON classification_history(batch_id);`

var columns = []string{
	"batch_id", "item_index", "filename", "fingerprint", "label", "confidence",
	"decision", "low_confidence", "stage", "pipeline_version", "created_at",
}

// Entry is one recorded classification
type Entry struct {
	ID              int64          `json:"id"`
	BatchID         string         `json:"batch_id"`
	Index           int            `json:"index"`
	Filename        string         `json:"filename"`
	Fingerprint     string         `json:"fingerprint"`
	Label           string         `json:"label"`
	Confidence      float64        `json:"confidence"`
	Decision        types.Decision `json:"decision"`
	LowConfidence   bool           `json:"low_confidence"`
	Stage           string         `json:"stage,omitempty"`
	PipelineVersion string         `json:"pipeline_version"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Filter narrows Recent. Zero fields match everything.
type Filter struct {
	Limit   int
	Label   string
	BatchID string
}

// Store writes and reads the audit table
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the SQLite database at dsn and ensures the schema.
// ":memory:" gives a private in-process database.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// a single connection keeps :memory: databases shared and serialises writers
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Record stores a classified outcome. Outcomes without a result are ignored.
func (s *Store) Record(ctx context.Context, batchID string, outcome types.ItemOutcome) error {
	if outcome.Result == nil {
		return nil
	}
	r := outcome.Result

	query, args, err := sq.Insert(table).
		Columns(columns...).
		Values(batchID, outcome.Index, outcome.Filename, string(outcome.Fingerprint), r.Label, r.Confidence,
			string(r.Decision), r.LowConfidence, r.Stage, r.PipelineVersion, s.now().UnixMilli()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

// Recent returns the newest entries first
func (s *Store) Recent(ctx context.Context, f Filter) ([]Entry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	q := sq.Select(append([]string{"id"}, columns...)...).
		From(table).
		OrderBy("id DESC").
		Limit(uint64(limit))
	if f.Label != "" {
		q = q.Where(sq.Eq{"label": f.Label})
	}
	if f.BatchID != "" {
		q = q.Where(sq.Eq{"batch_id": f.BatchID})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			decision string
			created  int64
		)
		if err := rows.Scan(&e.ID, &e.BatchID, &e.Index, &e.Filename, &e.Fingerprint, &e.Label, &e.Confidence,
			&decision, &e.LowConfidence, &e.Stage, &e.PipelineVersion, &created); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.Decision = types.Decision(decision)
		e.CreatedAt = time.UnixMilli(created).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the database
func (s *Store) Close() error {
	return s.db.Close()
}
