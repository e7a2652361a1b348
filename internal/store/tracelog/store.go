// Package tracelog keeps an append-only audit trail of every model call made
// during a run: prompts, raw output, latency and errors. It lives in its own
// SQLite file so the ledger database stays small and portable.
package tracelog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// Record is one model round-trip.
type Record struct {
	ID        int64  `json:"id"`
	Timestamp int64  `json:"ts"`
	ExpName   string `json:"exp_name"`
	Ticker    string `json:"ticker"`
	Date      string `json:"trading_date"`
	Step      string `json:"step"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	System    string `json:"system_prompt"`
	User      string `json:"user_prompt"`
	RawOutput string `json:"raw_output"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Query filters ListRecords.
type Query struct {
	Ticker string
	Step   string
	Date   string
	Limit  int
	Offset int
}

// Store is an append-only trace writer backed by SQLite.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the trace database at path.
func NewStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("trace log: path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

func ensureSchema(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS model_traces (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    ts            INTEGER NOT NULL,
    exp_name      TEXT NOT NULL,
    item_name     TEXT NOT NULL,
    trading_date  TEXT NOT NULL,
    step          TEXT NOT NULL,
    provider      TEXT NOT NULL,
    model         TEXT NOT NULL,
    system_prompt TEXT,
    user_prompt   TEXT,
    raw_output    TEXT,
    latency_ms    INTEGER NOT NULL DEFAULT 0,
    error         TEXT
);
CREATE INDEX IF NOT EXISTS idx_model_traces_item ON model_traces(item_name, ts);
CREATE INDEX IF NOT EXISTS idx_model_traces_date ON model_traces(trading_date);
`
	_, err := db.ExecContext(context.Background(), ddl)
	return err
}

// Append writes one record. A trace failure never aborts a trading run, so
// callers typically log and ignore the returned error.
func (s *Store) Append(ctx context.Context, rec Record) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("trace log: store not initialized")
	}
	if rec.Timestamp == 0 {
		rec.Timestamp = time.Now().UnixMilli()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO model_traces
    (ts, exp_name, item_name, trading_date, step, provider, model, system_prompt, user_prompt, raw_output, latency_ms, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp, rec.ExpName, rec.Ticker, rec.Date, rec.Step,
		rec.Provider, rec.Model, rec.System, rec.User, rec.RawOutput,
		rec.LatencyMS, rec.Error)
	return err
}

// ListRecords returns traces newest first.
func (s *Store) ListRecords(ctx context.Context, q Query) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("trace log: store not initialized")
	}
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var (
		conds []string
		args  []interface{}
	)
	if q.Ticker != "" {
		conds = append(conds, "item_name = ?")
		args = append(args, q.Ticker)
	}
	if q.Step != "" {
		conds = append(conds, "step = ?")
		args = append(args, q.Step)
	}
	if q.Date != "" {
		conds = append(conds, "trading_date = ?")
		args = append(args, q.Date)
	}
	query := "SELECT id, ts, exp_name, item_name, trading_date, step, provider, model, system_prompt, user_prompt, raw_output, latency_ms, error FROM model_traces"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY ts DESC LIMIT ? OFFSET ?"
	args = append(args, limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec                                 Record
			system, user, rawOutput, traceError sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.ExpName, &rec.Ticker, &rec.Date,
			&rec.Step, &rec.Provider, &rec.Model, &system, &user, &rawOutput,
			&rec.LatencyMS, &traceError); err != nil {
			return nil, err
		}
		rec.System = system.String
		rec.User = user.String
		rec.RawOutput = rawOutput.String
		rec.Error = traceError.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
