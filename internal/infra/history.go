package infra

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

const historyDBName = "history.db"

// SQLiteHistory implements domain.HistoryRecorder with a plain SQLite database.
// History holds no secrets, so it lives outside the encrypted store.
type SQLiteHistory struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteHistory opens (or creates) the history database in dataDir.
func NewSQLiteHistory(dataDir string) (*SQLiteHistory, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, historyDBName)
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	h := &SQLiteHistory{db: db, dbPath: dbPath}
	if err := h.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return h, nil
}

func (h *SQLiteHistory) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS transitions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  at INTEGER NOT NULL,
  from_state TEXT NOT NULL,
  to_state TEXT NOT NULL,
  from_profile TEXT NOT NULL,
  to_profile TEXT NOT NULL,
  status TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transitions_at ON transitions(at);
`
	if _, err := h.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create transitions table: %w", err)
	}
	return nil
}

func (h *SQLiteHistory) RecordTransition(ctx context.Context, t domain.Transition) error {
	const stmt = `
INSERT INTO transitions (at, from_state, to_state, from_profile, to_profile, status)
VALUES (?, ?, ?, ?, ?, ?)`
	_, err := h.db.ExecContext(ctx, stmt,
		t.At.UnixMilli(), string(t.FromState), string(t.ToState), t.FromProfile, t.ToProfile, t.StatusText)
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

// Recent returns up to limit transitions, newest first.
func (h *SQLiteHistory) Recent(ctx context.Context, limit int) ([]domain.Transition, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := h.db.QueryContext(ctx, `
SELECT at, from_state, to_state, from_profile, to_profile, status
FROM transitions ORDER BY at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transition
	for rows.Next() {
		var (
			at                   int64
			fromState, toState   string
			fromProfile, profile string
			status               string
		)
		if err := rows.Scan(&at, &fromState, &toState, &fromProfile, &profile, &status); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		out = append(out, domain.Transition{
			At:          time.UnixMilli(at),
			FromState:   domain.FocusState(fromState),
			ToState:     domain.FocusState(toState),
			FromProfile: fromProfile,
			ToProfile:   profile,
			StatusText:  status,
		})
	}
	return out, rows.Err()
}

// Prune deletes transitions older than before.
func (h *SQLiteHistory) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := h.db.ExecContext(ctx, `DELETE FROM transitions WHERE at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune transitions: %w", err)
	}
	return res.RowsAffected()
}

func (h *SQLiteHistory) Close() error {
	return h.db.Close()
}

var _ domain.HistoryRecorder = (*SQLiteHistory)(nil)
