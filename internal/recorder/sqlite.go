package recorder

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists run history to a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *slog.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger *slog.Logger) (*SQLiteRecorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets report queries read while a run writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("sqlite recorder opened", "path", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id           TEXT PRIMARY KEY,
			started_at       INTEGER NOT NULL,
			provisional_date TEXT,
			fetch_date       TEXT,
			fetch_time       TEXT,
			market_status    TEXT,
			total_stocks     INTEGER,
			success          INTEGER,
			failed           INTEGER,
			invalid          INTEGER,
			universe         INTEGER,
			elapsed_ms       INTEGER,
			artifact_path    TEXT,
			status           TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_fetch_date ON runs(fetch_date)`,

		`CREATE TABLE IF NOT EXISTS symbol_outcomes (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id   TEXT NOT NULL REFERENCES runs(run_id),
			symbol   TEXT NOT NULL,
			outcome  TEXT NOT NULL,
			reason   TEXT,
			attempts INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_run ON symbol_outcomes(run_id)`,

		`CREATE TABLE IF NOT EXISTS prices (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id       TEXT NOT NULL REFERENCES runs(run_id),
			symbol       TEXT NOT NULL,
			company_name TEXT,
			date         TEXT NOT NULL,
			open         REAL,
			high         REAL,
			low          REAL,
			close        REAL,
			volume       INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_prices_symbol_date ON prices(symbol, date)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordRun stores the run, its per-symbol outcomes and its accepted records
// in one transaction.
func (r *SQLiteRecorder) RecordRun(run *RunRecord) (err error) {
	if run == nil || run.RunID == "" {
		return errors.New("record run: missing run id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var fetchDate, fetchTime, marketStatus string
	var totalStocks int
	if s := run.Snapshot; s != nil {
		fetchDate, fetchTime, marketStatus = s.FetchDate, s.FetchTime, string(s.MarketStatus)
		totalStocks = s.TotalStocks
	}
	st := run.Stats

	if _, err = tx.Exec(`INSERT INTO runs
		(run_id, started_at, provisional_date, fetch_date, fetch_time, market_status,
		 total_stocks, success, failed, invalid, universe, elapsed_ms, artifact_path, status)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		run.RunID, run.StartedAt.Unix(), run.ProvisionalDate, fetchDate, fetchTime, marketStatus,
		totalStocks, st.Success, st.Failed, st.Invalid, st.Total, st.Elapsed.Milliseconds(),
		run.ArtifactPath, run.Status,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, o := range st.Outcomes {
		if _, err = tx.Exec(`INSERT INTO symbol_outcomes
			(run_id, symbol, outcome, reason, attempts) VALUES (?,?,?,?,?)`,
			run.RunID, o.Symbol, string(o.Outcome), o.Reason, o.Attempts,
		); err != nil {
			return fmt.Errorf("insert outcome %s: %w", o.Symbol, err)
		}
	}

	if run.Snapshot != nil {
		for _, p := range run.Snapshot.Stocks {
			if _, err = tx.Exec(`INSERT INTO prices
				(run_id, symbol, company_name, date, open, high, low, close, volume)
				VALUES (?,?,?,?,?,?,?,?,?)`,
				run.RunID, p.Symbol, p.CompanyName, p.Date, p.Open, p.High, p.Low, p.Close, p.Volume,
			); err != nil {
				return fmt.Errorf("insert price %s: %w", p.Symbol, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LastSaved returns the fetch date and run id of the latest saved run.
// ok is false when no run has been saved yet.
func (r *SQLiteRecorder) LastSaved() (fetchDate, runID string, ok bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	err = r.db.QueryRow(`SELECT fetch_date, run_id FROM runs
		WHERE status = ? ORDER BY started_at DESC, rowid DESC LIMIT 1`, StatusSaved,
	).Scan(&fetchDate, &runID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}
	return fetchDate, runID, true, nil
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Info("closing sqlite recorder")
	return r.db.Close()
}
