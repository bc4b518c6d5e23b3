package recorder

import (
	"database/sql"
	"fmt"
	"sync"

	"KabuScout/internal/model"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// OpenSQLite opens (or creates) a SQLite database in WAL mode.
func OpenSQLite(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// WAL lets readers (dashboards, the pick store) proceed while a run is written.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return db, nil
}

// SQLiteRecorder persists scan and verification history to SQLite.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// NewSQLiteRecorder runs migrations on db. The recorder takes ownership of db.
func NewSQLiteRecorder(db *sql.DB, log zerolog.Logger) (*SQLiteRecorder, error) {
	r := &SQLiteRecorder{db: db, log: log.With().Str("component", "recorder").Logger()}
	if err := r.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	r.log.Info().Msg("sqlite recorder ready")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scan_runs (
			run_id      TEXT PRIMARY KEY,
			category    TEXT NOT NULL,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			evaluated   INTEGER NOT NULL,
			hits        INTEGER NOT NULL,
			skips       INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_runs_started ON scan_runs(started_at)`,

		`CREATE TABLE IF NOT EXISTS scan_hits (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id       TEXT NOT NULL,
			rank         INTEGER NOT NULL,
			symbol       TEXT NOT NULL,
			display_name TEXT,
			last_close   REAL,
			change_pct   REAL,
			rsi          REAL,
			sma20        REAL,
			sma50        REAL,
			trend_slope  REAL,
			channel      TEXT,
			verdict      TEXT,
			commentary   TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_hits_run ON scan_hits(run_id)`,

		`CREATE TABLE IF NOT EXISTS scan_skips (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id   TEXT NOT NULL,
			symbol   TEXT NOT NULL,
			reason   TEXT NOT NULL,
			detail   TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_skips_run ON scan_skips(run_id)`,

		`CREATE TABLE IF NOT EXISTS verifications (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			generated_at     INTEGER NOT NULL,
			symbol           TEXT NOT NULL,
			registered_date  TEXT NOT NULL,
			registered_price REAL,
			latest_close     REAL,
			max_high         REAL,
			change_pct       REAL,
			upside_pct       REAL,
			days_held        INTEGER,
			unverifiable     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_verifications_ts ON verifications(generated_at)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// nullable maps an undefined indicator to SQL NULL.
func nullable(ind model.Indicator) sql.NullFloat64 {
	return sql.NullFloat64{Float64: ind.Value, Valid: ind.Valid}
}

func (r *SQLiteRecorder) RecordScan(res *model.ScanResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO scan_runs
		(run_id, category, started_at, finished_at, evaluated, hits, skips)
		VALUES (?,?,?,?,?,?,?)`,
		res.RunID, res.Category, res.StartedAt.Unix(), res.FinishedAt.Unix(),
		res.Evaluated, len(res.Hits), len(res.Skips),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, h := range res.Hits {
		s := h.Snapshot
		var verdict string
		if h.Advice != nil {
			verdict = string(h.Advice.Verdict)
		}
		if _, err := tx.Exec(`INSERT INTO scan_hits
			(run_id, rank, symbol, display_name, last_close, change_pct, rsi, sma20, sma50,
			 trend_slope, channel, verdict, commentary)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			res.RunID, i+1, h.Entry.Symbol, h.Entry.Label, s.LastClose,
			nullable(s.ChangePct), nullable(s.RSI14), nullable(s.SMA20), nullable(s.SMA50),
			nullable(s.TrendSlope), string(s.Channel), verdict, h.Advice.Commentary(),
		); err != nil {
			return fmt.Errorf("insert hit %s: %w", h.Entry.Symbol, err)
		}
	}

	for _, sk := range res.Skips {
		if _, err := tx.Exec(`INSERT INTO scan_skips (run_id, symbol, reason, detail) VALUES (?,?,?,?)`,
			res.RunID, sk.Entry.Symbol, string(sk.Reason), sk.Detail,
		); err != nil {
			return fmt.Errorf("insert skip %s: %w", sk.Entry.Symbol, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) RecordVerification(rep *model.VerificationReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ts := rep.GeneratedAt.Unix()
	const insert = `INSERT INTO verifications
		(generated_at, symbol, registered_date, registered_price, latest_close, max_high,
		 change_pct, upside_pct, days_held, unverifiable)
		VALUES (?,?,?,?,?,?,?,?,?,?)`
	for _, v := range rep.Rows {
		if _, err := tx.Exec(insert,
			ts, v.Pick.Symbol, v.Pick.RegisteredDate.Format("2006-01-02"), v.Pick.RegisteredPrice,
			v.LatestClose, v.MaxHigh, v.ChangePct, v.UpsidePct, v.DaysHeld, nil,
		); err != nil {
			return fmt.Errorf("insert verification %s: %w", v.Pick.Symbol, err)
		}
	}
	for _, u := range rep.Unverifiable {
		if _, err := tx.Exec(insert,
			ts, u.Pick.Symbol, u.Pick.RegisteredDate.Format("2006-01-02"), u.Pick.RegisteredPrice,
			nil, nil, nil, nil, nil, u.Reason,
		); err != nil {
			return fmt.Errorf("insert unverifiable %s: %w", u.Pick.Symbol, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
