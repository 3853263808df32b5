package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ChamsBouzaiene/uatflow/internal/report"
)

// Row is one finalized session in the catalog.
type Row struct {
	Token          string
	HostSessionID  string
	Scenario       string
	Status         report.TerminalStatus
	CompletionRate float64
	DurationMs     int64
	ReportPath     string
	ArchivePath    string
	FinishedAt     time.Time
}

// Catalog is a SQLite-backed index of finalized sessions, so past runs can
// be listed and filtered without walking the archive tree.
type Catalog struct {
	db *sql.DB
}

// Open creates or opens the catalog database and initializes the schema.
func Open(ctx context.Context, dbPath string) (*Catalog, error) {
	// WAL mode allows a reader (the history command) alongside the
	// finalizer's writes; the busy timeout makes an overlapping writer wait
	// instead of failing with SQLITE_BUSY. modernc.org/sqlite takes these as
	// _pragma connection parameters.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support multiple writers well
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping catalog database: %w", err)
	}

	c := &Catalog{db: db}
	if err := c.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}
	return c, nil
}

// Close closes the database connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		token           TEXT PRIMARY KEY,
		host_session_id TEXT NOT NULL,
		scenario        TEXT NOT NULL,
		status          TEXT NOT NULL,
		completion_rate REAL NOT NULL,
		duration_ms     INTEGER NOT NULL,
		report_path     TEXT,
		archive_path    TEXT,
		finished_at     INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_scenario ON sessions(scenario);
	CREATE INDEX IF NOT EXISTS idx_sessions_finished ON sessions(finished_at);
	`
	_, err := c.db.ExecContext(ctx, schema)
	return err
}

// Insert records a finalized session. Re-inserting the same token replaces
// the row, which keeps a retried finalize idempotent.
func (c *Catalog) Insert(ctx context.Context, row Row) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO sessions (token, host_session_id, scenario, status, completion_rate, duration_ms, report_path, archive_path, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			status = excluded.status,
			completion_rate = excluded.completion_rate,
			report_path = excluded.report_path,
			archive_path = excluded.archive_path,
			finished_at = excluded.finished_at
	`, row.Token, row.HostSessionID, row.Scenario, string(row.Status),
		row.CompletionRate, row.DurationMs, row.ReportPath, row.ArchivePath,
		row.FinishedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert session row: %w", err)
	}
	return nil
}

// Recent returns the most recently finished sessions, newest first. A
// non-empty scenario filters to that scenario.
func (c *Catalog) Recent(ctx context.Context, scenario string, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT token, host_session_id, scenario, status, completion_rate, duration_ms,
		       COALESCE(report_path, ''), COALESCE(archive_path, ''), finished_at
		FROM sessions`
	args := []any{}
	if scenario != "" {
		query += ` WHERE scenario = ?`
		args = append(args, scenario)
	}
	query += ` ORDER BY finished_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var status string
		var finished int64
		if err := rows.Scan(&r.Token, &r.HostSessionID, &r.Scenario, &status,
			&r.CompletionRate, &r.DurationMs, &r.ReportPath, &r.ArchivePath, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		r.Status = report.TerminalStatus(status)
		r.FinishedAt = time.Unix(finished, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
