package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"jobposters/poster-go/internal/utils"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS poster_runs (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id          TEXT NOT NULL DEFAULT '',
    post_id         TEXT NOT NULL,
    source_url      TEXT NOT NULL DEFAULT '',
    template        TEXT NOT NULL DEFAULT '',
    media_kind      TEXT NOT NULL DEFAULT 'image',
    status          TEXT NOT NULL CHECK (status IN ('persisted', 'failed')),
    stage           TEXT NOT NULL DEFAULT '',
    fetch_status    TEXT NOT NULL DEFAULT '',
    analysis_status TEXT NOT NULL DEFAULT '',
    file_path       TEXT NOT NULL DEFAULT '',
    remote_url      TEXT NOT NULL DEFAULT '',
    error           TEXT NOT NULL DEFAULT '',
    hostname        TEXT NOT NULL DEFAULT '',
    created_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
);

CREATE INDEX IF NOT EXISTS idx_poster_runs_post ON poster_runs(post_id);
CREATE INDEX IF NOT EXISTS idx_poster_runs_created ON poster_runs(created_at);
`

type SQLiteLedger struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteLedger, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite ledger path missing")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}
	utils.Debug("ledger open", "driver", DriverSQLite, "path", path)
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running ledger schema: %w", err)
	}
	return &SQLiteLedger{db: db}, nil
}

func (l *SQLiteLedger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

func (l *SQLiteLedger) RecordRun(ctx context.Context, run Run) error {
	utils.Debug("ledger record", "post_id", run.PostID, "status", run.Status)
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO poster_runs (run_id, post_id, source_url, template, media_kind, status, stage,
			fetch_status, analysis_status, file_path, remote_url, error, hostname, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.RunID, run.PostID, run.SourceURL, run.Template, run.MediaKind, run.Status, run.Stage,
		run.FetchStatus, run.AnalysisStatus, run.FilePath, run.RemoteURL, run.Error, run.Hostname,
		createdAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (l *SQLiteLedger) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, run_id, post_id, source_url, template, media_kind, status, stage,
			fetch_status, analysis_status, file_path, remote_url, error, hostname, created_at
		FROM poster_runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r         Run
			createdAt string
		)
		if err := rows.Scan(
			&r.ID,
			&r.RunID,
			&r.PostID,
			&r.SourceURL,
			&r.Template,
			&r.MediaKind,
			&r.Status,
			&r.Stage,
			&r.FetchStatus,
			&r.AnalysisStatus,
			&r.FilePath,
			&r.RemoteURL,
			&r.Error,
			&r.Hostname,
			&createdAt,
		); err != nil {
			return nil, err
		}
		if parsed, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			r.CreatedAt = parsed
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
