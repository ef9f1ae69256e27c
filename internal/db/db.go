package db

import (
	"context"
	"time"

	"jobposters/poster-go/internal/utils"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the Postgres-backed ledger.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	utils.Debug("db ensure schema", "table", "poster_runs")
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS poster_runs (
			id              BIGSERIAL PRIMARY KEY,
			run_id          TEXT NOT NULL DEFAULT '',
			post_id         TEXT NOT NULL,
			source_url      TEXT NOT NULL DEFAULT '',
			template        TEXT NOT NULL DEFAULT '',
			media_kind      TEXT NOT NULL DEFAULT 'image',
			status          TEXT NOT NULL,
			stage           TEXT NOT NULL DEFAULT '',
			fetch_status    TEXT NOT NULL DEFAULT '',
			analysis_status TEXT NOT NULL DEFAULT '',
			file_path       TEXT NOT NULL DEFAULT '',
			remote_url      TEXT NOT NULL DEFAULT '',
			error           TEXT NOT NULL DEFAULT '',
			hostname        TEXT NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_poster_runs_post ON poster_runs(post_id);
	`)
	return err
}

func (s *Store) RecordRun(ctx context.Context, run Run) error {
	utils.Debug("db record run", "post_id", run.PostID, "status", run.Status)
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO poster_runs (run_id, post_id, source_url, template, media_kind, status, stage,
			fetch_status, analysis_status, file_path, remote_url, error, hostname, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, run.RunID, run.PostID, run.SourceURL, run.Template, run.MediaKind, run.Status, run.Stage,
		run.FetchStatus, run.AnalysisStatus, run.FilePath, run.RemoteURL, run.Error, run.Hostname, createdAt)
	return err
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, post_id, source_url, template, media_kind, status, stage,
			fetch_status, analysis_status, file_path, remote_url, error, hostname, created_at
		FROM poster_runs
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
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
			&r.CreatedAt,
		); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
