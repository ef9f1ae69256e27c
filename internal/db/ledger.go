// Package db records every pipeline run in a ledger: a local SQLite file by
// default, or a shared Postgres table.
package db

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// Run is one processed item, successful or not.
type Run struct {
	ID             int64
	RunID          string
	PostID         string
	SourceURL      string
	Template       string
	MediaKind      string
	Status         string
	Stage          string
	FetchStatus    string
	AnalysisStatus string
	FilePath       string
	RemoteURL      string
	Error          string
	Hostname       string
	CreatedAt      time.Time
}

type Ledger interface {
	RecordRun(ctx context.Context, run Run) error
	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	Close() error
}

type Options struct {
	Driver     string
	Path       string
	ConnString string
}

// Open returns the ledger selected by opts.Driver.
func Open(ctx context.Context, opts Options) (Ledger, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverSQLite:
		return OpenSQLite(opts.Path)
	case DriverPostgres, "postgresql", "pg":
		store, err := NewStore(ctx, opts.ConnString)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	case DriverNone, "off":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown ledger driver %q (want sqlite, postgres or none)", opts.Driver)
	}
}

// Nop discards runs.
type Nop struct{}

func (Nop) RecordRun(context.Context, Run) error         { return nil }
func (Nop) ListRuns(context.Context, int) ([]Run, error) { return nil, nil }
func (Nop) Close() error                                 { return nil }
