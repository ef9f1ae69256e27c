package cli

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"
	"strings"

	"jobposters/poster-go/internal/config"
	"jobposters/poster-go/internal/db"
	"jobposters/poster-go/internal/utils"
)

// runLedgerMigrate applies migrations/*.sql to the Postgres ledger. The
// SQLite ledger creates its schema on open and has nothing to migrate.
func runLedgerMigrate(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("ledger:Migrate", flag.ContinueOnError)
	dir := fs.String("dir", "migrations", "Directory containing *.sql migrations")
	dryRun := fs.Bool("dry-run", false, "List pending migrations without applying")
	verbose := fs.Bool("verbose", utils.Verbose, "Verbose logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	utils.ConfigureLogging(*verbose)

	action := "up"
	if len(fs.Args()) > 0 {
		action = strings.TrimSpace(fs.Args()[0])
	}
	if action == "" {
		action = "up"
	}
	if action != "up" {
		return fmt.Errorf("unsupported migrate action %q (supported: up)", action)
	}
	switch strings.ToLower(cfg.LedgerDriver) {
	case db.DriverPostgres, "postgresql", "pg":
	default:
		return fmt.Errorf("ledger:Migrate needs ledger.driver=postgres (have %q)", cfg.LedgerDriver)
	}

	files, err := db.MigrationFiles(*dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no .sql files found in %s", *dir)
	}

	store, err := db.NewStore(ctx, cfg.DBConnString())
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	pending, err := store.PendingMigrations(ctx, files)
	if err != nil {
		return err
	}
	if *dryRun {
		for _, p := range pending {
			fmt.Fprintln(stdout, filepath.Base(p))
		}
		return nil
	}

	applied, err := store.ApplyMigrations(ctx, pending)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Applied %d migration(s)\n", applied)
	return nil
}
