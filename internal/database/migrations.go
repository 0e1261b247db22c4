package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// migrationLock is the advisory lock key serialising schema changes between
// the API server and the worker, which both migrate at startup.
const migrationLock int64 = 0x766f6963655f6776

// Conn is satisfied by *pgxpool.Pool.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

var errApplied = errors.New("already applied")

// RunMigrations applies every *.sql file in fsys that is not yet recorded in
// schema_migrations, in lexical order. Each file runs in its own transaction
// holding the migration lock, and is re-checked once the lock is held.
func RunMigrations(ctx context.Context, db Conn, fsys fs.FS) error {
	_, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	files, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return fmt.Errorf("glob migration files: %w", err)
	}
	slices.Sort(files)

	applied := 0
	for _, version := range files {
		sql, err := fs.ReadFile(fsys, version)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", version, err)
		}

		err = pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
			return applyMigration(ctx, tx, version, string(sql))
		})
		switch {
		case errors.Is(err, errApplied):
			continue
		case err != nil:
			return err
		}

		applied++
		slog.Info("applied migration", "version", version)
	}

	slog.Debug("migrations up to date", "applied", applied, "total", len(files))
	return nil
}

func applyMigration(ctx context.Context, tx pgx.Tx, version, sql string) error {
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLock); err != nil {
		return fmt.Errorf("lock migrations for %s: %w", version, err)
	}

	var exists bool
	err := tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)", version).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check migration %s: %w", version, err)
	}
	if exists {
		return errApplied
	}

	if _, err := tx.Exec(ctx, sql); err != nil {
		return fmt.Errorf("execute migration %s: %w", version, err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
		return fmt.Errorf("record migration %s: %w", version, err)
	}
	return nil
}
