// Package synthlog persists one row per served dispatch so operators can see
// which phrases are requested and how often the cache answers them.
package synthlog

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrations returns the schema files for database.RunMigrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

type Event struct {
	Model     string
	SpeakerID int
	Text      string
	FileName  string
	Cached    bool
	Duration  time.Duration
}

type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// NopRecorder discards events. Used when no database is configured.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Event) error { return nil }

// execer is satisfied by *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PostgresRecorder struct {
	db execer
}

func NewPostgresRecorder(db execer) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

func (r *PostgresRecorder) Record(ctx context.Context, ev Event) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO synthesis_log (model, speaker_id, text, file_name, cached, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.Model, ev.SpeakerID, ev.Text, ev.FileName, ev.Cached, ev.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert synthesis log: %w", err)
	}
	return nil
}
