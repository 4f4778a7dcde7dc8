package usage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// schema is the usage record table. The created_at index serves both
// retention pruning and time-ranged queries.
const schema = `
CREATE TABLE IF NOT EXISTS usage_records (
	id                TEXT PRIMARY KEY,
	endpoint          TEXT NOT NULL,
	model             TEXT NOT NULL,
	upstream_model    TEXT NOT NULL,
	streamed          INTEGER NOT NULL,
	status            TEXT NOT NULL,
	prompt_tokens     INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	total_tokens      INTEGER NOT NULL,
	duration_ms       INTEGER NOT NULL,
	created_at        TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_created_at ON usage_records(created_at);
`

// Record is one finished request's accounting entry.
type Record struct {
	// ID is the request ID assigned at the HTTP boundary.
	ID string

	// Endpoint is the client-facing path, e.g. "/api/chat".
	Endpoint string

	// Model is the model name the client asked for.
	Model string

	// UpstreamModel is the resolved upstream model name.
	UpstreamModel string

	// Streamed reports whether the response was streamed.
	Streamed bool

	// Status is the terminal outcome: "ok" or an error code.
	Status string

	// Token counts as reported by the upstream. Zero when unreported.
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int

	// Duration is the request wall-clock time.
	Duration time.Duration

	// CreatedAt is when the record was produced.
	CreatedAt time.Time
}

// Store persists usage records in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore opens (or creates) the usage database at path, enabling WAL
// mode and initializing the schema.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open usage database %q: %w", path, err)
	}
	// A single writer avoids SQLITE_BUSY churn under write load.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create usage schema: %w", err)
	}

	logger.Info("usage store initialized", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Insert writes one usage record.
func (s *Store) Insert(ctx context.Context, rec *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_records (
			id, endpoint, model, upstream_model, streamed, status,
			prompt_tokens, completion_tokens, total_tokens, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Endpoint, rec.Model, rec.UpstreamModel, rec.Streamed, rec.Status,
		rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens,
		rec.Duration.Milliseconds(), rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}
	return nil
}

// Prune deletes records created before the cutoff and returns how many
// were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM usage_records WHERE created_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune usage records: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned records: %w", err)
	}
	return deleted, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM usage_records").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count usage records: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
