package indexstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/resilience"
)

// Schema is the mirror table. It is a flat lookup with no history.
const Schema = `CREATE TABLE IF NOT EXISTS transcript_index (
    guest_key       TEXT PRIMARY KEY,
    transcript_file TEXT NOT NULL
)`

// SQLStore mirrors an Index into the transcript_index table.
type SQLStore struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewSQLStore(db *postgres.Client) *SQLStore {
	return &SQLStore{
		db:     db,
		logger: slog.Default().With("component", "index-sql-store"),
	}
}

// EnsureSchema creates the mirror table if it does not exist.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("creating transcript_index: %w", err)
	}
	return nil
}

// Replace swaps the table contents for index in a single transaction,
// retrying transient failures.
func (s *SQLStore) Replace(ctx context.Context, index Index) error {
	start := time.Now()
	err := resilience.Retry(ctx, "index-replace", resilience.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 250 * time.Millisecond,
		Retryable:    isTransient,
	}, func() error {
		return s.db.InTx(ctx, func(tx *sql.Tx) error {
			return replaceRows(ctx, tx, index)
		})
	})
	if err != nil {
		return fmt.Errorf("mirroring index to postgres: %w", err)
	}
	s.logger.Info("index mirrored", "rows", len(index), "duration", time.Since(start))
	return nil
}

func replaceRows(ctx context.Context, tx *sql.Tx, index Index) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM transcript_index`); err != nil {
		return fmt.Errorf("clearing transcript_index: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("transcript_index", "guest_key", "transcript_file"))
	if err != nil {
		return fmt.Errorf("preparing copy: %w", err)
	}
	defer stmt.Close()
	for key, file := range index {
		if _, err := stmt.ExecContext(ctx, key, file); err != nil {
			return fmt.Errorf("copying row %q: %w", key, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("flushing copy: %w", err)
	}
	return nil
}

// Load reads the mirrored index back.
func (s *SQLStore) Load(ctx context.Context) (Index, error) {
	rows, err := s.db.DB.QueryContext(ctx, `SELECT guest_key, transcript_file FROM transcript_index`)
	if err != nil {
		return nil, fmt.Errorf("querying transcript_index: %w", err)
	}
	defer rows.Close()
	index := Index{}
	for rows.Next() {
		var key, file string
		if err := rows.Scan(&key, &file); err != nil {
			return nil, fmt.Errorf("scanning transcript_index: %w", err)
		}
		index[key] = file
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transcript_index: %w", err)
	}
	return index, nil
}

// isTransient reports whether a failed mirror attempt may succeed if
// repeated: connection problems and serialization or deadlock aborts.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "40", "57":
			return true
		}
		return false
	}
	return true
}
