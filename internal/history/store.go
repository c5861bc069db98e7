// Package history persists conversation turns in a local SQLite database.
//
// A turn is written once per completed request and never mutated. Ordering is
// the autoincrement row id, so RecentNonIngestion returns turns in true
// commit order regardless of timestamp resolution.
//
// The store is reinitialized empty at process start when the reset-on-start
// policy is enabled: discarding prior history is documented behavior, not an
// accident, and deployments can opt out via configuration.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrPersistence indicates a history write failed. It is deliberately
// non-fatal to requests: the caller logs it and still returns the computed
// answer to the user.
var ErrPersistence = errors.New("history persistence failed")

// Turn is one persisted conversation record.
type Turn struct {
	ID          int64
	Query       string
	Context     string
	Response    string
	IsIngestion bool
	CreatedAt   time.Time
}

// Store provides append-only access to the conversation log.
// It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a Store over an open database (see Open).
// When resetOnStart is true, all prior turns are discarded immediately.
func New(db *sql.DB, logger *slog.Logger, resetOnStart bool) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{db: db, logger: logger}

	if resetOnStart {
		if _, err := db.Exec(`DELETE FROM conversations`); err != nil {
			return nil, fmt.Errorf("resetting history on start: %w", err)
		}
		logger.Info("conversation history reset on startup")
	}

	return s, nil
}

// Append durably writes one turn. A storage failure is reported as
// ErrPersistence; it never fails silently.
func (s *Store) Append(ctx context.Context, turn Turn) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (query, context, response, is_ingestion) VALUES (?, ?, ?, ?)`,
		turn.Query, turn.Context, turn.Response, turn.IsIngestion,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// RecentNonIngestion returns up to limit most recent non-ingestion turns in
// chronological order, oldest first.
func (s *Store) RecentNonIngestion(ctx context.Context, limit int) ([]Turn, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query, response, created_at
		FROM conversations
		WHERE NOT is_ingestion
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.Query, &t.Response, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading turns: %w", err)
	}

	// Rows came newest-first; reverse into chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// ClearNonIngestion deletes all non-ingestion turns. Ingestion turns are
// retained as an audit trail of corpus history.
func (s *Store) ClearNonIngestion(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE NOT is_ingestion`); err != nil {
		return fmt.Errorf("clearing conversation history: %w", err)
	}
	s.logger.Debug("conversation history cleared")
	return nil
}

// CountIngestions reports how many ingestion turns are on record.
func (s *Store) CountIngestions(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversations WHERE is_ingestion`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting ingestion turns: %w", err)
	}
	return count, nil
}
