package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PGStore is the PostgreSQL + pgvector implementation of Index.
//
// Corpus replacement uses a generation table: Replace inserts a complete new
// generation and flips the single active flag inside one transaction.
// Readers join on the active generation, so the swap is atomic from their
// point of view. Inactive generations beyond KeepGenerations are garbage
// collected after each successful swap.
//
// PGStore is safe for concurrent use by multiple goroutines.
type PGStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	// Serializes ingestions so concurrent Replace calls cannot interleave
	// their build/swap sequences. Queries are not blocked by this.
	mu sync.Mutex
}

// NewPGStore creates a pgvector-backed index using the given connection pool.
// The pool must have pgvector types registered (see app setup).
func NewPGStore(pool *pgxpool.Pool, logger *slog.Logger) (*PGStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PGStore{pool: pool, logger: logger}, nil
}

// Replace implements Index.
func (s *PGStore) Replace(ctx context.Context, documentID string, records []Record) error {
	for _, r := range records {
		if len(r.Embedding) != Dimension {
			return fmt.Errorf("record %q: embedding dimension %d, want %d", r.ID, len(r.Embedding), Dimension)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	// Rollback is a no-op after Commit; on error or cancellation it
	// discards the half-built generation.
	defer func() { _ = tx.Rollback(ctx) }()

	var genID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO corpus_generations (document_id, chunk_count) VALUES ($1, $2) RETURNING id`,
		documentID, len(records),
	).Scan(&genID)
	if err != nil {
		return fmt.Errorf("creating generation: %w", err)
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(
			`INSERT INTO corpus_chunks (generation_id, chunk_id, content, embedding) VALUES ($1, $2, $3, $4)`,
			genID, r.ID, r.Text, pgvector.NewVector(r.Embedding),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting chunks: %w", err)
	}

	// Deactivate then activate in two statements; the partial unique index
	// on active guarantees at most one active generation, and the swap is
	// only visible once the transaction commits.
	if _, err := tx.Exec(ctx, `UPDATE corpus_generations SET active = FALSE WHERE active`); err != nil {
		return fmt.Errorf("deactivating previous generation: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE corpus_generations SET active = TRUE WHERE id = $1`, genID); err != nil {
		return fmt.Errorf("activating generation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing corpus swap: %w", err)
	}

	s.logger.Info("corpus replaced",
		"document_id", documentID,
		"generation", genID,
		"chunks", len(records),
	)

	s.collectGarbage(ctx)
	return nil
}

// collectGarbage drops inactive generations beyond the keep window.
// Best-effort: failures are logged, never returned.
func (s *PGStore) collectGarbage(ctx context.Context) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM corpus_generations
		WHERE NOT active
		  AND id NOT IN (
			SELECT id FROM corpus_generations ORDER BY id DESC LIMIT $1
		  )`, KeepGenerations)
	if err != nil {
		s.logger.Warn("collecting old generations", "error", err)
		return
	}
	if tag.RowsAffected() > 0 {
		s.logger.Debug("collected old generations", "count", tag.RowsAffected())
	}
}

// Query implements Index. Similarity is 1 - cosine distance.
func (s *PGStore) Query(ctx context.Context, embedding []float32, topK int) ([]Match, error) {
	if len(embedding) != Dimension {
		return nil, fmt.Errorf("query embedding dimension %d, want %d", len(embedding), Dimension)
	}
	if topK < 1 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	vec := pgvector.NewVector(embedding)
	rows, err := s.pool.Query(ctx, `
		SELECT c.chunk_id, c.content, 1 - (c.embedding <=> $1) AS similarity
		FROM corpus_chunks c
		JOIN corpus_generations g ON g.id = c.generation_id AND g.active
		ORDER BY c.embedding <=> $1
		LIMIT $2`, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("querying corpus: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var similarity float64
		if err := rows.Scan(&m.ID, &m.Text, &similarity); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		m.Similarity = float32(similarity)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading matches: %w", err)
	}
	return matches, nil
}

// Count implements Index.
func (s *PGStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE((SELECT chunk_count FROM corpus_generations WHERE active), 0)`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting corpus: %w", err)
	}
	return count, nil
}

// Clear implements Index. All generations are removed, active included.
func (s *PGStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.pool.Exec(ctx, `DELETE FROM corpus_generations`); err != nil {
		return fmt.Errorf("clearing corpus: %w", err)
	}
	return nil
}
