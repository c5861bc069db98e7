package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemStore is an in-memory Index using brute-force cosine similarity.
// It exists for tests and for running without a PostgreSQL instance.
//
// Replace builds a complete snapshot and swaps a single pointer under the
// write lock, giving the same atomic-replacement semantics as PGStore.
type MemStore struct {
	mu   sync.RWMutex
	snap *memSnapshot
}

type memSnapshot struct {
	documentID string
	records    []Record
}

// NewMemStore creates an empty in-memory index.
func NewMemStore() *MemStore {
	return &MemStore{snap: &memSnapshot{}}
}

// Replace implements Index.
func (s *MemStore) Replace(ctx context.Context, documentID string, records []Record) error {
	// Build the snapshot before taking the lock; a cancelled context
	// discards it without touching the current corpus.
	snap := &memSnapshot{
		documentID: documentID,
		records:    make([]Record, len(records)),
	}
	copy(snap.records, records)

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
	return nil
}

// Query implements Index.
func (s *MemStore) Query(_ context.Context, embedding []float32, topK int) ([]Match, error) {
	if topK < 1 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	s.mu.RLock()
	snap := s.snap
	s.mu.RUnlock()

	matches := make([]Match, 0, len(snap.records))
	for _, r := range snap.records {
		sim, err := cosineSimilarity(embedding, r.Embedding)
		if err != nil {
			return nil, fmt.Errorf("record %q: %w", r.ID, err)
		}
		matches = append(matches, Match{ID: r.ID, Text: r.Text, Similarity: sim})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Count implements Index.
func (s *MemStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snap.records), nil
}

// Clear implements Index.
func (s *MemStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.snap = &memSnapshot{}
	s.mu.Unlock()
	return nil
}

// cosineSimilarity computes the cosine similarity of two vectors.
func cosineSimilarity(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB))), nil
}
