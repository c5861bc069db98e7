// Package index provides the vector index capability consumed by the
// retrieval and ingestion pipeline.
//
// The corpus holds at most one document's chunks at a time. Replacing the
// corpus is atomic: a new generation is built completely and the active
// pointer is swapped in one step, so a concurrent reader sees either the old
// corpus or the new one, never a mix.
package index

import "context"

// Dimension is the embedding vector dimension shared by the index schema and
// the embedder configuration (text-embedding-004 outputs 768 dimensions).
const Dimension = 768

// KeepGenerations is how many inactive generations are retained before
// garbage collection. Old generations are kept briefly so queries that raced
// a swap can finish against a consistent snapshot.
const KeepGenerations = 3

// Record is one indexed chunk: a unique id within its generation, the chunk
// embedding, and the chunk text carried as metadata.
type Record struct {
	ID        string
	Embedding []float32
	Text      string
}

// Match is a single query result with cosine similarity in [0, 1],
// higher is closer.
type Match struct {
	ID         string
	Text       string
	Similarity float32
}

// Index is the narrow capability interface over a vector store.
//
// Implementations must make Replace atomic with respect to Query and Count:
// no caller may observe a partially replaced corpus.
type Index interface {
	// Replace atomically swaps the whole corpus for the given document's
	// records. A failure or cancellation before the swap leaves the
	// previous corpus intact.
	Replace(ctx context.Context, documentID string, records []Record) error

	// Query returns the topK nearest records by cosine similarity,
	// closest first.
	Query(ctx context.Context, embedding []float32, topK int) ([]Match, error)

	// Count reports the number of records in the active corpus.
	Count(ctx context.Context) (int, error)

	// Clear removes the active corpus entirely.
	Clear(ctx context.Context) error
}
