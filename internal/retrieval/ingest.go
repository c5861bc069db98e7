package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/docent-ai/docent/internal/embed"
	"github.com/docent-ai/docent/internal/extract"
	"github.com/docent-ai/docent/internal/history"
	"github.com/docent-ai/docent/internal/index"
)

// Ingestion turn literals recorded in the conversation log.
const (
	IngestionQuery    = "File Upload"
	IngestionResponse = "Document ingested successfully."
)

// conversationLog is the slice of the history store ingestion needs.
type conversationLog interface {
	Append(ctx context.Context, turn history.Turn) error
	ClearNonIngestion(ctx context.Context) error
}

// Result reports the outcome of one ingestion.
type Result struct {
	OK     bool
	Reason string
	Chunks int
}

// Ingestor replaces the corpus with the contents of an uploaded document.
//
// Uploads are serialized with a mutex: concurrent ingestions would race on
// which document ends up active, and the last-writer-wins answer is clearer
// when writers run one at a time. Readers are never blocked; they see the
// previous corpus until the swap commits.
type Ingestor struct {
	mu        sync.Mutex
	extractor extract.Extractor
	embedder  *embed.Gateway
	idx       index.Index
	log       conversationLog
	logger    *slog.Logger
}

// NewIngestor creates an Ingestor.
func NewIngestor(extractor extract.Extractor, embedder *embed.Gateway, idx index.Index, log conversationLog, logger *slog.Logger) (*Ingestor, error) {
	if extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if idx == nil {
		return nil, fmt.Errorf("index is required")
	}
	if log == nil {
		return nil, fmt.Errorf("conversation log is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		extractor: extractor,
		embedder:  embedder,
		idx:       idx,
		log:       log,
		logger:    logger,
	}, nil
}

// Ingest extracts text from data, embeds it and atomically replaces the
// active corpus. On success the non-ingestion conversation history is
// cleared (a new document starts a new topical session) and an ingestion
// turn is recorded. A document with no extractable text changes nothing.
func (in *Ingestor) Ingest(ctx context.Context, filename string, data []byte) (Result, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	text, err := in.extractor.Text(filename, data)
	if err != nil {
		return Result{}, fmt.Errorf("extracting text from %q: %w", filename, err)
	}

	chunks := ChunkLines(text)
	if len(chunks) == 0 {
		in.logger.Warn("document yielded no text", "filename", filename)
		return Result{OK: false, Reason: "no text extracted"}, nil
	}

	embeddings, err := in.embedder.Embed(ctx, chunks)
	if err != nil {
		return Result{}, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}

	if err := in.log.ClearNonIngestion(ctx); err != nil {
		return Result{}, fmt.Errorf("starting new session: %w", err)
	}

	records := make([]index.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = index.Record{
			ID:        fmt.Sprintf("%s-%d", filename, i),
			Embedding: embeddings[i],
			Text:      chunk,
		}
	}
	if err := in.idx.Replace(ctx, filename, records); err != nil {
		return Result{}, fmt.Errorf("replacing corpus: %w", err)
	}

	turn := history.Turn{
		Query:       IngestionQuery,
		Context:     text,
		Response:    IngestionResponse,
		IsIngestion: true,
	}
	if err := in.log.Append(ctx, turn); err != nil {
		// The corpus swap already committed; losing the audit record is
		// logged rather than failing the whole upload.
		in.logger.Error("recording ingestion turn failed", "filename", filename, "error", err)
	}

	in.logger.Info("document ingested", "filename", filename, "chunks", len(chunks))
	return Result{OK: true, Chunks: len(chunks)}, nil
}
