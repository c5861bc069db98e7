// Package retrieval implements the document side of the assistant: the
// retrieve_documents tool the model calls during a turn, and the ingestion
// pipeline that replaces the corpus when a file is uploaded.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/docent-ai/docent/internal/embed"
	"github.com/docent-ai/docent/internal/index"
)

// ToolName is the name the model uses to call document retrieval.
const ToolName = "retrieve_documents"

// ChunkSeparator joins retrieved chunks into a single tool result.
const ChunkSeparator = "\n\n---\n\n"

// Sentinel results returned to the model instead of errors. An empty or
// unhelpful corpus is a normal answerable state, not a failure.
const (
	NoDocuments = "No documents have been uploaded yet. Please upload a document first."
	NoMatches   = "No relevant information found in the documents for this query."
)

// Retriever answers similarity queries against the active corpus.
// It is read-only and safe for concurrent use.
type Retriever struct {
	embedder *embed.Gateway
	idx      index.Index
	topK     int
	logger   *slog.Logger
}

// NewRetriever creates a Retriever returning up to topK chunks per query.
func NewRetriever(embedder *embed.Gateway, idx index.Index, topK int, logger *slog.Logger) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if idx == nil {
		return nil, fmt.Errorf("index is required")
	}
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embedder: embedder, idx: idx, topK: topK, logger: logger}, nil
}

// Retrieve returns the most similar chunks for query, joined by
// ChunkSeparator, or one of the sentinel strings.
func (r *Retriever) Retrieve(ctx context.Context, query string) (string, error) {
	count, err := r.idx.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("counting indexed chunks: %w", err)
	}
	if count == 0 {
		return NoDocuments, nil
	}

	vec, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		return "", fmt.Errorf("embedding query: %w", err)
	}

	matches, err := r.idx.Query(ctx, vec, r.topK)
	if err != nil {
		return "", fmt.Errorf("querying index: %w", err)
	}
	if len(matches) == 0 {
		return NoMatches, nil
	}

	texts := make([]string, len(matches))
	for i, m := range matches {
		texts[i] = m.Text
	}

	r.logger.Debug("retrieved chunks", "query_len", len(query), "matches", len(matches))
	return strings.Join(texts, ChunkSeparator), nil
}

// DefineTool registers the retriever as a genkit tool the model can call.
func (r *Retriever) DefineTool(g *genkit.Genkit) ai.Tool {
	return genkit.DefineTool(
		g,
		ToolName,
		"Search the uploaded documents for information relevant to a query. "+
			"Returns the most relevant passages, or a notice when no documents "+
			"are uploaded or nothing relevant is found. "+
			"Always use this tool to answer questions about document content.",
		func(ctx *ai.ToolContext, input struct {
			Query string `json:"query" jsonschema_description:"The search query"`
		}) (string, error) {
			return r.Retrieve(ctx, input.Query)
		},
	)
}
