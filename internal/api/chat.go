package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/docent-ai/docent/internal/agent"
	"github.com/docent-ai/docent/internal/extract"
	"github.com/docent-ai/docent/internal/facts"
	"github.com/docent-ai/docent/internal/history"
	"github.com/docent-ai/docent/internal/retrieval"
)

// maxMultipartMemory bounds how much of an upload is buffered in memory
// before spilling to disk.
const maxMultipartMemory = 8 << 20

// promptForInput is returned when a request carries neither query nor file.
const promptForInput = "Please provide a query or a file."

// answerer runs the conversation loop for one query.
type answerer interface {
	Answer(ctx context.Context, query string, f facts.Facts) (string, error)
}

// documentIngestor replaces the corpus from an uploaded document.
type documentIngestor interface {
	Ingest(ctx context.Context, filename string, data []byte) (retrieval.Result, error)
}

// chatResponse is the single response shape of POST /api/chat.
type chatResponse struct {
	Response string `json:"response"`
}

type chatHandler struct {
	agent    answerer
	ingestor documentIngestor
	facts    *facts.Store
	history  *history.Store
	logger   *slog.Logger
}

// chat dispatches one multipart request: a file part triggers ingestion, a
// query part triggers the agent, neither prompts for input. When both are
// present the file wins.
func (h *chatHandler) chat(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_form", "expected multipart form data", h.logger)
		return
	}

	if file, header, err := r.FormFile("file"); err == nil {
		defer func() { _ = file.Close() }()
		h.handleUpload(w, r, file, header.Filename)
		return
	}

	if query := r.FormValue("query"); query != "" {
		h.handleQuery(w, r, query)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Response: promptForInput}, h.logger)
}

func (h *chatHandler) handleUpload(w http.ResponseWriter, r *http.Request, file io.Reader, filename string) {
	data, err := io.ReadAll(io.LimitReader(file, extract.MaxDocumentSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read_failed", "failed to read uploaded file", h.logger)
		return
	}

	result, err := h.ingestor.Ingest(r.Context(), filename, data)
	switch {
	case errors.Is(err, extract.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "file_too_large", "uploaded file exceeds the size limit", h.logger)
		return
	case errors.Is(err, extract.ErrUnsupportedFormat):
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_format", "unsupported document format", h.logger)
		return
	case err != nil:
		h.logger.Error("ingestion failed", "filename", filename, "error", err)
		writeError(w, http.StatusInternalServerError, "ingest_failed", "failed to ingest document", h.logger)
		return
	}

	if !result.OK {
		writeJSON(w, http.StatusOK, chatResponse{
			Response: fmt.Sprintf("No text extracted from '%s'.", filename),
		}, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Response: fmt.Sprintf("New session started. Successfully indexed '%s'.", filename),
	}, h.logger)
}

func (h *chatHandler) handleQuery(w http.ResponseWriter, r *http.Request, query string) {
	sessionID, err := sessionIDFromForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_session", "sessionId must be a UUID", h.logger)
		return
	}

	h.facts.Observe(sessionID, query)

	if facts.IsMetaQuestion(query) {
		answer := h.facts.Facts(sessionID).Answer()
		h.recordTurn(r.Context(), query, answer)
		writeJSON(w, http.StatusOK, chatResponse{Response: answer}, h.logger)
		return
	}

	answer, err := h.agent.Answer(r.Context(), query, h.facts.Facts(sessionID))
	if err != nil {
		h.logger.Error("agent failed", "error", err)
		switch {
		case errors.Is(err, agent.ErrModelUnavailable):
			writeError(w, http.StatusServiceUnavailable, "model_unavailable", "the language model is unavailable", h.logger)
		case errors.Is(err, agent.ErrExhausted):
			writeError(w, http.StatusInternalServerError, "no_answer", "the assistant could not produce an answer", h.logger)
		default:
			writeError(w, http.StatusInternalServerError, "agent_failed", "failed to answer the query", h.logger)
		}
		return
	}

	h.recordTurn(r.Context(), query, answer)
	writeJSON(w, http.StatusOK, chatResponse{Response: answer}, h.logger)
}

// recordTurn persists a completed turn. A persistence failure is logged but
// never withholds the computed answer from the client.
func (h *chatHandler) recordTurn(ctx context.Context, query, response string) {
	turn := history.Turn{Query: query, Response: response}
	if err := h.history.Append(ctx, turn); err != nil {
		h.logger.Error("failed to persist turn", "error", err)
	}
}

// sessionIDFromForm reads the optional sessionId form field. Absent means
// the shared default session.
func sessionIDFromForm(r *http.Request) (uuid.UUID, error) {
	raw := r.FormValue("sessionId")
	if raw == "" {
		return facts.DefaultSessionID, nil
	}
	return uuid.Parse(raw)
}
