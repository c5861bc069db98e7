// Package app provides application initialization and dependency wiring.
//
// Setup builds the full component graph from configuration: model provider,
// embedder, vector index, conversation store, facts memory, agent and
// ingestion pipeline. Close releases everything in reverse order.
package app

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docent-ai/docent/internal/agent"
	"github.com/docent-ai/docent/internal/config"
	"github.com/docent-ai/docent/internal/facts"
	"github.com/docent-ai/docent/internal/history"
	"github.com/docent-ai/docent/internal/index"
	"github.com/docent-ai/docent/internal/retrieval"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder

	DBPool    *pgxpool.Pool // nil with the memory backend
	Index     index.Index
	History   *history.Store
	Facts     *facts.Store
	Agent     *agent.Agent
	Retriever *retrieval.Retriever
	Ingestor  *retrieval.Ingestor

	historyDB   *sql.DB
	otelCleanup func()
}

// Close gracefully releases all resources.
func (a *App) Close() error {
	a.logger().Info("shutting down application")

	if a.historyDB != nil {
		if err := a.historyDB.Close(); err != nil {
			a.logger().Warn("closing history database", "error", err)
		}
	}
	if a.DBPool != nil {
		a.DBPool.Close()
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}

// Ready reports whether backing stores answer. Used by the /ready probe.
func (a *App) Ready(ctx context.Context) error {
	if a.DBPool != nil {
		if err := a.DBPool.Ping(ctx); err != nil {
			return err
		}
	}
	if a.historyDB != nil {
		if err := a.historyDB.PingContext(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}
