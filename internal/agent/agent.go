// Package agent runs the tool-calling conversation loop.
//
// The loop is driven here rather than delegated to the model framework: each
// round asks the model for either a final answer or tool requests, executes
// the requested tools, and feeds the results back. Keeping the loop explicit
// makes the turn budget, the unknown-tool case and the termination condition
// visible and testable, and leaves the model provider swappable behind the
// generate call.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/docent-ai/docent/internal/facts"
	"github.com/docent-ai/docent/internal/history"
)

// historyReader is the slice of the conversation store the agent needs.
type historyReader interface {
	RecentNonIngestion(ctx context.Context, limit int) ([]history.Turn, error)
}

// generateFunc abstracts the model call so tests can script responses.
type generateFunc func(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error)

// Config assembles an Agent.
type Config struct {
	Genkit       *genkit.Genkit
	ModelName    string // full provider-qualified name, e.g. "googleai/gemini-2.5-flash"
	Tools        []ai.Tool
	History      historyReader
	MaxTurns     int // model rounds before giving up
	HistoryTurns int // prior turns included as context
	Limiter      *rate.Limiter
	Retry        RetryConfig
	Logger       *slog.Logger
}

func (c *Config) validate() error {
	if c.Genkit == nil {
		return fmt.Errorf("genkit instance is required")
	}
	if c.ModelName == "" {
		return fmt.Errorf("model name is required")
	}
	if c.History == nil {
		return fmt.Errorf("history reader is required")
	}
	if c.MaxTurns <= 0 {
		return fmt.Errorf("max turns must be positive, got %d", c.MaxTurns)
	}
	if c.HistoryTurns < 0 {
		return fmt.Errorf("history turns must be non-negative, got %d", c.HistoryTurns)
	}
	return nil
}

// Agent answers user queries, calling registered tools as the model requests.
type Agent struct {
	g            *genkit.Genkit
	modelName    string
	tools        map[string]ai.Tool
	toolRefs     []ai.ToolRef
	historyStore historyReader
	maxTurns     int
	historyTurns int
	limiter      *rate.Limiter
	retryCfg     RetryConfig
	generate     generateFunc
	logger       *slog.Logger
}

// New creates an Agent from cfg.
func New(cfg Config) (*Agent, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid agent config: %w", err)
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.Limiter == nil {
		cfg.Limiter = rate.NewLimiter(10, 30)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	tools := make(map[string]ai.Tool, len(cfg.Tools))
	toolRefs := make([]ai.ToolRef, 0, len(cfg.Tools))
	for _, t := range cfg.Tools {
		tools[t.Name()] = t
		toolRefs = append(toolRefs, t)
	}

	a := &Agent{
		g:            cfg.Genkit,
		modelName:    cfg.ModelName,
		tools:        tools,
		toolRefs:     toolRefs,
		historyStore: cfg.History,
		maxTurns:     cfg.MaxTurns,
		historyTurns: cfg.HistoryTurns,
		limiter:      cfg.Limiter,
		retryCfg:     cfg.Retry,
		logger:       cfg.Logger,
	}
	a.generate = a.defaultGenerate
	return a, nil
}

// Answer runs the conversation loop for one user query. The facts snapshot
// is rendered into the system prompt; history provides prior turns as
// context. Returns the model's final text answer.
func (a *Agent) Answer(ctx context.Context, query string, f facts.Facts) (string, error) {
	msgs, err := a.contextMessages(ctx)
	if err != nil {
		return "", err
	}
	msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(query)))

	system := systemPrompt(f)

	for turn := 0; turn < a.maxTurns; turn++ {
		opts := []ai.GenerateOption{
			ai.WithModelName(a.modelName),
			ai.WithSystem(system),
			ai.WithMessages(msgs...),
			ai.WithTools(a.toolRefs...),
			ai.WithReturnToolRequests(true),
		}

		resp, err := a.generateWithRetry(ctx, opts)
		if err != nil {
			return "", err
		}

		reqs := resp.ToolRequests()
		if len(reqs) == 0 {
			a.logger.Debug("agent produced final answer", "turns", turn+1)
			return resp.Text(), nil
		}

		msgs = append(msgs, resp.Message)

		parts, err := a.runTools(ctx, reqs)
		if err != nil {
			return "", err
		}
		msgs = append(msgs, ai.NewMessage(ai.RoleTool, nil, parts...))
	}

	return "", fmt.Errorf("%w: no final answer after %d turns", ErrExhausted, a.maxTurns)
}

// contextMessages converts recent history into alternating user and model
// messages, oldest first.
func (a *Agent) contextMessages(ctx context.Context) ([]*ai.Message, error) {
	if a.historyTurns == 0 {
		return nil, nil
	}

	turns, err := a.historyStore.RecentNonIngestion(ctx, a.historyTurns)
	if err != nil {
		return nil, fmt.Errorf("loading conversation history: %w", err)
	}

	msgs := make([]*ai.Message, 0, 2*len(turns)+1)
	for _, t := range turns {
		msgs = append(msgs,
			ai.NewUserMessage(ai.NewTextPart(t.Query)),
			ai.NewModelTextMessage(t.Response),
		)
	}
	return msgs, nil
}

// runTools executes every tool request from one model round and returns the
// response parts in request order.
func (a *Agent) runTools(ctx context.Context, reqs []*ai.ToolRequest) ([]*ai.Part, error) {
	parts := make([]*ai.Part, 0, len(reqs))
	for _, req := range reqs {
		tool, ok := a.tools[req.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTool, req.Name)
		}

		a.logger.Debug("executing tool", "tool", req.Name)
		out, err := tool.RunRaw(ctx, req.Input)
		if err != nil {
			return nil, fmt.Errorf("running tool %q: %w", req.Name, err)
		}

		parts = append(parts, ai.NewToolResponsePart(&ai.ToolResponse{
			Name:   req.Name,
			Ref:    req.Ref,
			Output: out,
		}))
	}
	return parts, nil
}

// systemPrompt renders the instruction block for one request. Known user
// facts are inlined so the model can answer personal references without a
// tool call.
func systemPrompt(f facts.Facts) string {
	name, age, birthplace := "Unknown", "Unknown", "Unknown"
	if f.Name != "" {
		name = f.Name
	}
	if f.Age != 0 {
		age = strconv.Itoa(f.Age)
	}
	if f.Birthplace != "" {
		birthplace = f.Birthplace
	}

	return fmt.Sprintf(`You are a helpful and conversational research assistant. You have two main jobs:
1. Chat with the user in a friendly way.
2. Answer questions about documents the user has uploaded using your `+"`retrieve_documents`"+` tool.

User info:
- Name: %s
- Age: %s
- Birthplace: %s

Rules:
- If the user asks a conversational question or makes a statement, respond naturally. DO NOT use the tool for these.
- If the user asks a specific question that requires information from their documents, you MUST use the `+"`retrieve_documents`"+` tool.
- After using the tool, base your answer strictly on the context provided. If the tool returns no relevant information, say that you couldn't find the answer in the documents.`,
		name, age, birthplace)
}
