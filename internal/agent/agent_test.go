package agent

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/docent-ai/docent/internal/facts"
	"github.com/docent-ai/docent/internal/history"
	"github.com/docent-ai/docent/internal/log"
	"github.com/docent-ai/docent/internal/testutil"
)

// stubHistory serves a fixed window of turns.
type stubHistory struct {
	turns []history.Turn
	err   error
}

func (s *stubHistory) RecentNonIngestion(context.Context, int) ([]history.Turn, error) {
	return s.turns, s.err
}

func newTestAgent(t *testing.T, g *genkit.Genkit, tools []ai.Tool, hist historyReader) *Agent {
	t.Helper()

	if hist == nil {
		hist = &stubHistory{}
	}
	a, err := New(Config{
		Genkit:       g,
		ModelName:    testutil.MockModelName,
		Tools:        tools,
		History:      hist,
		MaxTurns:     3,
		HistoryTurns: 5,
		Logger:       log.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestAnswerDirect(t *testing.T) {
	ctx := context.Background()
	g := genkit.Init(ctx)
	if g == nil {
		t.Fatal("initializing genkit")
	}

	mock := testutil.NewMockLLM("I cannot help with that.")
	mock.RegisterModel(g)
	mock.AddResponse("hello", "Hi there!")

	a := newTestAgent(t, g, nil, nil)

	answer, err := a.Answer(ctx, "hello", facts.Facts{})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if answer != "Hi there!" {
		t.Errorf("answer = %q, want %q", answer, "Hi there!")
	}
	if calls := mock.Calls(); len(calls) != 1 {
		t.Errorf("model called %d times, want 1", len(calls))
	}
}

func TestAnswerExecutesRequestedTool(t *testing.T) {
	ctx := context.Background()
	g := genkit.Init(ctx)
	if g == nil {
		t.Fatal("initializing genkit")
	}

	var toolRuns atomic.Int32
	tool := genkit.DefineTool(g, "lookup", "Look up document passages.",
		func(_ *ai.ToolContext, input struct {
			Query string `json:"query"`
		}) (string, error) {
			toolRuns.Add(1)
			return "passage about " + input.Query, nil
		},
	)

	mock := testutil.NewMockLLM("Cats are mammals.")
	mock.RegisterModel(g)
	mock.AddToolResponse("cats", &ai.ToolRequest{
		Name:  "lookup",
		Input: map[string]any{"query": "cats"},
	})

	a := newTestAgent(t, g, []ai.Tool{tool}, nil)

	answer, err := a.Answer(ctx, "tell me about cats", facts.Facts{})
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if answer != "Cats are mammals." {
		t.Errorf("answer = %q, want %q", answer, "Cats are mammals.")
	}
	if got := toolRuns.Load(); got != 1 {
		t.Errorf("tool ran %d times, want 1", got)
	}
	if calls := mock.Calls(); len(calls) != 2 {
		t.Errorf("model called %d times, want 2 (tool round + final)", len(calls))
	}
}

func TestAnswerUnknownTool(t *testing.T) {
	ctx := context.Background()
	g := genkit.Init(ctx)
	if g == nil {
		t.Fatal("initializing genkit")
	}

	mock := testutil.NewMockLLM("fallback")
	mock.RegisterModel(g)
	mock.AddRepeatingToolResponse("query", &ai.ToolRequest{
		Name:  "no_such_tool",
		Input: map[string]any{},
	})

	a := newTestAgent(t, g, nil, nil)

	_, err := a.Answer(ctx, "query something", facts.Facts{})
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("Answer error = %v, want ErrUnknownTool", err)
	}
}

func TestAnswerExhaustsTurnBudget(t *testing.T) {
	ctx := context.Background()
	g := genkit.Init(ctx)
	if g == nil {
		t.Fatal("initializing genkit")
	}

	var toolRuns atomic.Int32
	tool := genkit.DefineTool(g, "spin", "Always requested again.",
		func(*ai.ToolContext, struct{}) (string, error) {
			toolRuns.Add(1)
			return "more", nil
		},
	)

	mock := testutil.NewMockLLM("unused")
	mock.RegisterModel(g)
	mock.AddRepeatingToolResponse("loop", &ai.ToolRequest{
		Name:  "spin",
		Input: map[string]any{},
	})

	a := newTestAgent(t, g, []ai.Tool{tool}, nil)

	_, err := a.Answer(ctx, "loop forever", facts.Facts{})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("Answer error = %v, want ErrExhausted", err)
	}
	if got := toolRuns.Load(); got != 3 {
		t.Errorf("tool ran %d times, want 3 (one per turn)", got)
	}
}

func TestAnswerHistoryLoadFailure(t *testing.T) {
	ctx := context.Background()
	g := genkit.Init(ctx)
	if g == nil {
		t.Fatal("initializing genkit")
	}

	mock := testutil.NewMockLLM("unused")
	mock.RegisterModel(g)

	a := newTestAgent(t, g, nil, &stubHistory{err: errors.New("disk gone")})

	if _, err := a.Answer(ctx, "hello", facts.Facts{}); err == nil {
		t.Fatal("Answer succeeded despite history failure, want error")
	}
}

func TestContextMessages(t *testing.T) {
	t.Parallel()

	a := &Agent{
		historyTurns: 5,
		historyStore: &stubHistory{turns: []history.Turn{
			{Query: "first question", Response: "first answer"},
			{Query: "second question", Response: "second answer"},
		}},
		logger: log.NewNop(),
	}

	msgs, err := a.contextMessages(context.Background())
	if err != nil {
		t.Fatalf("contextMessages: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4", len(msgs))
	}

	wantRoles := []ai.Role{ai.RoleUser, ai.RoleModel, ai.RoleUser, ai.RoleModel}
	wantTexts := []string{"first question", "first answer", "second question", "second answer"}
	for i, msg := range msgs {
		if msg.Role != wantRoles[i] {
			t.Errorf("msgs[%d].Role = %q, want %q", i, msg.Role, wantRoles[i])
		}
		if msg.Text() != wantTexts[i] {
			t.Errorf("msgs[%d].Text() = %q, want %q", i, msg.Text(), wantTexts[i])
		}
	}
}

func TestContextMessagesDisabled(t *testing.T) {
	t.Parallel()

	a := &Agent{historyTurns: 0, historyStore: &stubHistory{
		turns: []history.Turn{{Query: "q", Response: "a"}},
	}}

	msgs, err := a.contextMessages(context.Background())
	if err != nil {
		t.Fatalf("contextMessages: %v", err)
	}
	if msgs != nil {
		t.Errorf("msgs = %v, want nil when history is disabled", msgs)
	}
}

func TestSystemPrompt(t *testing.T) {
	t.Parallel()

	got := systemPrompt(facts.Facts{Name: "Alice", Age: 30, Birthplace: "Paris"})
	for _, want := range []string{"Name: Alice", "Age: 30", "Birthplace: Paris", "retrieve_documents"} {
		if !strings.Contains(got, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}

	empty := systemPrompt(facts.Facts{})
	for _, want := range []string{"Name: Unknown", "Age: Unknown", "Birthplace: Unknown"} {
		if !strings.Contains(empty, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

func TestRetryableError(t *testing.T) {
	t.Parallel()

	retryable := []string{
		"rate limit exceeded",
		"got HTTP 429 from upstream",
		"server returned 503",
		"model overloaded, try again",
		"connection reset by peer",
	}
	for _, msg := range retryable {
		if !retryableError(errors.New(msg)) {
			t.Errorf("retryableError(%q) = false, want true", msg)
		}
	}

	permanent := []string{
		"invalid API key",
		"model not found",
		"bad request",
	}
	for _, msg := range permanent {
		if retryableError(errors.New(msg)) {
			t.Errorf("retryableError(%q) = true, want false", msg)
		}
	}
	if retryableError(nil) {
		t.Error("retryableError(nil) = true, want false")
	}
}

func TestConfigValidate(t *testing.T) {
	ctx := context.Background()
	g := genkit.Init(ctx)
	if g == nil {
		t.Fatal("initializing genkit")
	}

	base := Config{
		Genkit:       g,
		ModelName:    testutil.MockModelName,
		History:      &stubHistory{},
		MaxTurns:     5,
		HistoryTurns: 5,
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing genkit", func(c *Config) { c.Genkit = nil }},
		{"missing model", func(c *Config) { c.ModelName = "" }},
		{"missing history", func(c *Config) { c.History = nil }},
		{"zero max turns", func(c *Config) { c.MaxTurns = 0 }},
		{"negative history turns", func(c *Config) { c.HistoryTurns = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			if _, err := New(cfg); err == nil {
				t.Error("New accepted invalid config")
			}
		})
	}

	if _, err := New(base); err != nil {
		t.Errorf("New rejected valid config: %v", err)
	}
}
