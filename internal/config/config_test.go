package config

import (
	"errors"
	"strings"
	"testing"
)

// validConfig returns a config that passes Validate with a gemini key set.
func validConfig() Config {
	return Config{
		Provider:      ProviderGemini,
		ModelName:     "gemini-2.5-flash",
		EmbedderModel: "text-embedding-004",
		MaxTurns:      5,
		HistoryTurns:  5,
		RetrievalK:    3,
		VectorBackend: VectorBackendPGVector,
		PostgresHost:  "localhost",
		PostgresPort:  5432,
		SQLitePath:    "data/conversations.db",
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate on valid config: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"unknown provider", func(c *Config) { c.Provider = "anthropic" }, ErrInvalidProvider},
		{"empty model", func(c *Config) { c.ModelName = "" }, ErrInvalidModelName},
		{"empty embedder", func(c *Config) { c.EmbedderModel = "" }, ErrInvalidEmbedderModel},
		{"zero max turns", func(c *Config) { c.MaxTurns = 0 }, ErrInvalidMaxTurns},
		{"excessive max turns", func(c *Config) { c.MaxTurns = MaxAllowedTurns + 1 }, ErrInvalidMaxTurns},
		{"negative history", func(c *Config) { c.HistoryTurns = -1 }, ErrInvalidHistoryLimit},
		{"zero top k", func(c *Config) { c.RetrievalK = 0 }, ErrInvalidTopK},
		{"empty postgres host", func(c *Config) { c.PostgresHost = "" }, ErrInvalidPostgresHost},
		{"bad postgres port", func(c *Config) { c.PostgresPort = 70000 }, ErrInvalidPostgresPort},
		{"empty sqlite path", func(c *Config) { c.SQLitePath = "" }, ErrInvalidSQLitePath},
		{"unknown vector backend", func(c *Config) { c.VectorBackend = "redis" }, ErrInvalidVectorBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateMissingAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	cfg := validConfig()
	if err := cfg.Validate(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Validate error = %v, want ErrMissingAPIKey", err)
	}
}

func TestValidateMemoryBackendSkipsPostgres(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg := validConfig()
	cfg.VectorBackend = VectorBackendMemory
	cfg.PostgresHost = ""
	cfg.PostgresPort = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate with memory backend: %v", err)
	}
}

func TestFullModelName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		provider string
		model    string
		want     string
	}{
		{ProviderGemini, "gemini-2.5-flash", "googleai/gemini-2.5-flash"},
		{ProviderOllama, "llama3.3", "ollama/llama3.3"},
		{ProviderOpenAI, "gpt-4o", "openai/gpt-4o"},
		{ProviderGemini, "already/qualified", "already/qualified"},
	}

	for _, tt := range tests {
		cfg := Config{Provider: tt.provider, ModelName: tt.model}
		if got := cfg.FullModelName(); got != tt.want {
			t.Errorf("FullModelName(%s, %s) = %q, want %q", tt.provider, tt.model, got, tt.want)
		}
	}
}

func TestPostgresConnectionString(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.PostgresUser = "docent"
	cfg.PostgresPassword = "secret word"
	cfg.PostgresDBName = "docent"
	cfg.PostgresSSLMode = "disable"

	got := cfg.PostgresConnectionString()
	for _, want := range []string{"host=localhost", "port=5432", "dbname=docent", "password='secret word'"} {
		if !strings.Contains(got, want) {
			t.Errorf("DSN %q missing %q", got, want)
		}
	}
}

func TestPostgresURL(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.PostgresUser = "docent"
	cfg.PostgresPassword = "p@ss/word"
	cfg.PostgresDBName = "docent"
	cfg.PostgresSSLMode = "disable"

	got := cfg.PostgresURL()
	if !strings.HasPrefix(got, "postgres://") {
		t.Errorf("URL = %q, want postgres:// scheme", got)
	}
	if strings.Contains(got, "p@ss/word") {
		t.Errorf("URL %q contains unescaped password", got)
	}
}
