package history

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/docent-ai/docent/internal/log"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "conversations.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestAppendAndRecent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)
	s, err := New(db, log.NewNop(), false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 8; i++ {
		turn := Turn{
			Query:    fmt.Sprintf("question %d", i),
			Response: fmt.Sprintf("answer %d", i),
		}
		if err := s.Append(ctx, turn); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	turns, err := s.RecentNonIngestion(ctx, 5)
	if err != nil {
		t.Fatalf("RecentNonIngestion: %v", err)
	}
	if len(turns) != 5 {
		t.Fatalf("got %d turns, want 5", len(turns))
	}

	// The window holds the most recent turns in chronological order.
	for i, turn := range turns {
		want := fmt.Sprintf("question %d", i+3)
		if turn.Query != want {
			t.Errorf("turns[%d].Query = %q, want %q", i, turn.Query, want)
		}
	}
}

func TestRecentExcludesIngestionTurns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)
	s, err := New(db, log.NewNop(), false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.Append(ctx, Turn{Query: "hello", Response: "hi"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(ctx, Turn{
		Query:       "File Upload",
		Context:     "document text",
		Response:    "Document ingested successfully.",
		IsIngestion: true,
	}); err != nil {
		t.Fatalf("Append ingestion: %v", err)
	}

	turns, err := s.RecentNonIngestion(ctx, 10)
	if err != nil {
		t.Fatalf("RecentNonIngestion: %v", err)
	}
	if len(turns) != 1 || turns[0].Query != "hello" {
		t.Fatalf("turns = %+v, want only the conversational turn", turns)
	}

	count, err := s.CountIngestions(ctx)
	if err != nil {
		t.Fatalf("CountIngestions: %v", err)
	}
	if count != 1 {
		t.Errorf("CountIngestions = %d, want 1", count)
	}
}

func TestClearNonIngestionKeepsAuditTrail(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)
	s, err := New(db, log.NewNop(), false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.Append(ctx, Turn{Query: "q", Response: "a"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(ctx, Turn{Query: "File Upload", Response: "Document ingested successfully.", IsIngestion: true}); err != nil {
		t.Fatalf("Append ingestion: %v", err)
	}

	if err := s.ClearNonIngestion(ctx); err != nil {
		t.Fatalf("ClearNonIngestion: %v", err)
	}

	turns, err := s.RecentNonIngestion(ctx, 10)
	if err != nil {
		t.Fatalf("RecentNonIngestion: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("got %d conversational turns after clear, want 0", len(turns))
	}

	count, err := s.CountIngestions(ctx)
	if err != nil {
		t.Fatalf("CountIngestions: %v", err)
	}
	if count != 1 {
		t.Errorf("CountIngestions = %d, want 1 (audit trail must survive)", count)
	}
}

func TestResetOnStart(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)

	s, err := New(db, log.NewNop(), false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Append(ctx, Turn{Query: "q", Response: "a"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Reopening the store with the reset policy discards everything.
	if _, err := New(db, log.NewNop(), true); err != nil {
		t.Fatalf("New with reset: %v", err)
	}

	turns, err := s.RecentNonIngestion(ctx, 10)
	if err != nil {
		t.Fatalf("RecentNonIngestion: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("got %d turns after reset, want 0", len(turns))
	}
}

func TestRecentZeroLimit(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	s, err := New(db, log.NewNop(), false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	turns, err := s.RecentNonIngestion(context.Background(), 0)
	if err != nil {
		t.Fatalf("RecentNonIngestion: %v", err)
	}
	if turns != nil {
		t.Errorf("turns = %v, want nil", turns)
	}
}
