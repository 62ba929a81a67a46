package notes

import (
	"context"
	"strings"
	"testing"

	"github.com/livememory/livememory/internal/objectstore"
)

func TestNote_RoundTripsAndIsDistinct(t *testing.T) {
	ctx := context.Background()
	s := NewStore(objectstore.NewMemStore())

	n1, err := s.Note(ctx, "demo", "observation", "build ok", "agent1", "")
	if err != nil {
		t.Fatalf("Note failed: %v", err)
	}
	n2, err := s.Note(ctx, "demo", "observation", "build ok", "agent1", "")
	if err != nil {
		t.Fatalf("second Note failed: %v", err)
	}
	if n1.Key == n2.Key {
		t.Fatal("two notes in the same second must have distinct keys")
	}

	read, err := s.Read(ctx, "demo", 10, "", "", "")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(read) != 2 {
		t.Fatalf("Read returned %d notes, want 2", len(read))
	}
	if read[0].Content != "build ok" {
		t.Errorf("content = %q, want 'build ok'", read[0].Content)
	}
}

func TestNote_RejectsBadCategory(t *testing.T) {
	ctx := context.Background()
	s := NewStore(objectstore.NewMemStore())

	if _, err := s.Note(ctx, "demo", "not-a-category", "x", "agent1", ""); err == nil {
		t.Fatal("expected validation error for bad category")
	}
}

func TestNote_ContentLengthBoundary(t *testing.T) {
	ctx := context.Background()
	s := NewStore(objectstore.NewMemStore())

	ok := strings.Repeat("a", 100_000)
	if _, err := s.Note(ctx, "demo", "observation", ok, "agent1", ""); err != nil {
		t.Errorf("100000 chars should succeed, got %v", err)
	}

	tooLong := strings.Repeat("a", 100_001)
	if _, err := s.Note(ctx, "demo", "observation", tooLong, "agent1", ""); err == nil {
		t.Error("100001 chars should fail")
	}
}

func TestNote_AcceptsContentContainingHTMLMarkup(t *testing.T) {
	ctx := context.Background()
	s := NewStore(objectstore.NewMemStore())

	if _, err := s.Note(ctx, "demo", "observation", "before <script>alert(1)</script> after", "agent1", ""); err != nil {
		t.Errorf("content that merely mentions HTML markup should be accepted, got %v", err)
	}
	if _, err := s.Note(ctx, "demo", "observation", "<div>\nblock html\n</div>", "agent1", ""); err != nil {
		t.Errorf("content that merely mentions HTML markup should be accepted, got %v", err)
	}
	if _, err := s.Note(ctx, "demo", "observation", "plain text with `code` and *emphasis*", "agent1", ""); err != nil {
		t.Errorf("ordinary markdown should be accepted, got %v", err)
	}
}

func TestRead_FiltersByCategoryAndAgent(t *testing.T) {
	ctx := context.Background()
	s := NewStore(objectstore.NewMemStore())
	s.Note(ctx, "demo", "observation", "a", "agent1", "")
	s.Note(ctx, "demo", "decision", "b", "agent2", "")

	got, err := s.Read(ctx, "demo", 10, "decision", "", "")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(got) != 1 || got[0].Meta.Category != "decision" {
		t.Errorf("Read(category=decision) = %+v, want 1 decision note", got)
	}
}

func TestSearch_CaseInsensitiveSubstring(t *testing.T) {
	ctx := context.Background()
	s := NewStore(objectstore.NewMemStore())
	s.Note(ctx, "demo", "observation", "Build Succeeded", "agent1", "")

	got, err := s.Search(ctx, "demo", "succeeded", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Search returned %d results, want 1", len(got))
	}
}

func TestSnapshotForConsolidation_RestrictsToAgent(t *testing.T) {
	ctx := context.Background()
	s := NewStore(objectstore.NewMemStore())
	s.Note(ctx, "demo", "observation", "a", "agent1", "")
	s.Note(ctx, "demo", "observation", "b", "agent2", "")

	selected, remaining, err := s.SnapshotForConsolidation(ctx, "demo", "agent1", 500)
	if err != nil {
		t.Fatalf("SnapshotForConsolidation failed: %v", err)
	}
	if len(selected) != 1 || selected[0].Meta.Agent != "agent1" {
		t.Errorf("selected = %+v, want only agent1's note", selected)
	}
	if remaining != 0 {
		t.Errorf("remaining = %d, want 0", remaining)
	}
}

func TestSnapshotForConsolidation_CapsAtMaxNotes(t *testing.T) {
	ctx := context.Background()
	s := NewStore(objectstore.NewMemStore())
	for i := 0; i < 5; i++ {
		s.Note(ctx, "demo", "observation", "n", "agent1", "")
	}

	selected, remaining, err := s.SnapshotForConsolidation(ctx, "demo", "", 3)
	if err != nil {
		t.Fatalf("SnapshotForConsolidation failed: %v", err)
	}
	if len(selected) != 3 {
		t.Fatalf("selected = %d notes, want 3", len(selected))
	}
	if remaining != 2 {
		t.Errorf("remaining = %d, want 2", remaining)
	}
}
