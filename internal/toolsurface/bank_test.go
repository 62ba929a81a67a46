package toolsurface

import (
	"context"
	"testing"
	"time"

	"github.com/livememory/livememory/internal/consolidate"
	"github.com/livememory/livememory/internal/locks"
	"github.com/livememory/livememory/internal/notes"
	"github.com/livememory/livememory/internal/objectstore"
	"github.com/livememory/livememory/internal/spaces"
)

type bankFakeLLM struct{}

func (f *bankFakeLLM) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return `{"bank_files":[{"filename":"journal.md","content":"entries","action":"created"}],"synthesis":"s"}`, nil
}

func (f *bankFakeLLM) CountTokens(text string) int { return len(text) / 4 }

func setupBankSpace(t *testing.T) (*objectstore.MemStore, *notes.Store, *consolidate.Consolidator) {
	t.Helper()
	store := objectstore.NewMemStore()
	repo := spaces.NewRepo(store)
	if _, err := repo.Create(context.Background(), "demo", "d", "r", "o"); err != nil {
		t.Fatalf("create space: %v", err)
	}
	noteStore := notes.NewStore(store)
	consolidator := consolidate.New(store, locks.NewRegistry(), noteStore, &bankFakeLLM{}, 100, time.Second, 0)
	return store, noteStore, consolidator
}

func TestBankTool_ListAndRead(t *testing.T) {
	store, _, consolidator := setupBankSpace(t)
	store.Put(context.Background(), "demo/bank/journal.md", []byte("hello"), "text/markdown")

	tool := NewBankTool(store, consolidator)
	listResult, err := tool.HandleList(ctxFor(readerIdentity()), withArgs(map[string]interface{}{"space_id": "demo"}))
	if err != nil {
		t.Fatalf("HandleList error: %v", err)
	}
	files, _ := envelopeFields(t, listResult)["files"].([]interface{})
	if len(files) != 1 || files[0] != "journal.md" {
		t.Fatalf("files = %v", files)
	}

	readResult, err := tool.HandleRead(ctxFor(readerIdentity()), withArgs(map[string]interface{}{
		"space_id": "demo", "filename": "journal.md",
	}))
	if err != nil {
		t.Fatalf("HandleRead error: %v", err)
	}
	if envelopeFields(t, readResult)["content"] != "hello" {
		t.Fatalf("unexpected content: %v", envelopeFields(t, readResult))
	}
}

func TestBankTool_Read_RejectsPathTraversal(t *testing.T) {
	store, _, consolidator := setupBankSpace(t)
	tool := NewBankTool(store, consolidator)

	result, _ := tool.HandleRead(ctxFor(readerIdentity()), withArgs(map[string]interface{}{
		"space_id": "demo", "filename": "../../etc/passwd",
	}))
	if envelopeFields(t, result)["status"] != "error" {
		t.Fatal("expected error status for path traversal filename")
	}
}

func TestBankTool_Consolidate_NonAdminForcedToOwnAgent(t *testing.T) {
	store, noteStore, consolidator := setupBankSpace(t)
	noteStore.Note(context.Background(), "demo", "observation", "note from writer", "writer", "")

	tool := NewBankTool(store, consolidator)

	// Non-admin trying to consolidate a different agent's notes is refused.
	result, _ := tool.HandleConsolidate(ctxFor(writerIdentity()), withArgs(map[string]interface{}{
		"space_id": "demo", "agent": "someone-else",
	}))
	if envelopeFields(t, result)["status"] != "forbidden" {
		t.Fatal("expected forbidden when agent does not match identity name")
	}

	// Omitting agent defaults to the caller's own name and succeeds.
	result, err := tool.HandleConsolidate(ctxFor(writerIdentity()), withArgs(map[string]interface{}{
		"space_id": "demo",
	}))
	if err != nil {
		t.Fatalf("HandleConsolidate error: %v", err)
	}
	if envelopeFields(t, result)["status"] != "ok" {
		t.Fatalf("status = %v, want ok", envelopeFields(t, result)["status"])
	}
}
