package toolsurface

import (
	"context"
	"errors"
	"testing"

	"github.com/livememory/livememory/internal/objectstore"
	"github.com/livememory/livememory/internal/spaces"
)

type fakePinger struct{ err error }

func (p *fakePinger) Ping(ctx context.Context) error { return p.err }

func TestSystemTool_Health_Ok(t *testing.T) {
	store := objectstore.NewMemStore()
	repo := spaces.NewRepo(store)
	tool := NewSystemTool(store, repo, &fakePinger{}, "1.0.0")

	result, err := tool.HandleHealth(context.Background(), withArgs(nil))
	if err != nil {
		t.Fatalf("HandleHealth error: %v", err)
	}
	fields := envelopeFields(t, result)
	if fields["status"] != "ok" {
		t.Fatalf("status = %v, want ok", fields["status"])
	}
	if fields["object_store"] != true {
		t.Fatalf("object_store = %v, want true", fields["object_store"])
	}
}

func TestSystemTool_Health_DegradedWhenLLMDown(t *testing.T) {
	store := objectstore.NewMemStore()
	repo := spaces.NewRepo(store)
	tool := NewSystemTool(store, repo, &fakePinger{err: errors.New("down")}, "1.0.0")

	result, err := tool.HandleHealth(context.Background(), withArgs(nil))
	if err != nil {
		t.Fatalf("HandleHealth error: %v", err)
	}
	fields := envelopeFields(t, result)
	if fields["status"] != "degraded" {
		t.Fatalf("status = %v, want degraded", fields["status"])
	}
}

func TestSystemTool_About(t *testing.T) {
	store := objectstore.NewMemStore()
	repo := spaces.NewRepo(store)
	tool := NewSystemTool(store, repo, &fakePinger{}, "2.1.0")

	result, err := tool.HandleAbout(context.Background(), withArgs(nil))
	if err != nil {
		t.Fatalf("HandleAbout error: %v", err)
	}
	fields := envelopeFields(t, result)
	if fields["version"] != "2.1.0" {
		t.Fatalf("version = %v, want 2.1.0", fields["version"])
	}
}
