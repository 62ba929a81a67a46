package auth

import (
	"context"
	"testing"

	"github.com/livememory/livememory/internal/locks"
	"github.com/livememory/livememory/internal/objectstore"
)

func newTestRegistry() *TokenRegistry {
	return NewTokenRegistry(objectstore.NewMemStore(), locks.NewRegistry())
}

func TestCreate_PlainCredentialNeverStored(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()

	plain, rec, err := reg.Create(ctx, "agent-1", []string{PermWrite}, nil, 0)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if plain == "" || rec.Hash == "" {
		t.Fatal("expected non-empty plain credential and hash")
	}
	if rec.Hash == plain {
		t.Fatal("stored hash must not equal the plain credential")
	}

	tokens, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	for _, tok := range tokens {
		if tok.Hash == plain {
			t.Fatal("plain credential leaked into storage")
		}
	}
}

func TestLookup_RejectsRevoked(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()

	plain, rec, _ := reg.Create(ctx, "agent-1", []string{PermRead}, nil, 0)
	if err := reg.Revoke(ctx, rec.TruncatedHash()); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	if _, err := reg.Lookup(ctx, plain); err == nil {
		t.Fatal("Lookup should reject a revoked token")
	}
}

func TestUpdate_ChangesScope(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()

	_, rec, _ := reg.Create(ctx, "agent-1", []string{PermRead}, []string{"a"}, 0)
	updated, err := reg.Update(ctx, rec.TruncatedHash(), []string{"a", "b"}, nil)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if len(updated.SpaceIDs) != 2 {
		t.Errorf("SpaceIDs = %v, want 2 entries", updated.SpaceIDs)
	}
}

func TestGate_Authenticate_BootstrapToken(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()
	gate := NewGate(reg, "boot-secret")

	identity, err := gate.Authenticate(ctx, "Bearer boot-secret", "")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !identity.IsAdmin() {
		t.Error("bootstrap identity should be admin")
	}
	if len(identity.SpaceIDs) != 0 {
		t.Error("bootstrap identity should have universal scope")
	}
}

func TestGate_Authenticate_QueryFallback(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()
	gate := NewGate(reg, "boot-secret")

	plain, _, _ := reg.Create(ctx, "agent-1", []string{PermRead}, nil, 0)

	identity, err := gate.Authenticate(ctx, "", plain)
	if err != nil {
		t.Fatalf("Authenticate via query fallback failed: %v", err)
	}
	if identity.Name != "agent-1" {
		t.Errorf("Name = %s, want agent-1", identity.Name)
	}
}

func TestGate_Authenticate_HeaderTakesPrecedence(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()
	gate := NewGate(reg, "boot-secret")

	plainHeader, _, _ := reg.Create(ctx, "header-agent", []string{PermRead}, nil, 0)
	plainQuery, _, _ := reg.Create(ctx, "query-agent", []string{PermRead}, nil, 0)

	identity, err := gate.Authenticate(ctx, "Bearer "+plainHeader, plainQuery)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if identity.Name != "header-agent" {
		t.Errorf("Name = %s, want header-agent (header must win)", identity.Name)
	}
}

func TestCheckAccess_ScopeEnforcement(t *testing.T) {
	identity := &Identity{Name: "t1", SpaceIDs: []string{"a"}}

	if err := CheckAccess(identity, "a"); err != nil {
		t.Errorf("expected access to scoped space a, got %v", err)
	}
	if err := CheckAccess(identity, "b"); err != ErrForbidden {
		t.Errorf("expected forbidden for out-of-scope space b, got %v", err)
	}
}

func TestCheckAccess_UniversalScope(t *testing.T) {
	identity := &Identity{Name: "admin"}
	if err := CheckAccess(identity, "anything"); err != nil {
		t.Errorf("universal scope should allow any space, got %v", err)
	}
}

func TestIsPublicPath(t *testing.T) {
	if !IsPublicPath("/health") {
		t.Error("/health should be public")
	}
	if IsPublicPath("/mcp") {
		t.Error("/mcp should not be public")
	}
}
