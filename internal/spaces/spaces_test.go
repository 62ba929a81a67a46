package spaces

import (
	"context"
	"testing"

	"github.com/livememory/livememory/internal/objectstore"
)

func TestValidID(t *testing.T) {
	cases := map[string]bool{
		"demo":                                              true,
		"1abc":                                               true,
		"_leading-underscore":                                false,
		"has space":                                           false,
		"":                                                    false,
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa": false, // 65 chars
	}
	for id, want := range cases {
		if got := ValidID(id); got != want {
			t.Errorf("ValidID(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestCreate_RefusesDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := NewRepo(objectstore.NewMemStore())

	if _, err := repo.Create(ctx, "demo", "d", "rules", "owner"); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	if _, err := repo.Create(ctx, "demo", "d2", "rules2", "owner"); err != ErrAlreadyExists {
		t.Fatalf("second Create should return ErrAlreadyExists, got %v", err)
	}
}

func TestCreate_WritesBootstrapObjects(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemStore()
	repo := NewRepo(store)

	if _, err := repo.Create(ctx, "demo", "d", "the rules", "owner"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	for _, key := range []string{"demo/_meta.json", "demo/_rules.md", "demo/live/.keep", "demo/bank/.keep"} {
		if ok, _ := store.Exists(ctx, key); !ok {
			t.Errorf("expected %s to exist after Create", key)
		}
	}
}

func TestRulesImmutable_SecondCreateDoesNotChangeRules(t *testing.T) {
	ctx := context.Background()
	repo := NewRepo(objectstore.NewMemStore())

	repo.Create(ctx, "demo", "d", "original rules", "owner")
	repo.Create(ctx, "demo", "d", "different rules", "owner")

	rules, err := repo.Rules(ctx, "demo")
	if err != nil {
		t.Fatalf("Rules failed: %v", err)
	}
	if rules != "original rules" {
		t.Errorf("rules = %q, want unchanged 'original rules'", rules)
	}
}

func TestList_ScopeFiltered(t *testing.T) {
	ctx := context.Background()
	repo := NewRepo(objectstore.NewMemStore())
	repo.Create(ctx, "a", "d", "r", "o")
	repo.Create(ctx, "b", "d", "r", "o")

	listing, err := repo.List(ctx, []string{"a"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(listing) != 1 || listing[0].Meta.SpaceID != "a" {
		t.Errorf("List with scope [a] = %+v, want only space a", listing)
	}
}

func TestDelete_RemovesAllObjects(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemStore()
	repo := NewRepo(store)
	repo.Create(ctx, "demo", "d", "r", "o")

	if err := repo.Delete(ctx, "demo"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	objs, _ := store.List(ctx, "demo/")
	if len(objs) != 0 {
		t.Errorf("expected no objects left under demo/, got %d", len(objs))
	}
}

func TestExportImport_RoundTrips(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemStore()
	repo := NewRepo(store)
	repo.Create(ctx, "demo", "d", "the rules", "o")

	archive, err := repo.Export(ctx, "demo")
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	if err := Import(ctx, store, "restored", archive); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	rules, found, err := store.Get(ctx, "restored/_rules.md")
	if err != nil || !found {
		t.Fatalf("restored rules not found: found=%v err=%v", found, err)
	}
	if string(rules) != "the rules" {
		t.Errorf("restored rules = %q, want 'the rules'", rules)
	}
}
