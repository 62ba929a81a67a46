package backup

import (
	"context"
	"testing"

	"github.com/livememory/livememory/internal/objectstore"
	"github.com/livememory/livememory/internal/spaces"
)

func setupSpace(t *testing.T) (*objectstore.MemStore, string) {
	t.Helper()
	store := objectstore.NewMemStore()
	repo := spaces.NewRepo(store)
	if _, err := repo.Create(context.Background(), "demo", "d", "rules", "owner"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return store, "demo"
}

func TestCreate_CopiesObjectsUnderTimestampPrefix(t *testing.T) {
	ctx := context.Background()
	store, spaceID := setupSpace(t)
	svc := New(store, 5)

	backupID, err := svc.Create(ctx, spaceID, "snapshot 1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !IDPattern.MatchString(backupID) {
		t.Errorf("backupID %q does not match expected pattern", backupID)
	}

	listings, err := svc.List(ctx, spaceID, nil)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(listings) != 1 {
		t.Fatalf("List returned %d entries, want 1", len(listings))
	}
}

func TestRestore_RefusesWhenSpaceExists(t *testing.T) {
	ctx := context.Background()
	store, spaceID := setupSpace(t)
	svc := New(store, 5)
	backupID, _ := svc.Create(ctx, spaceID, "d")

	err := svc.Restore(ctx, backupID, func(_ context.Context, id string) (bool, error) {
		return id == spaceID, nil
	})
	if err != ErrAlreadyExists {
		t.Fatalf("Restore = %v, want ErrAlreadyExists", err)
	}
}

func TestRestore_CopiesObjectsBack(t *testing.T) {
	ctx := context.Background()
	store, spaceID := setupSpace(t)
	svc := New(store, 5)
	backupID, _ := svc.Create(ctx, spaceID, "d")

	if err := store.DeleteMany(ctx, mustKeys(t, ctx, store, spaceID+"/")); err != nil {
		t.Fatalf("cleanup delete failed: %v", err)
	}

	err := svc.Restore(ctx, backupID, func(_ context.Context, _ string) (bool, error) { return false, nil })
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	rules, found, _ := store.Get(ctx, spaceID+"/_rules.md")
	if !found || string(rules) != "rules" {
		t.Errorf("restored rules = %q, found=%v", rules, found)
	}
}

func mustKeys(t *testing.T, ctx context.Context, store *objectstore.MemStore, prefix string) []string {
	t.Helper()
	objs, err := store.List(ctx, prefix)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	keys := make([]string, len(objs))
	for i, o := range objs {
		keys[i] = o.Key
	}
	return keys
}

func TestPrune_KeepsOnlyRetentionCount(t *testing.T) {
	ctx := context.Background()
	store, spaceID := setupSpace(t)
	svc := New(store, 2)

	// Create snapshots directly under distinct timestamps to avoid
	// relying on real time granularity in the test.
	for _, ts := range []string{"2026-01-01T00-00-00", "2026-01-02T00-00-00", "2026-01-03T00-00-00"} {
		store.Put(ctx, "_backups/"+spaceID+"/"+ts+"/_meta.json", []byte(`{"space_id":"demo"}`), "application/json")
		store.Put(ctx, "_backups/"+spaceID+"/"+ts+"/_rules.md", []byte("r"), "text/markdown")
	}

	if err := svc.prune(ctx, spaceID); err != nil {
		t.Fatalf("prune failed: %v", err)
	}

	listings, err := svc.List(ctx, spaceID, nil)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("List returned %d entries, want 2 after pruning", len(listings))
	}
	// The two newest should survive.
	for _, l := range listings {
		if l.BackupID == spaceID+"/2026-01-01T00-00-00" {
			t.Errorf("oldest snapshot should have been pruned, found %s", l.BackupID)
		}
	}
}
