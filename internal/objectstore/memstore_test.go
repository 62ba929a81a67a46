package objectstore

import (
	"context"
	"testing"
)

func TestMemStore_PutGet_RoundTrips(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	if err := s.Put(ctx, "S/live/a.md", []byte("hello"), "text/markdown"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	data, found, err := s.Get(ctx, "S/live/a.md")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found {
		t.Fatal("expected found=true")
	}
	if string(data) != "hello" {
		t.Errorf("data = %q, want hello", data)
	}
}

func TestMemStore_Get_AbsentIsNotError(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	data, found, err := s.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("Get returned error for absent key: %v", err)
	}
	if found {
		t.Error("expected found=false")
	}
	if data != nil {
		t.Error("expected nil data for absent key")
	}
}

func TestMemStore_List_FiltersByPrefix(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	_ = s.Put(ctx, "S/live/a.md", []byte("1"), "")
	_ = s.Put(ctx, "S/live/b.md", []byte("2"), "")
	_ = s.Put(ctx, "S/bank/c.md", []byte("3"), "")

	got, err := s.List(ctx, "S/live/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List returned %d objects, want 2", len(got))
	}
}

func TestMemStore_DeleteMany(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	_ = s.Put(ctx, "a", []byte("1"), "")
	_ = s.Put(ctx, "b", []byte("2"), "")

	if err := s.DeleteMany(ctx, []string{"a", "b"}); err != nil {
		t.Fatalf("DeleteMany failed: %v", err)
	}
	if ok, _ := s.Exists(ctx, "a"); ok {
		t.Error("a should be deleted")
	}
	if ok, _ := s.Exists(ctx, "b"); ok {
		t.Error("b should be deleted")
	}
}

func TestMemStore_Copy(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	_ = s.Put(ctx, "src", []byte("payload"), "")

	if err := s.Copy(ctx, "src", "dst"); err != nil {
		t.Fatalf("Copy failed: %v", err)
	}
	data, found, _ := s.Get(ctx, "dst")
	if !found || string(data) != "payload" {
		t.Errorf("dst = %q, found=%v, want payload/true", data, found)
	}
}

func TestGetJSON_PutJSON_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	type meta struct {
		SpaceID string `json:"space_id"`
		Count   int    `json:"count"`
	}
	in := meta{SpaceID: "demo", Count: 3}
	if err := PutJSON(ctx, s, "S/_meta.json", in); err != nil {
		t.Fatalf("PutJSON failed: %v", err)
	}

	var out meta
	found, err := GetJSON(ctx, s, "S/_meta.json", &out)
	if err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if !found {
		t.Fatal("expected found=true")
	}
	if out != in {
		t.Errorf("GetJSON = %+v, want %+v", out, in)
	}
}
