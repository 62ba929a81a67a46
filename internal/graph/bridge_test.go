package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/livememory/livememory/internal/objectstore"
	"github.com/livememory/livememory/internal/spaces"
)

// fakeRemote simulates the external graph-memory service's tool
// protocol closely enough to exercise Bridge's connect/push/status flow.
type fakeRemote struct {
	documents map[string]string // filename -> content
	calls     []string          // "tool:filename" in call order
}

func newFakeRemoteServer(t *testing.T, state *fakeRemote) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			Params struct {
				Name      string                 `json:"name"`
				Arguments map[string]interface{} `json:"arguments"`
			} `json:"params"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		var payload map[string]interface{}
		isError := false
		switch req.Params.Name {
		case "system_health":
			payload = map[string]interface{}{"status": "ok"}
		case "memory_list":
			payload = map[string]interface{}{"memories": []interface{}{}}
		case "memory_create":
			payload = map[string]interface{}{"status": "created"}
		case "document_list":
			var docs []interface{}
			for name := range state.documents {
				docs = append(docs, map[string]interface{}{"filename": name})
			}
			payload = map[string]interface{}{"documents": docs}
		case "document_delete":
			filename := req.Params.Arguments["filename"].(string)
			state.calls = append(state.calls, "document_delete:"+filename)
			if _, ok := state.documents[filename]; !ok {
				payload = map[string]interface{}{"status": "not_found", "message": "document not found"}
				isError = true
				break
			}
			delete(state.documents, filename)
			payload = map[string]interface{}{"status": "ok"}
		case "memory_ingest":
			filename := req.Params.Arguments["filename"].(string)
			state.calls = append(state.calls, "memory_ingest:"+filename)
			state.documents[filename] = req.Params.Arguments["content"].(string)
			payload = map[string]interface{}{"status": "ok"}
		case "memory_stats":
			payload = map[string]interface{}{"document_count": len(state.documents)}
		default:
			payload = map[string]interface{}{"status": "ok"}
		}

		text, _ := json.Marshal(payload)
		resp := map[string]interface{}{
			"result": map[string]interface{}{
				"content": []map[string]interface{}{{"type": "text", "text": string(text)}},
				"isError": isError,
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func setupSpace(t *testing.T) (*objectstore.MemStore, *spaces.Repo) {
	t.Helper()
	store := objectstore.NewMemStore()
	repo := spaces.NewRepo(store)
	if _, err := repo.Create(context.Background(), "demo", "d", "rules", "owner"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return store, repo
}

func TestConnect_PersistsConfig(t *testing.T) {
	ctx := context.Background()
	store, repo := setupSpace(t)
	remote := newFakeRemoteServer(t, &fakeRemote{documents: map[string]string{}})
	defer remote.Close()

	bridge := New(store, repo)
	if err := bridge.Connect(ctx, "demo", remote.URL, "tok", "mem1", ""); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	meta, err := repo.GetMeta(ctx, "demo")
	if err != nil {
		t.Fatalf("GetMeta failed: %v", err)
	}
	if meta.GraphMemory == nil || meta.GraphMemory.MemoryID != "mem1" {
		t.Fatalf("GraphMemory config not persisted: %+v", meta.GraphMemory)
	}
	if meta.GraphMemory.Ontology != "general" {
		t.Errorf("Ontology = %s, want default general", meta.GraphMemory.Ontology)
	}
}

func TestConnect_RejectsInvalidOntology(t *testing.T) {
	ctx := context.Background()
	store, repo := setupSpace(t)
	bridge := New(store, repo)

	if err := bridge.Connect(ctx, "demo", "http://unused", "tok", "mem1", "not-a-real-ontology"); err == nil {
		t.Fatal("expected error for invalid ontology")
	}
}

func TestPush_EndsWithExactlyCurrentBankFiles(t *testing.T) {
	ctx := context.Background()
	store, repo := setupSpace(t)
	remoteState := &fakeRemote{documents: map[string]string{"C.md": "stale"}}
	remote := newFakeRemoteServer(t, remoteState)
	defer remote.Close()

	bridge := New(store, repo)
	if err := bridge.Connect(ctx, "demo", remote.URL, "tok", "mem1", ""); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	store.Put(ctx, "demo/bank/A.md", []byte("content A"), "text/markdown")
	store.Put(ctx, "demo/bank/B.md", []byte("content B"), "text/markdown")

	if _, err := bridge.Push(ctx, "demo"); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	if len(remoteState.documents) != 2 {
		t.Fatalf("remote documents = %v, want exactly {A.md, B.md}", remoteState.documents)
	}
	if _, ok := remoteState.documents["C.md"]; ok {
		t.Error("stale C.md should have been removed by orphan cleanup")
	}
	if _, ok := remoteState.documents["A.md"]; !ok {
		t.Error("A.md should be present")
	}
}

func TestPush_DeletesBeforeIngestEvenForNewFiles(t *testing.T) {
	ctx := context.Background()
	store, repo := setupSpace(t)
	remoteState := &fakeRemote{documents: map[string]string{}}
	remote := newFakeRemoteServer(t, remoteState)
	defer remote.Close()

	bridge := New(store, repo)
	if err := bridge.Connect(ctx, "demo", remote.URL, "tok", "mem1", ""); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	store.Put(ctx, "demo/bank/A.md", []byte("content A"), "text/markdown")

	if _, err := bridge.Push(ctx, "demo"); err != nil {
		t.Fatalf("Push failed on a brand-new file: %v", err)
	}

	if len(remoteState.calls) != 2 || remoteState.calls[0] != "document_delete:A.md" || remoteState.calls[1] != "memory_ingest:A.md" {
		t.Fatalf("calls = %v, want document_delete then memory_ingest for a never-pushed file", remoteState.calls)
	}
}

func TestDisconnect_ClearsConfigButLeavesRemoteAlone(t *testing.T) {
	ctx := context.Background()
	store, repo := setupSpace(t)
	remote := newFakeRemoteServer(t, &fakeRemote{documents: map[string]string{}})
	defer remote.Close()

	bridge := New(store, repo)
	bridge.Connect(ctx, "demo", remote.URL, "tok", "mem1", "")

	if err := bridge.Disconnect(ctx, "demo"); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	meta, _ := repo.GetMeta(ctx, "demo")
	if meta.GraphMemory != nil {
		t.Error("expected GraphMemory config to be cleared")
	}
}
