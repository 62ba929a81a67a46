package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/livememory/livememory/internal/objectstore"
	"github.com/livememory/livememory/internal/spaces"
)

// AllowedOntologies is the label set the remote extractor accepts.
var AllowedOntologies = map[string]bool{
	"general": true, "legal": true, "cloud": true, "managed-services": true, "presales": true,
}

// Bridge implements connect/push/status/disconnect against a remote
// graph-memory service, mutating only the local space's _meta.json.
type Bridge struct {
	store  objectstore.Store
	spaces *spaces.Repo
}

// New builds a Bridge over store and the space repository used for
// _meta.json reads/writes.
func New(store objectstore.Store, spaceRepo *spaces.Repo) *Bridge {
	return &Bridge{store: store, spaces: spaceRepo}
}

func bankPrefix(spaceID string) string { return spaceID + "/bank/" }

// Connect probes the remote, creates the target memory if absent, and
// persists the graph_memory configuration block on the space.
func (b *Bridge) Connect(ctx context.Context, spaceID, url, token, memoryID, ontology string) error {
	if ontology == "" {
		ontology = "general"
	}
	if !AllowedOntologies[ontology] {
		return fmt.Errorf("invalid ontology %q", ontology)
	}

	meta, err := b.spaces.GetMeta(ctx, spaceID)
	if err != nil {
		return err
	}

	client := NewRemoteToolClient(url, token)
	if _, err := client.CallTool(ctx, "system_health", nil); err != nil {
		return fmt.Errorf("remote health check failed: %w", err)
	}

	list, err := client.CallTool(ctx, "memory_list", nil)
	if err != nil {
		return fmt.Errorf("listing remote memories: %w", err)
	}
	if !memoryExists(list, memoryID) {
		if _, err := client.CallTool(ctx, "memory_create", map[string]interface{}{
			"name": memoryID, "description": "Live Memory bridge for " + spaceID, "ontology": ontology,
		}); err != nil {
			return fmt.Errorf("creating remote memory: %w", err)
		}
	}

	now := time.Now().UTC()
	meta.GraphMemory = &spaces.GraphMemoryConfig{
		URL: url, Token: token, MemoryID: memoryID, Ontology: ontology, ConnectedAt: now,
	}
	return b.spaces.PutMeta(ctx, meta)
}

func memoryExists(listResult map[string]interface{}, memoryID string) bool {
	items, ok := listResult["memories"].([]interface{})
	if !ok {
		return false
	}
	for _, it := range items {
		m, ok := it.(map[string]interface{})
		if !ok {
			continue
		}
		if name, _ := m["name"].(string); name == memoryID {
			return true
		}
	}
	return false
}

// Push replaces every remote document for the space's current bank
// files with delete-then-reingest semantics, then removes any remote
// document no longer present locally.
func (b *Bridge) Push(ctx context.Context, spaceID string) (map[string]interface{}, error) {
	meta, err := b.spaces.GetMeta(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	if meta.GraphMemory == nil {
		return nil, fmt.Errorf("space %s has no graph_memory configuration; call graph_connect first", spaceID)
	}
	cfg := meta.GraphMemory

	objs, err := b.store.List(ctx, bankPrefix(spaceID))
	if err != nil {
		return nil, fmt.Errorf("listing bank: %w", err)
	}

	client := NewRemoteToolClient(cfg.URL, cfg.Token)

	docList, err := client.CallTool(ctx, "document_list", map[string]interface{}{"memory_id": cfg.MemoryID})
	if err != nil {
		return nil, fmt.Errorf("listing remote documents: %w", err)
	}
	existing := documentNames(docList)

	current := make(map[string]bool)
	filesPushed := 0
	for _, o := range objs {
		if strings.HasSuffix(o.Key, ".keep") {
			continue
		}
		name := strings.TrimPrefix(o.Key, bankPrefix(spaceID))
		current[name] = true

		data, found, err := b.store.Get(ctx, o.Key)
		if err != nil || !found {
			continue
		}

		if _, err := client.CallTool(ctx, "document_delete", map[string]interface{}{
			"memory_id": cfg.MemoryID, "filename": name,
		}); err != nil && !errors.Is(err, ErrRemoteNotFound) {
			return nil, fmt.Errorf("deleting stale remote document %s: %w", name, err)
		}
		if _, err := client.CallTool(ctx, "memory_ingest", map[string]interface{}{
			"memory_id": cfg.MemoryID, "filename": name, "content": string(data), "ontology": cfg.Ontology,
		}); err != nil {
			return nil, fmt.Errorf("ingesting %s: %w", name, err)
		}
		filesPushed++
	}

	// Orphan cleanup: remove remote documents no longer in the bank.
	for name := range existing {
		if !current[name] {
			if _, err := client.CallTool(ctx, "document_delete", map[string]interface{}{
				"memory_id": cfg.MemoryID, "filename": name,
			}); err != nil && !errors.Is(err, ErrRemoteNotFound) {
				return nil, fmt.Errorf("deleting orphan remote document %s: %w", name, err)
			}
		}
	}

	stats, err := client.CallTool(ctx, "memory_stats", map[string]interface{}{"memory_id": cfg.MemoryID})
	if err != nil {
		stats = nil
	}

	now := time.Now().UTC()
	cfg.LastPushAt = &now
	cfg.PushCount++
	cfg.LastStats = stats
	if err := b.spaces.PutMeta(ctx, meta); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"files_pushed": filesPushed,
		"push_count":   cfg.PushCount,
	}, nil
}

func documentNames(listResult map[string]interface{}) map[string]bool {
	out := map[string]bool{}
	items, ok := listResult["documents"].([]interface{})
	if !ok {
		return out
	}
	for _, it := range items {
		m, ok := it.(map[string]interface{})
		if !ok {
			continue
		}
		if name, _ := m["filename"].(string); name != "" {
			out[name] = true
		}
	}
	return out
}

// Status returns local configuration plus remote stats, degrading
// gracefully (connected=true, reachable=false) if the remote is down.
func (b *Bridge) Status(ctx context.Context, spaceID string) (map[string]interface{}, error) {
	meta, err := b.spaces.GetMeta(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	if meta.GraphMemory == nil {
		return map[string]interface{}{"connected": false}, nil
	}
	cfg := meta.GraphMemory

	client := NewRemoteToolClient(cfg.URL, cfg.Token)
	stats, err := client.CallTool(ctx, "memory_stats", map[string]interface{}{"memory_id": cfg.MemoryID})
	if err != nil {
		return map[string]interface{}{
			"connected":  true,
			"reachable":  false,
			"memory_id":  cfg.MemoryID,
			"push_count": cfg.PushCount,
		}, nil
	}
	docs, _ := client.CallTool(ctx, "document_list", map[string]interface{}{"memory_id": cfg.MemoryID})

	return map[string]interface{}{
		"connected":       true,
		"reachable":       true,
		"memory_id":       cfg.MemoryID,
		"ontology":        cfg.Ontology,
		"push_count":      cfg.PushCount,
		"last_push_at":    cfg.LastPushAt,
		"graph_stats":     stats,
		"graph_documents": docs["documents"],
	}, nil
}

// Disconnect clears the graph_memory block, leaving remote data intact.
func (b *Bridge) Disconnect(ctx context.Context, spaceID string) error {
	meta, err := b.spaces.GetMeta(ctx, spaceID)
	if err != nil {
		return err
	}
	meta.GraphMemory = nil
	return b.spaces.PutMeta(ctx, meta)
}
