// Package spaces implements space lifecycle: create, list, info, rules,
// summary, export and delete.
package spaces

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/livememory/livememory/internal/objectstore"
)

// IDPattern is the validation regex for space ids and agent names alike.
var IDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// ValidID reports whether id is a legal space id or agent name.
func ValidID(id string) bool {
	return IDPattern.MatchString(id)
}

// GraphMemoryConfig is the optional graph-bridge configuration block
// stored on a space's metadata.
type GraphMemoryConfig struct {
	URL         string          `json:"url"`
	Token       string          `json:"token"`
	MemoryID    string          `json:"memory_id"`
	Ontology    string          `json:"ontology"`
	ConnectedAt time.Time       `json:"connected_at"`
	LastPushAt  *time.Time      `json:"last_push_at,omitempty"`
	PushCount   int             `json:"push_count"`
	LastStats   map[string]any  `json:"last_stats,omitempty"`
}

// Meta is the mutable per-space metadata document at S/_meta.json.
type Meta struct {
	SpaceID              string             `json:"space_id"`
	Description          string             `json:"description"`
	Owner                string             `json:"owner"`
	CreatedAt            time.Time          `json:"created_at"`
	RulesSize            int                `json:"rules_size"`
	LastConsolidation    *time.Time         `json:"last_consolidation,omitempty"`
	ConsolidationCount   int                `json:"consolidation_count"`
	TotalNotesProcessed  int                `json:"total_notes_processed"`
	Version              int                `json:"version"`
	GraphMemory          *GraphMemoryConfig `json:"graph_memory,omitempty"`
}

func metaKey(spaceID string) string  { return spaceID + "/_meta.json" }
func rulesKey(spaceID string) string { return spaceID + "/_rules.md" }
func synthesisKey(spaceID string) string { return spaceID + "/_synthesis.md" }
func liveKeepKey(spaceID string) string  { return spaceID + "/live/.keep" }
func bankKeepKey(spaceID string) string  { return spaceID + "/bank/.keep" }
func livePrefix(spaceID string) string   { return spaceID + "/live/" }
func bankPrefix(spaceID string) string   { return spaceID + "/bank/" }

// Repo implements space lifecycle operations over an object store.
type Repo struct {
	store objectstore.Store
}

// NewRepo builds a Repo over store.
func NewRepo(store objectstore.Store) *Repo {
	return &Repo{store: store}
}

// ErrAlreadyExists is returned by Create when the space id is taken (I1).
var ErrAlreadyExists = fmt.Errorf("space already exists")

// ErrNotFound is returned when a space id has no metadata object.
var ErrNotFound = fmt.Errorf("space not found")

// ErrInvalidID is returned when a space id fails validation.
var ErrInvalidID = fmt.Errorf("invalid space id")

// Create validates spaceID, refuses if it already exists, and writes the
// four bootstrap objects (_meta.json, _rules.md, live/.keep, bank/.keep).
func (r *Repo) Create(ctx context.Context, spaceID, description, rules, owner string) (*Meta, error) {
	if !ValidID(spaceID) {
		return nil, ErrInvalidID
	}
	exists, err := r.store.Exists(ctx, metaKey(spaceID))
	if err != nil {
		return nil, fmt.Errorf("checking space existence: %w", err)
	}
	if exists {
		return nil, ErrAlreadyExists
	}

	meta := &Meta{
		SpaceID:     spaceID,
		Description: description,
		Owner:       owner,
		CreatedAt:   time.Now().UTC(),
		RulesSize:   len(rules),
		Version:     1,
	}

	if err := r.store.Put(ctx, rulesKey(spaceID), []byte(rules), "text/markdown"); err != nil {
		return nil, fmt.Errorf("writing rules: %w", err)
	}
	if err := r.store.Put(ctx, liveKeepKey(spaceID), []byte{}, "text/plain"); err != nil {
		return nil, fmt.Errorf("writing live keep: %w", err)
	}
	if err := r.store.Put(ctx, bankKeepKey(spaceID), []byte{}, "text/plain"); err != nil {
		return nil, fmt.Errorf("writing bank keep: %w", err)
	}
	if err := objectstore.PutJSON(ctx, r.store, metaKey(spaceID), meta); err != nil {
		return nil, fmt.Errorf("writing meta: %w", err)
	}
	return meta, nil
}

// GetMeta loads a space's metadata, or ErrNotFound.
func (r *Repo) GetMeta(ctx context.Context, spaceID string) (*Meta, error) {
	var meta Meta
	found, err := objectstore.GetJSON(ctx, r.store, metaKey(spaceID), &meta)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return &meta, nil
}

// PutMeta persists an updated metadata document.
func (r *Repo) PutMeta(ctx context.Context, meta *Meta) error {
	return objectstore.PutJSON(ctx, r.store, metaKey(meta.SpaceID), meta)
}

// SpaceListing is one row of List's output.
type SpaceListing struct {
	Meta      *Meta
	LiveCount int
	BankCount int
}

// List enumerates every space, filtered to those in allowedSpaceIDs
// (nil/empty means universal scope).
func (r *Repo) List(ctx context.Context, allowedSpaceIDs []string) ([]*SpaceListing, error) {
	prefixes, err := r.store.ListPrefixes(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("listing spaces: %w", err)
	}

	allowed := toSet(allowedSpaceIDs)
	var out []*SpaceListing
	for _, p := range prefixes {
		spaceID := strings.TrimSuffix(p, "/")
		if spaceID == "" || strings.HasPrefix(spaceID, "_") {
			continue
		}
		if len(allowed) > 0 && !allowed[spaceID] {
			continue
		}
		meta, err := r.GetMeta(ctx, spaceID)
		if err != nil {
			continue // not a real space (no _meta.json)
		}
		liveObjs, err := r.store.List(ctx, livePrefix(spaceID))
		if err != nil {
			return nil, err
		}
		bankObjs, err := r.store.List(ctx, bankPrefix(spaceID))
		if err != nil {
			return nil, err
		}
		out = append(out, &SpaceListing{
			Meta:      meta,
			LiveCount: countExcludingKeep(liveObjs),
			BankCount: countExcludingKeep(bankObjs),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Meta.SpaceID < out[j].Meta.SpaceID })
	return out, nil
}

func toSet(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func countExcludingKeep(objs []objectstore.ObjectMeta) int {
	n := 0
	for _, o := range objs {
		if !strings.HasSuffix(o.Key, ".keep") {
			n++
		}
	}
	return n
}

// Info is the detailed per-space status returned by space_info.
type Info struct {
	Meta             *Meta
	LiveCount        int
	BankCount        int
	BankFiles        []string
	TotalSizeBytes   int64
	OldestNote       *time.Time
	NewestNote       *time.Time
	SynthesisExists  bool
}

// Info returns detailed status for spaceID.
func (r *Repo) Info(ctx context.Context, spaceID string) (*Info, error) {
	meta, err := r.GetMeta(ctx, spaceID)
	if err != nil {
		return nil, err
	}

	liveObjs, err := r.store.List(ctx, livePrefix(spaceID))
	if err != nil {
		return nil, err
	}
	bankObjs, err := r.store.List(ctx, bankPrefix(spaceID))
	if err != nil {
		return nil, err
	}

	info := &Info{Meta: meta}
	var totalSize int64
	for _, o := range liveObjs {
		if strings.HasSuffix(o.Key, ".keep") {
			continue
		}
		info.LiveCount++
		totalSize += o.Size
		if info.OldestNote == nil || o.Modified.Before(*info.OldestNote) {
			t := o.Modified
			info.OldestNote = &t
		}
		if info.NewestNote == nil || o.Modified.After(*info.NewestNote) {
			t := o.Modified
			info.NewestNote = &t
		}
	}
	for _, o := range bankObjs {
		if strings.HasSuffix(o.Key, ".keep") {
			continue
		}
		info.BankCount++
		totalSize += o.Size
		info.BankFiles = append(info.BankFiles, strings.TrimPrefix(o.Key, bankPrefix(spaceID)))
	}
	info.TotalSizeBytes = totalSize

	info.SynthesisExists, err = r.store.Exists(ctx, synthesisKey(spaceID))
	if err != nil {
		return nil, err
	}
	return info, nil
}

// Rules returns the raw body of _rules.md.
func (r *Repo) Rules(ctx context.Context, spaceID string) (string, error) {
	data, found, err := r.store.Get(ctx, rulesKey(spaceID))
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrNotFound
	}
	return string(data), nil
}

// Summary is the composite bootstrap payload for space_summary.
type Summary struct {
	Info      *Info
	Rules     string
	Bank      map[string]string
	Synthesis string
}

// Summary combines Info, Rules, full bank content and synthesis — the
// call an agent makes on startup to load a space's current state.
func (r *Repo) Summary(ctx context.Context, spaceID string) (*Summary, error) {
	info, err := r.Info(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	rules, err := r.Rules(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	bank := make(map[string]string, len(info.BankFiles))
	for _, name := range info.BankFiles {
		data, found, err := r.store.Get(ctx, bankPrefix(spaceID)+name)
		if err != nil {
			return nil, err
		}
		if found {
			bank[name] = string(data)
		}
	}
	synthesis := ""
	if info.SynthesisExists {
		data, _, err := r.store.Get(ctx, synthesisKey(spaceID))
		if err != nil {
			return nil, err
		}
		synthesis = string(data)
	}
	return &Summary{Info: info, Rules: rules, Bank: bank, Synthesis: synthesis}, nil
}

// Export produces a base64-encoded tar.gz of every object under
// spaceID's prefix.
func (r *Repo) Export(ctx context.Context, spaceID string) (string, error) {
	objs, err := r.store.List(ctx, spaceID+"/")
	if err != nil {
		return "", fmt.Errorf("listing space for export: %w", err)
	}
	if len(objs) == 0 {
		return "", ErrNotFound
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, o := range objs {
		data, found, err := r.store.Get(ctx, o.Key)
		if err != nil {
			return "", err
		}
		if !found {
			continue
		}
		hdr := &tar.Header{
			Name: strings.TrimPrefix(o.Key, spaceID+"/"),
			Mode: 0o644,
			Size: int64(len(data)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return "", fmt.Errorf("writing tar header: %w", err)
		}
		if _, err := tw.Write(data); err != nil {
			return "", fmt.Errorf("writing tar body: %w", err)
		}
	}
	if err := tw.Close(); err != nil {
		return "", fmt.Errorf("closing tar writer: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("closing gzip writer: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Import restores a base64 tar.gz archive (as produced by Export) under
// destSpaceID. Backup restore does not use it; it copies objects directly.
func Import(ctx context.Context, store objectstore.Store, destSpaceID, encoded string) error {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("decoding archive: %w", err)
	}
	gz, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("opening gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data := make([]byte, hdr.Size)
		if _, err := io.ReadFull(tr, data); err != nil && hdr.Size > 0 {
			return fmt.Errorf("reading tar entry %s: %w", hdr.Name, err)
		}
		if err := store.Put(ctx, destSpaceID+"/"+hdr.Name, data, ""); err != nil {
			return fmt.Errorf("restoring %s: %w", hdr.Name, err)
		}
	}
	return nil
}

// Delete removes every object under spaceID's prefix. Callers must
// enforce admin permission and explicit confirm before calling this.
func (r *Repo) Delete(ctx context.Context, spaceID string) error {
	objs, err := r.store.List(ctx, spaceID+"/")
	if err != nil {
		return fmt.Errorf("listing space for delete: %w", err)
	}
	keys := make([]string, len(objs))
	for i, o := range objs {
		keys[i] = o.Key
	}
	return r.store.DeleteMany(ctx, keys)
}
