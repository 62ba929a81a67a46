// Package notes implements LiveNotes: append-only writes of short
// timestamped notes, filtered reads, and substring search.
package notes

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/livememory/livememory/internal/objectstore"
	"github.com/livememory/livememory/internal/spaces"
	"gopkg.in/yaml.v3"
)

// Categories is the fixed enum of legal note categories.
var Categories = map[string]bool{
	"observation": true,
	"decision":    true,
	"todo":        true,
	"insight":     true,
	"question":    true,
	"progress":    true,
	"issue":       true,
}

const maxContentLen = 100_000

// FrontMatter is the mandatory metadata block prefixing every note body.
type FrontMatter struct {
	Timestamp time.Time `yaml:"timestamp"`
	Agent     string    `yaml:"agent"`
	Category  string    `yaml:"category"`
	Tags      []string  `yaml:"tags,omitempty"`
	SpaceID   string    `yaml:"space_id"`
}

// Note is a parsed live note, front matter plus body.
type Note struct {
	Key     string
	Meta    FrontMatter
	Content string
	Size    int
}

// Store implements LiveNotes over an object store.
type Store struct {
	store objectstore.Store
}

// NewStore builds a notes Store over the given object store.
func NewStore(store objectstore.Store) *Store {
	return &Store{store: store}
}

func livePrefix(spaceID string) string { return spaceID + "/live/" }

// ErrValidation is returned for any input that fails the note validation
// rules (category, agent, content length).
var ErrValidation = fmt.Errorf("validation error")

// Note validates and writes a single note. It never locks — key
// construction alone guarantees I3 uniqueness.
func (s *Store) Note(ctx context.Context, spaceID, category, content, agent, tagsCSV string) (*Note, error) {
	if !spaces.ValidID(agent) {
		return nil, fmt.Errorf("%w: invalid agent %q", ErrValidation, agent)
	}
	if !Categories[category] {
		return nil, fmt.Errorf("%w: invalid category %q", ErrValidation, category)
	}
	if len(content) > maxContentLen {
		return nil, fmt.Errorf("%w: content exceeds %d characters", ErrValidation, maxContentLen)
	}

	var tags []string
	for _, t := range strings.Split(tagsCSV, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}

	now := time.Now().UTC()
	suffix, err := randomHex8()
	if err != nil {
		return nil, fmt.Errorf("generating note suffix: %w", err)
	}
	filename := fmt.Sprintf("%s_%s_%s_%s.md", now.Format("20060102T150405"), agent, category, suffix)
	key := livePrefix(spaceID) + filename

	fm := FrontMatter{Timestamp: now, Agent: agent, Category: category, Tags: tags, SpaceID: spaceID}
	body, err := renderNote(fm, content)
	if err != nil {
		return nil, err
	}

	if err := s.store.Put(ctx, key, []byte(body), "text/markdown"); err != nil {
		return nil, fmt.Errorf("writing note: %w", err)
	}

	return &Note{Key: filename, Meta: fm, Content: content, Size: len(body)}, nil
}

func randomHex8() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func renderNote(fm FrontMatter, content string) (string, error) {
	yamlBytes, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("marshaling front matter: %w", err)
	}
	return "---\n" + string(yamlBytes) + "---\n\n" + content, nil
}

func parseNote(key, raw string) (*Note, error) {
	const delim = "---\n"
	if !strings.HasPrefix(raw, delim) {
		return nil, fmt.Errorf("note %s missing front matter", key)
	}
	rest := raw[len(delim):]
	end := strings.Index(rest, "\n---\n")
	if end < 0 {
		return nil, fmt.Errorf("note %s has unterminated front matter", key)
	}
	yamlBlock := rest[:end]
	body := strings.TrimPrefix(rest[end+len("\n---\n"):], "\n")

	var fm FrontMatter
	if err := yaml.Unmarshal([]byte(yamlBlock), &fm); err != nil {
		return nil, fmt.Errorf("parsing front matter of %s: %w", key, err)
	}
	return &Note{Key: key, Meta: fm, Content: body, Size: len(raw)}, nil
}

// listNotes loads and parses every note object under spaceID/live/,
// skipping .keep, sorted newest-first.
func (s *Store) listNotes(ctx context.Context, spaceID string) ([]*Note, error) {
	objs, err := s.store.List(ctx, livePrefix(spaceID))
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	var out []*Note
	for _, o := range objs {
		if strings.HasSuffix(o.Key, ".keep") {
			continue
		}
		data, found, err := s.store.Get(ctx, o.Key)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		filename := strings.TrimPrefix(o.Key, livePrefix(spaceID))
		note, err := parseNote(filename, string(data))
		if err != nil {
			continue // corrupt note: skip rather than fail the whole read
		}
		out = append(out, note)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Meta.Timestamp.After(out[j].Meta.Timestamp) })
	return out, nil
}

// Read lists notes filtered by category/agent/since, newest-first, up to
// limit.
func (s *Store) Read(ctx context.Context, spaceID string, limit int, category, agent, since string) ([]*Note, error) {
	all, err := s.listNotes(ctx, spaceID)
	if err != nil {
		return nil, err
	}

	var sinceTime time.Time
	if since != "" {
		sinceTime, _ = time.Parse(time.RFC3339, since)
	}

	var out []*Note
	for _, n := range all {
		if category != "" && n.Meta.Category != category {
			continue
		}
		if agent != "" && n.Meta.Agent != agent {
			continue
		}
		if !sinceTime.IsZero() && n.Meta.Timestamp.Before(sinceTime) {
			continue
		}
		out = append(out, n)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Search returns notes whose body contains query (case-insensitive),
// newest-first, up to limit. It applies no category, agent or since filter.
func (s *Store) Search(ctx context.Context, spaceID, query string, limit int) ([]*Note, error) {
	all, err := s.listNotes(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	lowerQuery := strings.ToLower(query)

	var out []*Note
	for _, n := range all {
		if !strings.Contains(strings.ToLower(n.Content), lowerQuery) {
			continue
		}
		out = append(out, n)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// SnapshotForConsolidation returns the keys and parsed notes of every
// note eligible for a consolidation run restricted to agent (empty means
// all agents), sorted oldest-first, plus how many were left over past
// maxNotes.
func (s *Store) SnapshotForConsolidation(ctx context.Context, spaceID, agent string, maxNotes int) (selected []*Note, remaining int, err error) {
	all, err := s.listNotes(ctx, spaceID)
	if err != nil {
		return nil, 0, err
	}
	// listNotes sorts newest-first; consolidation wants oldest-first.
	sort.Slice(all, func(i, j int) bool { return all[i].Meta.Timestamp.Before(all[j].Meta.Timestamp) })

	var filtered []*Note
	for _, n := range all {
		if agent != "" && n.Meta.Agent != agent {
			continue
		}
		filtered = append(filtered, n)
	}

	if maxNotes > 0 && len(filtered) > maxNotes {
		remaining = len(filtered) - maxNotes
		filtered = filtered[:maxNotes]
	}
	return filtered, remaining, nil
}

// Key returns the full object key for a note filename within spaceID.
func Key(spaceID, filename string) string {
	return livePrefix(spaceID) + filename
}
