// Package gc implements the GarbageCollector: detection and (optionally)
// forced consolidation or deletion of stale live notes.
package gc

import (
	"context"
	"fmt"
	"time"

	"github.com/livememory/livememory/internal/consolidate"
	"github.com/livememory/livememory/internal/notes"
	"github.com/livememory/livememory/internal/objectstore"
	"github.com/livememory/livememory/internal/spaces"
)

// OrphanGroup is one (space, agent) pair with stale notes.
type OrphanGroup struct {
	SpaceID string `json:"space_id"`
	Agent   string `json:"agent"`
	Count   int    `json:"count"`
}

// Report is the outcome of a GC pass.
type Report struct {
	Status        string                         `json:"status"`
	Mode          string                         `json:"mode"`
	Orphans       []OrphanGroup                  `json:"orphans"`
	Consolidated  []*consolidate.Result          `json:"consolidated,omitempty"`
	DeletedCount  int                            `json:"deleted_count,omitempty"`
}

// Collector scans and reclaims notes older than a configured age.
type Collector struct {
	store        objectstore.Store
	spaces       *spaces.Repo
	notes        *notes.Store
	consolidator *consolidate.Consolidator
	maxAgeDays   int
}

// New builds a Collector wired to its collaborators.
func New(store objectstore.Store, spaceRepo *spaces.Repo, noteStore *notes.Store, consolidator *consolidate.Consolidator, maxAgeDays int) *Collector {
	return &Collector{store: store, spaces: spaceRepo, notes: noteStore, consolidator: consolidator, maxAgeDays: maxAgeDays}
}

// scan finds every (space, agent) pair with notes older than maxAgeDays.
// If spaceID is empty, every accessible space is scanned.
func (c *Collector) scan(ctx context.Context, spaceID string, allowedSpaceIDs []string) ([]OrphanGroup, error) {
	var spaceIDs []string
	if spaceID != "" {
		spaceIDs = []string{spaceID}
	} else {
		listings, err := c.spaces.List(ctx, allowedSpaceIDs)
		if err != nil {
			return nil, err
		}
		for _, l := range listings {
			spaceIDs = append(spaceIDs, l.Meta.SpaceID)
		}
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -c.maxAgeDays)
	counts := map[[2]string]int{}
	for _, sid := range spaceIDs {
		all, err := c.notes.Read(ctx, sid, 0, "", "", "")
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", sid, err)
		}
		for _, n := range all {
			if n.Meta.Timestamp.Before(cutoff) {
				key := [2]string{sid, n.Meta.Agent}
				counts[key]++
			}
		}
	}

	var out []OrphanGroup
	for k, n := range counts {
		out = append(out, OrphanGroup{SpaceID: k[0], Agent: k[1], Count: n})
	}
	return out, nil
}

// Run executes one GC pass. confirm=false is a dry-run report only.
// confirm=true with deleteOnly=false forces a consolidation per orphan
// group, seeded with a synthetic GC-notice note. confirm=true with
// deleteOnly=true deletes orphans directly, without a language-model
// call (data-loss path).
func (c *Collector) Run(ctx context.Context, spaceID string, allowedSpaceIDs []string, confirm, deleteOnly bool) (*Report, error) {
	orphans, err := c.scan(ctx, spaceID, allowedSpaceIDs)
	if err != nil {
		return nil, err
	}

	if !confirm {
		return &Report{Status: "ok", Mode: "dry_run", Orphans: orphans}, nil
	}

	if deleteOnly {
		deleted := 0
		for _, group := range orphans {
			deleted += c.deleteOrphans(ctx, group)
		}
		return &Report{Status: "ok", Mode: "delete_only", Orphans: orphans, DeletedCount: deleted}, nil
	}

	var results []*consolidate.Result
	for _, group := range orphans {
		if _, err := c.notes.Note(ctx, group.SpaceID, "observation",
			fmt.Sprintf("garbage collector forced a consolidation of %d orphaned notes for agent %s", group.Count, group.Agent),
			group.Agent, "gc"); err != nil {
			return nil, fmt.Errorf("writing GC notice for %s/%s: %w", group.SpaceID, group.Agent, err)
		}
		result, err := c.consolidator.Consolidate(ctx, group.SpaceID, group.Agent)
		if err != nil {
			return nil, fmt.Errorf("consolidating %s/%s: %w", group.SpaceID, group.Agent, err)
		}
		results = append(results, result)
	}
	return &Report{Status: "ok", Mode: "force_consolidate", Orphans: orphans, Consolidated: results}, nil
}

func (c *Collector) deleteOrphans(ctx context.Context, group OrphanGroup) int {
	cutoff := time.Now().UTC().AddDate(0, 0, -c.maxAgeDays)
	all, err := c.notes.Read(ctx, group.SpaceID, 0, "", group.Agent, "")
	if err != nil {
		return 0
	}
	var keys []string
	for _, n := range all {
		if n.Meta.Timestamp.Before(cutoff) {
			keys = append(keys, notes.Key(group.SpaceID, n.Key))
		}
	}
	if len(keys) == 0 {
		return 0
	}
	if err := c.store.DeleteMany(ctx, keys); err != nil {
		return 0
	}
	return len(keys)
}
