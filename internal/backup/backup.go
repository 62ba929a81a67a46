// Package backup implements BackupService: space snapshots and restores
// under the reserved "_backups/" prefix.
package backup

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/livememory/livememory/internal/objectstore"
)

// IDPattern validates a backup id of the form "<space>/<YYYY-MM-DDTHH-MM-SS>".
var IDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+/\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}$`)

const backupTimeFormat = "2006-01-02T15-04-05"

// Meta is the small record written next to each snapshot.
type Meta struct {
	SpaceID     string    `json:"space_id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Listing is one row of List's output.
type Listing struct {
	BackupID string `json:"backup_id"`
	Meta     Meta   `json:"meta"`
}

// Service implements backup lifecycle operations.
type Service struct {
	store          objectstore.Store
	retentionCount int
}

// New builds a Service over store, pruning to retentionCount snapshots
// per space after each successful create.
func New(store objectstore.Store, retentionCount int) *Service {
	return &Service{store: store, retentionCount: retentionCount}
}

func backupPrefix(spaceID, ts string) string { return "_backups/" + spaceID + "/" + ts + "/" }
func backupsRoot(spaceID string) string      { return "_backups/" + spaceID + "/" }

// ErrNotFound is returned when a backup id has no snapshot.
var ErrNotFound = fmt.Errorf("backup not found")

// ErrAlreadyExists is returned by Restore when the destination space
// already has metadata.
var ErrAlreadyExists = fmt.Errorf("destination space already exists")

// ErrInvalidID is returned for a malformed backup id.
var ErrInvalidID = fmt.Errorf("invalid backup id")

// Create snapshots every object under spaceID/ into a new timestamped
// prefix, then prunes old snapshots down to the retention count.
func (s *Service) Create(ctx context.Context, spaceID, description string) (string, error) {
	objs, err := s.store.List(ctx, spaceID+"/")
	if err != nil {
		return "", fmt.Errorf("listing space for backup: %w", err)
	}
	if len(objs) == 0 {
		return "", ErrNotFound
	}

	ts := time.Now().UTC().Format(backupTimeFormat)
	dest := backupPrefix(spaceID, ts)

	for _, o := range objs {
		relative := strings.TrimPrefix(o.Key, spaceID+"/")
		if err := s.store.Copy(ctx, o.Key, dest+relative); err != nil {
			return "", fmt.Errorf("copying %s: %w", o.Key, err)
		}
	}

	meta := Meta{SpaceID: spaceID, Description: description, CreatedAt: time.Now().UTC()}
	if err := objectstore.PutJSON(ctx, s.store, dest+"_meta.json", &meta); err != nil {
		return "", fmt.Errorf("writing backup meta: %w", err)
	}

	backupID := spaceID + "/" + ts
	if err := s.prune(ctx, spaceID); err != nil {
		return backupID, fmt.Errorf("backup created but retention pruning failed: %w", err)
	}
	return backupID, nil
}

// List enumerates snapshots, optionally restricted to one space and
// filtered by scope.
func (s *Service) List(ctx context.Context, spaceID string, allowedSpaceIDs []string) ([]Listing, error) {
	var spaceIDs []string
	if spaceID != "" {
		spaceIDs = []string{spaceID}
	} else {
		prefixes, err := s.store.ListPrefixes(ctx, "_backups/")
		if err != nil {
			return nil, fmt.Errorf("listing backup spaces: %w", err)
		}
		for _, p := range prefixes {
			spaceIDs = append(spaceIDs, strings.TrimSuffix(strings.TrimPrefix(p, "_backups/"), "/"))
		}
	}

	allowed := toSet(allowedSpaceIDs)
	var out []Listing
	for _, sid := range spaceIDs {
		if len(allowed) > 0 && !allowed[sid] {
			continue
		}
		tsPrefixes, err := s.store.ListPrefixes(ctx, backupsRoot(sid))
		if err != nil {
			return nil, err
		}
		for _, p := range tsPrefixes {
			ts := strings.TrimSuffix(strings.TrimPrefix(p, backupsRoot(sid)), "/")
			var meta Meta
			found, err := objectstore.GetJSON(ctx, s.store, p+"_meta.json", &meta)
			if err != nil || !found {
				continue
			}
			out = append(out, Listing{BackupID: sid + "/" + ts, Meta: meta})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BackupID < out[j].BackupID })
	return out, nil
}

func toSet(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func splitBackupID(backupID string) (spaceID, ts string, err error) {
	if !IDPattern.MatchString(backupID) {
		return "", "", ErrInvalidID
	}
	idx := strings.LastIndex(backupID, "/")
	return backupID[:idx], backupID[idx+1:], nil
}

// SplitBackupID exposes splitBackupID for callers (the tool surface) that
// need the space id out of a backup id before deciding on scope checks.
func SplitBackupID(backupID string) (spaceID, ts string, err error) {
	return splitBackupID(backupID)
}

// Restore copies a snapshot's objects back to its space id. It refuses
// if the space already exists.
func (s *Service) Restore(ctx context.Context, backupID string, spaceExists func(context.Context, string) (bool, error)) error {
	spaceID, ts, err := splitBackupID(backupID)
	if err != nil {
		return err
	}
	exists, err := spaceExists(ctx, spaceID)
	if err != nil {
		return err
	}
	if exists {
		return ErrAlreadyExists
	}

	prefix := backupPrefix(spaceID, ts)
	objs, err := s.store.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("listing backup: %w", err)
	}
	if len(objs) == 0 {
		return ErrNotFound
	}
	for _, o := range objs {
		relative := strings.TrimPrefix(o.Key, prefix)
		if relative == "_meta.json" {
			continue
		}
		if err := s.store.Copy(ctx, o.Key, spaceID+"/"+relative); err != nil {
			return fmt.Errorf("restoring %s: %w", relative, err)
		}
	}
	return nil
}

// Download returns a base64 tar.gz of one snapshot.
func (s *Service) Download(ctx context.Context, backupID string) (string, error) {
	spaceID, ts, err := splitBackupID(backupID)
	if err != nil {
		return "", err
	}
	prefix := backupPrefix(spaceID, ts)
	objs, err := s.store.List(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("listing backup: %w", err)
	}
	if len(objs) == 0 {
		return "", ErrNotFound
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, o := range objs {
		data, found, err := s.store.Get(ctx, o.Key)
		if err != nil || !found {
			continue
		}
		hdr := &tar.Header{Name: strings.TrimPrefix(o.Key, prefix), Mode: 0o644, Size: int64(len(data))}
		if err := tw.WriteHeader(hdr); err != nil {
			return "", err
		}
		if _, err := tw.Write(data); err != nil {
			return "", err
		}
	}
	if err := tw.Close(); err != nil {
		return "", err
	}
	if err := gz.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Delete removes a snapshot's prefix entirely.
func (s *Service) Delete(ctx context.Context, backupID string) error {
	spaceID, ts, err := splitBackupID(backupID)
	if err != nil {
		return err
	}
	prefix := backupPrefix(spaceID, ts)
	objs, err := s.store.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("listing backup: %w", err)
	}
	keys := make([]string, len(objs))
	for i, o := range objs {
		keys[i] = o.Key
	}
	return s.store.DeleteMany(ctx, keys)
}
