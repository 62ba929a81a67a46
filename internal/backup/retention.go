package backup

import (
	"context"
	"sort"
)

// prune keeps only the newest retentionCount snapshots for spaceID,
// deleting the rest. Snapshot prefixes are ordered lexicographically,
// which for the to-the-second "2006-01-02T15-04-05" ids is chronological.
func (s *Service) prune(ctx context.Context, spaceID string) error {
	if s.retentionCount <= 0 {
		return nil
	}
	prefixes, err := s.store.ListPrefixes(ctx, backupsRoot(spaceID))
	if err != nil {
		return err
	}
	if len(prefixes) <= s.retentionCount {
		return nil
	}

	sort.Slice(prefixes, func(i, j int) bool { return prefixes[i] < prefixes[j] })
	toDelete := prefixes[:len(prefixes)-s.retentionCount]

	for _, p := range toDelete {
		objs, err := s.store.List(ctx, p)
		if err != nil {
			return err
		}
		var keys []string
		for _, o := range objs {
			keys = append(keys, o.Key)
		}
		if err := s.store.DeleteMany(ctx, keys); err != nil {
			return err
		}
	}
	return nil
}
