// Package objectstore is a typed wrapper over an S3-compatible bucket:
// get/put/list/delete plus JSON helpers, pagination and copy. It is the
// only durable state Live Memory owns — there is no database.
package objectstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ObjectMeta describes one listed object.
type ObjectMeta struct {
	Key      string
	Size     int64
	Modified time.Time
}

// Store is the façade every domain package depends on. Missing keys are
// reported as (nil, false, nil) — never as an error — so callers can
// distinguish "absent" from "store failure".
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	DeleteMany(ctx context.Context, keys []string) error
	// List enumerates every object under prefix, paginating internally;
	// callers never see a truncation flag.
	List(ctx context.Context, prefix string) ([]ObjectMeta, error)
	// ListPrefixes enumerates the immediate child "directories" of
	// prefix (delimiter-grouped common prefixes), non-recursive.
	ListPrefixes(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Copy(ctx context.Context, srcKey, dstKey string) error
}

// GetJSON reads key and unmarshals it into out. Returns found=false
// without an error when the key is absent.
func GetJSON(ctx context.Context, s Store, key string, out interface{}) (bool, error) {
	data, found, err := s.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return true, fmt.Errorf("parsing %s: %w", key, err)
	}
	return true, nil
}

// PutJSON marshals obj and writes it to key as application/json.
func PutJSON(ctx context.Context, s Store, key string, obj interface{}) error {
	data, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}
	if err := s.Put(ctx, key, data, "application/json"); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
