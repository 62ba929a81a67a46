package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/livememory/livememory/internal/locks"
	"github.com/livememory/livememory/internal/objectstore"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const tokensKey = "_system/tokens.json"

type tokensDoc struct {
	Version int      `json:"version"`
	Tokens  []*Token `json:"tokens"`
}

// TokenRegistry persists the hashed-credential store as a single JSON
// object under _system/tokens.json, serialized by the global tokens
// lock.
type TokenRegistry struct {
	store objectstore.Store
	locks *locks.Registry
}

// NewTokenRegistry builds a registry over store, serialized by locks.
func NewTokenRegistry(store objectstore.Store, locks *locks.Registry) *TokenRegistry {
	return &TokenRegistry{store: store, locks: locks}
}

func (r *TokenRegistry) load(ctx context.Context) (*tokensDoc, error) {
	var doc tokensDoc
	found, err := objectstore.GetJSON(ctx, r.store, tokensKey, &doc)
	if err != nil {
		return nil, fmt.Errorf("loading token registry: %w", err)
	}
	if !found {
		doc = tokensDoc{Version: 1}
	}
	return &doc, nil
}

func (r *TokenRegistry) save(ctx context.Context, doc *tokensDoc) error {
	if err := objectstore.PutJSON(ctx, r.store, tokensKey, doc); err != nil {
		return fmt.Errorf("saving token registry: %w", err)
	}
	return nil
}

// Create mints a new credential with the given name, permissions and
// scope, persists its hash, and returns the plain credential — the only
// time it is ever exposed (I7).
func (r *TokenRegistry) Create(ctx context.Context, name string, permissions, spaceIDs []string, expiresInDays int) (plain string, rec *Token, err error) {
	plain, hash, err := generateCredential()
	if err != nil {
		return "", nil, fmt.Errorf("generating credential: %w", err)
	}

	rec = &Token{
		ID:          uuid.NewString(),
		Hash:        hash,
		Name:        name,
		Permissions: permissions,
		SpaceIDs:    spaceIDs,
		CreatedAt:   time.Now().UTC(),
	}
	if expiresInDays > 0 {
		exp := rec.CreatedAt.AddDate(0, 0, expiresInDays)
		rec.ExpiresAt = &exp
	}

	release := r.locks.Tokens()
	defer release()

	doc, err := r.load(ctx)
	if err != nil {
		return "", nil, err
	}
	doc.Tokens = append(doc.Tokens, rec)
	if err := r.save(ctx, doc); err != nil {
		return "", nil, err
	}
	return plain, rec, nil
}

// List returns every stored token record (with full hashes — callers at
// the tool boundary must truncate before displaying admin output).
func (r *TokenRegistry) List(ctx context.Context) ([]*Token, error) {
	release := r.locks.Tokens()
	defer release()

	doc, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Tokens, nil
}

// findByTruncated locates the unique token whose hash starts with the
// given (possibly truncated) prefix, mirroring the original's
// truncated-hash admin lookup convention.
func findByTruncated(tokens []*Token, prefix string) (*Token, error) {
	var match *Token
	for _, t := range tokens {
		if strings.HasPrefix(t.Hash, prefix) {
			if match != nil {
				return nil, fmt.Errorf("ambiguous hash prefix %q matches multiple tokens", prefix)
			}
			match = t
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no token matches hash prefix %q", prefix)
	}
	return match, nil
}

// Revoke soft-deletes the token matching hashPrefix by setting Revoked.
func (r *TokenRegistry) Revoke(ctx context.Context, hashPrefix string) error {
	release := r.locks.Tokens()
	defer release()

	doc, err := r.load(ctx)
	if err != nil {
		return err
	}
	tok, err := findByTruncated(doc.Tokens, hashPrefix)
	if err != nil {
		return err
	}
	tok.Revoked = true
	return r.save(ctx, doc)
}

// Update mutates the scope and/or permissions of the token matching
// hashPrefix. A nil slice leaves the corresponding field unchanged; a
// non-nil slice, even an empty one, replaces it.
func (r *TokenRegistry) Update(ctx context.Context, hashPrefix string, spaceIDs, permissions []string) (*Token, error) {
	release := r.locks.Tokens()
	defer release()

	doc, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	tok, err := findByTruncated(doc.Tokens, hashPrefix)
	if err != nil {
		return nil, err
	}
	if spaceIDs != nil {
		tok.SpaceIDs = spaceIDs
	}
	if permissions != nil {
		tok.Permissions = permissions
	}
	if err := r.save(ctx, doc); err != nil {
		return nil, err
	}
	return tok, nil
}

// Lookup resolves a plain bearer credential to its token record. It
// rejects missing, revoked and expired tokens. LastUsedAt is refreshed
// out of band (best-effort, does not block the caller).
func (r *TokenRegistry) Lookup(ctx context.Context, credential string) (*Token, error) {
	hash := hashCredential(credential)

	release := r.locks.Tokens()
	doc, err := r.load(ctx)
	release()
	if err != nil {
		return nil, err
	}

	var found *Token
	for _, t := range doc.Tokens {
		if t.Hash == hash {
			found = t
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("token not found")
	}
	if found.Revoked {
		return nil, fmt.Errorf("token revoked")
	}
	if found.Expired(time.Now().UTC()) {
		return nil, fmt.Errorf("token expired")
	}

	go r.touchLastUsed(context.Background(), hash)

	// Return a copy so the caller can't mutate the stored record.
	cp := *found
	return &cp, nil
}

// touchLastUsed patches a single token's last_used_at in place on the raw
// stored document rather than decoding and re-encoding the whole registry.
// This runs on every successful Lookup, so avoiding a full struct
// round-trip matters more here than it does on the admin-driven paths.
func (r *TokenRegistry) touchLastUsed(ctx context.Context, hash string) {
	release := r.locks.Tokens()
	defer release()

	raw, found, err := r.store.Get(ctx, tokensKey)
	if err != nil || !found {
		return
	}

	idx := -1
	gjson.GetBytes(raw, "tokens").ForEach(func(key, value gjson.Result) bool {
		if value.Get("hash").String() == hash {
			idx = int(key.Int())
			return false
		}
		return true
	})
	if idx < 0 {
		return
	}

	path := fmt.Sprintf("tokens.%d.last_used_at", idx)
	updated, err := sjson.SetBytes(raw, path, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return
	}
	_ = r.store.Put(ctx, tokensKey, updated, "application/json")
}
