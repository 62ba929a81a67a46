package toolsurface

import (
	"context"

	"github.com/livememory/livememory/internal/auth"
	"github.com/livememory/livememory/internal/gc"
	"github.com/mark3labs/mcp-go/mcp"
)

// AdminTool implements the admin_* tool group: token lifecycle and forced
// garbage collection. Every operation here requires admin permission.
type AdminTool struct {
	tokens *auth.TokenRegistry
	gc     *gc.Collector
}

// NewAdminTool builds the admin tool group.
func NewAdminTool(tokens *auth.TokenRegistry, collector *gc.Collector) *AdminTool {
	return &AdminTool{tokens: tokens, gc: collector}
}

func (t *AdminTool) CreateTokenDefinition() mcp.Tool {
	return mcp.NewTool("admin_create_token",
		mcp.WithDescription("Mint a new bearer credential. The plain credential is returned exactly once and never stored."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Human-readable label for this credential")),
		mcp.WithString("permissions", mcp.Required(), mcp.Description("JSON array of permissions, subset of: read, write, admin")),
		mcp.WithString("space_ids", mcp.Description("JSON array of space ids this credential may access; empty/absent means universal scope")),
		mcp.WithNumber("expires_in_days", mcp.Description("Optional expiry, in days from now")),
	)
}

func (t *AdminTool) HandleCreateToken(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, forbid := identity(ctx)
	if forbid != nil {
		return forbid, nil
	}
	if r := requireAdmin(id); r != nil {
		return r, nil
	}

	name := req.GetString("name", "")
	permissions := stringSlice(req.GetArguments()["permissions"])
	spaceIDs := stringSlice(req.GetArguments()["space_ids"])
	expiresInDays := int(req.GetFloat("expires_in_days", 0))

	plain, rec, err := t.tokens.Create(ctx, name, permissions, spaceIDs, expiresInDays)
	if err != nil {
		return errStatus(err.Error()), nil
	}
	return created(map[string]interface{}{
		"credential":  plain,
		"id":          rec.ID,
		"hash_prefix": rec.TruncatedHash(),
		"name":        rec.Name,
		"permissions": rec.Permissions,
		"space_ids":   rec.SpaceIDs,
	}), nil
}

func (t *AdminTool) ListTokensDefinition() mcp.Tool {
	return mcp.NewTool("admin_list_tokens", mcp.WithDescription("List every stored credential's metadata (never the plain credential or full hash)."))
}

func (t *AdminTool) HandleListTokens(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, forbid := identity(ctx)
	if forbid != nil {
		return forbid, nil
	}
	if r := requireAdmin(id); r != nil {
		return r, nil
	}

	tokens, err := t.tokens.List(ctx)
	if err != nil {
		return errStatus(err.Error()), nil
	}
	out := make([]map[string]interface{}, len(tokens))
	for i, tok := range tokens {
		out[i] = map[string]interface{}{
			"id":           tok.ID,
			"hash_prefix":  tok.TruncatedHash(),
			"name":         tok.Name,
			"permissions":  tok.Permissions,
			"space_ids":    tok.SpaceIDs,
			"created_at":   tok.CreatedAt,
			"expires_at":   tok.ExpiresAt,
			"last_used_at": tok.LastUsedAt,
			"revoked":      tok.Revoked,
		}
	}
	return ok(map[string]interface{}{"tokens": out}), nil
}

func (t *AdminTool) RevokeTokenDefinition() mcp.Tool {
	return mcp.NewTool("admin_revoke_token",
		mcp.WithDescription("Revoke a credential by its hash prefix, identified via admin_list_tokens."),
		mcp.WithString("hash_prefix", mcp.Required(), mcp.Description("Leading characters of the token's stored hash")),
	)
}

func (t *AdminTool) HandleRevokeToken(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, forbid := identity(ctx)
	if forbid != nil {
		return forbid, nil
	}
	if r := requireAdmin(id); r != nil {
		return r, nil
	}

	hashPrefix := req.GetString("hash_prefix", "")
	if err := t.tokens.Revoke(ctx, hashPrefix); err != nil {
		return errStatus(err.Error()), nil
	}
	return ok(map[string]interface{}{"hash_prefix": hashPrefix}), nil
}

func (t *AdminTool) UpdateTokenDefinition() mcp.Tool {
	return mcp.NewTool("admin_update_token",
		mcp.WithDescription("Update a credential's scope and/or permissions."),
		mcp.WithString("hash_prefix", mcp.Required(), mcp.Description("Leading characters of the token's stored hash")),
		mcp.WithString("permissions", mcp.Description("JSON array: replacement permission set")),
		mcp.WithString("space_ids", mcp.Description("JSON array: replacement scope")),
	)
}

func (t *AdminTool) HandleUpdateToken(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, forbid := identity(ctx)
	if forbid != nil {
		return forbid, nil
	}
	if r := requireAdmin(id); r != nil {
		return r, nil
	}

	hashPrefix := req.GetString("hash_prefix", "")
	args := req.GetArguments()
	var permissions, spaceIDs []string
	if v, present := args["permissions"]; present {
		permissions = stringSlice(v)
	}
	if v, present := args["space_ids"]; present {
		spaceIDs = stringSlice(v)
	}

	tok, err := t.tokens.Update(ctx, hashPrefix, spaceIDs, permissions)
	if err != nil {
		return errStatus(err.Error()), nil
	}
	return ok(map[string]interface{}{
		"id":          tok.ID,
		"hash_prefix": tok.TruncatedHash(),
		"permissions": tok.Permissions,
		"space_ids":   tok.SpaceIDs,
	}), nil
}

func (t *AdminTool) GCNotesDefinition() mcp.Tool {
	return mcp.NewTool("admin_gc_notes",
		mcp.WithDescription("Scan for orphaned live notes past the retention age; dry-run by default. confirm=true with delete_only=false forces a consolidation per orphan group; confirm=true with delete_only=true deletes them outright."),
		mcp.WithString("space_id", mcp.Description("Restrict to one space; empty scans every accessible space")),
		mcp.WithBoolean("confirm", mcp.Description("Must be true to mutate anything")),
		mcp.WithBoolean("delete_only", mcp.Description("Skip consolidation and delete orphaned notes directly")),
	)
}

func (t *AdminTool) HandleGCNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, forbid := identity(ctx)
	if forbid != nil {
		return forbid, nil
	}
	if r := requireAdmin(id); r != nil {
		return r, nil
	}

	spaceID := req.GetString("space_id", "")
	confirm := boolArg(req, "confirm", false)
	deleteOnly := boolArg(req, "delete_only", false)

	report, err := t.gc.Run(ctx, spaceID, id.SpaceIDs, confirm, deleteOnly)
	if err != nil {
		return errStatus(err.Error()), nil
	}
	return envelope(report.Status, map[string]interface{}{
		"mode":          report.Mode,
		"orphans":       report.Orphans,
		"consolidated":  report.Consolidated,
		"deleted_count": report.DeletedCount,
	}), nil
}

func stringSlice(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
