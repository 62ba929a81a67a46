package toolsurface

import (
	"context"

	"github.com/livememory/livememory/internal/spaces"
	"github.com/mark3labs/mcp-go/mcp"
)

// SpaceTool implements the space_* tool group.
type SpaceTool struct {
	spaces *spaces.Repo
}

// NewSpaceTool builds the space tool group.
func NewSpaceTool(spaceRepo *spaces.Repo) *SpaceTool {
	return &SpaceTool{spaces: spaceRepo}
}

func (t *SpaceTool) CreateDefinition() mcp.Tool {
	return mcp.NewTool("space_create",
		mcp.WithDescription("Create a new isolated space with immutable rules describing the desired bank shape."),
		mcp.WithString("space_id", mcp.Required(), mcp.Description("Space id, ^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$")),
		mcp.WithString("description", mcp.Description("Short human description, <=500 chars")),
		mcp.WithString("rules", mcp.Required(), mcp.Description("Markdown rules, <=50000 chars, written once")),
		mcp.WithString("owner", mcp.Description("Optional owner label")),
	)
}

func (t *SpaceTool) HandleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, forbid := identity(ctx)
	if forbid != nil {
		return forbid, nil
	}
	if r := requireWrite(id); r != nil {
		return r, nil
	}

	spaceID := req.GetString("space_id", "")
	description := req.GetString("description", "")
	rules := req.GetString("rules", "")
	owner := req.GetString("owner", "")

	if len(description) > 500 {
		return errStatus("description exceeds 500 characters"), nil
	}
	if len(rules) > 50_000 {
		return errStatus("rules exceed 50000 characters"), nil
	}

	meta, err := t.spaces.Create(ctx, spaceID, description, rules, owner)
	switch err {
	case nil:
		return created(map[string]interface{}{"space_id": meta.SpaceID}), nil
	case spaces.ErrAlreadyExists:
		return alreadyExists("space " + spaceID + " already exists"), nil
	case spaces.ErrInvalidID:
		return errStatus("invalid space_id"), nil
	default:
		return errStatus(err.Error()), nil
	}
}

func (t *SpaceTool) ListDefinition() mcp.Tool {
	return mcp.NewTool("space_list", mcp.WithDescription("List every space within the caller's scope."))
}

func (t *SpaceTool) HandleList(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, forbid := identity(ctx)
	if forbid != nil {
		return forbid, nil
	}
	listings, err := t.spaces.List(ctx, id.SpaceIDs)
	if err != nil {
		return errStatus(err.Error()), nil
	}
	out := make([]map[string]interface{}, len(listings))
	for i, l := range listings {
		out[i] = map[string]interface{}{
			"space_id":   l.Meta.SpaceID,
			"live_count": l.LiveCount,
			"bank_count": l.BankCount,
		}
	}
	return ok(map[string]interface{}{"spaces": out}), nil
}

func (t *SpaceTool) InfoDefinition() mcp.Tool {
	return mcp.NewTool("space_info",
		mcp.WithDescription("Detailed status for one space: counts, sizes, bank file list, consolidation history."),
		mcp.WithString("space_id", mcp.Required(), mcp.Description("Space id")),
	)
}

func (t *SpaceTool) HandleInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, forbid := identity(ctx)
	if forbid != nil {
		return forbid, nil
	}
	spaceID := req.GetString("space_id", "")
	if r := requireAccess(id, spaceID); r != nil {
		return r, nil
	}
	info, err := t.spaces.Info(ctx, spaceID)
	if err == spaces.ErrNotFound {
		return notFound("space " + spaceID + " not found"), nil
	}
	if err != nil {
		return errStatus(err.Error()), nil
	}
	return ok(map[string]interface{}{
		"space_id":             info.Meta.SpaceID,
		"live_count":           info.LiveCount,
		"bank_count":           info.BankCount,
		"bank_files":           info.BankFiles,
		"total_size_bytes":     info.TotalSizeBytes,
		"oldest_note":          info.OldestNote,
		"newest_note":          info.NewestNote,
		"synthesis_exists":     info.SynthesisExists,
		"last_consolidation":   info.Meta.LastConsolidation,
		"consolidation_count":  info.Meta.ConsolidationCount,
	}), nil
}

func (t *SpaceTool) RulesDefinition() mcp.Tool {
	return mcp.NewTool("space_rules",
		mcp.WithDescription("Return the immutable rules body for a space."),
		mcp.WithString("space_id", mcp.Required(), mcp.Description("Space id")),
	)
}

func (t *SpaceTool) HandleRules(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, forbid := identity(ctx)
	if forbid != nil {
		return forbid, nil
	}
	spaceID := req.GetString("space_id", "")
	if r := requireAccess(id, spaceID); r != nil {
		return r, nil
	}
	rules, err := t.spaces.Rules(ctx, spaceID)
	if err == spaces.ErrNotFound {
		return notFound("space " + spaceID + " not found"), nil
	}
	if err != nil {
		return errStatus(err.Error()), nil
	}
	return ok(map[string]interface{}{"rules": rules}), nil
}

func (t *SpaceTool) SummaryDefinition() mcp.Tool {
	return mcp.NewTool("space_summary",
		mcp.WithDescription("Bootstrap payload for an agent: info + rules + full bank content + synthesis."),
		mcp.WithString("space_id", mcp.Required(), mcp.Description("Space id")),
	)
}

func (t *SpaceTool) HandleSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, forbid := identity(ctx)
	if forbid != nil {
		return forbid, nil
	}
	spaceID := req.GetString("space_id", "")
	if r := requireAccess(id, spaceID); r != nil {
		return r, nil
	}
	summary, err := t.spaces.Summary(ctx, spaceID)
	if err == spaces.ErrNotFound {
		return notFound("space " + spaceID + " not found"), nil
	}
	if err != nil {
		return errStatus(err.Error()), nil
	}
	return ok(map[string]interface{}{
		"rules":     summary.Rules,
		"bank":      summary.Bank,
		"synthesis": summary.Synthesis,
		"info": map[string]interface{}{
			"live_count": summary.Info.LiveCount,
			"bank_count": summary.Info.BankCount,
		},
	}), nil
}

func (t *SpaceTool) ExportDefinition() mcp.Tool {
	return mcp.NewTool("space_export",
		mcp.WithDescription("Base64 tar.gz export of an entire space, read-only."),
		mcp.WithString("space_id", mcp.Required(), mcp.Description("Space id")),
	)
}

func (t *SpaceTool) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, forbid := identity(ctx)
	if forbid != nil {
		return forbid, nil
	}
	spaceID := req.GetString("space_id", "")
	if r := requireAccess(id, spaceID); r != nil {
		return r, nil
	}
	archive, err := t.spaces.Export(ctx, spaceID)
	if err == spaces.ErrNotFound {
		return notFound("space " + spaceID + " not found"), nil
	}
	if err != nil {
		return errStatus(err.Error()), nil
	}
	return ok(map[string]interface{}{"archive_base64": archive}), nil
}

func (t *SpaceTool) DeleteDefinition() mcp.Tool {
	return mcp.NewTool("space_delete",
		mcp.WithDescription("Permanently delete a space and every object under it. Admin only, requires confirm=true."),
		mcp.WithString("space_id", mcp.Required(), mcp.Description("Space id")),
		mcp.WithBoolean("confirm", mcp.Required(), mcp.Description("Must be true or the call is refused")),
	)
}

func (t *SpaceTool) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, forbid := identity(ctx)
	if forbid != nil {
		return forbid, nil
	}
	spaceID := req.GetString("space_id", "")
	if r := requireAccess(id, spaceID); r != nil {
		return r, nil
	}
	if r := requireAdmin(id); r != nil {
		return r, nil
	}
	confirm := boolArg(req, "confirm", false)
	if !confirm {
		return errStatus("confirm=true is required to delete a space"), nil
	}
	if err := t.spaces.Delete(ctx, spaceID); err != nil {
		return errStatus(err.Error()), nil
	}
	return deleted(map[string]interface{}{"space_id": spaceID}), nil
}
