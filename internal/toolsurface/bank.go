package toolsurface

import (
	"context"
	"strings"

	"github.com/livememory/livememory/internal/consolidate"
	"github.com/livememory/livememory/internal/objectstore"
	"github.com/mark3labs/mcp-go/mcp"
)

// BankTool implements the bank_* tool group.
type BankTool struct {
	store        objectstore.Store
	consolidator *consolidate.Consolidator
}

// NewBankTool builds the bank tool group.
func NewBankTool(store objectstore.Store, consolidator *consolidate.Consolidator) *BankTool {
	return &BankTool{store: store, consolidator: consolidator}
}

func bankPrefix(spaceID string) string { return spaceID + "/bank/" }

func (t *BankTool) ListDefinition() mcp.Tool {
	return mcp.NewTool("bank_list",
		mcp.WithDescription("List the current bank filenames for a space."),
		mcp.WithString("space_id", mcp.Required(), mcp.Description("Space id")),
	)
}

func (t *BankTool) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, forbid := identity(ctx)
	if forbid != nil {
		return forbid, nil
	}
	spaceID := req.GetString("space_id", "")
	if r := requireAccess(id, spaceID); r != nil {
		return r, nil
	}

	objs, err := t.store.List(ctx, bankPrefix(spaceID))
	if err != nil {
		return errStatus(err.Error()), nil
	}
	var files []string
	for _, o := range objs {
		if strings.HasSuffix(o.Key, ".keep") {
			continue
		}
		files = append(files, strings.TrimPrefix(o.Key, bankPrefix(spaceID)))
	}
	return ok(map[string]interface{}{"files": files}), nil
}

func (t *BankTool) ReadDefinition() mcp.Tool {
	return mcp.NewTool("bank_read",
		mcp.WithDescription("Read one bank file's content."),
		mcp.WithString("space_id", mcp.Required(), mcp.Description("Space id")),
		mcp.WithString("filename", mcp.Required(), mcp.Description("Bank filename")),
	)
}

func (t *BankTool) HandleRead(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, forbid := identity(ctx)
	if forbid != nil {
		return forbid, nil
	}
	spaceID := req.GetString("space_id", "")
	if r := requireAccess(id, spaceID); r != nil {
		return r, nil
	}

	filename := req.GetString("filename", "")
	if strings.Contains(filename, "..") || strings.HasPrefix(filename, "/") {
		return errStatus("invalid filename"), nil
	}
	data, found, err := t.store.Get(ctx, bankPrefix(spaceID)+filename)
	if err != nil {
		return errStatus(err.Error()), nil
	}
	if !found {
		return notFound("bank file " + filename + " not found"), nil
	}
	return ok(map[string]interface{}{"filename": filename, "content": string(data)}), nil
}

func (t *BankTool) ReadAllDefinition() mcp.Tool {
	return mcp.NewTool("bank_read_all",
		mcp.WithDescription("Read every bank file's content for a space."),
		mcp.WithString("space_id", mcp.Required(), mcp.Description("Space id")),
	)
}

func (t *BankTool) HandleReadAll(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, forbid := identity(ctx)
	if forbid != nil {
		return forbid, nil
	}
	spaceID := req.GetString("space_id", "")
	if r := requireAccess(id, spaceID); r != nil {
		return r, nil
	}

	objs, err := t.store.List(ctx, bankPrefix(spaceID))
	if err != nil {
		return errStatus(err.Error()), nil
	}
	files := make(map[string]interface{})
	for _, o := range objs {
		if strings.HasSuffix(o.Key, ".keep") {
			continue
		}
		data, found, err := t.store.Get(ctx, o.Key)
		if err != nil {
			return errStatus(err.Error()), nil
		}
		if found {
			files[strings.TrimPrefix(o.Key, bankPrefix(spaceID))] = string(data)
		}
	}
	return ok(map[string]interface{}{"files": files}), nil
}

func (t *BankTool) ConsolidateDefinition() mcp.Tool {
	return mcp.NewTool("bank_consolidate",
		mcp.WithDescription("Trigger a consolidation of a space's live notes into its bank. Non-admin callers may only consolidate their own agent name."),
		mcp.WithString("space_id", mcp.Required(), mcp.Description("Space id")),
		mcp.WithString("agent", mcp.Description("Restrict to one agent's notes; non-admins must pass their own name")),
	)
}

func (t *BankTool) HandleConsolidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, forbid := identity(ctx)
	if forbid != nil {
		return forbid, nil
	}
	spaceID := req.GetString("space_id", "")
	if r := requireAccess(id, spaceID); r != nil {
		return r, nil
	}
	if r := requireWrite(id); r != nil {
		return r, nil
	}

	agent := req.GetString("agent", "")
	if !id.IsAdmin() {
		// Non-admins may only ever consolidate their own notes.
		if agent == "" {
			agent = id.Name
		} else if agent != id.Name {
			return forbidden("non-admin callers may only consolidate their own agent name"), nil
		}
	}

	result, err := t.consolidator.Consolidate(ctx, spaceID, agent)
	if err != nil {
		return errStatus(err.Error()), nil
	}
	return envelope(result.Status, map[string]interface{}{
		"message":              result.Message,
		"notes_processed":      result.NotesProcessed,
		"notes_remaining":      result.NotesRemaining,
		"bank_files_created":   result.BankFilesCreated,
		"bank_files_updated":   result.BankFilesUpdated,
		"bank_files_unchanged": result.BankFilesUnchanged,
		"synthesis_size":       result.SynthesisSize,
		"duration_seconds":     result.DurationSeconds,
	}), nil
}
