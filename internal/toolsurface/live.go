package toolsurface

import (
	"context"

	"github.com/livememory/livememory/internal/notes"
	"github.com/mark3labs/mcp-go/mcp"
)

// LiveTool implements the live_* tool group.
type LiveTool struct {
	notes *notes.Store
}

// NewLiveTool builds the live tool group.
func NewLiveTool(noteStore *notes.Store) *LiveTool {
	return &LiveTool{notes: noteStore}
}

func (t *LiveTool) NoteDefinition() mcp.Tool {
	return mcp.NewTool("live_note",
		mcp.WithDescription("Append a timestamped note to a space's live stream."),
		mcp.WithString("space_id", mcp.Required(), mcp.Description("Space id")),
		mcp.WithString("agent", mcp.Required(), mcp.Description("Agent name writing this note")),
		mcp.WithString("category", mcp.Required(), mcp.Description("One of: observation, decision, todo, insight, question, progress, issue")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Note body, <=100000 characters")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags")),
	)
}

func (t *LiveTool) HandleNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
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
	category := req.GetString("category", "")
	content := req.GetString("content", "")
	tags := req.GetString("tags", "")

	note, err := t.notes.Note(ctx, spaceID, category, content, agent, tags)
	if err != nil {
		return errStatus(err.Error()), nil
	}
	return created(map[string]interface{}{"key": note.Key, "size": note.Size, "timestamp": note.Meta.Timestamp}), nil
}

func (t *LiveTool) ReadDefinition() mcp.Tool {
	return mcp.NewTool("live_read",
		mcp.WithDescription("Read live notes filtered by category/agent/since, newest first."),
		mcp.WithString("space_id", mcp.Required(), mcp.Description("Space id")),
		mcp.WithString("category", mcp.Description("Restrict to one category")),
		mcp.WithString("agent", mcp.Description("Restrict to one agent")),
		mcp.WithString("since", mcp.Description("RFC3339 timestamp lower bound")),
		mcp.WithNumber("limit", mcp.Description("Maximum notes to return, 0 means unlimited")),
	)
}

func (t *LiveTool) HandleRead(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, forbid := identity(ctx)
	if forbid != nil {
		return forbid, nil
	}
	spaceID := req.GetString("space_id", "")
	if r := requireAccess(id, spaceID); r != nil {
		return r, nil
	}

	category := req.GetString("category", "")
	agent := req.GetString("agent", "")
	since := req.GetString("since", "")
	limit := int(req.GetFloat("limit", 0))

	list, err := t.notes.Read(ctx, spaceID, limit, category, agent, since)
	if err != nil {
		return errStatus(err.Error()), nil
	}
	out := make([]map[string]interface{}, len(list))
	for i, n := range list {
		out[i] = map[string]interface{}{
			"key":       n.Key,
			"timestamp": n.Meta.Timestamp,
			"agent":     n.Meta.Agent,
			"category":  n.Meta.Category,
			"tags":      n.Meta.Tags,
			"content":   n.Content,
		}
	}
	return ok(map[string]interface{}{"notes": out}), nil
}

func (t *LiveTool) SearchDefinition() mcp.Tool {
	return mcp.NewTool("live_search",
		mcp.WithDescription("Case-insensitive substring search across a space's live notes."),
		mcp.WithString("space_id", mcp.Required(), mcp.Description("Space id")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Substring to search for")),
		mcp.WithNumber("limit", mcp.Description("Maximum notes to return, 0 means unlimited")),
	)
}

func (t *LiveTool) HandleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, forbid := identity(ctx)
	if forbid != nil {
		return forbid, nil
	}
	spaceID := req.GetString("space_id", "")
	if r := requireAccess(id, spaceID); r != nil {
		return r, nil
	}

	query := req.GetString("query", "")
	limit := int(req.GetFloat("limit", 0))

	list, err := t.notes.Search(ctx, spaceID, query, limit)
	if err != nil {
		return errStatus(err.Error()), nil
	}
	out := make([]map[string]interface{}, len(list))
	for i, n := range list {
		out[i] = map[string]interface{}{
			"key":       n.Key,
			"timestamp": n.Meta.Timestamp,
			"agent":     n.Meta.Agent,
			"category":  n.Meta.Category,
			"content":   n.Content,
		}
	}
	return ok(map[string]interface{}{"notes": out}), nil
}
