package toolsurface

import (
	"context"

	"github.com/livememory/livememory/internal/graph"
	"github.com/mark3labs/mcp-go/mcp"
)

// GraphTool implements the graph_* tool group, bridging a space's bank
// to an external knowledge-graph service.
type GraphTool struct {
	bridge *graph.Bridge
}

// NewGraphTool builds the graph tool group.
func NewGraphTool(bridge *graph.Bridge) *GraphTool {
	return &GraphTool{bridge: bridge}
}

func (t *GraphTool) ConnectDefinition() mcp.Tool {
	return mcp.NewTool("graph_connect",
		mcp.WithDescription("Connect a space to an external graph-memory service, creating the remote memory if absent."),
		mcp.WithString("space_id", mcp.Required(), mcp.Description("Space id")),
		mcp.WithString("url", mcp.Required(), mcp.Description("Base URL of the remote graph-memory service")),
		mcp.WithString("token", mcp.Required(), mcp.Description("Bearer credential for the remote service")),
		mcp.WithString("memory_id", mcp.Required(), mcp.Description("Name of the remote memory to bind to")),
		mcp.WithString("ontology", mcp.Description("One of: general, legal, cloud, managed-services, presales; default general")),
	)
}

func (t *GraphTool) HandleConnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
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

	url := req.GetString("url", "")
	token := req.GetString("token", "")
	memoryID := req.GetString("memory_id", "")
	ontology := req.GetString("ontology", "")

	if err := t.bridge.Connect(ctx, spaceID, url, token, memoryID, ontology); err != nil {
		return errStatus(err.Error()), nil
	}
	return ok(map[string]interface{}{"space_id": spaceID, "memory_id": memoryID}), nil
}

func (t *GraphTool) PushDefinition() mcp.Tool {
	return mcp.NewTool("graph_push",
		mcp.WithDescription("Push current bank files to the connected graph-memory service, deleting stale remote documents no longer in the bank."),
		mcp.WithString("space_id", mcp.Required(), mcp.Description("Space id")),
	)
}

func (t *GraphTool) HandlePush(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
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

	stats, err := t.bridge.Push(ctx, spaceID)
	if err != nil {
		return errStatus(err.Error()), nil
	}
	return ok(stats), nil
}

func (t *GraphTool) StatusDefinition() mcp.Tool {
	return mcp.NewTool("graph_status",
		mcp.WithDescription("Report a space's graph-memory connection state, degrading gracefully if the remote is unreachable."),
		mcp.WithString("space_id", mcp.Required(), mcp.Description("Space id")),
	)
}

func (t *GraphTool) HandleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, forbid := identity(ctx)
	if forbid != nil {
		return forbid, nil
	}
	spaceID := req.GetString("space_id", "")
	if r := requireAccess(id, spaceID); r != nil {
		return r, nil
	}

	status, err := t.bridge.Status(ctx, spaceID)
	if err != nil {
		return errStatus(err.Error()), nil
	}
	return ok(status), nil
}

func (t *GraphTool) DisconnectDefinition() mcp.Tool {
	return mcp.NewTool("graph_disconnect",
		mcp.WithDescription("Clear a space's graph-memory configuration, leaving remote data intact."),
		mcp.WithString("space_id", mcp.Required(), mcp.Description("Space id")),
	)
}

func (t *GraphTool) HandleDisconnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
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

	if err := t.bridge.Disconnect(ctx, spaceID); err != nil {
		return errStatus(err.Error()), nil
	}
	return ok(map[string]interface{}{"space_id": spaceID}), nil
}
