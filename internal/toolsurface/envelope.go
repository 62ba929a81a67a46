// Package toolsurface binds every domain operation to a protocol-level
// MCP tool: it resolves identity, applies check_access/check_write/
// check_admin as declared per tool, calls the domain operation, and
// returns the conventional {status, ...} envelope. No domain error is
// ever allowed to escape as a protocol-level error.
package toolsurface

import (
	"context"
	"encoding/json"

	"github.com/livememory/livememory/internal/auth"
	"github.com/mark3labs/mcp-go/mcp"
)

// envelope builds the standard {status, ...} JSON reply.
func envelope(status string, fields map[string]interface{}) *mcp.CallToolResult {
	out := map[string]interface{}{"status": status}
	for k, v := range fields {
		out[k] = v
	}
	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError("failed to encode response: " + err.Error())
	}
	return mcp.NewToolResultText(string(data))
}

func ok(fields map[string]interface{}) *mcp.CallToolResult      { return envelope("ok", fields) }
func created(fields map[string]interface{}) *mcp.CallToolResult { return envelope("created", fields) }
func deleted(fields map[string]interface{}) *mcp.CallToolResult { return envelope("deleted", fields) }
func notFound(msg string) *mcp.CallToolResult                   { return envelope("not_found", map[string]interface{}{"message": msg}) }
func forbidden(msg string) *mcp.CallToolResult                  { return envelope("forbidden", map[string]interface{}{"message": msg}) }
func conflict(msg string) *mcp.CallToolResult                   { return envelope("conflict", map[string]interface{}{"message": msg}) }
func alreadyExists(msg string) *mcp.CallToolResult              { return envelope("already_exists", map[string]interface{}{"message": msg}) }
func errStatus(msg string) *mcp.CallToolResult                  { return envelope("error", map[string]interface{}{"message": msg}) }

// identity pulls the request-scoped Identity out of ctx. Every
// authenticated tool requires one to have been resolved by the server's
// transport-level auth hook before the handler runs.
func identity(ctx context.Context) (*auth.Identity, *mcp.CallToolResult) {
	id, ok := auth.FromContext(ctx)
	if !ok || id == nil {
		return nil, forbidden("no authenticated identity for this request")
	}
	return id, nil
}

// requireAccess checks scope; on failure it returns a ready-made
// forbidden result the caller should return immediately.
func requireAccess(id *auth.Identity, spaceID string) *mcp.CallToolResult {
	if err := auth.CheckAccess(id, spaceID); err != nil {
		return forbidden("identity is not scoped to space " + spaceID)
	}
	return nil
}

func requireWrite(id *auth.Identity) *mcp.CallToolResult {
	if err := auth.CheckWrite(id); err != nil {
		return forbidden("write permission required")
	}
	return nil
}

func requireAdmin(id *auth.Identity) *mcp.CallToolResult {
	if err := auth.CheckAdmin(id); err != nil {
		return forbidden("admin permission required")
	}
	return nil
}

// boolArg reads a boolean argument by hand rather than through a
// generated accessor, since mcp-go's CallToolRequest exposes arguments
// as a plain map[string]interface{}.
func boolArg(req mcp.CallToolRequest, key string, def bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return def
	}
	return v
}
