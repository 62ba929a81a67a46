package toolsurface

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/livememory/livememory/internal/auth"
	"github.com/mark3labs/mcp-go/mcp"
)

// envelopeFields decodes a tool result's JSON body into a generic map,
// the shape every Live Memory tool replies with.
func envelopeFields(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatal("nil or empty tool result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("result content is not text: %#v", result.Content[0])
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(tc.Text), &out); err != nil {
		t.Fatalf("result body is not JSON: %v (%s)", err, tc.Text)
	}
	return out
}

func withArgs(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func ctxFor(id *auth.Identity) context.Context {
	return auth.WithIdentity(context.Background(), id)
}

var adminIdentity = &auth.Identity{Name: "root", Permissions: []string{auth.PermAdmin}}

func scopedAdminIdentity(spaceIDs ...string) *auth.Identity {
	return &auth.Identity{Name: "scoped-admin", Permissions: []string{auth.PermAdmin}, SpaceIDs: spaceIDs}
}

func writerIdentity(spaceIDs ...string) *auth.Identity {
	return &auth.Identity{Name: "writer", Permissions: []string{auth.PermWrite}, SpaceIDs: spaceIDs}
}

func readerIdentity(spaceIDs ...string) *auth.Identity {
	return &auth.Identity{Name: "reader", Permissions: []string{auth.PermRead}, SpaceIDs: spaceIDs}
}
