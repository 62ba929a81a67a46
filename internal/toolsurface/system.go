package toolsurface

import (
	"context"
	"runtime"

	"github.com/livememory/livememory/internal/objectstore"
	"github.com/livememory/livememory/internal/spaces"
	"github.com/mark3labs/mcp-go/mcp"
)

// Pinger is implemented by internal/llm.Client; kept narrow for testing.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SystemTool implements the two anonymous system_* tools.
type SystemTool struct {
	store   objectstore.Store
	spaces  *spaces.Repo
	llm     Pinger
	version string
}

// NewSystemTool builds the system tool group.
func NewSystemTool(store objectstore.Store, spaceRepo *spaces.Repo, llm Pinger, version string) *SystemTool {
	return &SystemTool{store: store, spaces: spaceRepo, llm: llm, version: version}
}

func (t *SystemTool) HealthDefinition() mcp.Tool {
	return mcp.NewTool("system_health", mcp.WithDescription("Check connectivity to the object store and language model; anonymous, no auth required."))
}

func (t *SystemTool) HandleHealth(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fields := map[string]interface{}{}

	storeOK := true
	if _, err := t.store.List(ctx, "_system/"); err != nil {
		storeOK = false
	}
	fields["object_store"] = storeOK

	llmOK := true
	if t.llm != nil {
		if err := t.llm.Ping(ctx); err != nil {
			llmOK = false
		}
	}
	fields["language_model"] = llmOK

	listings, err := t.spaces.List(ctx, nil)
	spaceCount := 0
	if err == nil {
		spaceCount = len(listings)
	}
	fields["space_count"] = spaceCount

	status := "ok"
	if !storeOK || !llmOK {
		status = "degraded"
	}
	return envelope(status, fields), nil
}

func (t *SystemTool) AboutDefinition() mcp.Tool {
	return mcp.NewTool("system_about", mcp.WithDescription("Describe this server: version, tool catalogue and platform; anonymous, no auth required."))
}

func (t *SystemTool) HandleAbout(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return ok(map[string]interface{}{
		"version":    t.version,
		"platform":   runtime.GOOS + "/" + runtime.GOARCH,
		"tool_count": 30,
	}), nil
}
