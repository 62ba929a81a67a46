// Package server wires all MCP components and creates the server instance.
//
// This is the composition root (DIP): it creates concrete implementations
// and injects them into the tool-surface structs that depend on
// abstractions. No domain logic lives here — only wiring.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/livememory/livememory/internal/auth"
	"github.com/livememory/livememory/internal/backup"
	"github.com/livememory/livememory/internal/config"
	"github.com/livememory/livememory/internal/consolidate"
	"github.com/livememory/livememory/internal/gc"
	"github.com/livememory/livememory/internal/graph"
	"github.com/livememory/livememory/internal/llm"
	"github.com/livememory/livememory/internal/locks"
	"github.com/livememory/livememory/internal/notes"
	"github.com/livememory/livememory/internal/objectstore"
	"github.com/livememory/livememory/internal/spaces"
	"github.com/livememory/livememory/internal/toolsurface"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/tidwall/pretty"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Deps holds every concrete component the composition root wires
// together, exposed so cmd/livememory can log startup details and run
// the health/auth HTTP plumbing around the MCP transport.
type Deps struct {
	Config *config.Config
	Store  objectstore.Store
	Gate   *auth.Gate
	Tokens *auth.TokenRegistry
	Spaces *spaces.Repo
	Notes  *notes.Store
	LLM    *llm.Client
	Graph  *graph.Bridge
	Backup *backup.Service
	GC     *gc.Collector
	MCP    *server.MCPServer
}

// New resolves every dependency from cfg and registers all 30 tools with
// a fresh MCP server. This is the single place where wiring happens.
func New(cfg *config.Config, logger zerolog.Logger) (*Deps, error) {
	store := objectstore.NewS3Client(cfg.StoreEndpoint, cfg.StoreBucket, cfg.StoreAccessKey, cfg.StoreSecretKey, cfg.StoreRegion)
	lockRegistry := locks.NewRegistry()

	tokens := auth.NewTokenRegistry(store, lockRegistry)
	gate := auth.NewGate(tokens, cfg.BootstrapToken)

	spaceRepo := spaces.NewRepo(store)
	noteStore := notes.NewStore(store)
	llmClient := llm.NewClient(cfg.LLMEndpoint, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMMaxTokens, cfg.LLMTemperature)
	consolidator := consolidate.New(store, lockRegistry, noteStore, llmClient, cfg.MaxNotesPerRun, cfg.ConsolidationTimeout, cfg.LLMPromptBudget)
	collector := gc.New(store, spaceRepo, noteStore, consolidator, cfg.GCMaxAgeDays)
	backupSvc := backup.New(store, cfg.BackupRetentionCount)
	graphBridge := graph.New(store, spaceRepo)

	s := server.NewMCPServer(
		"livememory",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	registerTools(s, store, spaceRepo, noteStore, llmClient, consolidator, graphBridge, backupSvc, tokens, collector, logger)

	return &Deps{
		Config: cfg,
		Store:  store,
		Gate:   gate,
		Tokens: tokens,
		Spaces: spaceRepo,
		Notes:  noteStore,
		LLM:    llmClient,
		Graph:  graphBridge,
		Backup: backupSvc,
		GC:     collector,
		MCP:    s,
	}, nil
}

// registerTools binds every domain component to its tool-surface wrapper
// and adds all 30 tools to s. system_health/system_about are anonymous;
// every other tool relies on the request-scoped identity the HTTP layer
// attaches to ctx before the MCP server dispatches the call.
func registerTools(
	s *server.MCPServer,
	store objectstore.Store,
	spaceRepo *spaces.Repo,
	noteStore *notes.Store,
	llmClient *llm.Client,
	consolidator *consolidate.Consolidator,
	graphBridge *graph.Bridge,
	backupSvc *backup.Service,
	tokens *auth.TokenRegistry,
	collector *gc.Collector,
	logger zerolog.Logger,
) {
	audit := func(tool string, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return auditWrap(logger, tool, handler)
	}

	// --- System tools (anonymous) ---

	systemTool := toolsurface.NewSystemTool(store, spaceRepo, llmClient, Version)
	s.AddTool(systemTool.HealthDefinition(), audit("system_health", systemTool.HandleHealth))
	s.AddTool(systemTool.AboutDefinition(), audit("system_about", systemTool.HandleAbout))

	// --- Space tools ---

	spaceTool := toolsurface.NewSpaceTool(spaceRepo)
	s.AddTool(spaceTool.CreateDefinition(), audit("space_create", spaceTool.HandleCreate))
	s.AddTool(spaceTool.ListDefinition(), audit("space_list", spaceTool.HandleList))
	s.AddTool(spaceTool.InfoDefinition(), audit("space_info", spaceTool.HandleInfo))
	s.AddTool(spaceTool.RulesDefinition(), audit("space_rules", spaceTool.HandleRules))
	s.AddTool(spaceTool.SummaryDefinition(), audit("space_summary", spaceTool.HandleSummary))
	s.AddTool(spaceTool.ExportDefinition(), audit("space_export", spaceTool.HandleExport))
	s.AddTool(spaceTool.DeleteDefinition(), audit("space_delete", spaceTool.HandleDelete))

	// --- Live note tools ---

	liveTool := toolsurface.NewLiveTool(noteStore)
	s.AddTool(liveTool.NoteDefinition(), audit("live_note", liveTool.HandleNote))
	s.AddTool(liveTool.ReadDefinition(), audit("live_read", liveTool.HandleRead))
	s.AddTool(liveTool.SearchDefinition(), audit("live_search", liveTool.HandleSearch))

	// --- Bank tools ---

	bankTool := toolsurface.NewBankTool(store, consolidator)
	s.AddTool(bankTool.ListDefinition(), audit("bank_list", bankTool.HandleList))
	s.AddTool(bankTool.ReadDefinition(), audit("bank_read", bankTool.HandleRead))
	s.AddTool(bankTool.ReadAllDefinition(), audit("bank_read_all", bankTool.HandleReadAll))
	s.AddTool(bankTool.ConsolidateDefinition(), audit("bank_consolidate", bankTool.HandleConsolidate))

	// --- Graph bridge tools ---

	graphTool := toolsurface.NewGraphTool(graphBridge)
	s.AddTool(graphTool.ConnectDefinition(), audit("graph_connect", graphTool.HandleConnect))
	s.AddTool(graphTool.PushDefinition(), audit("graph_push", graphTool.HandlePush))
	s.AddTool(graphTool.StatusDefinition(), audit("graph_status", graphTool.HandleStatus))
	s.AddTool(graphTool.DisconnectDefinition(), audit("graph_disconnect", graphTool.HandleDisconnect))

	// --- Backup tools ---

	backupTool := toolsurface.NewBackupTool(backupSvc, spaceRepo)
	s.AddTool(backupTool.CreateDefinition(), audit("backup_create", backupTool.HandleCreate))
	s.AddTool(backupTool.ListDefinition(), audit("backup_list", backupTool.HandleList))
	s.AddTool(backupTool.DownloadDefinition(), audit("backup_download", backupTool.HandleDownload))
	s.AddTool(backupTool.RestoreDefinition(), audit("backup_restore", backupTool.HandleRestore))
	s.AddTool(backupTool.DeleteDefinition(), audit("backup_delete", backupTool.HandleDelete))

	// --- Admin tools ---

	adminTool := toolsurface.NewAdminTool(tokens, collector)
	s.AddTool(adminTool.CreateTokenDefinition(), audit("admin_create_token", adminTool.HandleCreateToken))
	s.AddTool(adminTool.ListTokensDefinition(), audit("admin_list_tokens", adminTool.HandleListTokens))
	s.AddTool(adminTool.RevokeTokenDefinition(), audit("admin_revoke_token", adminTool.HandleRevokeToken))
	s.AddTool(adminTool.UpdateTokenDefinition(), audit("admin_update_token", adminTool.HandleUpdateToken))
	s.AddTool(adminTool.GCNotesDefinition(), audit("admin_gc_notes", adminTool.HandleGCNotes))
}

// auditWrap logs one structured line per authenticated call: identity
// name, the leading bytes of its credential hash, the tool invoked, and
// the target space if the call carries a space_id argument. Anonymous
// calls (system_health, system_about) still log with an empty identity.
func auditWrap(logger zerolog.Logger, tool string, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := handler(ctx, req)

		name, hashPrefix := "anonymous", ""
		if id, ok := auth.FromContext(ctx); ok && id != nil {
			name, hashPrefix = id.Name, id.HashPrefix
		}
		space, _ := req.GetArguments()["space_id"].(string)

		event := logger.Info()
		if err != nil {
			event = logger.Error().Err(err)
			if argsJSON, marshalErr := json.Marshal(req.GetArguments()); marshalErr == nil {
				event = event.Str("args", string(pretty.Pretty(argsJSON)))
			}
		}
		event.
			Str("identity", name).
			Str("hash_prefix", hashPrefix).
			Str("tool", tool).
			Str("space", space).
			Msg("tool call")

		return result, err
	}
}

// SSEContextFunc resolves the caller's bearer credential (Authorization
// header, falling back to a "?token=" query parameter) into a
// request-scoped *auth.Identity and attaches it to ctx. Passed to
// server.WithSSEContextFunc when constructing the SSE transport. A
// failed or absent credential simply leaves no identity on ctx — every
// tool handler except the two anonymous system_* tools then rejects the
// call via the identity() helper, so auth failures surface as a normal
// {status:"forbidden"} tool result rather than a transport error.
func SSEContextFunc(gate *auth.Gate) func(ctx context.Context, r *http.Request) context.Context {
	return func(ctx context.Context, r *http.Request) context.Context {
		headerValue, queryValue := auth.BearerFromRequest(r)
		identity, err := gate.Authenticate(ctx, headerValue, queryValue)
		if err != nil {
			return ctx
		}
		return auth.WithIdentity(ctx, identity)
	}
}

// serverInstructions returns the system instructions handed to the
// calling model describing how to use Live Memory effectively.
func serverInstructions() string {
	return fmt.Sprintf(`You have access to Live Memory, a shared working-memory server for
collaborative AI agents. Every agent working in the same space sees the
same live notes, the same consolidated bank, and the same rules.

## Core loop

1. Call space_rules once per session to learn the space's constraints.
2. As you work, call live_note to record observations, decisions, todos,
   insights, questions, progress and issues — these are visible to every
   other agent in the space immediately.
3. Call live_read or live_search to see what collaborators have logged.
4. Periodically call bank_consolidate to fold accumulated live notes into
   the durable knowledge bank; this is destructive to the live notes it
   consumes, so only call it when you intend to compact history.
5. Use space_summary for a one-shot view of rules, bank contents and
   space metadata before starting a task.

## Categories

observation, decision, todo, insight, question, progress, issue — pick
the one that best matches what you are recording; category is used to
filter live_read and to group bank consolidation.

## Scope

Every tool call is scoped to the identity's space_ids (empty means every
space). Calls outside that scope return {status: "forbidden"}.

Server version: %s.`, Version)
}
