// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it takes an opened engine and injects it
// into the tools, prompts and resources that depend on it. No business
// logic lives here, only wiring.
package server

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/metric"

	"github.com/HendryAvila/devmem/internal/engine"
	"github.com/HendryAvila/devmem/internal/memtools"
	"github.com/HendryAvila/devmem/internal/prompts"
	"github.com/HendryAvila/devmem/internal/resources"
	"github.com/HendryAvila/devmem/internal/teamtools"
	"github.com/HendryAvila/devmem/internal/telemetry"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Tool is the shape every tool handler in memtools and teamtools shares.
type Tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// New creates the MCP server with all tools, prompts and resources
// registered against e. The caller owns e and closes it on shutdown.
func New(e *engine.Engine) *server.MCPServer {
	s := server.NewMCPServer(
		"devmem",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register tools ---

	for _, t := range Tools(e) {
		def := t.Definition()
		s.AddTool(def, instrument(e, def.Name, t.Handle))
	}

	// --- Register prompts ---

	recallPrompt := prompts.NewRecallPrompt(e)
	s.AddPrompt(recallPrompt.Definition(), recallPrompt.Handle)

	wrapUpPrompt := prompts.NewWrapUpPrompt()
	s.AddPrompt(wrapUpPrompt.Definition(), wrapUpPrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(e)
	s.AddResource(resourceHandler.StatsResource(), resourceHandler.HandleStats)
	s.AddResource(resourceHandler.AnalyticsResource(), resourceHandler.HandleAnalytics)

	return s
}

// Tools returns every tool handler bound to e, memory tools first.
func Tools(e *engine.Engine) []Tool {
	return []Tool{
		// Project memory.
		memtools.NewRecallTool(e.Recall),
		memtools.NewRecordConversationTool(e.Memory),
		memtools.NewRecordDecisionTool(e.Memory),
		memtools.NewTrackFileTool(e.Memory),
		memtools.NewStorePatternTool(e.Memory),
		memtools.NewProjectTool(e.Memory),
		memtools.NewSearchConversationsTool(e.Memory),
		memtools.NewDecisionsTool(e.Memory),
		memtools.NewStatsTool(e.Memory),
		memtools.NewClearTool(e.Memory),

		// Team knowledge.
		teamtools.NewAddMemberTool(e),
		teamtools.NewMembersTool(e),
		teamtools.NewCreateMemoryTool(e),
		teamtools.NewGetMemoryTool(e),
		teamtools.NewListMemoriesTool(e),
		teamtools.NewSearchTool(e),
		teamtools.NewUpdateMemoryTool(e),
		teamtools.NewDeleteMemoryTool(e),
		teamtools.NewVoteTool(e),
		teamtools.NewCommentTool(e),
		teamtools.NewCommentsTool(e),
		teamtools.NewTrackUsageTool(e),

		// Sharing, access and audit.
		teamtools.NewShareTool(e),
		teamtools.NewRevokeTool(e),
		teamtools.NewCheckPermissionTool(e),
		teamtools.NewRequestAccessTool(e),
		teamtools.NewApproveAccessTool(e),
		teamtools.NewDenyAccessTool(e),
		teamtools.NewAccessRequestsTool(e),
		teamtools.NewRuleTool(e),
		teamtools.NewDeactivateRuleTool(e),
		teamtools.NewAuditTool(e),
		teamtools.NewAnalyticsTool(e),
	}
}

// instrument counts calls and error results per tool and logs each call
// at debug level.
func instrument(e *engine.Engine, name string, h server.ToolHandlerFunc) server.ToolHandlerFunc {
	attrs := metric.WithAttributes(telemetry.AttrTool.String(name))
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		res, err := h(ctx, req)

		m := e.Metrics()
		m.ToolCalls.Add(ctx, 1, attrs)
		failed := err != nil || (res != nil && res.IsError)
		if failed {
			m.ToolErrors.Add(ctx, 1, attrs)
		}
		e.Logger().Debug("tool call",
			"tool", name,
			"failed", failed,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return res, err
	}
}

// serverInstructions returns the system instructions that tell the AI
// how to use devmem effectively.
func serverInstructions() string {
	return `You have access to devmem, a persistent project memory and team knowledge server.

## Project memory

devmem remembers this project across sessions: conversations, architectural
decisions, file changes and code patterns, all stored locally in
.devmem/memory.db at the project root.

### Before answering
Call mem_recall with the user's request BEFORE answering questions about the
project's history, conventions or earlier decisions. It always returns the
most recent conversation turns, plus decisions and patterns whose text
matches words in the request. Matching is by substring, not meaning: if a
recall misses, retry with the concrete nouns the project would use.

### While working
- mem_record_decision: every design decision, with rationale and the
  alternatives you rejected. Decisions are immutable; record a new one to
  supersede an old one.
- mem_track_file: every file you create, modify or delete.
- mem_store_pattern: reusable snippets, with success=false when applying
  one failed.

### At the end of a session
Call mem_record_conversation with the key exchanges and a summary. The
devmem-wrap-up prompt walks through all of this.

### Other tools
- mem_project: the whole memory at summary, standard or full detail
- mem_search_conversations: find past exchanges by phrase
- mem_decisions: decisions, optionally for one file
- mem_stats: counts and database size
- mem_clear: deletes everything for the project. Only with explicit user consent.

## Team knowledge

team_* tools share knowledge across a team. Every call acts as a member
(member_id argument or the member configured in devmem.yaml) and is
permission-checked:
- admin: everything
- developer: read, write, share, vote, comment
- observer: read, vote, comment
Private memories are visible only to their creator unless shared.

Prefer team_search before team_create_memory to avoid duplicates. After a
team memory helps, call team_track_usage and team_vote: usage and votes
drive search ranking and the team_analytics scores.

When a member lacks a permission, team_request_access files a request that
an admin (or anyone who can share the resource) approves with
team_approve_access. Admins can read the audit trail with team_audit.`
}
