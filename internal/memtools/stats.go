package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/devmem/internal/memory"
)

// StatsTool handles the mem_stats MCP tool.
type StatsTool struct {
	store *memory.Store
}

// NewStatsTool creates a StatsTool.
func NewStatsTool(store *memory.Store) *StatsTool {
	return &StatsTool{store: store}
}

// Definition returns the MCP tool definition for mem_stats.
func (t *StatsTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_stats",
		mcp.WithDescription("Show counts of stored conversations, messages, decisions, files and patterns."),
	)
}

// Handle processes the mem_stats tool call.
func (t *StatsTool) Handle(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := t.store.GetStatistics(ctx)
	if err != nil {
		return errorResult("get statistics", err), nil
	}
	return mcp.NewToolResultText(FormatStats(stats)), nil
}

// FormatStats renders statistics as a markdown block.
func FormatStats(s *memory.Statistics) string {
	var b strings.Builder
	b.WriteString("## Memory Statistics\n\n")
	fmt.Fprintf(&b, "- **Conversations**: %d\n", s.Conversations)
	fmt.Fprintf(&b, "- **Messages**: %d\n", s.Messages)
	fmt.Fprintf(&b, "- **Decisions**: %d\n", s.Decisions)
	fmt.Fprintf(&b, "- **Files touched**: %d\n", s.FilesTouched)
	fmt.Fprintf(&b, "- **Patterns**: %d\n", s.Patterns)
	if s.LastActivity != nil {
		fmt.Fprintf(&b, "- **Last activity**: %s\n", s.LastActivity.Format("2006-01-02 15:04"))
	} else {
		b.WriteString("- **Last activity**: never\n")
	}
	fmt.Fprintf(&b, "- **Database size**: %.1f KB\n", float64(s.SizeBytes)/1024)
	return b.String()
}

// ─── ClearTool ───────────────────────────────────────────────────────────────

// ClearTool handles the mem_clear MCP tool.
type ClearTool struct {
	store *memory.Store
}

// NewClearTool creates a ClearTool.
func NewClearTool(store *memory.Store) *ClearTool {
	return &ClearTool{store: store}
}

// Definition returns the MCP tool definition for mem_clear.
func (t *ClearTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_clear",
		mcp.WithDescription(
			"Delete ALL memory for this project: conversations, decisions, file changes, patterns and "+
				"project-bound team memories. Irreversible. Requires confirm=true.",
		),
		mcp.WithBoolean("confirm",
			mcp.Required(),
			mcp.Description("Must be true to proceed"),
		),
	)
}

// Handle processes the mem_clear tool call.
func (t *ClearTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !boolArg(req, "confirm", false) {
		return mcp.NewToolResultError("refusing to clear memory without confirm=true"), nil
	}
	if err := t.store.ClearAllMemory(ctx); err != nil {
		return errorResult("clear memory", err), nil
	}
	return mcp.NewToolResultText("Project memory cleared."), nil
}
