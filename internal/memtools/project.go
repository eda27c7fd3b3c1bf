package memtools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/devmem/internal/memory"
)

// ProjectTool handles the mem_project MCP tool.
type ProjectTool struct {
	store *memory.Store
}

// NewProjectTool creates a ProjectTool.
func NewProjectTool(store *memory.Store) *ProjectTool {
	return &ProjectTool{store: store}
}

// Definition returns the MCP tool definition for mem_project.
func (t *ProjectTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_project",
		mcp.WithDescription(
			"Show the project's memory. summary returns a short markdown digest, standard lists every "+
				"decision and pattern, full returns the complete memory as JSON.",
		),
		detailLevelParam(),
	)
}

// Handle processes the mem_project tool call.
func (t *ProjectTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	level := detailArg(req)

	if level == memory.DetailSummary {
		text, err := t.store.FormatContext(ctx)
		if err != nil {
			return errorResult("format project memory", err), nil
		}
		if text == "" {
			return mcp.NewToolResultText("No project memory recorded yet."), nil
		}
		return mcp.NewToolResultText(text + memory.TokenFooter(memory.EstimateTokens(text))), nil
	}

	pm, err := t.store.GetProjectMemory(ctx)
	if err != nil {
		return errorResult("get project memory", err), nil
	}

	if level == memory.DetailFull {
		b, err := json.MarshalIndent(pm, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to encode project memory: %v", err)), nil
		}
		return mcp.NewToolResultText(string(b)), nil
	}

	text := renderProject(pm, level)
	return mcp.NewToolResultText(text + memory.TokenFooter(memory.EstimateTokens(text))), nil
}

func renderProject(pm *memory.ProjectMemory, level memory.DetailLevel) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Project Memory: %s\n", pm.Project.Name)
	fmt.Fprintf(&b, "Root: %s\n", pm.Project.RootPath)
	fmt.Fprintf(&b, "Last active: %s\n\n", pm.Project.LastActiveAt.Format("2006-01-02 15:04"))

	fmt.Fprintf(&b, "### Conversations (%d)\n", len(pm.Conversations))
	for _, c := range pm.Conversations {
		line := c.Summary
		if line == "" && len(c.Messages) > 0 {
			line = c.Messages[0].Content
		}
		fmt.Fprintf(&b, "- [%s] %s (%d messages): %s\n",
			c.ID, c.Timestamp.Format("2006-01-02 15:04"), len(c.Messages), level.Clip(line))
	}

	fmt.Fprintf(&b, "\n### Architectural Decisions (%d)\n", len(pm.Decisions))
	for _, d := range pm.Decisions {
		fmt.Fprintf(&b, "- **%s**: %s\n", d.Decision, level.Clip(d.Rationale))
		if len(d.Alternatives) > 0 {
			fmt.Fprintf(&b, "  Alternatives: %s\n", strings.Join(d.Alternatives, ", "))
		}
		if len(d.AffectedFiles) > 0 {
			fmt.Fprintf(&b, "  Files: %s\n", strings.Join(d.AffectedFiles, ", "))
		}
	}

	fmt.Fprintf(&b, "\n### Recent File Changes (%d)\n", len(pm.FileChanges))
	for _, fc := range pm.FileChanges {
		fmt.Fprintf(&b, "- %s %s (%s)\n", fc.ChangeKind, fc.FilePath, fc.Timestamp.Format("2006-01-02 15:04"))
	}

	fmt.Fprintf(&b, "\n### Code Patterns (%d)\n", len(pm.Patterns))
	for _, p := range pm.Patterns {
		d := p.Details()
		fmt.Fprintf(&b, "- [%s] %s\n", d.Language, level.Clip(p.Pattern))
	}
	return b.String()
}

// ─── SearchConversationsTool ─────────────────────────────────────────────────

// SearchConversationsTool handles the mem_search_conversations MCP tool.
type SearchConversationsTool struct {
	store *memory.Store
}

// NewSearchConversationsTool creates a SearchConversationsTool.
func NewSearchConversationsTool(store *memory.Store) *SearchConversationsTool {
	return &SearchConversationsTool{store: store}
}

// Definition returns the MCP tool definition for mem_search_conversations.
func (t *SearchConversationsTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_search_conversations",
		mcp.WithDescription(
			"Search past conversations for a phrase, ignoring case. Matches message content and summaries.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Text to look for"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum conversations to return (default: 10)"),
		),
		detailLevelParam(),
	)
}

// Handle processes the mem_search_conversations tool call.
func (t *SearchConversationsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := strings.TrimSpace(req.GetString("query", ""))
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	limit := intArg(req, "limit", 10)
	if limit <= 0 {
		limit = 10
	}
	level := detailArg(req)

	convs, err := t.store.SearchConversations(ctx, query)
	if err != nil {
		return errorResult("search conversations", err), nil
	}
	if len(convs) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No conversations match %q.", query)), nil
	}

	total := len(convs)
	// Newest first.
	shown := make([]memory.Conversation, 0, min(limit, total))
	for i := total - 1; i >= 0 && len(shown) < limit; i-- {
		shown = append(shown, convs[i])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d conversations matching %q:\n\n", total, query)
	for _, c := range shown {
		fmt.Fprintf(&b, "### %s (%s, %s)\n", c.ID, c.Assistant, c.Timestamp.Format("2006-01-02 15:04"))
		if c.Summary != "" {
			fmt.Fprintf(&b, "Summary: %s\n", c.Summary)
		}
		for _, m := range c.Messages {
			if level == memory.DetailSummary && !memory.ContainsFold(m.Content, query) {
				continue
			}
			fmt.Fprintf(&b, "- %s: %s\n", m.Role, level.Clip(m.Content))
		}
		b.WriteString("\n")
	}
	b.WriteString(memory.NavigationHint(len(shown), total, "Raise 'limit' to see more."))

	text := b.String()
	return mcp.NewToolResultText(text + memory.TokenFooter(memory.EstimateTokens(text))), nil
}

// ─── DecisionsTool ───────────────────────────────────────────────────────────

// DecisionsTool handles the mem_decisions MCP tool.
type DecisionsTool struct {
	store *memory.Store
}

// NewDecisionsTool creates a DecisionsTool.
func NewDecisionsTool(store *memory.Store) *DecisionsTool {
	return &DecisionsTool{store: store}
}

// Definition returns the MCP tool definition for mem_decisions.
func (t *DecisionsTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_decisions",
		mcp.WithDescription("List architectural decisions, newest first. Optionally filter to a file path."),
		mcp.WithString("file",
			mcp.Description("Only show decisions whose affected files include this path"),
		),
		detailLevelParam(),
	)
}

// Handle processes the mem_decisions tool call.
func (t *DecisionsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file := req.GetString("file", "")
	level := detailArg(req)

	decisions, err := t.store.ListDecisions(ctx)
	if err != nil {
		return errorResult("list decisions", err), nil
	}

	var b strings.Builder
	n := 0
	for _, d := range decisions {
		if file != "" && !affects(d, file) {
			continue
		}
		n++
		fmt.Fprintf(&b, "- [%s] **%s** (%s)\n", d.ID, d.Decision, d.Timestamp.Format("2006-01-02"))
		if level == memory.DetailSummary {
			continue
		}
		fmt.Fprintf(&b, "  Rationale: %s\n", level.Clip(d.Rationale))
		if len(d.Alternatives) > 0 {
			fmt.Fprintf(&b, "  Alternatives: %s\n", strings.Join(d.Alternatives, ", "))
		}
		if len(d.Impact) > 0 {
			fmt.Fprintf(&b, "  Impact: %s\n", strings.Join(d.Impact, ", "))
		}
		if len(d.AffectedFiles) > 0 {
			fmt.Fprintf(&b, "  Files: %s\n", strings.Join(d.AffectedFiles, ", "))
		}
	}
	if n == 0 {
		return mcp.NewToolResultText("No architectural decisions recorded."), nil
	}

	text := fmt.Sprintf("## Architectural Decisions (%d)\n\n", n) + b.String()
	return mcp.NewToolResultText(text), nil
}

func affects(d memory.ArchitecturalDecision, file string) bool {
	for _, f := range d.AffectedFiles {
		if f == file {
			return true
		}
	}
	return false
}
