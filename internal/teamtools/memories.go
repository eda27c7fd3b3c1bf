package teamtools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/devmem/internal/engine"
	"github.com/HendryAvila/devmem/internal/team"
)

func visibilityEnum() mcp.PropertyOption {
	return mcp.Enum(string(team.VisibilityPrivate), string(team.VisibilityTeamOnly), string(team.VisibilityPublic))
}

// CreateMemoryTool handles the team_create_memory MCP tool.
type CreateMemoryTool struct {
	engine *engine.Engine
}

// NewCreateMemoryTool creates a CreateMemoryTool.
func NewCreateMemoryTool(e *engine.Engine) *CreateMemoryTool {
	return &CreateMemoryTool{engine: e}
}

// Definition returns the MCP tool definition for team_create_memory.
func (t *CreateMemoryTool) Definition() mcp.Tool {
	return mcp.NewTool("team_create_memory",
		mcp.WithDescription(
			"Share a piece of knowledge with the team: a decision, pattern, best practice or lesson. "+
				"Requires write permission.",
		),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Memory type: decision, pattern, conversation, best_practice, lesson, or any custom type"),
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Short, searchable title"),
		),
		mcp.WithString("content",
			mcp.Description("The knowledge itself"),
		),
		mcp.WithString("context",
			mcp.Description("When or where it applies"),
		),
		mcp.WithString("tags",
			mcp.Description("Comma-separated tags"),
		),
		mcp.WithString("visibility",
			mcp.Description("Who can see it (default: team_only)"),
			visibilityEnum(),
		),
		mcp.WithBoolean("project_scoped",
			mcp.Description("Bind the memory to this project so clearing project memory removes it"),
		),
		memberParam(),
	)
}

// Handle processes the team_create_memory tool call.
func (t *CreateMemoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actorID, errRes := actor(t.engine, req)
	if errRes != nil {
		return errRes, nil
	}
	title, errRes := requireString(req, "title")
	if errRes != nil {
		return errRes, nil
	}

	in := team.NewMemory{
		Type:       req.GetString("type", ""),
		Title:      title,
		Content:    req.GetString("content", ""),
		Context:    req.GetString("context", ""),
		Tags:       listArg(req, "tags"),
		Visibility: team.Visibility(req.GetString("visibility", "")),
	}
	if boolArg(req, "project_scoped", false) {
		pid, err := t.engine.Memory.ProjectID()
		if err != nil {
			return errorResult("resolve project", err), nil
		}
		in.ProjectID = pid
	}

	m, err := t.engine.CreateMemory(ctx, actorID, in)
	if err != nil {
		return errorResult("create team memory", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Team memory created: %q (%s, %s)\nID: %s", m.Title, m.Type, m.Visibility, m.ID)), nil
}

// ─── GetMemoryTool ───────────────────────────────────────────────────────────

// GetMemoryTool handles the team_get_memory MCP tool.
type GetMemoryTool struct {
	engine *engine.Engine
}

// NewGetMemoryTool creates a GetMemoryTool.
func NewGetMemoryTool(e *engine.Engine) *GetMemoryTool {
	return &GetMemoryTool{engine: e}
}

// Definition returns the MCP tool definition for team_get_memory.
func (t *GetMemoryTool) Definition() mcp.Tool {
	return mcp.NewTool("team_get_memory",
		mcp.WithDescription("Get one team memory with its votes and comments as JSON. Requires read permission."),
		mcp.WithString("memory_id",
			mcp.Required(),
			mcp.Description("Team memory ID"),
		),
		memberParam(),
	)
}

// Handle processes the team_get_memory tool call.
func (t *GetMemoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actorID, errRes := actor(t.engine, req)
	if errRes != nil {
		return errRes, nil
	}
	id, errRes := requireString(req, "memory_id")
	if errRes != nil {
		return errRes, nil
	}
	m, err := t.engine.GetMemory(ctx, actorID, id)
	if err != nil {
		return errorResult("get team memory", err), nil
	}
	return jsonResult(m), nil
}

// ─── ListMemoriesTool ────────────────────────────────────────────────────────

// ListMemoriesTool handles the team_memories MCP tool.
type ListMemoriesTool struct {
	engine *engine.Engine
}

// NewListMemoriesTool creates a ListMemoriesTool.
func NewListMemoriesTool(e *engine.Engine) *ListMemoriesTool {
	return &ListMemoriesTool{engine: e}
}

// Definition returns the MCP tool definition for team_memories.
func (t *ListMemoriesTool) Definition() mcp.Tool {
	return mcp.NewTool("team_memories",
		mcp.WithDescription("List team memories visible to the acting member, newest first."),
		mcp.WithString("type",
			mcp.Description("Only this memory type"),
		),
		mcp.WithString("created_by",
			mcp.Description("Only memories created by this member ID"),
		),
		mcp.WithString("visibility",
			mcp.Description("Only this visibility"),
			visibilityEnum(),
		),
		mcp.WithBoolean("include_content",
			mcp.Description("Include memory content (default: false)"),
		),
		memberParam(),
	)
}

// Handle processes the team_memories tool call.
func (t *ListMemoriesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actorID, errRes := actor(t.engine, req)
	if errRes != nil {
		return errRes, nil
	}
	mems, err := t.engine.ListMemories(ctx, actorID, team.Filter{
		Type:       req.GetString("type", ""),
		CreatedBy:  req.GetString("created_by", ""),
		Visibility: team.Visibility(req.GetString("visibility", "")),
	})
	if err != nil {
		return errorResult("list team memories", err), nil
	}
	if len(mems) == 0 {
		return mcp.NewToolResultText("No team memories found."), nil
	}

	full := boolArg(req, "include_content", false)
	var b strings.Builder
	fmt.Fprintf(&b, "## Team Memories (%d)\n\n", len(mems))
	for _, m := range mems {
		writeMemory(&b, m, full)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ─── SearchTool ──────────────────────────────────────────────────────────────

// SearchTool handles the team_search MCP tool.
type SearchTool struct {
	engine *engine.Engine
}

// NewSearchTool creates a SearchTool.
func NewSearchTool(e *engine.Engine) *SearchTool {
	return &SearchTool{engine: e}
}

// Definition returns the MCP tool definition for team_search.
func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("team_search",
		mcp.WithDescription(
			"Search team memories by title, content, context and tags. Results are ranked by usage, "+
				"then success score, then recency.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search words"),
		),
		memberParam(),
	)
}

// Handle processes the team_search tool call.
func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actorID, errRes := actor(t.engine, req)
	if errRes != nil {
		return errRes, nil
	}
	query, errRes := requireString(req, "query")
	if errRes != nil {
		return errRes, nil
	}

	mems, err := t.engine.SearchMemories(ctx, actorID, query)
	if err != nil {
		return errorResult("search team memories", err), nil
	}
	if len(mems) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No team memories match %q.", query)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d team memories for %q:\n\n", len(mems), query)
	for _, m := range mems {
		writeMemory(&b, m, true)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ─── UpdateMemoryTool ────────────────────────────────────────────────────────

// UpdateMemoryTool handles the team_update_memory MCP tool.
type UpdateMemoryTool struct {
	engine *engine.Engine
}

// NewUpdateMemoryTool creates an UpdateMemoryTool.
func NewUpdateMemoryTool(e *engine.Engine) *UpdateMemoryTool {
	return &UpdateMemoryTool{engine: e}
}

// Definition returns the MCP tool definition for team_update_memory.
func (t *UpdateMemoryTool) Definition() mcp.Tool {
	return mcp.NewTool("team_update_memory",
		mcp.WithDescription("Update fields of a team memory. Omitted fields are left alone. Requires write permission."),
		mcp.WithString("memory_id",
			mcp.Required(),
			mcp.Description("Team memory ID"),
		),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("content", mcp.Description("New content")),
		mcp.WithString("context", mcp.Description("New context")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags, replacing the current ones")),
		mcp.WithString("visibility",
			mcp.Description("New visibility"),
			visibilityEnum(),
		),
		mcp.WithString("metadata", mcp.Description("JSON object replacing the current metadata")),
		memberParam(),
	)
}

// Handle processes the team_update_memory tool call.
func (t *UpdateMemoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actorID, errRes := actor(t.engine, req)
	if errRes != nil {
		return errRes, nil
	}
	id, errRes := requireString(req, "memory_id")
	if errRes != nil {
		return errRes, nil
	}

	args := req.GetArguments()
	var u team.MemoryUpdate
	str := func(key string) *string {
		if v, ok := args[key].(string); ok {
			return &v
		}
		return nil
	}
	u.Title = str("title")
	u.Content = str("content")
	u.Context = str("context")
	if _, ok := args["tags"]; ok {
		u.Tags = listArg(req, "tags")
		if u.Tags == nil {
			u.Tags = []string{}
		}
	}
	if v := str("visibility"); v != nil {
		vis := team.Visibility(*v)
		u.Visibility = &vis
	}
	if v := str("metadata"); v != nil {
		if !json.Valid([]byte(*v)) {
			return mcp.NewToolResultError("'metadata' must be valid JSON"), nil
		}
		u.Metadata = json.RawMessage(*v)
	}

	m, err := t.engine.UpdateMemory(ctx, actorID, id, u)
	if err != nil {
		return errorResult("update team memory", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Team memory updated: %q\nID: %s", m.Title, m.ID)), nil
}

// ─── DeleteMemoryTool ────────────────────────────────────────────────────────

// DeleteMemoryTool handles the team_delete_memory MCP tool.
type DeleteMemoryTool struct {
	engine *engine.Engine
}

// NewDeleteMemoryTool creates a DeleteMemoryTool.
func NewDeleteMemoryTool(e *engine.Engine) *DeleteMemoryTool {
	return &DeleteMemoryTool{engine: e}
}

// Definition returns the MCP tool definition for team_delete_memory.
func (t *DeleteMemoryTool) Definition() mcp.Tool {
	return mcp.NewTool("team_delete_memory",
		mcp.WithDescription("Delete a team memory with its votes, comments and usage. Requires delete permission."),
		mcp.WithString("memory_id",
			mcp.Required(),
			mcp.Description("Team memory ID"),
		),
		memberParam(),
	)
}

// Handle processes the team_delete_memory tool call.
func (t *DeleteMemoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actorID, errRes := actor(t.engine, req)
	if errRes != nil {
		return errRes, nil
	}
	id, errRes := requireString(req, "memory_id")
	if errRes != nil {
		return errRes, nil
	}
	if err := t.engine.DeleteMemory(ctx, actorID, id); err != nil {
		return errorResult("delete team memory", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Team memory %s deleted.", id)), nil
}
