package memtools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/devmem/internal/memory"
)

// RecordConversationTool handles the mem_record_conversation MCP tool.
type RecordConversationTool struct {
	store *memory.Store
}

// NewRecordConversationTool creates a RecordConversationTool.
func NewRecordConversationTool(store *memory.Store) *RecordConversationTool {
	return &RecordConversationTool{store: store}
}

// Definition returns the MCP tool definition for mem_record_conversation.
func (t *RecordConversationTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_record_conversation",
		mcp.WithDescription(
			"Record a conversation exchange with the assistant. Messages are stored in order and become "+
				"the recent turns that mem_recall always returns.",
		),
		mcp.WithString("messages",
			mcp.Required(),
			mcp.Description(`JSON array of messages: [{"role":"user","content":"..."},{"role":"assistant","content":"..."}]`),
		),
		mcp.WithString("assistant",
			mcp.Description("Assistant identifier (default: assistant)"),
		),
		mcp.WithString("summary",
			mcp.Description("Optional one-line summary, searchable with mem_search_conversations"),
		),
		mcp.WithString("active_file",
			mcp.Description("File open in the editor during the exchange"),
		),
		mcp.WithNumber("cursor_line",
			mcp.Description("Cursor line in the active file"),
		),
		mcp.WithString("open_files",
			mcp.Description("Comma-separated list of files open in the editor"),
		),
	)
}

// Handle processes the mem_record_conversation tool call.
func (t *RecordConversationTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := req.GetString("messages", "")
	if raw == "" {
		return mcp.NewToolResultError("'messages' is required"), nil
	}
	var msgs []memory.MessageInput
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("'messages' must be a JSON array of {role, content}: %v", err)), nil
	}

	convCtx := memory.ConversationContext{
		ActiveFile: req.GetString("active_file", ""),
		CursorLine: intArg(req, "cursor_line", 0),
		OpenFiles:  listArg(req, "open_files"),
	}
	id, err := t.store.RecordConversation(ctx, req.GetString("assistant", "assistant"), msgs, convCtx)
	if err != nil {
		return errorResult("record conversation", err), nil
	}

	if summary := req.GetString("summary", ""); summary != "" {
		if err := t.store.SetConversationSummary(ctx, id, summary); err != nil {
			return errorResult("store conversation summary", err), nil
		}
	}

	return mcp.NewToolResultText(fmt.Sprintf("Conversation recorded: %d messages\nID: %s", len(msgs), id)), nil
}

// ─── RecordDecisionTool ──────────────────────────────────────────────────────

// RecordDecisionTool handles the mem_record_decision MCP tool.
type RecordDecisionTool struct {
	store *memory.Store
}

// NewRecordDecisionTool creates a RecordDecisionTool.
func NewRecordDecisionTool(store *memory.Store) *RecordDecisionTool {
	return &RecordDecisionTool{store: store}
}

// Definition returns the MCP tool definition for mem_record_decision.
func (t *RecordDecisionTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_record_decision",
		mcp.WithDescription(
			"Record an architectural decision. Decisions are immutable; record a new one to supersede an old one.",
		),
		mcp.WithString("decision",
			mcp.Required(),
			mcp.Description("What was decided (e.g. 'Use SQLite in WAL mode for local storage')"),
		),
		mcp.WithString("rationale",
			mcp.Required(),
			mcp.Description("Why it was decided"),
		),
		mcp.WithString("alternatives",
			mcp.Description("Comma-separated alternatives that were considered"),
		),
		mcp.WithString("impact",
			mcp.Description("Comma-separated consequences"),
		),
		mcp.WithString("affected_files",
			mcp.Description("Comma-separated file paths the decision touches"),
		),
	)
}

// Handle processes the mem_record_decision tool call.
func (t *RecordDecisionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	decision := req.GetString("decision", "")
	rationale := req.GetString("rationale", "")
	if decision == "" {
		return mcp.NewToolResultError("'decision' is required"), nil
	}
	if rationale == "" {
		return mcp.NewToolResultError("'rationale' is required"), nil
	}

	id, err := t.store.RecordArchitecturalDecision(ctx, memory.DecisionInput{
		Decision:      decision,
		Rationale:     rationale,
		Alternatives:  listArg(req, "alternatives"),
		Impact:        listArg(req, "impact"),
		AffectedFiles: listArg(req, "affected_files"),
	})
	if err != nil {
		return errorResult("record decision", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Decision recorded: %q\nID: %s", memory.Truncate(decision, 80), id)), nil
}

// ─── TrackFileTool ───────────────────────────────────────────────────────────

// TrackFileTool handles the mem_track_file MCP tool.
type TrackFileTool struct {
	store *memory.Store
}

// NewTrackFileTool creates a TrackFileTool.
func NewTrackFileTool(store *memory.Store) *TrackFileTool {
	return &TrackFileTool{store: store}
}

// Definition returns the MCP tool definition for mem_track_file.
func (t *TrackFileTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_track_file",
		mcp.WithDescription("Record that a file was created, modified or deleted."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("File path relative to the project root"),
		),
		mcp.WithString("change",
			mcp.Required(),
			mcp.Description("Kind of change"),
			mcp.Enum(string(memory.ChangeCreated), string(memory.ChangeModified), string(memory.ChangeDeleted)),
		),
		mcp.WithString("conversation_id",
			mcp.Description("Conversation that produced the change, if any"),
		),
	)
}

// Handle processes the mem_track_file tool call.
func (t *TrackFileTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return mcp.NewToolResultError("'path' is required"), nil
	}
	kind := memory.ChangeKind(req.GetString("change", ""))

	id, err := t.store.TrackFileChange(ctx, path, kind, req.GetString("conversation_id", ""))
	if err != nil {
		return errorResult("track file change", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Tracked %s: %s\nID: %s", kind, path, id)), nil
}

// ─── StorePatternTool ────────────────────────────────────────────────────────

// StorePatternTool handles the mem_store_pattern MCP tool.
type StorePatternTool struct {
	store *memory.Store
}

// NewStorePatternTool creates a StorePatternTool.
func NewStorePatternTool(store *memory.Store) *StorePatternTool {
	return &StorePatternTool{store: store}
}

// Definition returns the MCP tool definition for mem_store_pattern.
func (t *StorePatternTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_store_pattern",
		mcp.WithDescription(
			"Store a code pattern observed in the project, with the outcome of applying it when known.",
		),
		mcp.WithString("pattern",
			mcp.Required(),
			mcp.Description("The code snippet or idiom"),
		),
		mcp.WithString("language",
			mcp.Description("Programming language"),
		),
		mcp.WithString("context",
			mcp.Description("Where or why the pattern applies"),
		),
		mcp.WithBoolean("success",
			mcp.Description("Whether applying the pattern worked (default: true)"),
		),
	)
}

// Handle processes the mem_store_pattern tool call.
func (t *StorePatternTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pattern := req.GetString("pattern", "")
	if pattern == "" {
		return mcp.NewToolResultError("'pattern' is required"), nil
	}

	id, err := t.store.StoreCodePattern(ctx, memory.PatternInput{
		Pattern:  pattern,
		Language: req.GetString("language", ""),
		Context:  req.GetString("context", ""),
		Success:  boolArg(req, "success", true),
	})
	if err != nil {
		return errorResult("store pattern", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Pattern stored\nID: %s", id)), nil
}
