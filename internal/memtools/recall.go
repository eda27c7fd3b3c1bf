package memtools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/devmem/internal/memory"
	"github.com/HendryAvila/devmem/internal/recall"
)

// RecallTool handles the mem_recall MCP tool.
type RecallTool struct {
	engine *recall.Engine
}

// NewRecallTool creates a RecallTool backed by engine.
func NewRecallTool(engine *recall.Engine) *RecallTool {
	return &RecallTool{engine: engine}
}

// Definition returns the MCP tool definition for mem_recall.
func (t *RecallTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_recall",
		mcp.WithDescription(
			"Recall project memory relevant to a prompt. Always returns the most recent conversation turns, "+
				"plus architectural decisions and code patterns whose text matches words in the prompt. "+
				"Call this BEFORE answering questions about the project's history or conventions.",
		),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("The user's request or question"),
		),
		detailLevelParam(),
	)
}

// Handle processes the mem_recall tool call.
func (t *RecallTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt := req.GetString("prompt", "")
	if prompt == "" {
		return mcp.NewToolResultError("'prompt' is required"), nil
	}

	frags, err := t.engine.Recall(ctx, prompt)
	if err != nil {
		return errorResult("recall memory", err), nil
	}
	if len(frags) == 0 {
		return mcp.NewToolResultText("No project memory recorded yet."), nil
	}

	text := recall.Format(frags, detailArg(req))
	text += memory.TokenFooter(memory.EstimateTokens(text))
	return mcp.NewToolResultText(text), nil
}
