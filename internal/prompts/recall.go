// Package prompts implements MCP prompt handlers for devmem.
//
// MCP prompts are user-triggered workflows (like slash commands). Unlike
// tools, which the model calls, prompts are initiated by the user and
// expand into a message the model then answers.
package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/devmem/internal/engine"
	"github.com/HendryAvila/devmem/internal/memory"
)

// RecallPrompt handles the devmem-recall MCP prompt. It expands a request
// with recalled project memory and a project context descriptor.
type RecallPrompt struct {
	engine *engine.Engine
}

// NewRecallPrompt creates a RecallPrompt.
func NewRecallPrompt(e *engine.Engine) *RecallPrompt {
	return &RecallPrompt{engine: e}
}

// Definition returns the MCP prompt definition for registration.
func (p *RecallPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("devmem-recall",
		mcp.WithPromptDescription(
			"Ask a question with project memory attached: recent conversation turns, matching "+
				"architectural decisions and code patterns, plus the project's stack and recent changes.",
		),
		mcp.WithArgument("request",
			mcp.ArgumentDescription("Your question or task"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("detail_level",
			mcp.ArgumentDescription("summary, standard (default) or full"),
		),
	)
}

// Handle processes the devmem-recall prompt request.
func (p *RecallPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	request := strings.TrimSpace(req.Params.Arguments["request"])
	if request == "" {
		return nil, fmt.Errorf("argument 'request' is required")
	}
	level := memory.ParseDetailLevel(req.Params.Arguments["detail_level"])

	_, recalled, err := p.engine.RecallContext(ctx, request, level)
	if err != nil {
		return nil, fmt.Errorf("recalling memory: %w", err)
	}
	desc := Describe(ctx, p.engine.Config().ProjectRoot, p.engine.Memory)

	var b strings.Builder
	b.WriteString(desc.Markdown())
	b.WriteString("\n")
	if recalled != "" {
		b.WriteString(recalled)
		b.WriteString("\n")
	}
	b.WriteString("## Request\n")
	b.WriteString(request)
	b.WriteString("\n\nAnswer using the project memory above where it applies. ")
	b.WriteString("If you make a design decision, record it with `mem_record_decision`.")

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Request with project memory: %s", memory.Truncate(request, 60)),
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.NewTextContent(b.String()),
			},
		},
	}, nil
}

// ─── WrapUpPrompt ────────────────────────────────────────────────────────────

// WrapUpPrompt handles the devmem-wrap-up MCP prompt.
// It asks the model to persist what the session produced.
type WrapUpPrompt struct{}

// NewWrapUpPrompt creates a WrapUpPrompt.
func NewWrapUpPrompt() *WrapUpPrompt {
	return &WrapUpPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *WrapUpPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("devmem-wrap-up",
		mcp.WithPromptDescription(
			"End a working session by saving the conversation, decisions, touched files and "+
				"patterns to project memory.",
		),
		mcp.WithArgument("share_with_team",
			mcp.ArgumentDescription("'yes' to also publish reusable lessons as team memories"),
		),
	)
}

// Handle processes the devmem-wrap-up prompt request.
func (p *WrapUpPrompt) Handle(_ context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	steps := "Please save this session to project memory:\n" +
		"1. Call `mem_record_conversation` with the key exchanges and a one-line summary\n" +
		"2. Call `mem_record_decision` for each design decision we made, with rationale and alternatives\n" +
		"3. Call `mem_track_file` for every file created, modified or deleted\n" +
		"4. Call `mem_store_pattern` for reusable code patterns, with success=false for ones that failed\n"
	if strings.EqualFold(req.Params.Arguments["share_with_team"], "yes") {
		steps += "5. For lessons the whole team should know, call `team_search` first to avoid duplicates, " +
			"then `team_create_memory`\n"
	}
	steps += "\nFinish with a short list of what was saved."

	return &mcp.GetPromptResult{
		Description: "Save session to project memory",
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.NewTextContent(steps),
			},
		},
	}, nil
}
