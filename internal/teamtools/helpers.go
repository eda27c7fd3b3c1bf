// Package teamtools provides MCP tool handlers for shared team knowledge:
// members, team memories, feedback, sharing, access requests, audit and
// analytics.
//
// Every handler acts as a member. The member comes from the member_id
// argument, falling back to the member configured for this process.
// Permission checks and auditing happen in engine.Engine.
package teamtools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/devmem/internal/derrors"
	"github.com/HendryAvila/devmem/internal/engine"
	"github.com/HendryAvila/devmem/internal/team"
)

// memberParam is the shared schema entry for the acting member.
func memberParam() mcp.ToolOption {
	return mcp.WithString("member_id",
		mcp.Description("Acting team member (default: member_id from devmem.yaml)"),
	)
}

// actor resolves the acting member id.
func actor(e *engine.Engine, req mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	if id := strings.TrimSpace(req.GetString("member_id", "")); id != "" {
		return id, nil
	}
	if id := e.Config().MemberID; id != "" {
		return id, nil
	}
	return "", mcp.NewToolResultError("'member_id' is required (no default member configured)")
}

// requireString returns the trimmed argument or an error result.
func requireString(req mcp.CallToolRequest, key string) (string, *mcp.CallToolResult) {
	v := strings.TrimSpace(req.GetString(key, ""))
	if v == "" {
		return "", mcp.NewToolResultError(fmt.Sprintf("'%s' is required", key))
	}
	return v, nil
}

// listArg splits a comma-separated argument into trimmed, non-empty items.
func listArg(req mcp.CallToolRequest, key string) []string {
	var out []string
	for _, part := range strings.Split(req.GetString(key, ""), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func actionsArg(req mcp.CallToolRequest, key string) []team.Action {
	var out []team.Action
	for _, s := range listArg(req, key) {
		out = append(out, team.Action(s))
	}
	return out
}

func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

func actionNames() []string {
	var out []string
	for _, a := range team.AllActions() {
		out = append(out, string(a))
	}
	return out
}

// errorResult renders err for the model, prefixed by what failed.
func errorResult(what string, err error) *mcp.CallToolResult {
	switch derrors.CodeOf(err) {
	case derrors.CodePermissionDenied, derrors.CodeNotFound, derrors.CodeInvalidInput, derrors.CodeInvalidTransition:
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", what, err))
	case derrors.CodeNotInitialized:
		return mcp.NewToolResultError(fmt.Sprintf("%s: memory is not initialized for this project", what))
	default:
		return mcp.NewToolResultError(fmt.Sprintf("failed to %s: %v", what, err))
	}
}

// jsonResult renders v as indented JSON.
func jsonResult(v any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err))
	}
	return mcp.NewToolResultText(string(b))
}

func writeMemory(b *strings.Builder, m team.Memory, full bool) {
	fmt.Fprintf(b, "- [%s] **%s** (%s, %s)", m.ID, m.Title, m.Type, m.Visibility)
	fmt.Fprintf(b, " score %.2f, used %d", m.SuccessScore, m.UsageCount)
	if len(m.Tags) > 0 {
		fmt.Fprintf(b, ", tags: %s", strings.Join(m.Tags, ", "))
	}
	b.WriteString("\n")
	if full && m.Content != "" {
		fmt.Fprintf(b, "  %s\n", m.Content)
	}
}

func writeComments(b *strings.Builder, comments []team.Comment, depth int) {
	for _, c := range comments {
		fmt.Fprintf(b, "%s- [%s] %s (%s): %s\n",
			strings.Repeat("  ", depth), c.ID, c.MemberID, c.Timestamp.Format("2006-01-02 15:04"), c.Content)
		writeComments(b, c.Replies, depth+1)
	}
}
