// Package memtools provides MCP tool handlers for the project memory store.
//
// Each tool handler follows the same pattern:
// - A struct with dependencies (memory.Store) injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
//
// Failures are returned as tool error results, never as Go errors, so the
// host can show them to the model.
package memtools

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/devmem/internal/derrors"
	"github.com/HendryAvila/devmem/internal/memory"
)

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// listArg splits a comma-separated argument into trimmed, non-empty items.
func listArg(req mcp.CallToolRequest, key string) []string {
	raw := req.GetString(key, "")
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// detailArg reads the detail_level argument.
func detailArg(req mcp.CallToolRequest) memory.DetailLevel {
	return memory.ParseDetailLevel(req.GetString("detail_level", ""))
}

// detailLevelParam is the shared schema entry for detail_level.
func detailLevelParam() mcp.ToolOption {
	return mcp.WithString("detail_level",
		mcp.Description("Output verbosity: summary, standard (default) or full"),
		mcp.Enum(memory.DetailLevelValues()...),
	)
}

// errorResult renders err for the model, prefixed by what failed.
func errorResult(what string, err error) *mcp.CallToolResult {
	switch derrors.CodeOf(err) {
	case derrors.CodeNotInitialized:
		return mcp.NewToolResultError(fmt.Sprintf("%s: memory is not initialized for this project", what))
	case derrors.CodeNotFound, derrors.CodeInvalidInput:
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", what, err))
	default:
		return mcp.NewToolResultError(fmt.Sprintf("failed to %s: %v", what, err))
	}
}
