// Package resources implements MCP resource handlers for devmem.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (devmem://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/devmem/internal/engine"
)

const (
	// StatsURI addresses the project memory statistics.
	StatsURI = "devmem://project/stats"
	// AnalyticsURI addresses the team analytics snapshot.
	AnalyticsURI = "devmem://team/analytics"
)

// Handler manages devmem resource endpoints.
type Handler struct {
	engine *engine.Engine
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(e *engine.Engine) *Handler {
	return &Handler{engine: e}
}

// StatsResource returns the MCP resource definition for project statistics.
func (h *Handler) StatsResource() mcp.Resource {
	return mcp.NewResource(
		StatsURI,
		"Project Memory Statistics",
		mcp.WithResourceDescription("Counts of conversations, messages, decisions, files and patterns, last activity and database size"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleStats returns the project statistics as JSON.
func (h *Handler) HandleStats(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	stats, err := h.engine.Memory.GetStatistics(ctx)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	return jsonResource(req.Params.URI, stats)
}

// AnalyticsResource returns the MCP resource definition for team analytics.
func (h *Handler) AnalyticsResource() mcp.Resource {
	return mcp.NewResource(
		AnalyticsURI,
		"Team Analytics",
		mcp.WithResourceDescription("Team knowledge totals, contributors and 0-100 productivity, health, collaboration and utilization scores"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleAnalytics returns the team analytics snapshot as JSON.
func (h *Handler) HandleAnalytics(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	a, err := h.engine.Analytics.GetTeamAnalytics(ctx)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	return jsonResource(req.Params.URI, a)
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
