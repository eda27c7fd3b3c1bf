package teamtools

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/devmem/internal/analytics"
	"github.com/HendryAvila/devmem/internal/engine"
)

// AnalyticsTool handles the team_analytics MCP tool.
type AnalyticsTool struct {
	engine *engine.Engine
}

// NewAnalyticsTool creates an AnalyticsTool.
func NewAnalyticsTool(e *engine.Engine) *AnalyticsTool {
	return &AnalyticsTool{engine: e}
}

// Definition returns the MCP tool definition for team_analytics.
func (t *AnalyticsTool) Definition() mcp.Tool {
	return mcp.NewTool("team_analytics",
		mcp.WithDescription(
			"Team knowledge metrics: totals, growth, contributors and 0-100 scores for productivity, "+
				"knowledge health, collaboration and utilization. Pass target_member for one member's view.",
		),
		mcp.WithString("target_member",
			mcp.Description("Member ID to report on instead of the whole team"),
		),
		mcp.WithBoolean("json",
			mcp.Description("Return raw JSON (default: false)"),
		),
	)
}

// Handle processes the team_analytics tool call.
func (t *AnalyticsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := boolArg(req, "json", false)

	if id := req.GetString("target_member", ""); id != "" {
		ma, err := t.engine.Analytics.GetMemberAnalytics(ctx, id)
		if err != nil {
			return errorResult("compute member analytics", err), nil
		}
		if raw {
			return jsonResult(ma), nil
		}
		return mcp.NewToolResultText(FormatMember(ma)), nil
	}

	ta, err := t.engine.Analytics.GetTeamAnalytics(ctx)
	if err != nil {
		return errorResult("compute team analytics", err), nil
	}
	if raw {
		return jsonResult(ta), nil
	}
	return mcp.NewToolResultText(FormatTeam(ta)), nil
}

// FormatTeam renders a team snapshot as markdown.
func FormatTeam(a *analytics.TeamAnalytics) string {
	var b strings.Builder
	b.WriteString("## Team Analytics\n\n")
	fmt.Fprintf(&b, "- **Members**: %d\n", a.TotalMembers)
	fmt.Fprintf(&b, "- **Memories**: %d (%d active)\n", a.TotalMemories, a.ActiveMemories)
	fmt.Fprintf(&b, "- **Usage**: %d\n", a.TotalUsage)
	fmt.Fprintf(&b, "- **Average success score**: %.2f\n", a.AvgSuccessScore)
	fmt.Fprintf(&b, "- **Growth (30d)**: %+.1f%%\n", a.GrowthRate)

	b.WriteString("\n### Scores\n")
	fmt.Fprintf(&b, "- Productivity: %.1f\n", a.Productivity)
	fmt.Fprintf(&b, "- Knowledge health: %.1f\n", a.KnowledgeHealth)
	fmt.Fprintf(&b, "- Collaboration: %.1f\n", a.Collaboration)
	fmt.Fprintf(&b, "- Utilization: %.1f\n", a.Utilization)

	if len(a.ByType) > 0 {
		b.WriteString("\n### By Type\n")
		for _, k := range slices.Sorted(maps.Keys(a.ByType)) {
			fmt.Fprintf(&b, "- %s: %d\n", k, a.ByType[k])
		}
	}

	if len(a.Contributors) > 0 {
		b.WriteString("\n### Contributors\n")
		for _, c := range a.Contributors {
			fmt.Fprintf(&b, "- %s: %d created, %d uses, avg score %.2f\n", displayName(c), c.Created, c.Used, c.AvgSuccessScore)
		}
	}
	return b.String()
}

// FormatMember renders one member's analytics as markdown.
func FormatMember(a *analytics.MemberAnalytics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Member Analytics: %s (%s)\n\n", displayName(a.Contribution), a.Role)
	fmt.Fprintf(&b, "- **Memories created**: %d (%.1f%% of team)\n", a.Created, a.SharePct)
	fmt.Fprintf(&b, "- **Uses of their memories**: %d\n", a.Used)
	fmt.Fprintf(&b, "- **Uses made**: %d (%.0f%% successful)\n", a.UsesMade, 100*a.SuccessRate)
	fmt.Fprintf(&b, "- **Votes cast**: %d\n", a.VotesCast)
	fmt.Fprintf(&b, "- **Comments**: %d\n", a.Comments)
	fmt.Fprintf(&b, "- **Average success score**: %.2f\n", a.AvgSuccessScore)
	if a.LastContribution != nil {
		fmt.Fprintf(&b, "- **Last contribution**: %s\n", a.LastContribution.Format("2006-01-02"))
	}
	return b.String()
}

func displayName(c analytics.Contribution) string {
	if c.Name != "" {
		return c.Name
	}
	return c.MemberID
}
