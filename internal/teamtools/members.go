package teamtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/devmem/internal/engine"
	"github.com/HendryAvila/devmem/internal/team"
)

// AddMemberTool handles the team_add_member MCP tool.
type AddMemberTool struct {
	engine *engine.Engine
}

// NewAddMemberTool creates an AddMemberTool.
func NewAddMemberTool(e *engine.Engine) *AddMemberTool {
	return &AddMemberTool{engine: e}
}

// Definition returns the MCP tool definition for team_add_member.
func (t *AddMemberTool) Definition() mcp.Tool {
	return mcp.NewTool("team_add_member",
		mcp.WithDescription(
			"Add a member to the team. The first member may be added by anyone; after that the acting "+
				"member needs admin on the team.",
		),
		mcp.WithString("email",
			mcp.Required(),
			mcp.Description("Member email, unique within the team"),
		),
		mcp.WithString("name",
			mcp.Description("Display name"),
		),
		mcp.WithString("role",
			mcp.Required(),
			mcp.Description("Team role"),
			mcp.Enum(string(team.RoleAdmin), string(team.RoleDeveloper), string(team.RoleObserver)),
		),
		mcp.WithString("permissions",
			mcp.Description("Comma-separated capability override. Empty uses the role defaults."),
		),
		memberParam(),
	)
}

// Handle processes the team_add_member tool call.
func (t *AddMemberTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	email, errRes := requireString(req, "email")
	if errRes != nil {
		return errRes, nil
	}
	// Bootstrap: an unresolved actor is fine when the team is empty.
	actorID := strings.TrimSpace(req.GetString("member_id", t.engine.Config().MemberID))

	m, err := t.engine.AddMember(ctx, actorID, team.NewMember{
		Email:       email,
		Name:        req.GetString("name", ""),
		Role:        team.Role(req.GetString("role", "")),
		Permissions: actionsArg(req, "permissions"),
	})
	if err != nil {
		return errorResult("add member", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Member added: %s (%s)\nID: %s", m.Email, m.Role, m.ID)), nil
}

// ─── MembersTool ─────────────────────────────────────────────────────────────

// MembersTool handles the team_members MCP tool.
type MembersTool struct {
	engine *engine.Engine
}

// NewMembersTool creates a MembersTool.
func NewMembersTool(e *engine.Engine) *MembersTool {
	return &MembersTool{engine: e}
}

// Definition returns the MCP tool definition for team_members.
func (t *MembersTool) Definition() mcp.Tool {
	return mcp.NewTool("team_members",
		mcp.WithDescription("List team members with their roles and effective capabilities."),
	)
}

// Handle processes the team_members tool call.
func (t *MembersTool) Handle(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	members, err := t.engine.Team.GetTeamMembers(ctx)
	if err != nil {
		return errorResult("list members", err), nil
	}
	if len(members) == 0 {
		return mcp.NewToolResultText("No team members yet. Use team_add_member to add the first admin."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Team %s (%d members)\n\n", t.engine.Team.TeamID(), len(members))
	for _, m := range members {
		caps := m.Permissions
		if len(caps) == 0 {
			caps = team.DefaultCapabilities(m.Role)
		}
		names := make([]string, len(caps))
		for i, c := range caps {
			names[i] = string(c)
		}
		fmt.Fprintf(&b, "- [%s] %s <%s> %s: %s\n", m.ID, m.Name, m.Email, m.Role, strings.Join(names, ", "))
	}
	return mcp.NewToolResultText(b.String()), nil
}
