package teamtools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/devmem/internal/engine"
	"github.com/HendryAvila/devmem/internal/permission"
	"github.com/HendryAvila/devmem/internal/team"
)

func resourceTypeParam() mcp.ToolOption {
	return mcp.WithString("resource_type",
		mcp.Description("Resource kind (default: memory)"),
		mcp.Enum(string(permission.ResourceMemory), string(permission.ResourceTeam), string(permission.ResourceProject)),
	)
}

func resourceTypeArg(req mcp.CallToolRequest) permission.ResourceType {
	return permission.ResourceType(req.GetString("resource_type", string(permission.ResourceMemory)))
}

// ShareTool handles the team_share MCP tool.
type ShareTool struct {
	engine *engine.Engine
}

// NewShareTool creates a ShareTool.
func NewShareTool(e *engine.Engine) *ShareTool {
	return &ShareTool{engine: e}
}

// Definition returns the MCP tool definition for team_share.
func (t *ShareTool) Definition() mcp.Tool {
	return mcp.NewTool("team_share",
		mcp.WithDescription(
			"Grant other members explicit access to a team memory. The acting member needs share "+
				"permission on the memory.",
		),
		mcp.WithString("memory_id",
			mcp.Required(),
			mcp.Description("Team memory ID"),
		),
		mcp.WithString("recipients",
			mcp.Required(),
			mcp.Description("Comma-separated member IDs"),
		),
		mcp.WithString("actions",
			mcp.Description("Comma-separated actions to grant (default: read)"),
		),
		memberParam(),
	)
}

// Handle processes the team_share tool call.
func (t *ShareTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actorID, errRes := actor(t.engine, req)
	if errRes != nil {
		return errRes, nil
	}
	id, errRes := requireString(req, "memory_id")
	if errRes != nil {
		return errRes, nil
	}
	recipients := listArg(req, "recipients")
	if len(recipients) == 0 {
		return mcp.NewToolResultError("'recipients' is required"), nil
	}

	ok, err := t.engine.Share(ctx, actorID, id, recipients, actionsArg(req, "actions"))
	if err != nil {
		return errorResult("share memory", err), nil
	}
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("member %s may not share memory %s", actorID, id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Memory %s shared with %s.", id, strings.Join(recipients, ", "))), nil
}

// ─── RevokeTool ──────────────────────────────────────────────────────────────

// RevokeTool handles the team_revoke MCP tool.
type RevokeTool struct {
	engine *engine.Engine
}

// NewRevokeTool creates a RevokeTool.
func NewRevokeTool(e *engine.Engine) *RevokeTool {
	return &RevokeTool{engine: e}
}

// Definition returns the MCP tool definition for team_revoke.
func (t *RevokeTool) Definition() mcp.Tool {
	return mcp.NewTool("team_revoke",
		mcp.WithDescription("Revoke explicit access previously shared on a team memory."),
		mcp.WithString("memory_id",
			mcp.Required(),
			mcp.Description("Team memory ID"),
		),
		mcp.WithString("recipients",
			mcp.Required(),
			mcp.Description("Comma-separated member IDs"),
		),
		memberParam(),
	)
}

// Handle processes the team_revoke tool call.
func (t *RevokeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actorID, errRes := actor(t.engine, req)
	if errRes != nil {
		return errRes, nil
	}
	id, errRes := requireString(req, "memory_id")
	if errRes != nil {
		return errRes, nil
	}
	recipients := listArg(req, "recipients")
	if len(recipients) == 0 {
		return mcp.NewToolResultError("'recipients' is required"), nil
	}

	ok, err := t.engine.Revoke(ctx, actorID, id, recipients)
	if err != nil {
		return errorResult("revoke access", err), nil
	}
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("member %s may not revoke access to memory %s", actorID, id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Access to %s revoked for %s.", id, strings.Join(recipients, ", "))), nil
}

// ─── CheckPermissionTool ─────────────────────────────────────────────────────

// CheckPermissionTool handles the team_check_permission MCP tool.
type CheckPermissionTool struct {
	engine *engine.Engine
}

// NewCheckPermissionTool creates a CheckPermissionTool.
func NewCheckPermissionTool(e *engine.Engine) *CheckPermissionTool {
	return &CheckPermissionTool{engine: e}
}

// Definition returns the MCP tool definition for team_check_permission.
func (t *CheckPermissionTool) Definition() mcp.Tool {
	return mcp.NewTool("team_check_permission",
		mcp.WithDescription("Check whether a member may perform an action on a resource. The check is audited."),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("Action to check"),
			mcp.Enum(actionNames()...),
		),
		resourceTypeParam(),
		mcp.WithString("resource_id",
			mcp.Description("Resource ID"),
		),
		memberParam(),
	)
}

// Handle processes the team_check_permission tool call.
func (t *CheckPermissionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actorID, errRes := actor(t.engine, req)
	if errRes != nil {
		return errRes, nil
	}
	action := team.Action(req.GetString("action", ""))
	if !action.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("unknown action %q", action)), nil
	}
	rt := resourceTypeArg(req)
	resourceID := req.GetString("resource_id", "")

	verdict := "DENIED"
	if t.engine.Permissions.CheckPermission(ctx, actorID, action, rt, resourceID) {
		verdict = "ALLOWED"
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s: %s %s on %s %s", verdict, actorID, action, rt, resourceID)), nil
}

// ─── RequestAccessTool ───────────────────────────────────────────────────────

// RequestAccessTool handles the team_request_access MCP tool.
type RequestAccessTool struct {
	engine *engine.Engine
}

// NewRequestAccessTool creates a RequestAccessTool.
func NewRequestAccessTool(e *engine.Engine) *RequestAccessTool {
	return &RequestAccessTool{engine: e}
}

// Definition returns the MCP tool definition for team_request_access.
func (t *RequestAccessTool) Definition() mcp.Tool {
	return mcp.NewTool("team_request_access",
		mcp.WithDescription(
			"Ask for extra permissions on a resource. An admin, or a member who can share the resource, "+
				"approves or denies it. Approval grants the actions until the request expires.",
		),
		resourceTypeParam(),
		mcp.WithString("resource_id",
			mcp.Required(),
			mcp.Description("Resource ID"),
		),
		mcp.WithString("actions",
			mcp.Required(),
			mcp.Description("Comma-separated actions requested"),
		),
		mcp.WithString("reason",
			mcp.Description("Why access is needed"),
		),
		mcp.WithNumber("expires_in_hours",
			mcp.Description("Hours until the request, and any grant it produces, expires (default: no expiry)"),
		),
		memberParam(),
	)
}

// Handle processes the team_request_access tool call.
func (t *RequestAccessTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actorID, errRes := actor(t.engine, req)
	if errRes != nil {
		return errRes, nil
	}
	resourceID, errRes := requireString(req, "resource_id")
	if errRes != nil {
		return errRes, nil
	}
	ttl := time.Duration(intArg(req, "expires_in_hours", 0)) * time.Hour

	ar, err := t.engine.RequestAccess(ctx, actorID, resourceTypeArg(req), resourceID,
		actionsArg(req, "actions"), req.GetString("reason", ""), ttl)
	if err != nil {
		return errorResult("request access", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Access request filed (%s)\nID: %s", ar.Status, ar.ID)), nil
}

// ─── DecideAccessTool ────────────────────────────────────────────────────────

// DecideAccessTool handles team_approve_access and team_deny_access.
type DecideAccessTool struct {
	engine  *engine.Engine
	approve bool
}

// NewApproveAccessTool creates the team_approve_access tool.
func NewApproveAccessTool(e *engine.Engine) *DecideAccessTool {
	return &DecideAccessTool{engine: e, approve: true}
}

// NewDenyAccessTool creates the team_deny_access tool.
func NewDenyAccessTool(e *engine.Engine) *DecideAccessTool {
	return &DecideAccessTool{engine: e}
}

// Definition returns the MCP tool definition.
func (t *DecideAccessTool) Definition() mcp.Tool {
	if t.approve {
		return mcp.NewTool("team_approve_access",
			mcp.WithDescription("Approve a pending access request. Only pending requests can be decided."),
			mcp.WithString("request_id",
				mcp.Required(),
				mcp.Description("Access request ID"),
			),
			memberParam(),
		)
	}
	return mcp.NewTool("team_deny_access",
		mcp.WithDescription("Deny a pending access request. Only pending requests can be decided."),
		mcp.WithString("request_id",
			mcp.Required(),
			mcp.Description("Access request ID"),
		),
		mcp.WithString("reason",
			mcp.Description("Why the request is denied"),
		),
		memberParam(),
	)
}

// Handle processes the decision.
func (t *DecideAccessTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actorID, errRes := actor(t.engine, req)
	if errRes != nil {
		return errRes, nil
	}
	id, errRes := requireString(req, "request_id")
	if errRes != nil {
		return errRes, nil
	}

	var (
		ar  *permission.AccessRequest
		err error
	)
	if t.approve {
		ar, err = t.engine.ApproveAccess(ctx, actorID, id)
	} else {
		ar, err = t.engine.DenyAccess(ctx, actorID, id, req.GetString("reason", ""))
	}
	if err != nil {
		return errorResult("decide access request", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Access request %s is now %s.", ar.ID, ar.Status)), nil
}

// ─── AccessRequestsTool ──────────────────────────────────────────────────────

// AccessRequestsTool handles the team_access_requests MCP tool.
type AccessRequestsTool struct {
	engine *engine.Engine
}

// NewAccessRequestsTool creates an AccessRequestsTool.
func NewAccessRequestsTool(e *engine.Engine) *AccessRequestsTool {
	return &AccessRequestsTool{engine: e}
}

// Definition returns the MCP tool definition for team_access_requests.
func (t *AccessRequestsTool) Definition() mcp.Tool {
	return mcp.NewTool("team_access_requests",
		mcp.WithDescription("List access requests, optionally by status."),
		mcp.WithString("status",
			mcp.Description("Only requests in this status"),
			mcp.Enum(string(permission.StatusPending), string(permission.StatusApproved), string(permission.StatusDenied)),
		),
	)
}

// Handle processes the team_access_requests tool call.
func (t *AccessRequestsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reqs, err := t.engine.Permissions.ListAccessRequests(ctx, permission.RequestStatus(req.GetString("status", "")))
	if err != nil {
		return errorResult("list access requests", err), nil
	}
	if len(reqs) == 0 {
		return mcp.NewToolResultText("No access requests."), nil
	}
	var b strings.Builder
	for _, r := range reqs {
		actions := make([]string, len(r.Permissions))
		for i, a := range r.Permissions {
			actions[i] = string(a)
		}
		fmt.Fprintf(&b, "- [%s] %s: %s wants %s on %s %s",
			r.ID, r.Status, r.RequesterID, strings.Join(actions, ","), r.ResourceType, r.ResourceID)
		if r.Reason != "" {
			fmt.Fprintf(&b, " (%s)", r.Reason)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

// ─── RuleTool ────────────────────────────────────────────────────────────────

// RuleTool handles the team_create_rule MCP tool.
type RuleTool struct {
	engine *engine.Engine
}

// NewRuleTool creates a RuleTool.
func NewRuleTool(e *engine.Engine) *RuleTool {
	return &RuleTool{engine: e}
}

// Definition returns the MCP tool definition for team_create_rule.
func (t *RuleTool) Definition() mcp.Tool {
	return mcp.NewTool("team_create_rule",
		mcp.WithDescription(
			"Create an explicit permission rule for one member. Rules on a specific resource win over "+
				"rules covering every resource of a type. Requires admin on the team.",
		),
		mcp.WithString("subject_id",
			mcp.Required(),
			mcp.Description("Member the rule applies to"),
		),
		resourceTypeParam(),
		mcp.WithString("resource_id",
			mcp.Description("Resource ID; empty covers every resource of the type"),
		),
		mcp.WithString("allow",
			mcp.Description("Comma-separated actions to grant"),
		),
		mcp.WithString("deny",
			mcp.Description("Comma-separated actions to deny"),
		),
		mcp.WithString("memory_type",
			mcp.Description("Only apply to memories of this type"),
		),
		mcp.WithNumber("expires_in_hours",
			mcp.Description("Rule lifetime (default: no expiry)"),
		),
		memberParam(),
	)
}

// Handle processes the team_create_rule tool call.
func (t *RuleTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actorID, errRes := actor(t.engine, req)
	if errRes != nil {
		return errRes, nil
	}
	subject, errRes := requireString(req, "subject_id")
	if errRes != nil {
		return errRes, nil
	}

	rule := permission.Rule{
		ResourceType: resourceTypeArg(req),
		ResourceID:   req.GetString("resource_id", ""),
		SubjectID:    subject,
	}
	for _, a := range actionsArg(req, "allow") {
		rule.Permissions = append(rule.Permissions, permission.Grant{Action: a, Granted: true})
	}
	for _, a := range actionsArg(req, "deny") {
		rule.Permissions = append(rule.Permissions, permission.Grant{Action: a})
	}
	if mt := req.GetString("memory_type", ""); mt != "" {
		rule.Conditions = append(rule.Conditions, permission.Condition{Kind: permission.CondMemoryType, MemoryType: mt})
	}
	if h := intArg(req, "expires_in_hours", 0); h > 0 {
		exp := t.engine.Memory.Now().Add(time.Duration(h) * time.Hour)
		rule.ExpiresAt = &exp
	}

	created, err := t.engine.CreateRule(ctx, actorID, rule)
	if err != nil {
		return errorResult("create rule", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Rule created for %s\nID: %s", created.SubjectID, created.ID)), nil
}

// ─── DeactivateRuleTool ──────────────────────────────────────────────────────

// DeactivateRuleTool handles the team_deactivate_rule MCP tool.
type DeactivateRuleTool struct {
	engine *engine.Engine
}

// NewDeactivateRuleTool creates a DeactivateRuleTool.
func NewDeactivateRuleTool(e *engine.Engine) *DeactivateRuleTool {
	return &DeactivateRuleTool{engine: e}
}

// Definition returns the MCP tool definition for team_deactivate_rule.
func (t *DeactivateRuleTool) Definition() mcp.Tool {
	return mcp.NewTool("team_deactivate_rule",
		mcp.WithDescription("Switch off a permission rule. Requires admin on the team."),
		mcp.WithString("rule_id",
			mcp.Required(),
			mcp.Description("Rule ID"),
		),
		memberParam(),
	)
}

// Handle processes the team_deactivate_rule tool call.
func (t *DeactivateRuleTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actorID, errRes := actor(t.engine, req)
	if errRes != nil {
		return errRes, nil
	}
	id, errRes := requireString(req, "rule_id")
	if errRes != nil {
		return errRes, nil
	}
	if err := t.engine.DeactivateRule(ctx, actorID, id); err != nil {
		return errorResult("deactivate rule", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Rule %s deactivated.", id)), nil
}

// ─── AuditTool ───────────────────────────────────────────────────────────────

// AuditTool handles the team_audit MCP tool.
type AuditTool struct {
	engine *engine.Engine
}

// NewAuditTool creates an AuditTool.
func NewAuditTool(e *engine.Engine) *AuditTool {
	return &AuditTool{engine: e}
}

// Definition returns the MCP tool definition for team_audit.
func (t *AuditTool) Definition() mcp.Tool {
	return mcp.NewTool("team_audit",
		mcp.WithDescription("Read the audit trail, newest first. Requires admin on the team."),
		mcp.WithString("actor_id",
			mcp.Description("Only entries by this member"),
		),
		mcp.WithString("action",
			mcp.Description("Only this action (e.g. delete_memory, check:write)"),
		),
		mcp.WithString("resource_id",
			mcp.Description("Only entries on this resource"),
		),
		mcp.WithBoolean("failures_only",
			mcp.Description("Only failed or denied actions"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum entries (default: 50)"),
		),
		memberParam(),
	)
}

// Handle processes the team_audit tool call.
func (t *AuditTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actorID, errRes := actor(t.engine, req)
	if errRes != nil {
		return errRes, nil
	}
	f := permission.AuditFilter{
		ActorID:    req.GetString("actor_id", ""),
		Action:     req.GetString("action", ""),
		ResourceID: req.GetString("resource_id", ""),
		Limit:      intArg(req, "limit", 50),
	}
	if boolArg(req, "failures_only", false) {
		no := false
		f.Success = &no
	}

	entries, err := t.engine.AuditLog(ctx, actorID, f)
	if err != nil {
		return errorResult("read audit log", err), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("No audit entries."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Audit Trail (%d)\n\n", len(entries))
	for _, a := range entries {
		status := "ok"
		if !a.Success {
			status = "FAILED"
		}
		fmt.Fprintf(&b, "- %s %s %s %s %s [%s]",
			a.Timestamp.Format("2006-01-02 15:04:05"), a.ActorID, a.Action, a.ResourceType, a.ResourceID, status)
		if a.Error != "" {
			fmt.Fprintf(&b, ": %s", a.Error)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}
