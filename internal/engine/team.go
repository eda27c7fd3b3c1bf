package engine

import (
	"context"
	"time"

	"github.com/HendryAvila/devmem/internal/derrors"
	"github.com/HendryAvila/devmem/internal/permission"
	"github.com/HendryAvila/devmem/internal/team"
)

// authorize checks actorID's permission and audits a refusal under
// auditAction.
func (e *Engine) authorize(ctx context.Context, actorID string, action team.Action, rt permission.ResourceType, resourceID, auditAction string) error {
	if e.Permissions.CheckPermission(ctx, actorID, action, rt, resourceID) {
		return nil
	}
	err := derrors.PermissionDenied(actorID, string(action), string(rt)+" "+resourceID)
	e.Permissions.RecordAction(ctx, actorID, auditAction, rt, resourceID, "", err, nil)
	return err
}

// record audits the outcome of a mutation and marks the actor active.
func (e *Engine) record(ctx context.Context, actorID, auditAction string, rt permission.ResourceType, resourceID, name string, err error) {
	e.Permissions.RecordAction(ctx, actorID, auditAction, rt, resourceID, name, err, nil)
	if err == nil {
		if touchErr := e.Team.TouchMember(ctx, actorID); touchErr != nil {
			e.logger.Debug("touch member failed", "member_id", actorID, "error", touchErr)
		}
	}
}

// ─── Members ─────────────────────────────────────────────────────────────────

// AddMember adds a member. The first member of an empty team may be added
// by anyone; afterwards the actor needs admin on the team.
func (e *Engine) AddMember(ctx context.Context, actorID string, in team.NewMember) (*team.Member, error) {
	members, err := e.Team.GetTeamMembers(ctx)
	if err != nil {
		return nil, err
	}
	teamID := e.Team.TeamID()
	if len(members) > 0 {
		if err := e.authorize(ctx, actorID, team.ActionAdmin, permission.ResourceTeam, teamID, "add_member"); err != nil {
			return nil, err
		}
	}
	m, err := e.Team.AddTeamMember(ctx, in)
	resourceID := teamID
	if m != nil {
		resourceID = m.ID
	}
	e.Permissions.RecordAction(ctx, actorID, "add_member", permission.ResourceTeam, resourceID, in.Email, err, nil)
	return m, err
}

// ─── Memories ────────────────────────────────────────────────────────────────

// CreateMemory creates a memory owned by actorID.
func (e *Engine) CreateMemory(ctx context.Context, actorID string, in team.NewMemory) (*team.Memory, error) {
	if err := e.authorize(ctx, actorID, team.ActionWrite, permission.ResourceMemory, "", "create_memory"); err != nil {
		return nil, err
	}
	in.CreatedBy = actorID
	m, err := e.Team.CreateTeamMemory(ctx, in)
	id := ""
	if m != nil {
		id = m.ID
	}
	e.record(ctx, actorID, "create_memory", permission.ResourceMemory, id, in.Title, err)
	return m, err
}

// GetMemory returns a memory actorID may read.
func (e *Engine) GetMemory(ctx context.Context, actorID, memoryID string) (*team.Memory, error) {
	if err := e.authorize(ctx, actorID, team.ActionRead, permission.ResourceMemory, memoryID, "read_memory"); err != nil {
		return nil, err
	}
	return e.Team.GetTeamMemory(ctx, memoryID)
}

// ListMemories returns the memories matching f that actorID can see.
func (e *Engine) ListMemories(ctx context.Context, actorID string, f team.Filter) ([]team.Memory, error) {
	all, err := e.Team.GetTeamMemories(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]team.Memory, 0, len(all))
	for _, m := range all {
		if m.VisibleTo(actorID) {
			out = append(out, m)
		}
	}
	return out, nil
}

// SearchMemories runs a team search as actorID.
func (e *Engine) SearchMemories(ctx context.Context, actorID, query string) ([]team.Memory, error) {
	return e.Team.SearchTeamMemories(ctx, query, actorID)
}

// UpdateMemory applies u when actorID may write the memory.
func (e *Engine) UpdateMemory(ctx context.Context, actorID, memoryID string, u team.MemoryUpdate) (*team.Memory, error) {
	if err := e.authorize(ctx, actorID, team.ActionWrite, permission.ResourceMemory, memoryID, "update_memory"); err != nil {
		return nil, err
	}
	m, err := e.Team.UpdateTeamMemory(ctx, memoryID, u)
	name := ""
	if m != nil {
		name = m.Title
	}
	e.record(ctx, actorID, "update_memory", permission.ResourceMemory, memoryID, name, err)
	return m, err
}

// DeleteMemory removes a memory when actorID may delete it.
func (e *Engine) DeleteMemory(ctx context.Context, actorID, memoryID string) error {
	if err := e.authorize(ctx, actorID, team.ActionDelete, permission.ResourceMemory, memoryID, "delete_memory"); err != nil {
		return err
	}
	err := e.Team.DeleteTeamMemory(ctx, memoryID)
	e.record(ctx, actorID, "delete_memory", permission.ResourceMemory, memoryID, "", err)
	if err != nil {
		return err
	}
	if _, err := e.Permissions.DeactivateResourceRules(ctx, actorID, permission.ResourceMemory, memoryID); err != nil {
		e.logger.Warn("rules for deleted memory left active", "memory_id", memoryID, "error", err)
	}
	return nil
}

// Vote records actorID's vote and returns the new success score.
func (e *Engine) Vote(ctx context.Context, actorID, memoryID string, kind team.VoteKind) (float64, error) {
	if err := e.authorize(ctx, actorID, team.ActionVote, permission.ResourceMemory, memoryID, "vote"); err != nil {
		return 0, err
	}
	score, err := e.Team.VoteOnMemory(ctx, memoryID, actorID, kind)
	e.record(ctx, actorID, "vote", permission.ResourceMemory, memoryID, "", err)
	return score, err
}

// Comment adds a comment by actorID.
func (e *Engine) Comment(ctx context.Context, actorID, memoryID, content, parentID string) (*team.Comment, error) {
	if err := e.authorize(ctx, actorID, team.ActionComment, permission.ResourceMemory, memoryID, "comment"); err != nil {
		return nil, err
	}
	c, err := e.Team.AddMemoryComment(ctx, memoryID, actorID, content, parentID)
	e.record(ctx, actorID, "comment", permission.ResourceMemory, memoryID, "", err)
	return c, err
}

// Comments returns a memory's comments when actorID may read it.
func (e *Engine) Comments(ctx context.Context, actorID, memoryID string, threaded bool) ([]team.Comment, error) {
	if err := e.authorize(ctx, actorID, team.ActionRead, permission.ResourceMemory, memoryID, "read_comments"); err != nil {
		return nil, err
	}
	return e.Team.GetMemoryComments(ctx, memoryID, threaded)
}

// TrackUsage records that actorID applied a memory. Usage is never
// permission-checked but is audited.
func (e *Engine) TrackUsage(ctx context.Context, actorID, memoryID, usageContext string, success bool) (*team.UsageEvent, error) {
	ev, err := e.Team.TrackMemoryUsage(ctx, memoryID, actorID, usageContext, success)
	e.record(ctx, actorID, "track_usage", permission.ResourceMemory, memoryID, "", err)
	return ev, err
}

// ─── Sharing & access ────────────────────────────────────────────────────────

// Share grants recipients actions on a memory. See permission.Engine.ShareMemory.
func (e *Engine) Share(ctx context.Context, actorID, memoryID string, recipients []string, actions []team.Action) (bool, error) {
	return e.Permissions.ShareMemory(ctx, actorID, memoryID, recipients, actions)
}

// Revoke removes recipients' explicit access to a memory.
func (e *Engine) Revoke(ctx context.Context, actorID, memoryID string, recipients []string) (bool, error) {
	return e.Permissions.RevokeMemoryAccess(ctx, actorID, memoryID, recipients)
}

// RequestAccess files an access request from actorID.
func (e *Engine) RequestAccess(ctx context.Context, actorID string, rt permission.ResourceType, resourceID string, actions []team.Action, reason string, ttl time.Duration) (*permission.AccessRequest, error) {
	var expires *time.Time
	if ttl > 0 {
		t := e.Memory.Now().Add(ttl)
		expires = &t
	}
	return e.Permissions.CreateAccessRequest(ctx, actorID, rt, resourceID, actions, reason, expires)
}

// ApproveAccess approves a request. Team admins may approve anything.
// Anyone else needs share on the requested resource and must hold every
// requested action there. Nobody decides their own request.
func (e *Engine) ApproveAccess(ctx context.Context, actorID, requestID string) (*permission.AccessRequest, error) {
	if err := e.authorizeDecision(ctx, actorID, requestID, "approve_access", true); err != nil {
		return nil, err
	}
	return e.Permissions.ApproveAccessRequest(ctx, requestID, actorID)
}

// DenyAccess denies a request. It needs team admin or share on the
// requested resource.
func (e *Engine) DenyAccess(ctx context.Context, actorID, requestID, reason string) (*permission.AccessRequest, error) {
	if err := e.authorizeDecision(ctx, actorID, requestID, "deny_access", false); err != nil {
		return nil, err
	}
	return e.Permissions.DenyAccessRequest(ctx, requestID, actorID, reason)
}

func (e *Engine) authorizeDecision(ctx context.Context, actorID, requestID, auditAction string, mustHold bool) error {
	meta := map[string]string{"request_id": requestID}
	req, err := e.Permissions.GetAccessRequest(ctx, requestID)
	if err != nil {
		e.Permissions.RecordAction(ctx, actorID, auditAction, "", "", "", err, meta)
		return err
	}
	if req.RequesterID == actorID {
		err := derrors.PermissionDenied(actorID, "decide own", "access request "+req.ID)
		e.Permissions.RecordAction(ctx, actorID, auditAction, req.ResourceType, req.ResourceID, "", err, meta)
		return err
	}
	if e.Permissions.CheckPermission(ctx, actorID, team.ActionAdmin, permission.ResourceTeam, e.Team.TeamID()) {
		return nil
	}
	if err := e.authorize(ctx, actorID, team.ActionShare, req.ResourceType, req.ResourceID, auditAction); err != nil {
		return err
	}
	if !mustHold {
		return nil
	}
	if missing, ok := e.Permissions.HoldsAll(ctx, actorID, req.Permissions, req.ResourceType, req.ResourceID); !ok {
		err := derrors.PermissionDenied(actorID, "grant "+string(missing), string(req.ResourceType)+" "+req.ResourceID)
		e.Permissions.RecordAction(ctx, actorID, auditAction, req.ResourceType, req.ResourceID, "", err, meta)
		return err
	}
	return nil
}

// CreateRule stores an explicit rule. Requires admin on the team.
func (e *Engine) CreateRule(ctx context.Context, actorID string, r permission.Rule) (*permission.Rule, error) {
	if err := e.authorize(ctx, actorID, team.ActionAdmin, permission.ResourceTeam, e.Team.TeamID(), "create_rule"); err != nil {
		return nil, err
	}
	return e.Permissions.CreateRule(ctx, actorID, r)
}

// DeactivateRule switches a rule off. Requires admin on the team.
func (e *Engine) DeactivateRule(ctx context.Context, actorID, ruleID string) error {
	if err := e.authorize(ctx, actorID, team.ActionAdmin, permission.ResourceTeam, e.Team.TeamID(), "deactivate_rule"); err != nil {
		return err
	}
	return e.Permissions.DeactivateRule(ctx, actorID, ruleID)
}

// AuditLog returns audit entries. Requires admin on the team.
func (e *Engine) AuditLog(ctx context.Context, actorID string, f permission.AuditFilter) ([]permission.AuditEntry, error) {
	if err := e.authorize(ctx, actorID, team.ActionAdmin, permission.ResourceTeam, e.Team.TeamID(), "read_audit"); err != nil {
		return nil, err
	}
	return e.Permissions.AuditLog(ctx, f)
}
