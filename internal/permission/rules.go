package permission

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"github.com/HendryAvila/devmem/internal/derrors"
	"github.com/HendryAvila/devmem/internal/team"
)

// CreateRule stores an explicit rule authored by actorID. ID, CreatedBy,
// CreatedAt and Active are filled in; SubjectType defaults to user.
func (e *Engine) CreateRule(ctx context.Context, actorID string, r Rule) (*Rule, error) {
	if err := validateRule(&r); err != nil {
		e.RecordAction(ctx, actorID, "create_rule", r.ResourceType, r.ResourceID, "", err,
			map[string]string{"subject_id": r.SubjectID})
		return nil, err
	}

	r.ID = e.newID()
	r.CreatedBy = actorID
	r.CreatedAt = e.now().UTC()
	r.Active = true
	if err := e.repo.PutRule(ctx, r); err != nil {
		err = derrors.Storage("create rule", err)
		e.RecordAction(ctx, actorID, "create_rule", r.ResourceType, r.ResourceID, "", err, nil)
		return nil, err
	}
	e.RecordAction(ctx, actorID, "create_rule", r.ResourceType, r.ResourceID, "", nil,
		map[string]string{"rule_id": r.ID, "subject_id": r.SubjectID})
	return &r, nil
}

func validateRule(r *Rule) error {
	if r.ResourceType == "" {
		return derrors.InvalidInput("rule resource type is required")
	}
	if r.SubjectID == "" {
		return derrors.InvalidInput("rule subject is required")
	}
	if r.SubjectType == "" {
		r.SubjectType = SubjectUser
	}
	if len(r.Permissions) == 0 {
		return derrors.InvalidInput("rule needs at least one permission")
	}
	for _, g := range r.Permissions {
		if !g.Action.Valid() {
			return derrors.InvalidInput("unknown permission %q", g.Action)
		}
	}
	for _, c := range r.Conditions {
		switch c.Kind {
		case CondTimeWindow, CondMemoryType, CondApprovalRequired:
		default:
			return derrors.InvalidInput("unknown condition %q", c.Kind)
		}
	}
	return nil
}

// DeactivateRule switches a rule off. Deactivating an inactive rule is a
// no-op.
func (e *Engine) DeactivateRule(ctx context.Context, actorID, ruleID string) error {
	r, err := e.repo.GetRule(ctx, ruleID)
	if err != nil {
		e.RecordAction(ctx, actorID, "deactivate_rule", "", "", "", err, map[string]string{"rule_id": ruleID})
		return err
	}
	if !r.Active {
		return nil
	}
	r.Active = false
	if err := e.repo.PutRule(ctx, r); err != nil {
		err = derrors.Storage("deactivate rule", err)
		e.RecordAction(ctx, actorID, "deactivate_rule", r.ResourceType, r.ResourceID, "", err, map[string]string{"rule_id": r.ID})
		return err
	}
	e.RecordAction(ctx, actorID, "deactivate_rule", r.ResourceType, r.ResourceID, "", nil,
		map[string]string{"rule_id": r.ID})
	return nil
}

// ListRules returns matching rules, newest first.
func (e *Engine) ListRules(ctx context.Context, f RuleFilter) ([]Rule, error) {
	all, err := e.repo.Rules(ctx)
	if err != nil {
		return nil, err
	}
	out := []Rule{}
	for _, r := range all {
		if f.match(r) {
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, byNewest)
	return out, nil
}

// ─── Sharing ─────────────────────────────────────────────────────────────────

// ShareMemory grants recipients the given actions on a memory. The sharer
// needs share or admin on the memory and must hold every action shared;
// otherwise the call returns false. No actions means read. Every outcome is
// audited.
func (e *Engine) ShareMemory(ctx context.Context, sharerID, memoryID string, recipients []string, actions []team.Action) (bool, error) {
	if len(actions) == 0 {
		actions = []team.Action{team.ActionRead}
	}
	meta := map[string]string{"recipients": strings.Join(recipients, ","), "permissions": joinActions(actions)}
	title := ""
	fail := func(err error) (bool, error) {
		e.RecordAction(ctx, sharerID, "share", ResourceMemory, memoryID, title, err, meta)
		return false, err
	}

	if err := validateActions(actions); err != nil {
		return fail(err)
	}
	if len(recipients) == 0 {
		return fail(derrors.InvalidInput("at least one recipient is required"))
	}
	mem, err := e.dir.GetTeamMemory(ctx, memoryID)
	if err != nil {
		return fail(err)
	}
	title = mem.Title
	for _, id := range recipients {
		if _, err := e.dir.GetTeamMember(ctx, id); err != nil {
			return fail(err)
		}
	}

	if !e.canShare(ctx, sharerID, memoryID) {
		fail(derrors.PermissionDenied(sharerID, "share", "memory "+memoryID))
		return false, nil
	}
	if missing, ok := e.HoldsAll(ctx, sharerID, actions, ResourceMemory, memoryID); !ok {
		fail(derrors.PermissionDenied(sharerID, "grant "+string(missing), "memory "+memoryID))
		return false, nil
	}

	grants := make([]Grant, 0, len(actions))
	for _, a := range actions {
		grants = append(grants, Grant{Action: a, Granted: true})
	}
	now := e.now().UTC()
	for _, id := range recipients {
		rule := Rule{
			ID:           e.newID(),
			ResourceType: ResourceMemory,
			ResourceID:   memoryID,
			SubjectType:  SubjectUser,
			SubjectID:    id,
			Permissions:  grants,
			CreatedBy:    sharerID,
			CreatedAt:    now,
			Active:       true,
		}
		if err := e.repo.PutRule(ctx, rule); err != nil {
			return fail(derrors.Storage("share memory", err))
		}
	}
	e.RecordAction(ctx, sharerID, "share", ResourceMemory, memoryID, title, nil, meta)
	return true, nil
}

// RevokeMemoryAccess deactivates every rule on the memory bound to the
// recipients. The revoker needs share or admin.
func (e *Engine) RevokeMemoryAccess(ctx context.Context, revokerID, memoryID string, recipients []string) (bool, error) {
	meta := map[string]string{"recipients": strings.Join(recipients, ",")}
	title := ""
	fail := func(err error) (bool, error) {
		e.RecordAction(ctx, revokerID, "revoke", ResourceMemory, memoryID, title, err, meta)
		return false, err
	}

	if len(recipients) == 0 {
		return fail(derrors.InvalidInput("at least one recipient is required"))
	}
	mem, err := e.dir.GetTeamMemory(ctx, memoryID)
	if err != nil {
		return fail(err)
	}
	title = mem.Title

	if !e.canShare(ctx, revokerID, memoryID) {
		fail(derrors.PermissionDenied(revokerID, "revoke", "memory "+memoryID))
		return false, nil
	}

	rules, err := e.repo.Rules(ctx)
	if err != nil {
		return fail(derrors.Storage("revoke memory access", err))
	}
	revoked := 0
	for _, r := range rules {
		if !r.Active || r.ResourceType != ResourceMemory || r.ResourceID != memoryID || !slices.Contains(recipients, r.SubjectID) {
			continue
		}
		r.Active = false
		if err := e.repo.PutRule(ctx, r); err != nil {
			return fail(derrors.Storage("revoke memory access", err))
		}
		revoked++
	}
	meta["rules_revoked"] = strconv.Itoa(revoked)
	e.RecordAction(ctx, revokerID, "revoke", ResourceMemory, memoryID, title, nil, meta)
	return true, nil
}

// DeactivateResourceRules switches off every active rule bound to one
// resource, for example after the resource is deleted. It returns the
// number of rules deactivated.
func (e *Engine) DeactivateResourceRules(ctx context.Context, actorID string, rt ResourceType, resourceID string) (int, error) {
	rules, err := e.repo.Rules(ctx)
	if err != nil {
		return 0, derrors.Storage("deactivate resource rules", err)
	}
	n := 0
	for _, r := range rules {
		if !r.Active || r.ResourceType != rt || r.ResourceID != resourceID {
			continue
		}
		r.Active = false
		if err := e.repo.PutRule(ctx, r); err != nil {
			return n, derrors.Storage("deactivate resource rules", err)
		}
		n++
	}
	if n > 0 {
		e.RecordAction(ctx, actorID, "deactivate_rules", rt, resourceID, "", nil,
			map[string]string{"rules_deactivated": strconv.Itoa(n)})
	}
	return n, nil
}

// HoldsAll reports whether actorID currently holds every action on the
// resource. When not, it returns the first missing action. The checks are
// not audited.
func (e *Engine) HoldsAll(ctx context.Context, actorID string, actions []team.Action, rt ResourceType, resourceID string) (team.Action, bool) {
	for _, a := range actions {
		if !e.decide(ctx, actorID, a, rt, resourceID).granted {
			return a, false
		}
	}
	return "", true
}

// canShare resolves share, then admin, without auditing the probes.
func (e *Engine) canShare(ctx context.Context, actorID, memoryID string) bool {
	return e.decide(ctx, actorID, team.ActionShare, ResourceMemory, memoryID).granted ||
		e.decide(ctx, actorID, team.ActionAdmin, ResourceMemory, memoryID).granted
}
