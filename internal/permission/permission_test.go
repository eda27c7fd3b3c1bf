package permission_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/devmem/internal/derrors"
	"github.com/HendryAvila/devmem/internal/permission"
	"github.com/HendryAvila/devmem/internal/team"
)

// directory is an in-memory permission.Directory.
type directory struct {
	members  map[string]*team.Member
	memories map[string]*team.Memory
}

func (d *directory) GetTeamMember(_ context.Context, id string) (*team.Member, error) {
	if m, ok := d.members[id]; ok {
		return m, nil
	}
	return nil, derrors.NotFound("member", id)
}

func (d *directory) GetTeamMemory(_ context.Context, id string) (*team.Memory, error) {
	if m, ok := d.memories[id]; ok {
		return m, nil
	}
	return nil, derrors.NotFound("memory", id)
}

type fixture struct {
	dir    *directory
	repo   *permission.MemoryRepository
	engine *permission.Engine
	clock  *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	f := &fixture{
		dir: &directory{
			members: map[string]*team.Member{
				"admin": {ID: "admin", Name: "Ada", Role: team.RoleAdmin},
				"dev":   {ID: "dev", Name: "Dev", Role: team.RoleDeveloper},
				"dev2":  {ID: "dev2", Name: "Dee", Role: team.RoleDeveloper},
				"obs":   {ID: "obs", Name: "Obi", Role: team.RoleObserver},
			},
			memories: map[string]*team.Memory{
				"shared":  {ID: "shared", Title: "Shared", Type: team.TypeDecision, CreatedBy: "admin", Visibility: team.VisibilityTeamOnly},
				"private": {ID: "private", Title: "Private", Type: team.TypeLesson, CreatedBy: "dev", Visibility: team.VisibilityPrivate},
			},
		},
		repo:  permission.NewMemoryRepository(0),
		clock: &now,
	}
	seq := 0
	f.engine = permission.New(f.dir, f.repo,
		permission.WithClock(func() time.Time {
			*f.clock = f.clock.Add(time.Second)
			return *f.clock
		}),
		permission.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("id-%d", seq)
		}),
	)
	return f
}

func (f *fixture) check(who string, a team.Action, id string) bool {
	return f.engine.CheckPermission(context.Background(), who, a, permission.ResourceMemory, id)
}

func (f *fixture) lastAudit(t *testing.T) permission.AuditEntry {
	t.Helper()
	log, err := f.engine.AuditLog(context.Background(), permission.AuditFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, log, 1)
	return log[0]
}

// ─── Role matrix & visibility ────────────────────────────────────────────────

func TestCheckPermission_DeveloperOnTeamMemory(t *testing.T) {
	f := newFixture(t)

	assert.True(t, f.check("dev", team.ActionWrite, "shared"))
	assert.False(t, f.check("dev", team.ActionDelete, "shared"))

	entry := f.lastAudit(t)
	assert.Equal(t, "check:delete", entry.Action)
	assert.False(t, entry.Success)
	assert.Equal(t, "Dev", entry.ActorName)
	assert.Equal(t, "Shared", entry.ResourceName)
}

func TestCheckPermission_Observer(t *testing.T) {
	f := newFixture(t)

	assert.True(t, f.check("obs", team.ActionVote, "shared"))
	assert.True(t, f.check("obs", team.ActionComment, "shared"))
	assert.False(t, f.check("obs", team.ActionWrite, "shared"))

	denied := false
	log, err := f.engine.AuditLog(context.Background(), permission.AuditFilter{ActorID: "obs", Success: &denied})
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, "check:write", log[0].Action)
	assert.NotEmpty(t, log[0].Error)
}

func TestCheckPermission_PrivateAndCreator(t *testing.T) {
	f := newFixture(t)

	assert.True(t, f.check("dev", team.ActionDelete, "private"), "creator passes for every action")
	assert.False(t, f.check("dev2", team.ActionRead, "private"))
	assert.False(t, f.check("admin", team.ActionRead, "private"), "private blocks admins too")
	assert.True(t, f.check("admin", team.ActionDelete, "shared"))
}

func TestCheckPermission_UnknownActorOrMemory(t *testing.T) {
	f := newFixture(t)

	assert.False(t, f.check("stranger", team.ActionRead, "shared"))
	assert.False(t, f.check("admin", team.ActionRead, "missing"))
	assert.Equal(t, "memory not found", f.lastAudit(t).Error)
}

func TestCheckPermission_CapabilityOverride(t *testing.T) {
	f := newFixture(t)
	f.dir.members["limited"] = &team.Member{ID: "limited", Role: team.RoleDeveloper, Permissions: []team.Action{team.ActionRead}}

	assert.True(t, f.check("limited", team.ActionRead, "shared"))
	assert.False(t, f.check("limited", team.ActionWrite, "shared"))
}

// ─── Explicit rules ──────────────────────────────────────────────────────────

func TestCheckPermission_RulePrecedence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.CreateRule(ctx, "admin", permission.Rule{
		ResourceType: permission.ResourceMemory,
		SubjectID:    "dev",
		Permissions:  []permission.Grant{{Action: team.ActionDelete, Granted: true}},
	})
	require.NoError(t, err)
	assert.True(t, f.check("dev", team.ActionDelete, "shared"), "wildcard grant beats the role matrix")

	deny, err := f.engine.CreateRule(ctx, "admin", permission.Rule{
		ResourceType: permission.ResourceMemory,
		ResourceID:   "shared",
		SubjectID:    "dev",
		Permissions:  []permission.Grant{{Action: team.ActionDelete, Granted: false}},
	})
	require.NoError(t, err)
	assert.False(t, f.check("dev", team.ActionDelete, "shared"), "resource rule beats wildcard")

	require.NoError(t, f.engine.DeactivateRule(ctx, "admin", deny.ID))
	assert.True(t, f.check("dev", team.ActionDelete, "shared"))

	rules, err := f.engine.ListRules(ctx, permission.RuleFilter{SubjectID: "dev", ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	_, err = f.engine.CreateRule(ctx, "admin", permission.Rule{ResourceType: permission.ResourceMemory, SubjectID: "dev"})
	assert.True(t, derrors.Is(err, derrors.CodeInvalidInput))
	assert.ErrorIs(t, f.engine.DeactivateRule(ctx, "admin", "nope"), derrors.ErrNotFound)
}

func TestCheckPermission_Conditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	past := f.clock.Add(-time.Hour)
	_, err := f.engine.CreateRule(ctx, "admin", permission.Rule{
		ResourceType: permission.ResourceMemory,
		SubjectID:    "obs",
		Permissions:  []permission.Grant{{Action: team.ActionWrite, Granted: true}},
		Conditions:   []permission.Condition{{Kind: permission.CondTimeWindow, End: past}},
	})
	require.NoError(t, err)
	assert.False(t, f.check("obs", team.ActionWrite, "shared"), "expired window is skipped")

	_, err = f.engine.CreateRule(ctx, "admin", permission.Rule{
		ResourceType: permission.ResourceMemory,
		SubjectID:    "obs",
		Permissions:  []permission.Grant{{Action: team.ActionWrite, Granted: true}},
		Conditions:   []permission.Condition{{Kind: permission.CondMemoryType, MemoryType: team.TypeDecision}},
	})
	require.NoError(t, err)
	assert.True(t, f.check("obs", team.ActionWrite, "shared"))

	f.dir.memories["other"] = &team.Memory{ID: "other", Type: team.TypePattern, CreatedBy: "admin", Visibility: team.VisibilityPublic}
	assert.False(t, f.check("obs", team.ActionWrite, "other"))

	_, err = f.engine.CreateRule(ctx, "admin", permission.Rule{
		ResourceType: permission.ResourceMemory,
		SubjectID:    "obs",
		Permissions:  []permission.Grant{{Action: team.ActionWrite}},
		Conditions:   []permission.Condition{{Kind: "moon_phase"}},
	})
	assert.True(t, derrors.Is(err, derrors.CodeInvalidInput))
}

func TestCheckPermission_ExpiredRuleIgnored(t *testing.T) {
	f := newFixture(t)
	expired := f.clock.Add(-time.Minute)
	require.NoError(t, f.repo.PutRule(context.Background(), permission.Rule{
		ID:           "r1",
		ResourceType: permission.ResourceMemory,
		SubjectType:  permission.SubjectUser,
		SubjectID:    "obs",
		Permissions:  []permission.Grant{{Action: team.ActionWrite, Granted: true}},
		ExpiresAt:    &expired,
		Active:       true,
	}))
	assert.False(t, f.check("obs", team.ActionWrite, "shared"))
}

// ─── Access requests ─────────────────────────────────────────────────────────

func TestAccessRequest_Lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.engine.CreateAccessRequest(ctx, "obs", permission.ResourceMemory, "shared",
		[]team.Action{team.ActionWrite}, "need to fix a typo", nil)
	require.NoError(t, err)
	assert.Equal(t, permission.StatusPending, req.Status)
	assert.False(t, f.check("obs", team.ActionWrite, "shared"))

	approved, err := f.engine.ApproveAccessRequest(ctx, req.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, permission.StatusApproved, approved.Status)
	assert.Equal(t, "admin", approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)
	assert.True(t, f.check("obs", team.ActionWrite, "shared"))

	_, err = f.engine.ApproveAccessRequest(ctx, req.ID, "admin")
	assert.ErrorIs(t, err, derrors.ErrInvalidTransition)
	_, err = f.engine.DenyAccessRequest(ctx, req.ID, "admin", "too late")
	assert.ErrorIs(t, err, derrors.ErrInvalidTransition)

	other, err := f.engine.CreateAccessRequest(ctx, "obs", permission.ResourceMemory, "private",
		[]team.Action{team.ActionRead}, "", nil)
	require.NoError(t, err)
	denied, err := f.engine.DenyAccessRequest(ctx, other.ID, "dev", "personal notes")
	require.NoError(t, err)
	assert.Equal(t, permission.StatusDenied, denied.Status)
	assert.Equal(t, "personal notes", denied.DenyReason)
	assert.False(t, f.check("obs", team.ActionRead, "private"))

	_, err = f.engine.ApproveAccessRequest(ctx, "missing", "admin")
	assert.ErrorIs(t, err, derrors.ErrNotFound)

	pending, err := f.engine.ListAccessRequests(ctx, permission.StatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
	all, err := f.engine.ListAccessRequests(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAccessRequest_ExpiryBoundsRule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	until := f.clock.Add(10 * time.Second)
	req, err := f.engine.CreateAccessRequest(ctx, "obs", permission.ResourceMemory, "shared",
		[]team.Action{team.ActionWrite}, "", &until)
	require.NoError(t, err)
	_, err = f.engine.ApproveAccessRequest(ctx, req.ID, "admin")
	require.NoError(t, err)
	assert.True(t, f.check("obs", team.ActionWrite, "shared"))

	*f.clock = f.clock.Add(time.Minute)
	assert.False(t, f.check("obs", team.ActionWrite, "shared"))
}

func TestAccessRequest_ApprovalRequiredCondition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.CreateRule(ctx, "admin", permission.Rule{
		ResourceType: permission.ResourceMemory,
		SubjectID:    "obs",
		Permissions:  []permission.Grant{{Action: team.ActionShare, Granted: true}},
		Conditions:   []permission.Condition{{Kind: permission.CondApprovalRequired}},
	})
	require.NoError(t, err)
	assert.False(t, f.check("obs", team.ActionShare, "shared"))

	req, err := f.engine.CreateAccessRequest(ctx, "obs", permission.ResourceMemory, "shared",
		[]team.Action{team.ActionRead}, "", nil)
	require.NoError(t, err)
	_, err = f.engine.ApproveAccessRequest(ctx, req.ID, "admin")
	require.NoError(t, err)
	assert.True(t, f.check("obs", team.ActionShare, "shared"))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, permission.CanTransition(permission.StatusPending, permission.StatusApproved))
	assert.True(t, permission.CanTransition(permission.StatusPending, permission.StatusDenied))
	assert.False(t, permission.CanTransition(permission.StatusApproved, permission.StatusDenied))
	assert.False(t, permission.CanTransition(permission.StatusDenied, permission.StatusPending))
}

// ─── Sharing ─────────────────────────────────────────────────────────────────

func TestShareAndRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.engine.ShareMemory(ctx, "obs", "shared", []string{"dev"}, nil)
	require.NoError(t, err)
	assert.False(t, ok, "observers cannot share")
	entry := f.lastAudit(t)
	assert.Equal(t, "share", entry.Action)
	assert.False(t, entry.Success)

	assert.False(t, f.check("obs", team.ActionWrite, "private"))
	ok, err = f.engine.ShareMemory(ctx, "dev", "private", []string{"obs"}, []team.Action{team.ActionRead, team.ActionWrite})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, f.check("obs", team.ActionRead, "private"))
	assert.True(t, f.check("obs", team.ActionWrite, "private"))

	ok, err = f.engine.RevokeMemoryAccess(ctx, "dev2", "private", []string{"obs"})
	require.NoError(t, err)
	assert.False(t, ok, "dev2 cannot see the private memory")

	ok, err = f.engine.RevokeMemoryAccess(ctx, "dev", "private", []string{"obs"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, f.check("obs", team.ActionRead, "private"))

	_, err = f.engine.ShareMemory(ctx, "dev", "private", []string{"ghost"}, nil)
	assert.ErrorIs(t, err, derrors.ErrNotFound)
	_, err = f.engine.ShareMemory(ctx, "dev", "missing", []string{"obs"}, nil)
	assert.ErrorIs(t, err, derrors.ErrNotFound)
}

func TestShareMemory_FailuresAreAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.ShareMemory(ctx, "dev", "private", []string{"ghost"}, nil)
	assert.ErrorIs(t, err, derrors.ErrNotFound)
	entry := f.lastAudit(t)
	assert.Equal(t, "share", entry.Action)
	assert.Equal(t, "private", entry.ResourceID)
	assert.False(t, entry.Success)
	assert.Contains(t, entry.Error, "ghost")

	_, err = f.engine.RevokeMemoryAccess(ctx, "dev", "missing", []string{"obs"})
	assert.ErrorIs(t, err, derrors.ErrNotFound)
	entry = f.lastAudit(t)
	assert.Equal(t, "revoke", entry.Action)
	assert.False(t, entry.Success)

	_, err = f.engine.CreateRule(ctx, "admin", permission.Rule{ResourceType: permission.ResourceMemory, SubjectID: "obs"})
	assert.ErrorIs(t, err, derrors.ErrInvalidInput)
	entry = f.lastAudit(t)
	assert.Equal(t, "create_rule", entry.Action)
	assert.False(t, entry.Success)
}

func TestShareMemory_OnlyHeldActions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.engine.ShareMemory(ctx, "dev", "shared", []string{"dev"}, []team.Action{team.ActionDelete})
	require.NoError(t, err)
	assert.False(t, ok)
	entry := f.lastAudit(t)
	assert.Equal(t, "share", entry.Action)
	assert.False(t, entry.Success)
	assert.Contains(t, entry.Error, "grant delete")
	assert.False(t, f.check("dev", team.ActionDelete, "shared"))

	missing, held := f.engine.HoldsAll(ctx, "dev", []team.Action{team.ActionRead, team.ActionModerate}, permission.ResourceMemory, "shared")
	assert.False(t, held)
	assert.Equal(t, team.ActionModerate, missing)
	_, held = f.engine.HoldsAll(ctx, "admin", team.AllActions(), permission.ResourceMemory, "shared")
	assert.True(t, held)
}

func TestAccessRequest_NoSelfDecision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.engine.CreateAccessRequest(ctx, "dev", permission.ResourceMemory, "shared",
		[]team.Action{team.ActionDelete}, "", nil)
	require.NoError(t, err)

	_, err = f.engine.ApproveAccessRequest(ctx, req.ID, "dev")
	assert.ErrorIs(t, err, derrors.ErrPermissionDenied)
	assert.False(t, f.lastAudit(t).Success)
	_, err = f.engine.DenyAccessRequest(ctx, req.ID, "dev", "")
	assert.ErrorIs(t, err, derrors.ErrPermissionDenied)

	_, err = f.engine.ApproveAccessRequest(ctx, "missing", "admin")
	assert.ErrorIs(t, err, derrors.ErrNotFound)
	entry := f.lastAudit(t)
	assert.Equal(t, "approve_access", entry.Action)
	assert.False(t, entry.Success)

	pending, err := f.engine.ListAccessRequests(ctx, permission.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestDeactivateResourceRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.engine.ShareMemory(ctx, "admin", "shared", []string{"obs", "dev"}, []team.Action{team.ActionWrite})
	require.NoError(t, err)
	require.True(t, ok)

	n, err := f.engine.DeactivateResourceRules(ctx, "admin", permission.ResourceMemory, "shared")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, f.check("obs", team.ActionWrite, "shared"))

	live, err := f.engine.ListRules(ctx, permission.RuleFilter{ResourceID: "shared", ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, live)
}

// ─── Audit ───────────────────────────────────────────────────────────────────

func TestMemoryRepository_AuditCap(t *testing.T) {
	ctx := context.Background()
	repo := permission.NewMemoryRepository(3)
	for i := range 5 {
		require.NoError(t, repo.AppendAudit(ctx, permission.AuditEntry{ID: fmt.Sprintf("a%d", i)}))
	}
	log, err := repo.Audit(ctx)
	require.NoError(t, err)
	require.Len(t, log, 3)
	assert.Equal(t, "a2", log[0].ID, "oldest entries are dropped")
	assert.Equal(t, "a4", log[2].ID)
}

func TestRecordActionAndAuditFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.engine.RecordAction(ctx, "dev", "delete_memory", permission.ResourceMemory, "shared", "Shared", nil, nil)
	f.engine.RecordAction(ctx, "dev", "delete_memory", permission.ResourceMemory, "private", "Private",
		derrors.NotFound("memory", "private"), nil)

	log, err := f.engine.AuditLog(ctx, permission.AuditFilter{Action: "delete_memory"})
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, "private", log[0].ResourceID, "newest first")
	assert.False(t, log[0].Success)
	assert.Equal(t, "Dev", log[1].ActorName)
	assert.True(t, log[1].Timestamp.Before(log[0].Timestamp))
}
