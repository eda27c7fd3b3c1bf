package engine_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/devmem/internal/config"
	"github.com/HendryAvila/devmem/internal/derrors"
	"github.com/HendryAvila/devmem/internal/engine"
	"github.com/HendryAvila/devmem/internal/memory"
	"github.com/HendryAvila/devmem/internal/permission"
	"github.com/HendryAvila/devmem/internal/team"
)

func openEngine(t *testing.T) *engine.Engine {
	t.Helper()
	base := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	e, err := engine.Open(context.Background(), config.Default(t.TempDir()),
		engine.WithClock(func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Millisecond)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

type crew struct {
	admin, dev, obs *team.Member
}

func seedCrew(t *testing.T, e *engine.Engine) crew {
	t.Helper()
	ctx := context.Background()
	admin, err := e.AddMember(ctx, "", team.NewMember{Email: "admin@example.com", Role: team.RoleAdmin})
	require.NoError(t, err, "first member bootstraps the team")
	dev, err := e.AddMember(ctx, admin.ID, team.NewMember{Email: "dev@example.com", Role: team.RoleDeveloper})
	require.NoError(t, err)
	obs, err := e.AddMember(ctx, admin.ID, team.NewMember{Email: "obs@example.com", Role: team.RoleObserver})
	require.NoError(t, err)
	return crew{admin: admin, dev: dev, obs: obs}
}

func TestAddMember_RequiresAdminAfterBootstrap(t *testing.T) {
	e := openEngine(t)
	c := seedCrew(t, e)

	_, err := e.AddMember(context.Background(), c.dev.ID, team.NewMember{Email: "x@example.com", Role: team.RoleAdmin})
	assert.ErrorIs(t, err, derrors.ErrPermissionDenied)
}

func TestTeamMutationsAreGated(t *testing.T) {
	e := openEngine(t)
	c := seedCrew(t, e)
	ctx := context.Background()

	m, err := e.CreateMemory(ctx, c.admin.ID, team.NewMemory{Type: team.TypeDecision, Title: "Use WAL", Content: "readers never block"})
	require.NoError(t, err)
	assert.Equal(t, c.admin.ID, m.CreatedBy)

	_, err = e.CreateMemory(ctx, c.obs.ID, team.NewMemory{Type: team.TypeLesson, Title: "nope"})
	assert.ErrorIs(t, err, derrors.ErrPermissionDenied)

	title := "Use WAL mode"
	_, err = e.UpdateMemory(ctx, c.dev.ID, m.ID, team.MemoryUpdate{Title: &title})
	require.NoError(t, err, "developers can write team memories")

	assert.ErrorIs(t, e.DeleteMemory(ctx, c.dev.ID, m.ID), derrors.ErrPermissionDenied)

	score, err := e.Vote(ctx, c.obs.ID, m.ID, team.Upvote)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)

	_, err = e.Comment(ctx, c.obs.ID, m.ID, "agreed", "")
	require.NoError(t, err)

	_, err = e.TrackUsage(ctx, c.obs.ID, m.ID, "applied in CI", true)
	require.NoError(t, err)

	require.NoError(t, e.DeleteMemory(ctx, c.admin.ID, m.ID))

	audit, err := e.AuditLog(ctx, c.admin.ID, permission.AuditFilter{Action: "delete_memory"})
	require.NoError(t, err)
	require.Len(t, audit, 2)
	assert.True(t, audit[0].Success)
	assert.False(t, audit[1].Success)

	_, err = e.AuditLog(ctx, c.dev.ID, permission.AuditFilter{})
	assert.ErrorIs(t, err, derrors.ErrPermissionDenied)
}

func TestPrivateMemoryVisibility(t *testing.T) {
	e := openEngine(t)
	c := seedCrew(t, e)
	ctx := context.Background()

	m, err := e.CreateMemory(ctx, c.dev.ID, team.NewMemory{Type: team.TypeLesson, Title: "my notes", Visibility: team.VisibilityPrivate})
	require.NoError(t, err)

	_, err = e.GetMemory(ctx, c.obs.ID, m.ID)
	assert.ErrorIs(t, err, derrors.ErrPermissionDenied)

	list, err := e.ListMemories(ctx, c.obs.ID, team.Filter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	ok, err := e.Share(ctx, c.dev.ID, m.ID, []string{c.obs.ID}, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := e.GetMemory(ctx, c.obs.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "my notes", got.Title)
}

func TestAccessRequestFlow(t *testing.T) {
	e := openEngine(t)
	c := seedCrew(t, e)
	ctx := context.Background()

	m, err := e.CreateMemory(ctx, c.dev.ID, team.NewMemory{Type: team.TypePattern, Title: "retry helper"})
	require.NoError(t, err)

	req, err := e.RequestAccess(ctx, c.obs.ID, permission.ResourceMemory, m.ID, []team.Action{team.ActionWrite}, "fix docs", time.Hour)
	require.NoError(t, err)
	require.NotNil(t, req.ExpiresAt)

	_, err = e.ApproveAccess(ctx, c.obs.ID, req.ID)
	assert.ErrorIs(t, err, derrors.ErrPermissionDenied, "observers cannot approve")

	approved, err := e.ApproveAccess(ctx, c.dev.ID, req.ID)
	require.NoError(t, err)
	assert.Equal(t, permission.StatusApproved, approved.Status)

	title := "retry helper v2"
	_, err = e.UpdateMemory(ctx, c.obs.ID, m.ID, team.MemoryUpdate{Title: &title})
	require.NoError(t, err)

	_, err = e.DenyAccess(ctx, c.admin.ID, req.ID, "late")
	assert.ErrorIs(t, err, derrors.ErrInvalidTransition)
}

func TestRulesRequireAdmin(t *testing.T) {
	e := openEngine(t)
	c := seedCrew(t, e)
	ctx := context.Background()

	rule := permission.Rule{
		ResourceType: permission.ResourceMemory,
		SubjectID:    c.obs.ID,
		Permissions:  []permission.Grant{{Action: team.ActionWrite, Granted: true}},
	}
	_, err := e.CreateRule(ctx, c.dev.ID, rule)
	assert.ErrorIs(t, err, derrors.ErrPermissionDenied)

	created, err := e.CreateRule(ctx, c.admin.ID, rule)
	require.NoError(t, err)
	_, err = e.CreateMemory(ctx, c.obs.ID, team.NewMemory{Type: team.TypeLesson, Title: "now allowed"})
	require.NoError(t, err)

	require.NoError(t, e.DeactivateRule(ctx, c.admin.ID, created.ID))
	_, err = e.CreateMemory(ctx, c.obs.ID, team.NewMemory{Type: team.TypeLesson, Title: "blocked again"})
	assert.ErrorIs(t, err, derrors.ErrPermissionDenied)
}

func TestRecallContext(t *testing.T) {
	e := openEngine(t)
	ctx := context.Background()

	_, err := e.Memory.RecordConversation(ctx, "claude", []memory.MessageInput{
		{Role: memory.RoleUser, Content: "How should we cache sessions?"},
		{Role: memory.RoleAssistant, Content: "Use an LRU in front of SQLite."},
	}, memory.ConversationContext{})
	require.NoError(t, err)
	_, err = e.Memory.RecordArchitecturalDecision(ctx, memory.DecisionInput{
		Decision: "Sessions are cached in process", Rationale: "single binary",
	})
	require.NoError(t, err)

	frags, text, err := e.RecallContext(ctx, "session caching", memory.DetailStandard)
	require.NoError(t, err)
	assert.Len(t, frags, 2)
	assert.True(t, strings.Contains(text, "Sessions are cached in process"), text)
}

func TestApproveAccess_CannotEscalateToTeamAdmin(t *testing.T) {
	e := openEngine(t)
	c := seedCrew(t, e)
	ctx := context.Background()
	teamID := e.Team.TeamID()

	req, err := e.RequestAccess(ctx, c.dev.ID, permission.ResourceTeam, teamID, []team.Action{team.ActionAdmin}, "", 0)
	require.NoError(t, err)

	_, err = e.ApproveAccess(ctx, c.dev.ID, req.ID)
	assert.ErrorIs(t, err, derrors.ErrPermissionDenied, "requesters cannot approve their own request")
	_, err = e.DenyAccess(ctx, c.dev.ID, req.ID, "")
	assert.ErrorIs(t, err, derrors.ErrPermissionDenied, "requesters cannot deny their own request")

	dev2, err := e.AddMember(ctx, c.admin.ID, team.NewMember{Email: "dev2@example.com", Role: team.RoleDeveloper})
	require.NoError(t, err)
	_, err = e.ApproveAccess(ctx, dev2.ID, req.ID)
	assert.ErrorIs(t, err, derrors.ErrPermissionDenied, "a developer cannot grant admin they do not hold")

	_, err = e.CreateRule(ctx, c.dev.ID, permission.Rule{
		ResourceType: permission.ResourceMemory,
		SubjectID:    c.dev.ID,
		Permissions:  []permission.Grant{{Action: team.ActionDelete, Granted: true}},
	})
	assert.ErrorIs(t, err, derrors.ErrPermissionDenied)
	_, err = e.AuditLog(ctx, c.dev.ID, permission.AuditFilter{})
	assert.ErrorIs(t, err, derrors.ErrPermissionDenied)

	pending, err := e.Permissions.ListAccessRequests(ctx, permission.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "refused decisions leave the request pending")

	approved, err := e.ApproveAccess(ctx, c.admin.ID, req.ID)
	require.NoError(t, err, "team admins can still approve")
	assert.Equal(t, permission.StatusApproved, approved.Status)
}

func TestShare_CannotGrantUnheldAction(t *testing.T) {
	e := openEngine(t)
	c := seedCrew(t, e)
	ctx := context.Background()

	m, err := e.CreateMemory(ctx, c.admin.ID, team.NewMemory{Type: team.TypeDecision, Title: "Pin Go toolchain"})
	require.NoError(t, err)

	ok, err := e.Share(ctx, c.dev.ID, m.ID, []string{c.dev.ID}, []team.Action{team.ActionDelete})
	require.NoError(t, err)
	assert.False(t, ok, "developers cannot share delete")

	assert.ErrorIs(t, e.DeleteMemory(ctx, c.dev.ID, m.ID), derrors.ErrPermissionDenied)
	got, err := e.GetMemory(ctx, c.admin.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pin Go toolchain", got.Title)

	ok, err = e.Share(ctx, c.dev.ID, m.ID, []string{c.obs.ID}, []team.Action{team.ActionRead, team.ActionWrite})
	require.NoError(t, err)
	assert.True(t, ok, "developers may share what they hold")
}

func TestDeleteMemory_DeactivatesItsRules(t *testing.T) {
	e := openEngine(t)
	c := seedCrew(t, e)
	ctx := context.Background()

	m, err := e.CreateMemory(ctx, c.admin.ID, team.NewMemory{Type: team.TypeLesson, Title: "Flaky test triage"})
	require.NoError(t, err)
	ok, err := e.Share(ctx, c.admin.ID, m.ID, []string{c.obs.ID}, []team.Action{team.ActionWrite})
	require.NoError(t, err)
	require.True(t, ok)

	filter := permission.RuleFilter{ResourceType: permission.ResourceMemory, ResourceID: m.ID, ActiveOnly: true}
	live, err := e.Permissions.ListRules(ctx, filter)
	require.NoError(t, err)
	require.Len(t, live, 1)

	require.NoError(t, e.DeleteMemory(ctx, c.admin.ID, m.ID))

	live, err = e.Permissions.ListRules(ctx, filter)
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestFailedTeamMutationsAreAudited(t *testing.T) {
	e := openEngine(t)
	c := seedCrew(t, e)
	ctx := context.Background()

	_, err := e.ApproveAccess(ctx, c.admin.ID, "no-such-request")
	assert.ErrorIs(t, err, derrors.ErrNotFound)

	_, err = e.CreateRule(ctx, c.admin.ID, permission.Rule{ResourceType: permission.ResourceMemory})
	assert.ErrorIs(t, err, derrors.ErrInvalidInput)

	for _, action := range []string{"approve_access", "create_rule"} {
		entries, err := e.AuditLog(ctx, c.admin.ID, permission.AuditFilter{Action: action})
		require.NoError(t, err)
		require.Len(t, entries, 1, action)
		assert.False(t, entries[0].Success, action)
		assert.NotEmpty(t, entries[0].Error, action)
	}
}
