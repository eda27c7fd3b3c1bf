package team_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/devmem/internal/derrors"
	"github.com/HendryAvila/devmem/internal/memory"
	"github.com/HendryAvila/devmem/internal/team"
)

type fixture struct {
	mem  *memory.Store
	team *team.Store
}

func newFixture(t *testing.T, opts ...team.Option) fixture {
	t.Helper()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	mem := memory.New(memory.DefaultConfig(t.TempDir()), memory.WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}))
	ctx := context.Background()
	require.NoError(t, mem.Initialize(ctx))
	t.Cleanup(func() { _ = mem.Close() })

	ts := team.New(mem, "team-1", opts...)
	require.NoError(t, ts.Migrate(ctx))
	return fixture{mem: mem, team: ts}
}

func (f fixture) member(t *testing.T, email string, role team.Role) *team.Member {
	t.Helper()
	m, err := f.team.AddTeamMember(context.Background(), team.NewMember{Email: email, Role: role})
	require.NoError(t, err)
	return m
}

func (f fixture) memory(t *testing.T, by, title string, vis team.Visibility) *team.Memory {
	t.Helper()
	m, err := f.team.CreateTeamMemory(context.Background(), team.NewMemory{
		Type:       team.TypeBestPractice,
		Title:      title,
		Content:    "content of " + title,
		CreatedBy:  by,
		Visibility: vis,
	})
	require.NoError(t, err)
	return m
}

// ─── Members ─────────────────────────────────────────────────────────────────

func TestAddTeamMember_DefaultsAndUniqueEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dev := f.member(t, "Dev@Example.com", team.RoleDeveloper)
	assert.Equal(t, "dev@example.com", dev.Email)
	assert.Equal(t, team.DefaultCapabilities(team.RoleDeveloper), dev.Permissions)
	assert.False(t, dev.Can(team.ActionDelete))

	_, err := f.team.AddTeamMember(ctx, team.NewMember{Email: "dev@example.com", Role: team.RoleObserver})
	assert.True(t, derrors.Is(err, derrors.CodeInvalidInput), "duplicate email: %v", err)

	_, err = f.team.AddTeamMember(ctx, team.NewMember{Email: "x@example.com", Role: "owner"})
	assert.True(t, derrors.Is(err, derrors.CodeInvalidInput))

	f.member(t, "obs@example.com", team.RoleObserver)
	members, err := f.team.GetTeamMembers(ctx)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, dev.ID, members[0].ID, "join order")

	_, err = f.team.GetTeamMember(ctx, "nobody")
	assert.ErrorIs(t, err, derrors.ErrNotFound)
}

// ─── Memories ────────────────────────────────────────────────────────────────

func TestCreateTeamMemory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dev := f.member(t, "dev@example.com", team.RoleDeveloper)

	m := f.memory(t, dev.ID, "Wrap errors with %w", "")
	assert.Equal(t, team.VisibilityTeamOnly, m.Visibility)
	assert.Equal(t, 0.5, m.SuccessScore)
	assert.Zero(t, m.UsageCount)

	got, err := f.team.GetTeamMemory(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Title, got.Title)
	assert.Empty(t, got.Votes)
	assert.Empty(t, got.Comments)

	_, err = f.team.CreateTeamMemory(ctx, team.NewMemory{Type: "lesson", Title: "x", CreatedBy: "ghost"})
	assert.ErrorIs(t, err, derrors.ErrNotFound)
}

func TestGetTeamMemories_FilterAndOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.member(t, "a@example.com", team.RoleDeveloper)
	b := f.member(t, "b@example.com", team.RoleDeveloper)

	first := f.memory(t, a.ID, "first", team.VisibilityPublic)
	f.memory(t, b.ID, "second", team.VisibilityTeamOnly)
	third := f.memory(t, a.ID, "third", team.VisibilityPublic)

	all, err := f.team.GetTeamMemories(ctx, team.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, third.ID, all[0].ID, "newest first")

	byA, err := f.team.GetTeamMemories(ctx, team.Filter{CreatedBy: a.ID, Visibility: team.VisibilityPublic})
	require.NoError(t, err)
	require.Len(t, byA, 2)
	assert.Equal(t, first.ID, byA[1].ID)

	none, err := f.team.GetTeamMemories(ctx, team.Filter{Type: "decision"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestUpdateAndDeleteTeamMemory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dev := f.member(t, "dev@example.com", team.RoleDeveloper)
	m := f.memory(t, dev.ID, "draft", team.VisibilityPrivate)

	title := "final"
	pub := team.VisibilityPublic
	up, err := f.team.UpdateTeamMemory(ctx, m.ID, team.MemoryUpdate{Title: &title, Visibility: &pub, Tags: []string{"Go", "go", " errors "}})
	require.NoError(t, err)
	assert.Equal(t, "final", up.Title)
	assert.Equal(t, []string{"go", "errors"}, up.Tags)
	assert.True(t, up.UpdatedAt.After(m.UpdatedAt))

	_, err = f.team.VoteOnMemory(ctx, m.ID, dev.ID, team.Upvote)
	require.NoError(t, err)
	_, err = f.team.TrackMemoryUsage(ctx, m.ID, dev.ID, "", true)
	require.NoError(t, err)

	require.NoError(t, f.team.DeleteTeamMemory(ctx, m.ID))
	_, err = f.team.GetTeamMemory(ctx, m.ID)
	assert.ErrorIs(t, err, derrors.ErrNotFound)

	usage, err := f.team.ListUsage(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, usage)

	assert.ErrorIs(t, f.team.DeleteTeamMemory(ctx, m.ID), derrors.ErrNotFound)
}

// ─── Votes ───────────────────────────────────────────────────────────────────

func TestVoteOnMemory_SuccessScore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author := f.member(t, "author@example.com", team.RoleDeveloper)
	m := f.memory(t, author.ID, "prefer table tests", team.VisibilityTeamOnly)

	var voters []*team.Member
	for i := range 4 {
		voters = append(voters, f.member(t, fmt.Sprintf("v%d@example.com", i), team.RoleObserver))
	}
	var score float64
	var err error
	for i, v := range voters {
		kind := team.Upvote
		if i == 3 {
			kind = team.Downvote
		}
		score, err = f.team.VoteOnMemory(ctx, m.ID, v.ID, kind)
		require.NoError(t, err)
	}
	assert.InDelta(t, 0.75, score, 1e-9)

	got, err := f.team.GetTeamMemory(ctx, m.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, got.SuccessScore, 1e-9)
	assert.Len(t, got.Votes, 4)
}

func TestVoteOnMemory_UpsertIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dev := f.member(t, "dev@example.com", team.RoleDeveloper)
	m := f.memory(t, dev.ID, "idempotent vote", team.VisibilityPublic)

	for range 3 {
		score, err := f.team.VoteOnMemory(ctx, m.ID, dev.ID, team.Upvote)
		require.NoError(t, err)
		assert.Equal(t, 1.0, score)
	}
	score, err := f.team.VoteOnMemory(ctx, m.ID, dev.ID, team.Downvote)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score, "a changed vote replaces the previous one")

	got, err := f.team.GetTeamMemory(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, got.Votes, 1)
	assert.Equal(t, team.Downvote, got.Votes[0].Vote)

	_, err = f.team.VoteOnMemory(ctx, m.ID, dev.ID, "sideways")
	assert.True(t, derrors.Is(err, derrors.CodeInvalidInput))
	_, err = f.team.VoteOnMemory(ctx, "missing", dev.ID, team.Upvote)
	assert.ErrorIs(t, err, derrors.ErrNotFound)
}

func TestSuccessScore(t *testing.T) {
	assert.Equal(t, 0.5, team.SuccessScore(0, 0))
	assert.Equal(t, 0.75, team.SuccessScore(3, 4))
	assert.Equal(t, 0.0, team.SuccessScore(0, 2))
}

// ─── Comments ────────────────────────────────────────────────────────────────

func TestComments_Threaded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dev := f.member(t, "dev@example.com", team.RoleDeveloper)
	obs := f.member(t, "obs@example.com", team.RoleObserver)
	m := f.memory(t, dev.ID, "discussed", team.VisibilityTeamOnly)
	other := f.memory(t, dev.ID, "elsewhere", team.VisibilityTeamOnly)

	root, err := f.team.AddMemoryComment(ctx, m.ID, obs.ID, "why?", "")
	require.NoError(t, err)
	reply, err := f.team.AddMemoryComment(ctx, m.ID, dev.ID, "because", root.ID)
	require.NoError(t, err)
	_, err = f.team.AddMemoryComment(ctx, m.ID, obs.ID, "thanks", reply.ID)
	require.NoError(t, err)
	second, err := f.team.AddMemoryComment(ctx, m.ID, obs.ID, "another topic", "")
	require.NoError(t, err)

	flat, err := f.team.GetMemoryComments(ctx, m.ID, false)
	require.NoError(t, err)
	require.Len(t, flat, 4)
	assert.Equal(t, root.ID, flat[0].ID, "chronological")

	threads, err := f.team.GetMemoryComments(ctx, m.ID, true)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, root.ID, threads[0].ID)
	assert.Equal(t, second.ID, threads[1].ID)
	require.Len(t, threads[0].Replies, 1)
	require.Len(t, threads[0].Replies[0].Replies, 1)
	assert.Equal(t, "thanks", threads[0].Replies[0].Replies[0].Content)

	_, err = f.team.AddMemoryComment(ctx, other.ID, dev.ID, "cross", root.ID)
	assert.True(t, derrors.Is(err, derrors.CodeInvalidInput), "parent on another memory: %v", err)
	_, err = f.team.AddMemoryComment(ctx, m.ID, dev.ID, "orphan", "no-such-comment")
	assert.ErrorIs(t, err, derrors.ErrNotFound)
}

// ─── Usage ───────────────────────────────────────────────────────────────────

func TestTrackMemoryUsage_Increments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dev := f.member(t, "dev@example.com", team.RoleDeveloper)
	m := f.memory(t, dev.ID, "used", team.VisibilityPublic)

	for i := range 3 {
		_, err := f.team.TrackMemoryUsage(ctx, m.ID, dev.ID, fmt.Sprintf("run %d", i), i != 1)
		require.NoError(t, err)
	}
	got, err := f.team.GetTeamMemory(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.UsageCount)

	events, err := f.team.ListUsage(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.False(t, events[1].Success)
	assert.Equal(t, "run 2", events[2].Context)

	_, err = f.team.TrackMemoryUsage(ctx, "missing", dev.ID, "", true)
	assert.ErrorIs(t, err, derrors.ErrNotFound)
}

// ─── Search ──────────────────────────────────────────────────────────────────

func TestSearchTeamMemories_VisibilityAndRanking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.member(t, "alice@example.com", team.RoleDeveloper)
	bob := f.member(t, "bob@example.com", team.RoleDeveloper)

	public := f.memory(t, alice.ID, "retry database calls", team.VisibilityPublic)
	shared := f.memory(t, bob.ID, "database migrations", team.VisibilityTeamOnly)
	private := f.memory(t, alice.ID, "database passwords live in vault", team.VisibilityPrivate)
	f.memory(t, alice.ID, "unrelated logging tip", team.VisibilityPublic)

	_, err := f.team.TrackMemoryUsage(ctx, shared.ID, bob.ID, "", true)
	require.NoError(t, err)

	got, err := f.team.SearchTeamMemories(ctx, "database", bob.ID)
	require.NoError(t, err)
	require.Len(t, got, 2, "bob must not see alice's private memory")
	assert.Equal(t, shared.ID, got[0].ID, "higher usage ranks first")
	assert.Equal(t, public.ID, got[1].ID)

	got, err = f.team.SearchTeamMemories(ctx, "DATABASE", alice.ID)
	require.NoError(t, err)
	ids := []string{}
	for _, m := range got {
		ids = append(ids, m.ID)
	}
	assert.Contains(t, ids, private.ID)
	assert.Len(t, got, 3)

	got, err = f.team.SearchTeamMemories(ctx, "   ", alice.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchTeamMemories_LimitAndTags(t *testing.T) {
	f := newFixture(t, team.WithSearchLimit(2))
	ctx := context.Background()
	dev := f.member(t, "dev@example.com", team.RoleDeveloper)

	for i := range 4 {
		_, err := f.team.CreateTeamMemory(ctx, team.NewMemory{
			Type: team.TypeLesson, Title: fmt.Sprintf("lesson %d", i), CreatedBy: dev.ID, Tags: []string{"Concurrency"},
		})
		require.NoError(t, err)
	}
	got, err := f.team.SearchTeamMemories(ctx, "concurrency", dev.ID)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

// ─── Clear ───────────────────────────────────────────────────────────────────

func TestClearAllMemory_RemovesProjectBoundTeamMemories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dev := f.member(t, "dev@example.com", team.RoleDeveloper)
	projectID, err := f.mem.ProjectID()
	require.NoError(t, err)

	bound, err := f.team.CreateTeamMemory(ctx, team.NewMemory{
		Type: team.TypeDecision, Title: "bound", CreatedBy: dev.ID, ProjectID: projectID,
	})
	require.NoError(t, err)
	_, err = f.team.VoteOnMemory(ctx, bound.ID, dev.ID, team.Upvote)
	require.NoError(t, err)
	free := f.memory(t, dev.ID, "unbound", team.VisibilityPublic)

	require.NoError(t, f.mem.ClearAllMemory(ctx))
	require.NoError(t, f.mem.ClearAllMemory(ctx), "clear is idempotent")

	_, err = f.team.GetTeamMemory(ctx, bound.ID)
	assert.ErrorIs(t, err, derrors.ErrNotFound)
	_, err = f.team.GetTeamMemory(ctx, free.ID)
	assert.NoError(t, err)

	members, err := f.team.GetTeamMembers(ctx)
	require.NoError(t, err)
	assert.Len(t, members, 1, "members are team scoped, not project scoped")
}
