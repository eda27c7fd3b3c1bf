package recall_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/devmem/internal/memory"
	"github.com/HendryAvila/devmem/internal/recall"
)

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	tick := 0
	s := memory.New(memory.DefaultConfig(t.TempDir()), memory.WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}))
	require.NoError(t, s.Initialize(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func conversation(t *testing.T, s *memory.Store, label string, turns int) string {
	t.Helper()
	msgs := make([]memory.MessageInput, turns)
	for i := range msgs {
		role := memory.RoleUser
		if i%2 == 1 {
			role = memory.RoleAssistant
		}
		msgs[i] = memory.MessageInput{Role: role, Content: fmt.Sprintf("%s turn %d", label, i)}
	}
	id, err := s.RecordConversation(context.Background(), "claude", msgs, memory.ConversationContext{})
	require.NoError(t, err)
	return id
}

// fakeSource serves fixed slices.
type fakeSource struct {
	turns     []memory.Turn
	decisions []memory.ArchitecturalDecision
	patterns  []memory.CodePattern
}

func (f *fakeSource) RecentTurns(_ context.Context, n int) ([]memory.Turn, error) {
	if n < len(f.turns) {
		return f.turns[:n], nil
	}
	return f.turns, nil
}

func (f *fakeSource) ListDecisions(context.Context) ([]memory.ArchitecturalDecision, error) {
	return f.decisions, nil
}

func (f *fakeSource) ListPatterns(context.Context) ([]memory.CodePattern, error) {
	return f.patterns, nil
}

// ─── Recency ─────────────────────────────────────────────────────────────────

func TestRecall_AlwaysIncludesRecentTurns(t *testing.T) {
	s := newStore(t)
	conversation(t, s, "alpha", 10)
	beta := conversation(t, s, "beta", 8)
	gamma := conversation(t, s, "gamma", 6)

	frags, err := recall.New(s).Recall(context.Background(), "authentication bug")
	require.NoError(t, err)

	var convs []recall.Fragment
	total := 0
	for _, f := range frags {
		if f.Kind == recall.KindConversation {
			convs = append(convs, f)
			total += len(f.Turns)
		}
	}
	require.Len(t, convs, 3)
	assert.Equal(t, 20, total, "the 20 most recent turns must be present")
	assert.Equal(t, gamma, convs[0].SourceID, "newest conversation first")
	assert.Equal(t, beta, convs[1].SourceID)

	alpha := convs[2].Turns
	require.Len(t, alpha, 6)
	assert.Equal(t, "alpha turn 4", alpha[0].Content, "oldest turns beyond the window are dropped")
	assert.Equal(t, "alpha turn 9", alpha[5].Content, "turns are chronological inside a fragment")
}

// ─── Patterns & decisions ────────────────────────────────────────────────────

func TestRecall_PatternSurfacesByContextToken(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	id, err := s.StoreCodePattern(ctx, memory.PatternInput{
		Pattern:  "retry.Do(ctx, op, retry.Attempts(3))",
		Language: "go",
		Context:  "wrapping flaky database calls",
		Success:  true,
	})
	require.NoError(t, err)

	frags, err := recall.New(s).Recall(ctx, "Why do the database calls fail?")
	require.NoError(t, err)

	var found *recall.Fragment
	for i := range frags {
		if frags[i].Kind == recall.KindPattern && frags[i].SourceID == id {
			found = &frags[i]
		}
	}
	require.NotNil(t, found, "pattern should be recalled by a token in its context")
	assert.Equal(t, "go", found.Language)
	assert.Equal(t, 1, found.Frequency)
	require.NotNil(t, found.Success)
	assert.True(t, *found.Success)
}

func TestRecall_DecisionLimitAndOrder(t *testing.T) {
	src := &fakeSource{}
	for i := range 7 {
		src.decisions = append(src.decisions, memory.ArchitecturalDecision{
			ID:        fmt.Sprintf("d%d", i),
			Decision:  fmt.Sprintf("decision %d about the cache layer", i),
			Timestamp: time.Date(2025, 1, 10-i, 0, 0, 0, 0, time.UTC),
		})
	}

	frags, err := recall.New(src).Recall(context.Background(), "cache")
	require.NoError(t, err)
	require.Len(t, frags, 5)
	for i, f := range frags {
		assert.Equal(t, recall.KindDecision, f.Kind)
		assert.Equal(t, fmt.Sprintf("d%d", i), f.SourceID, "decisions keep newest-first order")
	}
}

func TestRecall_MergeOrderDedupeAndCap(t *testing.T) {
	src := &fakeSource{
		turns: []memory.Turn{
			{Message: memory.Message{ID: "m1", ConversationID: "c1", Role: memory.RoleUser, Content: "hello"}},
		},
		decisions: []memory.ArchitecturalDecision{
			{ID: "d1", Decision: "Use SQLite for storage and keep one file per project root directory"},
			{ID: "d2", Decision: "Use SQLite for storage and keep one file per project root directory, again"},
		},
		patterns: []memory.CodePattern{
			{ID: "p1", Pattern: "storage adapter", Frequency: 3},
		},
	}

	frags, err := recall.New(src).Recall(context.Background(), "storage")
	require.NoError(t, err)
	require.Len(t, frags, 3)
	assert.Equal(t, recall.KindConversation, frags[0].Kind)
	assert.Equal(t, "d1", frags[1].SourceID, "d2 shares the first 50 characters and is dropped")
	assert.Equal(t, recall.KindPattern, frags[2].Kind)

	for i := range 30 {
		src.patterns = append(src.patterns, memory.CodePattern{
			ID:      fmt.Sprintf("px%d", i),
			Pattern: fmt.Sprintf("storage pattern variant number %02d with a long shared suffix", i),
		})
	}
	frags, err = recall.New(src, recall.WithLimits(0, 50, 0)).Recall(context.Background(), "storage")
	require.NoError(t, err)
	assert.Len(t, frags, recall.DefaultMaxFragments)
}

func TestRecall_NoTokensOnlyRecency(t *testing.T) {
	src := &fakeSource{
		turns:     []memory.Turn{{Message: memory.Message{ConversationID: "c1", Content: "hi"}}},
		decisions: []memory.ArchitecturalDecision{{ID: "d1", Decision: "the and for"}},
	}
	frags, err := recall.New(src).Recall(context.Background(), "the and for ?!")
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.Equal(t, recall.KindConversation, frags[0].Kind)
}

// ─── Tokenizer & formatting ──────────────────────────────────────────────────

func TestTokenize(t *testing.T) {
	tests := []struct {
		prompt string
		want   []string
	}{
		{"authentication bug", []string{"authentication", "bug"}},
		{"Why does the Login() fail?", []string{"login", "fail"}},
		{"db is ok", nil},
		{"cache, cache; CACHE!", []string{"cache"}},
		{"don't retry", []string{"dont", "retry"}},
	}
	for _, tt := range tests {
		t.Run(tt.prompt, func(t *testing.T) {
			assert.Equal(t, tt.want, recall.Tokenize(tt.prompt))
		})
	}
}

func TestFormat(t *testing.T) {
	assert.Empty(t, recall.Format(nil, memory.DetailStandard))

	ok := true
	out := recall.Format([]recall.Fragment{
		{Kind: recall.KindConversation, SourceID: "c1", Turns: []memory.Turn{
			{Message: memory.Message{Role: memory.RoleUser, Content: "how do we migrate?"}},
		}},
		{Kind: recall.KindDecision, Content: "adopt WAL", Rationale: "readers during writes"},
		{Kind: recall.KindPattern, Content: "db.SetMaxOpenConns(1)", Language: "go", Success: &ok, Frequency: 1},
	}, memory.DetailStandard)

	for _, want := range []string{"Recent Conversations", "how do we migrate?", "adopt WAL", "readers during writes", "worked"} {
		assert.True(t, strings.Contains(out, want), "missing %q in:\n%s", want, out)
	}
}
