package team

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/HendryAvila/devmem/internal/recall"
)

// SearchTeamMemories matches every prompt token against title, content,
// context and tags of the memories memberID can see. Results are ranked
// by usage count, then success score, then recency, and capped at the
// store's search limit.
//
// A query with no usable tokens is matched as a single lowercase phrase.
func (s *Store) SearchTeamMemories(ctx context.Context, query, memberID string) ([]Memory, error) {
	tokens := recall.Tokenize(query)
	if len(tokens) == 0 {
		q := strings.ToLower(strings.TrimSpace(query))
		if q == "" {
			return []Memory{}, nil
		}
		tokens = []string{q}
	}

	all, err := s.GetTeamMemories(ctx, Filter{})
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var hits []Memory
	for _, tok := range tokens {
		for _, m := range all {
			if seen[m.ID] || !m.VisibleTo(memberID) || !matches(m, tok) {
				continue
			}
			seen[m.ID] = true
			hits = append(hits, m)
		}
	}

	slices.SortStableFunc(hits, func(a, b Memory) int {
		if c := cmp.Compare(b.UsageCount, a.UsageCount); c != 0 {
			return c
		}
		if c := cmp.Compare(b.SuccessScore, a.SuccessScore); c != 0 {
			return c
		}
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	if len(hits) > s.searchLimit {
		hits = hits[:s.searchLimit]
	}
	return nonNil(hits), nil
}

func matches(m Memory, tok string) bool {
	for _, field := range []string{m.Title, m.Content, m.Context} {
		if strings.Contains(strings.ToLower(field), tok) {
			return true
		}
	}
	for _, tag := range m.Tags {
		if strings.Contains(tag, tok) {
			return true
		}
	}
	return false
}
