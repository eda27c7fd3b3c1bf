// Package analytics derives team and member scores from the team store.
//
// Everything here is a read-only snapshot computed on request. The
// weights and ceilings below are fixed so scores stay comparable across
// releases.
package analytics

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/HendryAvila/devmem/internal/derrors"
	"github.com/HendryAvila/devmem/internal/team"
)

const (
	// ActiveWindow is how recently a memory must have been updated to
	// count as active. Growth compares two consecutive windows.
	ActiveWindow = 30 * 24 * time.Hour

	volumeCeiling    = 100.0
	perMemberCeiling = 10.0

	productivityActivityWeight = 0.6
	productivityVolumeWeight   = 0.4
	healthSuccessWeight        = 0.7
	healthDistributionWeight   = 0.3
	collabUsageWeight          = 0.6
	collabContributorWeight    = 0.4
)

// Source is the read side of the team store.
type Source interface {
	GetTeamMembers(ctx context.Context) ([]team.Member, error)
	GetTeamMemories(ctx context.Context, f team.Filter) ([]team.Memory, error)
	ListUsage(ctx context.Context, memoryID string) ([]team.UsageEvent, error)
}

// Contribution summarizes what one member added to the team's knowledge.
type Contribution struct {
	MemberID         string     `json:"member_id"`
	Name             string     `json:"name"`
	Created          int        `json:"created"`
	Used             int        `json:"used"`
	AvgSuccessScore  float64    `json:"avg_success_score"`
	LastContribution *time.Time `json:"last_contribution,omitempty"`
}

// TeamAnalytics is a snapshot of team-wide knowledge metrics. Scores are
// in [0, 100].
type TeamAnalytics struct {
	TotalMembers    int            `json:"total_members"`
	TotalMemories   int            `json:"total_memories"`
	ActiveMemories  int            `json:"active_memories"`
	TotalUsage      int            `json:"total_usage"`
	AvgSuccessScore float64        `json:"avg_success_score"`
	GrowthRate      float64        `json:"growth_rate"`
	ByType          map[string]int `json:"by_type"`
	Contributors    []Contribution `json:"contributors"`

	Productivity    float64 `json:"productivity"`
	KnowledgeHealth float64 `json:"knowledge_health"`
	Collaboration   float64 `json:"collaboration"`
	Utilization     float64 `json:"utilization"`

	GeneratedAt time.Time `json:"generated_at"`
}

// MemberAnalytics is one member's slice of the team snapshot.
type MemberAnalytics struct {
	Contribution
	Role        team.Role `json:"role"`
	UsesMade    int       `json:"uses_made"`
	VotesCast   int       `json:"votes_cast"`
	Comments    int       `json:"comments"`
	SharePct    float64   `json:"share_pct"`
	SuccessRate float64   `json:"success_rate"`
}

// Engine computes analytics snapshots.
type Engine struct {
	src Source
	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine reading from src.
func New(src Source, opts ...Option) *Engine {
	e := &Engine{src: src, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type snapshot struct {
	members  []team.Member
	memories []team.Memory
	usage    []team.UsageEvent
}

func (e *Engine) load(ctx context.Context) (snapshot, error) {
	var s snapshot
	var err error
	if s.members, err = e.src.GetTeamMembers(ctx); err != nil {
		return s, err
	}
	if s.memories, err = e.src.GetTeamMemories(ctx, team.Filter{}); err != nil {
		return s, err
	}
	if s.usage, err = e.src.ListUsage(ctx, ""); err != nil {
		return s, err
	}
	return s, nil
}

// GetTeamAnalytics computes the team snapshot.
func (e *Engine) GetTeamAnalytics(ctx context.Context) (*TeamAnalytics, error) {
	s, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	now := e.now().UTC()
	windowStart := now.Add(-ActiveWindow)
	prevStart := windowStart.Add(-ActiveWindow)

	out := &TeamAnalytics{
		TotalMembers:  len(s.members),
		TotalMemories: len(s.memories),
		TotalUsage:    len(s.usage),
		ByType:        map[string]int{},
		GeneratedAt:   now,
	}

	var current, previous int
	var scoreSum float64
	for _, m := range s.memories {
		out.ByType[m.Type]++
		scoreSum += m.SuccessScore
		if !m.UpdatedAt.Before(windowStart) {
			out.ActiveMemories++
		}
		switch {
		case !m.CreatedAt.Before(windowStart):
			current++
		case !m.CreatedAt.Before(prevStart):
			previous++
		}
	}
	out.AvgSuccessScore = ratio(scoreSum, float64(len(s.memories)))
	out.GrowthRate = GrowthRate(current, previous)
	out.Contributors = contributions(s)

	maxCreated, withMemories := 0, 0
	for _, c := range out.Contributors {
		maxCreated = max(maxCreated, c.Created)
		if c.Created > 0 {
			withMemories++
		}
	}

	total := float64(out.TotalMemories)
	members := float64(out.TotalMembers)

	out.Productivity = clampScore(100 * (productivityActivityWeight*ratio(float64(out.ActiveMemories), total) +
		productivityVolumeWeight*min(total/volumeCeiling, 1)))

	distribution := 0.0
	if out.TotalMemories > 0 {
		distribution = 1 - float64(maxCreated)/total
	}
	out.KnowledgeHealth = clampScore(100 * (healthSuccessWeight*out.AvgSuccessScore +
		healthDistributionWeight*distribution))

	out.Collaboration = clampScore(100 * (collabUsageWeight*min(ratio(float64(out.TotalUsage), total), 1) +
		collabContributorWeight*ratio(float64(withMemories), members)))

	out.Utilization = clampScore(100 * min(ratio(total, members)/perMemberCeiling, 1))

	return out, nil
}

// GetMemberAnalytics computes one member's figures.
func (e *Engine) GetMemberAnalytics(ctx context.Context, memberID string) (*MemberAnalytics, error) {
	s, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	idx := slices.IndexFunc(s.members, func(m team.Member) bool { return m.ID == memberID })
	if idx < 0 {
		return nil, derrors.NotFound("member", memberID)
	}
	member := s.members[idx]

	out := &MemberAnalytics{Role: member.Role}
	for _, c := range contributions(s) {
		if c.MemberID == memberID {
			out.Contribution = c
		}
	}

	successes := 0
	for _, u := range s.usage {
		if u.MemberID != memberID {
			continue
		}
		out.UsesMade++
		if u.Success {
			successes++
		}
	}
	out.SuccessRate = ratio(float64(successes), float64(out.UsesMade))

	for _, m := range s.memories {
		for _, v := range m.Votes {
			if v.MemberID == memberID {
				out.VotesCast++
			}
		}
		for _, c := range m.Comments {
			if c.MemberID == memberID {
				out.Comments++
			}
		}
	}
	out.SharePct = 100 * ratio(float64(out.Created), float64(len(s.memories)))
	return out, nil
}

// contributions builds one entry per member, most prolific first.
func contributions(s snapshot) []Contribution {
	byID := make(map[string]*Contribution, len(s.members))
	out := make([]Contribution, len(s.members))
	for i, m := range s.members {
		out[i] = Contribution{MemberID: m.ID, Name: m.Name}
		byID[m.ID] = &out[i]
	}

	owner := make(map[string]string, len(s.memories))
	scores := map[string]float64{}
	for _, m := range s.memories {
		owner[m.ID] = m.CreatedBy
		c, ok := byID[m.CreatedBy]
		if !ok {
			continue
		}
		c.Created++
		scores[m.CreatedBy] += m.SuccessScore
		if c.LastContribution == nil || m.CreatedAt.After(*c.LastContribution) {
			t := m.CreatedAt
			c.LastContribution = &t
		}
	}
	for _, u := range s.usage {
		if c, ok := byID[owner[u.MemoryID]]; ok {
			c.Used++
		}
	}
	for i := range out {
		out[i].AvgSuccessScore = ratio(scores[out[i].MemberID], float64(out[i].Created))
	}

	slices.SortStableFunc(out, func(a, b Contribution) int {
		if c := cmp.Compare(b.Created, a.Created); c != 0 {
			return c
		}
		return cmp.Compare(b.Used, a.Used)
	})
	return out
}

// GrowthRate is the percentage change from previous to current. With no
// previous activity it is 100 when anything happened, else 0.
func GrowthRate(current, previous int) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return float64(current-previous) / float64(previous) * 100
}

func ratio(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func clampScore(v float64) float64 {
	return min(max(v, 0), 100)
}
