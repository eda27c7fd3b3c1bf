package team

import (
	"context"
	"database/sql"
	"strings"

	"github.com/HendryAvila/devmem/internal/derrors"
	"github.com/HendryAvila/devmem/internal/memory"
)

// ─── Votes ───────────────────────────────────────────────────────────────────

// VoteOnMemory records or replaces memberID's vote and returns the
// recomputed success score: upvotes over total votes, 0.5 with none.
func (s *Store) VoteOnMemory(ctx context.Context, memoryID, memberID string, kind VoteKind) (float64, error) {
	if !kind.Valid() {
		return 0, derrors.InvalidInput("unknown vote %q", kind)
	}
	if _, err := s.GetTeamMember(ctx, memberID); err != nil {
		return 0, err
	}
	if err := s.requireMemory(ctx, memoryID); err != nil {
		return 0, err
	}

	var score float64
	err := s.mem.WithTx(ctx, "vote on memory", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memory_votes (memory_id, member_id, vote, timestamp) VALUES (?, ?, ?, ?)
			 ON CONFLICT(memory_id, member_id) DO UPDATE SET vote = excluded.vote, timestamp = excluded.timestamp`,
			memoryID, memberID, string(kind), memory.FormatTime(s.mem.Now()),
		); err != nil {
			return err
		}
		var up, total int
		if err := tx.QueryRowContext(ctx,
			`SELECT ifnull(SUM(CASE WHEN vote = 'upvote' THEN 1 ELSE 0 END), 0), COUNT(*)
			 FROM memory_votes WHERE memory_id = ?`, memoryID,
		).Scan(&up, &total); err != nil {
			return err
		}
		score = SuccessScore(up, total)
		_, err := tx.ExecContext(ctx,
			`UPDATE team_memories SET success_score = ? WHERE id = ?`, score, memoryID)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.logger.Debug("memory vote", "memory_id", memoryID, "member_id", memberID, "vote", kind, "score", score)
	return score, nil
}

// SuccessScore is the share of upvotes, or 0.5 when nobody voted.
func SuccessScore(up, total int) float64 {
	if total == 0 {
		return 0.5
	}
	return float64(up) / float64(total)
}

func (s *Store) queryVotes(ctx context.Context, db *sql.DB, where string, args ...any) ([]Vote, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT memory_id, member_id, vote, timestamp FROM memory_votes `+where+
			` ORDER BY timestamp ASC, rowid ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Vote
	for rows.Next() {
		var v Vote
		var kind, ts string
		if err := rows.Scan(&v.MemoryID, &v.MemberID, &kind, &ts); err != nil {
			return nil, err
		}
		v.Vote = VoteKind(kind)
		v.Timestamp = memory.ParseTime(ts)
		out = append(out, v)
	}
	return out, rows.Err()
}

// ─── Comments ────────────────────────────────────────────────────────────────

// AddMemoryComment attaches a comment to a memory. A non-empty parentID
// must name a comment on the same memory.
func (s *Store) AddMemoryComment(ctx context.Context, memoryID, memberID, content, parentID string) (*Comment, error) {
	if strings.TrimSpace(content) == "" {
		return nil, derrors.InvalidInput("comment content is required")
	}
	if _, err := s.GetTeamMember(ctx, memberID); err != nil {
		return nil, err
	}
	if err := s.requireMemory(ctx, memoryID); err != nil {
		return nil, err
	}
	db, err := s.mem.DB()
	if err != nil {
		return nil, err
	}
	if parentID != "" {
		var owner string
		err := db.QueryRowContext(ctx,
			`SELECT memory_id FROM memory_comments WHERE id = ?`, parentID).Scan(&owner)
		switch {
		case err == sql.ErrNoRows:
			return nil, derrors.NotFound("comment", parentID)
		case err != nil:
			return nil, derrors.Storage("add memory comment", err)
		case owner != memoryID:
			return nil, derrors.InvalidInput("parent comment %s belongs to another memory", parentID)
		}
	}

	c := &Comment{
		ID:        s.mem.NewID(),
		MemoryID:  memoryID,
		MemberID:  memberID,
		Content:   content,
		Timestamp: s.mem.Now(),
		ParentID:  parentID,
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO memory_comments (id, memory_id, member_id, content, timestamp, parent_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.MemoryID, c.MemberID, c.Content, memory.FormatTime(c.Timestamp), nullable(c.ParentID),
	); err != nil {
		return nil, derrors.Storage("add memory comment", err)
	}
	return c, nil
}

// GetMemoryComments returns a memory's comments oldest first. With
// threaded set, replies are nested under their parents and only roots
// are returned at the top level.
func (s *Store) GetMemoryComments(ctx context.Context, memoryID string, threaded bool) ([]Comment, error) {
	if err := s.requireMemory(ctx, memoryID); err != nil {
		return nil, err
	}
	db, err := s.mem.DB()
	if err != nil {
		return nil, err
	}
	flat, err := s.queryComments(ctx, db, `WHERE memory_id = ?`, memoryID)
	if err != nil {
		return nil, derrors.Storage("get memory comments", err)
	}
	if !threaded {
		return nonNil(flat), nil
	}
	return Thread(flat), nil
}

// Thread nests comments under their parents. Comments whose parent is
// missing are treated as roots. Input order is kept within each level.
func Thread(flat []Comment) []Comment {
	children := map[string][]Comment{}
	ids := make(map[string]bool, len(flat))
	for _, c := range flat {
		ids[c.ID] = true
	}
	var roots []Comment
	for _, c := range flat {
		if c.ParentID != "" && ids[c.ParentID] {
			children[c.ParentID] = append(children[c.ParentID], c)
			continue
		}
		roots = append(roots, c)
	}
	var build func(c Comment) Comment
	build = func(c Comment) Comment {
		for _, r := range children[c.ID] {
			c.Replies = append(c.Replies, build(r))
		}
		return c
	}
	out := make([]Comment, 0, len(roots))
	for _, r := range roots {
		out = append(out, build(r))
	}
	return out
}

func (s *Store) queryComments(ctx context.Context, db *sql.DB, where string, args ...any) ([]Comment, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, memory_id, member_id, content, timestamp, ifnull(parent_id, '') FROM memory_comments `+where+
			` ORDER BY timestamp ASC, rowid ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Comment
	for rows.Next() {
		var c Comment
		var ts string
		if err := rows.Scan(&c.ID, &c.MemoryID, &c.MemberID, &c.Content, &ts, &c.ParentID); err != nil {
			return nil, err
		}
		c.Timestamp = memory.ParseTime(ts)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ─── Usage ───────────────────────────────────────────────────────────────────

// TrackMemoryUsage appends a usage event and increments the memory's
// usage count in one transaction.
func (s *Store) TrackMemoryUsage(ctx context.Context, memoryID, memberID, usageContext string, success bool) (*UsageEvent, error) {
	if _, err := s.GetTeamMember(ctx, memberID); err != nil {
		return nil, err
	}
	if err := s.requireMemory(ctx, memoryID); err != nil {
		return nil, err
	}
	ev := &UsageEvent{
		ID:        s.mem.NewID(),
		MemoryID:  memoryID,
		MemberID:  memberID,
		Timestamp: s.mem.Now(),
		Context:   usageContext,
		Success:   success,
	}
	err := s.mem.WithTx(ctx, "track memory usage", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memory_usage (id, memory_id, member_id, timestamp, context, success)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			ev.ID, ev.MemoryID, ev.MemberID, memory.FormatTime(ev.Timestamp), ev.Context, boolInt(success),
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE team_memories SET usage_count = usage_count + 1 WHERE id = ?`, memoryID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// ListUsage returns usage events for the team's memories, oldest first.
// An empty memoryID lists events for every memory.
func (s *Store) ListUsage(ctx context.Context, memoryID string) ([]UsageEvent, error) {
	db, err := s.mem.DB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		`SELECT u.id, u.memory_id, u.member_id, u.timestamp, u.context, u.success
		 FROM memory_usage u JOIN team_memories m ON m.id = u.memory_id
		 WHERE m.team_id = ? AND (? = '' OR u.memory_id = ?)
		 ORDER BY u.timestamp ASC, u.rowid ASC`, s.teamID, memoryID, memoryID)
	if err != nil {
		return nil, derrors.Storage("list usage", err)
	}
	defer func() { _ = rows.Close() }()

	out := []UsageEvent{}
	for rows.Next() {
		var ev UsageEvent
		var ts string
		var ok int
		if err := rows.Scan(&ev.ID, &ev.MemoryID, &ev.MemberID, &ts, &ev.Context, &ok); err != nil {
			return nil, derrors.Storage("list usage", err)
		}
		ev.Timestamp = memory.ParseTime(ts)
		ev.Success = ok != 0
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, derrors.Storage("list usage", err)
	}
	return out, nil
}

func (s *Store) requireMemory(ctx context.Context, id string) error {
	db, err := s.mem.DB()
	if err != nil {
		return err
	}
	var n int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM team_memories WHERE team_id = ? AND id = ?`, s.teamID, id,
	).Scan(&n); err != nil {
		return derrors.Storage("lookup memory", err)
	}
	if n == 0 {
		return derrors.NotFound("memory", id)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
