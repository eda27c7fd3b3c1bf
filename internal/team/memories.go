package team

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/HendryAvila/devmem/internal/derrors"
	"github.com/HendryAvila/devmem/internal/memory"
)

const memoryColumns = `id, team_id, type, title, content, context, created_by, created_at, updated_at,
	tags, visibility, ifnull(project_id, ''), ifnull(metadata, ''), usage_count, success_score`

// CreateTeamMemory stores a new shared memory with a neutral success
// score. The creator must be a member of the team.
func (s *Store) CreateTeamMemory(ctx context.Context, in NewMemory) (*Memory, error) {
	db, err := s.mem.DB()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, derrors.InvalidInput("memory title is required")
	}
	if strings.TrimSpace(in.Type) == "" {
		return nil, derrors.InvalidInput("memory type is required")
	}
	vis := in.Visibility
	if vis == "" {
		vis = VisibilityTeamOnly
	}
	if !vis.Valid() {
		return nil, derrors.InvalidInput("unknown visibility %q", vis)
	}
	if _, err := s.GetTeamMember(ctx, in.CreatedBy); err != nil {
		return nil, err
	}

	now := s.mem.Now()
	m := &Memory{
		ID:           s.mem.NewID(),
		TeamID:       s.teamID,
		Type:         in.Type,
		Title:        in.Title,
		Content:      in.Content,
		Context:      in.Context,
		CreatedBy:    in.CreatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
		Tags:         normalizeTags(in.Tags),
		Visibility:   vis,
		ProjectID:    in.ProjectID,
		Metadata:     in.Metadata,
		SuccessScore: 0.5,
		Votes:        []Vote{},
		Comments:     []Comment{},
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO team_memories (id, team_id, type, title, content, context, created_by, created_at, updated_at,
		                            tags, visibility, project_id, metadata, usage_count, success_score)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0.5)`,
		m.ID, m.TeamID, m.Type, m.Title, m.Content, m.Context, m.CreatedBy,
		memory.FormatTime(now), memory.FormatTime(now),
		encodeJSON(m.Tags), string(m.Visibility), nullable(m.ProjectID), nullableRaw(m.Metadata),
	); err != nil {
		return nil, derrors.Storage("create team memory", err)
	}

	s.logger.Info("team memory created",
		"memory_id", m.ID, "type", m.Type, "visibility", m.Visibility, "created_by", m.CreatedBy)
	return m, nil
}

// GetTeamMemory returns one memory with votes and comments.
func (s *Store) GetTeamMemory(ctx context.Context, id string) (*Memory, error) {
	db, err := s.mem.DB()
	if err != nil {
		return nil, err
	}
	out, err := s.queryMemories(ctx, db, `WHERE team_id = ? AND id = ?`, s.teamID, id)
	if err != nil {
		return nil, derrors.Storage("get team memory", err)
	}
	if len(out) == 0 {
		return nil, derrors.NotFound("memory", id)
	}
	return &out[0], nil
}

// GetTeamMemories returns memories matching f, newest first, each with
// its votes and comments.
func (s *Store) GetTeamMemories(ctx context.Context, f Filter) ([]Memory, error) {
	db, err := s.mem.DB()
	if err != nil {
		return nil, err
	}
	where := `WHERE team_id = ?`
	args := []any{s.teamID}
	if f.Type != "" {
		where += ` AND type = ?`
		args = append(args, f.Type)
	}
	if f.CreatedBy != "" {
		where += ` AND created_by = ?`
		args = append(args, f.CreatedBy)
	}
	if f.ProjectID != "" {
		where += ` AND project_id = ?`
		args = append(args, f.ProjectID)
	}
	if f.Visibility != "" {
		where += ` AND visibility = ?`
		args = append(args, string(f.Visibility))
	}
	where += ` ORDER BY created_at DESC, rowid DESC`

	out, err := s.queryMemories(ctx, db, where, args...)
	if err != nil {
		return nil, derrors.Storage("get team memories", err)
	}
	return nonNil(out), nil
}

// UpdateTeamMemory applies u to a memory and bumps its updated time.
func (s *Store) UpdateTeamMemory(ctx context.Context, id string, u MemoryUpdate) (*Memory, error) {
	cur, err := s.GetTeamMemory(ctx, id)
	if err != nil {
		return nil, err
	}
	db, err := s.mem.DB()
	if err != nil {
		return nil, err
	}

	if u.Title != nil {
		if strings.TrimSpace(*u.Title) == "" {
			return nil, derrors.InvalidInput("memory title is required")
		}
		cur.Title = *u.Title
	}
	if u.Content != nil {
		cur.Content = *u.Content
	}
	if u.Context != nil {
		cur.Context = *u.Context
	}
	if u.Tags != nil {
		cur.Tags = normalizeTags(u.Tags)
	}
	if u.Visibility != nil {
		if !u.Visibility.Valid() {
			return nil, derrors.InvalidInput("unknown visibility %q", *u.Visibility)
		}
		cur.Visibility = *u.Visibility
	}
	if u.Metadata != nil {
		cur.Metadata = u.Metadata
	}
	cur.UpdatedAt = s.mem.Now()

	if _, err := db.ExecContext(ctx,
		`UPDATE team_memories
		 SET title = ?, content = ?, context = ?, tags = ?, visibility = ?, metadata = ?, updated_at = ?
		 WHERE team_id = ? AND id = ?`,
		cur.Title, cur.Content, cur.Context, encodeJSON(cur.Tags), string(cur.Visibility),
		nullableRaw(cur.Metadata), memory.FormatTime(cur.UpdatedAt), s.teamID, id,
	); err != nil {
		return nil, derrors.Storage("update team memory", err)
	}
	return cur, nil
}

// DeleteTeamMemory removes a memory with its votes, comments and usage.
func (s *Store) DeleteTeamMemory(ctx context.Context, id string) error {
	if _, err := s.GetTeamMemory(ctx, id); err != nil {
		return err
	}
	return s.mem.WithTx(ctx, "delete team memory", func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM memory_votes WHERE memory_id = ?`,
			`DELETE FROM memory_comments WHERE memory_id = ?`,
			`DELETE FROM memory_usage WHERE memory_id = ?`,
			`DELETE FROM team_memories WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// queryMemories reads memories, closes the cursor, then attaches votes
// and comments.
func (s *Store) queryMemories(ctx context.Context, db *sql.DB, where string, args ...any) ([]Memory, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+memoryColumns+` FROM team_memories `+where, args...)
	if err != nil {
		return nil, err
	}
	var out []Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if err := s.attach(ctx, db, out); err != nil {
		return nil, err
	}
	return out, nil
}

func scanMemory(rows *sql.Rows) (Memory, error) {
	var (
		m                  Memory
		created, updated   string
		tags, vis, project string
		meta               string
	)
	if err := rows.Scan(&m.ID, &m.TeamID, &m.Type, &m.Title, &m.Content, &m.Context, &m.CreatedBy,
		&created, &updated, &tags, &vis, &project, &meta, &m.UsageCount, &m.SuccessScore); err != nil {
		return Memory{}, err
	}
	m.CreatedAt = memory.ParseTime(created)
	m.UpdatedAt = memory.ParseTime(updated)
	m.Tags = decodeStrings(tags)
	m.Visibility = Visibility(vis)
	m.ProjectID = project
	if meta != "" {
		m.Metadata = json.RawMessage(meta)
	}
	m.Votes = []Vote{}
	m.Comments = []Comment{}
	return m, nil
}

// attach loads votes and comments for mems in two queries.
func (s *Store) attach(ctx context.Context, db *sql.DB, mems []Memory) error {
	if len(mems) == 0 {
		return nil
	}
	index := make(map[string]int, len(mems))
	args := make([]any, len(mems))
	for i, m := range mems {
		index[m.ID] = i
		args[i] = m.ID
	}
	in := placeholders(len(mems))

	votes, err := s.queryVotes(ctx, db, `WHERE memory_id IN (`+in+`)`, args...)
	if err != nil {
		return err
	}
	for _, v := range votes {
		i := index[v.MemoryID]
		mems[i].Votes = append(mems[i].Votes, v)
	}

	comments, err := s.queryComments(ctx, db, `WHERE memory_id IN (`+in+`)`, args...)
	if err != nil {
		return err
	}
	for _, c := range comments {
		i := index[c.MemoryID]
		mems[i].Comments = append(mems[i].Comments, c)
	}
	return nil
}

func nullableRaw(b []byte) *string {
	if len(b) == 0 {
		return nil
	}
	v := string(b)
	return &v
}
