package team

import (
	"context"
	"database/sql"
	"strings"

	"github.com/HendryAvila/devmem/internal/derrors"
	"github.com/HendryAvila/devmem/internal/memory"
)

// AddTeamMember registers a member. Email is unique within the team. An
// empty permission set is filled with the role defaults.
func (s *Store) AddTeamMember(ctx context.Context, in NewMember) (*Member, error) {
	db, err := s.mem.DB()
	if err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return nil, derrors.InvalidInput("member email is required")
	}
	if !in.Role.Valid() {
		return nil, derrors.InvalidInput("unknown role %q", in.Role)
	}
	perms := in.Permissions
	for _, p := range perms {
		if !p.Valid() {
			return nil, derrors.InvalidInput("unknown permission %q", p)
		}
	}
	if len(perms) == 0 {
		perms = DefaultCapabilities(in.Role)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = email
	}

	now := s.mem.Now()
	m := &Member{
		ID:           s.mem.NewID(),
		TeamID:       s.teamID,
		Email:        email,
		Name:         name,
		Role:         in.Role,
		JoinedAt:     now,
		LastActiveAt: now,
		Permissions:  perms,
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO team_members (id, team_id, email, name, role, joined_at, last_active_at, permissions)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.TeamID, m.Email, m.Name, string(m.Role),
		memory.FormatTime(now), memory.FormatTime(now), encodeJSON(m.Permissions),
	); err != nil {
		if isUniqueViolation(err) {
			return nil, derrors.InvalidInput("member with email %q already in team", email)
		}
		return nil, derrors.Storage("add team member", err)
	}

	s.logger.Info("team member added", "member_id", m.ID, "role", m.Role)
	return m, nil
}

// GetTeamMembers returns all members ordered by join time.
func (s *Store) GetTeamMembers(ctx context.Context) ([]Member, error) {
	db, err := s.mem.DB()
	if err != nil {
		return nil, err
	}
	out, err := s.queryMembers(ctx, db, `WHERE team_id = ? ORDER BY joined_at ASC, rowid ASC`, s.teamID)
	if err != nil {
		return nil, derrors.Storage("get team members", err)
	}
	return out, nil
}

// GetTeamMember returns one member.
func (s *Store) GetTeamMember(ctx context.Context, id string) (*Member, error) {
	db, err := s.mem.DB()
	if err != nil {
		return nil, err
	}
	out, err := s.queryMembers(ctx, db, `WHERE team_id = ? AND id = ?`, s.teamID, id)
	if err != nil {
		return nil, derrors.Storage("get team member", err)
	}
	if len(out) == 0 {
		return nil, derrors.NotFound("member", id)
	}
	return &out[0], nil
}

// TouchMember bumps a member's last-active timestamp.
func (s *Store) TouchMember(ctx context.Context, id string) error {
	db, err := s.mem.DB()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx,
		`UPDATE team_members SET last_active_at = ? WHERE team_id = ? AND id = ?`,
		memory.FormatTime(s.mem.Now()), s.teamID, id)
	if err != nil {
		return derrors.Storage("touch member", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return derrors.NotFound("member", id)
	}
	return nil
}

func (s *Store) queryMembers(ctx context.Context, db *sql.DB, where string, args ...any) ([]Member, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, team_id, email, name, role, joined_at, last_active_at, permissions
		 FROM team_members `+where, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Member
	for rows.Next() {
		var (
			m                    Member
			role, joined, active string
			perms                string
		)
		if err := rows.Scan(&m.ID, &m.TeamID, &m.Email, &m.Name, &role, &joined, &active, &perms); err != nil {
			return nil, err
		}
		m.Role = Role(role)
		m.JoinedAt = memory.ParseTime(joined)
		m.LastActiveAt = memory.ParseTime(active)
		m.Permissions = decodeActions(perms)
		out = append(out, m)
	}
	return out, rows.Err()
}
