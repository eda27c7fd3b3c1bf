// Package team implements the team knowledge store: members, shared
// memories, votes, comments and usage events.
//
// Team relations live in the project database owned by memory.Store. The
// store layer does not enforce permissions; callers consult package
// permission before mutating.
package team

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/HendryAvila/devmem/internal/derrors"
	"github.com/HendryAvila/devmem/internal/memory"
)

// DefaultSearchLimit caps SearchTeamMemories results.
const DefaultSearchLimit = 15

// Store is the team knowledge store for one team.
type Store struct {
	mem         *memory.Store
	teamID      string
	searchLimit int
	logger      *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithSearchLimit overrides the search result cap.
func WithSearchLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.searchLimit = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a team store for teamID on top of mem. It registers the
// team relations with mem so ClearAllMemory removes project-bound team
// memories.
func New(mem *memory.Store, teamID string, opts ...Option) *Store {
	s := &Store{
		mem:         mem,
		teamID:      teamID,
		searchLimit: DefaultSearchLimit,
		logger:      mem.Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	mem.RegisterClear(s.clearProject)
	return s
}

// TeamID returns the team this store serves.
func (s *Store) TeamID() string { return s.teamID }

// Migrate creates the team relations. The memory store must be
// initialized first.
func (s *Store) Migrate(ctx context.Context) error {
	db, err := s.mem.DB()
	if err != nil {
		return err
	}
	schema := `
		CREATE TABLE IF NOT EXISTS team_members (
			id             TEXT PRIMARY KEY,
			team_id        TEXT NOT NULL,
			email          TEXT NOT NULL,
			name           TEXT NOT NULL,
			role           TEXT NOT NULL,
			joined_at      TEXT NOT NULL,
			last_active_at TEXT NOT NULL,
			permissions    TEXT NOT NULL DEFAULT '[]',
			UNIQUE (team_id, email)
		);

		CREATE TABLE IF NOT EXISTS team_memories (
			id            TEXT PRIMARY KEY,
			team_id       TEXT NOT NULL,
			type          TEXT NOT NULL,
			title         TEXT NOT NULL,
			content       TEXT NOT NULL,
			context       TEXT NOT NULL DEFAULT '',
			created_by    TEXT NOT NULL,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL,
			tags          TEXT NOT NULL DEFAULT '[]',
			visibility    TEXT NOT NULL,
			project_id    TEXT,
			metadata      TEXT,
			usage_count   INTEGER NOT NULL DEFAULT 0,
			success_score REAL NOT NULL DEFAULT 0.5
		);

		CREATE INDEX IF NOT EXISTS idx_tm_team    ON team_memories(team_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_tm_project ON team_memories(project_id);

		CREATE TABLE IF NOT EXISTS memory_votes (
			memory_id TEXT NOT NULL,
			member_id TEXT NOT NULL,
			vote      TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			PRIMARY KEY (memory_id, member_id),
			FOREIGN KEY (memory_id) REFERENCES team_memories(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS memory_comments (
			id        TEXT PRIMARY KEY,
			memory_id TEXT NOT NULL,
			member_id TEXT NOT NULL,
			content   TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			parent_id TEXT,
			FOREIGN KEY (memory_id) REFERENCES team_memories(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_comments_memory ON memory_comments(memory_id, timestamp);

		CREATE TABLE IF NOT EXISTS memory_usage (
			id        TEXT PRIMARY KEY,
			memory_id TEXT NOT NULL,
			member_id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			context   TEXT NOT NULL DEFAULT '',
			success   INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (memory_id) REFERENCES team_memories(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_usage_memory ON memory_usage(memory_id);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return derrors.Storage("team migrate", err)
	}
	return nil
}

// clearProject removes team memories bound to projectID together with
// their votes, comments and usage.
func (s *Store) clearProject(ctx context.Context, tx *sql.Tx, projectID string) error {
	const scope = `SELECT id FROM team_memories WHERE project_id = ?`
	stmts := []string{
		`DELETE FROM memory_votes WHERE memory_id IN (` + scope + `)`,
		`DELETE FROM memory_comments WHERE memory_id IN (` + scope + `)`,
		`DELETE FROM memory_usage WHERE memory_id IN (` + scope + `)`,
		`DELETE FROM team_memories WHERE project_id = ?`,
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q, projectID); err != nil {
			return fmt.Errorf("clear team memories: %w", err)
		}
	}
	return nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func encodeJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return "[]"
	}
	return string(b)
}

func decodeStrings(v string) []string {
	out := []string{}
	_ = json.Unmarshal([]byte(v), &out) // malformed rows decode to empty
	return out
}

func decodeActions(v string) []Action {
	out := []Action{}
	_ = json.Unmarshal([]byte(v), &out) // malformed rows decode to empty
	return out
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// isUniqueViolation checks if an error is a SQLite UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := map[string]bool{}
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
