package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/HendryAvila/devmem/internal/derrors"
)

// ─── Project ─────────────────────────────────────────────────────────────────

// Project returns the current project row.
func (s *Store) Project(ctx context.Context) (*Project, error) {
	db, id, err := s.session("project")
	if err != nil {
		return nil, err
	}
	p, err := s.loadProject(ctx, db, id)
	if err != nil {
		return nil, derrors.Storage("project", err)
	}
	return &p, nil
}

// ─── Conversations ───────────────────────────────────────────────────────────

// RecordConversation stores a conversation and its messages in one
// transaction and returns the conversation id. Nothing is persisted when
// any insert fails.
func (s *Store) RecordConversation(ctx context.Context, assistant string, msgs []MessageInput, convCtx ConversationContext) (string, error) {
	_, projectID, err := s.session("record conversation")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(assistant) == "" {
		return "", derrors.InvalidInput("assistant is required")
	}
	for i, m := range msgs {
		if !m.Role.Valid() {
			return "", derrors.InvalidInput("message %d: unknown role %q", i, m.Role)
		}
	}

	blob, err := json.Marshal(convCtx)
	if err != nil {
		return "", derrors.InvalidInput("conversation context: %v", err)
	}

	convID := s.NewID()
	now := s.Now()
	err = s.WithTx(ctx, "record conversation", func(tx *sql.Tx) error {
		if _, err := s.execHook(ctx, tx,
			`INSERT INTO conversations (id, project_id, assistant, timestamp, context) VALUES (?, ?, ?, ?, ?)`,
			convID, projectID, assistant, FormatTime(now), string(blob),
		); err != nil {
			return fmt.Errorf("insert conversation: %w", err)
		}
		for i, m := range msgs {
			if _, err := s.execHook(ctx, tx,
				`INSERT INTO messages (id, conversation_id, role, content, timestamp, metadata) VALUES (?, ?, ?, ?, ?, ?)`,
				s.NewID(), convID, string(m.Role), m.Content, FormatTime(s.Now()), nullableRaw(m.Metadata),
			); err != nil {
				return fmt.Errorf("insert message %d: %w", i, err)
			}
		}
		return s.touchProject(ctx, tx, projectID, now)
	})
	if err != nil {
		s.logger.Error("record conversation failed", "error", err)
		return "", err
	}

	s.logger.Debug("conversation recorded",
		"conversation_id", convID, "assistant", assistant, "messages", len(msgs))
	return convID, nil
}

// SetConversationSummary attaches a summary to an existing conversation.
func (s *Store) SetConversationSummary(ctx context.Context, id, summary string) error {
	db, projectID, err := s.session("set conversation summary")
	if err != nil {
		return err
	}
	res, err := s.execHook(ctx, db,
		`UPDATE conversations SET summary = ? WHERE id = ? AND project_id = ?`,
		nullableString(summary), id, projectID)
	if err != nil {
		return derrors.Storage("set conversation summary", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return derrors.NotFound("conversation", id)
	}
	return nil
}

// GetConversation returns one conversation with its messages.
func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	db, projectID, err := s.session("get conversation")
	if err != nil {
		return nil, err
	}
	convs, err := s.loadConversations(ctx, db, projectID, id)
	if err != nil {
		return nil, derrors.Storage("get conversation", err)
	}
	if len(convs) == 0 {
		return nil, derrors.NotFound("conversation", id)
	}
	return &convs[0], nil
}

// SearchConversations returns conversations where query occurs, ignoring
// case, in any message or in the summary. Results keep timestamp order.
func (s *Store) SearchConversations(ctx context.Context, query string) ([]Conversation, error) {
	db, projectID, err := s.session("search conversations")
	if err != nil {
		return nil, err
	}
	convs, err := s.loadConversations(ctx, db, projectID, "")
	if err != nil {
		return nil, derrors.Storage("search conversations", err)
	}

	needle := strings.ToLower(query)
	var out []Conversation
	for _, c := range convs {
		if conversationMatches(c, needle) {
			out = append(out, c)
		}
	}
	return out, nil
}

func conversationMatches(c Conversation, needle string) bool {
	if strings.Contains(strings.ToLower(c.Summary), needle) {
		return true
	}
	for _, m := range c.Messages {
		if strings.Contains(strings.ToLower(m.Content), needle) {
			return true
		}
	}
	return false
}

// RecentTurns returns the n most recent messages across all conversations,
// newest first.
func (s *Store) RecentTurns(ctx context.Context, n int) ([]Turn, error) {
	db, projectID, err := s.session("recent turns")
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	rows, err := s.queryItHook(ctx, db,
		`SELECT m.id, m.conversation_id, m.role, m.content, m.timestamp, ifnull(m.metadata, ''), c.assistant
		 FROM messages m
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE c.project_id = ?
		 ORDER BY m.timestamp DESC, m.rowid DESC
		 LIMIT ?`, projectID, n)
	if err != nil {
		return nil, derrors.Storage("recent turns", err)
	}
	defer func() { _ = rows.Close() }()

	var turns []Turn
	for rows.Next() {
		var (
			t        Turn
			role, ts string
			meta     string
		)
		if err := rows.Scan(&t.ID, &t.ConversationID, &role, &t.Content, &ts, &meta, &t.Assistant); err != nil {
			return nil, derrors.Storage("recent turns", err)
		}
		t.Role = Role(role)
		t.Timestamp = ParseTime(ts)
		if meta != "" {
			t.Metadata = json.RawMessage(meta)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, derrors.Storage("recent turns", err)
	}
	return turns, nil
}

// loadConversations reads the project's conversations in timestamp order
// and attaches their messages in order. A non-empty convID restricts the
// result to that conversation. Conversations are fully read before
// messages are queried, since the store holds one connection.
func (s *Store) loadConversations(ctx context.Context, db queryer, projectID, convID string) ([]Conversation, error) {
	rows, err := s.queryItHook(ctx, db,
		`SELECT id, project_id, assistant, timestamp, ifnull(context, ''), ifnull(summary, '')
		 FROM conversations
		 WHERE project_id = ? AND (? = '' OR id = ?)
		 ORDER BY timestamp ASC, rowid ASC`, projectID, convID, convID)
	if err != nil {
		return nil, err
	}

	var convs []Conversation
	index := map[string]int{}
	for rows.Next() {
		var (
			c        Conversation
			ts, blob string
		)
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Assistant, &ts, &blob, &c.Summary); err != nil {
			_ = rows.Close()
			return nil, err
		}
		c.Timestamp = ParseTime(ts)
		if blob != "" {
			c.Context = json.RawMessage(blob)
		}
		c.Messages = []Message{}
		index[c.ID] = len(convs)
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(convs) == 0 {
		return nil, nil
	}

	msgRows, err := s.queryItHook(ctx, db,
		`SELECT m.id, m.conversation_id, m.role, m.content, m.timestamp, ifnull(m.metadata, '')
		 FROM messages m
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE c.project_id = ? AND (? = '' OR c.id = ?)
		 ORDER BY m.timestamp ASC, m.rowid ASC`, projectID, convID, convID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = msgRows.Close() }()

	for msgRows.Next() {
		var (
			m              Message
			role, ts, meta string
		)
		if err := msgRows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &ts, &meta); err != nil {
			return nil, err
		}
		m.Role = Role(role)
		m.Timestamp = ParseTime(ts)
		if meta != "" {
			m.Metadata = json.RawMessage(meta)
		}
		if i, ok := index[m.ConversationID]; ok {
			convs[i].Messages = append(convs[i].Messages, m)
		}
	}
	return convs, msgRows.Err()
}

// ─── Decisions ───────────────────────────────────────────────────────────────

// RecordArchitecturalDecision stores an immutable decision record.
func (s *Store) RecordArchitecturalDecision(ctx context.Context, in DecisionInput) (string, error) {
	db, projectID, err := s.session("record decision")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(in.Decision) == "" {
		return "", derrors.InvalidInput("decision text is required")
	}

	id := s.NewID()
	now := s.Now()
	if _, err := s.execHook(ctx, db,
		`INSERT INTO decisions (id, project_id, decision, rationale, alternatives, impact, affected_files, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, projectID, in.Decision, in.Rationale,
		encodeList(in.Alternatives), encodeList(in.Impact), encodeList(in.AffectedFiles),
		FormatTime(now),
	); err != nil {
		return "", derrors.Storage("record decision", err)
	}
	if err := s.touchProject(ctx, db, projectID, now); err != nil {
		return "", derrors.Storage("record decision", err)
	}
	return id, nil
}

// ListDecisions returns all decisions, newest first.
func (s *Store) ListDecisions(ctx context.Context) ([]ArchitecturalDecision, error) {
	db, projectID, err := s.session("list decisions")
	if err != nil {
		return nil, err
	}
	out, err := s.queryDecisions(ctx, db, projectID)
	if err != nil {
		return nil, derrors.Storage("list decisions", err)
	}
	return out, nil
}

func (s *Store) queryDecisions(ctx context.Context, db queryer, projectID string) ([]ArchitecturalDecision, error) {
	rows, err := s.queryItHook(ctx, db,
		`SELECT id, project_id, decision, rationale, alternatives, impact, affected_files, timestamp
		 FROM decisions WHERE project_id = ?
		 ORDER BY timestamp DESC, rowid DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []ArchitecturalDecision
	for rows.Next() {
		var (
			d                   ArchitecturalDecision
			alts, impact, files string
			ts                  string
		)
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.Decision, &d.Rationale, &alts, &impact, &files, &ts); err != nil {
			return nil, err
		}
		d.Alternatives = decodeList(alts)
		d.Impact = decodeList(impact)
		d.AffectedFiles = decodeList(files)
		d.Timestamp = ParseTime(ts)
		out = append(out, d)
	}
	return out, rows.Err()
}

// ─── File changes ────────────────────────────────────────────────────────────

// TrackFileChange records a change to path. conversationID may be empty.
func (s *Store) TrackFileChange(ctx context.Context, path string, kind ChangeKind, conversationID string) (string, error) {
	db, projectID, err := s.session("track file change")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(path) == "" {
		return "", derrors.InvalidInput("file path is required")
	}
	if !kind.Valid() {
		return "", derrors.InvalidInput("unknown change kind %q", kind)
	}

	id := s.NewID()
	now := s.Now()
	if _, err := s.execHook(ctx, db,
		`INSERT INTO file_changes (id, project_id, file_path, change_kind, timestamp, conversation_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, projectID, path, string(kind), FormatTime(now), nullableString(conversationID),
	); err != nil {
		return "", derrors.Storage("track file change", err)
	}
	if err := s.touchProject(ctx, db, projectID, now); err != nil {
		return "", derrors.Storage("track file change", err)
	}
	return id, nil
}

func (s *Store) queryFileChanges(ctx context.Context, db queryer, projectID string, limit int) ([]FileChangeRecord, error) {
	rows, err := s.queryItHook(ctx, db,
		`SELECT id, project_id, file_path, change_kind, timestamp, conversation_id
		 FROM file_changes WHERE project_id = ?
		 ORDER BY timestamp DESC, rowid DESC
		 LIMIT ?`, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []FileChangeRecord
	for rows.Next() {
		var (
			fc       FileChangeRecord
			kind, ts string
		)
		if err := rows.Scan(&fc.ID, &fc.ProjectID, &fc.FilePath, &kind, &ts, &fc.ConversationID); err != nil {
			return nil, err
		}
		fc.ChangeKind = ChangeKind(kind)
		fc.Timestamp = ParseTime(ts)
		out = append(out, fc)
	}
	return out, rows.Err()
}

// ─── Code patterns ───────────────────────────────────────────────────────────

// StoreCodePattern inserts a new pattern row with frequency 1. Repeated
// patterns are not merged.
func (s *Store) StoreCodePattern(ctx context.Context, in PatternInput) (string, error) {
	db, projectID, err := s.session("store code pattern")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(in.Pattern) == "" {
		return "", derrors.InvalidInput("pattern text is required")
	}

	blob, err := json.Marshal(PatternContext{
		Language: in.Language,
		Context:  in.Context,
		Success:  in.Success,
	})
	if err != nil {
		return "", derrors.InvalidInput("pattern context: %v", err)
	}

	id := s.NewID()
	now := s.Now()
	if _, err := s.execHook(ctx, db,
		`INSERT INTO code_patterns (id, project_id, pattern, frequency, context, created_at)
		 VALUES (?, ?, ?, 1, ?, ?)`,
		id, projectID, in.Pattern, string(blob), FormatTime(now),
	); err != nil {
		return "", derrors.Storage("store code pattern", err)
	}
	if err := s.touchProject(ctx, db, projectID, now); err != nil {
		return "", derrors.Storage("store code pattern", err)
	}
	return id, nil
}

// ListPatterns returns patterns by frequency, then most recent first.
func (s *Store) ListPatterns(ctx context.Context) ([]CodePattern, error) {
	db, projectID, err := s.session("list patterns")
	if err != nil {
		return nil, err
	}
	out, err := s.queryPatterns(ctx, db, projectID)
	if err != nil {
		return nil, derrors.Storage("list patterns", err)
	}
	return out, nil
}

func (s *Store) queryPatterns(ctx context.Context, db queryer, projectID string) ([]CodePattern, error) {
	rows, err := s.queryItHook(ctx, db,
		`SELECT id, project_id, pattern, frequency, ifnull(context, ''), created_at
		 FROM code_patterns WHERE project_id = ?
		 ORDER BY frequency DESC, created_at DESC, rowid DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []CodePattern
	for rows.Next() {
		var (
			p        CodePattern
			blob, ts string
		)
		if err := rows.Scan(&p.ID, &p.ProjectID, &p.Pattern, &p.Frequency, &blob, &ts); err != nil {
			return nil, err
		}
		if blob != "" {
			p.Context = json.RawMessage(blob)
		}
		p.CreatedAt = ParseTime(ts)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ─── Views ───────────────────────────────────────────────────────────────────

// GetProjectMemory materializes the whole project: conversations in
// timestamp order with nested messages, decisions newest first, the most
// recent file changes newest first, and patterns by frequency.
func (s *Store) GetProjectMemory(ctx context.Context) (*ProjectMemory, error) {
	db, projectID, err := s.session("get project memory")
	if err != nil {
		return nil, err
	}
	const op = "get project memory"

	project, err := s.loadProject(ctx, db, projectID)
	if err != nil {
		return nil, derrors.Storage(op, err)
	}
	convs, err := s.loadConversations(ctx, db, projectID, "")
	if err != nil {
		return nil, derrors.Storage(op, err)
	}
	decisions, err := s.queryDecisions(ctx, db, projectID)
	if err != nil {
		return nil, derrors.Storage(op, err)
	}
	changes, err := s.queryFileChanges(ctx, db, projectID, s.cfg.MaxFileChanges)
	if err != nil {
		return nil, derrors.Storage(op, err)
	}
	patterns, err := s.queryPatterns(ctx, db, projectID)
	if err != nil {
		return nil, derrors.Storage(op, err)
	}

	return &ProjectMemory{
		Project:       project,
		Conversations: nonNil(convs),
		Decisions:     nonNil(decisions),
		FileChanges:   nonNil(changes),
		Patterns:      nonNil(patterns),
	}, nil
}

// GetStatistics returns aggregate counts, the most recent activity and the
// on-disk size of the database including its WAL and shared-memory files.
func (s *Store) GetStatistics(ctx context.Context) (*Statistics, error) {
	db, projectID, err := s.session("get statistics")
	if err != nil {
		return nil, err
	}

	stats := &Statistics{}
	counts := []struct {
		dest  *int
		query string
	}{
		{&stats.Conversations, `SELECT COUNT(*) FROM conversations WHERE project_id = ?`},
		{&stats.Messages, `SELECT COUNT(*) FROM messages m JOIN conversations c ON c.id = m.conversation_id WHERE c.project_id = ?`},
		{&stats.Decisions, `SELECT COUNT(*) FROM decisions WHERE project_id = ?`},
		{&stats.FilesTouched, `SELECT COUNT(DISTINCT file_path) FROM file_changes WHERE project_id = ?`},
		{&stats.Patterns, `SELECT COUNT(*) FROM code_patterns WHERE project_id = ?`},
	}
	for _, c := range counts {
		if err := s.scanOne(ctx, db, c.query, []any{projectID}, c.dest); err != nil {
			return nil, derrors.Storage("get statistics", err)
		}
	}

	var last sql.NullString
	if err := s.scanOne(ctx, db,
		`SELECT MAX(ts) FROM (
			SELECT MAX(timestamp) AS ts FROM conversations WHERE project_id = ?1
			UNION ALL SELECT MAX(timestamp) FROM decisions WHERE project_id = ?1
			UNION ALL SELECT MAX(timestamp) FROM file_changes WHERE project_id = ?1
			UNION ALL SELECT MAX(created_at) FROM code_patterns WHERE project_id = ?1
		)`, []any{projectID}, &last); err != nil {
		return nil, derrors.Storage("get statistics", err)
	}
	if last.Valid && last.String != "" {
		t := ParseTime(last.String)
		stats.LastActivity = &t
	}

	path := s.cfg.DBPath()
	stats.SizeBytes = fileSize(path) + fileSize(path+"-wal") + fileSize(path+"-shm")
	return stats, nil
}

func (s *Store) scanOne(ctx context.Context, db queryer, query string, args []any, dest any) error {
	rows, err := s.queryItHook(ctx, db, query, args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	if rows.Next() {
		if err := rows.Scan(dest); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ─── Reset ───────────────────────────────────────────────────────────────────

// ClearAllMemory deletes every row scoped to the project, including rows
// owned by registered team relations. The project row survives so the
// store stays usable. Clearing an empty project succeeds.
func (s *Store) ClearAllMemory(ctx context.Context) error {
	_, projectID, err := s.session("clear all memory")
	if err != nil {
		return err
	}
	s.mu.RLock()
	clearers := append([]ClearFunc(nil), s.clearers...)
	s.mu.RUnlock()

	err = s.WithTx(ctx, "clear all memory", func(tx *sql.Tx) error {
		for _, fn := range clearers {
			if err := fn(ctx, tx, projectID); err != nil {
				return err
			}
		}
		stmts := []string{
			`DELETE FROM messages WHERE conversation_id IN (SELECT id FROM conversations WHERE project_id = ?)`,
			`DELETE FROM conversations WHERE project_id = ?`,
			`DELETE FROM decisions WHERE project_id = ?`,
			`DELETE FROM file_changes WHERE project_id = ?`,
			`DELETE FROM code_patterns WHERE project_id = ?`,
		}
		for _, q := range stmts {
			if _, err := s.execHook(ctx, tx, q, projectID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Warn("project memory cleared", "project_id", projectID)
	return nil
}

// ─── Context formatting ──────────────────────────────────────────────────────

// FormatContext returns a markdown summary of recent project memory, or
// "" when nothing has been recorded.
func (s *Store) FormatContext(ctx context.Context) (string, error) {
	pm, err := s.GetProjectMemory(ctx)
	if err != nil {
		return "", err
	}
	if len(pm.Conversations) == 0 && len(pm.Decisions) == 0 && len(pm.Patterns) == 0 {
		return "", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## Project Memory: %s\n\n", pm.Project.Name)

	if len(pm.Conversations) > 0 {
		b.WriteString("### Recent Conversations\n")
		convs := append([]Conversation(nil), pm.Conversations...)
		sort.SliceStable(convs, func(i, j int) bool {
			return convs[i].Timestamp.After(convs[j].Timestamp)
		})
		for _, c := range convs[:min(5, len(convs))] {
			line := c.Summary
			if line == "" && len(c.Messages) > 0 {
				line = c.Messages[0].Content
			}
			fmt.Fprintf(&b, "- **%s** (%s) [%d messages]: %s\n",
				c.Assistant, c.Timestamp.Format("2006-01-02 15:04"), len(c.Messages), Truncate(line, 200))
		}
		b.WriteString("\n")
	}

	if len(pm.Decisions) > 0 {
		b.WriteString("### Architectural Decisions\n")
		for _, d := range pm.Decisions[:min(5, len(pm.Decisions))] {
			fmt.Fprintf(&b, "- **%s**: %s\n", Truncate(d.Decision, 120), Truncate(d.Rationale, 200))
		}
		b.WriteString("\n")
	}

	if len(pm.Patterns) > 0 {
		b.WriteString("### Code Patterns\n")
		for _, p := range pm.Patterns[:min(5, len(pm.Patterns))] {
			d := p.Details()
			status := "failed"
			if d.Success {
				status = "ok"
			}
			fmt.Fprintf(&b, "- [%s/%s] %s\n", d.Language, status, Truncate(p.Pattern, 200))
		}
		b.WriteString("\n")
	}

	return b.String(), nil
}

// ─── Encoding ────────────────────────────────────────────────────────────────

func encodeList(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(v) // []string always encodes
	return string(b)
}

func decodeList(v string) []string {
	out := []string{}
	if v == "" {
		return out
	}
	_ = json.Unmarshal([]byte(v), &out) // malformed rows decode to empty
	return out
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
