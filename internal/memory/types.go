package memory

import (
	"encoding/json"
	"time"
)

// ─── Enums ───────────────────────────────────────────────────────────────────

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ChangeKind classifies a file-change record.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
)

// Valid reports whether k is a known change kind.
func (k ChangeKind) Valid() bool {
	switch k {
	case ChangeCreated, ChangeModified, ChangeDeleted:
		return true
	}
	return false
}

// ─── Entities ────────────────────────────────────────────────────────────────

// Project is the single project row owned by a store.
type Project struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	RootPath     string    `json:"root_path"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// Conversation is one exchange with an assistant, with its turns in order.
type Conversation struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	Assistant string          `json:"assistant"`
	Timestamp time.Time       `json:"timestamp"`
	Context   json.RawMessage `json:"context,omitempty"`
	Summary   string          `json:"summary,omitempty"`
	Messages  []Message       `json:"messages"`
}

// EditorContext decodes the typed subset of the opaque context blob.
func (c Conversation) EditorContext() ConversationContext {
	var cc ConversationContext
	if len(c.Context) > 0 {
		_ = json.Unmarshal(c.Context, &cc) // opaque blob; unknown shapes decode to zero
	}
	return cc
}

// Message is a single conversation turn.
type Message struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Role           Role            `json:"role"`
	Content        string          `json:"content"`
	Timestamp      time.Time       `json:"timestamp"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// ArchitecturalDecision is an immutable design decision record.
type ArchitecturalDecision struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"project_id"`
	Decision      string    `json:"decision"`
	Rationale     string    `json:"rationale"`
	Alternatives  []string  `json:"alternatives"`
	Impact        []string  `json:"impact"`
	AffectedFiles []string  `json:"affected_files"`
	Timestamp     time.Time `json:"timestamp"`
}

// FileChangeRecord tracks one change to a file in the project.
type FileChangeRecord struct {
	ID             string     `json:"id"`
	ProjectID      string     `json:"project_id"`
	FilePath       string     `json:"file_path"`
	ChangeKind     ChangeKind `json:"change_kind"`
	Timestamp      time.Time  `json:"timestamp"`
	ConversationID *string    `json:"conversation_id,omitempty"`
}

// CodePattern is an observed code pattern with its outcome metadata.
type CodePattern struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	Pattern   string          `json:"pattern"`
	Frequency int             `json:"frequency"`
	Context   json.RawMessage `json:"context,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Details decodes the typed subset of the pattern context blob.
func (p CodePattern) Details() PatternContext {
	var pc PatternContext
	if len(p.Context) > 0 {
		_ = json.Unmarshal(p.Context, &pc) // opaque blob; unknown shapes decode to zero
	}
	return pc
}

// ─── Typed views over opaque blobs ───────────────────────────────────────────

// ConversationContext is the editor state captured with a conversation.
// Extra carries any caller fields the engine does not read.
type ConversationContext struct {
	ActiveFile string          `json:"active_file,omitempty"`
	CursorLine int             `json:"cursor_line,omitempty"`
	OpenFiles  []string        `json:"open_files,omitempty"`
	Extra      json.RawMessage `json:"extra,omitempty"`
}

// PatternContext describes where a pattern was seen and whether the
// code it belongs to ran successfully.
type PatternContext struct {
	Language string `json:"language,omitempty"`
	Context  string `json:"context,omitempty"`
	Success  bool   `json:"success"`
}

// ─── Inputs ──────────────────────────────────────────────────────────────────

// MessageInput is a turn supplied to RecordConversation.
type MessageInput struct {
	Role     Role            `json:"role"`
	Content  string          `json:"content"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// DecisionInput holds the fields of a new architectural decision.
type DecisionInput struct {
	Decision      string   `json:"decision"`
	Rationale     string   `json:"rationale"`
	Alternatives  []string `json:"alternatives,omitempty"`
	Impact        []string `json:"impact,omitempty"`
	AffectedFiles []string `json:"affected_files,omitempty"`
}

// PatternInput holds the fields of a newly observed code pattern.
type PatternInput struct {
	Pattern  string `json:"pattern"`
	Language string `json:"language,omitempty"`
	Context  string `json:"context,omitempty"`
	Success  bool   `json:"success"`
}

// ─── Views ───────────────────────────────────────────────────────────────────

// ProjectMemory is the fully materialized project view.
type ProjectMemory struct {
	Project       Project                 `json:"project"`
	Conversations []Conversation          `json:"conversations"`
	Decisions     []ArchitecturalDecision `json:"decisions"`
	FileChanges   []FileChangeRecord      `json:"file_changes"`
	Patterns      []CodePattern           `json:"patterns"`
}

// Turn is a message joined with the conversation it belongs to.
type Turn struct {
	Message
	Assistant string `json:"assistant"`
}

// Statistics holds aggregate counts for the project.
type Statistics struct {
	Conversations int        `json:"conversations"`
	Messages      int        `json:"messages"`
	Decisions     int        `json:"decisions"`
	FilesTouched  int        `json:"files_touched"`
	Patterns      int        `json:"patterns"`
	LastActivity  *time.Time `json:"last_activity,omitempty"`
	SizeBytes     int64      `json:"size_bytes"`
}
