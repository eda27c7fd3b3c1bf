package team

import (
	"encoding/json"
	"slices"
	"time"
)

// ─── Vocabulary ──────────────────────────────────────────────────────────────

// Role is a member's team role.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleDeveloper Role = "developer"
	RoleObserver  Role = "observer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDeveloper, RoleObserver:
		return true
	}
	return false
}

// Action is a capability a member may hold.
type Action string

const (
	ActionRead     Action = "read"
	ActionWrite    Action = "write"
	ActionDelete   Action = "delete"
	ActionShare    Action = "share"
	ActionVote     Action = "vote"
	ActionComment  Action = "comment"
	ActionModerate Action = "moderate"
	ActionAdmin    Action = "admin"
)

// AllActions lists every capability.
func AllActions() []Action {
	return []Action{
		ActionRead, ActionWrite, ActionDelete, ActionShare,
		ActionVote, ActionComment, ActionModerate, ActionAdmin,
	}
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	return slices.Contains(AllActions(), a)
}

// DefaultCapabilities returns the fixed capability set of a role.
func DefaultCapabilities(r Role) []Action {
	switch r {
	case RoleAdmin:
		return AllActions()
	case RoleDeveloper:
		return []Action{ActionRead, ActionWrite, ActionShare, ActionVote, ActionComment}
	case RoleObserver:
		return []Action{ActionRead, ActionVote, ActionComment}
	default:
		return nil
	}
}

// Visibility controls who may see a team memory.
type Visibility string

const (
	VisibilityPrivate  Visibility = "private"
	VisibilityTeamOnly Visibility = "team_only"
	VisibilityPublic   Visibility = "public"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPrivate, VisibilityTeamOnly, VisibilityPublic:
		return true
	}
	return false
}

// VoteKind is the direction of a vote.
type VoteKind string

const (
	Upvote   VoteKind = "upvote"
	Downvote VoteKind = "downvote"
)

// Valid reports whether k is a known vote direction.
func (k VoteKind) Valid() bool {
	return k == Upvote || k == Downvote
}

// Suggested memory types. Any non-empty type is accepted.
const (
	TypeDecision     = "decision"
	TypePattern      = "pattern"
	TypeConversation = "conversation"
	TypeBestPractice = "best_practice"
	TypeLesson       = "lesson"
)

// ─── Entities ────────────────────────────────────────────────────────────────

// Member is a team member.
type Member struct {
	ID           string    `json:"id"`
	TeamID       string    `json:"team_id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	JoinedAt     time.Time `json:"joined_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	Permissions  []Action  `json:"permissions"`
}

// Can reports whether the member's capability set includes a. A member
// with an empty set falls back to the role defaults.
func (m Member) Can(a Action) bool {
	caps := m.Permissions
	if len(caps) == 0 {
		caps = DefaultCapabilities(m.Role)
	}
	return slices.Contains(caps, a)
}

// Memory is a shared team memory.
type Memory struct {
	ID           string          `json:"id"`
	TeamID       string          `json:"team_id"`
	Type         string          `json:"type"`
	Title        string          `json:"title"`
	Content      string          `json:"content"`
	Context      string          `json:"context,omitempty"`
	CreatedBy    string          `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Tags         []string        `json:"tags"`
	Visibility   Visibility      `json:"visibility"`
	ProjectID    string          `json:"project_id,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	UsageCount   int             `json:"usage_count"`
	SuccessScore float64         `json:"success_score"`
	Votes        []Vote          `json:"votes"`
	Comments     []Comment       `json:"comments"`
}

// VisibleTo reports whether memberID may see m in listings and search.
func (m Memory) VisibleTo(memberID string) bool {
	switch m.Visibility {
	case VisibilityPublic, VisibilityTeamOnly:
		return true
	default:
		return memberID != "" && m.CreatedBy == memberID
	}
}

// Vote is one member's vote on a memory.
type Vote struct {
	MemoryID  string    `json:"memory_id"`
	MemberID  string    `json:"member_id"`
	Vote      VoteKind  `json:"vote"`
	Timestamp time.Time `json:"timestamp"`
}

// Comment is a remark on a memory, optionally replying to another comment.
type Comment struct {
	ID        string    `json:"id"`
	MemoryID  string    `json:"memory_id"`
	MemberID  string    `json:"member_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	ParentID  string    `json:"parent_id,omitempty"`
	Replies   []Comment `json:"replies,omitempty"`
}

// UsageEvent records one application of a memory.
type UsageEvent struct {
	ID        string    `json:"id"`
	MemoryID  string    `json:"memory_id"`
	MemberID  string    `json:"member_id"`
	Timestamp time.Time `json:"timestamp"`
	Context   string    `json:"context,omitempty"`
	Success   bool      `json:"success"`
}

// ─── Inputs ──────────────────────────────────────────────────────────────────

// NewMember holds the fields of a member to add.
type NewMember struct {
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Role        Role     `json:"role"`
	Permissions []Action `json:"permissions,omitempty"`
}

// NewMemory holds the fields of a memory to create.
type NewMemory struct {
	Type       string          `json:"type"`
	Title      string          `json:"title"`
	Content    string          `json:"content"`
	Context    string          `json:"context,omitempty"`
	CreatedBy  string          `json:"created_by"`
	Tags       []string        `json:"tags,omitempty"`
	Visibility Visibility      `json:"visibility,omitempty"`
	ProjectID  string          `json:"project_id,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// MemoryUpdate holds partial update fields. Nil fields are left alone.
type MemoryUpdate struct {
	Title      *string         `json:"title,omitempty"`
	Content    *string         `json:"content,omitempty"`
	Context    *string         `json:"context,omitempty"`
	Tags       []string        `json:"tags,omitempty"`
	Visibility *Visibility     `json:"visibility,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// Filter narrows GetTeamMemories. Zero fields match everything.
type Filter struct {
	Type       string     `json:"type,omitempty"`
	CreatedBy  string     `json:"created_by,omitempty"`
	ProjectID  string     `json:"project_id,omitempty"`
	Visibility Visibility `json:"visibility,omitempty"`
}
