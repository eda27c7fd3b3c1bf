package permission

import (
	"slices"
	"time"

	"github.com/HendryAvila/devmem/internal/team"
)

// ResourceType names the kind of object a rule or check applies to.
type ResourceType string

const (
	ResourceMemory  ResourceType = "memory"
	ResourceTeam    ResourceType = "team"
	ResourceProject ResourceType = "project"
)

// SubjectUser is the only subject type rules currently bind to.
const SubjectUser = "user"

// Grant allows or denies one action.
type Grant struct {
	Action  team.Action `json:"action"`
	Granted bool        `json:"granted"`
}

// ConditionKind selects how a Condition is evaluated.
type ConditionKind string

const (
	// CondTimeWindow holds while the check time is within [Start, End).
	CondTimeWindow ConditionKind = "time_window"
	// CondMemoryType holds when the target memory has type MemoryType.
	CondMemoryType ConditionKind = "memory_type"
	// CondApprovalRequired holds when the subject has an approved access
	// request on the rule's resource.
	CondApprovalRequired ConditionKind = "approval_required"
)

// Condition restricts when a rule applies.
type Condition struct {
	Kind       ConditionKind `json:"kind"`
	Start      time.Time     `json:"start,omitzero"`
	End        time.Time     `json:"end,omitzero"`
	MemoryType string        `json:"memory_type,omitempty"`
}

// Rule is an explicit grant or denial for one subject.
type Rule struct {
	ID           string       `json:"id"`
	ResourceType ResourceType `json:"resource_type"`
	// ResourceID is empty for rules that cover every resource of the type.
	ResourceID  string      `json:"resource_id,omitempty"`
	SubjectType string      `json:"subject_type"`
	SubjectID   string      `json:"subject_id"`
	Permissions []Grant     `json:"permissions"`
	CreatedBy   string      `json:"created_by"`
	CreatedAt   time.Time   `json:"created_at"`
	ExpiresAt   *time.Time  `json:"expires_at,omitempty"`
	Conditions  []Condition `json:"conditions,omitempty"`
	Active      bool        `json:"active"`
}

// live reports whether r is active and unexpired at now.
func (r Rule) live(now time.Time) bool {
	return r.Active && (r.ExpiresAt == nil || now.Before(*r.ExpiresAt))
}

// grant returns the rule's entry for a, if any.
func (r Rule) grant(a team.Action) (Grant, bool) {
	i := slices.IndexFunc(r.Permissions, func(g Grant) bool { return g.Action == a })
	if i < 0 {
		return Grant{}, false
	}
	return r.Permissions[i], true
}

// RequestStatus is the lifecycle state of an access request.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusDenied   RequestStatus = "denied"
)

// AccessRequest asks for actions on a resource the requester lacks.
type AccessRequest struct {
	ID           string        `json:"id"`
	RequesterID  string        `json:"requester_id"`
	ResourceType ResourceType  `json:"resource_type"`
	ResourceID   string        `json:"resource_id"`
	Permissions  []team.Action `json:"permissions"`
	Reason       string        `json:"reason,omitempty"`
	Status       RequestStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	ApprovedBy   string        `json:"approved_by,omitempty"`
	ApprovedAt   *time.Time    `json:"approved_at,omitempty"`
	DeniedBy     string        `json:"denied_by,omitempty"`
	DeniedAt     *time.Time    `json:"denied_at,omitempty"`
	DenyReason   string        `json:"deny_reason,omitempty"`
	ExpiresAt    *time.Time    `json:"expires_at,omitempty"`
}

// AuditEntry is one append-only audit record.
type AuditEntry struct {
	ID           string            `json:"id"`
	ActorID      string            `json:"actor_id"`
	ActorName    string            `json:"actor_name,omitempty"`
	Action       string            `json:"action"`
	ResourceType ResourceType      `json:"resource_type"`
	ResourceID   string            `json:"resource_id,omitempty"`
	ResourceName string            `json:"resource_name,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
	Success      bool              `json:"success"`
	Error        string            `json:"error,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// AuditFilter narrows AuditLog. Zero fields match everything.
type AuditFilter struct {
	ActorID      string
	Action       string
	ResourceType ResourceType
	ResourceID   string
	Success      *bool
	Since        time.Time
	// Limit keeps the newest Limit matches. Zero keeps all.
	Limit int
}

func (f AuditFilter) match(e AuditEntry) bool {
	switch {
	case f.ActorID != "" && e.ActorID != f.ActorID:
		return false
	case f.Action != "" && e.Action != f.Action:
		return false
	case f.ResourceType != "" && e.ResourceType != f.ResourceType:
		return false
	case f.ResourceID != "" && e.ResourceID != f.ResourceID:
		return false
	case f.Success != nil && e.Success != *f.Success:
		return false
	case !f.Since.IsZero() && e.Timestamp.Before(f.Since):
		return false
	}
	return true
}

// RuleFilter narrows ListRules. Zero fields match everything.
type RuleFilter struct {
	ResourceType ResourceType
	ResourceID   string
	SubjectID    string
	ActiveOnly   bool
}

func (f RuleFilter) match(r Rule) bool {
	switch {
	case f.ResourceType != "" && r.ResourceType != f.ResourceType:
		return false
	case f.ResourceID != "" && r.ResourceID != f.ResourceID:
		return false
	case f.SubjectID != "" && r.SubjectID != f.SubjectID:
		return false
	case f.ActiveOnly && !r.Active:
		return false
	}
	return true
}
