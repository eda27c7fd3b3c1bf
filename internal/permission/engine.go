// Package permission decides whether a team member may perform an action
// on a resource, manages access requests and keeps the audit trail.
//
// Decisions are booleans, never errors. Resolution order:
//
//  1. explicit rules bound to the user (resource-specific before
//     wildcard, newest first; the first rule naming the action whose
//     conditions hold decides)
//  2. the creator of a memory always passes
//  3. the member's capability set (role defaults when empty)
//  4. private memories refuse every non-creator
//
// Every check is audited.
package permission

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/HendryAvila/devmem/internal/telemetry"
	"github.com/HendryAvila/devmem/internal/team"
)

// Directory resolves members and memories.
type Directory interface {
	GetTeamMember(ctx context.Context, id string) (*team.Member, error)
	GetTeamMemory(ctx context.Context, id string) (*team.Memory, error)
}

// Engine evaluates permissions against a Directory and a Repository.
type Engine struct {
	dir     Directory
	repo    Repository
	now     func() time.Time
	newID   func() string
	logger  *slog.Logger
	metrics *telemetry.Metrics
	tracer  trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides rule, request and audit ids.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTelemetry attaches metrics instruments and a tracer.
func WithTelemetry(m *telemetry.Metrics, tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.metrics = m
		e.tracer = tracer
	}
}

// New creates an Engine.
func New(dir Directory, repo Repository, opts ...Option) *Engine {
	e := &Engine{
		dir:     dir,
		repo:    repo,
		now:     time.Now,
		newID:   uuid.NewString,
		logger:  telemetry.Discard(),
		metrics: telemetry.NoopMetrics(),
		tracer:  telemetry.Noop().Tracer,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// decision is the outcome of resolving one check.
type decision struct {
	granted      bool
	reason       string
	actorName    string
	resourceName string
}

// CheckPermission reports whether userID may perform action on the
// resource. The outcome is audited and counted.
func (e *Engine) CheckPermission(ctx context.Context, userID string, action team.Action, rt ResourceType, resourceID string) bool {
	ctx, span := telemetry.StartSpan(ctx, e.tracer, "permission.check",
		telemetry.AttrAction.String(string(action)),
		telemetry.AttrResourceType.String(string(rt)),
	)
	defer span.End()

	d := e.decide(ctx, userID, action, rt, resourceID)
	span.SetAttributes(telemetry.AttrGranted.Bool(d.granted))

	entry := AuditEntry{
		ActorID:      userID,
		ActorName:    d.actorName,
		Action:       "check:" + string(action),
		ResourceType: rt,
		ResourceID:   resourceID,
		ResourceName: d.resourceName,
		Success:      d.granted,
		Metadata:     map[string]string{"reason": d.reason},
	}
	if !d.granted {
		entry.Error = d.reason
	}
	e.audit(ctx, entry)
	e.metrics.PermissionDecisions.Add(ctx, 1, metric.WithAttributes(
		telemetry.AttrAction.String(string(action)),
		telemetry.AttrResourceType.String(string(rt)),
		telemetry.AttrGranted.Bool(d.granted),
	))
	return d.granted
}

func (e *Engine) decide(ctx context.Context, userID string, action team.Action, rt ResourceType, resourceID string) decision {
	member, err := e.dir.GetTeamMember(ctx, userID)
	if err != nil {
		return decision{reason: "not a team member"}
	}
	d := decision{actorName: member.Name}

	var mem *team.Memory
	if rt == ResourceMemory && resourceID != "" {
		mem, err = e.dir.GetTeamMemory(ctx, resourceID)
		if err != nil {
			d.reason = "memory not found"
			return d
		}
		d.resourceName = mem.Title
	}

	rules, err := e.applicableRules(ctx, userID, rt, resourceID)
	if err != nil {
		e.logger.Warn("permission rules unavailable", "error", err)
	}
	for _, r := range rules {
		g, ok := r.grant(action)
		if !ok || !e.conditionsHold(ctx, r, userID, resourceID, mem) {
			continue
		}
		d.granted = g.Granted
		d.reason = "rule " + r.ID
		return d
	}

	switch {
	case mem != nil && mem.CreatedBy == userID:
		d.granted, d.reason = true, "creator"
	case !member.Can(action):
		d.reason = "role " + string(member.Role) + " lacks " + string(action)
	case mem != nil && mem.Visibility == team.VisibilityPrivate:
		d.reason = "private memory"
	default:
		d.granted, d.reason = true, "role "+string(member.Role)
	}
	return d
}

// applicableRules returns live rules bound to userID for the resource,
// resource-specific rules first, newest first within each group.
func (e *Engine) applicableRules(ctx context.Context, userID string, rt ResourceType, resourceID string) ([]Rule, error) {
	all, err := e.repo.Rules(ctx)
	if err != nil {
		return nil, err
	}
	now := e.now()
	var out []Rule
	for _, r := range all {
		if !r.live(now) || r.ResourceType != rt || r.SubjectType != SubjectUser || r.SubjectID != userID {
			continue
		}
		if r.ResourceID != "" && r.ResourceID != resourceID {
			continue
		}
		out = append(out, r)
	}
	slices.SortStableFunc(out, func(a, b Rule) int {
		if sa, sb := a.ResourceID != "", b.ResourceID != ""; sa != sb {
			if sa {
				return -1
			}
			return 1
		}
		return byNewest(a, b)
	})
	return out, nil
}

func (e *Engine) conditionsHold(ctx context.Context, r Rule, userID, resourceID string, mem *team.Memory) bool {
	now := e.now()
	for _, c := range r.Conditions {
		switch c.Kind {
		case CondTimeWindow:
			if (!c.Start.IsZero() && now.Before(c.Start)) || (!c.End.IsZero() && !now.Before(c.End)) {
				return false
			}
		case CondMemoryType:
			if mem == nil || mem.Type != c.MemoryType {
				return false
			}
		case CondApprovalRequired:
			if !e.hasApproval(ctx, userID, r.ResourceType, resourceID, now) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func (e *Engine) hasApproval(ctx context.Context, userID string, rt ResourceType, resourceID string, now time.Time) bool {
	reqs, err := e.repo.Requests(ctx)
	if err != nil {
		return false
	}
	return slices.ContainsFunc(reqs, func(r AccessRequest) bool {
		return r.Status == StatusApproved &&
			r.RequesterID == userID &&
			r.ResourceType == rt &&
			r.ResourceID == resourceID &&
			(r.ExpiresAt == nil || now.Before(*r.ExpiresAt))
	})
}

// ─── Audit ───────────────────────────────────────────────────────────────────

// RecordAction audits a mutating team action. A non-nil err marks the
// entry as failed.
func (e *Engine) RecordAction(ctx context.Context, actorID, action string, rt ResourceType, resourceID, resourceName string, err error, metadata map[string]string) {
	entry := AuditEntry{
		ActorID:      actorID,
		Action:       action,
		ResourceType: rt,
		ResourceID:   resourceID,
		ResourceName: resourceName,
		Success:      err == nil,
		Metadata:     metadata,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if m, lookupErr := e.dir.GetTeamMember(ctx, actorID); lookupErr == nil {
		entry.ActorName = m.Name
	}
	e.audit(ctx, entry)
}

// AuditLog returns matching entries, newest first.
func (e *Engine) AuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	all, err := e.repo.Audit(ctx)
	if err != nil {
		return nil, err
	}
	out := []AuditEntry{}
	for i := len(all) - 1; i >= 0; i-- {
		if f.match(all[i]) {
			out = append(out, all[i])
			if f.Limit > 0 && len(out) == f.Limit {
				break
			}
		}
	}
	return out, nil
}

func (e *Engine) audit(ctx context.Context, entry AuditEntry) {
	entry.ID = e.newID()
	entry.Timestamp = e.now().UTC()
	if err := e.repo.AppendAudit(ctx, entry); err != nil {
		e.logger.Error("audit append failed", "error", err, "action", entry.Action)
	}
	e.metrics.AuditEntries.Add(ctx, 1)

	level := slog.LevelInfo
	if !entry.Success {
		level = slog.LevelWarn
	}
	e.logger.Log(ctx, level, "audit",
		"actor_id", entry.ActorID,
		"action", entry.Action,
		"resource_type", entry.ResourceType,
		"resource_id", entry.ResourceID,
		"success", entry.Success,
		"error", entry.Error,
	)
}

// byNewest orders rules newest first.
func byNewest(a, b Rule) int { return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano()) }
