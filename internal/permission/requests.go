package permission

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/HendryAvila/devmem/internal/derrors"
	"github.com/HendryAvila/devmem/internal/team"
)

// --- Access request lifecycle ---
//
// pending ──approve──▶ approved
//    └─────deny─────▶ denied
//
// Approved and denied are terminal.

// CanTransition reports whether a request may move from one status to
// another.
func CanTransition(from, to RequestStatus) bool {
	return from == StatusPending && (to == StatusApproved || to == StatusDenied)
}

func transition(req *AccessRequest, to RequestStatus) error {
	if !CanTransition(req.Status, to) {
		return derrors.InvalidTransition("access request", req.ID, string(req.Status), string(to))
	}
	req.Status = to
	return nil
}

// CreateAccessRequest files a pending request for actions on a resource.
func (e *Engine) CreateAccessRequest(ctx context.Context, requesterID string, rt ResourceType, resourceID string, actions []team.Action, reason string, expiresAt *time.Time) (*AccessRequest, error) {
	fail := func(err error) (*AccessRequest, error) {
		e.RecordAction(ctx, requesterID, "request_access", rt, resourceID, "", err,
			map[string]string{"permissions": joinActions(actions)})
		return nil, err
	}
	if _, err := e.dir.GetTeamMember(ctx, requesterID); err != nil {
		return fail(err)
	}
	if err := validateActions(actions); err != nil {
		return fail(err)
	}
	if rt == "" || resourceID == "" {
		return fail(derrors.InvalidInput("resource type and id are required"))
	}

	req := AccessRequest{
		ID:           e.newID(),
		RequesterID:  requesterID,
		ResourceType: rt,
		ResourceID:   resourceID,
		Permissions:  slices.Clone(actions),
		Reason:       strings.TrimSpace(reason),
		Status:       StatusPending,
		CreatedAt:    e.now().UTC(),
		ExpiresAt:    expiresAt,
	}
	if err := e.repo.PutRequest(ctx, req); err != nil {
		return fail(derrors.Storage("create access request", err))
	}
	e.RecordAction(ctx, requesterID, "request_access", rt, resourceID, "", nil,
		map[string]string{"request_id": req.ID, "permissions": joinActions(actions)})
	return &req, nil
}

// ApproveAccessRequest approves a pending request and materializes a rule
// granting the requested actions until the request expires.
func (e *Engine) ApproveAccessRequest(ctx context.Context, requestID, approverID string) (*AccessRequest, error) {
	req, err := e.loadForDecision(ctx, requestID, approverID, "approve_access")
	if err != nil {
		return nil, err
	}
	if err := transition(&req, StatusApproved); err != nil {
		e.RecordAction(ctx, approverID, "approve_access", req.ResourceType, req.ResourceID, "", err,
			map[string]string{"request_id": req.ID})
		return nil, err
	}
	now := e.now().UTC()
	req.ApprovedBy = approverID
	req.ApprovedAt = &now

	grants := make([]Grant, 0, len(req.Permissions))
	for _, a := range req.Permissions {
		grants = append(grants, Grant{Action: a, Granted: true})
	}
	rule := Rule{
		ID:           e.newID(),
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		SubjectType:  SubjectUser,
		SubjectID:    req.RequesterID,
		Permissions:  grants,
		CreatedBy:    approverID,
		CreatedAt:    now,
		ExpiresAt:    req.ExpiresAt,
		Active:       true,
	}
	if err := e.repo.PutRule(ctx, rule); err != nil {
		return nil, e.decisionFailed(ctx, approverID, "approve_access", req, derrors.Storage("approve access request", err))
	}
	if err := e.repo.PutRequest(ctx, req); err != nil {
		return nil, e.decisionFailed(ctx, approverID, "approve_access", req, derrors.Storage("approve access request", err))
	}
	e.RecordAction(ctx, approverID, "approve_access", req.ResourceType, req.ResourceID, "", nil,
		map[string]string{"request_id": req.ID, "rule_id": rule.ID, "requester_id": req.RequesterID})
	return &req, nil
}

// DenyAccessRequest denies a pending request.
func (e *Engine) DenyAccessRequest(ctx context.Context, requestID, denierID, reason string) (*AccessRequest, error) {
	req, err := e.loadForDecision(ctx, requestID, denierID, "deny_access")
	if err != nil {
		return nil, err
	}
	if err := transition(&req, StatusDenied); err != nil {
		e.RecordAction(ctx, denierID, "deny_access", req.ResourceType, req.ResourceID, "", err,
			map[string]string{"request_id": req.ID})
		return nil, err
	}
	now := e.now().UTC()
	req.DeniedBy = denierID
	req.DeniedAt = &now
	req.DenyReason = strings.TrimSpace(reason)
	if err := e.repo.PutRequest(ctx, req); err != nil {
		return nil, e.decisionFailed(ctx, denierID, "deny_access", req, derrors.Storage("deny access request", err))
	}
	e.RecordAction(ctx, denierID, "deny_access", req.ResourceType, req.ResourceID, "", nil,
		map[string]string{"request_id": req.ID, "requester_id": req.RequesterID})
	return &req, nil
}

// loadForDecision resolves the decider and the request. Requesters may not
// decide their own requests. Failures are audited under auditAction.
func (e *Engine) loadForDecision(ctx context.Context, requestID, deciderID, auditAction string) (AccessRequest, error) {
	if _, err := e.dir.GetTeamMember(ctx, deciderID); err != nil {
		e.RecordAction(ctx, deciderID, auditAction, "", "", "", err, map[string]string{"request_id": requestID})
		return AccessRequest{}, err
	}
	req, err := e.repo.GetRequest(ctx, requestID)
	if err != nil {
		e.RecordAction(ctx, deciderID, auditAction, "", "", "", err, map[string]string{"request_id": requestID})
		return AccessRequest{}, err
	}
	if req.RequesterID == deciderID {
		return req, e.decisionFailed(ctx, deciderID, auditAction, req,
			derrors.PermissionDenied(deciderID, "decide own", "access request "+req.ID))
	}
	return req, nil
}

func (e *Engine) decisionFailed(ctx context.Context, deciderID, auditAction string, req AccessRequest, err error) error {
	e.RecordAction(ctx, deciderID, auditAction, req.ResourceType, req.ResourceID, "", err,
		map[string]string{"request_id": req.ID})
	return err
}

// GetAccessRequest returns one request.
func (e *Engine) GetAccessRequest(ctx context.Context, id string) (*AccessRequest, error) {
	req, err := e.repo.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// ListAccessRequests returns requests in creation order. An empty status
// lists all of them.
func (e *Engine) ListAccessRequests(ctx context.Context, status RequestStatus) ([]AccessRequest, error) {
	all, err := e.repo.Requests(ctx)
	if err != nil {
		return nil, err
	}
	out := []AccessRequest{}
	for _, r := range all {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func validateActions(actions []team.Action) error {
	if len(actions) == 0 {
		return derrors.InvalidInput("at least one permission is required")
	}
	for _, a := range actions {
		if !a.Valid() {
			return derrors.InvalidInput("unknown permission %q", a)
		}
	}
	return nil
}

func joinActions(actions []team.Action) string {
	parts := make([]string, len(actions))
	for i, a := range actions {
		parts[i] = string(a)
	}
	return strings.Join(parts, ",")
}
