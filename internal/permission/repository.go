package permission

import (
	"context"
	"slices"
	"sync"

	"github.com/HendryAvila/devmem/internal/derrors"
)

// DefaultMaxAudit bounds the audit trail. Older entries are dropped.
const DefaultMaxAudit = 10000

// Repository persists rules, access requests and the audit trail.
type Repository interface {
	PutRule(ctx context.Context, r Rule) error
	GetRule(ctx context.Context, id string) (Rule, error)
	Rules(ctx context.Context) ([]Rule, error)

	PutRequest(ctx context.Context, r AccessRequest) error
	GetRequest(ctx context.Context, id string) (AccessRequest, error)
	Requests(ctx context.Context) ([]AccessRequest, error)

	AppendAudit(ctx context.Context, e AuditEntry) error
	Audit(ctx context.Context) ([]AuditEntry, error)
}

// MemoryRepository is an in-process Repository. Rules and requests keep
// insertion order; the audit trail keeps at most maxAudit entries.
type MemoryRepository struct {
	mu        sync.RWMutex
	rules     map[string]Rule
	ruleOrder []string
	reqs      map[string]AccessRequest
	reqOrder  []string
	audit     []AuditEntry
	maxAudit  int
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository returns an empty repository. maxAudit <= 0 selects
// DefaultMaxAudit.
func NewMemoryRepository(maxAudit int) *MemoryRepository {
	if maxAudit <= 0 {
		maxAudit = DefaultMaxAudit
	}
	return &MemoryRepository{
		rules:    map[string]Rule{},
		reqs:     map[string]AccessRequest{},
		maxAudit: maxAudit,
	}
}

func (m *MemoryRepository) PutRule(_ context.Context, r Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[r.ID]; !ok {
		m.ruleOrder = append(m.ruleOrder, r.ID)
	}
	r.Permissions = slices.Clone(r.Permissions)
	r.Conditions = slices.Clone(r.Conditions)
	m.rules[r.ID] = r
	return nil
}

func (m *MemoryRepository) GetRule(_ context.Context, id string) (Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rules[id]
	if !ok {
		return Rule{}, derrors.NotFound("rule", id)
	}
	return r, nil
}

func (m *MemoryRepository) Rules(context.Context) ([]Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Rule, 0, len(m.ruleOrder))
	for _, id := range m.ruleOrder {
		out = append(out, m.rules[id])
	}
	return out, nil
}

func (m *MemoryRepository) PutRequest(_ context.Context, r AccessRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reqs[r.ID]; !ok {
		m.reqOrder = append(m.reqOrder, r.ID)
	}
	r.Permissions = slices.Clone(r.Permissions)
	m.reqs[r.ID] = r
	return nil
}

func (m *MemoryRepository) GetRequest(_ context.Context, id string) (AccessRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reqs[id]
	if !ok {
		return AccessRequest{}, derrors.NotFound("access request", id)
	}
	return r, nil
}

func (m *MemoryRepository) Requests(context.Context) ([]AccessRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]AccessRequest, 0, len(m.reqOrder))
	for _, id := range m.reqOrder {
		out = append(out, m.reqs[id])
	}
	return out, nil
}

func (m *MemoryRepository) AppendAudit(_ context.Context, e AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, e)
	if over := len(m.audit) - m.maxAudit; over > 0 {
		m.audit = slices.Delete(m.audit, 0, over)
	}
	return nil
}

func (m *MemoryRepository) Audit(context.Context) ([]AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.audit), nil
}
