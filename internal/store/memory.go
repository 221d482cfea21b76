package store

import (
	"context"
	"sync"
	"time"

	"github.com/sitechat/relay/internal/domain"
)

// Memory is an in-process implementation of all four store interfaces,
// used for tests and local development.
type Memory struct {
	mu      sync.Mutex
	tenants map[string]*domain.TenantConfig
	limits  map[limitKey][]time.Time
	turns   []domain.ConversationRow
	metrics []domain.MetricsRecord
}

type limitKey struct {
	clientID string
	ip       string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tenants: make(map[string]*domain.TenantConfig),
		limits:  make(map[limitKey][]time.Time),
	}
}

// Stores returns the memory store wired as every collaborator interface.
func (m *Memory) Stores() Stores {
	return Stores{
		Tenants:    m,
		RateLimits: memoryRateLimits{m},
		Logs:       m,
		Metrics:    memoryMetrics{m},
	}
}

// PutTenant registers or replaces a tenant.
func (m *Memory) PutTenant(t *domain.TenantConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[t.ID] = t
}

// Lookup implements TenantStore.
func (m *Memory) Lookup(_ context.Context, clientID string) (*domain.TenantConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[clientID]
	if !ok {
		return nil, ErrTenantNotFound
	}
	cp := *t
	return &cp, nil
}

// InsertAt records an admission with an explicit timestamp. Tests use it to
// place records at window boundaries.
func (m *Memory) InsertAt(_ context.Context, clientID, ip string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := limitKey{clientID, ip}
	m.limits[k] = append(m.limits[k], at)
	return nil
}

// InsertTurns implements ConversationLogStore.
func (m *Memory) InsertTurns(_ context.Context, rows []domain.ConversationRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, rows...)
	return nil
}

// Turns returns a copy of all persisted conversation rows.
func (m *Memory) Turns() []domain.ConversationRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ConversationRow, len(m.turns))
	copy(out, m.turns)
	return out
}

// Metrics returns a copy of all persisted metrics records.
func (m *Memory) Metrics() []domain.MetricsRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.MetricsRecord, len(m.metrics))
	copy(out, m.metrics)
	return out
}

// memoryRateLimits adapts Memory to RateLimitStore.
type memoryRateLimits struct{ m *Memory }

func (r memoryRateLimits) CountSince(_ context.Context, clientID, ip string, since time.Time) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int
	for _, ts := range r.m.limits[limitKey{clientID, ip}] {
		if !ts.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r memoryRateLimits) Insert(ctx context.Context, clientID, ip string) error {
	return r.m.InsertAt(ctx, clientID, ip, time.Now())
}

// memoryMetrics adapts Memory to MetricsStore.
type memoryMetrics struct{ m *Memory }

func (x memoryMetrics) Insert(_ context.Context, rec domain.MetricsRecord) error {
	x.m.mu.Lock()
	defer x.m.mu.Unlock()
	x.m.metrics = append(x.m.metrics, rec)
	return nil
}
