package infra

import (
	"context"
	"sync"

	"access-gateway/middleware/access/domain"
)

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração e não é indicada para produção.
type MemoryStatsStore struct {
	mu        sync.Mutex
	total     domain.Counters
	byTier    map[string]domain.Counters
	byStatus  map[string]domain.Counters
	byRoute   map[string]domain.Counters
	byAddress map[string]domain.Counters

	trackAddresses bool
}

type MemoryStatsOption func(*MemoryStatsStore)

// WithTrackAddresses liga os contadores por endereço (alta cardinalidade).
func WithTrackAddresses(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackAddresses = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byTier:    make(map[string]domain.Counters),
		byStatus:  make(map[string]domain.Counters),
		byRoute:   make(map[string]domain.Counters),
		byAddress: make(map[string]domain.Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.DecisionEvent) error {
	route := ev.Method + " " + ev.Path

	s.mu.Lock()
	defer s.mu.Unlock()

	add(&s.total, ev.Allowed)
	bump(s.byTier, string(ev.Tier), ev.Allowed)
	bump(s.byStatus, string(ev.Status), ev.Allowed)
	bump(s.byRoute, route, ev.Allowed)
	if s.trackAddresses {
		bump(s.byAddress, ev.Address, ev.Allowed)
	}
	return nil
}

func bump(m map[string]domain.Counters, key string, allowed bool) {
	if key == "" {
		key = "none"
	}
	c := m[key]
	add(&c, allowed)
	m[key] = c
}

func add(c *domain.Counters, allowed bool) {
	if allowed {
		c.Allowed++
		return
	}
	c.Denied++
}

func (s *MemoryStatsStore) Total() domain.Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) Snapshot() domain.StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := domain.StatsSnapshot{
		Total:    s.total,
		ByTier:   copyCounters(s.byTier),
		ByStatus: copyCounters(s.byStatus),
		ByRoute:  copyCounters(s.byRoute),
	}
	if s.trackAddresses {
		snap.ByAddress = copyCounters(s.byAddress)
	}
	return snap
}

func copyCounters(m map[string]domain.Counters) map[string]domain.Counters {
	out := make(map[string]domain.Counters, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
