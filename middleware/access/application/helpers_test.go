package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"access-gateway/middleware/access/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type memPersister struct {
	mu      sync.Mutex
	snap    *domain.DynamicSnapshot
	saveErr error
	loadErr error
	saves   int
}

func (p *memPersister) Load(context.Context) (domain.DynamicSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loadErr != nil {
		return domain.DynamicSnapshot{}, p.loadErr
	}
	if p.snap == nil {
		return domain.DynamicSnapshot{}, domain.ErrNoSnapshot
	}
	out := *p.snap
	out.Addresses = append([]domain.AllowlistEntry(nil), p.snap.Addresses...)
	return out, nil
}

func (p *memPersister) Save(_ context.Context, snap domain.DynamicSnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saveErr != nil {
		return p.saveErr
	}
	p.saves++
	cp := snap
	cp.Addresses = append([]domain.AllowlistEntry(nil), snap.Addresses...)
	p.snap = &cp
	return nil
}

// blockingPool nunca concede a vaga.
type blockingPool struct{}

func (blockingPool) Acquire(ctx context.Context) (func(), bool) {
	<-ctx.Done()
	return nil, false
}

type fakeStats struct {
	mu     sync.Mutex
	events []domain.DecisionEvent
	err    error
}

func (s *fakeStats) Record(_ context.Context, ev domain.DecisionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

type fakeGeo struct {
	info  domain.GeoInfo
	calls int
}

func (g *fakeGeo) Resolve(context.Context, string) domain.GeoInfo {
	g.calls++
	return g.info
}

var errDisk = errors.New("disk full")

// fakeIndex é uma ExpiryIndex ingênua, só para os testes de Sweep.
type fakeIndex struct {
	m map[string]time.Time
}

func newFakeIndex() *fakeIndex { return &fakeIndex{m: map[string]time.Time{}} }

func (f *fakeIndex) Put(a string, until time.Time) { f.m[a] = until }
func (f *fakeIndex) Remove(a string)               { delete(f.m, a) }
func (f *fakeIndex) Len() int                      { return len(f.m) }
func (f *fakeIndex) Due(now time.Time) []string {
	var out []string
	for a, u := range f.m {
		if !now.Before(u) {
			out = append(out, a)
		}
	}
	return out
}
