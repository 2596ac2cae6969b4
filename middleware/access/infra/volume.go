package infra

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// VolumeStore conta volume por endereço com um token bucket (x/time/rate).
//
// É independente da reputação: estourar o volume não conta como tentativa.
// Endereços parados somem na limpeza periódica.
type VolumeStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rps     rate.Limit
	burst   int

	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
	logger       zerolog.Logger
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type VolumeOption func(*VolumeStore)

func WithIdleTTL(d time.Duration) VolumeOption {
	return func(s *VolumeStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) VolumeOption {
	return func(s *VolumeStore) { s.cleanupEvery = d }
}

func WithVolumeClock(now func() time.Time) VolumeOption {
	return func(s *VolumeStore) { s.now = now }
}

func WithVolumeLogger(l zerolog.Logger) VolumeOption {
	return func(s *VolumeStore) { s.logger = l }
}

func NewVolumeStore(rps float64, burst int, opts ...VolumeOption) *VolumeStore {
	s := &VolumeStore{
		buckets:      make(map[string]*bucket),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allow implementa domain.VolumeLimiter.
func (s *VolumeStore) Allow(address string) bool {
	now := s.now()
	return s.bucketFor(address, now).AllowN(now, 1)
}

// RetryAfter estima quanto falta para o endereço ter um token de novo.
// Endereço sem bucket (ou com token sobrando) devolve 0.
func (s *VolumeStore) RetryAfter(address string) time.Duration {
	s.mu.Lock()
	b, ok := s.buckets[address]
	s.mu.Unlock()
	if !ok || s.rps <= 0 {
		return 0
	}

	missing := 1 - b.lim.TokensAt(s.now())
	if missing <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(missing / float64(s.rps) * float64(time.Second)))
}

func (s *VolumeStore) bucketFor(address string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.buckets[address]; ok {
		b.lastSeen = now
		return b.lim
	}
	lim := rate.NewLimiter(s.rps, s.burst)
	s.buckets[address] = &bucket{lim: lim, lastSeen: now}
	return lim
}

// Cleanup remove buckets parados há mais de idleTTL e diz quantos saíram.
func (s *VolumeStore) Cleanup() int {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for addr, b := range s.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(s.buckets, addr)
			removed++
		}
	}
	return removed
}

func (s *VolumeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// StartJanitor roda Cleanup a cada cleanupEvery até o contexto acabar.
func (s *VolumeStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := s.Cleanup(); n > 0 {
					s.logger.Debug().Int("removed", n).Int("remaining", s.Len()).Msg("idle volume buckets removed")
				}
			}
		}
	}()
}
