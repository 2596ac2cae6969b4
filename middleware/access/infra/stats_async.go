package infra

import (
	"context"
	"fmt"
	"sync/atomic"

	"access-gateway/middleware/access/domain"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"
)

// AsyncStatsStore tira a gravação de estatísticas do caminho da requisição.
//
// O pool não bloqueia: se estiver cheio o evento é descartado e contado.
type AsyncStatsStore struct {
	inner   domain.StatsStore
	pool    *ants.Pool
	dropped atomic.Int64
	logger  zerolog.Logger
}

func NewAsyncStatsStore(inner domain.StatsStore, workers int, logger zerolog.Logger) (*AsyncStatsStore, error) {
	if workers <= 0 {
		workers = 64
	}
	pool, err := ants.NewPool(workers, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}
	return &AsyncStatsStore{inner: inner, pool: pool, logger: logger}, nil
}

func (s *AsyncStatsStore) Record(ctx context.Context, ev domain.DecisionEvent) error {
	// o contexto da requisição acaba antes do worker rodar
	bg := context.WithoutCancel(ctx)
	err := s.pool.Submit(func() {
		if err := s.inner.Record(bg, ev); err != nil {
			s.logger.Debug().Err(err).Msg("access stats write failed")
		}
	})
	if err != nil {
		s.dropped.Add(1)
		return fmt.Errorf("stats event dropped: %w", err)
	}
	return nil
}

func (s *AsyncStatsStore) Dropped() int64 { return s.dropped.Load() }

// Close espera os workers em andamento e libera o pool.
func (s *AsyncStatsStore) Close() {
	s.pool.Release()
}
