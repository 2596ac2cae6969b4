package infra

import (
	"context"
	"testing"
	"time"

	"access-gateway/middleware/access/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestAsyncStatsStore_ForwardsToInner(t *testing.T) {
	inner := NewMemoryStatsStore()
	s, err := NewAsyncStatsStore(inner, 2, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Record(ctx, domain.DecisionEvent{Allowed: true}))
	cancel()

	require.Eventually(t, func() bool { return inner.Total().Allowed == 1 }, time.Second, 5*time.Millisecond)
}

type slowStats struct{ release chan struct{} }

func (s slowStats) Record(context.Context, domain.DecisionEvent) error {
	<-s.release
	return nil
}

func TestAsyncStatsStore_DropsWhenFull(t *testing.T) {
	inner := slowStats{release: make(chan struct{})}
	s, err := NewAsyncStatsStore(inner, 1, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()
	defer close(inner.release)

	require.NoError(t, s.Record(context.Background(), domain.DecisionEvent{}))
	require.Eventually(t, func() bool {
		return s.Record(context.Background(), domain.DecisionEvent{}) != nil
	}, time.Second, time.Millisecond)
	require.GreaterOrEqual(t, s.Dropped(), int64(1))
}
