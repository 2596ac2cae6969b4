package infra

import (
	"context"
	"testing"
	"time"

	"access-gateway/middleware/access/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersByLabel(t *testing.T) {
	got := countersByLabel(map[string]string{
		"guest:allowed":         "4",
		"guest:denied":          "2",
		"GET /api/v1:x:allowed": "7",
		"broken":                "1",
		"trusted:denied":        "nan",
		"unauthorized:denied":   "3",
		":allowed":              "9",
		"admin:unknown-outcome": "5",
	})

	assert.Equal(t, domain.Counters{Allowed: 4, Denied: 2}, got["guest"])
	assert.Equal(t, domain.Counters{Allowed: 7}, got["GET /api/v1:x"])
	assert.Equal(t, domain.Counters{Denied: 3}, got["unauthorized"])
	assert.Equal(t, domain.Counters{}, got["admin"])
	assert.NotContains(t, got, "broken")
	assert.NotContains(t, got, "trusted")
	assert.NotContains(t, got, "")
}

func TestRedisStatsStore_RecordAndSnapshot(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisStatsStore(rdb,
		WithStatsPrefix("gw:stats:"),
		WithStatsTTL(time.Hour),
		WithStatsTrackAddresses(true),
	)
	at := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, domain.DecisionEvent{
		Address: "10.0.0.1", Tier: domain.TierTrusted, Status: domain.StatusNormal,
		Allowed: true, Method: "GET", Path: "/api/dados", At: at,
	}))
	require.NoError(t, s.Record(ctx, domain.DecisionEvent{
		Address: "10.0.0.1", Tier: domain.TierTrusted, Status: domain.StatusNormal,
		Allowed: true, Method: "GET", Path: "/api/dados", At: at,
	}))
	require.NoError(t, s.Record(ctx, domain.DecisionEvent{
		Address: "192.0.2.9", Tier: domain.TierUnauthorized, Status: domain.StatusSuspended,
		Method: "POST", Path: "/logs", At: at,
	}))

	snap, err := s.SnapshotContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Counters{Allowed: 2, Denied: 1}, snap.Total)
	assert.Equal(t, domain.Counters{Allowed: 2}, snap.ByTier["trusted"])
	assert.Equal(t, domain.Counters{Denied: 1}, snap.ByStatus["suspended"])
	assert.Equal(t, domain.Counters{Allowed: 2}, snap.ByRoute["GET /api/dados"])
	assert.Equal(t, domain.Counters{Denied: 1}, snap.ByRoute["POST /logs"])
	assert.Nil(t, snap.ByAddress)

	assert.Equal(t, time.Hour, mr.TTL("gw:stats:minute:202405011030"))
	assert.Equal(t, time.Hour, mr.TTL("gw:stats:addr:10.0.0.1"))
	assert.Equal(t, time.Duration(0), mr.TTL("gw:stats:total"), "aggregates must not expire")
	assert.Equal(t, "2", mr.HGet("gw:stats:addr:10.0.0.1", "allowed"))
}

func TestRedisStatsStore_SnapshotWhenServerDown(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisStatsStore(rdb)
	mr.Close()

	_, err := s.SnapshotContext(context.Background())
	require.Error(t, err)
	assert.Error(t, s.Record(context.Background(), domain.DecisionEvent{Allowed: true}))
	assert.Equal(t, domain.StatsSnapshot{}, s.Snapshot())
}
