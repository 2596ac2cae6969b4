package infra

import (
	"context"
	"testing"

	"access-gateway/middleware/access/domain"
)

func TestMemoryStatsStore_Counts(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackAddresses(true))
	ctx := context.Background()

	_ = s.Record(ctx, domain.DecisionEvent{Address: "1.1.1.1", Tier: domain.TierGuest, Status: domain.StatusNormal, Allowed: true, Method: "GET", Path: "/docs"})
	_ = s.Record(ctx, domain.DecisionEvent{Address: "1.1.1.1", Tier: domain.TierGuest, Status: domain.StatusNormal, Allowed: false, Method: "GET", Path: "/api/security"})
	_ = s.Record(ctx, domain.DecisionEvent{Address: "2.2.2.2", Status: domain.StatusSuspended, Allowed: false, Method: "GET", Path: "/"})

	snap := s.Snapshot()
	if snap.Total.Allowed != 1 || snap.Total.Denied != 2 {
		t.Fatalf("expected total allowed=1 denied=2, got %+v", snap.Total)
	}
	if got := snap.ByTier["guest"]; got.Allowed != 1 || got.Denied != 1 {
		t.Fatalf("expected guest allowed=1 denied=1, got %+v", got)
	}
	if got := snap.ByTier["none"]; got.Denied != 1 {
		t.Fatalf("expected blocked-before-tier bucket, got %+v", got)
	}
	if got := snap.ByStatus["suspended"]; got.Denied != 1 {
		t.Fatalf("expected suspended denied=1, got %+v", got)
	}
	if got := snap.ByRoute["GET /docs"]; got.Allowed != 1 {
		t.Fatalf("expected route counter, got %+v", got)
	}
	if got := snap.ByAddress["1.1.1.1"]; got.Allowed != 1 || got.Denied != 1 {
		t.Fatalf("expected address counter, got %+v", got)
	}
}

func TestMemoryStatsStore_AddressesOffByDefault(t *testing.T) {
	s := NewMemoryStatsStore()
	_ = s.Record(context.Background(), domain.DecisionEvent{Address: "1.1.1.1", Allowed: true})

	if snap := s.Snapshot(); snap.ByAddress != nil {
		t.Fatalf("expected no address counters, got %+v", snap.ByAddress)
	}
	if s.Total().Allowed != 1 {
		t.Fatalf("expected total allowed=1")
	}
}
