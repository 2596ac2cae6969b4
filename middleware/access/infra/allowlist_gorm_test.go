package infra

import (
	"context"
	"fmt"
	"testing"
	"time"

	"access-gateway/middleware/access/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupGormPersister(t *testing.T) *GormPersister {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	p, err := NewGormPersister(db)
	if err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return p
}

func TestGormPersister_NoSnapshot(t *testing.T) {
	p := setupGormPersister(t)

	_, err := p.Load(context.Background())

	assert.ErrorIs(t, err, domain.ErrNoSnapshot)
}

func TestGormPersister_SaveReplacesSet(t *testing.T) {
	ctx := context.Background()
	p := setupGormPersister(t)
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, p.Save(ctx, domain.DynamicSnapshot{
		Addresses: []domain.AllowlistEntry{
			{Address: "203.0.113.1", Tier: domain.TierGuest, Reason: "a", AddedAt: at},
			{Address: "203.0.113.2", Tier: domain.TierTrusted, Reason: "b", AddedAt: at},
		},
		LastUpdated: at,
	}))
	require.NoError(t, p.Save(ctx, domain.DynamicSnapshot{
		Addresses: []domain.AllowlistEntry{
			{Address: "203.0.113.2", Tier: domain.TierTrusted, Reason: "b", AddedAt: at},
		},
		LastUpdated: at.Add(time.Minute),
	}))

	got, err := p.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got.Addresses, 1)
	assert.Equal(t, "203.0.113.2", got.Addresses[0].Address)
	assert.Equal(t, domain.TierTrusted, got.Addresses[0].Tier)
	assert.Equal(t, domain.OriginDynamic, got.Addresses[0].Origin)
	assert.True(t, at.Add(time.Minute).Equal(got.LastUpdated))
}

func TestGormPersister_EmptySetStillLoads(t *testing.T) {
	ctx := context.Background()
	p := setupGormPersister(t)

	require.NoError(t, p.Save(ctx, domain.DynamicSnapshot{LastUpdated: time.Now()}))
	got, err := p.Load(ctx)

	require.NoError(t, err)
	assert.Empty(t, got.Addresses)
}
