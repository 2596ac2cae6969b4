package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPool struct{ calls int }

func (p *countingPool) Acquire(context.Context) (func(), bool) {
	p.calls++
	return func() {}, true
}

func TestSlotGate_NilPoolAlwaysGrants(t *testing.T) {
	release, ok := SlotGate{}.Acquire(t.Context())
	require.True(t, ok)
	release()
}

func TestSlotGate_TimeoutBoundsTheWait(t *testing.T) {
	g := SlotGate{Pool: blockingPool{}, AcquireTimeout: 10 * time.Millisecond}

	start := time.Now()
	_, ok := g.Acquire(t.Context())

	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSlotGate_ZeroTimeoutWaitsOnCallerContext(t *testing.T) {
	pool := &countingPool{}
	_, ok := SlotGate{Pool: pool}.Acquire(t.Context())
	assert.True(t, ok)
	assert.Equal(t, 1, pool.calls)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, ok = SlotGate{Pool: blockingPool{}}.Acquire(ctx)
	assert.False(t, ok)
}

func TestSlotPool_Capacity(t *testing.T) {
	pool := NewSlotPool(2)

	r1, ok := pool.Acquire(t.Context())
	require.True(t, ok)
	r2, ok := pool.Acquire(t.Context())
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	_, ok = pool.Acquire(ctx)
	assert.False(t, ok, "third slot must not exist")

	r1()
	r3, ok := pool.Acquire(t.Context())
	assert.True(t, ok, "released slot is reusable")
	r2()
	r3()
}

func TestSlotPool_DoubleReleaseKeepsOtherHolder(t *testing.T) {
	pool := NewSlotPool(1)

	r1, ok := pool.Acquire(t.Context())
	require.True(t, ok)
	r1()

	_, ok = pool.Acquire(t.Context())
	require.True(t, ok)
	r1()

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	_, ok = pool.Acquire(ctx)
	assert.False(t, ok, "stale release must not free the current holder's slot")
}

func TestSlotPool_NonPositiveCapacityIsOne(t *testing.T) {
	pool := NewSlotPool(0)
	_, ok := pool.Acquire(t.Context())
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	_, ok = pool.Acquire(ctx)
	assert.False(t, ok)
}
