package checkout

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistry_SweepDropsIdleFlows(t *testing.T) {
	h := newHarness(t, harnessOpts{successRate: 1, latency: time.Hour})
	reg := h.svc.registry

	idle, err := h.svc.Begin(context.Background(), testUser)
	require.NoError(t, err)
	busy := h.toReview(t, validMpesa())
	require.NoError(t, busy.Submit(context.Background()))
	t.Cleanup(busy.Cancel)

	reg.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	removed := reg.Sweep()

	assert.Equal(t, 1, removed)
	_, ok := reg.Get(idle.ID())
	assert.False(t, ok)
	_, ok = reg.Get(busy.ID())
	assert.True(t, ok, "flows waiting on a payment stay registered")
}

func TestRegistry_SweepKeepsFreshFlows(t *testing.T) {
	reg := NewRegistry(time.Minute)
	h := newHarness(t, harnessOpts{})
	h.svc.registry = reg

	f, err := h.svc.Begin(context.Background(), testUser)
	require.NoError(t, err)

	assert.Equal(t, 0, reg.Sweep())
	_, ok := reg.Get(f.ID())
	assert.True(t, ok)
}

func TestRegistry_RunStopsWithContext(t *testing.T) {
	reg := NewRegistry(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		reg.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRegistry_SweepUsesServiceClock(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	var skew atomic.Int64
	skew.Store(int64(time.Hour))
	clock := func() time.Time { return time.Now().Add(time.Duration(skew.Load())) }

	reg := NewRegistry(time.Minute)
	svc := NewService(h.carts, h.gw, h.svc.tracker, rules, h.svc.calc, reg,
		zap.NewNop(), metrics.NewNop(), Options{GatewayTimeout: time.Second, Now: clock})

	f, err := svc.Begin(context.Background(), testUser)
	require.NoError(t, err)
	require.NoError(t, f.UpdateShipping(validShipping()))
	assert.Equal(t, 0, reg.Sweep())

	skew.Add(int64(2 * time.Minute))

	assert.Equal(t, 1, reg.Sweep())
	_, ok := reg.Get(f.ID())
	assert.False(t, ok)
}
