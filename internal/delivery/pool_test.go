package delivery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookrelay/hookrelay/internal/config"
	"github.com/hookrelay/hookrelay/internal/models"
)

func TestPoolRetriesDueDelivery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ep := env.createEndpoint(t, srv.URL, nil)

	// A retry that came due a minute ago.
	d := env.createDelivery(t, ep)
	past := time.Now().UTC().Add(-time.Minute)
	d.Status = models.DeliveryFailed
	d.Attempt = 1
	d.NextAttemptAt = &past
	require.NoError(t, env.store.UpdateDelivery(ctx, d))

	pool := NewPool(config.DeliveryConfig{
		Workers:      2,
		PollInterval: 10 * time.Millisecond,
	}, env.store, env.exec, zerolog.Nop())

	pool.Start(ctx)
	defer pool.Stop()

	require.Eventually(t, func() bool {
		stored, err := env.store.GetDelivery(ctx, d.ID)
		return err == nil && stored != nil && stored.Status == models.DeliverySent
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, int32(1), hits.Load())

	stored, err := env.store.GetDelivery(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Attempt)
	assert.Nil(t, stored.NextAttemptAt)
}

func TestPoolRunsOneAttemptAtATimePerDelivery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// The receiver is slower than many poll ticks; the delivery must still be
	// attempted exactly once because claiming it cleared its schedule.
	var hits, inflight, maxInflight atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		cur := inflight.Add(1)
		for {
			m := maxInflight.Load()
			if cur <= m || maxInflight.CompareAndSwap(m, cur) {
				break
			}
		}
		time.Sleep(300 * time.Millisecond)
		inflight.Add(-1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ep := env.createEndpoint(t, srv.URL, nil)

	d := env.createDelivery(t, ep)
	past := time.Now().UTC().Add(-time.Minute)
	d.Status = models.DeliveryFailed
	d.Attempt = 1
	d.NextAttemptAt = &past
	require.NoError(t, env.store.UpdateDelivery(ctx, d))

	pool := NewPool(config.DeliveryConfig{
		Workers:      8,
		PollInterval: 20 * time.Millisecond,
	}, env.store, env.exec, zerolog.Nop())

	pool.Start(ctx)
	defer pool.Stop()

	require.Eventually(t, func() bool {
		stored, err := env.store.GetDelivery(ctx, d.ID)
		return err == nil && stored != nil && stored.Status == models.DeliverySent
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, int32(1), maxInflight.Load())

	stored, err := env.store.GetDelivery(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Attempt)

	attempts, err := env.store.ListAttempts(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, 2, attempts[0].AttemptNumber)
}

func TestPoolIgnoresUnscheduledDeliveries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ep := env.createEndpoint(t, srv.URL, nil)

	// Pending with no schedule: owned by a synchronous first attempt.
	env.createDelivery(t, ep)

	pool := NewPool(config.DeliveryConfig{
		Workers:      2,
		PollInterval: 10 * time.Millisecond,
	}, env.store, env.exec, zerolog.Nop())

	pool.Start(ctx)
	time.Sleep(100 * time.Millisecond)
	pool.Stop()

	assert.Zero(t, hits.Load())
}
