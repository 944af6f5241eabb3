package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookrelay/hookrelay/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func seedTenant(t *testing.T, store *SQLiteStorage) *models.Tenant {
	t.Helper()
	now := time.Now().UTC()
	tenant := &models.Tenant{
		ID:        models.NewID("tn"),
		Name:      "acme",
		APIKey:    models.NewAPIKey(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.CreateTenant(context.Background(), tenant))
	return tenant
}

func seedEndpoint(t *testing.T, store *SQLiteStorage, tenantID string) *models.Endpoint {
	t.Helper()
	now := time.Now().UTC()
	ep := &models.Endpoint{
		ID:             models.NewID("ep"),
		TenantID:       tenantID,
		Name:           "orders",
		URL:            "https://hooks.example.com/orders",
		Secret:         models.NewSecret(),
		EventTypes:     []string{"order.paid", "order.refunded"},
		Headers:        map[string]string{"X-Env": "prod"},
		TimeoutSeconds: 30,
		RetryLimit:     3,
		VerifySSL:      true,
		Status:         models.EndpointActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, store.CreateEndpoint(context.Background(), ep))
	return ep
}

func seedDelivery(t *testing.T, store *SQLiteStorage, ep *models.Endpoint) *models.Delivery {
	t.Helper()
	now := time.Now().UTC()
	d := &models.Delivery{
		ID:         models.NewID("dlv"),
		EndpointID: ep.ID,
		TenantID:   ep.TenantID,
		EventType:  "order.paid",
		Payload:    json.RawMessage(`{"id":1}`),
		Status:     models.DeliveryPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, store.CreateDelivery(context.Background(), d))
	return d
}

func TestTenantRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, store)

	got, err := store.GetTenant(ctx, tenant.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, tenant.Name, got.Name)

	byKey, err := store.GetTenantByAPIKey(ctx, tenant.APIKey)
	require.NoError(t, err)
	require.NotNil(t, byKey)
	assert.Equal(t, tenant.ID, byKey.ID)

	missing, err := store.GetTenantByAPIKey(ctx, "hk_nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestEndpointRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, store)
	ep := seedEndpoint(t, store, tenant.ID)

	got, err := store.GetEndpoint(ctx, ep.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ep.URL, got.URL)
	assert.Equal(t, []string{"order.paid", "order.refunded"}, got.EventTypes)
	assert.Equal(t, map[string]string{"X-Env": "prod"}, got.Headers)
	assert.True(t, got.VerifySSL)
	assert.Nil(t, got.LastSuccessAt)
}

func TestEndpointCounters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, store)
	ep := seedEndpoint(t, store, tenant.ID)

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.RecordEndpointSuccess(ctx, ep.ID, at))
	require.NoError(t, store.RecordEndpointSuccess(ctx, ep.ID, at))
	require.NoError(t, store.RecordEndpointFailure(ctx, ep.ID))

	got, err := store.GetEndpoint(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.SuccessCount)
	assert.Equal(t, int64(1), got.FailureCount)
	require.NotNil(t, got.LastSuccessAt)
}

func TestClaimDueDeliveries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, store)
	ep := seedEndpoint(t, store, tenant.ID)
	now := time.Now().UTC()

	// Unscheduled: in the hands of a synchronous first attempt, never due.
	seedDelivery(t, store, ep)

	// Due: failed with a past schedule.
	due := seedDelivery(t, store, ep)
	past := now.Add(-time.Minute)
	due.Status = models.DeliveryFailed
	due.NextAttemptAt = &past
	require.NoError(t, store.UpdateDelivery(ctx, due))

	// Not yet due.
	later := seedDelivery(t, store, ep)
	future := now.Add(time.Hour)
	later.Status = models.DeliveryFailed
	later.NextAttemptAt = &future
	require.NoError(t, store.UpdateDelivery(ctx, later))

	// Terminal, never due even with a stale schedule.
	done := seedDelivery(t, store, ep)
	done.Status = models.DeliverySent
	done.NextAttemptAt = &past
	require.NoError(t, store.UpdateDelivery(ctx, done))

	got, err := store.ClaimDueDeliveries(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, due.ID, got[0].ID)
	assert.Nil(t, got[0].NextAttemptAt)

	// Claiming cleared the schedule in the row itself.
	stored, err := store.GetDelivery(ctx, due.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.NextAttemptAt)

	// A claimed row is not handed out twice.
	again, err := store.ClaimDueDeliveries(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestAttemptLedgerQueries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	tenant := seedTenant(t, store)
	ep := seedEndpoint(t, store, tenant.ID)
	d := seedDelivery(t, store, ep)
	now := time.Now().UTC()

	mkAttempt := func(n int, success bool, age time.Duration, durationMs int64) {
		require.NoError(t, store.CreateAttempt(ctx, &models.AttemptLog{
			ID:            models.NewID("att"),
			DeliveryID:    d.ID,
			EndpointID:    ep.ID,
			EventType:     d.EventType,
			AttemptNumber: n,
			Success:       success,
			StatusCode:    200,
			DurationMs:    durationMs,
			CreatedAt:     now.Add(-age),
		}))
	}

	mkAttempt(1, false, 10*time.Minute, 100)
	mkAttempt(2, false, 2*time.Minute, 200)
	mkAttempt(3, true, 1*time.Minute, 300)

	attempts, err := store.ListAttempts(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	assert.Equal(t, 1, attempts[0].AttemptNumber)
	assert.Equal(t, 3, attempts[2].AttemptNumber)

	// Only the failure inside the 5-minute window counts.
	n, err := store.CountEndpointFailuresSince(ctx, ep.ID, now.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stats, err := store.EndpointAttemptStats(ctx, ep.ID, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.Successful)
	assert.Equal(t, int64(2), stats.Failed)
	assert.InDelta(t, 33.3, stats.SuccessRate, 0.5)
	assert.InDelta(t, 200, stats.AvgDurationMs, 0.01)
}
