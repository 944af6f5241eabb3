package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookrelay/hookrelay/internal/models"
)

func TestDispatchFanOut(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dp := NewDispatcher(env.store, env.exec, zerolog.Nop())

	okSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okSrv.Close()
	badSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer badSrv.Close()

	env.createEndpoint(t, okSrv.URL, nil)
	env.createEndpoint(t, badSrv.URL, func(ep *models.Endpoint) {
		ep.EventTypes = []string{"*"}
	})
	// Subscribed to a different event, never touched.
	env.createEndpoint(t, okSrv.URL, func(ep *models.Endpoint) {
		ep.EventTypes = []string{"invoice.created"}
	})
	// Paused, excluded from fan-out.
	env.createEndpoint(t, okSrv.URL, func(ep *models.Endpoint) {
		ep.Status = models.EndpointPaused
	})

	result, err := dp.Dispatch(ctx, env.tenantID, "order.paid", json.RawMessage(`{"order_id":42}`))
	require.NoError(t, err)

	// One endpoint delivered, one failed; the failure never blocked its
	// sibling.
	assert.Equal(t, 1, result.Triggered)
	assert.Equal(t, 1, result.Failed)
}

func TestDispatchNoSubscribers(t *testing.T) {
	env := newTestEnv(t)
	dp := NewDispatcher(env.store, env.exec, zerolog.Nop())

	env.createEndpoint(t, "https://hooks.example.com/orders", func(ep *models.Endpoint) {
		ep.EventTypes = []string{"invoice.created"}
	})

	result, err := dp.Dispatch(context.Background(), env.tenantID, "order.paid", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Triggered)
	assert.Equal(t, 0, result.Failed)
}

func TestDispatchSchedulesRetryForFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dp := NewDispatcher(env.store, env.exec, zerolog.Nop())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	ep := env.createEndpoint(t, srv.URL, nil)

	result, err := dp.Dispatch(ctx, env.tenantID, "order.paid", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	// The failed first attempt left a scheduled retry behind for the poller.
	due, err := env.store.ClaimDueDeliveries(ctx, time.Now().UTC().Add(2*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, ep.ID, due[0].EndpointID)
	assert.Equal(t, models.DeliveryFailed, due[0].Status)
	assert.Equal(t, 1, due[0].Attempt)
}
