package delivery

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/hookrelay/hookrelay/internal/models"
	"github.com/hookrelay/hookrelay/internal/storage"
)

type DispatchResult struct {
	Triggered int `json:"triggered"`
	Failed    int `json:"failed"`
}

// Dispatcher fans an event out to every subscribed, active endpoint of a
// tenant. It is the single entry point domain code calls.
type Dispatcher struct {
	store storage.Storage
	exec  *Executor
	log   zerolog.Logger
}

func NewDispatcher(store storage.Storage, exec *Executor, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{store: store, exec: exec, log: log}
}

// Dispatch creates one pending delivery per matching endpoint and runs the
// first attempt synchronously; only retries are deferred. Per-endpoint
// failures are isolated: one bad endpoint never aborts fan-out to siblings,
// and callers only ever see aggregate counts.
func (dp *Dispatcher) Dispatch(ctx context.Context, tenantID, eventType string, payload json.RawMessage) (DispatchResult, error) {
	var result DispatchResult

	endpoints, err := dp.store.ListDeliverableEndpoints(ctx, tenantID)
	if err != nil {
		dp.log.Error().Err(err).Str("tenant_id", tenantID).Str("event_type", eventType).Msg("failed to load endpoints for dispatch")
		return result, err
	}

	for _, ep := range endpoints {
		if !ep.Subscribed(eventType) {
			continue
		}

		now := time.Now().UTC()
		d := &models.Delivery{
			ID:         models.NewID("dlv"),
			EndpointID: ep.ID,
			TenantID:   tenantID,
			EventType:  eventType,
			Payload:    payload,
			Attempt:    0,
			Status:     models.DeliveryPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := dp.store.CreateDelivery(ctx, d); err != nil {
			dp.log.Error().Err(err).Str("endpoint_id", ep.ID).Msg("failed to create delivery")
			result.Failed++
			continue
		}

		if out := dp.exec.Attempt(ctx, d); out.Success {
			result.Triggered++
		} else {
			result.Failed++
		}
	}

	return result, nil
}
