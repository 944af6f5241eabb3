package delivery

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/hookrelay/hookrelay/internal/metrics"
	"github.com/hookrelay/hookrelay/internal/models"
	"github.com/hookrelay/hookrelay/internal/storage"
)

// Outcome classifies one attempt. Blocked is a third class next to
// success/failure: the circuit breaker skipped the call, no retry slot was
// consumed, and nothing was logged against the endpoint's failure streak.
type Outcome struct {
	Success    bool
	Blocked    bool
	StatusCode int
	DurationMs int64
	Error      string
}

// Executor drives a delivery through one attempt: circuit check, signed HTTP
// call, ledger append, counter updates, and the next-state decision. It is
// the only component that mutates delivery status.
type Executor struct {
	store    storage.Storage
	breaker  *CircuitBreaker
	sender   *Sender
	notifier FinalFailureNotifier
	log      zerolog.Logger
}

func NewExecutor(store storage.Storage, breaker *CircuitBreaker, sender *Sender, notifier FinalFailureNotifier, log zerolog.Logger) *Executor {
	return &Executor{
		store:    store,
		breaker:  breaker,
		sender:   sender,
		notifier: notifier,
		log:      log,
	}
}

func (e *Executor) Attempt(ctx context.Context, d *models.Delivery) Outcome {
	if d.Status.Terminal() {
		return Outcome{Error: "delivery already in terminal state"}
	}

	ep, err := e.store.GetEndpoint(ctx, d.EndpointID)
	if err != nil {
		// Transient storage trouble: put the delivery back on the schedule
		// instead of terminating it.
		retry := time.Now().UTC().Add(requeueDelay)
		d.NextAttemptAt = &retry
		e.updateDelivery(ctx, d)
		e.log.Error().Err(err).Str("delivery_id", d.ID).Msg("failed to load endpoint for delivery")
		return Outcome{Error: "failed to load endpoint"}
	}
	if ep == nil {
		d.Status = models.DeliveryExhausted
		d.NextAttemptAt = nil
		d.LastError = "endpoint not found"
		e.updateDelivery(ctx, d)
		e.log.Error().Str("delivery_id", d.ID).Str("endpoint_id", d.EndpointID).Msg("endpoint missing for delivery")
		return Outcome{Error: d.LastError}
	}

	if !ep.Deliverable() {
		// Parked: no longer scheduled, picked up again only if the endpoint
		// is reactivated and the delivery is manually retried.
		d.NextAttemptAt = nil
		e.updateDelivery(ctx, d)
		e.log.Info().Str("delivery_id", d.ID).Str("endpoint_id", ep.ID).Msg("skipping delivery to non-deliverable endpoint")
		return Outcome{Error: "endpoint not deliverable"}
	}

	if open, until := e.breaker.IsOpen(ctx, ep.ID); open {
		reopen := until
		if reopen.IsZero() {
			reopen = time.Now().UTC().Add(requeueDelay)
		}
		d.NextAttemptAt = &reopen
		e.updateDelivery(ctx, d)
		metrics.DeliveryAttempts.WithLabelValues(metrics.OutcomeCircuitBroken).Inc()
		e.log.Info().
			Str("delivery_id", d.ID).
			Str("endpoint_id", ep.ID).
			Time("retry_after", reopen).
			Msg("delivery blocked by open circuit")
		return Outcome{Blocked: true}
	}

	attemptNo := d.Attempt + 1
	result := e.sender.Send(ctx, ep, d, attemptNo)
	success := result.Error == ""

	now := time.Now().UTC()
	logRow := &models.AttemptLog{
		ID:            models.NewID("att"),
		DeliveryID:    d.ID,
		EndpointID:    ep.ID,
		EventType:     d.EventType,
		AttemptNumber: attemptNo,
		Success:       success,
		StatusCode:    result.StatusCode,
		DurationMs:    result.DurationMs,
		ResponseBody:  result.ResponseBody,
		Error:         result.Error,
		CreatedAt:     now,
	}
	if err := e.store.CreateAttempt(ctx, logRow); err != nil {
		e.log.Error().Err(err).Str("delivery_id", d.ID).Msg("failed to record attempt")
	}

	metrics.AttemptDuration.Observe(float64(result.DurationMs) / 1000)

	d.Attempt = attemptNo
	d.LastStatusCode = result.StatusCode
	d.LastError = result.Error

	if success {
		e.completeSuccess(ctx, d, ep, result)
	} else {
		e.completeFailure(ctx, d, ep, result)
	}

	e.updateDelivery(ctx, d)

	return Outcome{
		Success:    success,
		StatusCode: result.StatusCode,
		DurationMs: result.DurationMs,
		Error:      result.Error,
	}
}

func (e *Executor) completeSuccess(ctx context.Context, d *models.Delivery, ep *models.Endpoint, result *SendResult) {
	d.Status = models.DeliverySent
	d.NextAttemptAt = nil

	if err := e.store.RecordEndpointSuccess(ctx, ep.ID, time.Now().UTC()); err != nil {
		e.log.Error().Err(err).Str("endpoint_id", ep.ID).Msg("failed to record endpoint success")
	}
	e.breaker.RecordSuccess(ep.ID)
	metrics.DeliveryAttempts.WithLabelValues(metrics.OutcomeSuccess).Inc()

	e.log.Info().
		Str("delivery_id", d.ID).
		Int("status_code", result.StatusCode).
		Int64("duration_ms", result.DurationMs).
		Msg("delivery succeeded")
}

func (e *Executor) completeFailure(ctx context.Context, d *models.Delivery, ep *models.Endpoint, result *SendResult) {
	if err := e.store.RecordEndpointFailure(ctx, ep.ID); err != nil {
		e.log.Error().Err(err).Str("endpoint_id", ep.ID).Msg("failed to record endpoint failure")
	}
	e.breaker.RecordFailure(ep.ID)
	metrics.DeliveryAttempts.WithLabelValues(metrics.OutcomeFailure).Inc()

	if d.Attempt < ep.RetryLimit {
		next := time.Now().UTC().Add(RetryDelay(d.Attempt))
		d.Status = models.DeliveryFailed
		d.NextAttemptAt = &next
		e.log.Info().
			Str("delivery_id", d.ID).
			Int("attempt", d.Attempt).
			Str("error", result.Error).
			Time("next_attempt", next).
			Msg("delivery failed, retry scheduled")
		return
	}

	d.Status = models.DeliveryExhausted
	d.NextAttemptAt = nil
	metrics.DeliveriesExhausted.Inc()
	e.log.Warn().
		Str("delivery_id", d.ID).
		Int("attempts", d.Attempt).
		Str("error", result.Error).
		Msg("delivery permanently failed")

	if e.notifier != nil {
		e.notifier.NotifyFinalFailure(ctx, ep, d)
	}
}

func (e *Executor) updateDelivery(ctx context.Context, d *models.Delivery) {
	if err := e.store.UpdateDelivery(ctx, d); err != nil {
		e.log.Error().Err(err).Str("delivery_id", d.ID).Msg("failed to update delivery")
	}
}
