package delivery

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/hookrelay/hookrelay/internal/models"
)

// FinalFailureNotifier is invoked exactly once per delivery when it runs out
// of retry attempts. Implementations typically page or e-mail an operator.
type FinalFailureNotifier interface {
	NotifyFinalFailure(ctx context.Context, ep *models.Endpoint, d *models.Delivery)
}

// LogNotifier is the default notifier: it records the exhaustion and nothing
// more.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) NotifyFinalFailure(_ context.Context, ep *models.Endpoint, d *models.Delivery) {
	n.Log.Error().
		Str("delivery_id", d.ID).
		Str("endpoint_id", ep.ID).
		Str("url", ep.URL).
		Str("event_type", d.EventType).
		Str("last_error", d.LastError).
		Msg("delivery exhausted all retry attempts")
}
