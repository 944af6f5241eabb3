package delivery

import (
	"context"
	"time"

	"github.com/hookrelay/hookrelay/internal/models"
	"github.com/hookrelay/hookrelay/internal/storage"
)

type LifetimeStats struct {
	SuccessCount int64 `json:"success_count"`
	FailureCount int64 `json:"failure_count"`
}

// HealthReport summarizes one endpoint's delivery health for operators.
type HealthReport struct {
	EndpointID    string               `json:"endpoint_id"`
	CircuitOpen   bool                 `json:"circuit_open"`
	FailureStreak int                  `json:"failure_streak"`
	Last24h       storage.AttemptStats `json:"last_24h"`
	Lifetime      LifetimeStats        `json:"lifetime"`
	LastSuccessAt *time.Time           `json:"last_success_at,omitempty"`
}

type HealthService struct {
	store   storage.Storage
	breaker *CircuitBreaker
}

func NewHealthService(store storage.Storage, breaker *CircuitBreaker) *HealthService {
	return &HealthService{store: store, breaker: breaker}
}

func (h *HealthService) Report(ctx context.Context, ep *models.Endpoint) (*HealthReport, error) {
	stats, err := h.store.EndpointAttemptStats(ctx, ep.ID, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}

	open, _ := h.breaker.IsOpen(ctx, ep.ID)

	return &HealthReport{
		EndpointID:    ep.ID,
		CircuitOpen:   open,
		FailureStreak: h.breaker.FailureStreak(ep.ID),
		Last24h:       *stats,
		Lifetime: LifetimeStats{
			SuccessCount: ep.SuccessCount,
			FailureCount: ep.FailureCount,
		},
		LastSuccessAt: ep.LastSuccessAt,
	}, nil
}
