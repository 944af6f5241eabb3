package storage

import (
	"context"
	"time"

	"github.com/hookrelay/hookrelay/internal/models"
)

type Storage interface {
	// Tenants
	CreateTenant(ctx context.Context, t *models.Tenant) error
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	GetTenantByAPIKey(ctx context.Context, apiKey string) (*models.Tenant, error)
	ListTenants(ctx context.Context) ([]models.Tenant, error)
	UpdateTenantAPIKey(ctx context.Context, id, newKey string) error

	// Endpoints
	CreateEndpoint(ctx context.Context, ep *models.Endpoint) error
	GetEndpoint(ctx context.Context, id string) (*models.Endpoint, error)
	ListEndpoints(ctx context.Context, tenantID string) ([]models.Endpoint, error)
	ListDeliverableEndpoints(ctx context.Context, tenantID string) ([]models.Endpoint, error)
	UpdateEndpoint(ctx context.Context, ep *models.Endpoint) error
	MarkEndpointDeleted(ctx context.Context, id string) error
	RecordEndpointSuccess(ctx context.Context, id string, at time.Time) error
	RecordEndpointFailure(ctx context.Context, id string) error

	// Deliveries
	CreateDelivery(ctx context.Context, d *models.Delivery) error
	GetDelivery(ctx context.Context, id string) (*models.Delivery, error)
	UpdateDelivery(ctx context.Context, d *models.Delivery) error
	ClaimDueDeliveries(ctx context.Context, now time.Time, limit int) ([]models.Delivery, error)

	// Attempt ledger (append-only)
	CreateAttempt(ctx context.Context, a *models.AttemptLog) error
	ListAttempts(ctx context.Context, deliveryID string) ([]models.AttemptLog, error)
	CountEndpointFailuresSince(ctx context.Context, endpointID string, since time.Time) (int, error)
	EndpointAttemptStats(ctx context.Context, endpointID string, since time.Time) (*AttemptStats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// AttemptStats summarizes the attempt ledger for one endpoint over a window.
type AttemptStats struct {
	Total         int64   `json:"total"`
	Successful    int64   `json:"successful"`
	Failed        int64   `json:"failed"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
}
