package registry

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/hookrelay/hookrelay/internal/models"
	"github.com/hookrelay/hookrelay/internal/storage"
)

const (
	defaultTimeoutSeconds = 30
	defaultRetryLimit     = 3
)

// Registry owns endpoint lifecycle: registration, partial updates, and
// deactivation. All URL and subscription validation happens here.
type Registry struct {
	store storage.Storage
	log   zerolog.Logger
}

func New(store storage.Storage, log zerolog.Logger) *Registry {
	return &Registry{store: store, log: log}
}

type RegisterInput struct {
	Name           string            `json:"name"`
	URL            string            `json:"url"`
	Secret         string            `json:"secret"`
	EventTypes     []string          `json:"event_types"`
	Headers        map[string]string `json:"headers"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	RetryLimit     int               `json:"retry_limit"`
	VerifySSL      *bool             `json:"verify_ssl"`
}

// Register validates and persists a new endpoint. The returned record carries
// the signing secret; this is the only time it is disclosed.
func (r *Registry) Register(ctx context.Context, tenantID string, in RegisterInput) (*models.Endpoint, error) {
	if err := ValidateURL(in.URL); err != nil {
		return nil, err
	}
	if len(in.EventTypes) == 0 {
		return nil, &ValidationError{Field: "event_types", Message: "at least one event type is required"}
	}

	secret := in.Secret
	if secret == "" {
		secret = models.NewSecret()
	}

	verifySSL := true
	if in.VerifySSL != nil {
		verifySSL = *in.VerifySSL
	}
	timeout := in.TimeoutSeconds
	if timeout <= 0 {
		timeout = defaultTimeoutSeconds
	}
	retryLimit := in.RetryLimit
	if retryLimit <= 0 {
		retryLimit = defaultRetryLimit
	}

	now := time.Now().UTC()
	ep := &models.Endpoint{
		ID:             models.NewID("ep"),
		TenantID:       tenantID,
		Name:           in.Name,
		URL:            in.URL,
		Secret:         secret,
		EventTypes:     in.EventTypes,
		Headers:        in.Headers,
		TimeoutSeconds: timeout,
		RetryLimit:     retryLimit,
		VerifySSL:      verifySSL,
		Status:         models.EndpointActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if ep.Headers == nil {
		ep.Headers = map[string]string{}
	}

	if err := r.store.CreateEndpoint(ctx, ep); err != nil {
		return nil, err
	}

	r.log.Info().
		Str("endpoint_id", ep.ID).
		Str("tenant_id", tenantID).
		Str("url", ep.URL).
		Msg("endpoint registered")

	return ep, nil
}

type UpdateInput struct {
	Name           *string            `json:"name"`
	URL            *string            `json:"url"`
	EventTypes     *[]string          `json:"event_types"`
	Headers        *map[string]string `json:"headers"`
	TimeoutSeconds *int               `json:"timeout_seconds"`
	RetryLimit     *int               `json:"retry_limit"`
	VerifySSL      *bool              `json:"verify_ssl"`
	Paused         *bool              `json:"paused"`
}

// Update applies a partial patch. Only supplied fields change; a changed URL
// goes through the same validation as registration. The secret is never
// included in the returned record.
func (r *Registry) Update(ctx context.Context, tenantID, endpointID string, in UpdateInput) (*models.Endpoint, error) {
	ep, err := r.getOwned(ctx, tenantID, endpointID)
	if err != nil {
		return nil, err
	}

	if in.URL != nil {
		if err := ValidateURL(*in.URL); err != nil {
			return nil, err
		}
		ep.URL = *in.URL
	}
	if in.EventTypes != nil {
		if len(*in.EventTypes) == 0 {
			return nil, &ValidationError{Field: "event_types", Message: "at least one event type is required"}
		}
		ep.EventTypes = *in.EventTypes
	}
	if in.Name != nil {
		ep.Name = *in.Name
	}
	if in.Headers != nil {
		ep.Headers = *in.Headers
	}
	if in.TimeoutSeconds != nil && *in.TimeoutSeconds > 0 {
		ep.TimeoutSeconds = *in.TimeoutSeconds
	}
	if in.RetryLimit != nil && *in.RetryLimit > 0 {
		ep.RetryLimit = *in.RetryLimit
	}
	if in.VerifySSL != nil {
		ep.VerifySSL = *in.VerifySSL
	}
	if in.Paused != nil {
		if *in.Paused {
			ep.Status = models.EndpointPaused
		} else {
			ep.Status = models.EndpointActive
		}
	}

	if err := r.store.UpdateEndpoint(ctx, ep); err != nil {
		return nil, err
	}

	ep.Secret = ""
	return ep, nil
}

// Deactivate soft-deletes the endpoint: fan-out skips it, history remains.
func (r *Registry) Deactivate(ctx context.Context, tenantID, endpointID string) error {
	if _, err := r.getOwned(ctx, tenantID, endpointID); err != nil {
		return err
	}
	if err := r.store.MarkEndpointDeleted(ctx, endpointID); err != nil {
		return err
	}

	r.log.Info().
		Str("endpoint_id", endpointID).
		Str("tenant_id", tenantID).
		Msg("endpoint deactivated")
	return nil
}

// Get returns an owned endpoint without its secret.
func (r *Registry) Get(ctx context.Context, tenantID, endpointID string) (*models.Endpoint, error) {
	ep, err := r.getOwned(ctx, tenantID, endpointID)
	if err != nil {
		return nil, err
	}
	ep.Secret = ""
	return ep, nil
}

func (r *Registry) getOwned(ctx context.Context, tenantID, endpointID string) (*models.Endpoint, error) {
	ep, err := r.store.GetEndpoint(ctx, endpointID)
	if err != nil {
		return nil, err
	}
	if ep == nil || ep.TenantID != tenantID || ep.Status == models.EndpointDeleted {
		return nil, &NotFoundError{Resource: "endpoint", ID: endpointID}
	}
	return ep, nil
}
