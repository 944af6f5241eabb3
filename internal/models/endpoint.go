package models

import "time"

type EndpointStatus string

const (
	EndpointActive  EndpointStatus = "active"
	EndpointPaused  EndpointStatus = "paused"
	EndpointDeleted EndpointStatus = "deleted"
)

// Endpoint is a tenant-registered HTTP destination for webhook notifications.
// Rows are soft-deleted: status moves to deleted and fan-out skips them, but
// the record stays behind its delivery history.
type Endpoint struct {
	ID             string            `json:"id"`
	TenantID       string            `json:"tenant_id"`
	Name           string            `json:"name"`
	URL            string            `json:"url"`
	Secret         string            `json:"secret,omitempty"`
	EventTypes     []string          `json:"event_types"`
	Headers        map[string]string `json:"headers,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	RetryLimit     int               `json:"retry_limit"`
	VerifySSL      bool              `json:"verify_ssl"`
	Status         EndpointStatus    `json:"status"`
	SuccessCount   int64             `json:"success_count"`
	FailureCount   int64             `json:"failure_count"`
	LastSuccessAt  *time.Time        `json:"last_success_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Deliverable reports whether fan-out should target this endpoint.
func (e *Endpoint) Deliverable() bool {
	return e.Status == EndpointActive
}

// Subscribed reports whether the endpoint listens for eventType. An empty
// subscription list matches nothing; "*" matches everything.
func (e *Endpoint) Subscribed(eventType string) bool {
	for _, sub := range e.EventTypes {
		if sub == eventType || sub == "*" {
			return true
		}
	}
	return false
}

func (e *Endpoint) Timeout() time.Duration {
	if e.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(e.TimeoutSeconds) * time.Second
}
