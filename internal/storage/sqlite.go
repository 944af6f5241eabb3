package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hookrelay/hookrelay/internal/models"
)

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			api_key TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS endpoints (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
			name TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL,
			secret TEXT NOT NULL,
			event_types TEXT NOT NULL DEFAULT '[]',
			headers TEXT NOT NULL DEFAULT '{}',
			timeout_seconds INTEGER NOT NULL DEFAULT 30,
			retry_limit INTEGER NOT NULL DEFAULT 3,
			verify_ssl INTEGER NOT NULL DEFAULT 1,
			status TEXT NOT NULL DEFAULT 'active',
			success_count INTEGER NOT NULL DEFAULT 0,
			failure_count INTEGER NOT NULL DEFAULT 0,
			last_success_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS deliveries (
			id TEXT PRIMARY KEY,
			endpoint_id TEXT NOT NULL REFERENCES endpoints(id) ON DELETE CASCADE,
			tenant_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			attempt INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			next_attempt_at DATETIME,
			last_status_code INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS attempts (
			id TEXT PRIMARY KEY,
			delivery_id TEXT NOT NULL REFERENCES deliveries(id) ON DELETE CASCADE,
			endpoint_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			attempt_number INTEGER NOT NULL,
			success INTEGER NOT NULL DEFAULT 0,
			status_code INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			response_body TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tenants_api_key ON tenants(api_key)`,
		`CREATE INDEX IF NOT EXISTS idx_endpoints_tenant ON endpoints(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_endpoint ON deliveries(endpoint_id)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_due ON deliveries(status, next_attempt_at) WHERE status IN ('pending', 'failed')`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_delivery ON attempts(delivery_id)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_endpoint_time ON attempts(endpoint_id, created_at)`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- Tenants ---

func (s *SQLiteStorage) CreateTenant(ctx context.Context, t *models.Tenant) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, api_key, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.APIKey, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

func (s *SQLiteStorage) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	var t models.Tenant
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, api_key, created_at, updated_at FROM tenants WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.APIKey, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &t, err
}

func (s *SQLiteStorage) GetTenantByAPIKey(ctx context.Context, apiKey string) (*models.Tenant, error) {
	var t models.Tenant
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, api_key, created_at, updated_at FROM tenants WHERE api_key = ?`, apiKey,
	).Scan(&t.ID, &t.Name, &t.APIKey, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &t, err
}

func (s *SQLiteStorage) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, api_key, created_at, updated_at FROM tenants ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []models.Tenant
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.APIKey, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (s *SQLiteStorage) UpdateTenantAPIKey(ctx context.Context, id, newKey string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET api_key = ?, updated_at = ? WHERE id = ?`,
		newKey, time.Now().UTC(), id,
	)
	return err
}

// --- Endpoints ---

const endpointColumns = `id, tenant_id, name, url, secret, event_types, headers, timeout_seconds, retry_limit, verify_ssl, status, success_count, failure_count, last_success_at, created_at, updated_at`

func (s *SQLiteStorage) CreateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	eventTypes, _ := json.Marshal(ep.EventTypes)
	headers, _ := json.Marshal(ep.Headers)
	verifySSL := 0
	if ep.VerifySSL {
		verifySSL = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO endpoints (id, tenant_id, name, url, secret, event_types, headers, timeout_seconds, retry_limit, verify_ssl, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ep.ID, ep.TenantID, ep.Name, ep.URL, ep.Secret, string(eventTypes), string(headers),
		ep.TimeoutSeconds, ep.RetryLimit, verifySSL, ep.Status, ep.CreatedAt, ep.UpdatedAt,
	)
	return err
}

func (s *SQLiteStorage) scanEndpoint(row interface{ Scan(...interface{}) error }) (*models.Endpoint, error) {
	var ep models.Endpoint
	var eventTypes, headers string
	var verifySSL int
	err := row.Scan(&ep.ID, &ep.TenantID, &ep.Name, &ep.URL, &ep.Secret, &eventTypes, &headers,
		&ep.TimeoutSeconds, &ep.RetryLimit, &verifySSL, &ep.Status,
		&ep.SuccessCount, &ep.FailureCount, &ep.LastSuccessAt, &ep.CreatedAt, &ep.UpdatedAt)
	if err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(eventTypes), &ep.EventTypes)
	json.Unmarshal([]byte(headers), &ep.Headers)
	ep.VerifySSL = verifySSL == 1
	return &ep, nil
}

func (s *SQLiteStorage) GetEndpoint(ctx context.Context, id string) (*models.Endpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+endpointColumns+` FROM endpoints WHERE id = ?`, id)
	ep, err := s.scanEndpoint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ep, err
}

func (s *SQLiteStorage) ListEndpoints(ctx context.Context, tenantID string) ([]models.Endpoint, error) {
	return s.queryEndpoints(ctx,
		`SELECT `+endpointColumns+` FROM endpoints WHERE tenant_id = ? AND status != 'deleted' ORDER BY created_at DESC`, tenantID)
}

func (s *SQLiteStorage) ListDeliverableEndpoints(ctx context.Context, tenantID string) ([]models.Endpoint, error) {
	return s.queryEndpoints(ctx,
		`SELECT `+endpointColumns+` FROM endpoints WHERE tenant_id = ? AND status = 'active' ORDER BY created_at DESC`, tenantID)
}

func (s *SQLiteStorage) queryEndpoints(ctx context.Context, query string, args ...interface{}) ([]models.Endpoint, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var endpoints []models.Endpoint
	for rows.Next() {
		ep, err := s.scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, *ep)
	}
	return endpoints, rows.Err()
}

func (s *SQLiteStorage) UpdateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	eventTypes, _ := json.Marshal(ep.EventTypes)
	headers, _ := json.Marshal(ep.Headers)
	verifySSL := 0
	if ep.VerifySSL {
		verifySSL = 1
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE endpoints SET name = ?, url = ?, event_types = ?, headers = ?, timeout_seconds = ?, retry_limit = ?, verify_ssl = ?, status = ?, updated_at = ? WHERE id = ?`,
		ep.Name, ep.URL, string(eventTypes), string(headers), ep.TimeoutSeconds, ep.RetryLimit, verifySSL, ep.Status, time.Now().UTC(), ep.ID,
	)
	return err
}

func (s *SQLiteStorage) MarkEndpointDeleted(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE endpoints SET status = 'deleted', updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	return err
}

func (s *SQLiteStorage) RecordEndpointSuccess(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE endpoints SET success_count = success_count + 1, last_success_at = ?, updated_at = ? WHERE id = ?`,
		at, at, id,
	)
	return err
}

func (s *SQLiteStorage) RecordEndpointFailure(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE endpoints SET failure_count = failure_count + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	return err
}

// --- Deliveries ---

const deliveryColumns = `id, endpoint_id, tenant_id, event_type, payload, attempt, status, next_attempt_at, last_status_code, last_error, created_at, updated_at`

func (s *SQLiteStorage) CreateDelivery(ctx context.Context, d *models.Delivery) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries (id, endpoint_id, tenant_id, event_type, payload, attempt, status, next_attempt_at, last_status_code, last_error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.EndpointID, d.TenantID, d.EventType, string(d.Payload), d.Attempt, d.Status,
		d.NextAttemptAt, d.LastStatusCode, d.LastError, d.CreatedAt, d.UpdatedAt,
	)
	return err
}

func (s *SQLiteStorage) scanDelivery(row interface{ Scan(...interface{}) error }) (*models.Delivery, error) {
	var d models.Delivery
	var payload string
	err := row.Scan(&d.ID, &d.EndpointID, &d.TenantID, &d.EventType, &payload, &d.Attempt,
		&d.Status, &d.NextAttemptAt, &d.LastStatusCode, &d.LastError, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Payload = json.RawMessage(payload)
	return &d, nil
}

func (s *SQLiteStorage) GetDelivery(ctx context.Context, id string) (*models.Delivery, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE id = ?`, id)
	d, err := s.scanDelivery(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

func (s *SQLiteStorage) UpdateDelivery(ctx context.Context, d *models.Delivery) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE deliveries SET attempt = ?, status = ?, next_attempt_at = ?, last_status_code = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		d.Attempt, d.Status, d.NextAttemptAt, d.LastStatusCode, d.LastError, time.Now().UTC(), d.ID,
	)
	return err
}

// ClaimDueDeliveries returns non-terminal deliveries whose scheduled attempt
// time has passed, clearing next_attempt_at on each returned row. A NULL
// next_attempt_at marks a delivery as in the hands of an attempt already, so
// a row is handed out at most once per schedule; the executor re-schedules or
// terminates it when the attempt resolves.
func (s *SQLiteStorage) ClaimDueDeliveries(ctx context.Context, now time.Time, limit int) ([]models.Delivery, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+deliveryColumns+`
		 FROM deliveries
		 WHERE status IN ('pending', 'failed') AND next_attempt_at IS NOT NULL AND next_attempt_at <= ?
		 ORDER BY next_attempt_at ASC LIMIT ?`,
		now.UTC(), limit)
	if err != nil {
		return nil, err
	}

	var candidates []models.Delivery
	for rows.Next() {
		d, err := s.scanDelivery(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, *d)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	var claimed []models.Delivery
	for _, d := range candidates {
		res, err := s.db.ExecContext(ctx,
			`UPDATE deliveries SET next_attempt_at = NULL, updated_at = ? WHERE id = ? AND next_attempt_at IS NOT NULL`,
			time.Now().UTC(), d.ID)
		if err != nil {
			return claimed, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// Lost to a concurrent claimer.
			continue
		}
		d.NextAttemptAt = nil
		claimed = append(claimed, d)
	}
	return claimed, nil
}

// --- Attempts ---

func (s *SQLiteStorage) CreateAttempt(ctx context.Context, a *models.AttemptLog) error {
	success := 0
	if a.Success {
		success = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (id, delivery_id, endpoint_id, event_type, attempt_number, success, status_code, duration_ms, response_body, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.DeliveryID, a.EndpointID, a.EventType, a.AttemptNumber, success,
		a.StatusCode, a.DurationMs, a.ResponseBody, a.Error, a.CreatedAt,
	)
	return err
}

func (s *SQLiteStorage) ListAttempts(ctx context.Context, deliveryID string) ([]models.AttemptLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, delivery_id, endpoint_id, event_type, attempt_number, success, status_code, duration_ms, response_body, error, created_at
		 FROM attempts WHERE delivery_id = ? ORDER BY attempt_number`, deliveryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []models.AttemptLog
	for rows.Next() {
		var a models.AttemptLog
		var success int
		if err := rows.Scan(&a.ID, &a.DeliveryID, &a.EndpointID, &a.EventType, &a.AttemptNumber,
			&success, &a.StatusCode, &a.DurationMs, &a.ResponseBody, &a.Error, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Success = success == 1
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func (s *SQLiteStorage) CountEndpointFailuresSince(ctx context.Context, endpointID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempts WHERE endpoint_id = ? AND success = 0 AND created_at >= ?`,
		endpointID, since.UTC(),
	).Scan(&n)
	return n, err
}

func (s *SQLiteStorage) EndpointAttemptStats(ctx context.Context, endpointID string, since time.Time) (*AttemptStats, error) {
	stats := &AttemptStats{}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(success), 0), COALESCE(AVG(duration_ms), 0)
		 FROM attempts WHERE endpoint_id = ? AND created_at >= ?`,
		endpointID, since.UTC(),
	).Scan(&stats.Total, &stats.Successful, &stats.AvgDurationMs)
	if err != nil {
		return nil, err
	}
	stats.Failed = stats.Total - stats.Successful
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total) * 100
	}
	return stats, nil
}
