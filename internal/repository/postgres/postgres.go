package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsegate/pulsegate/internal/domain"
	"github.com/pulsegate/pulsegate/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.TenantRepository = (*Repository)(nil)
	_ repository.MetricRepository = (*Repository)(nil)
)

const tenantColumns = `id, owner_id, name, credential, active,
	quota_window_seconds, quota_max_requests,
	alert_error_rate_pct, alert_latency_ms, created_at, updated_at`

// CreateTenant inserts a tenant registration.
func (r *Repository) CreateTenant(ctx context.Context, tenant *domain.Tenant) error {
	if tenant == nil {
		return fmt.Errorf("tenant required")
	}
	const query = `INSERT INTO tenants (
		id, owner_id, name, credential, active,
		quota_window_seconds, quota_max_requests,
		alert_error_rate_pct, alert_latency_ms, created_at, updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)`
	_, err := r.pool.Exec(ctx, query,
		tenant.ID,
		tenant.OwnerID,
		tenant.Name,
		tenant.Credential,
		tenant.Active,
		int(tenant.Quota.Window/time.Second),
		tenant.Quota.MaxRequests,
		tenant.Alerts.ErrorRatePct,
		tenant.Alerts.LatencyMS,
		tenant.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repository.ErrConflict
		}
		return err
	}
	return nil
}

// GetTenantByCredential resolves an active tenant by credential.
func (r *Repository) GetTenantByCredential(ctx context.Context, credential string) (*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE credential = $1 AND active`
	return r.scanTenant(r.pool.QueryRow(ctx, query, credential))
}

// GetTenantByID retrieves a tenant by identifier regardless of owner.
func (r *Repository) GetTenantByID(ctx context.Context, id string) (*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	return r.scanTenant(r.pool.QueryRow(ctx, query, id))
}

// GetTenantForOwner retrieves a tenant only when owned by the given user.
func (r *Repository) GetTenantForOwner(ctx context.Context, id, ownerID string) (*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1 AND owner_id = $2`
	return r.scanTenant(r.pool.QueryRow(ctx, query, id, ownerID))
}

// ListTenantsByOwner returns every tenant registered by the user.
func (r *Repository) ListTenantsByOwner(ctx context.Context, ownerID string) ([]domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE owner_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tenants := make([]domain.Tenant, 0)
	for rows.Next() {
		tenant, err := r.scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, *tenant)
	}
	return tenants, rows.Err()
}

// UpdateTenantCredential swaps the tenant credential, invalidating the old
// one immediately.
func (r *Repository) UpdateTenantCredential(ctx context.Context, id, credential string) error {
	const query = `UPDATE tenants SET credential = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, credential)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repository.ErrConflict
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateTenantSettings persists name, quota policy and alert thresholds.
func (r *Repository) UpdateTenantSettings(ctx context.Context, tenant *domain.Tenant) error {
	if tenant == nil {
		return fmt.Errorf("tenant required")
	}
	const query = `UPDATE tenants SET
		name = $2,
		quota_window_seconds = $3,
		quota_max_requests = $4,
		alert_error_rate_pct = $5,
		alert_latency_ms = $6,
		updated_at = NOW()
	WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query,
		tenant.ID,
		tenant.Name,
		int(tenant.Quota.Window/time.Second),
		tenant.Quota.MaxRequests,
		tenant.Alerts.ErrorRatePct,
		tenant.Alerts.LatencyMS,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeactivateTenant soft-deletes a tenant; records keep referencing it.
func (r *Repository) DeactivateTenant(ctx context.Context, id string) error {
	const query = `UPDATE tenants SET active = FALSE, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *Repository) scanTenant(row pgx.Row) (*domain.Tenant, error) {
	var (
		t             domain.Tenant
		windowSeconds int
	)
	if err := row.Scan(
		&t.ID,
		&t.OwnerID,
		&t.Name,
		&t.Credential,
		&t.Active,
		&windowSeconds,
		&t.Quota.MaxRequests,
		&t.Alerts.ErrorRatePct,
		&t.Alerts.LatencyMS,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	t.Quota.Window = time.Duration(windowSeconds) * time.Second
	return &t, nil
}

// InsertMetric persists one telemetry record.
func (r *Repository) InsertMetric(ctx context.Context, metric *domain.Metric) error {
	if metric == nil {
		return fmt.Errorf("metric required")
	}
	const query = `INSERT INTO metrics (
		tenant_id,
		ts,
		route_path,
		method,
		caller_ip,
		user_agent,
		referer,
		request_bytes,
		response_bytes,
		status_code,
		latency_ms,
		is_error,
		error_message,
		ingested_at
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NOW()
	) RETURNING id, ingested_at`
	err := r.pool.QueryRow(ctx, query,
		metric.TenantID,
		metric.Timestamp,
		metric.RoutePath,
		metric.Method,
		nilIfEmpty(metric.CallerIP),
		nilIfEmpty(metric.UserAgent),
		nilIfEmpty(metric.Referer),
		int64PtrToNil(metric.RequestBytes),
		int64PtrToNil(metric.ResponseBytes),
		metric.StatusCode,
		metric.LatencyMS,
		metric.IsError,
		nilIfEmpty(metric.ErrorMessage),
	).Scan(&metric.ID, &metric.IngestedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23503":
				return repository.ErrNotFound
			case "23514", "22P02":
				return repository.ErrInvalidArgument
			}
		}
		return err
	}
	return nil
}

const metricColumns = `id, tenant_id, ts, route_path, method,
	caller_ip, user_agent, referer, request_bytes, response_bytes,
	status_code, latency_ms, is_error, error_message, ingested_at`

// ListMetricsSince returns records at or after the given instant, newest
// first, capped at limit.
func (r *Repository) ListMetricsSince(ctx context.Context, tenantID string, since time.Time, limit int) ([]domain.Metric, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := `SELECT ` + metricColumns + `
	FROM metrics
	WHERE tenant_id = $1 AND ts >= $2
	ORDER BY ts DESC, id DESC
	LIMIT $3`
	rows, err := r.pool.Query(ctx, query, tenantID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMetrics(rows)
}

// ListErrorMetricsSince returns only error records, newest first.
func (r *Repository) ListErrorMetricsSince(ctx context.Context, tenantID string, since time.Time) ([]domain.Metric, error) {
	query := `SELECT ` + metricColumns + `
	FROM metrics
	WHERE tenant_id = $1 AND ts >= $2 AND is_error
	ORDER BY ts DESC, id DESC`
	rows, err := r.pool.Query(ctx, query, tenantID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMetrics(rows)
}

// RouteStatsSince aggregates performance per (route, method) pair, busiest
// routes first.
func (r *Repository) RouteStatsSince(ctx context.Context, tenantID string, since time.Time) ([]domain.RouteStats, error) {
	const query = `SELECT
		route_path,
		method,
		COUNT(*) AS total_requests,
		AVG(latency_ms) AS avg_latency_ms,
		MIN(latency_ms) AS min_latency_ms,
		MAX(latency_ms) AS max_latency_ms,
		COUNT(*) FILTER (WHERE is_error) AS error_count,
		COUNT(*) FILTER (WHERE NOT is_error) AS success_count
	FROM metrics
	WHERE tenant_id = $1 AND ts >= $2
	GROUP BY route_path, method
	ORDER BY total_requests DESC`
	rows, err := r.pool.Query(ctx, query, tenantID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make([]domain.RouteStats, 0)
	for rows.Next() {
		var s domain.RouteStats
		if err := rows.Scan(
			&s.Path,
			&s.Method,
			&s.TotalRequests,
			&s.AvgLatencyMS,
			&s.MinLatencyMS,
			&s.MaxLatencyMS,
			&s.ErrorCount,
			&s.SuccessCount,
		); err != nil {
			return nil, err
		}
		if s.TotalRequests > 0 {
			s.ErrorRatePct = float64(s.ErrorCount) / float64(s.TotalRequests) * 100
			s.SuccessRatePct = float64(s.SuccessCount) / float64(s.TotalRequests) * 100
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// DailyTrends aggregates records by UTC calendar day, oldest day first.
func (r *Repository) DailyTrends(ctx context.Context, tenantID string, start, end time.Time) ([]domain.TrendPoint, error) {
	const query = `SELECT
		(ts AT TIME ZONE 'UTC')::date AS day,
		COUNT(*) AS total_requests,
		COUNT(*) FILTER (WHERE is_error) AS total_errors,
		AVG(latency_ms) AS avg_latency_ms,
		MAX(latency_ms) AS max_latency_ms
	FROM metrics
	WHERE tenant_id = $1 AND ts >= $2 AND ts <= $3
	GROUP BY day
	ORDER BY day ASC`
	rows, err := r.pool.Query(ctx, query, tenantID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]domain.TrendPoint, 0)
	for rows.Next() {
		var p domain.TrendPoint
		if err := rows.Scan(
			&p.Date,
			&p.TotalRequests,
			&p.TotalErrors,
			&p.AvgLatencyMS,
			&p.MaxLatencyMS,
		); err != nil {
			return nil, err
		}
		if p.TotalRequests > 0 {
			p.ErrorRatePct = float64(p.TotalErrors) / float64(p.TotalRequests) * 100
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// DeleteMetricsByTenant drops every record belonging to a tenant.
func (r *Repository) DeleteMetricsByTenant(ctx context.Context, tenantID string) error {
	const query = `DELETE FROM metrics WHERE tenant_id = $1`
	_, err := r.pool.Exec(ctx, query, tenantID)
	return err
}

// DeleteMetricsBefore enforces the retention horizon and reports how many
// records were expired.
func (r *Repository) DeleteMetricsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM metrics WHERE ts < $1`
	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanMetrics(rows pgx.Rows) ([]domain.Metric, error) {
	metrics := make([]domain.Metric, 0)
	for rows.Next() {
		var (
			m         domain.Metric
			callerIP  *string
			userAgent *string
			referer   *string
			errMsg    *string
		)
		if err := rows.Scan(
			&m.ID,
			&m.TenantID,
			&m.Timestamp,
			&m.RoutePath,
			&m.Method,
			&callerIP,
			&userAgent,
			&referer,
			&m.RequestBytes,
			&m.ResponseBytes,
			&m.StatusCode,
			&m.LatencyMS,
			&m.IsError,
			&errMsg,
			&m.IngestedAt,
		); err != nil {
			return nil, err
		}
		m.CallerIP = deref(callerIP)
		m.UserAgent = deref(userAgent)
		m.Referer = deref(referer)
		m.ErrorMessage = deref(errMsg)
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

func nilIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func int64PtrToNil(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
