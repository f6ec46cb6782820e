package repository

import (
	"context"
	"time"

	"github.com/pulsegate/pulsegate/internal/domain"
)

// TenantRepository persists the tenant registry.
type TenantRepository interface {
	CreateTenant(ctx context.Context, tenant *domain.Tenant) error
	// GetTenantByCredential resolves an active tenant by its opaque
	// credential. Inactive tenants are treated as not found.
	GetTenantByCredential(ctx context.Context, credential string) (*domain.Tenant, error)
	GetTenantByID(ctx context.Context, id string) (*domain.Tenant, error)
	// GetTenantForOwner scopes lookup by owning user for authorization
	// checks; ErrNotFound when the tenant exists but is owned elsewhere.
	GetTenantForOwner(ctx context.Context, id, ownerID string) (*domain.Tenant, error)
	ListTenantsByOwner(ctx context.Context, ownerID string) ([]domain.Tenant, error)
	UpdateTenantCredential(ctx context.Context, id, credential string) error
	UpdateTenantSettings(ctx context.Context, tenant *domain.Tenant) error
	DeactivateTenant(ctx context.Context, id string) error
}

// MetricRepository persists and aggregates telemetry records.
type MetricRepository interface {
	InsertMetric(ctx context.Context, metric *domain.Metric) error
	ListMetricsSince(ctx context.Context, tenantID string, since time.Time, limit int) ([]domain.Metric, error)
	ListErrorMetricsSince(ctx context.Context, tenantID string, since time.Time) ([]domain.Metric, error)
	RouteStatsSince(ctx context.Context, tenantID string, since time.Time) ([]domain.RouteStats, error)
	DailyTrends(ctx context.Context, tenantID string, start, end time.Time) ([]domain.TrendPoint, error)
	DeleteMetricsByTenant(ctx context.Context, tenantID string) error
	DeleteMetricsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
