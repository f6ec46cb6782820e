package tenant

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/pulsegate/pulsegate/internal/admission"
	"github.com/pulsegate/pulsegate/internal/domain"
	"github.com/pulsegate/pulsegate/internal/repository"
)

const credentialPrefix = "pg_"

var (
	errNameRequired    = errors.New("tenant name is required")
	errOwnerRequired   = errors.New("owner id required")
	errMissingTenantID = errors.New("tenant id required")
)

// Service manages the tenant registry: registration, credential rotation and
// soft deactivation. Metric records always outlive their tenant, so removal
// is never physical.
type Service struct {
	tenants repository.TenantRepository
	metrics repository.MetricRepository
	logger  *slog.Logger
}

// New returns a tenant service.
func New(tenants repository.TenantRepository, metrics repository.MetricRepository, logger *slog.Logger) Service {
	if logger != nil {
		logger = logger.With("component", "tenant")
	} else {
		logger = slog.Default()
	}
	return Service{tenants: tenants, metrics: metrics, logger: logger}
}

// RegisterInput holds tenant registration attributes.
type RegisterInput struct {
	OwnerID string
	Name    string
	Quota   domain.QuotaPolicy
	Alerts  domain.AlertThresholds
}

// Register creates an active tenant with a fresh credential.
func (s Service) Register(ctx context.Context, input RegisterInput) (*domain.Tenant, error) {
	if strings.TrimSpace(input.OwnerID) == "" {
		return nil, errOwnerRequired
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, errNameRequired
	}
	if input.Quota.Window <= 0 {
		input.Quota.Window = admission.DefaultWindow
	}
	if input.Quota.MaxRequests <= 0 {
		input.Quota.MaxRequests = admission.DefaultMaxRequests
	}
	credential, err := generateCredential()
	if err != nil {
		return nil, fmt.Errorf("generate credential: %w", err)
	}
	tenant := &domain.Tenant{
		ID:         uuid.NewString(),
		OwnerID:    strings.TrimSpace(input.OwnerID),
		Name:       strings.TrimSpace(input.Name),
		Credential: credential,
		Active:     true,
		Quota:      input.Quota,
		Alerts:     input.Alerts,
		CreatedAt:  time.Now().UTC(),
	}
	tenant.UpdatedAt = tenant.CreatedAt
	if err := s.tenants.CreateTenant(ctx, tenant); err != nil {
		return nil, err
	}
	s.logger.Info("tenant registered", "tenant_id", tenant.ID, "owner_id", tenant.OwnerID)
	return tenant, nil
}

// Get returns a tenant owned by the user.
func (s Service) Get(ctx context.Context, ownerID, tenantID string) (*domain.Tenant, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, errMissingTenantID
	}
	return s.tenants.GetTenantForOwner(ctx, tenantID, ownerID)
}

// List returns every tenant registered by the user.
func (s Service) List(ctx context.Context, ownerID string) ([]domain.Tenant, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, errOwnerRequired
	}
	return s.tenants.ListTenantsByOwner(ctx, ownerID)
}

// UpdateSettings changes name, quota policy and alert thresholds.
func (s Service) UpdateSettings(ctx context.Context, ownerID string, updated *domain.Tenant) (*domain.Tenant, error) {
	if updated == nil || strings.TrimSpace(updated.ID) == "" {
		return nil, errMissingTenantID
	}
	current, err := s.tenants.GetTenantForOwner(ctx, updated.ID, ownerID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(updated.Name) != "" {
		current.Name = strings.TrimSpace(updated.Name)
	}
	if updated.Quota.Window > 0 {
		current.Quota.Window = updated.Quota.Window
	}
	if updated.Quota.MaxRequests > 0 {
		current.Quota.MaxRequests = updated.Quota.MaxRequests
	}
	if updated.Alerts.ErrorRatePct >= 0 {
		current.Alerts.ErrorRatePct = updated.Alerts.ErrorRatePct
	}
	if updated.Alerts.LatencyMS >= 0 {
		current.Alerts.LatencyMS = updated.Alerts.LatencyMS
	}
	if err := s.tenants.UpdateTenantSettings(ctx, current); err != nil {
		return nil, err
	}
	return current, nil
}

// RotateCredential issues a new credential; the old one stops resolving the
// moment the update lands.
func (s Service) RotateCredential(ctx context.Context, ownerID, tenantID string) (*domain.Tenant, error) {
	tenant, err := s.tenants.GetTenantForOwner(ctx, tenantID, ownerID)
	if err != nil {
		return nil, err
	}
	credential, err := generateCredential()
	if err != nil {
		return nil, fmt.Errorf("generate credential: %w", err)
	}
	if err := s.tenants.UpdateTenantCredential(ctx, tenant.ID, credential); err != nil {
		return nil, err
	}
	tenant.Credential = credential
	s.logger.Info("tenant credential rotated", "tenant_id", tenant.ID)
	return tenant, nil
}

// Deactivate soft-deletes a tenant and optionally purges its records.
func (s Service) Deactivate(ctx context.Context, ownerID, tenantID string, purgeMetrics bool) error {
	tenant, err := s.tenants.GetTenantForOwner(ctx, tenantID, ownerID)
	if err != nil {
		return err
	}
	if err := s.tenants.DeactivateTenant(ctx, tenant.ID); err != nil {
		return err
	}
	if purgeMetrics {
		if err := s.metrics.DeleteMetricsByTenant(ctx, tenant.ID); err != nil {
			return fmt.Errorf("purge metrics: %w", err)
		}
	}
	s.logger.Info("tenant deactivated", "tenant_id", tenant.ID, "purged", purgeMetrics)
	return nil
}

// generateCredential produces an opaque 32-hex-char token with a service
// prefix, e.g. pg_9f8e....
func generateCredential() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return credentialPrefix + hex.EncodeToString(raw), nil
}
