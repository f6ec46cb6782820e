package domain

import "time"

// QuotaPolicy bounds how many telemetry calls a tenant may emit per window.
type QuotaPolicy struct {
	Window      time.Duration
	MaxRequests int
}

// AlertThresholds holds per-tenant alerting limits evaluated by the dashboard.
type AlertThresholds struct {
	ErrorRatePct float64
	LatencyMS    float64
}

// Tenant is a registered telemetry producer identified by an opaque credential.
// A tenant is never physically deleted while metric records reference it; the
// Active flag is flipped off instead.
type Tenant struct {
	ID         string
	OwnerID    string
	Name       string
	Credential string
	Active     bool
	Quota      QuotaPolicy
	Alerts     AlertThresholds
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
