package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pulsegate/pulsegate/internal/domain"
	"github.com/pulsegate/pulsegate/internal/repository"
	"github.com/pulsegate/pulsegate/internal/ws"
)

type stubTenantRepo struct {
	byCredential map[string]domain.Tenant
	lookupErr    error
}

func (s *stubTenantRepo) CreateTenant(ctx context.Context, tenant *domain.Tenant) error { return nil }

func (s *stubTenantRepo) GetTenantByCredential(ctx context.Context, credential string) (*domain.Tenant, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	if tenant, ok := s.byCredential[credential]; ok {
		return &tenant, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubTenantRepo) GetTenantByID(ctx context.Context, id string) (*domain.Tenant, error) {
	return nil, repository.ErrNotFound
}

func (s *stubTenantRepo) GetTenantForOwner(ctx context.Context, id, ownerID string) (*domain.Tenant, error) {
	return nil, repository.ErrNotFound
}

func (s *stubTenantRepo) ListTenantsByOwner(ctx context.Context, ownerID string) ([]domain.Tenant, error) {
	return nil, nil
}

func (s *stubTenantRepo) UpdateTenantCredential(ctx context.Context, id, credential string) error {
	return nil
}

func (s *stubTenantRepo) UpdateTenantSettings(ctx context.Context, tenant *domain.Tenant) error {
	return nil
}

func (s *stubTenantRepo) DeactivateTenant(ctx context.Context, id string) error { return nil }

type stubMetricRepo struct {
	mu        sync.Mutex
	inserted  []domain.Metric
	insertErr error
}

func (s *stubMetricRepo) InsertMetric(ctx context.Context, metric *domain.Metric) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	metric.ID = int64(len(s.inserted) + 1)
	s.inserted = append(s.inserted, *metric)
	return nil
}

func (s *stubMetricRepo) insertedSnapshot() []domain.Metric {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Metric(nil), s.inserted...)
}

func (s *stubMetricRepo) ListMetricsSince(ctx context.Context, tenantID string, since time.Time, limit int) ([]domain.Metric, error) {
	return nil, nil
}

func (s *stubMetricRepo) ListErrorMetricsSince(ctx context.Context, tenantID string, since time.Time) ([]domain.Metric, error) {
	return nil, nil
}

func (s *stubMetricRepo) RouteStatsSince(ctx context.Context, tenantID string, since time.Time) ([]domain.RouteStats, error) {
	return nil, nil
}

func (s *stubMetricRepo) DailyTrends(ctx context.Context, tenantID string, start, end time.Time) ([]domain.TrendPoint, error) {
	return nil, nil
}

func (s *stubMetricRepo) DeleteMetricsByTenant(ctx context.Context, tenantID string) error {
	return nil
}

func (s *stubMetricRepo) DeleteMetricsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type captureSubscriber struct {
	ch chan []byte
}

func (c *captureSubscriber) Send(payload []byte) error {
	c.ch <- payload
	return nil
}

func (c *captureSubscriber) Close() {}

func TestAuthenticateMissingCredential(t *testing.T) {
	svc := NewService(&stubTenantRepo{}, &stubMetricRepo{}, ws.NewHub(), nil, 8, 1)
	if _, err := svc.Authenticate(context.Background(), "  "); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}

func TestAuthenticateUnknownCredential(t *testing.T) {
	svc := NewService(&stubTenantRepo{}, &stubMetricRepo{}, ws.NewHub(), nil, 8, 1)
	if _, err := svc.Authenticate(context.Background(), "pg_nope"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestAuthenticateStoreFailureStaysDistinct(t *testing.T) {
	storeErr := errors.New("connection refused")
	repo := &stubTenantRepo{lookupErr: storeErr}
	svc := NewService(repo, &stubMetricRepo{}, ws.NewHub(), nil, 8, 1)

	_, err := svc.Authenticate(context.Background(), "pg_key")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrMissingCredential) || errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("store failure must not collapse into an auth error, got %v", err)
	}
	if !errors.Is(err, storeErr) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestAuthenticateResolvesTenant(t *testing.T) {
	repo := &stubTenantRepo{byCredential: map[string]domain.Tenant{
		"pg_live": {ID: "tenant-1", Active: true},
	}}
	svc := NewService(repo, &stubMetricRepo{}, ws.NewHub(), nil, 8, 1)

	tenant, err := svc.Authenticate(context.Background(), "pg_live")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if tenant.ID != "tenant-1" {
		t.Fatalf("unexpected tenant %q", tenant.ID)
	}
}

func TestRecordDerivesErrorFlagAcrossStatusSpace(t *testing.T) {
	metrics := &stubMetricRepo{}
	svc := NewService(&stubTenantRepo{}, metrics, ws.NewHub(), nil, 1024, 1)
	base := time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	statuses := []int{100, 200, 201, 204, 301, 304, 399, 400, 401, 404, 429, 499, 500, 502, 503, 599}
	for _, status := range statuses {
		svc.Record(domain.Metric{
			TenantID:   "tenant-1",
			RoutePath:  "/orders",
			Method:     "get",
			StatusCode: status,
			LatencyMS:  12.5,
		})
	}
	svc.drain()

	stored := metrics.insertedSnapshot()
	if len(stored) != len(statuses) {
		t.Fatalf("expected %d records, got %d", len(statuses), len(stored))
	}
	for i, m := range stored {
		status := statuses[i]
		if m.IsError != (status >= 400) {
			t.Fatalf("status %d: error flag %v", status, m.IsError)
		}
		if m.IsError && m.ErrorMessage == "" {
			t.Fatalf("status %d: missing error message", status)
		}
		if !m.IsError && m.ErrorMessage != "" {
			t.Fatalf("status %d: unexpected error message %q", status, m.ErrorMessage)
		}
		if m.LatencyMS < 0 {
			t.Fatalf("status %d: negative latency", status)
		}
		if m.Method != "GET" {
			t.Fatalf("status %d: method not normalized, got %q", status, m.Method)
		}
		if m.Timestamp.IsZero() {
			t.Fatalf("status %d: timestamp missing", status)
		}
	}
}

func TestRecordDropsUnrecognizedMethod(t *testing.T) {
	metrics := &stubMetricRepo{}
	svc := NewService(&stubTenantRepo{}, metrics, ws.NewHub(), nil, 8, 1)

	svc.Record(domain.Metric{
		TenantID:   "tenant-1",
		RoutePath:  "/orders",
		Method:     "PROPFIND",
		StatusCode: 200,
	})
	svc.Record(domain.Metric{
		TenantID:   "tenant-1",
		RoutePath:  "/orders",
		Method:     "delete",
		StatusCode: 204,
	})
	svc.drain()

	stored := metrics.insertedSnapshot()
	if len(stored) != 1 {
		t.Fatalf("expected only the valid record, got %d", len(stored))
	}
	if stored[0].Method != "DELETE" {
		t.Fatalf("expected normalized DELETE, got %q", stored[0].Method)
	}
}

func TestRecordPersistsExactlyOnceAndBroadcasts(t *testing.T) {
	metrics := &stubMetricRepo{}
	hub := ws.NewHub()
	defer hub.Close()
	svc := NewService(&stubTenantRepo{}, metrics, hub, nil, 8, 1)

	sub := &captureSubscriber{ch: make(chan []byte, 1)}
	hub.Subscribe("tenant-1", sub)

	ts := time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)
	svc.Record(domain.Metric{
		TenantID:   "tenant-1",
		Timestamp:  ts,
		RoutePath:  "/orders",
		Method:     "POST",
		StatusCode: 503,
		LatencyMS:  87.5,
	})
	svc.drain()

	if got := len(metrics.insertedSnapshot()); got != 1 {
		t.Fatalf("expected exactly one stored record, got %d", got)
	}

	select {
	case payload := <-sub.ch:
		var event map[string]any
		if err := json.Unmarshal(payload, &event); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if event["route"] != "/orders" || event["method"] != "POST" {
			t.Fatalf("unexpected route in event: %v", event)
		}
		if v, ok := event["status_code"].(float64); !ok || int(v) != 503 {
			t.Fatalf("unexpected status_code: %v", event["status_code"])
		}
		if v, ok := event["latency_ms"].(float64); !ok || v != 87.5 {
			t.Fatalf("unexpected latency_ms: %v", event["latency_ms"])
		}
		if event["timestamp"] != ts.Format(time.RFC3339Nano) {
			t.Fatalf("unexpected timestamp: %v", event["timestamp"])
		}
	case <-time.After(time.Second):
		t.Fatal("expected fan-out event")
	}
}

func TestPersistFailureIsSwallowedAndNotBroadcast(t *testing.T) {
	metrics := &stubMetricRepo{insertErr: errors.New("disk full")}
	hub := ws.NewHub()
	defer hub.Close()
	svc := NewService(&stubTenantRepo{}, metrics, hub, nil, 8, 1)

	sub := &captureSubscriber{ch: make(chan []byte, 1)}
	hub.Subscribe("tenant-1", sub)

	svc.Record(domain.Metric{TenantID: "tenant-1", RoutePath: "/x", Method: "GET", StatusCode: 200})
	svc.drain()

	select {
	case payload := <-sub.ch:
		t.Fatalf("failed persistence must not broadcast, got %q", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRecordDropsWhenQueueFull(t *testing.T) {
	metrics := &stubMetricRepo{}
	svc := NewService(&stubTenantRepo{}, metrics, ws.NewHub(), nil, 1, 1)

	svc.Record(domain.Metric{TenantID: "tenant-1", RoutePath: "/a", Method: "GET", StatusCode: 200})
	// Queue capacity is one; the second record is dropped, not blocked on.
	done := make(chan struct{})
	go func() {
		svc.Record(domain.Metric{TenantID: "tenant-1", RoutePath: "/b", Method: "GET", StatusCode: 200})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	svc.drain()
	if got := len(metrics.insertedSnapshot()); got != 1 {
		t.Fatalf("expected 1 stored record, got %d", got)
	}
}
