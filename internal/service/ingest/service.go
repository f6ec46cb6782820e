package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/pulsegate/pulsegate/internal/domain"
	"github.com/pulsegate/pulsegate/internal/repository"
	"github.com/pulsegate/pulsegate/internal/ws"
)

const (
	defaultQueueSize = 1024
	defaultWorkers   = 4
	persistTimeout   = 5 * time.Second
)

// Authentication failure modes for the public ingestion call. Store errors
// are wrapped, not mapped onto these, so they stay distinguishable in logs.
var (
	ErrMissingCredential = errors.New("api credential required")
	ErrInvalidCredential = errors.New("invalid or inactive api credential")
)

// Service authenticates telemetry producers and records completed exchanges
// without delaying the caller's response. Persistence runs on a bounded
// worker pool fed by a buffered queue; a full queue drops the record.
type Service struct {
	tenants repository.TenantRepository
	metrics repository.MetricRepository
	hub     *ws.Hub
	logger  *slog.Logger
	queue   chan domain.Metric
	workers int
	now     func() time.Time
}

// NewService constructs an ingestion service with sane defaults.
func NewService(tenants repository.TenantRepository, metrics repository.MetricRepository, hub *ws.Hub, logger *slog.Logger, queueSize, workers int) *Service {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	if hub == nil {
		hub = ws.NewHub()
	}
	if logger != nil {
		logger = logger.With("component", "ingest")
	} else {
		logger = slog.Default()
	}
	return &Service{
		tenants: tenants,
		metrics: metrics,
		hub:     hub,
		logger:  logger,
		queue:   make(chan domain.Metric, queueSize),
		workers: workers,
		now:     time.Now,
	}
}

// Authenticate resolves an opaque credential to an active tenant. Purely a
// read; no side effects.
func (s *Service) Authenticate(ctx context.Context, credential string) (*domain.Tenant, error) {
	if strings.TrimSpace(credential) == "" {
		return nil, ErrMissingCredential
	}
	tenant, err := s.tenants.GetTenantByCredential(ctx, credential)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredential
		}
		return nil, fmt.Errorf("tenant lookup: %w", err)
	}
	return tenant, nil
}

// Record enqueues a metric for background persistence. It never blocks: when
// the queue is full the record is logged and lost, and the caller's response
// is unaffected either way.
func (s *Service) Record(metric domain.Metric) {
	if metric.TenantID == "" {
		return
	}
	if metric.Timestamp.IsZero() {
		metric.Timestamp = s.now().UTC()
	} else {
		metric.Timestamp = metric.Timestamp.UTC()
	}
	if metric.LatencyMS < 0 {
		metric.LatencyMS = 0
	}
	normalized, ok := domain.NormalizeMethod(metric.Method)
	if !ok {
		s.logger.Warn("dropping record with unrecognized method",
			"tenant_id", metric.TenantID, "method", metric.Method)
		return
	}
	metric.Method = normalized
	metric.IsError = domain.IsErrorStatus(metric.StatusCode)
	if metric.IsError && metric.ErrorMessage == "" {
		metric.ErrorMessage = domain.ErrorMessageForStatus(metric.StatusCode)
	}
	if !metric.IsError {
		metric.ErrorMessage = ""
	}

	select {
	case s.queue <- metric:
	default:
		s.logger.Warn("telemetry queue full, dropping record",
			"tenant_id", metric.TenantID, "route", metric.RoutePath)
	}
}

// Run consumes the queue until the context is cancelled, then drains what is
// already buffered so admitted records are not thrown away on shutdown.
func (s *Service) Run(ctx context.Context) {
	done := make(chan struct{})
	for i := 0; i < s.workers; i++ {
		go s.worker(ctx, done)
	}
	<-ctx.Done()
	close(done)
	s.drain()
}

func (s *Service) worker(ctx context.Context, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case metric := <-s.queue:
			s.persist(ctx, metric)
		}
	}
}

func (s *Service) drain() {
	for {
		select {
		case metric := <-s.queue:
			s.persist(context.Background(), metric)
		default:
			return
		}
	}
}

// persist writes one record and, on success, forwards a compact event to the
// fan-out hub. Failures are logged and swallowed; there is no retry.
func (s *Service) persist(ctx context.Context, metric domain.Metric) {
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.metrics.InsertMetric(persistCtx, &metric); err != nil {
		s.logger.Warn("failed to persist metric",
			"tenant_id", metric.TenantID, "route", metric.RoutePath, "error", err)
		return
	}
	s.publish(metric)
}

func (s *Service) publish(metric domain.Metric) {
	payload, err := MarshalLiveEvent(metric)
	if err != nil {
		s.logger.Warn("failed to marshal live event", "error", err)
		return
	}
	s.hub.Publish(metric.TenantID, payload)
}

// Hub exposes the fan-out hub for the transport layer.
func (s *Service) Hub() *ws.Hub {
	return s.hub
}

// MarshalLiveEvent encodes the compact per-record summary pushed to
// subscribed dashboard sessions.
func MarshalLiveEvent(metric domain.Metric) ([]byte, error) {
	payload := map[string]any{
		"type":        "request",
		"route":       metric.RoutePath,
		"method":      metric.Method,
		"latency_ms":  metric.LatencyMS,
		"status_code": metric.StatusCode,
		"timestamp":   metric.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	return json.Marshal(payload)
}
