package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"log/slog"

	"github.com/pulsegate/pulsegate/internal/domain"
	"github.com/pulsegate/pulsegate/internal/repository"
)

const (
	defaultLiveLookback  = time.Hour
	defaultRouteLookback = 24 * time.Hour
	defaultErrorLookback = 24 * time.Hour
	maxLiveRecords       = 1000
	maxSeriesBuckets     = 20
)

// Service answers the dashboard's aggregation queries. Every operation is
// scoped to a tenant and verified against the calling user; a tenant owned
// elsewhere reads as not found, never as someone else's data.
type Service struct {
	tenants repository.TenantRepository
	metrics repository.MetricRepository
	logger  *slog.Logger
	now     func() time.Time
}

// New constructs an analytics service.
func New(tenants repository.TenantRepository, metrics repository.MetricRepository, logger *slog.Logger) *Service {
	if logger != nil {
		logger = logger.With("component", "analytics")
	} else {
		logger = slog.Default()
	}
	return &Service{tenants: tenants, metrics: metrics, logger: logger, now: time.Now}
}

func (s *Service) authorize(ctx context.Context, ownerID, tenantID string) (*domain.Tenant, error) {
	tenant, err := s.tenants.GetTenantForOwner(ctx, tenantID, ownerID)
	if err != nil {
		return nil, err
	}
	return tenant, nil
}

// Live returns the rolling-window summary plus a time-bucketed series.
// Bucket width is max(1 minute, lookback/20), so at most ~20 buckets come
// back regardless of range; buckets with no records are omitted entirely.
func (s *Service) Live(ctx context.Context, ownerID, tenantID string, lookback time.Duration) (*domain.LiveMetrics, error) {
	tenant, err := s.authorize(ctx, ownerID, tenantID)
	if err != nil {
		return nil, err
	}
	if lookback <= 0 {
		lookback = defaultLiveLookback
	}
	since := s.now().Add(-lookback)
	metrics, err := s.metrics.ListMetricsSince(ctx, tenantID, since, maxLiveRecords)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}

	result := &domain.LiveMetrics{
		Series: buildSeries(metrics, bucketWidth(lookback)),
	}
	summary := &result.Summary
	summary.TotalRequests = len(metrics)
	var latencySum float64
	for _, m := range metrics {
		if m.IsError {
			summary.ErrorCount++
		}
		latencySum += m.LatencyMS
	}
	if summary.TotalRequests > 0 {
		summary.ErrorRatePct = round2(float64(summary.ErrorCount) / float64(summary.TotalRequests) * 100)
		summary.AvgLatencyMS = math.Round(latencySum / float64(summary.TotalRequests))
	}
	if tenant.Alerts.ErrorRatePct > 0 {
		summary.ErrorRateExceeded = summary.ErrorRatePct > tenant.Alerts.ErrorRatePct
	}
	if tenant.Alerts.LatencyMS > 0 {
		summary.LatencyExceeded = summary.AvgLatencyMS > tenant.Alerts.LatencyMS
	}
	return result, nil
}

// bucketWidth keeps the chart to at most ~20 points: max(1m, lookback/20),
// in whole minutes. Larger ranges silently collapse into coarser buckets.
func bucketWidth(lookback time.Duration) time.Duration {
	minutes := int(lookback.Minutes()) / maxSeriesBuckets
	if minutes < 1 {
		minutes = 1
	}
	return time.Duration(minutes) * time.Minute
}

func buildSeries(metrics []domain.Metric, width time.Duration) []domain.LiveBucket {
	type accum struct {
		requests   int
		errors     int
		latencySum float64
	}
	buckets := make(map[time.Time]*accum)
	for _, m := range metrics {
		start := m.Timestamp.UTC().Truncate(width)
		b := buckets[start]
		if b == nil {
			b = &accum{}
			buckets[start] = b
		}
		b.requests++
		if m.IsError {
			b.errors++
		}
		b.latencySum += m.LatencyMS
	}

	series := make([]domain.LiveBucket, 0, len(buckets))
	for start, b := range buckets {
		bucket := domain.LiveBucket{
			Start:        start,
			Requests:     b.requests,
			Errors:       b.errors,
			AvgLatencyMS: math.Round(b.latencySum / float64(b.requests)),
		}
		bucket.ErrorRatePct = round2(float64(b.errors) / float64(b.requests) * 100)
		series = append(series, bucket)
	}
	sort.Slice(series, func(i, j int) bool {
		return series[i].Start.Before(series[j].Start)
	})
	return series
}

// RoutePerformance groups records by (route path, method), busiest first.
func (s *Service) RoutePerformance(ctx context.Context, ownerID, tenantID string, lookback time.Duration) ([]domain.RouteStats, error) {
	if _, err := s.authorize(ctx, ownerID, tenantID); err != nil {
		return nil, err
	}
	if lookback <= 0 {
		lookback = defaultRouteLookback
	}
	since := s.now().Add(-lookback)
	stats, err := s.metrics.RouteStatsSince(ctx, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("route stats: %w", err)
	}
	return stats, nil
}

// Errors groups error records by "METHOD path" with every error listed,
// largest group first.
func (s *Service) Errors(ctx context.Context, ownerID, tenantID string, lookback time.Duration) (*domain.ErrorAnalysis, error) {
	if _, err := s.authorize(ctx, ownerID, tenantID); err != nil {
		return nil, err
	}
	if lookback <= 0 {
		lookback = defaultErrorLookback
	}
	since := s.now().Add(-lookback)
	errorMetrics, err := s.metrics.ListErrorMetricsSince(ctx, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("list error metrics: %w", err)
	}

	groups := make(map[string]*domain.ErrorGroup)
	order := make([]string, 0)
	for _, m := range errorMetrics {
		key := m.Method + " " + m.RoutePath
		group := groups[key]
		if group == nil {
			group = &domain.ErrorGroup{Route: key, Path: m.RoutePath, Method: m.Method}
			groups[key] = group
			order = append(order, key)
		}
		group.Count++
		group.Errors = append(group.Errors, domain.ErrorSample{
			Timestamp:  m.Timestamp,
			StatusCode: m.StatusCode,
			Message:    m.ErrorMessage,
		})
	}

	analysis := &domain.ErrorAnalysis{
		TotalErrors: len(errorMetrics),
		Groups:      make([]domain.ErrorGroup, 0, len(order)),
	}
	for _, key := range order {
		analysis.Groups = append(analysis.Groups, *groups[key])
	}
	sort.SliceStable(analysis.Groups, func(i, j int) bool {
		return analysis.Groups[i].Count > analysis.Groups[j].Count
	})
	return analysis, nil
}

// Trends rolls records up by calendar day over a 7/30/90 day period.
// Unrecognized periods fall back to 7 days. Days without records are
// omitted; the series is chronological.
func (s *Service) Trends(ctx context.Context, ownerID, tenantID, period, metric string) (*domain.TrendSeries, error) {
	if _, err := s.authorize(ctx, ownerID, tenantID); err != nil {
		return nil, err
	}
	days := periodDays(period)
	end := s.now()
	start := end.Add(-time.Duration(days) * 24 * time.Hour)
	points, err := s.metrics.DailyTrends(ctx, tenantID, start, end)
	if err != nil {
		return nil, fmt.Errorf("daily trends: %w", err)
	}
	for i := range points {
		points[i].ErrorRatePct = round2(points[i].ErrorRatePct)
		points[i].AvgLatencyMS = math.Round(points[i].AvgLatencyMS)
	}
	metric = strings.TrimSpace(metric)
	if metric == "" {
		metric = "requests"
	}
	return &domain.TrendSeries{PeriodDays: days, Metric: metric, Points: points}, nil
}

func periodDays(period string) int {
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "30d":
		return 30
	case "90d":
		return 90
	default:
		return 7
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
