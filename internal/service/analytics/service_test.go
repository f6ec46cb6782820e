package analytics

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsegate/pulsegate/internal/domain"
	"github.com/pulsegate/pulsegate/internal/repository"
)

// fakeMetricRepo keeps records in memory and answers the aggregation
// contract the way the SQL layer does.
type fakeMetricRepo struct {
	records  []domain.Metric
	queryErr error
}

func (f *fakeMetricRepo) InsertMetric(ctx context.Context, metric *domain.Metric) error {
	f.records = append(f.records, *metric)
	return nil
}

func (f *fakeMetricRepo) inRange(tenantID string, since time.Time) []domain.Metric {
	out := make([]domain.Metric, 0)
	for _, m := range f.records {
		if m.TenantID == tenantID && !m.Timestamp.Before(since) {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeMetricRepo) ListMetricsSince(ctx context.Context, tenantID string, since time.Time, limit int) ([]domain.Metric, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.inRange(tenantID, since), nil
}

func (f *fakeMetricRepo) ListErrorMetricsSince(ctx context.Context, tenantID string, since time.Time) ([]domain.Metric, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	out := make([]domain.Metric, 0)
	for _, m := range f.inRange(tenantID, since) {
		if m.IsError {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (f *fakeMetricRepo) RouteStatsSince(ctx context.Context, tenantID string, since time.Time) ([]domain.RouteStats, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	type key struct{ path, method string }
	grouped := make(map[key]*domain.RouteStats)
	order := make([]key, 0)
	for _, m := range f.inRange(tenantID, since) {
		k := key{m.RoutePath, m.Method}
		s := grouped[k]
		if s == nil {
			s = &domain.RouteStats{Path: m.RoutePath, Method: m.Method, MinLatencyMS: m.LatencyMS, MaxLatencyMS: m.LatencyMS}
			grouped[k] = s
			order = append(order, k)
		}
		s.TotalRequests++
		s.AvgLatencyMS += m.LatencyMS
		if m.LatencyMS < s.MinLatencyMS {
			s.MinLatencyMS = m.LatencyMS
		}
		if m.LatencyMS > s.MaxLatencyMS {
			s.MaxLatencyMS = m.LatencyMS
		}
		if m.IsError {
			s.ErrorCount++
		} else {
			s.SuccessCount++
		}
	}
	stats := make([]domain.RouteStats, 0, len(order))
	for _, k := range order {
		s := grouped[k]
		s.AvgLatencyMS /= float64(s.TotalRequests)
		s.ErrorRatePct = float64(s.ErrorCount) / float64(s.TotalRequests) * 100
		s.SuccessRatePct = float64(s.SuccessCount) / float64(s.TotalRequests) * 100
		stats = append(stats, *s)
	}
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].TotalRequests > stats[j].TotalRequests })
	return stats, nil
}

func (f *fakeMetricRepo) DailyTrends(ctx context.Context, tenantID string, start, end time.Time) ([]domain.TrendPoint, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	grouped := make(map[time.Time]*domain.TrendPoint)
	for _, m := range f.records {
		if m.TenantID != tenantID || m.Timestamp.Before(start) || m.Timestamp.After(end) {
			continue
		}
		y, mo, d := m.Timestamp.UTC().Date()
		day := time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
		p := grouped[day]
		if p == nil {
			p = &domain.TrendPoint{Date: day}
			grouped[day] = p
		}
		p.TotalRequests++
		if m.IsError {
			p.TotalErrors++
		}
		p.AvgLatencyMS += m.LatencyMS
		if m.LatencyMS > p.MaxLatencyMS {
			p.MaxLatencyMS = m.LatencyMS
		}
	}
	points := make([]domain.TrendPoint, 0, len(grouped))
	for _, p := range grouped {
		p.AvgLatencyMS /= float64(p.TotalRequests)
		p.ErrorRatePct = float64(p.TotalErrors) / float64(p.TotalRequests) * 100
		points = append(points, *p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}

func (f *fakeMetricRepo) DeleteMetricsByTenant(ctx context.Context, tenantID string) error {
	return nil
}

func (f *fakeMetricRepo) DeleteMetricsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type fakeTenantRepo struct {
	tenants map[string]domain.Tenant // id -> tenant
}

func (f *fakeTenantRepo) CreateTenant(ctx context.Context, tenant *domain.Tenant) error { return nil }

func (f *fakeTenantRepo) GetTenantByCredential(ctx context.Context, credential string) (*domain.Tenant, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeTenantRepo) GetTenantByID(ctx context.Context, id string) (*domain.Tenant, error) {
	if t, ok := f.tenants[id]; ok {
		return &t, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeTenantRepo) GetTenantForOwner(ctx context.Context, id, ownerID string) (*domain.Tenant, error) {
	if t, ok := f.tenants[id]; ok && t.OwnerID == ownerID {
		return &t, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeTenantRepo) ListTenantsByOwner(ctx context.Context, ownerID string) ([]domain.Tenant, error) {
	return nil, nil
}

func (f *fakeTenantRepo) UpdateTenantCredential(ctx context.Context, id, credential string) error {
	return nil
}

func (f *fakeTenantRepo) UpdateTenantSettings(ctx context.Context, tenant *domain.Tenant) error {
	return nil
}

func (f *fakeTenantRepo) DeactivateTenant(ctx context.Context, id string) error { return nil }

func newFixture(records ...domain.Metric) (*Service, *fakeMetricRepo, time.Time) {
	now := time.Date(2025, time.July, 15, 12, 0, 0, 0, time.UTC)
	tenants := &fakeTenantRepo{tenants: map[string]domain.Tenant{
		"tenant-1": {ID: "tenant-1", OwnerID: "user-1", Active: true},
	}}
	metrics := &fakeMetricRepo{records: records}
	svc := New(tenants, metrics, nil)
	svc.now = func() time.Time { return now }
	return svc, metrics, now
}

func metricAt(ts time.Time, path, method string, latency float64, status int) domain.Metric {
	return domain.Metric{
		TenantID:     "tenant-1",
		Timestamp:    ts,
		RoutePath:    path,
		Method:       method,
		LatencyMS:    latency,
		StatusCode:   status,
		IsError:      status >= 400,
		ErrorMessage: domain.ErrorMessageForStatus(status),
	}
}

func TestLiveEmptyRangeReturnsEmptySeries(t *testing.T) {
	svc, _, _ := newFixture()

	result, err := svc.Live(context.Background(), "user-1", "tenant-1", time.Hour)
	require.NoError(t, err)
	assert.Empty(t, result.Series, "empty range must yield an empty series, not zero-valued buckets")
	assert.Zero(t, result.Summary.TotalRequests)
	assert.Zero(t, result.Summary.ErrorRatePct)
}

func TestLiveSummaryAndBucketing(t *testing.T) {
	svc, _, now := newFixture()
	svc.metrics.(*fakeMetricRepo).records = []domain.Metric{
		metricAt(now.Add(-50*time.Minute), "/a", "GET", 100, 200),
		metricAt(now.Add(-49*time.Minute), "/a", "GET", 300, 500),
		metricAt(now.Add(-5*time.Minute), "/b", "POST", 50, 200),
	}

	result, err := svc.Live(context.Background(), "user-1", "tenant-1", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Summary.TotalRequests)
	assert.Equal(t, 1, result.Summary.ErrorCount)
	assert.InDelta(t, 33.33, result.Summary.ErrorRatePct, 0.01)
	assert.Equal(t, 150.0, result.Summary.AvgLatencyMS)

	// 1h lookback -> 3 minute buckets; two occupied, the rest omitted.
	require.Len(t, result.Series, 2)
	assert.True(t, result.Series[0].Start.Before(result.Series[1].Start))
	first := result.Series[0]
	assert.Equal(t, 2, first.Requests)
	assert.Equal(t, 1, first.Errors)
	assert.Equal(t, 50.0, first.ErrorRatePct)
	assert.Equal(t, 200.0, first.AvgLatencyMS)
}

func TestLiveAlertThresholds(t *testing.T) {
	svc, metrics, now := newFixture()
	svc.tenants.(*fakeTenantRepo).tenants["tenant-1"] = domain.Tenant{
		ID: "tenant-1", OwnerID: "user-1", Active: true,
		Alerts: domain.AlertThresholds{ErrorRatePct: 25, LatencyMS: 100},
	}
	metrics.records = []domain.Metric{
		metricAt(now.Add(-10*time.Minute), "/a", "GET", 400, 500),
		metricAt(now.Add(-9*time.Minute), "/a", "GET", 100, 200),
	}

	result, err := svc.Live(context.Background(), "user-1", "tenant-1", 0)
	require.NoError(t, err)
	assert.True(t, result.Summary.ErrorRateExceeded)
	assert.True(t, result.Summary.LatencyExceeded)
}

func TestBucketWidthHeuristic(t *testing.T) {
	assert.Equal(t, time.Minute, bucketWidth(10*time.Minute))
	assert.Equal(t, time.Minute, bucketWidth(20*time.Minute))
	assert.Equal(t, 3*time.Minute, bucketWidth(time.Hour))
	assert.Equal(t, 72*time.Minute, bucketWidth(24*time.Hour))
}

func TestRoutePerformanceGrouping(t *testing.T) {
	svc, metrics, now := newFixture()
	metrics.records = []domain.Metric{
		metricAt(now.Add(-time.Hour), "/a", "GET", 100, 200),
		metricAt(now.Add(-time.Hour), "/a", "GET", 300, 500),
		metricAt(now.Add(-time.Hour), "/b", "POST", 50, 200),
	}

	stats, err := svc.RoutePerformance(context.Background(), "user-1", "tenant-1", 0)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	// Busiest group first.
	assert.Equal(t, "/a", stats[0].Path)
	assert.Equal(t, "GET", stats[0].Method)
	assert.Equal(t, int64(2), stats[0].TotalRequests)
	assert.Equal(t, 200.0, stats[0].AvgLatencyMS)
	assert.Equal(t, 100.0, stats[0].MinLatencyMS)
	assert.Equal(t, 300.0, stats[0].MaxLatencyMS)
	assert.Equal(t, 50.0, stats[0].ErrorRatePct)
	assert.Equal(t, 50.0, stats[0].SuccessRatePct)

	assert.Equal(t, "/b", stats[1].Path)
	assert.Equal(t, 0.0, stats[1].ErrorRatePct)
	assert.Equal(t, 100.0, stats[1].SuccessRatePct)
}

func TestErrorsGroupedByRouteOrderedByCount(t *testing.T) {
	svc, metrics, now := newFixture()
	metrics.records = []domain.Metric{
		metricAt(now.Add(-3*time.Hour), "/a", "GET", 10, 500),
		metricAt(now.Add(-2*time.Hour), "/a", "GET", 10, 502),
		metricAt(now.Add(-90*time.Minute), "/b", "POST", 10, 404),
		metricAt(now.Add(-time.Hour), "/ok", "GET", 10, 200),
	}

	analysis, err := svc.Errors(context.Background(), "user-1", "tenant-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, analysis.TotalErrors)
	require.Len(t, analysis.Groups, 2)

	assert.Equal(t, "GET /a", analysis.Groups[0].Route)
	assert.Equal(t, 2, analysis.Groups[0].Count)
	require.Len(t, analysis.Groups[0].Errors, 2)
	// Newest first, as the store returns them.
	assert.Equal(t, 502, analysis.Groups[0].Errors[0].StatusCode)
	assert.Equal(t, "HTTP 502", analysis.Groups[0].Errors[0].Message)
	assert.Equal(t, 500, analysis.Groups[0].Errors[1].StatusCode)

	assert.Equal(t, "POST /b", analysis.Groups[1].Route)
	assert.Equal(t, 1, analysis.Groups[1].Count)
}

func TestTrendsOmitsEmptyDaysAndOrdersChronologically(t *testing.T) {
	svc, metrics, now := newFixture()
	day2 := now.Add(-5 * 24 * time.Hour)
	day5 := now.Add(-2 * 24 * time.Hour)
	metrics.records = []domain.Metric{
		metricAt(day2, "/a", "GET", 100, 200),
		metricAt(day2.Add(time.Hour), "/a", "GET", 200, 500),
		metricAt(day5, "/b", "GET", 50, 200),
	}

	series, err := svc.Trends(context.Background(), "user-1", "tenant-1", "7d", "")
	require.NoError(t, err)
	assert.Equal(t, 7, series.PeriodDays)
	assert.Equal(t, "requests", series.Metric)
	require.Len(t, series.Points, 2, "days without records are omitted")

	assert.True(t, series.Points[0].Date.Before(series.Points[1].Date))
	assert.Equal(t, int64(2), series.Points[0].TotalRequests)
	assert.Equal(t, int64(1), series.Points[0].TotalErrors)
	assert.Equal(t, 50.0, series.Points[0].ErrorRatePct)
	assert.Equal(t, 150.0, series.Points[0].AvgLatencyMS)
	assert.Equal(t, 200.0, series.Points[0].MaxLatencyMS)
}

func TestTrendsUnrecognizedPeriodDefaultsToSevenDays(t *testing.T) {
	svc, _, _ := newFixture()
	series, err := svc.Trends(context.Background(), "user-1", "tenant-1", "365d", "latency")
	require.NoError(t, err)
	assert.Equal(t, 7, series.PeriodDays)
	assert.Equal(t, "latency", series.Metric)
}

func TestAggregationForForeignTenantReturnsNotFound(t *testing.T) {
	svc, metrics, now := newFixture()
	metrics.records = []domain.Metric{metricAt(now.Add(-time.Minute), "/a", "GET", 10, 200)}

	_, err := svc.Live(context.Background(), "intruder", "tenant-1", time.Hour)
	require.ErrorIs(t, err, repository.ErrNotFound)

	_, err = svc.RoutePerformance(context.Background(), "intruder", "tenant-1", 0)
	require.ErrorIs(t, err, repository.ErrNotFound)

	_, err = svc.Errors(context.Background(), "intruder", "tenant-1", 0)
	require.ErrorIs(t, err, repository.ErrNotFound)

	_, err = svc.Trends(context.Background(), "intruder", "tenant-1", "7d", "")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAggregationSurfacesStoreFailures(t *testing.T) {
	svc, metrics, _ := newFixture()
	metrics.queryErr = errors.New("backend unavailable")

	_, err := svc.Live(context.Background(), "user-1", "tenant-1", time.Hour)
	require.Error(t, err)
	require.NotErrorIs(t, err, repository.ErrNotFound)
}
