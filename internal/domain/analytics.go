package domain

import "time"

// LiveSummary condenses a tenant's rolling window into headline numbers.
type LiveSummary struct {
	TotalRequests     int     `json:"total_requests"`
	ErrorCount        int     `json:"error_count"`
	ErrorRatePct      float64 `json:"error_rate_pct"`
	AvgLatencyMS      float64 `json:"avg_latency_ms"`
	ErrorRateExceeded bool    `json:"error_rate_exceeded"`
	LatencyExceeded   bool    `json:"latency_exceeded"`
}

// LiveBucket is one fixed-width slice of the rolling-window series. Buckets
// with no records are never emitted.
type LiveBucket struct {
	Start        time.Time `json:"start"`
	Requests     int       `json:"requests"`
	Errors       int       `json:"errors"`
	ErrorRatePct float64   `json:"error_rate_pct"`
	AvgLatencyMS float64   `json:"avg_latency_ms"`
}

// LiveMetrics is the rolling-window aggregation result.
type LiveMetrics struct {
	Summary LiveSummary  `json:"summary"`
	Series  []LiveBucket `json:"series"`
}

// RouteStats aggregates performance per (route path, method) pair.
type RouteStats struct {
	Path           string  `json:"path"`
	Method         string  `json:"method"`
	TotalRequests  int64   `json:"total_requests"`
	AvgLatencyMS   float64 `json:"avg_latency_ms"`
	MinLatencyMS   float64 `json:"min_latency_ms"`
	MaxLatencyMS   float64 `json:"max_latency_ms"`
	ErrorCount     int64   `json:"error_count"`
	SuccessCount   int64   `json:"success_count"`
	ErrorRatePct   float64 `json:"error_rate_pct"`
	SuccessRatePct float64 `json:"success_rate_pct"`
}

// ErrorSample is one failed exchange inside an error group.
type ErrorSample struct {
	Timestamp  time.Time `json:"timestamp"`
	StatusCode int       `json:"status_code"`
	Message    string    `json:"message"`
}

// ErrorGroup collects every error observed on one "METHOD path" route.
type ErrorGroup struct {
	Route  string        `json:"route"`
	Path   string        `json:"path"`
	Method string        `json:"method"`
	Count  int           `json:"count"`
	Errors []ErrorSample `json:"errors"`
}

// ErrorAnalysis is the grouped error report for a tenant and range.
type ErrorAnalysis struct {
	TotalErrors int          `json:"total_errors"`
	Groups      []ErrorGroup `json:"groups"`
}

// TrendPoint is one calendar day of a multi-day rollup.
type TrendPoint struct {
	Date          time.Time `json:"date"`
	TotalRequests int64     `json:"total_requests"`
	TotalErrors   int64     `json:"total_errors"`
	ErrorRatePct  float64   `json:"error_rate_pct"`
	AvgLatencyMS  float64   `json:"avg_latency_ms"`
	MaxLatencyMS  float64   `json:"max_latency_ms"`
}

// TrendSeries is the historical trend result, chronologically ascending.
type TrendSeries struct {
	PeriodDays int          `json:"period_days"`
	Metric     string       `json:"metric"`
	Points     []TrendPoint `json:"points"`
}
