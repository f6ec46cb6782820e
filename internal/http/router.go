package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulsegate/pulsegate/internal/admission"
	"github.com/pulsegate/pulsegate/internal/domain"
	"github.com/pulsegate/pulsegate/internal/repository"
	"github.com/pulsegate/pulsegate/internal/service/analytics"
	"github.com/pulsegate/pulsegate/internal/service/ingest"
	"github.com/pulsegate/pulsegate/internal/service/tenant"
	"github.com/pulsegate/pulsegate/internal/ws"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux       *http.ServeMux
	logger    *slog.Logger
	ingest    *ingest.Service
	analytics *analytics.Service
	tenants   tenant.Service
	admit     *admission.Controller
	upgrader  websocket.Upgrader
	limiter   RateLimiter
	jwtSecret string
	heartbeat time.Duration
	dbHealth  func(context.Context) error

	metricsOnce         sync.Once
	metricsInitialized  bool
	requestTotal        *prometheus.CounterVec
	requestLatency      *prometheus.HistogramVec
	rateLimitHits       *prometheus.CounterVec
	admissionRejections *prometheus.CounterVec
}

const (
	rateWindowDefault       = time.Minute
	rateWindowRealtime      = 30 * time.Second
	rateLimitDashboardRead  = 120
	rateLimitDashboardWrite = 60
	rateLimitLiveSession    = 30
	healthCheckTimeout      = 2 * time.Second
	defaultHeartbeat        = 30 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, ingestSvc *ingest.Service, analyticsSvc *analytics.Service, tenantSvc tenant.Service, admit *admission.Controller, limiter RateLimiter, jwtSecret string, heartbeat time.Duration, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:       http.NewServeMux(),
		logger:    logger,
		ingest:    ingestSvc,
		analytics: analyticsSvc,
		tenants:   tenantSvc,
		admit:     admit,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:   limiter,
		jwtSecret: jwtSecret,
		heartbeat: heartbeat,
		dbHealth:  dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	if r.heartbeat <= 0 {
		r.heartbeat = defaultHeartbeat
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("GET /healthz", r.audit(r.handleHealthz))
	r.mux.Handle("GET /metrics", promhttp.Handler())
	r.mux.HandleFunc("POST /track", r.audit(r.handleTrack))
	r.mux.HandleFunc("GET /api/analytics/realtime/{tenantID}", r.audit(r.handlerAuthRate("analytics_realtime", rateLimitDashboardRead, rateWindowDefault, r.handleRealtime)))
	r.mux.HandleFunc("GET /api/analytics/routes/{tenantID}", r.audit(r.handlerAuthRate("analytics_routes", rateLimitDashboardRead, rateWindowDefault, r.handleRoutePerformance)))
	r.mux.HandleFunc("GET /api/analytics/errors/{tenantID}", r.audit(r.handlerAuthRate("analytics_errors", rateLimitDashboardRead, rateWindowDefault, r.handleErrors)))
	r.mux.HandleFunc("GET /api/analytics/trends/{tenantID}", r.audit(r.handlerAuthRate("analytics_trends", rateLimitDashboardRead, rateWindowDefault, r.handleTrends)))
	r.mux.HandleFunc("POST /api/tenants", r.audit(r.handlerAuthRate("tenants_create", rateLimitDashboardWrite, rateWindowDefault, r.handleTenantCreate)))
	r.mux.HandleFunc("GET /api/tenants", r.audit(r.handlerAuthRate("tenants_list", rateLimitDashboardRead, rateWindowDefault, r.handleTenantList)))
	r.mux.HandleFunc("GET /api/tenants/{id}", r.audit(r.handlerAuthRate("tenants_get", rateLimitDashboardRead, rateWindowDefault, r.handleTenantGet)))
	r.mux.HandleFunc("PATCH /api/tenants/{id}", r.audit(r.handlerAuthRate("tenants_update", rateLimitDashboardWrite, rateWindowDefault, r.handleTenantUpdate)))
	r.mux.HandleFunc("POST /api/tenants/{id}/rotate", r.audit(r.handlerAuthRate("tenants_rotate", rateLimitDashboardWrite, rateWindowDefault, r.handleTenantRotate)))
	r.mux.HandleFunc("DELETE /api/tenants/{id}", r.audit(r.handlerAuthRate("tenants_deactivate", rateLimitDashboardWrite, rateWindowDefault, r.handleTenantDeactivate)))
	r.mux.HandleFunc("GET /ws/live", r.audit(r.handlerAuthRate("live_ws", rateLimitLiveSession, rateWindowRealtime, r.handleLiveWS)))
	r.mux.HandleFunc("GET /api/live/events", r.audit(r.handlerAuthRate("live_sse", rateLimitLiveSession, rateWindowRealtime, r.handleLiveSSE)))
}

func (r *Router) handleTrack(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	credential := strings.TrimSpace(req.Header.Get("X-API-Key"))
	if credential == "" {
		credential = strings.TrimSpace(req.URL.Query().Get("api_key"))
	}
	resolved, err := r.ingest.Authenticate(req.Context(), credential)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrMissingCredential):
			writeError(w, http.StatusUnauthorized, "missing API credential")
		case errors.Is(err, ingest.ErrInvalidCredential):
			writeError(w, http.StatusUnauthorized, "invalid or inactive API credential")
		default:
			r.logger.Error("credential lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "credential lookup failed")
		}
		return
	}

	decision := r.admit.AdmitWithPolicy(resolved.ID, resolved.Quota.Window, resolved.Quota.MaxRequests)
	if !decision.Allowed {
		retry := int(decision.RetryAfter / time.Second)
		r.recordAdmissionRejection(resolved.ID)
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":               "request quota exceeded",
			"retry_after_seconds": retry,
		})
		return
	}

	rec := &statusRecorder{ResponseWriter: w}
	writeJSON(rec, http.StatusOK, map[string]string{"status": "tracked"})
	r.ingest.Record(buildMetric(req, resolved.ID, rec, time.Since(start)))
}

// buildMetric captures the completed exchange after the response has been
// written; absent caller metadata is simply omitted.
func buildMetric(req *http.Request, tenantID string, rec *statusRecorder, elapsed time.Duration) domain.Metric {
	metric := domain.Metric{
		TenantID:   tenantID,
		Timestamp:  time.Now().UTC(),
		RoutePath:  routePattern(req),
		Method:     req.Method,
		StatusCode: rec.status,
		LatencyMS:  float64(elapsed.Microseconds()) / 1000.0,
	}
	if ip := clientIP(req); ip != "" {
		metric.CallerIP = ip
	}
	if ua := strings.TrimSpace(req.UserAgent()); ua != "" {
		metric.UserAgent = ua
	}
	if ref := strings.TrimSpace(req.Referer()); ref != "" {
		metric.Referer = ref
	}
	if req.ContentLength >= 0 {
		size := req.ContentLength
		metric.RequestBytes = &size
	}
	written := int64(rec.bytes)
	metric.ResponseBytes = &written
	return metric
}

func routePattern(req *http.Request) string {
	pattern := req.Pattern
	if pattern == "" {
		return req.URL.Path
	}
	if _, path, ok := strings.Cut(pattern, " "); ok {
		return path
	}
	return pattern
}

func (r *Router) handleRealtime(w http.ResponseWriter, req *http.Request) {
	info, ok := r.mustAuthInfo(w, req)
	if !ok {
		return
	}
	lookback, err := parseLookback(req.URL.Query().Get("range"), time.Hour)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid range parameter")
		return
	}
	result, err := r.analytics.Live(req.Context(), info.UserID, req.PathValue("tenantID"), lookback)
	if err != nil {
		r.writeQueryError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (r *Router) handleRoutePerformance(w http.ResponseWriter, req *http.Request) {
	info, ok := r.mustAuthInfo(w, req)
	if !ok {
		return
	}
	lookback, err := parseLookback(req.URL.Query().Get("range"), 24*time.Hour)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid range parameter")
		return
	}
	result, err := r.analytics.RoutePerformance(req.Context(), info.UserID, req.PathValue("tenantID"), lookback)
	if err != nil {
		r.writeQueryError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"routes": result})
}

func (r *Router) handleErrors(w http.ResponseWriter, req *http.Request) {
	info, ok := r.mustAuthInfo(w, req)
	if !ok {
		return
	}
	lookback, err := parseLookback(req.URL.Query().Get("range"), 24*time.Hour)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid range parameter")
		return
	}
	result, err := r.analytics.Errors(req.Context(), info.UserID, req.PathValue("tenantID"), lookback)
	if err != nil {
		r.writeQueryError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (r *Router) handleTrends(w http.ResponseWriter, req *http.Request) {
	info, ok := r.mustAuthInfo(w, req)
	if !ok {
		return
	}
	query := req.URL.Query()
	result, err := r.analytics.Trends(req.Context(), info.UserID, req.PathValue("tenantID"), query.Get("period"), query.Get("metric"))
	if err != nil {
		r.writeQueryError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (r *Router) handleTenantCreate(w http.ResponseWriter, req *http.Request) {
	info, ok := r.mustAuthInfo(w, req)
	if !ok {
		return
	}
	var payload struct {
		Name               string  `json:"name"`
		QuotaWindowSeconds int     `json:"quota_window_seconds"`
		QuotaMaxRequests   int     `json:"quota_max_requests"`
		AlertErrorRatePct  float64 `json:"alert_error_rate_pct"`
		AlertLatencyMS     float64 `json:"alert_latency_ms"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	created, err := r.tenants.Register(req.Context(), tenant.RegisterInput{
		OwnerID: info.UserID,
		Name:    payload.Name,
		Quota: domain.QuotaPolicy{
			Window:      time.Duration(payload.QuotaWindowSeconds) * time.Second,
			MaxRequests: payload.QuotaMaxRequests,
		},
		Alerts: domain.AlertThresholds{
			ErrorRatePct: payload.AlertErrorRatePct,
			LatencyMS:    payload.AlertLatencyMS,
		},
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, tenantView(created))
}

func (r *Router) handleTenantList(w http.ResponseWriter, req *http.Request) {
	info, ok := r.mustAuthInfo(w, req)
	if !ok {
		return
	}
	tenants, err := r.tenants.List(req.Context(), info.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "tenant listing failed")
		return
	}
	views := make([]map[string]any, 0, len(tenants))
	for i := range tenants {
		views = append(views, tenantView(&tenants[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenants": views})
}

func (r *Router) handleTenantGet(w http.ResponseWriter, req *http.Request) {
	info, ok := r.mustAuthInfo(w, req)
	if !ok {
		return
	}
	found, err := r.tenants.Get(req.Context(), info.UserID, req.PathValue("id"))
	if err != nil {
		r.writeQueryError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, tenantView(found))
}

func (r *Router) handleTenantUpdate(w http.ResponseWriter, req *http.Request) {
	info, ok := r.mustAuthInfo(w, req)
	if !ok {
		return
	}
	var payload struct {
		Name               string   `json:"name"`
		QuotaWindowSeconds *int     `json:"quota_window_seconds"`
		QuotaMaxRequests   *int     `json:"quota_max_requests"`
		AlertErrorRatePct  *float64 `json:"alert_error_rate_pct"`
		AlertLatencyMS     *float64 `json:"alert_latency_ms"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	updated := &domain.Tenant{
		ID:     req.PathValue("id"),
		Name:   payload.Name,
		Alerts: domain.AlertThresholds{ErrorRatePct: -1, LatencyMS: -1},
	}
	if payload.QuotaWindowSeconds != nil {
		updated.Quota.Window = time.Duration(*payload.QuotaWindowSeconds) * time.Second
	}
	if payload.QuotaMaxRequests != nil {
		updated.Quota.MaxRequests = *payload.QuotaMaxRequests
	}
	if payload.AlertErrorRatePct != nil {
		updated.Alerts.ErrorRatePct = *payload.AlertErrorRatePct
	}
	if payload.AlertLatencyMS != nil {
		updated.Alerts.LatencyMS = *payload.AlertLatencyMS
	}
	result, err := r.tenants.UpdateSettings(req.Context(), info.UserID, updated)
	if err != nil {
		r.writeQueryError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, tenantView(result))
}

func (r *Router) handleTenantRotate(w http.ResponseWriter, req *http.Request) {
	info, ok := r.mustAuthInfo(w, req)
	if !ok {
		return
	}
	rotated, err := r.tenants.RotateCredential(req.Context(), info.UserID, req.PathValue("id"))
	if err != nil {
		r.writeQueryError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, tenantView(rotated))
}

func (r *Router) handleTenantDeactivate(w http.ResponseWriter, req *http.Request) {
	info, ok := r.mustAuthInfo(w, req)
	if !ok {
		return
	}
	purge := strings.EqualFold(req.URL.Query().Get("purge"), "true")
	if err := r.tenants.Deactivate(req.Context(), info.UserID, req.PathValue("id"), purge); err != nil {
		r.writeQueryError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deactivated", "purged": purge})
}

type liveControl struct {
	Action   string `json:"action"`
	TenantID string `json:"tenant_id"`
}

func (r *Router) handleLiveWS(w http.ResponseWriter, req *http.Request) {
	info, ok := r.mustAuthInfo(w, req)
	if !ok {
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	hub := r.ingest.Hub()
	// The request context dies when the handler returns; ownership checks in
	// the read loop need one that survives the hijack.
	ctx := context.WithoutCancel(req.Context())
	go func() {
		defer func() {
			hub.UnsubscribeAll(client)
			client.Close()
		}()
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var control liveControl
			if err := json.Unmarshal(raw, &control); err != nil || control.TenantID == "" {
				r.sendControlError(client, "invalid control message")
				continue
			}
			switch control.Action {
			case "subscribe":
				if _, err := r.tenants.Get(ctx, info.UserID, control.TenantID); err != nil {
					r.sendControlError(client, "tenant not found")
					continue
				}
				hub.Subscribe(control.TenantID, client)
				r.sendControlAck(client, "subscribed", control.TenantID)
			case "unsubscribe":
				hub.Unsubscribe(control.TenantID, client)
				r.sendControlAck(client, "unsubscribed", control.TenantID)
			default:
				r.sendControlError(client, "unknown action")
			}
		}
	}()
}

func (r *Router) sendControlAck(client *ws.Client, kind, tenantID string) {
	payload, err := json.Marshal(map[string]string{"type": kind, "tenant_id": tenantID})
	if err != nil {
		return
	}
	_ = client.Send(payload)
}

func (r *Router) sendControlError(client *ws.Client, msg string) {
	payload, err := json.Marshal(map[string]string{"type": "error", "message": msg})
	if err != nil {
		return
	}
	_ = client.Send(payload)
}

func (r *Router) handleLiveSSE(w http.ResponseWriter, req *http.Request) {
	info, ok := r.mustAuthInfo(w, req)
	if !ok {
		return
	}
	tenantID := req.URL.Query().Get("tenant_id")
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id query parameter required")
		return
	}
	if _, err := r.tenants.Get(req.Context(), info.UserID, tenantID); err != nil {
		r.writeQueryError(w, req, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	hub := r.ingest.Hub()
	hub.Subscribe(tenantID, client)
	defer func() {
		hub.UnsubscribeAll(client)
		client.Close()
	}()

	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	if r.admit != nil {
		components["admission"] = map[string]any{"status": "up", "tenants": r.admit.Tenants()}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) mustAuthInfo(w http.ResponseWriter, req *http.Request) (authInfo, bool) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
	}
	return info, ok
}

// writeQueryError distinguishes "no such tenant" from backend failures so the
// dashboard can render the two differently.
func (r *Router) writeQueryError(w http.ResponseWriter, req *http.Request, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "tenant not found")
		return
	}
	r.logger.Error("dashboard query failed", "error", err, "path", req.URL.Path)
	writeError(w, http.StatusInternalServerError, "query failed")
}

// parseLookback accepts Go duration strings plus a day suffix, e.g. 45m, 6h, 7d.
func parseLookback(raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	if strings.HasSuffix(raw, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(raw, "d"))
		if err != nil || days <= 0 {
			return 0, errors.New("invalid day range")
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return 0, errors.New("invalid range duration")
	}
	return parsed, nil
}

func tenantView(t *domain.Tenant) map[string]any {
	return map[string]any{
		"id":         t.ID,
		"name":       t.Name,
		"credential": t.Credential,
		"active":     t.Active,
		"quota": map[string]any{
			"window_seconds": int(t.Quota.Window / time.Second),
			"max_requests":   t.Quota.MaxRequests,
		},
		"alerts": map[string]any{
			"error_rate_pct": t.Alerts.ErrorRatePct,
			"latency_ms":     t.Alerts.LatencyMS,
		},
		"created_at": t.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, routePattern(req), status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
		} else if req.URL.Path == "/track" {
			actor = "producer"
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (sr *statusRecorder) Push(target string, opts *http.PushOptions) error {
	if p, ok := sr.ResponseWriter.(http.Pusher); ok {
		return p.Push(target, opts)
	}
	return http.ErrNotSupported
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}
