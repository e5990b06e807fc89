package api

import (
    "bufio"
    "errors"
    "net"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"

    "dronenav/internal/metrics"
)

// Routes builds the service mux wrapped in CORS, rate limiting and request
// metrics.
func (s *Server) Routes() http.Handler {
    mux := http.NewServeMux()

    // Plans
    mux.HandleFunc("POST /v1/plans", s.CreatePlanHandler)
    mux.HandleFunc("GET /v1/plans", s.ListPlansHandler)
    mux.HandleFunc("GET /v1/plans/{id}", s.GetPlanHandler)
    mux.HandleFunc("GET /v1/plans/{id}/commands", s.PlanCommandsHandler)
    mux.HandleFunc("GET /v1/plans/{id}/metrics", s.PlanMetricsHandler)
    mux.HandleFunc("GET /v1/plans/{id}/events", s.PlanEventsHandler)
    mux.HandleFunc("GET /v1/plans/{id}/ws", s.PlanWSHandler)

    // Subscriptions
    mux.HandleFunc("POST /v1/subscriptions", s.CreateSubscriptionHandler)
    mux.HandleFunc("GET /v1/subscriptions", s.ListSubscriptionsHandler)
    mux.HandleFunc("DELETE /v1/subscriptions/{id}", s.DeleteSubscriptionHandler)

    // Admin
    mux.HandleFunc("GET /v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)
    mux.HandleFunc("POST /v1/admin/webhook-deliveries/{id}/retry", s.WebhookDeliveryRetryHandler)

    // Health, docs, debug
    mux.HandleFunc("GET /healthz", s.HealthHandler)
    mux.HandleFunc("GET /readyz", s.ReadyHandler)
    mux.HandleFunc("GET /debug", s.DebugJSON)
    mux.HandleFunc("GET /openapi.yaml", s.OpenAPIHandler)
    mux.HandleFunc("GET /openapi.json", s.OpenAPIJSONHandler)
    mux.HandleFunc("GET /docs", s.DocsHandler)
    mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

    var h http.Handler = mux
    h = s.Limiter.Middleware(h)
    h = corsMiddleware(s.Config.AllowOrigins, h)
    return metricsMiddleware(h)
}

// StatusRecorder captures the response status for metrics and logs. It keeps
// Flush and Hijack reachable for SSE and WebSocket handlers.
type StatusRecorder struct {
    http.ResponseWriter
    status int
}

func (r *StatusRecorder) WriteHeader(code int) {
    if r.status == 0 { r.status = code }
    r.ResponseWriter.WriteHeader(code)
}

func (r *StatusRecorder) Write(b []byte) (int, error) {
    if r.status == 0 { r.status = http.StatusOK }
    return r.ResponseWriter.Write(b)
}

func (r *StatusRecorder) Flush() {
    if f, ok := r.ResponseWriter.(http.Flusher); ok { f.Flush() }
}

func (r *StatusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
    h, ok := r.ResponseWriter.(http.Hijacker)
    if !ok { return nil, nil, errors.New("hijack not supported") }
    if r.status == 0 { r.status = http.StatusSwitchingProtocols }
    return h.Hijack()
}

func (r *StatusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Status returns the recorded status, 200 if nothing was written.
func (r *StatusRecorder) Status() int {
    if r.status == 0 { return http.StatusOK }
    return r.status
}

// NewStatusRecorder wraps w so middlewares outside this package can read the
// final status.
func NewStatusRecorder(w http.ResponseWriter) *StatusRecorder {
    if rec, ok := w.(*StatusRecorder); ok { return rec }
    return &StatusRecorder{ResponseWriter: w}
}

func metricsMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        rec := NewStatusRecorder(w)
        next.ServeHTTP(rec, r)
        // mux patterns keep label cardinality bounded
        path := r.Pattern
        if i := strings.IndexByte(path, ' '); i >= 0 { path = path[i+1:] }
        if path == "" { path = "unmatched" }
        status := strconv.Itoa(rec.Status())
        metrics.HTTPRequests.WithLabelValues(r.Method, path, status).Inc()
        metrics.HTTPDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
    })
}

func corsMiddleware(allow string, next http.Handler) http.Handler {
    if allow == "" { return next }
    origins := map[string]bool{}
    for _, o := range strings.Split(allow, ",") { origins[strings.TrimSpace(o)] = true }
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        origin := r.Header.Get("Origin")
        if origin != "" && (origins["*"] || origins[origin]) {
            w.Header().Set("Access-Control-Allow-Origin", origin)
            w.Header().Set("Vary", "Origin")
            w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Tenant-Id, X-Role")
            w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
            if r.Method == http.MethodOptions {
                w.WriteHeader(http.StatusNoContent)
                return
            }
        }
        next.ServeHTTP(w, r)
    })
}
