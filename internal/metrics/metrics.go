package metrics

import (
    "sync"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the service
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // PlannerOrders counts order attempts by outcome (accepted/rejected) and rejection reason
    PlannerOrders = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "planner_orders_total", Help: "Order attempts by outcome and reason."},
        []string{"outcome", "reason"},
    )
    // PlannerActions counts emitted drone commands by operation
    PlannerActions = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "planner_actions_total", Help: "Drone commands emitted by operation."},
        []string{"op"},
    )
    // PlanRuns counts finished plan runs by status
    PlanRuns = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "plan_runs_total", Help: "Plan runs by final status."},
        []string{"status"},
    )
    // PlanRunDuration records wall time of whole plan runs in seconds
    PlanRunDuration = prometheus.NewHistogram(
        prometheus.HistogramOpts{Name: "plan_run_duration_seconds", Help: "Plan run duration in seconds.", Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30}},
    )

    // WebhookDeliveries counts webhook delivery outcomes by event type and status
    WebhookDeliveries = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
        []string{"event_type", "status"},
    )
    // WebhookLatency tracks webhook delivery latencies in milliseconds
    WebhookLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
        []string{"event_type", "status"},
    )
)

// RegisterDefault registers all collectors on Registry. Safe to call more than once.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(PlannerOrders)
        Registry.MustRegister(PlannerActions)
        Registry.MustRegister(PlanRuns)
        Registry.MustRegister(PlanRunDuration)
        Registry.MustRegister(WebhookDeliveries)
        Registry.MustRegister(WebhookLatency)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
