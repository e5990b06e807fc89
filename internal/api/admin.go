package api

import (
    "context"
    "encoding/json"
    "net/http"
    "net/url"
    "time"

    "dronenav/internal/model"
    "dronenav/internal/store"
)

// CreateSubscriptionHandler handles POST /v1/subscriptions
func (s *Server) CreateSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
    p, ok := s.requireRole(w, r)
    if !ok { return }
    var req model.SubscriptionRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if u, err := url.Parse(req.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
        writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url must be an absolute http(s) URL", r.URL.Path)
        return
    }
    if len(req.Events) == 0 {
        writeProblem(w, http.StatusBadRequest, "Invalid subscription", "events must not be empty", r.URL.Path)
        return
    }
    req.TenantID = p.Tenant
    sub, err := s.Store.CreateSubscription(r.Context(), req)
    if err != nil { writeError(w, r, "Create subscription failed", err); return }
    writeJSON(w, http.StatusCreated, sub)
}

// ListSubscriptionsHandler handles GET /v1/subscriptions
func (s *Server) ListSubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
    p, ok := s.requireRole(w, r)
    if !ok { return }
    items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, r.URL.Query().Get("cursor"), queryLimit(r))
    if err != nil { writeError(w, r, "List subscriptions failed", err); return }
    for i := range items { items[i].Secret = "" }
    writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// DeleteSubscriptionHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) DeleteSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
    p, ok := s.requireRole(w, r)
    if !ok { return }
    if err := s.Store.DeleteSubscription(r.Context(), p.Tenant, r.PathValue("id")); err != nil {
        writeError(w, r, "Delete subscription failed", err)
        return
    }
    w.WriteHeader(http.StatusNoContent)
}

// Admin: webhook deliveries list and retry
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    p, ok := s.requireRole(w, r)
    if !ok { return }
    q := r.URL.Query()
    items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, q.Get("status"), q.Get("cursor"), queryLimit(r))
    if err != nil { writeError(w, r, "List deliveries failed", err); return }
    writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
    p, ok := s.requireRole(w, r)
    if !ok { return }
    if err := s.Store.RetryWebhookDelivery(r.Context(), p.Tenant, r.PathValue("id")); err != nil {
        writeError(w, r, "Retry delivery failed", err)
        return
    }
    writeJSON(w, http.StatusAccepted, map[string]int{"accepted": 1})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler pings the database and Redis when they are configured.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
    defer cancel()
    if pg, ok := s.Store.(store.Pinger); ok {
        if err := pg.Ping(ctx); err != nil { writeProblem(w, http.StatusServiceUnavailable, "Not Ready", "store: "+err.Error(), r.URL.Path); return }
    }
    if rb, ok := s.Broker.(interface{ Ping(context.Context) error }); ok {
        if err := rb.Ping(ctx); err != nil { writeProblem(w, http.StatusServiceUnavailable, "Not Ready", "redis: "+err.Error(), r.URL.Path); return }
    }
    writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
