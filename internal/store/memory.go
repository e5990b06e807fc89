package store

import (
    "context"
    "sync"
    "time"

    "github.com/google/uuid"
    "dronenav/internal/model"
)

// Memory is a simple in-memory store used when no database is configured.
type Memory struct {
    mu     sync.Mutex
    plans  map[string]model.PlanRun             // id -> run
    byTen  map[string][]string                  // tenant -> plan ids, insertion order
    planMx map[string][]model.PlanMetrics       // tenant -> metrics
    subs   map[string][]model.Subscription      // tenant -> subscriptions
    // Webhooks queue state
    deliveries map[string]*memDelivery          // id -> delivery state
    deliveryIDs []string                        // insertion order
    deliveriesByTenant map[string][]string      // tenant -> delivery ids
    dedup  map[string]string                    // tenant|event|url|key -> delivery id
}

func NewMemory() *Memory {
    return &Memory{
        plans: map[string]model.PlanRun{},
        byTen: map[string][]string{},
        planMx: map[string][]model.PlanMetrics{},
        subs: map[string][]model.Subscription{},
        deliveries: map[string]*memDelivery{},
        deliveriesByTenant: map[string][]string{},
        dedup: map[string]string{},
    }
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
    WebhookDelivery
    NextAttemptAt time.Time
    LastError     string
    ResponseCode  int
    LatencyMs     int
    DeliveredAt   *time.Time
}

func (m *Memory) PutPlan(ctx context.Context, run model.PlanRun) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.plans[run.ID]; !ok {
        m.byTen[run.TenantID] = append(m.byTen[run.TenantID], run.ID)
    }
    m.plans[run.ID] = run
    return nil
}

func (m *Memory) GetPlan(ctx context.Context, tenantID, id string) (model.PlanRun, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    r, ok := m.plans[id]
    if !ok || r.TenantID != tenantID { return model.PlanRun{}, ErrNotFound }
    return r, nil
}

func (m *Memory) ListPlans(ctx context.Context, tenantID, cursor string, limit int) ([]model.PlanSummary, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := m.byTen[tenantID]
    start := 0
    if cursor != "" {
        for i, id := range ids {
            if id == cursor { start = i + 1; break }
        }
    }
    limit = clampLimit(limit)
    out := []model.PlanSummary{}
    var next string
    for i := start; i < len(ids) && len(out) < limit; i++ {
        out = append(out, m.plans[ids[i]].Summary())
        next = ids[i]
    }
    if len(out) < limit || start+len(out) == len(ids) { next = "" }
    return out, next, nil
}

func (m *Memory) SavePlanMetrics(ctx context.Context, tenantID string, pm model.PlanMetrics) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if pm.RecordedAt == "" { pm.RecordedAt = time.Now().UTC().Format(time.RFC3339) }
    m.planMx[tenantID] = append(m.planMx[tenantID], pm)
    return nil
}

func (m *Memory) ListPlanMetrics(ctx context.Context, tenantID, planID string) ([]model.PlanMetrics, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.PlanMetrics{}
    for _, it := range m.planMx[tenantID] {
        if planID == "" || it.PlanID == planID { out = append(out, it) }
    }
    return out, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
    m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
    return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.Subscription{}
    for _, s := range m.subs[tenantID] {
        if subscribed(s, eventType) { out = append(out, s) }
    }
    return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    subs := m.subs[tenantID]
    start := 0
    if cursor != "" {
        for i, s := range subs {
            if s.ID == cursor { start = i + 1; break }
        }
    }
    limit = clampLimit(limit)
    end := start + limit
    if end > len(subs) { end = len(subs) }
    out := append([]model.Subscription{}, subs[start:end]...)
    next := ""
    if end < len(subs) { next = subs[end-1].ID }
    return out, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    subs := m.subs[tenantID]
    for i, s := range subs {
        if s.ID == id {
            m.subs[tenantID] = append(subs[:i:i], subs[i+1:]...)
            return nil
        }
    }
    return ErrNotFound
}

func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    key := tenantID + "|" + eventType + "|" + url + "|" + computeDedupKey(payload)
    if id, ok := m.dedup[key]; ok { return id, nil }
    id := uuid.New().String()
    d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: DeliveryPending, Attempts: 0}, NextAttemptAt: time.Now()}
    m.deliveries[id] = d
    m.deliveryIDs = append(m.deliveryIDs, id)
    m.deliveriesByTenant[tenantID] = append(m.deliveriesByTenant[tenantID], id)
    m.dedup[key] = id
    return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    now := time.Now()
    out := []WebhookDelivery{}
    for _, id := range m.deliveryIDs {
        d := m.deliveries[id]
        if (d.Status == DeliveryPending || d.Status == DeliveryRetry) && !d.NextAttemptAt.After(now) {
            out = append(out, d.WebhookDelivery)
            if limit > 0 && len(out) >= limit { break }
        }
    }
    return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    d.Attempts++
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    if success {
        d.Status = DeliveryDelivered
        now := time.Now()
        d.DeliveredAt = &now
    } else {
        d.Status = DeliveryRetry
        d.LastError = lastError
        if nextAttemptAt != nil { d.NextAttemptAt = *nextAttemptAt } else { d.NextAttemptAt = time.Now().Add(1 * time.Minute) }
    }
    return nil
}

func (m *Memory) DeferWebhookDelivery(ctx context.Context, id string, nextAttemptAt time.Time, lastError string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    d.NextAttemptAt = nextAttemptAt
    d.LastError = lastError
    return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    d.Attempts++
    d.Status = DeliveryFailed
    d.LastError = lastError
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    limit = clampLimit(limit)
    ids := m.deliveriesByTenant[tenantID]
    start := 0
    if cursor != "" {
        for i, id := range ids {
            if id == cursor { start = i + 1; break }
        }
    }
    out := []map[string]any{}
    var last string
    for _, id := range ids[start:] {
        d := m.deliveries[id]
        if status != "" && d.Status != status { continue }
        out = append(out, deliveryItem(d.ID, d.EventType, d.Status, d.Attempts, d.URL, d.LastError, d.ResponseCode, d.NextAttemptAt, d.DeliveredAt))
        last = id
        if len(out) == limit { break }
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil || d.TenantID != tenantID { return ErrNotFound }
    d.Status = DeliveryPending
    d.NextAttemptAt = time.Now()
    return nil
}

func subscribed(s model.Subscription, eventType string) bool {
    for _, e := range s.Events {
        if e == eventType || e == "*" { return true }
    }
    return false
}

func deliveryItem(id, eventType, status string, attempts int, url, lastError string, code int, nextAt time.Time, deliveredAt *time.Time) map[string]any {
    item := map[string]any{"id": id, "eventType": eventType, "status": status, "attempts": attempts, "url": url}
    if !nextAt.IsZero() && (status == DeliveryPending || status == DeliveryRetry) { item["nextAttemptAt"] = nextAt.UTC() }
    if deliveredAt != nil { item["deliveredAt"] = deliveredAt.UTC() }
    if lastError != "" { item["lastError"] = lastError }
    if code != 0 { item["responseCode"] = code }
    return item
}
