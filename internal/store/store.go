package store

import (
    "context"
    "errors"
    "time"

    "dronenav/internal/model"
)

// Store is the persistence interface used by the API server and the CLI.
type Store interface {
    // Plan runs
    PutPlan(ctx context.Context, run model.PlanRun) error
    GetPlan(ctx context.Context, tenantID, id string) (model.PlanRun, error)
    ListPlans(ctx context.Context, tenantID, cursor string, limit int) ([]model.PlanSummary, string, error)

    // Metrics
    SavePlanMetrics(ctx context.Context, tenantID string, m model.PlanMetrics) error
    ListPlanMetrics(ctx context.Context, tenantID, planID string) ([]model.PlanMetrics, error)

    // Subscriptions
    CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
    GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
    ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
    DeleteSubscription(ctx context.Context, tenantID, id string) error

    // Webhook deliveries
    EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
    FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
    MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
    // DeferWebhookDelivery moves the next attempt without counting one.
    DeferWebhookDelivery(ctx context.Context, id string, nextAttemptAt time.Time, lastError string) error
    FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
    ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error)
    RetryWebhookDelivery(ctx context.Context, tenantID, id string) error
}

// Pinger is implemented by stores backed by a remote database.
type Pinger interface {
    Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")

func clampLimit(limit int) int {
    if limit <= 0 || limit > 500 { return 100 }
    return limit
}
