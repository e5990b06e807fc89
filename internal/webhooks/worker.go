package webhooks

import (
    "bytes"
    "context"
    "errors"
    "fmt"
    "net/http"
    "strconv"
    "time"

    "github.com/rs/zerolog/log"
    "github.com/sony/gobreaker"

    "dronenav/internal/metrics"
    "dronenav/internal/store"
)

type Worker struct {
    Store       store.Store
    HTTP        *http.Client
    MaxAttempts int
    Interval    time.Duration
    breakers    *breakers
}

func NewWorker(s store.Store, maxAttempts int) *Worker {
    if maxAttempts <= 0 { maxAttempts = 10 }
    return &Worker{
        Store:       s,
        HTTP:        &http.Client{Timeout: 5 * time.Second},
        MaxAttempts: maxAttempts,
        Interval:    time.Second,
        breakers:    newBreakers(5, 30*time.Second),
    }
}

// Run polls for due deliveries until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
    interval := w.Interval
    if interval <= 0 { interval = time.Second }
    ticker := time.NewTicker(interval)
    defer ticker.Stop()
    log.Info().Int("maxAttempts", w.MaxAttempts).Msg("webhook worker started")
    for {
        select {
        case <-ctx.Done():
            return nil
        case <-ticker.C:
            w.processOnce(ctx)
        }
    }
}

// errStatus marks a non-2xx response so the breaker counts it as a failure.
type errStatus int

func (e errStatus) Error() string { return "unexpected status " + strconv.Itoa(int(e)) }

func (w *Worker) processOnce(parent context.Context) {
    if w.breakers == nil { w.breakers = newBreakers(5, 30*time.Second) }
    ctx, cancel := context.WithTimeout(parent, 10*time.Second)
    defer cancel()
    items, err := w.Store.FetchDueWebhookDeliveries(ctx, 50)
    if err != nil {
        log.Error().Err(err).Msg("fetch due webhook deliveries")
        return
    }
    for _, it := range items {
        start := time.Now()
        code, err := w.deliver(ctx, it)
        latency := int(time.Since(start).Milliseconds())
        success := err == nil
        status := "delivered"
        lastErr := ""
        if !success {
            status = "retry"
            lastErr = err.Error()
        }
        switch {
        case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
            // nothing was sent; wait for the breaker to half-open without spending an attempt
            status = "deferred"
            if derr := w.Store.DeferWebhookDelivery(ctx, it.ID, time.Now().Add(30*time.Second), lastErr); derr != nil {
                log.Error().Err(derr).Str("delivery", it.ID).Msg("defer webhook delivery")
            }
        case !success && (it.Attempts+1 >= w.MaxAttempts || permanent(code)):
            status = "failed"
            if ferr := w.Store.FailWebhookDelivery(ctx, it.ID, lastErr, code, latency); ferr != nil {
                log.Error().Err(ferr).Str("delivery", it.ID).Msg("fail webhook delivery")
            }
        default:
            next := time.Now().Add(nextBackoff(it.Attempts))
            if merr := w.Store.MarkWebhookDelivery(ctx, it.ID, success, &next, lastErr, code, latency); merr != nil {
                log.Error().Err(merr).Str("delivery", it.ID).Msg("mark webhook delivery")
            }
        }
        metrics.WebhookDeliveries.WithLabelValues(it.EventType, status).Inc()
        metrics.WebhookLatency.WithLabelValues(it.EventType, status).Observe(float64(latency))
        ev := log.Debug()
        if !success { ev = log.Warn().Str("error", lastErr) }
        ev.Str("delivery", it.ID).Str("event", it.EventType).Int("code", code).Str("status", status).Int("latencyMs", latency).Msg("webhook delivery")
    }
}

func (w *Worker) deliver(ctx context.Context, it store.WebhookDelivery) (int, error) {
    code := 0
    _, err := w.breakers.get(it.URL).Execute(func() (any, error) {
        req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
        if err != nil { return nil, err }
        req.Header.Set("Content-Type", "application/json")
        req.Header.Set("X-Event-Type", it.EventType)
        req.Header.Set("X-Delivery-Id", it.ID)
        if it.Secret != "" {
            ts := time.Now().Unix()
            req.Header.Set("X-Signature-Timestamp", strconv.FormatInt(ts, 10))
            req.Header.Set("X-Signature", SignHMAC(it.Secret, ts, it.Payload))
        }
        resp, err := w.HTTP.Do(req)
        if err != nil { return nil, err }
        _ = resp.Body.Close()
        code = resp.StatusCode
        if code < 200 || code >= 300 { return nil, errStatus(code) }
        return nil, nil
    })
    if err != nil && code == 0 && !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
        return 0, fmt.Errorf("post %s: %w", hostOf(it.URL), err)
    }
    return code, err
}

// permanent reports client errors that retrying cannot fix.
func permanent(code int) bool {
    return code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests
}

func nextBackoff(attempts int) time.Duration {
    if attempts < 0 { attempts = 0 }
    if attempts > 10 { attempts = 10 }
    base := time.Second * time.Duration(1<<attempts)
    if base > time.Hour { base = time.Hour }
    return base
}
