package store

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "fmt"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"
    _ "modernc.org/sqlite"

    "dronenav/internal/model"
)

// SQL is the database/sql backed store. PostgreSQL goes through pgx,
// SQLite through modernc.org/sqlite; the schema is created on open.
type SQL struct {
    db      *sql.DB
    dialect Dialect
}

// OpenPostgres connects to dsn and migrates the schema.
func OpenPostgres(ctx context.Context, dsn string) (*SQL, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, fmt.Errorf("open postgres: %w", err)
    }
    return open(ctx, db, postgresDialect{})
}

// OpenSQLite opens (creating if needed) the database file at path.
func OpenSQLite(ctx context.Context, path string) (*SQL, error) {
    dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
    db, err := sql.Open("sqlite", dsn)
    if err != nil {
        return nil, fmt.Errorf("open sqlite: %w", err)
    }
    db.SetMaxOpenConns(1)
    return open(ctx, db, sqliteDialect{})
}

func open(ctx context.Context, db *sql.DB, d Dialect) (*SQL, error) {
    s := &SQL{db: db, dialect: d}
    if err := db.PingContext(ctx); err != nil {
        db.Close()
        return nil, fmt.Errorf("ping %s: %w", d.Name(), err)
    }
    if err := s.migrate(ctx); err != nil {
        db.Close()
        return nil, fmt.Errorf("migrate %s: %w", d.Name(), err)
    }
    return s, nil
}

func (s *SQL) Dialect() Dialect { return s.dialect }

func (s *SQL) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQL) Close() error { return s.db.Close() }

func (s *SQL) q(query string) string { return rebind(s.dialect, query) }

func (s *SQL) migrate(ctx context.Context) error {
    d := s.dialect
    stmts := []string{
        fmt.Sprintf(`CREATE TABLE IF NOT EXISTS plans (
            id TEXT PRIMARY KEY,
            tenant_id TEXT NOT NULL,
            name TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL,
            seed BIGINT NOT NULL DEFAULT 0,
            shuffled %s NOT NULL,
            created_at TEXT NOT NULL,
            completed_at TEXT NOT NULL DEFAULT '',
            error TEXT NOT NULL DEFAULT '',
            stats %s,
            orders %s,
            actions %s
        )`, d.BoolType(), d.JSONType(), d.JSONType(), d.JSONType()),
        `CREATE INDEX IF NOT EXISTS idx_plans_tenant ON plans (tenant_id, id)`,
        `CREATE INDEX IF NOT EXISTS idx_plans_tenant_created ON plans (tenant_id, created_at, id)`,
        fmt.Sprintf(`CREATE TABLE IF NOT EXISTS plan_metrics (
            id %s,
            tenant_id TEXT NOT NULL,
            plan_id TEXT NOT NULL,
            ordering TEXT NOT NULL,
            seed BIGINT NOT NULL DEFAULT 0,
            duration_ms BIGINT NOT NULL DEFAULT 0,
            stats %s,
            recorded_at %s NOT NULL DEFAULT %s
        )`, d.AutoIncrementPK(), d.JSONType(), d.TimestampType(), d.Now()),
        `CREATE TABLE IF NOT EXISTS subscriptions (
            id TEXT PRIMARY KEY,
            tenant_id TEXT NOT NULL,
            url TEXT NOT NULL,
            events TEXT NOT NULL,
            secret TEXT NOT NULL DEFAULT ''
        )`,
        fmt.Sprintf(`CREATE TABLE IF NOT EXISTS webhook_deliveries (
            id TEXT PRIMARY KEY,
            tenant_id TEXT NOT NULL,
            subscription_id TEXT NOT NULL DEFAULT '',
            event_type TEXT NOT NULL,
            url TEXT NOT NULL,
            secret TEXT NOT NULL DEFAULT '',
            payload TEXT NOT NULL,
            status TEXT NOT NULL,
            attempts INTEGER NOT NULL DEFAULT 0,
            next_attempt_ms BIGINT NOT NULL,
            last_error TEXT NOT NULL DEFAULT '',
            response_code INTEGER NOT NULL DEFAULT 0,
            latency_ms INTEGER NOT NULL DEFAULT 0,
            dedup_key TEXT NOT NULL,
            created_at %s NOT NULL DEFAULT %s,
            delivered_at %s,
            UNIQUE (tenant_id, event_type, url, dedup_key)
        )`, d.TimestampType(), d.Now(), d.TimestampType()),
        `CREATE INDEX IF NOT EXISTS idx_webhook_due ON webhook_deliveries (status, next_attempt_ms)`,
    }
    for _, st := range stmts {
        if _, err := s.db.ExecContext(ctx, st); err != nil {
            return err
        }
    }
    return nil
}

func marshalJSON(v any) (string, error) {
    b, err := json.Marshal(v)
    if err != nil {
        return "", err
    }
    return string(b), nil
}

func (s *SQL) PutPlan(ctx context.Context, run model.PlanRun) error {
    stats, err := marshalJSON(run.Stats)
    if err != nil { return err }
    orders, err := marshalJSON(run.Orders)
    if err != nil { return err }
    actions, err := marshalJSON(run.Actions)
    if err != nil { return err }
    _, err = s.db.ExecContext(ctx, s.q(`INSERT INTO plans (id, tenant_id, name, status, seed, shuffled, created_at, completed_at, error, stats, orders, actions)
        VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
        ON CONFLICT (id) DO UPDATE SET status=excluded.status, completed_at=excluded.completed_at, error=excluded.error,
          stats=excluded.stats, orders=excluded.orders, actions=excluded.actions`),
        run.ID, run.TenantID, run.Name, run.Status, run.Seed, run.Shuffled, run.CreatedAt, run.CompletedAt, run.Error, stats, orders, actions)
    return err
}

func (s *SQL) GetPlan(ctx context.Context, tenantID, id string) (model.PlanRun, error) {
    var r model.PlanRun
    var stats, orders, actions []byte
    err := s.db.QueryRowContext(ctx, s.q(`SELECT id, tenant_id, name, status, seed, shuffled, created_at, completed_at, error, stats, orders, actions
        FROM plans WHERE tenant_id=? AND id=?`), tenantID, id).
        Scan(&r.ID, &r.TenantID, &r.Name, &r.Status, &r.Seed, &r.Shuffled, &r.CreatedAt, &r.CompletedAt, &r.Error, &stats, &orders, &actions)
    if errors.Is(err, sql.ErrNoRows) { return model.PlanRun{}, ErrNotFound }
    if err != nil { return model.PlanRun{}, err }
    for _, f := range []struct{ b []byte; v any }{{stats, &r.Stats}, {orders, &r.Orders}, {actions, &r.Actions}} {
        if len(f.b) == 0 { continue }
        if err := json.Unmarshal(f.b, f.v); err != nil { return model.PlanRun{}, fmt.Errorf("decode plan %s: %w", id, err) }
    }
    return r, nil
}

func (s *SQL) ListPlans(ctx context.Context, tenantID, cursor string, limit int) ([]model.PlanSummary, string, error) {
    limit = clampLimit(limit)
    // keyset on (created_at, id) so pages follow creation order
    after := ""
    if cursor != "" {
        err := s.db.QueryRowContext(ctx, s.q(`SELECT created_at FROM plans WHERE tenant_id=? AND id=?`), tenantID, cursor).Scan(&after)
        if errors.Is(err, sql.ErrNoRows) { cursor = "" } else if err != nil { return nil, "", err }
    }
    rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, name, status, created_at, stats FROM plans
        WHERE tenant_id=? AND (created_at > ? OR (created_at = ? AND id > ?)) ORDER BY created_at, id LIMIT ?`),
        tenantID, after, after, cursor, limit)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.PlanSummary{}
    var last string
    for rows.Next() {
        var p model.PlanSummary
        var stats []byte
        if err := rows.Scan(&p.ID, &p.Name, &p.Status, &p.CreatedAt, &stats); err != nil { return nil, "", err }
        if len(stats) > 0 {
            if err := json.Unmarshal(stats, &p.Stats); err != nil { return nil, "", fmt.Errorf("decode plan %s: %w", p.ID, err) }
        }
        out = append(out, p)
        last = p.ID
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (s *SQL) SavePlanMetrics(ctx context.Context, tenantID string, m model.PlanMetrics) error {
    stats, err := marshalJSON(m.Stats)
    if err != nil { return err }
    _, err = s.db.ExecContext(ctx, s.q(`INSERT INTO plan_metrics (tenant_id, plan_id, ordering, seed, duration_ms, stats) VALUES (?,?,?,?,?,?)`),
        tenantID, m.PlanID, m.Ordering, m.Seed, m.DurationMs, stats)
    return err
}

func (s *SQL) ListPlanMetrics(ctx context.Context, tenantID, planID string) ([]model.PlanMetrics, error) {
    q := `SELECT plan_id, ordering, seed, duration_ms, stats, recorded_at FROM plan_metrics WHERE tenant_id=?`
    args := []any{tenantID}
    if planID != "" { q += ` AND plan_id=?`; args = append(args, planID) }
    rows, err := s.db.QueryContext(ctx, s.q(q+` ORDER BY id`), args...)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.PlanMetrics{}
    for rows.Next() {
        var m model.PlanMetrics
        var stats []byte
        var recorded any
        if err := rows.Scan(&m.PlanID, &m.Ordering, &m.Seed, &m.DurationMs, &stats, &recorded); err != nil { return nil, err }
        if len(stats) > 0 {
            if err := json.Unmarshal(stats, &m.Stats); err != nil { return nil, fmt.Errorf("decode metrics for plan %s: %w", m.PlanID, err) }
        }
        if t := parseTime(recorded); !t.IsZero() { m.RecordedAt = t.UTC().Format(time.RFC3339) }
        out = append(out, m)
    }
    return out, rows.Err()
}

func (s *SQL) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    id := uuid.New().String()
    ev, _ := json.Marshal(req.Events)
    _, err := s.db.ExecContext(ctx, s.q(`INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES (?,?,?,?,?)`), id, req.TenantID, req.URL, string(ev), req.Secret)
    if err != nil { return model.Subscription{}, err }
    return model.Subscription{ID: id, TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (s *SQL) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
    subs, err := s.scanSubscriptions(ctx, `SELECT id, url, secret, events FROM subscriptions WHERE tenant_id=? ORDER BY id`, tenantID)
    if err != nil { return nil, err }
    out := []model.Subscription{}
    for _, sub := range subs {
        sub.TenantID = tenantID
        if subscribed(sub, eventType) { out = append(out, sub) }
    }
    return out, nil
}

func (s *SQL) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
    limit = clampLimit(limit)
    out, err := s.scanSubscriptions(ctx, `SELECT id, url, secret, events FROM subscriptions WHERE tenant_id=? AND id > ? ORDER BY id LIMIT ?`, tenantID, cursor, limit)
    if err != nil { return nil, "", err }
    for i := range out { out[i].TenantID = tenantID }
    next := ""
    if len(out) == limit { next = out[len(out)-1].ID }
    return out, next, nil
}

func (s *SQL) scanSubscriptions(ctx context.Context, query string, args ...any) ([]model.Subscription, error) {
    rows, err := s.db.QueryContext(ctx, s.q(query), args...)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        var sub model.Subscription
        var ev []byte
        if err := rows.Scan(&sub.ID, &sub.URL, &sub.Secret, &ev); err != nil { return nil, err }
        if err := json.Unmarshal(ev, &sub.Events); err != nil { return nil, fmt.Errorf("decode subscription %s: %w", sub.ID, err) }
        out = append(out, sub)
    }
    return out, rows.Err()
}

func (s *SQL) DeleteSubscription(ctx context.Context, tenantID, id string) error {
    res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM subscriptions WHERE tenant_id=? AND id=?`), tenantID, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

// Webhook deliveries
func (s *SQL) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    id := uuid.New().String()
    dk := computeDedupKey(payload)
    _, err := s.db.ExecContext(ctx, s.q(`INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_ms, dedup_key)
        VALUES (?,?,?,?,?,?,?,?,0,?,?)
        ON CONFLICT (tenant_id, event_type, url, dedup_key) DO NOTHING`),
        id, tenantID, subscriptionID, eventType, url, secret, string(payload), DeliveryPending, time.Now().UnixMilli(), dk)
    if err != nil { return "", err }
    // a duplicate keeps the delivery that is already queued
    var existing string
    err = s.db.QueryRowContext(ctx, s.q(`SELECT id FROM webhook_deliveries WHERE tenant_id=? AND event_type=? AND url=? AND dedup_key=?`),
        tenantID, eventType, url, dk).Scan(&existing)
    if err != nil { return "", err }
    return existing, nil
}

func (s *SQL) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    if limit <= 0 { limit = 100 }
    rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts
        FROM webhook_deliveries WHERE status IN (?,?) AND next_attempt_ms <= ? ORDER BY next_attempt_ms ASC LIMIT ?`),
        DeliveryPending, DeliveryRetry, time.Now().UnixMilli(), limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        var d WebhookDelivery
        var payload []byte
        if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &payload, &d.Status, &d.Attempts); err != nil { return nil, err }
        d.Payload = payload
        out = append(out, d)
    }
    return out, rows.Err()
}

func (s *SQL) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    if !success {
        if nextAttemptAt == nil { t := time.Now().Add(1 * time.Minute); nextAttemptAt = &t }
        _, err := s.db.ExecContext(ctx, s.q(`UPDATE webhook_deliveries SET attempts=attempts+1, status=?, last_error=?, next_attempt_ms=?, response_code=?, latency_ms=? WHERE id=?`),
            DeliveryRetry, lastError, nextAttemptAt.UnixMilli(), responseCode, latencyMs, id)
        return err
    }
    _, err := s.db.ExecContext(ctx, s.q(`UPDATE webhook_deliveries SET attempts=attempts+1, status=?, delivered_at=`+s.dialect.Now()+`, response_code=?, latency_ms=? WHERE id=?`),
        DeliveryDelivered, responseCode, latencyMs, id)
    return err
}

func (s *SQL) DeferWebhookDelivery(ctx context.Context, id string, nextAttemptAt time.Time, lastError string) error {
    res, err := s.db.ExecContext(ctx, s.q(`UPDATE webhook_deliveries SET next_attempt_ms=?, last_error=? WHERE id=?`),
        nextAttemptAt.UnixMilli(), lastError, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func (s *SQL) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    _, err := s.db.ExecContext(ctx, s.q(`UPDATE webhook_deliveries SET attempts=attempts+1, status=?, last_error=?, response_code=?, latency_ms=? WHERE id=?`),
        DeliveryFailed, lastError, responseCode, latencyMs, id)
    return err
}

func (s *SQL) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
    limit = clampLimit(limit)
    q := `SELECT id, event_type, status, attempts, url, last_error, response_code, next_attempt_ms, delivered_at FROM webhook_deliveries WHERE tenant_id=? AND id > ?`
    args := []any{tenantID, cursor}
    if status != "" { q += ` AND status=?`; args = append(args, status) }
    q += ` ORDER BY id LIMIT ?`
    args = append(args, limit)
    rows, err := s.db.QueryContext(ctx, s.q(q), args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []map[string]any{}
    var last string
    for rows.Next() {
        var id, typ, st, url, lastErr string
        var attempts, code int
        var nextMs int64
        var delivered any
        if err := rows.Scan(&id, &typ, &st, &attempts, &url, &lastErr, &code, &nextMs, &delivered); err != nil { return nil, "", err }
        out = append(out, deliveryItem(id, typ, st, attempts, url, lastErr, code, time.UnixMilli(nextMs), parseTimePtr(delivered)))
        last = id
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (s *SQL) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
    res, err := s.db.ExecContext(ctx, s.q(`UPDATE webhook_deliveries SET status=?, next_attempt_ms=? WHERE tenant_id=? AND id=?`), DeliveryPending, time.Now().UnixMilli(), tenantID, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

var (
    _ Store  = (*SQL)(nil)
    _ Pinger = (*SQL)(nil)
    _ Store  = (*Memory)(nil)
)
