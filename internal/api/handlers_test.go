package api

import (
    "bufio"
    "bytes"
    "context"
    "encoding/json"
    "io"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/gorilla/websocket"

    "dronenav/internal/auth"
    "dronenav/internal/metrics"
    "dronenav/internal/model"
    "dronenav/internal/store"
)

func newTestServer(t *testing.T) *Server {
    t.Helper()
    v, err := auth.NewVerifier("dev", "")
    if err != nil { t.Fatalf("NewVerifier: %v", err) }
    s := New(store.NewMemory(), NewBroker(), v)
    t.Cleanup(func() { _ = s.Shutdown() })
    return s
}

func sampleRequest() model.PlanRequest {
    return model.PlanRequest{Name: "sample", Problem: model.ProblemIn{
        Rows: 10, Cols: 10, Drones: 3, MaxTurns: 50, MaxPayload: 500,
        ProductWeights: []int{100, 5, 450},
        Warehouses: []model.WarehouseIn{
            {Location: model.Point{X: 0, Y: 0}, Stock: []int{5, 1}},
            {Location: model.Point{X: 5, Y: 5}, Stock: []int{0, 10, 2}},
        },
        Orders: []model.OrderIn{
            {Location: model.Point{X: 1, Y: 1}, Products: []int{0, 0}},
            {Location: model.Point{X: 9, Y: 9}, Products: []int{2, 2, 2}},
            {Location: model.Point{X: 5, Y: 6}, Products: []int{2}},
        },
    }}
}

// Same problem in Hash Code input format.
const sampleText = `10 10 3 50 500
3
100 5 450
2
0 0
5 1 0
5 5
0 10 2
3
1 1
2
0 0
9 9
3
2 2 2
5 6
1
2
`

func do(t *testing.T, h http.Handler, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
    t.Helper()
    var rd io.Reader
    switch b := body.(type) {
    case nil:
    case string:
        rd = strings.NewReader(b)
    default:
        buf, err := json.Marshal(b)
        if err != nil { t.Fatalf("marshal: %v", err) }
        rd = bytes.NewReader(buf)
    }
    req := httptest.NewRequest(method, path, rd)
    if _, ok := body.(string); !ok && body != nil { req.Header.Set("Content-Type", "application/json") }
    for k, v := range hdr { req.Header.Set(k, v) }
    rr := httptest.NewRecorder()
    h.ServeHTTP(rr, req)
    return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
    t.Helper()
    var v T
    if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil { t.Fatalf("decode %q: %v", rr.Body.String(), err) }
    return v
}

func TestHealthReady(t *testing.T) {
    h := newTestServer(t).Routes()
    if rr := do(t, h, http.MethodGet, "/healthz", nil, nil); rr.Code != 200 { t.Fatalf("health: got %d", rr.Code) }
    if rr := do(t, h, http.MethodGet, "/readyz", nil, nil); rr.Code != 200 { t.Fatalf("ready: got %d", rr.Code) }
}

func TestCreatePlanSync(t *testing.T) {
    h := newTestServer(t).Routes()
    rr := do(t, h, http.MethodPost, "/v1/plans", sampleRequest(), nil)
    if rr.Code != http.StatusCreated { t.Fatalf("create: got %d %s", rr.Code, rr.Body.String()) }
    run := decode[model.PlanRun](t, rr)
    if run.Status != model.PlanCompleted { t.Fatalf("status %q", run.Status) }
    want := model.PlanStats{Orders: 3, Accepted: 2, Rejected: 1, Actions: 4, LastTurn: 11, Score: 174}
    if run.Stats != want { t.Fatalf("stats %+v, want %+v", run.Stats, want) }
    if rr.Header().Get("Location") != "/v1/plans/"+run.ID { t.Fatalf("location %q", rr.Header().Get("Location")) }

    rr = do(t, h, http.MethodGet, "/v1/plans/"+run.ID, nil, nil)
    if rr.Code != 200 { t.Fatalf("get: %d", rr.Code) }
    got := decode[model.PlanRun](t, rr)
    if len(got.Actions) != 4 || got.Orders[1].Reason != "stock_shortage" { t.Fatalf("stored run: %+v", got) }

    rr = do(t, h, http.MethodGet, "/v1/plans/"+run.ID+"/commands", nil, nil)
    if rr.Code != 200 { t.Fatalf("commands: %d", rr.Code) }
    if want := "4\n0 L 0 0 2\n0 D 0 0 2\n1 L 1 2 1\n1 D 2 2 1\n"; rr.Body.String() != want {
        t.Fatalf("commands:\n%s\nwant:\n%s", rr.Body.String(), want)
    }

    rr = do(t, h, http.MethodGet, "/v1/plans?limit=10", nil, nil)
    list := decode[struct{ Items []model.PlanSummary `json:"items"` }](t, rr)
    if len(list.Items) != 1 || list.Items[0].ID != run.ID { t.Fatalf("list: %+v", list) }

    rr = do(t, h, http.MethodGet, "/v1/plans/"+run.ID+"/metrics", nil, nil)
    pm := decode[struct{ Items []model.PlanMetrics `json:"items"` }](t, rr)
    if len(pm.Items) != 1 || pm.Items[0].Ordering != "input" || pm.Items[0].Stats.Score != 174 { t.Fatalf("metrics: %+v", pm) }
}

func TestCreatePlanFromText(t *testing.T) {
    h := newTestServer(t).Routes()
    rr := do(t, h, http.MethodPost, "/v1/plans?shuffle=true&seed=7&name=upload", sampleText, map[string]string{"Content-Type": "text/plain"})
    if rr.Code != http.StatusCreated { t.Fatalf("create: got %d %s", rr.Code, rr.Body.String()) }
    run := decode[model.PlanRun](t, rr)
    if !run.Shuffled || run.Seed != 7 || run.Name != "upload" { t.Fatalf("ordering not recorded: %+v", run) }
    // the shortage order is rejected whatever the ordering
    if run.Stats.Orders != 3 || run.Stats.Accepted != 2 { t.Fatalf("stats %+v", run.Stats) }
}

func TestCreatePlanRejects(t *testing.T) {
    h := newTestServer(t).Routes()
    if rr := do(t, h, http.MethodPost, "/v1/plans", "{", map[string]string{"Content-Type": "application/json"}); rr.Code != 400 {
        t.Fatalf("bad json: got %d", rr.Code)
    }
    req := sampleRequest()
    req.Problem.Drones = 0
    rr := do(t, h, http.MethodPost, "/v1/plans", req, nil)
    if rr.Code != 400 || rr.Header().Get("Content-Type") != "application/problem+json" { t.Fatalf("invalid problem: got %d %s", rr.Code, rr.Header().Get("Content-Type")) }
    if rr := do(t, h, http.MethodPost, "/v1/plans", "1 2 3", map[string]string{"Content-Type": "text/plain"}); rr.Code != 400 {
        t.Fatalf("truncated text: got %d", rr.Code)
    }
    if rr := do(t, h, http.MethodPost, "/v1/plans", sampleRequest(), map[string]string{"X-Role": "viewer"}); rr.Code != 403 {
        t.Fatalf("viewer: got %d", rr.Code)
    }
    if rr := do(t, h, http.MethodGet, "/v1/plans/nope", nil, nil); rr.Code != 404 {
        t.Fatalf("missing plan: got %d", rr.Code)
    }
}

func TestTenantIsolation(t *testing.T) {
    h := newTestServer(t).Routes()
    rr := do(t, h, http.MethodPost, "/v1/plans", sampleRequest(), map[string]string{"Authorization": "Bearer t_a:planner"})
    if rr.Code != 201 { t.Fatalf("create: %d", rr.Code) }
    run := decode[model.PlanRun](t, rr)
    if run.TenantID != "t_a" { t.Fatalf("tenant %q", run.TenantID) }
    if rr := do(t, h, http.MethodGet, "/v1/plans/"+run.ID, nil, map[string]string{"Authorization": "Bearer t_b:viewer"}); rr.Code != 404 {
        t.Fatalf("cross tenant read: got %d", rr.Code)
    }
    if rr := do(t, h, http.MethodGet, "/v1/plans/"+run.ID, nil, map[string]string{"Authorization": "Bearer t_a:viewer"}); rr.Code != 200 {
        t.Fatalf("own tenant read: got %d", rr.Code)
    }
}

func TestHMACModeRequiresToken(t *testing.T) {
    v, err := auth.NewVerifier("hmac", "s3cret")
    if err != nil { t.Fatal(err) }
    s := New(store.NewMemory(), NewBroker(), v)
    h := s.Routes()
    if rr := do(t, h, http.MethodGet, "/v1/plans", nil, map[string]string{"X-Tenant-Id": "t1"}); rr.Code != 401 {
        t.Fatalf("no token: got %d", rr.Code)
    }
    if rr := do(t, h, http.MethodGet, "/v1/plans", nil, map[string]string{"Authorization": "Bearer junk"}); rr.Code != 401 {
        t.Fatalf("bad token: got %d", rr.Code)
    }
    tok, err := v.Issue(map[string]any{"tenant": "t1", "role": "planner", "exp": time.Now().Add(time.Hour).Unix()})
    if err != nil { t.Fatal(err) }
    if rr := do(t, h, http.MethodGet, "/v1/plans", nil, map[string]string{"Authorization": "Bearer " + tok}); rr.Code != 200 {
        t.Fatalf("signed token: got %d", rr.Code)
    }
}

func TestCommandsConflictWhileRunning(t *testing.T) {
    s := newTestServer(t)
    _ = s.Store.PutPlan(context.Background(), model.PlanRun{ID: "p1", TenantID: "t_demo", Status: model.PlanRunning})
    if rr := do(t, s.Routes(), http.MethodGet, "/v1/plans/p1/commands", nil, nil); rr.Code != http.StatusConflict {
        t.Fatalf("got %d", rr.Code)
    }
}

func waitSubscribed(t *testing.T, b *Broker, planID string) {
    t.Helper()
    deadline := time.Now().Add(2 * time.Second)
    for time.Now().Before(deadline) {
        b.mu.Lock()
        n := len(b.subs[planID])
        b.mu.Unlock()
        if n > 0 { return }
        time.Sleep(5 * time.Millisecond)
    }
    t.Fatalf("no subscriber for %s", planID)
}

func TestPlanEventsSSE(t *testing.T) {
    s := newTestServer(t)
    b := s.Broker.(*Broker)
    _ = s.Store.PutPlan(context.Background(), model.PlanRun{ID: "p1", TenantID: "t_demo", Status: model.PlanRunning})
    ts := httptest.NewServer(s.Routes())
    defer ts.Close()

    resp, err := http.Get(ts.URL + "/v1/plans/p1/events")
    if err != nil { t.Fatal(err) }
    defer resp.Body.Close()
    if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" { t.Fatalf("content type %q", ct) }

    waitSubscribed(t, b, "p1")
    b.Publish("p1", SSEEvent{Type: EventOrderAccepted, Data: map[string]any{"orderId": 0}})
    b.Publish("p1", SSEEvent{Type: EventPlanCompleted, Data: map[string]any{"planId": "p1"}})

    var events []string
    sc := bufio.NewScanner(resp.Body)
    for sc.Scan() {
        if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok { events = append(events, name) }
    }
    // the server closes the stream after the terminal event
    if len(events) != 2 || events[0] != EventOrderAccepted || events[1] != EventPlanCompleted { t.Fatalf("events %v", events) }
}

func TestPlanEventsAfterCompletion(t *testing.T) {
    s := newTestServer(t)
    ts := httptest.NewServer(s.Routes())
    defer ts.Close()
    rr := do(t, s.Routes(), http.MethodPost, "/v1/plans", sampleRequest(), nil)
    run := decode[model.PlanRun](t, rr)

    resp, err := http.Get(ts.URL + "/v1/plans/" + run.ID + "/events")
    if err != nil { t.Fatal(err) }
    defer resp.Body.Close()
    body, _ := io.ReadAll(resp.Body)
    if !strings.Contains(string(body), "event: plan.completed") { t.Fatalf("body %q", body) }
}

func TestAsyncPlanWebSocket(t *testing.T) {
    s := newTestServer(t)
    ts := httptest.NewServer(s.Routes())
    defer ts.Close()

    rr := do(t, s.Routes(), http.MethodPost, "/v1/plans?async=true", sampleRequest(), nil)
    if rr.Code != http.StatusAccepted { t.Fatalf("async create: %d", rr.Code) }
    sum := decode[model.PlanSummary](t, rr)

    conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/v1/plans/"+sum.ID+"/ws", nil)
    if err != nil { t.Fatalf("dial: %v", err) }
    defer conn.Close()
    _ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
    var last SSEEvent
    for {
        var evt SSEEvent
        if err := conn.ReadJSON(&evt); err != nil {
            if !websocket.IsCloseError(err, websocket.CloseNormalClosure) { t.Fatalf("read: %v", err) }
            break
        }
        last = evt
    }
    if last.Type != EventPlanCompleted { t.Fatalf("last event %+v", last) }
    if last.Data["status"] != model.PlanCompleted { t.Fatalf("terminal data %+v", last.Data) }
}

func TestSubscriptionsAdmin(t *testing.T) {
    h := newTestServer(t).Routes()
    sub := model.SubscriptionRequest{URL: "https://hooks.example.com/x", Events: []string{"plan.completed"}, Secret: "k"}
    if rr := do(t, h, http.MethodPost, "/v1/subscriptions", sub, map[string]string{"X-Role": "planner"}); rr.Code != 403 {
        t.Fatalf("planner create: got %d", rr.Code)
    }
    bad := sub
    bad.URL = "ftp://x"
    if rr := do(t, h, http.MethodPost, "/v1/subscriptions", bad, nil); rr.Code != 400 {
        t.Fatalf("bad url: got %d", rr.Code)
    }
    rr := do(t, h, http.MethodPost, "/v1/subscriptions", sub, nil)
    if rr.Code != 201 { t.Fatalf("create: %d %s", rr.Code, rr.Body.String()) }
    created := decode[model.Subscription](t, rr)

    rr = do(t, h, http.MethodGet, "/v1/subscriptions", nil, nil)
    list := decode[struct{ Items []model.Subscription `json:"items"` }](t, rr)
    if len(list.Items) != 1 || list.Items[0].Secret != "" { t.Fatalf("list: %+v", list) }

    if rr := do(t, h, http.MethodDelete, "/v1/subscriptions/"+created.ID, nil, nil); rr.Code != 204 { t.Fatalf("delete: %d", rr.Code) }
    if rr := do(t, h, http.MethodDelete, "/v1/subscriptions/"+created.ID, nil, nil); rr.Code != 404 { t.Fatalf("delete again: %d", rr.Code) }
}

func TestWebhookQueuedOnCompletion(t *testing.T) {
    h := newTestServer(t).Routes()
    sub := model.SubscriptionRequest{URL: "https://hooks.example.com/x", Events: []string{"*"}}
    if rr := do(t, h, http.MethodPost, "/v1/subscriptions", sub, nil); rr.Code != 201 { t.Fatalf("subscribe: %d", rr.Code) }
    if rr := do(t, h, http.MethodPost, "/v1/plans", sampleRequest(), nil); rr.Code != 201 { t.Fatalf("plan: %d", rr.Code) }

    rr := do(t, h, http.MethodGet, "/v1/admin/webhook-deliveries", nil, nil)
    out := decode[struct{ Items []map[string]any `json:"items"` }](t, rr)
    if len(out.Items) != 1 || out.Items[0]["eventType"] != "plan.completed" || out.Items[0]["status"] != store.DeliveryPending {
        t.Fatalf("deliveries: %+v", out.Items)
    }
    id, _ := out.Items[0]["id"].(string)
    if rr := do(t, h, http.MethodPost, "/v1/admin/webhook-deliveries/"+id+"/retry", nil, nil); rr.Code != 202 { t.Fatalf("retry: %d", rr.Code) }
    if rr := do(t, h, http.MethodPost, "/v1/admin/webhook-deliveries/nope/retry", nil, nil); rr.Code != 404 { t.Fatalf("retry missing: %d", rr.Code) }
}

func TestRateLimit(t *testing.T) {
    s := newTestServer(t)
    s.Limiter = NewRateLimiter(0.001, 1)
    h := s.Routes()
    hdr := map[string]string{"X-Tenant-Id": "t_rl"}
    if rr := do(t, h, http.MethodGet, "/v1/plans", nil, hdr); rr.Code != 200 { t.Fatalf("first: %d", rr.Code) }
    rr := do(t, h, http.MethodGet, "/v1/plans", nil, hdr)
    if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" { t.Fatalf("second: %d", rr.Code) }
    if rr := do(t, h, http.MethodGet, "/v1/plans", nil, map[string]string{"X-Tenant-Id": "t_other"}); rr.Code != 200 { t.Fatalf("other client: %d", rr.Code) }
    if rr := do(t, h, http.MethodGet, "/healthz", nil, hdr); rr.Code != 200 { t.Fatalf("health limited: %d", rr.Code) }
}

func TestOpenAPIAndMetrics(t *testing.T) {
    metrics.RegisterDefault()
    h := newTestServer(t).Routes()
    rr := do(t, h, http.MethodGet, "/openapi.json", nil, nil)
    if rr.Code != 200 { t.Fatalf("openapi: %d", rr.Code) }
    doc := decode[map[string]any](t, rr)
    paths, _ := doc["paths"].(map[string]any)
    if _, ok := paths["/v1/plans"]; !ok { t.Fatalf("paths missing /v1/plans: %v", doc) }

    rr = do(t, h, http.MethodGet, "/metrics", nil, nil)
    if rr.Code != 200 || !strings.Contains(rr.Body.String(), `http_requests_total{method="GET",path="/openapi.json",status="200"}`) {
        t.Fatalf("metrics: %d", rr.Code)
    }
}

func TestDebugRedactsSecrets(t *testing.T) {
    s := newTestServer(t)
    s.Config.DatabaseURL = "postgres://user:pw@db/x"
    rr := do(t, s.Routes(), http.MethodGet, "/debug", nil, nil)
    if rr.Code != 200 || strings.Contains(rr.Body.String(), "pw@db") { t.Fatalf("debug: %d %s", rr.Code, rr.Body.String()) }
}
