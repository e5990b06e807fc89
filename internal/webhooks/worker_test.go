package webhooks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dronenav/internal/model"
	"dronenav/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks  []MarkRec
	fails  []FailRec
	defers []string
}
type MarkRec struct {
	ID            string
	Success       bool
	Code, Latency int
	LastErr       string
}
type FailRec struct {
	ID            string
	Code, Latency int
	LastErr       string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, MarkRec{ID: id, Success: success, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}
func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, FailRec{ID: id, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func (r *recordStore) DeferWebhookDelivery(ctx context.Context, id string, nextAttemptAt time.Time, lastError string) error {
	r.mu.Lock()
	r.defers = append(r.defers, id)
	r.mu.Unlock()
	return r.Memory.DeferWebhookDelivery(ctx, id, nextAttemptAt, lastError)
}

func newTestWorker(rs *recordStore, client *http.Client, maxAttempts int) *Worker {
	w := NewWorker(rs, maxAttempts)
	w.HTTP = client
	return w
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var verr error
	var gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotType = r.Header.Get("X-Event-Type")
		verr = VerifyHMAC("secret", r.Header.Get("X-Signature-Timestamp"), body, r.Header.Get("X-Signature"), time.Now(), time.Minute)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := newTestWorker(rs, srv.Client(), 3)
	id, err := rs.Memory.EnqueueWebhook(context.Background(), "t1", "", EventPlanCompleted, srv.URL, "secret", []byte(`{"id":"evt1"}`))
	if err != nil || id == "" {
		t.Fatalf("enqueue failed: %v", err)
	}

	w.processOnce(context.Background())

	if verr != nil || gotType != EventPlanCompleted {
		t.Fatalf("bad signature/type headers: err=%v type=%q", verr, gotType)
	}
	if len(rs.marks) == 0 || !rs.marks[0].Success {
		t.Fatalf("expected mark success, got: %+v", rs.marks)
	}
}

func TestWorkerProcessOnce_Fail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := newTestWorker(rs, srv.Client(), 1)
	_, _ = rs.Memory.EnqueueWebhook(context.Background(), "t1", "", EventPlanCompleted, srv.URL, "", []byte(`{}`))
	w.processOnce(context.Background())
	if len(rs.fails) == 0 {
		t.Fatalf("expected fail recorded")
	}
}

func TestWorkerProcessOnce_RetryThenPermanent(t *testing.T) {
	var code atomic.Int32
	code.Store(503)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(int(code.Load())) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := newTestWorker(rs, srv.Client(), 5)
	id, _ := rs.Memory.EnqueueWebhook(context.Background(), "t1", "", EventPlanCompleted, srv.URL, "", []byte(`{"id":"evt_r"}`))

	w.processOnce(context.Background())
	if len(rs.marks) != 1 || rs.marks[0].Success || rs.marks[0].Code != 503 {
		t.Fatalf("expected one retry mark with 503, got %+v", rs.marks)
	}
	if len(rs.fails) != 0 {
		t.Fatalf("5xx must be retried, got fails %+v", rs.fails)
	}

	code.Store(404)
	if err := rs.RetryWebhookDelivery(context.Background(), "t1", id); err != nil {
		t.Fatal(err)
	}
	w.processOnce(context.Background())
	if len(rs.fails) != 1 || rs.fails[0].Code != 404 {
		t.Fatalf("4xx must fail at once, got %+v", rs.fails)
	}
}

func TestWorkerBreakerOpensPerHost(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(502)
	}))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := newTestWorker(rs, srv.Client(), 10)
	w.breakers = newBreakers(2, time.Minute)
	for i := 0; i < 3; i++ {
		_, _ = rs.Memory.EnqueueWebhook(context.Background(), "t1", "", EventPlanCompleted, srv.URL, "", []byte(fmt.Sprintf(`{"id":"evt_%d"}`, i)))
	}

	w.processOnce(context.Background())

	if hits.Load() != 2 {
		t.Fatalf("expected the breaker to stop after 2 failures, server saw %d", hits.Load())
	}
	if len(rs.marks) != 2 || len(rs.defers) != 1 {
		t.Fatalf("expected 2 marked and 1 deferred delivery, got marks=%+v defers=%v", rs.marks, rs.defers)
	}
	items, _, _ := rs.Memory.ListWebhookDeliveries(context.Background(), "t1", "", "", 10)
	for _, it := range items {
		if it["id"] != rs.defers[0] {
			continue
		}
		if it["attempts"] != 0 || it["status"] != store.DeliveryPending || !strings.Contains(it["lastError"].(string), "open") {
			t.Fatalf("deferred delivery should keep its attempts, got %+v", it)
		}
		return
	}
	t.Fatalf("deferred delivery %s not listed", rs.defers[0])
}

func TestWorkerOpenBreakerNeverFailsUnsentDelivery(t *testing.T) {
	var hits atomic.Int32
	trip := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(502)
	}))
	defer trip.Close()
	ctx := context.Background()
	rs := &recordStore{Memory: store.NewMemory()}
	w := newTestWorker(rs, trip.Client(), 2)
	w.breakers = newBreakers(1, time.Hour)

	_, _ = rs.Memory.EnqueueWebhook(ctx, "t1", "", EventPlanCompleted, trip.URL, "", []byte(`{"id":"evt_trip"}`))
	w.processOnce(ctx)
	if hits.Load() != 1 {
		t.Fatalf("expected one request to trip the breaker, got %d", hits.Load())
	}

	id, _ := rs.Memory.EnqueueWebhook(ctx, "t1", "", EventPlanCompleted, trip.URL, "", []byte(`{"id":"evt_blocked"}`))
	for i := 0; i < 3; i++ {
		if err := rs.Memory.RetryWebhookDelivery(ctx, "t1", id); err != nil {
			t.Fatalf("make due: %v", err)
		}
		w.processOnce(ctx)
	}

	if hits.Load() != 1 {
		t.Fatalf("blocked delivery reached the receiver %d times", hits.Load()-1)
	}
	for _, f := range rs.fails {
		if f.ID == id {
			t.Fatalf("delivery blocked only by the breaker was failed: %+v", f)
		}
	}
	items, _, _ := rs.Memory.ListWebhookDeliveries(ctx, "t1", "", "", 10)
	for _, it := range items {
		if it["id"] == id {
			if it["attempts"] != 0 || it["status"] == store.DeliveryFailed {
				t.Fatalf("want 0 attempts and a live delivery, got %+v", it)
			}
			return
		}
	}
	t.Fatalf("delivery %s not listed", id)
}

func TestPublisherEmit(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	_, _ = mem.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://a", Events: []string{EventPlanCompleted}})
	_, _ = mem.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://b", Events: []string{"order.rejected"}})

	p := NewPublisher(mem)
	if n := p.Emit(ctx, "t1", EventPlanCompleted, map[string]any{"planId": "p1"}); n != 1 {
		t.Fatalf("expected 1 delivery queued, got %d", n)
	}
	if n := p.Emit(ctx, "t2", EventPlanCompleted, nil); n != 0 {
		t.Fatalf("other tenant has no subscriptions, got %d", n)
	}
	due, _ := mem.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 1 || due[0].URL != "http://a" || !strings.Contains(string(due[0].Payload), `"planId":"p1"`) {
		t.Fatalf("unexpected deliveries: %+v", due)
	}
}

func TestVerifyHMAC(t *testing.T) {
	now := time.Unix(1_800_000_000, 0)
	body := []byte(`{"id":"evt"}`)
	sig := SignHMAC("k", now.Unix(), body)
	ts := fmt.Sprint(now.Unix())
	if err := VerifyHMAC("k", ts, body, sig, now, time.Minute); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if err := VerifyHMAC("other", ts, body, sig, now, time.Minute); err != ErrBadSignature {
		t.Fatalf("want ErrBadSignature, got %v", err)
	}
	if err := VerifyHMAC("k", ts, body, sig, now.Add(time.Hour), time.Minute); err != ErrStaleSignature {
		t.Fatalf("want ErrStaleSignature, got %v", err)
	}
	if err := VerifyHMAC("k", "x", body, sig, now, 0); err != ErrBadSignature {
		t.Fatalf("want ErrBadSignature for bad timestamp, got %v", err)
	}
}
