package api

import (
    "sync"
)

// Plan event types streamed over SSE and WebSocket.
const (
    EventOrderAccepted = "order.accepted"
    EventOrderRejected = "order.rejected"
    EventPlanCompleted = "plan.completed"
    EventPlanFailed    = "plan.failed"
)

type SSEEvent struct {
    Type string         `json:"type"`
    Data map[string]any `json:"data"`
}

// Terminal reports whether no further events follow for the plan.
func (e SSEEvent) Terminal() bool {
    return e.Type == EventPlanCompleted || e.Type == EventPlanFailed
}

// EventBroker fans plan events out to stream subscribers.
type EventBroker interface {
    Subscribe(planID string) chan SSEEvent
    Unsubscribe(planID string, ch chan SSEEvent)
    Publish(planID string, evt SSEEvent)
}

type Broker struct {
    mu      sync.Mutex
    subs    map[string]map[chan SSEEvent]struct{} // planId -> set of channels
}

func NewBroker() *Broker {
    return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(planID string) chan SSEEvent {
    ch := make(chan SSEEvent, 64)
    b.mu.Lock()
    if b.subs[planID] == nil { b.subs[planID] = map[chan SSEEvent]struct{}{} }
    b.subs[planID][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Broker) Unsubscribe(planID string, ch chan SSEEvent) {
    b.mu.Lock()
    defer b.mu.Unlock()
    m := b.subs[planID]
    if _, ok := m[ch]; !ok { return }
    delete(m, ch)
    if len(m) == 0 { delete(b.subs, planID) }
    close(ch)
}

// Publish never blocks: slow subscribers miss events, except that a terminal
// event replaces the oldest buffered one so streams can always finish.
func (b *Broker) Publish(planID string, evt SSEEvent) {
    b.mu.Lock()
    defer b.mu.Unlock()
    for ch := range b.subs[planID] {
        select {
        case ch <- evt:
        default:
            if evt.Terminal() {
                select { case <-ch: default: }
                select { case ch <- evt: default: }
            }
        }
    }
}
