package api

import (
    "testing"
    "time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
    b := NewBroker()
    pid := "p1"
    ch := b.Subscribe(pid)

    evt := SSEEvent{Type: EventOrderAccepted, Data: map[string]any{"orderId": 1}}
    b.Publish(pid, evt)
    b.Publish("other", SSEEvent{Type: EventOrderRejected})

    select {
    case got := <-ch:
        if got.Type != evt.Type { t.Fatalf("got type %s, want %s", got.Type, evt.Type) }
        if got.Data["orderId"].(int) != 1 { t.Fatalf("bad payload: %+v", got.Data) }
    case <-time.After(200 * time.Millisecond):
        t.Fatal("timeout waiting for event")
    }

    b.Unsubscribe(pid, ch)
    if _, ok := <-ch; ok { t.Fatal("channel should be closed after unsubscribe") }
    // second unsubscribe is a no-op
    b.Unsubscribe(pid, ch)
}

func TestBrokerTerminalEventSurvivesFullBuffer(t *testing.T) {
    b := NewBroker()
    ch := b.Subscribe("p1")
    for i := 0; i < cap(ch)+10; i++ {
        b.Publish("p1", SSEEvent{Type: EventOrderAccepted, Data: map[string]any{"orderId": i}})
    }
    b.Publish("p1", SSEEvent{Type: EventPlanCompleted})

    var last SSEEvent
    for i := 0; i < cap(ch); i++ {
        last = <-ch
    }
    if !last.Terminal() { t.Fatalf("last buffered event = %s, want %s", last.Type, EventPlanCompleted) }
}
