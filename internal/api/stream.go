package api

import (
    "encoding/json"
    "fmt"
    "net/http"
    "time"

    "github.com/gorilla/websocket"
    "github.com/rs/zerolog/log"
)

const (
    heartbeatEvery = 15 * time.Second
    wsPongWait     = 60 * time.Second
    wsWriteWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// PlanEventsHandler handles GET /v1/plans/{id}/events as a Server-Sent Events
// stream. The stream ends after the plan's terminal event.
func (s *Server) PlanEventsHandler(w http.ResponseWriter, r *http.Request) {
    run, ok := s.loadPlan(w, r)
    if !ok { return }
    rc := http.NewResponseController(w)

    // Subscribe before re-reading the status so the terminal event cannot slip
    // between the two.
    ch := s.Broker.Subscribe(run.ID)
    defer s.Broker.Unsubscribe(run.ID, ch)
    if cur, err := s.Store.GetPlan(r.Context(), run.TenantID, run.ID); err == nil {
        run = cur
    }

    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")
    w.WriteHeader(http.StatusOK)

    send := func(evt SSEEvent) error {
        b, err := json.Marshal(evt.Data)
        if err != nil { return err }
        if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, b); err != nil { return err }
        return rc.Flush()
    }
    if evt, done := finishedEvent(run); done {
        _ = send(evt)
        return
    }
    _ = rc.Flush()

    ticker := time.NewTicker(heartbeatEvery)
    defer ticker.Stop()
    for {
        select {
        case <-r.Context().Done():
            return
        case <-ticker.C:
            if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil { return }
            if err := rc.Flush(); err != nil { return }
        case evt, open := <-ch:
            if !open { return }
            if err := send(evt); err != nil { return }
            if evt.Terminal() { return }
        }
    }
}

// PlanWSHandler handles GET /v1/plans/{id}/ws. Each event is written as a
// JSON text frame {"type":..., "data":...}; the server closes after the
// terminal event.
func (s *Server) PlanWSHandler(w http.ResponseWriter, r *http.Request) {
    run, ok := s.loadPlan(w, r)
    if !ok { return }
    ch := s.Broker.Subscribe(run.ID)
    defer s.Broker.Unsubscribe(run.ID, ch)
    if cur, err := s.Store.GetPlan(r.Context(), run.TenantID, run.ID); err == nil {
        run = cur
    }

    conn, err := upgrader.Upgrade(w, r, nil)
    if err != nil {
        log.Debug().Err(err).Str("plan", run.ID).Msg("websocket upgrade failed")
        return
    }
    defer func() { _ = conn.Close() }()

    // Reader: handles pongs and notices the client going away.
    gone := make(chan struct{})
    conn.SetReadLimit(1 << 10)
    _ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
    conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsPongWait)) })
    go func() {
        defer close(gone)
        for {
            if _, _, err := conn.ReadMessage(); err != nil { return }
        }
    }()

    write := func(evt SSEEvent) error {
        _ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
        return conn.WriteJSON(evt)
    }
    closeNormal := func() {
        msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "plan finished")
        _ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
    }
    if evt, done := finishedEvent(run); done {
        if write(evt) == nil { closeNormal() }
        return
    }

    ticker := time.NewTicker(heartbeatEvery)
    defer ticker.Stop()
    for {
        select {
        case <-gone:
            return
        case <-ticker.C:
            if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil { return }
        case evt, open := <-ch:
            if !open { return }
            if err := write(evt); err != nil { return }
            if evt.Terminal() {
                closeNormal()
                return
            }
        }
    }
}
