package api

import (
    "context"
    "encoding/json"
    "errors"
    "mime"
    "net/http"
    "strconv"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog/log"

    "dronenav/internal/auth"
    "dronenav/internal/integrations"
    "dronenav/internal/integrations/hashcode"
    "dronenav/internal/model"
    "dronenav/internal/opt"
    "dronenav/internal/plan"
    "dronenav/internal/webhooks"
)

// CreatePlanHandler handles POST /v1/plans. The body is a JSON PlanRequest or
// a text/plain problem in Hash Code input format.
func (s *Server) CreatePlanHandler(w http.ResponseWriter, r *http.Request) {
    pr, ok := s.requireRole(w, r, auth.RolePlanner)
    if !ok { return }
    r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

    var req model.PlanRequest
    var src integrations.ProblemSource
    ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
    if ct == "text/plain" {
        src = hashcode.FileSource{Stdin: r.Body}
    } else {
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            var tooBig *http.MaxBytesError
            if errors.As(err, &tooBig) { writeError(w, r, "Request too large", err); return }
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        src = integrations.Static{Label: "json", Problem: req.Problem}
    }
    in, err := src.Fetch(r.Context())
    if err != nil { writeError(w, r, "Invalid problem", err); return }
    req.Problem = in
    if err := applyPlanQuery(&req, r.URL.Query()); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid query", err.Error(), r.URL.Path)
        return
    }
    if err := validatePlanRequest(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid plan request", err.Error(), r.URL.Path)
        return
    }
    if req.TenantID == "" || !pr.IsAdmin() { req.TenantID = pr.Tenant }

    problem, err := plan.FromModel(req.Problem)
    if err != nil { writeError(w, r, "Invalid problem", err); return }

    run := model.PlanRun{
        ID:        uuid.Must(uuid.NewV7()).String(),
        TenantID:  req.TenantID,
        Name:      req.Name,
        Status:    model.PlanRunning,
        Seed:      req.Seed,
        Shuffled:  req.Shuffle,
        CreatedAt: time.Now().UTC().Format(time.RFC3339),
    }
    ordering := plan.InputOrder
    if req.Shuffle {
        if run.Seed == 0 { run.Seed = time.Now().UnixNano() }
        ordering = plan.Shuffled(run.Seed)
    }
    if err := s.Store.PutPlan(r.Context(), run); err != nil {
        writeProblem(w, http.StatusInternalServerError, "Create plan failed", err.Error(), r.URL.Path)
        return
    }

    w.Header().Set("Location", "/v1/plans/"+run.ID)
    async, _ := strconv.ParseBool(r.URL.Query().Get("async"))
    if async {
        s.runs.Add(1)
        go func() {
            defer s.runs.Done()
            s.execute(s.runCtx, run, problem, ordering)
        }()
        writeJSON(w, http.StatusAccepted, run.Summary())
        return
    }
    run = s.execute(r.Context(), run, problem, ordering)
    if run.Status == model.PlanFailed {
        writeProblem(w, http.StatusInternalServerError, "Plan failed", run.Error, r.URL.Path)
        return
    }
    writeJSON(w, http.StatusCreated, run)
}

// execute runs the planner, streams per-order events and stores the outcome.
func (s *Server) execute(ctx context.Context, run model.PlanRun, p plan.Problem, ordering plan.Ordering) model.PlanRun {
    start := time.Now()
    res, err := plan.Run(ctx, p, plan.Options{
        Ordering: ordering,
        OnOrder: func(o plan.OrderResult) {
            typ := EventOrderAccepted
            if !o.Accepted { typ = EventOrderRejected }
            s.Broker.Publish(run.ID, SSEEvent{Type: typ, Data: outcomeData(o.Outcome())})
        },
    })
    res.Fill(&run)
    run.CompletedAt = time.Now().UTC().Format(time.RFC3339)
    run.Status = model.PlanCompleted
    evt, hook := EventPlanCompleted, webhooks.EventPlanCompleted
    if err != nil {
        run.Status = model.PlanFailed
        run.Error = err.Error()
        evt, hook = EventPlanFailed, webhooks.EventPlanFailed
    }

    // The run's own context may be gone; the record must still land.
    sctx := context.WithoutCancel(ctx)
    if err := s.Store.PutPlan(sctx, run); err != nil {
        log.Error().Err(err).Str("plan", run.ID).Msg("store plan failed")
    }
    ordName := "input"
    if run.Shuffled { ordName = "shuffled" }
    pm := model.PlanMetrics{PlanID: run.ID, Ordering: ordName, Seed: run.Seed, DurationMs: time.Since(start).Milliseconds(), Stats: run.Stats}
    if err := s.Store.SavePlanMetrics(sctx, run.TenantID, pm); err != nil {
        log.Error().Err(err).Str("plan", run.ID).Msg("store plan metrics failed")
    }

    s.Broker.Publish(run.ID, SSEEvent{Type: evt, Data: summaryData(run)})
    if s.Pub != nil {
        s.Pub.Emit(sctx, run.TenantID, hook, run.Summary())
    }
    log.Info().Str("plan", run.ID).Str("tenant", run.TenantID).Str("status", run.Status).
        Int64("seed", run.Seed).Int("score", run.Stats.Score).Msg("plan finished")
    return run
}

// ListPlansHandler handles GET /v1/plans
func (s *Server) ListPlansHandler(w http.ResponseWriter, r *http.Request) {
    pr, ok := s.requireRole(w, r, auth.RoleViewer, auth.RolePlanner)
    if !ok { return }
    items, next, err := s.Store.ListPlans(r.Context(), pr.Tenant, r.URL.Query().Get("cursor"), queryLimit(r))
    if err != nil { writeError(w, r, "List plans failed", err); return }
    writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// GetPlanHandler handles GET /v1/plans/{id}
func (s *Server) GetPlanHandler(w http.ResponseWriter, r *http.Request) {
    run, ok := s.loadPlan(w, r)
    if !ok { return }
    writeJSON(w, http.StatusOK, run)
}

// PlanCommandsHandler handles GET /v1/plans/{id}/commands and renders the
// command log in Hash Code output format.
func (s *Server) PlanCommandsHandler(w http.ResponseWriter, r *http.Request) {
    run, ok := s.loadPlan(w, r)
    if !ok { return }
    if run.Status != model.PlanCompleted {
        writeProblem(w, http.StatusConflict, "Plan not completed", "status is "+run.Status, r.URL.Path)
        return
    }
    actions := make([]opt.Action, 0, len(run.Actions))
    for _, a := range run.Actions {
        act, ok := plan.ActionIn(a)
        if !ok {
            writeProblem(w, http.StatusInternalServerError, "Corrupt plan", "unknown op "+a.Op, r.URL.Path)
            return
        }
        actions = append(actions, act)
    }
    w.Header().Set("Content-Type", "text/plain; charset=utf-8")
    if err := (hashcode.Writer{}).WriteCommands(w, actions); err != nil {
        log.Warn().Err(err).Str("plan", run.ID).Msg("write commands failed")
    }
}

// PlanMetricsHandler handles GET /v1/plans/{id}/metrics
func (s *Server) PlanMetricsHandler(w http.ResponseWriter, r *http.Request) {
    run, ok := s.loadPlan(w, r)
    if !ok { return }
    items, err := s.Store.ListPlanMetrics(r.Context(), run.TenantID, run.ID)
    if err != nil { writeError(w, r, "List plan metrics failed", err); return }
    writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) loadPlan(w http.ResponseWriter, r *http.Request) (model.PlanRun, bool) {
    pr, ok := s.requireRole(w, r, auth.RoleViewer, auth.RolePlanner)
    if !ok { return model.PlanRun{}, false }
    run, err := s.Store.GetPlan(r.Context(), pr.Tenant, r.PathValue("id"))
    if err != nil {
        writeError(w, r, "Plan lookup failed", err)
        return model.PlanRun{}, false
    }
    return run, true
}

// finishedEvent returns the terminal event for a run that is no longer running.
func finishedEvent(run model.PlanRun) (SSEEvent, bool) {
    switch run.Status {
    case model.PlanCompleted:
        return SSEEvent{Type: EventPlanCompleted, Data: summaryData(run)}, true
    case model.PlanFailed:
        return SSEEvent{Type: EventPlanFailed, Data: summaryData(run)}, true
    }
    return SSEEvent{}, false
}

func outcomeData(o model.OrderOutcome) map[string]any {
    d := map[string]any{"orderId": o.OrderID, "status": o.Status, "pickups": o.Pickups}
    if o.Reason != "" { d["reason"] = o.Reason }
    if o.ReleaseAt > 0 { d["releaseAt"] = o.ReleaseAt }
    return d
}

func summaryData(run model.PlanRun) map[string]any {
    d := map[string]any{"planId": run.ID, "status": run.Status, "stats": run.Stats}
    if run.Error != "" { d["error"] = run.Error }
    return d
}

func queryLimit(r *http.Request) int {
    n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
    return n
}
