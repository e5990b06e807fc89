package model

// Wire types shared by the API, the store and the problem readers.

type Point struct {
    X int `json:"x"`
    Y int `json:"y"`
}

type WarehouseIn struct {
    Location Point `json:"location"`
    Stock    []int `json:"stock"` // count per product type
}

type OrderIn struct {
    Location Point `json:"location"`
    Products []int `json:"products"` // one product type id per item
}

// ProblemIn is a full planning problem in wire form.
type ProblemIn struct {
    Rows           int           `json:"rows"`
    Cols           int           `json:"cols"`
    Drones         int           `json:"drones"`
    MaxTurns       int           `json:"maxTurns"`
    MaxPayload     int           `json:"maxPayload"`
    ProductWeights []int         `json:"productWeights"`
    Warehouses     []WarehouseIn `json:"warehouses"`
    Orders         []OrderIn     `json:"orders"`
}

type PlanRequest struct {
    TenantID string    `json:"tenantId,omitempty"`
    Name     string    `json:"name,omitempty"`
    Seed     int64     `json:"seed,omitempty"`
    Shuffle  bool      `json:"shuffle,omitempty"`
    Problem  ProblemIn `json:"problem"`
}

type ActionOut struct {
    Drone   int    `json:"drone"`
    Op      string `json:"op"` // L, U, D, W
    Target  int    `json:"target,omitempty"` // warehouse id for L/U, order id for D
    Product int    `json:"product,omitempty"`
    Count   int    `json:"count,omitempty"`
    Turns   int    `json:"turns,omitempty"`
}

type OrderOutcome struct {
    OrderID   int    `json:"orderId"`
    Status    string `json:"status"` // accepted, rejected
    Reason    string `json:"reason,omitempty"`
    Pickups   int    `json:"pickups"`
    ReleaseAt int    `json:"releaseAt,omitempty"`
}

type PlanStats struct {
    Orders   int `json:"orders"`
    Accepted int `json:"accepted"`
    Rejected int `json:"rejected"`
    Actions  int `json:"actions"`
    LastTurn int `json:"lastTurn"`
    Score    int `json:"score"`
}

// Plan run status values
const (
    PlanRunning   = "running"
    PlanCompleted = "completed"
    PlanFailed    = "failed"
)

type PlanRun struct {
    ID          string         `json:"id"`
    TenantID    string         `json:"tenantId"`
    Name        string         `json:"name,omitempty"`
    Status      string         `json:"status"`
    Seed        int64          `json:"seed"`
    Shuffled    bool           `json:"shuffled"`
    CreatedAt   string         `json:"createdAt"`
    CompletedAt string         `json:"completedAt,omitempty"`
    Error       string         `json:"error,omitempty"`
    Stats       PlanStats      `json:"stats"`
    Orders      []OrderOutcome `json:"orders,omitempty"`
    Actions     []ActionOut    `json:"actions,omitempty"`
}

// PlanSummary is the list view of a PlanRun.
type PlanSummary struct {
    ID        string    `json:"id"`
    Name      string    `json:"name,omitempty"`
    Status    string    `json:"status"`
    CreatedAt string    `json:"createdAt"`
    Stats     PlanStats `json:"stats"`
}

func (r PlanRun) Summary() PlanSummary {
    return PlanSummary{ID: r.ID, Name: r.Name, Status: r.Status, CreatedAt: r.CreatedAt, Stats: r.Stats}
}

// PlanMetrics is one recorded run of a problem: which ordering produced
// which stats.
type PlanMetrics struct {
    PlanID     string    `json:"planId"`
    Ordering   string    `json:"ordering"` // input, shuffled
    Seed       int64     `json:"seed"`
    DurationMs int64     `json:"durationMs"`
    Stats      PlanStats `json:"stats"`
    RecordedAt string    `json:"recordedAt"`
}

type SubscriptionRequest struct {
    TenantID string   `json:"tenantId"`
    URL      string   `json:"url"`
    Events   []string `json:"events"`
    Secret   string   `json:"secret"`
}

type Subscription struct {
    ID       string   `json:"id"`
    TenantID string   `json:"tenantId"`
    URL      string   `json:"url"`
    Events   []string `json:"events"`
    Secret   string   `json:"secret,omitempty"`
}
