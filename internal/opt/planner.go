package opt

import (
	"fmt"
	"sort"
)

// Reason explains why an order attempt was rejected.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonNothingRequested Reason = "nothing_requested"
	ReasonShortage         Reason = "stock_shortage"
	ReasonOverweight       Reason = "overweight"
	ReasonHorizon          Reason = "horizon"
)

// Assignment is one pickup: a drone loads Products at a warehouse and flies
// them to the order.
type Assignment struct {
	Drone     int
	Warehouse int
	Order     int
	Products  Products
	StartAt   int // drone availability before the pickup
	ReleaseAt int // drone availability after the delivery
}

// Outcome is the result of one order attempt.
type Outcome struct {
	Order       int
	Accepted    bool
	Reason      Reason
	Assignments []Assignment
	Actions     []Action
	ReleaseAt   int // latest release turn among the attempt's assignments
}

// Planner assigns drones and warehouse stock to orders one at a time.
// Each attempt runs on working copies and only a successful attempt is
// written back. A Planner is not safe for concurrent use.
type Planner struct {
	params     Params
	warehouses []Warehouse
	drones     []Drone
}

// NewPlanner places every drone at start with availability turn 0.
func NewPlanner(params Params, warehouses []Warehouse, start Location) (*Planner, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	p := &Planner{params: params, warehouses: make([]Warehouse, len(warehouses)), drones: make([]Drone, params.Drones)}
	for i, w := range warehouses {
		for t := range w.Stock {
			if !params.Known(t) {
				return nil, fmt.Errorf("%w: warehouse %d stocks unknown product type %d", ErrInvalidParams, w.ID, t)
			}
		}
		p.warehouses[i] = w.Clone()
	}
	for i := range p.drones {
		p.drones[i] = Drone{ID: i, Location: start}
	}
	return p, nil
}

// Params returns the constants the planner was built with.
func (p *Planner) Params() Params { return p.params }

// Drones returns a copy of the drone pool in pool order.
func (p *Planner) Drones() []Drone {
	return append([]Drone(nil), p.drones...)
}

// Warehouses returns a deep copy of the warehouses in input order.
func (p *Planner) Warehouses() []Warehouse {
	out := make([]Warehouse, len(p.warehouses))
	for i, w := range p.warehouses {
		out[i] = w.Clone()
	}
	return out
}

// PlanOrder returns the actions fulfilling o, or nil when the order cannot be
// completed from the remaining stock before the turn horizon.
func (p *Planner) PlanOrder(o Order) []Action {
	return p.Attempt(o).Actions
}

// PlanOrders plans orders in the given sequence and concatenates the actions
// of the accepted ones.
func (p *Planner) PlanOrders(orders []Order) []Action {
	var out []Action
	for _, o := range orders {
		out = append(out, p.PlanOrder(o)...)
	}
	return out
}

// Attempt is PlanOrder with the rejection reason and assignments exposed.
func (p *Planner) Attempt(o Order) Outcome {
	out := Outcome{Order: o.ID}
	remaining := o.Requested.Clone()
	if remaining.Empty() {
		out.Reason = ReasonNothingRequested
		return out
	}

	drones := append([]Drone(nil), p.drones...)
	stock := make([]Products, len(p.warehouses))
	for i, w := range p.warehouses {
		stock[i] = w.Stock.Clone()
	}

	var assignments []Assignment
	overweight := false
	for _, wi := range p.rankWarehouses(o.Location) {
		w := p.warehouses[wi]
		take := IntersectMin(remaining, stock[wi])
		for !take.Empty() {
			di := nearestDrone(drones, w.Location)
			load := p.pack(take, o.Sequence)
			if load.Empty() {
				// every item left here is heavier than a full payload
				overweight = true
				break
			}
			d := drones[di]
			released := Drone{
				ID:          d.ID,
				Location:    o.Location,
				AvailableAt: d.AvailableAt + TravelTime(d.Location, w.Location) + TravelTime(w.Location, o.Location),
			}
			take = Subtract(take, load)
			stock[wi] = Subtract(stock[wi], load)
			remaining = Subtract(remaining, load)
			drones = append(drones[:di], drones[di+1:]...)
			drones = append(drones, released)
			assignments = append(assignments, Assignment{
				Drone:     d.ID,
				Warehouse: w.ID,
				Order:     o.ID,
				Products:  load,
				StartAt:   d.AvailableAt,
				ReleaseAt: released.AvailableAt,
			})
		}
	}

	if !remaining.Empty() {
		out.Reason = ReasonShortage
		if overweight {
			out.Reason = ReasonOverweight
		}
		return out
	}
	if len(assignments) == 0 {
		out.Reason = ReasonNothingRequested
		return out
	}
	for _, a := range assignments {
		if a.ReleaseAt > out.ReleaseAt {
			out.ReleaseAt = a.ReleaseAt
		}
	}
	if out.ReleaseAt > p.params.MaxTurns {
		out.Reason = ReasonHorizon
		return out
	}

	p.drones = drones
	for i := range p.warehouses {
		p.warehouses[i].Stock = stock[i]
	}
	out.Accepted = true
	out.Assignments = assignments
	out.Actions = actionsFor(assignments, o.Sequence)
	return out
}

// rankWarehouses orders warehouse indices by distance to loc. Equal
// distances keep input order.
func (p *Planner) rankWarehouses(loc Location) []int {
	idx := make([]int, len(p.warehouses))
	dist := make([]int, len(p.warehouses))
	for i, w := range p.warehouses {
		idx[i] = i
		dist[i] = Distance(w.Location, loc)
	}
	sort.SliceStable(idx, func(a, b int) bool { return dist[idx[a]] < dist[idx[b]] })
	return idx
}

// nearestDrone picks the drone with the lowest travel time to target plus
// its idle lag behind the earliest available drone. Ties go to the first
// drone in pool order.
func nearestDrone(drones []Drone, target Location) int {
	minAvail := drones[0].AvailableAt
	for _, d := range drones[1:] {
		if d.AvailableAt < minAvail {
			minAvail = d.AvailableAt
		}
	}
	best, bestCost := 0, 0
	for i, d := range drones {
		c := TravelTime(d.Location, target) + d.AvailableAt - minAvail
		if i == 0 || c < bestCost {
			best, bestCost = i, c
		}
	}
	return best
}

// pack fills one payload from need, walking product types in seq order. It
// stops at the first type met with a full payload and never backtracks to
// fit lighter items.
func (p *Planner) pack(need Products, seq []ProductType) Products {
	load := Products{}
	weight := 0
	for _, t := range need.InOrder(seq) {
		if weight >= p.params.MaxPayload {
			break
		}
		n := need[t]
		if fit := (p.params.MaxPayload - weight) / p.params.Weights[t]; fit < n {
			n = fit
		}
		if n > 0 {
			load[t] = n
			weight += n * p.params.Weights[t]
		}
	}
	return load
}

// actionsFor emits, per assignment, all loads then all deliveries in seq order.
func actionsFor(assignments []Assignment, seq []ProductType) []Action {
	var out []Action
	for _, a := range assignments {
		types := a.Products.InOrder(seq)
		for _, t := range types {
			out = append(out, Load(a.Drone, a.Warehouse, t, a.Products[t]))
		}
		for _, t := range types {
			out = append(out, Deliver(a.Drone, a.Order, t, a.Products[t]))
		}
	}
	return out
}
