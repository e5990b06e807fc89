package opt

import (
	"errors"
	"fmt"
)

// ErrInvalidParams reports a planner constructed outside its contract.
var ErrInvalidParams = errors.New("invalid planner params")

// Params are the global constants of a problem.
type Params struct {
	Drones     int
	MaxTurns   int   // turn horizon; a drone released after it cannot be used
	MaxPayload int   // weight a drone may carry in one pickup
	Weights    []int // unit weight per product type
}

// Validate checks the constructor contract of the planner.
func (p Params) Validate() error {
	if p.Drones <= 0 {
		return fmt.Errorf("%w: drones must be > 0", ErrInvalidParams)
	}
	if p.MaxTurns <= 0 {
		return fmt.Errorf("%w: max turns must be > 0", ErrInvalidParams)
	}
	if p.MaxPayload <= 0 {
		return fmt.Errorf("%w: max payload must be > 0", ErrInvalidParams)
	}
	if len(p.Weights) == 0 {
		return fmt.Errorf("%w: empty product weight table", ErrInvalidParams)
	}
	for t, w := range p.Weights {
		if w <= 0 {
			return fmt.Errorf("%w: product type %d has weight %d", ErrInvalidParams, t, w)
		}
	}
	return nil
}

// Known reports whether t has an entry in the weight table.
func (p Params) Known(t ProductType) bool {
	return t >= 0 && int(t) < len(p.Weights)
}

// Warehouse is a stock location. Stock shrinks as orders are committed.
type Warehouse struct {
	ID       int
	Location Location
	Stock    Products
}

// Clone copies the warehouse including its stock.
func (w Warehouse) Clone() Warehouse {
	w.Stock = w.Stock.Clone()
	return w
}

// Order is a delivery request. Requested is fixed at creation. Sequence is
// the order in which product types first occur in the item list; packing and
// command output follow it. A nil Sequence means ascending type id.
type Order struct {
	ID        int
	Location  Location
	Requested Products
	Sequence  []ProductType
}

// Drone is a delivery vehicle. AvailableAt is the first turn at which it can
// start a new task; it only ever grows.
type Drone struct {
	ID          int
	Location    Location
	AvailableAt int
}
