// Package plan drives the order planner over a whole problem: it validates
// the input, applies the order sequencing policy, runs every order through
// one opt.Planner and collects the outcome.
package plan

import (
	"errors"
	"fmt"

	"dronenav/internal/model"
	"dronenav/internal/opt"
)

// ErrInvalidProblem wraps every validation failure of a problem.
var ErrInvalidProblem = errors.New("invalid problem")

// Problem is a validated planning problem.
type Problem struct {
	Rows       int
	Cols       int
	Params     opt.Params
	Warehouses []opt.Warehouse
	Orders     []opt.Order
}

// Start is the shared starting location of all drones: the first warehouse.
func (p Problem) Start() opt.Location {
	if len(p.Warehouses) == 0 {
		return opt.Location{}
	}
	return p.Warehouses[0].Location
}

// FromModel validates a wire problem and converts it. Warehouse and order ids
// are their positions in the input.
func FromModel(in model.ProblemIn) (Problem, error) {
	p := Problem{
		Rows: in.Rows,
		Cols: in.Cols,
		Params: opt.Params{
			Drones:     in.Drones,
			MaxTurns:   in.MaxTurns,
			MaxPayload: in.MaxPayload,
			Weights:    append([]int(nil), in.ProductWeights...),
		},
	}
	if err := p.Params.Validate(); err != nil {
		return Problem{}, fmt.Errorf("%w: %w", ErrInvalidProblem, err)
	}
	if len(in.Warehouses) == 0 {
		return Problem{}, fmt.Errorf("%w: at least one warehouse is required", ErrInvalidProblem)
	}
	types := len(in.ProductWeights)
	for i, w := range in.Warehouses {
		if err := p.checkPoint(w.Location); err != nil {
			return Problem{}, fmt.Errorf("%w: warehouse %d: %v", ErrInvalidProblem, i, err)
		}
		if len(w.Stock) > types {
			return Problem{}, fmt.Errorf("%w: warehouse %d lists %d product types, only %d exist", ErrInvalidProblem, i, len(w.Stock), types)
		}
		for t, c := range w.Stock {
			if c < 0 {
				return Problem{}, fmt.Errorf("%w: warehouse %d has negative stock of type %d", ErrInvalidProblem, i, t)
			}
		}
		p.Warehouses = append(p.Warehouses, opt.Warehouse{
			ID:       i,
			Location: toLocation(w.Location),
			Stock:    opt.ProductsFromCounts(w.Stock),
		})
	}
	for i, o := range in.Orders {
		if err := p.checkPoint(o.Location); err != nil {
			return Problem{}, fmt.Errorf("%w: order %d: %v", ErrInvalidProblem, i, err)
		}
		items := make([]opt.ProductType, len(o.Products))
		for j, t := range o.Products {
			if t < 0 || t >= types {
				return Problem{}, fmt.Errorf("%w: order %d requests unknown product type %d", ErrInvalidProblem, i, t)
			}
			items[j] = opt.ProductType(t)
		}
		p.Orders = append(p.Orders, opt.Order{
			ID:        i,
			Location:  toLocation(o.Location),
			Requested: opt.ProductsFromList(items),
			Sequence:  opt.FirstAppearance(items),
		})
	}
	return p, nil
}

// checkPoint bounds a location by the grid when the grid size is known.
func (p Problem) checkPoint(pt model.Point) error {
	if p.Rows <= 0 || p.Cols <= 0 {
		return nil
	}
	if pt.X < 0 || pt.X >= p.Rows || pt.Y < 0 || pt.Y >= p.Cols {
		return fmt.Errorf("location (%d,%d) outside %dx%d grid", pt.X, pt.Y, p.Rows, p.Cols)
	}
	return nil
}

func toLocation(pt model.Point) opt.Location {
	return opt.Location{X: pt.X, Y: pt.Y}
}
