package plan

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"dronenav/internal/metrics"
	"dronenav/internal/opt"
)

// Options tune a plan run.
type Options struct {
	// Ordering sequences the orders; nil keeps input order.
	Ordering Ordering
	// OnOrder, if set, is called after every order attempt.
	OnOrder func(OrderResult)
}

// OrderResult is the outcome of one order attempt within a run.
type OrderResult struct {
	OrderID   int
	Accepted  bool
	Reason    opt.Reason
	Pickups   int
	ReleaseAt int
	Actions   []opt.Action
}

// Result collects a whole run. Orders are listed in processing order.
type Result struct {
	Actions  []opt.Action
	Orders   []OrderResult
	Accepted int
	Rejected int
	LastTurn int
	MaxTurns int
}

// Score estimates the contest score: each accepted order earns
// ceil((T - t) / T * 100) where t is the turn of its last delivery.
func (r Result) Score() int {
	if r.MaxTurns <= 0 {
		return 0
	}
	total := 0
	for _, o := range r.Orders {
		if !o.Accepted {
			continue
		}
		left := r.MaxTurns - (o.ReleaseAt - 1)
		if left <= 0 {
			continue
		}
		total += (left*100 + r.MaxTurns - 1) / r.MaxTurns
	}
	return total
}

// Run plans every order of p once, in the sequence chosen by opts.Ordering.
// Cancellation is honoured between orders; the partial result is returned
// with the context error.
func Run(ctx context.Context, p Problem, opts Options) (Result, error) {
	start := time.Now()
	planner, err := opt.NewPlanner(p.Params, p.Warehouses, p.Start())
	if err != nil {
		metrics.PlanRuns.WithLabelValues("failed").Inc()
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidProblem, err)
	}
	ordering := opts.Ordering
	if ordering == nil {
		ordering = InputOrder
	}

	res := Result{MaxTurns: p.Params.MaxTurns}
	for _, o := range ordering(p.Orders) {
		if err := ctx.Err(); err != nil {
			metrics.PlanRuns.WithLabelValues("cancelled").Inc()
			return res, err
		}
		out := planner.Attempt(o)
		or := OrderResult{
			OrderID:   o.ID,
			Accepted:  out.Accepted,
			Reason:    out.Reason,
			Pickups:   len(out.Assignments),
			ReleaseAt: out.ReleaseAt,
			Actions:   out.Actions,
		}
		res.Orders = append(res.Orders, or)
		if out.Accepted {
			res.Accepted++
			res.Actions = append(res.Actions, out.Actions...)
			if out.ReleaseAt > res.LastTurn {
				res.LastTurn = out.ReleaseAt
			}
			metrics.PlannerOrders.WithLabelValues("accepted", "").Inc()
			for _, a := range out.Actions {
				metrics.PlannerActions.WithLabelValues(a.Kind.Code()).Inc()
			}
		} else {
			res.Rejected++
			metrics.PlannerOrders.WithLabelValues("rejected", string(out.Reason)).Inc()
			log.Debug().Int("order", o.ID).Str("reason", string(out.Reason)).Int("releaseAt", out.ReleaseAt).Msg("order rejected")
		}
		if opts.OnOrder != nil {
			opts.OnOrder(or)
		}
	}

	dur := time.Since(start)
	metrics.PlanRunDuration.Observe(dur.Seconds())
	metrics.PlanRuns.WithLabelValues("completed").Inc()
	log.Info().
		Int("orders", len(res.Orders)).
		Int("accepted", res.Accepted).
		Int("rejected", res.Rejected).
		Int("actions", len(res.Actions)).
		Int("lastTurn", res.LastTurn).
		Dur("took", dur).
		Msg("plan run finished")
	return res, nil
}
