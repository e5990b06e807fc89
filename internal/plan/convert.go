package plan

import (
	"dronenav/internal/model"
	"dronenav/internal/opt"
)

// ActionOut converts a drone command to its wire form.
func ActionOut(a opt.Action) model.ActionOut {
	return model.ActionOut{
		Drone:   a.Drone,
		Op:      a.Kind.Code(),
		Target:  a.Target,
		Product: int(a.Product),
		Count:   a.Count,
		Turns:   a.Turns,
	}
}

// ActionIn converts a wire command back. Unknown ops yield ok=false.
func ActionIn(a model.ActionOut) (opt.Action, bool) {
	switch a.Op {
	case "L":
		return opt.Load(a.Drone, a.Target, opt.ProductType(a.Product), a.Count), true
	case "U":
		return opt.Unload(a.Drone, a.Target, opt.ProductType(a.Product), a.Count), true
	case "D":
		return opt.Deliver(a.Drone, a.Target, opt.ProductType(a.Product), a.Count), true
	case "W":
		return opt.Wait(a.Drone, a.Turns), true
	}
	return opt.Action{}, false
}

func (o OrderResult) Outcome() model.OrderOutcome {
	out := model.OrderOutcome{OrderID: o.OrderID, Status: "accepted", Pickups: o.Pickups, ReleaseAt: o.ReleaseAt}
	if !o.Accepted {
		out.Status = "rejected"
		out.Reason = string(o.Reason)
	}
	return out
}

func (r Result) Stats() model.PlanStats {
	return model.PlanStats{
		Orders:   len(r.Orders),
		Accepted: r.Accepted,
		Rejected: r.Rejected,
		Actions:  len(r.Actions),
		LastTurn: r.LastTurn,
		Score:    r.Score(),
	}
}

// Fill copies the result into a plan run record.
func (r Result) Fill(run *model.PlanRun) {
	run.Stats = r.Stats()
	run.Orders = make([]model.OrderOutcome, len(r.Orders))
	for i, o := range r.Orders {
		run.Orders[i] = o.Outcome()
	}
	run.Actions = make([]model.ActionOut, len(r.Actions))
	for i, a := range r.Actions {
		run.Actions[i] = ActionOut(a)
	}
}
