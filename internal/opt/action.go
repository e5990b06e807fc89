package opt

import "fmt"

// ActionKind tags the Action variants.
type ActionKind uint8

const (
	ActionLoad ActionKind = iota + 1
	ActionUnload
	ActionDeliver
	ActionWait
)

// Code is the one-letter operation used in command output.
func (k ActionKind) Code() string {
	switch k {
	case ActionLoad:
		return "L"
	case ActionUnload:
		return "U"
	case ActionDeliver:
		return "D"
	case ActionWait:
		return "W"
	}
	return "?"
}

func (k ActionKind) String() string {
	switch k {
	case ActionLoad:
		return "load"
	case ActionUnload:
		return "unload"
	case ActionDeliver:
		return "deliver"
	case ActionWait:
		return "wait"
	}
	return "unknown"
}

// Action is a single drone command. Which fields are meaningful depends on
// Kind: Target is a warehouse id for load/unload and an order id for deliver;
// Turns is only used by wait.
type Action struct {
	Kind    ActionKind
	Drone   int
	Target  int
	Product ProductType
	Count   int
	Turns   int
}

// Load builds a command picking count items of type t up at a warehouse.
func Load(drone, warehouse int, t ProductType, count int) Action {
	return Action{Kind: ActionLoad, Drone: drone, Target: warehouse, Product: t, Count: count}
}

// Unload builds a command dropping count items of type t at a warehouse.
func Unload(drone, warehouse int, t ProductType, count int) Action {
	return Action{Kind: ActionUnload, Drone: drone, Target: warehouse, Product: t, Count: count}
}

// Deliver builds a command handing count items of type t to an order.
func Deliver(drone, order int, t ProductType, count int) Action {
	return Action{Kind: ActionDeliver, Drone: drone, Target: order, Product: t, Count: count}
}

// Wait builds a command idling the drone for turns.
func Wait(drone, turns int) Action {
	return Action{Kind: ActionWait, Drone: drone, Turns: turns}
}

// String renders the command line, e.g. "0 L 1 2 3".
func (a Action) String() string {
	switch a.Kind {
	case ActionLoad, ActionUnload:
		return formatTransfer(a)
	case ActionDeliver:
		return formatDeliver(a)
	case ActionWait:
		return formatWait(a)
	}
	return fmt.Sprintf("%d ? %d", a.Drone, a.Kind)
}

func formatTransfer(a Action) string {
	return fmt.Sprintf("%d %s %d %d %d", a.Drone, a.Kind.Code(), a.Target, a.Product, a.Count)
}

func formatDeliver(a Action) string {
	return fmt.Sprintf("%d D %d %d %d", a.Drone, a.Target, a.Product, a.Count)
}

func formatWait(a Action) string {
	return fmt.Sprintf("%d W %d", a.Drone, a.Turns)
}
