package opt

import "math"

// Location is a cell on the integer grid.
type Location struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Distance returns the Euclidean distance between a and b rounded up.
func Distance(a, b Location) int {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	return int(math.Ceil(math.Sqrt(dx*dx + dy*dy)))
}

// TravelTime is the number of turns to fly from a to b and perform one
// load/deliver action on arrival.
func TravelTime(a, b Location) int {
	return Distance(a, b) + 1
}
