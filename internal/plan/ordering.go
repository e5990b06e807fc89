package plan

import (
	"math/rand"

	"dronenav/internal/opt"
)

// Ordering decides the sequence in which orders reach the planner. It must
// return a new slice and leave its input untouched.
type Ordering func([]opt.Order) []opt.Order

// InputOrder keeps the orders as given.
func InputOrder(orders []opt.Order) []opt.Order {
	return append([]opt.Order(nil), orders...)
}

// Shuffled returns a uniformly random permutation drawn from seed. The same
// seed always yields the same sequence for the same input.
func Shuffled(seed int64) Ordering {
	return func(orders []opt.Order) []opt.Order {
		out := append([]opt.Order(nil), orders...)
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		return out
	}
}
