package opt

import "sort"

// ProductType indexes the product weight table.
type ProductType int

// Products is a multiset of product counts. Missing keys count as zero and
// operations never store zero or negative counts.
type Products map[ProductType]int

// ProductsFromList counts a flat list of product types, e.g. an order's items.
func ProductsFromList(types []ProductType) Products {
	p := Products{}
	for _, t := range types {
		p[t]++
	}
	return p
}

// FirstAppearance lists the distinct types of an item list in the order they
// first occur.
func FirstAppearance(types []ProductType) []ProductType {
	seen := make(map[ProductType]bool, len(types))
	var out []ProductType
	for _, t := range types {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// ProductsFromCounts builds a multiset from a dense per-type count table,
// e.g. a warehouse stock line.
func ProductsFromCounts(counts []int) Products {
	p := Products{}
	for t, c := range counts {
		if c > 0 {
			p[ProductType(t)] = c
		}
	}
	return p
}

// Clone returns an independent copy without zero entries.
func (p Products) Clone() Products {
	out := make(Products, len(p))
	for t, c := range p {
		if c > 0 {
			out[t] = c
		}
	}
	return out
}

// Empty reports whether no product has a positive count.
func (p Products) Empty() bool {
	for _, c := range p {
		if c > 0 {
			return false
		}
	}
	return true
}

// Types lists the product types with a positive count in ascending order.
func (p Products) Types() []ProductType {
	out := make([]ProductType, 0, len(p))
	for t, c := range p {
		if c > 0 {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// InOrder lists the types with a positive count following seq; types missing
// from seq come after it in ascending order.
func (p Products) InOrder(seq []ProductType) []ProductType {
	out := make([]ProductType, 0, len(p))
	listed := make(map[ProductType]bool, len(seq))
	for _, t := range seq {
		if !listed[t] && p[t] > 0 {
			out = append(out, t)
		}
		listed[t] = true
	}
	for _, t := range p.Types() {
		if !listed[t] {
			out = append(out, t)
		}
	}
	return out
}

// Total is the number of items in the multiset.
func (p Products) Total() int {
	n := 0
	for _, c := range p {
		if c > 0 {
			n += c
		}
	}
	return n
}

// Weight sums count * unit weight over the multiset.
func (p Products) Weight(weights []int) int {
	w := 0
	for t, c := range p {
		if c > 0 {
			w += c * weights[t]
		}
	}
	return w
}

// IntersectMin keeps, per type, the smaller of the two counts.
func IntersectMin(a, b Products) Products {
	out := Products{}
	for t, ca := range a {
		c := ca
		if cb := b[t]; cb < c {
			c = cb
		}
		if c > 0 {
			out[t] = c
		}
	}
	return out
}

// Subtract removes b from a, clamping every count at zero.
func Subtract(a, b Products) Products {
	out := Products{}
	for t, ca := range a {
		if c := ca - b[t]; c > 0 {
			out[t] = c
		}
	}
	return out
}
