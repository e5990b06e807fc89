package opt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProductsConstructors(t *testing.T) {
	require.Equal(t, Products{0: 2, 3: 1}, ProductsFromList([]ProductType{3, 0, 0}))
	require.Equal(t, Products{0: 5, 1: 1}, ProductsFromCounts([]int{5, 1, 0}))
	require.True(t, ProductsFromList(nil).Empty())
}

func TestIntersectMinDropsZeros(t *testing.T) {
	a := Products{0: 2, 1: 4, 2: 1}
	b := Products{1: 3, 2: 0, 5: 9}
	got := IntersectMin(a, b)
	require.Equal(t, Products{1: 3}, got)
	require.Equal(t, got, IntersectMin(b, a))
}

func TestSubtractClampsAtZero(t *testing.T) {
	a := Products{0: 2, 1: 4}
	got := Subtract(a, Products{0: 5, 1: 1, 7: 3})
	require.Equal(t, Products{1: 3}, got)
	require.Equal(t, Products{0: 2, 1: 4}, a, "inputs are not mutated")
}

func TestEmptyIgnoresZeroEntries(t *testing.T) {
	require.True(t, Products{}.Empty())
	require.True(t, Products{1: 0}.Empty())
	require.False(t, Products{1: 0, 2: 1}.Empty())
}

func TestTypesAscending(t *testing.T) {
	p := Products{9: 1, 2: 3, 0: 0, 5: 2}
	require.Equal(t, []ProductType{2, 5, 9}, p.Types())
	require.Equal(t, 6, p.Total())
	require.Equal(t, 3*2+2*1+1*4, p.Weight([]int{0, 0, 2, 0, 0, 1, 0, 0, 0, 4}))
}

func TestCloneIsIndependent(t *testing.T) {
	p := Products{1: 2}
	c := p.Clone()
	c[1] = 7
	require.Equal(t, 2, p[1])
}

func TestFirstAppearanceAndInOrder(t *testing.T) {
	seq := FirstAppearance([]ProductType{2, 0, 2, 5, 0})
	require.Equal(t, []ProductType{2, 0, 5}, seq)

	p := Products{0: 1, 2: 3, 4: 1}
	require.Equal(t, []ProductType{2, 0, 4}, p.InOrder(seq), "unlisted types follow in ascending order")
	require.Equal(t, []ProductType{0, 2, 4}, p.InOrder(nil))
}
