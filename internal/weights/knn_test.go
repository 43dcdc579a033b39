package weights

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/flowlisa/internal/model"
	"github.com/sells-group/flowlisa/internal/registry"
)

func newRegistry(t *testing.T, pts ...[2]float64) *registry.Registry {
	t.Helper()
	units := make([]model.SpatialUnit, len(pts))
	for i, p := range pts {
		units[i] = model.SpatialUnit{ID: i + 1, X: p[0], Y: p[1]}
	}
	reg, err := registry.New(units)
	require.NoError(t, err)
	return reg
}

// rectangle: 1 and 2 share a row, 3 and 4 share a row two units above.
func rectangle(t *testing.T) *registry.Registry {
	return newRegistry(t, [2]float64{0, 0}, [2]float64{1, 0}, [2]float64{0, 2}, [2]float64{1, 2})
}

func grid(t *testing.T, side int) *registry.Registry {
	var pts [][2]float64
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			pts = append(pts, [2]float64{float64(x), float64(y)})
		}
	}
	return newRegistry(t, pts...)
}

func TestBuild_HorizontalPairsAtK1(t *testing.T) {
	for _, idx := range []Index{IndexBrute, IndexQuadtree} {
		t.Run(string(idx), func(t *testing.T) {
			adj, err := NewBuilder(idx).Build(rectangle(t), 1)
			require.NoError(t, err)

			assert.Equal(t, 1, adj.K())
			assert.Equal(t, 4, adj.Size())
			assert.Equal(t, []int{0, 1}, adj.Neighbors(0))
			assert.Equal(t, []int{0, 1}, adj.Neighbors(1))
			assert.Equal(t, []int{2, 3}, adj.Neighbors(2))
			assert.Equal(t, []int{2, 3}, adj.Neighbors(3))
			assert.False(t, adj.Adjacent(0, 2))
			assert.False(t, adj.Adjacent(1, 3))
		})
	}
}

func TestBuild_DiagonalAlwaysSet(t *testing.T) {
	reg := grid(t, 4)
	for k := 1; k < reg.Len(); k++ {
		adj, err := NewBuilder(IndexBrute).Build(reg, k)
		require.NoError(t, err)
		for i := 0; i < adj.Size(); i++ {
			require.True(t, adj.Adjacent(i, i), "k=%d unit=%d", k, i)
			// k others plus self.
			require.Len(t, adj.Neighbors(i), k+1)
		}
	}
}

func TestBuild_KOutOfRange(t *testing.T) {
	reg := rectangle(t)
	for _, k := range []int{0, -1, 4, 10} {
		adj, err := NewBuilder(IndexBrute).Build(reg, k)
		require.Error(t, err, "k=%d", k)
		assert.Nil(t, adj)
		assert.True(t, model.IsKind(err, model.KindConfiguration))
	}
}

func TestBuild_DuplicateCentroid(t *testing.T) {
	reg := newRegistry(t, [2]float64{0, 0}, [2]float64{1, 1}, [2]float64{0, 0})
	_, err := NewBuilder(IndexBrute).Build(reg, 1)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindConfiguration))
	assert.Contains(t, err.Error(), "units 1 and 3")
}

func TestBuild_Asymmetric(t *testing.T) {
	reg := newRegistry(t, [2]float64{0, 0}, [2]float64{1, 0}, [2]float64{3, 0})
	adj, err := NewBuilder(IndexBrute).Build(reg, 1)
	require.NoError(t, err)

	assert.True(t, adj.Adjacent(2, 1), "3 picks 2 as nearest")
	assert.False(t, adj.Adjacent(1, 2), "2 picks 1, not 3")
	assert.False(t, adj.IsSymmetric())

	sym := adj.Symmetrize()
	assert.True(t, sym.IsSymmetric())
	assert.True(t, sym.Adjacent(1, 2))
	assert.Equal(t, 1, sym.K())
}

func TestBuild_TiesBreakByLowerID(t *testing.T) {
	// Unit 1 at the center; 2..5 all at distance 1.
	reg := newRegistry(t, [2]float64{0, 0}, [2]float64{0, 1}, [2]float64{1, 0}, [2]float64{0, -1}, [2]float64{-1, 0})
	adj, err := NewBuilder(IndexBrute).Build(reg, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, adj.Neighbors(0))
}

func TestBuild_QuadtreeMatchesBrute(t *testing.T) {
	reg := grid(t, 6)
	for k := 1; k <= 10; k++ {
		brute, err := NewBuilder(IndexBrute).Build(reg, k)
		require.NoError(t, err)
		quad, err := NewBuilder(IndexQuadtree).Build(reg, k)
		require.NoError(t, err)

		for i := 0; i < reg.Len(); i++ {
			require.Equal(t, brute.Neighbors(i), quad.Neighbors(i), "k=%d unit=%d", k, i+1)
		}
	}
}

func TestBuild_NeighborSetsGrowWithK(t *testing.T) {
	reg := newRegistry(t,
		[2]float64{0, 0}, [2]float64{1.1, 0.2}, [2]float64{2.3, 1.7}, [2]float64{0.4, 3.1},
		[2]float64{4.2, 0.9}, [2]float64{3.3, 3.6}, [2]float64{5.8, 2.2},
	)
	prev, err := NewBuilder(IndexBrute).Build(reg, 1)
	require.NoError(t, err)
	for k := 2; k < reg.Len(); k++ {
		next, err := NewBuilder(IndexBrute).Build(reg, k)
		require.NoError(t, err)
		for i := 0; i < reg.Len(); i++ {
			for _, j := range prev.Neighbors(i) {
				assert.True(t, next.Adjacent(i, j), "k=%d lost %d→%d", k, i, j)
			}
		}
		prev = next
	}
}

func TestParseIndex(t *testing.T) {
	idx, err := ParseIndex("")
	require.NoError(t, err)
	assert.Equal(t, IndexBrute, idx)

	idx, err = ParseIndex("quadtree")
	require.NoError(t, err)
	assert.Equal(t, IndexQuadtree, idx)

	_, err = ParseIndex("rtree")
	assert.Error(t, err)
}
