package flow

import (
	"context"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/flowlisa/internal/model"
	"github.com/sells-group/flowlisa/internal/registry"
	"github.com/sells-group/flowlisa/internal/weights"
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

// rectangle: 1-2 on the bottom row, 3-4 two units above, so k=1 pairs
// each unit with its horizontal neighbor.
func rectangle(t *testing.T) *registry.Registry {
	return newRegistry(t, [2]float64{0, 0}, [2]float64{1, 0}, [2]float64{0, 2}, [2]float64{1, 2})
}

func adjacency(t *testing.T, reg *registry.Registry, k int) *weights.AdjacencyMatrix {
	t.Helper()
	adj, err := weights.NewBuilder(weights.IndexBrute).Build(reg, k)
	require.NoError(t, err)
	return adj
}

func table(flows ...model.FlowRecord) *model.FlowTable {
	return &model.FlowTable{Period: "202203", Flows: flows}
}

func bothMethods(t *testing.T, r *Resolver, tbl *model.FlowTable) []*Lags {
	t.Helper()
	var out []*Lags
	for _, m := range []Method{MethodAlgebraic, MethodPairwise} {
		lags, err := ComputeLags(context.Background(), r, tbl, LagOptions{Method: m, Concurrency: 2})
		require.NoError(t, err, m)
		out = append(out, lags)
	}
	return out
}

func TestResolver_SelfAndDisjointPairs(t *testing.T) {
	reg := rectangle(t)
	tbl := table(
		model.FlowRecord{Origin: 1, Destination: 2, Zpay: 2.0, Zpop: 1.0},
		model.FlowRecord{Origin: 3, Destination: 4, Zpay: -1.0, Zpop: -0.5},
	)
	r, err := NewResolver(adjacency(t, reg, 1), tbl)
	require.NoError(t, err)

	assert.True(t, r.IsNeighbor(0, 0))
	assert.True(t, r.IsNeighbor(1, 1))
	assert.False(t, r.IsNeighbor(0, 1))
	assert.Equal(t, []int{0}, r.Neighbors(0))

	for _, lags := range bothMethods(t, r, tbl) {
		assert.InDelta(t, 2.0, lags.Pay[0], 1e-12)
		assert.InDelta(t, 1.0, lags.Pop[0], 1e-12)
		assert.InDelta(t, -1.0, lags.Pay[1], 1e-12)
		assert.InDelta(t, -0.5, lags.Of(model.AttributePop)[1], 1e-12)
	}
}

func TestResolver_OriginOrDestinationAdjacency(t *testing.T) {
	reg := rectangle(t)
	tbl := table(
		model.FlowRecord{Origin: 1, Destination: 3, Zpay: 1, Zpop: 1},   // A
		model.FlowRecord{Origin: 2, Destination: 4, Zpay: 10, Zpop: 2},  // B: both ends adjacent to A
		model.FlowRecord{Origin: 2, Destination: 2, Zpay: 100, Zpop: 3}, // C: origin adjacent to A only
		model.FlowRecord{Origin: 3, Destination: 2, Zpay: 1000, Zpop: 4}, // D: neither end adjacent to A
	)
	r, err := NewResolver(adjacency(t, reg, 1), tbl)
	require.NoError(t, err)

	assert.True(t, r.IsNeighbor(0, 1))
	assert.True(t, r.IsNeighbor(0, 2))
	assert.False(t, r.IsNeighbor(0, 3))
	// C and D share a destination.
	assert.True(t, r.IsNeighbor(3, 2))
	assert.False(t, r.IsNeighbor(3, 1))

	for _, lags := range bothMethods(t, r, tbl) {
		// B counted once even though both ends match.
		assert.InDelta(t, 111.0, lags.Pay[0], 1e-9)
		assert.InDelta(t, 6.0, lags.Pop[0], 1e-9)
	}
}

func TestComputeLags_AlgebraicMatchesPairwise(t *testing.T) {
	var pts [][2]float64
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			pts = append(pts, [2]float64{float64(x), float64(y) * 1.1})
		}
	}
	reg := newRegistry(t, pts...)
	rng := rand.New(rand.NewPCG(7, 11))

	var flows []model.FlowRecord
	for i := 0; i < 120; i++ {
		flows = append(flows, model.FlowRecord{
			Origin:      rng.IntN(reg.Len()) + 1,
			Destination: rng.IntN(reg.Len()) + 1,
			Zpay:        rng.NormFloat64(),
			Zpop:        rng.NormFloat64(),
		})
	}
	tbl := table(flows...)

	for _, k := range []int{1, 3, 8} {
		r, err := NewResolver(adjacency(t, reg, k), tbl)
		require.NoError(t, err)
		got := bothMethods(t, r, tbl)
		alg, pw := got[0], got[1]
		for i := range flows {
			assert.InDelta(t, pw.Pay[i], alg.Pay[i], 1e-9, "k=%d flow=%d", k, i)
			assert.InDelta(t, pw.Pop[i], alg.Pop[i], 1e-9, "k=%d flow=%d", k, i)
		}
	}
}

func TestComputeLags_Cancelled(t *testing.T) {
	reg := rectangle(t)
	tbl := table(model.FlowRecord{Origin: 1, Destination: 2, Zpay: 1, Zpop: 1})
	r, err := NewResolver(adjacency(t, reg, 1), tbl)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ComputeLags(ctx, r, tbl, LagOptions{Method: MethodPairwise, Concurrency: 1})
	assert.Error(t, err)
}

func TestNewResolver_UnitOutsideAdjacency(t *testing.T) {
	reg := rectangle(t)
	tbl := table(
		model.FlowRecord{Origin: 1, Destination: 2},
		model.FlowRecord{Origin: 1, Destination: 9},
	)
	_, err := NewResolver(adjacency(t, reg, 1), tbl)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindDataIntegrity))
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("")
	require.NoError(t, err)
	assert.Equal(t, MethodAlgebraic, m)

	m, err = ParseMethod("pairwise")
	require.NoError(t, err)
	assert.Equal(t, MethodPairwise, m)

	_, err = ParseMethod("dense")
	assert.Error(t, err)
}

func TestRead_CanonicalTable(t *testing.T) {
	in := "O,D,num_x,num_y,Zpay_P,Zpop_P\n" +
		"35570,35060,1,2,0.5,-0.25\n" +
		"35060,35570,2.0,1.0,-1.5,1e-3\n"
	tbl, err := Read(context.Background(), strings.NewReader(in), LoadOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())

	assert.Equal(t, model.FlowRecord{Origin: 1, Destination: 2, Zpay: 0.5, Zpop: -0.25, OriginCode: "35570", DestCode: "35060"}, tbl.Flows[0])
	assert.Equal(t, 2, tbl.Flows[1].Origin)
	assert.InDelta(t, 0.001, tbl.Flows[1].Zpop, 1e-15)
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		kind model.ErrorKind
	}{
		{"missing column", "num_x,num_y,Zpay_P\n1,2,0\n", model.KindConfiguration},
		{"bad id", "num_x,num_y,Zpay_P,Zpop_P\n1.5,2,0,0\n", model.KindDataIntegrity},
		{"nan value", "num_x,num_y,Zpay_P,Zpop_P\n1,2,NaN,0\n", model.KindDataIntegrity},
		{"short row", "num_x,num_y,Zpay_P,Zpop_P\n1,2,0\n", model.KindDataIntegrity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(context.Background(), strings.NewReader(tt.in), LoadOptions{})
			require.Error(t, err)
			assert.True(t, model.IsKind(err, tt.kind), err.Error())
		})
	}
}

func TestValidate(t *testing.T) {
	reg := rectangle(t)

	err := Validate(table(), reg)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindConfiguration))

	err = Validate(table(model.FlowRecord{Origin: 1, Destination: 2}, model.FlowRecord{Origin: 5, Destination: 2}), reg)
	require.Error(t, err)
	var me *model.Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, model.KindDataIntegrity, me.Kind)
	assert.Equal(t, 1, me.FlowIndex)

	assert.NoError(t, Validate(table(model.FlowRecord{Origin: 4, Destination: 3}), reg))
}

func TestPathFor(t *testing.T) {
	assert.Equal(t, "./pay_pop_202203.csv", PathFor("./pay_pop_{period}.csv", "202203"))
}
