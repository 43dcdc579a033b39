package flow

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/flowlisa/internal/model"
)

// Method selects the lag computation strategy.
type Method string

const (
	// MethodAlgebraic aggregates at unit level with matrix products.
	MethodAlgebraic Method = "algebraic"
	// MethodPairwise scans every flow pair.
	MethodPairwise Method = "pairwise"
)

// ParseMethod validates a lag method name.
func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case MethodAlgebraic, MethodPairwise:
		return m, nil
	case "":
		return MethodAlgebraic, nil
	default:
		return "", eris.Errorf("flow: unknown lag method %q", s)
	}
}

// Lags holds the spatial lag of each attribute for every flow: the sum of that
// attribute over the flow's neighbor set, self included.
type Lags struct {
	Pay []float64
	Pop []float64
}

// Of returns the lag slice for attr.
func (l *Lags) Of(attr model.Attribute) []float64 {
	if attr == model.AttributePop {
		return l.Pop
	}
	return l.Pay
}

// LagOptions configures ComputeLags.
type LagOptions struct {
	Method      Method
	Concurrency int
}

// ComputeLags computes both attribute lags from one neighborhood pass.
func ComputeLags(ctx context.Context, r *Resolver, table *model.FlowTable, opts LagOptions) (*Lags, error) {
	if r.Len() != table.Len() {
		return nil, model.NewDataIntegrityError(-1, "flow: resolver has %d flows, table has %d", r.Len(), table.Len())
	}

	pay := table.Values(model.AttributePay)
	pop := table.Values(model.AttributePop)

	var (
		lags *Lags
		err  error
	)
	switch opts.Method {
	case MethodPairwise:
		lags, err = pairwiseLags(ctx, r, pay, pop, opts.Concurrency)
	case MethodAlgebraic, "":
		lags = &Lags{
			Pay: algebraicLag(r, pay),
			Pop: algebraicLag(r, pop),
		}
	default:
		return nil, eris.Errorf("flow: unknown lag method %q", opts.Method)
	}
	if err != nil {
		return nil, err
	}

	zap.L().Debug("flow: computed lags",
		zap.String("period", table.Period),
		zap.Int("k", r.K()),
		zap.Int("flows", table.Len()),
		zap.String("method", string(opts.Method)),
	)
	return lags, nil
}

// algebraicLag evaluates the masked neighbor sum without touching flow pairs.
// With A the 0/1 unit adjacency, S_o and S_d the per-unit sums of z over
// flows leaving and entering each unit, and T the origin x destination sum
// of z, inclusion-exclusion over "origins adjacent" and "destinations
// adjacent" gives
//
//	lag_i = (A S_o)[o_i] + (A S_d)[d_i] - (A T A')[o_i, d_i]
func algebraicLag(r *Resolver, z []float64) []float64 {
	adj := r.adj.Matrix()
	n := r.adj.Size()

	so := mat.NewVecDense(n, nil)
	sd := mat.NewVecDense(n, nil)
	t := mat.NewDense(n, n, nil)
	for j, v := range z {
		o, d := r.origins[j], r.dests[j]
		so.SetVec(o, so.AtVec(o)+v)
		sd.SetVec(d, sd.AtVec(d)+v)
		t.Set(o, d, t.At(o, d)+v)
	}

	var byOrigin, byDest mat.VecDense
	byOrigin.MulVec(adj, so)
	byDest.MulVec(adj, sd)

	var tat, both mat.Dense
	tat.Mul(t, adj.T())
	both.Mul(adj, &tat)

	out := make([]float64, len(z))
	for i := range z {
		o, d := r.origins[i], r.dests[i]
		out[i] = byOrigin.AtVec(o) + byDest.AtVec(d) - both.At(o, d)
	}
	return out
}

// pairwiseLags scans each flow's row of the implicit flow adjacency, split
// into chunks across workers.
func pairwiseLags(ctx context.Context, r *Resolver, pay, pop []float64, concurrency int) (*Lags, error) {
	m := r.Len()
	if concurrency < 1 {
		concurrency = 1
	}
	out := &Lags{Pay: make([]float64, m), Pop: make([]float64, m)}

	chunk := (m + concurrency - 1) / concurrency
	if chunk == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for start := 0; start < m; start += chunk {
		lo, hi := start, min(start+chunk, m)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return eris.Wrapf(err, "flow: lag rows %d-%d", lo, hi)
				}
				var sp, sq float64
				for j := 0; j < m; j++ {
					if r.IsNeighbor(i, j) {
						sp += pay[j]
						sq += pop[j]
					}
				}
				out.Pay[i] = sp
				out.Pop[i] = sq
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
