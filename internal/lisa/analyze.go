package lisa

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/flowlisa/internal/flow"
	"github.com/sells-group/flowlisa/internal/model"
	"github.com/sells-group/flowlisa/internal/registry"
	"github.com/sells-group/flowlisa/internal/weights"
)

// Options configures an analysis run.
type Options struct {
	KMin      int
	KMax      int
	Threshold float64
	Branch    model.Branch

	Index       weights.Index
	LagMethod   flow.Method
	Concurrency int // concurrent (period, k) passes
}

// DefaultOptions returns the k = 1..10 sweep at the 99% threshold on the payment branch.
func DefaultOptions() Options {
	return Options{
		KMin:        1,
		KMax:        10,
		Threshold:   DefaultThreshold,
		Branch:      model.BranchPay,
		Index:       weights.IndexBrute,
		LagMethod:   flow.MethodAlgebraic,
		Concurrency: 4,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Threshold == 0 {
		o.Threshold = d.Threshold
	}
	if o.Branch == "" {
		o.Branch = d.Branch
	}
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	return o
}

// Analyze runs one (period, k) pass: build the unit adjacency, lift it to
// flows, compute both lags once and classify both branches.
func Analyze(ctx context.Context, reg *registry.Registry, table *model.FlowTable, k int, opts Options) (*model.KResult, error) {
	opts = opts.withDefaults()

	adj, err := weights.NewBuilder(opts.Index).Build(reg, k)
	if err != nil {
		return nil, err
	}
	if err := flow.Validate(table, reg); err != nil {
		return nil, err
	}
	res, err := analyzeWith(ctx, adj, table, opts, 1)
	if err != nil {
		return nil, err
	}
	logUndefined(res)
	return res, nil
}

func analyzeWith(ctx context.Context, adj *weights.AdjacencyMatrix, table *model.FlowTable, opts Options, lagWorkers int) (*model.KResult, error) {
	resolver, err := flow.NewResolver(adj, table)
	if err != nil {
		return nil, err
	}
	lags, err := flow.ComputeLags(ctx, resolver, table, flow.LagOptions{Method: opts.LagMethod, Concurrency: lagWorkers})
	if err != nil {
		return nil, err
	}
	return Classify(adj.K(), table, lags, opts.Threshold)
}

func logUndefined(res *model.KResult) {
	for _, e := range res.Undefined {
		zap.L().Warn("lisa: undefined indicator",
			zap.String("period", res.Period),
			zap.Int("k", e.K),
			zap.Int("flow", e.FlowIndex),
			zap.String("attribute", e.Attribute),
		)
	}
}

// SensitivityResult collects every completed pass of a sweep.
type SensitivityResult struct {
	Branch  model.Branch
	Results []*model.KResult // sorted by period, then k
	Skipped []model.SkippedK
}

// Records tabulates the sweep on its branch.
func (s *SensitivityResult) Records() []model.SensitivityRecord {
	return Aggregate(s.Results, s.Branch)
}

// Histogram expands the sweep's significant flows.
func (s *SensitivityResult) Histogram() []model.HistogramRow {
	return HistogramRows(s.Results, s.Branch)
}

// CheckRange validates a k sweep against a registry of n units.
func CheckRange(kMin, kMax, n int) error {
	if kMin < 1 {
		return model.NewConfigurationError(kMin, "lisa: k_min must be at least 1")
	}
	if kMax < kMin {
		return model.NewConfigurationError(kMax, "lisa: k_max %d is below k_min %d", kMax, kMin)
	}
	if kMax > n-1 {
		return model.NewConfigurationError(kMax, "lisa: k_max must be at most %d for %d units", n-1, n)
	}
	return nil
}

// RunSensitivity runs every (period, k) pass of the sweep. Configuration and
// data integrity errors abort the sweep; a degenerate statistic skips only
// its pass.
func RunSensitivity(ctx context.Context, reg *registry.Registry, tables []*model.FlowTable, opts Options) (*SensitivityResult, error) {
	opts = opts.withDefaults()
	log := zap.L().With(zap.Int("k_min", opts.KMin), zap.Int("k_max", opts.KMax))

	if len(tables) == 0 {
		return nil, model.NewConfigurationError(-1, "lisa: no periods to analyze")
	}
	if err := CheckRange(opts.KMin, opts.KMax, reg.Len()); err != nil {
		return nil, err
	}
	for _, t := range tables {
		if err := flow.Validate(t, reg); err != nil {
			return nil, eris.Wrapf(err, "lisa: period %s", t.Period)
		}
	}

	// Adjacency depends only on k, so it is shared across periods.
	builder := weights.NewBuilder(opts.Index)
	adjs := make(map[int]*weights.AdjacencyMatrix, opts.KMax-opts.KMin+1)
	for k := opts.KMin; k <= opts.KMax; k++ {
		adj, err := builder.Build(reg, k)
		if err != nil {
			return nil, err
		}
		adjs[k] = adj
	}

	type pass struct {
		table *model.FlowTable
		k     int
	}
	var passes []pass
	for _, t := range tables {
		for k := opts.KMin; k <= opts.KMax; k++ {
			passes = append(passes, pass{table: t, k: k})
		}
	}

	results := make([]*model.KResult, len(passes))
	var (
		mu      sync.Mutex
		skipped []model.SkippedK
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, p := range passes {
		g.Go(func() error {
			res, err := analyzeWith(gctx, adjs[p.k], p.table, opts, 1)
			if model.IsKind(err, model.KindDegenerateStatistic) {
				log.Warn("lisa: skipping k",
					zap.String("period", p.table.Period),
					zap.Int("k", p.k),
					zap.Error(err),
				)
				mu.Lock()
				skipped = append(skipped, model.SkippedK{Period: p.table.Period, K: p.k, Reason: err.Error()})
				mu.Unlock()
				return nil
			}
			if err != nil {
				return eris.Wrapf(err, "lisa: period %s k=%d", p.table.Period, p.k)
			}

			logUndefined(res)
			log.Info("lisa: k complete",
				zap.String("period", res.Period),
				zap.Int("k", res.K),
				zap.Int("flows", len(res.Flows)),
				zap.Int("undefined", len(res.Undefined)),
			)
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &SensitivityResult{Branch: opts.Branch}
	for _, r := range results {
		if r != nil {
			out.Results = append(out.Results, r)
		}
	}
	sortResults(out.Results)
	slices.SortFunc(skipped, func(a, b model.SkippedK) int {
		return cmp.Or(cmp.Compare(a.Period, b.Period), cmp.Compare(a.K, b.K))
	})
	out.Skipped = skipped
	return out, nil
}

func sortResults(rs []*model.KResult) {
	slices.SortFunc(rs, func(a, b *model.KResult) int {
		return cmp.Or(cmp.Compare(a.Period, b.Period), cmp.Compare(a.K, b.K))
	})
}
