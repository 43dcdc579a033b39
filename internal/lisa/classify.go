// Package lisa classifies OD flows with the bivariate flow LISA and sweeps
// the classification across neighborhood sizes.
package lisa

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/flowlisa/internal/flow"
	"github.com/sells-group/flowlisa/internal/model"
)

// DefaultThreshold is the two-tailed 99% z cutoff.
const DefaultThreshold = 2.58

type branchResult struct {
	ind   []model.Indicator
	label []model.ClusterLabel
	gated []model.ClusterLabel
}

// Classify builds the per-flow result table for one k from precomputed lags.
// The population branch pairs Zpop with pay_lag; the payment branch pairs
// Zpay with pop_lag.
func Classify(k int, table *model.FlowTable, lags *flow.Lags, threshold float64) (*model.KResult, error) {
	m := table.Len()
	if len(lags.Pay) != m || len(lags.Pop) != m {
		return nil, model.NewDataIntegrityError(-1, "lisa: %d lags for %d flows", len(lags.Pay), m)
	}

	pop, undefPop, err := classifyBranch(k, model.AttributePop, table.Values(model.AttributePop), lags.Pay, threshold)
	if err != nil {
		return nil, err
	}
	pay, undefPay, err := classifyBranch(k, model.AttributePay, table.Values(model.AttributePay), lags.Pop, threshold)
	if err != nil {
		return nil, err
	}

	res := &model.KResult{
		Period:    table.Period,
		K:         k,
		Threshold: threshold,
		Flows:     make([]model.FlowResult, m),
		Undefined: append(undefPop, undefPay...),
	}
	for i := range res.Flows {
		res.Flows[i] = model.FlowResult{
			Index:   i,
			Flow:    table.Flows[i],
			PayLag:  lags.Pay[i],
			PopLag:  lags.Pop[i],
			BiFlPay: pay.ind[i],
			BiFlPop: pop.ind[i],
			ValueP:  pop.label[i],
			ValueP2: pop.gated[i],
			ValueY:  pay.label[i],
			ValueY2: pay.gated[i],
		}
	}
	return res, nil
}

// classifyBranch computes (own*lag)/own^2, standardizes it over the flows
// where it is defined and gates the sign quadrant on |sig| >= threshold.
// Flows with an undefined ratio keep their quadrant but are never significant.
func classifyBranch(k int, attr model.Attribute, own, lag []float64, threshold float64) (*branchResult, []*model.Error, error) {
	m := len(own)
	out := &branchResult{
		ind:   make([]model.Indicator, m),
		label: make([]model.ClusterLabel, m),
		gated: make([]model.ClusterLabel, m),
	}

	var undefined []*model.Error
	defined := make([]float64, 0, m)
	for i := range own {
		out.label[i] = model.Quadrant(own[i], lag[i])

		raw := own[i] * lag[i] / (own[i] * own[i])
		if own[i] == 0 || math.IsNaN(raw) || math.IsInf(raw, 0) {
			undefined = append(undefined, model.NewDivisionByZeroError(k, i, attr))
			continue
		}
		out.ind[i] = model.Indicator{Raw: raw, Defined: true}
		defined = append(defined, raw)
	}

	if len(defined) < 2 {
		return nil, nil, model.NewDegenerateStatisticError(k, attr, "lisa: %d defined indicators, need at least 2", len(defined))
	}
	mean, std := stat.MeanStdDev(defined, nil)
	if std == 0 || math.IsNaN(std) || math.IsInf(std, 0) {
		return nil, nil, model.NewDegenerateStatisticError(k, attr, "lisa: indicator standard deviation is %v", std)
	}

	for i := range out.ind {
		if !out.ind[i].Defined {
			continue
		}
		sig := (out.ind[i].Raw - mean) / std
		out.ind[i].Sig = sig
		if math.Abs(sig) >= threshold {
			out.gated[i] = out.label[i]
		}
	}
	return out, undefined, nil
}
