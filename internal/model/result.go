package model

// Indicator is one branch's bivariate indicator for a flow. Defined is false
// when the driving attribute is zero and the ratio has no value.
type Indicator struct {
	Raw     float64 `json:"raw"`
	Sig     float64 `json:"sig"`
	Defined bool    `json:"defined"`
}

// FlowResult is one row of a per-k result table.
type FlowResult struct {
	Index  int        `json:"flow_index"`
	Flow   FlowRecord `json:"flow"`
	PayLag float64    `json:"pay_lag"`
	PopLag float64    `json:"pop_lag"`

	// BiFlPay is driven by Zpay and pop_lag; BiFlPop by Zpop and pay_lag.
	BiFlPay Indicator `json:"bifl_pay"`
	BiFlPop Indicator `json:"bifl_pop"`

	ValueP  ClusterLabel `json:"value_p"`
	ValueP2 ClusterLabel `json:"value_p2"`
	ValueY  ClusterLabel `json:"value_y"`
	ValueY2 ClusterLabel `json:"value_y2"`
}

// KResult holds every flow's classification for one (period, k) pass.
type KResult struct {
	Period    string       `json:"period"`
	K         int          `json:"k"`
	Threshold float64      `json:"threshold"`
	Flows     []FlowResult `json:"flows"`
	// Undefined lists the per-flow indicator failures recovered as NS.
	Undefined []*Error `json:"-"`
}

// Branch selects which significance-gated label set is published.
type Branch string

const (
	// BranchPay publishes value_Y2 (payment-driven).
	BranchPay Branch = "pay"
	// BranchPop publishes value_P2 (population-driven).
	BranchPop Branch = "pop"
)

// Label returns the gated label of the given branch.
func (r FlowResult) Label(b Branch) ClusterLabel {
	if b == BranchPop {
		return r.ValueP2
	}
	return r.ValueY2
}

// SensitivityRecord is one cell of the aggregate table.
type SensitivityRecord struct {
	Period string       `json:"period"`
	K      int          `json:"k"`
	Label  ClusterLabel `json:"label"`
	Count  int          `json:"count"`
}

// HistogramRow is one significant flow in the long-form stacked histogram table.
type HistogramRow struct {
	Period   string       `json:"period"`
	Category ClusterLabel `json:"category"`
	K        int          `json:"k"`
}

// SkippedK records a (period, k) pass abandoned because of a degenerate statistic.
type SkippedK struct {
	Period string `json:"period"`
	K      int    `json:"k"`
	Reason string `json:"reason"`
}
