package model

// Attribute names a standardized flow attribute.
type Attribute string

const (
	AttributePay Attribute = "Zpay"
	AttributePop Attribute = "Zpop"
)

// Other returns the attribute whose lag drives this attribute's branch.
func (a Attribute) Other() Attribute {
	if a == AttributePay {
		return AttributePop
	}
	return AttributePay
}

// FlowRecord is one OD pair with its standardized payment and population values.
// Row position within a FlowTable is its identity for a computation pass.
type FlowRecord struct {
	Origin      int     `json:"origin_unit"`
	Destination int     `json:"destination_unit"`
	Zpay        float64 `json:"zpay"`
	Zpop        float64 `json:"zpop"`
	OriginCode  string  `json:"origin_code,omitempty"`
	DestCode    string  `json:"destination_code,omitempty"`
}

// Value returns the standardized value for attr.
func (f FlowRecord) Value(attr Attribute) float64 {
	if attr == AttributePay {
		return f.Zpay
	}
	return f.Zpop
}

// FlowTable is the read-only flow set for one analysis period.
type FlowTable struct {
	Period string       `json:"period"`
	Flows  []FlowRecord `json:"flows"`
}

// Len returns the number of flows.
func (t *FlowTable) Len() int { return len(t.Flows) }

// Values returns the attribute column in row order.
func (t *FlowTable) Values(attr Attribute) []float64 {
	out := make([]float64, len(t.Flows))
	for i, f := range t.Flows {
		out[i] = f.Value(attr)
	}
	return out
}
