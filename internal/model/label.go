package model

import (
	"github.com/rotisserie/eris"
)

// ClusterLabel is the quadrant classification of a flow. The zero value is NS.
type ClusterLabel uint8

const (
	LabelNS ClusterLabel = iota
	LabelHH
	LabelHL
	LabelLH
	LabelLL
)

// Labels lists every label in reporting order.
var Labels = []ClusterLabel{LabelHH, LabelHL, LabelLH, LabelLL, LabelNS}

// SignificantLabels lists the quadrant labels, excluding NS.
var SignificantLabels = []ClusterLabel{LabelHH, LabelHL, LabelLH, LabelLL}

var labelNames = [...]string{"NS", "HH", "HL", "LH", "LL"}

func (l ClusterLabel) String() string {
	if int(l) < len(labelNames) {
		return labelNames[l]
	}
	return "NS"
}

// Significant reports whether the label is one of the four quadrants.
func (l ClusterLabel) Significant() bool { return l != LabelNS }

// Quadrant classifies an observation by the sign of its own value and of its lag.
// Zero counts as high on both axes.
func Quadrant(own, lag float64) ClusterLabel {
	switch {
	case own >= 0 && lag >= 0:
		return LabelHH
	case own >= 0:
		return LabelHL
	case lag >= 0:
		return LabelLH
	default:
		return LabelLL
	}
}

// ParseLabel converts the textual form back to a label.
func ParseLabel(s string) (ClusterLabel, error) {
	for i, name := range labelNames {
		if name == s {
			return ClusterLabel(i), nil
		}
	}
	return LabelNS, eris.Errorf("model: unknown cluster label %q", s)
}

func (l ClusterLabel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *ClusterLabel) UnmarshalText(b []byte) error {
	parsed, err := ParseLabel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
