package model

import "math"

// SpatialUnit is one administrative polygon reduced to its public id and centroid.
// Ids are 1-based and dense; internally units are addressed at id-1.
type SpatialUnit struct {
	ID   int     `json:"id"`
	Code string  `json:"code,omitempty"`
	Name string  `json:"name,omitempty"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// Index returns the 0-based matrix position of the unit.
func (u SpatialUnit) Index() int { return u.ID - 1 }

// HasCentroid reports whether both coordinates are finite.
func (u SpatialUnit) HasCentroid() bool {
	return !math.IsNaN(u.X) && !math.IsNaN(u.Y) && !math.IsInf(u.X, 0) && !math.IsInf(u.Y, 0)
}
