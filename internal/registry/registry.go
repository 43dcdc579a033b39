// Package registry holds the fixed set of geographic units and their centroids.
package registry

import (
	"sort"

	"github.com/paulmach/orb"

	"github.com/sells-group/flowlisa/internal/model"
)

// Registry is an immutable id → unit lookup. Ids are dense and 1-based.
type Registry struct {
	units  []model.SpatialUnit
	byCode map[string]int
}

// New validates units and builds a Registry. Units may arrive in any order.
func New(units []model.SpatialUnit) (*Registry, error) {
	if len(units) == 0 {
		return nil, model.NewConfigurationError(-1, "registry: no spatial units")
	}

	sorted := make([]model.SpatialUnit, len(units))
	copy(sorted, units)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	byCode := make(map[string]int, len(sorted))
	for i, u := range sorted {
		if u.ID != i+1 {
			return nil, model.NewDataIntegrityError(-1, "registry: unit ids must be dense 1..%d, found %d at position %d", len(sorted), u.ID, i+1)
		}
		if !u.HasCentroid() {
			return nil, model.NewDataIntegrityError(-1, "registry: unit %d has no resolvable centroid", u.ID)
		}
		if u.Code != "" {
			byCode[u.Code] = u.ID
		}
	}

	return &Registry{units: sorted, byCode: byCode}, nil
}

// Len returns the number of units.
func (r *Registry) Len() int { return len(r.units) }

// Contains reports whether id names a unit.
func (r *Registry) Contains(id int) bool { return id >= 1 && id <= len(r.units) }

// Unit returns the unit with the given public id.
func (r *Registry) Unit(id int) (model.SpatialUnit, bool) {
	if !r.Contains(id) {
		return model.SpatialUnit{}, false
	}
	return r.units[id-1], true
}

// ByCode resolves an administrative code to a unit id.
func (r *Registry) ByCode(code string) (int, bool) {
	id, ok := r.byCode[code]
	return id, ok
}

// Units returns a copy of the units ordered by id.
func (r *Registry) Units() []model.SpatialUnit {
	out := make([]model.SpatialUnit, len(r.units))
	copy(out, r.units)
	return out
}

// Points returns the centroids ordered by id.
func (r *Registry) Points() []orb.Point {
	out := make([]orb.Point, len(r.units))
	for i, u := range r.units {
		out[i] = orb.Point{u.X, u.Y}
	}
	return out
}

// Bound returns the bounding box of all centroids.
func (r *Registry) Bound() orb.Bound {
	return orb.MultiPoint(r.Points()).Bound()
}
