package registry

import (
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"

	"github.com/sells-group/flowlisa/internal/model"
)

// ReadGeoJSON reads one unit per feature of a FeatureCollection.
func ReadGeoJSON(path string, opts LoadOptions) ([]model.SpatialUnit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read geojson %s", path)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: decode geojson %s", path)
	}

	units := make([]model.SpatialUnit, 0, len(fc.Features))
	for i, f := range fc.Features {
		rawID := ""
		if opts.IDField != "" {
			v, ok := f.Properties[opts.IDField]
			if !ok {
				return nil, model.NewConfigurationError(-1, "registry: feature %d has no property %q", i, opts.IDField)
			}
			rawID = fmt.Sprint(v)
		}
		id, err := parseID(rawID, opts.IDField, i+1)
		if err != nil {
			return nil, err
		}

		c, ok := geometryCentroid(f.Geometry)
		if !ok {
			return nil, model.NewDataIntegrityError(-1, "registry: feature %d (unit %d) has no resolvable centroid", i, id)
		}

		units = append(units, model.SpatialUnit{
			ID:   id,
			Code: stringProp(f.Properties, opts.CodeField),
			Name: stringProp(f.Properties, opts.NameField),
			X:    c[0],
			Y:    c[1],
		})
	}
	return units, nil
}

func geometryCentroid(g orb.Geometry) (orb.Point, bool) {
	switch g := g.(type) {
	case nil:
		return orb.Point{}, false
	case orb.Point:
		return g, true
	case orb.Polygon, orb.MultiPolygon:
		c, area := planar.CentroidArea(g)
		return c, area != 0
	default:
		return orb.Point{}, false
	}
}

func stringProp(props geojson.Properties, key string) string {
	if key == "" {
		return ""
	}
	v, ok := props[key]
	if !ok || v == nil {
		return ""
	}
	// JSON numbers decode as float64; keep integral codes free of exponents.
	if f, isFloat := v.(float64); isFloat && f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprint(v)
}
