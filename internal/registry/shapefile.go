package registry

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"

	"github.com/sells-group/flowlisa/internal/fetcher"
	"github.com/sells-group/flowlisa/internal/model"
)

// ReadShapefile reads one unit per shapefile record. Polygon records are reduced
// to their area-weighted centroid; point records are used as-is.
func ReadShapefile(shpPath string, opts LoadOptions) ([]model.SpatialUnit, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	// Build field name → index map.
	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}
	attr := func(field string) (string, error) {
		if field == "" {
			return "", nil
		}
		idx, ok := fieldIdx[strings.ToLower(field)]
		if !ok {
			return "", model.NewConfigurationError(-1, "registry: shapefile %s has no field %q", shpPath, field)
		}
		val := strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
		return fetcher.DecodeString(val, opts.Encoding)
	}

	var units []model.SpatialUnit
	for reader.Next() {
		n, shape := reader.Shape()

		rawID, err := attr(opts.IDField)
		if err != nil {
			return nil, err
		}
		id, err := parseID(rawID, opts.IDField, n+1)
		if err != nil {
			return nil, err
		}
		code, err := attr(opts.CodeField)
		if err != nil {
			return nil, err
		}
		name, err := attr(opts.NameField)
		if err != nil {
			return nil, err
		}

		c, ok := ShapeCentroid(shape)
		if !ok {
			return nil, model.NewDataIntegrityError(-1, "registry: record %d (unit %d) has no resolvable centroid", n, id)
		}

		units = append(units, model.SpatialUnit{ID: id, Code: code, Name: name, X: c[0], Y: c[1]})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "registry: read shapefile %s", shpPath)
	}

	return units, nil
}

// ShapeCentroid returns the centroid of a point or polygon shape.
func ShapeCentroid(shape shp.Shape) (orb.Point, bool) {
	switch s := shape.(type) {
	case *shp.Point:
		return orb.Point{s.X, s.Y}, true
	case *shp.Polygon:
		mp := polygonToMultiPolygon(s)
		if len(mp) == 0 {
			return orb.Point{}, false
		}
		c, area := planar.CentroidArea(mp)
		if area == 0 {
			return orb.Point{}, false
		}
		return c, true
	default:
		return orb.Point{}, false
	}
}

// polygonToMultiPolygon groups shapefile rings into polygons. Outer rings are
// clockwise; a counter-clockwise ring inside the previous outer ring is its hole.
func polygonToMultiPolygon(p *shp.Polygon) orb.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var mp orb.MultiPolygon
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		var end int32
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		} else {
			end = int32(len(p.Points))
		}
		if end-start < 3 {
			continue
		}

		ring := make(orb.Ring, 0, end-start)
		for j := start; j < end; j++ {
			ring = append(ring, orb.Point{p.Points[j].X, p.Points[j].Y})
		}

		if ring.Orientation() == orb.CCW && len(mp) > 0 {
			outer := mp[len(mp)-1][0]
			if outer.Bound().Contains(ring[0]) {
				mp[len(mp)-1] = append(mp[len(mp)-1], ring)
				continue
			}
		}
		mp = append(mp, orb.Polygon{ring})
	}
	return mp
}
