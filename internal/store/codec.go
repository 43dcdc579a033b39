package store

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/flowlisa/internal/model"
)

var flowColumns = []string{
	"run_id", "period", "k", "flow_index",
	"origin", "destination", "origin_code", "dest_code", "zpay", "zpop",
	"pay_lag", "pop_lag", "bifl_pay", "bifl_pop", "bifl_pay_sig", "bifl_pop_sig",
	"value_p", "value_p2", "value_y", "value_y2",
}

var unitColumns = []string{"run_id", "unit_id", "code", "name", "centroid"}

var sensitivityColumns = []string{"run_id", "period", "k", "label", "count"}

const selectFlowColumns = `flow_index, origin, destination, origin_code, dest_code, zpay, zpop,
	pay_lag, pop_lag, bifl_pay, bifl_pop, bifl_pay_sig, bifl_pop_sig,
	value_p, value_p2, value_y, value_y2`

func flowRow(runID string, r *model.KResult, f model.FlowResult) []any {
	return []any{
		runID, r.Period, r.K, f.Index,
		f.Flow.Origin, f.Flow.Destination, f.Flow.OriginCode, f.Flow.DestCode, f.Flow.Zpay, f.Flow.Zpop,
		f.PayLag, f.PopLag,
		rawOrNil(f.BiFlPay), rawOrNil(f.BiFlPop), sigOrNil(f.BiFlPay), sigOrNil(f.BiFlPop),
		f.ValueP.String(), f.ValueP2.String(), f.ValueY.String(), f.ValueY2.String(),
	}
}

func rawOrNil(ind model.Indicator) *float64 {
	if !ind.Defined {
		return nil
	}
	return &ind.Raw
}

func sigOrNil(ind model.Indicator) *float64 {
	if !ind.Defined {
		return nil
	}
	return &ind.Sig
}

type scannable interface {
	Scan(dest ...any) error
}

func scanFlow(row scannable) (model.FlowResult, error) {
	var (
		f                                model.FlowResult
		bp, bq, sp, sq                   *float64
		valueP, valueP2, valueY, valueY2 string
	)
	err := row.Scan(
		&f.Index, &f.Flow.Origin, &f.Flow.Destination, &f.Flow.OriginCode, &f.Flow.DestCode, &f.Flow.Zpay, &f.Flow.Zpop,
		&f.PayLag, &f.PopLag, &bp, &bq, &sp, &sq,
		&valueP, &valueP2, &valueY, &valueY2,
	)
	if err != nil {
		return f, eris.Wrap(err, "store: scan flow result")
	}
	f.BiFlPay = indicator(bp, sp)
	f.BiFlPop = indicator(bq, sq)

	for _, l := range []struct {
		dst *model.ClusterLabel
		src string
	}{{&f.ValueP, valueP}, {&f.ValueP2, valueP2}, {&f.ValueY, valueY}, {&f.ValueY2, valueY2}} {
		if *l.dst, err = model.ParseLabel(l.src); err != nil {
			return f, err
		}
	}
	return f, nil
}

func indicator(raw, sig *float64) model.Indicator {
	if raw == nil || sig == nil {
		return model.Indicator{}
	}
	return model.Indicator{Raw: *raw, Sig: *sig, Defined: true}
}

func sensitivityRows(runID string, records []model.SensitivityRecord) [][]any {
	rows := make([][]any, len(records))
	for i, r := range records {
		rows[i] = []any{runID, r.Period, r.K, r.Label.String(), r.Count}
	}
	return rows
}

func scanSensitivity(row scannable) (model.SensitivityRecord, error) {
	var (
		r     model.SensitivityRecord
		label string
	)
	if err := row.Scan(&r.Period, &r.K, &label, &r.Count); err != nil {
		return r, eris.Wrap(err, "store: scan sensitivity")
	}
	l, err := model.ParseLabel(label)
	r.Label = l
	return r, err
}

// encodeCentroid stores a unit centroid as EWKB so PostGIS can read it with ST_GeomFromEWKB.
func encodeCentroid(u model.SpatialUnit) ([]byte, error) {
	b, err := ewkb.Marshal(geom.NewPointFlat(geom.XY, []float64{u.X, u.Y}), ewkb.NDR)
	return b, eris.Wrap(err, "store: encode centroid")
}

func decodeCentroid(b []byte) (float64, float64, error) {
	g, err := ewkb.Unmarshal(b)
	if err != nil {
		return 0, 0, eris.Wrap(err, "store: decode centroid")
	}
	p, ok := g.(*geom.Point)
	if !ok {
		return 0, 0, eris.Errorf("store: centroid is %T, want point", g)
	}
	return p.X(), p.Y(), nil
}

func unitRows(runID string, units []model.SpatialUnit) ([][]any, error) {
	rows := make([][]any, len(units))
	for i, u := range units {
		c, err := encodeCentroid(u)
		if err != nil {
			return nil, err
		}
		rows[i] = []any{runID, u.ID, u.Code, u.Name, c}
	}
	return rows, nil
}

func scanUnit(row scannable) (model.SpatialUnit, error) {
	var (
		u        model.SpatialUnit
		centroid []byte
	)
	if err := row.Scan(&u.ID, &u.Code, &u.Name, &centroid); err != nil {
		return u, eris.Wrap(err, "store: scan unit")
	}
	var err error
	u.X, u.Y, err = decodeCentroid(centroid)
	return u, err
}

func marshalRun(params model.RunParams, skipped []model.SkippedK) ([]byte, []byte, error) {
	p, err := json.Marshal(params)
	if err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal params")
	}
	if skipped == nil {
		skipped = []model.SkippedK{}
	}
	s, err := json.Marshal(skipped)
	if err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal skipped")
	}
	return p, s, nil
}

func unmarshalRun(r *model.Run, params, skipped []byte) error {
	if err := json.Unmarshal(params, &r.Params); err != nil {
		return eris.Wrap(err, "store: unmarshal params")
	}
	if len(skipped) > 0 {
		if err := json.Unmarshal(skipped, &r.Skipped); err != nil {
			return eris.Wrap(err, "store: unmarshal skipped")
		}
	}
	if len(r.Skipped) == 0 {
		r.Skipped = nil
	}
	return nil
}
