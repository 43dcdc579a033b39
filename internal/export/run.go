package export

import (
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/flowlisa/internal/lisa"
	"github.com/sells-group/flowlisa/internal/model"
)

// WriteRun writes every per-k table, the sensitivity and histogram tables
// and finally the manifest that lists them.
func (w *Writer) WriteRun(runID string, params model.RunParams, sr *lisa.SensitivityResult) (*Manifest, error) {
	m := &Manifest{
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
		Params:    params,
		Skipped:   sr.Skipped,
	}

	for _, r := range sr.Results {
		name, err := w.WriteKResult(r)
		if err != nil {
			return nil, err
		}
		m.Files = append(m.Files, name)
		m.Passes = append(m.Passes, summarize(r, sr.Branch, name))
	}

	name, err := w.WriteSensitivity(sr.Records())
	if err != nil {
		return nil, err
	}
	m.Files = append(m.Files, name)

	name, err = w.WriteHistogram(sr.Histogram())
	if err != nil {
		return nil, err
	}
	m.Files = append(m.Files, name)

	if _, err := w.WriteManifest(m); err != nil {
		return nil, err
	}

	zap.L().Info("export: run written",
		zap.String("run_id", runID),
		zap.String("dir", w.dir),
		zap.Int("files", len(m.Files)+1),
	)
	return m, nil
}

func summarize(r *model.KResult, branch model.Branch, file string) PassSummary {
	counts := make(map[string]int, len(model.Labels))
	for _, l := range model.Labels {
		counts[l.String()] = 0
	}
	for _, f := range r.Flows {
		counts[f.Label(branch).String()]++
	}
	return PassSummary{
		Period:    r.Period,
		K:         r.K,
		Flows:     len(r.Flows),
		Undefined: len(r.Undefined),
		Counts:    counts,
		File:      file,
	}
}
