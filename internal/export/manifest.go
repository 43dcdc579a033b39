package export

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/flowlisa/internal/model"
)

// ManifestName is the run manifest file name.
const ManifestName = "manifest.yaml"

// Manifest records what a run computed and where it wrote it.
type Manifest struct {
	RunID     string           `yaml:"run_id"`
	CreatedAt time.Time        `yaml:"created_at"`
	Params    model.RunParams  `yaml:"params"`
	Passes    []PassSummary    `yaml:"passes"`
	Skipped   []model.SkippedK `yaml:"skipped,omitempty"`
	Files     []string         `yaml:"files"`
}

// PassSummary describes one completed (period, k) pass.
type PassSummary struct {
	Period    string         `yaml:"period"`
	K         int            `yaml:"k"`
	Flows     int            `yaml:"flows"`
	Undefined int            `yaml:"undefined"`
	Counts    map[string]int `yaml:"counts"`
	File      string         `yaml:"file"`
}

// WriteManifest writes m as YAML into the writer's directory.
func (w *Writer) WriteManifest(m *Manifest) (string, error) {
	b, err := yaml.Marshal(m)
	if err != nil {
		return "", eris.Wrap(err, "export: marshal manifest")
	}
	path := filepath.Join(w.dir, ManifestName)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", eris.Wrapf(err, "export: write %s", path)
	}
	return ManifestName, nil
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "export: read %s", path)
	}
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, eris.Wrapf(err, "export: parse %s", path)
	}
	return &m, nil
}
