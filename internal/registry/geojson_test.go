package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/flowlisa/internal/model"
)

const unitsGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"num": 2, "code": 35060, "name": "Gimje"},
     "geometry": {"type": "Polygon", "coordinates": [[[10,0],[12,0],[12,2],[10,2],[10,0]]]}},
    {"type": "Feature", "properties": {"num": 1, "code": 35570, "name": "Gochang"},
     "geometry": {"type": "Point", "coordinates": [3, 4]}}
  ]
}`

func TestReadGeoJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "units.geojson")
	require.NoError(t, os.WriteFile(path, []byte(unitsGeoJSON), 0o644))

	reg, err := Load(context.Background(), path, LoadOptions{IDField: "num", CodeField: "code", NameField: "name"})
	require.NoError(t, err)
	require.Equal(t, 2, reg.Len())

	u1, _ := reg.Unit(1)
	assert.Equal(t, "35570", u1.Code)
	assert.Equal(t, "Gochang", u1.Name)
	assert.Equal(t, 3.0, u1.X)

	u2, _ := reg.Unit(2)
	assert.InDelta(t, 11.0, u2.X, 1e-9)
	assert.InDelta(t, 1.0, u2.Y, 1e-9)
}

func TestReadGeoJSON_NullGeometry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "units.geojson")
	content := `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":null}]}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := ReadGeoJSON(path, LoadOptions{})
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindDataIntegrity))
}
