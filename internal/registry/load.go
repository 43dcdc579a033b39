package registry

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/flowlisa/internal/fetcher"
	"github.com/sells-group/flowlisa/internal/model"
)

// Source formats understood by Load.
const (
	FormatShapefile    = "shapefile"
	FormatShapefileZIP = "shapefile_zip"
	FormatGeoJSON      = "geojson"
	FormatCSV          = "csv"
)

// LoadOptions configures how unit ids and codes are read from a source.
type LoadOptions struct {
	Format    string // empty = infer from extension
	IDField   string // empty = 1-based record order
	CodeField string // optional administrative code
	NameField string // optional display name
	Encoding  string // CSV / DBF attribute charset
}

// Load reads a registry from path, dispatching on format.
func Load(ctx context.Context, path string, opts LoadOptions) (*Registry, error) {
	format := opts.Format
	if format == "" {
		format = InferFormat(path)
	}

	var (
		units []model.SpatialUnit
		err   error
	)
	switch format {
	case FormatShapefile:
		units, err = ReadShapefile(path, opts)
	case FormatShapefileZIP:
		units, err = readShapefileZIP(path, opts)
	case FormatGeoJSON:
		units, err = ReadGeoJSON(path, opts)
	case FormatCSV:
		units, err = ReadCSV(ctx, path, opts)
	default:
		return nil, model.NewConfigurationError(-1, "registry: unknown units format %q", format)
	}
	if err != nil {
		return nil, err
	}

	reg, err := New(units)
	if err != nil {
		return nil, err
	}

	zap.L().Info("registry: loaded spatial units",
		zap.String("path", path),
		zap.String("format", format),
		zap.Int("units", reg.Len()),
	)
	return reg, nil
}

// InferFormat guesses the source format from the file extension.
func InferFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return FormatShapefile
	case ".zip":
		return FormatShapefileZIP
	case ".geojson", ".json":
		return FormatGeoJSON
	case ".csv", ".txt":
		return FormatCSV
	}
	return ""
}

// readShapefileZIP unpacks a zipped shapefile bundle into a temporary
// directory and reads the single .shp it contains.
func readShapefileZIP(path string, opts LoadOptions) ([]model.SpatialUnit, error) {
	dir, err := os.MkdirTemp("", "flowlisa-units-*")
	if err != nil {
		return nil, eris.Wrap(err, "registry: create temp dir")
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	files, err := fetcher.ExtractMatching(path, dir, ".shp", ".shx", ".dbf", ".cpg", ".prj")
	if err != nil {
		return nil, eris.Wrapf(err, "registry: unpack %s", path)
	}

	var shps []string
	for _, f := range files {
		if strings.EqualFold(filepath.Ext(f), ".shp") {
			shps = append(shps, f)
		}
	}
	if len(shps) != 1 {
		return nil, model.NewConfigurationError(-1, "registry: %s must contain exactly one .shp, found %d", path, len(shps))
	}
	return ReadShapefile(shps[0], opts)
}

// parseID converts an id attribute; fallback is used when the field is not configured.
func parseID(raw string, field string, fallback int) (int, error) {
	if field == "" {
		return fallback, nil
	}
	raw = strings.TrimSpace(raw)
	id, err := strconv.Atoi(raw)
	if err != nil {
		// DBF numeric fields are often written as "12.0".
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || f != float64(int(f)) {
			return 0, eris.Wrapf(err, "registry: parse id %q from field %s", raw, field)
		}
		id = int(f)
	}
	return id, nil
}
