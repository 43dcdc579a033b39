package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
)

// ExtractMatching extracts the archive entries whose extension is one of
// exts (case-insensitive) into destDir. Directory structure inside the
// archive is flattened. Returns the extracted paths in archive order.
func ExtractMatching(zipPath, destDir string, exts ...string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	var extracted []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if len(exts) > 0 && !slices.ContainsFunc(exts, func(e string) bool {
			return strings.EqualFold(filepath.Ext(f.Name), e)
		}) {
			continue
		}
		path, err := extractEntry(f, destDir)
		if err != nil {
			return extracted, err
		}
		extracted = append(extracted, path)
	}

	return extracted, nil
}

func extractEntry(f *zip.File, destDir string) (string, error) {
	name := filepath.Base(filepath.FromSlash(f.Name))
	if name == "." || name == ".." || name == string(os.PathSeparator) {
		return "", eris.Errorf("zip: illegal entry name %q", f.Name)
	}
	destPath := filepath.Join(destDir, name)

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "zip: open entry")
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: create file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, rc); err != nil {
		return "", eris.Wrap(err, "zip: write file")
	}

	return destPath, nil
}
