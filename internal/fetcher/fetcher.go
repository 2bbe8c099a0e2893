// Package fetcher reads source tables from local files or HTTP(S) URLs in CSV, JSON, and XLSX form.
package fetcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// Format identifies how a source file is encoded.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// DetectFormat guesses the format from a path's extension.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".xlsx":
		return FormatXLSX
	default:
		return FormatCSV
	}
}

// IsRemote reports whether path is an HTTP(S) URL.
func IsRemote(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

// Open returns a reader for a local path or, when f is non-nil, a remote URL.
func Open(ctx context.Context, f Fetcher, path string) (io.ReadCloser, error) {
	if IsRemote(path) {
		if f == nil {
			return nil, eris.Errorf("fetcher: no http fetcher for %s", path)
		}
		return f.Download(ctx, path)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", path)
	}
	return file, nil
}

// Options selects how ReadTable decodes a source.
type Options struct {
	Format    Format
	Sheet     string // XLSX sheet name; first sheet when empty
	SkipRows  int    // rows before the header (XLSX)
	Delimiter rune   // CSV delimiter; ',' when zero
}

// ReadTable loads a whole source into memory. Remote XLSX files are
// downloaded to a temporary file first since the XLSX reader needs a path.
func ReadTable(ctx context.Context, f Fetcher, path string, opts Options) (*Table, error) {
	format := opts.Format
	if format == "" {
		format = DetectFormat(path)
	}

	if format == FormatXLSX {
		local := path
		if IsRemote(path) {
			tmp, err := downloadTemp(ctx, f, path)
			if err != nil {
				return nil, err
			}
			defer os.Remove(tmp) //nolint:errcheck
			local = tmp
		}
		return ReadXLSX(local, opts.Sheet, opts.SkipRows)
	}

	rc, err := Open(ctx, f, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	switch format {
	case FormatCSV:
		t, err := ReadCSV(ctx, rc, opts.Delimiter)
		return t, eris.Wrapf(err, "fetcher: read %s", path)
	case FormatJSON:
		t, err := ReadJSONRecords(ctx, rc)
		return t, eris.Wrapf(err, "fetcher: read %s", path)
	default:
		return nil, eris.Errorf("fetcher: unsupported format %q for %s", format, path)
	}
}

func downloadTemp(ctx context.Context, f Fetcher, url string) (string, error) {
	rc, err := Open(ctx, f, url)
	if err != nil {
		return "", err
	}
	defer rc.Close() //nolint:errcheck

	tmp, err := os.CreateTemp("", "source-*.xlsx")
	if err != nil {
		return "", eris.Wrap(err, "fetcher: create temp file")
	}
	defer tmp.Close() //nolint:errcheck

	if _, err := io.Copy(tmp, rc); err != nil {
		_ = os.Remove(tmp.Name())
		return "", eris.Wrapf(err, "fetcher: download %s", url)
	}
	return tmp.Name(), nil
}
