package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/city-synergy/internal/aggregate"
)

// WriteJSON encodes v as two-space indented JSON with a trailing newline and
// replaces path in one rename, so readers never see a partial file.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "pipeline: encode %s", path)
	}
	return writeAtomic(path, append(data, '\n'))
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "pipeline: create dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrapf(err, "pipeline: create temp for %s", path)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "pipeline: write %s", path)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "pipeline: close %s", path)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return eris.Wrapf(err, "pipeline: chmod %s", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return eris.Wrapf(err, "pipeline: rename %s", path)
	}
	return nil
}

// ReadJSON decodes path into v. A missing file is an error naming the path.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return eris.Errorf("pipeline: missing input %s", path)
		}
		return eris.Wrapf(err, "pipeline: read %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return eris.Wrapf(err, "pipeline: parse %s", path)
	}
	return nil
}

// Digest hashes the named inputs in order. Files contribute their content;
// anything that is not a readable file (a URL, a query) contributes its name.
func Digest(inputs ...string) string {
	h := sha256.New()
	for _, in := range inputs {
		h.Write([]byte(in))
		h.Write([]byte{0})
		if data, err := os.ReadFile(in); err == nil {
			sum := sha256.Sum256(data)
			h.Write(sum[:])
		}
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

type topListBody struct {
	Limit  int                   `json:"limit"`
	Top100 []aggregate.CityCount `json:"top100"`
}

// TopListPath is where a source's top list lives within dir.
func TopListPath(dir, source string) string {
	return filepath.Join(dir, strings.ToUpper(strings.TrimSpace(source))+".json")
}

// WriteTopList writes {SOURCE: {limit, top100}} to the source's file in dir.
func WriteTopList(dir string, tl aggregate.TopList) error {
	cities := tl.Cities
	if cities == nil {
		cities = []aggregate.CityCount{}
	}
	return WriteJSON(TopListPath(dir, tl.Source), map[string]topListBody{
		strings.ToUpper(tl.Source): {Limit: tl.Limit, Top100: cities},
	})
}

// ReadTopList loads a source's top list. The file's recorded limit must match
// limit; files without one are truncated to it. City names are upper-cased.
func ReadTopList(dir, source string, limit int) ([]aggregate.CityCount, error) {
	path := TopListPath(dir, source)
	var file map[string]topListBody
	if err := ReadJSON(path, &file); err != nil {
		return nil, err
	}

	var body *topListBody
	for name, b := range file {
		if strings.EqualFold(name, source) {
			body = &b
			break
		}
	}
	if body == nil {
		return nil, eris.Errorf("pipeline: %s has no %s list", path, source)
	}
	if body.Limit > 0 && limit > 0 && body.Limit != limit {
		return nil, eris.Errorf("pipeline: %s holds a top %d list, expected top %d", path, body.Limit, limit)
	}

	out := make([]aggregate.CityCount, 0, len(body.Top100))
	for _, c := range body.Top100 {
		city := strings.ToUpper(strings.TrimSpace(c.City))
		if city == "" {
			continue
		}
		out = append(out, aggregate.CityCount{City: city, Count: c.Count})
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
