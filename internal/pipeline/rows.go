package pipeline

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/city-synergy/internal/scorer"
)

// object builds a JSON object with keys in insertion order.
type object struct {
	buf bytes.Buffer
	err error
}

func (o *object) add(key string, v any) {
	if o.err != nil {
		return
	}
	k, err := json.Marshal(key)
	if err != nil {
		o.err = err
		return
	}
	val, err := json.Marshal(v)
	if err != nil {
		o.err = err
		return
	}
	if o.buf.Len() == 0 {
		o.buf.WriteByte('{')
	} else {
		o.buf.WriteByte(',')
	}
	o.buf.Write(k)
	o.buf.WriteByte(':')
	o.buf.Write(val)
}

func (o *object) bytes() ([]byte, error) {
	if o.err != nil {
		return nil, o.err
	}
	if o.buf.Len() == 0 {
		return []byte("{}"), nil
	}
	o.buf.WriteByte('}')
	return o.buf.Bytes(), nil
}

// affinityRow renders {city, <source>..., epsilonScore, rank} with source
// names lower-cased.
type affinityRow scorer.CityScore

func (r affinityRow) MarshalJSON() ([]byte, error) {
	var o object
	o.add("city", r.City)
	for _, c := range r.Components {
		o.add(strings.ToLower(c.Source), c.Score)
	}
	o.add("epsilonScore", r.Score)
	o.add("rank", r.Rank)
	return o.bytes()
}

// synergyRow renders {city, synergyScore, <source>Score...}.
type synergyRow scorer.CityScore

func (r synergyRow) MarshalJSON() ([]byte, error) {
	var o object
	o.add("city", r.City)
	o.add("synergyScore", r.Score)
	for _, c := range r.Components {
		o.add(strings.ToLower(c.Source)+"Score", c.Score)
	}
	return o.bytes()
}

// blendRow renders {city, <source>..., blendScore, rank}.
type blendRow scorer.CityScore

func (r blendRow) MarshalJSON() ([]byte, error) {
	var o object
	o.add("city", r.City)
	for _, c := range r.Components {
		o.add(strings.ToLower(c.Source), c.Score)
	}
	o.add("blendScore", r.Score)
	o.add("rank", r.Rank)
	return o.bytes()
}

// regionRow renders {country, cities, <source>..., blendScore, rank}.
type regionRow scorer.RegionScore

func (r regionRow) MarshalJSON() ([]byte, error) {
	var o object
	o.add("country", r.Region)
	o.add("cities", r.Cities)
	for _, c := range r.Components {
		o.add(strings.ToLower(c.Source), c.Score)
	}
	o.add("blendScore", r.Score)
	o.add("rank", r.Rank)
	return o.bytes()
}

type blendFile struct {
	Cities    []blendRow  `json:"cities"`
	Countries []regionRow `json:"countries"`
}

func blendReport(cities []scorer.CityScore, countries []scorer.RegionScore) blendFile {
	out := blendFile{
		Cities:    make([]blendRow, len(cities)),
		Countries: make([]regionRow, len(countries)),
	}
	for i, c := range cities {
		out.Cities[i] = blendRow(c)
	}
	for i, c := range countries {
		out.Countries[i] = regionRow(c)
	}
	return out
}

type totalRow struct {
	City         string  `json:"city"`
	EpsilonScore float64 `json:"epsilonScore"`
	SynergyScore float64 `json:"synergyScore"`
	TotalScore   float64 `json:"totalScore"`
	Rank         int     `json:"rank"`
}

func affinityRows(scores []scorer.CityScore) []affinityRow {
	out := make([]affinityRow, len(scores))
	for i, s := range scores {
		out[i] = affinityRow(s)
	}
	return out
}

func synergyRows(scores []scorer.CityScore) []synergyRow {
	out := make([]synergyRow, len(scores))
	for i, s := range scores {
		out[i] = synergyRow(s)
	}
	return out
}

func totalRows(scores []scorer.TotalScore) []totalRow {
	out := make([]totalRow, len(scores))
	for i, s := range scores {
		out[i] = totalRow{
			City:         s.City,
			EpsilonScore: s.Affinity,
			SynergyScore: s.Synergy,
			TotalScore:   s.Total,
			Rank:         s.Rank,
		}
	}
	return out
}

// score accepts a JSON number or a numeric string, since older stage files
// stored scores as fixed-point strings.
type score float64

func (s *score) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			return eris.Wrapf(err, "pipeline: score %q", str)
		}
		*s = score(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = score(v)
	return nil
}

type stageEntry struct {
	City         string `json:"city"`
	EpsilonScore score  `json:"epsilonScore"`
	SynergyScore score  `json:"synergyScore"`
}

// readScores loads a stage A or B file, keeping only city and the named
// score field.
func readScores(path string, affinity bool) ([]scorer.CityScore, error) {
	var entries []stageEntry
	if err := ReadJSON(path, &entries); err != nil {
		return nil, err
	}
	out := make([]scorer.CityScore, 0, len(entries))
	for _, e := range entries {
		v := e.SynergyScore
		if affinity {
			v = e.EpsilonScore
		}
		out = append(out, scorer.CityScore{City: e.City, Score: float64(v)})
	}
	return out, nil
}
