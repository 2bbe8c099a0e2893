// Package cityname resolves raw, possibly multi-script, possibly full-address
// strings to canonical English city names.
//
// Resolution is a pure function of the input and the injected gazetteer.
// Each step is exported so it can be exercised on its own:
//
//	LookupDictionary -> ExtractFromAddress -> NormalizeScript -> StripAffixes -> Cleanup
//
// An empty result means the input could not be resolved.
package cityname

import (
	"strings"

	"github.com/sells-group/city-synergy/internal/gazetteer"
)

// Method names the step that produced a resolution.
type Method string

const (
	MethodDictionary     Method = "dictionary"
	MethodGazetteer      Method = "gazetteer"
	MethodCountryContext Method = "country_context"
	MethodFallbackToken  Method = "fallback_token"
	MethodDirect         Method = "direct"
	MethodUnresolved     Method = "unresolved"
)

// Confidence grades how much a resolution can be trusted.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
	ConfidenceNone   Confidence = "none"
)

// Step records the output of one resolution step.
type Step struct {
	Name   string `json:"name"`
	Output string `json:"output"`
}

// Resolution is the traced result of resolving one input.
type Resolution struct {
	Input      string     `json:"input"`
	City       string     `json:"city"`
	Method     Method     `json:"method"`
	Confidence Confidence `json:"confidence"`
	Scripts    []Script   `json:"scripts,omitempty"`
	Steps      []Step     `json:"steps,omitempty"`
}

// Resolved reports whether a city was found.
func (r Resolution) Resolved() bool { return r.City != "" }

// NeedsReview reports whether the match came from a weak heuristic.
func (r Resolution) NeedsReview() bool { return r.Confidence == ConfidenceLow }

// Resolver maps raw location strings to canonical city names.
type Resolver struct {
	g *gazetteer.Gazetteer
}

// New creates a Resolver backed by g.
func New(g *gazetteer.Gazetteer) *Resolver {
	return &Resolver{g: g}
}

// NewDefault creates a Resolver backed by the embedded gazetteer.
func NewDefault() (*Resolver, error) {
	g, err := gazetteer.Default()
	if err != nil {
		return nil, err
	}
	return New(g), nil
}

// Gazetteer returns the lookup tables the resolver was built with.
func (r *Resolver) Gazetteer() *gazetteer.Gazetteer { return r.g }

// Normalize returns the canonical city for raw, or "" if unresolved.
func (r *Resolver) Normalize(raw string) string {
	return r.Resolve(raw).City
}

// Resolve runs every step and records how the result was reached.
func (r *Resolver) Resolve(raw string) Resolution {
	res := Resolution{Input: raw, Method: MethodUnresolved, Confidence: ConfidenceNone}

	s := strings.TrimSpace(raw)
	if s == "" {
		return res
	}
	res.Scripts = DetectScripts(s)

	if city, ok := r.LookupDictionary(s); ok {
		res.City = city
		res.Method = MethodDictionary
		res.Confidence = ConfidenceHigh
		res.Steps = append(res.Steps, Step{Name: "dictionary", Output: city})
		return res
	}

	method, conf := MethodDirect, ConfidenceMedium
	if NeedsAddressExtraction(s) {
		ext := r.ExtractFromAddress(s)
		res.Steps = append(res.Steps, Step{Name: "address", Output: ext.City})
		if ext.City == "" {
			return res
		}
		s, method, conf = ext.City, ext.Method, ext.Confidence
	}

	s = NormalizeScript(s)
	res.Steps = append(res.Steps, Step{Name: "script", Output: s})

	s = r.StripAffixes(s)
	res.Steps = append(res.Steps, Step{Name: "affixes", Output: s})

	s = r.Cleanup(s)
	res.Steps = append(res.Steps, Step{Name: "cleanup", Output: s})

	if s == "" {
		return res
	}
	if method == MethodDirect && r.g.IsProtected(s) {
		conf = ConfidenceHigh
	}
	res.City, res.Method, res.Confidence = s, method, conf
	return res
}

// LookupDictionary is step 1: an exact native-script dictionary hit.
func (r *Resolver) LookupDictionary(s string) (string, bool) {
	e, ok := r.g.Lookup(s)
	return e.City, ok
}
