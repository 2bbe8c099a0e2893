package cityname

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Inputs longer than this are treated as addresses.
const addressTriggerLen = 50

var (
	coordHintRe = regexp.MustCompile(`\d+\s*°`)

	// Whole-line tails: everything after a contact or coordinate label.
	lineTailRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:GPS|Latitude|Longitude|Coordinates|Lat/Long?)\s*:.*$`),
		regexp.MustCompile(`(?i)\b(?:Phone|Telephone|Mobile|Fax|E-?mail)\b.*$`),
		regexp.MustCompile(`(?i)\bTel\s*[.:]?\s*[+(\d].*$`),
		regexp.MustCompile(`(?i)\bP\.?\s*O\.?\s+Box\b.*$`),
		regexp.MustCompile(`(?i)\b(?:ZIP|Postal Code|Post Code)\b.*$`),
		regexp.MustCompile(`(?i)(?:\bwww\.|\bhttps?://)\S*.*$`),
		regexp.MustCompile(`\S+@\S+`),
	}

	noiseRes = []*regexp.Regexp{
		// Coordinates.
		regexp.MustCompile(`[-+]?\d{1,3}\.\d+\s*,\s*[-+]?\d{1,3}\.\d+`),
		regexp.MustCompile(`\d+\s*°\s*(?:\d+\s*['′]\s*)?(?:[\d.]+\s*["″]\s*)?(?:[NSEW]\b)?`),
		// Bracketed content.
		regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]|\{[^}]*\}|（[^）]*）`),
		// Floors, units and buildings.
		regexp.MustCompile(`(?i)\b\d+\s*/\s*F\b|\b\d+F\b|\b\d+(?:st|nd|rd|th)\s+(?:Floor|Fl)\b`),
		regexp.MustCompile(`(?i)\b(?:Floor|Fl|Level|Lvl|Room|Rm|Unit|Suite|Ste|Building|Bldg|Block|Blk|Lot|Plot|Tower)\.?\s*#?\s*[A-Z]?\d+[A-Z]?\b`),
		// Street numbers and routes.
		regexp.MustCompile(`(?i)\bNo\.?\s*\d+\b|#\s*\d+\b|\b(?:Route|Highway|Hwy)\s*\d+\b`),
		// Postal codes.
		regexp.MustCompile(`\b\d{5}(?:-\d{4})?\b`),
		regexp.MustCompile(`\b\d{3}-\d{3}\b`),
		regexp.MustCompile(`\b\d{4,6}\b`),
	}

	segmentTrim = " \t.-/;:'\"#*&"
)

// Extraction is the outcome of the address heuristic.
type Extraction struct {
	City       string
	Method     Method
	Confidence Confidence
}

// NeedsAddressExtraction reports whether s looks like an address rather
// than a bare name: long, comma separated, or carrying coordinates.
func NeedsAddressExtraction(s string) bool {
	return utf8.RuneCountInString(s) > addressTriggerLen ||
		strings.ContainsAny(s, ",，") ||
		coordHintRe.MatchString(s)
}

// ExtractFromAddress is step 2: strip address noise, then look for a known
// city in the comma segments. When the last segment is a country the
// segment before it is tried first; otherwise the first segment naming a
// known city wins. Without a gazetteer hit it falls back to the
// country-context segment and then to the first plausible capitalized token,
// both low confidence.
func (r *Resolver) ExtractFromAddress(s string) Extraction {
	segments := AddressSegments(s)
	if len(segments) == 0 {
		return Extraction{Method: MethodUnresolved, Confidence: ConfidenceNone}
	}

	last := len(segments) - 1
	countryTail := len(segments) > 1 && r.g.IsCountry(segments[last])

	if countryTail {
		if city, ok := r.matchSegment(segments[last-1]); ok {
			return Extraction{City: city, Method: MethodGazetteer, Confidence: ConfidenceHigh}
		}
	}
	for _, seg := range segments {
		if r.g.IsCountry(seg) && !r.g.IsKnownCity(seg) {
			continue
		}
		if city, ok := r.matchSegment(seg); ok {
			return Extraction{City: city, Method: MethodGazetteer, Confidence: ConfidenceHigh}
		}
	}

	if countryTail {
		if cand := segments[last-1]; plausibleCandidate(cand) {
			return Extraction{City: cand, Method: MethodCountryContext, Confidence: ConfidenceLow}
		}
	}
	if tok := r.fallbackToken(segments); tok != "" {
		return Extraction{City: tok, Method: MethodFallbackToken, Confidence: ConfidenceLow}
	}
	return Extraction{Method: MethodUnresolved, Confidence: ConfidenceNone}
}

// AddressSegments removes address noise and returns the non-empty comma
// segments in order.
func AddressSegments(s string) []string {
	s = strings.NewReplacer("，", ",", "；", ";", "、", ",").Replace(s)

	var lines []string
	for _, line := range strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == '\r' }) {
		for _, re := range lineTailRes {
			line = re.ReplaceAllString(line, " ")
		}
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	s = strings.Join(lines, ",")

	for _, re := range noiseRes {
		s = re.ReplaceAllString(s, " ")
	}
	s = strings.ReplaceAll(s, ";", ",")

	var out []string
	for _, seg := range strings.Split(s, ",") {
		seg = strings.Trim(strings.Join(strings.Fields(seg), " "), segmentTrim)
		if seg == "" || !hasLetter(seg) {
			continue
		}
		out = append(out, seg)
	}
	return out
}

// matchSegment tries the whole segment, then word windows from the longest
// protected-name length down to single words, left to right.
func (r *Resolver) matchSegment(seg string) (string, bool) {
	if city, ok := r.g.MatchPhrase(seg); ok {
		return city, true
	}
	words := strings.Fields(seg)
	maxN := min(r.g.MaxWords(), len(words))
	for n := maxN; n >= 1; n-- {
		for i := 0; i+n <= len(words); i++ {
			phrase := strings.Trim(strings.Join(words[i:i+n], " "), segmentTrim)
			if phrase == "" {
				continue
			}
			if n == 1 && (r.g.IsGeneric(phrase) || r.g.IsCountry(phrase) && !r.g.IsKnownCity(phrase)) {
				continue
			}
			if city, ok := r.g.MatchPhrase(phrase); ok {
				return city, true
			}
		}
	}
	return "", false
}

func (r *Resolver) fallbackToken(segments []string) string {
	for _, seg := range segments {
		for _, w := range strings.Fields(seg) {
			w = strings.Trim(w, segmentTrim)
			if r.plausibleToken(w) {
				return w
			}
		}
	}
	return ""
}

func (r *Resolver) plausibleToken(w string) bool {
	n := utf8.RuneCountInString(w)
	if n < 3 || n > 20 {
		return false
	}
	first, _ := utf8.DecodeRuneInString(w)
	if !unicode.IsUpper(first) {
		return false
	}
	for _, c := range w {
		if !unicode.IsLetter(c) && c != '\'' && c != '-' {
			return false
		}
	}
	return !r.g.IsGeneric(w) && !r.g.IsCountry(w)
}

func plausibleCandidate(s string) bool {
	n := utf8.RuneCountInString(s)
	if n < 2 || n > 30 {
		return false
	}
	return !strings.ContainsFunc(s, unicode.IsDigit)
}

func hasLetter(s string) bool {
	return strings.ContainsFunc(s, unicode.IsLetter)
}
