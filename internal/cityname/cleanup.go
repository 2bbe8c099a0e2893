package cityname

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	minCityLen = 2
	maxCityLen = 30
)

var (
	bracketRe  = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]|\{[^}]*\}|（[^）]*）`)
	separators = strings.NewReplacer("-", " ", "_", " ", "/", " ")
	edgeTrim   = " \t.,;:'\"*#&"
)

// Cleanup is step 5: tidy punctuation, re-apply affix stripping until the
// string settles, reject implausible results and title-case the rest. A
// string the gazetteer recognizes is returned in its canonical spelling.
func (r *Resolver) Cleanup(s string) string {
	for {
		next := r.StripAffixes(tidy(s))
		if next == s {
			break
		}
		s = next
	}
	if s == "" {
		return ""
	}

	if city, ok := r.g.MatchCity(s); ok {
		return city
	}

	n := utf8.RuneCountInString(s)
	if n < minCityLen || n > maxCityLen || !strings.ContainsFunc(s, unicode.IsLetter) {
		return ""
	}
	// Casers keep state, so each call gets its own.
	return cases.Title(language.Und).String(s)
}

func tidy(s string) string {
	s = bracketRe.ReplaceAllString(s, " ")
	if i := strings.IndexAny(s, ",，"); i >= 0 {
		s = s[:i]
	}
	s = separators.Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, edgeTrim)
}
