package cityname

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// A strip never leaves fewer runes than this.
const minStripLen = 2

// StripAffixes is step 4: remove administrative and descriptive prefixes and
// suffixes, longest first, until none applies. Protected names are returned
// unchanged at any point in the loop.
func (r *Resolver) StripAffixes(s string) string {
	s = strings.TrimSpace(s)
	for {
		if s == "" || r.g.IsProtected(s) {
			return s
		}
		if next, ok := r.stripPrefix(s); ok {
			s = next
			continue
		}
		if next, ok := r.stripSuffix(s); ok {
			s = next
			continue
		}
		return s
	}
}

func (r *Resolver) stripPrefix(s string) (string, bool) {
	for _, p := range r.g.Prefixes() {
		if !hasPrefixFold(s, p) {
			continue
		}
		rest := s[len(p):]
		if !attachedPrefix(p) {
			if rest == "" || !unicode.IsSpace(firstRune(rest)) {
				continue
			}
		}
		rest = strings.TrimLeft(rest, " \t-")
		if utf8.RuneCountInString(rest) < minStripLen {
			continue
		}
		return rest, true
	}
	return "", false
}

func (r *Resolver) stripSuffix(s string) (string, bool) {
	for _, suf := range r.g.Suffixes() {
		if !hasSuffixFold(s, suf) {
			continue
		}
		rest := s[:len(s)-len(suf)]
		if isLatinWord(suf) {
			if rest == "" || !unicode.IsSpace(lastRune(rest)) {
				continue
			}
		}
		rest = strings.TrimRight(rest, " \t-,")
		if utf8.RuneCountInString(rest) < minStripLen {
			continue
		}
		return rest, true
	}
	return "", false
}

// "Al-" and "Tp." style prefixes bind directly to the name that follows.
func attachedPrefix(p string) bool {
	return strings.HasSuffix(p, "-") || strings.HasSuffix(p, ".")
}

func isLatinWord(s string) bool {
	for _, c := range s {
		if unicode.IsLetter(c) && !unicode.Is(unicode.Latin, c) {
			return false
		}
	}
	return true
}

// hasPrefixFold is strings.HasPrefix ignoring case. The match must end on a
// byte boundary of s so slicing by len(prefix) stays valid.
func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func hasSuffixFold(s, suffix string) bool {
	return len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix)
}

func firstRune(s string) rune {
	r, _ := utf8.DecodeRuneInString(s)
	return r
}

func lastRune(s string) rune {
	r, _ := utf8.DecodeLastRuneInString(s)
	return r
}
