package gazetteer

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Letters that carry no combining mark under NFD and need an explicit mapping.
var specialLetters = strings.NewReplacer(
	"Đ", "D", "đ", "d",
	"İ", "I", "ı", "i",
	"ß", "ss",
	"Ø", "O", "ø", "o",
	"Ł", "L", "ł", "l",
	"Æ", "AE", "æ", "ae",
	"Œ", "OE", "œ", "oe",
)

var (
	spaceRe    = regexp.MustCompile(`\s+`)
	foldSpacer = strings.NewReplacer("-", " ", "_", " ")
)

// StripMarks removes combining marks that follow Latin letters ("São Paulo"
// -> "Sao Paulo", "Đà Nẵng" -> "Da Nang"). Marks on other scripts, such as
// kana voicing marks, are kept.
func StripMarks(s string) string {
	s = specialLetters.Replace(s)
	var b strings.Builder
	b.Grow(len(s))
	latin := false
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			if latin {
				continue
			}
		} else {
			latin = unicode.Is(unicode.Latin, r)
		}
		b.WriteRune(r)
	}
	return norm.NFC.String(b.String())
}

// Fold produces the comparison key used by every table: marks stripped,
// lower-cased, hyphens and underscores as spaces, whitespace collapsed.
func Fold(s string) string {
	s = foldSpacer.Replace(strings.ToLower(StripMarks(s)))
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
