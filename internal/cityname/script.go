package cityname

import (
	"strings"
	"unicode"

	"github.com/sells-group/city-synergy/internal/gazetteer"
)

// Script is a writing system detected in an input string.
type Script string

const (
	ScriptArabic     Script = "arabic"
	ScriptKorean     Script = "korean"
	ScriptCJK        Script = "cjk"
	ScriptJapanese   Script = "japanese"
	ScriptThai       Script = "thai"
	ScriptCyrillic   Script = "cyrillic"
	ScriptGreek      Script = "greek"
	ScriptHebrew     Script = "hebrew"
	ScriptDevanagari Script = "devanagari"
	ScriptVietnamese Script = "vietnamese"
	ScriptTurkish    Script = "turkish"
	ScriptLatin      Script = "latin"
)

// Report order for DetectScripts.
var scriptOrder = []Script{
	ScriptArabic, ScriptKorean, ScriptCJK, ScriptJapanese, ScriptThai,
	ScriptCyrillic, ScriptGreek, ScriptHebrew, ScriptDevanagari,
	ScriptVietnamese, ScriptTurkish, ScriptLatin,
}

var scriptTables = map[Script][]*unicode.RangeTable{
	ScriptArabic:     {unicode.Arabic},
	ScriptKorean:     {unicode.Hangul},
	ScriptCJK:        {unicode.Han},
	ScriptJapanese:   {unicode.Hiragana, unicode.Katakana},
	ScriptThai:       {unicode.Thai},
	ScriptCyrillic:   {unicode.Cyrillic},
	ScriptGreek:      {unicode.Greek},
	ScriptHebrew:     {unicode.Hebrew},
	ScriptDevanagari: {unicode.Devanagari},
}

// Letters that only occur in Vietnamese or Turkish among Latin alphabets.
const (
	vietnameseLetters = "ăằắặẳẵĂẰẮẶẲẴâầấậẩẫÂẦẤẬẨẪđĐêềếệểễÊỀẾỆỂỄôồốộổỗÔỒỐỘỔỖơờớợởỡƠỜỚỢỞỠưừứựửữƯỪỨỰỬỮạảẹẻẽịỉọỏụủỳỵỷỹ"
	turkishLetters    = "İıŞşĞğ"
)

var turkishReplacer = strings.NewReplacer(
	"İ", "I", "ı", "i",
	"Ş", "S", "ş", "s",
	"Ğ", "G", "ğ", "g",
	"Ü", "U", "ü", "u",
	"Ö", "O", "ö", "o",
	"Ç", "C", "ç", "c",
)

// NormalizeScript is step 3: Turkish letters map to ASCII, then Vietnamese
// tone marks and any other marks on Latin letters are removed.
func NormalizeScript(s string) string {
	return gazetteer.StripMarks(turkishReplacer.Replace(s))
}

// DetectScripts lists the writing systems present in s.
func DetectScripts(s string) []Script {
	found := make(map[Script]bool)
	for _, r := range s {
		switch {
		case strings.ContainsRune(vietnameseLetters, r):
			found[ScriptVietnamese] = true
			found[ScriptLatin] = true
		case strings.ContainsRune(turkishLetters, r):
			found[ScriptTurkish] = true
			found[ScriptLatin] = true
		case unicode.Is(unicode.Latin, r):
			found[ScriptLatin] = true
		default:
			for script, tables := range scriptTables {
				if unicode.In(r, tables...) {
					found[script] = true
				}
			}
		}
	}

	var out []Script
	for _, sc := range scriptOrder {
		if found[sc] {
			out = append(out, sc)
		}
	}
	return out
}
