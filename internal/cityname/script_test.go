package cityname

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectScripts(t *testing.T) {
	tests := []struct {
		input string
		want  []Script
	}{
		{"서울 Seoul", []Script{ScriptKorean, ScriptLatin}},
		{"東京", []Script{ScriptCJK}},
		{"とうきょう", []Script{ScriptJapanese}},
		{"東京とうきょう", []Script{ScriptCJK, ScriptJapanese}},
		{"الرياض", []Script{ScriptArabic}},
		{"กรุงเทพ", []Script{ScriptThai}},
		{"Москва", []Script{ScriptCyrillic}},
		{"Đà Nẵng", []Script{ScriptVietnamese, ScriptLatin}},
		{"İzmir", []Script{ScriptTurkish, ScriptLatin}},
		{"12345", nil},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectScripts(tt.input))
		})
	}
}

func TestNormalizeScript(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Đà Nẵng", "Da Nang"},
		{"Hồ Chí Minh", "Ho Chi Minh"},
		{"İstanbul", "Istanbul"},
		{"Şanlıurfa", "Sanliurfa"},
		{"Gaziantep Çarşı", "Gaziantep Carsi"},
		{"Düsseldorf", "Dusseldorf"},
		{"東京", "東京"},
		{"ぎふ", "ぎふ"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeScript(tt.input))
		})
	}
}
