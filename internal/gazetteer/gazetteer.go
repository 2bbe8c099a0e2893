// Package gazetteer holds the authoritative lookup tables for city-name
// resolution: per-language dictionaries, a world city list grouped by
// country, country names, generic address words, affixes and aliases.
// The tables are embedded YAML, parsed once, and injected into resolvers.
package gazetteer

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var dataFS embed.FS

// Aliases shorter than this are too ambiguous to match inside addresses
// ("La", "Sf", "Dc").
const minPhraseAliasLen = 4

// Source holds the raw YAML documents a Gazetteer is built from.
type Source struct {
	Dictionaries []byte
	Cities       []byte
	Rules        []byte
}

type rulesDoc struct {
	Countries    []string            `yaml:"countries"`
	GenericWords []string            `yaml:"generic_words"`
	Prefixes     []string            `yaml:"prefixes"`
	Suffixes     []string            `yaml:"suffixes"`
	Aliases      map[string]string   `yaml:"aliases"`
	Continents   map[string][]string `yaml:"continents"`
}

// Entry is a dictionary hit.
type Entry struct {
	City     string
	Language string
}

// Sizes reports how many entries each table holds.
type Sizes struct {
	Dictionary int `json:"dictionary"`
	Cities     int `json:"cities"`
	Countries  int `json:"countries"`
	Aliases    int `json:"aliases"`
}

// Gazetteer is immutable after construction and safe for concurrent use.
type Gazetteer struct {
	dictionary       map[string]Entry
	foldedDictionary map[string]Entry
	cities           map[string]string
	cityCountry      map[string]string
	continents       map[string]string
	countries        map[string]bool
	generic          map[string]bool
	aliases          map[string]string
	protected        map[string]bool
	prefixes         []string
	suffixes         []string
	maxWords         int
	digest           string
}

var loadDefault = sync.OnceValues(func() (*Gazetteer, error) {
	src, err := embeddedSource()
	if err != nil {
		return nil, err
	}
	return Parse(src)
})

// Default returns the gazetteer built from the embedded data files.
// The files are parsed on first use only.
func Default() (*Gazetteer, error) {
	return loadDefault()
}

func embeddedSource() (Source, error) {
	var src Source
	var err error
	if src.Dictionaries, err = dataFS.ReadFile("data/dictionaries.yaml"); err != nil {
		return src, eris.Wrap(err, "gazetteer: read dictionaries")
	}
	if src.Cities, err = dataFS.ReadFile("data/cities.yaml"); err != nil {
		return src, eris.Wrap(err, "gazetteer: read cities")
	}
	if src.Rules, err = dataFS.ReadFile("data/rules.yaml"); err != nil {
		return src, eris.Wrap(err, "gazetteer: read rules")
	}
	return src, nil
}

// Parse builds a Gazetteer from YAML documents.
func Parse(src Source) (*Gazetteer, error) {
	var dicts map[string]map[string]string
	if err := yaml.Unmarshal(src.Dictionaries, &dicts); err != nil {
		return nil, eris.Wrap(err, "gazetteer: parse dictionaries")
	}
	var cities map[string][]string
	if err := yaml.Unmarshal(src.Cities, &cities); err != nil {
		return nil, eris.Wrap(err, "gazetteer: parse cities")
	}
	var rules rulesDoc
	if err := yaml.Unmarshal(src.Rules, &rules); err != nil {
		return nil, eris.Wrap(err, "gazetteer: parse rules")
	}

	g := &Gazetteer{
		dictionary:       make(map[string]Entry),
		foldedDictionary: make(map[string]Entry),
		cities:           make(map[string]string),
		cityCountry:      make(map[string]string),
		continents:       make(map[string]string),
		countries:        make(map[string]bool),
		generic:          make(map[string]bool),
		aliases:          make(map[string]string),
		protected:        make(map[string]bool),
	}

	// Sorted iteration keeps first-wins collisions deterministic.
	for _, lang := range sortedKeys(dicts) {
		for _, raw := range sortedKeys(dicts[lang]) {
			city := strings.TrimSpace(dicts[lang][raw])
			key := strings.TrimSpace(raw)
			if key == "" || city == "" {
				return nil, eris.Errorf("gazetteer: empty dictionary entry in %s: %q", lang, raw)
			}
			e := Entry{City: city, Language: lang}
			if _, dup := g.dictionary[key]; !dup {
				g.dictionary[key] = e
			}
			if _, dup := g.foldedDictionary[Fold(key)]; !dup {
				g.foldedDictionary[Fold(key)] = e
			}
			g.addProtected(city)
		}
	}

	for _, country := range sortedKeys(cities) {
		g.countries[Fold(country)] = true
		for _, name := range cities[country] {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			key := Fold(name)
			if _, dup := g.cities[key]; dup {
				continue
			}
			g.cities[key] = name
			g.cityCountry[key] = country
			g.addProtected(name)
		}
	}

	for _, c := range rules.Countries {
		g.countries[Fold(c)] = true
	}
	for _, w := range rules.GenericWords {
		g.generic[Fold(w)] = true
	}
	for _, k := range sortedKeys(rules.Aliases) {
		v := strings.TrimSpace(rules.Aliases[k])
		if v == "" {
			return nil, eris.Errorf("gazetteer: empty alias target for %q", k)
		}
		g.aliases[Fold(k)] = v
		g.addProtected(k)
		g.addProtected(v)
	}
	for _, v := range g.aliases {
		if _, ok := g.aliases[Fold(v)]; ok {
			return nil, eris.Errorf("gazetteer: alias target %q is itself an alias", v)
		}
	}

	for _, continent := range sortedKeys(rules.Continents) {
		for _, country := range rules.Continents[continent] {
			key := Fold(country)
			if prev, dup := g.continents[key]; dup {
				return nil, eris.Errorf("gazetteer: %s listed under %s and %s", country, prev, continent)
			}
			g.continents[key] = continent
		}
	}

	g.prefixes = byLengthDesc(rules.Prefixes)
	g.suffixes = byLengthDesc(rules.Suffixes)

	h := sha256.New()
	h.Write(src.Dictionaries)
	h.Write(src.Cities)
	h.Write(src.Rules)
	g.digest = hex.EncodeToString(h.Sum(nil))

	return g, nil
}

func (g *Gazetteer) addProtected(name string) {
	key := Fold(name)
	g.protected[key] = true
	if n := len(strings.Fields(key)); n > g.maxWords {
		g.maxWords = n
	}
}

// Lookup returns the dictionary entry for an exact native-script name.
// Latin-script keys also match case- and accent-insensitively.
func (g *Gazetteer) Lookup(s string) (Entry, bool) {
	s = strings.TrimSpace(s)
	if e, ok := g.dictionary[s]; ok {
		return e, true
	}
	e, ok := g.foldedDictionary[Fold(s)]
	return e, ok
}

// MatchCity reports the canonical city a bare name denotes, checking the
// dictionaries, the world city list and the aliases in that order.
func (g *Gazetteer) MatchCity(s string) (string, bool) {
	return g.match(s, 0)
}

// MatchPhrase is MatchCity for phrases cut out of addresses, where short
// aliases such as "La" or "Dc" are ignored.
func (g *Gazetteer) MatchPhrase(s string) (string, bool) {
	return g.match(s, minPhraseAliasLen)
}

func (g *Gazetteer) match(s string, minAlias int) (string, bool) {
	if e, ok := g.Lookup(s); ok {
		return e.City, true
	}
	key := Fold(s)
	if key == "" {
		return "", false
	}
	if c, ok := g.cities[key]; ok {
		return c, true
	}
	if c, ok := g.aliases[key]; ok && utf8.RuneCountInString(key) >= minAlias {
		return c, true
	}
	return "", false
}

// IsCountry reports whether s names a country.
func (g *Gazetteer) IsCountry(s string) bool {
	return g.countries[Fold(s)]
}

// IsGeneric reports whether s is a generic address word such as "Building".
func (g *Gazetteer) IsGeneric(s string) bool {
	return g.generic[Fold(s)]
}

// IsProtected reports whether s is a recognized canonical city or alias
// that affix stripping must leave intact.
func (g *Gazetteer) IsProtected(s string) bool {
	return g.protected[Fold(s)]
}

// IsKnownCity reports whether s is in the world city list.
func (g *Gazetteer) IsKnownCity(s string) bool {
	_, ok := g.cities[Fold(s)]
	return ok
}

// CountryOf returns the country a known city belongs to, or "".
func (g *Gazetteer) CountryOf(city string) string {
	return g.cityCountry[Fold(city)]
}

// ContinentOf returns the continent of a known city's country, or "".
func (g *Gazetteer) ContinentOf(city string) string {
	return g.continents[Fold(g.CountryOf(city))]
}

// Prefixes returns the prefix list, longest first. Callers must not modify it.
func (g *Gazetteer) Prefixes() []string { return g.prefixes }

// Suffixes returns the suffix list, longest first. Callers must not modify it.
func (g *Gazetteer) Suffixes() []string { return g.suffixes }

// MaxWords is the word count of the longest protected name.
func (g *Gazetteer) MaxWords() int { return g.maxWords }

// Digest identifies the data the gazetteer was built from.
func (g *Gazetteer) Digest() string { return g.digest }

// Canonical returns every canonical city name the gazetteer can produce,
// sorted.
func (g *Gazetteer) Canonical() []string {
	set := make(map[string]bool, len(g.cities))
	for _, c := range g.cities {
		set[c] = true
	}
	for _, e := range g.dictionary {
		set[e.City] = true
	}
	for _, c := range g.aliases {
		set[c] = true
	}
	return sortedKeys(set)
}

// Sizes reports table sizes for logging.
func (g *Gazetteer) Sizes() Sizes {
	return Sizes{
		Dictionary: len(g.dictionary),
		Cities:     len(g.cities),
		Countries:  len(g.countries),
		Aliases:    len(g.aliases),
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func byLengthDesc(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return utf8.RuneCountInString(out[i]) > utf8.RuneCountInString(out[j])
	})
	return out
}
