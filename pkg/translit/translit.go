// Package translit converts Devanagari text to a deterministic roman form
// and collapses roman spelling variance into the canonical shape shared by
// the lexical index and query-time matching.
//
// Two normalizers exist on purpose. Normalize is the heavy index/query
// canonical form (single-vowel collapse, v→w, yojana variants). Fold is
// the light form used for gazetteer values and roman phrase matching
// (double-vowel collapse only). They are not interchangeable: folding a
// gazetteer with Normalize changes which phrases match.
package translit

import (
	"regexp"
	"strings"
)

const (
	virama = '्'
	nukta  = '़'
)

// consonants carry an inherent 'a' unless followed by a matra or virama.
var consonants = map[rune]string{
	'क': "k", 'ख': "kh", 'ग': "g", 'घ': "gh", 'ङ': "G",
	'च': "c", 'छ': "ch", 'ज': "j", 'झ': "jh", 'ञ': "J",
	'ट': "T", 'ठ': "Th", 'ड': "D", 'ढ': "Dh", 'ण': "N",
	'त': "t", 'थ': "th", 'द': "d", 'ध': "dh", 'न': "n",
	'प': "p", 'फ': "ph", 'ब': "b", 'भ': "bh", 'म': "m",
	'य': "y", 'र': "r", 'ल': "l", 'व': "v",
	'श': "z", 'ष': "S", 'स': "s", 'ह': "h",
	// Precomposed nukta consonants (U+0958..U+095F), common in Hindi
	// loanwords. Decomposed consonant+nukta pairs go through nuktaForms.
	'\u0958': "q", '\u0959': "kh", '\u095a': "g", '\u095b': "z",
	'\u095c': "D", '\u095d': "Dh", '\u095e': "f", '\u095f': "y",
}

// nuktaForms maps a base consonant followed by a combining nukta to the
// roman form of the precomposed loanword consonant. NFKC decomposes the
// precomposed code points, so the pair shows up split.
var nuktaForms = map[rune]string{
	'क': "q", 'ख': "kh", 'ग': "g", 'ज': "z", 'ड': "D", 'ढ': "Dh", 'फ': "f", 'य': "y",
}

var independentVowels = map[rune]string{
	'अ': "a", 'आ': "A", 'इ': "i", 'ई': "I", 'उ': "u", 'ऊ': "U",
	'ऋ': "R", 'ॠ': "RR", 'ऌ': "lR", 'ॡ': "lRR",
	'ए': "e", 'ऐ': "ai", 'ओ': "o", 'औ': "au",
	'ऍ': "e", 'ऑ': "o",
}

var matras = map[rune]string{
	'ा': "A", 'ि': "i", 'ी': "I", 'ु': "u", 'ू': "U",
	'ृ': "R", 'ॄ': "RR", 'ॢ': "lR", 'ॣ': "lRR",
	'े': "e", 'ै': "ai", 'ो': "o", 'ौ': "au",
	'ॅ': "e", 'ॉ': "o",
}

var signs = map[rune]string{
	'ं': "M", 'ः': "H", 'ँ': "~",
	'ऽ': "'", 'ॐ': "OM",
	'।': ".", '॥': "..",
	'०': "0", '१': "1", '२': "2", '३': "3", '४': "4",
	'५': "5", '६': "6", '७': "7", '८': "8", '९': "9",
	'़': "", // stray nukta
	'॑': "", '॒': "", // vedic tone marks
}

// ToRoman transliterates Devanagari to Harvard-Kyoto. Characters outside
// the tables pass through unchanged; the function never fails.
func ToRoman(s string) string {
	if s == "" {
		return ""
	}
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if c, ok := consonants[r]; ok {
			// NFKC decomposes precomposed nukta consonants, so a nukta
			// may sit between the consonant and its matra or virama.
			j := i + 1
			if j < len(runes) && runes[j] == nukta {
				if nf, ok := nuktaForms[r]; ok {
					c = nf
				}
				j++
			}
			b.WriteString(c)
			if j < len(runes) {
				if runes[j] == virama {
					i = j
					continue
				}
				if m, ok := matras[runes[j]]; ok {
					b.WriteString(m)
					i = j
					continue
				}
			}
			i = j - 1
			b.WriteString("a")
			continue
		}
		if v, ok := independentVowels[r]; ok {
			b.WriteString(v)
			continue
		}
		if m, ok := matras[r]; ok {
			// Orphan matra (malformed input): emit its vowel.
			b.WriteString(m)
			continue
		}
		if g, ok := signs[r]; ok {
			b.WriteString(g)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var (
	nonAlnumRe = regexp.MustCompile(`[^a-z0-9\s]+`)
	spacesRe   = regexp.MustCompile(`\s+`)

	vowelRunsRe = []*regexp.Regexp{
		regexp.MustCompile(`a{2,}`),
		regexp.MustCompile(`i{2,}`),
		regexp.MustCompile(`u{2,}`),
		regexp.MustCompile(`e{2,}`),
		regexp.MustCompile(`o{2,}`),
	}
	vowelSingles = []string{"a", "i", "u", "e", "o"}

	yojanaRe = regexp.MustCompile(`\b(yojna|yojana|yojnaa)\b`)

	doubleVowelRe = []*regexp.Regexp{
		regexp.MustCompile(`aa+`),
		regexp.MustCompile(`ee+`),
		regexp.MustCompile(`ii+`),
		regexp.MustCompile(`oo+`),
		regexp.MustCompile(`uu+`),
	}
	doubleVowels = []string{"aa", "ee", "ii", "oo", "uu"}
)

// Normalize produces the canonical roman form used by the roman index
// fields and by roman-mode queries: lowercase, alnum-only, whitespace
// collapsed, vowel runs collapsed to one, v→w, yojana variants unified.
func Normalize(s string) string {
	t := strings.ToLower(strings.TrimSpace(s))
	if t == "" {
		return ""
	}
	t = nonAlnumRe.ReplaceAllString(t, " ")
	t = strings.TrimSpace(spacesRe.ReplaceAllString(t, " "))

	for i, re := range vowelRunsRe {
		t = re.ReplaceAllString(t, vowelSingles[i])
	}

	t = strings.ReplaceAll(t, "v", "w")
	t = yojanaRe.ReplaceAllString(t, "yojana")

	return strings.TrimSpace(spacesRe.ReplaceAllString(t, " "))
}

// RomanizeNormalized is the index-side composition: transliterate to
// Harvard-Kyoto, then Normalize. Used to build the *_roman_norm fields.
func RomanizeNormalized(s string) string {
	return Normalize(ToRoman(s))
}

// Fold is the light roman fold applied to gazetteer values and roman
// queries during entity matching: lowercase, whitespace collapse and
// double-vowel collapse. No v→w, no transliteration.
func Fold(s string) string {
	t := strings.ToLower(strings.TrimSpace(s))
	if t == "" {
		return ""
	}
	t = strings.TrimSpace(spacesRe.ReplaceAllString(t, " "))
	for i, re := range doubleVowelRe {
		t = re.ReplaceAllString(t, doubleVowels[i])
	}
	return t
}
