// Package query classifies a raw user query by script and produces the
// lexical query string for the detected mode. The semantic retrieval
// branch always uses the raw query; only the lexical branch consumes the
// canonical form built here.
package query

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/khojlabs/khoj/pkg/textnorm"
	"github.com/khojlabs/khoj/pkg/translit"
)

// Query modes.
const (
	ModeDev   = "dev"
	ModeRoman = "roman"
)

// devThreshold is the Devanagari rune fraction above which a query is
// treated as Hindi-script. Kept low: even a couple of Devanagari words
// inside a longer roman query should route to the dev index fields.
const devThreshold = 0.02

// Canonical is the canonicalized form of one user query.
type Canonical struct {
	Raw       string
	Mode      string
	Q         string
	RomanNorm string
}

// Canonicalize classifies and canonicalizes a raw query.
func Canonicalize(raw string) Canonical {
	if textnorm.DevanagariFraction(raw) > devThreshold {
		q := textnorm.Normalize(raw)
		if q == "" {
			q = raw
		}
		return Canonical{Raw: raw, Mode: ModeDev, Q: q}
	}
	rn := translit.Normalize(raw)
	return Canonical{Raw: raw, Mode: ModeRoman, Q: rn, RomanNorm: rn}
}

// tokenSplitRe splits on anything that is neither a word character nor a
// Devanagari code point, so matras and signs stay attached to tokens.
var tokenSplitRe = regexp.MustCompile(`[^\p{L}\p{N}_\x{0900}-\x{097F}]+`)

// Tokenize lowercases and splits a query into loose tokens, dropping
// tokens shorter than two runes.
func Tokenize(q string) []string {
	parts := tokenSplitRe.Split(strings.ToLower(q), -1)
	out := make([]string, 0, len(parts))
	for _, t := range parts {
		if t != "" && utf8.RuneCountInString(t) >= 2 {
			out = append(out, t)
		}
	}
	return out
}
