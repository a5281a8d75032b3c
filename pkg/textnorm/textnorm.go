// Package textnorm implements the canonical text cleanup applied to every
// string the service indexes or matches against: encoding repair, Unicode
// NFKC, zero-width removal, whitespace canonicalization and Devanagari
// punctuation spacing. Normalize is idempotent and never alters meaning.
package textnorm

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	spaceTabRe     = regexp.MustCompile(`[ \t]+`)
	multiNewlineRe = regexp.MustCompile(`\n{3,}`)

	// Devanagari-aware punctuation spacing: no whitespace before,
	// exactly one space after when followed by a non-space.
	punctBeforeRe = regexp.MustCompile(`\s+([।,;:!?])`)
	punctAfterRe  = regexp.MustCompile(`([।,;:!?])([^\s])`)
)

// zeroWidth lists the zero-width code points stripped from all text:
// ZWSP, ZWNJ, ZWJ and the BOM.
var zeroWidth = strings.NewReplacer(
	"\u200b", "",
	"\u200c", "",
	"\u200d", "",
	"\ufeff", "",
)

// Normalize runs the full cleanup pipeline. Empty input stays empty.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	s = RepairEncoding(s)
	s = norm.NFKC.String(s)
	s = zeroWidth.Replace(s)

	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = spaceTabRe.ReplaceAllString(s, " ")
	s = multiNewlineRe.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)

	s = punctBeforeRe.ReplaceAllString(s, "$1")
	s = punctAfterRe.ReplaceAllString(s, "$1 $2")

	return s
}

// RepairEncoding reverses the most common mojibake: UTF-8 bytes that were
// decoded once as Latin-1 (Devanagari then shows up as runs like "à¤..").
// The reversal is attempted only when every rune fits in a single Latin-1
// byte and the reinterpreted bytes form valid UTF-8 that actually combined
// multibyte sequences. Anything else passes through untouched, so the
// function is safe on clean text and idempotent.
func RepairEncoding(s string) string {
	buf := make([]byte, 0, len(s))
	multi := false
	for _, r := range s {
		if r > 0xFF {
			return s
		}
		if r > 0x7F {
			multi = true
		}
		buf = append(buf, byte(r))
	}
	if !multi || !utf8.Valid(buf) {
		return s
	}
	if utf8.RuneCount(buf) >= utf8.RuneCountInString(s) {
		// Nothing combined; the high bytes were real Latin-1 text.
		return s
	}
	return string(buf)
}

// DevanagariFraction returns the share of runes inside the Devanagari
// block U+0900..U+097F. Zero for empty strings.
func DevanagariFraction(s string) float64 {
	if s == "" {
		return 0
	}
	total := 0
	dev := 0
	for _, r := range s {
		total++
		if r >= 0x0900 && r <= 0x097F {
			dev++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(dev) / float64(total)
}
