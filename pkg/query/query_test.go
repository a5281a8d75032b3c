package query

import (
	"reflect"
	"testing"
)

func TestCanonicalizeDevMode(t *testing.T) {
	cq := Canonicalize("बिहार   स्वास्थ्य")
	if cq.Mode != ModeDev {
		t.Fatalf("mode = %q, want %q", cq.Mode, ModeDev)
	}
	if cq.Q != "बिहार स्वास्थ्य" {
		t.Errorf("q = %q, want collapsed whitespace", cq.Q)
	}
	if cq.RomanNorm != "" {
		t.Errorf("roman_norm = %q, want empty for dev mode", cq.RomanNorm)
	}
}

func TestCanonicalizeRomanMode(t *testing.T) {
	cq := Canonicalize("Aasha Workers Training Bihar")
	if cq.Mode != ModeRoman {
		t.Fatalf("mode = %q, want %q", cq.Mode, ModeRoman)
	}
	if cq.Q != "asha workers training bihar" {
		t.Errorf("q = %q, want %q", cq.Q, "asha workers training bihar")
	}
	if cq.RomanNorm != cq.Q {
		t.Errorf("roman_norm = %q, want equal to q", cq.RomanNorm)
	}
}

func TestCanonicalizeMixedScriptRoutesToDev(t *testing.T) {
	// A couple of Devanagari words inside a longer roman query clears
	// the 2% threshold.
	cq := Canonicalize("बिहार latest news and updates")
	if cq.Mode != ModeDev {
		t.Errorf("mode = %q, want %q", cq.Mode, ModeDev)
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	for _, raw := range []string{"बिहार  स्वास्थ्य सेवा", "Aasha Workers Bihar", "vikas yojnaa"} {
		first := Canonicalize(raw)
		second := Canonicalize(first.Q)
		if second.Q != first.Q {
			t.Errorf("canonicalize not idempotent for %q: %q != %q", raw, first.Q, second.Q)
		}
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("Asha-Workers, बिहार! a x42")
	want := []string{"asha", "workers", "बिहार", "x42"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize() = %v, want %v", got, want)
	}
}

func TestTokenizeDropsShortTokens(t *testing.T) {
	got := Tokenize("a b cd")
	want := []string{"cd"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize() = %v, want %v", got, want)
	}
}

func TestTokenizeKeepsMatras(t *testing.T) {
	got := Tokenize("स्वास्थ्य सेवा")
	want := []string{"स्वास्थ्य", "सेवा"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize() = %v, want %v", got, want)
	}
}
