package translit

import "testing"

func TestToRomanBasic(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"क", "ka"},
		{"का", "kA"},
		{"क्", "k"},
		{"कम", "kama"},
		{"बिहार", "bihAra"},
		{"अ", "a"},
		{"ऐ", "ai"},
		{"नमस्ते", "namaste"},
	}
	for _, tc := range cases {
		if got := ToRoman(tc.in); got != tc.want {
			t.Errorf("ToRoman(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestToRomanNuktaAfterNFKC(t *testing.T) {
	// NFKC decomposes precomposed nukta consonants; the nukta must not
	// break matra attachment.
	in := "ज" + string(rune(0x093C)) + "ी" // za + nukta + ii matra
	if got := ToRoman(in); got != "zI" {
		t.Errorf("ToRoman(decomposed nukta) = %q, want %q", got, "zI")
	}
}

func TestToRomanPrecomposedNukta(t *testing.T) {
	// Input that never went through NFKC keeps the single code points.
	in := "\u095b\u0940" // precomposed za + ii matra
	if got := ToRoman(in); got != "zI" {
		t.Errorf("ToRoman(precomposed nukta) = %q, want %q", got, "zI")
	}
	// "film": precomposed fa + i matra, la + virama, ma.
	in = "\u095e\u093f\u0932\u094d\u092e"
	if got := ToRoman(in); got != "filma" {
		t.Errorf("ToRoman(precomposed fa word) = %q, want %q", got, "filma")
	}
}

func TestToRomanPassThrough(t *testing.T) {
	if got := ToRoman("abc 123"); got != "abc 123" {
		t.Errorf("ToRoman(latin) = %q, want unchanged", got)
	}
	if got := ToRoman(""); got != "" {
		t.Errorf("ToRoman(empty) = %q, want empty", got)
	}
}

func TestToRomanDigitsAndDanda(t *testing.T) {
	if got := ToRoman("२०२४।"); got != "2024." {
		t.Errorf("ToRoman(devanagari digits+danda) = %q, want %q", got, "2024.")
	}
}

func TestNormalizeVariantCollapse(t *testing.T) {
	a := Normalize("Yojnaa")
	b := Normalize("yojana")
	c := Normalize("yojna")
	if a != "yojana" || b != "yojana" || c != "yojana" {
		t.Errorf("yojana variants: got %q %q %q, want all %q", a, b, c, "yojana")
	}
}

func TestNormalizeVW(t *testing.T) {
	if got := Normalize("vikas"); got != "wikas" {
		t.Errorf("Normalize(vikas) = %q, want wikas", got)
	}
	if Normalize("vikas") != Normalize("wikas") {
		t.Error("vikas and wikas should normalize identically")
	}
}

func TestNormalizeVowelRuns(t *testing.T) {
	if got := Normalize("aasha"); got != "asha" {
		t.Errorf("Normalize(aasha) = %q, want asha", got)
	}
	if got := Normalize("sewaa kendra"); got != "sewa kendra" {
		t.Errorf("Normalize(sewaa kendra) = %q, want %q", got, "sewa kendra")
	}
}

func TestNormalizeStripsPunctuation(t *testing.T) {
	if got := Normalize("asha-workers, bihar!"); got != "asha workers bihar" {
		t.Errorf("Normalize() = %q, want %q", got, "asha workers bihar")
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, in := range []string{"Aasha Workers Bihar", "vikas yojnaa", ""} {
		once := Normalize(in)
		if twice := Normalize(once); once != twice {
			t.Errorf("Normalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestFoldDoubleVowels(t *testing.T) {
	if got := Fold("aaasha"); got != "aasha" {
		t.Errorf("Fold(aaasha) = %q, want aasha", got)
	}
	// Single vowels and v stay untouched.
	if got := Fold("vikas"); got != "vikas" {
		t.Errorf("Fold(vikas) = %q, want vikas", got)
	}
	if got := Fold("  Biharr  News "); got != "biharr news" {
		t.Errorf("Fold() = %q, want %q", got, "biharr news")
	}
}

func TestRomanizeNormalized(t *testing.T) {
	// Full index-side composition on a Devanagari title.
	got := RomanizeNormalized("बिहार")
	if got != "bihara" {
		t.Errorf("RomanizeNormalized(बिहार) = %q, want %q", got, "bihara")
	}
}
