// Package gazetteer loads the closed-world entity vocabulary built from
// corpus metadata and lifts locations, contributors, categories and tags
// out of queries into structured lexical filters.
package gazetteer

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/khojlabs/khoj/pkg/query"
	"github.com/khojlabs/khoj/pkg/translit"
)

// Gazetteer fields, in scan order.
const (
	FieldLocations    = "locations_norm"
	FieldContributors = "contributors_norm"
	FieldCategories   = "categories_norm"
	FieldTags         = "tags_norm"
)

// Entry holds one field's vocabulary. Values and ValuesRomanNorm are
// parallel slices sorted longest-first so a greedy scan finds the most
// specific phrase before its substrings.
type Entry struct {
	Values          []string `json:"values"`
	ValuesRomanNorm []string `json:"values_roman_norm"`
}

// Gazetteer maps a metadata field to its vocabulary.
type Gazetteer map[string]Entry

// Load reads a gazetteer JSON file. Values are re-sorted longest-first on
// load so detection does not depend on the producer's ordering, and roman
// folds are backfilled for entries that lack them.
func Load(path string) (Gazetteer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gazetteer: %w", err)
	}

	var g Gazetteer
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("failed to parse gazetteer %s: %w", path, err)
	}

	for field, e := range g {
		if len(e.ValuesRomanNorm) != len(e.Values) {
			e.ValuesRomanNorm = make([]string, len(e.Values))
			for i, v := range e.Values {
				e.ValuesRomanNorm[i] = translit.Fold(v)
			}
		}

		idx := make([]int, len(e.Values))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool {
			va, vb := e.Values[idx[a]], e.Values[idx[b]]
			if len(va) != len(vb) {
				return len(va) > len(vb)
			}
			return va < vb
		})

		values := make([]string, len(idx))
		romans := make([]string, len(idx))
		for i, j := range idx {
			values[i] = e.Values[j]
			romans[i] = e.ValuesRomanNorm[j]
		}
		g[field] = Entry{Values: values, ValuesRomanNorm: romans}
	}

	return g, nil
}

// Detection is the structured result of entity lifting for one query.
type Detection struct {
	Matches      map[string][]string
	Confidence   map[string]int
	FilterByAuto string
}

// maxPerField caps matches per field; beyond three the filter would be
// broader than the query it came from.
const maxPerField = 3

var wsRe = regexp.MustCompile(`\s+`)

func normWS(s string) string {
	return wsRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

// Detect scans the query against the gazetteer and emits matches,
// per-field confidence and the auto filter string.
//
// Confidence: phrase substring hit +2, token-overlap hit +1. Filters are
// conservative: locations filter on any match, contributors only on a
// phrase hit (>=2), categories and tags only on multiple phrase hits (>=4).
func Detect(queryUsed, mode string, g Gazetteer) Detection {
	qUsed := normWS(queryUsed)
	qTokens := query.Tokenize(qUsed)

	qRoman := ""
	if mode != query.ModeDev {
		qRoman = translit.Fold(qUsed)
	}

	matches := make(map[string][]string)
	conf := make(map[string]int)

	scan := func(field string, allowToken bool) {
		entry := g[field]
		var got []string
		score := 0

		for i, v := range entry.Values {
			if len(got) >= maxPerField {
				break
			}
			vNorm := normWS(v)
			if vNorm == "" {
				continue
			}

			if strings.Contains(qUsed, vNorm) {
				got = append(got, v)
				score += 2
				continue
			}
			if mode != query.ModeDev {
				// Metadata values may be latin already; otherwise match
				// the folded roman forms against the folded query.
				vr := ""
				if i < len(entry.ValuesRomanNorm) {
					vr = entry.ValuesRomanNorm[i]
				}
				if vr == "" {
					vr = translit.Fold(vNorm)
				}
				if vr != "" && strings.Contains(qRoman, vr) {
					got = append(got, v)
					score += 2
				}
			}
		}

		if allowToken && len(got) < maxPerField {
			qset := make(map[string]struct{}, len(qTokens))
			for _, t := range qTokens {
				qset[t] = struct{}{}
			}
			for _, v := range entry.Values {
				if len(got) >= maxPerField {
					break
				}
				overlap := false
				for _, vt := range query.Tokenize(v) {
					if _, ok := qset[vt]; ok {
						overlap = true
						break
					}
				}
				if overlap && !contains(got, v) {
					got = append(got, v)
					score++
				}
			}
		}

		if len(got) > 0 {
			matches[field] = got
			conf[field] = score
		}
	}

	scan(FieldLocations, true)
	// Contributors are phrase-only: token matching would alias first names.
	scan(FieldContributors, false)
	scan(FieldCategories, true)
	scan(FieldTags, true)

	var filters []string
	if len(matches[FieldLocations]) > 0 {
		filters = appendFilter(filters, FieldLocations, matches[FieldLocations])
	}
	if len(matches[FieldContributors]) > 0 && conf[FieldContributors] >= 2 {
		filters = appendFilter(filters, FieldContributors, matches[FieldContributors])
	}
	if len(matches[FieldCategories]) > 0 && conf[FieldCategories] >= 4 {
		filters = appendFilter(filters, FieldCategories, matches[FieldCategories])
	}
	if len(matches[FieldTags]) > 0 && conf[FieldTags] >= 4 {
		filters = appendFilter(filters, FieldTags, matches[FieldTags])
	}

	return Detection{
		Matches:      matches,
		Confidence:   conf,
		FilterByAuto: strings.Join(filters, " && "),
	}
}

// BuildInFilter renders a Typesense IN filter: field:=[`v1`,`v2`].
// Backticks inside values are escaped.
func BuildInFilter(field string, values []string) string {
	if len(values) == 0 {
		return ""
	}
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "`" + strings.ReplaceAll(v, "`", "\\`") + "`"
	}
	return fmt.Sprintf("%s:=[%s]", field, strings.Join(quoted, ","))
}

func appendFilter(filters []string, field string, values []string) []string {
	if f := BuildInFilter(field, values); f != "" {
		filters = append(filters, f)
	}
	return filters
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
