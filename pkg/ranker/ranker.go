// Package ranker scores merged candidates with the v1 linear model:
// min-max normalized retrieval signals, saturated metadata-overlap
// features and a linear recency decay, combined under fixed weights.
// Scoring is pure and deterministic for a fixed input order.
package ranker

import (
	"sort"
	"time"

	"github.com/khojlabs/khoj/pkg/retrieval"
)

// Version identifies this scoring model in logs and responses.
const Version = "v1"

// Fixed weights. Lexical dominates because exact-term hits set the
// acceptability floor; the semantic signals carry long-tail recall.
const (
	WLex        = 1.00
	WSemChunk   = 0.40
	WSemArticle = 0.18
	WTag        = 0.12
	WCat        = 0.10
	WLoc        = 0.15
	WContrib    = 0.06
	WRecency    = 0.08
)

// recencyHorizonDays is the age at which the recency feature reaches 0.
const recencyHorizonDays = 1095

const epsilon = 1e-9

// Contribution is one weighted component of a candidate's score.
type Contribution struct {
	Component    string  `json:"component"`
	Contribution float64 `json:"contribution"`
}

// Ranked is one scored candidate.
type Ranked struct {
	*retrieval.Candidate

	Rank        int
	Score       float64
	Features    map[string]float64
	Explanation []Contribution
}

// Rank scores candidates against the query tokens and returns them in
// descending score order with dense 1-based ranks. The input order is
// the tie-break, so callers pass candidates pre-sorted by raw signals.
func Rank(cands []*retrieval.Candidate, qTokens []string, now time.Time) []Ranked {
	if len(cands) == 0 {
		return nil
	}

	lexN := minMax(cands, func(c *retrieval.Candidate) float64 { return c.Lexical })
	saN := minMax(cands, func(c *retrieval.Candidate) float64 { return c.SemArticle })
	scN := minMax(cands, func(c *retrieval.Candidate) float64 { return c.SemChunk })

	qset := make(map[string]struct{}, len(qTokens))
	for _, t := range qTokens {
		qset[t] = struct{}{}
	}

	ranked := make([]Ranked, len(cands))
	for i, c := range cands {
		var tagFeat, catFeat, locFeat, contribFeat, rec float64
		if c.Article != nil {
			tagFeat = saturate(overlapCount(c.Article.TagsNorm, qset), 2)
			catFeat = saturate(overlapCount(c.Article.CategoriesNorm, qset), 2)
			locFeat = saturate(overlapCount(c.Article.LocationsNorm, qset), 1)
			contribFeat = saturate(overlapCount(c.Article.ContributorsNorm, qset), 1)
			rec = recency(c.Article.PublishedTS, now)
		}

		contribs := []Contribution{
			{"lex", WLex * lexN[i]},
			{"sem_chunk", WSemChunk * scN[i]},
			{"sem_article", WSemArticle * saN[i]},
			{"tag", WTag * tagFeat},
			{"cat", WCat * catFeat},
			{"loc", WLoc * locFeat},
			{"contrib", WContrib * contribFeat},
			{"recency", WRecency * rec},
		}
		score := 0.0
		for _, p := range contribs {
			score += p.Contribution
		}

		ranked[i] = Ranked{
			Candidate: c,
			Score:     score,
			Features: map[string]float64{
				"lex_raw":      c.Lexical,
				"sa_raw":       c.SemArticle,
				"sc_raw":       c.SemChunk,
				"lex_n":        lexN[i],
				"sa_n":         saN[i],
				"sc_n":         scN[i],
				"tag_feat":     tagFeat,
				"cat_feat":     catFeat,
				"loc_feat":     locFeat,
				"contrib_feat": contribFeat,
				"recency":      rec,

				"src_lexical":     boolFeat(c.SrcLexical),
				"src_sem_article": boolFeat(c.SrcSemArticle),
				"src_sem_chunk":   boolFeat(c.SrcSemChunk),
			},
			Explanation: topContributions(contribs, 4),
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// minMax normalizes one signal across the candidate set. A flat signal
// normalizes to all zeros rather than all ones.
func minMax(cands []*retrieval.Candidate, get func(*retrieval.Candidate) float64) []float64 {
	lo, hi := get(cands[0]), get(cands[0])
	for _, c := range cands[1:] {
		v := get(c)
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	out := make([]float64, len(cands))
	if hi-lo < epsilon {
		return out
	}
	for i, c := range cands {
		out[i] = (get(c) - lo) / (hi - lo)
	}
	return out
}

// overlapCount counts distinct field values that appear verbatim among
// the query tokens. Multi-word values never match single tokens; that
// matching happens upstream in the gazetteer, not here.
func overlapCount(values []string, qset map[string]struct{}) int {
	seen := make(map[string]struct{}, len(values))
	n := 0
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		if _, ok := qset[v]; ok {
			n++
		}
	}
	return n
}

func boolFeat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func saturate(count, denom int) float64 {
	v := float64(count) / float64(denom)
	if v > 1 {
		return 1
	}
	return v
}

// recency decays linearly from 1 at publication to 0 at the horizon.
// Unknown timestamps contribute nothing.
func recency(publishedTS int64, now time.Time) float64 {
	if publishedTS <= 0 {
		return 0
	}
	ageDays := float64(now.Unix()-publishedTS) / 86400.0
	if ageDays < 0 {
		ageDays = 0
	}
	v := 1 - ageDays/recencyHorizonDays
	if v < 0 {
		return 0
	}
	return v
}

func topContributions(contribs []Contribution, n int) []Contribution {
	out := make([]Contribution, len(contribs))
	copy(out, contribs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Contribution > out[j].Contribution
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
