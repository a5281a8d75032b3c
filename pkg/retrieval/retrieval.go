// Package retrieval fans the query out to the lexical and semantic
// backends in parallel and merges the hits into article-granularity
// candidates. Either branch failing fails the whole retrieval; there is
// no partial result.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/khojlabs/khoj/pkg/apierr"
	"github.com/khojlabs/khoj/pkg/corpus"
	"github.com/khojlabs/khoj/pkg/embedder"
	"github.com/khojlabs/khoj/pkg/lexical"
	"github.com/khojlabs/khoj/pkg/query"
	"github.com/khojlabs/khoj/pkg/semantic"
)

// Candidate is one merged candidate with raw signals aggregated by max
// and a metadata snapshot frozen from the article table.
type Candidate struct {
	ArticleID   string
	Lexical     float64
	SemArticle  float64
	SemChunk    float64
	BestChunkID string

	SrcLexical    bool
	SrcSemArticle bool
	SrcSemChunk   bool

	Article *corpus.Article
}

// Result carries the capped candidate list plus per-branch hit counts
// for the query log.
type Result struct {
	Candidates []*Candidate
	LexN       int
	SemArtN    int
	SemChunkN  int
}

// Config holds the retrieval fan-out knobs.
type Config struct {
	LexicalTopK    int
	CandidateCap   int
	LexicalTimeout time.Duration
	VectorTimeout  time.Duration
}

// Retriever owns the backend clients for one process.
type Retriever struct {
	lex      *lexical.Client
	vectors  *semantic.Store
	embed    *embedder.Client
	articles *corpus.Table
	cfg      Config
}

// New wires a Retriever from already-constructed clients.
func New(lex *lexical.Client, vectors *semantic.Store, embed *embedder.Client, articles *corpus.Table, cfg Config) *Retriever {
	return &Retriever{lex: lex, vectors: vectors, embed: embed, articles: articles, cfg: cfg}
}

// Retrieve runs both branches and merges. The lexical branch consumes
// the canonical query; the semantic branch embeds the raw query.
func (r *Retriever) Retrieve(ctx context.Context, cq query.Canonical, filterBy string) (*Result, error) {
	var (
		lexHits   []lexical.Hit
		artHits   []semantic.ArticleHit
		chunkHits []semantic.ChunkHit
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lctx, cancel := context.WithTimeout(gctx, r.cfg.LexicalTimeout)
		defer cancel()
		hits, err := r.lex.Search(lctx, cq.Q, cq.Mode, filterBy, r.cfg.LexicalTopK)
		if err != nil {
			return err
		}
		lexHits = hits
		return nil
	})

	g.Go(func() error {
		vctx, cancel := context.WithTimeout(gctx, r.cfg.VectorTimeout)
		defer cancel()
		vec, err := r.embed.EmbedQuery(vctx, cq.Raw)
		if err != nil {
			return fmt.Errorf("%w: query embedding: %v", apierr.ErrRetrieval, err)
		}
		if artHits, err = r.vectors.SearchArticles(vctx, vec); err != nil {
			return err
		}
		if chunkHits, err = r.vectors.SearchChunks(vctx, vec); err != nil {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	cands := merge(lexHits, artHits, chunkHits)
	for _, c := range cands {
		c.Article = r.articles.Get(c.ArticleID)
	}

	// Cheap raw-sum pre-rank keeps the candidate set bounded before the
	// full feature pass.
	sort.SliceStable(cands, func(i, j int) bool {
		return rawSum(cands[i]) > rawSum(cands[j])
	})
	if r.cfg.CandidateCap > 0 && len(cands) > r.cfg.CandidateCap {
		cands = cands[:r.cfg.CandidateCap]
	}

	return &Result{
		Candidates: cands,
		LexN:       len(lexHits),
		SemArtN:    len(artHits),
		SemChunkN:  len(chunkHits),
	}, nil
}

// merge unions hits at article granularity with max-aggregation per
// signal. First-seen order is preserved (lexical, then article vectors,
// then chunk vectors) so later stable sorts break ties predictably.
func merge(lexHits []lexical.Hit, artHits []semantic.ArticleHit, chunkHits []semantic.ChunkHit) []*Candidate {
	byID := make(map[string]*Candidate)
	var order []string

	get := func(articleID string) *Candidate {
		if c, ok := byID[articleID]; ok {
			return c
		}
		c := &Candidate{ArticleID: articleID}
		byID[articleID] = c
		order = append(order, articleID)
		return c
	}

	for _, h := range lexHits {
		c := get(h.ArticleID)
		c.SrcLexical = true
		if h.TextMatch > c.Lexical {
			c.Lexical = h.TextMatch
		}
	}
	for _, h := range artHits {
		c := get(h.ArticleID)
		c.SrcSemArticle = true
		if h.Score > c.SemArticle {
			c.SemArticle = h.Score
		}
	}
	for _, h := range chunkHits {
		c := get(h.ArticleID)
		c.SrcSemChunk = true
		if h.Score > c.SemChunk {
			c.SemChunk = h.Score
			c.BestChunkID = h.ChunkID
		}
	}

	out := make([]*Candidate, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

func rawSum(c *Candidate) float64 {
	return c.Lexical + c.SemChunk + c.SemArticle
}
