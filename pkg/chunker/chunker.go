// Package chunker splits articles into paragraph-aware, token-budgeted
// chunks for the chunk vector store. Packing is paragraph-first for
// semantic coherence; a hard token cap protects the embedder's maximum
// sequence length and token windows overlap so phrases straddling split
// points survive.
package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/khojlabs/khoj/pkg/corpus"
)

// ErrBudgetViolation is returned when a chunk still exceeds the hard
// token cap after the post-pass. It is fatal for the chunking run.
var ErrBudgetViolation = errors.New("chunk exceeds hard token cap")

// embedderMaxTokens is the embedder's maximum sequence length; the hard
// cap must stay below it.
const embedderMaxTokens = 512

// Config holds the chunking budgets.
type Config struct {
	// MaxTokens is the soft target per chunk (default 240).
	MaxTokens int
	// OverlapTokens is the token-window overlap (default 40).
	OverlapTokens int
	// HardMaxTokens is the absolute cap (default 480, must be <= 512).
	HardMaxTokens int
}

// SetDefaults applies default budgets to unset fields.
func (c *Config) SetDefaults() {
	if c.MaxTokens == 0 {
		c.MaxTokens = 240
	}
	if c.OverlapTokens == 0 {
		c.OverlapTokens = 40
	}
	if c.HardMaxTokens == 0 {
		c.HardMaxTokens = 480
	}
}

// Validate checks the budget relationships.
func (c *Config) Validate() error {
	if c.HardMaxTokens > embedderMaxTokens {
		return fmt.Errorf("hard max tokens %d exceeds embedder limit %d", c.HardMaxTokens, embedderMaxTokens)
	}
	if c.MaxTokens > c.HardMaxTokens {
		return fmt.Errorf("max tokens %d exceeds hard max %d", c.MaxTokens, c.HardMaxTokens)
	}
	if c.OverlapTokens >= c.HardMaxTokens {
		return fmt.Errorf("overlap %d must be smaller than hard max %d", c.OverlapTokens, c.HardMaxTokens)
	}
	return nil
}

// Chunker splits text under a token budget using a tiktoken encoding.
type Chunker struct {
	enc *tiktoken.Tiktoken
	cfg Config
}

// New creates a Chunker with the cl100k_base encoding.
func New(cfg Config) (*Chunker, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding: %w", err)
	}
	return &Chunker{enc: enc, cfg: cfg}, nil
}

// CountTokens returns the token count of text.
func (c *Chunker) CountTokens(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// Split chunks one document's text. Every returned chunk is guaranteed to
// hold at most HardMaxTokens tokens; violation of that guarantee after
// the post-pass returns ErrBudgetViolation.
func (c *Chunker) Split(text string) ([]string, error) {
	paragraphs := splitParagraphs(text)

	var chunks []string
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) > 0 {
			txt := strings.TrimSpace(strings.Join(current, "\n\n"))
			if txt != "" {
				chunks = append(chunks, txt)
			}
		}
		current = nil
		currentTokens = 0
	}

	for _, para := range paragraphs {
		ptoks := c.CountTokens(para)

		if ptoks > c.cfg.MaxTokens {
			flush()
			parts := splitSentenceish(para)
			if len(parts) == 0 {
				parts = []string{para}
			}
			for _, part := range parts {
				if c.CountTokens(part) <= c.cfg.MaxTokens {
					if p := strings.TrimSpace(part); p != "" {
						chunks = append(chunks, p)
					}
				} else {
					chunks = append(chunks, c.tokenWindows(part)...)
				}
			}
			continue
		}

		if currentTokens+ptoks <= c.cfg.MaxTokens {
			current = append(current, para)
			currentTokens += ptoks
		} else {
			flush()
			current = append(current, para)
			currentTokens = ptoks
		}
	}
	flush()

	// Hard-cap post-pass.
	var capped []string
	for _, ch := range chunks {
		ch = strings.TrimSpace(ch)
		if ch == "" {
			continue
		}
		if c.CountTokens(ch) <= c.cfg.HardMaxTokens {
			capped = append(capped, ch)
		} else {
			capped = append(capped, c.tokenWindows(ch)...)
		}
	}

	for _, ch := range capped {
		if c.CountTokens(ch) > c.cfg.HardMaxTokens {
			return nil, fmt.Errorf("%w: %d tokens", ErrBudgetViolation, c.CountTokens(ch))
		}
	}
	return capped, nil
}

// ChunkArticle splits one article into chunk records with stable ids and
// denormalized display fields.
func (c *Chunker) ChunkArticle(a *corpus.Article) ([]corpus.Chunk, error) {
	texts, err := c.Split(a.FullText())
	if err != nil {
		return nil, fmt.Errorf("article %s: %w", a.ID, err)
	}

	chunks := make([]corpus.Chunk, 0, len(texts))
	for i, txt := range texts {
		chunks = append(chunks, corpus.Chunk{
			ChunkID:       fmt.Sprintf("%s::c%04d", a.ID, i),
			ArticleID:     a.ID,
			ChunkIndex:    i,
			ChunkText:     txt,
			ChunkTokens:   c.CountTokens(txt),
			URL:           a.URL,
			TitleHi:       a.TitleHi,
			PublishedDate: a.PublishedDate,
			PublishedTS:   a.PublishedTS,
		})
	}
	return chunks, nil
}

// tokenWindows slides fixed-size token windows over text that no textual
// split could bring under budget.
func (c *Chunker) tokenWindows(text string) []string {
	ids := c.enc.Encode(text, nil, nil)
	if len(ids) <= c.cfg.HardMaxTokens {
		t := strings.TrimSpace(text)
		if t == "" {
			return nil
		}
		return []string{t}
	}

	overlap := c.cfg.OverlapTokens
	if overlap < 1 {
		overlap = 1
	}
	step := c.cfg.HardMaxTokens - overlap

	var out []string
	for i := 0; i < len(ids); i += step {
		end := i + c.cfg.HardMaxTokens
		if end > len(ids) {
			end = len(ids)
		}
		txt := strings.TrimSpace(c.enc.Decode(ids[i:end]))
		if txt != "" {
			out = append(out, txt)
		}
	}
	return out
}

// splitParagraphs splits on blank lines and drops empties.
func splitParagraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// sentenceSeps orders the separators used for sentence-ish splitting.
// End-sentence punctuation stays attached to its sentence.
var sentenceSeps = []struct {
	sep  string
	keep bool
}{
	{"।", true},
	{"?", true},
	{"!", true},
	{"\n", false},
	{";", false},
	{":", false},
}

// splitSentenceish reduces extreme paragraph sizes before the
// token-window fallback. Conservative and Hindi-aware, not a full
// sentence splitter.
func splitSentenceish(text string) []string {
	t := strings.TrimSpace(text)
	if t == "" {
		return nil
	}

	parts := []string{t}
	for _, s := range sentenceSeps {
		var next []string
		for _, part := range parts {
			var segs []string
			for _, seg := range strings.Split(part, s.sep) {
				if seg = strings.TrimSpace(seg); seg != "" {
					segs = append(segs, seg)
				}
			}
			if len(segs) <= 1 {
				next = append(next, part)
				continue
			}
			for _, seg := range segs {
				if s.keep {
					next = append(next, seg+s.sep)
				} else {
					next = append(next, seg)
				}
			}
		}
		parts = next
	}

	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
