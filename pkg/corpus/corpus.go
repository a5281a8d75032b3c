// Package corpus loads the startup artifacts: the canonical article table
// and the chunk text table, both JSONL. Loaded data is immutable for the
// process lifetime and safe for concurrent reads without locks.
package corpus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Article is one canonical article row, frozen at query time.
type Article struct {
	ID            string `json:"id"`
	URL           string `json:"url,omitempty"`
	TitleHi       string `json:"title_hi,omitempty"`
	SummaryHi     string `json:"summary_hi,omitempty"`
	ContentHi     string `json:"content_hi,omitempty"`
	PublishedDate string `json:"published_date,omitempty"`
	PublishedTS   int64  `json:"published_ts,omitempty"`

	Categories   []string `json:"categories,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Locations    []string `json:"locations,omitempty"`
	Contributors []string `json:"contributors,omitempty"`

	CategoriesNorm   []string `json:"categories_norm,omitempty"`
	TagsNorm         []string `json:"tags_norm,omitempty"`
	LocationsNorm    []string `json:"locations_norm,omitempty"`
	ContributorsNorm []string `json:"contributors_norm,omitempty"`

	PartnerLabel   string `json:"partner_label,omitempty"`
	ArticleType    string `json:"article_type,omitempty"`
	MultimediaType string `json:"multimedia_type,omitempty"`
}

// PrimaryCategory is the first display category, or "".
func (a *Article) PrimaryCategory() string {
	if len(a.Categories) > 0 {
		return a.Categories[0]
	}
	return ""
}

// HeadText is the title+summary text embedded as the article vector.
func (a *Article) HeadText() string {
	txt := joinNonEmpty([]string{a.TitleHi, a.SummaryHi}, "\n\n")
	if txt == "" {
		txt = strings.TrimSpace(a.TitleHi)
	}
	return txt
}

// FullText is the title+summary+content text fed to the chunker.
func (a *Article) FullText() string {
	return joinNonEmpty([]string{a.TitleHi, a.SummaryHi, a.ContentHi}, "\n\n")
}

// Chunk is one chunk row. Display fields are denormalized so snippet
// assembly never needs an article join.
type Chunk struct {
	ChunkID     string `json:"chunk_id"`
	ArticleID   string `json:"article_id"`
	ChunkIndex  int    `json:"chunk_index"`
	ChunkText   string `json:"chunk_text"`
	ChunkTokens int    `json:"chunk_tokens"`

	URL           string `json:"url,omitempty"`
	TitleHi       string `json:"title_hi,omitempty"`
	PublishedDate string `json:"published_date,omitempty"`
	PublishedTS   int64  `json:"published_ts,omitempty"`
}

// Table is the in-memory article table keyed by id.
type Table struct {
	byID map[string]*Article
	ids  []string
}

// LoadArticles reads the article JSONL file into a Table.
func LoadArticles(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open articles table: %w", err)
	}
	defer f.Close()

	t := &Table{byID: make(map[string]*Article)}
	sc := newLineScanner(f)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var a Article
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("bad article row at %s:%d: %w", path, line, err)
		}
		if a.ID == "" {
			return nil, fmt.Errorf("article row at %s:%d has no id", path, line)
		}
		if _, dup := t.byID[a.ID]; !dup {
			t.ids = append(t.ids, a.ID)
		}
		t.byID[a.ID] = &a
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan articles table: %w", err)
	}
	return t, nil
}

// Get returns the article for id, or nil.
func (t *Table) Get(id string) *Article {
	return t.byID[id]
}

// IDs returns article ids in file order.
func (t *Table) IDs() []string { return t.ids }

// Len returns the number of articles.
func (t *Table) Len() int { return len(t.byID) }

// LoadChunks reads the chunk JSONL file.
func LoadChunks(path string) ([]Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open chunks table: %w", err)
	}
	defer f.Close()

	var chunks []Chunk
	sc := newLineScanner(f)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var c Chunk
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("bad chunk row at %s:%d: %w", path, line, err)
		}
		if c.ChunkID == "" {
			return nil, fmt.Errorf("chunk row at %s:%d has no chunk_id", path, line)
		}
		chunks = append(chunks, c)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan chunks table: %w", err)
	}
	return chunks, nil
}

// LoadChunkTexts builds the chunk_id -> chunk_text map used for snippets.
func LoadChunkTexts(path string) (map[string]string, error) {
	chunks, err := LoadChunks(path)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(chunks))
	for _, c := range chunks {
		m[c.ChunkID] = c.ChunkText
	}
	return m, nil
}

// WriteChunks writes chunk rows as JSONL, one object per line.
func WriteChunks(path string, chunks []Chunk) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create chunks file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, c := range chunks {
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("failed to encode chunk %s: %w", c.ChunkID, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush chunks file: %w", err)
	}
	return nil
}

// newLineScanner returns a scanner sized for long article rows.
func newLineScanner(f *os.File) *bufio.Scanner {
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 1<<20), 16<<20)
	return sc
}

func joinNonEmpty(parts []string, sep string) string {
	var keep []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			keep = append(keep, p)
		}
	}
	return strings.TrimSpace(strings.Join(keep, sep))
}
