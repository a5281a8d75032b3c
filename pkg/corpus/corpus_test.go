package corpus

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadArticles(t *testing.T) {
	path := writeFile(t, "articles.jsonl", `
{"id":"a1","title_hi":"पहला","published_ts":1700000000}

{"id":"a2","title_hi":"दूसरा","locations_norm":["bihar"]}
`)
	table, err := LoadArticles(path)
	if err != nil {
		t.Fatalf("LoadArticles() failed: %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", table.Len())
	}

	a := table.Get("a1")
	if a == nil || a.TitleHi != "पहला" || a.PublishedTS != 1700000000 {
		t.Errorf("a1 = %+v", a)
	}
	if table.Get("missing") != nil {
		t.Error("Get(missing) should be nil")
	}

	ids := table.IDs()
	if len(ids) != 2 || ids[0] != "a1" || ids[1] != "a2" {
		t.Errorf("IDs() = %v, want file order", ids)
	}
}

func TestLoadArticlesRejectsMissingID(t *testing.T) {
	path := writeFile(t, "articles.jsonl", `{"title_hi":"बिना आईडी"}`)
	if _, err := LoadArticles(path); err == nil {
		t.Fatal("want error for row without id")
	}
}

func TestLoadArticlesRejectsBadJSON(t *testing.T) {
	path := writeFile(t, "articles.jsonl", `{"id":"a1"`)
	if _, err := LoadArticles(path); err == nil {
		t.Fatal("want error for malformed row")
	}
}

func TestChunksRoundTrip(t *testing.T) {
	chunks := []Chunk{
		{ChunkID: "a1::c0000", ArticleID: "a1", ChunkIndex: 0, ChunkText: "पहला खंड <b>", ChunkTokens: 5},
		{ChunkID: "a1::c0001", ArticleID: "a1", ChunkIndex: 1, ChunkText: "दूसरा खंड", ChunkTokens: 4},
	}
	path := filepath.Join(t.TempDir(), "chunks.jsonl")
	if err := WriteChunks(path, chunks); err != nil {
		t.Fatalf("WriteChunks() failed: %v", err)
	}

	got, err := LoadChunks(path)
	if err != nil {
		t.Fatalf("LoadChunks() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d chunks, want 2", len(got))
	}
	if got[0] != chunks[0] || got[1] != chunks[1] {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, chunks)
	}
}

func TestLoadChunkTexts(t *testing.T) {
	path := writeFile(t, "chunks.jsonl",
		`{"chunk_id":"a1::c0000","article_id":"a1","chunk_index":0,"chunk_text":"कुछ पाठ","chunk_tokens":3}`)
	texts, err := LoadChunkTexts(path)
	if err != nil {
		t.Fatalf("LoadChunkTexts() failed: %v", err)
	}
	if texts["a1::c0000"] != "कुछ पाठ" {
		t.Errorf("texts = %v", texts)
	}
}

func TestHeadAndFullText(t *testing.T) {
	a := &Article{TitleHi: "शीर्षक", SummaryHi: "सारांश", ContentHi: "मुख्य पाठ"}
	if got := a.HeadText(); got != "शीर्षक\n\nसारांश" {
		t.Errorf("HeadText() = %q", got)
	}
	if got := a.FullText(); got != "शीर्षक\n\nसारांश\n\nमुख्य पाठ" {
		t.Errorf("FullText() = %q", got)
	}

	titleOnly := &Article{TitleHi: "शीर्षक"}
	if got := titleOnly.HeadText(); got != "शीर्षक" {
		t.Errorf("HeadText() with title only = %q", got)
	}
}

func TestPrimaryCategory(t *testing.T) {
	a := &Article{Categories: []string{"स्वास्थ्य", "शिक्षा"}}
	if got := a.PrimaryCategory(); got != "स्वास्थ्य" {
		t.Errorf("PrimaryCategory() = %q", got)
	}
	if got := (&Article{}).PrimaryCategory(); got != "" {
		t.Errorf("PrimaryCategory() of empty = %q", got)
	}
}
