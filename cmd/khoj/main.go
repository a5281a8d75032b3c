// Command khoj runs the bilingual article search service and its
// offline pipeline.
//
// Usage:
//
//	khoj serve
//	khoj chunk --articles artifacts/articles.jsonl --out artifacts/chunks.jsonl
//	khoj index --articles artifacts/articles.jsonl --chunks artifacts/chunks.jsonl
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/khojlabs/khoj/pkg/chunker"
	"github.com/khojlabs/khoj/pkg/config"
	"github.com/khojlabs/khoj/pkg/corpus"
	"github.com/khojlabs/khoj/pkg/embedder"
	"github.com/khojlabs/khoj/pkg/gazetteer"
	"github.com/khojlabs/khoj/pkg/lexical"
	"github.com/khojlabs/khoj/pkg/retrieval"
	"github.com/khojlabs/khoj/pkg/semantic"
	"github.com/khojlabs/khoj/pkg/server"
	"github.com/khojlabs/khoj/pkg/store"
	"github.com/khojlabs/khoj/pkg/translit"
)

// CLI defines the command-line interface.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Serve   ServeCmd   `cmd:"" help:"Start the search API server."`
	Chunk   ChunkCmd   `cmd:"" help:"Split articles into token-budgeted chunks."`
	Index   IndexCmd   `cmd:"" help:"Build the lexical and vector indexes."`

	LogLevel  string `help:"Log level (debug, info, warn, error)." env:"LOG_LEVEL" default:"info"`
	LogFormat string `help:"Log format (text, json)." env:"LOG_FORMAT" default:"text"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("khoj %s\n", version)
	return nil
}

// ServeCmd starts the search API.
type ServeCmd struct {
	Port int `help:"Port to listen on (overrides API_PORT)." default:"0"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if c.Port > 0 {
		cfg.APIPort = c.Port
	}

	logger := slog.Default()

	gaz, err := gazetteer.Load(cfg.GazetteerPath)
	if err != nil {
		return err
	}
	articles, err := corpus.LoadArticles(cfg.ArticlesPath)
	if err != nil {
		return err
	}
	chunkTexts, err := corpus.LoadChunkTexts(cfg.ChunksPath)
	if err != nil {
		return err
	}
	logger.Info("startup artifacts loaded",
		"articles", articles.Len(), "chunks", len(chunkTexts), "gazetteer_fields", len(gaz))

	lex := lexical.New(cfg.TypesenseURL(), cfg.TypesenseAPIKey, cfg.TypesenseCollection, cfg.LexicalTimeout)
	vectors, err := semantic.New(semantic.Config{
		Host:              cfg.QdrantHost,
		Port:              cfg.QdrantPort,
		APIKey:            cfg.QdrantAPIKey,
		UseTLS:            cfg.QdrantUseTLS,
		ArticleCollection: cfg.QdrantCollectionArticles,
		ChunkCollection:   cfg.QdrantCollectionChunks,
		ArticleTopK:       cfg.SemArticleTopK,
		ChunkTopK:         cfg.SemChunkTopK,
	})
	if err != nil {
		return err
	}
	defer vectors.Close()

	embed := embedder.New(cfg.EmbedderURL, cfg.EmbedderModel, cfg.EmbeddingDim)

	feedback, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer feedback.Close()

	retriever := retrieval.New(lex, vectors, embed, articles, retrieval.Config{
		LexicalTopK:    cfg.LexicalTopK,
		CandidateCap:   cfg.CandidateCap,
		LexicalTimeout: cfg.LexicalTimeout,
		VectorTimeout:  cfg.VectorTimeout,
	})

	srv := server.New(server.Config{
		Addr:              cfg.APIAddr(),
		RankerVersion:     cfg.RankerVersion,
		RetrievalVersion:  cfg.RetrievalVersion,
		LogCandidatesTopN: cfg.LogCandidatesTopN,
		DBTimeout:         cfg.DBTimeout,
	}, retriever, gaz, chunkTexts, articles, feedback, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	return srv.Start()
}

// ChunkCmd runs the offline chunking pipeline.
type ChunkCmd struct {
	Articles  string `help:"Path to the article JSONL file." type:"path" required:""`
	Out       string `help:"Output chunk JSONL path." type:"path" required:""`
	MaxTokens int    `name:"max-tokens" help:"Soft token budget per chunk." default:"240"`
	Overlap   int    `help:"Token-window overlap." default:"40"`
	HardMax   int    `name:"hard-max" help:"Absolute token cap per chunk." default:"480"`
}

func (c *ChunkCmd) Run(cli *CLI) error {
	articles, err := corpus.LoadArticles(c.Articles)
	if err != nil {
		return err
	}

	ck, err := chunker.New(chunker.Config{
		MaxTokens:     c.MaxTokens,
		OverlapTokens: c.Overlap,
		HardMaxTokens: c.HardMax,
	})
	if err != nil {
		return err
	}

	var all []corpus.Chunk
	maxTokens := 0
	overBudget := 0
	for _, id := range articles.IDs() {
		chunks, err := ck.ChunkArticle(articles.Get(id))
		if err != nil {
			return err
		}
		for _, ch := range chunks {
			if ch.ChunkTokens > maxTokens {
				maxTokens = ch.ChunkTokens
			}
			if ch.ChunkTokens > c.MaxTokens {
				overBudget++
			}
		}
		all = append(all, chunks...)
	}

	if err := corpus.WriteChunks(c.Out, all); err != nil {
		return err
	}

	slog.Info("chunking complete",
		"articles", articles.Len(), "chunks", len(all),
		"max_chunk_tokens", maxTokens, "over_soft_budget", overBudget, "out", c.Out)
	return nil
}

// IndexCmd pushes articles into the lexical index and article and chunk
// vectors into the vector store.
type IndexCmd struct {
	Articles  string `help:"Path to the article JSONL file." type:"path" required:""`
	Chunks    string `help:"Path to the chunk JSONL file." type:"path" required:""`
	BatchSize int    `name:"batch-size" help:"Embedding batch size." default:"32"`
	SkipLex   bool   `name:"skip-lexical" help:"Skip the lexical index."`
	SkipVec   bool   `name:"skip-vectors" help:"Skip the vector collections."`
}

func (c *IndexCmd) Run(cli *CLI) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	articles, err := corpus.LoadArticles(c.Articles)
	if err != nil {
		return err
	}
	chunks, err := corpus.LoadChunks(c.Chunks)
	if err != nil {
		return err
	}

	ctx := context.Background()

	if !c.SkipLex {
		if err := c.indexLexical(ctx, cfg, articles); err != nil {
			return err
		}
	}
	if !c.SkipVec {
		if err := c.indexVectors(ctx, cfg, articles, chunks); err != nil {
			return err
		}
	}
	return nil
}

func (c *IndexCmd) indexLexical(ctx context.Context, cfg *config.Config, articles *corpus.Table) error {
	lex := lexical.New(cfg.TypesenseURL(), cfg.TypesenseAPIKey, cfg.TypesenseCollection, 60*time.Second)
	if err := lex.EnsureCollection(ctx); err != nil {
		return err
	}

	docs := make([]lexical.Document, 0, articles.Len())
	for _, id := range articles.IDs() {
		a := articles.Get(id)
		docs = append(docs, lexical.Document{
			ID:               a.ID,
			TitleHi:          a.TitleHi,
			SummaryHi:        a.SummaryHi,
			ContentHi:        a.ContentHi,
			TitleRomanNorm:   translit.RomanizeNormalized(a.TitleHi),
			SummaryRomanNorm: translit.RomanizeNormalized(a.SummaryHi),
			ContentRomanNorm: translit.RomanizeNormalized(a.ContentHi),
			CategoriesNorm:   orEmpty(a.CategoriesNorm),
			TagsNorm:         orEmpty(a.TagsNorm),
			LocationsNorm:    orEmpty(a.LocationsNorm),
			ContributorsNorm: orEmpty(a.ContributorsNorm),
			ArticleType:      a.ArticleType,
			MultimediaType:   a.MultimediaType,
			PartnerLabel:     a.PartnerLabel,
			PublishedTS:      a.PublishedTS,
			PublishedDate:    a.PublishedDate,
		})
	}

	for start := 0; start < len(docs); start += 200 {
		end := start + 200
		if end > len(docs) {
			end = len(docs)
		}
		if err := lex.ImportDocuments(ctx, docs[start:end]); err != nil {
			return err
		}
	}
	slog.Info("lexical index built", "documents", len(docs), "collection", cfg.TypesenseCollection)
	return nil
}

func (c *IndexCmd) indexVectors(ctx context.Context, cfg *config.Config, articles *corpus.Table, chunks []corpus.Chunk) error {
	vectors, err := semantic.New(semantic.Config{
		Host:              cfg.QdrantHost,
		Port:              cfg.QdrantPort,
		APIKey:            cfg.QdrantAPIKey,
		UseTLS:            cfg.QdrantUseTLS,
		ArticleCollection: cfg.QdrantCollectionArticles,
		ChunkCollection:   cfg.QdrantCollectionChunks,
	})
	if err != nil {
		return err
	}
	defer vectors.Close()

	if err := vectors.EnsureCollections(ctx, cfg.EmbeddingDim); err != nil {
		return err
	}

	embed := embedder.New(cfg.EmbedderURL, cfg.EmbedderModel, cfg.EmbeddingDim)

	ids := articles.IDs()
	for start := 0; start < len(ids); start += c.BatchSize {
		end := start + c.BatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]
		texts := make([]string, len(batch))
		for i, id := range batch {
			texts[i] = articles.Get(id).HeadText()
		}
		vecs, err := embed.EmbedPassages(ctx, texts)
		if err != nil {
			return err
		}
		for i, id := range batch {
			a := articles.Get(id)
			err := vectors.UpsertArticle(ctx, id, vecs[i], map[string]interface{}{
				"article_id":   a.ID,
				"title_hi":     a.TitleHi,
				"published_ts": a.PublishedTS,
			})
			if err != nil {
				return err
			}
		}
	}
	slog.Info("article vectors built", "articles", len(ids), "collection", cfg.QdrantCollectionArticles)

	for start := 0; start < len(chunks); start += c.BatchSize {
		end := start + c.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.ChunkText
		}
		vecs, err := embed.EmbedPassages(ctx, texts)
		if err != nil {
			return err
		}
		for i, ch := range batch {
			err := vectors.UpsertChunk(ctx, ch.ChunkID, vecs[i], map[string]interface{}{
				"chunk_id":     ch.ChunkID,
				"article_id":   ch.ArticleID,
				"chunk_index":  ch.ChunkIndex,
				"published_ts": ch.PublishedTS,
			})
			if err != nil {
				return err
			}
		}
	}
	slog.Info("chunk vectors built", "chunks", len(chunks), "collection", cfg.QdrantCollectionChunks)
	return nil
}

func orEmpty(xs []string) []string {
	if xs == nil {
		return []string{}
	}
	return xs
}

func main() {
	_ = config.LoadDotEnv()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("khoj"),
		kong.Description("Bilingual Hindi article search service."),
		kong.UsageOnError(),
	)

	var level slog.Level
	if err := level.UnmarshalText([]byte(cli.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cli.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
