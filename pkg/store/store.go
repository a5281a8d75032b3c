// Package store is the relational feedback store: an append-only log of
// queries, ranked candidate snapshots and relevance labels, used to
// train later ranker versions. Postgres and SQLite dialects are
// supported; structural fields are stored as JSON so feature changes
// stay additive.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS query_log (
    id BIGSERIAL PRIMARY KEY,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    query_raw TEXT NOT NULL,
    query_mode TEXT NOT NULL,
    query_used TEXT NOT NULL,
    query_semantic TEXT NOT NULL,
    filters JSONB,
    ranker_version TEXT NOT NULL,
    retrieval_version TEXT NOT NULL,
    meta JSONB
);

CREATE TABLE IF NOT EXISTS candidate_log (
    id BIGSERIAL PRIMARY KEY,
    query_id BIGINT NOT NULL REFERENCES query_log(id) ON DELETE CASCADE,
    rank INT NOT NULL,
    article_id TEXT NOT NULL,
    url TEXT,
    title TEXT,
    published_date TEXT,
    summary TEXT,
    primary_category TEXT,
    categories JSONB,
    tags JSONB,
    location JSONB,
    partner_label TEXT,
    contributors JSONB,
    score DOUBLE PRECISION NOT NULL,
    features JSONB NOT NULL,
    explanation JSONB
);

CREATE INDEX IF NOT EXISTS idx_candidate_log_query_id ON candidate_log(query_id);
CREATE INDEX IF NOT EXISTS idx_candidate_log_article_id ON candidate_log(article_id);

CREATE TABLE IF NOT EXISTS labels (
    id BIGSERIAL PRIMARY KEY,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    query_id BIGINT NOT NULL REFERENCES query_log(id) ON DELETE CASCADE,
    article_id TEXT,
    label INT NOT NULL,
    note TEXT
);

CREATE INDEX IF NOT EXISTS idx_labels_query_id ON labels(query_id);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS query_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    query_raw TEXT NOT NULL,
    query_mode TEXT NOT NULL,
    query_used TEXT NOT NULL,
    query_semantic TEXT NOT NULL,
    filters TEXT,
    ranker_version TEXT NOT NULL,
    retrieval_version TEXT NOT NULL,
    meta TEXT
);

CREATE TABLE IF NOT EXISTS candidate_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    query_id INTEGER NOT NULL REFERENCES query_log(id) ON DELETE CASCADE,
    rank INTEGER NOT NULL,
    article_id TEXT NOT NULL,
    url TEXT,
    title TEXT,
    published_date TEXT,
    summary TEXT,
    primary_category TEXT,
    categories TEXT,
    tags TEXT,
    location TEXT,
    partner_label TEXT,
    contributors TEXT,
    score REAL NOT NULL,
    features TEXT NOT NULL,
    explanation TEXT
);

CREATE INDEX IF NOT EXISTS idx_candidate_log_query_id ON candidate_log(query_id);
CREATE INDEX IF NOT EXISTS idx_candidate_log_article_id ON candidate_log(article_id);

CREATE TABLE IF NOT EXISTS labels (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    query_id INTEGER NOT NULL REFERENCES query_log(id) ON DELETE CASCADE,
    article_id TEXT,
    label INTEGER NOT NULL,
    note TEXT
);

CREATE INDEX IF NOT EXISTS idx_labels_query_id ON labels(query_id);
`

// QueryRecord is one query_log row.
type QueryRecord struct {
	QueryRaw         string
	QueryMode        string
	QueryUsed        string
	QuerySemantic    string
	Filters          interface{}
	RankerVersion    string
	RetrievalVersion string
	Meta             interface{}
}

// CandidateRecord is one candidate_log row, a frozen snapshot of the
// candidate as ranked.
type CandidateRecord struct {
	Rank            int
	ArticleID       string
	URL             string
	Title           string
	PublishedDate   string
	Summary         string
	PrimaryCategory string
	Categories      []string
	Tags            []string
	Location        []string
	PartnerLabel    string
	Contributors    []string
	Score           float64
	Features        map[string]interface{}
	Explanation     interface{}
}

// LabelRecord is one labels row. A nil ArticleID marks a whole-query
// label.
type LabelRecord struct {
	QueryID   int64
	ArticleID *string
	Label     int
	Note      string
}

// Store wraps the feedback database.
// Supported dialects: "postgres", "sqlite".
type Store struct {
	db      *sql.DB
	dialect string
}

// Open connects to the feedback database and creates the schema if
// missing. postgres:// and postgresql:// URLs use the Postgres driver;
// everything else is treated as a SQLite path (an optional sqlite://
// prefix is stripped).
func Open(databaseURL string) (*Store, error) {
	var driver, dsn, dialect string
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		driver, dsn, dialect = "postgres", databaseURL, "postgres"
	default:
		driver, dsn, dialect = "sqlite3", strings.TrimPrefix(databaseURL, "sqlite://"), "sqlite"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, dialect: dialect}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// NewWithDB wraps an existing connection, for tests.
func NewWithDB(db *sql.DB, dialect string) (*Store, error) {
	switch dialect {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, sqlite)", dialect)
	}
	s := &Store{db: db, dialect: dialect}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	schema := sqliteSchema
	if s.dialect == "postgres" {
		schema = postgresSchema
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create feedback tables: %w", err)
	}
	return nil
}

// InsertQuery appends one query_log row and returns its id.
func (s *Store) InsertQuery(ctx context.Context, q QueryRecord) (int64, error) {
	filters, err := jsonOrNil(q.Filters)
	if err != nil {
		return 0, err
	}
	meta, err := jsonOrNil(q.Meta)
	if err != nil {
		return 0, err
	}

	if s.dialect == "postgres" {
		var id int64
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO query_log (query_raw, query_mode, query_used, query_semantic, filters, ranker_version, retrieval_version, meta)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		`, q.QueryRaw, q.QueryMode, q.QueryUsed, q.QuerySemantic, filters, q.RankerVersion, q.RetrievalVersion, meta).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("failed to insert query row: %w", err)
		}
		return id, nil
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO query_log (query_raw, query_mode, query_used, query_semantic, filters, ranker_version, retrieval_version, meta)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, q.QueryRaw, q.QueryMode, q.QueryUsed, q.QuerySemantic, filters, q.RankerVersion, q.RetrievalVersion, meta)
	if err != nil {
		return 0, fmt.Errorf("failed to insert query row: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get query id: %w", err)
	}
	return id, nil
}

// InsertCandidates appends candidate snapshots for one query in a
// single transaction.
func (s *Store) InsertCandidates(ctx context.Context, queryID int64, cands []CandidateRecord) error {
	if len(cands) == 0 {
		return nil
	}

	insert := `
		INSERT INTO candidate_log (query_id, rank, article_id, url, title, published_date, summary, primary_category, categories, tags, location, partner_label, contributors, score, features, explanation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if s.dialect == "postgres" {
		insert = `
		INSERT INTO candidate_log (query_id, rank, article_id, url, title, published_date, summary, primary_category, categories, tags, location, partner_label, contributors, score, features, explanation)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin candidate transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("failed to prepare candidate insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range cands {
		categories, err := jsonOrNil(c.Categories)
		if err != nil {
			return err
		}
		tags, err := jsonOrNil(c.Tags)
		if err != nil {
			return err
		}
		location, err := jsonOrNil(c.Location)
		if err != nil {
			return err
		}
		contributors, err := jsonOrNil(c.Contributors)
		if err != nil {
			return err
		}
		features, err := json.Marshal(c.Features)
		if err != nil {
			return fmt.Errorf("failed to marshal features: %w", err)
		}
		explanation, err := jsonOrNil(c.Explanation)
		if err != nil {
			return err
		}

		_, err = stmt.ExecContext(ctx, queryID, c.Rank, c.ArticleID,
			nullStr(c.URL), nullStr(c.Title), nullStr(c.PublishedDate), nullStr(c.Summary), nullStr(c.PrimaryCategory),
			categories, tags, location, nullStr(c.PartnerLabel), contributors,
			c.Score, string(features), explanation)
		if err != nil {
			return fmt.Errorf("failed to insert candidate %s: %w", c.ArticleID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit candidates: %w", err)
	}
	return nil
}

// InsertLabel appends one label row.
func (s *Store) InsertLabel(ctx context.Context, l LabelRecord) error {
	insert := `INSERT INTO labels (query_id, article_id, label, note) VALUES (?, ?, ?, ?)`
	if s.dialect == "postgres" {
		insert = `INSERT INTO labels (query_id, article_id, label, note) VALUES ($1, $2, $3, $4)`
	}

	var articleID sql.NullString
	if l.ArticleID != nil {
		articleID = sql.NullString{String: *l.ArticleID, Valid: true}
	}
	if _, err := s.db.ExecContext(ctx, insert, l.QueryID, articleID, l.Label, nullStr(l.Note)); err != nil {
		return fmt.Errorf("failed to insert label: %w", err)
	}
	return nil
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Dialect returns the SQL dialect (for testing).
func (s *Store) Dialect() string {
	return s.dialect
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// jsonOrNil marshals v for a JSON column, mapping nil to SQL NULL.
func jsonOrNil(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json column: %w", err)
	}
	return string(raw), nil
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
