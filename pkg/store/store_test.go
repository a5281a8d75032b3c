package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := NewWithDB(db, "sqlite")
	require.NoError(t, err)
	return s
}

func TestNewWithDBRejectsUnknownDialect(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, err = NewWithDB(db, "oracle")
	require.Error(t, err)
}

func TestSchemaIdempotent(t *testing.T) {
	s := newTestStore(t)
	// Re-running DDL on an initialized database must not fail.
	require.NoError(t, s.initSchema())
}

func TestInsertQueryAndCandidates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	queryID, err := s.InsertQuery(ctx, QueryRecord{
		QueryRaw:         "asha workers bihar",
		QueryMode:        "roman",
		QueryUsed:        "asha workers bihar",
		QuerySemantic:    "asha workers bihar",
		Filters:          map[string]string{"filter_by_auto": "locations_norm:=[`bihar`]"},
		RankerVersion:    "ranker_v1",
		RetrievalVersion: "retrieval_v1",
		Meta:             map[string]interface{}{"lex_n": 12, "cand_n": 2},
	})
	require.NoError(t, err)
	require.Greater(t, queryID, int64(0))

	cands := []CandidateRecord{
		{
			Rank:      1,
			ArticleID: "a42",
			Title:     "स्वास्थ्य सेवा",
			Score:     1.42,
			Features:  map[string]interface{}{"lex_n": 1.0, "recency": 0.5, "best_chunk_id": "a42::c0003"},
			Tags:      []string{"asha workers"},
		},
		{
			Rank:      2,
			ArticleID: "a17",
			Score:     0.73,
			Features:  map[string]interface{}{"lex_n": 0.0, "best_chunk_id": nil},
		},
	}
	require.NoError(t, s.InsertCandidates(ctx, queryID, cands))

	rows, err := s.db.Query(`SELECT query_id, rank, article_id, features FROM candidate_log ORDER BY rank`)
	require.NoError(t, err)
	defer rows.Close()

	var got []CandidateRecord
	for rows.Next() {
		var (
			qid      int64
			rank     int
			id       string
			features string
		)
		require.NoError(t, rows.Scan(&qid, &rank, &id, &features))
		assert.Equal(t, queryID, qid)

		var f map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(features), &f))
		got = append(got, CandidateRecord{Rank: rank, ArticleID: id, Features: f})
	}
	require.NoError(t, rows.Err())
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Rank)
	assert.Equal(t, "a42", got[0].ArticleID)
	assert.Equal(t, 1.0, got[0].Features["lex_n"])
	assert.Equal(t, "a42::c0003", got[0].Features["best_chunk_id"])
	assert.Equal(t, 2, got[1].Rank)
	assert.Equal(t, "a17", got[1].ArticleID)
	assert.Nil(t, got[1].Features["best_chunk_id"])
}

func TestInsertCandidatesEmpty(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.InsertCandidates(context.Background(), 1, nil))
}

func TestInsertLabelWithArticle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	queryID, err := s.InsertQuery(ctx, QueryRecord{
		QueryRaw: "q", QueryMode: "roman", QueryUsed: "q", QuerySemantic: "q",
		RankerVersion: "ranker_v1", RetrievalVersion: "retrieval_v1",
	})
	require.NoError(t, err)

	articleID := "a42"
	require.NoError(t, s.InsertLabel(ctx, LabelRecord{
		QueryID:   queryID,
		ArticleID: &articleID,
		Label:     1,
	}))

	var gotArticle sql.NullString
	var gotLabel int
	err = s.db.QueryRow(`SELECT article_id, label FROM labels WHERE query_id = ?`, queryID).Scan(&gotArticle, &gotLabel)
	require.NoError(t, err)
	assert.True(t, gotArticle.Valid)
	assert.Equal(t, "a42", gotArticle.String)
	assert.Equal(t, 1, gotLabel)
}

func TestInsertQueryLevelLabel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	queryID, err := s.InsertQuery(ctx, QueryRecord{
		QueryRaw: "q", QueryMode: "dev", QueryUsed: "q", QuerySemantic: "q",
		RankerVersion: "ranker_v1", RetrievalVersion: "retrieval_v1",
	})
	require.NoError(t, err)

	require.NoError(t, s.InsertLabel(ctx, LabelRecord{
		QueryID: queryID,
		Label:   0,
		Note:    "none of these",
	}))

	var gotArticle sql.NullString
	var gotNote sql.NullString
	err = s.db.QueryRow(`SELECT article_id, note FROM labels WHERE query_id = ?`, queryID).Scan(&gotArticle, &gotNote)
	require.NoError(t, err)
	assert.False(t, gotArticle.Valid, "query-level label must have null article_id")
	assert.Equal(t, "none of these", gotNote.String)
}

func TestNullableColumns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	queryID, err := s.InsertQuery(ctx, QueryRecord{
		QueryRaw: "q", QueryMode: "roman", QueryUsed: "q", QuerySemantic: "q",
		RankerVersion: "ranker_v1", RetrievalVersion: "retrieval_v1",
	})
	require.NoError(t, err)

	var filters, meta sql.NullString
	err = s.db.QueryRow(`SELECT filters, meta FROM query_log WHERE id = ?`, queryID).Scan(&filters, &meta)
	require.NoError(t, err)
	assert.False(t, filters.Valid)
	assert.False(t, meta.Valid)
}
