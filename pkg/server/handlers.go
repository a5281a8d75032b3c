package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/khojlabs/khoj/pkg/apierr"
	"github.com/khojlabs/khoj/pkg/gazetteer"
	"github.com/khojlabs/khoj/pkg/lexical"
	"github.com/khojlabs/khoj/pkg/query"
	"github.com/khojlabs/khoj/pkg/ranker"
	"github.com/khojlabs/khoj/pkg/store"
)

const (
	defaultPerPage = 10
	maxPerPage     = 50
	snippetMaxLen  = 420
)

type searchRequest struct {
	Query    string `json:"query"`
	FilterBy string `json:"filter_by"`
	PerPage  int    `json:"per_page"`
	Explain  bool   `json:"explain"`
}

// SearchHit is one result row of the search response.
type SearchHit struct {
	Rank            int      `json:"rank"`
	ArticleID       string   `json:"article_id"`
	Score           float64  `json:"score"`
	URL             string   `json:"url,omitempty"`
	Title           string   `json:"title,omitempty"`
	PublishedDate   string   `json:"published_date,omitempty"`
	Summary         string   `json:"summary,omitempty"`
	PrimaryCategory string   `json:"primary_category,omitempty"`
	Categories      []string `json:"categories,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	Locations       []string `json:"locations,omitempty"`
	PartnerLabel    string   `json:"partner_label,omitempty"`
	Contributors    []string `json:"contributors,omitempty"`
	Snippet         *string  `json:"snippet"`

	Features    map[string]float64    `json:"features,omitempty"`
	Explanation []ranker.Contribution `json:"explanation,omitempty"`
}

type searchResponse struct {
	QueryID       int64       `json:"query_id"`
	Mode          string      `json:"mode"`
	QueryUsed     string      `json:"query_used"`
	QuerySemantic string      `json:"query_semantic"`
	Results       []SearchHit `json:"results"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: invalid json body", apierr.ErrBadRequest))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, r, fmt.Errorf("%w: query must not be empty", apierr.ErrBadRequest))
		return
	}
	if req.PerPage <= 0 {
		req.PerPage = defaultPerPage
	}
	if req.PerPage > maxPerPage {
		req.PerPage = maxPerPage
	}

	cq := query.Canonicalize(req.Query)
	det := gazetteer.Detect(cq.Q, cq.Mode, s.gaz)
	filterBy := lexical.CombineFilters(req.FilterBy, det.FilterByAuto)

	res, err := s.retriever.Retrieve(r.Context(), cq, filterBy)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ranked := ranker.Rank(res.Candidates, query.Tokenize(cq.Q), time.Now())

	meta := map[string]interface{}{
		"lex_n":             res.LexN,
		"sem_article_n":     res.SemArtN,
		"sem_chunk_n":       res.SemChunkN,
		"cand_n":            len(ranked),
		"entity_matches":    det.Matches,
		"entity_confidence": det.Confidence,
		"filter_by_auto":    det.FilterByAuto,
		"filter_by_final":   filterBy,
	}

	// Log-then-return: the response is only sent once the query row and
	// candidate snapshots are durably written.
	dbctx, cancel := context.WithTimeout(r.Context(), s.cfg.DBTimeout)
	defer cancel()

	queryID, err := s.feedback.InsertQuery(dbctx, store.QueryRecord{
		QueryRaw:         cq.Raw,
		QueryMode:        cq.Mode,
		QueryUsed:        cq.Q,
		QuerySemantic:    cq.Raw,
		Filters:          filtersColumn(req.FilterBy, det.FilterByAuto, filterBy),
		RankerVersion:    s.cfg.RankerVersion,
		RetrievalVersion: s.cfg.RetrievalVersion,
		Meta:             meta,
	})
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", apierr.ErrStorage, err))
		return
	}

	logN := len(ranked)
	if logN > s.cfg.LogCandidatesTopN {
		logN = s.cfg.LogCandidatesTopN
	}
	if err := s.feedback.InsertCandidates(dbctx, queryID, s.candidateRows(ranked[:logN])); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", apierr.ErrStorage, err))
		return
	}

	topN := len(ranked)
	if topN > req.PerPage {
		topN = req.PerPage
	}
	hits := make([]SearchHit, 0, topN)
	for _, rc := range ranked[:topN] {
		hit := SearchHit{
			Rank:      rc.Rank,
			ArticleID: rc.ArticleID,
			Score:     rc.Score,
			Snippet:   s.snippet(rc.BestChunkID),
		}
		if a := rc.Article; a != nil {
			hit.URL = a.URL
			hit.Title = a.TitleHi
			hit.PublishedDate = a.PublishedDate
			hit.Summary = a.SummaryHi
			hit.PrimaryCategory = a.PrimaryCategory()
			hit.Categories = a.Categories
			hit.Tags = a.Tags
			hit.Locations = a.Locations
			hit.PartnerLabel = a.PartnerLabel
			hit.Contributors = a.Contributors
		}
		if req.Explain {
			hit.Features = rc.Features
			hit.Explanation = rc.Explanation
		}
		hits = append(hits, hit)
	}

	s.writeJSON(w, http.StatusOK, searchResponse{
		QueryID:       queryID,
		Mode:          cq.Mode,
		QueryUsed:     cq.Q,
		QuerySemantic: cq.Raw,
		Results:       hits,
	})
}

func (s *Server) candidateRows(ranked []ranker.Ranked) []store.CandidateRecord {
	rows := make([]store.CandidateRecord, 0, len(ranked))
	for _, rc := range ranked {
		// The logged feature vector carries the chunk provenance next to
		// the numeric features so training data is self-contained.
		features := make(map[string]interface{}, len(rc.Features)+1)
		for k, v := range rc.Features {
			features[k] = v
		}
		var bestChunk interface{}
		if rc.BestChunkID != "" {
			bestChunk = rc.BestChunkID
		}
		features["best_chunk_id"] = bestChunk

		row := store.CandidateRecord{
			Rank:        rc.Rank,
			ArticleID:   rc.ArticleID,
			Score:       rc.Score,
			Features:    features,
			Explanation: rc.Explanation,
		}
		if a := rc.Article; a != nil {
			row.URL = a.URL
			row.Title = a.TitleHi
			row.PublishedDate = a.PublishedDate
			row.Summary = a.SummaryHi
			row.PrimaryCategory = a.PrimaryCategory()
			row.Categories = a.Categories
			row.Tags = a.Tags
			row.Location = a.Locations
			row.PartnerLabel = a.PartnerLabel
			row.Contributors = a.Contributors
		}
		rows = append(rows, row)
	}
	return rows
}

// snippet flattens the best chunk's text for display. Nil when the
// candidate never surfaced through the chunk index.
func (s *Server) snippet(chunkID string) *string {
	if chunkID == "" {
		return nil
	}
	text, ok := s.chunkTexts[chunkID]
	if !ok {
		return nil
	}
	flat := strings.Join(strings.Fields(strings.ReplaceAll(text, "\n", " ")), " ")
	if runes := []rune(flat); len(runes) > snippetMaxLen {
		flat = string(runes[:snippetMaxLen])
	}
	return &flat
}

func filtersColumn(client, auto, final string) interface{} {
	if client == "" && auto == "" {
		return nil
	}
	return map[string]string{
		"filter_by_client": client,
		"filter_by_auto":   auto,
		"filter_by_final":  final,
	}
}

type labelRequest struct {
	QueryID   int64   `json:"query_id"`
	ArticleID *string `json:"article_id"`
	Label     *int    `json:"label"`
	Note      string  `json:"note"`
}

func (s *Server) handleLabel(w http.ResponseWriter, r *http.Request) {
	var req labelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: invalid json body", apierr.ErrBadRequest))
		return
	}
	if req.Label == nil || (*req.Label != 0 && *req.Label != 1) {
		s.writeError(w, r, fmt.Errorf("%w: label must be 0 or 1", apierr.ErrBadRequest))
		return
	}
	if req.ArticleID == nil || *req.ArticleID == "" {
		s.writeError(w, r, fmt.Errorf("%w: article_id is required", apierr.ErrBadRequest))
		return
	}

	dbctx, cancel := context.WithTimeout(r.Context(), s.cfg.DBTimeout)
	defer cancel()

	err := s.feedback.InsertLabel(dbctx, store.LabelRecord{
		QueryID:   req.QueryID,
		ArticleID: req.ArticleID,
		Label:     *req.Label,
		Note:      req.Note,
	})
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", apierr.ErrStorage, err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleLabelQuery records a whole-query judgment. Only the negative
// label exists at query granularity ("none of these were relevant").
func (s *Server) handleLabelQuery(w http.ResponseWriter, r *http.Request) {
	var req labelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: invalid json body", apierr.ErrBadRequest))
		return
	}
	if req.Label == nil || *req.Label != 0 {
		s.writeError(w, r, fmt.Errorf("%w: query-level labels must be 0", apierr.ErrBadRequest))
		return
	}

	dbctx, cancel := context.WithTimeout(r.Context(), s.cfg.DBTimeout)
	defer cancel()

	err := s.feedback.InsertLabel(dbctx, store.LabelRecord{
		QueryID: req.QueryID,
		Label:   0,
		Note:    req.Note,
	})
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", apierr.ErrStorage, err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":                true,
		"ranker_version":    s.cfg.RankerVersion,
		"retrieval_version": s.cfg.RetrievalVersion,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps error kinds to status codes. Internal detail stays in
// the log; clients get the kind's message only.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, apierr.ErrBadRequest):
		status = http.StatusBadRequest
		msg = err.Error()
	case errors.Is(err, apierr.ErrRetrieval):
		status = http.StatusBadGateway
		msg = "retrieval backend unavailable"
	case errors.Is(err, apierr.ErrStorage):
		status = http.StatusInternalServerError
		msg = "feedback store unavailable"
	}

	s.logger.Error("request failed",
		"path", r.URL.Path, "status", status, "request_id", requestIDFrom(r.Context()), "error", err)
	s.writeJSON(w, status, map[string]string{"error": msg})
}
