// Package server exposes the hybrid search service over HTTP: search,
// labeling and operational endpoints on a chi router. All components
// are constructed at startup and passed in; handlers hold no mutable
// state beyond the feedback store.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/khojlabs/khoj/pkg/corpus"
	"github.com/khojlabs/khoj/pkg/gazetteer"
	"github.com/khojlabs/khoj/pkg/query"
	"github.com/khojlabs/khoj/pkg/retrieval"
	"github.com/khojlabs/khoj/pkg/store"
)

// Retriever is the candidate-generation stage of the pipeline.
// *retrieval.Retriever satisfies it; tests substitute fakes.
type Retriever interface {
	Retrieve(ctx context.Context, cq query.Canonical, filterBy string) (*retrieval.Result, error)
}

// Config holds the server-side knobs.
type Config struct {
	Addr              string
	RankerVersion     string
	RetrievalVersion  string
	LogCandidatesTopN int
	DBTimeout         time.Duration
}

// Server wires the request pipeline: canonicalize, detect entities,
// retrieve, rank, log, respond.
type Server struct {
	cfg        Config
	retriever  Retriever
	gaz        gazetteer.Gazetteer
	chunkTexts map[string]string
	articles   *corpus.Table
	feedback   *store.Store
	logger     *slog.Logger

	httpServer *http.Server
}

// New assembles a Server from already-constructed components.
func New(cfg Config, retriever Retriever, gaz gazetteer.Gazetteer, chunkTexts map[string]string, articles *corpus.Table, feedback *store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LogCandidatesTopN <= 0 {
		cfg.LogCandidatesTopN = 200
	}
	if cfg.DBTimeout <= 0 {
		cfg.DBTimeout = 30 * time.Second
	}
	return &Server{
		cfg:        cfg,
		retriever:  retriever,
		gaz:        gaz,
		chunkTexts: chunkTexts,
		articles:   articles,
		feedback:   feedback,
		logger:     logger,
	}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(metricsMiddleware)

	r.Post("/search", s.handleSearch)
	r.Post("/label", s.handleLabel)
	r.Post("/label_query", s.handleLabelQuery)
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("http server starting", "addr", s.cfg.Addr,
		"ranker_version", s.cfg.RankerVersion, "retrieval_version", s.cfg.RetrievalVersion)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop drains in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("http server stopping")
	return s.httpServer.Shutdown(ctx)
}
