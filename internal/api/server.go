// Package api exposes a small operator HTTP surface: record inspection,
// run reports, manual run triggers and requeues, and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dharsanguruparan/ClassBuddy/internal/logging"
	"github.com/dharsanguruparan/ClassBuddy/internal/model"
	"github.com/dharsanguruparan/ClassBuddy/internal/pipeline"
	"github.com/dharsanguruparan/ClassBuddy/internal/storage"
)

const defaultListLimit = 100

// Records is the read side of the State Store.
type Records interface {
	Get(ctx context.Context, itemID string) (*model.ProcessingRecord, error)
	List(ctx context.Context, filter storage.Filter) ([]model.ProcessingRecord, error)
}

// historian is implemented by stores that keep an attempt log.
type historian interface {
	History(ctx context.Context, itemID string) ([]storage.Attempt, error)
}

// Runner triggers and reports pipeline runs. *pipeline.Orchestrator
// satisfies it.
type Runner interface {
	Run(ctx context.Context, scope pipeline.Scope) (*pipeline.Report, error)
	LastReport() *pipeline.Report
	Requeue(ctx context.Context, itemID string) (*model.ProcessingRecord, error)
}

// Server exposes HTTP endpoints over the State Store and the pipeline.
type Server struct {
	address string
	records Records
	runner  Runner
	scope   pipeline.Scope
	metrics http.Handler
	logger  *slog.Logger

	running atomic.Bool

	server *http.Server
	once   sync.Once
}

// Option customises a Server.
type Option func(*Server)

// WithMetrics mounts h on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithLogger sets the request and run logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New constructs a Server. scope is used by POST /runs.
func New(address string, records Records, runner Runner, scope pipeline.Scope, opts ...Option) *Server {
	s := &Server{
		address: address,
		records: records,
		runner:  runner,
		scope:   scope,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrDiscard(s.logger).With("component", "api")
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /records", s.handleRecords)
	// Item ids contain slashes, hence the trailing wildcards.
	mux.HandleFunc("GET /records/{id...}", s.handleRecord)
	mux.HandleFunc("POST /requeue/{id...}", s.handleRequeue)
	mux.HandleFunc("POST /runs", s.handleTrigger)
	mux.HandleFunc("GET /runs/last", s.handleLastRun)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return corsMiddleware(loggingMiddleware(s.logger, mux))
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:              s.address,
			Handler:           s.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.logger.Info("api listening", "address", s.address)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.Filter{CourseID: q.Get("course"), Limit: defaultListLimit}
	if raw := q.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st := model.Status(strings.TrimSpace(part))
			if !st.Valid() {
				http.Error(w, "unknown status "+part, http.StatusBadRequest)
				return
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}
	recs, err := s.records.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list records", "err", err)
		http.Error(w, "failed to list records", http.StatusServiceUnavailable)
		return
	}
	if recs == nil {
		recs = []model.ProcessingRecord{}
	}
	respondJSON(w, http.StatusOK, recs)
}

type recordView struct {
	*model.ProcessingRecord
	Missing []model.ArtifactKind `json:"missing,omitempty"`
	History []storage.Attempt    `json:"history,omitempty"`
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.records.Get(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "record not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("get record", "item", id, "err", err)
		http.Error(w, "failed to load record", http.StatusServiceUnavailable)
		return
	}
	view := recordView{ProcessingRecord: rec, Missing: rec.Missing()}
	if h, ok := s.records.(historian); ok {
		history, err := h.History(r.Context(), id)
		if err != nil {
			s.logger.Warn("load history", "item", id, "err", err)
		}
		view.History = history
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleRequeue(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.runner.Requeue(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "record not found", http.StatusNotFound)
	case errors.Is(err, pipeline.ErrNothingToRequeue):
		respondJSON(w, http.StatusConflict, rec)
	case err != nil:
		s.logger.Error("requeue", "item", id, "err", err)
		http.Error(w, "failed to requeue", http.StatusServiceUnavailable)
	default:
		respondJSON(w, http.StatusAccepted, rec)
	}
}

// handleTrigger runs one pass and replies with its report. Only one
// triggered run is in flight at a time.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if !s.running.CompareAndSwap(false, true) {
		http.Error(w, "a run is already in progress", http.StatusConflict)
		return
	}
	defer s.running.Store(false)
	report, err := s.runner.Run(r.Context(), s.scope)
	if err != nil {
		s.logger.Error("triggered run failed", "err", err)
		if report == nil {
			http.Error(w, "run failed", http.StatusServiceUnavailable)
			return
		}
		respondJSON(w, http.StatusServiceUnavailable, report)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleLastRun(w http.ResponseWriter, r *http.Request) {
	report := s.runner.LastReport()
	if report == nil {
		http.Error(w, "no run has finished yet", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Warn("encode response", "err", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("request", "method", r.Method, "path", r.URL.Path, "took", time.Since(start))
	})
}
