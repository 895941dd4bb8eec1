package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/company-research/internal/cache"
	"github.com/sells-group/company-research/internal/input"
	"github.com/sells-group/company-research/internal/model"
	"github.com/sells-group/company-research/internal/pipeline"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the research API server",
	Long: "Serves research over HTTP: submit a company, poll the run for status and the\n" +
		"final result, and stream per-phase progress events.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		events := make(chan pipeline.Event, 256)
		env, err := initPipeline(events, false)
		if err != nil {
			return err
		}
		defer env.Close()

		s := newServer(ctx, env.Pipeline, env.Store)
		go s.consumeEvents(events)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: s.routes(),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// server exposes the pipeline over HTTP with an in-memory run registry.
type server struct {
	baseCtx  context.Context
	pipeline *pipeline.Pipeline
	store    *cache.Store
	runs     *runRegistry
}

func newServer(ctx context.Context, p *pipeline.Pipeline, store *cache.Store) *server {
	return &server{
		baseCtx:  ctx,
		pipeline: p,
		store:    store,
		runs:     newRunRegistry(),
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/research", s.handleResearch)
		r.Get("/runs/{id}", s.handleRun)
		r.Get("/runs/{id}/events", s.handleRunEvents)
		r.Get("/cache/stats", s.handleCacheStats)
		r.Post("/cache/cleanup", s.handleCacheCleanup)
	})
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type researchRequest struct {
	Company    string          `json:"company"`
	SearchName string          `json:"search_name,omitempty"`
	People     []string        `json:"people,omitempty"`
	Contacts   []model.Contact `json:"contacts,omitempty"`
}

func (s *server) handleResearch(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Company = strings.TrimSpace(req.Company)
	if req.Company == "" {
		writeError(w, http.StatusBadRequest, "company is required")
		return
	}
	if req.SearchName == "" {
		req.SearchName = input.SearchName(req.Company)
	}

	company := model.CompanyInput{
		Name:       req.Company,
		SearchName: req.SearchName,
		People:     req.People,
		Contacts:   req.Contacts,
	}

	run := s.runs.create(company)
	go func() {
		// The run outlives the request; it stops only on server shutdown.
		result := s.pipeline.ResearchCompany(s.baseCtx, company)
		s.runs.finish(run.ID, result)
	}()

	writeJSON(w, http.StatusAccepted, run)
}

func (s *server) handleRun(w http.ResponseWriter, r *http.Request) {
	run, _, ok := s.runs.get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	_, events, ok := s.runs.get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "cache unavailable")
		return
	}
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *server) handleCacheCleanup(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "cache unavailable")
		return
	}
	removed, err := s.store.Cleanup(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// consumeEvents drains pipeline progress events into the registry.
func (s *server) consumeEvents(events <-chan pipeline.Event) {
	for ev := range events {
		s.runs.record(ev)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// runRegistry tracks runs by id. Pipeline events carry only the company name,
// so the registry also indexes the active run per company.
type runRegistry struct {
	mu     sync.RWMutex
	runs   map[string]*runRecord
	active map[string]string // company name -> run id
}

type runRecord struct {
	run    model.Run
	events []pipeline.Event
}

func newRunRegistry() *runRegistry {
	return &runRegistry{
		runs:   make(map[string]*runRecord),
		active: make(map[string]string),
	}
}

func (r *runRegistry) create(company model.CompanyInput) model.Run {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	run := model.Run{
		ID:        uuid.NewString(),
		Company:   company,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.runs[run.ID] = &runRecord{run: run}
	r.active[company.Name] = run.ID
	return run
}

func (r *runRegistry) get(id string) (model.Run, []pipeline.Event, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.runs[id]
	if !ok {
		return model.Run{}, nil, false
	}
	events := make([]pipeline.Event, len(rec.events))
	copy(events, rec.events)
	return rec.run, events, true
}

// record appends a progress event to the active run for the event's company.
// The event consumer runs behind the pipeline, so events may land after the
// run went terminal; they are still appended, but the terminal status wins.
func (r *runRegistry) record(ev pipeline.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.active[ev.Entity]
	if !ok {
		return
	}
	rec := r.runs[id]
	rec.events = append(rec.events, ev)
	if rec.run.Status != model.RunStatusComplete && rec.run.Status != model.RunStatusFailed {
		rec.run.Status = ev.Status
		rec.run.UpdatedAt = ev.At
	}
}

// finish records the terminal result.
func (r *runRegistry) finish(id string, result model.CompanyResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.runs[id]
	if !ok {
		return
	}
	rec.run.Result = &result
	rec.run.Status = model.RunStatusComplete
	if result.Error != "" {
		rec.run.Status = model.RunStatusFailed
	}
	rec.run.UpdatedAt = time.Now()
}
