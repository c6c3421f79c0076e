package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/shreyachakravarty07/AgentTrace/pkg/analysis"
	"github.com/shreyachakravarty07/AgentTrace/pkg/engine"
	"github.com/shreyachakravarty07/AgentTrace/pkg/generation"
	"github.com/shreyachakravarty07/AgentTrace/pkg/models"
	"github.com/shreyachakravarty07/AgentTrace/pkg/service"
	"github.com/shreyachakravarty07/AgentTrace/pkg/storage"
)

const defaultRunListLimit = 20

type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Options configures a Server.
type Options struct {
	AllowedOrigins []string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

// Server exposes workflows, runs and response analysis over HTTP.
type Server struct {
	svc    *service.WorkflowService
	logger Logger
	opts   Options
	router chi.Router
}

func NewServer(svc *service.WorkflowService, logger Logger, opts Options) *Server {
	s := &Server{svc: svc, logger: logger, opts: opts}
	s.router = s.setupRouter()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}).Handler)

	r.Get("/health", s.handleHealth)
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}

	r.Route("/workflows", func(r chi.Router) {
		r.Get("/", s.handleListWorkflows)
		r.Post("/", s.handleCreateWorkflow)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", s.handleGetWorkflow)
			r.Delete("/", s.handleDeleteWorkflow)
			r.Put("/task", s.handleSetTask)
			r.Post("/agents", s.handleAddAgent)
			r.Post("/dependencies", s.handleAddDependency)
			r.Post("/reset", s.handleReset)
			r.Post("/run", s.handleRun)
			r.Get("/graph", s.handleGraph)
		})
	})

	r.Get("/runs", s.handleListRuns)
	r.Get("/runs/{id}", s.handleGetRun)
	r.Post("/analyze", s.handleAnalyze)
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Starting AgentTrace server on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Infof("Shutting down AgentTrace server")
		return srv.Shutdown(shutdownCtx)
	}
}

type workflowResponse struct {
	Name         string              `json:"name"`
	GlobalTask   string              `json:"global_task"`
	Agents       []models.Agent      `json:"agents"`
	Dependencies []models.Dependency `json:"dependencies"`
}

func toWorkflowResponse(wf *engine.Workflow) workflowResponse {
	resp := workflowResponse{
		Name:         wf.Name,
		GlobalTask:   wf.GlobalTask,
		Agents:       wf.Agents(),
		Dependencies: wf.Dependencies(),
	}
	if resp.Agents == nil {
		resp.Agents = []models.Agent{}
	}
	if resp.Dependencies == nil {
		resp.Dependencies = []models.Dependency{}
	}
	return resp
}

type runResponse struct {
	RunID   string              `json:"run_id"`
	Order   []string            `json:"order"`
	Outputs map[string]string   `json:"outputs"`
	Edges   []models.Dependency `json:"edges"`
	Error   string              `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, _ *http.Request) {
	wfs := s.svc.ListWorkflows()
	out := make([]workflowResponse, 0, len(wfs))
	for _, wf := range wfs {
		out = append(out, toWorkflowResponse(wf))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string `json:"name"`
		GlobalTask string `json:"global_task"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "missing 'name'")
		return
	}
	if err := s.svc.CreateWorkflow(req.Name, req.GlobalTask); err != nil {
		s.fail(w, err)
		return
	}
	wf, err := s.svc.GetWorkflow(req.Name)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toWorkflowResponse(wf))
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.svc.GetWorkflow(chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toWorkflowResponse(wf))
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteWorkflow(chi.URLParam(r, "name")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GlobalTask string `json:"global_task"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	s.mutate(w, r, func(name string) error {
		return s.svc.SetGlobalTask(name, req.GlobalTask)
	})
}

func (s *Server) handleAddAgent(w http.ResponseWriter, r *http.Request) {
	var agent models.Agent
	if !decodeBody(w, r, &agent) {
		return
	}
	s.mutate(w, r, func(name string) error {
		return s.svc.AddAgent(name, agent)
	})
}

func (s *Server) handleAddDependency(w http.ResponseWriter, r *http.Request) {
	var dep models.Dependency
	if !decodeBody(w, r, &dep) {
		return
	}
	s.mutate(w, r, func(name string) error {
		return s.svc.AddDependency(name, dep.Source, dep.Target)
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, s.svc.ResetWorkflow)
}

// mutate applies fn to the workflow named in the URL and responds with its
// new state.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, fn func(name string) error) {
	name := chi.URLParam(r, "name")
	if err := fn(name); err != nil {
		s.fail(w, err)
		return
	}
	wf, err := s.svc.GetWorkflow(name)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toWorkflowResponse(wf))
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GlobalTask string `json:"global_task"`
	}
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	outcome, err := s.svc.RunWorkflow(r.Context(), chi.URLParam(r, "name"), req.GlobalTask)
	if outcome.Result == nil {
		if err == nil {
			err = errors.New("run produced no result")
		}
		s.fail(w, err)
		return
	}

	resp := runResponse{
		RunID:   outcome.RunID,
		Order:   outcome.Result.Order,
		Outputs: outcome.Result.Outputs,
		Edges:   outcome.Result.Edges,
	}
	if resp.Edges == nil {
		resp.Edges = []models.Dependency{}
	}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		status = statusFor(err)
	}
	respondJSON(w, status, resp)
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	wf, err := s.svc.GetWorkflow(chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(engine.DOT(wf.Agents(), engine.Edges(wf))))
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid 'limit'")
			return
		}
		limit = n
	}
	runs, err := s.svc.Runs().ListRuns(limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	if runs == nil {
		runs = []models.Run{}
	}
	respondJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.svc.Runs().GetRun(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, run)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt   string `json:"prompt"`
		Response string `json:"response"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	respondJSON(w, http.StatusOK, struct {
		analysis.Metrics
		Suggestion string `json:"suggestion"`
	}{
		Metrics:    analysis.Analyze(req.Prompt, req.Response),
		Suggestion: analysis.Suggest(req.Prompt, req.Response),
	})
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Errorf("Request failed: %v", err)
	}
	respondError(w, status, err.Error())
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var genErr *generation.Error
	switch {
	case engine.IsValidation(err), errors.Is(err, service.ErrInvalidName):
		return http.StatusBadRequest
	case engine.IsCycle(err), errors.Is(err, service.ErrWorkflowExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrWorkflowNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// also when the cancellation surfaced inside a generation call
		return http.StatusServiceUnavailable
	case errors.As(err, &genErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
