package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/schema"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes one engine over HTTP.
type Server struct {
	Engine  ports.Engine
	Streams *StreamManager

	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithStreams attaches the stream manager whose hooks are registered on the engine.
// Without it the events endpoint is not mounted.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// WithMetrics mounts /metrics serving g.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// RunRequest is the body of POST /runs.
type RunRequest struct {
	RunID string       `json:"run_id,omitempty"`
	State domain.State `json:"state,omitempty"`
}

// ResumeRequest is the body of POST /runs/{runID}/resume.
type ResumeRequest struct {
	Input domain.Update `json:"input,omitempty"`
}

// RunResponse carries the outcome of a run or resume.
// Error is set when the run failed; Result is still returned with its trace.
type RunResponse struct {
	Result *domain.Result `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// GraphResponse describes the compiled graph.
type GraphResponse struct {
	ID       string      `json:"id"`
	Entry    string      `json:"entry"`
	Nodes    []GraphNode `json:"nodes"`
	Warnings []string    `json:"warnings,omitempty"`
}

// GraphNode is one node of GraphResponse.
type GraphNode struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine ports.Engine, opts ...Option) http.Handler {
	server := &Server{Engine: engine}
	for _, opt := range opts {
		opt(server)
	}
	if server.logger == nil {
		server.logger = logging.NewNop()
	}

	r := chi.NewRouter()
	r.Get("/health", server.GetHealth)
	r.Get("/info", server.GetInfo)
	r.Get("/graph", server.GetGraph)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", server.ListRuns)
		r.Post("/", server.StartRun)
		r.Get("/{runID}", server.GetRun)
		r.Post("/{runID}/resume", server.ResumeRun)
		if server.Streams != nil {
			r.Get("/{runID}/events", server.SubscribeEvents)
		}
	})
	if server.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(server.gatherer, promhttp.HandlerOpts{}))
	}
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// StartRun handles POST /runs.
func (s *Server) StartRun(w http.ResponseWriter, r *http.Request) {
	var body RunRequest
	if err := decodeBody(r, &body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("StartRun: invalid request body", "err", err)
		return
	}

	res, err := s.Engine.Run(r.Context(), body.RunID, body.State)
	s.writeOutcome(w, "StartRun", res, err)
}

// ResumeRun handles POST /runs/{runID}/resume.
func (s *Server) ResumeRun(w http.ResponseWriter, r *http.Request) {
	var body ResumeRequest
	if err := decodeBody(r, &body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("ResumeRun: invalid request body", "err", err)
		return
	}

	runID, ok := runIDParam(w, r)
	if !ok {
		return
	}
	res, err := s.Engine.ResumeRun(r.Context(), runID, body.Input)
	s.writeOutcome(w, "ResumeRun", res, err)
}

// GetRun handles GET /runs/{runID}.
func (s *Server) GetRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDParam(w, r)
	if !ok {
		return
	}
	cp, err := s.Engine.Checkpoint(r.Context(), runID)
	if err != nil {
		s.writeError(w, "GetRun", err)
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

// runIDParam returns the unescaped {runID} segment. Child runs of
// subgraphs and agents carry "/" in their IDs, which clients send
// escaped as %2F so the ID stays one path segment.
func runIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	runID, err := url.PathUnescape(chi.URLParam(r, "runID"))
	if err != nil || runID == "" {
		http.Error(w, "Invalid run ID", http.StatusBadRequest)
		return "", false
	}
	return runID, true
}

// ListRuns handles GET /runs.
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.Engine.Runs(r.Context())
	if err != nil {
		s.writeError(w, "ListRuns", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"runs": runs})
}

// GetGraph handles GET /graph. The format query parameter selects
// "mermaid" or "dot" text instead of JSON.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	g := s.Engine.Graph()
	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "", "json":
	case "mermaid":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, graph.Mermaid(g, nil))
		return
	case "dot":
		out, err := graph.DOT(g)
		if err != nil {
			s.writeError(w, "GetGraph", err)
			return
		}
		w.Header().Set("Content-Type", "text/vnd.graphviz")
		fmt.Fprint(w, out)
		return
	default:
		http.Error(w, "Unknown format", http.StatusBadRequest)
		return
	}

	resp := GraphResponse{ID: g.ID(), Entry: g.Entry(), Warnings: g.Warnings()}
	for _, spec := range g.Nodes() {
		resp.Nodes = append(resp.Nodes, GraphNode{ID: spec.ID, Kind: string(spec.Kind)})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "arbor-http",
		"version": strings.TrimSpace(arbor.Version),
		"graph":   s.Engine.GraphID(),
	})
}

func (s *Server) writeOutcome(w http.ResponseWriter, op string, res *domain.Result, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, RunResponse{Result: res})
		return
	}
	if res == nil {
		s.writeError(w, op, err)
		return
	}
	s.logger.Warn(op+": run failed", "run_id", res.RunID, "err", err)
	writeJSON(w, http.StatusUnprocessableEntity, RunResponse{Result: res, Error: err.Error()})
}

func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", "err", err)
	}
	writeJSON(w, status, RunResponse{Error: err.Error()})
}

func statusOf(err error) int {
	var (
		definition *domain.DefinitionError
		mismatch   *domain.ReducerMismatchError
		invalid    *schema.AggregateError
	)
	switch {
	case errors.Is(err, domain.ErrCheckpointNotFound):
		return http.StatusNotFound
	case errors.Is(err, arbor.ErrNoCheckpointStore):
		return http.StatusNotImplemented
	case errors.Is(err, domain.ErrNotSuspended):
		return http.StatusConflict
	case errors.As(err, &definition), errors.As(err, &mismatch), errors.As(err, &invalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
