package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"
)

// GraphURI is the resource exposing the compiled graph.
const GraphURI = "arbor://graph"

// RunResponse is the structured result of the run and resume tools.
type RunResponse struct {
	RunID    string           `json:"run_id" jsonschema_description:"Identifier to resume or inspect the run"`
	Status   domain.RunStatus `json:"status" jsonschema_description:"ready, running, suspended, terminated or failed"`
	State    domain.State     `json:"state,omitempty" jsonschema_description:"The state of the run"`
	Payloads map[string]any   `json:"payloads,omitempty" jsonschema_description:"Interrupt payloads of a suspended run, keyed by node"`
	Steps    int              `json:"steps" jsonschema_description:"Super-steps executed"`
	Error    string           `json:"error,omitempty" jsonschema_description:"Failure of the run, if any"`
}

// Server exposes an engine as MCP tools.
type Server struct {
	engine    ports.Engine
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(engine ports.Engine, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("arbor-mcp", strings.TrimSpace(arbor.Version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// RunToolName is the name of the tool starting runs of graphID.
func RunToolName(graphID string) string {
	return "run_" + strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, graphID)
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	baseURL := "http://localhost" + addr
	if !strings.HasPrefix(addr, ":") {
		baseURL = "http://" + addr
	}
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))
	httpServer := &http.Server{Addr: addr, Handler: mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	graphID := s.engine.GraphID()

	s.mcpServer.AddTool(mcp.NewTool(RunToolName(graphID),
		mcp.WithDescription(fmt.Sprintf("Start a run of the %q graph. A suspended run is continued with resume_run.", graphID)),
		mcp.WithString("message", mcp.Description("User message appended to the conversation (optional)")),
		mcp.WithObject("state", mcp.Description("Initial state fields (optional)")),
		mcp.WithString("run_id", mcp.Description("Run identifier; generated when omitted")),
		mcp.WithOutputSchema[RunResponse](),
	), mcp.NewStructuredToolHandler(s.handleRun))

	s.mcpServer.AddTool(mcp.NewTool("resume_run",
		mcp.WithDescription("Resume a suspended run with new input."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Run identifier")),
		mcp.WithString("message", mcp.Description("User message appended to the conversation (optional)")),
		mcp.WithObject("input", mcp.Description("State fields merged before resuming (optional)")),
		mcp.WithOutputSchema[RunResponse](),
	), mcp.NewStructuredToolHandler(s.handleResume))

	s.mcpServer.AddTool(mcp.NewTool("get_run",
		mcp.WithDescription("Inspect the stored checkpoint of a run."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Run identifier")),
		mcp.WithOutputSchema[RunResponse](),
	), mcp.NewStructuredToolHandler(s.handleGetRun))

	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the graph as a Mermaid flowchart."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText(graph.Mermaid(s.engine.Graph(), nil)), nil
	})
}

func (s *Server) handleRun(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (RunResponse, error) {
	state, err := objectArg(args, "state")
	if err != nil {
		return RunResponse{}, err
	}
	if msg, _ := args["message"].(string); msg != "" {
		state[domain.FieldMessages] = []domain.Message{domain.UserMessage(msg)}
	}
	runID, _ := args["run_id"].(string)

	res, err := s.engine.Run(ctx, runID, domain.State(state))
	return s.respond("run", res, err)
}

func (s *Server) handleResume(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (RunResponse, error) {
	runID, _ := args["run_id"].(string)
	if runID == "" {
		return RunResponse{}, fmt.Errorf("run_id is required")
	}
	input, err := objectArg(args, "input")
	if err != nil {
		return RunResponse{}, err
	}
	if msg, _ := args["message"].(string); msg != "" {
		input[domain.FieldMessages] = []domain.Message{domain.UserMessage(msg)}
	}

	res, err := s.engine.ResumeRun(ctx, runID, domain.Update(input))
	return s.respond("resume", res, err)
}

func (s *Server) handleGetRun(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (RunResponse, error) {
	runID, _ := args["run_id"].(string)
	cp, err := s.engine.Checkpoint(ctx, runID)
	if err != nil {
		return RunResponse{}, fmt.Errorf("get run %q: %w", runID, err)
	}
	return RunResponse{
		RunID:    cp.RunID,
		Status:   cp.Status,
		State:    cp.State,
		Payloads: cp.Payloads,
		Steps:    cp.Step,
		Error:    cp.Error,
	}, nil
}

// respond keeps failed runs as structured results so the client sees the trace position.
func (s *Server) respond(op string, res *domain.Result, err error) (RunResponse, error) {
	if res == nil {
		return RunResponse{}, fmt.Errorf("%s failed: %w", op, err)
	}
	out := RunResponse{
		RunID:  res.RunID,
		Status: res.Status,
		State:  res.State,
		Steps:  res.Steps,
	}
	if res.Checkpoint != nil {
		out.Payloads = res.Checkpoint.Payloads
	}
	if err != nil {
		s.logger.Warn("MCP "+op+" failed", "run_id", res.RunID, "err", err)
		out.Error = err.Error()
	}
	return out, nil
}

// objectArg accepts an object argument or its JSON encoding.
func objectArg(args map[string]any, name string) (map[string]any, error) {
	switch v := args[name].(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = val
		}
		return out, nil
	case string:
		out := map[string]any{}
		if strings.TrimSpace(v) == "" {
			return out, nil
		}
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, fmt.Errorf("argument %q is not a JSON object: %w", name, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("argument %q must be an object, got %T", name, v)
	}
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(GraphURI, "Current Graph Definition",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		g := s.engine.Graph()
		nodes := make([]map[string]string, 0, len(g.Nodes()))
		for _, spec := range g.Nodes() {
			nodes = append(nodes, map[string]string{"id": spec.ID, "kind": string(spec.Kind)})
		}
		jsonBytes, err := json.Marshal(map[string]any{
			"id":    g.ID(),
			"entry": g.Entry(),
			"nodes": nodes,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode graph: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      GraphURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
