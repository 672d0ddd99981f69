package http_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/arbor"
	httpadapter "github.com/aretw0/arbor/pkg/adapters/http"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approvalGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.NewBuilder("approval").
		AddFunc("draft", func(_ context.Context, s domain.State) (domain.Update, error) {
			return domain.Update{domain.FieldMessages: []domain.Message{domain.AssistantMessage("draft for " + s.String("topic"))}}, nil
		}).
		AddFunc("approve", func(ctx context.Context, s domain.State) (domain.Update, error) {
			if !graph.Resuming(ctx) {
				return nil, graph.Interrupt("approve?")
			}
			return domain.Update{"approved": s.String("answer") == "yes"}, nil
		}).
		AddEdge("draft", "approve").
		SetTerminal("approve").
		SetEntry("draft").
		Compile()
	require.NoError(t, err)
	return g
}

type fixture struct {
	handler http.Handler
	streams *httpadapter.StreamManager
}

func newFixture(t *testing.T, withStore bool) fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	streams := httpadapter.NewStreamManager(nil)

	opts := []arbor.Option{
		arbor.WithMetrics(observability.NewMetrics(reg)),
		arbor.WithLifecycleHooks(streams.Hooks()),
	}
	if withStore {
		opts = append(opts, arbor.WithCheckpointStore(memory.NewStore()))
	}
	eng, err := arbor.New(approvalGraph(t), opts...)
	require.NoError(t, err)

	return fixture{
		handler: httpadapter.NewHandler(eng, httpadapter.WithStreams(streams), httpadapter.WithMetrics(reg)),
		streams: streams,
	}
}

func do(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, httpadapter.RunResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp httpadapter.RunResponse
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w, resp
}

func TestServer_RunAndResume(t *testing.T) {
	f := newFixture(t, true)

	w, resp := do(t, f.handler, http.MethodPost, "/runs", httpadapter.RunRequest{
		RunID: "r1",
		State: domain.State{"topic": "trees"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, resp.Result)
	assert.Equal(t, domain.StatusSuspended, resp.Result.Status)

	w, _ = do(t, f.handler, http.MethodGet, "/runs/r1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cp domain.Checkpoint
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cp))
	assert.Equal(t, "approve?", cp.Payloads["approve"])

	w, resp = do(t, f.handler, http.MethodPost, "/runs/r1/resume", httpadapter.ResumeRequest{
		Input: domain.Update{"answer": "yes"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.StatusTerminated, resp.Result.Status)
	assert.Equal(t, true, resp.Result.State["approved"])
	assert.Equal(t, "draft for trees", resp.Result.State.Messages()[0].Content)

	w, _ = do(t, f.handler, http.MethodGet, "/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"runs":["r1"]}`, w.Body.String())
}

func TestServer_ResumeWithMessages(t *testing.T) {
	f := newFixture(t, true)
	do(t, f.handler, http.MethodPost, "/runs", httpadapter.RunRequest{RunID: "r2"})

	// Messages arrive as plain JSON objects and are restored to typed messages.
	raw := `{"input":{"answer":"no","messages":[{"role":"user","content":"not yet"}]}}`
	req := httptest.NewRequest(http.MethodPost, "/runs/r2/resume", strings.NewReader(raw))
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp httpadapter.RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	msgs := resp.Result.State.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "not yet", msgs[1].Content)
	assert.Equal(t, false, resp.Result.State["approved"])
}

func TestServer_Errors(t *testing.T) {
	t.Run("Unknown Run", func(t *testing.T) {
		f := newFixture(t, true)
		w, resp := do(t, f.handler, http.MethodGet, "/runs/ghost", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, resp.Error, "not found")

		w, _ = do(t, f.handler, http.MethodPost, "/runs/ghost/resume", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("No Store", func(t *testing.T) {
		f := newFixture(t, false)
		w, _ := do(t, f.handler, http.MethodGet, "/runs", nil)
		assert.Equal(t, http.StatusNotImplemented, w.Code)
	})

	t.Run("Invalid Body", func(t *testing.T) {
		f := newFixture(t, true)
		req := httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader("{"))
		w := httptest.NewRecorder()
		f.handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Reducer Mismatch", func(t *testing.T) {
		f := newFixture(t, true)
		w, resp := do(t, f.handler, http.MethodPost, "/runs", httpadapter.RunRequest{
			State: domain.State{domain.FieldMessages: "not a list"},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NotEmpty(t, resp.Error)
	})
}

func TestServer_Introspection(t *testing.T) {
	f := newFixture(t, true)

	w, _ := do(t, f.handler, http.MethodGet, "/health", nil)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w, _ = do(t, f.handler, http.MethodGet, "/info", nil)
	var info map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "approval", info["graph"])
	assert.Equal(t, strings.TrimSpace(arbor.Version), info["version"])

	w, _ = do(t, f.handler, http.MethodGet, "/graph", nil)
	var g httpadapter.GraphResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &g))
	assert.Equal(t, "draft", g.Entry)
	assert.Len(t, g.Nodes, 2)

	w, _ = do(t, f.handler, http.MethodGet, "/graph?format=mermaid", nil)
	assert.Contains(t, w.Body.String(), "graph TD")

	w, _ = do(t, f.handler, http.MethodGet, "/graph?format=dot", nil)
	assert.Contains(t, w.Body.String(), "digraph")

	w, _ = do(t, f.handler, http.MethodGet, "/graph?format=svg", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	do(t, f.handler, http.MethodPost, "/runs", httpadapter.RunRequest{RunID: "m1"})
	w, _ = do(t, f.handler, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "arbor_node_visits_total")
}

func TestServer_CORS(t *testing.T) {
	f := newFixture(t, true)
	req := httptest.NewRequest(http.MethodOptions, "/runs", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_SubscribeEvents(t *testing.T) {
	f := newFixture(t, true)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/runs/live/events?types=node_leave,run_end", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "event: ping\n", line)

	go func() {
		body := strings.NewReader(`{"run_id":"live"}`)
		r, err := http.Post(srv.URL+"/runs", "application/json", body)
		if err == nil {
			r.Body.Close()
		}
	}()

	var events []string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		if name, ok := strings.CutPrefix(strings.TrimSpace(line), "event: "); ok {
			events = append(events, name)
		}
	}
	assert.Equal(t, []string{"node_leave", "node_leave", "run_end"}, events)
}

func TestServer_EscapedChildRunID(t *testing.T) {
	f := newFixture(t, true)

	w, _ := do(t, f.handler, http.MethodPost, "/runs", httpadapter.RunRequest{RunID: "outer/review"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = do(t, f.handler, http.MethodGet, "/runs/outer%2Freview", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var cp domain.Checkpoint
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cp))
	assert.Equal(t, "outer/review", cp.RunID)

	w, resp := do(t, f.handler, http.MethodPost, "/runs/outer%2Freview/resume", httpadapter.ResumeRequest{
		Input: domain.Update{"answer": "yes"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.StatusTerminated, resp.Result.Status)

	w, _ = do(t, f.handler, http.MethodGet, "/runs/outer/review", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "unescaped slashes are not part of the ID")
}
