package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	internal_http "github.com/shreyachakravarty07/AgentTrace/internal/http"
	"github.com/shreyachakravarty07/AgentTrace/internal/metrics"
	"github.com/shreyachakravarty07/AgentTrace/internal/testutil"
	"github.com/shreyachakravarty07/AgentTrace/pkg/generation"
	"github.com/shreyachakravarty07/AgentTrace/pkg/models"
	"github.com/shreyachakravarty07/AgentTrace/pkg/service"
	"github.com/shreyachakravarty07/AgentTrace/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, gen *testutil.FakeGenerator) *httptest.Server {
	t.Helper()
	recorder := metrics.NewRecorder()
	svc := service.NewWorkflowService(gen, storage.NewMockStore(), testutil.NopLogger{}, service.WithRecorder(recorder))
	srv := internal_http.NewServer(svc, testutil.NopLogger{}, internal_http.Options{Metrics: recorder.Handler()})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func agent(id, model string) models.Agent {
	return models.Agent{ID: id, Name: "Agent " + id, Model: model, PromptTemplate: "Do: {task}", MaxOutputLength: 30}
}

func setupPipeline(t *testing.T, ts *httptest.Server) {
	t.Helper()
	resp, _ := do(t, ts, http.MethodPost, "/workflows", map[string]string{"name": "pipeline", "global_task": "plan a trip"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = do(t, ts, http.MethodPost, "/workflows/pipeline/agents", agent("A1", "m1"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, ts, http.MethodPost, "/workflows/pipeline/agents", agent("A2", "m2"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, ts, http.MethodPost, "/workflows/pipeline/dependencies", models.Dependency{Source: "A1", Target: "A2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

type runBody struct {
	RunID   string              `json:"run_id"`
	Order   []string            `json:"order"`
	Outputs map[string]string   `json:"outputs"`
	Edges   []models.Dependency `json:"edges"`
	Error   string              `json:"error"`
}

func TestServer(t *testing.T) {
	t.Run("HealthCheck", func(t *testing.T) {
		ts := newServer(t, testutil.NewFakeGenerator())
		resp, body := do(t, ts, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), `"status":"healthy"`)
	})

	t.Run("CreateAndGetWorkflow", func(t *testing.T) {
		ts := newServer(t, testutil.NewFakeGenerator())
		setupPipeline(t, ts)

		resp, body := do(t, ts, http.MethodGet, "/workflows/pipeline", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var wf struct {
			Name         string              `json:"name"`
			GlobalTask   string              `json:"global_task"`
			Agents       []models.Agent      `json:"agents"`
			Dependencies []models.Dependency `json:"dependencies"`
		}
		require.NoError(t, json.Unmarshal(body, &wf))
		assert.Equal(t, "pipeline", wf.Name)
		assert.Equal(t, "plan a trip", wf.GlobalTask)
		assert.Len(t, wf.Agents, 2)
		assert.Equal(t, []models.Dependency{{Source: "A1", Target: "A2"}}, wf.Dependencies)

		resp, body = do(t, ts, http.MethodGet, "/workflows", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), `"name":"pipeline"`)
	})

	t.Run("ErrorMapping", func(t *testing.T) {
		ts := newServer(t, testutil.NewFakeGenerator())
		setupPipeline(t, ts)

		resp, _ := do(t, ts, http.MethodPost, "/workflows", map[string]string{"name": "pipeline"})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)

		resp, _ = do(t, ts, http.MethodPost, "/workflows", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp, _ = do(t, ts, http.MethodGet, "/workflows/missing", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)

		resp, body := do(t, ts, http.MethodPost, "/workflows/pipeline/agents", agent("A1", "m1"))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, string(body), "DUPLICATE_AGENT")

		bad := agent("A3", "m3")
		bad.PromptTemplate = "no placeholder"
		resp, _ = do(t, ts, http.MethodPost, "/workflows/pipeline/agents", bad)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp, _ = do(t, ts, http.MethodPost, "/workflows/pipeline/dependencies", models.Dependency{Source: "A1", Target: "A1"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		req, err := http.NewRequest(http.MethodPost, ts.URL+"/workflows", strings.NewReader("{not json"))
		require.NoError(t, err)
		raw, err := ts.Client().Do(req)
		require.NoError(t, err)
		raw.Body.Close()
		assert.Equal(t, http.StatusBadRequest, raw.StatusCode)

		resp, _ = do(t, ts, http.MethodGet, "/runs/unknown", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("RunWorkflow", func(t *testing.T) {
		ts := newServer(t, testutil.NewFakeGenerator())
		setupPipeline(t, ts)

		resp, body := do(t, ts, http.MethodPost, "/workflows/pipeline/run", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var run runBody
		require.NoError(t, json.Unmarshal(body, &run))
		assert.NotEmpty(t, run.RunID)
		assert.Equal(t, []string{"A1", "A2"}, run.Order)
		assert.Equal(t, `{"raw_output":"m1: Do: plan a trip"}`, run.Outputs["A1"])
		assert.Equal(t, []models.Dependency{{Source: "A1", Target: "A2"}}, run.Edges)
		assert.Empty(t, run.Error)

		resp, body = do(t, ts, http.MethodGet, "/runs/"+run.RunID, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var stored models.Run
		require.NoError(t, json.Unmarshal(body, &stored))
		assert.Equal(t, models.CompletedRunStatus, stored.Status)
		assert.Len(t, stored.AgentRuns, 2)

		resp, body = do(t, ts, http.MethodGet, "/runs", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var runs []models.Run
		require.NoError(t, json.Unmarshal(body, &runs))
		assert.Len(t, runs, 1)

		resp, _ = do(t, ts, http.MethodGet, "/runs?limit=abc", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("RunWithTaskOverride", func(t *testing.T) {
		ts := newServer(t, testutil.NewFakeGenerator())
		setupPipeline(t, ts)

		resp, body := do(t, ts, http.MethodPost, "/workflows/pipeline/run", map[string]string{"global_task": "cook"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var run runBody
		require.NoError(t, json.Unmarshal(body, &run))
		assert.Equal(t, `{"raw_output":"m1: Do: cook"}`, run.Outputs["A1"])
	})

	t.Run("FailedRunReturnsPartialResult", func(t *testing.T) {
		ts := newServer(t, testutil.NewFakeGenerator().FailModel("m2", errors.New("out of memory")))
		setupPipeline(t, ts)

		resp, body := do(t, ts, http.MethodPost, "/workflows/pipeline/run", nil)
		require.Equal(t, http.StatusBadGateway, resp.StatusCode)
		var run runBody
		require.NoError(t, json.Unmarshal(body, &run))
		assert.Contains(t, run.Outputs, "A1")
		assert.True(t, strings.HasPrefix(run.Outputs["A2"], "Error: "))
		assert.Contains(t, run.Error, "out of memory")
	})

	t.Run("CancelledGenerationIsUnavailable", func(t *testing.T) {
		gen := testutil.NewFakeGenerator().FailModel("m2", generation.NewError("m2", context.Canceled))
		ts := newServer(t, gen)
		setupPipeline(t, ts)

		resp, body := do(t, ts, http.MethodPost, "/workflows/pipeline/run", nil)
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		var run runBody
		require.NoError(t, json.Unmarshal(body, &run))
		assert.Contains(t, run.Outputs, "A1")
		assert.Contains(t, run.Error, context.Canceled.Error())
	})

	t.Run("CycleIsConflict", func(t *testing.T) {
		ts := newServer(t, testutil.NewFakeGenerator())
		setupPipeline(t, ts)
		resp, _ := do(t, ts, http.MethodPost, "/workflows/pipeline/dependencies", models.Dependency{Source: "A2", Target: "A1"})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, body := do(t, ts, http.MethodPost, "/workflows/pipeline/run", nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Contains(t, string(body), "cycle")
	})

	t.Run("TaskResetAndDelete", func(t *testing.T) {
		ts := newServer(t, testutil.NewFakeGenerator())
		setupPipeline(t, ts)

		resp, body := do(t, ts, http.MethodPut, "/workflows/pipeline/task", map[string]string{"global_task": "new"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), `"global_task":"new"`)

		resp, body = do(t, ts, http.MethodPost, "/workflows/pipeline/reset", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), `"agents":[]`)

		resp, _ = do(t, ts, http.MethodDelete, "/workflows/pipeline", nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		resp, _ = do(t, ts, http.MethodGet, "/workflows/pipeline", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("Graph", func(t *testing.T) {
		ts := newServer(t, testutil.NewFakeGenerator())
		setupPipeline(t, ts)

		resp, body := do(t, ts, http.MethodGet, "/workflows/pipeline/graph", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, strings.HasPrefix(string(body), "digraph {"))
		assert.Contains(t, string(body), `"A1" -> "A2" [label="feeds into"]`)
	})

	t.Run("Analyze", func(t *testing.T) {
		ts := newServer(t, testutil.NewFakeGenerator())
		resp, body := do(t, ts, http.MethodPost, "/analyze", map[string]string{"prompt": "hello world", "response": "hello world"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out struct {
			PromptSimilarity float64 `json:"prompt_similarity"`
			EchoFlag         float64 `json:"echo_flag"`
			Suggestion       string  `json:"suggestion"`
		}
		require.NoError(t, json.Unmarshal(body, &out))
		assert.Equal(t, 1.0, out.PromptSimilarity)
		assert.Equal(t, 1.0, out.EchoFlag)
		assert.NotEmpty(t, out.Suggestion)
	})

	t.Run("Metrics", func(t *testing.T) {
		ts := newServer(t, testutil.NewFakeGenerator())
		setupPipeline(t, ts)
		resp, _ := do(t, ts, http.MethodPost, "/workflows/pipeline/run", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, body := do(t, ts, http.MethodGet, "/metrics", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), `agenttrace_workflow_runs_total{status="completed"} 1`)
	})
}
