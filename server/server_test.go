package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aquaveo/xmstool-runner/mesh"
	"github.com/Aquaveo/xmstool-runner/tool"
)

type testEnv struct {
	srv     *Server
	handler http.Handler
	started chan struct{}
	release chan struct{}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{started: make(chan struct{}, 1), release: make(chan struct{})}

	reg := tool.NewRegistry()
	require.NoError(t, reg.Register(tool.MustDescriptor(tool.Definition{
		ID:          "add-grid",
		DisplayName: "Add Grid",
		Category:    "Mesh",
		Description: "Add a single triangle to the workspace.",
		Params: []tool.ParamSpec{
			{Name: "name", Kind: tool.ParamText, Required: true},
			{Name: "size", Kind: tool.ParamNumber, Default: "1"},
		},
		Strategy: tool.InProcess{Run: func(_ context.Context, call tool.Call) (tool.Result, error) {
			p := call.Workspace.(*mesh.Project)
			size := call.Params.Float("size")
			g := &mesh.UGrid{
				UUID:   "grid-" + call.Params.String("name"),
				Name:   call.Params.String("name"),
				Points: []mesh.Point{{}, {X: size}, {Y: size}},
				Cells:  []mesh.Cell{{0, 1, 2}},
			}
			if err := p.AddGrid(g); err != nil {
				return tool.Result{}, err
			}
			call.Logger.Info("added grid " + g.Name)
			return tool.Result{Artifacts: []tool.Artifact{{Kind: tool.ArtifactGrid, Name: g.Name, Ref: g.UUID}}}, nil
		}},
	})))
	require.NoError(t, reg.Register(tool.MustDescriptor(tool.Definition{
		ID:       "block",
		Category: "Test",
		Strategy: tool.InProcess{Run: func(ctx context.Context, _ tool.Call) (tool.Result, error) {
			env.started <- struct{}{}
			select {
			case <-env.release:
			case <-ctx.Done():
			}
			return tool.Result{}, nil
		}},
	})))

	n := 0
	env.srv = NewServer(ServerConfig{
		Registry: reg,
		Dispatcher: tool.NewDispatcher(tool.DispatcherConfig{
			Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		}),
		NewID:  func() string { n++; return fmt.Sprintf("s%d", n) },
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	env.handler = env.srv.Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, 2.0, body["tools"])
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestListAndGetTools(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/tools", "")
	require.Equal(t, http.StatusOK, w.Code)
	tools := decode[[]map[string]any](t, w)
	require.Len(t, tools, 2)
	assert.Equal(t, "add-grid", tools[0]["id"])
	assert.Equal(t, "in_process", tools[0]["origin"])

	w = env.do(t, http.MethodGet, "/api/tools?q=triangle", "")
	tools = decode[[]map[string]any](t, w)
	require.Len(t, tools, 1)
	assert.Equal(t, "add-grid", tools[0]["id"])

	w = env.do(t, http.MethodGet, "/api/tools?q=nothing+matches", "")
	assert.Equal(t, "[]\n", w.Body.String())

	w = env.do(t, http.MethodGet, "/api/tools/add-grid", "")
	require.Equal(t, http.StatusOK, w.Code)
	desc := decode[map[string]any](t, w)
	params := desc["params"].([]any)
	assert.Len(t, params, 2)

	w = env.do(t, http.MethodGet, "/api/tools/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode[apiError](t, w).Error.Code)
}

func TestRunToolAgainstSession(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/sessions", "")
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[sessionResponse](t, w)
	assert.Equal(t, "s1", created.ID)
	assert.Empty(t, created.Grids)

	w = env.do(t, http.MethodPost, "/api/sessions/s1/tools/add-grid/run", `{"params":{"name":"tri","size":2}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	outcome := decode[tool.Outcome](t, w)
	assert.Equal(t, tool.StateSucceeded, outcome.State)
	assert.Equal(t, []string{"added grid tri"}, outcome.Messages)

	w = env.do(t, http.MethodGet, "/api/sessions/s1", "")
	require.Equal(t, http.StatusOK, w.Code)
	sess := decode[sessionResponse](t, w)
	require.Len(t, sess.Grids, 1)
	assert.Equal(t, "tri", sess.Grids[0].Name)
	assert.Equal(t, 3, sess.Grids[0].Points)
	assert.Equal(t, 2.0, sess.Grids[0].Extents.Max.X)

	// the same name again fails at runtime: a 200 with a failed outcome
	w = env.do(t, http.MethodPost, "/api/sessions/s1/tools/add-grid/run", `{"params":{"name":"tri"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	outcome = decode[tool.Outcome](t, w)
	assert.Equal(t, tool.KindToolRuntime, outcome.Reason)

	// a second session has its own workspace
	env.do(t, http.MethodPost, "/api/sessions", "")
	w = env.do(t, http.MethodGet, "/api/sessions/s2", "")
	assert.Empty(t, decode[sessionResponse](t, w).Grids)
}

func TestRunToolRejections(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/sessions", "")

	w := env.do(t, http.MethodPost, "/api/sessions/s1/tools/add-grid/run", `{"params":{"size":"wide"}}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	outcome := decode[tool.Outcome](t, w)
	assert.Equal(t, tool.KindMissingParameter, outcome.Reason)
	assert.Contains(t, outcome.ParamErrors, "name")
	assert.Contains(t, outcome.ParamErrors, "size")

	w = env.do(t, http.MethodPost, "/api/sessions/s1/tools/add-grid/run", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = env.do(t, http.MethodPost, "/api/sessions/s1/tools/add-grid/run", `{"params":{"name":["a"]}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/sessions/s1/tools/add-grid/run", `{"args":{}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/sessions/s1/tools/missing/run", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/sessions/nope/tools/add-grid/run", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOneInvocationPerSession(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/sessions", "")
	env.do(t, http.MethodPost, "/api/sessions", "")

	var wg sync.WaitGroup
	wg.Add(1)
	var first *httptest.ResponseRecorder
	go func() {
		defer wg.Done()
		first = env.do(t, http.MethodPost, "/api/sessions/s1/tools/block/run", `{}`)
	}()
	<-env.started

	w := env.do(t, http.MethodPost, "/api/sessions/s1/tools/add-grid/run", `{"params":{"name":"tri"}}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = env.do(t, http.MethodDelete, "/api/sessions/s1", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	// other sessions are not blocked
	w = env.do(t, http.MethodPost, "/api/sessions/s2/tools/add-grid/run", `{"params":{"name":"tri"}}`)
	assert.Equal(t, http.StatusOK, w.Code)

	close(env.release)
	wg.Wait()
	assert.Equal(t, http.StatusOK, first.Code)

	w = env.do(t, http.MethodDelete, "/api/sessions/s1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, http.MethodGet, "/api/sessions/s1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequestBodyLimit(t *testing.T) {
	env := newTestEnv(t)
	env.srv.maxBody = 16
	env.handler = env.srv.Handler()
	env.do(t, http.MethodPost, "/api/sessions", "")

	w := env.do(t, http.MethodPost, "/api/sessions/s1/tools/add-grid/run", `{"params":{"name":"a very long grid name"}}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
