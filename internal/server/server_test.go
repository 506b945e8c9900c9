package server_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/coderunner/internal/executor"
	"github.com/sakif/coderunner/internal/handler"
	"github.com/sakif/coderunner/internal/repository/sqlite"
	"github.com/sakif/coderunner/internal/server"
	"github.com/sakif/coderunner/internal/service"
)

type stubExecutor struct{}

func (stubExecutor) Execute(ctx context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	code := 0
	return &executor.ExecutionResult{Stdout: "ok\n", ExitCode: &code}, nil
}

func newTestServer(t *testing.T, cfg server.Config) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	srv, err := server.New(cfg, server.Deps{
		Executor: stubExecutor{},
		Snippets: service.NewSnippetService(db, stubExecutor{}, logger),
		Health:   map[string]handler.Pinger{"database": db},
	}, logger)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRoutes(t *testing.T) {
	ts := newTestServer(t, server.Config{})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"health", http.MethodGet, "/healthz", "", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", http.StatusOK},
		{"languages", http.MethodGet, "/api/languages", "", http.StatusOK},
		{"run", http.MethodPost, "/run", `{"language":"python","code":"print(1)"}`, http.StatusOK},
		{"api run", http.MethodPost, "/api/run", `{"language":"python","code":"print(1)"}`, http.StatusOK},
		{"list snippets", http.MethodGet, "/api/snippets", "", http.StatusOK},
		{"missing snippet", http.MethodGet, "/api/snippets/nope", "", http.StatusNotFound},
		{"unknown route", http.MethodGet, "/does-not-exist", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *http.Response
			if tt.method == http.MethodPost {
				resp = post(t, ts.URL+tt.path, tt.body)
			} else {
				resp = get(t, ts.URL+tt.path)
			}
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestRun_ResultBody(t *testing.T) {
	ts := newTestServer(t, server.Config{})

	resp := post(t, ts.URL+"/api/run", `{"language":"python","code":"print(1)"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"stdout":"ok\n","stderr":"","exitCode":0,"timedOut":false}`, string(body))
}

func TestRun_RateLimited(t *testing.T) {
	ts := newTestServer(t, server.Config{RateLimitRPS: 0.001, RateLimitBurst: 1})
	body := `{"language":"python","code":"print(1)"}`

	assert.Equal(t, http.StatusOK, post(t, ts.URL+"/run", body).StatusCode)

	limited := post(t, ts.URL+"/run", body)
	assert.Equal(t, http.StatusTooManyRequests, limited.StatusCode)
	assert.NotEmpty(t, limited.Header.Get("Retry-After"))

	// Read-only routes are not limited.
	assert.Equal(t, http.StatusOK, get(t, ts.URL+"/api/languages").StatusCode)
}

func TestNew_RequiresExecutor(t *testing.T) {
	_, err := server.New(server.Config{}, server.Deps{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
