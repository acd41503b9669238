package app

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"reinfer-cli/internal/client"
)

// captureOutput redirects the package stdout and stderr writers.
func captureOutput(t *testing.T) (out, errOut *bytes.Buffer) {
	t.Helper()
	out, errOut = &bytes.Buffer{}, &bytes.Buffer{}
	oldOut, oldErr := stdout, stderr
	stdout, stderr = out, errOut
	t.Cleanup(func() { stdout, stderr = oldOut, oldErr })
	return out, errOut
}

func noRetries(t *testing.T) {
	t.Helper()
	old := retryConfig
	retryConfig = func() client.RetryConfig { return client.RetryConfig{} }
	t.Cleanup(func() { retryConfig = old })
}

// isolateHome points every per-user directory at a temp dir.
func isolateHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	return dir
}

// testGlobals targets srv with an explicit endpoint and token, which skips
// the context checks.
func testGlobals(t *testing.T, srv *httptest.Server) GlobalOptions {
	t.Helper()
	dir := isolateHome(t)
	noRetries(t)
	return GlobalOptions{
		ConfigFile: filepath.Join(dir, "config", "reinfer", "contexts.yaml"),
		Endpoint:   srv.URL,
		Token:      "secret",
		NumThreads: 4,
	}
}

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   []byte
}

// fakeAPI serves canned envelopes keyed by "METHOD /path" and records every
// request it sees.
type fakeAPI struct {
	mu       sync.Mutex
	routes   map[string]http.HandlerFunc
	requests []recordedRequest
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{routes: map[string]http.HandlerFunc{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAPI) handle(route string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[route] = h
}

func (f *fakeAPI) ok(route string, body map[string]any) {
	f.handle(route, func(w http.ResponseWriter, _ *http.Request) { writeOK(w, body) })
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: body})
	h, ok := f.routes[r.Method+" "+r.URL.Path]
	f.mu.Unlock()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if !ok {
		writeError(w, http.StatusNotFound, "no route for "+r.Method+" "+r.URL.Path)
		return
	}
	h(w, r)
}

func (f *fakeAPI) calls(method, path string) []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedRequest
	for _, r := range f.requests {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func writeOK(w http.ResponseWriter, body map[string]any) {
	m := map[string]any{"status": "ok"}
	for k, v := range body {
		m[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "error", "message": msg})
}

func (f *fakeAPI) withSource(owner, name, id string) {
	f.ok("GET /api/v1/sources/"+owner+"/"+name, map[string]any{
		"source": map[string]any{"id": id, "owner": owner, "name": name},
	})
}

func (f *fakeAPI) withDataset(owner, name, id string) {
	f.ok("GET /api/v1/datasets/"+owner+"/"+name, map[string]any{
		"dataset": map[string]any{"id": id, "owner": owner, "name": name},
	})
}

func decodeJSON[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	return v
}
