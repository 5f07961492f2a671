package sdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"

	"github.com/samcharles93/coherent/internal/artifact"
	"github.com/samcharles93/coherent/internal/engine"
	"github.com/samcharles93/coherent/internal/logger"
)

const bundleManifest = `{
  "version": "1",
  "runner": {"id": "test-runner", "version": "1", "file": "runner.json"},
  "models": [
    {"id": "model1", "version": "1"},
    {"id": "model2", "version": "1"}
  ],
  "ui": {"languages": ["en", "ch"]}
}`

// offlineBundle writes a bundle that resolves fully offline.
func offlineBundle(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"manifest.json": bundleManifest,
		"runner.json":   `{"runner":"test"}`,
		"model1.json":   `{"weights":"m1"}`,
		"model2.json":   `{"weights":"m2"}`,
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func offlineConfig() SessionConfig {
	return SessionConfig{OfflineRunner: true, OfflineModel: true}
}

// countingLoader counts loads and executions. Loads block on gate when it is
// set and fail while failLoads is positive.
type countingLoader struct {
	loads     atomic.Int32
	execs     atomic.Int32
	failLoads atomic.Int32
	gate      chan struct{}
	exec      engine.Func
}

func (l *countingLoader) Load(ctx context.Context, plan *artifact.Plan) (engine.Engine, error) {
	l.loads.Add(1)
	if l.gate != nil {
		select {
		case <-l.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if l.failLoads.Load() > 0 {
		l.failLoads.Add(-1)
		return nil, errors.New("runner failed to start")
	}
	return engine.Func(func(ctx context.Context, modelID string, inputs map[string]any) (map[string]any, error) {
		l.execs.Add(1)
		if l.exec != nil {
			return l.exec(ctx, modelID, inputs)
		}
		return map[string]any{"model": modelID}, nil
	}), nil
}

func newOfflineSession(t *testing.T, l *countingLoader, opts ...Option) *Session {
	t.Helper()
	base := []Option{
		WithBundleDir(offlineBundle(t)),
		WithLoader(l),
		WithLogger(logger.Discard()),
	}
	s := New(append(base, opts...)...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func readySession(t *testing.T, l *countingLoader, opts ...Option) *Session {
	t.Helper()
	s := newOfflineSession(t, l, opts...)
	if _, err := s.Initialize(context.Background(), offlineConfig()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return s
}

// remoteRunner serves model documents and a summing /execute endpoint.
func remoteRunner(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models/model1.json":
			_, _ = w.Write([]byte(`{"weights":"remote"}`))
		case "/execute":
			var req struct {
				ModelID string             `json:"modelId"`
				Inputs  map[string]float64 `json:"inputs"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":{"code":"E_DECODE","message":"bad body"}}`))
				return
			}
			if req.ModelID != "model1" {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"error":{"code":"E_MODEL","message":"no such model"}}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"outputs": map[string]any{
				"sum":  req.Inputs["inputA"] + req.Inputs["inputB"],
				"time": req.Inputs["time"],
			}})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func onlineBundle(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	dir := t.TempDir()
	doc := `{"version":"1",
  "runner":{"id":"remote-runner","version":"1","url":"` + srv.URL + `"},
  "models":[{"id":"model1","version":"1","url":"` + srv.URL + `/models/model1.json"}]}`
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(doc), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return dir
}

func writeFile(dir, name, body string) error {
	return os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644)
}

func removeFile(dir, name string) error {
	return os.Remove(filepath.Join(dir, name))
}
