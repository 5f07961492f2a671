package httprunner

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/samcharles93/coherent/internal/artifact"
	"github.com/samcharles93/coherent/internal/engine"
)

func newRunnerServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/execute" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var req executeRequest
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch req.ModelID {
		case "model1":
			a, _ := req.Inputs["inputA"].(float64)
			b, _ := req.Inputs["inputB"].(float64)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"outputs": map[string]any{"sum": a + b, "version": req.ModelVersion, "hasModel": len(req.Model) > 0},
			})
		case "broken":
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": "E_INPUT", "message": "inputA missing"}})
		default:
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream exploded"))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func planFor(endpoint string) *artifact.Plan {
	return &artifact.Plan{
		Runner: artifact.Runner{ID: "runner", Endpoint: endpoint + "/"},
		Models: map[string]artifact.Model{
			"model1": {ID: "model1", Version: "3", Data: []byte(`{"weights":[1,2]}`)},
		},
	}
}

func TestExecuteSuccess(t *testing.T) {
	t.Parallel()

	srv := newRunnerServer(t)
	e, err := Loader{Client: srv.Client()}.Load(context.Background(), planFor(srv.URL))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer e.Close()

	out, err := e.Execute(context.Background(), "model1", map[string]any{"inputA": 11, "inputB": 15, "time": 2000})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out["sum"] != float64(26) || out["version"] != "3" || out["hasModel"] != true {
		t.Fatalf("unexpected outputs %v", out)
	}
}

func TestExecuteRunnerErrors(t *testing.T) {
	t.Parallel()

	srv := newRunnerServer(t)
	e, err := Loader{Client: srv.Client(), RatePerSecond: 100}.Load(context.Background(), planFor(srv.URL))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		model string
		code  string
	}{
		{"broken", "E_INPUT"},
		{"other", "http_502"},
	}
	for _, tc := range tests {
		_, err := e.Execute(context.Background(), tc.model, nil)
		var engErr *engine.Error
		if !errors.As(err, &engErr) {
			t.Fatalf("%s: expected *engine.Error, got %v", tc.model, err)
		}
		if engErr.Code != tc.code {
			t.Errorf("%s: code = %q, want %q", tc.model, engErr.Code, tc.code)
		}
	}
}

func TestExecuteRejectsOversizedResponse(t *testing.T) {
	t.Parallel()

	// outputsOfSize returns a valid response body of exactly n bytes.
	outputsOfSize := func(n int) string {
		const head, tail = `{"outputs":{"pad":"`, `"}}`
		return head + strings.Repeat("a", n-len(head)-len(tail)) + tail
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req executeRequest
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &req)
		w.Header().Set("Content-Type", "application/json")
		switch req.ModelID {
		case "fits":
			_, _ = io.WriteString(w, outputsOfSize(maxResponseSize))
		default:
			_, _ = io.WriteString(w, outputsOfSize(maxResponseSize+1))
		}
	}))
	t.Cleanup(srv.Close)

	e, err := Loader{Client: srv.Client()}.Load(context.Background(), planFor(srv.URL))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer e.Close()

	out, err := e.Execute(context.Background(), "fits", nil)
	if err != nil {
		t.Fatalf("response at the limit: %v", err)
	}
	if pad, _ := out["pad"].(string); len(pad) == 0 {
		t.Fatalf("response at the limit lost its outputs")
	}

	_, err = e.Execute(context.Background(), "oversized", nil)
	if !errors.Is(err, ErrResponseTooLarge) {
		t.Fatalf("expected ErrResponseTooLarge, got %v", err)
	}
	var engErr *engine.Error
	if errors.As(err, &engErr) {
		t.Fatalf("oversized response must not decode as a runner error: %v", engErr)
	}
}

func TestLoadRejectsOfflineAndMissingEndpoint(t *testing.T) {
	t.Parallel()

	plan := planFor("")
	plan.Runner.Endpoint = ""
	if _, err := (Loader{}).Load(context.Background(), plan); err == nil {
		t.Fatal("expected error for missing endpoint")
	}
	plan.Runner.Offline = true
	if _, err := (Loader{}).Load(context.Background(), plan); !errors.Is(err, engine.ErrNoLoader) {
		t.Fatalf("expected ErrNoLoader for offline runner, got %v", err)
	}
}
