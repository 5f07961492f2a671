package surface

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
)

type fakeExecutor struct {
	out map[string]any
	err error
}

func (f fakeExecutor) Execute(_ context.Context, modelID string, inputs map[string]any) (map[string]any, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]any{"model": modelID}
	for k, v := range f.out {
		out[k] = v
	}
	return out, nil
}

type recordingEmitter struct {
	mu      sync.Mutex
	results []map[string]any
	actions []string
}

func (r *recordingEmitter) WebviewResult(result map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func (r *recordingEmitter) ButtonAction(name string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, name)
}

func newTestSurface(t *testing.T, deps Deps) *Surface {
	t.Helper()
	s, err := New(Config{Language: "ch", Profile: map[string]any{"name": "Ada"}, Models: []string{"model1"}}, deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	data, _ := io.ReadAll(rec.Body)
	return rec, string(data)
}

func TestNewRejectsUnsupportedLanguage(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Language: "fr"}, Deps{}); err == nil {
		t.Fatal("expected error for unsupported language")
	}
}

func TestNewAcceptsExtraLanguage(t *testing.T) {
	t.Parallel()

	s, err := New(Config{Language: "de", Languages: []string{"de"}}, Deps{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if s.Language != "de" {
		t.Fatalf("Language = %q, want de", s.Language)
	}
	if !strings.Contains(string(s.Page()), `lang="de"`) {
		t.Fatal("page not rendered for de")
	}
}

func TestNewRejectsUnserializableProfile(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Profile: map[string]any{"fn": func() {}}}, Deps{})
	if err == nil || !strings.Contains(err.Error(), "not serializable") {
		t.Fatalf("New() error = %v, want serialization error", err)
	}
}

func TestNewDefaultsLanguageAndCopiesProfile(t *testing.T) {
	t.Parallel()

	profile := map[string]any{"id": "200"}
	s, err := New(Config{Profile: profile}, Deps{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if s.Language != "en" {
		t.Fatalf("Language = %q, want en", s.Language)
	}
	profile["id"] = "changed"
	if got := s.Profile()["id"]; got != "200" {
		t.Fatalf("Profile()[id] = %v, want 200", got)
	}
	if s.ID == "" {
		t.Fatal("expected surface id")
	}
}

func TestIndexAndConfig(t *testing.T) {
	t.Parallel()

	s := newTestSurface(t, Deps{})

	rec, body := do(t, s, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET / status = %d", rec.Code)
	}
	if !strings.Contains(body, `lang="ch"`) || !strings.Contains(body, "Ada") {
		t.Fatalf("unexpected page: %s", body)
	}

	rec, body = do(t, s, http.MethodGet, "/api/config", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/config status = %d", rec.Code)
	}
	var cfg struct {
		SurfaceID string         `json:"surfaceId"`
		Language  string         `json:"language"`
		Profile   map[string]any `json:"profile"`
	}
	if err := json.Unmarshal([]byte(body), &cfg); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if cfg.SurfaceID != s.ID || cfg.Language != "ch" || cfg.Profile["name"] != "Ada" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestStaticAssets(t *testing.T) {
	t.Parallel()

	s := newTestSurface(t, Deps{})
	rec, body := do(t, s, http.MethodGet, "/static/app.js", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /static/app.js status = %d", rec.Code)
	}
	if !strings.Contains(body, "api/execute") {
		t.Fatal("unexpected app.js body")
	}
}

func TestExecuteEmitsResult(t *testing.T) {
	t.Parallel()

	em := &recordingEmitter{}
	s := newTestSurface(t, Deps{Executor: fakeExecutor{out: map[string]any{"sum": 26}}, Emitter: em})

	rec, body := do(t, s, http.MethodPost, "/api/execute", `{"modelId":"model1","inputs":{"inputA":11}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /api/execute status = %d body=%s", rec.Code, body)
	}
	if !strings.Contains(body, `"sum":26`) {
		t.Fatalf("unexpected body: %s", body)
	}
	if len(em.results) != 1 || em.results[0]["model"] != "model1" {
		t.Fatalf("results = %v", em.results)
	}
}

func TestExecuteErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		deps   Deps
		body   string
		status int
		code   string
	}{
		{name: "malformed", deps: Deps{Executor: fakeExecutor{}}, body: `{`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "missing model", deps: Deps{Executor: fakeExecutor{}}, body: `{"inputs":{}}`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "no executor", deps: Deps{}, body: `{"modelId":"m"}`, status: http.StatusServiceUnavailable, code: "not_available"},
		{name: "engine failure", deps: Deps{Executor: fakeExecutor{err: errors.New("boom")}}, body: `{"modelId":"m"}`, status: http.StatusUnprocessableEntity, code: "execution_failed"},
		{
			name: "described failure",
			deps: Deps{
				Executor: fakeExecutor{err: errors.New("boom")},
				Describe: func(error) (string, string) { return "E_INPUT", "bad input" },
			},
			body:   `{"modelId":"m"}`,
			status: http.StatusUnprocessableEntity,
			code:   "E_INPUT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newTestSurface(t, tt.deps)
			rec, body := do(t, s, http.MethodPost, "/api/execute", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (body=%s)", rec.Code, tt.status, body)
			}
			if !strings.Contains(body, `"code":"`+tt.code+`"`) {
				t.Fatalf("body %s missing code %q", body, tt.code)
			}
		})
	}
}

func TestResultAndActionEvents(t *testing.T) {
	t.Parallel()

	em := &recordingEmitter{}
	s := newTestSurface(t, Deps{Emitter: em})

	if rec, _ := do(t, s, http.MethodPost, "/api/result", `{"score":3}`); rec.Code != http.StatusAccepted {
		t.Fatalf("POST /api/result status = %d", rec.Code)
	}
	if rec, _ := do(t, s, http.MethodPost, "/api/action", `{"name":"close","result":true}`); rec.Code != http.StatusAccepted {
		t.Fatalf("POST /api/action status = %d", rec.Code)
	}
	if rec, _ := do(t, s, http.MethodPost, "/api/action", `{"result":true}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("POST /api/action without name status = %d", rec.Code)
	}

	if len(em.results) != 1 || em.results[0]["score"] != float64(3) {
		t.Fatalf("results = %v", em.results)
	}
	if len(em.actions) != 1 || em.actions[0] != "close" {
		t.Fatalf("actions = %v", em.actions)
	}
}
