package artifact

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/samcharles93/coherent/internal/manifest"
)

type remoteFixture struct {
	srv       *httptest.Server
	downloads atomic.Int32
	manifest  atomic.Value
	fail      atomic.Bool
}

func newRemote(t *testing.T) *remoteFixture {
	t.Helper()
	f := &remoteFixture{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.fail.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		switch r.URL.Path {
		case "/manifest.json":
			doc, _ := f.manifest.Load().(string)
			_, _ = w.Write([]byte(doc))
		case "/models/model1.json":
			f.downloads.Add(1)
			_, _ = w.Write([]byte(`{"weights":"v1"}`))
		case "/models/model1-v2.json":
			f.downloads.Add(1)
			_, _ = w.Write([]byte(`{"weights":"v2"}`))
		case "/runner-v2.json":
			f.downloads.Add(1)
			_, _ = w.Write([]byte(`{"runner":"v2"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *remoteFixture) localManifest() *manifest.Manifest {
	return &manifest.Manifest{
		Version:   "1",
		UpdateURL: f.srv.URL + "/manifest.json",
		Runner:    manifest.Runner{ID: "runner", Version: "1", File: "runner.json", URL: f.srv.URL + "/run"},
		Models:    []manifest.Model{{ID: "model1", Version: "1", URL: f.srv.URL + "/models/model1.json"}},
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestResolveOnlineDownloadsOnceThenUsesCache(t *testing.T) {
	t.Parallel()

	remote := newRemote(t)
	r := &Resolver{BundleDir: t.TempDir(), CacheDir: t.TempDir(), Client: remote.srv.Client()}

	plan, err := r.Resolve(context.Background(), remote.localManifest(), Options{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if plan.Runner.Offline || plan.Runner.Endpoint != remote.srv.URL+"/run" {
		t.Fatalf("unexpected runner: %+v", plan.Runner)
	}
	m, ok := plan.Model("model1")
	if !ok || m.Origin != OriginRemote || string(m.Data) != `{"weights":"v1"}` {
		t.Fatalf("unexpected model: %+v", m)
	}

	plan, err = r.Resolve(context.Background(), remote.localManifest(), Options{})
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}
	m, _ = plan.Model("model1")
	if m.Origin != OriginCache {
		t.Fatalf("expected cached model on second resolve, got %s", m.Origin)
	}
	if got := remote.downloads.Load(); got != 1 {
		t.Fatalf("expected 1 download, got %d", got)
	}
}

func TestResolveOfflineUsesBundle(t *testing.T) {
	t.Parallel()

	bundle := t.TempDir()
	mustWrite(t, filepath.Join(bundle, "runner.json"), `{}`)
	mustWrite(t, filepath.Join(bundle, "model1.json"), `{"weights":"bundled"}`)

	m := &manifest.Manifest{
		Runner: manifest.Runner{ID: "runner", Version: "1", File: "runner.json"},
		Models: []manifest.Model{{ID: "model1", Version: "1"}},
	}
	var progress []string
	r := &Resolver{BundleDir: bundle, Progress: func(s string) { progress = append(progress, s) }}
	plan, err := r.Resolve(context.Background(), m, Options{OfflineRunner: true, OfflineModel: true})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !plan.Runner.Offline || plan.Runner.Path != filepath.Join(bundle, "runner.json") {
		t.Fatalf("unexpected runner: %+v", plan.Runner)
	}
	model, _ := plan.Model("model1")
	if model.Origin != OriginBundle || string(model.Data) != `{"weights":"bundled"}` {
		t.Fatalf("unexpected model: %+v", model)
	}
	if len(progress) == 0 {
		t.Fatal("expected progress lines")
	}
}

func TestResolveOfflineMissingFiles(t *testing.T) {
	t.Parallel()

	bundle := t.TempDir()
	m := &manifest.Manifest{
		Runner: manifest.Runner{ID: "runner", File: "runner.json"},
		Models: []manifest.Model{{ID: "model1"}},
	}
	r := &Resolver{BundleDir: bundle}

	_, err := r.Resolve(context.Background(), m, Options{OfflineRunner: true, OfflineModel: true})
	if !errors.Is(err, ErrMissing) {
		t.Fatalf("expected ErrMissing for runner, got %v", err)
	}

	mustWrite(t, filepath.Join(bundle, "runner.json"), `{}`)
	_, err = r.Resolve(context.Background(), m, Options{OfflineRunner: true, OfflineModel: true})
	if !errors.Is(err, ErrMissing) {
		t.Fatalf("expected ErrMissing for model, got %v", err)
	}
}

func TestResolveSandboxOverridesEndpoint(t *testing.T) {
	t.Parallel()

	remote := newRemote(t)
	r := &Resolver{CacheDir: t.TempDir(), Client: remote.srv.Client()}
	plan, err := r.Resolve(context.Background(), remote.localManifest(), Options{SandboxURL: "https://sandbox.example.com/runner"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !plan.Runner.Sandbox || plan.Runner.Endpoint != "https://sandbox.example.com/runner" {
		t.Fatalf("unexpected runner: %+v", plan.Runner)
	}
}

func TestResolveModelUpdates(t *testing.T) {
	t.Parallel()

	remote := newRemote(t)
	remote.manifest.Store(fmt.Sprintf(`{"runner":{"id":"runner","version":"1","url":%q},
		"models":[{"id":"model1","version":"2","url":%q}]}`,
		remote.srv.URL+"/run", remote.srv.URL+"/models/model1-v2.json"))
	cache := t.TempDir()
	r := &Resolver{CacheDir: cache, Client: remote.srv.Client()}

	if _, err := r.Resolve(context.Background(), remote.localManifest(), Options{}); err != nil {
		t.Fatalf("initial Resolve() error = %v", err)
	}

	// Without updates the pinned v1 stays.
	plan, err := r.Resolve(context.Background(), remote.localManifest(), Options{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if m, _ := plan.Model("model1"); m.Version != "1" {
		t.Fatalf("expected pinned version 1, got %q", m.Version)
	}

	plan, err = r.Resolve(context.Background(), remote.localManifest(), Options{ModelUpdates: true})
	if err != nil {
		t.Fatalf("Resolve(updates) error = %v", err)
	}
	m, _ := plan.Model("model1")
	if m.Version != "2" || string(m.Data) != `{"weights":"v2"}` {
		t.Fatalf("expected updated model, got %+v", m)
	}

	// The update is pinned for later sessions.
	plan, err = r.Resolve(context.Background(), remote.localManifest(), Options{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if m, _ := plan.Model("model1"); m.Version != "2" || m.Origin != OriginCache {
		t.Fatalf("expected pinned v2 from cache, got %+v", m)
	}
}

func TestResolveUpdateCheckFailureKeepsInstalledCopy(t *testing.T) {
	t.Parallel()

	remote := newRemote(t)
	r := &Resolver{CacheDir: t.TempDir(), Client: remote.srv.Client()}
	if _, err := r.Resolve(context.Background(), remote.localManifest(), Options{}); err != nil {
		t.Fatalf("initial Resolve() error = %v", err)
	}

	remote.fail.Store(true)
	plan, err := r.Resolve(context.Background(), remote.localManifest(), Options{RunnerUpdates: true, ModelUpdates: true})
	if err != nil {
		t.Fatalf("Resolve() with failing update check error = %v", err)
	}
	if m, _ := plan.Model("model1"); m.Origin != OriginCache {
		t.Fatalf("expected cached model, got %+v", m)
	}
}

func TestResolveOfflineRunnerUpdate(t *testing.T) {
	t.Parallel()

	remote := newRemote(t)
	remote.manifest.Store(fmt.Sprintf(`{"runner":{"id":"runner","version":"2","file":"runner.json","download":%q},"models":[]}`,
		remote.srv.URL+"/runner-v2.json"))
	bundle := t.TempDir()
	mustWrite(t, filepath.Join(bundle, "runner.json"), `{"runner":"v1"}`)
	m := remote.localManifest()
	m.Models = nil

	r := &Resolver{BundleDir: bundle, CacheDir: t.TempDir(), Client: remote.srv.Client()}
	plan, err := r.Resolve(context.Background(), m, Options{OfflineRunner: true, RunnerUpdates: true})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if plan.Runner.Version != "2" || plan.Runner.Origin != OriginRemote {
		t.Fatalf("expected updated runner, got %+v", plan.Runner)
	}
	data, err := os.ReadFile(plan.Runner.Path)
	if err != nil || string(data) != `{"runner":"v2"}` {
		t.Fatalf("unexpected runner file %q, %v", data, err)
	}
}
