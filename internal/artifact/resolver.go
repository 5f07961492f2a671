package artifact

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/samcharles93/coherent/internal/logger"
	"github.com/samcharles93/coherent/internal/manifest"
)

var ErrMissing = errors.New("artifact not available")

// Resolver turns a manifest into a Plan.
//
// BundleDir holds the files shipped with the application (manifest.json, the
// offline runner file and offline <model>.json documents). CacheDir holds
// downloaded artifacts and the pinned versions in state.json; it may be empty,
// in which case nothing is persisted and online models are always downloaded.
type Resolver struct {
	BundleDir string
	CacheDir  string
	Client    *http.Client
	Log       logger.Logger
	// Progress receives human readable status lines.
	Progress func(string)
}

type resolveRun struct {
	r      *Resolver
	opts   Options
	local  *manifest.Manifest
	state  *pinnedState
	dirty  bool
	remote *manifest.Manifest
	// checked is set once the remote manifest has been requested.
	checked bool
}

// Resolve resolves the runner and every model in m.
func (r *Resolver) Resolve(ctx context.Context, m *manifest.Manifest, opts Options) (*Plan, error) {
	if m == nil {
		return nil, fmt.Errorf("manifest is required")
	}
	state, err := loadState(r.CacheDir)
	if err != nil {
		r.log().Warn("ignoring unreadable cache state", "error", err)
		state = &pinnedState{Models: map[string]pinnedModel{}}
	}
	run := &resolveRun{r: r, opts: opts, local: m, state: state}

	runner, err := run.runner(ctx)
	if err != nil {
		return nil, err
	}
	plan := &Plan{Manifest: m, Runner: runner, Models: make(map[string]Model, len(m.Models))}
	for _, spec := range m.Models {
		model, err := run.model(ctx, spec)
		if err != nil {
			return nil, err
		}
		plan.Models[model.ID] = model
	}

	if run.dirty {
		if err := saveState(r.CacheDir, run.state); err != nil {
			r.log().Warn("failed to persist cache state", "error", err)
		}
	}
	return plan, nil
}

func (r *Resolver) log() logger.Logger {
	if r.Log == nil {
		return logger.Discard()
	}
	return r.Log
}

func (r *Resolver) progress(format string, args ...any) {
	if r.Progress != nil {
		r.Progress(fmt.Sprintf(format, args...))
	}
}

// remoteManifest fetches the update manifest at most once per run. A failed
// check is reported and treated as "no update".
func (run *resolveRun) remoteManifest(ctx context.Context) *manifest.Manifest {
	if run.checked {
		return run.remote
	}
	run.checked = true
	url := strings.TrimSpace(run.local.UpdateURL)
	if url == "" {
		return nil
	}
	run.r.progress("checking for updates")
	m, err := manifest.HTTPSource{URL: url, Client: run.r.Client}.Load(ctx)
	if err != nil {
		run.r.log().Warn("update check failed", "url", url, "error", err)
		run.r.progress("update check failed, using installed versions")
		return nil
	}
	run.remote = m
	return m
}

func (run *resolveRun) runner(ctx context.Context) (Runner, error) {
	spec := run.local.Runner
	if run.opts.OfflineRunner {
		return run.offlineRunner(ctx, spec)
	}
	return run.onlineRunner(ctx, spec)
}

func (run *resolveRun) offlineRunner(ctx context.Context, spec manifest.Runner) (Runner, error) {
	out := Runner{ID: spec.ID, Version: spec.Version, Offline: true, Origin: OriginBundle}
	if spec.File != "" {
		out.Path = filepath.Join(run.r.BundleDir, spec.File)
	}

	if pin := run.state.Runner; pin != nil && pin.ID == spec.ID && pin.File != "" {
		cached := filepath.Join(run.r.CacheDir, pin.File)
		if fileExists(cached) {
			out.Path, out.Version, out.Origin = cached, pin.Version, OriginCache
		}
	}

	if run.opts.RunnerUpdates {
		if remote := run.remoteManifest(ctx); remote != nil && remote.Runner.ID == spec.ID &&
			remote.Runner.Version != "" && remote.Runner.Version != out.Version && remote.Runner.Download != "" {
			run.r.progress("downloading runner %s %s", spec.ID, remote.Runner.Version)
			rel := filepath.Join("runner", remote.Runner.Version, runnerFileName(remote.Runner))
			if err := run.download(ctx, remote.Runner.Download, rel); err != nil {
				run.r.log().Warn("runner update failed", "version", remote.Runner.Version, "error", err)
			} else {
				out.Path = filepath.Join(run.r.CacheDir, rel)
				out.Version, out.Origin = remote.Runner.Version, OriginRemote
				run.state.Runner = &pinnedRunner{ID: spec.ID, Version: out.Version, File: rel}
				run.dirty = true
			}
		}
	}

	if !fileExists(out.Path) {
		return Runner{}, fmt.Errorf("%w: offline runner %q not found in bundle (file %q)", ErrMissing, spec.ID, spec.File)
	}
	run.r.progress("runner %s ready (offline)", spec.ID)
	return out, nil
}

func (run *resolveRun) onlineRunner(ctx context.Context, spec manifest.Runner) (Runner, error) {
	out := Runner{ID: spec.ID, Version: spec.Version, Endpoint: spec.URL, Origin: OriginRemote}

	if pin := run.state.Runner; pin != nil && pin.ID == spec.ID && pin.Endpoint != "" {
		out.Version, out.Endpoint, out.Origin = pin.Version, pin.Endpoint, OriginCache
	}
	if run.opts.RunnerUpdates {
		if remote := run.remoteManifest(ctx); remote != nil && remote.Runner.ID == spec.ID &&
			remote.Runner.URL != "" && (remote.Runner.Version != out.Version || out.Endpoint == "") {
			out.Version, out.Endpoint, out.Origin = remote.Runner.Version, remote.Runner.URL, OriginRemote
			run.r.progress("runner updated to %s", out.Version)
		}
	}

	pin := run.state.Runner
	if out.Endpoint != "" && (pin == nil || pin.ID != spec.ID || pin.Endpoint != out.Endpoint || pin.Version != out.Version) {
		run.state.Runner = &pinnedRunner{ID: spec.ID, Version: out.Version, Endpoint: out.Endpoint}
		run.dirty = true
	}

	if sandbox := strings.TrimSpace(run.opts.SandboxURL); sandbox != "" {
		out.Endpoint, out.Sandbox = sandbox, true
	}
	if out.Endpoint == "" {
		return Runner{}, fmt.Errorf("%w: online runner %q has no url", ErrMissing, spec.ID)
	}
	run.r.progress("runner %s ready (online)", spec.ID)
	return out, nil
}

func (run *resolveRun) model(ctx context.Context, spec manifest.Model) (Model, error) {
	out := Model{ID: spec.ID, Version: spec.Version}
	if run.opts.OfflineModel {
		out.Path, out.Origin = filepath.Join(run.r.BundleDir, spec.ID+".json"), OriginBundle
	}

	pin, pinned := run.state.Models[spec.ID]
	if pinned && run.r.CacheDir != "" {
		if cached := filepath.Join(run.r.CacheDir, pin.File); fileExists(cached) {
			out.Path, out.Version, out.Origin = cached, pin.Version, OriginCache
		}
	}

	url, version := spec.URL, out.Version
	needDownload := !run.opts.OfflineModel && out.Origin != OriginCache
	if run.opts.ModelUpdates {
		if remote := run.remoteManifest(ctx); remote != nil {
			if rm, ok := remote.Model(spec.ID); ok && rm.Version != "" && rm.Version != out.Version && rm.URL != "" {
				url, version = rm.URL, rm.Version
				needDownload = true
			}
		}
	}

	if needDownload {
		if url == "" {
			return Model{}, fmt.Errorf("%w: model %q has no url", ErrMissing, spec.ID)
		}
		run.r.progress("downloading model %s", spec.ID)
		rel := filepath.Join("models", spec.ID+".json")
		data, err := manifest.Fetch(ctx, run.r.Client, url)
		if err != nil {
			if out.Origin == OriginCache || (run.opts.OfflineModel && fileExists(out.Path)) {
				run.r.log().Warn("model update failed, keeping installed copy", "model", spec.ID, "error", err)
				return run.readModel(out)
			}
			return Model{}, fmt.Errorf("download model %q: %w", spec.ID, err)
		}
		out.Data, out.Version, out.Origin = data, version, OriginRemote
		if run.r.CacheDir != "" {
			path := filepath.Join(run.r.CacheDir, rel)
			if err := writeFileAtomic(path, data); err != nil {
				run.r.log().Warn("failed to cache model", "model", spec.ID, "error", err)
			} else {
				out.Path = path
				run.state.Models[spec.ID] = pinnedModel{Version: out.Version, File: rel}
				run.dirty = true
			}
		}
		run.r.progress("model %s ready", spec.ID)
		return out, nil
	}
	return run.readModel(out)
}

func (run *resolveRun) readModel(out Model) (Model, error) {
	if !fileExists(out.Path) {
		return Model{}, fmt.Errorf("%w: model %q not found at %s", ErrMissing, out.ID, out.Path)
	}
	data, err := os.ReadFile(out.Path)
	if err != nil {
		return Model{}, fmt.Errorf("read model %q: %w", out.ID, err)
	}
	out.Data = data
	run.r.progress("model %s ready", out.ID)
	return out, nil
}

func (run *resolveRun) download(ctx context.Context, url, rel string) error {
	if run.r.CacheDir == "" {
		return fmt.Errorf("cache dir is required to store downloads")
	}
	data, err := manifest.Fetch(ctx, run.r.Client, url)
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(run.r.CacheDir, rel), data)
}

func runnerFileName(r manifest.Runner) string {
	if r.File != "" {
		return filepath.Base(r.File)
	}
	return r.ID
}
