// Package sdk is the client facade of the Coherent model runtime.
//
// A Session owns initialization (manifest, runner and model resolution with
// offline, update and sandbox switches), model execution, provisioning of the
// embedded web surface and delivery of events to a host observer.
//
//	s := sdk.New(sdk.WithBundleDir("bundle"), sdk.WithCacheDir(cache))
//	if _, err := s.Initialize(ctx, sdk.SessionConfig{}); err != nil {
//		return err
//	}
//	out, err := s.Execute(ctx, sdk.ExecutionRequest{ModelID: "model1", Inputs: in})
//
// Sessions are safe for concurrent use. Hosts that want a process wide
// instance hold one Session and pass it where it is needed.
package sdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/samcharles93/coherent/internal/artifact"
	"github.com/samcharles93/coherent/internal/engine"
	"github.com/samcharles93/coherent/internal/engine/httprunner"
	"github.com/samcharles93/coherent/internal/logger"
	"github.com/samcharles93/coherent/internal/manifest"
	"github.com/samcharles93/coherent/internal/metrics"
)

type Session struct {
	opts     options
	log      Logger
	level    *logger.Level
	metrics  *metrics.Metrics
	source   ManifestSource
	loader   Loader
	notifier *notifier

	mu         sync.Mutex
	cfg        SessionConfig
	generation uint64
	state      State
	attempt    *attempt
	provider   *engine.Provider
	languages  []string

	surfaces singleflight.Group
	// beforeBuild runs at the start of every surface construction.
	beforeBuild func(SessionConfig)
	// joined runs once a GetSurface call is attached to a construction.
	joined func()
}

// New creates an uninitialized session.
func New(opts ...Option) *Session {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	base := slog.LevelInfo
	if o.logLevel != nil {
		base = *o.logLevel
	}
	s := &Session{
		opts:    o,
		level:   logger.NewLevel(base),
		metrics: o.metrics,
		cfg:     SessionConfig{}.withDefaults(),
	}
	switch {
	case o.log != nil:
		s.log = o.log
	case o.logOut != nil:
		s.log = logger.ForFormat(o.logFormat, o.logOut, s.level)
	default:
		s.log = logger.Text(os.Stderr, s.level)
	}
	s.log = s.log.With("component", "sdk")

	s.source = o.source
	if s.source == nil {
		s.source = manifest.BundleSource(o.bundleDir)
	}
	s.loader = o.loader
	if s.loader == nil {
		registry := o.registry
		if registry == nil {
			registry = engine.NewRegistry()
		}
		s.loader = engine.AutoLoader{
			Local: registry,
			Remote: httprunner.Loader{
				Client:        o.client,
				RatePerSecond: o.rate,
				Burst:         o.burst,
				Log:           s.log,
			},
		}
	}
	s.notifier = newNotifier(o.queueSize, s.metrics, s.log)
	return s
}

// LogLevel is the threshold EnableDebugLogs adjusts. Loggers injected with
// WithLogger follow the switch when built on it.
func (s *Session) LogLevel() slog.Leveler {
	return s.level
}

// Metrics returns the collectors given with WithMetrics, or nil.
func (s *Session) Metrics() *Metrics {
	return s.metrics
}

// Initialize adopts cfg as the session configuration and brings the session
// to Ready. Start from Config() to keep values set through the setters.
//
// Callers arriving while an attempt is in flight join it and receive its
// result. A Ready session returns immediately without reinitializing. A
// Failed session starts a new attempt. ctx only bounds the wait: the attempt
// itself runs to completion for the benefit of every caller sharing it.
func (s *Session) Initialize(ctx context.Context, cfg SessionConfig) (State, error) {
	s.mu.Lock()
	switch s.state.Phase {
	case Ready:
		st := s.state
		s.mu.Unlock()
		return st, nil
	case Initializing:
		a := s.attempt
		s.mu.Unlock()
		return s.wait(ctx, a)
	}

	cfg = cfg.withDefaults().clone()
	if err := cfg.Validate(); err != nil {
		st := s.state
		s.mu.Unlock()
		s.metrics.Initialization("rejected")
		return st, err
	}

	a := newAttempt()
	s.cfg = cfg
	s.generation++
	s.attempt = a
	s.state = State{Phase: Initializing}
	s.level.SetDebug(cfg.DebugLogs)
	s.mu.Unlock()

	go s.run(context.WithoutCancel(ctx), a, cfg)
	return s.wait(ctx, a)
}

func (s *Session) wait(ctx context.Context, a *attempt) (State, error) {
	select {
	case <-a.done:
		return a.state, a.err
	case <-ctx.Done():
		return State{Phase: Initializing}, ctx.Err()
	}
}

func (s *Session) run(ctx context.Context, a *attempt, cfg SessionConfig) {
	log := s.log.With("offline_runner", cfg.OfflineRunner, "offline_model", cfg.OfflineModel,
		"runner_updates", cfg.RunnerUpdates, "model_updates", cfg.ModelUpdates, "sandbox", cfg.SandboxEnabled)
	log.Info("initializing session")
	s.notifier.Progress("initializing")

	provider, languages, err := s.load(ctx, cfg, log)

	s.mu.Lock()
	if s.attempt != a {
		s.mu.Unlock()
		if provider != nil {
			_ = provider.Close()
		}
		// Progress sent while closing may have restarted the callback goroutine.
		s.notifier.stop()
		a.finish(State{Phase: Uninitialized}, &Error{Kind: ErrClosed, Code: CodeNotReady, Message: "closed during initialization"})
		return
	}
	s.attempt = nil
	if err != nil {
		s.state = State{Phase: Failed, Reason: err.Error()}
		st := s.state
		s.mu.Unlock()
		log.Warn("session initialization failed", "error", err)
		s.metrics.Initialization("failed")
		s.notifier.Progress("initialization failed")
		a.finish(st, err)
		return
	}
	s.provider = provider
	s.languages = languages
	s.state = State{Phase: Ready}
	st := s.state
	s.mu.Unlock()

	log.Info("session ready", "runner", provider.Plan().Runner.ID, "models", len(provider.Models()))
	s.metrics.Initialization("ready")
	s.notifier.Progress("ready")
	a.finish(st, nil)
}

func (s *Session) load(ctx context.Context, cfg SessionConfig, log Logger) (*engine.Provider, []string, error) {
	s.notifier.Progress("loading manifest")
	m, err := s.source.Load(ctx)
	if err != nil {
		return nil, nil, classifyLoad("load manifest", err)
	}

	resolver := &artifact.Resolver{
		BundleDir: s.opts.bundleDir,
		CacheDir:  s.opts.cacheDir,
		Client:    s.opts.client,
		Log:       log,
		Progress:  s.notifier.Progress,
	}
	plan, err := resolver.Resolve(ctx, m, cfg.artifactOptions())
	if err != nil {
		return nil, nil, classifyLoad("resolve artifacts", err)
	}

	s.notifier.Progress("starting runner " + plan.Runner.ID)
	provider, err := engine.NewProvider(ctx, s.loader, plan)
	if err != nil {
		if errors.Is(err, engine.ErrNoLoader) {
			return nil, nil, newError(ErrConfiguration, CodeConfiguration, err, "%v", err)
		}
		return nil, nil, engineError(err)
	}
	return provider, slices.Clone(m.UI.Languages), nil
}

// classifyLoad reports missing or malformed artifacts as configuration
// errors and wraps everything else.
func classifyLoad(step string, err error) error {
	if errors.Is(err, artifact.ErrMissing) || errors.Is(err, manifest.ErrInvalid) || errors.Is(err, os.ErrNotExist) {
		return newError(ErrConfiguration, CodeConfiguration, err, "%s: %v", step, err)
	}
	return fmt.Errorf("%s: %w", step, err)
}

// EnableSandbox points the online runner at url instead of the manifest
// endpoint. It must be called before Initialize; once an attempt is in
// flight or the session is Ready it returns a configuration error.
func (s *Session) EnableSandbox(enabled bool, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Phase == Initializing || s.state.Phase == Ready {
		return configError("sandbox must be configured before initialization (session is %s)", s.state.Phase)
	}
	next := s.cfg
	next.SandboxEnabled = enabled
	next.SandboxURL = url
	if err := next.Validate(); err != nil {
		return err
	}
	s.cfg = next.withDefaults()
	s.generation++
	return nil
}

// SetLanguage sets the UI language for surfaces built after the call.
func (s *Session) SetLanguage(code string) {
	s.mutate(func(c *SessionConfig) { c.Language = code })
}

// SetUserProfile sets the profile for surfaces built after the call.
func (s *Session) SetUserProfile(profile map[string]any) {
	profile = maps.Clone(profile)
	s.mutate(func(c *SessionConfig) { c.UserProfile = profile })
}

// EnableDebugLogs switches debug logging immediately and for later surfaces.
func (s *Session) EnableDebugLogs(enabled bool) {
	s.mutate(func(c *SessionConfig) { c.DebugLogs = enabled })
	s.level.SetDebug(enabled)
}

func (s *Session) mutate(fn func(*SessionConfig)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.cfg)
	s.cfg = s.cfg.withDefaults()
	s.generation++
}

// SetObserver registers o for events. o may implement any of
// ProgressObserver, WebviewResultObserver and ButtonActionObserver, or be an
// ObserverFuncs. nil removes the observer.
func (s *Session) SetObserver(o any) {
	s.notifier.setObserver(o)
}

// FlushEvents blocks until every event raised so far has been handed to the
// observer.
func (s *Session) FlushEvents() {
	s.notifier.flush()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Config returns a copy of the current configuration.
func (s *Session) Config() SessionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.clone()
}

// Models returns the model ids of the resolved manifest; empty until Ready.
func (s *Session) Models() []string {
	s.mu.Lock()
	p := s.provider
	s.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.Models()
}

// Close releases the engine and the callback goroutine and returns the
// session to Uninitialized. An in-flight attempt is abandoned and its callers
// receive ErrClosed. The session may be initialized again.
func (s *Session) Close() error {
	s.mu.Lock()
	p := s.provider
	s.provider = nil
	s.attempt = nil
	s.languages = nil
	s.state = State{}
	s.generation++
	s.mu.Unlock()

	s.metrics.Reset()
	s.notifier.stop()
	if p == nil {
		return nil
	}
	s.log.Info("session closed")
	return p.Close()
}

func (s *Session) readyProvider(op string) (*engine.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Phase != Ready || s.provider == nil {
		return nil, notReady(op)
	}
	return s.provider, nil
}
