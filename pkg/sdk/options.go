package sdk

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/samcharles93/coherent/internal/artifact"
	"github.com/samcharles93/coherent/internal/engine"
	"github.com/samcharles93/coherent/internal/logger"
	"github.com/samcharles93/coherent/internal/manifest"
	"github.com/samcharles93/coherent/internal/metrics"
	"github.com/samcharles93/coherent/internal/surface"
)

// Aliases for the collaborator types hosts plug into a session.
type (
	Engine         = engine.Engine
	EngineFunc     = engine.Func
	EngineError    = engine.Error
	Loader         = engine.Loader
	LoaderFunc     = engine.LoaderFunc
	Registry       = engine.Registry
	RunnerFactory  = engine.Factory
	Plan           = artifact.Plan
	Manifest       = manifest.Manifest
	ManifestSource = manifest.Source
	Logger         = logger.Logger
	Metrics        = metrics.Metrics
	Surface        = surface.Surface
)

// NewRegistry returns an empty offline runner registry.
func NewRegistry() *Registry { return engine.NewRegistry() }

// NewMetrics returns collectors on a fresh Prometheus registry.
func NewMetrics() *Metrics { return metrics.New() }

// StaticLoader returns a Loader that always hands out e.
func StaticLoader(e Engine) Loader { return engine.Static(e) }

type options struct {
	bundleDir string
	cacheDir  string
	client    *http.Client
	source    ManifestSource
	loader    Loader
	registry  *Registry
	rate      float64
	burst     int
	log       Logger
	logLevel  *slog.Level
	logFormat string
	logOut    io.Writer
	metrics   *Metrics
	queueSize int
}

// Option configures a Session.
type Option func(*options)

// WithBundleDir sets the directory holding manifest.json and the offline
// runner and model files. Defaults to the working directory.
func WithBundleDir(dir string) Option {
	return func(o *options) { o.bundleDir = dir }
}

// WithCacheDir sets where downloaded artifacts and pinned versions live.
// Without one, nothing is persisted between sessions.
func WithCacheDir(dir string) Option {
	return func(o *options) { o.cacheDir = dir }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// WithManifestSource replaces the bundled manifest.json.
func WithManifestSource(src ManifestSource) Option {
	return func(o *options) { o.source = src }
}

// WithLoader replaces the default loader, which serves offline runners from
// the registry and online runners over HTTP.
func WithLoader(l Loader) Option {
	return func(o *options) { o.loader = l }
}

// WithRegistry sets the registry offline runners are loaded from.
func WithRegistry(r *Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithRunnerRateLimit caps requests to an online runner.
func WithRunnerRateLimit(perSecond float64, burst int) Option {
	return func(o *options) {
		o.rate = perSecond
		o.burst = burst
	}
}

// WithLogger injects a logger. EnableDebugLogs only affects it if it was
// built on Session.LogLevel.
func WithLogger(l Logger) Option {
	return func(o *options) { o.log = l }
}

// WithLogOutput builds the session logger with the named format ("pretty",
// "json" or "text") writing to w.
func WithLogOutput(format string, w io.Writer) Option {
	return func(o *options) {
		o.logFormat = format
		o.logOut = w
	}
}

// WithLogLevel sets the threshold the session logger starts at and returns to
// when debug logs are switched off. The default is info.
func WithLogLevel(level slog.Level) Option {
	return func(o *options) { o.logLevel = &level }
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithCallbackQueueSize bounds the observer event queue.
func WithCallbackQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}
