package sdk

import (
	"maps"
	"net/url"
	"strings"

	"github.com/samcharles93/coherent/internal/artifact"
	"github.com/samcharles93/coherent/internal/webui"
)

// SessionConfig is the canonical configuration a session initializes from.
// Every legacy initializer is normalized into one of these.
type SessionConfig struct {
	OfflineRunner bool
	OfflineModel  bool
	RunnerUpdates bool
	ModelUpdates  bool

	SandboxEnabled bool
	SandboxURL     string

	// Language is the UI language code; empty means "en".
	Language    string
	DebugLogs   bool
	UserProfile map[string]any
}

// Flags are the artifact selection switches of a SessionConfig.
type Flags struct {
	OfflineRunner bool
	OfflineModel  bool
	RunnerUpdates bool
	ModelUpdates  bool
}

// Flags returns the artifact switches of c.
func (c SessionConfig) Flags() Flags {
	return Flags{
		OfflineRunner: c.OfflineRunner,
		OfflineModel:  c.OfflineModel,
		RunnerUpdates: c.RunnerUpdates,
		ModelUpdates:  c.ModelUpdates,
	}
}

// WithFlags returns c with its artifact switches replaced by f.
func (c SessionConfig) WithFlags(f Flags) SessionConfig {
	c.OfflineRunner = f.OfflineRunner
	c.OfflineModel = f.OfflineModel
	c.RunnerUpdates = f.RunnerUpdates
	c.ModelUpdates = f.ModelUpdates
	return c
}

func (c SessionConfig) clone() SessionConfig {
	c.UserProfile = maps.Clone(c.UserProfile)
	return c
}

func (c SessionConfig) withDefaults() SessionConfig {
	c.Language = strings.TrimSpace(c.Language)
	if c.Language == "" {
		c.Language = webui.DefaultLanguage
	}
	c.SandboxURL = strings.TrimSpace(c.SandboxURL)
	return c
}

// Validate reports configuration errors as *Error with Kind ErrConfiguration.
func (c SessionConfig) Validate() error {
	c = c.withDefaults()
	if c.SandboxEnabled {
		if c.SandboxURL == "" {
			return configError("sandbox is enabled but no sandbox URL was given")
		}
		if err := validateRunnerURL(c.SandboxURL); err != nil {
			return err
		}
		if c.OfflineRunner {
			return configError("sandbox runner URL conflicts with an offline runner")
		}
	}
	return nil
}

func validateRunnerURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return configError("invalid sandbox URL %q: %v", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return configError("sandbox URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return configError("sandbox URL %q has no host", raw)
	}
	return nil
}

func (c SessionConfig) artifactOptions() artifact.Options {
	opts := artifact.Options{
		OfflineRunner: c.OfflineRunner,
		OfflineModel:  c.OfflineModel,
		RunnerUpdates: c.RunnerUpdates,
		ModelUpdates:  c.ModelUpdates,
	}
	if c.SandboxEnabled {
		opts.SandboxURL = c.SandboxURL
	}
	return opts
}

// legacyFlags layers the legacy initializer arguments into Flags. Layers are
// applied in order; a nil field leaves the value from earlier layers alone,
// so the per-artifact update switches of the newer signature win over the
// combined switch of the older one.
type legacyFlags struct {
	OfflineRunner *bool
	OfflineModel  *bool
	Update        *bool
	RunnerUpdates *bool
	ModelUpdates  *bool
}

func (l legacyFlags) apply(f Flags) Flags {
	if l.OfflineRunner != nil {
		f.OfflineRunner = *l.OfflineRunner
	}
	if l.OfflineModel != nil {
		f.OfflineModel = *l.OfflineModel
	}
	if l.Update != nil {
		f.RunnerUpdates = *l.Update
		f.ModelUpdates = *l.Update
	}
	if l.RunnerUpdates != nil {
		f.RunnerUpdates = *l.RunnerUpdates
	}
	if l.ModelUpdates != nil {
		f.ModelUpdates = *l.ModelUpdates
	}
	return f
}

func normalizeFlags(layers ...legacyFlags) Flags {
	var f Flags
	for _, l := range layers {
		f = l.apply(f)
	}
	return f
}
