package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the coherent configuration file (~/.config/coherent/config.yaml).
// Switches are pointers so we can distinguish "not set" from false.
type Config struct {
	BundleDir string `yaml:"bundle_dir"`
	CacheDir  string `yaml:"cache_dir"`

	// Artifact selection
	OfflineRunner *bool  `yaml:"offline_runner"`
	OfflineModel  *bool  `yaml:"offline_model"`
	Updates       *bool  `yaml:"updates"`
	RunnerUpdates *bool  `yaml:"runner_updates"`
	ModelUpdates  *bool  `yaml:"model_updates"`
	SandboxURL    string `yaml:"sandbox_url"`

	// UI
	Language    string         `yaml:"language"`
	UserProfile map[string]any `yaml:"user_profile"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "coherent", "config.yaml")
}

// applySessionConfig applies config file defaults to the session flags
// when the corresponding CLI flag was not explicitly set.
func applySessionConfig(c *cli.Command, cfg Config, profile *map[string]any) {
	if cfg.BundleDir != "" && !c.IsSet("bundle-dir") {
		bundleDir = cfg.BundleDir
	}
	if cfg.CacheDir != "" && !c.IsSet("cache-dir") {
		cacheDir = cfg.CacheDir
	}
	if cfg.OfflineRunner != nil && !c.IsSet("offline-runner") {
		offlineRunner = *cfg.OfflineRunner
	}
	if cfg.OfflineModel != nil && !c.IsSet("offline-model") {
		offlineModel = *cfg.OfflineModel
	}
	if cfg.Updates != nil && !c.IsSet("updates") {
		updates = *cfg.Updates
	}
	if cfg.RunnerUpdates != nil && !c.IsSet("runner-updates") {
		runnerUpdates = *cfg.RunnerUpdates
	}
	if cfg.ModelUpdates != nil && !c.IsSet("model-updates") {
		modelUpdates = *cfg.ModelUpdates
	}
	if cfg.SandboxURL != "" && !c.IsSet("sandbox-url") {
		sandboxURL = cfg.SandboxURL
	}
	if cfg.Language != "" && !c.IsSet("language") {
		language = cfg.Language
	}
	if cfg.UserProfile != nil && !c.IsSet("profile") {
		*profile = cfg.UserProfile
	}
}

// applyLoggingConfig applies config file defaults to the logging flags.
func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	cfg, err := loadConfigFile(path)
	if err != nil {
		return Config{}
	}
	return cfg
}

func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
