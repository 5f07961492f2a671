package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/coherent/internal/logger"
	"github.com/samcharles93/coherent/pkg/sdk"
)

// sessionConfig resolves flags and the config file into the configuration a
// session initializes with. Per-artifact update switches override --updates.
func sessionConfig(cmd *cli.Command, file Config) (sdk.SessionConfig, error) {
	var profile map[string]any
	applySessionConfig(cmd, file, &profile)
	if profileJSON != "" {
		if err := json.Unmarshal([]byte(profileJSON), &profile); err != nil {
			return sdk.SessionConfig{}, fmt.Errorf("parse --profile: %w", err)
		}
	}

	cfg := sdk.SessionConfig{
		OfflineRunner:  offlineRunner,
		OfflineModel:   offlineModel,
		RunnerUpdates:  updates,
		ModelUpdates:   updates,
		SandboxEnabled: sandboxURL != "",
		SandboxURL:     sandboxURL,
		Language:       language,
		DebugLogs:      debugEnabled(),
		UserProfile:    profile,
	}
	if cmd.IsSet("runner-updates") || file.RunnerUpdates != nil {
		cfg.RunnerUpdates = runnerUpdates
	}
	if cmd.IsSet("model-updates") || file.ModelUpdates != nil {
		cfg.ModelUpdates = modelUpdates
	}
	if err := cfg.Validate(); err != nil {
		return sdk.SessionConfig{}, err
	}
	return cfg, nil
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "coherent")
}

// openSession builds a session from the command's flags. Progress events are
// logged through the context logger.
func openSession(ctx context.Context, cmd *cli.Command, m *sdk.Metrics) (*sdk.Session, sdk.SessionConfig, error) {
	cfg, err := sessionConfig(cmd, LoadConfig())
	if err != nil {
		return nil, sdk.SessionConfig{}, err
	}

	dir := cacheDir
	if dir == "" {
		dir = defaultCacheDir()
	}
	session := sdk.New(
		sdk.WithBundleDir(bundleDir),
		sdk.WithCacheDir(dir),
		sdk.WithLogOutput(logFormat, os.Stderr),
		sdk.WithLogLevel(parsedLogLevel()),
		sdk.WithMetrics(m),
	)

	log := logger.FromContext(ctx)
	session.SetObserver(sdk.ObserverFuncs{
		Progress: func(text string) { log.Info(text) },
	})
	return session, cfg, nil
}

// initialize opens a session and waits for it to become ready.
func initialize(ctx context.Context, cmd *cli.Command) (*sdk.Session, error) {
	session, cfg, err := openSession(ctx, cmd, nil)
	if err != nil {
		return nil, err
	}
	_, err = session.Initialize(ctx, cfg)
	session.FlushEvents()
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return session, nil
}
