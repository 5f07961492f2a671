package main

import (
	"io"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/coherent/internal/logger"
)

var (
	bundleDir     string
	cacheDir      string
	offlineRunner bool
	offlineModel  bool
	updates       bool
	runnerUpdates bool
	modelUpdates  bool
	sandboxURL    string
	language      string
	profileJSON   string
	logLevel      string
	logFormat     string
	debug         bool
)

func sessionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "bundle-dir",
			Aliases:     []string{"bundle", "b"},
			Usage:       "directory holding manifest.json and the offline artifacts",
			Value:       ".",
			Destination: &bundleDir,
		},
		&cli.StringFlag{
			Name:        "cache-dir",
			Usage:       "where downloaded artifacts and pinned versions are kept",
			Destination: &cacheDir,
		},
		&cli.BoolFlag{
			Name:        "offline-runner",
			Usage:       "run models on the bundled runner",
			Destination: &offlineRunner,
		},
		&cli.BoolFlag{
			Name:        "offline-model",
			Usage:       "use the bundled model definitions",
			Destination: &offlineModel,
		},
		&cli.BoolFlag{
			Name:        "updates",
			Usage:       "allow updates to both runner and models",
			Destination: &updates,
		},
		&cli.BoolFlag{
			Name:        "runner-updates",
			Usage:       "allow runner updates (overrides --updates)",
			Destination: &runnerUpdates,
		},
		&cli.BoolFlag{
			Name:        "model-updates",
			Usage:       "allow model updates (overrides --updates)",
			Destination: &modelUpdates,
		},
		&cli.StringFlag{
			Name:        "sandbox-url",
			Usage:       "route execution to a sandbox runner at this URL",
			Destination: &sandboxURL,
		},
		&cli.StringFlag{
			Name:        "language",
			Aliases:     []string{"lang"},
			Usage:       "UI language code",
			Value:       "en",
			Destination: &language,
		},
		&cli.StringFlag{
			Name:        "profile",
			Usage:       "user profile as a JSON object",
			Destination: &profileJSON,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func debugEnabled() bool {
	return debug || logLevel == "debug"
}

// parsedLogLevel is the level --log-level (or the config file) selects;
// --debug forces debug.
func parsedLogLevel() slog.Level {
	if debug {
		return slog.LevelDebug
	}
	return logger.ParseLevel(logLevel)
}

func newLogger(w io.Writer) logger.Logger {
	return logger.ForFormat(logFormat, w, parsedLogLevel())
}
