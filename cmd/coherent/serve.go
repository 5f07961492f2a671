package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/coherent/internal/api"
	"github.com/samcharles93/coherent/internal/logger"
	"github.com/samcharles93/coherent/pkg/sdk"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		storeLimit  int64
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the session REST API and UI surface",
		Flags: append(sessionFlags(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.Int64Flag{
				Name:        "max-executions",
				Usage:       "background execution records kept in memory",
				Value:       1024,
				Destination: &storeLimit,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyServeConfig(cmd, LoadConfig(), &addr)

			m := sdk.NewMetrics()
			session, cfg, err := openSession(ctx, cmd, m)
			if err != nil {
				return err
			}
			defer session.Close()

			// A failed initialization is reported by /v1/state; the server
			// still starts so clients can inspect it and retry through
			// POST /v1/initialize.
			if st, err := session.Initialize(ctx, cfg); err != nil {
				log.Error("session initialization failed", "phase", st.Phase.String(), "error", err)
			} else {
				log.Info("session ready", "models", session.Models())
			}

			server := api.NewServer(session, api.Config{
				Store:   api.NewExecutionStore(int(storeLimit)),
				Metrics: m.Handler(),
				Log:     log,
			})
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			err = sc.Start(ctx, e)
			server.Wait()
			return err
		},
	}
}
