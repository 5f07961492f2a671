package sdk

import (
	"context"
	"slices"
	"strconv"

	"github.com/samcharles93/coherent/internal/engine"
	"github.com/samcharles93/coherent/internal/surface"
)

// GetSurface builds a UI surface from the configuration in effect at call
// time. Concurrent calls made under the same configuration share one
// construction; a configuration change made after a call does not affect
// the surface that call receives. No surface is returned when construction
// fails.
func (s *Session) GetSurface(ctx context.Context) (*Surface, error) {
	s.mu.Lock()
	if s.state.Phase != Ready || s.provider == nil {
		s.mu.Unlock()
		return nil, notReady("get surface")
	}
	key := strconv.FormatUint(s.generation, 10)
	cfg := s.cfg.clone()
	models := s.provider.Models()
	languages := slices.Clone(s.languages)
	s.mu.Unlock()

	ch := s.surfaces.DoChan(key, func() (any, error) {
		return s.buildSurface(cfg, models, languages)
	})
	if s.joined != nil {
		s.joined()
	}
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Surface), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) buildSurface(cfg SessionConfig, models, languages []string) (*Surface, error) {
	if s.beforeBuild != nil {
		s.beforeBuild(cfg)
	}
	sf, err := surface.New(surface.Config{
		Language:  cfg.Language,
		Profile:   cfg.UserProfile,
		Debug:     cfg.DebugLogs,
		Models:    models,
		Languages: languages,
	}, surface.Deps{
		Executor: engine.Func(s.executeModel),
		Emitter:  s.notifier,
		Log:      s.log,
		Describe: describeError,
	})
	if err != nil {
		s.metrics.Surface("error")
		s.log.Warn("surface construction failed", "language", cfg.Language, "error", err)
		return nil, newError(ErrUIConstruction, CodeUIConstruction, err, "%v", err)
	}
	s.metrics.Surface("ok")
	s.log.Debug("surface built", "surface", sf.ID, "language", sf.Language)
	return sf, nil
}
