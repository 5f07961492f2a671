package sdk

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/samcharles93/coherent/internal/artifact"
	"github.com/samcharles93/coherent/internal/engine"
)

// ExecutionRequest names a model and its inputs.
type ExecutionRequest struct {
	ModelID string         `json:"modelId"`
	Inputs  map[string]any `json:"inputs"`
}

// Execute runs a model and returns the engine output unchanged. It fails with
// ErrNotReady before the session is Ready (the engine is not called),
// ErrUnknownModel when the manifest does not declare the model, ErrClosed when
// Close releases the engine under it and ErrEngine when the engine reports a
// failure. Concurrent calls are independent.
func (s *Session) Execute(ctx context.Context, req ExecutionRequest) (map[string]any, error) {
	provider, err := s.readyProvider("execute")
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, provider, req)
}

// execute runs req on provider, which may have been closed by a concurrent
// Close since it was taken.
func (s *Session) execute(ctx context.Context, provider *engine.Provider, req ExecutionRequest) (map[string]any, error) {
	modelID := strings.TrimSpace(req.ModelID)
	if modelID == "" {
		return nil, newError(ErrUnknownModel, CodeUnknownModel, nil, "model id is required")
	}

	log := s.log.With("model", modelID)
	start := time.Now()
	var out map[string]any
	err := provider.WithModel(ctx, modelID, func(e engine.Engine, m artifact.Model) error {
		s.notifier.Progress("executing " + modelID)
		log.Debug("executing model", "version", m.Version, "origin", m.Origin, "inputs", len(req.Inputs))
		res, err := e.Execute(ctx, modelID, req.Inputs)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, engine.ErrUnknownModel) {
			s.metrics.Execution(modelID, "unknown_model", elapsed)
			return nil, newError(ErrUnknownModel, CodeUnknownModel, err, "model %q is not in the manifest", modelID)
		}
		if errors.Is(err, engine.ErrClosed) {
			s.metrics.Execution(modelID, "closed", elapsed)
			return nil, newError(ErrClosed, CodeNotReady, err, "session closed during execute")
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.metrics.Execution(modelID, "canceled", elapsed)
			return nil, err
		}
		s.metrics.Execution(modelID, "error", elapsed)
		log.Warn("model execution failed", "error", err, "duration", elapsed)
		s.notifier.Progress("execution failed " + modelID)
		return nil, engineError(err)
	}

	if out == nil {
		out = map[string]any{}
	}
	s.metrics.Execution(modelID, "ok", elapsed)
	log.Debug("model executed", "duration", elapsed, "outputs", len(out))
	s.notifier.Progress("executed " + modelID)
	return out, nil
}

// executeModel is the surface's view of Execute.
func (s *Session) executeModel(ctx context.Context, modelID string, inputs map[string]any) (map[string]any, error) {
	return s.Execute(ctx, ExecutionRequest{ModelID: modelID, Inputs: inputs})
}

// describeError maps an execution error to the code/message pair a surface
// shows to its page.
func describeError(err error) (string, string) {
	info := InfoFromError(err)
	return info.Code, info.Message
}
