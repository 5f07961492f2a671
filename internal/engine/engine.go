// Package engine defines the execution engine contract the SDK delegates to.
//
// The engine itself is opaque: it receives a model id plus inputs and returns
// outputs or an error. Loaders build an Engine from a resolved artifact.Plan;
// offline runners come from an in-process Registry, online runners from the
// httprunner package.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/samcharles93/coherent/internal/artifact"
)

type Engine interface {
	Execute(ctx context.Context, modelID string, inputs map[string]any) (map[string]any, error)
	Close() error
}

type Loader interface {
	Load(ctx context.Context, plan *artifact.Plan) (Engine, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, plan *artifact.Plan) (Engine, error)

func (f LoaderFunc) Load(ctx context.Context, plan *artifact.Plan) (Engine, error) {
	return f(ctx, plan)
}

// Func adapts an execute function to Engine. Close is a no-op.
type Func func(ctx context.Context, modelID string, inputs map[string]any) (map[string]any, error)

func (f Func) Execute(ctx context.Context, modelID string, inputs map[string]any) (map[string]any, error) {
	return f(ctx, modelID, inputs)
}

func (f Func) Close() error { return nil }

// Static returns a Loader that always hands out e.
func Static(e Engine) Loader {
	return LoaderFunc(func(context.Context, *artifact.Plan) (Engine, error) {
		return e, nil
	})
}

// Error is a structured failure reported by an engine. The SDK relays Code
// and Message to callers unchanged.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrNoLoader is returned when no loader can serve the plan's runner.
var ErrNoLoader = errors.New("no engine loader for runner")

// AutoLoader picks Local for offline runners and Remote for online ones.
type AutoLoader struct {
	Local  Loader
	Remote Loader
}

func (a AutoLoader) Load(ctx context.Context, plan *artifact.Plan) (Engine, error) {
	if plan == nil {
		return nil, fmt.Errorf("plan is required")
	}
	l := a.Remote
	if plan.Runner.Offline {
		l = a.Local
	}
	if l == nil {
		mode := "online"
		if plan.Runner.Offline {
			mode = "offline"
		}
		return nil, fmt.Errorf("%w: %s runner %q", ErrNoLoader, mode, plan.Runner.ID)
	}
	return l.Load(ctx, plan)
}
