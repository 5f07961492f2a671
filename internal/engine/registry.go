package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/samcharles93/coherent/internal/artifact"
)

// Factory builds an in-process engine for an offline runner.
type Factory func(ctx context.Context, plan *artifact.Plan) (Engine, error)

// Registry maps runner ids to in-process factories. It is the Loader used for
// offline runners: the bundled runner file is handed to the factory through
// the plan.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs f for runnerID, replacing any previous factory.
func (r *Registry) Register(runnerID string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[runnerID] = f
}

// Runners returns the registered runner ids in sorted order.
func (r *Registry) Runners() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Load(ctx context.Context, plan *artifact.Plan) (Engine, error) {
	if plan == nil {
		return nil, fmt.Errorf("plan is required")
	}
	r.mu.RLock()
	f, ok := r.factories[plan.Runner.ID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: runner %q is not registered", ErrNoLoader, plan.Runner.ID)
	}
	return f(ctx, plan)
}
