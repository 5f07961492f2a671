package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/samcharles93/coherent/internal/artifact"
)

var (
	ErrUnknownModel = errors.New("unknown model")
	// ErrClosed is returned by WithModel once the provider has been closed.
	ErrClosed = errors.New("engine is closed")
)

// Provider pairs a loaded engine with the plan it was built from and resolves
// model ids against that plan. It is safe for concurrent use; executions are
// not serialized, so engines must tolerate concurrent Execute calls.
type Provider struct {
	mu     sync.RWMutex
	engine Engine
	plan   *artifact.Plan
}

// NewProvider loads an engine for plan through l.
func NewProvider(ctx context.Context, l Loader, plan *artifact.Plan) (*Provider, error) {
	if l == nil {
		return nil, ErrNoLoader
	}
	e, err := l.Load(ctx, plan)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("loader returned no engine for runner %q", plan.Runner.ID)
	}
	return &Provider{engine: e, plan: plan}, nil
}

// WithModel resolves modelID and calls fn with the engine and the model
// artifact. It returns ErrUnknownModel when the plan does not declare modelID.
func (p *Provider) WithModel(ctx context.Context, modelID string, fn func(e Engine, m artifact.Model) error) error {
	modelID = strings.TrimSpace(modelID)
	p.mu.RLock()
	e, plan := p.engine, p.plan
	p.mu.RUnlock()
	if e == nil {
		return ErrClosed
	}
	model, ok := plan.Model(modelID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownModel, modelID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(e, model)
}

// Models returns the ids the plan resolved.
func (p *Provider) Models() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.plan.ModelIDs()
}

// Plan returns the plan the engine was loaded from.
func (p *Provider) Plan() *artifact.Plan {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.plan
}

// Close releases the engine. Later WithModel calls return ErrClosed.
func (p *Provider) Close() error {
	p.mu.Lock()
	e := p.engine
	p.engine = nil
	p.mu.Unlock()
	if e == nil {
		return nil
	}
	return e.Close()
}
