// Package httprunner executes models on a remote runner over JSON/HTTP.
//
// Request:  POST <endpoint>/execute
//
//	{"modelId":"model1","modelVersion":"3","model":{...},"inputs":{...}}
//
// Response: {"outputs":{...}} on success or {"error":{"code":"...","message":"..."}}.
package httprunner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/samcharles93/coherent/internal/artifact"
	"github.com/samcharles93/coherent/internal/engine"
	"github.com/samcharles93/coherent/internal/logger"
	"github.com/samcharles93/coherent/internal/version"
)

const (
	defaultTimeout  = 30 * time.Second
	maxResponseSize = 8 << 20
)

// ErrResponseTooLarge is returned when a runner answers with a body larger
// than the client accepts.
var ErrResponseTooLarge = errors.New("runner response too large")

// Loader builds Engines for online runners.
type Loader struct {
	Client *http.Client
	// RatePerSecond caps requests to the runner; zero disables limiting.
	RatePerSecond float64
	Burst         int
	Log           logger.Logger
}

func (l Loader) Load(ctx context.Context, plan *artifact.Plan) (engine.Engine, error) {
	if plan == nil {
		return nil, fmt.Errorf("plan is required")
	}
	if plan.Runner.Offline {
		return nil, fmt.Errorf("%w: offline runner %q needs a local loader", engine.ErrNoLoader, plan.Runner.ID)
	}
	endpoint := strings.TrimRight(strings.TrimSpace(plan.Runner.Endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("runner %q has no endpoint", plan.Runner.ID)
	}
	client := l.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	log := l.Log
	if log == nil {
		log = logger.Discard()
	}
	e := &Engine{
		endpoint: endpoint,
		client:   client,
		plan:     plan,
		log:      log.With("runner", plan.Runner.ID, "sandbox", plan.Runner.Sandbox),
	}
	if l.RatePerSecond > 0 {
		burst := l.Burst
		if burst <= 0 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(l.RatePerSecond), burst)
	}
	return e, nil
}

// Engine is a remote runner client. Safe for concurrent use.
type Engine struct {
	endpoint string
	client   *http.Client
	plan     *artifact.Plan
	limiter  *rate.Limiter
	log      logger.Logger
}

type executeRequest struct {
	ModelID      string          `json:"modelId"`
	ModelVersion string          `json:"modelVersion,omitempty"`
	Model        json.RawMessage `json:"model,omitempty"`
	Inputs       map[string]any  `json:"inputs"`
}

type executeResponse struct {
	Outputs map[string]any `json:"outputs"`
	Error   *wireError     `json:"error,omitempty"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Engine) Execute(ctx context.Context, modelID string, inputs map[string]any) (map[string]any, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	reqBody := executeRequest{ModelID: modelID, Inputs: inputs}
	if model, ok := e.plan.Model(modelID); ok {
		reqBody.ModelVersion = model.Version
		if json.Valid(model.Data) {
			reqBody.Model = model.Data
		}
	}
	if reqBody.Inputs == nil {
		reqBody.Inputs = map[string]any{}
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode execute request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("runner request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("read runner response: %w", err)
	}
	if len(raw) > maxResponseSize {
		return nil, fmt.Errorf("%w: model %s: more than %d bytes", ErrResponseTooLarge, modelID, maxResponseSize)
	}
	e.log.Debug("runner call", "model", modelID, "status", resp.StatusCode, "duration", time.Since(start))

	var decoded executeResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		if resp.StatusCode >= 300 {
			return nil, &engine.Error{Code: fmt.Sprintf("http_%d", resp.StatusCode), Message: strings.TrimSpace(string(raw))}
		}
		return nil, fmt.Errorf("decode runner response: %w", err)
	}
	if decoded.Error != nil {
		return nil, &engine.Error{Code: decoded.Error.Code, Message: decoded.Error.Message}
	}
	if resp.StatusCode >= 300 {
		return nil, &engine.Error{Code: fmt.Sprintf("http_%d", resp.StatusCode), Message: http.StatusText(resp.StatusCode)}
	}
	if decoded.Outputs == nil {
		decoded.Outputs = map[string]any{}
	}
	return decoded.Outputs, nil
}

func (e *Engine) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
