// Package api exposes a Session over HTTP for hosts that drive the SDK out of
// process, and mounts the current UI surface under /ui/.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/coherent/internal/logger"
	"github.com/samcharles93/coherent/pkg/sdk"
)

// Session is the part of *sdk.Session the server drives.
type Session interface {
	State() sdk.State
	Config() sdk.SessionConfig
	Models() []string
	Initialize(ctx context.Context, cfg sdk.SessionConfig) (sdk.State, error)
	Execute(ctx context.Context, req sdk.ExecutionRequest) (map[string]any, error)
	GetSurface(ctx context.Context) (*sdk.Surface, error)
	SetLanguage(code string)
	SetUserProfile(profile map[string]any)
	EnableDebugLogs(enabled bool)
}

type Config struct {
	Store   *ExecutionStore
	Metrics http.Handler
	Log     logger.Logger
}

type Server struct {
	session Session
	store   *ExecutionStore
	metrics http.Handler
	log     logger.Logger
	clock   func() time.Time

	mu      sync.RWMutex
	surface *sdk.Surface

	// wg tracks background executions so Wait can drain them.
	wg sync.WaitGroup
}

func NewServer(session Session, cfg Config) *Server {
	store := cfg.Store
	if store == nil {
		store = NewExecutionStore(0)
	}
	log := cfg.Log
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		session: session,
		store:   store,
		metrics: cfg.Metrics,
		log:     log,
		clock:   time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/state", s.handleState)
	e.POST("/v1/initialize", s.handleInitialize)
	e.GET("/v1/models", s.handleModels)
	e.GET("/v1/config", s.handleGetConfig)
	e.PATCH("/v1/config", s.handlePatchConfig)

	e.POST("/v1/execute", s.handleExecute)
	e.POST("/v1/executions", s.handleCreateExecution)
	e.GET("/v1/executions/:id", s.handleGetExecution)
	e.DELETE("/v1/executions/:id", s.handleDeleteExecution)

	e.POST("/v1/surface", s.handleCreateSurface)
	e.GET("/ui", func(c *echo.Context) error { return c.Redirect(http.StatusFound, "/ui/") })
	e.GET("/ui/*", s.handleUI)
	e.POST("/ui/*", s.handleUI)

	if s.metrics != nil {
		e.GET("/metrics", func(c *echo.Context) error {
			s.metrics.ServeHTTP(c.Response(), c.Request())
			return nil
		})
	}
}

// Wait blocks until background executions started so far have finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

type stateResponse struct {
	Phase  string   `json:"phase"`
	Reason string   `json:"reason,omitempty"`
	Models []string `json:"models"`
}

func (s *Server) handleState(c *echo.Context) error {
	st := s.session.State()
	models := s.session.Models()
	if models == nil {
		models = []string{}
	}
	return c.JSON(http.StatusOK, stateResponse{
		Phase:  st.Phase.String(),
		Reason: st.Reason,
		Models: models,
	})
}

// handleInitialize runs an initialization attempt with the session's current
// configuration. A Failed session retries; a Ready one answers at once.
func (s *Server) handleInitialize(c *echo.Context) error {
	st, err := s.session.Initialize(c.Request().Context(), s.session.Config())
	if err != nil {
		s.log.Warn("initialization failed", "phase", st.Phase.String(), "error", err)
		return writeFacadeError(c, err)
	}
	return s.handleState(c)
}

type modelObject struct {
	ID     string `json:"id"`
	Object string `json:"object"`
}

type modelList struct {
	Object string        `json:"object"`
	Data   []modelObject `json:"data"`
}

func (s *Server) handleModels(c *echo.Context) error {
	ids := s.session.Models()
	out := modelList{Object: "list", Data: make([]modelObject, 0, len(ids))}
	for _, id := range ids {
		out.Data = append(out.Data, modelObject{ID: id, Object: "model"})
	}
	return c.JSON(http.StatusOK, out)
}

type configResponse struct {
	Language       string         `json:"language"`
	UserProfile    map[string]any `json:"user_profile"`
	DebugLogs      bool           `json:"debug_logs"`
	OfflineRunner  bool           `json:"offline_runner"`
	OfflineModel   bool           `json:"offline_model"`
	RunnerUpdates  bool           `json:"runner_updates"`
	ModelUpdates   bool           `json:"model_updates"`
	SandboxEnabled bool           `json:"sandbox_enabled"`
}

func (s *Server) handleGetConfig(c *echo.Context) error {
	cfg := s.session.Config()
	return c.JSON(http.StatusOK, configResponse{
		Language:       cfg.Language,
		UserProfile:    cfg.UserProfile,
		DebugLogs:      cfg.DebugLogs,
		OfflineRunner:  cfg.OfflineRunner,
		OfflineModel:   cfg.OfflineModel,
		RunnerUpdates:  cfg.RunnerUpdates,
		ModelUpdates:   cfg.ModelUpdates,
		SandboxEnabled: cfg.SandboxEnabled,
	})
}

type configPatch struct {
	Language    *string        `json:"language"`
	UserProfile map[string]any `json:"user_profile"`
	DebugLogs   *bool          `json:"debug_logs"`
}

func (s *Server) handlePatchConfig(c *echo.Context) error {
	patch, err := decodeJSON[configPatch](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if patch.Language != nil {
		s.session.SetLanguage(*patch.Language)
	}
	if patch.UserProfile != nil {
		s.session.SetUserProfile(patch.UserProfile)
	}
	if patch.DebugLogs != nil {
		s.session.EnableDebugLogs(*patch.DebugLogs)
	}
	return s.handleGetConfig(c)
}

type executeResponse struct {
	ModelID string         `json:"model_id"`
	Outputs map[string]any `json:"outputs"`
}

func (s *Server) handleExecute(c *echo.Context) error {
	req, err := decodeExecutionRequest(c.Request().Body)
	if err != nil {
		return writeFacadeError(c, err)
	}
	out, err := s.session.Execute(c.Request().Context(), req)
	if err != nil {
		return writeFacadeError(c, err)
	}
	return c.JSON(http.StatusOK, executeResponse{ModelID: req.ModelID, Outputs: out})
}

// handleCreateExecution starts an execution that outlives the request. The
// client polls GET /v1/executions/:id for the outcome.
func (s *Server) handleCreateExecution(c *echo.Context) error {
	req, err := decodeExecutionRequest(c.Request().Body)
	if err != nil {
		return writeFacadeError(c, err)
	}
	if st := s.session.State(); !st.Ready() {
		return writeFacadeError(c, &sdk.Error{Kind: sdk.ErrNotReady, Code: sdk.CodeNotReady, Message: "session is " + st.Phase.String()})
	}

	rec := s.store.Create(req, s.clock())
	ctx := context.WithoutCancel(c.Request().Context())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		out, err := s.session.Execute(ctx, req)
		if err != nil {
			s.log.Debug("background execution failed", "id", rec.ID, "model", req.ModelID, "error", err)
		}
		s.store.Finish(rec.ID, out, err, s.clock())
	}()
	return c.JSON(http.StatusAccepted, rec)
}

func (s *Server) handleGetExecution(c *echo.Context) error {
	rec, ok := s.store.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "execution not found")
	}
	return c.JSON(http.StatusOK, rec)
}

type deleteResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

func (s *Server) handleDeleteExecution(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "execution not found")
	}
	return c.JSON(http.StatusOK, deleteResponse{ID: id, Object: "execution.deleted", Deleted: true})
}

type surfaceResponse struct {
	ID       string `json:"id"`
	Language string `json:"language"`
	URL      string `json:"url"`
}

// handleCreateSurface builds a surface from the current configuration and
// mounts it under /ui/, replacing the previous one.
func (s *Server) handleCreateSurface(c *echo.Context) error {
	sf, err := s.session.GetSurface(c.Request().Context())
	if err != nil {
		return writeFacadeError(c, err)
	}
	s.mu.Lock()
	s.surface = sf
	s.mu.Unlock()
	s.log.Info("surface mounted", "surface", sf.ID, "language", sf.Language)
	return c.JSON(http.StatusCreated, surfaceResponse{ID: sf.ID, Language: sf.Language, URL: "/ui/"})
}

func (s *Server) handleUI(c *echo.Context) error {
	s.mu.RLock()
	sf := s.surface
	s.mu.RUnlock()
	if sf == nil {
		return writeNotFound(c, "no surface mounted; POST /v1/surface first")
	}
	http.StripPrefix("/ui", sf).ServeHTTP(c.Response(), c.Request())
	return nil
}

func decodeExecutionRequest(r io.Reader) (sdk.ExecutionRequest, error) {
	req, err := decodeJSON[sdk.ExecutionRequest](r)
	if err != nil {
		return req, newInvalidRequest(err.Error())
	}
	if strings.TrimSpace(req.ModelID) == "" {
		return req, newInvalidRequest("modelId is required")
	}
	return req, nil
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request", msg)
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found", msg)
}

func writeFacadeError(c *echo.Context, err error) error {
	if errors.Is(err, ErrInvalidRequest) {
		return writeBadRequest(c, err.Error())
	}
	info := sdk.InfoFromError(err)
	return writeError(c, statusFor(err), info.Code, info.Message)
}

func writeError(c *echo.Context, status int, code, msg string) error {
	return c.JSON(status, map[string]any{
		"error": sdk.ErrorInfo{Code: code, Message: msg},
	})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
