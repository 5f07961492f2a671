package surface

import (
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/coherent/internal/webui"
)

type executeRequest struct {
	ModelID string         `json:"modelId"`
	Inputs  map[string]any `json:"inputs"`
}

type actionRequest struct {
	Name   string `json:"name"`
	Result any    `json:"result"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Surface) routes() *echo.Echo {
	e := echo.New()
	e.GET("/", s.handleIndex)
	e.GET("/static/*", serveStatic(http.StripPrefix("/static/", http.FileServer(webui.StaticFS()))))
	e.GET("/api/config", s.handleConfig)
	e.POST("/api/execute", s.handleExecute)
	e.POST("/api/result", s.handleResult)
	e.POST("/api/action", s.handleAction)
	return e
}

func serveStatic(h http.Handler) echo.HandlerFunc {
	return func(c *echo.Context) error {
		h.ServeHTTP(c.Response(), c.Request())
		return nil
	}
}

func (s *Surface) handleIndex(c *echo.Context) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/html; charset=utf-8")
	res.WriteHeader(http.StatusOK)
	_, err := res.Write(s.page)
	return err
}

func (s *Surface) handleConfig(c *echo.Context) error {
	return writeJSON(c, http.StatusOK, map[string]any{
		"surfaceId": s.ID,
		"language":  s.Language,
		"profile":   s.profile,
	})
}

func (s *Surface) handleExecute(c *echo.Context) error {
	req, err := decodeJSON[executeRequest](c.Request().Body)
	if err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
	}
	if strings.TrimSpace(req.ModelID) == "" {
		return writeError(c, http.StatusBadRequest, "invalid_request", "modelId is required")
	}
	if s.deps.Executor == nil {
		return writeError(c, http.StatusServiceUnavailable, "not_available", "execution is not available")
	}
	out, err := s.deps.Executor.Execute(c.Request().Context(), req.ModelID, req.Inputs)
	if err != nil {
		code, msg := "execution_failed", err.Error()
		if s.deps.Describe != nil {
			code, msg = s.deps.Describe(err)
		}
		s.log.Debug("page execution failed", "model", req.ModelID, "error", err)
		return writeError(c, http.StatusUnprocessableEntity, code, msg)
	}
	if s.deps.Emitter != nil {
		s.deps.Emitter.WebviewResult(out)
	}
	return writeJSON(c, http.StatusOK, map[string]any{"outputs": out})
}

func (s *Surface) handleResult(c *echo.Context) error {
	result, err := decodeJSON[map[string]any](c.Request().Body)
	if err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
	}
	if s.deps.Emitter != nil {
		s.deps.Emitter.WebviewResult(result)
	}
	return writeJSON(c, http.StatusAccepted, map[string]any{"accepted": true})
}

func (s *Surface) handleAction(c *echo.Context) error {
	req, err := decodeJSON[actionRequest](c.Request().Body)
	if err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
	}
	if strings.TrimSpace(req.Name) == "" {
		return writeError(c, http.StatusBadRequest, "invalid_request", "name is required")
	}
	if s.deps.Emitter != nil {
		s.deps.Emitter.ButtonAction(req.Name, req.Result)
	}
	return writeJSON(c, http.StatusAccepted, map[string]any{"accepted": true})
}

func writeError(c *echo.Context, status int, code, msg string) error {
	return writeJSON(c, status, map[string]any{"error": errorBody{Code: code, Message: msg}})
}

func writeJSON(c *echo.Context, status int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	res.WriteHeader(status)
	_, err = res.Write(body)
	return err
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
