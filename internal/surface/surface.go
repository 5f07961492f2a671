// Package surface builds the embedded web UI handed to host applications.
//
// A Surface is fully configured at construction: language, profile and model
// list are rendered into the page once, so later configuration changes never
// reach a surface that was already returned.
package surface

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/coherent/internal/logger"
	"github.com/samcharles93/coherent/internal/webui"
)

// Config is the snapshot a surface is built from.
type Config struct {
	Language string
	Profile  map[string]any
	Debug    bool
	Models   []string
	// Languages are accepted in addition to the bundled ones. They render
	// with the default language strings when none are bundled.
	Languages []string
}

// Executor runs models on behalf of the page.
type Executor interface {
	Execute(ctx context.Context, modelID string, inputs map[string]any) (map[string]any, error)
}

// Emitter receives events raised by the page.
type Emitter interface {
	WebviewResult(result map[string]any)
	ButtonAction(name string, result any)
}

// Deps are the collaborators a surface calls back into.
type Deps struct {
	Executor Executor
	Emitter  Emitter
	Log      logger.Logger
	// Describe maps execution errors to a code/message pair for the page.
	Describe func(err error) (code, message string)
}

// Surface is the UI handle returned to the host. It is an http.Handler the
// host mounts wherever it renders web content.
type Surface struct {
	ID        string
	Language  string
	CreatedAt time.Time

	profile map[string]any
	page    []byte
	deps    Deps
	log     logger.Logger
	router  *echo.Echo
}

// New builds a surface or fails without returning a partial one.
func New(cfg Config, deps Deps) (*Surface, error) {
	lang := strings.TrimSpace(cfg.Language)
	if lang == "" {
		lang = webui.DefaultLanguage
	}
	bundled := webui.Languages()
	strs, err := webui.Strings(lang)
	switch {
	case err == nil:
	case slices.Contains(cfg.Languages, lang):
		if strs, err = webui.Strings(webui.DefaultLanguage); err != nil {
			return nil, err
		}
	default:
		allowed := append(bundled, cfg.Languages...)
		return nil, fmt.Errorf("language %q is not supported (supported: %s)", lang, strings.Join(allowed, ", "))
	}

	profile := maps.Clone(cfg.Profile)
	if profile == nil {
		profile = map[string]any{}
	}
	if _, err := json.Marshal(profile); err != nil {
		return nil, fmt.Errorf("user profile is not serializable: %w", err)
	}

	s := &Surface{
		ID:        uuid.NewString(),
		Language:  lang,
		CreatedAt: time.Now(),
		profile:   profile,
		deps:      deps,
	}
	if deps.Log != nil {
		s.log = deps.Log.With("surface", s.ID)
	} else {
		s.log = logger.Discard()
	}

	page, err := webui.Render(webui.Page{
		SurfaceID:   s.ID,
		Language:    lang,
		DisplayName: displayName(profile),
		Models:      slices.Clone(cfg.Models),
		Strings:     strs,
		Config:      s.config(cfg.Debug),
	})
	if err != nil {
		return nil, err
	}
	s.page = page
	s.router = s.routes()
	return s, nil
}

// Profile returns a copy of the profile the surface was built with.
func (s *Surface) Profile() map[string]any {
	return maps.Clone(s.profile)
}

// Page returns the rendered index document.
func (s *Surface) Page() []byte {
	return slices.Clone(s.page)
}

func (s *Surface) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Surface) config(debug bool) map[string]any {
	return map[string]any{
		"surfaceId": s.ID,
		"language":  s.Language,
		"profile":   s.profile,
		"debug":     debug,
	}
}

func displayName(profile map[string]any) string {
	for _, key := range []string{"name", "displayName", "id"} {
		if v, ok := profile[key]; ok {
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
				return s
			}
		}
	}
	return ""
}
