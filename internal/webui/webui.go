// Package webui provides the embedded web interface returned as a UI surface:
// the page template, static assets and per-language strings.
package webui

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

//go:embed static/*
var staticFS embed.FS

//go:embed templates/index.html
var indexTemplate string

//go:embed i18n/*.json
var i18nFS embed.FS

// DefaultLanguage is used when the host never sets one.
const DefaultLanguage = "en"

var page = template.Must(template.New("index").Parse(indexTemplate))

// StaticFS returns an http.FileSystem for the embedded static files.
func StaticFS() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// This should never happen because we control the embed path
		panic(err)
	}
	return http.FS(sub)
}

// Languages lists the language codes with bundled strings.
func Languages() []string {
	entries, err := fs.ReadDir(i18nFS, "i18n")
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, strings.TrimSuffix(e.Name(), path.Ext(e.Name())))
	}
	sort.Strings(out)
	return out
}

// Strings returns the UI strings for lang.
func Strings(lang string) (map[string]string, error) {
	data, err := i18nFS.ReadFile(path.Join("i18n", lang+".json"))
	if err != nil {
		return nil, fmt.Errorf("unsupported language %q", lang)
	}
	var out map[string]string
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode %s strings: %w", lang, err)
	}
	return out, nil
}

// Page is the data rendered into the index template.
type Page struct {
	SurfaceID   string
	Language    string
	DisplayName string
	Models      []string
	Strings     map[string]string
	// Config is serialized into the page for app.js.
	Config map[string]any
}

// Render executes the index template into memory; a failure leaves nothing
// partially written.
func Render(p Page) ([]byte, error) {
	var buf bytes.Buffer
	if err := page.Execute(&buf, p); err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}
	return buf.Bytes(), nil
}
