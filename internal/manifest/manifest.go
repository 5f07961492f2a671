// Package manifest describes the runner and models a session loads.
//
// The document is JSON:
//
//	{
//	  "version": "1",
//	  "updateUrl": "https://cdn.example.com/coherent/manifest.json",
//	  "runner": {"id": "coherent-runner", "version": "1.0.0", "file": "runner.json", "url": "https://runner.example.com"},
//	  "models": [{"id": "model1", "version": "3", "url": "https://cdn.example.com/models/model1.json"}],
//	  "ui": {"languages": ["en", "ch"]}
//	}
//
// "file" names the runner inside the application bundle (offline runner),
// "url" is the remote runner endpoint (online runner) and "download" is where
// an updated runner file can be fetched from. Offline models live in the
// bundle as <id>.json.
package manifest

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

// FileName is the bundle-relative name of the manifest.
const FileName = "manifest.json"

var ErrInvalid = errors.New("invalid manifest")

type Manifest struct {
	Version   string  `json:"version"`
	UpdateURL string  `json:"updateUrl,omitempty"`
	Runner    Runner  `json:"runner"`
	Models    []Model `json:"models"`
	UI        UI      `json:"ui,omitempty"`
}

type Runner struct {
	ID       string `json:"id"`
	Version  string `json:"version,omitempty"`
	File     string `json:"file,omitempty"`
	URL      string `json:"url,omitempty"`
	Download string `json:"download,omitempty"`
}

type Model struct {
	ID      string `json:"id"`
	Version string `json:"version,omitempty"`
	URL     string `json:"url,omitempty"`
}

type UI struct {
	Languages []string `json:"languages,omitempty"`
}

// Parse decodes and validates a manifest document.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the fields the session depends on.
func (m *Manifest) Validate() error {
	if strings.TrimSpace(m.Runner.ID) == "" {
		return fmt.Errorf("%w: runner id is required", ErrInvalid)
	}
	seen := make(map[string]struct{}, len(m.Models))
	for i, model := range m.Models {
		id := strings.TrimSpace(model.ID)
		if id == "" {
			return fmt.Errorf("%w: models[%d] has no id", ErrInvalid, i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate model id %q", ErrInvalid, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Model looks up a model by id.
func (m *Manifest) Model(id string) (Model, bool) {
	for _, model := range m.Models {
		if model.ID == id {
			return model, true
		}
	}
	return Model{}, false
}

// ModelIDs returns the declared model ids in sorted order.
func (m *Manifest) ModelIDs() []string {
	ids := make([]string, 0, len(m.Models))
	for _, model := range m.Models {
		ids = append(ids, model.ID)
	}
	sort.Strings(ids)
	return ids
}

// Encode renders the manifest as indented JSON.
func (m *Manifest) Encode() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
