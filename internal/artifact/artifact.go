// Package artifact resolves the runner and model artifacts a manifest
// declares, choosing between the application bundle, the local cache and
// remote downloads according to the offline and update flags.
package artifact

import (
	"sort"

	"github.com/samcharles93/coherent/internal/manifest"
)

// Origin records where an artifact was taken from.
type Origin string

const (
	OriginBundle Origin = "bundle"
	OriginCache  Origin = "cache"
	OriginRemote Origin = "remote"
)

// Runner is the resolved execution environment.
type Runner struct {
	ID      string
	Version string
	Offline bool
	// Path is the runner file for offline runners.
	Path string
	// Endpoint is the remote runner URL for online runners.
	Endpoint string
	// Sandbox is set when Endpoint came from the sandbox override.
	Sandbox bool
	Origin  Origin
}

// Model is a resolved model document.
type Model struct {
	ID      string
	Version string
	Path    string
	Data    []byte
	Origin  Origin
}

// Plan is the outcome of resolution: everything an engine loader needs.
type Plan struct {
	Manifest *manifest.Manifest
	Runner   Runner
	Models   map[string]Model
}

// Model looks up a resolved model by id.
func (p *Plan) Model(id string) (Model, bool) {
	if p == nil {
		return Model{}, false
	}
	m, ok := p.Models[id]
	return m, ok
}

// ModelIDs returns resolved model ids in sorted order.
func (p *Plan) ModelIDs() []string {
	if p == nil {
		return nil
	}
	ids := make([]string, 0, len(p.Models))
	for id := range p.Models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Options selects where artifacts come from.
type Options struct {
	OfflineRunner bool
	OfflineModel  bool
	RunnerUpdates bool
	ModelUpdates  bool
	// SandboxURL replaces the manifest runner endpoint when non-empty.
	SandboxURL string
}

func (o Options) updatesEnabled() bool {
	return o.RunnerUpdates || o.ModelUpdates
}
