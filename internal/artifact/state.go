package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

const stateFileName = "state.json"

// pinnedState is the cache's record of the artifact versions loaded first (or
// last updated to). Without updates, later sessions keep using these.
type pinnedState struct {
	Runner *pinnedRunner          `json:"runner,omitempty"`
	Models map[string]pinnedModel `json:"models,omitempty"`
}

type pinnedRunner struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Endpoint string `json:"endpoint,omitempty"`
	File     string `json:"file,omitempty"`
}

type pinnedModel struct {
	Version string `json:"version"`
	File    string `json:"file"`
}

func loadState(dir string) (*pinnedState, error) {
	st := &pinnedState{Models: map[string]pinnedModel{}}
	if dir == "" {
		return st, nil
	}
	data, err := os.ReadFile(filepath.Join(dir, stateFileName))
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache state: %w", err)
	}
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("decode cache state: %w", err)
	}
	if st.Models == nil {
		st.Models = map[string]pinnedModel{}
	}
	return st, nil
}

func saveState(dir string, st *pinnedState) error {
	if dir == "" {
		return nil
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache state: %w", err)
	}
	return writeFileAtomic(filepath.Join(dir, stateFileName), data)
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
