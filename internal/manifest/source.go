package manifest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/samcharles93/coherent/internal/version"
)

// maxDocumentSize bounds manifest downloads.
const maxDocumentSize = 4 << 20

// Source produces a manifest. Sessions read the bundled manifest through a
// FileSource; update checks read the remote one through an HTTPSource.
type Source interface {
	Load(ctx context.Context) (*Manifest, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (*Manifest, error)

func (f SourceFunc) Load(ctx context.Context) (*Manifest, error) {
	return f(ctx)
}

// FileSource reads a manifest from disk.
type FileSource struct {
	Path string
}

// BundleSource returns a FileSource for dir/manifest.json.
func BundleSource(dir string) FileSource {
	return FileSource{Path: filepath.Join(dir, FileName)}
}

func (s FileSource) Load(ctx context.Context) (*Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(s.Path) == "" {
		return nil, fmt.Errorf("manifest path is required")
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(data)
}

// HTTPSource fetches a manifest over HTTP(S).
type HTTPSource struct {
	URL    string
	Client *http.Client
}

func (s HTTPSource) Load(ctx context.Context) (*Manifest, error) {
	data, err := Fetch(ctx, s.Client, s.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	return Parse(data)
}

// Fetch GETs url and returns the body, rejecting non-2xx responses.
func Fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxDocumentSize {
		return nil, fmt.Errorf("GET %s: document exceeds %d bytes", url, maxDocumentSize)
	}
	return data, nil
}
