package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound is returned by fetchers when a location holds no resource.
var ErrNotFound = errors.New("resource not found")

// maxSampleBytes bounds a single sample download.
const maxSampleBytes = 64 << 20

// ResourceRef is a logical reference to a sample as supplied by the kit.
type ResourceRef string

// Resolver maps a reference to a physical location without doing any I/O.
type Resolver interface {
	Resolve(ref ResourceRef) (location string, ok bool)
}

// DirResolver resolves relative refs against Dir and passes http(s) and
// absolute refs through. Empty refs and other URL schemes do not resolve.
type DirResolver struct {
	Dir string
}

func (r DirResolver) Resolve(ref ResourceRef) (string, bool) {
	s := strings.TrimSpace(string(ref))
	if s == "" {
		return "", false
	}
	if u, err := url.Parse(s); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		switch u.Scheme {
		case "http", "https":
			return s, true
		case "file":
			if u.Path == "" {
				return "", false
			}
			return u.Path, true
		default:
			return "", false
		}
	}
	if filepath.IsAbs(s) {
		return s, true
	}
	return filepath.Join(r.Dir, s), true
}

// Fetcher reads the bytes at a resolved location.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// FileFetcher reads local files.
type FileFetcher struct{}

func (FileFetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// HTTPFetcher downloads samples over HTTP.
type HTTPFetcher struct {
	http *http.Client
}

// NewHTTPFetcher creates a fetcher. Deadlines come from the request context.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{http: &http.Client{Timeout: 30 * time.Second}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("%s: %w", rawURL, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("download %s: status %d", rawURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSampleBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body %s: %w", rawURL, err)
	}
	if len(data) > maxSampleBytes {
		return nil, fmt.Errorf("download %s: sample larger than %d bytes", rawURL, maxSampleBytes)
	}
	return data, nil
}

// SchemeFetcher sends http(s) locations to HTTP and everything else to File.
type SchemeFetcher struct {
	HTTP Fetcher
	File Fetcher
}

// DefaultFetcher returns a SchemeFetcher over the built-in fetchers.
func DefaultFetcher() SchemeFetcher {
	return SchemeFetcher{HTTP: NewHTTPFetcher(), File: FileFetcher{}}
}

func (f SchemeFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return f.HTTP.Fetch(ctx, location)
	}
	return f.File.Fetch(ctx, location)
}
