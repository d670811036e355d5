package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Source produces a catalog document.
type Source interface {
	Fetch(ctx context.Context) (*Document, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (*Document, error)

func (f SourceFunc) Fetch(ctx context.Context) (*Document, error) { return f(ctx) }

const (
	defaultHTTPTimeout = 10 * time.Second
	objectInfoPath     = "/object_info"
	maxCatalogBytes    = 256 << 20
)

// HTTPSource fetches <BaseURL>/object_info from a running graph server.
type HTTPSource struct {
	BaseURL string
	Timeout time.Duration
	Client  *http.Client
}

// NewHTTPSource returns an HTTPSource with the default timeout.
func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{BaseURL: baseURL, Timeout: defaultHTTPTimeout}
}

// URL is the endpoint Fetch requests.
func (s *HTTPSource) URL() string {
	return strings.TrimRight(s.BaseURL, "/") + objectInfoPath
}

func (s *HTTPSource) Fetch(ctx context.Context) (*Document, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := s.URL()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog: GET %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog: GET %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogBytes))
	if err != nil {
		return nil, fmt.Errorf("catalog: read response body: %w", err)
	}
	return Parse(body)
}

// FileSource reads a catalog exported to disk.
type FileSource struct {
	Path string
}

func (s FileSource) Fetch(_ context.Context) (*Document, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Path, err)
	}
	return doc, nil
}
