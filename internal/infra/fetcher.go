package infra

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shellmon/shellmon/internal/domain"
)

const fetchTimeout = 60 * time.Second

// HTTPFetcher implements domain.Fetcher over net/http.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a fetcher with a per-request timeout.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{Timeout: fetchTimeout},
	}
}

// Fetch downloads url into w. Non-2xx responses and truncated bodies are
// reported as errors so the installer can retry.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "shellmon")

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch payload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("payload fetch returned status %d", resp.StatusCode)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to read payload body: %w", err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return n, fmt.Errorf("truncated payload: got %d of %d bytes", n, resp.ContentLength)
	}

	return n, nil
}

// Ensure HTTPFetcher implements domain.Fetcher.
var _ domain.Fetcher = (*HTTPFetcher)(nil)
