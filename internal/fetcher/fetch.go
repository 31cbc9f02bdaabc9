// Package fetcher performs the single best-effort HTTP fetch of a playlist
// URL during URL-based ingestion. No retries, no caching.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StatusError reports a non-success HTTP response from the playlist host.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("failed to fetch playlist: %s", e.Status)
}

// FetchPlaylist GETs url and returns the response body as text.
// userAgent is optional. A non-2xx response yields a *StatusError carrying
// the transport status text.
func FetchPlaylist(ctx context.Context, url string, userAgent string, timeout time.Duration) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("NewRequest: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("Do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ReadAll: %w", err)
	}
	return string(body), nil
}
