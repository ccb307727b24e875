package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

var ErrTooLarge = errors.New("source exceeds size limit")

// HTTPDownloader fetches direct media links.
type HTTPDownloader struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPDownloader creates a downloader. maxBytes <= 0 means no limit.
func NewHTTPDownloader(maxBytes int64) *HTTPDownloader {
	return &HTTPDownloader{
		client: &http.Client{
			Timeout: 30 * time.Minute, // Videos can be large
		},
		maxBytes: maxBytes,
	}
}

func (d *HTTPDownloader) Download(ctx context.Context, videoURL, destPath string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download video: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if d.maxBytes > 0 && resp.ContentLength > d.maxBytes {
		return "", ErrTooLarge
	}

	f, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("failed to create destination: %w", err)
	}

	var body io.Reader = resp.Body
	if d.maxBytes > 0 {
		body = io.LimitReader(resp.Body, d.maxBytes+1)
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("failed to write video: %w", err)
	}
	if d.maxBytes > 0 && n > d.maxBytes {
		return "", ErrTooLarge
	}
	if n == 0 {
		return "", errors.New("empty response body")
	}
	return destPath, nil
}
