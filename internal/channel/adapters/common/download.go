package common

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/memohai/omnirelay/internal/media"
)

// DefaultDownloadTimeout bounds a single attachment download.
const DefaultDownloadTimeout = 60 * time.Second

// Download is an attachment body fetched from a platform file URL.
type Download struct {
	Body io.ReadCloser
	Mime string
	Size int64
}

// FetchAttachment performs a GET request for rawURL and returns the open body.
// Caller must close Body. Responses larger than maxBytes are rejected up front
// when the server announces a Content-Length.
func FetchAttachment(ctx context.Context, client *http.Client, rawURL string, maxBytes int64) (Download, error) {
	if client == nil {
		client = &http.Client{Timeout: DefaultDownloadTimeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Download{}, fmt.Errorf("build download request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return Download{}, fmt.Errorf("download attachment: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return Download{}, fmt.Errorf("download attachment status: %d", resp.StatusCode)
	}
	if maxBytes <= 0 {
		maxBytes = media.MaxAssetBytes
	}
	if resp.ContentLength > maxBytes {
		_ = resp.Body.Close()
		return Download{}, fmt.Errorf("%w: max %d bytes", media.ErrAssetTooLarge, maxBytes)
	}
	mime := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}
	return Download{Body: resp.Body, Mime: mime, Size: resp.ContentLength}, nil
}
