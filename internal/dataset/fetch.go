package dataset

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/john-huang-121/D3-globe/pkg/logger"
	"github.com/klauspost/compress/zstd"
)

// Document is a fetched data source
type Document struct {
	Location    string
	ContentType string
	Body        []byte
}

// Fetcher reads data sources from HTTP(S) URLs or local paths
type Fetcher struct {
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *logger.Logger
}

// NewFetcher creates a new fetcher. maxRetries is the number of extra
// attempts after a failed one.
func NewFetcher(timeout time.Duration, maxRetries int, logger *logger.Logger) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		backoff:    500 * time.Millisecond,
		logger:     logger.Named("fetcher"),
	}
}

// Fetch reads the document at location. Files ending in .zst are
// decompressed transparently.
func (f *Fetcher) Fetch(ctx context.Context, location string) (*Document, error) {
	var doc *Document
	var err error
	if isURL(location) {
		doc, err = f.fetchWithRetry(ctx, location)
	} else {
		doc, err = readFile(location)
	}
	if err != nil {
		return nil, err
	}

	if isZstd(location) {
		body, err := decompress(doc.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress %s: %w", location, err)
		}
		doc.Body = body
	}
	return doc, nil
}

func isURL(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

func isZstd(location string) bool {
	if i := strings.IndexAny(location, "?#"); i >= 0 && isURL(location) {
		location = location[:i]
	}
	return filepath.Ext(location) == ".zst"
}

func readFile(path string) (*Document, error) {
	body, err := os.ReadFile(strings.TrimPrefix(path, "file://"))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return &Document{Location: path, Body: body}, nil
}

func decompress(body []byte) ([]byte, error) {
	zr, err := zstd.NewReader(bytes.NewReader(body), zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// fetchWithRetry performs HTTP request with retry logic and exponential backoff
func (f *Fetcher) fetchWithRetry(ctx context.Context, url string) (*Document, error) {
	var lastErr error

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			backoffDuration := f.backoff * time.Duration(1<<uint(attempt-1))
			f.logger.Info("Retrying data fetch",
				logger.String("url", url),
				logger.Int("attempt", attempt),
				logger.Duration("backoff", backoffDuration))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoffDuration):
			}
		}

		doc, err := f.get(ctx, url)
		if err == nil {
			if attempt > 0 {
				f.logger.Info("Fetched data after retries",
					logger.String("url", url),
					logger.Int("attempts_needed", attempt+1))
			}
			return doc, nil
		}
		lastErr = err
		f.logger.Warn("Data fetch failed",
			logger.String("url", url),
			logger.Error(err),
			logger.Int("attempt", attempt+1),
			logger.Int("max_attempts", f.maxRetries+1))

		if ctx.Err() != nil {
			break
		}
	}

	return nil, lastErr
}

func (f *Fetcher) get(ctx context.Context, url string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}
	return &Document{
		Location:    url,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
