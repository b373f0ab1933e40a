package oracle

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/flyxtv/embedcodec/internal/logger"
)

const (
	pageCacheTTL = 10 * time.Minute
	maxPageBytes = 5 << 20
)

type pageCacheEntry struct {
	body  string
	expAt time.Time
}

// PageFetcher downloads embed pages for decoder extraction. Pages are
// cached briefly by URL so extracting both decoder directions, or retrying
// an extraction with different parameters, does not refetch.
type PageFetcher struct {
	client  *http.Client
	retries int
	log     *logger.ComponentLogger

	mu    sync.Mutex
	cache map[string]pageCacheEntry
}

// NewPageFetcher creates a fetcher. A nil client uses the shared tuned
// transport.
func NewPageFetcher(client *http.Client) *PageFetcher {
	if client == nil {
		client = &http.Client{Transport: defaultTransport, Timeout: defaultTimeout}
	}
	return &PageFetcher{
		client:  client,
		retries: defaultRetries,
		log:     logger.WithComponent(logger.ComponentOracle),
		cache:   make(map[string]pageCacheEntry),
	}
}

// Fetch returns the page body for a URL, from cache when fresh.
func (f *PageFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	f.mu.Lock()
	if e, ok := f.cache[pageURL]; ok && time.Now().Before(e.expAt) {
		f.mu.Unlock()
		recordCacheHit()
		return e.body, nil
	}
	f.mu.Unlock()
	recordCacheMiss()

	var lastErr *Error
	backoff := initialBackoff
	for attempt := 0; attempt < f.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", NewError(ErrCodeHTTPFailed, "context canceled", ctx.Err().Error())
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			recordRetry()
		}

		body, err := f.once(ctx, pageURL)
		if err == nil {
			f.mu.Lock()
			f.cache[pageURL] = pageCacheEntry{body: body, expAt: time.Now().Add(pageCacheTTL)}
			f.mu.Unlock()
			return body, nil
		}
		oerr, ok := err.(*Error)
		if !ok {
			return "", err
		}
		if !IsRetryable(oerr) {
			return "", oerr
		}
		lastErr = oerr
		f.log.Debug("page fetch failed, retrying", map[string]interface{}{
			"attempt": attempt + 1,
			"code":    oerr.Code,
		})
	}
	return "", lastErr
}

// FetchDecoder fetches a page and extracts its decoder script.
func (f *PageFetcher) FetchDecoder(ctx context.Context, pageURL string) (*DecoderScript, error) {
	body, err := f.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return ExtractDecoder(body)
}

func (f *PageFetcher) once(ctx context.Context, pageURL string) (string, error) {
	recordRequest()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", NewError(ErrCodeHTTPFailed, "build request", err.Error())
	}
	req.Header.Set("User-Agent", userAgentValue)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", NewError(ErrCodeHTTPFailed, "request failed", err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden:
		recordThrottle()
		return "", NewError(ErrCodeThrottled, "provider throttled page fetch", resp.StatusCode)
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return "", NewError(ErrCodeBadStatus, "unexpected status", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", NewError(ErrCodeMalformedResponse, "read page body", err.Error())
	}
	return string(body), nil
}
