package oracle

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/flyxtv/embedcodec/internal/logger"
)

const (
	defaultTimeout = 30 * time.Second
	defaultRetries = 3

	userAgentValue = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"

	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 3 * time.Second

	headerContentTypeJSON = "application/json"
	maxResponseBytes      = 1 << 20
)

// defaultTransport is a tuned HTTP transport reused across oracle clients.
// Compression is negotiated manually so br responses can be handled.
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ResponseHeaderTimeout: 10 * time.Second,
	ForceAttemptHTTP2:     true,
	DisableCompression:    true,
	ReadBufferSize:        16 * 1024,
	WriteBufferSize:       16 * 1024,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// HTTPConfig holds parameters for a provider oracle endpoint pair.
// Zero values use defaults.
type HTTPConfig struct {
	// Provider names the service for reports and artifacts.
	Provider string
	// EncodeURL and DecodeURL are the endpoints; either may be empty when the
	// provider exposes only one direction.
	EncodeURL string
	DecodeURL string
	// Method is "GET" (input as query parameter) or "POST" (input as a JSON
	// body field). Defaults to GET.
	Method string
	// ParamName is the query parameter / JSON field carrying the input.
	// Defaults to "text".
	ParamName string
	// ResponseField selects a top-level JSON field holding the result.
	// Empty means the raw response body is the result.
	ResponseField string
	// Referer is sent when non-empty; some providers check it.
	Referer string

	UserAgent string
	Timeout   time.Duration
	Retries   int
	Client    *http.Client
}

// HTTPOracle issues encode/decode calls against a live provider endpoint,
// with bounded retry for transient failures and manual gzip/br handling.
type HTTPOracle struct {
	cfg    HTTPConfig
	client *http.Client
	log    *logger.ComponentLogger
}

// NewHTTP creates an HTTP oracle for the given endpoints.
func NewHTTP(cfg HTTPConfig) *HTTPOracle {
	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}
	if cfg.ParamName == "" {
		cfg.ParamName = "text"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = userAgentValue
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retries <= 0 {
		cfg.Retries = defaultRetries
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: defaultTransport,
		}
	}
	return &HTTPOracle{
		cfg:    cfg,
		client: client,
		log:    logger.WithComponent(logger.ComponentOracle),
	}
}

// Name returns the configured provider name.
func (o *HTTPOracle) Name() string {
	if o.cfg.Provider != "" {
		return o.cfg.Provider
	}
	if u, err := url.Parse(o.cfg.EncodeURL); err == nil && u.Host != "" {
		return u.Host
	}
	return "http-oracle"
}

// Encode submits plaintext to the provider's encode endpoint.
func (o *HTTPOracle) Encode(ctx context.Context, plain string) (string, error) {
	if o.cfg.EncodeURL == "" {
		return "", NewError(ErrCodeDecodeUnsupported, "no encode endpoint configured")
	}
	return o.call(ctx, o.cfg.EncodeURL, plain)
}

// Decode submits ciphertext to the provider's decode endpoint.
func (o *HTTPOracle) Decode(ctx context.Context, cipher string) (string, error) {
	if o.cfg.DecodeURL == "" {
		return "", NewError(ErrCodeDecodeUnsupported, "no decode endpoint configured")
	}
	return o.call(ctx, o.cfg.DecodeURL, cipher)
}

// call performs one logical oracle request with retry/backoff for transient
// failures. Throttling responses (429, 403) back off but still count against
// the retry budget so a hard-banned run fails promptly.
func (o *HTTPOracle) call(ctx context.Context, endpoint, input string) (string, error) {
	var lastErr *Error
	backoff := initialBackoff
	for attempt := 0; attempt < o.cfg.Retries; attempt++ {
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
		}

		out, err := o.once(ctx, endpoint, input)
		if err == nil {
			return out, nil
		}
		oerr, ok := err.(*Error)
		if !ok {
			return "", err
		}
		if !IsRetryable(oerr) {
			return "", oerr
		}
		lastErr = oerr
		recordRetry()
		o.log.Debug("oracle call failed, retrying", map[string]interface{}{
			"attempt": attempt + 1,
			"code":    oerr.Code,
		})
	}
	return "", lastErr
}

func (o *HTTPOracle) once(ctx context.Context, endpoint, input string) (string, error) {
	recordRequest()
	req, err := o.buildRequest(ctx, endpoint, input)
	if err != nil {
		return "", NewError(ErrCodeHTTPFailed, "build request", err.Error())
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return "", NewError(ErrCodeHTTPFailed, "request failed", err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden:
		recordThrottle()
		return "", NewError(ErrCodeThrottled, "provider throttled request", resp.StatusCode)
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return "", NewError(ErrCodeBadStatus, "unexpected status", resp.StatusCode)
	}

	body, err := readBody(resp)
	if err != nil {
		return "", NewError(ErrCodeMalformedResponse, "read response", err.Error())
	}
	return o.extract(body)
}

func (o *HTTPOracle) buildRequest(ctx context.Context, endpoint, input string) (*http.Request, error) {
	var req *http.Request
	var err error
	if o.cfg.Method == http.MethodPost {
		payload, merr := json.Marshal(map[string]string{o.cfg.ParamName: input})
		if merr != nil {
			return nil, merr
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", headerContentTypeJSON)
	} else {
		u, perr := url.Parse(endpoint)
		if perr != nil {
			return nil, perr
		}
		q := u.Query()
		q.Set(o.cfg.ParamName, input)
		u.RawQuery = q.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
	}

	req.Header.Set("User-Agent", o.cfg.UserAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Cache-Control", "no-cache")
	if o.cfg.Referer != "" {
		req.Header.Set("Referer", o.cfg.Referer)
	}
	return req, nil
}

// readBody decompresses the response per Content-Encoding.
func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gzReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer func() { _ = gzReader.Close() }()
		reader = gzReader
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		// deflate is raw DEFLATE data, no wrapper
		reader = resp.Body
	}
	return io.ReadAll(io.LimitReader(reader, maxResponseBytes))
}

// extract pulls the result out of the response body.
func (o *HTTPOracle) extract(body []byte) (string, error) {
	if o.cfg.ResponseField == "" {
		out := strings.TrimSpace(string(body))
		if out == "" {
			return "", NewError(ErrCodeEmptyResponse, "empty response body")
		}
		return out, nil
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", NewError(ErrCodeMalformedResponse, "response is not a JSON object", err.Error())
	}
	raw, ok := payload[o.cfg.ResponseField]
	if !ok {
		return "", NewError(ErrCodeMalformedResponse, "response field missing", o.cfg.ResponseField)
	}
	var out string
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", NewError(ErrCodeMalformedResponse, "response field is not a string", o.cfg.ResponseField)
	}
	if out == "" {
		return "", NewError(ErrCodeEmptyResponse, "response field empty", o.cfg.ResponseField)
	}
	return out, nil
}
