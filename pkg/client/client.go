// Package client is the Go SDK for the spanmark annotation service. It wraps
// the REST API with typed sub-clients for documents, annotations, datasets,
// jobs, and entity search, and retries transient failures with exponential
// backoff.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Version is the SDK version reported in the User-Agent header.
const Version = "0.1.0"

// Logger is the minimal logging surface the client needs. The zero value of
// the client logs nothing.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debugf(format string, args ...interface{}) {}
func (noopLogger) Infof(format string, args ...interface{})  {}
func (noopLogger) Errorf(format string, args ...interface{}) {}

// Client talks to a spanmark API server.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	userAgent    string
	logger       Logger
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration

	documents       *DocumentsClient
	documentsOnce   sync.Once
	annotations     *AnnotationsClient
	annotationsOnce sync.Once
	datasets        *DatasetsClient
	datasetsOnce    sync.Once
	jobs            *JobsClient
	jobsOnce        sync.Once
	search          *SearchClient
	searchOnce      sync.Once
}

// APIError is a non-2xx reply from the server, carrying the envelope error
// code and the request ID for correlation with server logs.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	RequestID  string `json:"request_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spanmark: %s (HTTP %d): %s [request_id=%s]", e.Code, e.StatusCode, e.Message, e.RequestID)
}

// IsNotFound reports whether the server answered 404.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsConflict reports whether the server answered 409.
func (e *APIError) IsConflict() bool {
	return e.StatusCode == http.StatusConflict
}

// IsRateLimited reports whether the server answered 429.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsServerError reports whether the server answered with any 5xx status.
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// Pagination mirrors the list envelope metadata.
type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total,omitempty"`
}

// envelope is the server's uniform response wrapper.
type envelope struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      *errorDetail    `json:"error,omitempty"`
	Pagination *Pagination     `json:"pagination,omitempty"`
	RequestID  string          `json:"request_id"`
}

type errorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// NewClient creates a client for the server at baseURL. The URL must use the
// http or https scheme; a trailing slash is ignored.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("spanmark: baseURL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("spanmark: invalid baseURL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("spanmark: baseURL scheme must be http or https, got %q", parsed.Scheme)
	}

	c := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		userAgent:    fmt.Sprintf("spanmark-go-sdk/%s", Version),
		logger:       noopLogger{},
		retryMax:     3,
		retryWaitMin: 500 * time.Millisecond,
		retryWaitMax: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Documents returns the document sub-client.
func (c *Client) Documents() *DocumentsClient {
	c.documentsOnce.Do(func() {
		c.documents = &DocumentsClient{client: c}
	})
	return c.documents
}

// Annotations returns the annotation sub-client.
func (c *Client) Annotations() *AnnotationsClient {
	c.annotationsOnce.Do(func() {
		c.annotations = &AnnotationsClient{client: c}
	})
	return c.annotations
}

// Datasets returns the dataset sub-client.
func (c *Client) Datasets() *DatasetsClient {
	c.datasetsOnce.Do(func() {
		c.datasets = &DatasetsClient{client: c}
	})
	return c.datasets
}

// Jobs returns the training job sub-client.
func (c *Client) Jobs() *JobsClient {
	c.jobsOnce.Do(func() {
		c.jobs = &JobsClient{client: c}
	})
	return c.jobs
}

// Search returns the entity search sub-client.
func (c *Client) Search() *SearchClient {
	c.searchOnce.Do(func() {
		c.search = &SearchClient{client: c}
	})
	return c.search
}

// Health reports the server's liveness state and version.
// GET /healthz
func (c *Client) Health(ctx context.Context) (*Health, error) {
	// The probe endpoints reply without the envelope.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("spanmark: decoding health reply: %w", err)
	}
	return &h, nil
}

// Health is the liveness probe reply.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// do performs one API call with retries. On success the envelope data is
// unmarshalled into result (when both are present) and the envelope
// pagination, if any, is returned.
func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) (*Pagination, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	fullURL := c.baseURL + path

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("spanmark: marshalling request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		if attempt > 0 {
			backoff := c.backoff(attempt)
			c.logger.Debugf("retry %d after %v: %s %s", attempt, backoff, method, path)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("spanmark: building request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Errorf("%s %s failed: %v", method, path, err)
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		c.logger.Debugf("%s %s %d (%v)", method, path, resp.StatusCode, time.Since(start))
		if readErr != nil {
			lastErr = fmt.Errorf("spanmark: reading response body: %w", readErr)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = apiErrorFrom(resp, respBody)
			if attempt < c.retryMax {
				if wait := retryAfter(resp); wait > 0 {
					c.logger.Infof("rate limited, retrying after %v", wait)
					select {
					case <-time.After(wait):
					case <-ctx.Done():
						return nil, ctx.Err()
					}
				}
				continue
			}
			return nil, lastErr
		}

		if resp.StatusCode >= 400 {
			apiErr := apiErrorFrom(resp, respBody)
			lastErr = apiErr
			if apiErr.IsServerError() {
				continue
			}
			return nil, apiErr
		}

		// 204 and friends carry no envelope.
		if len(respBody) == 0 {
			return nil, nil
		}

		var env envelope
		if err := json.Unmarshal(respBody, &env); err != nil {
			return nil, fmt.Errorf("spanmark: decoding response envelope: %w", err)
		}
		if result != nil && len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, result); err != nil {
				return nil, fmt.Errorf("spanmark: decoding response data: %w", err)
			}
		}
		return env.Pagination, nil
	}

	return nil, lastErr
}

func (c *Client) get(ctx context.Context, path string, result interface{}) (*Pagination, error) {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body, result interface{}) error {
	_, err := c.do(ctx, http.MethodPost, path, body, result)
	return err
}

func (c *Client) put(ctx context.Context, path string, body, result interface{}) error {
	_, err := c.do(ctx, http.MethodPut, path, body, result)
	return err
}

func (c *Client) delete(ctx context.Context, path string, result interface{}) error {
	_, err := c.do(ctx, http.MethodDelete, path, nil, result)
	return err
}

// apiErrorFrom builds an APIError from an error reply, falling back to the
// raw body when the envelope does not parse.
func apiErrorFrom(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("X-Request-ID"),
	}
	if len(body) > 0 {
		var env envelope
		if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			if env.RequestID != "" {
				apiErr.RequestID = env.RequestID
			}
		} else {
			apiErr.Message = strings.TrimSpace(string(body))
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	seconds, err := strconv.Atoi(v)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// backoff computes the wait before the given retry attempt, exponential from
// retryWaitMin up to retryWaitMax with up to 25% jitter.
func (c *Client) backoff(attempt int) time.Duration {
	wait := c.retryWaitMin * time.Duration(1<<uint(attempt-1))
	if wait > c.retryWaitMax {
		wait = c.retryWaitMax
	}
	if jitter := int64(wait / 4); jitter > 0 {
		wait += time.Duration(rand.Int63n(jitter))
	}
	return wait
}

func invalidArg(msg string) error {
	return fmt.Errorf("spanmark: %s", msg)
}
