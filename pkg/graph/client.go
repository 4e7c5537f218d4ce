package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Client provides methods to interact with the Graph REST API.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     *slog.Logger

	// Rate limiter (nil if unlimited)
	limiter *rate.Limiter
}

// NewClient creates a new Graph API client with the given configuration.
func NewClient(config Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	c := &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		config: config,
		logger: logger.With("component", "graph-client"),
	}
	if config.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}
	return c
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// errorBody is the Graph error envelope.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// page is the OData collection envelope.
type page[T any] struct {
	Value    []T    `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

// do executes a request against path (relative to BaseURL, or an absolute
// nextLink URL) and decodes the response into out when out is non-nil.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	if c.config.Token == "" {
		return WrapError(op, ErrNotAuthenticated)
	}

	url := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		url = c.config.BaseURL + path
	}
	logger := c.logger.With("op", op, "method", method, "url", url)

	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return WrapError(op, fmt.Errorf("marshaling request: %w", err))
		}
		body = b
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.config.RetryDelay * time.Duration(math.Pow(2, float64(attempt-1)))
			logger.Debug("retrying after delay", "attempt", attempt, "delay", delay)

			select {
			case <-ctx.Done():
				return WrapError(op, ctx.Err())
			case <-time.After(delay):
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return WrapError(op, err)
			}
		}

		respBody, err := c.doRequest(ctx, method, url, body)
		if err != nil {
			lastErr = err
			if !IsRetryable(err) {
				return WrapError(op, err)
			}
			logger.Debug("request failed, will retry", "error", err, "attempt", attempt)
			continue
		}

		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return WrapError(op, fmt.Errorf("unmarshaling response: %w", err))
			}
		}
		logger.Debug("request successful")
		return nil
	}

	return WrapError(op, fmt.Errorf("all retries exhausted: %w", lastErr))
}

// doRequest performs a single HTTP request and returns the body of a 2xx
// response.
func (c *Client) doRequest(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.config.Token)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		httpErr := &HTTPError{StatusCode: httpResp.StatusCode, Body: string(respBody)}
		var eb errorBody
		if json.Unmarshal(respBody, &eb) == nil && eb.Error.Code != "" {
			httpErr.Code = eb.Error.Code
			httpErr.Message = eb.Error.Message
		}
		return nil, httpErr
	}

	return respBody, nil
}

// listAll follows @odata.nextLink until the collection is exhausted.
func listAll[T any](ctx context.Context, c *Client, op, path string) ([]T, error) {
	var out []T
	next := path
	for next != "" {
		var p page[T]
		if err := c.do(ctx, op, http.MethodGet, next, nil, &p); err != nil {
			return nil, err
		}
		out = append(out, p.Value...)
		next = p.NextLink
	}
	return out, nil
}
