package apiclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/transparencia-br/fiscal/pkg/models"
)

// maxResponseBytes caps how much of a response body is read. Government
// transparency portals occasionally return multi-hundred-MB dumps for
// unfiltered queries.
const maxResponseBytes = 16 << 20

// HTTPClient adapts a JSON-over-HTTP government API to the Client
// capability. Params are sent as query-string values; the method names the
// resource path relative to BaseURL.
type HTTPClient struct {
	endpointID string
	baseURL    string
	httpClient *http.Client
	headers    map[string]string
	now        func() time.Time
}

// HTTPOption customizes an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHeaders sets static request headers (API keys travel here; they are
// never echoed into results or errors).
func WithHeaders(h map[string]string) HTTPOption {
	return func(c *HTTPClient) { c.headers = h }
}

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) { c.httpClient = hc }
}

// WithClock overrides the fetch timestamp source (tests).
func WithClock(now func() time.Time) HTTPOption {
	return func(c *HTTPClient) { c.now = now }
}

// NewHTTPClient builds a capability client for one registered endpoint.
func NewHTTPClient(endpointID, baseURL string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		endpointID: endpointID,
		baseURL:    baseURL,
		httpClient: &http.Client{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invoke implements Client. Status codes are mapped to the classified error
// taxonomy; a Retry-After header on 429 responses is propagated.
func (c *HTTPClient) Invoke(ctx context.Context, method string, params map[string]any) (*models.RawResult, error) {
	u, err := url.Parse(c.baseURL + "/" + method)
	if err != nil {
		return nil, NewError(KindInvalidRequest, c.endpointID, fmt.Sprintf("bad request URL: %v", err), err)
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, fmt.Sprintf("%v", v))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, NewError(KindInvalidRequest, c.endpointID, fmt.Sprintf("build request: %v", err), err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if kindErr := c.classifyStatus(resp); kindErr != nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, kindErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.classifyTransportError(err)
	}

	return &models.RawResult{
		SourceEndpointID: c.endpointID,
		FetchedAt:        c.now().UTC(),
		Payload:          body,
	}, nil
}

func (c *HTTPClient) classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return NewError(KindCancelled, c.endpointID, "request cancelled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindTimeout, c.endpointID, "request deadline exceeded", err)
	}
	return NewError(KindTransientFailure, c.endpointID, err.Error(), err)
}

func (c *HTTPClient) classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode < 400:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return NewError(KindAuthenticationFailed, c.endpointID,
			fmt.Sprintf("authentication failed (%d)", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusNotFound:
		return NewError(KindNotFound, c.endpointID, "resource not found", nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		e := NewError(KindRateLimited, c.endpointID, "rate limited by endpoint", nil)
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				e.RetryAfter = time.Duration(secs) * time.Second
			}
		}
		return e
	case resp.StatusCode >= 500:
		return NewError(KindTransientFailure, c.endpointID,
			fmt.Sprintf("server error (%d)", resp.StatusCode), nil)
	default:
		return NewError(KindInvalidRequest, c.endpointID,
			fmt.Sprintf("request rejected (%d)", resp.StatusCode), nil)
	}
}
