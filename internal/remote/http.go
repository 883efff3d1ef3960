package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dmitrijs2005/datakeeper/internal/common"
)

const (
	defaultRequestTimeout = 10 * time.Second
	maxRetryElapsed       = 15 * time.Second
	updatedAtHeader       = "X-Updated-At"
)

// HTTPClient implements Client over a JSON/HTTP API:
//
//	POST   {base}/collections/{store}/records/{id}
//	PUT    {base}/collections/{store}/records/{id}
//	DELETE {base}/collections/{store}/records/{id}
//	HEAD   {base}/collections/{store}/records/{id}
//	GET    {base}/ping
//
// Recoverable failures (network errors, 5xx, 408, 429) are retried with
// exponential backoff; other 4xx responses fail immediately.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient returns a client for the endpoint at baseURL. token, when
// non-empty, is sent as an opaque bearer token.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: defaultRequestTimeout},
	}
}

func (c *HTTPClient) recordURL(store, id string) string {
	return fmt.Sprintf("%s/collections/%s/records/%s", c.baseURL, store, id)
}

func (c *HTTPClient) Create(ctx context.Context, store, id string, payload json.RawMessage) error {
	return c.send(ctx, http.MethodPost, c.recordURL(store, id), payload)
}

func (c *HTTPClient) Update(ctx context.Context, store, id string, payload json.RawMessage) error {
	return c.send(ctx, http.MethodPut, c.recordURL(store, id), payload)
}

func (c *HTTPClient) Delete(ctx context.Context, store, id string) error {
	return c.send(ctx, http.MethodDelete, c.recordURL(store, id), nil)
}

func (c *HTTPClient) Head(ctx context.Context, store, id string) (time.Time, error) {
	var updated time.Time

	op := func() error {
		resp, err := c.do(ctx, http.MethodHead, c.recordURL(store, id), nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(common.ErrorNotFound)
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			t, err := time.Parse(time.RFC3339, resp.Header.Get(updatedAtHeader))
			if err != nil {
				return backoff.Permanent(fmt.Errorf("bad %s header: %w", updatedAtHeader, err))
			}
			updated = t
			return nil
		default:
			return classifyStatus(resp.StatusCode)
		}
	}

	if err := backoff.Retry(op, c.newBackOff(ctx)); err != nil {
		return time.Time{}, err
	}
	return updated, nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/ping", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ping failed: %s", resp.Status)
	}
	return nil
}

// send performs a mutating request with retry on recoverable failures.
func (c *HTTPClient) send(ctx context.Context, method, url string, body []byte) error {
	op := func() error {
		resp, err := c.do(ctx, method, url, body)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err = fmt.Errorf("%s %s: %s: %s", method, url, resp.Status, bytes.TrimSpace(msg))
		if isRecoverable(resp.StatusCode) {
			return err
		}
		return backoff.Permanent(err)
	}
	return backoff.Retry(op, c.newBackOff(ctx))
}

func (c *HTTPClient) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.client.Do(req)
}

func (c *HTTPClient) newBackOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxRetryElapsed
	return backoff.WithContext(bo, ctx)
}

// isRecoverable reports whether a status code is worth retrying: server
// errors and throttling are, other client errors are not.
func isRecoverable(status int) bool {
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	case status >= 500:
		return true
	default:
		return false
	}
}

func classifyStatus(status int) error {
	err := fmt.Errorf("unexpected status %d", status)
	if isRecoverable(status) {
		return err
	}
	return backoff.Permanent(err)
}
