package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// APIError is a non-2xx response decoded into the portal's error shape.
type APIError struct {
	Status    int
	Message   string
	Fields    map[string]string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("portal: %s (status %d)", e.Message, e.Status)
	}
	return fmt.Sprintf("portal: unexpected status %d", e.Status)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// FieldsOf extracts the field error map, if any.
func FieldsOf(err error) (map[string]string, bool) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || len(apiErr.Fields) == 0 {
		return nil, false
	}
	return apiErr.Fields, true
}

// Client talks to the portal API, attaching the stored access token to
// every request.
type Client struct {
	baseURL string
	httpc   *http.Client
	store   TokenStore
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) {
		if httpc != nil {
			c.httpc = httpc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpc.Timeout = d
		}
	}
}

func New(baseURL string, store TokenStore, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: defaultTimeout},
		store:   store,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store exposes the token store, for the resolver and guards.
func (c *Client) Store() TokenStore { return c.store }

// doJSON issues a JSON request and decodes a JSON response into out.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

// doForm issues a multipart request built by the caller.
func (c *Client) doForm(ctx context.Context, method, path string, body *bytes.Buffer, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	st, err := c.store.Load()
	if err == nil && st.Access != "" {
		req.Header.Set("Authorization", "Bearer "+st.Access)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("portal request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var payload struct {
		Error     string            `json:"error"`
		Fields    map[string]string `json:"fields"`
		RequestID string            `json:"request_id"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if json.Unmarshal(data, &payload) == nil {
		apiErr.Message = payload.Error
		apiErr.Fields = payload.Fields
		apiErr.RequestID = payload.RequestID
	}
	return apiErr
}
