package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rmax-ai/facetgraph/pkg/graph"
)

// Client is the facetgraph API client.
type Client struct {
	endpoint   string
	http       *http.Client
	backoff    BackoffStrategy
	maxRetries int
}

// Option configures a Client.
type Option func(*Client)

// WithBackoff replaces the retry strategy. maxRetries of zero disables retries.
func WithBackoff(b BackoffStrategy, maxRetries int) Option {
	return func(c *Client) {
		c.backoff = b
		c.maxRetries = maxRetries
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// NewClient creates a new facetgraph client.
// endpoint defaults to "http://127.0.0.1:8090" if empty.
func NewClient(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = "http://127.0.0.1:8090"
	}
	c := &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		backoff:    DefaultBackoff(),
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do sends one request, retrying while the daemon reports itself unavailable. A nil out
// discards the body.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	body, err := c.raw(ctx, method, path, in)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) raw(ctx context.Context, method, path string, in any) ([]byte, error) {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 300 {
			return body, nil
		}

		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(body, apiErr)
		if !retryable(resp.StatusCode) || attempt >= c.maxRetries {
			return nil, apiErr
		}
		if err := sleep(ctx, c.backoff.Next(attempt)); err != nil {
			return nil, errors.Join(apiErr, err)
		}
	}
}

// BuildGraph asks for one graph of a session.
func (c *Client) BuildGraph(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	if req.SessionID == "" || req.StudyID == "" || req.DatasetID == "" || req.SearchID == "" {
		return nil, fmt.Errorf("invalid build request: missing required fields")
	}
	var res BuildResult
	if err := c.do(ctx, http.MethodPost, "/v1/graphs", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// TrimGraph restricts a session to the given entries.
func (c *Client) TrimGraph(ctx context.Context, req TrimRequest) (*graph.View, error) {
	var res GraphResponse
	if err := c.do(ctx, http.MethodPost, "/v1/graphs/trim", req, &res); err != nil {
		return nil, err
	}
	return res.Graph, nil
}

// GetGraph fetches the cached view of a session.
func (c *Client) GetGraph(ctx context.Context, sessionID string, t graph.GraphType) (*graph.View, error) {
	path := fmt.Sprintf("/v1/sessions/%s/graph?type=%s", url.PathEscape(sessionID), url.QueryEscape(string(t)))
	var res GraphResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return res.Graph, nil
}

// GetHistory lists the history entries of a study in append order.
func (c *Client) GetHistory(ctx context.Context, studyID string) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	if err := c.do(ctx, http.MethodGet, "/v1/studies/"+url.PathEscape(studyID)+"/history", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// DeleteHistory removes an entry and its descendants.
func (c *Client) DeleteHistory(ctx context.Context, studyID, entryID string) error {
	path := fmt.Sprintf("/v1/studies/%s/history/%s", url.PathEscape(studyID), url.PathEscape(entryID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// AddComment attaches a note to a history entry.
func (c *Client) AddComment(ctx context.Context, studyID, entryID, author, body string) (*Comment, error) {
	path := fmt.Sprintf("/v1/studies/%s/history/%s/comments", url.PathEscape(studyID), url.PathEscape(entryID))
	var comment Comment
	in := map[string]string{"author": author, "body": body}
	if err := c.do(ctx, http.MethodPost, path, in, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// Restore loads the snapshot archived with an entry into a session.
func (c *Client) Restore(ctx context.Context, studyID, entryID, sessionID string) (*graph.View, error) {
	path := fmt.Sprintf("/v1/studies/%s/history/%s/restore", url.PathEscape(studyID), url.PathEscape(entryID))
	var res GraphResponse
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"session_id": sessionID}, &res); err != nil {
		return nil, err
	}
	return res.Graph, nil
}

// Report downloads a CSV report of a session.
func (c *Client) Report(ctx context.Context, sessionID, reportType string, t graph.GraphType) ([]byte, error) {
	q := url.Values{"type": {reportType}}
	if t != "" {
		q.Set("graph", string(t))
	}
	return c.raw(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(sessionID)+"/reports?"+q.Encode(), nil)
}

// Ping checks the health of the daemon.
func (c *Client) Ping(ctx context.Context) (Status, error) {
	var status Status
	err := c.do(ctx, http.MethodGet, "/v1/health", nil, &status)
	return status, err
}
