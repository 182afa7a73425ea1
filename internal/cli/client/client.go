package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ccheshirecat/renderd/internal/renderer"
	rendererevents "github.com/ccheshirecat/renderd/internal/renderer/events"
)

// Client wraps REST access to the renderd API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// New creates a client with the provided base URL (e.g. http://127.0.0.1:7070).
func New(rawURL string) (*Client, error) {
	if rawURL == "" {
		rawURL = "http://127.0.0.1:7070"
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("client: parse url: %w", err)
	}
	return &Client{
		baseURL: parsed,
		// Renders block until the page settles; leave the bound to the
		// request context.
		httpClient: &http.Client{},
	}, nil
}

// RenderRequest mirrors the API render payload.
type RenderRequest = renderer.Request

// RenderResult mirrors the API render response.
type RenderResult = renderer.Result

// Job represents the API response for a render job.
type Job struct {
	ID          int64      `json:"id"`
	URL         string     `json:"url"`
	Status      string     `json:"status"`
	ReadySignal string     `json:"ready_signal,omitempty"`
	ErrorKind   string     `json:"error_kind,omitempty"`
	Error       string     `json:"error,omitempty"`
	DurationMS  int64      `json:"duration_ms"`
	HTMLBytes   int64      `json:"html_bytes"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// Status represents the API system status response.
type Status struct {
	MaxTabs         int   `json:"max_tabs"`
	ActiveRenders   int64 `json:"active_renders"`
	RenderTimeoutMS int64 `json:"render_timeout_ms"`
}

// JobEvent represents a lifecycle event streamed from the server.
type JobEvent = rendererevents.JobEvent

// Render submits a render call and waits for the document.
func (c *Client) Render(ctx context.Context, payload RenderRequest) (*RenderResult, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/render", payload)
	if err != nil {
		return nil, err
	}
	var result RenderResult
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListJobs returns recent render jobs, newest first.
func (c *Client) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	path := "/api/v1/jobs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var jobs []Job
	if err := c.do(req, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// GetJob fetches one job by id.
func (c *Client) GetJob(ctx context.Context, id int64) (*Job, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/jobs/"+strconv.FormatInt(id, 10), nil)
	if err != nil {
		return nil, err
	}
	var job Job
	if err := c.do(req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// SystemStatus fetches pool occupancy and renderer configuration.
func (c *Client) SystemStatus(ctx context.Context) (*Status, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/system/status", nil)
	if err != nil {
		return nil, err
	}
	var status Status
	if err := c.do(req, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// WatchJobEvents streams job lifecycle events over the websocket endpoint and
// invokes handler for each payload until the context is cancelled or the
// server closes the connection.
func (c *Client) WatchJobEvents(ctx context.Context, handler func(JobEvent)) error {
	wsURL := *c.baseURL
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = "/ws/v1/events"

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return fmt.Errorf("client: dial events: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var event JobEvent
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		}
		handler(event)
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	ref := &url.URL{Path: path}
	if parsed, err := url.Parse(path); err == nil {
		ref = parsed
	}
	target := c.baseURL.ResolveReference(ref)

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("client: encode payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("client: build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
			Kind  string `json:"kind,omitempty"`
		}
		data, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error != "" {
			if apiErr.Kind != "" {
				return fmt.Errorf("client: %s (%s)", apiErr.Error, apiErr.Kind)
			}
			return fmt.Errorf("client: %s", apiErr.Error)
		}
		return fmt.Errorf("client: %s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}
