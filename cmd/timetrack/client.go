package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"tools.zach/dev/timetrack/internal/activity"
	"tools.zach/dev/timetrack/internal/api"
)

// ///////////////////////////////////////////////
// API Client
// ///////////////////////////////////////////////

// errDaemonDown wraps connection failures so commands can suggest `run`.
var errDaemonDown = errors.New("daemon is not reachable; is `timetrack run` active?")

// apiClient talks to a running daemon's control API.
type apiClient struct {
	base string
	http *retryablehttp.Client
}

// newAPIClient targets the daemon listening on listen. Wildcard hosts are
// dialed on loopback.
func newAPIClient(listen string) *apiClient {
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.RetryWaitMin = 200 * time.Millisecond
	c.RetryWaitMax = time.Second
	c.HTTPClient.Timeout = 20 * time.Second
	c.Logger = nil
	// Status codes are answers, not transient failures; only retry the dial.
	c.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if err == nil {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	return &apiClient{base: baseURL(listen), http: c}
}

func baseURL(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// Status fetches GET /status.
func (c *apiClient) Status(ctx context.Context) (api.StatusResponse, error) {
	var out api.StatusResponse
	err := c.do(ctx, http.MethodGet, "/status", nil, &out)
	return out, err
}

func (c *apiClient) Toggle(ctx context.Context) (bool, error) {
	var out api.TrackingState
	err := c.do(ctx, http.MethodPost, "/tracking/toggle", nil, &out)
	return out.Tracking, err
}

func (c *apiClient) SetTracking(ctx context.Context, on bool) (bool, error) {
	var out api.TrackingState
	err := c.do(ctx, http.MethodPut, "/tracking", api.TrackingState{Tracking: on}, &out)
	return out.Tracking, err
}

// Confirm applies code to sessionID.
func (c *apiClient) Confirm(ctx context.Context, sessionID, code string) error {
	return c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/confirm", api.ConfirmRequest{Code: code}, nil)
}

// Sessions runs a reporting query. Empty strings leave a bound unset.
func (c *apiClient) Sessions(ctx context.Context, q url.Values) ([]activity.Session, error) {
	var out []activity.Session
	path := "/sessions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// do sends body as JSON and decodes a 2xx response into out. Error responses
// carry the server's message.
func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = bytes.NewReader(data)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.base+path, payload)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return fmt.Errorf("%w (%v)", errDaemonDown, err)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%s (HTTP %d)", e.Error, resp.StatusCode)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
