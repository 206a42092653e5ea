package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// StatusError is a non-2xx reply from the server.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Code, http.StatusText(e.Code))
}

type Config struct {
	BaseURL string
	Room    string
	// Timeout bounds each request. Zero means no limit.
	Timeout time.Duration
}

// Client talks to the parameter/result server on behalf of one room.
type Client struct {
	Config
	hc *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported base url %q", cfg.BaseURL)
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &Client{Config: cfg, hc: &http.Client{Timeout: cfg.Timeout}}, nil
}

func (c *Client) endpoint(name string) string {
	return c.BaseURL + "/" + name + "?room=" + url.QueryEscape(c.Room)
}

func (c *Client) do(ctx context.Context, method, name string, body []byte) ([]byte, error) {
	u := c.endpoint(name)
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return b, &StatusError{Method: method, URL: u, Code: resp.StatusCode}
	}
	return b, nil
}

// CreateRoom registers the room. The reply is ignored.
func (c *Client) CreateRoom(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "create_room", nil)
	return err
}

// Params fetches and parses the room's current parameters.
func (c *Client) Params(ctx context.Context) (*RemoteParams, error) {
	b, err := c.do(ctx, http.MethodGet, "params", nil)
	if err != nil {
		return nil, err
	}
	return ParseParams(b)
}

// PostResult uploads one sweep.
func (c *Client) PostResult(ctx context.Context, res *ResultPayload) error {
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, "result", b)
	return err
}

func (c *Client) Close() error {
	c.hc.CloseIdleConnections()
	return nil
}
