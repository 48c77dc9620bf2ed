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
	"strings"
	"time"

	"github.com/jmerrifield20/riskengine/internal/assets/model"
	"github.com/jmerrifield20/riskengine/internal/risk"
)

// ErrNotFound is returned when the server answers 404.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response other than 404.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.StatusCode, e.Message)
}

// HeartbeatResult is the outcome of Heartbeat.
type HeartbeatResult struct {
	Asset     *model.Asset       `json:"asset"`
	Action    model.UpsertAction `json:"action"`
	RiskScore int                `json:"risk_score"`
}

// ScoreResult is the outcome of Score.
type ScoreResult struct {
	RiskScore     int                  `json:"risk_score"`
	RiskFactors   model.RiskFactors    `json:"risk_factors"`
	Status        model.AssetStatus    `json:"status"`
	Level         risk.Level           `json:"level"`
	VectorContext *model.VectorContext `json:"vector_context,omitempty"`
}

// AssetQuery filters ListAssets. Empty fields match everything.
type AssetQuery struct {
	Status string
	Type   string
	Search string
}

// Client talks to a risk engine server.
type Client struct {
	base       string
	userID     string
	httpClient *http.Client
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("nil http client")
		}
		c.httpClient = hc
		return nil
	}
}

// WithUserID sets the owner sent as X-User-ID on every request.
func WithUserID(id string) Option {
	return func(c *Client) error {
		c.userID = id
		return nil
	}
}

// WithTimeout sets the timeout of non-streaming requests.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.httpClient.Timeout = d
		return nil
	}
}

// New creates a Client for the server at base.
//
//	c, err := client.New("http://localhost:8080", client.WithUserID("u-123"))
func New(base string, opts ...Option) (*Client, error) {
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Heartbeat submits agent telemetry and returns the scored asset.
func (c *Client) Heartbeat(ctx context.Context, p *model.HeartbeatPayload) (*HeartbeatResult, error) {
	var out HeartbeatResult
	if err := c.call(ctx, http.MethodPost, "/api/v1/assets/heartbeat", nil, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Score scores a payload without storing it.
func (c *Client) Score(ctx context.Context, p *model.HeartbeatPayload) (*ScoreResult, error) {
	var out ScoreResult
	if err := c.call(ctx, http.MethodPost, "/api/v1/score", nil, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAssets returns the owner's assets, highest risk first.
func (c *Client) ListAssets(ctx context.Context, q AssetQuery) ([]*model.Asset, error) {
	params := url.Values{}
	if c.userID != "" {
		params.Set("user_id", c.userID)
	}
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	if q.Type != "" {
		params.Set("type", q.Type)
	}
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	var out struct {
		Assets []*model.Asset `json:"assets"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/assets", params, nil, &out); err != nil {
		return nil, err
	}
	return out.Assets, nil
}

// GetAsset returns one asset by ID.
func (c *Client) GetAsset(ctx context.Context, id string) (*model.Asset, error) {
	var out struct {
		Asset *model.Asset `json:"asset"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/assets/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Asset, nil
}

// DeleteAsset removes one asset by ID.
func (c *Client) DeleteAsset(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/api/v1/assets/"+url.PathEscape(id), nil, nil, nil)
}

// GetScan returns a scan record.
func (c *Client) GetScan(ctx context.Context, id string) (*model.AssetScan, error) {
	var out struct {
		Scan *model.AssetScan `json:"scan"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/scans/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Scan, nil
}

// CancelScan asks the server to stop a running scan.
func (c *Client) CancelScan(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodPost, "/api/v1/scans/"+url.PathEscape(id)+"/cancel", nil, nil, nil)
}

// call sends a JSON request and decodes a JSON response into out.
func (c *Client) call(ctx context.Context, method, path string, params url.Values, in, out any) error {
	req, err := c.newRequest(ctx, method, path, params, in)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(c.httpClient, req)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, params url.Values, in any) (*http.Request, error) {
	u := c.base + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}
	return req, nil
}

// do executes req and returns the body of a 2xx response.
func (c *Client) do(hc *http.Client, req *http.Request) ([]byte, error) {
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkStatus(resp.StatusCode, body, req.URL.Path); err != nil {
		return nil, err
	}
	return body, nil
}

func checkStatus(code int, body []byte, path string) error {
	if code == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if code >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: code, Message: msg}
	}
	return nil
}
