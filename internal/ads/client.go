// Package ads talks to the AdsPower local API that owns the browser profiles.
package ads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"jordanella.com/tapfarm/internal/accounts"
	"jordanella.com/tapfarm/internal/logging"
)

const (
	DefaultBaseURL    = "http://local.adspower.net:50325"
	apiVersion        = "v1"
	defaultTimeout    = 60 * time.Second
	generalProfileTag = "General"
)

// ErrNoGeneralProfile means no profile name contains "General"
var ErrNoGeneralProfile = errors.New(`no "General" profile found, create one in AdsPower first`)

// APIError is a response whose code is not zero
type APIError struct {
	Endpoint string
	Code     int
	Msg      string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("adspower %s: code %d: %s", e.Endpoint, e.Code, e.Msg)
}

// OpenResponse is the browser/start payload
type OpenResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		WS struct {
			Puppeteer string `json:"puppeteer"`
			Selenium  string `json:"selenium"`
		} `json:"ws"`
		DebugPort string `json:"debug_port"`
		Webdriver string `json:"webdriver"`
	} `json:"data"`
}

// Endpoint returns the DevTools websocket URL, empty when absent
func (r *OpenResponse) Endpoint() string {
	if r == nil {
		return ""
	}
	return r.Data.WS.Puppeteer
}

// Profile is one entry of user/list
type Profile struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	GroupID string `json:"group_id"`
}

// Client is a rate limited AdsPower API client
type Client struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      *logging.Logger
}

// NewClient creates a client; requestsPerSecond <= 0 disables limiting
func NewClient(baseURL string, requestsPerSecond float64, logger *logging.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: defaultTimeout},
		rateLimiter: rate.NewLimiter(limit, 1),
		logger:      logger,
	}
}

// GeneralProfile returns the id of the first profile whose name contains "General"
func (c *Client) GeneralProfile(ctx context.Context) (string, error) {
	var data struct {
		List []Profile `json:"list"`
	}
	query := url.Values{"page": {"1"}, "page_size": {"10"}}
	if err := c.call(ctx, http.MethodGet, "user/list", query, nil, &data); err != nil {
		return "", fmt.Errorf("error fetching profiles: %w", err)
	}

	for _, p := range data.List {
		if strings.Contains(p.Name, generalProfileTag) {
			return p.UserID, nil
		}
	}
	return "", ErrNoGeneralProfile
}

// UpdateProxy points the profile's egress at proxy
func (c *Client) UpdateProxy(ctx context.Context, profileID string, proxy accounts.Proxy) error {
	body := map[string]interface{}{
		"user_id": profileID,
		"user_proxy_config": map[string]string{
			"proxy_soft":     proxy.Soft,
			"proxy_type":     proxy.Type,
			"proxy_host":     proxy.Host,
			"proxy_port":     proxy.Port,
			"proxy_user":     proxy.User,
			"proxy_password": proxy.Password,
		},
	}
	if err := c.call(ctx, http.MethodPost, "user/update", nil, body, nil); err != nil {
		return fmt.Errorf("update proxy: %w", err)
	}
	c.logger.DebugWithContext("Proxy updated", map[string]interface{}{
		"profile_id": profileID,
		"proxy":      proxy.String(),
	})
	return nil
}

// OpenBrowser starts the profile's browser. An API error code is returned as a
// response without endpoint, not as an error.
func (c *Client) OpenBrowser(ctx context.Context, profileID string) (*OpenResponse, error) {
	var resp OpenResponse
	if err := c.do(ctx, http.MethodGet, c.endpoint("browser/start", url.Values{"user_id": {profileID}}), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StopBrowser closes the profile's browser
func (c *Client) StopBrowser(ctx context.Context, profileID string) error {
	return c.call(ctx, http.MethodGet, "browser/stop", url.Values{"user_id": {profileID}}, nil, nil)
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := fmt.Sprintf("%s/api/%s/%s", c.baseURL, apiVersion, path)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// call performs a request and unwraps the {code, msg, data} envelope into data
func (c *Client) call(ctx context.Context, method, path string, query url.Values, body, data interface{}) error {
	var envelope struct {
		Code int             `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := c.do(ctx, method, c.endpoint(path, query), body, &envelope); err != nil {
		return err
	}
	if envelope.Code != 0 {
		return &APIError{Endpoint: path, Code: envelope.Code, Msg: envelope.Msg}
	}
	if data != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, data); err != nil {
			return fmt.Errorf("decode %s data: %w", path, err)
		}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out interface{}) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = strings.NewReader(string(payload))
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
