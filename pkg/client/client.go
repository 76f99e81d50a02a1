// Package client is a small HTTP client for the plugin tracker API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

type ErrorResponse struct {
	StatusCode int
	ErrorMsg   string `json:"error"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("unexpected status code: %d, error: %s", e.StatusCode, e.ErrorMsg)
}

// PluginRef is one entry of a plugin listing.
type PluginRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Client struct {
	trackerURL string
	httpClient *http.Client
}

func New(trackerURL string) *Client {
	return &Client{
		trackerURL: trackerURL,
		httpClient: &http.Client{
			Timeout: time.Minute,
		},
	}
}

func setAuth(token string) func(r *http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func getPluginURL(pluginID string) string {
	return fmt.Sprintf("plugins/%s", pluginID)
}

func (c *Client) sendRequest(ctx context.Context, method, endpoint string, body io.Reader, modifyRequestFns ...func(r *http.Request)) (*http.Response, error) {
	apiEndpoint, err := url.JoinPath(c.trackerURL, endpoint)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, apiEndpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json; charset=utf-8")
	for _, f := range modifyRequestFns {
		f(req)
	}
	return c.httpClient.Do(req)
}

func (c *Client) decodeResponse(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		errResp := ErrorResponse{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
			return err
		}
		return &errResp
	}
	if v == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) sendJSON(ctx context.Context, method, endpoint, token string, payload, v any) error {
	var body io.Reader
	if payload != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(payload); err != nil {
			return err
		}
		body = &buf
	}
	resp, err := c.sendRequest(ctx, method, endpoint, body, setAuth(token))
	if err != nil {
		return err
	}
	return c.decodeResponse(resp, v)
}

// ListPlugins lists plugins matching the given query parameters.
func (c *Client) ListPlugins(ctx context.Context, params url.Values) ([]PluginRef, error) {
	resp, err := c.sendRequest(ctx, http.MethodGet, "plugins", nil, func(r *http.Request) {
		r.URL.RawQuery = params.Encode()
	})
	if err != nil {
		return nil, err
	}
	var plugins []PluginRef
	if err := c.decodeResponse(resp, &plugins); err != nil {
		return nil, err
	}
	return plugins, nil
}

// GetPlugin returns the normalized document of a single plugin.
func (c *Client) GetPlugin(ctx context.Context, pluginID string) (map[string]any, error) {
	resp, err := c.sendRequest(ctx, http.MethodGet, getPluginURL(pluginID), nil)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := c.decodeResponse(resp, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// CreatePlugin registers a plugin and returns its assigned id.
func (c *Client) CreatePlugin(ctx context.Context, token string, p any) (string, error) {
	var res struct {
		ID string `json:"id"`
	}
	err := c.sendJSON(ctx, http.MethodPost, "plugins", token, p, &res)
	return res.ID, err
}

// DeletePlugin removes a plugin.
func (c *Client) DeletePlugin(ctx context.Context, token, pluginID string) error {
	return c.sendJSON(ctx, http.MethodDelete, getPluginURL(pluginID), token, nil, nil)
}

// AddUpdate appends an update entry to a plugin.
func (c *Client) AddUpdate(ctx context.Context, token, pluginID string, update any) error {
	return c.sendJSON(ctx, http.MethodPost, getPluginURL(pluginID)+"/updates", token, update, nil)
}

// SyncPlugin triggers a release sync and returns the synced version.
func (c *Client) SyncPlugin(ctx context.Context, token, pluginID string) (string, error) {
	var res struct {
		Version string `json:"version"`
	}
	err := c.sendJSON(ctx, http.MethodPost, getPluginURL(pluginID)+"/sync", token, nil, &res)
	return res.Version, err
}
