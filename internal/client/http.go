package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/amilaanjanab/voidstream/internal/settings"
)

// HTTPClient makes REST calls to a voidstream server.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a client targeting the given base URL (e.g. "http://127.0.0.1:8000").
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		// The folder picker blocks until the user closes the dialog.
		client: &http.Client{Timeout: 5 * time.Minute},
	}
}

// GetConfig fetches /config.
func (c *HTTPClient) GetConfig(ctx context.Context) (settings.Settings, error) {
	var s settings.Settings
	err := c.do(ctx, http.MethodGet, "/config", nil, &s)
	return s, err
}

// SetConfig posts a partial settings document and returns the merged result.
func (c *HTTPClient) SetConfig(ctx context.Context, p settings.Partial) (settings.Settings, error) {
	var s settings.Settings
	err := c.do(ctx, http.MethodPost, "/config", p, &s)
	return s, err
}

// ChangeFolder opens the server-side folder picker.
func (c *HTTPClient) ChangeFolder(ctx context.Context) (FolderResult, error) {
	var out FolderResult
	err := c.do(ctx, http.MethodPost, "/change_folder", nil, &out)
	return out, err
}

// OpenFolder reveals the download folder on the server host.
func (c *HTTPClient) OpenFolder(ctx context.Context) (FolderResult, error) {
	var out FolderResult
	err := c.do(ctx, http.MethodPost, "/open_folder", nil, &out)
	return out, err
}

// Sessions fetches /api/sessions.
func (c *HTTPClient) Sessions(ctx context.Context) ([]ActiveSession, error) {
	var out []ActiveSession
	err := c.do(ctx, http.MethodGet, "/api/sessions", nil, &out)
	return out, err
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, bytes.TrimSpace(respBody))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *HTTPClient) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
