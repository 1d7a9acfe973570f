package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("server returned %d (%s): %s", e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Client talks to a running kotae server on behalf of one owner.
type Client struct {
	baseURL     string
	owner       string
	ownerHeader string
	http        *http.Client
}

// NewClient returns a client for the server at baseURL. The HTTP client has
// no overall timeout so chat streams are not cut short; use the context.
func NewClient(baseURL, owner, ownerHeader string) *Client {
	if ownerHeader == "" {
		ownerHeader = "X-User-ID"
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		owner:       owner,
		ownerHeader: ownerHeader,
		http:        &http.Client{},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.owner != "" {
		req.Header.Set(c.ownerHeader, c.owner)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(b))}
	var eb struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	if json.Unmarshal(b, &eb) == nil && eb.Error != "" {
		apiErr.Kind, apiErr.Message = eb.Kind, eb.Error
	}
	return nil, apiErr
}

func (c *Client) getJSON(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Status fetches GET /api/v1/status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var st StatusResponse
	if err := c.getJSON(ctx, http.MethodGet, "/api/v1/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Retrieve runs POST /api/v1/retrieve.
func (c *Client) Retrieve(ctx context.Context, q *models.RetrieveQuery) (*RetrieveResponse, error) {
	var res RetrieveResponse
	if err := c.getJSON(ctx, http.MethodPost, "/api/v1/retrieve", q, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Chat sends one chat turn and copies the streamed answer to out.
func (c *Client) Chat(ctx context.Context, req *models.ChatRequest, out io.Writer) (*ChatResult, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/chat/stream", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return CopyChat(resp.Body, out)
}

// InboxDirectories lists the watched inbox directories.
func (c *Client) InboxDirectories(ctx context.Context) ([]string, error) {
	var out struct {
		Directories []string `json:"directories"`
	}
	if err := c.getJSON(ctx, http.MethodGet, "/api/v1/inbox/directories", nil, &out); err != nil {
		return nil, err
	}
	return out.Directories, nil
}

// AddInboxDirectory starts watching path on the server.
func (c *Client) AddInboxDirectory(ctx context.Context, path string) error {
	return c.getJSON(ctx, http.MethodPost, "/api/v1/inbox/directories", map[string]string{"path": path}, nil)
}

// RemoveInboxDirectory stops watching path on the server.
func (c *Client) RemoveInboxDirectory(ctx context.Context, path string) error {
	return c.getJSON(ctx, http.MethodDelete, "/api/v1/inbox/directories?path="+url.QueryEscape(path), nil, nil)
}
