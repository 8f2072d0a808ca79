package client

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

	"github.com/BinJu/train/pkg/api"
)

// DefaultTimeout bounds every request made by the client
const DefaultTimeout = 30 * time.Second

// APIError is returned for non-2xx responses
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("train api: %d %s", e.StatusCode, e.Message)
}

// Client talks to a Train server over HTTP. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at addr. addr may be a bare
// host:port, in which case http is assumed.
func NewClient(addr string) *Client {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &Client{
		baseURL:    strings.TrimRight(addr, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// WithTimeout sets a custom request timeout
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.httpClient.Timeout = timeout
	return c
}

// Apply creates or updates an artifact from a YAML spec document
func (c *Client) Apply(ctx context.Context, spec []byte) (*api.ArtifactResponse, error) {
	var resp api.ArtifactResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/art", "application/yaml", bytes.NewReader(spec), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Enqueue asks the scheduler to reconsider an artifact
func (c *Client) Enqueue(ctx context.Context, artID string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/sched/"+url.PathEscape(artID), "", nil, nil)
}

// GetArtifact returns an artifact with its instances
func (c *Client) GetArtifact(ctx context.Context, artID string) (*api.ArtifactResponse, error) {
	var resp api.ArtifactResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/art/"+url.PathEscape(artID), "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListArtifacts returns a summary of every artifact
func (c *Client) ListArtifacts(ctx context.Context) ([]api.ArtifactSummary, error) {
	var resp []api.ArtifactSummary
	if err := c.do(ctx, http.MethodGet, "/api/v1/art", "", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// DeleteArtifact tears an artifact down
func (c *Client) DeleteArtifact(ctx context.Context, artID string) (*api.TeardownResponse, error) {
	var resp api.TeardownResponse
	if err := c.do(ctx, http.MethodDelete, "/api/v1/art/"+url.PathEscape(artID), "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Borrow claims a clean instance of an artifact
func (c *Client) Borrow(ctx context.Context, artID string) (*api.BorrowResponse, error) {
	var resp api.BorrowResponse
	if err := c.do(ctx, http.MethodPut, "/api/v1/art/"+url.PathEscape(artID)+"/borrow", "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateSecret stores a named secret
func (c *Client) CreateSecret(ctx context.Context, name string, data map[string]string) (*api.SecretSummary, error) {
	var resp api.SecretSummary
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/secret", api.CredentialRequest{Name: name, Data: data}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListSecrets returns the stored secrets without their data
func (c *Client) ListSecrets(ctx context.Context) ([]api.SecretSummary, error) {
	var resp []api.SecretSummary
	if err := c.do(ctx, http.MethodGet, "/api/v1/secret", "", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// CreateAccount stores an account pool of total interchangeable units
func (c *Client) CreateAccount(ctx context.Context, name string, total int, data map[string]string) (*api.AccountSummary, error) {
	var resp api.AccountSummary
	req := api.CredentialRequest{Name: name, Total: total, Data: data}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/account", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListAccounts returns the account pools and their stock
func (c *Client) ListAccounts(ctx context.Context) ([]api.AccountSummary, error) {
	var resp []api.AccountSummary
	if err := c.do(ctx, http.MethodGet, "/api/v1/account", "", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return c.do(ctx, method, path, "application/json", bytes.NewReader(data), out)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e api.ErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
