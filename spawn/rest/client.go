package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client provides access to the SPAWN REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new REST API client.
// baseURL is the API origin, e.g. "https://api.spawn.example"; paths start with /api.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetHTTPClient allows setting a custom HTTP client.
func (c *Client) SetHTTPClient(client *http.Client) {
	if client != nil {
		c.httpClient = client
	}
}

// SetToken sets a bearer token sent with every request.
func (c *Client) SetToken(token string) {
	c.token = token
}

// APIError is returned for any non-2xx response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error (status %d, code %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Status == http.StatusNotFound
}

// Agent endpoints

// ListAgents returns agents matching filters, ordered by sort.
func (c *Client) ListAgents(ctx context.Context, filters AgentFilters, sort AgentSort) ([]Agent, error) {
	q := url.Values{}
	addFilter(q, "category", filters.Category)
	addFilter(q, "status", filters.Status)
	if filters.Search != "" {
		q.Set("search", filters.Search)
	}
	if sort.Field != "" {
		q.Set("sort", string(sort.Field))
		if sort.Direction != "" {
			q.Set("direction", sort.Direction)
		}
	}

	var resp []Agent
	if err := c.get(ctx, withQuery("/api/agents", q), &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetAgent returns a single agent.
func (c *Client) GetAgent(ctx context.Context, id string) (*Agent, error) {
	var resp Agent
	if err := c.get(ctx, "/api/agents/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetHeartbeats returns recent cycles of an agent, newest first.
// limit and offset are sent only when positive.
func (c *Client) GetHeartbeats(ctx context.Context, agentID string, limit, offset int) ([]Heartbeat, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}

	var resp []Heartbeat
	path := withQuery("/api/agents/"+url.PathEscape(agentID)+"/heartbeats", q)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetWallet returns the wallet of an agent.
func (c *Client) GetWallet(ctx context.Context, agentID string) (*WalletInfo, error) {
	var resp WalletInfo
	if err := c.get(ctx, "/api/agents/"+url.PathEscape(agentID)+"/wallet", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetAgentSkills returns the skills installed on an agent.
func (c *Client) GetAgentSkills(ctx context.Context, agentID string) ([]Skill, error) {
	var resp []Skill
	if err := c.get(ctx, "/api/agents/"+url.PathEscape(agentID)+"/skills", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// SpawnAgent deploys a new agent.
func (c *Client) SpawnAgent(ctx context.Context, req SpawnRequest) (*SpawnResponse, error) {
	var resp SpawnResponse
	if err := c.post(ctx, "/api/agents", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Skill endpoints

// ListSkills returns the skill catalogue. Empty category and search, or a
// category of All, are not sent.
func (c *Client) ListSkills(ctx context.Context, category, search string) ([]Skill, error) {
	q := url.Values{}
	addFilter(q, "category", category)
	if search != "" {
		q.Set("search", search)
	}

	var resp []Skill
	if err := c.get(ctx, withQuery("/api/skills", q), &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetSkill returns a single skill.
func (c *Client) GetSkill(ctx context.Context, id string) (*Skill, error) {
	var resp Skill
	if err := c.get(ctx, "/api/skills/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Helper methods

func addFilter(q url.Values, key, value string) {
	if value != "" && value != All {
		q.Set(key, value)
	}
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

func (c *Client) post(ctx context.Context, path string, body, dest any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest any) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: "API request failed"}
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil {
			if errResp.Message != "" {
				apiErr.Message = errResp.Message
			}
			apiErr.Code = errResp.Code
		}
		return apiErr
	}

	if dest != nil {
		if err := json.Unmarshal(body, dest); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
