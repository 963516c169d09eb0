// Package client provides a Go client library for the parameter API.
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

// Client is the parameter API client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// NewClient creates a new API client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// APIError is a non success response.
type APIError struct {
	StatusCode int
	Message    string
	// Data holds field errors when the server reports them.
	Data interface{}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// ListTools lists the tool ids the server knows.
func (c *Client) ListTools(ctx context.Context) ([]string, error) {
	var result struct {
		Tools []string `json:"tools"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/tools/", nil, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// BuildTool returns the tool description with its initial state.
func (c *Client) BuildTool(ctx context.Context, toolID string, workflow bool) (map[string]interface{}, error) {
	path := "/api/tools/" + url.PathEscape(toolID) + "/build"
	if workflow {
		path += "?workflow=true"
	}
	var result map[string]interface{}
	if err := c.call(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// CheckRequest checks a request against a tool and returns the populated
// state. Field errors come back as an *APIError carrying them in Data.
func (c *Client) CheckRequest(ctx context.Context, toolID string, req CheckRequest) (map[string]interface{}, error) {
	var result struct {
		State map[string]interface{} `json:"state"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/tools/"+url.PathEscape(toolID)+"/check", req, &result); err != nil {
		return nil, err
	}
	return result.State, nil
}

// ExpandRequest expands a batch request into its runs.
func (c *Client) ExpandRequest(ctx context.Context, toolID string, req ExpandRequest) (*ExpandResponse, error) {
	var result ExpandResponse
	if err := c.call(ctx, http.MethodPost, "/api/tools/"+url.PathEscape(toolID)+"/expand", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetJob returns a persisted job.
func (c *Client) GetJob(ctx context.Context, id string) (*Job, error) {
	var result Job
	if err := c.call(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetBatch returns the progress of a persisted batch.
func (c *Client) GetBatch(ctx context.Context, id string) (*BatchProgress, error) {
	var result BatchProgress
	if err := c.call(ctx, http.MethodGet, "/api/batches/"+url.PathEscape(id), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) call(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return c.httpClient.Do(req)
}

func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Message string      `json:"err_msg"`
		Data    interface{} `json:"err_data"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Message, Data: errResp.Data}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
}

// Request/Response types

// CheckRequest is the body of a check call.
type CheckRequest struct {
	Inputs      map[string]interface{} `json:"inputs"`
	InputFormat string                 `json:"input_format,omitempty"`
}

// ExpandRequest is the body of an expand call.
type ExpandRequest struct {
	Inputs      map[string]interface{} `json:"inputs"`
	InputFormat string                 `json:"input_format,omitempty"`
	Persist     bool                   `json:"persist,omitempty"`
}

// ExpandedJob is one run of an expansion.
type ExpandedJob struct {
	ID     string            `json:"id"`
	Params map[string]string `json:"params"`
}

// ExpandResponse describes the runs a request expanded into.
type ExpandResponse struct {
	BatchID      string        `json:"batch_id"`
	ToolID       string        `json:"tool_id"`
	Jobs         []ExpandedJob `json:"jobs"`
	MappedOver   string        `json:"mapped_over,omitempty"`
	MappedInputs []string      `json:"mapped_inputs,omitempty"`
	Persisted    bool          `json:"persisted"`
}

// Job is a persisted job.
type Job struct {
	ID           string            `json:"id"`
	BatchID      string            `json:"batch_id"`
	ToolID       string            `json:"tool_id"`
	ToolVersion  string            `json:"tool_version"`
	User         string            `json:"user,omitempty"`
	Params       map[string]string `json:"params"`
	Status       string            `json:"status"`
	ErrorMessage string            `json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    *time.Time        `json:"updated_at,omitempty"`
}

// BatchProgress counts the jobs of a batch by status.
type BatchProgress struct {
	Total   int `json:"total"`
	New     int `json:"new"`
	Queued  int `json:"queued"`
	Ready   int `json:"ready"`
	Invalid int `json:"invalid"`
}
