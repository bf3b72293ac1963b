package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"mosaic/pkg/api"
)

// Client handles API calls to the mosaic controller.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a new client with the given base URL and token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// newAPIError prefers the error field of a JSON error body and falls back to
// the raw text.
func newAPIError(status int, body []byte) *APIError {
	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		msg := errResp.Error
		if errResp.Details != "" {
			msg += ": " + errResp.Details
		}
		return &APIError{StatusCode: status, Message: msg}
	}
	return &APIError{StatusCode: status, Message: string(bytes.TrimSpace(body))}
}

// do sends a request and returns the body of a 2xx response.
func (c *Client) do(method, path string, query url.Values, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	endpoint := c.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	httpReq, err := http.NewRequest(method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.Token != "" {
		httpReq.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	}
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

func (c *Client) getJSON(path string, query url.Values, out any) error {
	body, err := c.do(http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func runIDQuery(runID *int64) url.Values {
	if runID == nil {
		return nil
	}
	return url.Values{"run_id": {strconv.FormatInt(*runID, 10)}}
}

// StartRun sends POST /jobs/create.
func (c *Client) StartRun(req api.JobsCreationRequest) (*api.CreateRunResponse, error) {
	body, err := c.do(http.MethodPost, "/jobs/create", nil, req)
	if err != nil {
		return nil, err
	}
	var result api.CreateRunResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &result, nil
}

// StopRun sends POST /jobs/stop. A nil runID stops the latest active run.
func (c *Client) StopRun(runID *int64) (*api.MessageResponse, error) {
	body, err := c.do(http.MethodPost, "/jobs/stop", runIDQuery(runID), nil)
	if err != nil {
		return nil, err
	}
	var result api.MessageResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &result, nil
}

// Status sends GET /status.
func (c *Client) Status(runID *int64) (*api.StatusResponse, error) {
	var result api.StatusResponse
	if err := c.getJSON("/status", runIDQuery(runID), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListRuns sends GET /runs.
func (c *Client) ListRuns(limit, offset int) ([]api.RunResponse, error) {
	query := url.Values{
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	}
	var result api.ListRunsResponse
	if err := c.getJSON("/runs", query, &result); err != nil {
		return nil, err
	}
	return result.Runs, nil
}

// GetLogs sends GET /runs/{id}/logs for entries after afterID.
func (c *Client) GetLogs(runID, afterID int64) ([]api.LogEntry, error) {
	query := url.Values{"after_id": {strconv.FormatInt(afterID, 10)}}
	var result api.GetLogsResponse
	if err := c.getJSON(fmt.Sprintf("/runs/%d/logs", runID), query, &result); err != nil {
		return nil, err
	}
	return result.Logs, nil
}

func summaryQuery(normalOnly bool) url.Values {
	query := url.Values{}
	if normalOnly {
		query.Set("normal_only", "true")
	}
	return query
}

// Summary sends GET /runs/{id}/summary.
func (c *Client) Summary(runID int64, normalOnly bool) (*api.SummaryResponse, error) {
	var result api.SummaryResponse
	if err := c.getJSON(fmt.Sprintf("/runs/%d/summary", runID), summaryQuery(normalOnly), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SummaryXLSX downloads the summary spreadsheet.
func (c *Client) SummaryXLSX(runID int64, normalOnly bool) ([]byte, error) {
	query := summaryQuery(normalOnly)
	query.Set("format", "xlsx")
	return c.do(http.MethodGet, fmt.Sprintf("/runs/%d/summary", runID), query, nil)
}

// SystemHealth sends GET /system/health.
func (c *Client) SystemHealth(server int) (*api.SystemHealthResponse, error) {
	query := url.Values{"server": {strconv.Itoa(server)}}
	var result api.SystemHealthResponse
	if err := c.getJSON("/system/health", query, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
