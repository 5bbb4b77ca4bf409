package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"longjob/pkg/api"

	"github.com/spf13/viper"
)

// JobClient handles API calls to the longjob service.
type JobClient struct {
	BaseURL    string
	Username   string
	Password   string
	UserID     string
	HTTPClient *http.Client
}

// NewJobClient creates a client from the resolved CLI configuration.
func NewJobClient() *JobClient {
	return &JobClient{
		BaseURL:  viper.GetString("url"),
		Username: viper.GetString("username"),
		Password: viper.GetString("password"),
		UserID:   viper.GetString("user"),
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

func (c *JobClient) authorize(req *http.Request) {
	if c.Username != "" {
		req.SetBasicAuth(c.Username, c.Password)
	} else if c.UserID != "" {
		req.Header.Set("X-User-Id", c.UserID)
	}
	req.Header.Add("Content-Type", "application/json")
}

// SubmitJob sends POST /api/jobs to submit a new job.
func (c *JobClient) SubmitJob(req api.CreateJobRequest) (*api.CreateJobResponse, error) {
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/api/jobs", c.BaseURL), bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(httpReq)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var result api.CreateJobResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &result, nil
}

// GetState sends GET /api/jobs/{id}/state to retrieve the current job record.
func (c *JobClient) GetState(jobID string) (*api.JobStateResponse, error) {
	httpReq, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/jobs/%s/state", c.BaseURL, jobID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(httpReq)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var result api.JobStateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &result, nil
}

// CancelJob sends POST /api/jobs/{id}/cancel to request cancellation.
func (c *JobClient) CancelJob(jobID string) (*api.JobStateResponse, error) {
	httpReq, err := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/api/jobs/%s/cancel", c.BaseURL, jobID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(httpReq)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var result api.JobStateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &result, nil
}

// StreamEvents sends GET /api/jobs/{id}/events and returns the open SSE body.
// The caller owns the returned ReadCloser. No client timeout applies: the
// stream stays open for the lifetime of the job.
func (c *JobClient) StreamEvents(jobID string) (io.ReadCloser, error) {
	httpReq, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/jobs/%s/events", c.BaseURL, jobID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	streaming := &http.Client{}
	resp, err := streaming.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	return resp.Body, nil
}
