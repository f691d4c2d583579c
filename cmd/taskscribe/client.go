package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"taskscribe/internal/api"
)

// apiClient is a thin HTTP client for the daemon API.
type apiClient struct {
	baseURL string
	client  *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *apiClient) submit(ctx context.Context, audioPath string) (api.JobStatus, error) {
	var job api.JobStatus

	file, err := os.Open(audioPath)
	if err != nil {
		return job, err
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return job, fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return job, fmt.Errorf("read %s: %w", audioPath, err)
	}
	if err := writer.Close(); err != nil {
		return job, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/jobs", &body)
	if err != nil {
		return job, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	err = c.do(req, http.StatusCreated, &job)
	return job, err
}

func (c *apiClient) list(ctx context.Context, status string) ([]api.JobStatus, error) {
	url := c.baseURL + "/api/jobs"
	if status != "" {
		url += "?status=" + status
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	var listing struct {
		Jobs []api.JobStatus `json:"jobs"`
	}
	if err := c.do(req, http.StatusOK, &listing); err != nil {
		return nil, err
	}
	return listing.Jobs, nil
}

func (c *apiClient) get(ctx context.Context, jobID string) (api.JobStatus, error) {
	var job api.JobStatus
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/jobs/"+jobID, nil)
	if err != nil {
		return job, err
	}
	err = c.do(req, http.StatusOK, &job)
	return job, err
}

func (c *apiClient) cancel(ctx context.Context, jobID string) (api.JobStatus, error) {
	var job api.JobStatus
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/jobs/"+jobID+"/cancel", nil)
	if err != nil {
		return job, err
	}
	err = c.do(req, http.StatusAccepted, &job)
	return job, err
}

func (c *apiClient) result(ctx context.Context, jobID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/jobs/"+jobID+"/result", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", c.connectionError(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", decodeAPIError(resp.StatusCode, data)
	}
	return string(data), nil
}

func (c *apiClient) daemonStatus(ctx context.Context) (api.DaemonStatus, error) {
	var status api.DaemonStatus
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/status", nil)
	if err != nil {
		return status, err
	}
	err = c.do(req, http.StatusOK, &status)
	return status, err
}

func (c *apiClient) do(req *http.Request, wantStatus int, target any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return c.connectionError(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != wantStatus {
		return decodeAPIError(resp.StatusCode, data)
	}
	if target == nil {
		return nil
	}
	return json.Unmarshal(data, target)
}

func (c *apiClient) connectionError(err error) error {
	return fmt.Errorf("cannot reach daemon at %s (is taskscribed running?): %w", c.baseURL, err)
}

func decodeAPIError(status int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("%s", payload.Error)
	}
	return fmt.Errorf("daemon returned HTTP %d", status)
}
