// Package remote talks to an external scanning backend that runs scans as
// jobs: a scan is started, its status polled, and optionally cancelled.
package remote

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

	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/iot-dashboard/pkg/models"
)

// Job states reported by the backend
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

var (
	// ErrUnexpectedStatus is wrapped by HTTPError
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
	// ErrMissingJobID is returned when the backend accepted a scan without an id
	ErrMissingJobID = errors.New("backend returned no job id")
)

// StartResponse is returned by the scan start endpoint
type StartResponse struct {
	JobID string `json:"job_id"`
}

// JobStatus is returned by the scan status endpoint
type JobStatus struct {
	JobID    string          `json:"job_id"`
	Status   string          `json:"status"`
	Progress int             `json:"progress"`
	Devices  []models.Device `json:"devices"`
	Error    string          `json:"error,omitempty"`
}

// Terminal reports whether the job will not change any more
func (s JobStatus) Terminal() bool {
	switch s.Status {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	}
	return false
}

// HTTPError is returned for non-2xx responses
type HTTPError struct {
	Code int
	Body string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%v: %d %s", ErrUnexpectedStatus, e.Code, strings.TrimSpace(e.Body))
}

func (e *HTTPError) Unwrap() error {
	return ErrUnexpectedStatus
}

// Client is an HTTP client for the scanning backend
type Client struct {
	baseURL string
	client  *http.Client
	logger  *logrus.Logger
}

// NewClient creates a client for the backend at baseURL
func NewClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// StartScan asks the backend to start a scan and returns its job id
func (c *Client) StartScan(ctx context.Context) (string, error) {
	var resp StartResponse
	if err := c.do(ctx, http.MethodPost, "/scan/start", &resp); err != nil {
		return "", fmt.Errorf("start scan: %w", err)
	}
	if resp.JobID == "" {
		return "", ErrMissingJobID
	}

	c.logger.WithField("job_id", resp.JobID).Debug("Remote scan started")
	return resp.JobID, nil
}

// Status returns the current state of a job
func (c *Client) Status(ctx context.Context, jobID string) (JobStatus, error) {
	var status JobStatus
	if err := c.do(ctx, http.MethodGet, "/scan/status/"+url.PathEscape(jobID), &status); err != nil {
		return status, fmt.Errorf("scan status %s: %w", jobID, err)
	}
	return status, nil
}

// Cancel asks the backend to stop a job
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	var status JobStatus
	if err := c.do(ctx, http.MethodPost, "/scan/cancel/"+url.PathEscape(jobID), &status); err != nil {
		return fmt.Errorf("cancel scan %s: %w", jobID, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debugf("REQ %s %s", method, req.URL)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &HTTPError{Code: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
