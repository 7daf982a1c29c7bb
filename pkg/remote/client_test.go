package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewClient(srv.URL+"/", time.Second, logger)
}

func TestStartScan(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/scan/start", r.URL.Path)
		_, _ = io.WriteString(w, `{"job_id":"job-1"}`)
	})

	id, err := c.StartScan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
}

func TestStartScanWithoutJobID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	})

	_, err := c.StartScan(context.Background())
	assert.ErrorIs(t, err, ErrMissingJobID)
}

func TestStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/scan/status/job-1", r.URL.Path)
		_, _ = io.WriteString(w, `{"job_id":"job-1","status":"running","progress":40,
			"devices":[{"id":"1","name":"Router","ip":"192.168.1.1","risk":"high","vulnerabilities":[],"isOnline":true}]}`)
	})

	status, err := c.Status(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, status.Status)
	assert.Equal(t, 40, status.Progress)
	assert.False(t, status.Terminal())
	if assert.Len(t, status.Devices, 1) {
		assert.Equal(t, "Router", status.Devices[0].Name)
	}
}

func TestNon2xxIsHTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such job", http.StatusNotFound)
	})

	_, err := c.Status(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)

	var se *HTTPError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Contains(t, se.Error(), "no such job")
}

func TestBadJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `not json`)
	})

	_, err := c.Status(context.Background(), "job-1")
	assert.ErrorContains(t, err, "decode response")
}

func TestCancel(t *testing.T) {
	var called bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/scan/cancel/job-1", r.URL.Path)
		_, _ = io.WriteString(w, `{"job_id":"job-1","status":"cancelled"}`)
	})

	require.NoError(t, c.Cancel(context.Background(), "job-1"))
	assert.True(t, called)
}

func TestTerminal(t *testing.T) {
	for _, s := range []string{StatusCompleted, StatusError, StatusCancelled} {
		assert.True(t, JobStatus{Status: s}.Terminal(), s)
	}
	for _, s := range []string{StatusPending, StatusRunning, ""} {
		assert.False(t, JobStatus{Status: s}.Terminal(), s)
	}
}
