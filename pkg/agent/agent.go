// Package agent is a local scanning backend speaking the remote scan job
// protocol. Jobs advance on a timer and reveal the demonstration devices.
package agent

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/iot-dashboard/pkg/integration"
	"github.com/ExclusiveAccount/iot-dashboard/pkg/remote"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// ProgressStep is the progress a job gains per tick
const ProgressStep = 10

// JobRetention is how long a finished job stays queryable
const JobRetention = 10 * time.Minute

type job struct {
	id       string
	status   string
	progress int
	started  time.Time
	finished time.Time // zero while pending or running
	cancel   context.CancelFunc
}

// Agent serves simulated scan jobs
type Agent struct {
	router *gin.Engine
	logger *logrus.Logger
	tick   time.Duration
	retain time.Duration
	ctx    context.Context
	stop   context.CancelFunc
	mu     sync.RWMutex
	jobs   map[string]*job
	wg     sync.WaitGroup
}

// New creates an agent whose jobs advance once per tick
func New(tick time.Duration, logger *logrus.Logger) *Agent {
	if logger == nil {
		logger = logrus.New()
	}
	if tick <= 0 {
		tick = time.Second
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	ctx, stop := context.WithCancel(context.Background())
	a := &Agent{
		router: router,
		logger: logger,
		tick:   tick,
		retain: JobRetention,
		ctx:    ctx,
		stop:   stop,
		jobs:   make(map[string]*job),
	}

	router.GET("/", a.handleRoot)
	router.GET("/health", a.handleHealth)
	router.POST("/scan/start", a.handleStart)
	router.GET("/scan/status/:id", a.handleStatus)
	router.POST("/scan/cancel/:id", a.handleCancel)

	return a
}

// Handler returns the HTTP handler of the agent
func (a *Agent) Handler() http.Handler {
	return a.router
}

// Close stops all running jobs
func (a *Agent) Close() {
	a.stop()
	a.wg.Wait()
}

func (a *Agent) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "IoT scan agent",
		"version":   Version,
		"status":    "running",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (a *Agent) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   Version,
	})
}

func (a *Agent) handleStart(c *gin.Context) {
	ctx, cancel := context.WithCancel(a.ctx)
	j := &job{
		id:      uuid.NewString(),
		status:  remote.StatusPending,
		started: time.Now(),
		cancel:  cancel,
	}

	a.mu.Lock()
	pruned := a.pruneLocked(j.started)
	a.jobs[j.id] = j
	a.mu.Unlock()

	if pruned > 0 {
		a.logger.WithField("count", pruned).Debug("Expired scan jobs removed")
	}

	a.wg.Add(1)
	go a.run(ctx, j)

	a.logger.WithField("job_id", j.id).Info("Scan job started")
	c.JSON(http.StatusOK, remote.StartResponse{JobID: j.id})
}

func (a *Agent) handleStatus(c *gin.Context) {
	status, ok := a.Status(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (a *Agent) handleCancel(c *gin.Context) {
	id := c.Param("id")

	a.mu.Lock()
	j, ok := a.jobs[id]
	if ok && (j.status == remote.StatusPending || j.status == remote.StatusRunning) {
		j.status = remote.StatusCancelled
		j.finished = time.Now()
		j.cancel()
	}
	a.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}

	a.logger.WithField("job_id", id).Info("Scan job cancelled")
	status, _ := a.Status(id)
	c.JSON(http.StatusOK, status)
}

// pruneLocked drops jobs that finished more than the retention period
// before now and returns how many were removed.
func (a *Agent) pruneLocked(now time.Time) int {
	n := 0
	for id, j := range a.jobs {
		if !j.finished.IsZero() && now.Sub(j.finished) >= a.retain {
			delete(a.jobs, id)
			n++
		}
	}
	return n
}

// Status returns the current state of a job
func (a *Agent) Status(id string) (remote.JobStatus, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	j, ok := a.jobs[id]
	if !ok {
		return remote.JobStatus{}, false
	}

	status := remote.JobStatus{
		JobID:    j.id,
		Status:   j.status,
		Progress: j.progress,
		Devices:  integration.Reveal(j.progress),
	}
	if j.status == remote.StatusCancelled {
		status.Devices = nil
	}
	return status, true
}

func (a *Agent) run(ctx context.Context, j *job) {
	defer a.wg.Done()
	defer j.cancel()

	ticker := time.NewTicker(a.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		a.mu.Lock()
		if j.status == remote.StatusCancelled {
			a.mu.Unlock()
			return
		}
		j.progress += ProgressStep
		j.status = remote.StatusRunning
		if j.progress >= 100 {
			j.progress = 100
			j.status = remote.StatusCompleted
			j.finished = time.Now()
		}
		done := j.status == remote.StatusCompleted
		a.mu.Unlock()

		if done {
			a.logger.WithFields(logrus.Fields{
				"job_id":   j.id,
				"duration": time.Since(j.started).String(),
			}).Info("Scan job completed")
			return
		}
	}
}
