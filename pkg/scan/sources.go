package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/iot-dashboard/pkg/capture"
	"github.com/ExclusiveAccount/iot-dashboard/pkg/config"
	"github.com/ExclusiveAccount/iot-dashboard/pkg/integration"
	"github.com/ExclusiveAccount/iot-dashboard/pkg/models"
	"github.com/ExclusiveAccount/iot-dashboard/pkg/remote"
)

// UpdateFunc receives intermediate scan results. A nil device slice leaves
// the current list unchanged.
type UpdateFunc func(progress int, devices []models.Device)

// Source produces the devices of one scan
type Source interface {
	Run(ctx context.Context, update UpdateFunc) ([]models.Device, error)
}

// SourceFunc adapts a function to Source
type SourceFunc func(ctx context.Context, update UpdateFunc) ([]models.Device, error)

// Run calls f
func (f SourceFunc) Run(ctx context.Context, update UpdateFunc) ([]models.Device, error) {
	return f(ctx, update)
}

// RevealSource loads a device list and reveals it in steps of ten percent,
// one step per interval.
type RevealSource struct {
	Interval time.Duration
	Load     func() ([]models.Device, error)
}

// Run implements Source
func (r *RevealSource) Run(ctx context.Context, update UpdateFunc) ([]models.Device, error) {
	devices, err := r.Load()
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for progress := 10; progress <= 100; progress += 10 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		update(progress, reveal(devices, progress))
	}

	return devices, nil
}

func reveal(devices []models.Device, progress int) []models.Device {
	n := len(devices) * progress / 100
	return models.CloneDevices(devices[:n])
}

// NewMockSource reveals the built-in demonstration devices
func NewMockSource(interval time.Duration) *RevealSource {
	return &RevealSource{
		Interval: interval,
		Load: func() ([]models.Device, error) {
			return integration.MockDevices(), nil
		},
	}
}

// NewCaptureSource reveals the hosts found in a pcap file
func NewCaptureSource(path string, interval time.Duration, importer *capture.Importer) *RevealSource {
	return &RevealSource{
		Interval: interval,
		Load: func() ([]models.Device, error) {
			devices, err := importer.ReadFile(path)
			if err != nil {
				return nil, err
			}
			if len(devices) == 0 {
				return nil, fmt.Errorf("%w: no hosts in %s", capture.ErrNoHosts, path)
			}
			return devices, nil
		},
	}
}

// JobClient is the scan job API of the remote scanning service
type JobClient interface {
	StartScan(ctx context.Context) (string, error)
	Status(ctx context.Context, jobID string) (remote.JobStatus, error)
	Cancel(ctx context.Context, jobID string) error
}

// RemoteSource runs a scan job on the remote service and polls it until the
// job reaches a terminal status.
type RemoteSource struct {
	client       JobClient
	pollInterval time.Duration
	logger       *logrus.Logger
}

// NewRemoteSource creates a source backed by the remote scanning service
func NewRemoteSource(client JobClient, pollInterval time.Duration, logger *logrus.Logger) *RemoteSource {
	if logger == nil {
		logger = logrus.New()
	}
	return &RemoteSource{client: client, pollInterval: pollInterval, logger: logger}
}

// Run implements Source
func (r *RemoteSource) Run(ctx context.Context, update UpdateFunc) ([]models.Device, error) {
	jobID, err := r.client.StartScan(ctx)
	if err != nil {
		return nil, fmt.Errorf("start scan: %w", err)
	}

	log := r.logger.WithField("job_id", jobID)
	log.Info("Remote scan started")

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.cancelJob(jobID, log)
			return nil, ctx.Err()
		case <-ticker.C:
		}

		status, err := r.client.Status(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				r.cancelJob(jobID, log)
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("poll status: %w", err)
		}

		log.WithFields(logrus.Fields{
			"status":   status.Status,
			"progress": status.Progress,
		}).Debug("Remote scan status")

		switch status.Status {
		case remote.StatusError:
			return nil, fmt.Errorf("%w: %s", ErrJobFailed, status.Error)
		case remote.StatusCancelled:
			return nil, ErrJobCancelled
		}

		devices, err := normalizeDevices(status.Devices)
		if err != nil {
			if status.Status != remote.StatusCompleted {
				r.cancelJob(jobID, log)
			}
			return nil, err
		}
		update(status.Progress, devices)
		if status.Status == remote.StatusCompleted {
			return devices, nil
		}
	}
}

// normalizeDevices lowercases the risk and severity levels reported by the
// service. A level that is not recognised fails the whole result.
func normalizeDevices(devices []models.Device) ([]models.Device, error) {
	out := models.CloneDevices(devices)
	for i := range out {
		d := &out[i]
		risk, err := models.ParseRisk(string(d.Risk))
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", d.ID, err)
		}
		d.Risk = risk
		for j := range d.Vulnerabilities {
			sev, err := models.ParseSeverity(string(d.Vulnerabilities[j].Severity))
			if err != nil {
				return nil, fmt.Errorf("device %s: %w", d.ID, err)
			}
			d.Vulnerabilities[j].Severity = sev
		}
	}
	return out, nil
}

// cancelJob asks the service to stop the job. The scan context is already
// done, so a fresh one bounds the request.
func (r *RemoteSource) cancelJob(jobID string, log *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.client.Cancel(ctx, jobID); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Warn("Failed to cancel remote scan")
		return
	}
	log.Info("Remote scan cancelled")
}

// NewSource builds the source selected by the configuration
func NewSource(cfg *config.Config, logger *logrus.Logger) (Source, error) {
	switch cfg.ScanSource {
	case config.SourceMock, "":
		return NewMockSource(cfg.StepInterval), nil
	case config.SourceRemote:
		client := remote.NewClient(cfg.RemoteURL, cfg.RemoteTimeout, logger)
		return NewRemoteSource(client, cfg.PollInterval, logger), nil
	case config.SourceCapture:
		vendors, err := capture.NewVendorDB(cfg.VendorFile, logger)
		if err != nil {
			return nil, err
		}
		return NewCaptureSource(cfg.CaptureFile, cfg.StepInterval, capture.NewImporter(vendors, logger)), nil
	default:
		return nil, fmt.Errorf("%w: unknown scan source %q", config.ErrInvalidConfig, cfg.ScanSource)
	}
}
