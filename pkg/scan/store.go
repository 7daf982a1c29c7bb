// Package scan holds the session scan state shared by the dashboard: the
// discovered devices, the progress of the running scan and the aggregate
// statistics derived from them.
package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ExclusiveAccount/iot-dashboard/pkg/integration"
	"github.com/ExclusiveAccount/iot-dashboard/pkg/models"
)

// TimeLayout is the display format of scan timestamps
const TimeLayout = "02/01/2006 15:04:05"

// Excluder decides whether a device is hidden from the device list
type Excluder interface {
	Excluded(device models.Device) bool
}

// Summary describes a finished scan
type Summary struct {
	Devices    []models.Device
	Stats      models.ScanStats
	StartedAt  time.Time
	FinishedAt time.Time
	Fallback   bool // mock data replaced a failed source
}

// Options configure a Store
type Options struct {
	NetworkName string
	AttackDelay time.Duration
	Excluder    Excluder
	Fallback    func() []models.Device // defaults to the mock dataset
	Now         func() time.Time
}

// Snapshot is a consistent copy of the store state
type Snapshot struct {
	Devices   []models.Device  `json:"devices"`
	Scanning  bool             `json:"scanning"`
	Stats     models.ScanStats `json:"scanStats"`
	Selected  *models.Device   `json:"selectedDevice"`
	RiskLevel string           `json:"riskLevel"`
}

// Store is the single scan state container
type Store struct {
	source   Source
	opts     Options
	logger   *logrus.Logger
	now      func() time.Time
	mu       sync.RWMutex
	raw      []models.Device // source devices before exclusion
	devices  []models.Device
	scanning bool
	progress int
	stats    models.ScanStats
	selected *models.Device
	gen      uint64
	cancel   context.CancelFunc
	hooks    []func(Summary)

	subMu       sync.Mutex
	subscribers map[chan Event]struct{}
}

// NewStore creates a store that scans with the given source
func NewStore(source Source, opts Options, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.Fallback == nil {
		opts.Fallback = integration.MockDevices
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Store{
		source:      source,
		opts:        opts,
		logger:      logger,
		now:         opts.Now,
		stats:       models.InitialStats(opts.NetworkName),
		subscribers: make(map[chan Event]struct{}),
	}
}

// OnComplete registers a function called after every completed scan
func (s *Store) OnComplete(fn func(Summary)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// StartScan resets the store and runs a scan to completion. Source failures
// are replaced by the fallback dataset. It returns ErrScanInProgress when a
// scan is already running and ErrScanCancelled when the scan was cancelled.
func (s *Store) StartScan(ctx context.Context) error {
	run, err := s.begin(ctx)
	if err != nil {
		return err
	}
	return run()
}

// StartBackground starts a scan like StartScan but returns once the scan
// has been accepted.
func (s *Store) StartBackground(ctx context.Context) error {
	run, err := s.begin(ctx)
	if err != nil {
		return err
	}

	go func() {
		if err := run(); err != nil {
			s.logger.WithError(err).Debug("Background scan ended")
		}
	}()
	return nil
}

func (s *Store) begin(parent context.Context) (func() error, error) {
	s.mu.Lock()
	if s.scanning {
		s.mu.Unlock()
		return nil, ErrScanInProgress
	}

	ctx, cancel := context.WithCancel(parent)
	s.gen++
	gen := s.gen
	s.cancel = cancel
	s.scanning = true
	s.progress = 0
	s.raw = nil
	s.devices = nil
	s.stats = models.ComputeStats(nil, s.stats)
	s.stats.ScanProgress = 0
	stats := s.stats
	s.mu.Unlock()

	s.logger.WithField("network", stats.NetworkName).Info("Starting scan")
	s.publish(Event{Type: EventStarted, Stats: stats})

	return func() error {
		defer cancel()
		return s.run(ctx, gen)
	}, nil
}

func (s *Store) run(ctx context.Context, gen uint64) error {
	started := s.now()

	devices, err := s.source.Run(ctx, func(progress int, devices []models.Device) {
		s.apply(gen, progress, devices)
	})

	if ctx.Err() != nil {
		// CancelScan already reset the state; a cancelled parent context
		// leaves it to us.
		s.reset(gen)
		return fmt.Errorf("%w: %v", ErrScanCancelled, ctx.Err())
	}

	fallback := false
	if err != nil {
		s.logger.WithError(err).Warn("Scan failed, using mock data for demonstration")
		devices = s.opts.Fallback()
		fallback = true
	}

	s.finish(gen, devices, fallback, started)
	return nil
}

func (s *Store) apply(gen uint64, progress int, devices []models.Device) {
	s.mu.Lock()
	if gen != s.gen || !s.scanning {
		s.mu.Unlock()
		return
	}

	// progress never goes backwards during a scan
	if progress < s.progress {
		progress = s.progress
	}
	if progress > 100 {
		progress = 100
	}
	s.progress = progress

	if devices != nil {
		s.raw = models.CloneDevices(devices)
		s.devices = s.visible(s.raw)
	}
	s.stats = models.ComputeStats(s.devices, s.stats)
	s.stats.ScanProgress = progress
	stats := s.stats
	s.mu.Unlock()

	s.publish(Event{Type: EventProgress, Progress: progress, Stats: stats})
}

func (s *Store) finish(gen uint64, devices []models.Device, fallback bool, started time.Time) {
	finished := s.now()

	s.mu.Lock()
	if gen != s.gen || !s.scanning {
		s.mu.Unlock()
		return
	}

	lastScan := finished.Format(TimeLayout)
	s.raw = models.CloneDevices(devices)
	for i := range s.raw {
		s.raw[i].LastScan = lastScan
	}
	visible := s.visible(s.raw)

	s.devices = visible
	s.progress = 100
	s.stats = models.ComputeStats(visible, s.stats)
	s.stats.ScanProgress = 100
	s.stats.LastScanTime = lastScan
	s.scanning = false
	s.cancel = nil

	summary := Summary{
		Devices:    models.CloneDevices(visible),
		Stats:      s.stats,
		StartedAt:  started,
		FinishedAt: finished,
		Fallback:   fallback,
	}
	hooks := append([]func(Summary){}, s.hooks...)
	s.mu.Unlock()

	if fallback {
		s.publish(Event{Type: EventFallback, Progress: 100, Stats: summary.Stats, Message: "Using mock data for demonstration"})
	}
	s.publish(Event{Type: EventCompleted, Progress: 100, Stats: summary.Stats})

	s.logger.WithFields(logrus.Fields{
		"devices":         summary.Stats.TotalDevices,
		"vulnerabilities": summary.Stats.TotalVulnerabilities,
		"fallback":        fallback,
		"duration":        finished.Sub(started).String(),
	}).Info("Scan completed")

	for _, hook := range hooks {
		hook(summary)
	}
}

// visible copies the devices that are not excluded
func (s *Store) visible(devices []models.Device) []models.Device {
	out := make([]models.Device, 0, len(devices))
	for _, d := range devices {
		if s.opts.Excluder != nil && s.opts.Excluder.Excluded(d) {
			continue
		}
		out = append(out, d.Clone())
	}
	return out
}

// CancelScan stops the running scan, if any, and clears the progress, the
// device list and the device counters.
func (s *Store) CancelScan() {
	s.mu.Lock()
	wasScanning := s.scanning
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.clearLocked()
	stats := s.stats
	s.mu.Unlock()

	if wasScanning {
		s.logger.Info("Scan cancelled")
	}
	s.publish(Event{Type: EventCancelled, Stats: stats})
}

// reset clears the state of scan gen if it is still the current one
func (s *Store) reset(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || !s.scanning {
		s.mu.Unlock()
		return
	}
	s.cancel = nil
	s.clearLocked()
	stats := s.stats
	s.mu.Unlock()

	s.publish(Event{Type: EventCancelled, Stats: stats})
}

func (s *Store) clearLocked() {
	s.scanning = false
	s.progress = 0
	s.raw = nil
	s.devices = nil
	s.stats = models.ComputeStats(nil, s.stats)
	s.stats.ScanProgress = 0
}

// Refilter applies the current exclusions to the last source devices
// again. An excluded selected device is deselected.
func (s *Store) Refilter() {
	s.mu.Lock()
	if s.raw == nil {
		s.mu.Unlock()
		return
	}
	s.devices = s.visible(s.raw)
	if s.selected != nil && s.opts.Excluder != nil && s.opts.Excluder.Excluded(*s.selected) {
		s.selected = nil
	}
	s.stats = models.ComputeStats(s.devices, s.stats)
	s.stats.ScanProgress = s.progress
	progress, stats := s.progress, s.stats
	s.mu.Unlock()

	s.publish(Event{Type: EventDevices, Progress: progress, Stats: stats})
}

// AttackDevice runs the simulated vulnerability attack against ip and
// returns the result message.
func (s *Store) AttackDevice(ctx context.Context, ip string) (string, error) {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return "", ErrInvalidTarget
	}

	timer := time.NewTimer(s.opts.AttackDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
	}

	s.logger.Infof("Simulated attack on device with IP: %s", ip)
	msg := fmt.Sprintf("Vulnerability scan of device %s completed. This device has high risk.", ip)

	s.mu.RLock()
	stats := s.stats
	s.mu.RUnlock()
	s.publish(Event{Type: EventAttack, Progress: stats.ScanProgress, Stats: stats, Message: msg})

	return msg, nil
}

// SelectDevice marks a device of the current list as selected
func (s *Store) SelectDevice(id string) (models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.devices {
		if d.ID == id {
			sel := d.Clone()
			s.selected = &sel
			return sel.Clone(), nil
		}
	}
	return models.Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
}

// ClearSelection removes the selected device
func (s *Store) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = nil
}

// Selected returns the selected device
func (s *Store) Selected() (models.Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == nil {
		return models.Device{}, false
	}
	return s.selected.Clone(), true
}

// Device returns a device of the current list by id
func (s *Store) Device(id string) (models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.devices {
		if d.ID == id {
			return d.Clone(), nil
		}
	}
	return models.Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
}

// Scanning reports whether a scan is running
func (s *Store) Scanning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanning
}

// Snapshot returns a copy of the current state
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Devices:  models.CloneDevices(s.devices),
		Scanning: s.scanning,
		Stats:    s.stats,
	}
	if snap.Devices == nil {
		snap.Devices = []models.Device{}
	}
	snap.Stats.ScanProgress = s.progress
	if s.selected != nil {
		sel := s.selected.Clone()
		snap.Selected = &sel
	}
	snap.RiskLevel = models.OverallRisk(snap.Stats, snap.Devices)

	return snap
}

// IsCancelled reports whether err ended a scan because it was cancelled
func IsCancelled(err error) bool {
	return errors.Is(err, ErrScanCancelled)
}
