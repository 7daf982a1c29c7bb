package scan

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ExclusiveAccount/iot-dashboard/pkg/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func fixedNow() time.Time {
	return time.Date(2024, 3, 9, 14, 30, 5, 0, time.UTC)
}

func newTestStore(source Source, opts Options) *Store {
	if opts.Now == nil {
		opts.Now = fixedNow
	}
	return NewStore(source, opts, quietLogger())
}

type macExcluder map[string]bool

func (m macExcluder) Excluded(d models.Device) bool { return m[d.MAC] }

func TestMockScanCompletes(t *testing.T) {
	store := newTestStore(NewMockSource(time.Millisecond), Options{NetworkName: "Lab"})

	var summaries []Summary
	store.OnComplete(func(s Summary) { summaries = append(summaries, s) })

	require.NoError(t, store.StartScan(context.Background()))

	snap := store.Snapshot()
	assert.False(t, snap.Scanning)
	assert.Len(t, snap.Devices, 5)
	assert.Equal(t, 100, snap.Stats.ScanProgress)
	assert.Equal(t, 5, snap.Stats.TotalDevices)
	assert.Equal(t, 4, snap.Stats.VulnerableDevices)
	assert.Equal(t, 5, snap.Stats.TotalVulnerabilities)
	assert.Equal(t, 2, snap.Stats.HighRiskVulnerabilities)
	assert.Equal(t, "Lab", snap.Stats.NetworkName)
	assert.Equal(t, "09/03/2024 14:30:05", snap.Stats.LastScanTime)
	assert.Equal(t, "High", snap.RiskLevel)
	for _, d := range snap.Devices {
		assert.Equal(t, "09/03/2024 14:30:05", d.LastScan)
	}

	require.Len(t, summaries, 1)
	assert.False(t, summaries[0].Fallback)
	assert.Len(t, summaries[0].Devices, 5)
}

func TestProgressIsMonotonic(t *testing.T) {
	source := SourceFunc(func(ctx context.Context, update UpdateFunc) ([]models.Device, error) {
		update(40, nil)
		update(20, nil)
		update(150, nil)
		return nil, nil
	})
	store := newTestStore(source, Options{})

	events, unsubscribe := store.Subscribe(32)
	defer unsubscribe()

	require.NoError(t, store.StartScan(context.Background()))

	var progress []int
	for len(events) > 0 {
		ev := <-events
		if ev.Type == EventProgress {
			progress = append(progress, ev.Progress)
		}
	}
	assert.Equal(t, []int{40, 40, 100}, progress)
}

func TestRevealDuringScan(t *testing.T) {
	store := newTestStore(NewMockSource(time.Millisecond), Options{})
	events, unsubscribe := store.Subscribe(64)
	defer unsubscribe()

	require.NoError(t, store.StartScan(context.Background()))

	counts := map[int]int{}
	for len(events) > 0 {
		ev := <-events
		if ev.Type == EventProgress {
			counts[ev.Progress] = ev.Stats.TotalDevices
		}
	}
	assert.Equal(t, 0, counts[10])
	assert.Equal(t, 1, counts[20])
	assert.Equal(t, 2, counts[40])
	assert.Equal(t, 3, counts[60])
	assert.Equal(t, 4, counts[80])
	assert.Equal(t, 5, counts[100])
}

func TestSourceFailureFallsBackToMock(t *testing.T) {
	source := SourceFunc(func(ctx context.Context, update UpdateFunc) ([]models.Device, error) {
		return nil, errors.New("connection refused")
	})
	store := newTestStore(source, Options{})

	var summary Summary
	store.OnComplete(func(s Summary) { summary = s })

	require.NoError(t, store.StartScan(context.Background()))

	snap := store.Snapshot()
	assert.Len(t, snap.Devices, 5)
	assert.Equal(t, 100, snap.Stats.ScanProgress)
	assert.False(t, snap.Scanning)
	assert.True(t, summary.Fallback)
}

func TestStartWhileScanning(t *testing.T) {
	release := make(chan struct{})
	source := SourceFunc(func(ctx context.Context, update UpdateFunc) ([]models.Device, error) {
		<-release
		return nil, nil
	})
	store := newTestStore(source, Options{})

	require.NoError(t, store.StartBackground(context.Background()))
	assert.True(t, store.Scanning())
	assert.ErrorIs(t, store.StartScan(context.Background()), ErrScanInProgress)

	close(release)
	assert.Eventually(t, func() bool { return !store.Scanning() }, time.Second, 5*time.Millisecond)
}

func TestCancelResetsState(t *testing.T) {
	started := make(chan struct{})
	source := SourceFunc(func(ctx context.Context, update UpdateFunc) ([]models.Device, error) {
		update(30, []models.Device{{ID: "1", Vulnerabilities: []models.Vulnerability{{ID: "v1"}}}})
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	store := newTestStore(source, Options{})

	completed := false
	store.OnComplete(func(Summary) { completed = true })

	errc := make(chan error, 1)
	go func() { errc <- store.StartScan(context.Background()) }()
	<-started

	assert.Equal(t, 30, store.Snapshot().Stats.ScanProgress)
	store.CancelScan()

	err := <-errc
	assert.True(t, IsCancelled(err))
	assert.False(t, completed)

	snap := store.Snapshot()
	assert.False(t, snap.Scanning)
	assert.Empty(t, snap.Devices)
	assert.Equal(t, 0, snap.Stats.ScanProgress)
	assert.Equal(t, 0, snap.Stats.TotalDevices)
	assert.Equal(t, 0, snap.Stats.TotalVulnerabilities)
}

func TestCancelledParentContext(t *testing.T) {
	store := newTestStore(NewMockSource(time.Hour), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.StartScan(ctx)
	assert.True(t, IsCancelled(err))
	assert.False(t, store.Scanning())
	assert.Empty(t, store.Snapshot().Devices)
}

func TestCancelWhenIdle(t *testing.T) {
	store := newTestStore(NewMockSource(time.Millisecond), Options{})
	require.NoError(t, store.StartScan(context.Background()))

	store.CancelScan()
	snap := store.Snapshot()
	assert.Empty(t, snap.Devices)
	assert.Equal(t, 0, snap.Stats.ScanProgress)
	assert.Equal(t, "Safe", snap.RiskLevel)
}

func TestExcludedDevicesAreHidden(t *testing.T) {
	devices := []models.Device{
		{ID: "1", MAC: "AA:AA:AA:AA:AA:01"},
		{ID: "2", MAC: "AA:AA:AA:AA:AA:02"},
	}
	source := SourceFunc(func(ctx context.Context, update UpdateFunc) ([]models.Device, error) {
		update(50, devices)
		return devices, nil
	})
	store := newTestStore(source, Options{Excluder: macExcluder{"AA:AA:AA:AA:AA:02": true}})

	require.NoError(t, store.StartScan(context.Background()))

	snap := store.Snapshot()
	require.Len(t, snap.Devices, 1)
	assert.Equal(t, "1", snap.Devices[0].ID)
	assert.Equal(t, 1, snap.Stats.TotalDevices)
}

func TestRefilterAppliesNewExclusions(t *testing.T) {
	devices := []models.Device{
		{ID: "1", MAC: "AA:AA:AA:AA:AA:01"},
		{ID: "2", MAC: "AA:AA:AA:AA:AA:02", Vulnerabilities: []models.Vulnerability{{ID: "v", Severity: models.SeverityHigh}}},
	}
	source := SourceFunc(func(ctx context.Context, update UpdateFunc) ([]models.Device, error) {
		return devices, nil
	})
	excluded := macExcluder{}
	store := newTestStore(source, Options{Excluder: excluded})

	store.Refilter() // nothing scanned yet
	assert.Empty(t, store.Snapshot().Devices)

	require.NoError(t, store.StartScan(context.Background()))
	_, err := store.SelectDevice("2")
	require.NoError(t, err)

	events, unsubscribe := store.Subscribe(4)
	defer unsubscribe()

	excluded["AA:AA:AA:AA:AA:02"] = true
	store.Refilter()

	snap := store.Snapshot()
	require.Len(t, snap.Devices, 1)
	assert.Equal(t, "1", snap.Devices[0].ID)
	assert.Equal(t, 1, snap.Stats.TotalDevices)
	assert.Zero(t, snap.Stats.HighRiskVulnerabilities)
	assert.Equal(t, 100, snap.Stats.ScanProgress)
	assert.Nil(t, snap.Selected)
	_, err = store.Device("2")
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	ev := <-events
	assert.Equal(t, EventDevices, ev.Type)
	assert.Equal(t, 1, ev.Stats.TotalDevices)

	// removing the exclusion brings the device back
	delete(excluded, "AA:AA:AA:AA:AA:02")
	store.Refilter()
	snap = store.Snapshot()
	assert.Len(t, snap.Devices, 2)
	assert.Equal(t, "09/03/2024 14:30:05", snap.Devices[1].LastScan)
}

func TestSelection(t *testing.T) {
	store := newTestStore(NewMockSource(time.Millisecond), Options{})
	require.NoError(t, store.StartScan(context.Background()))

	_, ok := store.Selected()
	assert.False(t, ok)

	d, err := store.SelectDevice("2")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.10", d.IP)

	sel, ok := store.Selected()
	require.True(t, ok)
	assert.Equal(t, "2", sel.ID)
	assert.Equal(t, "2", store.Snapshot().Selected.ID)

	_, err = store.SelectDevice("missing")
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	store.ClearSelection()
	_, ok = store.Selected()
	assert.False(t, ok)
}

func TestDeviceLookup(t *testing.T) {
	store := newTestStore(NewMockSource(time.Millisecond), Options{})
	require.NoError(t, store.StartScan(context.Background()))

	d, err := store.Device("5")
	require.NoError(t, err)
	assert.Equal(t, models.RiskHigh, d.Risk)

	_, err = store.Device("42")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestSnapshotIsCopy(t *testing.T) {
	store := newTestStore(NewMockSource(time.Millisecond), Options{})
	require.NoError(t, store.StartScan(context.Background()))

	snap := store.Snapshot()
	snap.Devices[0].Name = "changed"
	snap.Devices[0].Vulnerabilities[0].Name = "changed"

	again := store.Snapshot()
	assert.Equal(t, "Router TP-Link", again.Devices[0].Name)
	assert.NotEqual(t, "changed", again.Devices[0].Vulnerabilities[0].Name)
}

func TestAttackDevice(t *testing.T) {
	store := newTestStore(NewMockSource(time.Millisecond), Options{AttackDelay: time.Millisecond})

	events, unsubscribe := store.Subscribe(4)
	defer unsubscribe()

	msg, err := store.AttackDevice(context.Background(), "192.168.1.1")
	require.NoError(t, err)
	assert.Equal(t, "Vulnerability scan of device 192.168.1.1 completed. This device has high risk.", msg)

	ev := <-events
	assert.Equal(t, EventAttack, ev.Type)
	assert.Equal(t, msg, ev.Message)

	_, err = store.AttackDevice(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestAttackDeviceCancelled(t *testing.T) {
	store := newTestStore(NewMockSource(time.Millisecond), Options{AttackDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.AttackDevice(ctx, "192.168.1.1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnsubscribeTwice(t *testing.T) {
	store := newTestStore(NewMockSource(time.Millisecond), Options{})
	events, unsubscribe := store.Subscribe(1)
	unsubscribe()
	unsubscribe()

	_, open := <-events
	assert.False(t, open)
}

func TestConcurrentReaders(t *testing.T) {
	store := newTestStore(NewMockSource(time.Millisecond), Options{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = store.StartScan(context.Background())
	}()

	for i := 0; i < 50; i++ {
		snap := store.Snapshot()
		assert.LessOrEqual(t, snap.Stats.TotalDevices, 5)
	}
	wg.Wait()
	assert.Len(t, store.Snapshot().Devices, 5)
}
