// Package report builds the security report of a scan, either a past scan
// from the history or the scan currently held by the dashboard.
package report

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ExclusiveAccount/iot-dashboard/pkg/history"
	"github.com/ExclusiveAccount/iot-dashboard/pkg/models"
	"github.com/ExclusiveAccount/iot-dashboard/pkg/scan"
)

// CurrentID names the report of the scan held by the dashboard
const CurrentID = "current"

// ErrReportNotFound is returned for unknown scan ids
var ErrReportNotFound = errors.New("report not found")

// Finding is a vulnerability row of a report
type Finding struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DeviceType  string `json:"deviceType"`
	DeviceIP    string `json:"deviceIP"`
	RiskLevel   string `json:"riskLevel"`
	Description string `json:"description"`
	Solution    string `json:"solution"`
}

// Report summarises one scan
type Report struct {
	ID                      string    `json:"id"`
	Date                    string    `json:"date"`
	Time                    string    `json:"time"`
	Duration                string    `json:"duration"`
	DevicesScanned          int       `json:"deviceScanned"`
	VulnerabilitiesFound    int       `json:"vulnerabilitiesFound"`
	CriticalVulnerabilities int       `json:"criticalVulnerabilities"`
	HighRiskDevices         int       `json:"highRiskDevices"`
	NetworkCoverage         int       `json:"networkCoverage"`
	Vulnerabilities         []Finding `json:"vulnerabilities"`
}

// sampleFindings are shown for archived scans, whose findings are not kept
var sampleFindings = []Finding{
	{
		ID:          "VLN-001",
		Name:        "Default Password",
		DeviceType:  "Router",
		DeviceIP:    "192.168.1.1",
		RiskLevel:   history.RiskHigh,
		Description: "This device uses default factory password, making it easy for attackers to access",
		Solution:    "Change password to a complex one that is not the default",
	},
	{
		ID:          "VLN-002",
		Name:        "Outdated Firmware",
		DeviceType:  "IP Camera",
		DeviceIP:    "192.168.1.10",
		RiskLevel:   history.RiskHigh,
		Description: "Device uses outdated firmware with known security vulnerabilities",
		Solution:    "Update firmware to the latest version from manufacturer",
	},
	{
		ID:          "VLN-003",
		Name:        "Unencrypted Communication",
		DeviceType:  "Smart Lock",
		DeviceIP:    "192.168.1.15",
		RiskLevel:   history.RiskHigh,
		Description: "Device sends data without encryption, making it possible for data to be intercepted",
		Solution:    "Enable encryption in device settings or contact manufacturer for updates",
	},
	{
		ID:          "VLN-004",
		Name:        "Open Ports",
		DeviceType:  "Smart TV",
		DeviceIP:    "192.168.1.20",
		RiskLevel:   history.RiskMedium,
		Description: "Found unnecessary open ports that could be used as attack vectors",
		Solution:    "Close unnecessary ports in device settings or use firewall to limit access",
	},
}

const (
	archivedDuration = "00:05:32"
	archivedCoverage = 95
)

// FromRecord builds the report of an archived scan
func FromRecord(r history.Record) Report {
	findings := append([]Finding(nil), sampleFindings...)

	critical := 0
	devices := map[string]bool{}
	for _, f := range findings {
		if f.RiskLevel == history.RiskHigh {
			critical++
			devices[f.DeviceIP] = true
		}
	}

	return Report{
		ID:                      r.ID,
		Date:                    r.Date,
		Time:                    r.Time,
		Duration:                archivedDuration,
		DevicesScanned:          r.DeviceCount,
		VulnerabilitiesFound:    r.VulnerabilityCount,
		CriticalVulnerabilities: critical,
		HighRiskDevices:         len(devices),
		NetworkCoverage:         archivedCoverage,
		Vulnerabilities:         findings,
	}
}

// FromSnapshot builds the report of the scan held by the store
func FromSnapshot(snap scan.Snapshot, duration time.Duration) Report {
	r := Report{
		ID:                   CurrentID,
		Duration:             FormatDuration(duration),
		DevicesScanned:       snap.Stats.TotalDevices,
		VulnerabilitiesFound: snap.Stats.TotalVulnerabilities,
		NetworkCoverage:      snap.Stats.ScanProgress,
		Vulnerabilities:      []Finding{},
	}

	if ts, err := time.Parse(scan.TimeLayout, snap.Stats.LastScanTime); err == nil {
		r.Date = ts.Format(history.DateLayout)
		r.Time = ts.Format(history.TimeLayout)
	}

	n := 0
	for _, d := range snap.Devices {
		if d.Risk == models.RiskHigh {
			r.HighRiskDevices++
		}
		for _, v := range d.Vulnerabilities {
			n++
			if v.Severity == models.SeverityHigh {
				r.CriticalVulnerabilities++
			}
			r.Vulnerabilities = append(r.Vulnerabilities, Finding{
				ID:          fmt.Sprintf("VLN-%03d", n),
				Name:        v.Name,
				DeviceType:  d.Type,
				DeviceIP:    d.IP,
				RiskLevel:   v.Severity.Label(),
				Description: v.Description,
				Solution:    v.Solution,
			})
		}
	}

	return r
}

// FormatDuration renders d as HH:MM:SS
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, s/60%60, s%60)
}

// Service resolves report ids against the history and the live store
type Service struct {
	history *history.Store
	store   *scan.Store

	mu       sync.RWMutex
	duration time.Duration
}

// NewService creates a report service and starts tracking scan durations
func NewService(h *history.Store, store *scan.Store) *Service {
	s := &Service{history: h, store: store}
	store.OnComplete(func(sum scan.Summary) {
		s.mu.Lock()
		s.duration = sum.FinishedAt.Sub(sum.StartedAt)
		s.mu.Unlock()
	})
	return s
}

// Get returns the report of a scan. CurrentID selects the live scan.
func (s *Service) Get(id string) (Report, error) {
	if strings.EqualFold(id, CurrentID) {
		s.mu.RLock()
		d := s.duration
		s.mu.RUnlock()
		return FromSnapshot(s.store.Snapshot(), d), nil
	}

	rec, err := s.history.Get(id)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	return FromRecord(rec), nil
}
