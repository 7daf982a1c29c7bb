// Package settings holds the user preferences of the dashboard and the
// whitelist of devices hidden from scans.
package settings

import (
	"errors"
	"fmt"
	"net"
	"net/mail"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ExclusiveAccount/iot-dashboard/pkg/models"
)

var (
	ErrInvalidSettings = errors.New("invalid settings")
	ErrNotWhitelisted  = errors.New("entry not in whitelist")
)

// Scan frequencies
const (
	FrequencyHourly  = "hourly"
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

// HistoryDays are the accepted history retention periods
var HistoryDays = []int{7, 14, 30, 90, 365}

var scanTimePattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// ScanSettings control automatic scanning
type ScanSettings struct {
	AutoScan           bool   `json:"autoScan" yaml:"auto_scan"`
	ScanFrequency      string `json:"scanFrequency" yaml:"scan_frequency"`
	ScanTime           string `json:"scanTime" yaml:"scan_time"`
	NotifyOnComplete   bool   `json:"notifyOnComplete" yaml:"notify_on_complete"`
	ScanDeepInspection bool   `json:"scanDeepInspection" yaml:"scan_deep_inspection"`
}

// NotificationSettings control alerts
type NotificationSettings struct {
	EmailNotifications bool   `json:"emailNotifications" yaml:"email_notifications"`
	Email              string `json:"email" yaml:"email"`
	PushNotifications  bool   `json:"pushNotifications" yaml:"push_notifications"`
	NotifyOnHighRisk   bool   `json:"notifyOnHighRisk" yaml:"notify_on_high_risk"`
	NotifyOnMediumRisk bool   `json:"notifyOnMediumRisk" yaml:"notify_on_medium_risk"`
	NotifyOnLowRisk    bool   `json:"notifyOnLowRisk" yaml:"notify_on_low_risk"`
}

// PrivacySettings control data sharing and retention
type PrivacySettings struct {
	CollectAnonymousData bool `json:"collectAnonymousData" yaml:"collect_anonymous_data"`
	ShareStatistics      bool `json:"shareStatistics" yaml:"share_statistics"`
	StoreHistory         int  `json:"storeHistory" yaml:"store_history"` // days
}

// Settings is the complete preference set
type Settings struct {
	Scan         ScanSettings         `json:"scan" yaml:"scan"`
	Notification NotificationSettings `json:"notification" yaml:"notification"`
	Privacy      PrivacySettings      `json:"privacy" yaml:"privacy"`
	Whitelist    []string             `json:"whitelist" yaml:"whitelist"`
}

// Default returns the initial preferences
func Default() Settings {
	return Settings{
		Scan: ScanSettings{
			AutoScan:         true,
			ScanFrequency:    FrequencyDaily,
			ScanTime:         "00:00",
			NotifyOnComplete: true,
		},
		Notification: NotificationSettings{
			EmailNotifications: true,
			Email:              "user@example.com",
			NotifyOnHighRisk:   true,
			NotifyOnMediumRisk: true,
		},
		Privacy: PrivacySettings{
			CollectAnonymousData: true,
			StoreHistory:         30,
		},
		Whitelist: []string{},
	}
}

// Validate checks every field and normalises the whitelist
func (s *Settings) Validate() error {
	switch s.Scan.ScanFrequency {
	case FrequencyHourly, FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	default:
		return fmt.Errorf("%w: scan frequency %q", ErrInvalidSettings, s.Scan.ScanFrequency)
	}
	if !scanTimePattern.MatchString(s.Scan.ScanTime) {
		return fmt.Errorf("%w: scan time %q is not HH:MM", ErrInvalidSettings, s.Scan.ScanTime)
	}

	if s.Notification.EmailNotifications || s.Notification.Email != "" {
		if _, err := mail.ParseAddress(s.Notification.Email); err != nil {
			return fmt.Errorf("%w: email %q", ErrInvalidSettings, s.Notification.Email)
		}
	}

	valid := false
	for _, d := range HistoryDays {
		if s.Privacy.StoreHistory == d {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("%w: history retention of %d days", ErrInvalidSettings, s.Privacy.StoreHistory)
	}

	list := make([]string, 0, len(s.Whitelist))
	for _, entry := range s.Whitelist {
		norm, err := NormalizeEntry(entry)
		if err != nil {
			return err
		}
		if !contains(list, norm) {
			list = append(list, norm)
		}
	}
	s.Whitelist = list

	return nil
}

// NormalizeEntry validates a whitelist entry. MAC addresses are returned in
// upper case colon form, IP addresses in canonical form.
func NormalizeEntry(entry string) (string, error) {
	entry = strings.TrimSpace(entry)
	if hw, err := net.ParseMAC(entry); err == nil {
		return strings.ToUpper(hw.String()), nil
	}
	if ip := net.ParseIP(entry); ip != nil {
		return ip.String(), nil
	}
	return "", fmt.Errorf("%w: whitelist entry %q is neither a MAC nor an IP address", ErrInvalidSettings, entry)
}

func contains(list []string, v string) bool {
	for _, e := range list {
		if e == v {
			return true
		}
	}
	return false
}

// Manager guards the current settings. With a path set, every change is
// written to that file as YAML.
type Manager struct {
	mu       sync.RWMutex
	settings Settings
	path     string
	logger   *logrus.Logger
	hooks    []func()
}

// NewManager creates a manager. An existing file at path is loaded; a
// missing one starts from the defaults.
func NewManager(path string, logger *logrus.Logger) (*Manager, error) {
	if logger == nil {
		logger = logrus.New()
	}

	m := &Manager{settings: Default(), path: path, logger: logger}
	if path == "" {
		return m, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, err
	}

	s := Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	m.settings = s
	logger.WithField("path", path).Debug("Settings loaded")

	return m, nil
}

// OnChange registers a function called after every successful change.
// It runs without the manager lock held, so it may call back into it.
func (m *Manager) OnChange(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

func (m *Manager) notify() {
	m.mu.RLock()
	hooks := append([]func(){}, m.hooks...)
	m.mu.RUnlock()

	for _, hook := range hooks {
		hook()
	}
}

// Get returns a copy of the current settings
func (m *Manager) Get() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings.clone()
}

// Save validates s and makes it the current settings
func (m *Manager) Save(s Settings) (Settings, error) {
	s = s.clone()
	if s.Whitelist == nil {
		s.Whitelist = []string{}
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}

	m.mu.Lock()
	if err := m.persist(s); err != nil {
		m.mu.Unlock()
		return Settings{}, err
	}
	m.settings = s
	m.mu.Unlock()

	m.logger.Info("Settings saved")
	m.notify()

	return s.clone(), nil
}

// AddWhitelist adds an entry; adding a present entry is a no-op
func (m *Manager) AddWhitelist(entry string) ([]string, error) {
	norm, err := NormalizeEntry(entry)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	changed := !contains(m.settings.Whitelist, norm)
	if changed {
		next := m.settings.clone()
		next.Whitelist = append(next.Whitelist, norm)
		if err := m.persist(next); err != nil {
			m.mu.Unlock()
			return nil, err
		}
		m.settings = next
	}
	list := append([]string(nil), m.settings.Whitelist...)
	m.mu.Unlock()

	if changed {
		m.logger.WithField("entry", norm).Info("Added to whitelist")
		m.notify()
	}
	return list, nil
}

// RemoveWhitelist removes an entry
func (m *Manager) RemoveWhitelist(entry string) ([]string, error) {
	norm, err := NormalizeEntry(entry)
	if err != nil {
		return nil, err
	}

	list, err := m.remove(norm)
	if err != nil {
		return nil, err
	}
	m.logger.WithField("entry", norm).Info("Removed from whitelist")
	m.notify()

	return list, nil
}

func (m *Manager) remove(norm string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.settings.clone()
	next.Whitelist = next.Whitelist[:0]
	for _, e := range m.settings.Whitelist {
		if e != norm {
			next.Whitelist = append(next.Whitelist, e)
		}
	}
	if len(next.Whitelist) == len(m.settings.Whitelist) {
		return nil, fmt.Errorf("%w: %s", ErrNotWhitelisted, norm)
	}

	if err := m.persist(next); err != nil {
		return nil, err
	}
	m.settings = next

	return append([]string(nil), next.Whitelist...), nil
}

// Excluded reports whether the device MAC or IP is whitelisted
func (m *Manager) Excluded(d models.Device) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.settings.Whitelist) == 0 {
		return false
	}
	for _, raw := range []string{d.MAC, d.IP} {
		if raw == "" {
			continue
		}
		if norm, err := NormalizeEntry(raw); err == nil && contains(m.settings.Whitelist, norm) {
			return true
		}
	}
	return false
}

func (m *Manager) persist(s Settings) error {
	if m.path == "" {
		return nil
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

func (s Settings) clone() Settings {
	if s.Whitelist != nil {
		s.Whitelist = append([]string{}, s.Whitelist...)
	}
	return s
}
