package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ExclusiveAccount/iot-dashboard/pkg/models"
)

// Scan sources
const (
	SourceMock    = "mock"
	SourceRemote  = "remote"
	SourceCapture = "capture"
)

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the dashboard configuration
type Config struct {
	NetworkName    string        `json:"network_name" yaml:"network_name"`       // Network label shown on the dashboard
	ScanSource     string        `json:"scan_source" yaml:"scan_source"`         // mock, remote or capture
	RemoteURL      string        `json:"remote_url" yaml:"remote_url"`           // Base URL of the scanning backend
	CaptureFile    string        `json:"capture_file" yaml:"capture_file"`       // pcap file for the capture source
	VendorFile     string        `json:"vendor_file" yaml:"vendor_file"`         // OUI vendor CSV merged over the built-in table
	StepInterval   time.Duration `json:"step_interval" yaml:"step_interval"`     // Delay between simulated progress steps
	PollInterval   time.Duration `json:"poll_interval" yaml:"poll_interval"`     // Delay between remote status requests
	RemoteTimeout  time.Duration `json:"remote_timeout" yaml:"remote_timeout"`   // Timeout for a single remote request
	AttackDelay    time.Duration `json:"attack_delay" yaml:"attack_delay"`       // Duration of a simulated attack
	AuthDelay      time.Duration `json:"auth_delay" yaml:"auth_delay"`           // Duration of a simulated login/register
	DashboardHost  string        `json:"dashboard_host" yaml:"dashboard_host"`   // Host for the web dashboard
	DashboardPort  string        `json:"dashboard_port" yaml:"dashboard_port"`   // Port for the web dashboard
	EnableCORS     bool          `json:"enable_cors" yaml:"enable_cors"`         // Allow cross origin API calls
	EnableRealTime bool          `json:"enable_realtime" yaml:"enable_realtime"` // Serve the websocket event stream
	HistoryLimit   int           `json:"history_limit" yaml:"history_limit"`     // Number of scan history records kept
	SettingsFile   string        `json:"settings_file" yaml:"settings_file"`     // YAML file the user settings are kept in
	AgentPort      string        `json:"agent_port" yaml:"agent_port"`           // Port for the simulated scan agent
	AgentTick      time.Duration `json:"agent_tick" yaml:"agent_tick"`           // Progress tick of the simulated agent
	OutputFile     string        `json:"output_file" yaml:"output_file"`         // File to write CLI scan results to
	Verbose        bool          `json:"verbose" yaml:"verbose"`                 // Enable verbose output
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() Config {
	return Config{
		NetworkName:    models.DefaultNetworkName,
		ScanSource:     SourceMock,
		RemoteURL:      "http://localhost:8000",
		StepInterval:   200 * time.Millisecond,
		PollInterval:   3 * time.Second,
		RemoteTimeout:  10 * time.Second,
		AttackDelay:    2 * time.Second,
		AuthDelay:      1500 * time.Millisecond,
		DashboardHost:  "localhost",
		DashboardPort:  "3000",
		EnableCORS:     true,
		EnableRealTime: true,
		HistoryLimit:   50,
		AgentPort:      "8000",
		AgentTick:      time.Second,
	}
}

// LoadConfigFromFile loads configuration from a JSON or YAML file on top of
// the defaults. The format is chosen by file extension.
func LoadConfigFromFile(filePath string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filePath)
	if err != nil {
		return cfg, err
	}

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", filePath, err)
	}

	return cfg, cfg.Validate()
}

// Validate checks the configuration for values the scanner cannot work with
func (c Config) Validate() error {
	switch c.ScanSource {
	case SourceMock, SourceRemote:
	case SourceCapture:
		if c.CaptureFile == "" {
			return fmt.Errorf("%w: capture source needs a capture file", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown scan source %q", ErrInvalidConfig, c.ScanSource)
	}

	if c.StepInterval <= 0 || c.PollInterval <= 0 {
		return fmt.Errorf("%w: intervals must be positive", ErrInvalidConfig)
	}
	if c.AttackDelay < 0 || c.AuthDelay < 0 {
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidConfig)
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("%w: history limit must be positive", ErrInvalidConfig)
	}

	return nil
}

// WriteResultsToFile writes scan results to a JSON file
func WriteResultsToFile(devices []models.Device, filePath string) error {
	data, err := json.MarshalIndent(devices, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filePath, data, 0644)
}
