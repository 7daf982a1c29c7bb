package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownLevel is returned when a risk or severity string is not recognised
var ErrUnknownLevel = errors.New("unknown level")

// Risk is the overall risk classification of a device
type Risk string

// Device risk levels
const (
	RiskHigh   Risk = "high"
	RiskMedium Risk = "medium"
	RiskLow    Risk = "low"
	RiskSafe   Risk = "safe"
)

// Severity is the severity of a single vulnerability
type Severity string

// Vulnerability severities
const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Device represents a device shown on the dashboard
type Device struct {
	ID              string          `json:"id" yaml:"id"`                                         // Stable identifier
	Name            string          `json:"name" yaml:"name"`                                     // Display name
	IP              string          `json:"ip" yaml:"ip"`                                         // IP address of the device
	MAC             string          `json:"mac" yaml:"mac"`                                       // MAC address of the device
	Type            string          `json:"type" yaml:"type"`                                     // Device category (Router, Camera, ...)
	Risk            Risk            `json:"risk" yaml:"risk"`                                     // Overall risk
	Vulnerabilities []Vulnerability `json:"vulnerabilities" yaml:"vulnerabilities"`               // Ordered list of vulnerabilities
	IsOnline        bool            `json:"isOnline" yaml:"isOnline"`                             // Whether the device answered the scan
	LastScan        string          `json:"lastScan,omitempty" yaml:"lastScan,omitempty"`         // Last scan time, display formatted
	Manufacturer    string          `json:"manufacturer,omitempty" yaml:"manufacturer,omitempty"` // Manufacturer if known
	Model           string          `json:"model,omitempty" yaml:"model,omitempty"`               // Model if known
}

// Vulnerability represents a security weakness attributed to a device
type Vulnerability struct {
	ID          string   `json:"id" yaml:"id"`                   // Vulnerability ID
	Name        string   `json:"name" yaml:"name"`               // Name of the vulnerability
	Description string   `json:"description" yaml:"description"` // Description of the vulnerability
	Severity    Severity `json:"severity" yaml:"severity"`       // Severity level
	Solution    string   `json:"solution" yaml:"solution"`       // Remediation steps
}

// SeverityCounts holds the number of vulnerabilities per severity
type SeverityCounts struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// ParseRisk parses a risk level, ignoring case
func ParseRisk(s string) (Risk, error) {
	switch r := Risk(strings.ToLower(strings.TrimSpace(s))); r {
	case RiskHigh, RiskMedium, RiskLow, RiskSafe:
		return r, nil
	}
	return "", fmt.Errorf("risk %q: %w", s, ErrUnknownLevel)
}

// ParseSeverity parses a vulnerability severity, ignoring case
func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SeverityHigh, SeverityMedium, SeverityLow:
		return sev, nil
	}
	return "", fmt.Errorf("severity %q: %w", s, ErrUnknownLevel)
}

// Label returns the display label for a risk level
func (r Risk) Label() string {
	switch r {
	case RiskHigh:
		return "High Risk"
	case RiskMedium:
		return "Medium Risk"
	case RiskLow:
		return "Low Risk"
	default:
		return "Safe"
	}
}

// Label returns the display label for a severity
func (s Severity) Label() string {
	switch s {
	case SeverityHigh:
		return "High"
	case SeverityMedium:
		return "Medium"
	case SeverityLow:
		return "Low"
	default:
		return "Unknown"
	}
}

// SeverityCounts counts the device vulnerabilities by severity
func (d *Device) SeverityCounts() SeverityCounts {
	var c SeverityCounts
	for _, v := range d.Vulnerabilities {
		switch v.Severity {
		case SeverityHigh:
			c.High++
		case SeverityMedium:
			c.Medium++
		case SeverityLow:
			c.Low++
		}
	}
	return c
}

// IsVulnerable reports whether the device has at least one vulnerability
func (d *Device) IsVulnerable() bool {
	return len(d.Vulnerabilities) > 0
}

// Clone returns a deep copy of the device
func (d Device) Clone() Device {
	if d.Vulnerabilities != nil {
		vulns := make([]Vulnerability, len(d.Vulnerabilities))
		copy(vulns, d.Vulnerabilities)
		d.Vulnerabilities = vulns
	}
	return d
}

// CloneDevices deep copies a device list
func CloneDevices(devices []Device) []Device {
	if devices == nil {
		return nil
	}
	out := make([]Device, len(devices))
	for i, d := range devices {
		out[i] = d.Clone()
	}
	return out
}
