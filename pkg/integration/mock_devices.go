package integration

import (
	"github.com/ExclusiveAccount/iot-dashboard/pkg/models"
)

// RevealStep is the progress distance between two revealed mock devices
const RevealStep = 20

// MockDevices returns the demonstration device set. Every call returns a
// fresh copy.
func MockDevices() []models.Device {
	return models.CloneDevices(mockDevices)
}

// Reveal returns the mock devices visible at the given scan progress: one
// more device at every RevealStep, all of them at 100.
func Reveal(progress int) []models.Device {
	n := progress / RevealStep
	if progress >= 100 || n > len(mockDevices) {
		n = len(mockDevices)
	}
	if n < 0 {
		n = 0
	}
	return models.CloneDevices(mockDevices[:n])
}

// ScanAPIDevice is the single device returned by the legacy scan endpoint
type ScanAPIDevice struct {
	Name            string   `json:"name"`
	IP              string   `json:"ip"`
	Risk            string   `json:"risk"`
	Vulnerabilities []string `json:"vulnerabilities"`
}

// ScanAPIDevices returns the fixed payload of the legacy scan endpoint
func ScanAPIDevices() []ScanAPIDevice {
	return []ScanAPIDevice{
		{
			Name:            "Smart CCTV",
			IP:              "192.168.1.100",
			Risk:            string(models.RiskHigh),
			Vulnerabilities: []string{"Default Password", "Open Ports"},
		},
	}
}

var mockDevices = []models.Device{
	{
		ID:       "1",
		Name:     "Router TP-Link",
		IP:       "192.168.1.1",
		MAC:      "00:11:22:33:44:55",
		Type:     "Router",
		Risk:     models.RiskHigh,
		IsOnline: true,
		Vulnerabilities: []models.Vulnerability{
			{
				ID:          "v1",
				Name:        "Default Password",
				Description: "This device uses default factory password, making it easy for attackers to access",
				Severity:    models.SeverityHigh,
				Solution:    "Change default password to a complex one",
			},
			{
				ID:          "v2",
				Name:        "Outdated Firmware",
				Description: "Current firmware has known security vulnerabilities",
				Severity:    models.SeverityMedium,
				Solution:    "Update firmware to the latest version",
			},
		},
	},
	{
		ID:       "2",
		Name:     "IP Camera Xiaomi",
		IP:       "192.168.1.10",
		MAC:      "AA:BB:CC:DD:EE:FF",
		Type:     "Camera",
		Risk:     models.RiskMedium,
		IsOnline: true,
		Vulnerabilities: []models.Vulnerability{
			{
				ID:          "v3",
				Name:        "Unencrypted Stream",
				Description: "Camera sends video stream without encryption",
				Severity:    models.SeverityMedium,
				Solution:    "Enable HTTPS/TLS encryption in camera settings",
			},
		},
	},
	{
		ID:       "3",
		Name:     "Smart TV Samsung",
		IP:       "192.168.1.15",
		MAC:      "12:34:56:78:90:AB",
		Type:     "Smart TV",
		Risk:     models.RiskLow,
		IsOnline: true,
		Vulnerabilities: []models.Vulnerability{
			{
				ID:          "v4",
				Name:        "Unnecessary Open Ports",
				Description: "Found unnecessary open ports that could be used as attack vectors",
				Severity:    models.SeverityLow,
				Solution:    "Close unnecessary ports in device settings",
			},
		},
	},
	{
		ID:              "4",
		Name:            "Smart Bulb Philips Hue",
		IP:              "192.168.1.20",
		MAC:             "FF:EE:DD:CC:BB:AA",
		Type:            "Smart Light",
		Risk:            models.RiskSafe,
		IsOnline:        true,
		Vulnerabilities: []models.Vulnerability{},
	},
	{
		ID:       "5",
		Name:     "Smart Lock Yale",
		IP:       "192.168.1.25",
		MAC:      "AA:BB:CC:11:22:33",
		Type:     "Smart Lock",
		Risk:     models.RiskHigh,
		IsOnline: true,
		Vulnerabilities: []models.Vulnerability{
			{
				ID:          "v5",
				Name:        "Unencrypted Communication",
				Description: "Device sends data without encryption, making it possible for data to be intercepted",
				Severity:    models.SeverityHigh,
				Solution:    "Enable encryption in device settings or contact manufacturer for updates",
			},
		},
	},
}
