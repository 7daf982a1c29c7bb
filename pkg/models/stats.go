package models

// DefaultNetworkName is the network label shown before any scan
const DefaultNetworkName = "Home Network"

// ScanStats contains aggregate statistics about the current device list
type ScanStats struct {
	TotalDevices            int    `json:"totalDevices"`
	VulnerableDevices       int    `json:"vulnerableDevices"`
	TotalVulnerabilities    int    `json:"totalVulnerabilities"`
	HighRiskVulnerabilities int    `json:"highRiskVulnerabilities"`
	ScanProgress            int    `json:"scanProgress"`
	LastScanTime            string `json:"lastScanTime"`
	NetworkName             string `json:"networkName"`
}

// InitialStats returns the statistics shown before any scan has run
func InitialStats(networkName string) ScanStats {
	if networkName == "" {
		networkName = DefaultNetworkName
	}
	return ScanStats{NetworkName: networkName}
}

// ComputeStats derives the device counters from the device list. Progress,
// last scan time and network name are taken from base.
func ComputeStats(devices []Device, base ScanStats) ScanStats {
	stats := base
	stats.TotalDevices = len(devices)
	stats.VulnerableDevices = 0
	stats.TotalVulnerabilities = 0
	stats.HighRiskVulnerabilities = 0

	for i := range devices {
		if devices[i].IsVulnerable() {
			stats.VulnerableDevices++
		}
		stats.TotalVulnerabilities += len(devices[i].Vulnerabilities)
		stats.HighRiskVulnerabilities += devices[i].SeverityCounts().High
	}

	return stats
}

// OverallRisk summarises the network risk as High, Medium, Low or Safe.
// Any high severity vulnerability makes the network High, otherwise the
// riskiest device decides.
func OverallRisk(stats ScanStats, devices []Device) string {
	if stats.HighRiskVulnerabilities > 0 {
		return "High"
	}

	var medium, low bool
	for _, d := range devices {
		switch d.Risk {
		case RiskMedium:
			medium = true
		case RiskLow:
			low = true
		}
	}

	switch {
	case medium:
		return "Medium"
	case low:
		return "Low"
	default:
		return "Safe"
	}
}
