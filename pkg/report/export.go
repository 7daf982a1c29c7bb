package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Format is an export format
type Format string

// Export formats
const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "md"
)

// ErrUnsupportedFormat is returned for unknown export formats
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ParseFormat parses a format name; empty means JSON
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, s)
}

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	default:
		return "application/json"
	}
}

// Filename returns the download name of a report
func (f Format) Filename(r Report) string {
	return fmt.Sprintf("iot_scan_report_%s.%s", strings.ToLower(r.ID), f)
}

// Write exports r to w
func Write(w io.Writer, r Report, f Format) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, r)
	case FormatCSV:
		return writeCSV(w, r)
	case FormatMarkdown:
		return writeMarkdown(w, r)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
}

func writeJSON(w io.Writer, r Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report to JSON: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON data: %w", err)
	}
	return nil
}

func writeCSV(w io.Writer, r Report) error {
	csvWriter := csv.NewWriter(w)

	header := []string{"ID", "Name", "Device Type", "Device IP", "Risk Level", "Description", "Solution"}
	if err := csvWriter.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, f := range r.Vulnerabilities {
		row := []string{f.ID, f.Name, f.DeviceType, f.DeviceIP, f.RiskLevel, f.Description, f.Solution}
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// errWriter keeps the first write error so the markdown writer can print
// without checking every line
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func writeMarkdown(w io.Writer, r Report) error {
	ew := &errWriter{w: w}

	ew.printf("# Scan Report %s\n\n", r.ID)
	ew.printf("## Summary\n\n")
	ew.printf("- **Date and Time**: %s - %s\n", r.Date, r.Time)
	ew.printf("- **Duration**: %s\n", r.Duration)
	ew.printf("- **Devices Scanned**: %d\n", r.DevicesScanned)
	ew.printf("- **High Risk Devices**: %d\n", r.HighRiskDevices)
	ew.printf("- **Vulnerabilities Found**: %d\n", r.VulnerabilitiesFound)
	ew.printf("- **Critical Vulnerabilities**: %d\n", r.CriticalVulnerabilities)
	ew.printf("- **Network Coverage**: %d%%\n", r.NetworkCoverage)

	if len(r.Vulnerabilities) == 0 {
		ew.printf("\nNo vulnerabilities found.\n")
		return ew.err
	}

	ew.printf("\n## Vulnerabilities\n")
	for _, f := range r.Vulnerabilities {
		ew.printf("\n### %s: %s\n\n", f.ID, f.Name)
		ew.printf("- **Device**: %s (%s)\n", f.DeviceType, f.DeviceIP)
		ew.printf("- **Risk Level**: %s\n", f.RiskLevel)
		if f.Description != "" {
			ew.printf("- **Description**: %s\n", f.Description)
		}
		if f.Solution != "" {
			ew.printf("- **Solution**: %s\n", f.Solution)
		}
	}

	return ew.err
}
