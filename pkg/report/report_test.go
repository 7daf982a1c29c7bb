package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ExclusiveAccount/iot-dashboard/pkg/history"
	"github.com/ExclusiveAccount/iot-dashboard/pkg/scan"
)

func newService(t *testing.T) (*Service, *scan.Store) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := scan.NewStore(scan.NewMockSource(time.Millisecond), scan.Options{
		Now: func() time.Time { return time.Date(2025, 2, 1, 18, 45, 0, 0, time.UTC) },
	}, logger)
	return NewService(history.NewStore(50, logger), store), store
}

func TestFromRecord(t *testing.T) {
	rec := history.Seed()[0]
	r := FromRecord(rec)

	assert.Equal(t, "SC-001", r.ID)
	assert.Equal(t, "15/01/2025", r.Date)
	assert.Equal(t, 8, r.DevicesScanned)
	assert.Equal(t, 12, r.VulnerabilitiesFound)
	assert.Equal(t, 3, r.CriticalVulnerabilities)
	assert.Equal(t, 3, r.HighRiskDevices)
	assert.Equal(t, 95, r.NetworkCoverage)
	assert.Len(t, r.Vulnerabilities, 4)
	assert.Equal(t, "VLN-004", r.Vulnerabilities[3].ID)
}

func TestCurrentReport(t *testing.T) {
	svc, store := newService(t)
	require.NoError(t, store.StartScan(context.Background()))

	r, err := svc.Get("current")
	require.NoError(t, err)
	assert.Equal(t, CurrentID, r.ID)
	assert.Equal(t, "01/02/2025", r.Date)
	assert.Equal(t, "18:45", r.Time)
	assert.Equal(t, 5, r.DevicesScanned)
	assert.Equal(t, 5, r.VulnerabilitiesFound)
	assert.Equal(t, 2, r.CriticalVulnerabilities)
	assert.Equal(t, 2, r.HighRiskDevices)
	assert.Equal(t, 100, r.NetworkCoverage)
	require.Len(t, r.Vulnerabilities, 5)
	assert.Equal(t, "VLN-001", r.Vulnerabilities[0].ID)
	assert.Equal(t, "192.168.1.1", r.Vulnerabilities[0].DeviceIP)
	assert.Equal(t, "High", r.Vulnerabilities[0].RiskLevel)
}

func TestGetUnknown(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Get("SC-404")
	assert.ErrorIs(t, err, ErrReportNotFound)

	r, err := svc.Get("sc-002")
	require.NoError(t, err)
	assert.Equal(t, "SC-002", r.ID)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:05:32", FormatDuration(5*time.Minute+32*time.Second))
	assert.Equal(t, "01:00:01", FormatDuration(time.Hour+time.Second))
	assert.Equal(t, "00:00:00", FormatDuration(-time.Second))
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FromRecord(history.Seed()[1]), FormatJSON))

	var got Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "SC-002", got.ID)
	assert.Len(t, got.Vulnerabilities, 4)
}

func TestExportCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FromRecord(history.Seed()[1]), FormatCSV))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "Device IP", rows[0][3])
	assert.Equal(t, "Default Password", rows[1][1])
}

func TestExportMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FromRecord(history.Seed()[2]), FormatMarkdown))

	out := buf.String()
	assert.Contains(t, out, "# Scan Report SC-003")
	assert.Contains(t, out, "- **Network Coverage**: 95%")
	assert.Contains(t, out, "### VLN-003: Unencrypted Communication")

	buf.Reset()
	require.NoError(t, Write(&buf, Report{ID: "current"}, FormatMarkdown))
	assert.Contains(t, buf.String(), "No vulnerabilities found.")
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat("markdown")
	require.NoError(t, err)
	assert.Equal(t, FormatMarkdown, f)
	assert.Equal(t, "iot_scan_report_sc-001.md", f.Filename(Report{ID: "SC-001"}))

	_, err = ParseFormat("pdf")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	assert.ErrorIs(t, Write(io.Discard, Report{}, Format("pdf")), ErrUnsupportedFormat)
}
