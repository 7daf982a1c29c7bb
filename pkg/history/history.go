// Package history keeps the records of past scans and answers the filtered,
// sorted queries of the scan history page.
package history

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Layouts of the record date and time columns
const (
	DateLayout   = "02/01/2006"
	TimeLayout   = "15:04"
	SearchLayout = "2006-01-02"
)

// Record statuses
const (
	StatusCompleted  = "Completed"
	StatusInProgress = "In Progress"
)

// Record risk levels, ordered High > Medium > Low
const (
	RiskHigh   = "High"
	RiskMedium = "Medium"
	RiskLow    = "Low"
)

var (
	ErrUnknownField  = errors.New("unknown sort field")
	ErrUnknownFilter = errors.New("unknown history filter")
	ErrInvalidDate   = errors.New("invalid search date")
	ErrNotFound      = errors.New("scan record not found")
)

// Record is one row of the scan history
type Record struct {
	ID                 string `json:"id"`
	Date               string `json:"date"`
	Time               string `json:"time"`
	DeviceCount        int    `json:"deviceCount"`
	VulnerabilityCount int    `json:"vulnerabilityCount"`
	RiskLevel          string `json:"riskLevel"`
	Status             string `json:"status"`
}

// Day returns the calendar date of the record
func (r Record) Day() (time.Time, error) {
	return time.Parse(DateLayout, r.Date)
}

// Filter selects a subset of the history
type Filter string

// History filters
const (
	FilterAll       Filter = "all"
	FilterHighRisk  Filter = "high-risk"
	FilterLast7Days Filter = "last-7-days"
)

const recentDays = 7

// ParseFilter parses a filter name; empty means all
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterHighRisk, FilterLast7Days:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFilter, s)
}

// Query describes a history listing
type Query struct {
	Filter Filter
	Date   string // YYYY-MM-DD, empty matches every date
	Sort   SortState
}

// Apply filters and sorts records without modifying them
func Apply(records []Record, q Query, now time.Time) ([]Record, error) {
	var search string
	if q.Date != "" {
		day, err := time.Parse(SearchLayout, q.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDate, q.Date)
		}
		search = day.Format(DateLayout)
	}

	y, m, d := now.Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -recentDays)

	out := make([]Record, 0, len(records))
	for _, r := range records {
		if search != "" && r.Date != search {
			continue
		}

		switch q.Filter {
		case FilterHighRisk:
			if r.RiskLevel != RiskHigh {
				continue
			}
		case FilterLast7Days:
			day, err := r.Day()
			if err != nil || day.Before(cutoff) {
				continue
			}
		}

		out = append(out, r)
	}

	q.Sort.Sort(out)
	return out, nil
}

// RiskFor maps an overall network risk onto the history levels. A safe
// network is recorded as Low.
func RiskFor(overall string) string {
	switch overall {
	case RiskHigh, RiskMedium:
		return overall
	default:
		return RiskLow
	}
}

// Seed returns the records the history starts with
func Seed() []Record {
	return []Record{
		{ID: "SC-001", Date: "15/01/2025", Time: "14:30", DeviceCount: 8, VulnerabilityCount: 12, RiskLevel: RiskHigh, Status: StatusCompleted},
		{ID: "SC-002", Date: "18/01/2025", Time: "09:15", DeviceCount: 5, VulnerabilityCount: 3, RiskLevel: RiskMedium, Status: StatusCompleted},
		{ID: "SC-003", Date: "20/01/2025", Time: "16:45", DeviceCount: 10, VulnerabilityCount: 0, RiskLevel: RiskLow, Status: StatusCompleted},
		{ID: "SC-004", Date: "22/01/2025", Time: "11:30", DeviceCount: 12, VulnerabilityCount: 8, RiskLevel: RiskHigh, Status: StatusCompleted},
		{ID: "SC-005", Date: "10/01/2025", Time: "08:20", DeviceCount: 6, VulnerabilityCount: 15, RiskLevel: RiskHigh, Status: StatusCompleted},
		{ID: "SC-006", Date: "05/01/2025", Time: "13:45", DeviceCount: 3, VulnerabilityCount: 2, RiskLevel: RiskLow, Status: StatusCompleted},
	}
}

var riskRank = map[string]int{RiskHigh: 3, RiskMedium: 2, RiskLow: 1}

// less compares two records on field in ascending order
func less(field SortField, a, b Record) bool {
	switch field {
	case FieldDate:
		da, _ := a.Day()
		db, _ := b.Day()
		return da.Before(db)
	case FieldDeviceCount:
		return a.DeviceCount < b.DeviceCount
	case FieldVulnerabilityCount:
		return a.VulnerabilityCount < b.VulnerabilityCount
	case FieldRiskLevel:
		return riskRank[a.RiskLevel] < riskRank[b.RiskLevel]
	case FieldTime:
		return strings.ToLower(a.Time) < strings.ToLower(b.Time)
	case FieldStatus:
		return strings.ToLower(a.Status) < strings.ToLower(b.Status)
	default:
		return strings.ToLower(a.ID) < strings.ToLower(b.ID)
	}
}

// Sort orders records in place. Equal keys keep their relative order and an
// unsorted state leaves the slice unchanged.
func (s SortState) Sort(records []Record) {
	if s.Field == "" || s.Dir == DirNone {
		return
	}

	sort.SliceStable(records, func(i, j int) bool {
		if s.Dir == DirDesc {
			return less(s.Field, records[j], records[i])
		}
		return less(s.Field, records[i], records[j])
	})
}
