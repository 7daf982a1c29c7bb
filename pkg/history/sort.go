package history

import (
	"fmt"
	"strings"
)

// SortField is a sortable history column
type SortField string

// Sortable columns
const (
	FieldID                 SortField = "id"
	FieldDate               SortField = "date"
	FieldTime               SortField = "time"
	FieldDeviceCount        SortField = "deviceCount"
	FieldVulnerabilityCount SortField = "vulnerabilityCount"
	FieldRiskLevel          SortField = "riskLevel"
	FieldStatus             SortField = "status"
)

var fields = []SortField{
	FieldID, FieldDate, FieldTime, FieldDeviceCount,
	FieldVulnerabilityCount, FieldRiskLevel, FieldStatus,
}

// ParseField parses a column name, ignoring case
func ParseField(s string) (SortField, error) {
	for _, f := range fields {
		if strings.EqualFold(s, string(f)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
}

// Direction of a sort
type Direction string

// Sort directions
const (
	DirNone Direction = ""
	DirAsc  Direction = "asc"
	DirDesc Direction = "desc"
)

// ParseDirection parses asc or desc; empty means unsorted
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case DirNone, DirAsc, DirDesc:
		return d, nil
	}
	return DirNone, fmt.Errorf("%w: direction %q", ErrUnknownField, s)
}

// SortState is the column and direction the history is sorted by
type SortState struct {
	Field SortField `json:"field,omitempty"`
	Dir   Direction `json:"dir,omitempty"`
}

// Toggle returns the state after clicking column field: the same column
// cycles asc, desc, unsorted; another column starts ascending.
func (s SortState) Toggle(field SortField) SortState {
	if s.Field != field {
		return SortState{Field: field, Dir: DirAsc}
	}

	switch s.Dir {
	case DirAsc:
		return SortState{Field: field, Dir: DirDesc}
	case DirDesc:
		return SortState{}
	default:
		return SortState{Field: field, Dir: DirAsc}
	}
}
