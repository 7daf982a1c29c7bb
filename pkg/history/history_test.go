package history

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func newTestStore(limit int) *Store {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s := NewStore(limit, logger)
	s.SetClock(func() time.Time { return time.Date(2025, 1, 24, 10, 0, 0, 0, time.UTC) })
	return s
}

func TestToggleCycle(t *testing.T) {
	var s SortState

	s = s.Toggle(FieldDate)
	assert.Equal(t, SortState{Field: FieldDate, Dir: DirAsc}, s)
	s = s.Toggle(FieldDate)
	assert.Equal(t, SortState{Field: FieldDate, Dir: DirDesc}, s)
	s = s.Toggle(FieldDate)
	assert.Equal(t, SortState{}, s)
	s = s.Toggle(FieldDate)
	assert.Equal(t, DirAsc, s.Dir)

	// switching column restarts at ascending
	s = s.Toggle(FieldDate).Toggle(FieldRiskLevel)
	assert.Equal(t, SortState{Field: FieldRiskLevel, Dir: DirAsc}, s)
}

func TestSortByDate(t *testing.T) {
	records := Seed()

	SortState{Field: FieldDate, Dir: DirAsc}.Sort(records)
	assert.Equal(t, []string{"SC-006", "SC-005", "SC-001", "SC-002", "SC-003", "SC-004"}, ids(records))

	SortState{Field: FieldDate, Dir: DirDesc}.Sort(records)
	assert.Equal(t, []string{"SC-004", "SC-003", "SC-002", "SC-001", "SC-005", "SC-006"}, ids(records))
}

func TestSortIsStable(t *testing.T) {
	records := Seed()

	SortState{Field: FieldRiskLevel, Dir: DirDesc}.Sort(records)
	assert.Equal(t, []string{"SC-001", "SC-004", "SC-005", "SC-002", "SC-003", "SC-006"}, ids(records))

	records = Seed()
	SortState{Field: FieldRiskLevel, Dir: DirAsc}.Sort(records)
	assert.Equal(t, []string{"SC-003", "SC-006", "SC-002", "SC-001", "SC-004", "SC-005"}, ids(records))
}

func TestSortNumericAndText(t *testing.T) {
	records := Seed()
	SortState{Field: FieldVulnerabilityCount, Dir: DirAsc}.Sort(records)
	assert.Equal(t, []string{"SC-003", "SC-006", "SC-002", "SC-004", "SC-001", "SC-005"}, ids(records))

	records = Seed()
	SortState{Field: FieldDeviceCount, Dir: DirDesc}.Sort(records)
	assert.Equal(t, []string{"SC-004", "SC-003", "SC-001", "SC-005", "SC-002", "SC-006"}, ids(records))

	records = Seed()
	SortState{Field: FieldTime, Dir: DirAsc}.Sort(records)
	assert.Equal(t, []string{"SC-005", "SC-002", "SC-004", "SC-006", "SC-001", "SC-003"}, ids(records))

	records = []Record{{ID: "sc-b"}, {ID: "SC-A"}}
	SortState{Field: FieldID, Dir: DirAsc}.Sort(records)
	assert.Equal(t, []string{"SC-A", "sc-b"}, ids(records))
}

func TestUnsortedKeepsOrder(t *testing.T) {
	records := Seed()
	SortState{Field: FieldDate}.Sort(records)
	assert.Equal(t, ids(Seed()), ids(records))
}

func TestFilters(t *testing.T) {
	now := time.Date(2025, 1, 24, 10, 0, 0, 0, time.UTC)

	high, err := Apply(Seed(), Query{Filter: FilterHighRisk}, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"SC-001", "SC-004", "SC-005"}, ids(high))

	recent, err := Apply(Seed(), Query{Filter: FilterLast7Days}, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"SC-002", "SC-003", "SC-004"}, ids(recent))

	day, err := Apply(Seed(), Query{Date: "2025-01-20"}, now)
	require.NoError(t, err)
	assert.Equal(t, []string{"SC-003"}, ids(day))

	none, err := Apply(Seed(), Query{Date: "2025-02-01"}, now)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = Apply(Seed(), Query{Date: "20/01/2025"}, now)
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestParse(t *testing.T) {
	f, err := ParseFilter("")
	require.NoError(t, err)
	assert.Equal(t, FilterAll, f)

	_, err = ParseFilter("critical")
	assert.ErrorIs(t, err, ErrUnknownFilter)

	field, err := ParseField("devicecount")
	require.NoError(t, err)
	assert.Equal(t, FieldDeviceCount, field)

	_, err = ParseField("vendor")
	assert.ErrorIs(t, err, ErrUnknownField)

	dir, err := ParseDirection("DESC")
	require.NoError(t, err)
	assert.Equal(t, DirDesc, dir)
}

func TestStoreAddScan(t *testing.T) {
	s := newTestStore(50)
	assert.Equal(t, 6, s.Len())

	r := s.AddScan(time.Date(2025, 1, 24, 9, 5, 0, 0, time.UTC), 5, 5, "High")
	assert.Equal(t, "SC-007", r.ID)
	assert.Equal(t, "24/01/2025", r.Date)
	assert.Equal(t, "09:05", r.Time)
	assert.Equal(t, StatusCompleted, r.Status)

	safe := s.AddScan(time.Date(2025, 1, 24, 9, 6, 0, 0, time.UTC), 1, 0, "Safe")
	assert.Equal(t, "SC-008", safe.ID)
	assert.Equal(t, RiskLow, safe.RiskLevel)

	got, err := s.Get("sc-007")
	require.NoError(t, err)
	assert.Equal(t, r, got)

	_, err = s.Get("SC-999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreRetention(t *testing.T) {
	s := newTestStore(7)
	s.AddScan(time.Now(), 1, 0, "Low")
	s.AddScan(time.Now(), 2, 0, "Low")

	records, err := s.List(Query{})
	require.NoError(t, err)
	assert.Len(t, records, 7)
	assert.Equal(t, "SC-002", records[0].ID)
	assert.Equal(t, "SC-008", records[6].ID)
}

func TestStoreList(t *testing.T) {
	s := newTestStore(50)

	records, err := s.List(Query{Filter: FilterHighRisk, Sort: SortState{Field: FieldVulnerabilityCount, Dir: DirDesc}})
	require.NoError(t, err)
	assert.Equal(t, []string{"SC-005", "SC-001", "SC-004"}, ids(records))
}
