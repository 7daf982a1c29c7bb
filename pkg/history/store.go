package history

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Store holds the scan history in memory
type Store struct {
	mu      sync.RWMutex
	records []Record
	limit   int
	nextID  int
	logger  *logrus.Logger
	now     func() time.Time
}

// NewStore creates a history seeded with the sample records. It keeps at
// most limit records, dropping the oldest ones first.
func NewStore(limit int, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	if limit <= 0 {
		limit = 50
	}

	s := &Store{limit: limit, logger: logger, now: time.Now, nextID: 1}
	for _, r := range Seed() {
		s.insert(r)
	}
	return s
}

// SetClock replaces the time source used for new records and date filters
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) insert(r Record) {
	if n, err := strconv.Atoi(strings.TrimPrefix(r.ID, "SC-")); err == nil && n >= s.nextID {
		s.nextID = n + 1
	}

	s.records = append(s.records, r)
	if len(s.records) > s.limit {
		s.records = s.records[len(s.records)-s.limit:]
	}
}

// AddScan records a completed scan and returns the new record
func (s *Store) AddScan(at time.Time, devices, vulnerabilities int, overallRisk string) Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := Record{
		ID:                 fmt.Sprintf("SC-%03d", s.nextID),
		Date:               at.Format(DateLayout),
		Time:               at.Format(TimeLayout),
		DeviceCount:        devices,
		VulnerabilityCount: vulnerabilities,
		RiskLevel:          RiskFor(overallRisk),
		Status:             StatusCompleted,
	}
	s.insert(r)

	s.logger.WithFields(logrus.Fields{
		"id":      r.ID,
		"devices": devices,
		"risk":    r.RiskLevel,
	}).Info("Scan recorded in history")

	return r
}

// List returns the records matching q
func (s *Store) List(q Query) ([]Record, error) {
	s.mu.RLock()
	records := append([]Record(nil), s.records...)
	now := s.now()
	s.mu.RUnlock()

	return Apply(records, q, now)
}

// Get returns a record by id
func (s *Store) Get(id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.records {
		if strings.EqualFold(r.ID, id) {
			return r, nil
		}
	}
	return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Len returns the number of records
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
