package scan

import (
	"time"

	"github.com/ExclusiveAccount/iot-dashboard/pkg/models"
)

// EventType identifies a store event
type EventType string

// Store events
const (
	EventStarted   EventType = "started"
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventCancelled EventType = "cancelled"
	EventFallback  EventType = "fallback"
	EventAttack    EventType = "attack"
	EventDevices   EventType = "devices"
)

// Event is published to subscribers whenever the scan state changes
type Event struct {
	Type      EventType        `json:"type"`
	Progress  int              `json:"progress"`
	Stats     models.ScanStats `json:"stats"`
	Message   string           `json:"message,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Subscribe registers a listener for store events. Events are dropped for
// a listener whose buffer is full. The returned function unsubscribes and
// closes the channel.
func (s *Store) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	s.subMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subMu.Unlock()

	var once bool
	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if once {
			return
		}
		once = true
		delete(s.subscribers, ch)
		close(ch)
	}
}

func (s *Store) publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}

	s.subMu.Lock()
	defer s.subMu.Unlock()

	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// Subscriber too slow, skip
		}
	}
}
