// Package events carries status, result and error messages from workers to
// the control loop and to external listeners (SSE, MQTT).
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/snarg/dictation/internal/metrics"
)

// Event types.
const (
	TypeStatus    = "status"    // progress text
	TypeResult    = "result"    // final transcript
	TypeError     = "error"     // job failed
	TypeCancelled = "cancelled" // job or recording cancelled
	TypeRecording = "recording" // recorder state change
	TypeEnabled   = "enabled"   // hotkeys enabled or disabled
)

// Event is one message on the bus.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	JobID     string          `json:"job_id,omitempty"`
	Message   string          `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Filter selects events. Zero value matches everything.
type Filter struct {
	Types []string
	JobID string
}

// Matches reports whether e passes the filter.
func (f Filter) Matches(e Event) bool {
	if f.JobID != "" && e.JobID != f.JobID {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if t == e.Type {
			return true
		}
	}
	return false
}

// Bus is a pub-sub fan-out with a ring buffer for replay on reconnect.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uint64]subscriber
	nextID      uint64
	seq         atomic.Uint64

	ringMu   sync.RWMutex
	ring     []Event
	ringSize int
	ringHead int
}

type subscriber struct {
	ch     chan Event
	filter Filter
}

// NewBus creates a bus that remembers the last ringSize events.
func NewBus(ringSize int) *Bus {
	if ringSize < 1 {
		ringSize = 1
	}
	return &Bus{
		subscribers: make(map[uint64]subscriber),
		ring:        make([]Event, ringSize),
		ringSize:    ringSize,
	}
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel.
func (b *Bus) Subscribe(filter Filter) (<-chan Event, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, 64)
	b.subscribers[id] = subscriber{ch: ch, filter: filter}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Publish sends an event to all matching subscribers and records it in the
// ring. Subscribers whose buffer is full miss the event.
func (b *Bus) Publish(typ, jobID, message string, payload any) Event {
	var data json.RawMessage
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			data = raw
		}
	}
	now := time.Now().UTC()
	e := Event{
		ID:        fmt.Sprintf("%d-%d", now.UnixMilli(), b.seq.Add(1)),
		Type:      typ,
		JobID:     jobID,
		Message:   message,
		Timestamp: now,
		Data:      data,
	}

	b.ringMu.Lock()
	b.ring[b.ringHead] = e
	b.ringHead = (b.ringHead + 1) % b.ringSize
	b.ringMu.Unlock()

	b.mu.RLock()
	for _, sub := range b.subscribers {
		if sub.filter.Matches(e) {
			select {
			case sub.ch <- e:
			default:
			}
		}
	}
	b.mu.RUnlock()

	metrics.EventsPublishedTotal.Inc()
	return e
}

// ReplaySince returns buffered events after lastEventID, oldest first. An
// empty lastEventID returns everything buffered.
func (b *Bus) ReplaySince(lastEventID string, filter Filter) []Event {
	b.ringMu.RLock()
	defer b.ringMu.RUnlock()

	var out []Event
	found := lastEventID == ""
	for i := 0; i < b.ringSize; i++ {
		e := b.ring[(b.ringHead+i)%b.ringSize]
		if e.ID == "" {
			continue
		}
		if !found {
			found = e.ID == lastEventID
			continue
		}
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// Recent returns up to n of the most recent buffered events, oldest first.
func (b *Bus) Recent(n int) []Event {
	all := b.ReplaySince("", Filter{})
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all
}
