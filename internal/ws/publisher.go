package ws

import (
	"fmt"
	"sync"
	"time"
)

const defaultBufferSize = 500

// Event is one status change pushed to admin clients
type Event struct {
	ID    int64     `json:"eventId"`
	Topic string    `json:"topic"`
	Room  string    `json:"room,omitempty"`
	Data  any       `json:"data"`
	At    time.Time `json:"at"`
}

// Buffer keeps the most recent events so reconnecting clients can catch
// up from their last seen event id
type Buffer struct {
	mu     sync.Mutex
	next   int64
	events []Event
	max    int
}

// NewBuffer creates a Buffer holding at most max events
func NewBuffer(max int) *Buffer {
	if max <= 0 {
		max = defaultBufferSize
	}
	return &Buffer{max: max}
}

// Append stores an event and assigns its id
func (b *Buffer) Append(topic, room string, data any) Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	ev := Event{ID: b.next, Topic: topic, Room: room, Data: data, At: time.Now()}
	b.events = append(b.events, ev)
	if len(b.events) > b.max {
		b.events = b.events[len(b.events)-b.max:]
	}
	return ev
}

// Since returns the events after lastID, filtered to room when set. ok is
// false when events after lastID were already evicted and the client has
// to reload its state instead.
func (b *Buffer) Since(lastID int64, room string) (events []Event, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if lastID > b.next {
		// ids from before a restart
		return nil, false
	}
	if len(b.events) > 0 && lastID < b.events[0].ID-1 {
		return nil, false
	}
	for _, ev := range b.events {
		if ev.ID <= lastID {
			continue
		}
		if room != "" && ev.Room != room {
			continue
		}
		events = append(events, ev)
	}
	return events, true
}

// LatestID is the id of the newest event, 0 when none was published
func (b *Buffer) LatestID() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.next
}

// roomOf maps a status payload to the room of the entity it describes
func roomOf(payload any) string {
	m, ok := payload.(map[string]any)
	if !ok {
		return ""
	}
	if id, ok := m["serviceId"]; ok {
		return fmt.Sprintf("service:%v", id)
	}
	if id, ok := m["jobId"]; ok {
		return fmt.Sprintf("migration:%v", id)
	}
	return ""
}
