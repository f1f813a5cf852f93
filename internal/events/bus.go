package events

import (
	"sync"
	"time"

	"github.com/notesync/notesync/internal/models"
)

// EventType identifies a sync notification.
type EventType string

const (
	EventStatusChanged      EventType = "status-changed"
	EventDeviceConnected    EventType = "device-connected"
	EventDeviceDisconnected EventType = "device-disconnected"
	EventFileChanged        EventType = "file-changed"
	EventSyncProgress       EventType = "sync-progress"
	EventSyncComplete       EventType = "sync-complete"
)

// Event is one notification. Exactly one event is published per state
// mutation; payload fields are set according to Type.
type Event struct {
	Type      EventType
	Timestamp time.Time

	Status   models.SyncStatus
	Device   *models.SyncDevice
	DeviceID string
	Change   *models.NoteChange
	Progress *models.SyncProgress
	Result   *models.SyncResult
}

// Bus fans events out to subscribers. Delivery is best-effort: a
// subscriber that falls behind loses events rather than blocking the
// publisher. Missed notifications are recovered by the next poll.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a listener. The returned cancel func must be
// called when the listener is done; it closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, 64)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Publish delivers an event to all subscribers.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber is full; drop.
		}
	}
}

// Close tears down all subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
