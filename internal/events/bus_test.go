package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notesync/notesync/internal/models"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	a, cancelA := bus.Subscribe()
	defer cancelA()
	b, cancelB := bus.Subscribe()
	defer cancelB()

	bus.Publish(Event{Type: EventStatusChanged, Status: models.StatusSyncing})

	assert.Equal(t, models.StatusSyncing, receive(t, a).Status)
	assert.Equal(t, models.StatusSyncing, receive(t, b).Status)
}

func TestBusStampsTimestamp(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(Event{Type: EventSyncComplete})
	assert.False(t, receive(t, ch).Timestamp.IsZero())
}

func TestBusCancelStopsDelivery(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	cancel()

	bus.Publish(Event{Type: EventStatusChanged})

	_, open := <-ch
	assert.False(t, open)
}

func TestBusSlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	_, cancel := bus.Subscribe() // never drained
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			bus.Publish(Event{Type: EventFileChanged})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
}

func TestBusClose(t *testing.T) {
	bus := NewBus()

	ch, _ := bus.Subscribe()
	bus.Close()

	_, open := <-ch
	assert.False(t, open)

	// Subscribing after close yields a closed channel.
	late, cancel := bus.Subscribe()
	defer cancel()
	_, open = <-late
	require.False(t, open)
}
