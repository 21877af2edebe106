package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_PublishReachesAllSubscribers(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	a := d.Subscribe(4)
	b := d.Subscribe(4)

	d.Publish(EventOrderConsumed, map[string]uint{"order_id": 7})

	for _, ch := range []<-chan Event{a, b} {
		select {
		case ev := <-ch:
			assert.Equal(t, EventOrderConsumed, ev.Type)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestDispatcher_FullSubscriberDoesNotBlockPublisher(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	ch := d.Subscribe(1)
	d.Publish(EventJobConfirmed, 1)

	done := make(chan struct{})
	go func() {
		d.Publish(EventJobConfirmed, 2) // buffer full, must drop
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	ev := <-ch
	assert.Equal(t, 1, ev.Data)
}

func TestDispatcher_CloseClosesChannels(t *testing.T) {
	d := NewDispatcher()
	ch := d.Subscribe(1)
	d.Close()

	_, ok := <-ch
	require.False(t, ok)
}
