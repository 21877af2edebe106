// Package events decouples the inventory core from its downstream consumers
// (webhook delivery, PDF generation, dashboards). The coordinator publishes
// after its transaction commits; a slow or failing consumer can never roll
// back inventory state.
package events

import (
	"sync"
	"time"
)

// Event types published by the core.
const (
	EventOrderConsumed  = "order_consumed"
	EventOrderCancelled = "order_cancelled"
	EventJobConfirmed   = "job_confirmed"
	EventJobDeviated    = "job_deviated"
	EventPanelsFreed    = "panels_freed"
)

type Event struct {
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

// Dispatcher fans events out to subscriber channels. Delivery is best-effort:
// a subscriber whose buffer is full loses the event rather than blocking the
// publisher.
type Dispatcher struct {
	mu   sync.Mutex
	subs []chan Event
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Subscribe registers a buffered channel that will receive every published
// event until Close.
func (d *Dispatcher) Subscribe(buffer int) <-chan Event {
	if buffer < 1 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	d.mu.Lock()
	d.subs = append(d.subs, ch)
	d.mu.Unlock()
	return ch
}

// Publish delivers the event to all subscribers without blocking.
func (d *Dispatcher) Publish(eventType string, data interface{}) {
	ev := Event{
		Type:       eventType,
		OccurredAt: time.Now(),
		Data:       data,
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ch := range d.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close closes every subscriber channel.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ch := range d.subs {
		close(ch)
	}
	d.subs = nil
}
