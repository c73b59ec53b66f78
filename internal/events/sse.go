package events

import (
	"sync/atomic"
	"time"

	"github.com/kelindar/event"
	"github.com/smazurov/framecast/internal/logging"
)

// SubscribeToChannel forwards events of type T into ch for select-loop
// consumers such as the SSE handler. Events are dropped when ch is full so
// a slow listener never stalls the publisher.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}

// ForwardLogs publishes every recorded log entry as a LogEntryEvent.
// The returned function stops forwarding.
func ForwardLogs(bus *Bus) func() {
	var seq atomic.Uint64
	logging.OnEntry(func(e logging.Entry) {
		bus.Publish(LogEntryEvent{
			Seq:       seq.Add(1),
			Timestamp: e.Time.UTC().Format(time.RFC3339Nano),
			Level:     e.Level,
			Module:    e.Module,
			Message:   e.Message,
			Attrs:     e.Attrs,
		})
	})
	return func() { logging.OnEntry(nil) }
}
