package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher. Subscribers are matched by the
// static type of their handler.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates an event bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish delivers ev to every subscriber of its concrete type. Unknown
// types are ignored.
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case ChannelStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case ClientCountChangedEvent:
		event.Publish(b.dispatcher, e)
	case CaptureStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case PublishStatsEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers a typed handler, e.g. func(ClientCountChangedEvent),
// and returns its unsubscribe function. Handlers of an unknown type get a
// no-op unsubscribe and never fire.
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(ChannelStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ClientCountChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CaptureStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PublishStatsEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

