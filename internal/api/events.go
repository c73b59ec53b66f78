package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/framecast/internal/capture"
	"github.com/smazurov/framecast/internal/events"
)

// streamEvents forwards events from the bus to send until the client goes
// away. subscribe registers the event types the stream carries.
func (s *Server) streamEvents(ctx context.Context, send sse.Sender, buffer int, subscribe ...func(chan<- any) func()) {
	eventCh := make(chan any, buffer)
	for _, sub := range subscribe {
		defer sub(eventCh)()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eventCh:
			if err := send.Data(event); err != nil {
				return
			}
		}
	}
}

// subscription adapts SubscribeToChannel for streamEvents.
func subscription[T events.Event](bus *events.Bus) func(chan<- any) func() {
	return func(ch chan<- any) func() {
		return events.SubscribeToChannel[T](bus, ch)
	}
}

// registerSSERoutes registers the channel event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Channel Event Stream",
		Description: "Sends the current status, then channel, client and capture state changes as they happen",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"status":        capture.Status{},
		"channel-state": events.ChannelStateChangedEvent{},
		"client-count":  events.ClientCountChangedEvent{},
		"capture-state": events.CaptureStateChangedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		if err := send.Data(s.status.Status()); err != nil {
			return
		}
		s.streamEvents(ctx, send, 10,
			subscription[events.ChannelStateChangedEvent](s.eventBus),
			subscription[events.ClientCountChangedEvent](s.eventBus),
			subscription[events.CaptureStateChangedEvent](s.eventBus),
		)
	})
}

// registerStatsRoutes registers the periodic publish stats stream.
func (s *Server) registerStatsRoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "stats-stream",
		Method:      http.MethodGet,
		Path:        "/api/stats",
		Summary:     "Publish Stats Stream",
		Description: "Frame rate and counters of the capture loop, one event per stats interval",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"publish-stats": events.PublishStatsEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		s.streamEvents(ctx, send, 10, subscription[events.PublishStatsEvent](s.eventBus))
	})
}
