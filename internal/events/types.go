package events

// Event type identifiers for kelindar/event.
const (
	TypeChannelStateChanged uint32 = iota + 1
	TypeClientCountChanged
	TypeCaptureStateChanged
	TypePublishStats
	TypeLogEntry
)

// Event is implemented by everything published on the bus.
type Event interface {
	Type() uint32
}

// Channel lifecycle states.
const (
	ChannelCreated = "created"
	ChannelClosed  = "closed"
)

// ChannelStateChangedEvent is published when the shared-memory channel is
// created or torn down.
type ChannelStateChangedEvent struct {
	Channel   string `json:"channel" example:"framecast" doc:"Channel name"`
	State     string `json:"state" example:"created" enum:"created,closed" doc:"New channel state"`
	Geometry  string `json:"geometry,omitempty" example:"640x480 rgb24" doc:"Frame geometry"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ChannelStateChangedEvent.
func (e ChannelStateChangedEvent) Type() uint32 { return TypeChannelStateChanged }

// ClientCountChangedEvent is published when the number of attached clients
// changes.
type ClientCountChangedEvent struct {
	Channel   string `json:"channel" example:"framecast" doc:"Channel name"`
	Clients   int    `json:"clients" example:"2" doc:"Attached clients"`
	Previous  int    `json:"previous" example:"1" doc:"Previously observed count"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ClientCountChangedEvent.
func (e ClientCountChangedEvent) Type() uint32 { return TypeClientCountChanged }

// CaptureStateChangedEvent is published when the frame source starts or
// stops, for example when on-demand capture goes idle.
type CaptureStateChangedEvent struct {
	Channel   string `json:"channel" example:"framecast" doc:"Channel name"`
	Source    string `json:"source" example:"pattern" doc:"Frame source"`
	Active    bool   `json:"active" example:"true" doc:"Whether the source is producing frames"`
	Reason    string `json:"reason" example:"client attached" doc:"Why the state changed"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CaptureStateChangedEvent.
func (e CaptureStateChangedEvent) Type() uint32 { return TypeCaptureStateChanged }

// PublishStatsEvent is a periodic summary of the capture loop.
type PublishStatsEvent struct {
	Channel     string  `json:"channel" example:"framecast" doc:"Channel name"`
	FrameNumber uint64  `json:"frame_number" example:"1800" doc:"Last published frame number"`
	FPS         float64 `json:"fps" example:"29.97" doc:"Publish rate over the last interval"`
	Published   uint64  `json:"published" example:"1800" doc:"Frames published since start"`
	Dropped     uint64  `json:"dropped" example:"3" doc:"Publishes dropped on lock timeout"`
	Clients     int     `json:"clients" example:"1" doc:"Attached clients"`
	Timestamp   string  `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PublishStatsEvent.
func (e PublishStatsEvent) Type() uint32 { return TypePublishStats }

// LogEntryEvent carries one log line to SSE listeners.
type LogEntryEvent struct {
	Seq       uint64         `json:"seq" example:"42" doc:"Monotonic sequence number"`
	Timestamp string         `json:"timestamp" example:"2026-01-27T10:30:00.123Z" doc:"Log timestamp"`
	Level     string         `json:"level" example:"info" doc:"Log level"`
	Module    string         `json:"module" example:"capture" doc:"Source module"`
	Message   string         `json:"message" doc:"Log message"`
	Attrs     map[string]any `json:"attrs,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
