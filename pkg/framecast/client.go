//go:build unix

package framecast

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// FrameInfo is a lock-free snapshot of channel metadata. FrameNumber may
// already be stale when the caller looks at it.
type FrameInfo struct {
	Geometry    Geometry
	Stride      uint32
	Capacity    int
	FrameNumber uint64
	ServerPID   uint32
	ClientCount int32
}

// Frame describes the result of a successful ReadFrame.
type Frame struct {
	Number    uint64
	Timestamp uint64 // 100ns ticks, producer clock
	Size      int    // bytes published
	Copied    int    // bytes copied into the destination
}

// Truncated reports whether the destination was smaller than the frame.
func (f Frame) Truncated() bool {
	return f.Copied < f.Size
}

// Client attaches to a channel owned by another process and reads the
// latest frame from it.
type Client struct {
	cfg    Config
	names  Names
	logger *slog.Logger

	// mu is held exclusively by Connect and Disconnect only.
	mu       sync.RWMutex
	ch       *channel
	lastSeen atomic.Uint64
}

// NewClient prepares a disconnected client.
func NewClient(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	names, err := ResolveNames(cfg.Dir, cfg.Channel)
	if err != nil {
		return nil, newError(CodeChannelNotFound, "connect", "invalid channel name", err)
	}
	return &Client{cfg: cfg, names: names, logger: cfg.Logger.With("role", "client")}, nil
}

// Connect attaches to the channel, registers this client in the shared
// counter and signals the server.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch != nil {
		return nil
	}

	ch, err := openChannel(c.names)
	if err != nil {
		c.logger.Debug("Connect failed", "error", err)
		return err
	}
	n := ch.incrementClients()
	ch.clientEvent.signal()

	c.ch = ch
	c.lastSeen.Store(0)
	clientsAttached.WithLabelValues(c.cfg.Channel).Set(float64(n))
	c.logger.Info("Connected", "geometry", ch.hdr.geometry().String(), "clients", n)
	return nil
}

// Disconnect unregisters from the shared counter and releases every handle.
// It is safe on a client that never connected and safe to repeat.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch == nil {
		return nil
	}
	ch := c.ch
	c.ch = nil

	n := ch.decrementClients()
	ch.clientEvent.signal()
	clientsAttached.WithLabelValues(c.cfg.Channel).Set(float64(n))
	c.logger.Info("Disconnected", "clients", n, "last_frame", c.lastSeen.Load())

	if err := ch.close(); err != nil {
		return newError(CodeResourceExhausted, "disconnect", "cannot release channel", err)
	}
	return nil
}

// IsConnected reports local state only.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ch != nil
}

// WaitForFrame blocks until the server signals a publish or timeout elapses.
// It returns at once if a frame this client has not read is already in the
// slot. A true result is a hint; ReadFrame decides whether the frame is new.
func (c *Client) WaitForFrame(timeout time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ch == nil {
		return false
	}
	if atomic.LoadUint64(&c.ch.hdr.FrameNumber) != c.lastSeen.Load() {
		c.ch.frameEvent.drain()
		return true
	}
	return c.ch.frameEvent.wait(timeout)
}

// ReadFrame copies the current frame into dst if it is newer than the last
// one this client read.
//
// Errors: ErrNotConnected; ErrLockTimeout (retry); ErrStaleServer (the server
// closed or died, disconnect and reconnect later); ErrNoNewFrame (nothing to
// do). When dst is shorter than the frame, the first len(dst) bytes are
// copied and ErrBufferTooSmall is returned together with a valid Frame.
func (c *Client) ReadFrame(dst []byte) (Frame, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ch == nil {
		return Frame{}, ErrNotConnected
	}

	var (
		frame Frame
		stale bool
		fresh bool
	)
	last := c.lastSeen.Load()
	ok := c.ch.withLock(c.cfg.LockTimeout, func(v *frameView) {
		if v.hdr.ServerPID == 0 {
			stale = true
			return
		}
		if v.hdr.FrameNumber == last {
			return
		}
		size := min(int(v.hdr.DataSize), len(v.slot))
		frame = Frame{
			Number:    v.hdr.FrameNumber,
			Timestamp: v.hdr.Timestamp,
			Size:      size,
			Copied:    copy(dst, v.slot[:size]),
		}
		fresh = true
	})

	switch {
	case !ok:
		readLockTimeouts.WithLabelValues(c.cfg.Channel).Inc()
		if !c.ch.region.ownerAlive() {
			return Frame{}, newError(CodeStaleServer, "read", "server died holding or abandoning the channel", nil)
		}
		return Frame{}, newError(CodeLockTimeout, "read", ErrLockTimeout.Message, nil)
	case stale:
		return Frame{}, newError(CodeStaleServer, "read", ErrStaleServer.Message, nil)
	case !fresh:
		return Frame{}, ErrNoNewFrame
	}

	c.lastSeen.Store(frame.Number)
	framesRead.WithLabelValues(c.cfg.Channel).Inc()
	if frame.Truncated() {
		return frame, newError(CodeBufferTooSmall, "read", ErrBufferTooSmall.Message, nil)
	}
	return frame, nil
}

// FrameInfo returns header metadata without taking the lock or copying
// payload.
func (c *Client) FrameInfo() (FrameInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ch == nil {
		return FrameInfo{}, ErrNotConnected
	}
	return c.ch.peek(), nil
}

// LastSeen returns the number of the last frame this client read, 0 if none.
func (c *Client) LastSeen() uint64 {
	return c.lastSeen.Load()
}

// ServerAlive probes whether the owning process still holds the channel.
// It detects a crashed server that never cleared its pid.
func (c *Client) ServerAlive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ch == nil {
		return false
	}
	return atomic.LoadUint32(&c.ch.hdr.ServerPID) != 0 && c.ch.region.ownerAlive()
}
